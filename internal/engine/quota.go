package engine

// IterationBound counts propagation rounds and enforces the configured
// maximum.
//
// Two things are bounded with it:
//   - Delayed rounds: each round fires the deduplicated delayed queue; edges
//     enqueued by that round form the next one
//   - Immediate depth: a chain of immediate notifications that keeps
//     re-triggering itself
//
// A graph whose notifications settle needs a handful of rounds. Hitting the
// bound means the edges form a cycle whose actions keep reporting changes.
type IterationBound struct {
	max     int
	current int
}

// DefaultMaxIterations is the default propagation bound per pass.
const DefaultMaxIterations = 16

// NewIterationBound creates a bound with the given limit. Non-positive
// limits fall back to DefaultMaxIterations.
func NewIterationBound(max int) *IterationBound {
	if max <= 0 {
		max = DefaultMaxIterations
	}
	return &IterationBound{max: max}
}

// Next increments the round counter and reports whether the bound still
// holds.
func (b *IterationBound) Next() bool {
	b.current++
	return b.current <= b.max
}

// Current returns the number of rounds started so far.
func (b *IterationBound) Current() int {
	return b.current
}

// Max returns the configured limit.
func (b *IterationBound) Max() int {
	return b.max
}
