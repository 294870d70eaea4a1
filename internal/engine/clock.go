package engine

import "github.com/roach88/tileconverge/internal/resource"

// Clock orders the change records of one pass.
//
// Seq numbers start at 1 and follow evaluation order, so a record produced
// by an immediate notification sits between the records of the declared
// resources it interrupted. A Clock belongs to a single pass and is not
// safe for concurrent use.
type Clock struct {
	seq   int64
	evals map[resource.ID]int
}

// NewClock creates a clock whose first stamp is 1.
func NewClock() *Clock {
	return &Clock{evals: make(map[resource.ID]int)}
}

// Stamp assigns rec the next seq and counts one evaluation of its resource.
func (c *Clock) Stamp(rec *resource.ChangeRecord) {
	c.seq++
	rec.Seq = c.seq
	c.evals[rec.Resource]++
}

// Last returns the most recent seq, 0 before the first stamp.
func (c *Clock) Last() int64 {
	return c.seq
}

// Evaluations returns how many records id has been stamped with.
func (c *Clock) Evaluations(id resource.ID) int {
	return c.evals[id]
}
