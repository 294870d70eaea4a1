package engine

import (
	"sync"

	"github.com/google/uuid"
)

// PassIDGenerator names passes. Every pass ID is recorded in the history
// store and attached to each log line of the pass.
type PassIDGenerator interface {
	Generate() string
}

// UUIDv7Generator produces time-ordered UUIDv7 strings, so pass IDs sort
// by start time.
type UUIDv7Generator struct{}

// Generate panics only if the system random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator hands out a prepared list of IDs, then panics: a test that
// runs more passes than it named is wrong.
type FixedGenerator struct {
	mu   sync.Mutex
	next []string
}

// NewFixedGenerator returns a generator yielding ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{next: ids}
}

func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.next) == 0 {
		panic("engine: FixedGenerator exhausted")
	}
	id := g.next[0]
	g.next = g.next[1:]
	return id
}
