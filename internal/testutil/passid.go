package testutil

import (
	"fmt"
	"sync"
)

// SequentialPassIDs generates "<prefix>-0001", "<prefix>-0002", ...
//
// Unlike engine.FixedGenerator it never runs out, which suits tests that
// drive an unknown number of passes (interval mode, property tests).
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialPassIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialPassIDs creates a generator. An empty prefix uses "pass".
func NewSequentialPassIDs(prefix string) *SequentialPassIDs {
	if prefix == "" {
		prefix = "pass"
	}
	return &SequentialPassIDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequentialPassIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
