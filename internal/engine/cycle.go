package engine

import (
	"github.com/roach88/tileconverge/internal/resource"
)

// chain tracks the stack of resources currently firing immediate
// notifications.
//
// Immediate edges recurse: a fetched archive triggers its extraction, which
// triggers indexing, all before the executor moves on. A chain that keeps
// re-triggering (A → B → A → ...) would recurse forever; the chain depth is
// checked against the iteration bound and the stack is reported as the cycle
// path.
//
// Unlike the delayed queue, the chain is strictly nested, so a slice used as
// a stack is enough.
type chain struct {
	stack []resource.ID
}

// push records that id started firing its immediate edges.
func (c *chain) push(id resource.ID) {
	c.stack = append(c.stack, id)
}

// pop removes the innermost entry.
func (c *chain) pop() {
	if len(c.stack) == 0 {
		return
	}
	c.stack = c.stack[:len(c.stack)-1]
}

// depth returns the current nesting depth.
func (c *chain) depth() int {
	return len(c.stack)
}

// path returns a copy of the stack, outermost first.
func (c *chain) path() []resource.ID {
	out := make([]resource.ID, len(c.stack))
	copy(out, c.stack)
	return out
}
