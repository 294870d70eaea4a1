package engine

import (
	"context"
	"slices"

	"github.com/roach88/tileconverge/internal/resource"
)

// Handler converges resources of one kind.
//
// Probe compares desired and observed state and reports true when nothing
// needs to be done. A Probe error means the comparison itself could not be
// computed and aborts the pass.
//
// Apply performs action and reports whether the host changed. Apply runs
// without a preceding Probe when the action was notified.
type Handler interface {
	Actions() []resource.Action
	Probe(ctx context.Context, r *resource.Resource, action resource.Action) (bool, error)
	Apply(ctx context.Context, r *resource.Resource, action resource.Action) (bool, error)
}

// ActionTable maps every kind in a graph to the handler that converges it.
type ActionTable map[resource.Kind]Handler

// Merge returns a table holding the entries of t overlaid with other.
func (t ActionTable) Merge(other ActionTable) ActionTable {
	out := make(ActionTable, len(t)+len(other))
	for k, h := range t {
		out[k] = h
	}
	for k, h := range other {
		out[k] = h
	}
	return out
}

// supports reports whether h can run action. ActionNothing is accepted for
// every kind: it only means "wait to be notified".
func supports(h Handler, action resource.Action) bool {
	if action == resource.ActionNothing {
		return true
	}
	return slices.Contains(h.Actions(), action)
}
