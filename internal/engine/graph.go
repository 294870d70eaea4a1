package engine

import (
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/roach88/tileconverge/internal/resource"
)

// Graph is a validated, ordered resource set with its notification edges
// resolved to typed references.
//
// INVARIANTS:
//   - order NEVER changes after construction
//   - IDs within order are unique
//   - every edge's target is declared and its handler supports the action
type Graph struct {
	order []*resource.Resource
	index map[resource.ID]*resource.Resource
	edges map[resource.ID][]resource.Edge // by source, in resolution order
	table ActionTable
}

// NewGraph validates resources against table and resolves notifications and
// subscriptions into edges.
//
// Every problem is reported, not only the first: the returned error joins one
// GraphError per problem. Construction fails fast, so a dangling reference is
// caught before any resource runs.
//
// The resources slice is copied; later mutation of it does not affect the
// graph's order.
func NewGraph(resources []*resource.Resource, table ActionTable) (*Graph, error) {
	g := &Graph{
		order: make([]*resource.Resource, 0, len(resources)),
		index: make(map[resource.ID]*resource.Resource, len(resources)),
		edges: make(map[resource.ID][]resource.Edge),
		table: table,
	}

	var errs []error
	seen := mapset.NewThreadUnsafeSet[resource.ID]()

	for _, r := range resources {
		if r == nil {
			continue
		}
		if !seen.Add(r.ID) {
			errs = append(errs, &GraphError{
				Code:     ErrCodeDuplicateResource,
				Resource: r.ID,
				Message:  "declared more than once",
			})
			continue
		}
		if r.State == nil || r.State.Kind() != r.ID.Kind {
			errs = append(errs, &GraphError{
				Code:     ErrCodeKindMismatch,
				Resource: r.ID,
				Message:  fmt.Sprintf("descriptor %T does not describe a %s", r.State, r.ID.Kind),
			})
		}
		h, ok := table[r.ID.Kind]
		if !ok {
			errs = append(errs, &GraphError{
				Code:     ErrCodeMissingHandler,
				Resource: r.ID,
				Message:  fmt.Sprintf("no handler registered for kind %q", r.ID.Kind),
			})
		} else if !supports(h, r.Action) {
			errs = append(errs, &GraphError{
				Code:     ErrCodeUnsupportedAction,
				Resource: r.ID,
				Message:  fmt.Sprintf("action %q not supported", r.Action),
			})
		}
		g.order = append(g.order, r)
		g.index[r.ID] = r
	}

	for _, r := range g.order {
		for _, n := range r.Notifies {
			edge := resource.Edge{Source: r.ID, Target: n.Target, Action: n.Action, Timing: n.Timing}
			if err := g.checkEdge(edge, r.ID); err != nil {
				errs = append(errs, err)
				continue
			}
			g.edges[r.ID] = append(g.edges[r.ID], edge)
		}
	}
	for _, r := range g.order {
		for _, s := range r.Subscribes {
			edge := resource.Edge{Source: s.Source, Target: r.ID, Action: s.Action, Timing: s.Timing}
			if err := g.checkEdge(edge, r.ID); err != nil {
				errs = append(errs, err)
				continue
			}
			g.edges[s.Source] = append(g.edges[s.Source], edge)
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return g, nil
}

// checkEdge validates both ends of an edge. declaredOn is the resource the
// reference was written on, used for error attribution.
func (g *Graph) checkEdge(edge resource.Edge, declaredOn resource.ID) error {
	if _, ok := g.index[edge.Source]; !ok {
		return &GraphError{
			Code:     ErrCodeDanglingReference,
			Resource: declaredOn,
			Message:  fmt.Sprintf("subscribes to undeclared %s", edge.Source),
		}
	}
	if _, ok := g.index[edge.Target]; !ok {
		return &GraphError{
			Code:     ErrCodeDanglingReference,
			Resource: declaredOn,
			Message:  fmt.Sprintf("notifies undeclared %s", edge.Target),
		}
	}
	if edge.Action == resource.ActionNothing {
		return &GraphError{
			Code:     ErrCodeUnsupportedAction,
			Resource: declaredOn,
			Message:  fmt.Sprintf("notification to %s must name an action", edge.Target),
		}
	}
	if h, ok := g.table[edge.Target.Kind]; ok && !supports(h, edge.Action) {
		return &GraphError{
			Code:     ErrCodeUnsupportedAction,
			Resource: declaredOn,
			Message:  fmt.Sprintf("%s does not support notified action %q", edge.Target, edge.Action),
		}
	}
	return nil
}

// Resources returns the resources in declaration order.
func (g *Graph) Resources() []*resource.Resource {
	return g.order
}

// Lookup returns the resource declared with id.
func (g *Graph) Lookup(id resource.ID) (*resource.Resource, bool) {
	r, ok := g.index[id]
	return r, ok
}

// EdgesFrom returns the edges whose source is id.
func (g *Graph) EdgesFrom(id resource.ID) []resource.Edge {
	return g.edges[id]
}

// Edges returns every edge, grouped by source in declaration order.
func (g *Graph) Edges() []resource.Edge {
	var out []resource.Edge
	for _, r := range g.order {
		out = append(out, g.edges[r.ID]...)
	}
	return out
}

// Handler returns the handler registered for kind.
func (g *Graph) Handler(kind resource.Kind) Handler {
	return g.table[kind]
}

// Len returns the number of declared resources.
func (g *Graph) Len() int {
	return len(g.order)
}
