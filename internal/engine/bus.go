package engine

import (
	"context"

	"github.com/roach88/tileconverge/internal/resource"
)

// FireFunc invokes the target action of an edge. The executor supplies it;
// firing evaluates the target unconditionally and may enqueue further edges.
type FireFunc func(ctx context.Context, edge resource.Edge) error

// Bus records notification edges during a pass and fires them according to
// their timing.
//
// Immediate edges fire synchronously from FlushImmediate, right after their
// source finished and before the executor moves to the next declared
// resource. Delayed edges accumulate and fire from FlushDelayed once every
// declared resource ran.
//
// A Bus belongs to exactly one pass and is not safe for concurrent use.
type Bus struct {
	fire          FireFunc
	maxIterations int

	immediate map[resource.ID][]resource.Edge // by source
	delayed   []resource.Edge                 // enqueue order
	chain     chain
	rounds    int
}

// NewBus creates a bus that fires edges through fire. maxIterations bounds
// both the number of delayed rounds and the depth of immediate chains;
// non-positive values use DefaultMaxIterations.
func NewBus(fire FireFunc, maxIterations int) *Bus {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Bus{
		fire:          fire,
		maxIterations: maxIterations,
		immediate:     make(map[resource.ID][]resource.Edge),
	}
}

// Enqueue records an edge produced by the evaluation of its source.
func (b *Bus) Enqueue(edge resource.Edge) {
	if edge.Timing == resource.Immediate {
		b.immediate[edge.Source] = append(b.immediate[edge.Source], edge)
		return
	}
	b.delayed = append(b.delayed, edge)
}

// FlushImmediate fires every pending immediate edge of source, in the order
// they were enqueued. Targets that change fire their own immediate edges
// before FlushImmediate returns.
func (b *Bus) FlushImmediate(ctx context.Context, source resource.ID) error {
	edges := b.immediate[source]
	if len(edges) == 0 {
		return nil
	}
	delete(b.immediate, source)

	b.chain.push(source)
	defer b.chain.pop()
	if depth := b.chain.depth(); depth > b.maxIterations {
		return &NotificationCycleError{
			Limit:      b.maxIterations,
			Iterations: depth,
			Path:       b.chain.path(),
		}
	}

	for _, edge := range edges {
		if err := b.fire(ctx, edge); err != nil {
			return err
		}
	}
	return nil
}

// FlushDelayed fires the delayed queue until it is empty.
//
// Each round takes the queue as it stands, deduplicates it by target and
// action keeping the last enqueue, and fires the survivors in enqueue order.
// Edges enqueued while a round fires form the next round. Exceeding the
// iteration bound returns a NotificationCycleError carrying the edges that
// were still queued.
func (b *Bus) FlushDelayed(ctx context.Context) error {
	bound := NewIterationBound(b.maxIterations)
	for len(b.delayed) > 0 {
		if !bound.Next() {
			return &NotificationCycleError{
				Limit:      bound.Max(),
				Iterations: bound.Current() - 1,
				Pending:    b.Pending(),
			}
		}
		b.rounds = bound.Current()

		round := dedupeKeepLast(b.delayed)
		b.delayed = nil
		for _, edge := range round {
			if err := b.fire(ctx, edge); err != nil {
				return err
			}
		}
	}
	return nil
}

// Pending returns a copy of the delayed queue.
func (b *Bus) Pending() []resource.Edge {
	out := make([]resource.Edge, len(b.delayed))
	copy(out, b.delayed)
	return out
}

// Rounds returns how many delayed rounds the last FlushDelayed ran.
func (b *Bus) Rounds() int {
	return b.rounds
}

// dedupeKeepLast collapses edges sharing a Key to the last one enqueued. The
// survivors keep their relative enqueue order.
func dedupeKeepLast(edges []resource.Edge) []resource.Edge {
	last := make(map[string]int, len(edges))
	for i, e := range edges {
		last[e.Key()] = i
	}
	out := make([]resource.Edge, 0, len(last))
	for i, e := range edges {
		if last[e.Key()] == i {
			out = append(out, e)
		}
	}
	return out
}
