package engine

import (
	"context"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/roach88/tileconverge/internal/resource"
)

// Executor runs convergence passes over a Graph.
//
// Each call to Run is an independent pass: the executor keeps no state
// between passes. Everything a pass needs to know about the host is
// re-derived by probing, which is what makes repeated passes idempotent.
//
// INVARIANTS:
//   - declared resources are evaluated strictly in graph order
//   - a notify-only resource runs only when a fired edge reaches it
//   - no two evaluations run concurrently
type Executor struct {
	graph         *Graph
	logger        *slog.Logger
	maxIterations int
	passIDs       PassIDGenerator
}

// ExecutorOption allows configuration of executor parameters.
type ExecutorOption func(*Executor)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxIterations bounds notification propagation per pass.
//
// Default: 16 (DefaultMaxIterations).
// Use WithMaxIterations(2) for testing cycle detection.
func WithMaxIterations(n int) ExecutorOption {
	return func(e *Executor) {
		e.maxIterations = n
	}
}

// WithPassIDGenerator sets the pass ID source. Default: UUIDv7Generator.
func WithPassIDGenerator(g PassIDGenerator) ExecutorOption {
	return func(e *Executor) {
		if g != nil {
			e.passIDs = g
		}
	}
}

// NewExecutor creates an executor for g.
func NewExecutor(g *Graph, opts ...ExecutorOption) *Executor {
	e := &Executor{
		graph:         g,
		logger:        slog.Default(),
		maxIterations: DefaultMaxIterations,
		passIDs:       UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Graph returns the graph the executor runs.
func (e *Executor) Graph() *Graph {
	return e.graph
}

// Run executes one convergence pass.
//
// The returned report is never nil. On error it holds every record produced
// before the failure; the error identifies the failing resource through
// FailedResource.
//
// Cancellation is only observed before the pass starts. Once running, the
// pass continues to completion or failure: handlers receive a context that
// keeps ctx's values but not its cancellation.
func (e *Executor) Run(ctx context.Context) (*Report, error) {
	return e.RunWithID(ctx, e.passIDs.Generate())
}

// RunWithID executes one convergence pass under a caller-chosen ID, for
// callers that must record the pass before it starts.
func (e *Executor) RunWithID(ctx context.Context, passID string) (*Report, error) {
	p := &pass{
		exec:     e,
		ctx:      context.WithoutCancel(ctx),
		clock:    NewClock(),
		notified: mapset.NewThreadUnsafeSet[resource.ID](),
		report:   &Report{PassID: passID},
	}
	p.bus = NewBus(p.fire, e.maxIterations)
	p.log = e.logger.With("pass_id", p.report.PassID)

	if err := ctx.Err(); err != nil {
		return p.report, err
	}

	p.log.Info("pass started", "resources", e.graph.Len())

	err := p.run()
	p.finish()

	if err != nil {
		attrs := []any{"error", err, "records", len(p.report.Records)}
		if id, ok := FailedResource(err); ok {
			attrs = append(attrs, "resource", id.String())
		}
		p.log.Error("pass aborted", attrs...)
		return p.report, err
	}

	p.log.Info("pass finished",
		"changed", p.report.ChangedCount(),
		"warnings", len(p.report.Warnings),
		"rounds", p.report.Rounds,
	)
	return p.report, nil
}

// pass holds the state of one Run. It is discarded when Run returns.
type pass struct {
	exec     *Executor
	ctx      context.Context
	clock    *Clock
	bus      *Bus
	notified mapset.Set[resource.ID]
	report   *Report
	log      *slog.Logger
}

func (p *pass) run() error {
	for _, r := range p.exec.graph.Resources() {
		if r.OnlyWhenNotified() {
			continue
		}
		if err := p.evaluate(r, r.Action, nil); err != nil {
			return err
		}
	}
	return p.bus.FlushDelayed(p.ctx)
}

func (p *pass) finish() {
	p.report.Rounds = p.bus.Rounds()
	for _, r := range p.exec.graph.Resources() {
		if r.OnlyWhenNotified() && !p.notified.Contains(r.ID) {
			p.report.Skipped = append(p.report.Skipped, r.ID)
		}
	}
}

// fire is the bus callback: it evaluates the edge's target unconditionally.
func (p *pass) fire(ctx context.Context, edge resource.Edge) error {
	target, ok := p.exec.graph.Lookup(edge.Target)
	if !ok {
		// NewGraph rejects dangling edges, so this is unreachable for a
		// validated graph.
		return &GraphError{
			Code:     ErrCodeDanglingReference,
			Resource: edge.Source,
			Message:  "notifies undeclared " + edge.Target.String(),
		}
	}
	p.notified.Add(edge.Target)
	p.log.Debug("notification fired",
		"source", edge.Source.String(),
		"target", edge.Target.String(),
		"action", string(edge.Action),
		"timing", edge.Timing.String(),
	)
	return p.evaluate(target, edge.Action, &edge)
}

// evaluate converges one resource. trigger is nil for sequential evaluation
// and names the fired edge otherwise.
func (p *pass) evaluate(r *resource.Resource, action resource.Action, trigger *resource.Edge) error {
	h := p.exec.graph.Handler(r.ID.Kind)
	rec := resource.ChangeRecord{
		Resource: r.ID,
		Action:   action,
	}
	if trigger != nil {
		rec.Triggered = true
		rec.Source = trigger.Source
	}

	if trigger == nil {
		inSync, err := h.Probe(p.ctx, r, action)
		if err != nil {
			rec.Err = err
			p.record(rec)
			return &ConvergenceError{Resource: r.ID, Op: "probe " + string(action), Err: err}
		}
		if inSync {
			p.record(rec)
			return nil
		}
	}

	changed, err := h.Apply(p.ctx, r, action)
	if err != nil {
		rec.Err = err
		p.record(rec)
		actionErr := &ActionError{Resource: r.ID, Action: action, Err: err}
		if r.IgnoreFailure {
			p.report.Warnings = append(p.report.Warnings, actionErr)
			p.log.Warn("action failed, continuing",
				"resource", r.ID.String(),
				"action", string(action),
				"error", err,
			)
			return nil
		}
		return actionErr
	}

	rec.Changed = changed
	p.record(rec)
	if !changed {
		return nil
	}

	for _, edge := range p.exec.graph.EdgesFrom(r.ID) {
		p.bus.Enqueue(edge)
	}
	return p.bus.FlushImmediate(p.ctx, r.ID)
}

func (p *pass) record(rec resource.ChangeRecord) {
	p.clock.Stamp(&rec)
	p.report.Records = append(p.report.Records, rec)
	p.log.Debug("resource evaluated",
		"seq", rec.Seq,
		"evaluation", p.clock.Evaluations(rec.Resource),
		"resource", rec.Resource.String(),
		"action", string(rec.Action),
		"changed", rec.Changed,
		"triggered", rec.Triggered,
	)
}
