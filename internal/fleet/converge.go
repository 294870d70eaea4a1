package fleet

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/tileconverge/internal/engine"
	"github.com/roach88/tileconverge/internal/ingest"
	"github.com/roach88/tileconverge/internal/invalidate"
	"github.com/roach88/tileconverge/internal/metrics"
	"github.com/roach88/tileconverge/internal/resource"
)

// Recorder keeps the history of passes. *store.Store implements it.
type Recorder interface {
	BeginPass(ctx context.Context, id string, startedAt time.Time, configDigest string) (int64, error)
	FinishPass(ctx context.Context, id string, finishedAt time.Time, records []resource.ChangeRecord, warnings []error, passErr error) error
}

// Outcome is the result of one Converge call.
type Outcome struct {
	Report   *engine.Report
	Sources  []ingest.SourceStatus
	Started  time.Time
	Finished time.Time
}

// Converger runs passes over one plan.
type Converger struct {
	plan     *Plan
	exec     *engine.Executor
	digest   string
	recorder Recorder
	ledger   invalidate.Ledger
	metrics  *metrics.Metrics
	passIDs  engine.PassIDGenerator
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Converger.
type Option func(*Converger)

// WithRecorder records every pass. Default: no history.
func WithRecorder(r Recorder) Option {
	return func(c *Converger) { c.recorder = r }
}

// WithMetrics observes every pass. Default: no metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Converger) { c.metrics = m }
}

// WithPassIDGenerator sets the pass ID source. Default: engine.UUIDv7Generator.
func WithPassIDGenerator(g engine.PassIDGenerator) Option {
	return func(c *Converger) {
		if g != nil {
			c.passIDs = g
		}
	}
}

// WithClock sets the wall clock. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Converger) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger for the converger and its executor.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Converger) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewConverger resolves plan against caps. It fails when the plan does not
// form a valid graph.
func NewConverger(plan *Plan, caps Capabilities, opts ...Option) (*Converger, error) {
	c := &Converger{
		plan:    plan,
		ledger:  caps.Ledger,
		passIDs: engine.UUIDv7Generator{},
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	g, err := plan.Graph(caps)
	if err != nil {
		return nil, err
	}
	c.digest, err = plan.Config.Digest()
	if err != nil {
		return nil, err
	}
	c.exec = engine.NewExecutor(g,
		engine.WithLogger(c.logger),
		engine.WithMaxIterations(plan.Config.MaxNotificationIterations),
	)
	return c, nil
}

// ConfigDigest returns the digest recorded with every pass.
func (c *Converger) ConfigDigest() string {
	return c.digest
}

// Converge runs one pass. The outcome is never nil; the error is the
// pass's own error, never a history or metrics failure.
func (c *Converger) Converge(ctx context.Context) (*Outcome, error) {
	out := &Outcome{Started: c.now()}
	id := c.passIDs.Generate()
	log := c.logger.With("pass_id", id)

	recorded := false
	if c.recorder != nil {
		if err := ctx.Err(); err != nil {
			out.Report = &engine.Report{PassID: id}
			out.Finished = out.Started
			return out, err
		}
		if _, err := c.recorder.BeginPass(ctx, id, out.Started, c.digest); err != nil {
			log.Warn("recording pass start failed", "error", err)
		} else {
			recorded = true
		}
	}

	report, passErr := c.exec.RunWithID(ctx, id)
	out.Report = report
	out.Finished = c.now()
	out.Sources = c.plan.Pipeline.Status(report)

	if c.plan.Trigger != nil && c.ledger != nil {
		if err := c.plan.Trigger.Settle(context.WithoutCancel(ctx), report, c.ledger); err != nil {
			log.Warn("settling expire queue observation failed", "error", err)
		}
	}

	for _, st := range out.Sources {
		if st.Halted {
			log.Warn("data source halted",
				"source", st.Name,
				"stage", string(st.Stage),
				"error", st.Err,
			)
		}
	}

	if recorded {
		err := c.recorder.FinishPass(context.WithoutCancel(ctx), id, out.Finished, report.Records, report.Warnings, passErr)
		if err != nil {
			log.Warn("recording pass result failed", "error", err)
		}
	}
	if c.metrics != nil {
		c.metrics.Observe(report, out.Started, out.Finished, passErr)
	}
	return out, passErr
}
