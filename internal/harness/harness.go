package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/tileconverge/internal/config"
	"github.com/roach88/tileconverge/internal/fleet"
	"github.com/roach88/tileconverge/internal/fsys"
	"github.com/roach88/tileconverge/internal/store"
	"github.com/roach88/tileconverge/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios against a private root directory with a deterministic
// clock, sequential pass IDs and fake network, archive, indexing and
// service capabilities. The filesystem and the state database are real.
type Harness struct {
	root      string
	cfg       *config.Config
	store     *store.Store
	log       *testutil.CallLog
	clock     *testutil.Clock
	fetcher   *testutil.Fetcher
	extractor *testutil.Extractor
	indexer   *testutil.Indexer
	services  *testutil.Controller
	converger *fleet.Converger
	logger    *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh temporary root, removed on return.
//
// Execution flow:
// 1. Resolve the configuration under the root and build the plan
// 2. For each pass, apply the world changes and converge
// 3. Check each pass against its expect clause
// 4. Evaluate assertions against the traces and the recorded history
//
// The error reports a scenario that cannot run at all; failed
// expectations are reported through the result.
func Run(scenario *Scenario) (*Result, error) {
	root, err := os.MkdirTemp("", "tileconverge-scenario-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario root: %w", err)
	}
	defer os.RemoveAll(root)

	h, err := newHarness(scenario, root)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Passes {
		if err := h.prepare(step); err != nil {
			return nil, fmt.Errorf("pass %d: failed to prepare world: %w", i+1, err)
		}
		trace, passErr := h.converge(ctx)
		result.AddPass(trace)
		for _, msg := range checkExpect(i+1, step.Expect, trace, passErr) {
			result.AddError(msg)
		}
		h.clock.Advance(time.Minute)
	}

	actx := &AssertionContext{
		Store: h.store,
		Ctx:   ctx,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(scenario *Scenario, root string) (*Harness, error) {
	cfg := resolveConfig(scenario.Config, root)
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %w", config.ValidationErrors(errs))
	}
	plan, err := fleet.Build(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build plan: %w", err)
	}

	st, err := store.Open(cfg.StateDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	log := &testutil.CallLog{}
	h := &Harness{
		root:      root,
		cfg:       cfg,
		store:     st,
		log:       log,
		clock:     testutil.NewClock(testutil.Epoch),
		fetcher:   testutil.NewFetcher(log),
		extractor: &testutil.Extractor{Log: log},
		indexer:   &testutil.Indexer{Log: log},
		services:  testutil.NewController(log),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	caps := fleet.Capabilities{
		FS:         fsys.OS{},
		Fetcher:    h.fetcher,
		Extractors: h.extractor.Registry(),
		Indexer:    h.indexer,
		Services:   h.services,
		Ledger:     st,
	}
	h.converger, err = fleet.NewConverger(plan, caps,
		fleet.WithRecorder(st),
		fleet.WithPassIDGenerator(testutil.NewSequentialPassIDs("pass")),
		fleet.WithClock(h.clock.Now),
		fleet.WithLogger(h.logger),
	)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to resolve plan: %w", err)
	}
	return h, nil
}

// resolveConfig places cfg under root: RootPlaceholder prefixes are
// replaced and the harness-managed paths are filled in.
func resolveConfig(cfg config.Config, root string) *config.Config {
	if cfg.SrvRoot == "" {
		cfg.SrvRoot = RootPlaceholder + "/srv"
	}
	if cfg.Invalidation.Queue == "" {
		cfg.Invalidation.Queue = RootPlaceholder + "/queue"
	}
	cfg.SrvRoot = underRoot(cfg.SrvRoot, root)
	cfg.Invalidation.Queue = underRoot(cfg.Invalidation.Queue, root)
	cfg.StateDB = filepath.Join(root, "state.db")

	styles := make([]config.Style, len(cfg.Styles))
	for i, s := range cfg.Styles {
		dirs := make([]config.TileDirectory, len(s.TileDirectories))
		for j, td := range s.TileDirectories {
			td.Name = underRoot(td.Name, root)
			dirs[j] = td
		}
		s.TileDirectories = dirs
		styles[i] = s
	}
	cfg.Styles = styles

	cfg.ApplyDefaults()
	return &cfg
}

func underRoot(path, root string) string {
	if rest, ok := strings.CutPrefix(path, RootPlaceholder); ok {
		return root + rest
	}
	return path
}

// prepare applies a step's world changes.
func (h *Harness) prepare(step PassStep) error {
	for url, body := range step.Serve {
		h.fetcher.Serve(url, []byte(body))
	}
	for url, msg := range step.Fail {
		h.fetcher.Fail(url, errors.New(msg))
	}

	queue := h.cfg.Invalidation.Queue
	if step.Drain {
		entries, err := os.ReadDir(queue)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(queue, e.Name())); err != nil {
				return err
			}
		}
	}
	if len(step.Enqueue) > 0 {
		if err := os.MkdirAll(queue, 0o775); err != nil {
			return err
		}
		for _, name := range step.Enqueue {
			if err := os.WriteFile(filepath.Join(queue, name), []byte("0/0/0\n"), 0o644); err != nil {
				return err
			}
		}
	}

	h.extractor.Err = errorOrNil(step.ExtractError)
	h.indexer.Err = errorOrNil(step.IndexError)
	return nil
}

func errorOrNil(msg string) error {
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}

// converge runs one pass and captures its trace.
func (h *Harness) converge(ctx context.Context) (PassTrace, error) {
	h.log.Reset()
	out, passErr := h.converger.Converge(ctx)

	trace := PassTrace{
		PassID:  out.Report.PassID,
		Records: []TraceEvent{},
		changed: out.Report.ChangedCount(),
	}
	for _, call := range h.log.Calls() {
		trace.Calls = append(trace.Calls, h.relative(call))
	}
	for _, rec := range out.Report.Records {
		ev := TraceEvent{
			Seq:       rec.Seq,
			Resource:  h.relative(rec.Resource.String()),
			Action:    string(rec.Action),
			Changed:   rec.Changed,
			Triggered: rec.Triggered,
		}
		if rec.Triggered {
			ev.Source = h.relative(rec.Source.String())
		}
		if rec.Err != nil {
			ev.Error = h.relative(rec.Err.Error())
		}
		trace.Records = append(trace.Records, ev)
	}
	for _, id := range out.Report.Skipped {
		trace.Skipped = append(trace.Skipped, h.relative(id.String()))
	}
	for _, w := range out.Report.Warnings {
		trace.Warnings = append(trace.Warnings, h.relative(w.Error()))
	}
	if passErr != nil {
		trace.Error = h.relative(passErr.Error())
	}
	return trace, passErr
}

// relative rewrites the scenario root to RootPlaceholder so traces do not
// depend on where the temporary root was created.
func (h *Harness) relative(s string) string {
	return strings.ReplaceAll(s, h.root, RootPlaceholder)
}

// checkExpect compares one pass against its expect clause. A nil clause
// expects success.
func checkExpect(pass int, expect *ExpectClause, trace PassTrace, passErr error) []string {
	var errs []string
	want := ""
	if expect != nil {
		want = expect.Error
	}

	switch {
	case want == "" && passErr != nil:
		errs = append(errs, fmt.Sprintf("pass %d: unexpected error: %s", pass, trace.Error))
	case want != "" && passErr == nil:
		errs = append(errs, fmt.Sprintf("pass %d: expected error containing %q, pass succeeded", pass, want))
	case want != "" && !strings.Contains(trace.Error, want):
		errs = append(errs, fmt.Sprintf("pass %d: expected error containing %q, got %q", pass, want, trace.Error))
	}

	if expect == nil {
		return errs
	}
	if expect.Changed != nil && *expect.Changed != trace.Changed() {
		errs = append(errs, fmt.Sprintf("pass %d: expected %d changed records, got %d", pass, *expect.Changed, trace.Changed()))
	}
	if expect.Warnings != nil && *expect.Warnings != len(trace.Warnings) {
		errs = append(errs, fmt.Sprintf("pass %d: expected %d warnings, got %d: %v", pass, *expect.Warnings, len(trace.Warnings), trace.Warnings))
	}
	return errs
}
