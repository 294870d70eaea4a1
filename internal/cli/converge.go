package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tileconverge/internal/config"
	"github.com/roach88/tileconverge/internal/engine"
	"github.com/roach88/tileconverge/internal/fleet"
	"github.com/roach88/tileconverge/internal/metrics"
	"github.com/roach88/tileconverge/internal/store"
)

// ConvergeOptions holds flags for the converge command.
type ConvergeOptions struct {
	*RootOptions
	Config      string
	Database    string
	Interval    time.Duration
	MetricsFile string

	// Capabilities overrides the host capabilities (for testing).
	// If nil, defaults to HostCapabilities.
	Capabilities CapabilityFactory

	// PassIDs overrides the pass ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	PassIDs engine.PassIDGenerator
}

// PassSummary is the printed outcome of one pass.
type PassSummary struct {
	PassID     string          `json:"pass_id"`
	Status     string          `json:"status"`
	Changed    []string        `json:"changed"`
	Warnings   []string        `json:"warnings,omitempty"`
	Sources    []SourceSummary `json:"sources,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMS int64           `json:"duration_ms"`
}

// SourceSummary is where one data source stood after a pass.
type SourceSummary struct {
	Name    string `json:"name"`
	Stage   string `json:"stage"`
	Fetched bool   `json:"fetched"`
	Halted  bool   `json:"halted"`
}

// NewConvergeCommand creates the converge command.
func NewConvergeCommand(rootOpts *RootOptions) *cobra.Command {
	return newConvergeCommand(&ConvergeOptions{RootOptions: rootOpts})
}

// newConvergeCommand binds the command's flags to opts, keeping any
// overrides already set on it.
func newConvergeCommand(opts *ConvergeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "converge",
		Short: "Run convergence passes",
		Long: `Converge the host to the configured state.

Without --interval a single pass runs and the exit code reports its outcome.
With --interval passes repeat on a ticker until SIGINT or SIGTERM; a failed
pass is logged and the next tick retries. A signal never interrupts a
running pass.

Every pass is recorded in the state database. With --metrics-file the pass
metrics are written in node-exporter textfile format after each pass.

Example:
  tileconverge converge --config /etc/tileconverge/fleet.cue
  tileconverge converge --config fleet.yaml --interval 15m --metrics-file /var/lib/node-exporter/tileconverge.prom`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConverge(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to configuration (.cue, .yaml) (required)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to state database (default: state_db from config)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "repeat passes at this interval")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write metrics to this textfile after each pass")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runConverge(opts *ConvergeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := loadConfig(formatter, opts.Config)
	if err != nil {
		return err
	}
	if opts.Interval < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid interval %s", opts.Interval))
	}

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.StateDB
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return WrapExitError(ExitCommandError, "failed to create state directory", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	plan, err := fleet.Build(cfg)
	if err != nil {
		_ = formatter.Error(ErrCodePlan, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to build plan", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory := opts.Capabilities
	if factory == nil {
		factory = HostCapabilities
	}
	caps, release, err := factory(ctx, cfg, st, logger)
	if err != nil {
		_ = formatter.Error(ErrCodeCapability, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to initialise capabilities", err)
	}
	if release != nil {
		defer release()
	}

	m := metrics.New()
	conv, err := fleet.NewConverger(plan, caps,
		fleet.WithRecorder(st),
		fleet.WithMetrics(m),
		fleet.WithLogger(logger),
		fleet.WithPassIDGenerator(opts.PassIDs),
	)
	if err != nil {
		_ = formatter.Error(ErrCodePlan, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to resolve plan", err)
	}

	logger.Info("converger ready",
		"config", opts.Config,
		"db", dbPath,
		"resources", len(plan.Resources),
		"config_digest", conv.ConfigDigest(),
	)

	if opts.Interval == 0 {
		return convergeOnce(ctx, opts, conv, m, formatter, logger)
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	for {
		if err := convergeOnce(ctx, opts, conv, m, formatter, logger); err != nil && ctx.Err() == nil {
			logger.Warn("pass failed, retrying at next tick", "interval", opts.Interval.String())
		}
		select {
		case <-ctx.Done():
			logger.Info("converger stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// convergeOnce runs one pass, writes metrics and prints the summary.
func convergeOnce(ctx context.Context, opts *ConvergeOptions, conv *fleet.Converger, m *metrics.Metrics, formatter *OutputFormatter, logger *slog.Logger) error {
	out, passErr := conv.Converge(ctx)

	if opts.MetricsFile != "" {
		if err := m.WriteTextfile(opts.MetricsFile); err != nil {
			logger.Warn("writing metrics failed", "path", opts.MetricsFile, "error", err)
		}
	}

	if passErr != nil && errors.Is(passErr, context.Canceled) && len(out.Report.Records) == 0 {
		return WrapExitError(ExitCommandError, "cancelled before the pass started", passErr)
	}

	if err := outputPass(formatter, summarize(out, passErr)); err != nil {
		return err
	}
	if passErr != nil {
		return WrapExitError(ExitFailure, "pass failed", passErr)
	}
	return nil
}

func summarize(out *fleet.Outcome, passErr error) PassSummary {
	s := PassSummary{
		PassID:     out.Report.PassID,
		Status:     string(store.PassOK),
		Changed:    []string{},
		DurationMS: out.Finished.Sub(out.Started).Milliseconds(),
	}
	for _, rec := range out.Report.Changed() {
		s.Changed = append(s.Changed, rec.Resource.String())
	}
	for _, w := range out.Report.Warnings {
		s.Warnings = append(s.Warnings, w.Error())
	}
	for _, src := range out.Sources {
		s.Sources = append(s.Sources, SourceSummary{
			Name:    src.Name,
			Stage:   string(src.Stage),
			Fetched: src.Fetched,
			Halted:  src.Halted,
		})
	}
	if passErr != nil {
		s.Status = string(store.PassFailed)
		s.Error = passErr.Error()
	}
	return s
}

func outputPass(formatter *OutputFormatter, s PassSummary) error {
	if formatter.isJSON() {
		resp := CLIResponse{Status: "ok", Data: s, PassID: s.PassID}
		if s.Error != "" {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodePassFailed, Message: s.Error}
		}
		return formatter.encode(resp)
	}

	w := formatter.Writer
	if s.Error != "" {
		fmt.Fprintf(w, "✗ pass %s failed: %s\n", s.PassID, s.Error)
	} else {
		fmt.Fprintf(w, "✓ pass %s: %d changed, %d warnings (%dms)\n", s.PassID, len(s.Changed), len(s.Warnings), s.DurationMS)
	}
	for _, id := range s.Changed {
		fmt.Fprintf(w, "  changed %s\n", id)
	}
	for _, warning := range s.Warnings {
		fmt.Fprintf(w, "  warning %s\n", warning)
	}
	if formatter.Verbose {
		for _, src := range s.Sources {
			fmt.Fprintf(w, "  source %s: %s\n", src.Name, src.Stage)
		}
	}
	return nil
}

// loadConfig loads a configuration and prints its problems. Validation
// problems exit 1; an unreadable file exits 2.
func loadConfig(formatter *OutputFormatter, path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}

	var problems config.ValidationErrors
	if errors.As(err, &problems) {
		return nil, outputValidationErrors(formatter, problems)
	}
	if errors.Is(err, os.ErrNotExist) {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "config not found", err)
	}
	_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
	return nil, WrapExitError(ExitCommandError, "failed to load config", err)
}
