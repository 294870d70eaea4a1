package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/roach88/tileconverge/internal/config"
	"github.com/roach88/tileconverge/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	PassID   string
	Limit    int
}

// HistoryPass is one recorded pass as printed.
type HistoryPass struct {
	store.Pass
	Duration string         `json:"duration,omitempty"`
	Changes  []HistoryEntry `json:"changes,omitempty"`
}

// HistoryEntry is one change record as printed.
type HistoryEntry struct {
	Seq       int64  `json:"seq"`
	Resource  string `json:"resource"`
	Action    string `json:"action"`
	Changed   bool   `json:"changed"`
	Triggered bool   `json:"triggered,omitempty"`
	Source    string `json:"source,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded passes",
		Long: `List recorded passes, newest first, or show one pass with every
resource it evaluated.

Examples:
  tileconverge history --limit 10
  tileconverge history --pass 0199a6c4-7d2e-7f3a-9c1b-2f4e5d6a7b8c
  tileconverge history --db ./state.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", config.DefaultStateDB, "path to state database")
	cmd.Flags().StringVar(&opts.PassID, "pass", "", "show one pass with its change records")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of passes to list (0 for all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	// Opening would create an empty database; history only reads.
	if _, err := os.Stat(opts.Database); err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.PassID != "" {
		return showPass(ctx, formatter, st, opts.PassID)
	}
	return listPasses(ctx, formatter, st, opts.Limit)
}

func listPasses(ctx context.Context, formatter *OutputFormatter, st *store.Store, limit int) error {
	passes, err := st.ListPasses(ctx, limit)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list passes", err)
	}

	out := make([]HistoryPass, 0, len(passes))
	for _, p := range passes {
		out = append(out, HistoryPass{Pass: p, Duration: passDuration(p)})
	}
	if formatter.isJSON() {
		return formatter.Success(out)
	}

	if len(out) == 0 {
		fmt.Fprintln(formatter.Writer, "No passes recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tPASS\tSTARTED\tSTATUS\tCHANGED\tWARNINGS\tDURATION")
	for _, p := range out {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%s\n",
			p.Seq, p.ID, p.StartedAt.UTC().Format(time.RFC3339), p.Status, p.Changed, len(p.Warnings), p.Duration)
	}
	return tw.Flush()
}

func showPass(ctx context.Context, formatter *OutputFormatter, st *store.Store, id string) error {
	p, changes, err := st.ReadPass(ctx, id)
	if errors.Is(err, store.ErrPassNotFound) {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "pass not found", err)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read pass", err)
	}

	out := HistoryPass{Pass: p, Duration: passDuration(p)}
	for _, c := range changes {
		out.Changes = append(out.Changes, HistoryEntry{
			Seq:       c.Seq,
			Resource:  c.Resource.String(),
			Action:    string(c.Action),
			Changed:   c.Changed,
			Triggered: c.Triggered,
			Source:    c.Source,
			Error:     c.Error,
		})
	}
	if formatter.isJSON() {
		return formatter.Success(out)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "pass %s (#%d) %s\n", p.ID, p.Seq, p.Status)
	fmt.Fprintf(w, "  started %s", p.StartedAt.UTC().Format(time.RFC3339))
	if out.Duration != "" {
		fmt.Fprintf(w, ", took %s", out.Duration)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  config  %s\n", p.ConfigDigest)
	if p.Error != "" {
		fmt.Fprintf(w, "  error   %s\n", p.Error)
	}
	for _, warning := range p.Warnings {
		fmt.Fprintf(w, "  warning %s\n", warning)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tRESOURCE\tACTION\tCHANGED\tVIA")
	for _, c := range out.Changes {
		via := "declared"
		if c.Triggered {
			via = c.Source
		}
		changed := fmt.Sprintf("%t", c.Changed)
		if c.Error != "" {
			changed = "error: " + c.Error
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", c.Seq, c.Resource, c.Action, changed, via)
	}
	return tw.Flush()
}

// passDuration is empty while the pass is running.
func passDuration(p store.Pass) string {
	if p.FinishedAt == nil {
		return ""
	}
	return units.HumanDuration(p.FinishedAt.Sub(p.StartedAt))
}
