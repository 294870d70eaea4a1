package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

// Output formats accepted by --format.
const (
	FormatText = "text"
	FormatJSON = "json"
)

var outputFormats = []string{FormatText, FormatJSON}

// RootOptions are the flags every subcommand sees.
type RootOptions struct {
	Verbose bool
	Format  string
}

// NewRootCommand assembles the tileconverge command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Format: FormatText}

	root := &cobra.Command{
		Use:   "tileconverge",
		Short: "Converge a map tile server to its declared state",
		Long: `Converge a map tile server to its declared state.

Each pass downloads and unpacks the configured data archives, lays out the
per-zoom tile directories of every style, and starts the expire queue
consumer when tiles are waiting to be invalidated.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if slices.Contains(outputFormats, opts.Format) {
				return nil
			}
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: want %s",
				opts.Format, strings.Join(outputFormats, " or ")))
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "log debug records and print details")
	flags.StringVar(&opts.Format, "format", opts.Format, "output format: "+strings.Join(outputFormats, "|"))

	root.AddCommand(
		NewConvergeCommand(opts),
		NewValidateCommand(opts),
		NewPlanCommand(opts),
		NewHistoryCommand(opts),
		NewScenarioCommand(opts),
	)
	return root
}

// newLogger writes text records to w, at debug level with --verbose.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
