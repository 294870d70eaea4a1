package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tileconverge/internal/config"
	"github.com/roach88/tileconverge/internal/fleet"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                     `json:"valid"`
	Errors    []config.ValidationError `json:"errors,omitempty"`
	Sources   int                      `json:"sources,omitempty"`
	Styles    int                      `json:"styles,omitempty"`
	Resources int                      `json:"resources,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Config string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration without converging",
		Long: `Load and validate a configuration, then resolve its resource plan.

Reports every problem at once: schema violations with their line, duplicate
names, colliding paths, zoom ranges, unusable URLs, and resources two styles
declare with different state. Nothing on the host is touched.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to configuration (.cue, .yaml) (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(formatter, opts.Config)
	if err != nil {
		return err
	}
	formatter.VerboseLog("Loaded %s: %d data source(s), %d style(s)", opts.Config, len(cfg.Data), len(cfg.Styles))

	plan, err := fleet.Build(cfg)
	if err != nil {
		return outputValidationErrors(formatter, config.ValidationErrors{{
			Field:   "plan",
			Message: err.Error(),
			Code:    config.ErrDuplicate,
		}})
	}

	result := ValidationResult{
		Valid:     true,
		Sources:   len(cfg.Data),
		Styles:    len(cfg.Styles),
		Resources: len(plan.Resources),
	}
	if formatter.isJSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Configuration valid (%d data sources, %d styles, %d resources)\n",
		result.Sources, result.Styles, result.Resources)
	return nil
}

// outputValidationErrors outputs every configuration problem.
func outputValidationErrors(formatter *OutputFormatter, errs config.ValidationErrors) error {
	if formatter.isJSON() {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:  false,
				Errors: errs,
			},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := formatter.encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
