package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tileconverge/internal/fleet"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Config string
}

// PlanOutput is the resolved resource graph of a configuration.
type PlanOutput struct {
	ConfigDigest string         `json:"config_digest"`
	Resources    []PlanResource `json:"resources"`
}

// PlanResource is one declared resource and the edges it fires.
type PlanResource struct {
	ID            string     `json:"id"`
	Action        string     `json:"action"`
	NotifyOnly    bool       `json:"notify_only,omitempty"`
	IgnoreFailure bool       `json:"ignore_failure,omitempty"`
	Edges         []PlanEdge `json:"edges,omitempty"`
}

// PlanEdge is one notification edge.
type PlanEdge struct {
	Target string `json:"target"`
	Action string `json:"action"`
	Timing string `json:"timing"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the resolved resource graph",
		Long: `Print every resource of a configuration in evaluation order with the
notifications it fires when it changes.

Subscriptions are shown on their source, the way the executor fires them.
Notify-only resources run only when an edge reaches them.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to configuration (.cue, .yaml) (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runPlan(opts *PlanOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(formatter, opts.Config)
	if err != nil {
		return err
	}
	plan, err := fleet.Build(cfg)
	if err != nil {
		_ = formatter.Error(ErrCodePlan, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to build plan", err)
	}
	// Graph validation needs the handlers' action sets, not live collaborators.
	g, err := plan.Graph(fleet.Capabilities{})
	if err != nil {
		_ = formatter.Error(ErrCodePlan, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to resolve plan", err)
	}
	digest, err := cfg.Digest()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to digest config", err)
	}

	out := PlanOutput{ConfigDigest: digest, Resources: []PlanResource{}}
	for _, r := range g.Resources() {
		pr := PlanResource{
			ID:            r.ID.String(),
			Action:        string(r.Action),
			NotifyOnly:    r.OnlyWhenNotified(),
			IgnoreFailure: r.IgnoreFailure,
		}
		for _, e := range g.EdgesFrom(r.ID) {
			pr.Edges = append(pr.Edges, PlanEdge{
				Target: e.Target.String(),
				Action: string(e.Action),
				Timing: e.Timing.String(),
			})
		}
		out.Resources = append(out.Resources, pr)
	}

	if formatter.isJSON() {
		return formatter.Success(out)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "config %s\n\n", out.ConfigDigest)
	for i, r := range out.Resources {
		line := fmt.Sprintf("%3d  %s %s", i+1, r.ID, r.Action)
		if r.NotifyOnly {
			line += " (notify only)"
		}
		if r.IgnoreFailure {
			line += " (ignore failure)"
		}
		fmt.Fprintln(w, line)
		for _, e := range r.Edges {
			fmt.Fprintf(w, "       -> %s %s (%s)\n", e.Target, e.Action, e.Timing)
		}
	}
	return nil
}
