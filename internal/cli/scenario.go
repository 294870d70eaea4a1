package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tileconverge/internal/harness"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	Update bool
	Filter string
}

// ScenarioResult is the verdict on one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// ScenarioRunResult is the verdict on a directory of scenarios.
type ScenarioRunResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

func (r *ScenarioRunResult) add(res ScenarioResult) {
	r.Scenarios = append(r.Scenarios, res)
	r.Total++
	if res.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <dir>",
		Short: "Run convergence scenarios against simulated collaborators",
		Long: `Run every YAML scenario under a directory.

A scenario converges one configuration over several passes inside a private
temporary root, with fake upstream servers, extractors and systemd. Its
expectations and assertions are checked, then its trace is compared with
golden/<name>.golden beside the scenario file when that file exists.

Exit code 1 means at least one scenario failed; 2 means the directory or the
filter was unusable.

Examples:
  tileconverge scenario ./scenarios
  tileconverge scenario ./scenarios --filter "queue*"
  tileconverge scenario ./scenarios --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files from the current traces")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose file name matches this glob")

	return cmd
}

func runScenarios(opts *ScenarioOptions, dir string, cmd *cobra.Command) error {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, "scenarios directory not found: "+dir)
	}
	files, err := collectScenarios(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	run := ScenarioRunResult{Scenarios: []ScenarioResult{}}

	if len(files) == 0 && !formatter.isJSON() {
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}
	for _, file := range files {
		res := checkScenario(file, opts.Update)
		if !formatter.isJSON() {
			printScenarioResult(formatter, res)
		}
		run.add(res)
	}
	return reportScenarios(formatter, run)
}

// collectScenarios lists the .yaml and .yml files under dir whose base name
// matches filter. golden directories are not descended into.
func collectScenarios(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter %q: %w", filter, err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir() && path != dir && d.Name() == "golden":
			return filepath.SkipDir
		case d.IsDir():
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			if ok, _ := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext)); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// checkScenario runs one scenario file and compares its trace with the
// golden file, or rewrites the golden file when update is set.
func checkScenario(file string, update bool) ScenarioResult {
	failed := func(name, format string, args ...any) ScenarioResult {
		return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf(format, args...)}}
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return failed(filepath.Base(file), "failed to load scenario: %v", err)
	}
	result, err := harness.Run(scenario)
	if err != nil {
		return failed(scenario.Name, "execution failed: %v", err)
	}
	trace, err := result.Snapshot(scenario.Name).Marshal()
	if err != nil {
		return failed(scenario.Name, "failed to marshal trace: %v", err)
	}

	golden := goldenFilePath(file)
	if update {
		if err := os.MkdirAll(filepath.Dir(golden), 0o755); err != nil {
			return failed(scenario.Name, "failed to update golden file: %v", err)
		}
		if err := os.WriteFile(golden, trace, 0o644); err != nil {
			return failed(scenario.Name, "failed to update golden file: %v", err)
		}
	} else {
		want, err := os.ReadFile(golden)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			result.AddError(fmt.Sprintf("failed to read golden file: %v", err))
		case !bytes.Equal(want, trace):
			result.AddError("trace does not match golden file (run with --update to regenerate)")
		}
	}

	return ScenarioResult{Name: scenario.Name, Pass: result.Pass, Errors: result.Errors}
}

// goldenFilePath maps dir/name.yaml to dir/golden/name.golden.
func goldenFilePath(file string) string {
	base := filepath.Base(file)
	return filepath.Join(filepath.Dir(file), "golden", strings.TrimSuffix(base, filepath.Ext(base))+".golden")
}

func printScenarioResult(formatter *OutputFormatter, res ScenarioResult) {
	mark := "✓"
	if !res.Pass {
		mark = "✗"
	}
	fmt.Fprintf(formatter.Writer, "%s %s\n", mark, res.Name)
	for _, e := range res.Errors {
		fmt.Fprintf(formatter.Writer, "  %s\n", e)
	}
}

func reportScenarios(formatter *OutputFormatter, run ScenarioRunResult) error {
	var failure error
	if run.Failed > 0 {
		failure = NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", run.Failed))
	}

	if formatter.isJSON() {
		resp := CLIResponse{Status: "ok", Data: run}
		if failure != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeTestFailure, Message: failure.Error()}
		}
		if err := formatter.encode(resp); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintf(formatter.Writer, "\nScenario Summary: %d passed, %d failed, %d total\n", run.Passed, run.Failed, run.Total)
	if failure == nil {
		fmt.Fprintln(formatter.Writer, "✓ All scenarios passed")
	}
	return failure
}
