package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tileconverge/internal/digest"
)

// GoldenDir holds the golden traces of the package under test.
const GoldenDir = "testdata/golden"

// TraceSnapshot is everything a scenario run observed, in pass order.
type TraceSnapshot struct {
	ScenarioName string      `json:"scenario_name"`
	Passes       []PassTrace `json:"passes"`
}

// Snapshot returns the trace of a finished run.
func (r *Result) Snapshot(scenarioName string) *TraceSnapshot {
	return &TraceSnapshot{ScenarioName: scenarioName, Passes: r.Passes}
}

// Marshal encodes the snapshot as canonical JSON.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	return digest.Canonical(s)
}

// Digest identifies the snapshot's content.
func (s *TraceSnapshot) Digest() (string, error) {
	return digest.Of(digest.DomainTrace, s)
}

// RunWithGolden runs scenario and fails t when its trace differs from
// GoldenDir/<name>.golden. `go test -update` rewrites the file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden checks an existing result against its golden trace.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	trace, err := result.Snapshot(scenarioName).Marshal()
	if err != nil {
		return err
	}
	goldie.New(t, goldie.WithFixtureDir(GoldenDir), goldie.WithNameSuffix(".golden")).
		Assert(t, scenarioName, trace)
	return nil
}
