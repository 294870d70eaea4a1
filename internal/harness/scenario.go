package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tileconverge/internal/config"
)

// RootPlaceholder stands for the scenario's private root directory. Config
// paths may start with it; traces replace the root with it.
const RootPlaceholder = "$ROOT"

// Scenario defines a convergence scenario: a host configuration and a
// sequence of passes, each preceded by changes to the simulated world.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description says what the scenario demonstrates.
	Description string `yaml:"description"`

	// Config is the fleet configuration. srv_root defaults to
	// $ROOT/srv and the expire queue to $ROOT/queue; state_db is always
	// $ROOT/state.db.
	Config config.Config `yaml:"config"`

	// Passes run in order against the same host.
	Passes []PassStep `yaml:"passes"`

	// Assertions validate the traces and the recorded history.
	// Supported types: trace_contains, trace_order, trace_count, record,
	// final_state
	Assertions []Assertion `yaml:"assertions"`
}

// PassStep changes the world, then runs one pass.
type PassStep struct {
	// Serve sets the body returned for a URL and clears its failure.
	Serve map[string]string `yaml:"serve,omitempty"`

	// Fail makes every request for a URL fail with the given message.
	Fail map[string]string `yaml:"fail,omitempty"`

	// Drain empties the expire queue. It runs before Enqueue.
	Drain bool `yaml:"drain,omitempty"`

	// Enqueue drops files with these names into the expire queue.
	Enqueue []string `yaml:"enqueue,omitempty"`

	// ExtractError fails every extraction of this pass. Empty succeeds.
	ExtractError string `yaml:"extract_error,omitempty"`

	// IndexError fails every indexing run of this pass. Empty succeeds.
	IndexError string `yaml:"index_error,omitempty"`

	// Expect checks the pass outcome. If nil, the pass must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a pass.
type ExpectClause struct {
	// Error is a substring of the expected pass error. Empty means the
	// pass succeeds.
	Error string `yaml:"error,omitempty"`

	// Changed is the expected number of changed records.
	Changed *int `yaml:"changed,omitempty"`

	// Warnings is the expected number of contained failures.
	Warnings *int `yaml:"warnings,omitempty"`
}

// Assertion validates traces or recorded history.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Pass restricts the assertion to one pass, numbered from 1. Zero
	// means every pass. Required by record and final_state.
	Pass int `yaml:"pass,omitempty"`

	// Call is a capability call line, e.g. "restart renderd.service"
	// (trace_contains, trace_count).
	Call string `yaml:"call,omitempty"`

	// Calls is the expected call order (trace_order).
	Calls []string `yaml:"calls,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Resource is the resource ID in kind[name] form (record).
	Resource string `yaml:"resource,omitempty"`

	// Changed and Triggered are the expected record flags (record).
	Changed   *bool `yaml:"changed,omitempty"`
	Triggered *bool `yaml:"triggered,omitempty"`

	// Status and ChangedCount describe the recorded pass (final_state).
	Status       string `yaml:"status,omitempty"`
	ChangedCount *int   `yaml:"changed_count,omitempty"`
}

const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertRecord        = "record"
	AssertFinalState    = "final_state"
)

// LoadScenario reads a scenario file. See ParseScenario.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes scenario YAML. Unknown keys are rejected, so a
// misspelled field fails instead of silently doing nothing.
func ParseScenario(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	s := new(Scenario)
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return s, nil
}

func (s *Scenario) validate() error {
	switch {
	case s.Name == "":
		return errors.New("name is required")
	case s.Description == "":
		return errors.New("description is required")
	case len(s.Passes) == 0:
		return errors.New("passes list is required and must be non-empty")
	case len(s.Assertions) == 0:
		return errors.New("assertions list is required and must be non-empty")
	case s.Config.StateDB != "":
		return errors.New("config.state_db is managed by the harness")
	}

	for i, step := range s.Passes {
		for _, name := range step.Enqueue {
			if name == "" || strings.ContainsRune(name, '/') {
				return fmt.Errorf("passes[%d].enqueue: %q is not a plain file name", i, name)
			}
		}
	}
	for i := range s.Assertions {
		if msg := s.Assertions[i].problem(len(s.Passes)); msg != "" {
			return fmt.Errorf("assertions[%d]: %s", i, msg)
		}
	}
	return nil
}

// problem describes what is wrong with a, or returns "".
func (a *Assertion) problem(passes int) string {
	if a.Pass < 0 || a.Pass > passes {
		return fmt.Sprintf("pass %d out of range 1-%d", a.Pass, passes)
	}
	switch a.Type {
	case "":
		return "type is required"
	case AssertTraceContains, AssertTraceCount:
		if a.Call == "" {
			return "call is required for " + a.Type
		}
		if a.Count < 0 {
			return "count must be non-negative for " + a.Type
		}
	case AssertTraceOrder:
		if len(a.Calls) == 0 {
			return "calls list is required for trace_order"
		}
	case AssertRecord:
		if a.Pass == 0 {
			return "pass is required for record"
		}
		if a.Resource == "" {
			return "resource is required for record"
		}
		if a.Changed == nil && a.Triggered == nil {
			return "changed or triggered is required for record"
		}
	case AssertFinalState:
		if a.Pass == 0 {
			return "pass is required for final_state"
		}
		if a.Status == "" && a.ChangedCount == nil {
			return "status or changed_count is required for final_state"
		}
	default:
		return fmt.Sprintf("unknown assertion type %q", a.Type)
	}
	return ""
}
