package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/tileconverge/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string      // Assertion type for categorization
	Expected string      // Human-readable expected outcome
	Actual   string      // Human-readable actual outcome
	Passes   []PassTrace // Traces for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Passes) > 0 {
		fmt.Fprintf(&buf, "\nCalls:\n")
		for _, p := range e.Passes {
			fmt.Fprintf(&buf, "  %s\n", p.PassID)
			for i, call := range p.Calls {
				fmt.Fprintf(&buf, "    [%d] %s\n", i+1, call)
			}
		}
	}
	return buf.String()
}

// AssertionContext provides the recorded history for final_state
// assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result, a)
		case AssertTraceCount:
			err = assertTraceCount(result, a)
		case AssertRecord:
			err = assertRecord(result, a)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("final_state assertion requires a store")
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, result, a)
			}
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %s", i, err))
		}
	}
	return errs
}

// selectPasses returns the passes an assertion applies to.
func selectPasses(result *Result, pass int) []PassTrace {
	if pass == 0 {
		return result.Passes
	}
	if pass > len(result.Passes) {
		return nil
	}
	return result.Passes[pass-1 : pass]
}

func calls(passes []PassTrace) []string {
	var out []string
	for _, p := range passes {
		out = append(out, p.Calls...)
	}
	return out
}

// assertTraceContains checks that the call was made.
func assertTraceContains(result *Result, a Assertion) error {
	passes := selectPasses(result, a.Pass)
	for _, call := range calls(passes) {
		if call == a.Call {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("call %q%s", a.Call, passSuffix(a.Pass)),
		Actual:   "not found in trace",
		Passes:   passes,
	}
}

// assertTraceOrder checks that calls appear in the specified order.
// Calls don't need to be consecutive (intervening calls are allowed).
func assertTraceOrder(result *Result, a Assertion) error {
	passes := selectPasses(result, a.Pass)
	trace := calls(passes)

	// Each expected call must be found after the previous one.
	pos := 0
	for _, want := range a.Calls {
		found := false
		for pos < len(trace) {
			pos++
			if trace[pos-1] == want {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("calls in order: %v", a.Calls),
				Actual:   fmt.Sprintf("%q missing or out of order", want),
				Passes:   passes,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the call was made exactly Count times.
func assertTraceCount(result *Result, a Assertion) error {
	passes := selectPasses(result, a.Pass)
	count := 0
	for _, call := range calls(passes) {
		if call == a.Call {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %q%s", a.Count, a.Call, passSuffix(a.Pass)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Passes:   passes,
		}
	}
	return nil
}

// assertRecord checks the flags of the last record of a resource in one
// pass.
func assertRecord(result *Result, a Assertion) error {
	passes := selectPasses(result, a.Pass)
	if len(passes) == 0 {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("pass %d", a.Pass),
			Actual:   fmt.Sprintf("only %d passes ran", len(result.Passes)),
		}
	}

	var last *TraceEvent
	for i := range passes[0].Records {
		if passes[0].Records[i].Resource == a.Resource {
			last = &passes[0].Records[i]
		}
	}
	if last == nil {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("a record of %s%s", a.Resource, passSuffix(a.Pass)),
			Actual:   "not evaluated",
			Passes:   passes,
		}
	}
	if a.Changed != nil && last.Changed != *a.Changed {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("%s changed=%t%s", a.Resource, *a.Changed, passSuffix(a.Pass)),
			Actual:   fmt.Sprintf("changed=%t", last.Changed),
			Passes:   passes,
		}
	}
	if a.Triggered != nil && last.Triggered != *a.Triggered {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("%s triggered=%t%s", a.Resource, *a.Triggered, passSuffix(a.Pass)),
			Actual:   fmt.Sprintf("triggered=%t", last.Triggered),
			Passes:   passes,
		}
	}
	return nil
}

// assertFinalState checks the pass as recorded in the history, which is
// what the history command reads back.
func assertFinalState(ctx context.Context, st *store.Store, result *Result, a Assertion) error {
	passes := selectPasses(result, a.Pass)
	if len(passes) == 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("pass %d", a.Pass),
			Actual:   fmt.Sprintf("only %d passes ran", len(result.Passes)),
		}
	}

	recorded, _, err := st.ReadPass(ctx, passes[0].PassID)
	if errors.Is(err, store.ErrPassNotFound) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("pass %s in history", passes[0].PassID),
			Actual:   "not recorded",
		}
	}
	if err != nil {
		return fmt.Errorf("read pass %s: %w", passes[0].PassID, err)
	}

	if a.Status != "" && string(recorded.Status) != a.Status {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("pass %s status %q", recorded.ID, a.Status),
			Actual:   fmt.Sprintf("status %q (error %q)", recorded.Status, recorded.Error),
		}
	}
	if a.ChangedCount != nil && recorded.Changed != *a.ChangedCount {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("pass %s with %d changed records", recorded.ID, *a.ChangedCount),
			Actual:   fmt.Sprintf("%d changed records", recorded.Changed),
		}
	}
	return nil
}

func passSuffix(pass int) string {
	if pass == 0 {
		return ""
	}
	return fmt.Sprintf(" in pass %d", pass)
}
