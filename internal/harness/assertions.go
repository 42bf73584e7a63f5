package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/nbstore/internal/storage"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			if event.Type == "invocation" {
				fmt.Fprintf(&buf, "  [%d] %s %v\n", i+1, event.Op, event.Args)
			} else {
				fmt.Fprintf(&buf, "  [%d]   -> %s %v\n", i+1, event.OutputCase, event.Result)
			}
		}
	}
	return buf.String()
}

// assertTraceContains checks that the trace has an invocation of the
// operation whose args contain the expected args.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	want, err := normalize(assertion.Args)
	if err != nil {
		return err
	}
	for _, event := range trace {
		if event.Type == "invocation" && event.Op == assertion.Action && matchArgs(event.Args, want) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("operation %s with args %v", assertion.Action, assertion.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that operations first appear in the given order.
// Other operations may appear in between.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != "invocation" {
			continue
		}
		if _, seen := positions[event.Op]; !seen {
			positions[event.Op] = i + 1 // 1-indexed for readability
		}
	}

	for _, op := range assertion.Actions {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all operations present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing operation: %s", op),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev, curr := assertion.Actions[i-1], assertion.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("operations in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the operation was invoked exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == "invocation" && event.Op == assertion.Action {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState runs the assertion's operation against the storage and
// checks its result contains the expected values.
func assertFinalState(ctx context.Context, st *storage.SpaceStorage, assertion Assertion) error {
	op, ok := operations[assertion.Action]
	if !ok {
		return fmt.Errorf("final_state: unknown operation %q", assertion.Action)
	}

	args, err := toArgs(assertion.Args)
	if err != nil {
		return fmt.Errorf("final_state %s: %w", assertion.Action, err)
	}
	out, err := op(ctx, st, args)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s succeeds", assertion.Action),
			Actual:   err.Error(),
		}
	}

	actual, err := normalize(out)
	if err != nil {
		return err
	}
	want, err := normalize(assertion.Expect)
	if err != nil {
		return err
	}
	if !matchArgs(actual, want) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s %v returns %v", assertion.Action, assertion.Args, want),
			Actual:   fmt.Sprintf("%v", actual),
		}
	}
	return nil
}

// toArgs converts YAML-decoded assertion args into Args.
func toArgs(m map[string]any) (Args, error) {
	var args Args
	if len(m) == 0 {
		return args, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return args, err
	}
	if err := json.Unmarshal(data, &args); err != nil {
		return args, err
	}
	return args, nil
}

// matchArgs checks if actual contains every key of expected with an equal
// value (subset match). Both sides must be normalized.
func matchArgs(actual, expected any) bool {
	want, _ := expected.(map[string]any)
	if len(want) == 0 {
		return true
	}

	got, ok := actual.(map[string]any)
	if !ok {
		return false
	}
	for key, expectedVal := range want {
		actualVal, exists := got[key]
		if !exists || !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares two normalized values. Nested objects compare
// exactly, not as subsets.
func valuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	return reflect.DeepEqual(actual, expected)
}

// AssertionContext provides the storage final_state assertions query.
type AssertionContext struct {
	Ctx     context.Context
	Storage *storage.SpaceStorage
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Storage == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires a storage context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Storage, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
