package harness

import (
	"fmt"
	"reflect"
	"strings"
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
			switch event.Type {
			case EntryInvocation:
				fmt.Fprintf(&buf, "  [%d] %s %v\n", i+1, event.ActionURI, event.Args)
			case EntryEvent:
				fmt.Fprintf(&buf, "  [%d]   ~ %s %s\n", i+1, event.Topic, event.Source)
			case EntryCompletion:
				fmt.Fprintf(&buf, "  [%d]   -> %s\n", i+1, event.OutputCase)
			}
		}
	}
	return buf.String()
}

// assertTraceContains checks if the trace contains an invocation matching
// the specified action and args (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	expected := normalizeMap(assertion.Args)
	for _, event := range trace {
		if event.Type == EntryInvocation && event.ActionURI == assertion.Action && matchArgs(event.Args, expected) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %v", assertion.Action, assertion.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive (intervening actions are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// First position of each expected action, 1-indexed for readability.
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != EntryInvocation {
			continue
		}
		for _, expectedAction := range assertion.Actions {
			if event.ActionURI == expectedAction && positions[expectedAction] == 0 {
				positions[expectedAction] = i + 1
			}
		}
	}

	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev := assertion.Actions[i-1]
		curr := assertion.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks if the action was invoked exactly the specified
// number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EntryInvocation && event.ActionURI == assertion.Action {
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

// assertEventCount checks if the topic was published exactly the specified
// number of times.
func assertEventCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EntryEvent && event.Topic == assertion.Topic {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d %s notifications", assertion.Count, assertion.Topic),
			Actual:   fmt.Sprintf("%d notifications", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks that a row selected by Where exists in the table
// and contains the expected values (subset match).
func assertFinalState(state map[string][]map[string]any, assertion Assertion) error {
	rows, ok := state[assertion.Table]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("table %s", assertion.Table),
			Actual:   "table was not captured",
		}
	}

	where := normalizeMap(assertion.Where)
	expect := normalizeMap(assertion.Expect)

	var selected []map[string]any
	for _, row := range rows {
		if matchArgs(row, where) {
			selected = append(selected, row)
		}
	}
	if len(selected) == 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatFields(where)),
			Actual:   fmt.Sprintf("no matching row among %d", len(rows)),
		}
	}

	for _, row := range selected {
		if matchArgs(row, expect) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: fmt.Sprintf("%s where %s to have %s", assertion.Table, formatFields(where), formatFields(expect)),
		Actual:   fmt.Sprintf("%v", selected),
	}
}

// formatFields renders a field map in key order.
func formatFields(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	return fmt.Sprintf("%v", m)
}

// matchArgs checks if actual contains all expected keys with equal values
// (subset match). Extra keys in actual are ignored.
func matchArgs(actual, expected map[string]any) bool {
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false
		}
		if !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares two JSON-normalized values.
func valuesEqual(actual, expected any) bool {
	return reflect.DeepEqual(actual, expected)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
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
		case AssertEventCount:
			err = assertEventCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result.State, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
