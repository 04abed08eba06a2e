package harness

import (
	"fmt"
	"sort"
	"strings"
)

// rowFields are the ContactRow fields final_state may check.
var rowFields = map[string]bool{
	"email":          true,
	"phoneNumber":    true,
	"linkedId":       true,
	"linkPrecedence": true,
	"deleted":        true,
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions checks every assertion against the final contact table
// and returns one message per failure.
func EvaluateAssertions(rows []ContactRow, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(rows, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(rows []ContactRow, a Assertion) error {
	switch a.Type {
	case AssertFinalState:
		return assertFinalState(rows, a)
	case AssertContactCount:
		return assertCount(a, countRows(rows, func(r ContactRow) bool { return !r.Deleted }))
	case AssertPrimaryCount:
		return assertCount(a, countRows(rows, func(r ContactRow) bool {
			return !r.Deleted && r.LinkPrecedence == "primary"
		}))
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertCount(a Assertion, got int) error {
	if a.Count == nil || *a.Count != got {
		want := "<unset>"
		if a.Count != nil {
			want = fmt.Sprint(*a.Count)
		}
		return &AssertionError{Type: a.Type, Expected: want, Actual: fmt.Sprint(got)}
	}
	return nil
}

func countRows(rows []ContactRow, keep func(ContactRow) bool) int {
	n := 0
	for _, r := range rows {
		if keep(r) {
			n++
		}
	}
	return n
}

// assertFinalState finds the row with a.ID and compares the listed fields
// using subset semantics.
func assertFinalState(rows []ContactRow, a Assertion) error {
	var row *ContactRow
	for i := range rows {
		if rows[i].ID == a.ID {
			row = &rows[i]
			break
		}
	}
	if row == nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("contact %d", a.ID),
			Actual:   "row not found",
		}
	}

	actual := rowValues(*row)
	fields := make([]string, 0, len(a.Expect))
	for f := range a.Expect {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var mismatches []string
	for _, f := range fields {
		want, got := formatValue(a.Expect[f]), formatValue(actual[f])
		if want != got {
			mismatches = append(mismatches, fmt.Sprintf("%s=%s (want %s)", f, got, want))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("contact %d to match %v", a.ID, a.Expect),
			Actual:   strings.Join(mismatches, ", "),
		}
	}
	return nil
}

func rowValues(r ContactRow) map[string]any {
	v := map[string]any{
		"email":          nil,
		"phoneNumber":    nil,
		"linkedId":       nil,
		"linkPrecedence": r.LinkPrecedence,
		"deleted":        r.Deleted,
	}
	if r.Email != nil {
		v["email"] = *r.Email
	}
	if r.PhoneNumber != nil {
		v["phoneNumber"] = *r.PhoneNumber
	}
	if r.LinkedID != nil {
		v["linkedId"] = *r.LinkedID
	}
	return v
}

// formatValue renders YAML-decoded and stored values alike, so 1 and
// int64(1) or "123" and 123 compare equal.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprint(v)
}
