package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/entity"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/migrate"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes expected and actual outcomes to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)

	return buf.String()
}

// AssertionContext provides the run outcome for evaluating assertions.
type AssertionContext struct {
	Ctx    context.Context
	Store  *store.Store
	Report *migrate.Report
}

// EvaluateAssertions evaluates all assertions against the run outcome.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertStats:
			err = assertStats(actx.Report, assertion)
		case AssertRowCount:
			err = assertRowCount(actx.Ctx, actx.Store, assertion)
		case AssertLinkCount:
			err = assertLinkCount(actx.Ctx, actx.Store, assertion)
		case AssertSkippedRecord:
			err = assertSkippedRecord(actx.Report, assertion)
		case AssertFinalState:
			err = assertFinalState(actx.Ctx, actx.Store, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertStats checks the per-kind read/imported/skipped counters on the
// report.
func assertStats(report *migrate.Report, assertion Assertion) error {
	for _, ks := range report.Kinds {
		if ks.Kind != entity.Kind(assertion.Kind) {
			continue
		}
		if ks.Read == int64(assertion.Read) &&
			ks.Imported == int64(assertion.Imported) &&
			ks.Skipped == int64(assertion.Skipped) {
			return nil
		}
		return &AssertionError{
			Type:     AssertStats,
			Expected: fmt.Sprintf("%s read=%d imported=%d skipped=%d", assertion.Kind, assertion.Read, assertion.Imported, assertion.Skipped),
			Actual:   fmt.Sprintf("%s read=%d imported=%d skipped=%d", ks.Kind, ks.Read, ks.Imported, ks.Skipped),
		}
	}
	return fmt.Errorf("stats assertion: kind %q not tracked by the report", assertion.Kind)
}

// assertRowCount checks the number of rows of one kind in the target
// database.
func assertRowCount(ctx context.Context, st *store.Store, assertion Assertion) error {
	n, err := st.Count(ctx, entity.Kind(assertion.Kind))
	if err != nil {
		return fmt.Errorf("row_count assertion: count %s: %w", assertion.Kind, err)
	}
	if n != int64(assertion.Count) {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s", assertion.Count, assertion.Kind),
			Actual:   fmt.Sprintf("%d rows", n),
		}
	}
	return nil
}

// assertLinkCount checks the number of textbook/passage-set junction rows.
// Count verification inside the pipeline covers entity kinds only, so this
// is the one place junction rows are reconciled.
func assertLinkCount(ctx context.Context, st *store.Store, assertion Assertion) error {
	n, err := st.LinkCount(ctx)
	if err != nil {
		return fmt.Errorf("link_count assertion: %w", err)
	}
	if n != int64(assertion.Count) {
		return &AssertionError{
			Type:     AssertLinkCount,
			Expected: fmt.Sprintf("%d junction rows", assertion.Count),
			Actual:   fmt.Sprintf("%d junction rows", n),
		}
	}
	return nil
}

// assertSkippedRecord checks that a specific record was skipped, optionally
// with the expected missing reference.
func assertSkippedRecord(report *migrate.Report, assertion Assertion) error {
	for _, skip := range report.Skips {
		if skip.Kind != entity.Kind(assertion.Kind) || skip.SourceID != assertion.ID {
			continue
		}
		if assertion.MissingRef != "" && skip.MissingRef != assertion.MissingRef {
			return &AssertionError{
				Type:     AssertSkippedRecord,
				Expected: fmt.Sprintf("%s %s skipped with missing ref %s", assertion.Kind, assertion.ID, assertion.MissingRef),
				Actual:   fmt.Sprintf("skipped with missing ref %s", skip.MissingRef),
			}
		}
		return nil
	}

	actual := "no records were skipped"
	if len(report.Skips) > 0 {
		var parts []string
		for _, skip := range report.Skips {
			parts = append(parts, fmt.Sprintf("%s %s (missing ref %s)", skip.Kind, skip.SourceID, skip.MissingRef))
		}
		actual = "skipped: " + strings.Join(parts, ", ")
	}
	return &AssertionError{
		Type:     AssertSkippedRecord,
		Expected: fmt.Sprintf("%s %s skipped", assertion.Kind, assertion.ID),
		Actual:   actual,
	}
}

// assertFinalState queries the target table and verifies expected values.
// Expected values use subset semantics - only the columns named in Expect
// are compared.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	// Validate table name to prevent SQL injection (identifiers can't be
	// parameterized).
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.Query(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	// Multiple matching rows would make the assertion ambiguous.
	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]interface{})
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	for key, expectedValue := range assertion.Expect {
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}

		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// buildWhereClause constructs a parameterized WHERE clause from assertion.Where.
// Returns SQL fragment, arguments slice, and error. Keys are sorted for
// determinism.
//
// Column names are validated against a whitelist pattern to prevent SQL
// injection via identifier interpolation; values are always parameterized.
func buildWhereClause(where map[string]interface{}) (string, []interface{}, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys))

	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, where[key])
	}

	return strings.Join(clauses, " AND "), args, nil
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]interface{}) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares expected and actual values from state tables.
// YAML decodes expected values as string/int/bool/float64 while SQLite may
// return int64 or []byte, so common coercions are handled here.
func stateValuesEqual(expected, actual interface{}) bool {
	if expected == nil && actual == nil {
		return true
	}
	if expected == nil || actual == nil {
		return false
	}

	switch exp := expected.(type) {
	case string:
		switch act := actual.(type) {
		case string:
			return exp == act
		case []byte:
			return exp == string(act)
		}
		return false
	case int:
		switch act := actual.(type) {
		case int64:
			return int64(exp) == act
		case int:
			return exp == act
		case float64:
			return float64(exp) == act
		}
		return false
	case bool:
		switch act := actual.(type) {
		case bool:
			return exp == act
		case int64:
			// SQLite stores booleans as 0/1.
			return exp == (act != 0)
		}
		return false
	case float64:
		switch act := actual.(type) {
		case float64:
			return exp == act
		case int64:
			return exp == float64(act)
		}
		return false
	}

	return reflect.DeepEqual(actual, expected)
}
