package record

import (
	"fmt"
	"strings"
	"time"

	dErrors "recordgate/pkg/domain-errors"
)

// Operator is a filter comparison operator.
type Operator string

const (
	OpEq          Operator = "="
	OpNeq         Operator = "!="
	OpGt          Operator = ">"
	OpGte         Operator = ">="
	OpLt          Operator = "<"
	OpLte         Operator = "<="
	OpContains    Operator = "CONTAINS"
	OpNotContains Operator = "NOT_CONTAINS"
	OpStartsWith  Operator = "STARTSWITH"
	OpEndsWith    Operator = "ENDSWITH"
	OpIn          Operator = "IN"
	OpNotIn       Operator = "NOT_IN"
	OpIsEmpty     Operator = "ISEMPTY"
	OpIsNotEmpty  Operator = "ISNOTEMPTY"
)

var validOperators = map[Operator]bool{
	OpEq: true, OpNeq: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpContains: true, OpNotContains: true, OpStartsWith: true, OpEndsWith: true,
	OpIn: true, OpNotIn: true, OpIsEmpty: true, OpIsNotEmpty: true,
}

// IsValid checks the operator against the supported set.
func (o Operator) IsValid() bool {
	return validOperators[o]
}

// RequiresValue reports whether the operator needs a comparison value.
// Only the two emptiness operators are value-free.
func (o Operator) RequiresValue() bool {
	return o != OpIsEmpty && o != OpIsNotEmpty
}

// Filter is one field predicate. Value must be non-nil for every operator
// except ISEMPTY/ISNOTEMPTY.
type Filter struct {
	Field string   `json:"field"`
	Op    Operator `json:"op"`
	Value any      `json:"value,omitempty"`
}

// Validate checks operator membership and value presence. Field allow-listing
// is the query service's job, not the filter's.
func (f Filter) Validate() error {
	if f.Field == "" {
		return dErrors.New(dErrors.CodeValidation, "filter field is required")
	}
	if !f.Op.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown filter operator %q", string(f.Op))
	}
	if f.Op.RequiresValue() && f.Value == nil {
		return dErrors.Newf(dErrors.CodeValidation, "operator %q requires a value", string(f.Op))
	}
	if !f.Op.RequiresValue() && f.Value != nil {
		return dErrors.Newf(dErrors.CodeValidation, "operator %q does not take a value", string(f.Op))
	}
	return nil
}

// SortDirection orders a sort key.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// IsValid checks the direction against the supported set.
func (d SortDirection) IsValid() bool {
	return d == SortAsc || d == SortDesc
}

// SortSpec is one sort key.
type SortSpec struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// Validate checks field presence and direction membership.
func (s SortSpec) Validate() error {
	if s.Field == "" {
		return dErrors.New(dErrors.CodeValidation, "sort field is required")
	}
	if !s.Direction.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "sort direction must be 'asc' or 'desc'")
	}
	return nil
}

// Page is offset pagination. The query service clamps Size before the store
// ever sees it.
type Page struct {
	Size   int
	Offset int
}

// Query is a fully validated store-level query. Construction goes through the
// query service; the store trusts every field.
type Query struct {
	Table        string
	Filters      []Filter
	Search       string
	SearchFields []string
	Sort         []SortSpec
	Page         Page
}

// Matches evaluates the filter against a record. Missing fields compare as
// empty. Used by the in-memory store; the postgres store compiles filters to
// SQL instead.
func (f Filter) Matches(r Record) bool {
	v, _ := r.Field(f.Field)
	switch f.Op {
	case OpIsEmpty:
		return isEmptyValue(v)
	case OpIsNotEmpty:
		return !isEmptyValue(v)
	case OpEq:
		return compareValues(v, f.Value) == 0
	case OpNeq:
		return compareValues(v, f.Value) != 0
	case OpGt:
		return compareValues(v, f.Value) > 0
	case OpGte:
		return compareValues(v, f.Value) >= 0
	case OpLt:
		return compareValues(v, f.Value) < 0
	case OpLte:
		return compareValues(v, f.Value) <= 0
	case OpContains:
		return strings.Contains(stringify(v), stringify(f.Value))
	case OpNotContains:
		return !strings.Contains(stringify(v), stringify(f.Value))
	case OpStartsWith:
		return strings.HasPrefix(stringify(v), stringify(f.Value))
	case OpEndsWith:
		return strings.HasSuffix(stringify(v), stringify(f.Value))
	case OpIn:
		return valueInList(v, f.Value)
	case OpNotIn:
		return !valueInList(v, f.Value)
	}
	return false
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	}
	return false
}

// compareValues orders two loosely typed values. Numbers compare numerically,
// times chronologically, everything else by string form.
func compareValues(a, b any) int {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			}
			return 0
		}
	}
	return strings.Compare(stringify(a), stringify(b))
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

// Display renders a field value in its canonical display form. Shared by the
// query service's projection and the stores' text comparisons.
func Display(v any) string {
	return stringify(v)
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%v", v)
}

func valueInList(v, list any) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if compareValues(v, item) == 0 {
			return true
		}
	}
	return false
}
