package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ColumnType is the target type of a projected view column.
type ColumnType string

const (
	// TypeText projects the field as text.
	TypeText ColumnType = "text"
	// TypeInteger projects the field as a 64-bit integer.
	TypeInteger ColumnType = "integer"
	// TypeReal projects the field as a double.
	TypeReal ColumnType = "real"
	// TypeBoolean projects the field as a boolean.
	TypeBoolean ColumnType = "boolean"
	// TypeDate projects the field as a calendar date (YYYY-MM-DD).
	TypeDate ColumnType = "date"
	// TypeTimestamp projects the field as a point in time (ISO 8601).
	TypeTimestamp ColumnType = "timestamp"
)

// CastRule selects how strictly a value must match the target type
// before it is cast. A value failing its rule projects to NULL; it
// never aborts the view.
type CastRule string

const (
	// CastStrict accepts only the type's exact textual shape.
	CastStrict CastRule = "strict"
	// CastLenient trims surrounding whitespace and accepts common
	// variants: yes/no/t/f for booleans, date prefixes of longer
	// timestamps for dates.
	CastLenient CastRule = "lenient"
)

// ViewSpec declares a typed, deduplicated read-time projection over a
// destination table. The view is recomputed on every query; it stores
// nothing.
type ViewSpec struct {
	// Name is the view's SQL name. Empty derives <table>_typed.
	Name string

	// NaturalKey lists the payload fields whose combination identifies
	// a logical entity across extracts. The view keeps exactly one row
	// per distinct key, the most recently ingested.
	NaturalKey []string

	// Columns are the declared (field, type, cast-rule) projections,
	// in output order.
	Columns []ViewColumn
}

// ViewColumn is one declared projection triple.
type ViewColumn struct {
	// Name is the projected SQL column name.
	Name string

	// Field is the payload field to extract. Absent fields project
	// NULL.
	Field string

	// Type is the target type.
	Type ColumnType

	// Cast selects the guard rule. Empty means strict.
	Cast CastRule
}

// EffectiveCast returns the column's cast rule or the strict default.
func (c ViewColumn) EffectiveCast() CastRule {
	if c.Cast == "" {
		return CastStrict
	}
	return c.Cast
}

// EffectiveColumns returns the full projected column list: natural key
// fields always project, as text, ahead of the declared columns, so
// the view carries its key even when the spec does not re-declare the
// key fields. A key field whose name a declared column already uses is
// left to that column.
func (s *ViewSpec) EffectiveColumns() []ViewColumn {
	declared := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		declared[c.Name] = true
	}

	out := make([]ViewColumn, 0, len(s.NaturalKey)+len(s.Columns))
	for _, f := range s.NaturalKey {
		if declared[f] {
			continue
		}
		out = append(out, ViewColumn{Name: f, Field: f, Type: TypeText})
	}
	return append(out, s.Columns...)
}

// Validate checks names, key fields and declared types.
func (s *ViewSpec) Validate() error {
	if s.Name != "" && !ValidIdentifier(s.Name) {
		return fmt.Errorf("%w: view name %q is not a valid identifier", ErrInvalidInput, s.Name)
	}
	if len(s.NaturalKey) == 0 {
		return fmt.Errorf("%w: natural key must list at least one field", ErrInvalidInput)
	}
	for _, f := range s.NaturalKey {
		if !ValidIdentifier(f) {
			return fmt.Errorf("%w: natural key field %q is not a valid identifier", ErrInvalidInput, f)
		}
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: view must declare at least one column", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, col := range s.Columns {
		if !ValidIdentifier(col.Name) {
			return fmt.Errorf("%w: column name %q is not a valid identifier", ErrInvalidInput, col.Name)
		}
		if seen[col.Name] {
			return fmt.Errorf("%w: duplicate column name %q", ErrInvalidInput, col.Name)
		}
		seen[col.Name] = true
		if !ValidIdentifier(col.Field) {
			return fmt.Errorf("%w: column %q extracts invalid payload field %q", ErrInvalidInput, col.Name, col.Field)
		}
		switch col.Type {
		case TypeText, TypeInteger, TypeReal, TypeBoolean, TypeDate, TypeTimestamp:
		default:
			return fmt.Errorf("%w: column %q has unknown type %q", ErrInvalidInput, col.Name, col.Type)
		}
		switch col.Cast {
		case CastStrict, CastLenient, "":
		default:
			return fmt.Errorf("%w: column %q has unknown cast rule %q", ErrInvalidInput, col.Name, col.Cast)
		}
	}
	return nil
}

// Textual shapes accepted by the numeric rules. These follow the JSON
// number grammar so that every dialect can enforce the same shape; the
// SQL generators mirror them exactly, and CastValue is the in-process
// reference used by preview.
var (
	strictIntRe  = regexp.MustCompile(`^-?(0|[1-9][0-9]*)$`)
	strictRealRe = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)
	strictDateRe = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}$`)
)

// CastValue applies a column's cast to a raw payload value. It returns
// the typed value and true, or nil and false when the value is absent
// or fails the rule. It never errors: cast failure is NULL, the
// schema-drift contract.
func CastValue(v any, typ ColumnType, rule CastRule) (any, bool) {
	if v == nil {
		return nil, false
	}
	if rule == "" {
		rule = CastStrict
	}

	s, ok := valueText(v)
	if !ok {
		return nil, false
	}
	if rule == CastLenient {
		s = strings.TrimSpace(s)
	}

	switch typ {
	case TypeText:
		return s, true
	case TypeInteger:
		if !strictIntRe.MatchString(s) {
			return nil, false
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, false
		}
		return n, true
	case TypeReal:
		if !strictRealRe.MatchString(s) {
			return nil, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		return f, true
	case TypeBoolean:
		switch rule {
		case CastLenient:
			switch strings.ToLower(s) {
			case "true", "t", "yes", "y", "1":
				return true, true
			case "false", "f", "no", "n", "0":
				return false, true
			}
			return nil, false
		default:
			switch s {
			case "true", "1":
				return true, true
			case "false", "0":
				return false, true
			}
			return nil, false
		}
	case TypeDate:
		if rule == CastLenient && len(s) >= 10 && strictDateRe.MatchString(s[:10]) {
			s = s[:10]
		}
		if !strictDateRe.MatchString(s) {
			return nil, false
		}
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, false
		}
		return t, true
	case TypeTimestamp:
		layouts := []string{
			time.RFC3339Nano,
			"2006-01-02T15:04:05.999999999",
			"2006-01-02 15:04:05.999999999",
		}
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		return nil, false
	}
	return nil, false
}

// valueText renders a payload value as the text the casts operate on.
// Nested structures have no typed projection and always fail.
func valueText(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case bool:
		if val {
			return "true", true
		}
		return "false", true
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	default:
		return "", false
	}
}
