// Package normalize converts raw driver rows from group databases into the
// canonical LogRecord shape. The external schema is not under this engine's
// control, so the contract is coerce-or-null: a malformed field becomes its
// zero value or nil, and a single bad row never fails a page of results.
package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/grouplog-io/grouplog-engine/pkg/models"
)

// LogRecord maps one raw row (column name to driver value, as produced by
// pgx rows.Values with field descriptions) into a LogRecord.
func LogRecord(row map[string]any) *models.LogRecord {
	return &models.LogRecord{
		ID:               toInt64(row["id"]),
		InsightTitle:     toString(row["insight_title"]),
		InsightContent:   toString(row["insight_content"]),
		UserName:         toString(row["user_name"]),
		CreatedAt:        Timestamp(row["created_at"]),
		UpdatedAt:        Timestamp(row["updated_at"]),
		Source:           toString(row["source"]),
		LogType:          toString(row["log_type"]),
		ActivationStatus: toString(row["activation_status"]),
		Verified:         toBool(row["verified"]),
		ProblemCategory:  toStringPtr(row["problem_category"]),
		RootCause:        toStringPtr(row["root_cause"]),
		SolutionSteps:    StringList(row["solution_steps"]),
		ToolsRequired:    StringList(row["tools_required"]),
		Tags:             StringList(row["tags"]),
		EquipmentGroup:   StringList(row["equipment_group"]),
		Notes:            toStringPtr(row["notes"]),
		BusinessImpact:   toStringPtr(row["business_impact"]),
		ReusabilityScore: toFloat64Ptr(row["reusability_score"]),
	}
}

// EquipmentGroup maps one raw equipment_groups row into a summary. The
// model_numbers and aliases columns may be native text arrays or JSON text
// depending on the group's schema vintage; both coerce the same way.
func EquipmentGroup(row map[string]any) *models.EquipmentGroupSummary {
	return &models.EquipmentGroupSummary{
		ID:               toInt64(row["id"]),
		ConventionalName: toString(row["conventional_name"]),
		ModelNumbers:     StringList(row["model_numbers"]),
		Aliases:          StringList(row["aliases"]),
	}
}

// Timestamp renders a timestamp column to the canonical textual form.
// Native time values are formatted; strings pass through unchanged; nil
// renders as an empty string so consumers never special-case absence.
func Timestamp(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.Format(models.CanonicalTimeLayout)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format(models.CanonicalTimeLayout)
	case string:
		return t
	default:
		return fmt.Sprint(v)
	}
}

// StringList coerces a JSON-array column to a list of strings. Structured
// values pass through; strings are parsed as JSON; anything unparseable
// becomes nil rather than an error.
func StringList(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, elementToString(item))
		}
		return out
	case string:
		return parseJSONList(val)
	case []byte:
		return parseJSONList(string(val))
	default:
		return nil
	}
}

func parseJSONList(s string) []string {
	if s == "" {
		return nil
	}

	var strs []string
	if err := json.Unmarshal([]byte(s), &strs); err == nil {
		return strs
	}

	// Arrays written by other tools sometimes mix element types.
	var items []any
	if err := json.Unmarshal([]byte(s), &items); err == nil {
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, elementToString(item))
		}
		return out
	}

	return nil
}

func elementToString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(v)
	}
}

func toStringPtr(v any) *string {
	if v == nil {
		return nil
	}
	s := toString(v)
	return &s
}

func toBool(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toFloat64Ptr(v any) *float64 {
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		return &n
	case float32:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	default:
		return nil
	}
}
