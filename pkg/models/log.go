package models

import (
	"fmt"
	"time"
)

// System-assigned values for logs created through the engine. Callers can
// never override these.
const (
	LogSource           = "log_modal"
	LogType             = "user_generated"
	LogInitialStatus    = "Inactive"
	LogDeletedStatus    = "deleted"
	CanonicalTimeLayout = "2006-01-02T15:04:05"
)

// LogRecord is the canonical API shape of one row in a group's log table.
// Timestamps are always strings in CanonicalTimeLayout; array fields are
// always lists or null, never raw JSON text.
type LogRecord struct {
	ID               int64    `json:"id"`
	InsightTitle     string   `json:"insight_title"`
	InsightContent   string   `json:"insight_content"`
	UserName         string   `json:"user_name"`
	CreatedAt        string   `json:"created_at"`
	UpdatedAt        string   `json:"updated_at"`
	Source           string   `json:"source"`
	LogType          string   `json:"log_type"`
	ActivationStatus string   `json:"activation_status"`
	Verified         bool     `json:"verified"`
	ProblemCategory  *string  `json:"problem_category"`
	RootCause        *string  `json:"root_cause"`
	SolutionSteps    []string `json:"solution_steps"`
	ToolsRequired    []string `json:"tools_required"`
	Tags             []string `json:"tags"`
	EquipmentGroup   []string `json:"equipment_group"`
	Notes            *string  `json:"notes"`
	BusinessImpact   *string  `json:"business_impact"`
	ReusabilityScore *float64 `json:"reusability_score"`
}

// LogEntry is the caller-supplied payload for creating a log. Only the two
// insight fields are required; array fields are cleaned of blank placeholders
// before insert.
type LogEntry struct {
	InsightTitle    string   `json:"insight_title"`
	InsightContent  string   `json:"insight_content"`
	ProblemCategory string   `json:"problem_category,omitempty"`
	RootCause       string   `json:"root_cause,omitempty"`
	SolutionSteps   []string `json:"solution_steps,omitempty"`
	ToolsRequired   []string `json:"tools_required,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	EquipmentGroup  []string `json:"equipment_group,omitempty"`
	Notes           string   `json:"notes,omitempty"`
}

// LogPage is one page of records plus the metadata the filtering UI needs.
type LogPage struct {
	Records    []*LogRecord `json:"logs"`
	Total      int          `json:"total"`
	HasMore    bool         `json:"has_more"`
	Categories []string     `json:"categories"`
}

// EquipmentGroupSummary backs the equipment dropdown.
type EquipmentGroupSummary struct {
	ID               int64    `json:"id"`
	ConventionalName string   `json:"conventional_name"`
	ModelNumbers     []string `json:"model_numbers"`
	Aliases          []string `json:"aliases"`
}

// SortKey is the closed set of columns permitted in an ORDER BY clause.
// Keeping this a distinct type (rather than a raw string) means arbitrary
// column names cannot reach SQL text construction.
type SortKey string

const (
	SortByCreatedAt       SortKey = "created_at"
	SortByUpdatedAt       SortKey = "updated_at"
	SortByInsightTitle    SortKey = "insight_title"
	SortByProblemCategory SortKey = "problem_category"
	SortByUserName        SortKey = "user_name"
)

// DefaultSortKey orders newest-first by default.
const DefaultSortKey = SortByCreatedAt

var sortKeys = map[SortKey]bool{
	SortByCreatedAt:       true,
	SortByUpdatedAt:       true,
	SortByInsightTitle:    true,
	SortByProblemCategory: true,
	SortByUserName:        true,
}

// Valid reports whether the sort key is in the whitelist.
func (k SortKey) Valid() bool {
	return sortKeys[k]
}

// ParseSortKey validates a caller-supplied sort field. Empty input selects
// the default; anything outside the whitelist is an error.
func ParseSortKey(s string) (SortKey, error) {
	if s == "" {
		return DefaultSortKey, nil
	}
	k := SortKey(s)
	if !k.Valid() {
		return "", fmt.Errorf("invalid sort field %q", s)
	}
	return k, nil
}

// Pagination bounds. The default matches the original UI page size.
const (
	DefaultLogLimit = 50
	MaxLogLimit     = 200
)

// LogFilters is the request-scoped, entirely optional filter bag for listing
// logs. Every present field independently narrows the result set.
type LogFilters struct {
	Category    string
	Verified    *bool
	Equipment   string
	UserFilter  string
	TitleSearch string
	DateAfter   *time.Time
	DateBefore  *time.Time
	SortBy      SortKey
	SortDesc    bool
	Limit       int
	Offset      int
}
