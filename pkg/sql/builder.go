// Package sql builds parameterized queries for a group's external log tables.
// Every caller-supplied value is bound as a positional parameter; the only
// interpolation of caller-influenced text is the sort column, which is
// validated against the models.SortKey whitelist first.
package sql

import (
	"fmt"
	"strings"
	"time"

	"github.com/grouplog-io/grouplog-engine/pkg/apperrors"
	"github.com/grouplog-io/grouplog-engine/pkg/models"
)

const logColumns = `id, insight_title, insight_content, user_name, created_at, updated_at,
	source, log_type, activation_status, verified, problem_category, root_cause,
	solution_steps, tools_required, tags, equipment_group, notes, business_impact, reusability_score`

// BuildLogQuery composes the filtered, sorted, paginated SELECT for the log
// table. An empty filter set produces a valid unrestricted query with the
// default sort and page size.
func BuildLogQuery(f *models.LogFilters) (string, []any, error) {
	predicates, args, err := buildPredicates(f)
	if err != nil {
		return "", nil, err
	}

	sortKey := f.SortBy
	if sortKey == "" {
		sortKey = models.DefaultSortKey
	}
	if !sortKey.Valid() {
		return "", nil, fmt.Errorf("%w: sort field %q is not allowed", apperrors.ErrQueryFailed, string(sortKey))
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + logColumns + " FROM logs WHERE activation_status != '" + models.LogDeletedStatus + "'")
	sb.WriteString(predicates)

	// Whitelist-validated above; the single permitted interpolation.
	sb.WriteString(" ORDER BY " + string(sortKey))
	if f.SortDesc {
		sb.WriteString(" DESC")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = models.DefaultLogLimit
	}
	if limit > models.MaxLogLimit {
		limit = models.MaxLogLimit
	}
	args = append(args, limit)
	sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))

	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, offset)
	sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))

	return sb.String(), args, nil
}

// BuildLogCountQuery composes the COUNT(*) companion of BuildLogQuery with
// identical predicates and no ordering or pagination.
func BuildLogCountQuery(f *models.LogFilters) (string, []any, error) {
	predicates, args, err := buildPredicates(f)
	if err != nil {
		return "", nil, err
	}

	query := "SELECT COUNT(*) FROM logs WHERE activation_status != '" + models.LogDeletedStatus + "'" + predicates
	return query, args, nil
}

// buildPredicates renders the optional filters as AND clauses. Each present
// filter contributes exactly one clause and one positional parameter.
func buildPredicates(f *models.LogFilters) (string, []any, error) {
	var sb strings.Builder
	var args []any

	for _, check := range []struct{ name, value string }{
		{"category", f.Category},
		{"equipment", f.Equipment},
		{"user_filter", f.UserFilter},
		{"title_search", f.TitleSearch},
	} {
		if result := CheckFilterForInjection(check.name, check.value); result != nil {
			return "", nil, fmt.Errorf("%w: filter %q rejected (fingerprint %s)",
				apperrors.ErrValidation, result.FilterName, result.Fingerprint)
		}
	}

	if f.Category != "" {
		args = append(args, f.Category)
		fmt.Fprintf(&sb, " AND problem_category = $%d", len(args))
	}

	if f.Verified != nil {
		args = append(args, *f.Verified)
		fmt.Fprintf(&sb, " AND verified = $%d", len(args))
	}

	if f.Equipment != "" {
		args = append(args, "%"+f.Equipment+"%")
		fmt.Fprintf(&sb, " AND LOWER(equipment_group::text) LIKE LOWER($%d)", len(args))
	}

	if f.UserFilter != "" {
		args = append(args, "%"+f.UserFilter+"%")
		fmt.Fprintf(&sb, " AND LOWER(user_name) LIKE LOWER($%d)", len(args))
	}

	if f.TitleSearch != "" {
		args = append(args, "%"+f.TitleSearch+"%")
		fmt.Fprintf(&sb, " AND LOWER(insight_title) LIKE LOWER($%d)", len(args))
	}

	// Date bounds compare the UTC date portion only and are bound as native
	// date values. Binding strings here breaks date filtering at the driver
	// boundary.
	if f.DateAfter != nil {
		args = append(args, toUTCDate(*f.DateAfter))
		fmt.Fprintf(&sb, " AND created_at::date >= $%d", len(args))
	}

	if f.DateBefore != nil {
		args = append(args, toUTCDate(*f.DateBefore))
		fmt.Fprintf(&sb, " AND created_at::date <= $%d", len(args))
	}

	return sb.String(), args, nil
}

func toUTCDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BuildCategoriesQuery returns the distinct-category query for the filtering UI.
func BuildCategoriesQuery() string {
	return `SELECT DISTINCT problem_category
		FROM logs
		WHERE problem_category IS NOT NULL
		AND activation_status != '` + models.LogDeletedStatus + `'
		ORDER BY problem_category`
}

// BuildEquipmentQuery returns the equipment dropdown query, optionally
// narrowed by a case-insensitive match on the conventional name or any alias.
func BuildEquipmentQuery(search string) (string, []any, error) {
	if result := CheckFilterForInjection("equipment_search", search); result != nil {
		return "", nil, fmt.Errorf("%w: filter %q rejected (fingerprint %s)",
			apperrors.ErrValidation, result.FilterName, result.Fingerprint)
	}

	query := `SELECT id, conventional_name, model_numbers, aliases
		FROM equipment_groups
		WHERE activation_status = 'active'`
	var args []any

	if search != "" {
		args = append(args, "%"+search+"%")
		query += ` AND (
			LOWER(conventional_name) LIKE LOWER($1) OR
			EXISTS (
				SELECT 1 FROM unnest(aliases) AS alias
				WHERE LOWER(alias) LIKE LOWER($1)
			)
		)`
	}

	query += " ORDER BY conventional_name"
	return query, args, nil
}

// BuildInsertLogQuery composes the single-row insert for log creation. The
// column list is fixed; values arrive in the same order.
func BuildInsertLogQuery() string {
	columns := []string{
		"source", "verified", "log_type", "activation_status",
		"created_at", "updated_at", "user_name",
		"insight_title", "insight_content", "problem_category", "root_cause",
		"solution_steps", "tools_required", "tags", "equipment_group", "notes",
	}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	return fmt.Sprintf("INSERT INTO logs (%s) VALUES (%s) RETURNING "+logColumns,
		strings.Join(columns, ", "), strings.Join(placeholders, ", "))
}
