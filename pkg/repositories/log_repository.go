package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/grouplog-io/grouplog-engine/pkg/apperrors"
	"github.com/grouplog-io/grouplog-engine/pkg/models"
	"github.com/grouplog-io/grouplog-engine/pkg/normalize"
	gsql "github.com/grouplog-io/grouplog-engine/pkg/sql"
)

// GroupQuerier is the slice of pgxpool.Pool the log repository needs. Pools
// come from the connection registry per request, so the querier is a call
// argument rather than a struct field.
type GroupQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// LogRepository runs log queries against a group's external database.
type LogRepository interface {
	// ListLogs returns one page of matching records plus the unpaginated
	// match count.
	ListLogs(ctx context.Context, q GroupQuerier, filters *models.LogFilters) ([]*models.LogRecord, int, error)

	// CreateLog inserts a log row and returns it in canonical form.
	CreateLog(ctx context.Context, q GroupQuerier, entry *models.LogEntry, userName string) (*models.LogRecord, error)

	// ListCategories returns the distinct non-empty problem categories.
	ListCategories(ctx context.Context, q GroupQuerier) ([]string, error)

	// ListEquipment returns active equipment groups, optionally filtered by
	// name or alias.
	ListEquipment(ctx context.Context, q GroupQuerier, search string) ([]*models.EquipmentGroupSummary, error)
}

type logRepository struct{}

// NewLogRepository creates a log repository.
func NewLogRepository() LogRepository {
	return &logRepository{}
}

func (r *logRepository) ListLogs(ctx context.Context, q GroupQuerier, filters *models.LogFilters) ([]*models.LogRecord, int, error) {
	query, args, err := gsql.BuildLogQuery(filters)
	if err != nil {
		return nil, 0, err
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", apperrors.ErrQueryFailed, err)
	}

	records, err := collectLogRecords(rows)
	if err != nil {
		return nil, 0, err
	}

	countQuery, countArgs, err := gsql.BuildLogCountQuery(filters)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := q.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", apperrors.ErrQueryFailed, err)
	}

	return records, total, nil
}

func (r *logRepository) CreateLog(ctx context.Context, q GroupQuerier, entry *models.LogEntry, userName string) (*models.LogRecord, error) {
	now := time.Now().UTC()

	rows, err := q.Query(ctx, gsql.BuildInsertLogQuery(),
		models.LogSource,
		false,
		models.LogType,
		models.LogInitialStatus,
		now,
		now,
		userName,
		entry.InsightTitle,
		entry.InsightContent,
		nullable(entry.ProblemCategory),
		nullable(entry.RootCause),
		jsonList(entry.SolutionSteps),
		jsonList(entry.ToolsRequired),
		jsonList(entry.Tags),
		jsonList(entry.EquipmentGroup),
		nullable(entry.Notes),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrQueryFailed, err)
	}

	records, err := collectLogRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: insert returned no row", apperrors.ErrQueryFailed)
	}
	return records[0], nil
}

func (r *logRepository) ListCategories(ctx context.Context, q GroupQuerier) ([]string, error) {
	rows, err := q.Query(ctx, gsql.BuildCategoriesQuery())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrQueryFailed, err)
	}
	defer rows.Close()

	categories := make([]string, 0)
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrQueryFailed, err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrQueryFailed, err)
	}

	return categories, nil
}

func (r *logRepository) ListEquipment(ctx context.Context, q GroupQuerier, search string) ([]*models.EquipmentGroupSummary, error) {
	query, args, err := gsql.BuildEquipmentQuery(search)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrQueryFailed, err)
	}
	defer rows.Close()

	groups := make([]*models.EquipmentGroupSummary, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrQueryFailed, err)
		}

		row := make(map[string]any, len(values))
		for i, fd := range rows.FieldDescriptions() {
			row[string(fd.Name)] = values[i]
		}

		groups = append(groups, normalize.EquipmentGroup(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrQueryFailed, err)
	}

	return groups, nil
}

// collectLogRecords drains rows into canonical records. Column access goes
// through a name-keyed map so group log tables with extra columns or unusual
// column order still normalize correctly.
func collectLogRecords(rows pgx.Rows) ([]*models.LogRecord, error) {
	defer rows.Close()

	records := make([]*models.LogRecord, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrQueryFailed, err)
		}

		row := make(map[string]any, len(values))
		for i, fd := range rows.FieldDescriptions() {
			row[string(fd.Name)] = values[i]
		}

		records = append(records, normalize.LogRecord(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrQueryFailed, err)
	}

	return records, nil
}

// nullable maps empty strings to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// jsonList serializes an array field the way the log tables store them: JSON
// text, or NULL when empty.
func jsonList(values []string) any {
	if len(values) == 0 {
		return nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return string(b)
}
