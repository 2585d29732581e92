package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/grouplog-io/grouplog-engine/pkg/apperrors"
	"github.com/grouplog-io/grouplog-engine/pkg/models"
	"github.com/grouplog-io/grouplog-engine/pkg/repositories"
)

// Caller identifies the authenticated user making a request. Admins bypass
// the membership check; everyone else must belong to the group they query.
type Caller struct {
	UserID string
	Name   string
	Admin  bool
}

// GroupPoolProvider yields the live connection handle for a group, or nil
// when the group has no enabled configuration.
type GroupPoolProvider interface {
	Get(ctx context.Context, cfg *models.GroupDatabaseConfig) (repositories.GroupQuerier, error)
}

// LogService orchestrates log operations: authorization, connection lookup,
// query execution and normalization.
type LogService struct {
	configs      repositories.GroupConfigRepository
	memberships  repositories.MembershipRepository
	logs         repositories.LogRepository
	pools        GroupPoolProvider
	queryTimeout timeoutFunc
	logger       *zap.Logger
}

type timeoutFunc func(ctx context.Context) (context.Context, context.CancelFunc)

// NewLogService creates a LogService. queryTimeout bounds each query against
// a group database.
func NewLogService(
	configs repositories.GroupConfigRepository,
	memberships repositories.MembershipRepository,
	logs repositories.LogRepository,
	pools GroupPoolProvider,
	queryTimeout func(ctx context.Context) (context.Context, context.CancelFunc),
	logger *zap.Logger,
) *LogService {
	return &LogService{
		configs:      configs,
		memberships:  memberships,
		logs:         logs,
		pools:        pools,
		queryTimeout: queryTimeout,
		logger:       logger,
	}
}

// ListLogs returns one page of a group's logs. A group whose database is
// unconfigured or disabled yields an empty page, not an error: the UI treats
// "nothing to show" and "not set up yet" identically for reads.
func (s *LogService) ListLogs(ctx context.Context, caller Caller, groupID string, filters *models.LogFilters) (*models.LogPage, error) {
	if err := s.authorize(ctx, caller, groupID); err != nil {
		return nil, err
	}

	if filters == nil {
		filters = &models.LogFilters{}
	}

	q, ok, err := s.groupQuerier(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return emptyPage(), nil
	}

	qctx, cancel := s.queryTimeout(ctx)
	defer cancel()

	records, total, err := s.logs.ListLogs(qctx, q, filters)
	if err != nil {
		s.logger.Error("list logs failed",
			zap.String("group_id", groupID),
			zap.Error(err))
		return nil, err
	}

	categories, err := s.logs.ListCategories(qctx, q)
	if err != nil {
		// The page itself is good; serve it without the category facet.
		s.logger.Warn("category listing failed",
			zap.String("group_id", groupID),
			zap.Error(err))
		categories = []string{}
	}

	return &models.LogPage{
		Records:    records,
		Total:      total,
		HasMore:    filters.Offset+len(records) < total,
		Categories: categories,
	}, nil
}

// CreateLog inserts a new log into the group's database. Unlike reads, a
// missing or disabled database configuration is an error here: a write has
// nowhere to go.
func (s *LogService) CreateLog(ctx context.Context, caller Caller, groupID string, entry *models.LogEntry) (*models.LogRecord, error) {
	if err := s.authorize(ctx, caller, groupID); err != nil {
		return nil, err
	}

	if err := validateEntry(entry); err != nil {
		return nil, err
	}

	cleaned := cleanEntry(entry)

	q, ok, err := s.groupQuerier(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: group %s", apperrors.ErrNoDatabaseConfigured, groupID)
	}

	qctx, cancel := s.queryTimeout(ctx)
	defer cancel()

	record, err := s.logs.CreateLog(qctx, q, cleaned, caller.Name)
	if err != nil {
		s.logger.Error("create log failed",
			zap.String("group_id", groupID),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("log created",
		zap.String("group_id", groupID),
		zap.Int64("log_id", record.ID))
	return record, nil
}

// ListCategories returns the distinct problem categories in the group's logs.
func (s *LogService) ListCategories(ctx context.Context, caller Caller, groupID string) ([]string, error) {
	if err := s.authorize(ctx, caller, groupID); err != nil {
		return nil, err
	}

	q, ok, err := s.groupQuerier(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{}, nil
	}

	qctx, cancel := s.queryTimeout(ctx)
	defer cancel()

	return s.logs.ListCategories(qctx, q)
}

// ListEquipment returns the group's active equipment groups for the filter
// dropdown, optionally narrowed by a search term.
func (s *LogService) ListEquipment(ctx context.Context, caller Caller, groupID, search string) ([]*models.EquipmentGroupSummary, error) {
	if err := s.authorize(ctx, caller, groupID); err != nil {
		return nil, err
	}

	q, ok, err := s.groupQuerier(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []*models.EquipmentGroupSummary{}, nil
	}

	qctx, cancel := s.queryTimeout(ctx)
	defer cancel()

	return s.logs.ListEquipment(qctx, q, search)
}

// authorize rejects callers that are neither admins nor members of the group.
func (s *LogService) authorize(ctx context.Context, caller Caller, groupID string) error {
	if groupID == "" {
		return fmt.Errorf("%w: group id is required", apperrors.ErrValidation)
	}
	if caller.Admin {
		return nil
	}

	member, err := s.memberships.IsMember(ctx, groupID, caller.UserID)
	if err != nil {
		return err
	}
	if !member {
		return fmt.Errorf("%w: user %s is not a member of group %s",
			apperrors.ErrAccessDenied, caller.UserID, groupID)
	}
	return nil
}

// groupQuerier resolves the group's connection handle. The second return is
// false when the group has no usable database (unconfigured or disabled).
func (s *LogService) groupQuerier(ctx context.Context, groupID string) (repositories.GroupQuerier, bool, error) {
	cfg, err := s.configs.Get(ctx, groupID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !cfg.Enabled {
		return nil, false, nil
	}

	q, err := s.pools.Get(ctx, cfg)
	if err != nil {
		return nil, false, err
	}
	if q == nil {
		return nil, false, nil
	}
	return q, true, nil
}

// validateEntry enforces the two required fields before anything touches a
// group database.
func validateEntry(entry *models.LogEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: log entry is required", apperrors.ErrValidation)
	}
	if strings.TrimSpace(entry.InsightTitle) == "" {
		return fmt.Errorf("%w: insight_title is required", apperrors.ErrValidation)
	}
	if strings.TrimSpace(entry.InsightContent) == "" {
		return fmt.Errorf("%w: insight_content is required", apperrors.ErrValidation)
	}
	return nil
}

// cleanEntry trims scalar fields and drops blank placeholder entries that
// form UIs tend to submit in array fields.
func cleanEntry(entry *models.LogEntry) *models.LogEntry {
	return &models.LogEntry{
		InsightTitle:    strings.TrimSpace(entry.InsightTitle),
		InsightContent:  strings.TrimSpace(entry.InsightContent),
		ProblemCategory: strings.TrimSpace(entry.ProblemCategory),
		RootCause:       strings.TrimSpace(entry.RootCause),
		SolutionSteps:   dropBlanks(entry.SolutionSteps),
		ToolsRequired:   dropBlanks(entry.ToolsRequired),
		Tags:            dropBlanks(entry.Tags),
		EquipmentGroup:  dropBlanks(entry.EquipmentGroup),
		Notes:           strings.TrimSpace(entry.Notes),
	}
}

func dropBlanks(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func emptyPage() *models.LogPage {
	return &models.LogPage{
		Records:    []*models.LogRecord{},
		Total:      0,
		HasMore:    false,
		Categories: []string{},
	}
}
