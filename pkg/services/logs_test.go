package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/grouplog-io/grouplog-engine/pkg/apperrors"
	"github.com/grouplog-io/grouplog-engine/pkg/models"
	"github.com/grouplog-io/grouplog-engine/pkg/repositories"
)

// mockConfigRepo is a configurable mock for the group config repository.
type mockConfigRepo struct {
	cfg        *models.GroupDatabaseConfig
	getErr     error
	upsertErr  error
	enabledErr error

	capturedUpsert  *models.GroupDatabaseConfig
	capturedEnabled *bool
}

func (m *mockConfigRepo) Upsert(ctx context.Context, cfg *models.GroupDatabaseConfig) error {
	m.capturedUpsert = cfg
	return m.upsertErr
}

func (m *mockConfigRepo) Get(ctx context.Context, groupID string) (*models.GroupDatabaseConfig, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.cfg == nil {
		return nil, apperrors.ErrNotFound
	}
	return m.cfg, nil
}

func (m *mockConfigRepo) SetEnabled(ctx context.Context, groupID string, enabled bool) error {
	m.capturedEnabled = &enabled
	return m.enabledErr
}

// mockMembershipRepo reports fixed membership.
type mockMembershipRepo struct {
	members map[string]bool
	err     error
}

func (m *mockMembershipRepo) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.members[groupID+"/"+userID], nil
}

// fakeQuerier stands in for a live group pool. Queries never reach it in
// unit tests because the log repository is mocked too.
type fakeQuerier struct{}

func (fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("fakeQuerier: no live database")
}

func (fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

// mockPoolProvider returns the fake querier for enabled configs.
type mockPoolProvider struct {
	err error
}

func (m *mockPoolProvider) Get(ctx context.Context, cfg *models.GroupDatabaseConfig) (repositories.GroupQuerier, error) {
	if m.err != nil {
		return nil, m.err
	}
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	return fakeQuerier{}, nil
}

// mockLogRepo is a configurable mock for the log repository.
type mockLogRepo struct {
	records    []*models.LogRecord
	total      int
	created    *models.LogRecord
	categories []string
	equipment  []*models.EquipmentGroupSummary

	listErr       error
	createErr     error
	categoriesErr error
	equipmentErr  error

	capturedFilters *models.LogFilters
	capturedEntry   *models.LogEntry
	capturedUser    string
	createCalled    bool
}

func (m *mockLogRepo) ListLogs(ctx context.Context, q repositories.GroupQuerier, filters *models.LogFilters) ([]*models.LogRecord, int, error) {
	m.capturedFilters = filters
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	return m.records, m.total, nil
}

func (m *mockLogRepo) CreateLog(ctx context.Context, q repositories.GroupQuerier, entry *models.LogEntry, userName string) (*models.LogRecord, error) {
	m.createCalled = true
	m.capturedEntry = entry
	m.capturedUser = userName
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.created, nil
}

func (m *mockLogRepo) ListCategories(ctx context.Context, q repositories.GroupQuerier) ([]string, error) {
	if m.categoriesErr != nil {
		return nil, m.categoriesErr
	}
	return m.categories, nil
}

func (m *mockLogRepo) ListEquipment(ctx context.Context, q repositories.GroupQuerier, search string) ([]*models.EquipmentGroupSummary, error) {
	if m.equipmentErr != nil {
		return nil, m.equipmentErr
	}
	return m.equipment, nil
}

func testTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Second)
}

func enabledConfig() *models.GroupDatabaseConfig {
	return &models.GroupDatabaseConfig{
		GroupID: "g1", Host: "db.example.com", Port: 5432,
		Database: "logs", User: "reader",
		EncryptedPassword: "ciphertext", Enabled: true,
	}
}

func newLogService(configs *mockConfigRepo, memberships *mockMembershipRepo, logs *mockLogRepo) *LogService {
	return NewLogService(configs, memberships, logs, &mockPoolProvider{}, testTimeout, zap.NewNop())
}

func TestListLogs_NonMemberDenied(t *testing.T) {
	svc := newLogService(
		&mockConfigRepo{cfg: enabledConfig()},
		&mockMembershipRepo{members: map[string]bool{}},
		&mockLogRepo{},
	)

	_, err := svc.ListLogs(context.Background(), Caller{UserID: "u1"}, "g1", nil)
	if !errors.Is(err, apperrors.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestListLogs_AdminBypassesMembership(t *testing.T) {
	logs := &mockLogRepo{records: []*models.LogRecord{}, categories: []string{}}
	svc := newLogService(
		&mockConfigRepo{cfg: enabledConfig()},
		&mockMembershipRepo{members: map[string]bool{}},
		logs,
	)

	_, err := svc.ListLogs(context.Background(), Caller{UserID: "admin", Admin: true}, "g1", nil)
	if err != nil {
		t.Fatalf("ListLogs failed for admin: %v", err)
	}
}

func TestListLogs_NoConfigReturnsEmptyPage(t *testing.T) {
	svc := newLogService(
		&mockConfigRepo{},
		&mockMembershipRepo{members: map[string]bool{"g1/u1": true}},
		&mockLogRepo{},
	)

	page, err := svc.ListLogs(context.Background(), Caller{UserID: "u1"}, "g1", nil)
	if err != nil {
		t.Fatalf("ListLogs failed: %v", err)
	}
	if page.Total != 0 || page.HasMore {
		t.Errorf("expected empty page, got total=%d has_more=%v", page.Total, page.HasMore)
	}
	if page.Records == nil || len(page.Records) != 0 {
		t.Errorf("expected empty non-nil records, got %v", page.Records)
	}
	if page.Categories == nil {
		t.Error("expected empty non-nil categories")
	}
}

func TestListLogs_DisabledConfigReturnsEmptyPage(t *testing.T) {
	cfg := enabledConfig()
	cfg.Enabled = false
	logs := &mockLogRepo{}
	svc := newLogService(
		&mockConfigRepo{cfg: cfg},
		&mockMembershipRepo{members: map[string]bool{"g1/u1": true}},
		logs,
	)

	page, err := svc.ListLogs(context.Background(), Caller{UserID: "u1"}, "g1", nil)
	if err != nil {
		t.Fatalf("ListLogs failed: %v", err)
	}
	if len(page.Records) != 0 || page.Total != 0 {
		t.Errorf("expected empty page for disabled config, got %+v", page)
	}
	if logs.capturedFilters != nil {
		t.Error("log repository should not be queried when config is disabled")
	}
}

func TestListLogs_PageMetadata(t *testing.T) {
	records := []*models.LogRecord{{ID: 1}, {ID: 2}}
	logs := &mockLogRepo{records: records, total: 10, categories: []string{"Electrical", "Hydraulic"}}
	svc := newLogService(
		&mockConfigRepo{cfg: enabledConfig()},
		&mockMembershipRepo{members: map[string]bool{"g1/u1": true}},
		logs,
	)

	filters := &models.LogFilters{Offset: 4, Limit: 2}
	page, err := svc.ListLogs(context.Background(), Caller{UserID: "u1"}, "g1", filters)
	if err != nil {
		t.Fatalf("ListLogs failed: %v", err)
	}

	if page.Total != 10 {
		t.Errorf("expected total 10, got %d", page.Total)
	}
	if !page.HasMore {
		t.Error("expected has_more with offset 4 + 2 records < 10 total")
	}
	if len(page.Categories) != 2 {
		t.Errorf("expected 2 categories, got %d", len(page.Categories))
	}
}

func TestListLogs_CategoryFailureDoesNotFailPage(t *testing.T) {
	logs := &mockLogRepo{
		records:       []*models.LogRecord{{ID: 1}},
		total:         1,
		categoriesErr: errors.New("category query blew up"),
	}
	svc := newLogService(
		&mockConfigRepo{cfg: enabledConfig()},
		&mockMembershipRepo{members: map[string]bool{"g1/u1": true}},
		logs,
	)

	page, err := svc.ListLogs(context.Background(), Caller{UserID: "u1"}, "g1", nil)
	if err != nil {
		t.Fatalf("ListLogs failed: %v", err)
	}
	if len(page.Records) != 1 {
		t.Errorf("expected the page to be served, got %d records", len(page.Records))
	}
	if page.Categories == nil || len(page.Categories) != 0 {
		t.Errorf("expected empty categories after facet failure, got %v", page.Categories)
	}
}

func TestCreateLog_BlankTitleRejectedBeforeQuery(t *testing.T) {
	logs := &mockLogRepo{}
	svc := newLogService(
		&mockConfigRepo{cfg: enabledConfig()},
		&mockMembershipRepo{members: map[string]bool{"g1/u1": true}},
		logs,
	)

	entry := &models.LogEntry{InsightTitle: "   ", InsightContent: "content"}
	_, err := svc.CreateLog(context.Background(), Caller{UserID: "u1"}, "g1", entry)
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if logs.createCalled {
		t.Error("validation failure must not reach the group database")
	}
}

func TestCreateLog_NoConfigIsAnError(t *testing.T) {
	svc := newLogService(
		&mockConfigRepo{},
		&mockMembershipRepo{members: map[string]bool{"g1/u1": true}},
		&mockLogRepo{},
	)

	entry := &models.LogEntry{InsightTitle: "t", InsightContent: "c"}
	_, err := svc.CreateLog(context.Background(), Caller{UserID: "u1"}, "g1", entry)
	if !errors.Is(err, apperrors.ErrNoDatabaseConfigured) {
		t.Fatalf("expected ErrNoDatabaseConfigured, got %v", err)
	}
}

func TestCreateLog_CleansEntry(t *testing.T) {
	created := &models.LogRecord{ID: 42}
	logs := &mockLogRepo{created: created}
	svc := newLogService(
		&mockConfigRepo{cfg: enabledConfig()},
		&mockMembershipRepo{members: map[string]bool{"g1/u1": true}},
		logs,
	)

	entry := &models.LogEntry{
		InsightTitle:   "  Bearing failure  ",
		InsightContent: "Replaced the worn bearing",
		Tags:           []string{" vibration ", "", "   ", "bearing"},
		SolutionSteps:  []string{"", " "},
	}
	record, err := svc.CreateLog(context.Background(), Caller{UserID: "u1", Name: "Dana"}, "g1", entry)
	if err != nil {
		t.Fatalf("CreateLog failed: %v", err)
	}
	if record.ID != 42 {
		t.Errorf("expected created record back, got %+v", record)
	}

	got := logs.capturedEntry
	if got.InsightTitle != "Bearing failure" {
		t.Errorf("expected trimmed title, got %q", got.InsightTitle)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "vibration" || got.Tags[1] != "bearing" {
		t.Errorf("expected blank tags dropped, got %v", got.Tags)
	}
	if got.SolutionSteps != nil {
		t.Errorf("expected all-blank solution steps to become nil, got %v", got.SolutionSteps)
	}
	if logs.capturedUser != "Dana" {
		t.Errorf("expected caller name as user_name, got %q", logs.capturedUser)
	}
}

func TestListCategories_NoConfigReturnsEmpty(t *testing.T) {
	svc := newLogService(
		&mockConfigRepo{},
		&mockMembershipRepo{members: map[string]bool{"g1/u1": true}},
		&mockLogRepo{},
	)

	categories, err := svc.ListCategories(context.Background(), Caller{UserID: "u1"}, "g1")
	if err != nil {
		t.Fatalf("ListCategories failed: %v", err)
	}
	if categories == nil || len(categories) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", categories)
	}
}

func TestListEquipment_MembershipCheckErrorPropagates(t *testing.T) {
	svc := newLogService(
		&mockConfigRepo{cfg: enabledConfig()},
		&mockMembershipRepo{err: errors.New("engine store down")},
		&mockLogRepo{},
	)

	_, err := svc.ListEquipment(context.Background(), Caller{UserID: "u1"}, "g1", "")
	if err == nil {
		t.Fatal("expected membership error to propagate")
	}
}

func TestListLogs_MissingGroupID(t *testing.T) {
	svc := newLogService(&mockConfigRepo{}, &mockMembershipRepo{}, &mockLogRepo{})

	_, err := svc.ListLogs(context.Background(), Caller{UserID: "u1", Admin: true}, "", nil)
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
