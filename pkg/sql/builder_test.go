package sql

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/grouplog-io/grouplog-engine/pkg/apperrors"
	"github.com/grouplog-io/grouplog-engine/pkg/models"
)

func TestBuildLogQueryEmptyFilters(t *testing.T) {
	query, args, err := BuildLogQuery(&models.LogFilters{})
	if err != nil {
		t.Fatalf("empty filter set must build a valid query: %v", err)
	}

	if !strings.Contains(query, "FROM logs WHERE activation_status != 'deleted'") {
		t.Errorf("missing base predicate: %s", query)
	}
	if !strings.Contains(query, "ORDER BY created_at") {
		t.Errorf("missing default sort: %s", query)
	}
	if !strings.Contains(query, "LIMIT $1 OFFSET $2") {
		t.Errorf("pagination must always be parameterized: %s", query)
	}
	if !reflect.DeepEqual(args, []any{models.DefaultLogLimit, 0}) {
		t.Errorf("args = %v, want default limit and zero offset", args)
	}
}

func TestBuildLogQueryAllFilters(t *testing.T) {
	verified := true
	after := time.Date(2026, 1, 1, 15, 30, 0, 0, time.UTC)
	before := time.Date(2026, 1, 31, 8, 0, 0, 0, time.UTC)

	f := &models.LogFilters{
		Category:    "Hydraulics",
		Verified:    &verified,
		Equipment:   "pump",
		UserFilter:  "alice",
		TitleSearch: "leak",
		DateAfter:   &after,
		DateBefore:  &before,
		SortBy:      models.SortByInsightTitle,
		SortDesc:    true,
		Limit:       25,
		Offset:      50,
	}

	query, args, err := BuildLogQuery(f)
	if err != nil {
		t.Fatalf("BuildLogQuery failed: %v", err)
	}

	// One AND clause and one positional parameter per filter.
	for _, clause := range []string{
		"AND problem_category = $1",
		"AND verified = $2",
		"AND LOWER(equipment_group::text) LIKE LOWER($3)",
		"AND LOWER(user_name) LIKE LOWER($4)",
		"AND LOWER(insight_title) LIKE LOWER($5)",
		"AND created_at::date >= $6",
		"AND created_at::date <= $7",
		"ORDER BY insight_title DESC",
		"LIMIT $8 OFFSET $9",
	} {
		if !strings.Contains(query, clause) {
			t.Errorf("query missing %q:\n%s", clause, query)
		}
	}

	if len(args) != 9 {
		t.Fatalf("expected 9 args, got %d: %v", len(args), args)
	}

	// Date parameters must be native date values at UTC midnight, not strings.
	gotAfter, ok := args[5].(time.Time)
	if !ok {
		t.Fatalf("date_after bound as %T, want time.Time", args[5])
	}
	if !gotAfter.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date_after = %v, want UTC midnight of 2026-01-01", gotAfter)
	}

	// Text filters wrap the value for partial matching.
	if args[4] != "%leak%" {
		t.Errorf("title_search arg = %v, want %%leak%%", args[4])
	}
}

func TestBuildLogQueryIdempotent(t *testing.T) {
	verified := false
	f := &models.LogFilters{Category: "Electrical", Verified: &verified, SortDesc: true}

	q1, a1, err := BuildLogQuery(f)
	if err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	q2, a2, err := BuildLogQuery(f)
	if err != nil {
		t.Fatalf("second build failed: %v", err)
	}

	if q1 != q2 {
		t.Errorf("queries differ:\n%s\n%s", q1, q2)
	}
	if !reflect.DeepEqual(a1, a2) {
		t.Errorf("args differ: %v vs %v", a1, a2)
	}
}

func TestBuildLogQueryRejectsUnknownSortKey(t *testing.T) {
	f := &models.LogFilters{SortBy: models.SortKey("pg_sleep(10)--")}
	_, _, err := BuildLogQuery(f)
	if !errors.Is(err, apperrors.ErrQueryFailed) {
		t.Fatalf("expected ErrQueryFailed before reaching the database, got %v", err)
	}
}

func TestBuildLogQueryRejectsInjectionInFilters(t *testing.T) {
	f := &models.LogFilters{TitleSearch: "' OR '1'='1"}
	_, _, err := BuildLogQuery(f)
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected ErrValidation for injection attempt, got %v", err)
	}
}

func TestBuildLogQueryCapsLimit(t *testing.T) {
	query, args, err := BuildLogQuery(&models.LogFilters{Limit: 10000})
	if err != nil {
		t.Fatalf("BuildLogQuery failed: %v", err)
	}
	if !strings.Contains(query, "LIMIT $1") {
		t.Errorf("limit must stay parameterized: %s", query)
	}
	if args[0] != models.MaxLogLimit {
		t.Errorf("limit = %v, want cap %d", args[0], models.MaxLogLimit)
	}
}

func TestBuildLogCountQueryMatchesPredicates(t *testing.T) {
	f := &models.LogFilters{Category: "Hydraulics", UserFilter: "alice", SortBy: models.SortByUserName, Limit: 10, Offset: 20}

	countQuery, countArgs, err := BuildLogCountQuery(f)
	if err != nil {
		t.Fatalf("BuildLogCountQuery failed: %v", err)
	}

	if !strings.HasPrefix(countQuery, "SELECT COUNT(*) FROM logs") {
		t.Errorf("unexpected count query: %s", countQuery)
	}
	for _, clause := range []string{"AND problem_category = $1", "AND LOWER(user_name) LIKE LOWER($2)"} {
		if !strings.Contains(countQuery, clause) {
			t.Errorf("count query missing %q: %s", clause, countQuery)
		}
	}
	if strings.Contains(countQuery, "ORDER BY") || strings.Contains(countQuery, "LIMIT") {
		t.Errorf("count query must not sort or paginate: %s", countQuery)
	}
	if len(countArgs) != 2 {
		t.Errorf("count args = %v, want only predicate parameters", countArgs)
	}
}

func TestBuildEquipmentQuery(t *testing.T) {
	query, args, err := BuildEquipmentQuery("")
	if err != nil {
		t.Fatalf("BuildEquipmentQuery failed: %v", err)
	}
	if len(args) != 0 {
		t.Errorf("no-search query should have no args, got %v", args)
	}
	if !strings.Contains(query, "activation_status = 'active'") {
		t.Errorf("missing active filter: %s", query)
	}

	query, args, err = BuildEquipmentQuery("pump")
	if err != nil {
		t.Fatalf("BuildEquipmentQuery with search failed: %v", err)
	}
	if len(args) != 1 || args[0] != "%pump%" {
		t.Errorf("search args = %v, want [%%pump%%]", args)
	}
	if !strings.Contains(query, "unnest(aliases)") {
		t.Errorf("search must also match aliases: %s", query)
	}
}

func TestBuildInsertLogQuery(t *testing.T) {
	query := BuildInsertLogQuery()

	if !strings.HasPrefix(query, "INSERT INTO logs (") {
		t.Errorf("unexpected insert query: %s", query)
	}
	if !strings.Contains(query, "RETURNING") {
		t.Errorf("insert must return the created row: %s", query)
	}
	// 16 columns, 16 placeholders.
	for i := 1; i <= 16; i++ {
		if !strings.Contains(query, fmt.Sprintf("$%d", i)) {
			t.Errorf("missing placeholder $%d: %s", i, query)
		}
	}
	if strings.Contains(query, "$17") {
		t.Errorf("unexpected extra placeholder: %s", query)
	}
}
