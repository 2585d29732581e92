package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/grouplog-io/grouplog-engine/pkg/database"
)

// PostgresTestImage backs both the engine store and the simulated group log
// database in integration tests.
const PostgresTestImage = "postgres:16-alpine"

// TestDB holds a shared test database container and connection pool.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresTestImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "grouplog_test",
			"POSTGRES_USER":     "grouplog",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://grouplog:test_password@%s:%s/grouplog_test?sslmode=disable",
		host, port.Port())

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
	}, nil
}

// EngineDB holds the engine store connection with migrations applied.
type EngineDB struct {
	DB      *database.DB
	ConnStr string
}

var (
	sharedEngineDB     *EngineDB
	sharedEngineDBOnce sync.Once
	sharedEngineDBErr  error
)

// GetEngineDB returns a shared engine store for integration tests, with
// migrations applied.
func GetEngineDB(t *testing.T) *EngineDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	testDB := GetTestDB(t)

	sharedEngineDBOnce.Do(func() {
		sharedEngineDB, sharedEngineDBErr = setupEngineDB(testDB)
	})

	if sharedEngineDBErr != nil {
		t.Fatalf("Failed to setup engine database: %v", sharedEngineDBErr)
	}

	return sharedEngineDB
}

func setupEngineDB(testDB *TestDB) (*EngineDB, error) {
	ctx := context.Background()

	if _, err := testDB.Pool.Exec(ctx, "CREATE DATABASE grouplog_engine_test"); err != nil {
		return nil, fmt.Errorf("failed to create engine test database: %w", err)
	}

	host, err := testDB.Container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := testDB.Container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://grouplog:test_password@%s:%s/grouplog_engine_test?sslmode=disable",
		host, port.Port())

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to engine database: %w", err)
	}

	// Migrations require database/sql.
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open sql connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &EngineDB{
		DB:      db,
		ConnStr: connStr,
	}, nil
}

// groupLogSchema simulates the log tables a group's external database
// carries. Arrays are stored as JSON text, matching the schema the log
// tables ship with.
const groupLogSchema = `
CREATE TABLE IF NOT EXISTS logs (
    id                BIGSERIAL PRIMARY KEY,
    insight_title     TEXT NOT NULL,
    insight_content   TEXT NOT NULL,
    user_name         TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMP NOT NULL DEFAULT now(),
    updated_at        TIMESTAMP NOT NULL DEFAULT now(),
    source            TEXT NOT NULL DEFAULT '',
    log_type          TEXT NOT NULL DEFAULT '',
    activation_status TEXT NOT NULL DEFAULT 'Inactive',
    verified          BOOLEAN NOT NULL DEFAULT false,
    problem_category  TEXT,
    root_cause        TEXT,
    solution_steps    TEXT,
    tools_required    TEXT,
    tags              TEXT,
    equipment_group   TEXT,
    notes             TEXT,
    business_impact   TEXT,
    reusability_score DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS equipment_groups (
    id                BIGSERIAL PRIMARY KEY,
    conventional_name TEXT NOT NULL,
    model_numbers     TEXT[],
    aliases           TEXT[],
    activation_status TEXT NOT NULL DEFAULT 'active'
);
`

var (
	sharedGroupLogDBOnce sync.Once
	sharedGroupLogDBErr  error
)

// SetupGroupLogDB creates a simulated group log database inside the shared
// container and returns its connection string. Tests point group database
// configs at it.
func SetupGroupLogDB(t *testing.T) string {
	t.Helper()

	testDB := GetTestDB(t)
	ctx := context.Background()

	sharedGroupLogDBOnce.Do(func() {
		if _, err := testDB.Pool.Exec(ctx, "CREATE DATABASE group_logs_test"); err != nil {
			sharedGroupLogDBErr = fmt.Errorf("failed to create group log database: %w", err)
			return
		}

		connStr, err := GroupLogConnStr(testDB)
		if err != nil {
			sharedGroupLogDBErr = err
			return
		}

		pool, err := pgxpool.New(ctx, connStr)
		if err != nil {
			sharedGroupLogDBErr = fmt.Errorf("failed to connect to group log database: %w", err)
			return
		}
		defer pool.Close()

		if _, err := pool.Exec(ctx, groupLogSchema); err != nil {
			sharedGroupLogDBErr = fmt.Errorf("failed to create group log schema: %w", err)
		}
	})

	if sharedGroupLogDBErr != nil {
		t.Fatalf("Failed to setup group log database: %v", sharedGroupLogDBErr)
	}

	connStr, err := GroupLogConnStr(testDB)
	if err != nil {
		t.Fatalf("%v", err)
	}
	return connStr
}

// GroupLogConnStr builds the connection string of the simulated group log
// database.
func GroupLogConnStr(testDB *TestDB) (string, error) {
	ctx := context.Background()

	host, err := testDB.Container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := testDB.Container.MappedPort(ctx, "5432")
	if err != nil {
		return "", fmt.Errorf("failed to get container port: %w", err)
	}

	return fmt.Sprintf("postgres://grouplog:test_password@%s:%s/group_logs_test?sslmode=disable",
		host, port.Port()), nil
}
