package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/grouplog-io/grouplog-engine/pkg/apperrors"
	"github.com/grouplog-io/grouplog-engine/pkg/database"
	"github.com/grouplog-io/grouplog-engine/pkg/models"
)

// GroupConfigRepository defines data access for per-group database
// configurations. Passwords are stored as ciphertext - encryption and
// decryption are handled by the service layer.
type GroupConfigRepository interface {
	// Upsert inserts or replaces the configuration for a group.
	Upsert(ctx context.Context, cfg *models.GroupDatabaseConfig) error

	// Get retrieves a group's configuration. Returns apperrors.ErrNotFound
	// when the group has never been configured.
	Get(ctx context.Context, groupID string) (*models.GroupDatabaseConfig, error)

	// SetEnabled toggles a stored configuration without touching credentials.
	SetEnabled(ctx context.Context, groupID string, enabled bool) error
}

type groupConfigRepository struct {
	db *database.DB
}

// NewGroupConfigRepository creates a group config repository backed by the
// engine store.
func NewGroupConfigRepository(db *database.DB) GroupConfigRepository {
	return &groupConfigRepository{db: db}
}

func (r *groupConfigRepository) Upsert(ctx context.Context, cfg *models.GroupDatabaseConfig) error {
	now := time.Now()
	query := `
		INSERT INTO group_database_configs
			(group_id, host, port, database_name, db_user, encrypted_password, enabled, configured_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (group_id) DO UPDATE SET
			host = EXCLUDED.host,
			port = EXCLUDED.port,
			database_name = EXCLUDED.database_name,
			db_user = EXCLUDED.db_user,
			encrypted_password = EXCLUDED.encrypted_password,
			enabled = EXCLUDED.enabled,
			configured_by = EXCLUDED.configured_by,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query,
		cfg.GroupID, cfg.Host, cfg.Port, cfg.Database, cfg.User,
		cfg.EncryptedPassword, cfg.Enabled, cfg.ConfiguredBy, now)
	if err != nil {
		return fmt.Errorf("failed to upsert group database config: %w", err)
	}

	cfg.UpdatedAt = now
	return nil
}

func (r *groupConfigRepository) Get(ctx context.Context, groupID string) (*models.GroupDatabaseConfig, error) {
	query := `
		SELECT group_id, host, port, database_name, db_user, encrypted_password, enabled, configured_by, created_at, updated_at
		FROM group_database_configs
		WHERE group_id = $1`

	cfg := &models.GroupDatabaseConfig{}
	err := r.db.QueryRow(ctx, query, groupID).Scan(
		&cfg.GroupID, &cfg.Host, &cfg.Port, &cfg.Database, &cfg.User,
		&cfg.EncryptedPassword, &cfg.Enabled, &cfg.ConfiguredBy,
		&cfg.CreatedAt, &cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: no database config for group %s", apperrors.ErrNotFound, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group database config: %w", err)
	}

	return cfg, nil
}

func (r *groupConfigRepository) SetEnabled(ctx context.Context, groupID string, enabled bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE group_database_configs SET enabled = $2, updated_at = now() WHERE group_id = $1`,
		groupID, enabled)
	if err != nil {
		return fmt.Errorf("failed to update group database config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no database config for group %s", apperrors.ErrNotFound, groupID)
	}
	return nil
}
