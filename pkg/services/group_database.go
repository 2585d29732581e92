package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/grouplog-io/grouplog-engine/pkg/apperrors"
	"github.com/grouplog-io/grouplog-engine/pkg/connstring"
	"github.com/grouplog-io/grouplog-engine/pkg/crypto"
	"github.com/grouplog-io/grouplog-engine/pkg/models"
	"github.com/grouplog-io/grouplog-engine/pkg/repositories"
)

// ConnectionTester verifies candidate credentials without caching anything.
type ConnectionTester interface {
	TestConnection(ctx context.Context, desc *connstring.Descriptor, password string) error
}

// PoolInvalidator drops a group's cached connection pool.
type PoolInvalidator interface {
	Invalidate(groupID string)
}

// GroupDatabaseService manages per-group database configurations. All
// operations are admin-only; passwords are encrypted before they reach the
// engine store and never returned.
type GroupDatabaseService struct {
	configs     repositories.GroupConfigRepository
	cipher      *crypto.SecretCipher
	tester      ConnectionTester
	invalidator PoolInvalidator
	logger      *zap.Logger
}

// NewGroupDatabaseService creates a GroupDatabaseService.
func NewGroupDatabaseService(
	configs repositories.GroupConfigRepository,
	cipher *crypto.SecretCipher,
	tester ConnectionTester,
	invalidator PoolInvalidator,
	logger *zap.Logger,
) *GroupDatabaseService {
	return &GroupDatabaseService{
		configs:     configs,
		cipher:      cipher,
		tester:      tester,
		invalidator: invalidator,
		logger:      logger,
	}
}

// ConfigureRequest carries the admin-supplied connection settings.
type ConfigureRequest struct {
	ConnectionString string `json:"connection_string"`
	Password         string `json:"password"`
	Enabled          bool   `json:"enabled"`
}

// Configure stores (or replaces) a group's database configuration and drops
// any cached pool so the next query uses the new settings.
func (s *GroupDatabaseService) Configure(ctx context.Context, caller Caller, groupID string, req *ConfigureRequest) (*models.GroupDatabaseConfig, error) {
	if err := s.requireAdmin(caller); err != nil {
		return nil, err
	}
	if groupID == "" {
		return nil, fmt.Errorf("%w: group id is required", apperrors.ErrValidation)
	}

	desc, err := connstring.Parse(req.ConnectionString)
	if err != nil {
		return nil, err
	}

	encrypted, err := s.cipher.Encrypt(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt database password: %w", err)
	}

	cfg := &models.GroupDatabaseConfig{
		GroupID:           groupID,
		Host:              desc.Host,
		Port:              desc.Port,
		Database:          desc.Database,
		User:              desc.User,
		EncryptedPassword: encrypted,
		Enabled:           req.Enabled,
		ConfiguredBy:      caller.UserID,
	}

	if err := s.configs.Upsert(ctx, cfg); err != nil {
		return nil, err
	}

	s.invalidator.Invalidate(groupID)

	s.logger.Info("group database configured",
		zap.String("group_id", groupID),
		zap.String("target", desc.Redacted()),
		zap.Bool("enabled", req.Enabled),
		zap.String("configured_by", caller.UserID))

	return cfg, nil
}

// GetConfig returns a group's stored configuration. The encrypted password
// never serializes; nothing here decrypts it.
func (s *GroupDatabaseService) GetConfig(ctx context.Context, caller Caller, groupID string) (*models.GroupDatabaseConfig, error) {
	if err := s.requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.configs.Get(ctx, groupID)
}

// SetEnabled toggles a stored configuration. Disabling also drops the cached
// pool so running queries are the last ones served.
func (s *GroupDatabaseService) SetEnabled(ctx context.Context, caller Caller, groupID string, enabled bool) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}

	if err := s.configs.SetEnabled(ctx, groupID, enabled); err != nil {
		return err
	}

	s.invalidator.Invalidate(groupID)

	s.logger.Info("group database toggled",
		zap.String("group_id", groupID),
		zap.Bool("enabled", enabled))
	return nil
}

// TestRequest carries candidate credentials for a connection test.
type TestRequest struct {
	ConnectionString string `json:"connection_string"`
	Password         string `json:"password"`
}

// TestConnection verifies candidate credentials against the target database.
// When the password is blank and the group already has a stored config for
// the same host and user, the stored password is used, so admins can re-test
// without re-entering the secret.
func (s *GroupDatabaseService) TestConnection(ctx context.Context, caller Caller, groupID string, req *TestRequest) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}

	desc, err := connstring.Parse(req.ConnectionString)
	if err != nil {
		return err
	}

	password := req.Password
	if password == "" {
		stored, err := s.configs.Get(ctx, groupID)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		if stored != nil && stored.Host == desc.Host && stored.User == desc.User {
			password, err = s.cipher.Decrypt(stored.EncryptedPassword)
			if err != nil {
				return fmt.Errorf("%w: stored password for group %s", apperrors.ErrSecretUnreadable, groupID)
			}
		}
	}

	return s.tester.TestConnection(ctx, desc, password)
}

func (s *GroupDatabaseService) requireAdmin(caller Caller) error {
	if !caller.Admin {
		return fmt.Errorf("%w: administrator role required", apperrors.ErrAccessDenied)
	}
	return nil
}
