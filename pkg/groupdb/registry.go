// Package groupdb manages pooled connections to each group's external log
// database. One live pool exists per group at a time; a configuration change
// replaces the pool rather than mutating it, and groups never share pools.
package groupdb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/grouplog-io/grouplog-engine/pkg/apperrors"
	"github.com/grouplog-io/grouplog-engine/pkg/connstring"
	"github.com/grouplog-io/grouplog-engine/pkg/crypto"
	"github.com/grouplog-io/grouplog-engine/pkg/logging"
	"github.com/grouplog-io/grouplog-engine/pkg/models"
	"github.com/grouplog-io/grouplog-engine/pkg/retry"
)

const (
	DefaultIdleTTL         = 5 * time.Minute
	DefaultCleanupInterval = 1 * time.Minute
	DefaultConnectTimeout  = 10 * time.Second
	DefaultPoolMaxConns    = 5
	DefaultPoolMinConns    = 1
)

// Config holds pool management settings shared by all group pools.
type Config struct {
	PoolMaxConns   int32
	PoolMinConns   int32
	IdleTTL        time.Duration
	ConnectTimeout time.Duration
	SSLMode        string
}

// Registry is the per-group cache of connection pools. It is the only shared
// mutable state in the engine; all access goes through Get, Invalidate and
// Close.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	cipher  *crypto.SecretCipher
	cfg     Config
	logger  *zap.Logger
	stopped bool
	stop    chan struct{}

	// Injectable for tests; production uses pgxpool.
	dial func(ctx context.Context, poolCfg *pgxpool.Config) (*pgxpool.Pool, error)
	ping func(ctx context.Context, pool *pgxpool.Pool) error
}

// entry guards creation and replacement of one group's pool. The registry
// map mutex is held only for map lookups, so a slow dial for one group never
// blocks requests for other groups.
type entry struct {
	mu          sync.Mutex
	pool        *pgxpool.Pool
	fingerprint string
	lastUsed    time.Time

	// Set under mu when the entry leaves the registry map. A pool installed
	// into a removed entry would be unreachable to Invalidate and cleanup.
	removed bool
}

// NewRegistry creates a registry and starts the idle-pool cleanup goroutine,
// which runs until Close is called.
func NewRegistry(cipher *crypto.SecretCipher, cfg Config, logger *zap.Logger) *Registry {
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}
	if cfg.PoolMinConns <= 0 {
		cfg.PoolMinConns = DefaultPoolMinConns
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "require"
	}

	r := &Registry{
		entries: make(map[string]*entry),
		cipher:  cipher,
		cfg:     cfg,
		logger:  logger,
		stop:    make(chan struct{}),
		dial: func(ctx context.Context, poolCfg *pgxpool.Config) (*pgxpool.Pool, error) {
			return pgxpool.NewWithConfig(ctx, poolCfg)
		},
		ping: func(ctx context.Context, pool *pgxpool.Pool) error {
			return pool.Ping(ctx)
		},
	}

	go r.cleanupLoop()
	return r
}

// Get returns the live pool for the group, creating it on first use. Returns
// (nil, nil) when the group has no enabled configuration. A stored config
// whose connection details changed since the pool was opened replaces the
// pool transparently.
func (r *Registry) Get(ctx context.Context, cfg *models.GroupDatabaseConfig) (*pgxpool.Pool, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	fp := fingerprint(cfg, r.cfg.SSLMode)

	for {
		e := r.entryFor(cfg.GroupID)
		if e == nil {
			return nil, fmt.Errorf("%w: registry is closed", apperrors.ErrDatabaseUnavailable)
		}

		e.mu.Lock()
		if e.removed {
			// Invalidate or the cleanup loop dropped this entry from the map
			// while we waited for its lock. Start over with a fresh entry.
			e.mu.Unlock()
			continue
		}
		pool, err := r.currentPool(ctx, cfg, e, fp)
		e.mu.Unlock()
		return pool, err
	}
}

// currentPool returns the entry's pool, opening or replacing it as needed.
// Caller holds e.mu.
func (r *Registry) currentPool(ctx context.Context, cfg *models.GroupDatabaseConfig, e *entry, fp string) (*pgxpool.Pool, error) {
	if e.pool != nil {
		if e.fingerprint == fp {
			e.lastUsed = time.Now()
			return e.pool, nil
		}
		// Config changed: replace, letting in-flight queries on the old
		// handle drain before it closes.
		old := e.pool
		e.pool = nil
		go old.Close()
		r.logger.Info("group database config changed, replacing pool",
			zap.String("group_id", cfg.GroupID))
	}

	pool, err := r.openPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	e.pool = pool
	e.fingerprint = fp
	e.lastUsed = time.Now()

	r.logger.Info("created connection pool for group",
		zap.String("group_id", cfg.GroupID),
		zap.String("target", (&connstring.Descriptor{
			Host: cfg.Host, Port: cfg.Port, Database: cfg.Database, User: cfg.User,
		}).Redacted()))

	return pool, nil
}

// Invalidate drops the group's cached pool immediately. Queries that already
// hold a connection from the old pool may finish; no new acquisition from it
// is possible once Invalidate returns, because the next Get opens a fresh
// pool.
func (r *Registry) Invalidate(groupID string) {
	r.mu.Lock()
	e, exists := r.entries[groupID]
	if exists {
		delete(r.entries, groupID)
	}
	r.mu.Unlock()

	if !exists {
		return
	}

	go func() {
		e.mu.Lock()
		// A Get that raced the map delete may have installed a pool into
		// this entry; marking it removed and closing whatever is here keeps
		// that pool from outliving the invalidation unreachable.
		e.removed = true
		old := e.pool
		e.pool = nil
		e.mu.Unlock()
		if old != nil {
			// Close blocks until in-flight queries release their connections.
			old.Close()
		}
	}()

	r.logger.Info("invalidated connection pool for group", zap.String("group_id", groupID))
}

// TestConnection opens a throwaway connection against the descriptor with the
// given plaintext password, verifies it with a ping, and closes it. Nothing
// is cached or persisted.
func (r *Registry) TestConnection(ctx context.Context, desc *connstring.Descriptor, password string) error {
	poolCfg, err := pgxpool.ParseConfig(desc.DSN(password, r.cfg.SSLMode))
	if err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrMalformedConnectionString, logging.SanitizeError(err))
	}
	poolCfg.MaxConns = 1
	poolCfg.MinConns = 0
	poolCfg.ConnConfig.ConnectTimeout = r.cfg.ConnectTimeout

	dialCtx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
	defer cancel()

	pool, err := r.dial(dialCtx, poolCfg)
	if err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrDatabaseUnavailable, logging.SanitizeError(err))
	}
	defer pool.Close()

	if err := r.ping(dialCtx, pool); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrDatabaseUnavailable, logging.SanitizeError(err))
	}

	return nil
}

// Close tears down every pool and stops the cleanup goroutine. Idempotent.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return nil
	}
	r.stopped = true
	close(r.stop)

	for _, e := range r.entries {
		e.mu.Lock()
		e.removed = true
		if e.pool != nil {
			e.pool.Close()
			e.pool = nil
		}
		e.mu.Unlock()
	}
	r.entries = make(map[string]*entry)

	r.logger.Info("connection registry closed")
	return nil
}

// Stats reports the registry's current state.
type Stats struct {
	TotalPools        int `json:"total_pools"`
	OldestIdleSeconds int `json:"oldest_idle_seconds"`
}

// GetStats is safe to call concurrently.
func (r *Registry) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{}
	now := time.Now()
	for _, e := range r.entries {
		e.mu.Lock()
		if e.pool != nil {
			stats.TotalPools++
			idle := int(now.Sub(e.lastUsed).Seconds())
			if idle > stats.OldestIdleSeconds {
				stats.OldestIdleSeconds = idle
			}
		}
		e.mu.Unlock()
	}

	return stats
}

// entryFor returns the creation-guard entry for a group, allocating one on
// first access. Returns nil after Close.
func (r *Registry) entryFor(groupID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return nil
	}

	e, ok := r.entries[groupID]
	if !ok {
		e = &entry{}
		r.entries[groupID] = e
	}
	return e
}

// openPool decrypts the stored password and dials the group's database.
// Caller holds the entry mutex for this group only.
func (r *Registry) openPool(ctx context.Context, cfg *models.GroupDatabaseConfig) (*pgxpool.Pool, error) {
	password, err := r.cipher.Decrypt(cfg.EncryptedPassword)
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			return nil, fmt.Errorf("%w (group %s)", apperrors.ErrSecretUnreadable, cfg.GroupID)
		}
		return nil, fmt.Errorf("cannot decrypt database password: %w", err)
	}

	desc := &connstring.Descriptor{
		Host: cfg.Host, Port: cfg.Port, Database: cfg.Database, User: cfg.User,
	}

	poolCfg, err := pgxpool.ParseConfig(desc.DSN(password, r.cfg.SSLMode))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrMalformedConnectionString, logging.SanitizeError(err))
	}
	poolCfg.MaxConns = r.cfg.PoolMaxConns
	poolCfg.MinConns = r.cfg.PoolMinConns
	poolCfg.MaxConnIdleTime = r.cfg.IdleTTL
	poolCfg.ConnConfig.ConnectTimeout = r.cfg.ConnectTimeout

	dialCtx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
	defer cancel()

	pool, err := retry.DoWithResult(dialCtx, retry.DefaultConfig(), func() (*pgxpool.Pool, error) {
		return r.dial(dialCtx, poolCfg)
	})
	if err != nil {
		r.logger.Error("failed to open pool for group",
			zap.String("group_id", cfg.GroupID),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDatabaseUnavailable, logging.SanitizeError(err))
	}

	if err := r.ping(dialCtx, pool); err != nil {
		pool.Close()
		r.logger.Error("connection test failed for group",
			zap.String("group_id", cfg.GroupID),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDatabaseUnavailable, logging.SanitizeError(err))
	}

	return pool, nil
}

// cleanupLoop closes pools that have not been used within the idle TTL.
func (r *Registry) cleanupLoop() {
	ticker := time.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.closeIdlePools()
		case <-r.stop:
			return
		}
	}
}

func (r *Registry) closeIdlePools() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}

	now := time.Now()
	for groupID, e := range r.entries {
		e.mu.Lock()
		expired := e.pool != nil && now.Sub(e.lastUsed) > r.cfg.IdleTTL
		if expired {
			e.removed = true
			e.pool.Close()
			e.pool = nil
		}
		e.mu.Unlock()

		if expired {
			delete(r.entries, groupID)
			r.logger.Debug("closed idle pool", zap.String("group_id", groupID))
		}
	}
}

// fingerprint identifies the connection-relevant parts of a config so a
// changed host, user or password replaces the pool. The ciphertext stands in
// for the password; it changes whenever the password is re-encrypted.
func fingerprint(cfg *models.GroupDatabaseConfig, sslMode string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s|%s|%s|%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.EncryptedPassword, sslMode)))
	return hex.EncodeToString(h[:])
}
