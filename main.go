package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"go.uber.org/zap"

	"github.com/grouplog-io/grouplog-engine/pkg/auth"
	"github.com/grouplog-io/grouplog-engine/pkg/config"
	"github.com/grouplog-io/grouplog-engine/pkg/crypto"
	"github.com/grouplog-io/grouplog-engine/pkg/database"
	"github.com/grouplog-io/grouplog-engine/pkg/groupdb"
	"github.com/grouplog-io/grouplog-engine/pkg/handlers"
	"github.com/grouplog-io/grouplog-engine/pkg/logging"
	"github.com/grouplog-io/grouplog-engine/pkg/middleware"
	"github.com/grouplog-io/grouplog-engine/pkg/repositories"
	"github.com/grouplog-io/grouplog-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("engine_store",
			logging.SanitizeConnectionString(cfg.Database.ConnectionString())))

	cipher, err := crypto.NewSecretCipher(cfg.GroupCredentialsKey)
	if err != nil {
		logger.Fatal("Failed to initialize secret cipher", zap.Error(err))
	}

	ctx := context.Background()

	// Engine store migrations run over database/sql; queries run over pgx.
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open engine store for migrations", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = sqlDB.Close()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
		MinConnections: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		logger.Fatal("Failed to connect to engine store", zap.Error(err))
	}
	defer db.Close()

	registry := groupdb.NewRegistry(cipher, groupdb.Config{
		PoolMaxConns:   cfg.GroupDB.PoolMaxConns,
		PoolMinConns:   cfg.GroupDB.PoolMinConns,
		IdleTTL:        cfg.GroupDB.IdleTTL(),
		ConnectTimeout: cfg.GroupDB.ConnectTimeout(),
		SSLMode:        cfg.GroupDB.SSLMode,
	}, logger)
	defer func() { _ = registry.Close() }()

	configRepo := repositories.NewGroupConfigRepository(db)
	membershipRepo := repositories.NewMembershipRepository(db)
	logRepo := repositories.NewLogRepository()

	queryTimeout := cfg.GroupDB.QueryTimeout()
	logService := services.NewLogService(
		configRepo, membershipRepo, logRepo,
		services.RegistryPoolProvider{Registry: registry},
		func(ctx context.Context) (context.Context, context.CancelFunc) {
			return context.WithTimeout(ctx, queryTimeout)
		},
		logger)
	groupDBService := services.NewGroupDatabaseService(configRepo, cipher, registry, registry, logger)

	validator, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to initialize JWKS client", zap.Error(err))
	}
	authMiddleware := auth.NewMiddleware(validator, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, registry, logger).RegisterRoutes(mux)
	handlers.NewLogsHandler(logService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewGroupDatabaseHandler(groupDBService, logger).RegisterRoutes(mux, authMiddleware)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting grouplog-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))

		var serveErr error
		if cfg.TLSCertPath != "" {
			serveErr = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			serveErr = server.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(serveErr))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

// newLogger builds a production JSON logger, or a human-readable one for
// local development.
func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
