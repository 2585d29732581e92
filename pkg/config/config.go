package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for grouplog-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8088"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Engine store configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Group database connection management configuration
	GroupDB GroupDBConfig `yaml:"group_db"`

	// Credential encryption key for group database passwords.
	// Either a 32-byte key, base64 encoded (generate with: openssl rand -base64 32),
	// or a passphrase of any length. Server will fail to start if this is not set.
	GroupCredentialsKey string `yaml:"-" env:"GROUP_CREDENTIALS_KEY"` // Secret - not in YAML
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// DatabaseConfig holds the engine's own PostgreSQL store configuration.
// This is where group database configs and memberships live, not the
// per-group log databases themselves.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"grouplog"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"grouplog_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// GroupDBConfig holds settings for pools opened against group log databases.
type GroupDBConfig struct {
	// ConnectionTTLMinutes is how long idle group connections are kept alive.
	ConnectionTTLMinutes int `yaml:"connection_ttl_minutes" env:"GROUPDB_CONNECTION_TTL_MINUTES" env-default:"5"`
	// ConnectTimeoutSeconds bounds dialing a group database.
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds" env:"GROUPDB_CONNECT_TIMEOUT_SECONDS" env-default:"10"`
	// QueryTimeoutSeconds bounds any single query against a group database.
	QueryTimeoutSeconds int `yaml:"query_timeout_seconds" env:"GROUPDB_QUERY_TIMEOUT_SECONDS" env-default:"30"`
	// PoolMaxConns is the maximum number of connections per group pool.
	PoolMaxConns int32 `yaml:"pool_max_conns" env:"GROUPDB_POOL_MAX_CONNS" env-default:"5"`
	// PoolMinConns is the minimum number of connections per group pool.
	PoolMinConns int32 `yaml:"pool_min_conns" env:"GROUPDB_POOL_MIN_CONNS" env-default:"1"`
	// SSLMode is the sslmode used when connecting to group databases.
	SSLMode string `yaml:"ssl_mode" env:"GROUPDB_SSLMODE" env-default:"require"`
}

// IdleTTL returns the connection TTL as a duration.
func (c *GroupDBConfig) IdleTTL() time.Duration {
	return time.Duration(c.ConnectionTTLMinutes) * time.Minute
}

// ConnectTimeout returns the dial timeout as a duration.
func (c *GroupDBConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// QueryTimeout returns the query timeout as a duration.
func (c *GroupDBConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// Environment variables override YAML values. Secrets (PGPASSWORD,
// GROUP_CREDENTIALS_KEY) must come from environment variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	cfg.Auth.JWKSEndpoints = parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate rejects configurations the server cannot safely start with.
func (c *Config) validate() error {
	if c.GroupCredentialsKey == "" {
		return fmt.Errorf("GROUP_CREDENTIALS_KEY must be set; stored group database passwords cannot be decrypted without it")
	}

	if err := c.validateTLS(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}

	if c.Auth.EnableVerification && len(c.Auth.JWKSEndpoints) == 0 {
		return fmt.Errorf("auth verification is enabled but no JWKS endpoints are configured")
	}

	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL connection string for the engine store.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
