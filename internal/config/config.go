// Package config loads the PowerAuth server's runtime configuration from
// environment variables (optionally sourced from a .env file), the way
// cmd/appserver loads its configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// PrivateKeyEncryptionMode controls how the server's private key material is
// protected at rest.
type PrivateKeyEncryptionMode string

const (
	// NoEncryption stores server private keys in the clear. Only suitable for
	// local development.
	NoEncryption PrivateKeyEncryptionMode = "NO_ENCRYPTION"
	// AESHMACEncryption wraps server private keys with AES-256-GCM keyed by a
	// value derived (HMAC-SHA256) from masterDbEncryptionKey and the owning
	// user ID and activation ID.
	AESHMACEncryption PrivateKeyEncryptionMode = "AES_HMAC"
)

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `env:"SERVER_HOST"`
	Port int    `env:"SERVER_PORT"`
}

// DatabaseConfig controls persistence.
type DatabaseConfig struct {
	DSN             string `env:"DATABASE_DSN"`
	MaxOpenConns    int    `env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `env:"DATABASE_CONN_MAX_LIFETIME_SECONDS"`
	MigrateOnStart  bool   `env:"DATABASE_MIGRATE_ON_START"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"`
	Format string `env:"LOG_FORMAT"`
}

// CacheConfig controls the ApplicationVersion read-mostly cache (MasterKeyPair is not cached).
type CacheConfig struct {
	RedisAddr string `env:"CACHE_REDIS_ADDR"`
	TTLSecs   int    `env:"CACHE_TTL_SECONDS"`
}

// ActivationConfig holds the activation-lifecycle options of §6.
type ActivationConfig struct {
	ValidityMilliseconds             int64 `env:"POWERAUTH_ACTIVATION_VALIDITY_MS"`
	GenerateActivationIDIterations   int   `env:"POWERAUTH_ACTIVATION_ID_ITERATIONS"`
	GenerateShortIDIterations        int   `env:"POWERAUTH_ACTIVATION_SHORT_ID_ITERATIONS"`
}

// Validity returns the configured activation validity window as a
// time.Duration, for computing timestampActivationExpire at init (§4.5
// "Default timestampActivationExpire = now + 5 minutes").
func (a ActivationConfig) Validity() time.Duration {
	return time.Duration(a.ValidityMilliseconds) * time.Millisecond
}

// SignatureConfig holds signature-verification options of §6.
type SignatureConfig struct {
	MaxFailedAttempts    int64 `env:"POWERAUTH_SIGNATURE_MAX_FAILED_ATTEMPTS"`
	ValidationLookahead  int   `env:"POWERAUTH_SIGNATURE_VALIDATION_LOOKAHEAD"`
}

// SecurityConfig controls server-wide trust boundaries and key protection.
type SecurityConfig struct {
	RestrictAccess           bool                     `env:"POWERAUTH_RESTRICT_ACCESS"`
	ServerPrivateKeyEncMode  PrivateKeyEncryptionMode `env:"POWERAUTH_SERVER_PRIVATE_KEY_ENCRYPTION"`
	MasterDBEncryptionKeyHex string                   `env:"POWERAUTH_MASTER_DB_ENCRYPTION_KEY"`
}

// SweepConfig controls the periodic activation-expiration sweep.
type SweepConfig struct {
	Interval string `env:"POWERAUTH_SWEEP_INTERVAL"`
}

// Config is the top-level configuration structure for the PowerAuth server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Logging    LoggingConfig
	Cache      CacheConfig
	Activation ActivationConfig
	Signature  SignatureConfig
	Security   SecurityConfig
	Sweep      SweepConfig
}

// New returns a configuration populated with the spec's documented defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Cache: CacheConfig{
			TTLSecs: 300,
		},
		Activation: ActivationConfig{
			ValidityMilliseconds:           300000,
			GenerateActivationIDIterations: 10,
			GenerateShortIDIterations:      10,
		},
		Signature: SignatureConfig{
			MaxFailedAttempts:   5,
			ValidationLookahead: 20,
		},
		Security: SecurityConfig{
			RestrictAccess:          false,
			ServerPrivateKeyEncMode: NoEncryption,
		},
		Sweep: SweepConfig{
			Interval: "60s",
		},
	}
}

// Load loads configuration from a .env file (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode returns an error when no tagged fields are present in the
		// environment; treat that case as "no overrides" so local runs work
		// without exporting vars.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)

	return cfg, nil
}

// applyDatabaseURLOverride lets DATABASE_URL override a DSN set via
// DATABASE_DSN, matching common Postgres hosting conventions.
func applyDatabaseURLOverride(cfg *Config) {
	if cfg == nil {
		return
	}
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}
}
