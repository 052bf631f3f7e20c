// Package config reads server settings from the environment, optionally
// seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds server settings. Keys are the lower-cased environment
// variable names.
type Config struct {
	Env      string `mapstructure:"app_env"`   // development | production
	Port     string `mapstructure:"app_port"`
	LogLevel string `mapstructure:"log_level"`

	Storage     string `mapstructure:"storage"`      // postgres | memory
	DatabaseURL string `mapstructure:"database_url"` // required for postgres
	DBMaxConns  int32  `mapstructure:"db_max_conns"`

	// ReferencesFile is a YAML fixture loaded into the reference directory.
	// Required for memory storage; with postgres it is upserted at startup when set.
	ReferencesFile string `mapstructure:"references_file"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	MetricsEnabled bool `mapstructure:"metrics_enabled"` // serves GET /metrics

	// AuditCompressThreshold is the journal snapshot size in bytes above
	// which snapshots are zstd-compressed.
	AuditCompressThreshold int `mapstructure:"audit_compress_threshold"`
}

// Development reports whether the server runs in development mode.
func (c Config) Development() bool {
	return c.Env == "development"
}

// Load reads .env files (missing files are skipped) and then the environment.
// Variables already set in the environment win over .env values.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if err := bindEnvVariables(v); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, cfg.Validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "development")
	v.SetDefault("app_port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("storage", StoragePostgres)
	v.SetDefault("database_url", "")
	v.SetDefault("db_max_conns", 25)
	v.SetDefault("references_file", "")
	v.SetDefault("shutdown_timeout", 30*time.Second)
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("audit_compress_threshold", 4*1024)
}

var envKeys = []string{
	"APP_ENV",
	"APP_PORT",
	"LOG_LEVEL",
	"STORAGE",
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"REFERENCES_FILE",
	"SHUTDOWN_TIMEOUT",
	"METRICS_ENABLED",
	"AUDIT_COMPRESS_THRESHOLD",
}

func bindEnvVariables(v *viper.Viper) error {
	for _, env := range envKeys {
		if err := v.BindEnv(strings.ToLower(env), env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}
	return nil
}

// Validate checks that the settings are consistent.
func (c Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for postgres storage")
		}
	case StorageMemory:
		if c.ReferencesFile == "" {
			return errors.New("REFERENCES_FILE is required for memory storage")
		}
	default:
		return fmt.Errorf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage)
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}
