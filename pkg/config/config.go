package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for rowsync-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// Database configuration (PostgreSQL backing store)
	Database DatabaseConfig `yaml:"database"`

	// Glide API client configuration
	Glide GlideConfig `yaml:"glide"`

	// Sync engine configuration
	Sync SyncConfig `yaml:"sync"`

	// CredentialsKey encrypts stored Glide API keys at rest. Secret - not
	// in YAML. When empty, keys are stored and read as plaintext.
	CredentialsKey string `yaml:"-" env:"API_KEY_ENCRYPTION_KEY"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"rowsync"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"rowsync_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// GlideConfig holds settings for the Glide table API client.
type GlideConfig struct {
	// BaseURL is the Glide API endpoint prefix.
	BaseURL string `yaml:"base_url" env:"GLIDE_BASE_URL" env-default:"https://api.glideapp.io/api"`
	// MaxRetries is the retry ceiling for rate-limited or failed page fetches.
	MaxRetries int `yaml:"max_retries" env:"GLIDE_MAX_RETRIES" env-default:"5"`
	// RetryBaseDelayMS is the initial backoff delay in milliseconds;
	// it doubles on each attempt.
	RetryBaseDelayMS int `yaml:"retry_base_delay_ms" env:"GLIDE_RETRY_BASE_DELAY_MS" env-default:"1000"`
	// PageDelayMS is the courtesy delay between successful page fetches.
	PageDelayMS int `yaml:"page_delay_ms" env:"GLIDE_PAGE_DELAY_MS" env-default:"500"`
	// PageLimit is the maximum number of rows requested per page.
	PageLimit int `yaml:"page_limit" env:"GLIDE_PAGE_LIMIT" env-default:"1000"`
}

// SyncConfig holds sync engine tuning.
type SyncConfig struct {
	// BatchSizeLimit caps the rows per upsert statement. Kept below the
	// backing store's own per-request ceiling.
	BatchSizeLimit int `yaml:"batch_size_limit" env:"SYNC_BATCH_SIZE_LIMIT" env-default:"450"`
	// Schedule is an optional cron expression; when set, every enabled
	// glide-to-supabase mapping is synced on that schedule.
	Schedule string `yaml:"schedule" env:"SYNC_SCHEDULE" env-default:""`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// A missing config.yaml is not an error; the environment alone is enough.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Sync.BatchSizeLimit <= 0 {
		return fmt.Errorf("sync.batch_size_limit must be positive, got %d", c.Sync.BatchSizeLimit)
	}
	if c.Glide.MaxRetries < 0 {
		return fmt.Errorf("glide.max_retries must not be negative, got %d", c.Glide.MaxRetries)
	}
	if _, err := url.Parse(c.Glide.BaseURL); err != nil {
		return fmt.Errorf("glide.base_url is not a valid URL: %w", err)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
