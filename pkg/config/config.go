// Package config loads engine configuration from config.yaml with
// environment variable overrides. Secrets (passwords, keys) come only from
// the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for fedsearch-engine.
// Environment variables always override YAML values for fields that
// support both. Secrets are yaml:"-" and must come from the environment.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8460"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Engine metadata store (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Result cache (Redis)
	Redis RedisConfig `yaml:"redis"`

	// Datasource pooling and health probing
	Datasource DatasourceConfig `yaml:"datasource"`

	// Search orchestration
	Search SearchConfig `yaml:"search"`

	// AI query optimizer (OpenAI-compatible endpoint)
	AI AIConfig `yaml:"ai"`

	// Encryption key for datasource credentials. Must be a 32-byte key,
	// base64 encoded. Generate with: openssl rand -base64 32
	// The server fails to start without it.
	CredentialsKey string `yaml:"-" env:"CREDENTIALS_KEY"`
}

// DatabaseConfig holds PostgreSQL settings for the engine metadata store.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"fedsearch"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"fedsearch_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis settings for the result cache. An empty host
// disables caching; the engine then treats every lookup as a miss.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// DatasourceConfig holds per-source pooling and health settings.
type DatasourceConfig struct {
	// PoolMaxConns is the maximum number of connections per source pool.
	PoolMaxConns int `yaml:"pool_max_conns" env:"DATASOURCE_POOL_MAX_CONNS" env-default:"10"`
	// PoolMaxIdle is the number of idle connections kept per pool.
	PoolMaxIdle int `yaml:"pool_max_idle" env:"DATASOURCE_POOL_MAX_IDLE" env-default:"2"`
	// AcquireTimeoutMs bounds how long Acquire blocks before PoolExhausted.
	AcquireTimeoutMs int `yaml:"acquire_timeout_ms" env:"DATASOURCE_ACQUIRE_TIMEOUT_MS" env-default:"3000"`
	// ConnMaxLifetimeMinutes recycles connections older than this.
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes" env:"DATASOURCE_CONN_MAX_LIFETIME_MINUTES" env-default:"30"`
	// ConnMaxIdleMinutes closes connections idle longer than this.
	ConnMaxIdleMinutes int `yaml:"conn_max_idle_minutes" env:"DATASOURCE_CONN_MAX_IDLE_MINUTES" env-default:"5"`
	// HealthWindowSize is the number of observations in the rolling window.
	HealthWindowSize int `yaml:"health_window_size" env:"DATASOURCE_HEALTH_WINDOW_SIZE" env-default:"20"`
	// ProbeIntervalSeconds is how often unhealthy sources are re-probed.
	ProbeIntervalSeconds int `yaml:"probe_interval_seconds" env:"DATASOURCE_PROBE_INTERVAL_SECONDS" env-default:"30"`
}

// AcquireTimeout returns the acquire timeout as a duration.
func (c *DatasourceConfig) AcquireTimeout() time.Duration {
	return time.Duration(c.AcquireTimeoutMs) * time.Millisecond
}

// ProbeInterval returns the probe interval as a duration.
func (c *DatasourceConfig) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSeconds) * time.Second
}

// SearchConfig holds orchestrator settings.
type SearchConfig struct {
	// MaxConcurrency bounds parallel source dispatch. Values above the
	// hard ceiling are capped at startup.
	MaxConcurrency int `yaml:"max_concurrency" env:"SEARCH_MAX_CONCURRENCY" env-default:"20"`
	// OverallDeadlineSeconds is the per-request deadline.
	OverallDeadlineSeconds int `yaml:"overall_deadline_seconds" env:"SEARCH_OVERALL_DEADLINE_SECONDS" env-default:"30"`
	// SourceTimeoutSeconds bounds each statement execution.
	SourceTimeoutSeconds int `yaml:"source_timeout_seconds" env:"SEARCH_SOURCE_TIMEOUT_SECONDS" env-default:"30"`
	// DefaultLimit applies when a query omits its limit.
	DefaultLimit int `yaml:"default_limit" env:"SEARCH_DEFAULT_LIMIT" env-default:"20"`
	// MaxLimit caps the per-request result page size.
	MaxLimit int `yaml:"max_limit" env:"SEARCH_MAX_LIMIT" env-default:"200"`
	// SnippetLength is the width of extracted snippets in bytes.
	SnippetLength int `yaml:"snippet_length" env:"SEARCH_SNIPPET_LENGTH" env-default:"200"`
	// SemanticBlendWeight is the fixed weight given to AI confidence when
	// blending semantic-mode relevance scores. 0 disables blending.
	SemanticBlendWeight float64 `yaml:"semantic_blend_weight" env:"SEARCH_SEMANTIC_BLEND_WEIGHT" env-default:"0.3"`
}

// HardConcurrencyCeiling protects the process from runaway fan-out
// regardless of configuration.
const HardConcurrencyCeiling = 20

// OverallDeadline returns the request deadline as a duration.
func (c *SearchConfig) OverallDeadline() time.Duration {
	return time.Duration(c.OverallDeadlineSeconds) * time.Second
}

// SourceTimeout returns the per-statement timeout as a duration.
func (c *SearchConfig) SourceTimeout() time.Duration {
	return time.Duration(c.SourceTimeoutSeconds) * time.Second
}

// AIConfig holds the query optimizer endpoint. An empty endpoint disables
// semantic rewriting; semantic queries then run against the original text.
type AIConfig struct {
	Endpoint       string `yaml:"endpoint" env:"AI_ENDPOINT" env-default:""`
	Model          string `yaml:"model" env:"AI_MODEL" env-default:"gpt-4o-mini"`
	EmbeddingModel string `yaml:"embedding_model" env:"AI_EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	APIKey         string `yaml:"-" env:"AI_API_KEY"` // Secret - not in YAML
	// TimeoutSeconds bounds each optimizer call; on expiry the orchestrator
	// falls back to the unmodified query.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"AI_TIMEOUT_SECONDS" env-default:"5"`
	// MinConfidence is the threshold below which a rewrite is discarded.
	MinConfidence float64 `yaml:"min_confidence" env:"AI_MIN_CONFIDENCE" env-default:"0.5"`
}

// IsAvailable returns true if the optimizer is configured.
func (c *AIConfig) IsAvailable() bool {
	return c.Endpoint != ""
}

// Timeout returns the optimizer call timeout as a duration.
func (c *AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads configuration from config.yaml with environment overrides.
// The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.CredentialsKey == "" {
		return fmt.Errorf("CREDENTIALS_KEY must be set")
	}
	if c.Search.MaxConcurrency <= 0 || c.Search.MaxConcurrency > HardConcurrencyCeiling {
		c.Search.MaxConcurrency = HardConcurrencyCeiling
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 20
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		c.Search.MaxLimit = c.Search.DefaultLimit
	}
	if c.Search.SemanticBlendWeight < 0 || c.Search.SemanticBlendWeight > 1 {
		return fmt.Errorf("semantic_blend_weight must be in [0,1], got %f", c.Search.SemanticBlendWeight)
	}
	return nil
}
