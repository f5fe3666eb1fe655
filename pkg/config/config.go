package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for veilcheck-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys) must only come from environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL) for the alias store and
	// classification cache.
	Database DatabaseConfig `yaml:"database"`

	// AI classification provider configuration.
	Provider ProviderConfig `yaml:"provider"`

	// Local classification thresholds and parallelism.
	Classifier ClassifierConfig `yaml:"classifier"`

	// Adaptive batch scheduler tuning.
	Batch BatchConfig `yaml:"batch"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"veilcheck"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"veilcheck_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// ProviderConfig holds AI classification provider settings.
// Kind selects the client implementation; "disabled" turns AI fallback
// off entirely and routes edge cases to the conservative policy.
type ProviderConfig struct {
	Kind           string  `yaml:"kind" env:"PROVIDER_KIND" env-default:"openai"` // openai | anthropic | disabled
	Endpoint       string  `yaml:"endpoint" env:"PROVIDER_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model          string  `yaml:"model" env:"PROVIDER_MODEL" env-default:"gpt-4o-mini"`
	APIKey         string  `yaml:"-" env:"PROVIDER_API_KEY"` // Secret - not in YAML
	Temperature    float64 `yaml:"temperature" env:"PROVIDER_TEMPERATURE" env-default:"0.1"`
	TimeoutSeconds int     `yaml:"timeout_seconds" env:"PROVIDER_TIMEOUT_SECONDS" env-default:"120"`
}

// Enabled reports whether AI fallback should be attempted at all.
func (p *ProviderConfig) Enabled() bool {
	return p.Kind != "" && p.Kind != "disabled"
}

// Timeout returns the overall provider request timeout.
func (p *ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// ClassifierConfig holds local classification thresholds.
type ClassifierConfig struct {
	// LocalConfidenceThreshold is the minimum winning confidence for a
	// field to resolve locally. Intentionally permissive so most fields
	// avoid AI fallback.
	LocalConfidenceThreshold float64 `yaml:"local_confidence_threshold" env:"LOCAL_CONFIDENCE_THRESHOLD" env-default:"0.5"`
	// FuzzyThreshold is the minimum string similarity for fuzzy matches.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" env:"FUZZY_THRESHOLD" env-default:"0.8"`
	// CacheCoverageThreshold is the cached-field coverage ratio at which
	// the orchestrator short-circuits the rest of the pipeline.
	CacheCoverageThreshold float64 `yaml:"cache_coverage_threshold" env:"CACHE_COVERAGE_THRESHOLD" env-default:"0.85"`
	// TableParallelThreshold is the table count above which local
	// classification fans out across tables.
	TableParallelThreshold int `yaml:"table_parallel_threshold" env:"TABLE_PARALLEL_THRESHOLD" env-default:"2"`
	// MaxTableWorkers bounds the per-table classification pool.
	MaxTableWorkers int `yaml:"max_table_workers" env:"MAX_TABLE_WORKERS" env-default:"4"`
	// LocalCoverageTarget and AIUsageTarget are observability targets
	// surfaced as pass/fail in the session report, never enforced.
	LocalCoverageTarget float64 `yaml:"local_coverage_target" env:"LOCAL_COVERAGE_TARGET" env-default:"0.95"`
	AIUsageTarget       float64 `yaml:"ai_usage_target" env:"AI_USAGE_TARGET" env-default:"0.10"`
	// EnableCache toggles fingerprint cache lookups and stores.
	EnableCache bool `yaml:"enable_cache" env:"ENABLE_CACHE" env-default:"true"`
	// EnableAI toggles AI fallback for edge cases.
	EnableAI bool `yaml:"enable_ai" env:"ENABLE_AI" env-default:"true"`
}

// BatchConfig holds adaptive batch scheduler tuning.
type BatchConfig struct {
	BaseBatchSize      int `yaml:"base_batch_size" env:"BATCH_BASE_SIZE" env-default:"10"`
	MinBatchSize       int `yaml:"min_batch_size" env:"BATCH_MIN_SIZE" env-default:"5"`
	MaxBatchSize       int `yaml:"max_batch_size" env:"BATCH_MAX_SIZE" env-default:"50"`
	MaxRetries         int `yaml:"max_retries" env:"BATCH_MAX_RETRIES" env-default:"3"`
	RetryDelayMillis   int `yaml:"retry_delay_ms" env:"BATCH_RETRY_DELAY_MS" env-default:"500"`
	BatchTimeoutSecs   int `yaml:"batch_timeout_seconds" env:"BATCH_TIMEOUT_SECONDS" env-default:"30"`
	ParallelThreshold  int `yaml:"parallel_threshold" env:"BATCH_PARALLEL_THRESHOLD" env-default:"4"`
	MaxParallelBatches int `yaml:"max_parallel_batches" env:"BATCH_MAX_PARALLEL" env-default:"4"`
	MinFieldsParallel  int `yaml:"min_fields_parallel" env:"BATCH_MIN_FIELDS_PARALLEL" env-default:"50"`
}

// RetryDelay returns the fixed per-batch retry delay.
func (b *BatchConfig) RetryDelay() time.Duration {
	return time.Duration(b.RetryDelayMillis) * time.Millisecond
}

// BatchTimeout returns the per-batch call timeout. Kept shorter than the
// provider request timeout so one slow batch cannot starve parallel peers.
func (b *BatchConfig) BatchTimeout() time.Duration {
	return time.Duration(b.BatchTimeoutSecs) * time.Second
}

// Load reads configuration from the given YAML path with environment
// variable overrides. The version parameter is injected at build time.
func Load(path, version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv reads configuration from environment variables only, for
// contexts without a config file (tests, containers).
func LoadFromEnv(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Batch.MinBatchSize < 1 {
		return fmt.Errorf("min_batch_size must be >= 1, got %d", c.Batch.MinBatchSize)
	}
	if c.Batch.MaxBatchSize < c.Batch.MinBatchSize {
		return fmt.Errorf("max_batch_size (%d) must be >= min_batch_size (%d)",
			c.Batch.MaxBatchSize, c.Batch.MinBatchSize)
	}
	if c.Classifier.FuzzyThreshold < 0 || c.Classifier.FuzzyThreshold > 1 {
		return fmt.Errorf("fuzzy_threshold must be in [0,1], got %v", c.Classifier.FuzzyThreshold)
	}
	if c.Classifier.CacheCoverageThreshold < 0 || c.Classifier.CacheCoverageThreshold > 1 {
		return fmt.Errorf("cache_coverage_threshold must be in [0,1], got %v", c.Classifier.CacheCoverageThreshold)
	}
	switch c.Provider.Kind {
	case "openai", "anthropic", "disabled":
	default:
		return fmt.Errorf("provider kind must be openai, anthropic or disabled, got %q", c.Provider.Kind)
	}
	return nil
}
