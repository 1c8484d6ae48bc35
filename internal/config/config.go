// Package config loads the engine configuration from YAML with environment
// overrides. Missing credentials and connection strings are startup errors,
// not runtime ones.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Registry  RegistryConfig  `yaml:"registry"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	HTTP      HTTPConfig      `yaml:"http"`
	Retry     RetryConfig     `yaml:"retry"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Sync      SyncConfig      `yaml:"sync"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"LOG_PRETTY"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" env:"PG_DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"PG_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"PG_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"PG_CONN_MAX_LIFETIME"`
	QueryTimeout    time.Duration `yaml:"query_timeout" env:"PG_QUERY_TIMEOUT"`
}

// RegistryConfig holds the OAuth2 registry API settings. DocumentsURL
// covers deployments where the document endpoints live on their own
// host; when empty they share BaseURL.
type RegistryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	BaseURL      string `yaml:"base_url" env:"REGISTRY_BASE_URL"`
	DocumentsURL string `yaml:"documents_url" env:"REGISTRY_DOCUMENTS_URL"`
	TokenURL     string `yaml:"token_url" env:"REGISTRY_TOKEN_URL"`
	ClientID     string `yaml:"client_id" env:"REGISTRY_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"REGISTRY_CLIENT_SECRET"`
	Scope        string `yaml:"scope" env:"REGISTRY_SCOPE"`
}

// DocumentsBase returns the base URL for the document endpoints.
func (c RegistryConfig) DocumentsBase() string {
	if c.DocumentsURL != "" {
		return c.DocumentsURL
	}
	return c.BaseURL
}

// ScraperConfig holds the HTML source settings.
type ScraperConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BaseURL     string `yaml:"base_url" env:"SCRAPER_BASE_URL"`
	SearchLimit int    `yaml:"search_limit" env:"SCRAPER_SEARCH_LIMIT"`
}

// HTTPConfig holds outbound HTTP deadlines.
type HTTPConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

// RetryConfig holds the generic backoff policy settings.
type RetryConfig struct {
	MaxRetries  int           `yaml:"max_retries" env:"MAX_RETRIES"`
	BackoffBase time.Duration `yaml:"backoff_base" env:"RETRY_BACKOFF_BASE"`
	BackoffMax  time.Duration `yaml:"backoff_max" env:"RETRY_BACKOFF_MAX"`
	Jitter      bool          `yaml:"jitter" env:"RETRY_JITTER"`
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" env:"CIRCUIT_FAILURE_THRESHOLD"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" env:"CIRCUIT_RECOVERY_TIMEOUT"`
	SuccessThreshold int           `yaml:"success_threshold" env:"CIRCUIT_SUCCESS_THRESHOLD"`
}

// RateLimitConfig holds per-domain minimum request spacing.
type RateLimitConfig struct {
	ScraperInterval   time.Duration `yaml:"scraper_interval" env:"SCRAPER_RATE_INTERVAL"`
	RegistryInterval  time.Duration `yaml:"registry_interval" env:"REGISTRY_RATE_INTERVAL"`
	DocumentsInterval time.Duration `yaml:"documents_interval" env:"DOCUMENTS_RATE_INTERVAL"`
	DefaultInterval   time.Duration `yaml:"default_interval" env:"DEFAULT_RATE_INTERVAL"`
}

// CacheConfig holds record freshness and the optional Redis accelerator.
type CacheConfig struct {
	TTLHours  int    `yaml:"ttl_hours" env:"CACHE_TTL_HOURS"`
	RedisAddr string `yaml:"redis_addr" env:"REDIS_ADDR"`
}

// TTL returns the freshness window as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// SyncConfig holds batch enrichment and annual-report sync settings.
type SyncConfig struct {
	MaxParallelSources int           `yaml:"max_parallel_sources" env:"MAX_PARALLEL_SOURCES"`
	BatchWorkers       int           `yaml:"batch_workers" env:"BATCH_PARALLEL_WORKERS"`
	XBRLBatchSize      int           `yaml:"xbrl_batch_size" env:"VDM_BATCH_SIZE"`
	XBRLConcurrency    int           `yaml:"xbrl_concurrency" env:"VDM_CONCURRENCY"`
	XBRLRequestDelay   time.Duration `yaml:"xbrl_request_delay" env:"VDM_REQUEST_DELAY"`
	YearsBack          int           `yaml:"years_back" env:"SYNC_YEARS_BACK"`
}

// Default returns the shipped configuration. Loading a file or the
// environment overrides it field by field.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    30 * time.Second,
		},
		Registry: RegistryConfig{
			Enabled: true,
			Scope:   "organisationer/read dokument/read",
		},
		Scraper: ScraperConfig{
			Enabled:     true,
			SearchLimit: 10,
		},
		HTTP: HTTPConfig{
			RequestTimeout: 15 * time.Second,
			ConnectTimeout: 5 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries:  3,
			BackoffBase: 1500 * time.Millisecond,
			BackoffMax:  30 * time.Second,
			Jitter:      true,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  60 * time.Second,
			SuccessThreshold: 2,
		},
		RateLimit: RateLimitConfig{
			ScraperInterval:   1 * time.Second,
			RegistryInterval:  500 * time.Millisecond,
			DocumentsInterval: 5 * time.Second,
			DefaultInterval:   1 * time.Second,
		},
		Cache: CacheConfig{
			TTLHours: 24,
		},
		Sync: SyncConfig{
			MaxParallelSources: 2,
			BatchWorkers:       5,
			XBRLBatchSize:      10,
			XBRLConcurrency:    1,
			XBRLRequestDelay:   5 * time.Second,
			YearsBack:          5,
		},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. An empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate enforces the fatal-configuration rules. It is called once at
// startup; commands do not run with a partially valid configuration.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required (set database.dsn or PG_DSN)")
	}
	if c.Registry.Enabled {
		if c.Registry.BaseURL == "" || c.Registry.TokenURL == "" {
			return fmt.Errorf("registry base_url and token_url are required when the registry source is enabled")
		}
		if c.Registry.ClientID == "" || c.Registry.ClientSecret == "" {
			return fmt.Errorf("registry client credentials are required when the registry source is enabled")
		}
	}
	if c.Scraper.Enabled && c.Scraper.BaseURL == "" {
		return fmt.Errorf("scraper base_url is required when the scraper source is enabled")
	}
	if !c.Registry.Enabled && !c.Scraper.Enabled {
		return fmt.Errorf("at least one data source must be enabled")
	}
	if c.Sync.XBRLConcurrency > 1 {
		// Document endpoints must be called sequentially.
		c.Sync.XBRLConcurrency = 1
	}
	if c.Sync.MaxParallelSources < 1 {
		c.Sync.MaxParallelSources = 1
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides field by field.
func applyEnvOverrides(c *Config) {
	setString(&c.Log.Level, "LOG_LEVEL")
	setBool(&c.Log.Pretty, "LOG_PRETTY")

	setString(&c.Database.DSN, "PG_DSN")
	setInt(&c.Database.MaxOpenConns, "PG_MAX_OPEN_CONNS")
	setInt(&c.Database.MaxIdleConns, "PG_MAX_IDLE_CONNS")
	setDuration(&c.Database.ConnMaxLifetime, "PG_CONN_MAX_LIFETIME")
	setDuration(&c.Database.QueryTimeout, "PG_QUERY_TIMEOUT")

	setString(&c.Registry.BaseURL, "REGISTRY_BASE_URL")
	setString(&c.Registry.DocumentsURL, "REGISTRY_DOCUMENTS_URL")
	setString(&c.Registry.TokenURL, "REGISTRY_TOKEN_URL")
	setString(&c.Registry.ClientID, "REGISTRY_CLIENT_ID")
	setString(&c.Registry.ClientSecret, "REGISTRY_CLIENT_SECRET")
	setString(&c.Registry.Scope, "REGISTRY_SCOPE")

	setString(&c.Scraper.BaseURL, "SCRAPER_BASE_URL")
	setInt(&c.Scraper.SearchLimit, "SCRAPER_SEARCH_LIMIT")

	setDuration(&c.HTTP.RequestTimeout, "REQUEST_TIMEOUT")
	setDuration(&c.HTTP.ConnectTimeout, "CONNECT_TIMEOUT")

	setInt(&c.Retry.MaxRetries, "MAX_RETRIES")
	setSeconds(&c.Retry.BackoffBase, "RETRY_BACKOFF_BASE")
	setSeconds(&c.Retry.BackoffMax, "RETRY_BACKOFF_MAX")
	setBool(&c.Retry.Jitter, "RETRY_JITTER")

	setInt(&c.Breaker.FailureThreshold, "CIRCUIT_FAILURE_THRESHOLD")
	setSeconds(&c.Breaker.RecoveryTimeout, "CIRCUIT_RECOVERY_TIMEOUT")
	setInt(&c.Breaker.SuccessThreshold, "CIRCUIT_SUCCESS_THRESHOLD")

	setSeconds(&c.RateLimit.ScraperInterval, "SCRAPER_RATE_INTERVAL")
	setSeconds(&c.RateLimit.RegistryInterval, "REGISTRY_RATE_INTERVAL")
	setSeconds(&c.RateLimit.DocumentsInterval, "DOCUMENTS_RATE_INTERVAL")

	setInt(&c.Cache.TTLHours, "CACHE_TTL_HOURS")
	setString(&c.Cache.RedisAddr, "REDIS_ADDR")

	setInt(&c.Sync.MaxParallelSources, "MAX_PARALLEL_SOURCES")
	setInt(&c.Sync.BatchWorkers, "BATCH_PARALLEL_WORKERS")
	setInt(&c.Sync.XBRLBatchSize, "VDM_BATCH_SIZE")
	setInt(&c.Sync.XBRLConcurrency, "VDM_CONCURRENCY")
	setSeconds(&c.Sync.XBRLRequestDelay, "VDM_REQUEST_DELAY")
	setInt(&c.Sync.YearsBack, "SYNC_YEARS_BACK")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// setSeconds accepts either a duration string ("5s") or a bare number of
// seconds ("1.5"), matching how operators historically set these knobs.
func setSeconds(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(f * float64(time.Second))
	}
}
