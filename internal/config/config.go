// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/procurepro/tbe/internal/bus"
	"github.com/procurepro/tbe/internal/cache"
	"github.com/procurepro/tbe/internal/compliance"
	"github.com/procurepro/tbe/internal/evaluation"
	"github.com/procurepro/tbe/internal/metrics"
	"github.com/procurepro/tbe/internal/pkg/middleware"
	"github.com/procurepro/tbe/internal/ranking"
	"github.com/procurepro/tbe/internal/scoring"
	"github.com/procurepro/tbe/internal/store"
	"github.com/procurepro/tbe/internal/tco"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Organization scoring defaults
	Scoring ScoringConfig `yaml:"scoring"`

	// Recommendation thresholds and disqualification rules
	Recommendation RecommendationConfig `yaml:"recommendation"`

	// TCO defaults
	TCO tco.Config `yaml:"tco"`

	// Outcome cache
	Cache cache.Config `yaml:"cache"`

	// Event bus
	Bus bus.Config `yaml:"bus"`

	// Evaluation record store
	Store StoreConfig `yaml:"store"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"TBE_HOST"`
	Port            int           `yaml:"port" envconfig:"TBE_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"TBE_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"TBE_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"TBE_SHUTDOWN_TIMEOUT"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"TBE_LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"TBE_LOG_FORMAT"`
}

// ScoringConfig holds the defaults applied to requests that leave them out.
type ScoringConfig struct {
	Weights          scoring.Weights `yaml:"weights"`
	PriceMethod      string          `yaml:"price_method" envconfig:"TBE_SCORING_PRICE_METHOD"`
	PriceSource      string          `yaml:"price_source" envconfig:"TBE_SCORING_PRICE_SOURCE"`
	MaxScore         float64         `yaml:"max_score" envconfig:"TBE_SCORING_MAX_SCORE"`
	StrictIncomplete bool            `yaml:"strict_incomplete" envconfig:"TBE_SCORING_STRICT_INCOMPLETE"`
	IncompletePolicy string          `yaml:"incomplete_policy" envconfig:"TBE_SCORING_INCOMPLETE_POLICY"`
	CostErrorsFatal  bool            `yaml:"cost_errors_fatal" envconfig:"TBE_SCORING_COST_ERRORS_FATAL"`
	ComplianceMode   string          `yaml:"compliance_mode" envconfig:"TBE_SCORING_COMPLIANCE_MODE"`
	PartialCredit    bool            `yaml:"partial_credit" envconfig:"TBE_SCORING_PARTIAL_CREDIT"`
	BatchConcurrency int             `yaml:"batch_concurrency" envconfig:"TBE_SCORING_BATCH_CONCURRENCY"`
}

// RecommendationConfig holds ranking settings.
type RecommendationConfig struct {
	Thresholds            ranking.Thresholds `yaml:"thresholds"`
	MinCompliance         float64            `yaml:"min_compliance" envconfig:"TBE_RECOMMENDATION_MIN_COMPLIANCE"`
	AllowMissingMandatory bool               `yaml:"allow_missing_mandatory" envconfig:"TBE_RECOMMENDATION_ALLOW_MISSING_MANDATORY"`
}

// StoreConfig holds evaluation record storage settings.
type StoreConfig struct {
	// Path is the record directory. Empty keeps records in memory.
	Path       string `yaml:"path" envconfig:"TBE_STORE_PATH"`
	MaxRecords int    `yaml:"max_records" envconfig:"TBE_STORE_MAX_RECORDS"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	RateLimit   float64 `yaml:"rate_limit" envconfig:"TBE_RATE_LIMIT"` // requests/s per client, 0 = disabled
	RateBurst   int     `yaml:"rate_burst" envconfig:"TBE_RATE_BURST"`
	CORSOrigins string  `yaml:"cors_origins" envconfig:"TBE_CORS_ORIGINS"`
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	Metrics     metrics.Config `yaml:"metrics"`
	MetricsPath string         `yaml:"metrics_path" envconfig:"TBE_METRICS_PATH"`
}

// Load loads configuration from defaults, an optional YAML file and TBE_*
// environment variables, in increasing priority.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// Default returns the built-in configuration.
func Default() *Config {
	opts := evaluation.DefaultOptions()
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Scoring: ScoringConfig{
			Weights:          scoring.DefaultWeights(),
			PriceMethod:      string(opts.PriceMethod),
			PriceSource:      string(opts.PriceSource),
			MaxScore:         opts.MaxScore,
			IncompletePolicy: string(opts.IncompletePolicy),
			ComplianceMode:   string(compliance.ModePooled),
			BatchConcurrency: 4,
		},
		Recommendation: RecommendationConfig{
			Thresholds: ranking.DefaultThresholds(),
		},
		TCO: tco.DefaultConfig(),
		Cache: cache.Config{
			Type:     "memory",
			Size:     1000,
			TTL:      time.Hour,
			RedisURL: "redis://localhost:6379",
		},
		Bus: bus.Config{
			Type: "memory",
		},
		Store: StoreConfig{
			MaxRecords: 10000,
		},
		Security: SecurityConfig{
			RateBurst:   20,
			CORSOrigins: "*",
		},
		Observability: ObservabilityConfig{
			Metrics:     metrics.Config{Enabled: true, Persistence: "memory"},
			MetricsPath: "/metrics",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	// Scoring validation
	if _, err := scoring.NewWeightConfig(c.Scoring.Weights, nil); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.Defaults().Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Scoring.BatchConcurrency < 1 {
		errs = append(errs, "scoring.batch_concurrency must be positive")
	}
	if m := c.Recommendation.MinCompliance; m < 0 || m > 100 {
		errs = append(errs, "recommendation.min_compliance must be between 0 and 100")
	}
	if err := c.TCO.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	// Cache validation
	validCacheTypes := map[string]bool{"memory": true, "redis": true, "none": true}
	if !validCacheTypes[c.Cache.Type] {
		errs = append(errs, fmt.Sprintf("invalid cache type: %s (must be memory, redis, or none)", c.Cache.Type))
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true, "none": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory, kafka, or none)", c.Bus.Type))
	}
	if c.Bus.Type == "kafka" && len(bus.ParseKafkaBrokers(c.Bus.KafkaBrokers)) == 0 {
		errs = append(errs, "bus.kafka_brokers is required for the kafka bus")
	}

	// Store validation
	if c.Store.MaxRecords < 0 {
		errs = append(errs, "store.max_records must not be negative")
	}

	// Security validation
	if c.Security.RateLimit < 0 {
		errs = append(errs, "security.rate_limit must not be negative")
	}

	// Observability validation
	validPersistence := map[string]bool{"": true, "memory": true, "redis": true}
	if !validPersistence[c.Observability.Metrics.Persistence] {
		errs = append(errs, fmt.Sprintf("invalid metrics persistence: %s (must be memory or redis)", c.Observability.Metrics.Persistence))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Defaults materializes the organization default evaluation options. Each
// call builds a fresh value.
func (c *Config) Defaults() evaluation.Options {
	th := c.Recommendation.Thresholds
	cc := compliance.DefaultConfig()
	if c.Scoring.ComplianceMode != "" {
		cc.Mode = compliance.Mode(c.Scoring.ComplianceMode)
	}
	cc.PartialCredit = c.Scoring.PartialCredit
	strict, fatal := c.Scoring.StrictIncomplete, c.Scoring.CostErrorsFatal
	minCompliance, allowMissing := c.Recommendation.MinCompliance, c.Recommendation.AllowMissingMandatory

	return evaluation.Options{
		StrictIncomplete:      &strict,
		IncompletePolicy:      evaluation.IncompletePolicy(c.Scoring.IncompletePolicy),
		CostErrorsFatal:       &fatal,
		PriceSource:           evaluation.PriceSource(c.Scoring.PriceSource),
		PriceMethod:           scoring.PriceMethod(c.Scoring.PriceMethod),
		MaxScore:              c.Scoring.MaxScore,
		MinCompliance:         &minCompliance,
		AllowMissingMandatory: &allowMissing,
		Thresholds:            &th,
		Compliance:            &cc,
	}
}

// ServiceConfig returns the evaluation service configuration.
func (c *Config) ServiceConfig() evaluation.Config {
	return evaluation.Config{
		Weights:          c.Scoring.Weights,
		TCO:              c.TCO,
		Options:          c.Defaults(),
		BatchConcurrency: c.Scoring.BatchConcurrency,
	}
}

// StoreServiceConfig returns the record store configuration.
func (c *Config) StoreServiceConfig() store.ServiceConfig {
	return store.ServiceConfig{StoragePath: c.Store.Path, MaxRecords: c.Store.MaxRecords}
}

// RateLimiterConfig returns the HTTP rate limiter configuration, or false
// when rate limiting is disabled.
func (c *Config) RateLimiterConfig() (middleware.RateLimiterConfig, bool) {
	if c.Security.RateLimit <= 0 {
		return middleware.RateLimiterConfig{}, false
	}
	rl := middleware.DefaultRateLimiterConfig()
	rl.RequestsPerSecond = c.Security.RateLimit
	if c.Security.RateBurst > 0 {
		rl.Burst = c.Security.RateBurst
	}
	return rl, true
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
