// Package config defines all configuration structures for TaxFlow. No I/O or
// parsing logic lives in this file, only plain data types and validation.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN renders the connection URL understood by pgx and golang-migrate.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds Kafka producer/consumer parameters.
type KafkaConfig struct {
	Brokers           []string      `mapstructure:"brokers"`
	GroupID           string        `mapstructure:"group_id"`
	NotificationTopic string        `mapstructure:"notification_topic"`
	ReceiptTopic      string        `mapstructure:"receipt_topic"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	ProducerRetries   int           `mapstructure:"producer_retries"`
	BatchSize         int           `mapstructure:"batch_size"`
}

// MinIOConfig holds object-storage parameters for the document archive.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level       string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format      string   `mapstructure:"format"` // "json" | "console"
	OutputPaths []string `mapstructure:"output_paths"`
}

// ToLogging converts the section into the logger's own config type.
func (l LogConfig) ToLogging() logging.LogConfig {
	return logging.LogConfig{Level: l.Level, Format: l.Format, OutputPaths: l.OutputPaths}
}

// AuthConfig holds bearer-token verification parameters. Tokens are issued
// elsewhere; TaxFlow only verifies them.
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`
	// JWKSURL selects RS256 verification against an OIDC provider's key set
	// instead of the shared secret.
	JWKSURL string `mapstructure:"jwks_url"`
	// RBAC maps token roles to read/write permissions.
	RBAC bool `mapstructure:"rbac"`
}

// ReasoningConfig points at the advisory reasoning service.
type ReasoningConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PlausibilityConfig holds the global rule constants. RulesFile optionally
// names a YAML registry with per-form and per-jurisdiction overrides.
type PlausibilityConfig struct {
	DeviationThreshold   float64 `mapstructure:"deviation_threshold"`
	ConsistencyTolerance float64 `mapstructure:"consistency_tolerance"`
	WithholdingCeiling   float64 `mapstructure:"withholding_ceiling"`
	RulesFile            string  `mapstructure:"rules_file"`
}

// FilingConfig tunes transitions and batch processing.
type FilingConfig struct {
	BatchConcurrency int           `mapstructure:"batch_concurrency"`
	MaxBatchSize     int           `mapstructure:"max_batch_size"`
	ConflictRetries  int           `mapstructure:"conflict_retries"`
	LockTTL          time.Duration `mapstructure:"lock_ttl"`
}

// HealthConfig holds the health aggregator thresholds.
type HealthConfig struct {
	CacheTTL                 time.Duration `mapstructure:"cache_ttl"`
	RecentWindow             time.Duration `mapstructure:"recent_window"`
	FailureWindow            time.Duration `mapstructure:"failure_window"`
	FailureThreshold         int           `mapstructure:"failure_threshold"`
	ValidationIssueThreshold int           `mapstructure:"validation_issue_threshold"`
}

// DeadlineConfig holds the deadline engine parameters.
type DeadlineConfig struct {
	DefinitionsFile string        `mapstructure:"definitions_file"`
	HorizonDays     int           `mapstructure:"horizon_days"`
	LookbackYears   int           `mapstructure:"lookback_years"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// WorkerConfig holds the receipt-consumer parameters.
type WorkerConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	MinIO        MinIOConfig        `mapstructure:"minio"`
	Log          LogConfig          `mapstructure:"log"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Reasoning    ReasoningConfig    `mapstructure:"reasoning"`
	Plausibility PlausibilityConfig `mapstructure:"plausibility"`
	Filing       FilingConfig       `mapstructure:"filing"`
	Health       HealthConfig       `mapstructure:"health"`
	Deadlines    DeadlineConfig     `mapstructure:"deadlines"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Worker       WorkerConfig       `mapstructure:"worker"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config and
// returns the first error encountered.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	// Database
	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("config: database.max_conns must be ≥ 1, got %d", c.Database.MaxConns)
	}

	// Redis
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be ≥ 0, got %d", c.Redis.DB)
	}

	// Kafka
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}

	// Auth
	if c.Auth.Enabled && c.Auth.JWTSecret == "" && c.Auth.JWKSURL == "" {
		return fmt.Errorf("config: auth.jwt_secret or auth.jwks_url is required when auth is enabled")
	}

	// Reasoning
	if c.Reasoning.Enabled && c.Reasoning.BaseURL == "" {
		return fmt.Errorf("config: reasoning.base_url is required when reasoning is enabled")
	}
	if c.Reasoning.Timeout <= 0 {
		return fmt.Errorf("config: reasoning.timeout must be positive")
	}

	// Plausibility
	if c.Plausibility.DeviationThreshold <= 0 || c.Plausibility.DeviationThreshold > 10 {
		return fmt.Errorf("config: plausibility.deviation_threshold %.2f is out of range (0, 10]", c.Plausibility.DeviationThreshold)
	}
	if c.Plausibility.ConsistencyTolerance < 0 {
		return fmt.Errorf("config: plausibility.consistency_tolerance must be ≥ 0")
	}
	if c.Plausibility.WithholdingCeiling <= 0 || c.Plausibility.WithholdingCeiling > 1 {
		return fmt.Errorf("config: plausibility.withholding_ceiling %.2f is out of range (0, 1]", c.Plausibility.WithholdingCeiling)
	}

	// Filing
	if c.Filing.BatchConcurrency < 1 {
		return fmt.Errorf("config: filing.batch_concurrency must be ≥ 1, got %d", c.Filing.BatchConcurrency)
	}
	if c.Filing.MaxBatchSize < 1 {
		return fmt.Errorf("config: filing.max_batch_size must be ≥ 1, got %d", c.Filing.MaxBatchSize)
	}

	// Deadlines
	if c.Deadlines.HorizonDays < 1 {
		return fmt.Errorf("config: deadlines.horizon_days must be ≥ 1, got %d", c.Deadlines.HorizonDays)
	}
	if c.Deadlines.LookbackYears < 0 {
		return fmt.Errorf("config: deadlines.lookback_years must be ≥ 0, got %d", c.Deadlines.LookbackYears)
	}

	// Worker
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency must be ≥ 1, got %d", c.Worker.Concurrency)
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}
