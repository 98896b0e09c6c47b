package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort            = 8080
	DefaultServerMode            = "debug"
	DefaultServerReadTimeout     = 15 * time.Second
	DefaultServerWriteTimeout    = 30 * time.Second
	DefaultServerMaxBodySize     = 4 << 20
	DefaultServerShutdownTimeout = 20 * time.Second

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBUser     = "taxflow"
	DefaultDBName     = "taxflow"
	DefaultDBMaxConns = 25

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisPoolSize  = 20
	DefaultRedisTTL       = 5 * time.Minute
	DefaultRedisKeyPrefix = "taxflow:"

	DefaultKafkaBroker            = "localhost:9092"
	DefaultKafkaGroupID           = "taxflow-worker"
	DefaultKafkaNotificationTopic = "notification.send"
	DefaultKafkaReceiptTopic      = "authority.receipt"
	DefaultKafkaWriteTimeout      = 10 * time.Second
	DefaultKafkaProducerRetries   = 3
	DefaultKafkaBatchSize         = 100

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "taxflow-documents"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultReasoningTimeout = 8 * time.Second

	// Plausibility constants: 30 % year-over-year deviation, ±1.00 currency
	// unit sum tolerance, 15 % withholding ceiling.
	DefaultDeviationThreshold   = 0.30
	DefaultConsistencyTolerance = 1.00
	DefaultWithholdingCeiling   = 0.15

	DefaultBatchConcurrency = 8
	DefaultMaxBatchSize     = 500
	DefaultConflictRetries  = 3
	DefaultLockTTL          = 30 * time.Second

	DefaultHealthCacheTTL            = 30 * time.Second
	DefaultHealthRecentWindow        = 7 * 24 * time.Hour
	DefaultHealthFailureWindow       = 30 * 24 * time.Hour
	DefaultHealthFailureThreshold    = 5
	DefaultHealthValidationThreshold = 10

	DefaultDeadlineHorizonDays   = 60
	DefaultDeadlineLookbackYears = 2
	DefaultDeadlineCacheTTL      = 5 * time.Minute

	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "taxflow"

	DefaultWorkerConcurrency  = 4
	DefaultWorkerMaxRetries   = 3
	DefaultWorkerRetryBackoff = 2 * time.Second
)

// ApplyDefaults fills every zero-value field in cfg with its default. Explicit
// values always win.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = DefaultServerMaxBodySize
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.User == "" {
		cfg.Database.User = DefaultDBUser
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = DefaultRedisTTL
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.NotificationTopic == "" {
		cfg.Kafka.NotificationTopic = DefaultKafkaNotificationTopic
	}
	if cfg.Kafka.ReceiptTopic == "" {
		cfg.Kafka.ReceiptTopic = DefaultKafkaReceiptTopic
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = DefaultKafkaWriteTimeout
	}
	if cfg.Kafka.ProducerRetries == 0 {
		cfg.Kafka.ProducerRetries = DefaultKafkaProducerRetries
	}
	if cfg.Kafka.BatchSize == 0 {
		cfg.Kafka.BatchSize = DefaultKafkaBatchSize
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Reasoning ─────────────────────────────────────────────────────────────
	if cfg.Reasoning.Timeout == 0 {
		cfg.Reasoning.Timeout = DefaultReasoningTimeout
	}

	// ── Plausibility ──────────────────────────────────────────────────────────
	if cfg.Plausibility.DeviationThreshold == 0 {
		cfg.Plausibility.DeviationThreshold = DefaultDeviationThreshold
	}
	if cfg.Plausibility.ConsistencyTolerance == 0 {
		cfg.Plausibility.ConsistencyTolerance = DefaultConsistencyTolerance
	}
	if cfg.Plausibility.WithholdingCeiling == 0 {
		cfg.Plausibility.WithholdingCeiling = DefaultWithholdingCeiling
	}

	// ── Filing ────────────────────────────────────────────────────────────────
	if cfg.Filing.BatchConcurrency == 0 {
		cfg.Filing.BatchConcurrency = DefaultBatchConcurrency
	}
	if cfg.Filing.MaxBatchSize == 0 {
		cfg.Filing.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.Filing.ConflictRetries == 0 {
		cfg.Filing.ConflictRetries = DefaultConflictRetries
	}
	if cfg.Filing.LockTTL == 0 {
		cfg.Filing.LockTTL = DefaultLockTTL
	}

	// ── Health ────────────────────────────────────────────────────────────────
	if cfg.Health.CacheTTL == 0 {
		cfg.Health.CacheTTL = DefaultHealthCacheTTL
	}
	if cfg.Health.RecentWindow == 0 {
		cfg.Health.RecentWindow = DefaultHealthRecentWindow
	}
	if cfg.Health.FailureWindow == 0 {
		cfg.Health.FailureWindow = DefaultHealthFailureWindow
	}
	if cfg.Health.FailureThreshold == 0 {
		cfg.Health.FailureThreshold = DefaultHealthFailureThreshold
	}
	if cfg.Health.ValidationIssueThreshold == 0 {
		cfg.Health.ValidationIssueThreshold = DefaultHealthValidationThreshold
	}

	// ── Deadlines ─────────────────────────────────────────────────────────────
	if cfg.Deadlines.HorizonDays == 0 {
		cfg.Deadlines.HorizonDays = DefaultDeadlineHorizonDays
	}
	if cfg.Deadlines.LookbackYears == 0 {
		cfg.Deadlines.LookbackYears = DefaultDeadlineLookbackYears
	}
	if cfg.Deadlines.CacheTTL == 0 {
		cfg.Deadlines.CacheTTL = DefaultDeadlineCacheTTL
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = DefaultWorkerMaxRetries
	}
	if cfg.Worker.RetryBackoff == 0 {
		cfg.Worker.RetryBackoff = DefaultWorkerRetryBackoff
	}
}
