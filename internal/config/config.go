// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Defaults live in New; Load layers file and env on top.
// - All future functions must accept context.Context as the first parameter.
// - External errors must be wrapped via this package's error helpers.
package config

import "time"

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// MetricsAddr configures the metrics/health listen address.
	MetricsAddr string `koanf:"metrics_addr"`

	// Transport selects the scoring channel: direct or amqp.
	Transport string `koanf:"transport"`

	// PredictorEndpoint is the scoring service URL for direct transport.
	PredictorEndpoint string `koanf:"predictor_endpoint"`

	// PredictorToken is the internal auth token for direct transport.
	PredictorToken string `koanf:"predictor_token"`

	// AMQPURL and AMQPQueue configure the queued transport.
	AMQPURL   string `koanf:"amqp_url"`
	AMQPQueue string `koanf:"amqp_queue"`

	// CallTimeout bounds each scoring call.
	CallTimeout time.Duration `koanf:"call_timeout"`

	// ChunkSize sets how many rows go into one scoring request.
	ChunkSize int `koanf:"chunk_size"`

	// ModelVersion is attached to scoring payloads when set.
	ModelVersion string `koanf:"model_version"`

	// BuildConcurrency bounds parallel feature builds per batch.
	BuildConcurrency int `koanf:"build_concurrency"`

	// CacheTTL and CacheThreshold configure the feature cache.
	CacheTTL       time.Duration `koanf:"cache_ttl"`
	CacheThreshold int           `koanf:"cache_threshold"`

	// PostgresDSN points at the analytics warehouse. Empty disables
	// warehouse-backed feature building and persistence.
	PostgresDSN string `koanf:"postgres_dsn"`

	// RedisAddr points at Redis for rate limiting and usage logging.
	// Empty disables both.
	RedisAddr string `koanf:"redis_addr"`

	// AuditKey is the hex-encoded AES key for the audit trail. Empty
	// disables auditing.
	AuditKey string `koanf:"audit_key"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		MetricsAddr:      ":9090",
		Transport:        "direct",
		CallTimeout:      10 * time.Second,
		ChunkSize:        50,
		BuildConcurrency: 10,
		CacheTTL:         5 * time.Minute,
		CacheThreshold:   1000,
	}
}
