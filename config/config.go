// Package config provides configuration management for Engram.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration for the Engram retrieval engine.
type Config struct {
	// App is the application metadata.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Storage is the record store configuration.
	Storage StorageConfig `mapstructure:"storage"`

	// Provider is the embedding provider chain configuration.
	Provider ProviderConfig `mapstructure:"provider"`

	// Search is the retrieval pipeline configuration.
	Search SearchConfig `mapstructure:"search"`

	// Scoring holds the composite scorer factor weights.
	Scoring ScoringConfig `mapstructure:"scoring"`

	// Retry is the embedding retry manager configuration.
	Retry RetryConfig `mapstructure:"retry"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"oneof=development staging production"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the log output format (json or text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the log destination: stdout, stderr, or a file path.
	Output string `mapstructure:"output"`
}

// StorageConfig holds the Badger-backed record store configuration.
type StorageConfig struct {
	// Path is the Badger database directory. Empty means in-memory.
	Path string `mapstructure:"path"`

	// SyncWrites forces fsync on every write.
	SyncWrites bool `mapstructure:"sync_writes"`

	// CacheSize is the read-cache budget in number of records.
	CacheSize int64 `mapstructure:"cache_size" validate:"min=0"`
}

// ProviderConfig holds the embedding provider chain configuration.
type ProviderConfig struct {
	// Remote is the primary tier: a hosted embedding API.
	Remote RemoteProviderConfig `mapstructure:"remote"`

	// Local is the secondary tier: an in-process ONNX model.
	Local LocalProviderConfig `mapstructure:"local"`

	// SecondaryEnabled governs whether the local tier is attempted at all.
	SecondaryEnabled bool `mapstructure:"secondary_enabled"`

	// FallbackTimeout bounds how long tier transitions may take before the
	// chain gives up and degrades to keyword-only mode.
	FallbackTimeout time.Duration `mapstructure:"fallback_timeout" validate:"min=0"`

	// FallbackLogSize caps the in-memory fallback event log.
	FallbackLogSize int `mapstructure:"fallback_log_size" validate:"min=1"`
}

// RemoteProviderConfig configures the hosted embedding API client.
type RemoteProviderConfig struct {
	// BaseURL is the API root, e.g. https://api.voyageai.com.
	BaseURL string `mapstructure:"base_url"`

	// APIKey is the bearer token. Usually set via ENGRAM_PROVIDER_REMOTE_API_KEY.
	APIKey string `mapstructure:"api_key"`

	// Model is the embedding model identifier.
	Model string `mapstructure:"model"`

	// Dimensions is the expected embedding vector size.
	Dimensions int `mapstructure:"dimensions" validate:"min=1"`

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `mapstructure:"timeout" validate:"min=0"`

	// RequestsPerSecond rate-limits outbound embedding calls. 0 disables.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`
}

// LocalProviderConfig configures the in-process ONNX embedder.
type LocalProviderConfig struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string `mapstructure:"model_path"`

	// TokenizerPath is the path to the tokenizer.json file.
	TokenizerPath string `mapstructure:"tokenizer_path"`

	// LibraryPath is the path to the ONNX Runtime shared library.
	LibraryPath string `mapstructure:"library_path"`

	// Dimensions is the embedding vector size (384 for all-MiniLM-L6-v2).
	Dimensions int `mapstructure:"dimensions" validate:"min=1"`
}

// SearchConfig holds the retrieval pipeline configuration.
type SearchConfig struct {
	// DefaultLimit is the result count when the caller does not specify one.
	DefaultLimit int `mapstructure:"default_limit" validate:"min=1"`

	// FetchK is the candidate count pulled from each index before fusion.
	FetchK int `mapstructure:"fetch_k" validate:"min=1"`

	// RRFK is the Reciprocal Rank Fusion constant.
	RRFK float64 `mapstructure:"rrf_k" validate:"gt=0"`

	// Scorer selects the ranking strategy: composite (default) or legacy.
	Scorer string `mapstructure:"scorer" validate:"oneof=composite legacy"`
}

// ScoringConfig holds the composite scorer factor weights.
// The five weights must sum to 1.0.
type ScoringConfig struct {
	Temporal   float64 `mapstructure:"temporal" validate:"gte=0,lte=1"`
	Usage      float64 `mapstructure:"usage" validate:"gte=0,lte=1"`
	Importance float64 `mapstructure:"importance" validate:"gte=0,lte=1"`
	Pattern    float64 `mapstructure:"pattern" validate:"gte=0,lte=1"`
	Citation   float64 `mapstructure:"citation" validate:"gte=0,lte=1"`
}

// WeightSum returns the sum of the five composite scorer weights.
func (s ScoringConfig) WeightSum() float64 {
	return s.Temporal + s.Usage + s.Importance + s.Pattern + s.Citation
}

// RetryConfig holds the embedding retry manager configuration.
type RetryConfig struct {
	// MaxAttempts is the retry budget before a record is marked failed.
	MaxAttempts int `mapstructure:"max_attempts" validate:"min=1"`

	// Backoff holds the eligibility delays indexed by retry count.
	Backoff []time.Duration `mapstructure:"backoff"`

	// SweepInterval is the period of the scheduled reconciliation sweep.
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"min=0"`

	// SweepBatch is the batch size for the scheduled sweep.
	SweepBatch int `mapstructure:"sweep_batch" validate:"min=1"`

	// SaveBatch is the opportunistic batch processed after every save.
	// 0 disables opportunistic processing.
	SaveBatch int `mapstructure:"save_batch" validate:"min=0"`
}

// MetricsConfig holds the Prometheus diagnostics configuration.
type MetricsConfig struct {
	// Enabled toggles metrics collection and the diagnostics HTTP server.
	Enabled bool `mapstructure:"enabled"`

	// Port is the diagnostics server port.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// Path is the Prometheus scrape path.
	Path string `mapstructure:"path"`
}

// TracingConfig holds the OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled toggles span export.
	Enabled bool `mapstructure:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint"`

	// Timeout bounds exporter calls.
	Timeout time.Duration `mapstructure:"timeout" validate:"min=0"`

	// SampleRate is the trace sampling ratio in [0, 1].
	SampleRate float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`

	// Headers are additional headers sent to the collector.
	Headers map[string]string `mapstructure:"headers"`
}

// Validate performs semantic validation beyond struct tags.
func (c *Config) Validate() error {
	if sum := c.Scoring.WeightSum(); sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("config: scoring weights must sum to 1.0, got %.4f", sum)
	}
	if len(c.Retry.Backoff) == 0 {
		return fmt.Errorf("config: retry backoff schedule must not be empty")
	}
	return nil
}
