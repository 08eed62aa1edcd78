package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "engram",
			Version:     "dev",
			Environment: "development",
			Debug:       false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Storage: StorageConfig{
			Path:       "./data/engram",
			SyncWrites: true,
			CacheSize:  10000,
		},
		Provider: ProviderConfig{
			Remote: RemoteProviderConfig{
				BaseURL:           "https://api.voyageai.com",
				Model:             "voyage-3-lite",
				Dimensions:        512,
				Timeout:           10 * time.Second,
				RequestsPerSecond: 5,
			},
			Local: LocalProviderConfig{
				ModelPath:     "./models/all-MiniLM-L6-v2.onnx",
				TokenizerPath: "./models/tokenizer.json",
				Dimensions:    384,
			},
			SecondaryEnabled: true,
			FallbackTimeout:  100 * time.Millisecond,
			FallbackLogSize:  32,
		},
		Search: SearchConfig{
			DefaultLimit: 10,
			FetchK:       30,
			RRFK:         60,
			Scorer:       "composite",
		},
		Scoring: ScoringConfig{
			Temporal:   0.25,
			Usage:      0.15,
			Importance: 0.25,
			Pattern:    0.20,
			Citation:   0.15,
		},
		Retry: RetryConfig{
			MaxAttempts:   3,
			Backoff:       []time.Duration{1 * time.Minute, 5 * time.Minute, 15 * time.Minute},
			SweepInterval: 5 * time.Minute,
			SweepBatch:    25,
			SaveBatch:     3,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9091,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Endpoint:   "localhost:4317",
			Timeout:    10 * time.Second,
			SampleRate: 0.1,
		},
	}
}
