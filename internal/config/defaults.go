package config

import (
	"time"

	"github.com/ziadkadry99/assistd/internal/content"
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			RequestTimeout: 60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Content: ContentConfig{
			Dir:      "content",
			Patterns: append([]string(nil), content.DefaultPatterns...),
		},
		Retriever: RetrieverConfig{
			Backend: RetrieverMemory,
			Limit:   5,
			Timeout: 5 * time.Second,
		},
		Intent: IntentConfig{
			Strategy:  IntentKeyword,
			Threshold: 0.5,
		},
		RateLimit: RateLimitConfig{
			Backend: RateLimitMemory,
			Window:  time.Minute,
			Max:     60,
		},
		Audit: AuditConfig{
			Driver:             AuditSQLite,
			MaxResponseChars:   4000,
			FallbackConfidence: 0.6,
		},
		Analytics: AnalyticsConfig{
			BufferSize: 500,
			Workers:    4,
			Persist:    true,
		},
		Generator: GeneratorConfig{
			Provider:          GeneratorTemplate,
			Model:             "gpt-4o-mini",
			Timeout:           5 * time.Second,
			RequestsPerMinute: 60,
		},
		Stream: StreamConfig{
			ChunkSize: 64,
			Delay:     30 * time.Millisecond,
		},
		DataDir: ".assistd",
	}
}
