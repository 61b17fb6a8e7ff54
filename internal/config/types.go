package config

import "time"

// RetrieverBackend selects the document index implementation.
type RetrieverBackend string

const (
	RetrieverMemory  RetrieverBackend = "memory"
	RetrieverChromem RetrieverBackend = "chromem"
)

// IntentStrategy selects the intent classification algorithm.
type IntentStrategy string

const (
	IntentKeyword  IntentStrategy = "keyword"
	IntentWeighted IntentStrategy = "weighted"
)

// RateLimitBackend selects where rate-limit counters live.
type RateLimitBackend string

const (
	RateLimitMemory RateLimitBackend = "memory"
	RateLimitRedis  RateLimitBackend = "redis"
)

// AuditDriver identifies the SQL driver used for the audit log.
type AuditDriver string

const (
	AuditSQLite   AuditDriver = "sqlite"
	AuditPostgres AuditDriver = "postgres"
)

// GeneratorProvider identifies the text-generation collaborator.
type GeneratorProvider string

const (
	GeneratorTemplate GeneratorProvider = "template"
	GeneratorOpenAI   GeneratorProvider = "openai"
)

// Config is the top-level assistd configuration, corresponding to .assistd.yml.
type Config struct {
	Server    ServerConfig    `yaml:"server" koanf:"server"`
	Log       LogConfig       `yaml:"log" koanf:"log"`
	Content   ContentConfig   `yaml:"content" koanf:"content"`
	Retriever RetrieverConfig `yaml:"retriever" koanf:"retriever"`
	Intent    IntentConfig    `yaml:"intent" koanf:"intent"`
	RateLimit RateLimitConfig `yaml:"ratelimit" koanf:"ratelimit"`
	Audit     AuditConfig     `yaml:"audit" koanf:"audit"`
	Analytics AnalyticsConfig `yaml:"analytics" koanf:"analytics"`
	Generator GeneratorConfig `yaml:"generator" koanf:"generator"`
	Stream    StreamConfig    `yaml:"stream" koanf:"stream"`
	DataDir   string          `yaml:"data_dir" koanf:"data_dir"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            int           `yaml:"port" koanf:"port"`
	AllowAllOrigins bool          `yaml:"allow_all_origins" koanf:"allow_all_origins"`
	RequestTimeout  time.Duration `yaml:"request_timeout" koanf:"request_timeout"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `yaml:"level" koanf:"level"`
	Format      string `yaml:"format" koanf:"format"`
	Development bool   `yaml:"development" koanf:"development"`
}

// ContentConfig points at the markdown knowledge base.
type ContentConfig struct {
	Dir      string   `yaml:"dir" koanf:"dir"`
	Patterns []string `yaml:"patterns" koanf:"patterns"`
	Watch    bool     `yaml:"watch" koanf:"watch"`
}

// RetrieverConfig controls document search.
type RetrieverConfig struct {
	Backend    RetrieverBackend `yaml:"backend" koanf:"backend"`
	Limit      int              `yaml:"limit" koanf:"limit"`
	PersistDir string           `yaml:"persist_dir" koanf:"persist_dir"`
	Timeout    time.Duration    `yaml:"timeout" koanf:"timeout"`
}

// IntentConfig controls intent classification.
type IntentConfig struct {
	Strategy  IntentStrategy `yaml:"strategy" koanf:"strategy"`
	Threshold float64        `yaml:"threshold" koanf:"threshold"`
	TableFile string         `yaml:"table_file" koanf:"table_file"`
}

// RateLimitConfig controls admission control.
type RateLimitConfig struct {
	Backend  RateLimitBackend `yaml:"backend" koanf:"backend"`
	Window   time.Duration    `yaml:"window" koanf:"window"`
	Max      int              `yaml:"max" koanf:"max"`
	RedisURL string           `yaml:"redis_url" koanf:"redis_url"`
}

// AuditConfig controls the durable audit log.
type AuditConfig struct {
	Driver             AuditDriver `yaml:"driver" koanf:"driver"`
	DSN                string      `yaml:"dsn" koanf:"dsn"`
	MaxResponseChars   int         `yaml:"max_response_chars" koanf:"max_response_chars"`
	FallbackConfidence float64     `yaml:"fallback_confidence" koanf:"fallback_confidence"`
}

// AnalyticsConfig controls the best-effort analytics sink.
type AnalyticsConfig struct {
	BufferSize int  `yaml:"buffer_size" koanf:"buffer_size"`
	Workers    int  `yaml:"workers" koanf:"workers"`
	Persist    bool `yaml:"persist" koanf:"persist"`
}

// GeneratorConfig selects the text generator.
type GeneratorConfig struct {
	Provider          GeneratorProvider `yaml:"provider" koanf:"provider"`
	Model             string            `yaml:"model" koanf:"model"`
	Timeout           time.Duration     `yaml:"timeout" koanf:"timeout"`
	RequestsPerMinute int               `yaml:"requests_per_minute" koanf:"requests_per_minute"`
}

// StreamConfig controls token pacing.
type StreamConfig struct {
	ChunkSize int           `yaml:"chunk_size" koanf:"chunk_size"`
	Delay     time.Duration `yaml:"delay" koanf:"delay"`
}
