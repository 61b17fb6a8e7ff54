package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore: ASSISTD_RATELIMIT__MAX -> ratelimit.max.
const EnvPrefix = "ASSISTD_"

// LoadDotEnv loads variables from a .env file in the working directory, if
// one exists. Variables already set in the environment win.
func LoadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("accessing .env: %w", err)
	}
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (ASSISTD_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// envKey maps ASSISTD_AUDIT__MAX_RESPONSE_CHARS to audit.max_response_chars.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validRetrievers = map[RetrieverBackend]bool{
	RetrieverMemory:  true,
	RetrieverChromem: true,
}

var validStrategies = map[IntentStrategy]bool{
	IntentKeyword:  true,
	IntentWeighted: true,
}

var validRateLimitBackends = map[RateLimitBackend]bool{
	RateLimitMemory: true,
	RateLimitRedis:  true,
}

var validAuditDrivers = map[AuditDriver]bool{
	AuditSQLite:   true,
	AuditPostgres: true,
}

var validGenerators = map[GeneratorProvider]bool{
	GeneratorTemplate: true,
	GeneratorOpenAI:   true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Content.Dir == "" {
		return fmt.Errorf("content.dir is required")
	}
	if !validRetrievers[c.Retriever.Backend] {
		return fmt.Errorf("invalid retriever.backend %q: must be one of memory, chromem", c.Retriever.Backend)
	}
	if c.Retriever.Limit <= 0 {
		return fmt.Errorf("retriever.limit must be positive")
	}
	if c.Retriever.Backend == RetrieverChromem && c.Retriever.PersistDir == "" && c.DataDir == "" {
		return fmt.Errorf("retriever.persist_dir or data_dir is required for the chromem backend")
	}
	if !validStrategies[c.Intent.Strategy] {
		return fmt.Errorf("invalid intent.strategy %q: must be one of keyword, weighted", c.Intent.Strategy)
	}
	if c.Intent.Threshold < 0 || c.Intent.Threshold > 1 {
		return fmt.Errorf("intent.threshold must be within [0,1]")
	}
	if !validRateLimitBackends[c.RateLimit.Backend] {
		return fmt.Errorf("invalid ratelimit.backend %q: must be one of memory, redis", c.RateLimit.Backend)
	}
	if c.RateLimit.Backend == RateLimitRedis && c.RateLimit.RedisURL == "" {
		return fmt.Errorf("ratelimit.redis_url is required for the redis backend")
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.Max <= 0 {
		return fmt.Errorf("ratelimit.window and ratelimit.max must be positive")
	}
	if !validAuditDrivers[c.Audit.Driver] {
		return fmt.Errorf("invalid audit.driver %q: must be one of sqlite, postgres", c.Audit.Driver)
	}
	if c.Audit.Driver == AuditPostgres && c.Audit.DSN == "" {
		return fmt.Errorf("audit.dsn is required for the postgres driver")
	}
	if c.Audit.MaxResponseChars < 2 {
		return fmt.Errorf("audit.max_response_chars must be at least 2")
	}
	if c.Analytics.BufferSize <= 0 {
		return fmt.Errorf("analytics.buffer_size must be positive")
	}
	if !validGenerators[c.Generator.Provider] {
		return fmt.Errorf("invalid generator.provider %q: must be one of template, openai", c.Generator.Provider)
	}
	if c.Stream.ChunkSize <= 0 {
		return fmt.Errorf("stream.chunk_size must be positive")
	}
	if c.Stream.Delay < 0 {
		return fmt.Errorf("stream.delay must be non-negative")
	}
	return nil
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given generator.
func APIKeyEnvVar(provider GeneratorProvider) string {
	if provider == GeneratorOpenAI {
		return "OPENAI_API_KEY"
	}
	return ""
}
