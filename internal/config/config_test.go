package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Intent.Strategy != IntentKeyword {
		t.Errorf("expected default strategy %q, got %q", IntentKeyword, cfg.Intent.Strategy)
	}
	if cfg.Intent.Threshold != 0.5 {
		t.Errorf("expected default threshold 0.5, got %f", cfg.Intent.Threshold)
	}
	if cfg.Stream.ChunkSize != 64 {
		t.Errorf("expected default chunk size 64, got %d", cfg.Stream.ChunkSize)
	}
	if cfg.Audit.MaxResponseChars != 4000 {
		t.Errorf("expected default max_response_chars 4000, got %d", cfg.Audit.MaxResponseChars)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.assistd.yml")

	original := DefaultConfig()
	original.Server.Port = 9090
	original.Intent.Strategy = IntentWeighted
	original.RateLimit.Window = 30 * time.Second
	original.RateLimit.Max = 10
	original.Content.Patterns = []string{"faqs/*.md", "services/*.md"}
	original.Stream.Delay = 5 * time.Millisecond

	if err := original.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Server.Port != original.Server.Port {
		t.Errorf("port: got %d, want %d", loaded.Server.Port, original.Server.Port)
	}
	if loaded.Intent.Strategy != original.Intent.Strategy {
		t.Errorf("strategy: got %q, want %q", loaded.Intent.Strategy, original.Intent.Strategy)
	}
	if loaded.RateLimit.Window != original.RateLimit.Window {
		t.Errorf("window: got %s, want %s", loaded.RateLimit.Window, original.RateLimit.Window)
	}
	if loaded.RateLimit.Max != original.RateLimit.Max {
		t.Errorf("max: got %d, want %d", loaded.RateLimit.Max, original.RateLimit.Max)
	}
	if loaded.Stream.Delay != original.Stream.Delay {
		t.Errorf("delay: got %s, want %s", loaded.Stream.Delay, original.Stream.Delay)
	}
	if len(loaded.Content.Patterns) != len(original.Content.Patterns) {
		t.Fatalf("patterns length: got %d, want %d", len(loaded.Content.Patterns), len(original.Content.Patterns))
	}
	for i, v := range loaded.Content.Patterns {
		if v != original.Content.Patterns[i] {
			t.Errorf("patterns[%d]: got %q, want %q", i, v, original.Content.Patterns[i])
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nonexistent.yml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if cfg.Retriever.Limit != 5 {
		t.Errorf("expected default retriever limit 5, got %d", cfg.Retriever.Limit)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nonexistent.yml")

	t.Setenv("ASSISTD_RATELIMIT__MAX", "7")
	t.Setenv("ASSISTD_LOG__LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RateLimit.Max != 7 {
		t.Errorf("ratelimit.max: got %d, want 7", cfg.RateLimit.Max)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level: got %q, want %q", cfg.Log.Level, "debug")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"unknown retriever", func(c *Config) { c.Retriever.Backend = "faiss" }, true},
		{"unknown strategy", func(c *Config) { c.Intent.Strategy = "neural" }, true},
		{"threshold above one", func(c *Config) { c.Intent.Threshold = 1.5 }, true},
		{"redis without url", func(c *Config) { c.RateLimit.Backend = RateLimitRedis }, true},
		{"redis with url", func(c *Config) {
			c.RateLimit.Backend = RateLimitRedis
			c.RateLimit.RedisURL = "redis://localhost:6379"
		}, false},
		{"postgres without dsn", func(c *Config) { c.Audit.Driver = AuditPostgres }, true},
		{"zero chunk size", func(c *Config) { c.Stream.ChunkSize = 0 }, true},
		{"unknown generator", func(c *Config) { c.Generator.Provider = "markov" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"ASSISTD_SERVER__PORT":              "server.port",
		"ASSISTD_AUDIT__MAX_RESPONSE_CHARS": "audit.max_response_chars",
		"ASSISTD_DATA_DIR":                  "data_dir",
		"ASSISTD_RETRIEVER__BACKEND":        "retriever.backend",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}
