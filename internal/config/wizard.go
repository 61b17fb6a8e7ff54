package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and saves the result
// to path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to assistd! Let's configure the assistant.")
	fmt.Println()

	cfg := DefaultConfig()

	contentPrompt := promptui.Prompt{
		Label:   "Content directory (markdown knowledge base)",
		Default: cfg.Content.Dir,
	}
	dir, err := contentPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("content dir: %w", err)
	}
	cfg.Content.Dir = dir

	strategyPrompt := promptui.Select{
		Label: "Intent classification strategy",
		Items: []string{
			"keyword  - keyword ratio with an unknown fallback",
			"weighted - keyword ratio plus content boost",
		},
	}
	idx, _, err := strategyPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("strategy selection: %w", err)
	}
	cfg.Intent.Strategy = []IntentStrategy{IntentKeyword, IntentWeighted}[idx]

	limiterPrompt := promptui.Select{
		Label: "Rate limit backend",
		Items: []string{"memory", "redis"},
	}
	_, backend, err := limiterPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("rate limit backend: %w", err)
	}
	cfg.RateLimit.Backend = RateLimitBackend(backend)
	if cfg.RateLimit.Backend == RateLimitRedis {
		redisPrompt := promptui.Prompt{
			Label:   "Redis URL",
			Default: "redis://localhost:6379/0",
		}
		if cfg.RateLimit.RedisURL, err = redisPrompt.Run(); err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
	}

	maxPrompt := promptui.Prompt{
		Label:    "Requests per minute per client",
		Default:  strconv.Itoa(cfg.RateLimit.Max),
		Validate: validatePositiveInt,
	}
	maxStr, err := maxPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("rate limit max: %w", err)
	}
	cfg.RateLimit.Max, _ = strconv.Atoi(strings.TrimSpace(maxStr))

	auditPrompt := promptui.Select{
		Label: "Audit log store",
		Items: []string{"sqlite", "postgres"},
	}
	_, driver, err := auditPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("audit driver: %w", err)
	}
	cfg.Audit.Driver = AuditDriver(driver)
	if cfg.Audit.Driver == AuditPostgres {
		dsnPrompt := promptui.Prompt{
			Label:   "Postgres DSN",
			Default: "postgres://localhost:5432/assistd?sslmode=disable",
		}
		if cfg.Audit.DSN, err = dsnPrompt.Run(); err != nil {
			return nil, fmt.Errorf("postgres dsn: %w", err)
		}
	}

	genPrompt := promptui.Select{
		Label: "Answer generator",
		Items: []string{"template", "openai"},
	}
	_, gen, err := genPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("generator selection: %w", err)
	}
	cfg.Generator.Provider = GeneratorProvider(gen)

	if envVar := APIKeyEnvVar(cfg.Generator.Provider); envVar != "" && os.Getenv(envVar) == "" {
		fmt.Printf("\nNote: Set %s in your environment before running assistd serve.\n", envVar)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fmt.Errorf("enter a positive number")
	}
	return nil
}
