package llm

import (
	"fmt"
	"os"
)

// NewProvider creates a provider by name. Supported names: "template",
// "openai". The OpenAI key is read from OPENAI_API_KEY and an optional
// compatible endpoint from OPENAI_BASE_URL.
func NewProvider(providerType string, model string) (Provider, error) {
	switch providerType {
	case "", "template":
		return NewTemplateProvider(), nil

	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		return NewOpenAIProvider(apiKey, model, os.Getenv("OPENAI_BASE_URL")), nil

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", providerType)
	}
}
