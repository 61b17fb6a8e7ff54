// Package llm produces answer text from a question and its retrieved
// sources. The default provider is a deterministic template; a hosted
// model can be swapped in through the same interface.
package llm

import "context"

// Provider defines the interface for text generators.
type Provider interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name returns the name of this provider.
	Name() string
}
