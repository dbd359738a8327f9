// File: internal/llmclient/interfaces.go
package llmclient

import (
	"context"
	"errors"
)

// ErrRateLimited marks responses where the inference service refused the
// request due to quota exhaustion. Callers use errors.Is to distinguish it
// from other failures and arm the shared cooldown.
var ErrRateLimited = errors.New("inference service rate limited")

// GenerationOptions holds parameters controlling a single generation.
type GenerationOptions struct {
	Temperature float32
	MaxTokens   int
	// ForceJSONFormat asks the provider to enforce JSON output mode.
	ForceJSONFormat bool
}

// GenerationRequest encapsulates all inputs for one inference call.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Options      GenerationOptions
}

// LLMClient abstracts the inference service away from the decision logic.
type LLMClient interface {
	// GenerateResponse sends the request and returns the raw text content.
	GenerateResponse(ctx context.Context, req GenerationRequest) (string, error)
}
