package classify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cancelbot/internal/config"
)

// ErrModelNotFound is returned by a client when the provider reports the
// requested model as unknown or unavailable. The classifier advances to the
// next candidate model without retrying.
var ErrModelNotFound = errors.New("model not found")

// LLMClient defines the minimal interface the classifier uses to call an
// LLM provider.
type LLMClient interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	SetModel(model string)
	GetModel() string
}

// NewClient creates an LLM client for the configured provider.
func NewClient(cfg *config.ClassifierConfig, timeout time.Duration) (LLMClient, error) {
	switch cfg.Provider {
	case "anthropic", "":
		return NewAnthropicClient(cfg.APIKey, timeout), nil
	case "gemini":
		return NewGeminiClient(cfg.APIKey)
	default:
		return nil, fmt.Errorf("unknown classifier provider: %s (valid: anthropic, gemini)", cfg.Provider)
	}
}

// DefaultModels returns the ordered fallback model list for a provider.
// An explicit override is always tried before these.
func DefaultModels(provider string) []string {
	switch provider {
	case "gemini":
		return []string{
			"gemini-2.5-flash",
			"gemini-2.0-flash",
			"gemini-2.0-flash-lite",
		}
	default:
		return []string{
			"claude-sonnet-4-20250514",
			"claude-3-7-sonnet-20250219",
			"claude-3-5-haiku-20241022",
			"claude-3-haiku-20240307",
		}
	}
}
