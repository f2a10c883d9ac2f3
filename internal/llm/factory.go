package llm

import (
	"context"
	"fmt"

	"pixelnerd/internal/config"
	"pixelnerd/internal/types"
)

// NewClient builds the LLM client selected by the configuration.
func NewClient(ctx context.Context, cfg *config.Config) (types.LLMClient, error) {
	switch cfg.LLM.Provider {
	case "anthropic", "":
		return NewAnthropicClientWithConfig(AnthropicConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLMTimeout(),
		}), nil
	case "openai":
		return NewOpenAIClientWithConfig(OpenAIConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLMTimeout(),
		}), nil
	case "gemini":
		return NewGeminiClientWithConfig(ctx, GeminiConfig{
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLMTimeout(),
		})
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (want anthropic, openai, or gemini)", cfg.LLM.Provider)
	}
}
