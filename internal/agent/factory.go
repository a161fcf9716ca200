// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/jolks/mcp-toolchat/internal/config"
)

// NewChatProvider builds the ChatProvider selected by cfg.AI.Provider. A
// provider-specific API key takes precedence over cfg.AI.APIKey.
func NewChatProvider(ctx context.Context, cfg *config.Config) (ChatProvider, error) {
	pick := func(specific string) string {
		if specific != "" {
			return specific
		}
		return cfg.AI.APIKey
	}

	switch provider := strings.ToLower(cfg.AI.Provider); provider {
	case "anthropic":
		apiKey := pick(cfg.AI.AnthropicAPIKey)
		if apiKey == "" {
			return nil, fmt.Errorf("anthropic API key is not set in configuration")
		}
		return NewAnthropicProvider(apiKey), nil
	case "gemini":
		apiKey := pick(cfg.AI.GeminiAPIKey)
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is not set in configuration")
		}
		p, err := NewGeminiProvider(ctx, apiKey)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "", "openai":
		apiKey := pick(cfg.AI.OpenAIAPIKey)
		if apiKey == "" {
			return nil, fmt.Errorf("openai API key is not set in configuration")
		}
		return NewOpenAIProvider(apiKey, cfg.AI.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", provider)
	}
}
