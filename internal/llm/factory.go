package llm

import (
	"context"
	"fmt"
)

// NewProvider constructs the provider for id. An empty model selects the
// provider's default; a non-empty one must be in its model list.
func NewProvider(ctx context.Context, id ProviderID, apiKey, model string) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch id {
	case ProviderAnthropic:
		p, err = NewAnthropicProvider(apiKey, "")
	case ProviderOpenAI:
		p, err = NewOpenAIProvider(apiKey, "", "")
	case ProviderGemini:
		p, err = NewGeminiProvider(ctx, apiKey, "")
	case ProviderOpenRouter:
		p, err = NewOpenRouterProvider(apiKey, "")
	default:
		return nil, fmt.Errorf("unsupported provider: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", id, err)
	}

	if model != "" {
		if err := p.SetModel(model); err != nil {
			return nil, err
		}
	}
	return p, nil
}
