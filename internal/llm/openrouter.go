package llm

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterModels lists popular OpenRouter models
var OpenRouterModels = []Model{
	{
		ID:            "anthropic/claude-3.5-haiku",
		Name:          "Claude 3.5 Haiku",
		ContextWindow: 200000,
		InputCost:     0.80,
		OutputCost:    4.0,
		SupportsTools: true,
	},
	{
		ID:            "openai/gpt-4o-mini",
		Name:          "GPT-4o Mini",
		ContextWindow: 128000,
		InputCost:     0.15,
		OutputCost:    0.60,
		SupportsTools: true,
	},
	{
		ID:            "google/gemini-2.0-flash-001",
		Name:          "Gemini 2.0 Flash",
		ContextWindow: 1000000,
		InputCost:     0.10,
		OutputCost:    0.40,
		SupportsTools: true,
	},
	{
		ID:            "deepseek/deepseek-r1",
		Name:          "DeepSeek R1",
		ContextWindow: 64000,
		InputCost:     0.55,
		OutputCost:    2.19,
		SupportsTools: false,
	},
}

// NewOpenRouterProvider creates a provider for the OpenRouter gateway, which
// speaks the OpenAI API.
func NewOpenRouterProvider(apiKey string, model string) (*OpenAICompatProvider, error) {
	return newOpenAICompatProvider(apiKey, model, openRouterBaseURL, ProviderOpenRouter, "OpenRouter", OpenRouterModels, "openai/gpt-4o-mini")
}
