package provider

import "strings"

// NewOpenRouterProvider creates a provider for OpenRouter, which is fully
// OpenAI-compatible. Listed models keep their vendor prefix for API calls
// and show it stripped.
func NewOpenRouterProvider(cfg Config) (*OpenAIProvider, error) {
	p, err := newOpenAICompatible(ProviderTypeOpenRouter, cfg)
	if err != nil {
		return nil, err
	}
	p.displayName = stripProviderPrefix
	return p, nil
}

// NewGeminiProvider creates a provider for Gemini's OpenAI-compatible
// endpoint. Tool calls from thinking models carry a thought signature that
// is echoed back as the continuation token.
func NewGeminiProvider(cfg Config) (*OpenAIProvider, error) {
	p, err := newOpenAICompatible(ProviderTypeGemini, cfg)
	if err != nil {
		return nil, err
	}
	p.displayName = func(id string) string { return strings.TrimPrefix(id, "models/") }
	return p, nil
}

// stripProviderPrefix removes vendor prefixes from OpenRouter model names.
// "meta-llama/llama-3.2-90b-instruct" → "llama-3.2-90b-instruct"
func stripProviderPrefix(modelName string) string {
	if idx := strings.Index(modelName, "/"); idx != -1 {
		return modelName[idx+1:]
	}
	return modelName
}
