package provider

import (
	"fmt"

	"gptcli/model"
)

// NewProvider creates a provider based on configuration.
//
// Returns an error if the provider type is unknown or the backend
// constructor rejects the configuration (missing API key, bad URL).
func NewProvider(cfg Config) (model.Provider, error) {
	switch cfg.Type {
	case ProviderTypeOllama:
		return NewOllamaProvider(cfg)
	case ProviderTypeOpenRouter:
		return NewOpenRouterProvider(cfg)
	case ProviderTypeGemini:
		return NewGeminiProvider(cfg)
	case ProviderTypeOpenAI:
		return NewOpenAIProvider(cfg)
	case ProviderTypeAnthropic:
		return NewAnthropicProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// MapProviderIDToType converts a config provider ID to a ProviderType.
// Common aliases ("claude", "google") are accepted. Unknown IDs are passed
// through and rejected by NewProvider.
func MapProviderIDToType(id string) ProviderType {
	switch id {
	case "ollama":
		return ProviderTypeOllama
	case "openrouter":
		return ProviderTypeOpenRouter
	case "openai":
		return ProviderTypeOpenAI
	case "anthropic", "claude":
		return ProviderTypeAnthropic
	case "gemini", "google":
		return ProviderTypeGemini
	default:
		return ProviderType(id)
	}
}

// DefaultBaseURL returns the API endpoint used when none is configured.
func DefaultBaseURL(t ProviderType) string {
	switch t {
	case ProviderTypeOllama:
		return "http://localhost:11434"
	case ProviderTypeOpenRouter:
		return "https://openrouter.ai/api/v1"
	case ProviderTypeOpenAI:
		return "https://api.openai.com/v1"
	case ProviderTypeAnthropic:
		return "https://api.anthropic.com"
	case ProviderTypeGemini:
		return "https://generativelanguage.googleapis.com/v1beta/openai/"
	default:
		return ""
	}
}

// DefaultModel returns the model selected when none is configured.
func DefaultModel(t ProviderType) string {
	switch t {
	case ProviderTypeOllama:
		return "llama3.1:latest"
	case ProviderTypeOpenRouter:
		return "anthropic/claude-sonnet-4"
	case ProviderTypeOpenAI:
		return "gpt-4o"
	case ProviderTypeAnthropic:
		return "claude-sonnet-4-5-20250929"
	case ProviderTypeGemini:
		return "gemini-2.5-flash"
	default:
		return ""
	}
}
