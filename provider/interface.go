// Package provider implements model.Provider for the supported LLM backends.
//
// Every backend streams its native response and translates it into
// model.Delta values in arrival order: content text, reasoning text, and
// tool-call fragments keyed by index. The stream package assembles those
// deltas; nothing in this package interprets fences or buffers lines.
//
// # Backends
//
//   - OpenAIProvider speaks the OpenAI chat completions protocol. It also
//     serves OpenRouter and Gemini's OpenAI-compatible endpoint, which
//     differ only in base URL and in the extra fields they attach.
//   - AnthropicProvider uses the Messages API.
//   - OllamaProvider talks to a local Ollama server.
//
// # Continuation tokens
//
// Some backends attach an opaque token to a tool call that must be sent back
// with the call and its result on the next request (Gemini's
// thought_signature). Providers surface it as ToolCallDelta.Continuation and
// re-emit model.ToolCall.Continuation / model.Message.Continuation verbatim.
//
// # Usage
//
//	p, err := provider.NewProvider(provider.Config{
//	    Type:   provider.ProviderTypeOpenAI,
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4o",
//	})
//	if err != nil {
//	    // handle error
//	}
//	resp, err := stream.Collect(ctx, p, req, sink)
package provider

import "go.uber.org/zap"

// The Provider interface lives in the model package (model/provider.go) so
// that stream, agent and summarize can depend on it without importing this
// package.

// ProviderType identifies the provider implementation.
type ProviderType string

const (
	ProviderTypeOllama     ProviderType = "ollama"
	ProviderTypeOpenRouter ProviderType = "openrouter"
	ProviderTypeOpenAI     ProviderType = "openai"
	ProviderTypeAnthropic  ProviderType = "anthropic"
	ProviderTypeGemini     ProviderType = "gemini"
)

// Config holds provider-specific configuration.
type Config struct {
	Type    ProviderType
	BaseURL string
	Model   string
	APIKey  string // unused for Ollama
	Logger  *zap.Logger
}

func (c Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
