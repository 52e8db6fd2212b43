package model

import (
	"context"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Provider abstracts LLM provider implementations (OpenAI-compatible,
// Anthropic, Ollama) using provider-agnostic types from the model layer.
//
// This interface is defined in the model package (not provider package) to avoid
// import cycles: provider implementations import model, and the stream, agent
// and summarize packages use Provider without importing the provider package.
type Provider interface {
	// ChatStream sends the request and streams deltas back via callback in
	// arrival order. It returns the usage record if the provider sent one.
	// A callback error stops the stream and is returned.
	ChatStream(ctx context.Context, req ChatRequest, callback StreamCallback) (*Usage, error)

	// ListModels returns available models for this provider.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// GetModel returns the currently selected model name.
	GetModel() string

	// SetModel changes the active model.
	SetModel(model string)

	// Name returns the provider ID ("openai", "anthropic", ...).
	Name() string

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// StreamCallback is called for each delta of a streamed response.
type StreamCallback func(delta Delta) error

// ToolChoice controls whether the model may, must, or must not call tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
	ToolChoiceNone     ToolChoice = "none"
)

// ChatRequest is one model call.
type ChatRequest struct {
	Model      string
	System     string
	Messages   []Message
	Tools      []mcptypes.Tool
	ToolChoice ToolChoice
	MaxTokens  int
}

// Delta is one increment of a streamed response. Any field may be empty.
type Delta struct {
	Content   string
	Reasoning string
	ToolCalls []ToolCallDelta
}

// ToolCallDelta is a fragment of a tool call. Fragments sharing an Index
// belong to the same call; Arguments fragments are concatenated.
type ToolCallDelta struct {
	Index        int
	ID           string
	Name         string
	Arguments    string
	Continuation []byte
}

// ModelInfo describes a model offered by a provider.
type ModelInfo struct {
	Name string
	// Display is the name shown to the user; vendor prefixes may be
	// stripped. Empty means Name.
	Display       string
	Provider      string
	ContextLength int
}

// DisplayName returns Display, falling back to Name.
func (m ModelInfo) DisplayName() string {
	if m.Display != "" {
		return m.Display
	}
	return m.Name
}
