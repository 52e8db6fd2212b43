package testutil

import (
	"context"
	"fmt"
	"sync"

	"gptcli/model"
)

// MockProvider implements model.Provider for testing
type MockProvider struct {
	// Configurable responses
	ChatStreamFunc func(ctx context.Context, req model.ChatRequest, callback model.StreamCallback) (*model.Usage, error)
	ListModelsFunc func(ctx context.Context) ([]model.ModelInfo, error)
	PingFunc       func(ctx context.Context) error

	// State
	currentModel string
	mu           sync.Mutex
	requests     []model.ChatRequest
}

// NewMockProvider creates a mock provider with default implementations
func NewMockProvider(modelName string) *MockProvider {
	mock := &MockProvider{
		currentModel: modelName,
	}
	mock.ChatStreamFunc = mock.defaultChatStream
	mock.ListModelsFunc = mock.defaultListModels
	mock.PingFunc = mock.defaultPing
	return mock
}

func (m *MockProvider) defaultChatStream(ctx context.Context, req model.ChatRequest, callback model.StreamCallback) (*model.Usage, error) {
	// Default: echo back a mock response
	if err := callback(model.Delta{Content: "Mock response"}); err != nil {
		return nil, err
	}
	return &model.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12}, nil
}

func (m *MockProvider) defaultListModels(ctx context.Context) ([]model.ModelInfo, error) {
	return []model.ModelInfo{
		{Name: "mock-model-1", Provider: "mock", ContextLength: 8192},
		{Name: "mock-model-2", Provider: "mock", ContextLength: 128000},
	}, nil
}

func (m *MockProvider) defaultPing(ctx context.Context) error {
	return nil
}

func (m *MockProvider) ChatStream(ctx context.Context, req model.ChatRequest, callback model.StreamCallback) (*model.Usage, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.ChatStreamFunc(ctx, req, callback)
}

func (m *MockProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	return m.ListModelsFunc(ctx)
}

func (m *MockProvider) GetModel() string {
	return m.currentModel
}

func (m *MockProvider) SetModel(model string) {
	m.currentModel = model
}

func (m *MockProvider) Name() string {
	return "mock"
}

func (m *MockProvider) Ping(ctx context.Context) error {
	return m.PingFunc(ctx)
}

// Requests returns every request the mock has received, in order.
func (m *MockProvider) Requests() []model.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ChatRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// CallCount returns how many times ChatStream was called.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Turn is one scripted provider response.
type Turn struct {
	Deltas []model.Delta
	Usage  *model.Usage
	Err    error
}

// TextTurn scripts a plain text answer delivered in a single delta.
func TextTurn(text string) Turn {
	return Turn{
		Deltas: []model.Delta{{Content: text}},
		Usage:  &model.Usage{PromptTokens: 100, CompletionTokens: 10, TotalTokens: 110},
	}
}

// ToolTurn scripts a response requesting the given calls. Each call's
// arguments are split in two fragments to exercise reassembly.
func ToolTurn(text string, calls ...model.ToolCall) Turn {
	var deltas []model.Delta
	if text != "" {
		deltas = append(deltas, model.Delta{Content: text})
	}
	for i, c := range calls {
		half := len(c.Arguments) / 2
		deltas = append(deltas,
			model.Delta{ToolCalls: []model.ToolCallDelta{{
				Index: i, ID: c.ID, Name: c.Name, Arguments: c.Arguments[:half], Continuation: c.Continuation,
			}}},
			model.Delta{ToolCalls: []model.ToolCallDelta{{
				Index: i, Arguments: c.Arguments[half:],
			}}},
		)
	}
	return Turn{
		Deltas: deltas,
		Usage:  &model.Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
	}
}

// ErrTurn scripts a transport failure.
func ErrTurn(err error) Turn {
	return Turn{Err: err}
}

// NewScriptedProvider returns a mock that plays turns in order. Calls past
// the end of the script fail.
func NewScriptedProvider(modelName string, turns ...Turn) *MockProvider {
	mock := NewMockProvider(modelName)
	var mu sync.Mutex
	next := 0
	mock.ChatStreamFunc = func(ctx context.Context, req model.ChatRequest, callback model.StreamCallback) (*model.Usage, error) {
		mu.Lock()
		if next >= len(turns) {
			mu.Unlock()
			return nil, fmt.Errorf("unexpected call %d: script has %d turns", next+1, len(turns))
		}
		turn := turns[next]
		next++
		mu.Unlock()

		if turn.Err != nil {
			return nil, turn.Err
		}
		for _, d := range turn.Deltas {
			if err := callback(d); err != nil {
				return nil, err
			}
		}
		return turn.Usage, nil
	}
	return mock
}

// RepeatingProvider returns a mock that requests the same calls forever.
func RepeatingProvider(modelName string, calls ...model.ToolCall) *MockProvider {
	mock := NewMockProvider(modelName)
	mock.ChatStreamFunc = func(ctx context.Context, req model.ChatRequest, callback model.StreamCallback) (*model.Usage, error) {
		if req.ToolChoice == model.ToolChoiceNone || len(req.Tools) == 0 {
			if err := callback(model.Delta{Content: "final answer"}); err != nil {
				return nil, err
			}
			return &model.Usage{TotalTokens: 1}, nil
		}
		turn := ToolTurn("", calls...)
		for _, d := range turn.Deltas {
			if err := callback(d); err != nil {
				return nil, err
			}
		}
		return turn.Usage, nil
	}
	return mock
}
