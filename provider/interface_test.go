package provider_test

import (
	"context"
	"testing"
	"time"

	"gptcli/model"
	"gptcli/provider/testutil"
	"gptcli/stream"
)

// TestProviderContract defines the contract every provider must satisfy.
func TestProviderContract(t *testing.T) {
	tests := []struct {
		name     string
		provider model.Provider
	}{
		{"Mock", testutil.NewMockProvider("test-model")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Run("BasicChat", func(t *testing.T) {
				testProviderBasicChat(t, tt.provider)
			})
			t.Run("ChatWithTools", func(t *testing.T) {
				testProviderChatWithTools(t, tt.provider)
			})
			t.Run("ModelManagement", func(t *testing.T) {
				testProviderModelManagement(t, tt.provider)
			})
			t.Run("HealthCheck", func(t *testing.T) {
				testProviderHealthCheck(t, tt.provider)
			})
		})
	}
}

func testProviderBasicChat(t *testing.T, p model.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var received string
	_, err := p.ChatStream(ctx, model.ChatRequest{Messages: testutil.SingleUserMessage("Hello")}, func(d model.Delta) error {
		received += d.Content
		return nil
	})
	if err != nil {
		t.Errorf("ChatStream() error = %v", err)
	}
	if received == "" {
		t.Error("ChatStream() did not receive any content")
	}
}

func testProviderChatWithTools(t *testing.T, p model.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := model.ChatRequest{
		Messages:   testutil.SingleUserMessage("What's the weather?"),
		Tools:      testutil.TestMCPTools(),
		ToolChoice: model.ToolChoiceAuto,
	}
	resp, err := stream.Collect(ctx, p, req, nil)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if resp.Text == "" && !resp.HasToolCalls() {
		t.Error("response has neither text nor tool calls")
	}
}

func testProviderModelManagement(t *testing.T, p model.Provider) {
	if p.GetModel() == "" {
		t.Error("GetModel() returned empty string")
	}

	newModel := "new-test-model"
	p.SetModel(newModel)
	if got := p.GetModel(); got != newModel {
		t.Errorf("After SetModel(%s), GetModel() = %s", newModel, got)
	}
}

func testProviderHealthCheck(t *testing.T, p model.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

// TestMockProviderImplementsInterface ensures mock provider implements the interface
func TestMockProviderImplementsInterface(t *testing.T) {
	var _ model.Provider = (*testutil.MockProvider)(nil)
}
