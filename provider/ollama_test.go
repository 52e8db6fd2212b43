package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"gptcli/model"
	"gptcli/provider/testutil"
	"gptcli/stream"
)

func TestOllamaChatStream(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/x-ndjson")
		lines := []string{
			`{"model":"qwen3","message":{"role":"assistant","content":"","thinking":"hmm"},"done":false}`,
			`{"model":"qwen3","message":{"role":"assistant","content":"ok "},"done":false}`,
			`{"model":"qwen3","message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"Glob","arguments":{"pattern":"*.go"}}}]},"done":false}`,
			`{"model":"qwen3","message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":30,"eval_count":7}`,
		}
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}))
	defer srv.Close()

	p, err := NewOllamaProvider(Config{BaseURL: srv.URL, Model: "qwen3"})
	if err != nil {
		t.Fatalf("NewOllamaProvider: %v", err)
	}

	req := model.ChatRequest{
		Messages:   testutil.SingleUserMessage("list go files"),
		Tools:      testutil.TestMCPTools(),
		ToolChoice: model.ToolChoiceAuto,
		MaxTokens:  64,
	}
	resp, err := stream.Collect(context.Background(), p, req, nil)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if resp.Reasoning != "hmm" || resp.Text != "ok " {
		t.Errorf("reasoning = %q, text = %q", resp.Reasoning, resp.Text)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "Glob" || resp.ToolCalls[0].Arguments != `{"pattern":"*.go"}` {
		t.Errorf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].ID == "" {
		t.Error("missing call ID should be synthesized")
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 37 {
		t.Errorf("usage = %+v", resp.Usage)
	}

	if tools, _ := body["tools"].([]any); len(tools) == 0 {
		t.Error("tools were not sent for a tool-capable model")
	}
	if opts, _ := body["options"].(map[string]any); opts["num_predict"] != float64(64) {
		t.Errorf("options = %v", body["options"])
	}
}

func TestOllamaToolChoiceNoneOmitsTools(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		fmt.Fprintln(w, `{"model":"llama3.1","message":{"role":"assistant","content":"done"},"done":true}`)
	}))
	defer srv.Close()

	p, _ := NewOllamaProvider(Config{BaseURL: srv.URL, Model: "llama3.1"})
	req := model.ChatRequest{
		Messages:   testutil.SingleUserMessage("x"),
		Tools:      testutil.TestMCPTools(),
		ToolChoice: model.ToolChoiceNone,
	}
	if _, err := stream.Collect(context.Background(), p, req, nil); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if _, ok := body["tools"]; ok {
		t.Errorf("tools should be omitted, got %v", body["tools"])
	}
}
