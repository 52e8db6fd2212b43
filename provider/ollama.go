package provider

import (
	"context"
	"fmt"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"gptcli/mcp"
	"gptcli/model"
	"gptcli/ollama"
)

// OllamaProvider implements model.Provider for a local Ollama server.
//
// Ollama streams content and thinking text incrementally but delivers
// each tool call whole. Calls are forwarded as single complete fragments
// with their arguments re-encoded as JSON.
type OllamaProvider struct {
	client *ollama.Client
	logger *zap.Logger
}

// NewOllamaProvider creates a new Ollama provider. Empty BaseURL and Model
// default to localhost and llama3.1.
//
// Returns an error if the base URL cannot be parsed.
func NewOllamaProvider(cfg Config) (*OllamaProvider, error) {
	client, err := ollama.NewClient(cfg.BaseURL, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}

	return &OllamaProvider{
		client: client,
		logger: cfg.logger().Named("ollama"),
	}, nil
}

// ChatStream implements model.Provider. ToolChoice "none" omits the tools;
// "required" is not supported by Ollama and behaves as "auto".
func (p *OllamaProvider) ChatStream(ctx context.Context, req model.ChatRequest, callback model.StreamCallback) (*model.Usage, error) {
	chatReq := &api.ChatRequest{
		Model:    req.Model,
		Messages: ConvertToOllamaMessages(req.System, req.Messages),
	}
	if len(req.Tools) > 0 && req.ToolChoice != model.ToolChoiceNone {
		chatReq.Tools = mcp.ConvertMCPToolsToOllama(req.Tools)
	}
	if req.MaxTokens > 0 {
		chatReq.Options = map[string]any{"num_predict": req.MaxTokens}
	}

	p.logger.Debug("chat request",
		zap.String("model", chatReq.Model),
		zap.Int("messages", len(chatReq.Messages)),
		zap.Int("tools", len(chatReq.Tools)))

	var usage *model.Usage
	seen := 0
	err := p.client.Chat(ctx, chatReq, func(resp ollama.Chunk) error {
		delta := model.Delta{
			Content:   resp.Message.Content,
			Reasoning: resp.Message.Thinking,
			ToolCalls: ConvertToProviderToolCalls(resp.Message.ToolCalls, seen),
		}
		seen += len(resp.Message.ToolCalls)

		if resp.Done {
			usage = &model.Usage{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
			}
		}
		if delta.Content == "" && delta.Reasoning == "" && len(delta.ToolCalls) == 0 {
			return nil
		}
		return callback(delta)
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat failed: %w", err)
	}
	return usage, nil
}

// ListModels implements model.Provider.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	models, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]model.ModelInfo, len(models))
	for i, m := range models {
		result[i] = model.ModelInfo{Name: m.Name, Provider: string(ProviderTypeOllama)}
	}
	return result, nil
}

// GetModel implements model.Provider.
func (p *OllamaProvider) GetModel() string {
	return p.client.GetModel()
}

// SetModel implements model.Provider.
func (p *OllamaProvider) SetModel(model string) {
	p.client.SetModel(model)
}

// Name implements model.Provider.
func (p *OllamaProvider) Name() string {
	return string(ProviderTypeOllama)
}

// Ping implements model.Provider.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}
