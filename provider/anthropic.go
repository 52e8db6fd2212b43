package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"gptcli/mcp"
	"gptcli/model"
)

// defaultAnthropicMaxTokens is sent when the request leaves MaxTokens
// unset; the Messages API requires it.
const defaultAnthropicMaxTokens = 8192

// AnthropicProvider implements model.Provider using the Messages API.
type AnthropicProvider struct {
	client  *anthropic.Client
	model   anthropic.Model
	baseURL string
	logger  *zap.Logger
}

// NewAnthropicProvider creates a new Anthropic provider instance.
//
// Returns an error if the API key is missing.
func NewAnthropicProvider(cfg Config) (*AnthropicProvider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL(ProviderTypeAnthropic)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(ProviderTypeAnthropic)
	}

	client := anthropic.NewClient(
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(cfg.APIKey),
	)

	return &AnthropicProvider{
		client:  &client,
		model:   anthropic.Model(cfg.Model),
		baseURL: cfg.BaseURL,
		logger:  cfg.logger().Named("anthropic"),
	}, nil
}

// ChatStream implements model.Provider. Text and thinking deltas are
// forwarded as they arrive; tool-use blocks are taken from the accumulated
// message once the stream completes.
func (p *AnthropicProvider) ChatStream(ctx context.Context, req model.ChatRequest, callback model.StreamCallback) (*model.Usage, error) {
	params := p.buildParams(req)

	p.logger.Debug("chat request",
		zap.String("model", string(params.Model)),
		zap.Int("messages", len(params.Messages)),
		zap.Int("tools", len(params.Tools)))

	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	msg := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return nil, fmt.Errorf("error accumulating message: %w", err)
		}

		ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		var delta model.Delta
		switch d := ev.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			delta.Content = d.Text
		case anthropic.ThinkingDelta:
			delta.Reasoning = d.Thinking
		default:
			continue
		}
		if err := callback(delta); err != nil {
			return nil, err
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic streaming error: %w", err)
	}

	if calls := extractToolCalls(msg.Content); len(calls) > 0 {
		if err := callback(model.Delta{ToolCalls: calls}); err != nil {
			return nil, err
		}
	}

	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return &model.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}, nil
}

func (p *AnthropicProvider) buildParams(req model.ChatRequest) anthropic.MessageNewParams {
	modelName := p.model
	if req.Model != "" {
		modelName = anthropic.Model(req.Model)
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	messages, system := convertToAnthropicMessages(req.Messages)
	if req.System != "" {
		system = append([]anthropic.TextBlockParam{{Text: req.System}}, system...)
	}

	params := anthropic.MessageNewParams{
		Model:     modelName,
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = mcp.ConvertMCPToolsToAnthropicFormat(req.Tools)
		switch req.ToolChoice {
		case model.ToolChoiceRequired:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
		case model.ToolChoiceNone:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
		default:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
		}
	}
	return params
}

// ListModels implements model.Provider.
func (p *AnthropicProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	page, err := p.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to list anthropic models: %w", err)
	}

	result := make([]model.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		result = append(result, model.ModelInfo{
			Name:     m.ID,
			Display:  m.DisplayName,
			Provider: string(ProviderTypeAnthropic),
		})
	}
	return result, nil
}

// GetModel implements model.Provider.
func (p *AnthropicProvider) GetModel() string {
	return string(p.model)
}

// SetModel implements model.Provider.
func (p *AnthropicProvider) SetModel(model string) {
	p.model = anthropic.Model(model)
}

// Name implements model.Provider.
func (p *AnthropicProvider) Name() string {
	return string(ProviderTypeAnthropic)
}

// Ping implements model.Provider by listing models.
func (p *AnthropicProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return fmt.Errorf("anthropic ping failed: %w", err)
	}
	return nil
}

// convertToAnthropicMessages converts a conversation to Anthropic format.
// System messages are returned separately. Consecutive tool results are
// merged into one user message, as the API requires every tool_result for
// an assistant turn to arrive together.
func convertToAnthropicMessages(messages []model.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(messages))

	for i := 0; i < len(messages); i++ {
		msg := messages[i]
		switch msg.Role {
		case model.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Text()})

		case model.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if text := msg.Text(); text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, json.RawMessage(normalizeArguments(tc.Arguments)), tc.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(" "))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))

		case model.RoleTool:
			var blocks []anthropic.ContentBlockParamUnion
			for ; i < len(messages) && messages[i].Role == model.RoleTool; i++ {
				blocks = append(blocks, anthropic.NewToolResultBlock(messages[i].ToolCallID, messages[i].Content, false))
			}
			i--
			out = append(out, anthropic.NewUserMessage(blocks...))

		default:
			out = append(out, anthropic.NewUserMessage(anthropicUserBlocks(msg)...))
		}
	}
	return out, system
}

func anthropicUserBlocks(msg model.Message) []anthropic.ContentBlockParamUnion {
	if len(msg.Parts) == 0 {
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)}
	}
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		switch part.Type {
		case model.PartText:
			blocks = append(blocks, anthropic.NewTextBlock(part.Text))
		case model.PartImage:
			blocks = append(blocks, anthropic.NewImageBlockBase64(part.MediaType, part.Data))
		case model.PartFile:
			blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: part.Data}))
		}
	}
	return blocks
}

// extractToolCalls converts the tool-use blocks of a finished message into
// complete tool call fragments, one index per call.
func extractToolCalls(content []anthropic.ContentBlockUnion) []model.ToolCallDelta {
	var calls []model.ToolCallDelta
	for _, block := range content {
		toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}
		args := string(toolUse.Input)
		if args == "" {
			args = "{}"
		}
		calls = append(calls, model.ToolCallDelta{
			Index:     len(calls),
			ID:        toolUse.ID,
			Name:      toolUse.Name,
			Arguments: args,
		})
	}
	return calls
}
