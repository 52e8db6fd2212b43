package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"gptcli/mcp"
	"gptcli/model"
)

// Raw delta fields some OpenAI-compatible servers use for reasoning text.
var reasoningFields = []string{"reasoning_content", "reasoning"}

// OpenAIProvider implements model.Provider over the chat completions API.
// The same transport serves OpenAI, OpenRouter and Gemini's compatible
// endpoint; name distinguishes them for logging and model listing.
type OpenAIProvider struct {
	client  openai.Client
	name    string
	model   string
	baseURL string
	logger  *zap.Logger

	// displayName maps a listed model ID to the name shown to the user.
	displayName func(id string) string
}

// NewOpenAIProvider creates a provider for api.openai.com or any
// OpenAI-compatible base URL.
//
// Returns an error if the API key is missing.
func NewOpenAIProvider(cfg Config) (*OpenAIProvider, error) {
	return newOpenAICompatible(ProviderTypeOpenAI, cfg)
}

func newOpenAICompatible(t ProviderType, cfg Config) (*OpenAIProvider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL(t)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", t)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(t)
	}

	client := openai.NewClient(
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(cfg.APIKey),
	)

	return &OpenAIProvider{
		client:      client,
		name:        string(t),
		model:       cfg.Model,
		baseURL:     cfg.BaseURL,
		logger:      cfg.logger().Named(string(t)),
		displayName: func(id string) string { return id },
	}, nil
}

// ChatStream implements model.Provider.
func (p *OpenAIProvider) ChatStream(ctx context.Context, req model.ChatRequest, callback model.StreamCallback) (*model.Usage, error) {
	params := p.buildParams(req)

	p.logger.Debug("chat request",
		zap.String("model", string(params.Model)),
		zap.Int("messages", len(params.Messages)),
		zap.Int("tools", len(params.Tools)),
		zap.String("tool_choice", string(req.ToolChoice)))

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var usage *model.Usage
	for stream.Next() {
		chunk := stream.Current()

		if chunk.Usage.TotalTokens > 0 {
			usage = &model.Usage{
				PromptTokens:     int(chunk.Usage.PromptTokens),
				CompletionTokens: int(chunk.Usage.CompletionTokens),
				TotalTokens:      int(chunk.Usage.TotalTokens),
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := convertOpenAIDelta(chunk.Choices[0].Delta)
		if delta.Content == "" && delta.Reasoning == "" && len(delta.ToolCalls) == 0 {
			continue
		}
		if err := callback(delta); err != nil {
			return nil, err
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("%s streaming error: %w", p.name, err)
	}
	return usage, nil
}

func (p *OpenAIProvider) buildParams(req model.ChatRequest) openai.ChatCompletionNewParams {
	modelName := req.Model
	if modelName == "" {
		modelName = p.model
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelName),
		Messages: ConvertToOpenAIMessages(req.System, req.Messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = mcp.ConvertMCPToolsToOpenAIFormat(req.Tools)
		if req.ToolChoice != "" {
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfAuto: openai.String(string(req.ToolChoice)),
			}
		}
	}
	return params
}

// convertOpenAIDelta translates one streamed choice delta. Reasoning and
// Gemini thought signatures are not part of the typed schema and are read
// from the raw JSON.
func convertOpenAIDelta(d openai.ChatCompletionChunkChoiceDelta) model.Delta {
	out := model.Delta{Content: d.Content}

	for _, key := range reasoningFields {
		if field, ok := d.JSON.ExtraFields[key]; ok {
			if r := gjson.Parse(field.Raw()); r.Type == gjson.String {
				out.Reasoning = r.String()
				break
			}
		}
	}

	for _, tc := range d.ToolCalls {
		td := model.ToolCallDelta{
			Index:     int(tc.Index),
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}
		if sig := gjson.Get(tc.RawJSON(), "extra_content.google.thought_signature"); sig.Exists() {
			td.Continuation = []byte(sig.String())
		}
		out.ToolCalls = append(out.ToolCalls, td)
	}
	return out
}

// ListModels implements model.Provider.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s models: %w", p.name, err)
	}

	result := make([]model.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		result = append(result, model.ModelInfo{
			Name:     m.ID,
			Display:  p.displayName(m.ID),
			Provider: p.name,
		})
	}
	return result, nil
}

// GetModel implements model.Provider.
func (p *OpenAIProvider) GetModel() string {
	return p.model
}

// SetModel implements model.Provider.
func (p *OpenAIProvider) SetModel(model string) {
	p.model = model
}

// Name implements model.Provider.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Ping implements model.Provider by attempting to list models.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", p.name, err)
	}
	return nil
}

// ConvertToOpenAIMessages converts a system prompt and conversation to the
// chat completions format. Assistant tool calls and tool results carry any
// continuation token back as Gemini's extra_content.
func ConvertToOpenAIMessages(system string, messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.SystemMessage(system))
	}

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Text()))

		case model.RoleAssistant:
			asst := openai.ChatCompletionAssistantMessageParam{}
			if text := msg.Text(); text != "" || len(msg.ToolCalls) == 0 {
				asst.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(text)}
			}
			for _, tc := range msg.ToolCalls {
				fn := &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: normalizeArguments(tc.Arguments),
					},
				}
				if len(tc.Continuation) > 0 {
					fn.SetExtraFields(thoughtSignature(tc.Continuation))
				}
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{OfFunction: fn})
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})

		case model.RoleTool:
			tm := openai.ToolMessage(msg.Content, msg.ToolCallID)
			if len(msg.Continuation) > 0 && tm.OfTool != nil {
				tm.OfTool.SetExtraFields(thoughtSignature(msg.Continuation))
			}
			result = append(result, tm)

		default:
			result = append(result, convertOpenAIUserMessage(msg))
		}
	}
	return result
}

func convertOpenAIUserMessage(msg model.Message) openai.ChatCompletionMessageParamUnion {
	if !msg.HasNonText() {
		return openai.UserMessage(msg.Text())
	}

	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		switch part.Type {
		case model.PartText:
			parts = append(parts, openai.TextContentPart(part.Text))
		case model.PartImage:
			img := openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL(part.MediaType, part.Data)}
			if part.Detail != "" {
				img.Detail = part.Detail
			}
			parts = append(parts, openai.ImageContentPart(img))
		case model.PartFile:
			parts = append(parts, openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
				FileData: openai.String(dataURL(part.MediaType, part.Data)),
				Filename: openai.String(part.Filename),
			}))
		}
	}
	return openai.UserMessage(parts)
}

func thoughtSignature(token []byte) map[string]any {
	return map[string]any{
		"extra_content": map[string]any{
			"google": map[string]any{"thought_signature": string(token)},
		},
	}
}

// normalizeArguments returns a valid JSON object for a recorded call. Some
// servers reject an empty arguments string.
func normalizeArguments(args string) string {
	args = strings.TrimSpace(args)
	if args == "" || !json.Valid([]byte(args)) {
		return "{}"
	}
	return args
}
