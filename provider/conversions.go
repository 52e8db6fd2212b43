package provider

import (
	"encoding/base64"
	"encoding/json"

	"github.com/ollama/ollama/api"

	"gptcli/model"
)

// ConvertToOllamaMessages converts a system prompt and conversation to
// Ollama api.Message values. Images are attached as raw bytes; files are
// not supported by Ollama and are replaced by their text placeholder.
func ConvertToOllamaMessages(system string, messages []model.Message) []api.Message {
	result := make([]api.Message, 0, len(messages)+1)
	if system != "" {
		result = append(result, api.Message{Role: model.RoleSystem, Content: system})
	}

	for _, msg := range messages {
		out := api.Message{
			Role:    msg.Role,
			Content: msg.Text(),
		}
		for _, part := range msg.Parts {
			if part.Type != model.PartImage {
				continue
			}
			if raw, err := base64.StdEncoding.DecodeString(part.Data); err == nil {
				out.Images = append(out.Images, api.ImageData(raw))
			}
		}
		if msg.Role == model.RoleAssistant {
			out.ToolCalls = ConvertFromProviderToolCalls(msg.ToolCalls)
		}
		if msg.Role == model.RoleTool {
			out.ToolName = msg.ToolName
		}
		result = append(result, out)
	}
	return result
}

// ParseToolArguments parses a JSON arguments string into a map. Invalid
// JSON yields an empty map.
func ParseToolArguments(argsJSON string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil || args == nil {
		return make(map[string]any)
	}
	return args
}

// ConvertToProviderToolCalls converts Ollama tool calls to complete tool
// call deltas. Ollama delivers each call whole, with decoded arguments,
// so the arguments are re-encoded as JSON. offset is the number of calls
// already seen in this response and keeps indices unique across chunks.
//
// Returns nil if the input is empty.
func ConvertToProviderToolCalls(ollamaCalls []api.ToolCall, offset int) []model.ToolCallDelta {
	if len(ollamaCalls) == 0 {
		return nil
	}

	result := make([]model.ToolCallDelta, len(ollamaCalls))
	for i, call := range ollamaCalls {
		args, err := json.Marshal(map[string]any(call.Function.Arguments))
		if err != nil || call.Function.Arguments == nil {
			args = []byte("{}")
		}
		result[i] = model.ToolCallDelta{
			Index:     offset + i,
			Name:      call.Function.Name,
			Arguments: string(args),
		}
	}
	return result
}

// ConvertFromProviderToolCalls converts recorded tool calls back to the
// Ollama format for replay in the working transcript.
//
// Returns nil if the input is empty.
func ConvertFromProviderToolCalls(calls []model.ToolCall) []api.ToolCall {
	if len(calls) == 0 {
		return nil
	}

	result := make([]api.ToolCall, len(calls))
	for i, call := range calls {
		result[i] = api.ToolCall{
			Function: api.ToolCallFunction{
				Index:     i,
				Name:      call.Name,
				Arguments: ParseToolArguments(call.Arguments),
			},
		}
	}
	return result
}

// dataURL builds a base64 data URL from a media type and payload.
func dataURL(mediaType, data string) string {
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return "data:" + mediaType + ";base64," + data
}
