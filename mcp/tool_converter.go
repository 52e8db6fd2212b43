// Package mcp converts MCP tool definitions, the schema format used for
// the built-in tools, into each provider's wire format.
package mcp

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
)

// schemaProperties returns the tool's properties, never nil. Several APIs
// reject a null "properties" object.
func schemaProperties(tool mcptypes.Tool) map[string]any {
	if tool.InputSchema.Properties == nil {
		return map[string]any{}
	}
	return tool.InputSchema.Properties
}

// ConvertMCPToolsToOllama converts MCP tools to Ollama API tool format.
func ConvertMCPToolsToOllama(mcpTools []mcptypes.Tool) []api.Tool {
	ollamaTools := make([]api.Tool, 0, len(mcpTools))
	for _, tool := range mcpTools {
		ollamaTools = append(ollamaTools, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  convertInputSchemaToParameters(tool),
			},
		})
	}
	return ollamaTools
}

func convertInputSchemaToParameters(tool mcptypes.Tool) api.ToolFunctionParameters {
	schemaType := tool.InputSchema.Type
	if schemaType == "" {
		schemaType = "object"
	}
	params := api.ToolFunctionParameters{
		Type:       schemaType,
		Required:   tool.InputSchema.Required,
		Properties: make(map[string]api.ToolProperty),
	}
	if tool.InputSchema.Defs != nil {
		params.Defs = tool.InputSchema.Defs
	}
	for name, value := range schemaProperties(tool) {
		params.Properties[name] = convertPropertyValue(value)
	}
	return params
}

// convertPropertyValue converts one JSON Schema property to an Ollama
// ToolProperty. Values that are not maps are round-tripped through JSON.
func convertPropertyValue(propValue any) api.ToolProperty {
	toolProp := api.ToolProperty{}

	propMap, ok := propValue.(map[string]any)
	if !ok {
		raw, err := json.Marshal(propValue)
		if err != nil {
			return toolProp
		}
		if err := json.Unmarshal(raw, &propMap); err != nil {
			return toolProp
		}
	}

	switch t := propMap["type"].(type) {
	case string:
		toolProp.Type = api.PropertyType{t}
	case []string:
		toolProp.Type = api.PropertyType(t)
	case []any:
		types := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				types = append(types, s)
			}
		}
		toolProp.Type = api.PropertyType(types)
	}

	if desc, ok := propMap["description"].(string); ok {
		toolProp.Description = desc
	}

	switch e := propMap["enum"].(type) {
	case []any:
		toolProp.Enum = e
	case []string:
		for _, s := range e {
			toolProp.Enum = append(toolProp.Enum, s)
		}
	}

	if items, ok := propMap["items"]; ok {
		toolProp.Items = items
	}

	if anyOf, ok := propMap["anyOf"].([]any); ok {
		for _, item := range anyOf {
			toolProp.AnyOf = append(toolProp.AnyOf, convertPropertyValue(item))
		}
	}

	return toolProp
}

// ConvertMCPToolsToOpenAIFormat converts MCP tools to the chat completions
// function tool format, shared by OpenAI, OpenRouter and Gemini.
//
//	{"type": "function", "function": {"name": ..., "description": ..., "parameters": {...}}}
func ConvertMCPToolsToOpenAIFormat(mcpTools []mcptypes.Tool) []openai.ChatCompletionToolUnionParam {
	if len(mcpTools) == 0 {
		return nil
	}

	result := make([]openai.ChatCompletionToolUnionParam, len(mcpTools))
	for i, tool := range mcpTools {
		params := openai.FunctionParameters{
			"type":       "object",
			"properties": schemaProperties(tool),
		}
		if len(tool.InputSchema.Required) > 0 {
			params["required"] = tool.InputSchema.Required
		}
		if tool.InputSchema.Defs != nil {
			params["$defs"] = tool.InputSchema.Defs
		}

		def := openai.FunctionDefinitionParam{
			Name:       tool.Name,
			Parameters: params,
		}
		if tool.Description != "" {
			def.Description = openai.String(tool.Description)
		}
		result[i] = openai.ChatCompletionFunctionTool(def)
	}
	return result
}

// ConvertMCPToolsToAnthropicFormat converts MCP tools to Anthropic tool
// params with an input_schema.
func ConvertMCPToolsToAnthropicFormat(mcpTools []mcptypes.Tool) []anthropic.ToolUnionParam {
	if len(mcpTools) == 0 {
		return nil
	}

	result := make([]anthropic.ToolUnionParam, len(mcpTools))
	for i, tool := range mcpTools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Properties: schemaProperties(tool),
		}
		if len(tool.InputSchema.Required) > 0 {
			inputSchema.Required = tool.InputSchema.Required
		}
		if tool.InputSchema.Defs != nil {
			inputSchema.ExtraFields = map[string]any{"$defs": tool.InputSchema.Defs}
		}

		result[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
		if tool.Description != "" {
			result[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}
	return result
}
