package mcp

import (
	"encoding/json"
	"testing"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"

	"gptcli/tools"
)

func TestConvertMCPToolsToOllama(t *testing.T) {
	tests := []struct {
		name     string
		input    []mcptypes.Tool
		expected int
		validate func(t *testing.T, result []api.Tool)
	}{
		{
			name:     "empty tools",
			input:    []mcptypes.Tool{},
			expected: 0,
		},
		{
			name: "tool with enum and required",
			input: []mcptypes.Tool{
				mcptypes.NewTool("calculate",
					mcptypes.WithDescription("Perform calculation"),
					mcptypes.WithString("operation", mcptypes.Required(),
						mcptypes.Description("The operation to perform"),
						mcptypes.Enum("add", "subtract", "multiply", "divide")),
					mcptypes.WithNumber("a", mcptypes.Required()),
					mcptypes.WithNumber("b", mcptypes.Required()),
				),
			},
			expected: 1,
			validate: func(t *testing.T, result []api.Tool) {
				fn := result[0].Function
				if result[0].Type != "function" || fn.Name != "calculate" || fn.Description != "Perform calculation" {
					t.Errorf("unexpected tool header: %+v", result[0])
				}
				if fn.Parameters.Type != "object" {
					t.Errorf("expected type 'object', got %q", fn.Parameters.Type)
				}
				if len(fn.Parameters.Required) != 3 || len(fn.Parameters.Properties) != 3 {
					t.Errorf("required=%v properties=%d", fn.Parameters.Required, len(fn.Parameters.Properties))
				}
				op := fn.Parameters.Properties["operation"]
				if op.Description != "The operation to perform" {
					t.Errorf("operation description = %q", op.Description)
				}
				if len(op.Enum) != 4 {
					t.Errorf("expected 4 enum values, got %d", len(op.Enum))
				}
			},
		},
		{
			name:     "missing schema type defaults to object",
			input:    []mcptypes.Tool{{Name: "bare"}},
			expected: 1,
			validate: func(t *testing.T, result []api.Tool) {
				if result[0].Function.Parameters.Type != "object" {
					t.Errorf("type = %q", result[0].Function.Parameters.Type)
				}
				if result[0].Function.Parameters.Properties == nil {
					t.Error("properties should be an empty map")
				}
			},
		},
		{
			name:     "built-in tools",
			input:    tools.Definitions(),
			expected: len(tools.Definitions()),
			validate: func(t *testing.T, result []api.Tool) {
				for _, tool := range result {
					if len(tool.Function.Parameters.Properties) == 0 {
						t.Errorf("%s has no properties", tool.Function.Name)
					}
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertMCPToolsToOllama(tt.input)
			if len(result) != tt.expected {
				t.Fatalf("expected %d tools, got %d", tt.expected, len(result))
			}
			if tt.validate != nil {
				tt.validate(t, result)
			}
		})
	}
}

func TestConvertPropertyValue(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		validate func(t *testing.T, p api.ToolProperty)
	}{
		{
			name:  "string type",
			input: map[string]any{"type": "string", "description": "a name"},
			validate: func(t *testing.T, p api.ToolProperty) {
				if len(p.Type) != 1 || p.Type[0] != "string" || p.Description != "a name" {
					t.Errorf("got %+v", p)
				}
			},
		},
		{
			name:  "union type from []any",
			input: map[string]any{"type": []any{"string", "null"}},
			validate: func(t *testing.T, p api.ToolProperty) {
				if len(p.Type) != 2 || p.Type[1] != "null" {
					t.Errorf("got %+v", p.Type)
				}
			},
		},
		{
			name:  "string enum",
			input: map[string]any{"type": "string", "enum": []string{"a", "b"}},
			validate: func(t *testing.T, p api.ToolProperty) {
				if len(p.Enum) != 2 || p.Enum[0] != "a" {
					t.Errorf("got %+v", p.Enum)
				}
			},
		},
		{
			name:  "anyOf",
			input: map[string]any{"anyOf": []any{map[string]any{"type": "string"}, map[string]any{"type": "number"}}},
			validate: func(t *testing.T, p api.ToolProperty) {
				if len(p.AnyOf) != 2 || p.AnyOf[1].Type[0] != "number" {
					t.Errorf("got %+v", p.AnyOf)
				}
			},
		},
		{
			name:  "struct value round-trips through JSON",
			input: struct{ Type string `json:"type"` }{Type: "boolean"},
			validate: func(t *testing.T, p api.ToolProperty) {
				if len(p.Type) != 1 || p.Type[0] != "boolean" {
					t.Errorf("got %+v", p.Type)
				}
			},
		},
		{
			name:  "unmarshalable value",
			input: func() {},
			validate: func(t *testing.T, p api.ToolProperty) {
				if len(p.Type) != 0 {
					t.Errorf("expected zero property, got %+v", p)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validate(t, convertPropertyValue(tt.input))
		})
	}
}

func TestConvertMCPToolsToOpenAIFormat(t *testing.T) {
	if got := ConvertMCPToolsToOpenAIFormat(nil); got != nil {
		t.Errorf("expected nil, got %v", got)
	}

	result := ConvertMCPToolsToOpenAIFormat(tools.Definitions())
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded []struct {
		Type     string `json:"type"`
		Function struct {
			Name       string         `json:"name"`
			Parameters map[string]any `json:"parameters"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded) != len(tools.Definitions()) {
		t.Fatalf("got %d tools", len(decoded))
	}
	for _, d := range decoded {
		if d.Type != "function" {
			t.Errorf("%s: type = %q", d.Function.Name, d.Type)
		}
		if d.Function.Parameters["type"] != "object" {
			t.Errorf("%s: parameters.type = %v", d.Function.Name, d.Function.Parameters["type"])
		}
		if _, ok := d.Function.Parameters["required"]; !ok {
			t.Errorf("%s: missing required list", d.Function.Name)
		}
	}
}

func TestConvertMCPToolsToAnthropicFormat(t *testing.T) {
	if got := ConvertMCPToolsToAnthropicFormat(nil); got != nil {
		t.Errorf("expected nil, got %v", got)
	}

	result := ConvertMCPToolsToAnthropicFormat(tools.Definitions())
	for i, tool := range result {
		if tool.OfTool == nil {
			t.Fatalf("tool %d is not a custom tool", i)
		}
		if tool.OfTool.Name != tools.Definitions()[i].Name {
			t.Errorf("tool %d name = %q", i, tool.OfTool.Name)
		}
		if len(tool.OfTool.InputSchema.Required) == 0 {
			t.Errorf("%s: missing required fields", tool.OfTool.Name)
		}
	}
}
