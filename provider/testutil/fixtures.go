package testutil

import (
	"fmt"
	"strings"
	"time"

	"gptcli/model"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// TestMessages returns a sample conversation for testing
func TestMessages() []model.Message {
	return []model.Message{
		{
			Role:      model.RoleUser,
			Content:   "Hello, how are you?",
			Timestamp: time.Now(),
		},
		{
			Role:      model.RoleAssistant,
			Content:   "I'm doing well, thank you!",
			Timestamp: time.Now(),
		},
		{
			Role:      model.RoleUser,
			Content:   "Can you help me with a task?",
			Timestamp: time.Now(),
		},
	}
}

// Conversation returns n alternating user/assistant messages whose content
// is roughly wordsEach words long.
func Conversation(n, wordsEach int) []model.Message {
	msgs := make([]model.Message, 0, n)
	for i := 0; i < n; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		body := strings.Repeat("word ", wordsEach)
		msgs = append(msgs, model.Message{
			Role:      role,
			Content:   fmt.Sprintf("message %d: %s", i, body),
			Timestamp: time.Date(2025, 1, 1, 0, 0, i, 0, time.UTC),
		})
	}
	return msgs
}

// SingleUserMessage returns a single user message for simple tests
func SingleUserMessage(content string) []model.Message {
	return []model.Message{
		{
			Role:      model.RoleUser,
			Content:   content,
			Timestamp: time.Now(),
		},
	}
}

// TestMCPTools returns sample MCP tools for testing
func TestMCPTools() []mcptypes.Tool {
	return []mcptypes.Tool{
		{
			Name:        "Read",
			Description: "Read a file from disk",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"file_path": map[string]any{
						"type":        "string",
						"description": "Path of the file to read",
					},
				},
				Required: []string{"file_path"},
			},
		},
		{
			Name:        "Bash",
			Description: "Run a shell command",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"command": map[string]any{
						"type":        "string",
						"description": "The command to run",
					},
					"timeout": map[string]any{
						"type":        "number",
						"description": "Timeout in milliseconds",
					},
				},
				Required: []string{"command"},
			},
		},
	}
}
