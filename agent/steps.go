package agent

import (
	"fmt"
	"strings"
	"time"

	"gptcli/model"
)

// Step records one executed tool round.
type Step struct {
	Number   int
	Purpose  string
	Tools    []string
	Started  time.Time
	Duration time.Duration
}

// Invocation is the outcome of one tool call.
type Invocation struct {
	Call    model.ToolCall
	Allowed bool
	OK      bool
	Result  string
}

// extractPurpose describes why a round runs: the model's short lead-in
// text when there is one, otherwise something built from the first call.
func extractPurpose(text string, calls []model.ToolCall) string {
	content := strings.TrimSpace(text)
	if content != "" && len(content) < 150 {
		if idx := strings.Index(content, "."); idx > 0 && idx < 100 {
			return content[:idx]
		}
		return content
	}
	if len(calls) == 0 {
		return "Processing response"
	}
	args, err := calls[0].ParseArguments()
	if err == nil {
		if p := purposeFromArgs(args); p != "" {
			return p
		}
	}
	return fmt.Sprintf("Run %s", calls[0].Name)
}

func purposeFromArgs(args map[string]any) string {
	if desc, ok := args["description"].(string); ok && desc != "" {
		return desc
	}
	if cmd, ok := args["command"].(string); ok {
		return fmt.Sprintf("Execute: %s", cmd)
	}
	if path, ok := args["file_path"].(string); ok {
		return fmt.Sprintf("Access file: %s", path)
	}
	if pattern, ok := args["pattern"].(string); ok {
		return fmt.Sprintf("Search for: %s", pattern)
	}
	return ""
}
