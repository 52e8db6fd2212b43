package permission

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"gptcli/tools"
)

const (
	maxPreviewLines = 40
	maxArgDisplay   = 100
)

// Prompt is what the user sees when asked to approve a tool call.
type Prompt struct {
	Tool string
	// Header is a one-line summary such as the file path and line counts.
	Header string
	// Preview is the command, diff or content excerpt.
	Preview string
	// Language names the syntax of Preview ("bash", "diff", or a file
	// extension based lexer name).
	Language  string
	Dangerous bool
}

// AcceptsConfirm reports whether answer approves a yes/no prompt.
func AcceptsConfirm(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "y", "yes":
		return true
	}
	return false
}

// AcceptsTyped reports whether answer approves a typed confirmation.
func AcceptsTyped(answer string) bool {
	return strings.ToLower(strings.TrimSpace(answer)) == "yes"
}

// BuildPrompt renders the preview for a tool call.
func BuildPrompt(toolName string, args map[string]any, baseDir string) Prompt {
	p := Prompt{Tool: toolName}
	switch toolName {
	case tools.Bash:
		cmd, _ := args["command"].(string)
		p.Preview = cmd
		p.Language = "bash"
		if desc, _ := args["description"].(string); desc != "" {
			p.Header = desc
		}
	case tools.Edit:
		p.Header, p.Preview = editPreview(args, baseDir)
		p.Language = "diff"
	case tools.Write:
		p.Header, p.Preview = writePreview(args)
		path, _ := args["file_path"].(string)
		p.Language = languageFor(path)
	default:
		p.Preview = argsPreview(args)
	}
	return p
}

func editPreview(args map[string]any, baseDir string) (string, string) {
	path, _ := args["file_path"].(string)
	oldStr, _ := args["old_string"].(string)
	newStr, _ := args["new_string"].(string)

	oldLines, newLines := countLines(oldStr), countLines(newStr)
	header := fmt.Sprintf("%s  -%d +%d lines (%s)", path, oldLines, newLines, signed(newLines-oldLines))
	if line := findLine(resolvePath(path, baseDir), oldStr); line > 0 {
		header = fmt.Sprintf("%s L%d  -%d +%d lines (%s)", path, line, oldLines, newLines, signed(newLines-oldLines))
	}

	name := filepath.Base(path)
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(strings.TrimSuffix(oldStr, "\n")),
		B:        difflib.SplitLines(strings.TrimSuffix(newStr, "\n")),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  3,
	})
	if err != nil {
		diff = fmt.Sprintf("- %s\n+ %s", oldStr, newStr)
	}
	return header, clipLines(strings.TrimRight(diff, "\n"), maxPreviewLines)
}

func writePreview(args map[string]any) (string, string) {
	path, _ := args["file_path"].(string)
	content, _ := args["content"].(string)
	header := fmt.Sprintf("%s  %d lines, %d chars", path, countLines(content), len(content))
	if content == "" {
		return header, "(empty)"
	}
	return header, clipLines(content, 30)
}

func argsPreview(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		v := fmt.Sprint(args[k])
		if len(v) > maxArgDisplay {
			v = v[:maxArgDisplay] + "..."
		}
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	return strings.TrimRight(b.String(), "\n")
}

// clipLines keeps the head and the last few lines of a long text.
func clipLines(text string, max int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= max {
		return text
	}
	head, tail := max-8, 5
	omitted := len(lines) - head - tail
	out := append([]string{}, lines[:head]...)
	out = append(out, "", fmt.Sprintf("    ... %d lines omitted ...", omitted), "")
	out = append(out, lines[len(lines)-tail:]...)
	return strings.Join(out, "\n")
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

func signed(n int) string {
	if n == 0 {
		return "±0"
	}
	return fmt.Sprintf("%+d", n)
}

func resolvePath(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

// findLine returns the 1-based line where needle starts in the file, or 0.
func findLine(path, needle string) int {
	if path == "" || needle == "" {
		return 0
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	idx := strings.Index(string(data), needle)
	if idx < 0 {
		return 0
	}
	return strings.Count(string(data[:idx]), "\n") + 1
}

func languageFor(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "text"
	}
	return ext
}
