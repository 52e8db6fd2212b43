package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"gptcli/agent"
	"gptcli/model"
	"gptcli/stream"
)

const (
	ansiReasoning   = "\x1b[2;3m"
	toolResultLines = 4
)

// Renderer writes a parsed response stream to the terminal. In pretty mode
// prose is rendered as markdown and code is highlighted; in raw mode text
// is written as received.
type Renderer struct {
	out     io.Writer
	width   int
	pretty  bool
	spinner *Spinner

	inReasoning bool
	codeLang    string
	midLine     bool
}

var _ stream.Sink = (*Renderer)(nil)

func NewRenderer(out io.Writer, width int, pretty bool) *Renderer {
	if width <= 0 {
		width = 80
	}
	return &Renderer{out: out, width: width, pretty: pretty}
}

// AttachSpinner makes every write stop s first.
func (r *Renderer) AttachSpinner(s *Spinner) {
	r.spinner = s
}

func (r *Renderer) SetPretty(pretty bool) { r.pretty = pretty }
func (r *Renderer) Pretty() bool          { return r.pretty }
func (r *Renderer) Width() int            { return r.width }
func (r *Renderer) SetWidth(width int) {
	if width > 0 {
		r.width = width
	}
}

func (r *Renderer) write(s string) {
	if r.spinner != nil {
		r.spinner.Stop()
	}
	if s == "" {
		return
	}
	io.WriteString(r.out, s)
	r.midLine = !strings.HasSuffix(s, "\n")
}

// EndLine terminates a partially written line.
func (r *Renderer) EndLine() {
	if r.midLine {
		r.write("\n")
	}
}

func (r *Renderer) OnProse(text string) {
	if r.pretty {
		r.write(RenderMarkdown(text, r.width))
		return
	}
	r.write(text)
}

func (r *Renderer) OnCodeStart(language string) {
	r.codeLang = language
	if r.pretty {
		label := language
		if label == "" {
			label = "code"
		}
		r.write(CodeBorder(label, r.width) + "\n")
		return
	}
	r.write("```" + language + "\n")
}

func (r *Renderer) OnCodeLine(line string) {
	if r.pretty {
		r.write(HighlightCode(line, r.codeLang) + "\n")
		return
	}
	r.write(line + "\n")
}

func (r *Renderer) OnCodeEnd(block stream.Segment) {
	r.codeLang = ""
	if r.pretty {
		if block.Unterminated {
			r.write(WarningStyle.Render("(code block not closed)") + "\n")
		}
		r.write(CodeBorder("", r.width) + "\n")
		return
	}
	if !block.Unterminated {
		r.write("```\n")
	}
}

func (r *Renderer) OnReasoning(text string) {
	if !r.inReasoning {
		r.inReasoning = true
		if r.pretty {
			r.write(DimStyle.Render("Thinking") + "\n")
		} else {
			r.write("[thinking]\n")
		}
	}
	if r.pretty {
		r.write(ansiReasoning + text + ansiReset)
		return
	}
	r.write(text)
}

func (r *Renderer) OnReasoningEnd() {
	if !r.inReasoning {
		return
	}
	r.inReasoning = false
	if r.pretty {
		r.write("\n" + CodeBorder("", r.width/3) + "\n")
		return
	}
	r.write("\n[/thinking]\n")
}

// ToolStart announces a tool call about to run.
func (r *Renderer) ToolStart(call model.ToolCall, args map[string]any) {
	summary := runewidth.Truncate(toolSummary(args), r.width-len(call.Name)-6, "...")
	r.write(ToolStyle.Render("⏺ "+call.Name) + DimStyle.Render("("+summary+")") + "\n")
}

// ToolEnd shows the head of a tool result.
func (r *Renderer) ToolEnd(inv agent.Invocation) {
	style := DimStyle
	switch {
	case !inv.Allowed:
		style = WarningStyle
		r.write(ToolStyle.Render("⏺ "+inv.Call.Name) + "\n")
	case !inv.OK:
		style = ErrorStyle
	}

	lines := strings.Split(strings.TrimRight(inv.Result, "\n"), "\n")
	shown := lines
	if len(shown) > toolResultLines {
		shown = shown[:toolResultLines]
	}
	for i, line := range shown {
		prefix := "  ⎿ "
		if i > 0 {
			prefix = "    "
		}
		r.write(prefix + style.Render(runewidth.Truncate(line, r.width-6, "...")) + "\n")
	}
	if extra := len(lines) - len(shown); extra > 0 {
		r.write(FaintStyle.Render(fmt.Sprintf("    … %d more lines", extra)) + "\n")
	}
}

func (r *Renderer) Warning(msg string) {
	r.write(WarningStyle.Render("! "+msg) + "\n")
}

func (r *Renderer) Error(msg string) {
	r.write(ErrorStyle.Render("✗ "+msg) + "\n")
}

func (r *Renderer) Info(msg string) {
	r.write(DimStyle.Render(msg) + "\n")
}

func (r *Renderer) Success(msg string) {
	r.write(SuccessStyle.Render("✓ "+msg) + "\n")
}

// Println writes s unstyled.
func (r *Renderer) Println(s string) {
	r.write(s + "\n")
}

// Usage prints the token usage of a finished turn.
func (r *Renderer) Usage(u model.Usage) {
	if u.TotalTokens == 0 {
		return
	}
	r.Info(fmt.Sprintf("tokens: %d prompt · %d completion · %d total", u.PromptTokens, u.CompletionTokens, u.TotalTokens))
}

// Message prints a stored message, used by /last and when a session is
// resumed.
func (r *Renderer) Message(msg model.Message) {
	switch msg.Role {
	case model.RoleUser:
		r.write(UserStyle.Render("You") + "\n" + msg.Text() + "\n\n")
	case model.RoleAssistant:
		if msg.IsSummary() {
			r.write(DimStyle.Render(fmt.Sprintf("Summary (level %d)", msg.Summary.Level)) + "\n")
		} else {
			r.write(AssistantStyle.Render("Assistant") + "\n")
		}
		p := stream.NewParser(r)
		p.Feed(msg.Content)
		p.Finish()
		r.write("\n")
	}
}

func toolSummary(args map[string]any) string {
	for _, key := range []string{"command", "file_path", "pattern", "path"} {
		if v, ok := args[key].(string); ok && v != "" {
			return strings.ReplaceAll(v, "\n", " ")
		}
	}
	return ""
}
