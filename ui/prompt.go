package ui

import (
	"context"
	"fmt"
	"strings"

	"gptcli/permission"
)

// Prompter asks for tool approval through a LineEditor.
type Prompter struct {
	editor   *LineEditor
	renderer *Renderer
}

var _ permission.Prompter = (*Prompter)(nil)

func NewPrompter(editor *LineEditor, renderer *Renderer) *Prompter {
	return &Prompter{editor: editor, renderer: renderer}
}

func (p *Prompter) Confirm(ctx context.Context, pr permission.Prompt) (bool, error) {
	p.renderer.Println(RenderPrompt(pr, p.renderer.width))
	answer, err := p.editor.ReadLine(ctx, "Allow? [Y/n] ")
	if err != nil {
		return false, err
	}
	return permission.AcceptsConfirm(answer), nil
}

func (p *Prompter) ConfirmTyped(ctx context.Context, pr permission.Prompt) (bool, error) {
	p.renderer.Println(RenderPrompt(pr, p.renderer.width))
	answer, err := p.editor.ReadLine(ctx, "Type 'yes' to run it anyway: ")
	if err != nil {
		return false, err
	}
	return permission.AcceptsTyped(answer), nil
}

// RenderPrompt draws the approval panel for a tool call.
func RenderPrompt(pr permission.Prompt, width int) string {
	var b strings.Builder
	title := fmt.Sprintf("%s wants to run", pr.Tool)
	style := PanelStyle
	if pr.Dangerous {
		title = fmt.Sprintf("DANGEROUS %s command", pr.Tool)
		style = DangerPanelStyle
		b.WriteString(ErrorStyle.Render(title))
	} else {
		b.WriteString(TitleStyle.Render(title))
	}
	if pr.Header != "" {
		b.WriteString("\n" + DimStyle.Render(pr.Header))
	}
	if pr.Preview != "" {
		b.WriteString("\n\n" + HighlightCode(pr.Preview, pr.Language))
	}

	if width > 4 {
		style = style.MaxWidth(width)
	}
	return style.Render(b.String())
}
