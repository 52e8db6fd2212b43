package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"gptcli/model"
	"gptcli/storage"
	"gptcli/tokens"
)

// RenderContextReport formats a token report. Verbose adds the heaviest
// messages with a preview of each.
func RenderContextReport(r tokens.Report, msgs []model.Message, verbose bool, width int) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Context usage") + "\n")

	row := func(label, value string) {
		b.WriteString(padRight(label, 22) + value + "\n")
	}
	row("Messages", fmt.Sprintf("%d (%d summaries)", r.Messages, r.SummaryCount))
	row("Text", fmt.Sprintf("%d tokens", r.TextTokens))
	if r.ImageCount > 0 {
		row("Images", fmt.Sprintf("%d tokens (%d)", r.ImageTokens, r.ImageCount))
	}
	if r.FileCount > 0 {
		row("PDFs", fmt.Sprintf("%d tokens (%d)", r.FileTokens, r.FileCount))
	}
	row("Total", fmt.Sprintf("%d / %d tokens (%s)", r.TotalTokens, r.Budget.ContextLimit, usageBar(r.UsedOfLimit)))
	row("Prompt budget", fmt.Sprintf("%d tokens (%.0f%% used)", r.Budget.PromptBudget(), r.UsedOfPrompt*100))
	row("Reserved for reply", fmt.Sprintf("%d tokens", r.Budget.ReserveForCompletion))
	if r.Budget.VendorOffset > 0 {
		row("Vendor margin", fmt.Sprintf("%d tokens", r.Budget.VendorOffset))
	}
	if r.Budget.ToolsTokens > 0 {
		row("Tool schemas", fmt.Sprintf("%d tokens", r.Budget.ToolsTokens))
	}

	if !verbose || len(r.Heaviest) == 0 {
		return strings.TrimRight(b.String(), "\n")
	}

	b.WriteString("\n" + TitleStyle.Render("Heaviest messages") + "\n")
	previewWidth := width - 30
	if previewWidth < 20 {
		previewWidth = 20
	}
	for _, c := range r.Heaviest {
		preview := ""
		if c.Index < len(msgs) {
			preview = strings.Join(strings.Fields(msgs[c.Index].Text()), " ")
		}
		extra := ""
		if c.Images > 0 || c.Files > 0 {
			extra = fmt.Sprintf(" [%d img, %d pdf]", c.Images, c.Files)
		}
		fmt.Fprintf(&b, "#%-4d %-9s %7d%s  %s\n", c.Index, c.Role, c.Tokens, extra,
			DimStyle.Render(runewidth.Truncate(preview, previewWidth, "...")))
	}
	return strings.TrimRight(b.String(), "\n")
}

func usageBar(ratio float64) string {
	const cells = 20
	filled := int(ratio*cells + 0.5)
	if filled > cells {
		filled = cells
	}
	if filled < 0 {
		filled = 0
	}
	style := SuccessStyle
	switch {
	case ratio >= 0.9:
		style = ErrorStyle
	case ratio >= 0.7:
		style = WarningStyle
	}
	return style.Render(strings.Repeat("█", filled)) + FaintStyle.Render(strings.Repeat("░", cells-filled)) +
		fmt.Sprintf(" %.0f%%", ratio*100)
}

func padRight(s string, width int) string {
	if w := runewidth.StringWidth(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

// RenderSessionList formats stored sessions, marking the current one.
func RenderSessionList(sessions []storage.SessionMetadata, current string) string {
	if len(sessions) == 0 {
		return DimStyle.Render("No saved sessions.")
	}
	var b strings.Builder
	for _, s := range sessions {
		marker := "  "
		name := s.Name
		if s.Name == current {
			marker = "▸ "
			name = HighlightStyle.Render(name)
		}
		fmt.Fprintf(&b, "%s%s %s\n", marker, padRight(name, 24),
			DimStyle.Render(fmt.Sprintf("%d msgs · %s · %s", s.MessageCount, s.Model, humanTime(s.UpdatedAt))))
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderModelList formats models, marking the current one.
func RenderModelList(models []model.ModelInfo, current string) string {
	if len(models) == 0 {
		return DimStyle.Render("No models found.")
	}
	var b strings.Builder
	for i, m := range models {
		name := m.DisplayName()
		marker := "  "
		if m.Name == current {
			marker = "▸ "
			name = HighlightStyle.Render(name)
		}
		fmt.Fprintf(&b, "%s%3d  %s", marker, i+1, name)
		if m.Provider != "" {
			b.WriteString(" " + DimStyle.Render("("+m.Provider+")"))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderSearchResults formats message search hits.
func RenderSearchResults(matches []storage.MessageMatch) string {
	if len(matches) == 0 {
		return DimStyle.Render("No matches.")
	}
	var b strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&b, "%s #%d %s  %s\n", HighlightStyle.Render(m.SessionName), m.MessageIndex, DimStyle.Render(m.Role), m.Preview)
	}
	return strings.TrimRight(b.String(), "\n")
}

func humanTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2")
	}
}
