package ui

import (
	"regexp"
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	"github.com/alecthomas/chroma/v2/quick"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"
)

var (
	inlineCodeRegex = regexp.MustCompile(`(?s)\x1b\[44;3m(.*?)\x1b\[0m`)
	mdLinkRegex     = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\)]+)\)`)
	urlRegex        = regexp.MustCompile(`(https?://[^\s\x1b]+)`)
)

const (
	ansiRed   = "\x1b[31m"
	ansiGray  = "\x1b[90m"
	ansiReset = "\x1b[0m"
)

// RenderMarkdown renders prose for the terminal at the given width.
// Fenced code never reaches it; the stream parser splits code out first.
func RenderMarkdown(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return content
	}
	if width < 20 {
		width = 20
	}

	content = preprocessLinks(content)

	// Autolink stays off so URLs remain plain text the terminal can detect.
	ext := markdown.Extensions() &^ parser.Autolink
	p := parser.NewWithExtensions(ext)
	doc := p.Parse([]byte(content))
	rendered := string(gomarkdown.Render(doc, markdown.NewRenderer(width, 0)))

	rendered = fixInlineCode(rendered)
	rendered = colorURLs(rendered)
	return strings.TrimRight(rendered, "\n") + "\n"
}

// preprocessLinks turns [text](url) into a bare url.
func preprocessLinks(content string) string {
	return mdLinkRegex.ReplaceAllString(content, "$2")
}

// fixInlineCode swaps the renderer's blue-background inline code for red
// text.
func fixInlineCode(s string) string {
	return inlineCodeRegex.ReplaceAllString(s, ansiRed+"$1"+ansiReset)
}

func colorURLs(s string) string {
	return urlRegex.ReplaceAllString(s, ansiRed+"$1"+ansiReset)
}

// HighlightCode colors code for a 256-color terminal. Unknown or empty
// languages render faint.
func HighlightCode(code, language string) string {
	if language == "" {
		return FaintStyle.Render(code)
	}
	var buf strings.Builder
	if err := quick.Highlight(&buf, code, language, "terminal256", "monokai"); err != nil {
		return FaintStyle.Render(code)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// CodeBorder draws a horizontal rule of the given width with an optional
// centered label.
func CodeBorder(label string, width int) string {
	if width < 10 {
		width = 10
	}
	if label == "" {
		return ansiGray + strings.Repeat("━", width) + ansiReset
	}
	label = "[" + label + "]"
	left := (width - len(label)) / 2
	right := width - len(label) - left
	if left < 1 {
		left, right = 1, 1
	}
	return ansiGray + strings.Repeat("━", left) + ansiReset + label + ansiGray + strings.Repeat("━", right) + ansiReset
}

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// StripANSI removes terminal escape sequences.
func StripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}
