// Package tokens estimates token usage and fits conversations into a
// model's prompt budget.
package tokens

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"
	"unicode/utf8"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/mattn/go-runewidth"
	_ "golang.org/x/image/webp"

	"gptcli/model"
)

const (
	// MessageOverhead is added to every message for role and framing tokens.
	MessageOverhead = 20

	lowDetailImageTokens  = 85
	imageTileTokens       = 170
	unknownImageTokens    = 1105
	unknownDocumentTokens = 1000
	minDocumentTokens     = 500
	asciiCharsPerToken    = 4.0
)

// Counter estimates token counts. Implementations must be conservative:
// overestimating is acceptable, underestimating is not.
type Counter interface {
	CountText(text string) int
	CountMessage(msg model.Message) int
}

// Estimator is the heuristic Counter used by the CLI. It approximates BPE
// tokenization: runs of ASCII cost about one token per four bytes, wide
// runes cost a token each, and the total is scaled per vendor.
type Estimator struct {
	multiplier float64
}

// NewEstimator returns an estimator tuned for the given model name.
func NewEstimator(modelName string) *Estimator {
	return &Estimator{multiplier: VendorMultiplier(modelName)}
}

// VendorMultiplier returns the factor applied to text estimates. Claude and
// Gemini tokenizers produce more tokens than OpenAI's for the same text.
func VendorMultiplier(modelName string) float64 {
	name := strings.ToLower(modelName)
	switch {
	case strings.Contains(name, "anthropic"), strings.Contains(name, "claude"):
		return 1.1
	case strings.Contains(name, "google"), strings.Contains(name, "gemini"):
		return 1.2
	default:
		return 1.0
	}
}

// CountText estimates the tokens of a plain string.
func (e *Estimator) CountText(text string) int {
	if text == "" {
		return 0
	}
	var ascii, wide float64
	for _, r := range text {
		if r < utf8.RuneSelf {
			ascii++
			continue
		}
		// Wide (CJK) runes are usually a token each; other multibyte runes
		// tend to split into two or three byte-level tokens.
		if runewidth.RuneWidth(r) >= 2 {
			wide++
		} else {
			wide += 0.5
		}
	}
	raw := ascii/asciiCharsPerToken + wide
	mult := e.multiplier
	if mult == 0 {
		mult = 1
	}
	return int(math.Ceil(raw * mult))
}

// CountMessage estimates one message including attachments and tool calls.
func (e *Estimator) CountMessage(msg model.Message) int {
	total := MessageOverhead
	if len(msg.ToolCalls) > 0 {
		if payload, err := json.Marshal(msg.ToolCalls); err == nil {
			total += len(payload) / 3
		}
	}
	if msg.Role == model.RoleTool {
		total += len(msg.ToolCallID)/4 + 10
	}
	if len(msg.Parts) == 0 {
		return total + e.CountText(msg.Content)
	}
	for _, part := range msg.Parts {
		switch part.Type {
		case model.PartText:
			total += e.CountText(part.Text)
		case model.PartImage:
			total += ImageTokens(part.Data, part.Detail)
		case model.PartFile:
			total += DocumentTokens(part.Data)
		}
	}
	return total
}

// CountMessages sums CountMessage over msgs.
func CountMessages(c Counter, msgs []model.Message) int {
	total := 0
	for _, m := range msgs {
		total += c.CountMessage(m)
	}
	return total
}

// CountTools estimates the prompt cost of the tool definitions.
func CountTools(c Counter, defs []mcptypes.Tool) int {
	if len(defs) == 0 {
		return 0
	}
	payload, err := json.Marshal(defs)
	if err != nil {
		return 0
	}
	return c.CountText(string(payload))
}

// ImageTokens estimates an image attachment from its base64 payload using
// 512px tiling. Detail "low" is a flat cost; anything else is high detail.
func ImageTokens(data, detail string) int {
	if detail == "low" {
		return lowDetailImageTokens
	}
	raw, err := decodeBase64(data)
	if err != nil || len(raw) == 0 {
		return unknownImageTokens
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return unknownImageTokens
	}
	return TileTokens(cfg.Width, cfg.Height)
}

// TileTokens returns the high-detail token cost of a w×h image.
func TileTokens(w, h int) int {
	width, height := float64(w), float64(h)
	if width > 2048 || height > 2048 {
		scale := 2048 / math.Max(width, height)
		width, height = width*scale, height*scale
	}
	if short := math.Min(width, height); short > 768 {
		scale := 768 / short
		width, height = width*scale, height*scale
	}
	tiles := int(math.Ceil(width/512)) * int(math.Ceil(height/512))
	return lowDetailImageTokens + imageTileTokens*tiles
}

// DocumentTokens estimates a PDF attachment from its decoded size.
func DocumentTokens(data string) int {
	raw, err := decodeBase64(data)
	if err != nil || len(raw) == 0 {
		return unknownDocumentTokens
	}
	n := len(raw) / 1024 * 3
	if n < minDocumentTokens {
		return minDocumentTokens
	}
	return n
}

func decodeBase64(data string) ([]byte, error) {
	if i := strings.Index(data, ";base64,"); i >= 0 {
		data = data[i+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(data)
}
