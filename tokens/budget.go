package tokens

import "strings"

// DefaultTrimRatio is the fraction of the available window handed to the
// prompt by the truncation fallback.
const DefaultTrimRatio = 0.75

// Budget describes the token window of one model call. It is derived for
// each turn and never stored.
type Budget struct {
	ContextLimit         int
	SystemPromptTokens   int
	ReserveForCompletion int
	VendorOffset         int
	ToolsTokens          int
	TrimRatio            float64
}

// NewBudget derives a budget for modelName with the reserve and vendor
// offset heuristics applied.
func NewBudget(modelName string, contextLimit, systemTokens, toolsTokens int) Budget {
	return Budget{
		ContextLimit:         contextLimit,
		SystemPromptTokens:   systemTokens,
		ReserveForCompletion: ReserveFor(contextLimit),
		VendorOffset:         VendorOffsetFor(modelName),
		ToolsTokens:          toolsTokens,
		TrimRatio:            DefaultTrimRatio,
	}
}

// Available is the number of tokens left for conversation messages.
// It is never negative.
func (b Budget) Available() int {
	n := b.ContextLimit - b.SystemPromptTokens - b.ReserveForCompletion - b.VendorOffset - b.ToolsTokens
	if n < 0 {
		return 0
	}
	return n
}

// PromptBudget is the trimmed share of Available used by truncation.
func (b Budget) PromptBudget() int {
	ratio := b.TrimRatio
	if ratio <= 0 || ratio > 1 {
		ratio = DefaultTrimRatio
	}
	return int(float64(b.Available()) * ratio)
}

// Ratio reports used as a fraction of Available. A budget with nothing
// available is always full.
func (b Budget) Ratio(used int) float64 {
	avail := b.Available()
	if avail <= 0 {
		return 1
	}
	return float64(used) / float64(avail)
}

// ReserveFor returns the completion reserve for a context window size.
func ReserveFor(contextLimit int) int {
	switch {
	case contextLimit >= 200_000:
		return 32_000
	case contextLimit >= 128_000:
		return 16_000
	default:
		return 4_096
	}
}

var vendorOffsets = []struct {
	match  []string
	offset int
}{
	{[]string{"anthropic", "claude"}, 50_000},
	{[]string{"google", "gemini"}, 10_000},
	{[]string{"openai", "gpt-", "o1", "o3", "o4"}, 10_000},
}

// VendorOffsetFor returns the extra safety margin for a model family whose
// server-side token counts run ahead of the local estimate.
func VendorOffsetFor(modelName string) int {
	name := strings.ToLower(modelName)
	for _, v := range vendorOffsets {
		for _, m := range v.match {
			if strings.Contains(name, m) {
				return v.offset
			}
		}
	}
	return 0
}
