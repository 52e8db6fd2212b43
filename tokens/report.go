package tokens

import (
	"sort"

	"gptcli/model"
)

// MessageCost is the estimated cost of one message in a Report.
type MessageCost struct {
	Index  int
	Role   string
	Tokens int
	Images int
	Files  int
}

// Report is a per-category breakdown of the conversation's token use.
type Report struct {
	Budget       Budget
	Messages     int
	TotalTokens  int
	TextTokens   int
	ImageTokens  int
	FileTokens   int
	ImageCount   int
	FileCount    int
	SummaryCount int
	Heaviest     []MessageCost
	UsedOfLimit  float64
	UsedOfPrompt float64
}

// BuildReport estimates msgs against b. The topN heaviest messages are
// listed in descending cost.
func BuildReport(msgs []model.Message, b Budget, e *Estimator, topN int) Report {
	r := Report{Budget: b, Messages: len(msgs)}
	costs := make([]MessageCost, 0, len(msgs))
	for i, m := range msgs {
		cost := MessageCost{Index: i, Role: m.Role, Tokens: e.CountMessage(m)}
		if m.IsSummary() {
			r.SummaryCount++
		}
		r.TextTokens += MessageOverhead
		if len(m.Parts) == 0 {
			r.TextTokens += e.CountText(m.Content)
		}
		for _, p := range m.Parts {
			switch p.Type {
			case model.PartText:
				r.TextTokens += e.CountText(p.Text)
			case model.PartImage:
				cost.Images++
				r.ImageCount++
				r.ImageTokens += ImageTokens(p.Data, p.Detail)
			case model.PartFile:
				cost.Files++
				r.FileCount++
				r.FileTokens += DocumentTokens(p.Data)
			}
		}
		r.TotalTokens += cost.Tokens
		costs = append(costs, cost)
	}
	// Tool-call payloads are counted in the total only.
	sort.SliceStable(costs, func(i, j int) bool { return costs[i].Tokens > costs[j].Tokens })
	if topN > len(costs) {
		topN = len(costs)
	}
	if topN > 0 {
		r.Heaviest = costs[:topN]
	}
	if b.ContextLimit > 0 {
		r.UsedOfLimit = float64(r.TotalTokens) / float64(b.ContextLimit)
	}
	if pb := b.PromptBudget(); pb > 0 {
		r.UsedOfPrompt = float64(r.TotalTokens) / float64(pb)
	}
	return r
}
