package tokens

import (
	"errors"

	"gptcli/model"
)

// ErrBudgetExhausted means not even the newest message fits the prompt
// budget. The turn must not be sent.
var ErrBudgetExhausted = errors.New("conversation does not fit the token budget")

// Truncate fits msgs into the prompt budget. Summary messages are always
// kept and paid for first; the rest is filled newest to oldest and stops at
// the first message that does not fit. When nothing fits, a newest message
// carrying attachments is retried as text only.
func Truncate(msgs []model.Message, b Budget, c Counter) ([]model.Message, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	if b.SystemPromptTokens >= b.ContextLimit || b.Available() <= 0 {
		return nil, ErrBudgetExhausted
	}

	var summaries, regular []model.Message
	summaryTokens := 0
	for _, m := range msgs {
		if m.IsSummary() {
			summaries = append(summaries, m)
			summaryTokens += c.CountMessage(m)
			continue
		}
		regular = append(regular, m)
	}
	if len(regular) == 0 {
		return summaries, nil
	}

	remaining := b.PromptBudget() - summaryTokens
	if remaining <= 0 {
		return nil, ErrBudgetExhausted
	}

	start := len(regular)
	used := 0
	for i := len(regular) - 1; i >= 0; i-- {
		n := c.CountMessage(regular[i])
		if used+n > remaining {
			break
		}
		used += n
		start = i
	}

	out := make([]model.Message, 0, len(summaries)+len(regular)-start)
	out = append(out, summaries...)
	if start < len(regular) {
		return append(out, regular[start:]...), nil
	}

	last := regular[len(regular)-1]
	if last.HasNonText() {
		minimal := last.TextOnly()
		if c.CountMessage(minimal) <= remaining {
			return append(out, minimal), nil
		}
	}
	return nil, ErrBudgetExhausted
}
