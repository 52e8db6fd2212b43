package tokens

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gptcli/model"
)

func TestBudgetMath(t *testing.T) {
	b := Budget{
		ContextLimit:         200_000,
		SystemPromptTokens:   2_000,
		ReserveForCompletion: 32_000,
		VendorOffset:         50_000,
		TrimRatio:            0.75,
	}
	assert.Equal(t, 116_000, b.Available())
	assert.Equal(t, 87_000, b.PromptBudget())
	assert.InDelta(t, 0.819, b.Ratio(95_000), 0.001)
	assert.GreaterOrEqual(t, b.Ratio(95_000), 0.80)

	derived := NewBudget("anthropic/claude-sonnet-4", 200_000, 2_000, 0)
	assert.Equal(t, b, derived)
}

func TestBudgetNeverNegative(t *testing.T) {
	b := Budget{ContextLimit: 8_000, SystemPromptTokens: 7_000, ReserveForCompletion: 4_096}
	assert.Equal(t, 0, b.Available())
	assert.Equal(t, 0, b.PromptBudget())
	assert.Equal(t, 1.0, b.Ratio(10))
}

func TestReserveAndOffsets(t *testing.T) {
	tests := []struct {
		limit   int
		reserve int
	}{
		{1_000_000, 32_000},
		{200_000, 32_000},
		{128_000, 16_000},
		{32_000, 4_096},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.reserve, ReserveFor(tt.limit), "limit %d", tt.limit)
	}

	offsets := map[string]int{
		"anthropic/claude-3.5-sonnet": 50_000,
		"claude-sonnet-4-5":           50_000,
		"google/gemini-2.5-pro":       10_000,
		"openai/gpt-4o":               10_000,
		"llama3.2":                    0,
	}
	for name, want := range offsets {
		assert.Equal(t, want, VendorOffsetFor(name), name)
	}
}

func TestCountText(t *testing.T) {
	e := NewEstimator("gpt-4o")
	assert.Equal(t, 0, e.CountText(""))
	assert.Equal(t, 1, e.CountText("abcd"))
	assert.Equal(t, 2, e.CountText("abcdefgh"))
	assert.Equal(t, 2, e.CountText("你好"))

	claude := NewEstimator("claude-opus")
	assert.Equal(t, 3, claude.CountText("abcdefgh"))
	gemini := NewEstimator("gemini-2.5-flash")
	assert.Equal(t, 12, gemini.CountText(strings.Repeat("a", 40)))
}

func TestCountMessage(t *testing.T) {
	e := NewEstimator("")

	plain := model.NewUserMessage("abcdefgh")
	assert.Equal(t, MessageOverhead+2, e.CountMessage(plain))

	withCalls := model.Message{
		Role:      model.RoleAssistant,
		ToolCalls: []model.ToolCall{{ID: "call_1", Name: "Read", Arguments: `{"file_path":"a.go"}`}},
	}
	assert.Greater(t, e.CountMessage(withCalls), MessageOverhead+10)

	result := model.Message{Role: model.RoleTool, ToolCallID: "call_123", Content: "ok"}
	assert.Equal(t, MessageOverhead+2+10+1, e.CountMessage(result))

	lowImage := model.Message{Role: model.RoleUser, Parts: []model.ContentPart{
		model.TextPart("look"),
		model.ImagePart("image/png", "", "low"),
	}}
	assert.Equal(t, MessageOverhead+1+85, e.CountMessage(lowImage))
}

func TestImageTokens(t *testing.T) {
	assert.Equal(t, 255, TileTokens(512, 512))
	assert.Equal(t, 765, TileTokens(1024, 1024))
	assert.Equal(t, 1105, TileTokens(4096, 2048))

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1024, 1024))))
	data := base64.StdEncoding.EncodeToString(buf.Bytes())

	assert.Equal(t, 765, ImageTokens(data, "high"))
	assert.Equal(t, 765, ImageTokens("data:image/png;base64,"+data, "auto"))
	assert.Equal(t, 85, ImageTokens(data, "low"))
	assert.Equal(t, 1105, ImageTokens("not base64!", "high"))
}

func TestDocumentTokens(t *testing.T) {
	small := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 tiny"))
	assert.Equal(t, 500, DocumentTokens(small))

	large := base64.StdEncoding.EncodeToString(make([]byte, 400*1024))
	assert.Equal(t, 1200, DocumentTokens(large))

	assert.Equal(t, 1000, DocumentTokens("%%%"))
}

// fixedCounter charges a flat cost per message so truncation tests can
// reason in whole messages.
type fixedCounter struct {
	perMessage int
	image      int
}

func (f fixedCounter) CountText(text string) int { return len(text) }

func (f fixedCounter) CountMessage(m model.Message) int {
	n := f.perMessage
	for _, p := range m.Parts {
		if p.Type != model.PartText {
			n += f.image
		}
	}
	return n
}

func budgetFor(prompt int) Budget {
	// Available == prompt/0.5, PromptBudget == prompt.
	return Budget{ContextLimit: prompt * 2, TrimRatio: 0.5}
}

func TestTruncate(t *testing.T) {
	c := fixedCounter{perMessage: 10, image: 1000}

	t.Run("keeps newest that fit", func(t *testing.T) {
		msgs := make([]model.Message, 6)
		for i := range msgs {
			msgs[i] = model.NewUserMessage(string(rune('a' + i)))
		}
		out, err := Truncate(msgs, budgetFor(35), c)
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, "d", out[0].Content)
		assert.Equal(t, "f", out[2].Content)
	})

	t.Run("summaries kept and paid first", func(t *testing.T) {
		summary := model.NewAssistantMessage("[Previous conversation summary] ...")
		summary.Summary = &model.SummaryMetadata{Level: 1}
		msgs := []model.Message{
			summary,
			model.NewUserMessage("a"),
			model.NewAssistantMessage("b"),
			model.NewUserMessage("c"),
		}
		out, err := Truncate(msgs, budgetFor(30), c)
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.True(t, out[0].IsSummary())
		assert.Equal(t, "b", out[1].Content)
		assert.Equal(t, "c", out[2].Content)
	})

	t.Run("only summaries", func(t *testing.T) {
		summary := model.NewAssistantMessage("s")
		summary.Summary = &model.SummaryMetadata{Level: 1}
		out, err := Truncate([]model.Message{summary}, budgetFor(30), c)
		require.NoError(t, err)
		assert.Len(t, out, 1)
	})

	t.Run("degrades attachments", func(t *testing.T) {
		msg := model.Message{Role: model.RoleUser, Parts: []model.ContentPart{
			model.TextPart("describe"),
			model.ImagePart("image/png", "AAAA", "high"),
		}}
		out, err := Truncate([]model.Message{model.NewUserMessage("old"), msg}, budgetFor(50), c)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.False(t, out[0].HasNonText())
		assert.Equal(t, "describe", out[0].Content)
	})

	t.Run("exhausted", func(t *testing.T) {
		_, err := Truncate([]model.Message{model.NewUserMessage("x")}, budgetFor(5), c)
		assert.ErrorIs(t, err, ErrBudgetExhausted)
	})

	t.Run("system prompt fills window", func(t *testing.T) {
		b := Budget{ContextLimit: 1000, SystemPromptTokens: 1000, TrimRatio: 0.75}
		_, err := Truncate([]model.Message{model.NewUserMessage("x")}, b, c)
		assert.ErrorIs(t, err, ErrBudgetExhausted)
	})

	t.Run("summaries exceed budget", func(t *testing.T) {
		summary := model.NewAssistantMessage("s")
		summary.Summary = &model.SummaryMetadata{Level: 1}
		_, err := Truncate([]model.Message{summary, model.NewUserMessage("x")}, budgetFor(10), c)
		assert.ErrorIs(t, err, ErrBudgetExhausted)
	})
}

func TestBuildReport(t *testing.T) {
	e := NewEstimator("gpt-4o")
	msgs := []model.Message{
		model.NewUserMessage(strings.Repeat("word ", 200)),
		model.NewAssistantMessage("short"),
		{Role: model.RoleUser, Parts: []model.ContentPart{
			model.TextPart("see"),
			model.ImagePart("image/png", "", "low"),
		}},
	}
	r := BuildReport(msgs, NewBudget("gpt-4o", 128_000, 500, 0), e, 2)
	assert.Equal(t, 3, r.Messages)
	assert.Equal(t, 1, r.ImageCount)
	assert.Equal(t, 85, r.ImageTokens)
	assert.Equal(t, r.TotalTokens, r.TextTokens+r.ImageTokens+r.FileTokens)
	require.Len(t, r.Heaviest, 2)
	assert.Equal(t, 0, r.Heaviest[0].Index)
	assert.Greater(t, r.UsedOfPrompt, r.UsedOfLimit)
}
