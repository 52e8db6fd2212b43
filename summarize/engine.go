// Package summarize compacts long conversations by replacing their oldest
// messages with a model-written summary.
//
// Summaries are levelled: summarizing a prefix that already contains a
// summary produces a summary one level higher. Once MaxLevels is reached
// automatic summarization stops and callers fall back to truncation.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"gptcli/model"
	"gptcli/stream"
	"gptcli/tokens"
)

// SummaryPrefix starts the content of every summary message.
const SummaryPrefix = "[Previous conversation summary]"

// Defaults for Options.
const (
	DefaultThreshold       = 0.80
	DefaultMinMessages     = 6
	DefaultKeepRecent      = 4
	DefaultMaxLevels       = 3
	DefaultChunkTokenLimit = 25_000
)

var (
	// ErrSummarizationFailed means no usable summary could be produced.
	ErrSummarizationFailed = errors.New("summarization failed")
	// ErrTooFewMessages is returned by a non-forced manual summarize on a
	// short conversation.
	ErrTooFewMessages = errors.New("not enough messages to summarize")
	// ErrNothingToSummarize means every message is inside the kept tail.
	ErrNothingToSummarize = errors.New("no messages outside the recent window")
	// ErrMaxLevel means the prefix is already summarized MaxLevels deep.
	ErrMaxLevel = errors.New("maximum summary level reached")
)

// Options configures an Engine. Zero values take the defaults.
type Options struct {
	Threshold       float64
	MinMessages     int
	KeepRecent      int
	MaxLevels       int
	ChunkTokenLimit int

	// Model overrides the model used for summary calls.
	Model   string
	History History
	Logger  *zap.Logger
	// Progress, if set, receives short human-readable status lines.
	Progress func(status string)
}

// Engine decides when to summarize and performs the summary calls.
type Engine struct {
	provider model.Provider
	counter  tokens.Counter
	history  History
	logger   *zap.Logger
	progress func(string)

	threshold       float64
	minMessages     int
	keepRecent      int
	maxLevels       int
	chunkTokenLimit int
	model           string
}

// NewEngine creates an engine that summarizes through p.
func NewEngine(p model.Provider, counter tokens.Counter, opts Options) *Engine {
	e := &Engine{
		provider:        p,
		counter:         counter,
		history:         opts.History,
		logger:          opts.Logger,
		progress:        opts.Progress,
		threshold:       opts.Threshold,
		minMessages:     opts.MinMessages,
		keepRecent:      opts.KeepRecent,
		maxLevels:       opts.MaxLevels,
		chunkTokenLimit: opts.ChunkTokenLimit,
		model:           opts.Model,
	}
	if e.history == nil {
		e.history = NewMemoryHistory()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.logger = e.logger.Named("summarize")
	if e.progress == nil {
		e.progress = func(string) {}
	}
	if e.threshold <= 0 {
		e.threshold = DefaultThreshold
	}
	if e.minMessages <= 0 {
		e.minMessages = DefaultMinMessages
	}
	if e.keepRecent <= 0 {
		e.keepRecent = DefaultKeepRecent
	}
	if e.maxLevels <= 0 {
		e.maxLevels = DefaultMaxLevels
	}
	if e.chunkTokenLimit <= 0 {
		e.chunkTokenLimit = DefaultChunkTokenLimit
	}
	return e
}

// History returns the engine's summary history.
func (e *Engine) History() History {
	return e.history
}

// SetHistory replaces the summary history, e.g. when the session changes.
func (e *Engine) SetHistory(h History) {
	if h == nil {
		h = NewMemoryHistory()
	}
	e.history = h
}

// SetProvider swaps the provider used for summary calls.
func (e *Engine) SetProvider(p model.Provider) {
	e.provider = p
}

// Usage returns the estimated tokens of msgs and their share of the
// budget's available window.
func (e *Engine) Usage(msgs []model.Message, budget tokens.Budget) (int, float64) {
	used := tokens.CountMessages(e.counter, msgs)
	return used, budget.Ratio(used)
}

// ShouldSummarize reports whether msgs qualify for automatic
// summarization, with the current usage ratio and a reason.
func (e *Engine) ShouldSummarize(msgs []model.Message, budget tokens.Budget) (bool, float64, string) {
	_, ratio := e.Usage(msgs, budget)
	if len(msgs) < e.minMessages {
		return false, ratio, fmt.Sprintf("too few messages (%d < %d)", len(msgs), e.minMessages)
	}
	if ratio < e.threshold {
		return false, ratio, fmt.Sprintf("below threshold (%.1f%% < %.0f%%)", ratio*100, e.threshold*100)
	}
	if len(msgs)-e.keepRecent < 2 {
		return false, ratio, "not enough messages outside the recent window"
	}
	return true, ratio, fmt.Sprintf("threshold exceeded (%.1f%% >= %.0f%%)", ratio*100, e.threshold*100)
}

// CheckAndSummarize compacts msgs when their usage of budget crosses the
// threshold. It returns the (possibly new) message list and whether a
// summary was made. Errors are non-fatal: msgs is returned unchanged.
func (e *Engine) CheckAndSummarize(ctx context.Context, msgs []model.Message, modelName string, budget tokens.Budget) ([]model.Message, bool, error) {
	should, ratio, reason := e.ShouldSummarize(msgs, budget)
	if !should {
		e.logger.Debug("summarization skipped", zap.String("reason", reason))
		return msgs, false, nil
	}
	e.logger.Info("auto summarization triggered",
		zap.Float64("ratio", ratio),
		zap.Int("messages", len(msgs)))
	e.progress(fmt.Sprintf("Context usage %.1f%%, summarizing older messages", ratio*100))

	out, err := e.compact(ctx, msgs, modelName, false)
	if errors.Is(err, ErrMaxLevel) {
		e.logger.Info("summary level cap reached, falling back to truncation", zap.Int("max_levels", e.maxLevels))
		return msgs, false, nil
	}
	if err != nil {
		e.logger.Warn("summarization failed", zap.Error(err))
		return msgs, false, err
	}
	return out, true, nil
}

// Summarize is the manual path. force skips the message-count and level
// checks; there must still be at least one message outside the kept tail.
func (e *Engine) Summarize(ctx context.Context, msgs []model.Message, modelName string, force bool) ([]model.Message, bool, error) {
	if len(msgs) < e.minMessages && !force {
		return msgs, false, fmt.Errorf("%w (%d < %d)", ErrTooFewMessages, len(msgs), e.minMessages)
	}
	out, err := e.compact(ctx, msgs, modelName, force)
	if err != nil {
		return msgs, false, err
	}
	return out, true, nil
}

func (e *Engine) compact(ctx context.Context, msgs []model.Message, modelName string, ignoreLevel bool) ([]model.Message, error) {
	if len(msgs) <= e.keepRecent {
		return nil, ErrNothingToSummarize
	}
	split := len(msgs) - e.keepRecent
	prefix, tail := msgs[:split], msgs[split:]

	level := CurrentLevel(prefix)
	if level >= e.maxLevels && !ignoreLevel {
		return nil, fmt.Errorf("%w (%d)", ErrMaxLevel, e.maxLevels)
	}

	if e.model != "" {
		modelName = e.model
	}
	text, original, err := e.summarizePrefix(ctx, prefix, modelName)
	if err != nil {
		return nil, err
	}

	summaryTokens := e.counter.CountText(text)
	meta := model.SummaryMetadata{
		CreatedAt:              time.Now(),
		SummarizedMessageCount: len(prefix),
		SummarizedTokens:       original,
		SummaryTokens:          summaryTokens,
		ModelUsed:              modelName,
		Level:                  level + 1,
	}
	if original > 0 {
		meta.CompressionRatio = float64(summaryTokens) / float64(original)
	}
	if err := e.history.Record(meta); err != nil {
		e.logger.Warn("failed to record summary history", zap.Error(err))
	}

	summary := model.Message{
		Role:      model.RoleAssistant,
		Content:   SummaryPrefix + "\n\n" + text,
		Summary:   &meta,
		Timestamp: meta.CreatedAt,
	}
	out := make([]model.Message, 0, len(tail)+1)
	out = append(out, summary)
	out = append(out, tail...)

	e.logger.Info("conversation compacted",
		zap.Int("before", len(msgs)),
		zap.Int("after", len(out)),
		zap.Int("original_tokens", original),
		zap.Int("summary_tokens", summaryTokens),
		zap.Int("level", meta.Level))
	e.progress(fmt.Sprintf("Summarized %d messages: %d -> %d tokens (%.1f%%)",
		len(prefix), original, summaryTokens, meta.CompressionRatio*100))
	return out, nil
}

// summarizePrefix returns the summary text and the estimated token count
// of the summarized messages.
func (e *Engine) summarizePrefix(ctx context.Context, prefix []model.Message, modelName string) (string, int, error) {
	original := tokens.CountMessages(e.counter, prefix)
	if original <= e.chunkTokenLimit {
		prompt := summaryPrompt
		if CurrentLevel(prefix) > 0 {
			prompt = mergePrompt
		}
		text, err := e.call(ctx, modelName, prompt, summarizeRequest+FormatTranscript(prefix))
		if err != nil {
			return "", original, fmt.Errorf("%w: %w", ErrSummarizationFailed, err)
		}
		return text, original, nil
	}

	chunks := e.chunk(prefix)
	e.logger.Info("summarizing in chunks", zap.Int("chunks", len(chunks)), zap.Int("tokens", original))
	e.progress(fmt.Sprintf("Large prefix (~%d tokens), summarizing in %d chunks", original, len(chunks)))

	var parts []string
	for i, c := range chunks {
		text, err := e.call(ctx, modelName, summaryPrompt, summarizeRequest+FormatTranscript(c))
		if err != nil {
			if ctx.Err() != nil {
				return "", original, fmt.Errorf("%w: %w", ErrSummarizationFailed, ctx.Err())
			}
			e.logger.Warn("chunk summary failed, skipping", zap.Int("chunk", i+1), zap.Error(err))
			continue
		}
		parts = append(parts, fmt.Sprintf("[Part %d]\n%s", i+1, text))
	}
	if len(parts) == 0 {
		return "", original, fmt.Errorf("%w: all %d chunks failed", ErrSummarizationFailed, len(chunks))
	}
	if len(parts) == 1 {
		_, body, _ := strings.Cut(parts[0], "\n")
		return body, original, nil
	}

	combined := strings.Join(parts, "\n\n---\n\n")
	merged, err := e.call(ctx, modelName, mergePrompt, mergeRequest+combined)
	if err != nil {
		e.logger.Warn("summary merge failed, concatenating parts", zap.Error(err))
		return combined, original, nil
	}
	return merged, original, nil
}

// chunk splits msgs greedily so each chunk stays under the chunk limit.
// A single message larger than the limit forms a chunk of its own.
func (e *Engine) chunk(msgs []model.Message) [][]model.Message {
	var chunks [][]model.Message
	var current []model.Message
	size := 0
	for _, m := range msgs {
		n := e.counter.CountMessage(m)
		if size+n > e.chunkTokenLimit && len(current) > 0 {
			chunks = append(chunks, current)
			current, size = nil, 0
		}
		current = append(current, m)
		size += n
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

func (e *Engine) call(ctx context.Context, modelName, system, content string) (string, error) {
	if e.provider == nil {
		return "", errors.New("no provider configured")
	}
	resp, err := stream.Collect(ctx, e.provider, model.ChatRequest{
		Model:      modelName,
		System:     system,
		Messages:   []model.Message{model.NewUserMessage(content)},
		ToolChoice: model.ToolChoiceNone,
	}, nil)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errors.New("model returned an empty summary")
	}
	return text, nil
}

// FormatTranscript renders msgs as the plain-text transcript handed to the
// summarizer.
func FormatTranscript(msgs []model.Message) string {
	blocks := make([]string, 0, len(msgs))
	for i, m := range msgs {
		role := strings.ToUpper(m.Role)
		if m.IsSummary() {
			role += " (existing summary)"
		}
		blocks = append(blocks, fmt.Sprintf("[Message %d] %s:\n%s\n", i+1, role, m.Text()))
	}
	return strings.Join(blocks, "\n---\n")
}

// CurrentLevel returns the highest summary level found in msgs, or 0.
// A summary without a recorded level counts as level 1.
func CurrentLevel(msgs []model.Message) int {
	level := 0
	for _, m := range msgs {
		if m.Summary == nil {
			continue
		}
		l := max(m.Summary.Level, 1)
		if l > level {
			level = l
		}
	}
	return level
}

// LatestSummary returns the first summary message in msgs.
func LatestSummary(msgs []model.Message) (model.Message, bool) {
	for _, m := range msgs {
		if m.IsSummary() {
			return m, true
		}
	}
	return model.Message{}, false
}
