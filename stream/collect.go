package stream

import (
	"context"
	"fmt"
	"strings"

	"gptcli/model"
)

// Response is the fully consumed result of one model call.
type Response struct {
	Text      string
	Reasoning string
	Segments  []Segment
	ToolCalls []model.ToolCall
	Usage     *model.Usage
}

// HasToolCalls reports whether the model requested any tool calls.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// CodeBlocks returns the code segments of the response in order.
func (r *Response) CodeBlocks() []Segment {
	var blocks []Segment
	for _, s := range r.Segments {
		if s.Kind == KindCode {
			blocks = append(blocks, s)
		}
	}
	return blocks
}

// Collect performs one streaming call, feeding content and reasoning deltas
// through a Parser (rendering live to sink) and assembling tool calls.
// Deltas are processed strictly in arrival order.
func Collect(ctx context.Context, p model.Provider, req model.ChatRequest, sink Sink) (*Response, error) {
	parser := NewParser(sink)
	calls := NewToolCallBuffer()
	var reasoning strings.Builder

	usage, err := p.ChatStream(ctx, req, func(d model.Delta) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Reasoning != "" {
			reasoning.WriteString(d.Reasoning)
			parser.FeedReasoning(d.Reasoning)
		}
		if d.Content != "" {
			parser.Feed(d.Content)
		}
		if len(d.ToolCalls) > 0 {
			calls.Add(d.ToolCalls)
		}
		return nil
	})
	segments := parser.Finish()
	if err != nil {
		return nil, fmt.Errorf("%s stream failed: %w", p.Name(), err)
	}

	return &Response{
		Text:      parser.Text(),
		Reasoning: reasoning.String(),
		Segments:  segments,
		ToolCalls: calls.Calls(),
		Usage:     usage,
	}, nil
}
