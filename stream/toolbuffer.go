package stream

import (
	"fmt"
	"sort"
	"strings"

	"gptcli/model"
)

// ToolCallBuffer assembles streamed tool-call fragments into complete calls.
// Fragments are keyed by their index; the id and name are taken from
// whichever fragment carries them and argument fragments are concatenated.
type ToolCallBuffer struct {
	calls map[int]*model.ToolCall
	args  map[int]*strings.Builder
}

// NewToolCallBuffer creates an empty buffer.
func NewToolCallBuffer() *ToolCallBuffer {
	return &ToolCallBuffer{
		calls: make(map[int]*model.ToolCall),
		args:  make(map[int]*strings.Builder),
	}
}

// Add merges fragments into the buffer.
func (b *ToolCallBuffer) Add(deltas []model.ToolCallDelta) {
	for _, d := range deltas {
		call, ok := b.calls[d.Index]
		if !ok {
			call = &model.ToolCall{}
			b.calls[d.Index] = call
			b.args[d.Index] = &strings.Builder{}
		}
		if d.ID != "" {
			call.ID = d.ID
		}
		if d.Name != "" {
			call.Name = d.Name
		}
		if len(d.Continuation) > 0 {
			call.Continuation = d.Continuation
		}
		b.args[d.Index].WriteString(d.Arguments)
	}
}

// Calls returns the assembled calls in index order.
func (b *ToolCallBuffer) Calls() []model.ToolCall {
	if len(b.calls) == 0 {
		return nil
	}
	out := make([]model.ToolCall, 0, len(b.calls))
	for _, idx := range b.indexes() {
		call := *b.calls[idx]
		call.Arguments = b.args[idx].String()
		if call.ID == "" {
			call.ID = fmt.Sprintf("call_%d", idx)
		}
		out = append(out, call)
	}
	return out
}

// Len returns the number of distinct calls seen.
func (b *ToolCallBuffer) Len() int {
	return len(b.calls)
}

// Status describes the calls being buffered, e.g. "[0] Read, [1] ...".
func (b *ToolCallBuffer) Status() string {
	parts := make([]string, 0, len(b.calls))
	for _, idx := range b.indexes() {
		name := b.calls[idx].Name
		if name == "" {
			name = "..."
		}
		parts = append(parts, fmt.Sprintf("[%d] %s", idx, name))
	}
	return strings.Join(parts, ", ")
}

func (b *ToolCallBuffer) indexes() []int {
	idx := make([]int, 0, len(b.calls))
	for i := range b.calls {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}
