package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// PartType identifies the kind of a ContentPart.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
	PartFile  PartType = "file"
)

// ContentPart is one element of a multi-part message.
// Image and file payloads are base64 encoded.
type ContentPart struct {
	Type      PartType `json:"type"`
	Text      string   `json:"text,omitempty"`
	Data      string   `json:"data,omitempty"`
	MediaType string   `json:"media_type,omitempty"`
	Detail    string   `json:"detail,omitempty"`
	Filename  string   `json:"filename,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

// ImagePart builds an image content part from base64 data.
func ImagePart(mediaType, data, detail string) ContentPart {
	return ContentPart{Type: PartImage, MediaType: mediaType, Data: data, Detail: detail}
}

// FilePart builds a file content part (PDF) from base64 data.
func FilePart(filename, mediaType, data string) ContentPart {
	return ContentPart{Type: PartFile, Filename: filename, MediaType: mediaType, Data: data}
}

// Message represents a chat message in the conversation.
//
// When Parts is non-empty it carries the content and Content is ignored.
// Assistant messages produced mid-turn may carry ToolCalls; tool messages
// carry the ToolCallID they answer and echo the call's Continuation token.
type Message struct {
	Role         string           `json:"role"`
	Content      string           `json:"content,omitempty"`
	Parts        []ContentPart    `json:"parts,omitempty"`
	ToolCalls    []ToolCall       `json:"tool_calls,omitempty"`
	ToolCallID   string           `json:"tool_call_id,omitempty"`
	ToolName     string           `json:"tool_name,omitempty"`
	Continuation []byte           `json:"continuation,omitempty"`
	Summary      *SummaryMetadata `json:"summary,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// NewUserMessage creates a plain-text user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// NewAssistantMessage creates a plain-text assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Timestamp: time.Now()}
}

// NewToolResult creates the tool message answering call.
func NewToolResult(call ToolCall, content string) Message {
	return Message{
		Role:         RoleTool,
		Content:      content,
		ToolCallID:   call.ID,
		ToolName:     call.Name,
		Continuation: call.Continuation,
		Timestamp:    time.Now(),
	}
}

// IsSummary reports whether the message is a conversation summary.
func (m Message) IsSummary() bool {
	return m.Summary != nil
}

// HasNonText reports whether the message carries image or file parts.
func (m Message) HasNonText() bool {
	for _, p := range m.Parts {
		if p.Type != PartText {
			return true
		}
	}
	return false
}

// Text returns the textual content of the message. Parts are joined with
// newlines; attachments are described by a short placeholder.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var b strings.Builder
	for i, p := range m.Parts {
		if i > 0 {
			b.WriteString("\n")
		}
		switch p.Type {
		case PartText:
			b.WriteString(p.Text)
		case PartImage:
			b.WriteString("[image attachment]")
		case PartFile:
			fmt.Fprintf(&b, "[file attachment: %s]", p.Filename)
		}
	}
	return b.String()
}

// TextOnly returns a copy of the message with every non-text part removed.
func (m Message) TextOnly() Message {
	if len(m.Parts) == 0 {
		return m
	}
	out := m
	out.Parts = nil
	var texts []string
	for _, p := range m.Parts {
		if p.Type == PartText {
			texts = append(texts, p.Text)
		}
	}
	out.Content = strings.Join(texts, "\n")
	return out
}

// ToolCall is a structured tool invocation requested by the model.
// Arguments holds the raw JSON payload; Continuation is an opaque
// provider token that must be echoed on the matching result.
type ToolCall struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Arguments    string `json:"arguments"`
	Continuation []byte `json:"continuation,omitempty"`
}

// ParseArguments decodes the JSON argument payload. An empty payload
// decodes to an empty map.
func (tc ToolCall) ParseArguments() (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(tc.Arguments) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to parse arguments for %s: %w", tc.Name, err)
	}
	return args, nil
}

// Usage is the token accounting reported by a provider for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates other into u.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// SummaryMetadata describes a summary message that replaced a prefix of
// the conversation.
type SummaryMetadata struct {
	CreatedAt              time.Time `json:"created_at"`
	SummarizedMessageCount int       `json:"summarized_message_count"`
	SummarizedTokens       int       `json:"summarized_tokens"`
	SummaryTokens          int       `json:"summary_tokens"`
	CompressionRatio       float64   `json:"compression_ratio"`
	ModelUsed              string    `json:"model_used"`
	Level                  int       `json:"level"`
}

// CloneMessages returns a shallow copy of msgs safe to append to.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
