package agent

import (
	"sync"

	"gptcli/model"
)

// Transcript is the persisted conversation. The agent loop only ever reads
// it; tool rounds live in a working copy that is discarded after the turn.
// Commit is the single path that adds the model's answer.
type Transcript struct {
	mu       sync.Mutex
	messages []model.Message
	pending  bool
}

// NewTranscript wraps msgs. The slice is copied.
func NewTranscript(msgs []model.Message) *Transcript {
	return &Transcript{messages: model.CloneMessages(msgs)}
}

// Messages returns a copy of the persisted messages.
func (t *Transcript) Messages() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return model.CloneMessages(t.messages)
}

// Len returns the number of persisted messages.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// AppendUser optimistically appends the user's message for a new turn.
// It stays pending until Commit or Rollback.
func (t *Transcript) AppendUser(msg model.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, msg)
	t.pending = true
}

// Rollback removes the pending user message after an aborted turn.
func (t *Transcript) Rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.pending {
		return
	}
	t.pending = false
	if n := len(t.messages); n > 0 && t.messages[n-1].Role == model.RoleUser {
		t.messages = t.messages[:n-1]
	}
}

// Commit appends the final assistant answer and ends the pending turn.
func (t *Transcript) Commit(text string) model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	msg := model.NewAssistantMessage(text)
	t.messages = append(t.messages, msg)
	t.pending = false
	return msg
}

// Replace swaps the persisted messages, e.g. after summarization. A
// pending turn stays pending.
func (t *Transcript) Replace(msgs []model.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = model.CloneMessages(msgs)
}

// Reset clears the conversation.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = nil
	t.pending = false
}

// LastAssistant returns the most recent assistant message.
func (t *Transcript) LastAssistant() (model.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].Role == model.RoleAssistant && !t.messages[i].IsSummary() {
			return t.messages[i], true
		}
	}
	return model.Message{}, false
}
