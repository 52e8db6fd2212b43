package storage

import (
	"strings"
	"time"

	"gptcli/model"
)

// MessageMatch is one message containing a search query.
type MessageMatch struct {
	SessionID    string
	SessionName  string
	MessageIndex int
	Role         string
	Preview      string
	Timestamp    time.Time
}

// SearchMessages returns the user and assistant messages of msgs whose
// text contains query, case-insensitively.
func SearchMessages(msgs []model.Message, query string) []MessageMatch {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var matches []MessageMatch
	for i, msg := range msgs {
		if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant {
			continue
		}
		text := msg.Text()
		lower := strings.ToLower(text)
		pos := strings.Index(lower, query)
		if pos < 0 {
			continue
		}
		matches = append(matches, MessageMatch{
			MessageIndex: i,
			Role:         msg.Role,
			Preview:      preview(text, pos),
			Timestamp:    msg.Timestamp,
		})
	}
	return matches
}

// preview returns up to 100 bytes of text around pos on a single line.
func preview(text string, pos int) string {
	start := pos - 30
	if start < 0 {
		start = 0
	}
	end := start + 100
	if end > len(text) {
		end = len(text)
	}
	// Avoid cutting a multi-byte rune.
	for start > 0 && !isRuneStart(text[start]) {
		start--
	}
	for end < len(text) && !isRuneStart(text[end]) {
		end++
	}
	out := strings.Join(strings.Fields(text[start:end]), " ")
	if start > 0 {
		out = "..." + out
	}
	if end < len(text) {
		out += "..."
	}
	return out
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// SearchIndex searches across every stored session.
type SearchIndex struct {
	storage *SessionStorage
}

func NewSearchIndex(storage *SessionStorage) *SearchIndex {
	return &SearchIndex{storage: storage}
}

// SearchAllSessions returns matches from all sessions, newest session first.
func (si *SearchIndex) SearchAllSessions(query string) ([]MessageMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	sessionList, err := si.storage.List()
	if err != nil {
		return nil, err
	}

	var matches []MessageMatch
	for _, meta := range sessionList {
		session, err := si.storage.Load(meta.ID)
		if err != nil {
			continue
		}
		for _, m := range SearchMessages(session.Messages, query) {
			m.SessionID = session.ID
			m.SessionName = session.Name
			matches = append(matches, m)
		}
	}
	return matches, nil
}
