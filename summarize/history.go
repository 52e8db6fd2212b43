package summarize

import (
	"sync"

	"gptcli/model"
)

// History records the metadata of every summary produced in a session.
type History interface {
	Record(meta model.SummaryMetadata) error
	List() ([]model.SummaryMetadata, error)
}

// MemoryHistory is a History kept in process memory.
type MemoryHistory struct {
	mu    sync.Mutex
	items []model.SummaryMetadata
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

func (h *MemoryHistory) Record(meta model.SummaryMetadata) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, meta)
	return nil
}

func (h *MemoryHistory) List() ([]model.SummaryMetadata, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.SummaryMetadata, len(h.items))
	copy(out, h.items)
	return out, nil
}
