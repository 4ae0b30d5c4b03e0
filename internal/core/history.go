package core

import "labbench/pkg/domain"

// History is a bounded FIFO ring of snapshots. Pushing past capacity evicts
// the oldest entry. Snapshots are deep-copied on the way in and out.
type History struct {
	entries []domain.Snapshot
	start   int
	size    int
}

// NewHistory constructs a ring holding at most limit entries. Non-positive
// limits fall back to domain.MaxHistoryEntries.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = domain.MaxHistoryEntries
	}
	return &History{entries: make([]domain.Snapshot, limit)}
}

// Push records a snapshot.
func (h *History) Push(s domain.Snapshot) {
	limit := len(h.entries)
	if h.size == limit {
		h.entries[h.start] = s.Clone()
		h.start = (h.start + 1) % limit
		return
	}
	h.entries[(h.start+h.size)%limit] = s.Clone()
	h.size++
}

// Undo pops the most recent snapshot.
func (h *History) Undo() (domain.Snapshot, error) {
	if h.size == 0 {
		return domain.Snapshot{}, domain.ErrEmptyHistory
	}
	idx := (h.start + h.size - 1) % len(h.entries)
	snap := h.entries[idx]
	h.entries[idx] = domain.Snapshot{}
	h.size--
	return snap.Clone(), nil
}

// Clear drops every entry.
func (h *History) Clear() {
	for i := range h.entries {
		h.entries[i] = domain.Snapshot{}
	}
	h.start = 0
	h.size = 0
}

// Len returns the number of stored snapshots.
func (h *History) Len() int { return h.size }

// Limit returns the ring capacity.
func (h *History) Limit() int { return len(h.entries) }
