package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"stockpile/internal/core/id"
	"stockpile/internal/domain/grn"
)

var _ grn.Journal = (*Journal)(nil)

// Journal keeps journal entries per draft in insertion order.
type Journal struct {
	mu      sync.RWMutex
	entries map[id.ID][]grn.JournalEntry
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{entries: make(map[id.ID][]grn.JournalEntry)}
}

// Record appends an entry.
func (j *Journal) Record(_ context.Context, entry grn.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[entry.DraftID] = append(j.entries[entry.DraftID], copyEntry(entry))
	return nil
}

// ListByDraft returns the entries of a draft, newest first.
func (j *Journal) ListByDraft(_ context.Context, draftID id.ID) ([]grn.JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	stored := j.entries[draftID]
	out := make([]grn.JournalEntry, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, copyEntry(stored[i]))
	}
	return out, nil
}

func copyEntry(e grn.JournalEntry) grn.JournalEntry {
	e.Detail = maps.Clone(e.Detail)
	e.Snapshot = slices.Clone(e.Snapshot)
	return e
}
