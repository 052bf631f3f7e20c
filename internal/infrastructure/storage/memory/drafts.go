// Package memory provides in-process implementations of the GRN storage
// interfaces. Every value crossing the package boundary is a deep copy.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"stockpile/internal/core/apperror"
	"stockpile/internal/core/id"
	"stockpile/internal/domain/grn"
)

var (
	_ grn.DraftStore   = (*DraftStore)(nil)
	_ grn.HistoryIndex = (*DraftStore)(nil)
)

// DraftStore keeps drafts in a map. It also serves the history index.
type DraftStore struct {
	mu       sync.RWMutex
	drafts   map[id.ID]*grn.Draft
	receipts map[string]id.ID
}

// NewDraftStore creates an empty store.
func NewDraftStore() *DraftStore {
	return &DraftStore{
		drafts:   make(map[id.ID]*grn.Draft),
		receipts: make(map[string]id.ID),
	}
}

// Create inserts a new draft.
func (s *DraftStore) Create(_ context.Context, draft *grn.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.drafts[draft.ID]; exists {
		return apperror.NewDuplicate("grn draft", "id", draft.ID.String())
	}
	if draft.Version == 0 {
		draft.Version = 1
	}
	s.drafts[draft.ID] = draft.Clone()
	return nil
}

// GetByID returns a copy of the draft.
func (s *DraftStore) GetByID(_ context.Context, draftID id.ID) (*grn.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	draft, ok := s.drafts[draftID]
	if !ok {
		return nil, apperror.NewNotFound("grn draft", draftID.String())
	}
	return draft.Clone(), nil
}

// GetForUpdate is GetByID: the store has no transactions, so callers
// serialize per draft themselves.
func (s *DraftStore) GetForUpdate(ctx context.Context, draftID id.ID) (*grn.Draft, error) {
	return s.GetByID(ctx, draftID)
}

// Update replaces the draft when draft.Version matches the stored version.
func (s *DraftStore) Update(_ context.Context, draft *grn.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.drafts[draft.ID]
	if !ok {
		return apperror.NewNotFound("grn draft", draft.ID.String())
	}
	if current.Version != draft.Version {
		return apperror.NewConcurrentModification("grn draft", draft.ID.String())
	}
	if draft.ReceiptNumber != nil {
		if owner, taken := s.receipts[*draft.ReceiptNumber]; taken && owner != draft.ID {
			return apperror.NewDuplicate("grn", "receipt_number", *draft.ReceiptNumber)
		}
	}

	stored := draft.Clone()
	stored.Version++
	s.drafts[draft.ID] = stored
	if stored.ReceiptNumber != nil {
		s.receipts[*stored.ReceiptNumber] = stored.ID
	}
	draft.Version = stored.Version
	return nil
}

// ListSubmitted returns submitted drafts matching the filter, newest first.
func (s *DraftStore) ListSubmitted(_ context.Context, filter grn.HistoryFilter) ([]grn.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	out := make([]grn.Summary, 0)
	for _, d := range s.drafts {
		if !d.IsSubmitted() {
			continue
		}
		number := ""
		if d.ReceiptNumber != nil {
			number = *d.ReceiptNumber
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(number), search) &&
			!strings.Contains(strings.ToLower(d.RefID), search) {
			continue
		}
		out = append(out, grn.Summary{
			DraftID:       d.ID,
			ReceiptNumber: number,
			RefType:       d.RefType,
			RefID:         d.RefID,
			CartonCount:   len(d.Cartons),
			SubmittedAt:   *d.SubmittedAt,
		})
	}

	slices.SortFunc(out, func(a, b grn.Summary) int {
		if c := b.SubmittedAt.Compare(a.SubmittedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.DraftID.String(), a.DraftID.String())
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Len returns the number of stored drafts.
func (s *DraftStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drafts)
}
