package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpile/internal/core/apperror"
	"stockpile/internal/core/id"
	"stockpile/internal/domain/grn"
)

var day = time.Date(2024, 5, 14, 9, 30, 0, 0, time.UTC)

func submittedDraft(t *testing.T, s *DraftStore, refID, number string, at time.Time) *grn.Draft {
	t.Helper()
	ctx := context.Background()

	d := grn.NewDraft(grn.RefTypePurchaseOrder, refID, at)
	for i := 0; i < grn.PairsPerCarton; i++ {
		_, err := d.Scan(fmt.Sprintf("%s-P%02d", refID, i), at)
		require.NoError(t, err)
	}
	require.NoError(t, d.Submit(at, number))
	require.NoError(t, s.Create(ctx, d))
	return d
}

func TestDraftStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewDraftStore()

	d := grn.NewDraft(grn.RefTypePurchaseOrder, "PO-1023", day)
	require.NoError(t, s.Create(ctx, d))

	// Mutating the caller's value must not leak into the store.
	_, err := d.Scan("A1", day)
	require.NoError(t, err)

	got, err := s.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, got.CurrentPairs)
	assert.Equal(t, 0, got.Scanned.Len())

	got.CurrentPairs = append(got.CurrentPairs, "X")
	again, err := s.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, again.CurrentPairs)
}

func TestDraftStore_GetMissing(t *testing.T) {
	_, err := NewDraftStore().GetByID(context.Background(), id.New())
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestDraftStore_UpdateBumpsVersion(t *testing.T) {
	ctx := context.Background()
	s := NewDraftStore()

	d := grn.NewDraft(grn.RefTypeCatalog, "CAT-77", day)
	require.NoError(t, s.Create(ctx, d))

	edit, err := s.GetForUpdate(ctx, d.ID)
	require.NoError(t, err)
	_, err = edit.Scan("B1", day)
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, edit))
	assert.Equal(t, 2, edit.Version)

	got, err := s.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"B1"}, got.CurrentPairs)
	assert.True(t, got.Scanned.Has("B1"))
}

func TestDraftStore_StaleUpdateLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	s := NewDraftStore()

	d := grn.NewDraft(grn.RefTypePurchaseOrder, "PO-1023", day)
	require.NoError(t, s.Create(ctx, d))

	first, err := s.GetForUpdate(ctx, d.ID)
	require.NoError(t, err)
	second, err := s.GetForUpdate(ctx, d.ID)
	require.NoError(t, err)

	_, _ = first.Scan("A", day)
	require.NoError(t, s.Update(ctx, first))

	_, _ = second.Scan("B", day)
	err = s.Update(ctx, second)
	require.Error(t, err)
	assert.True(t, apperror.IsConcurrentModification(err))

	got, err := s.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, got.CurrentPairs)
}

func TestDraftStore_RejectsDuplicateReceiptNumber(t *testing.T) {
	ctx := context.Background()
	s := NewDraftStore()
	submittedDraft(t, s, "PO-1", "GRN-20240514-500", day)

	d := grn.NewDraft(grn.RefTypePurchaseOrder, "PO-2", day)
	for i := 0; i < grn.PairsPerCarton; i++ {
		_, _ = d.Scan(fmt.Sprintf("Q%02d", i), day)
	}
	require.NoError(t, s.Create(ctx, d))
	require.NoError(t, d.Submit(day, "GRN-20240514-500"))

	err := s.Update(ctx, d)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeDuplicate, apperror.CodeOf(err))
}

func TestDraftStore_ListSubmitted(t *testing.T) {
	ctx := context.Background()
	s := NewDraftStore()

	submittedDraft(t, s, "PO-1", "GRN-20240514-101", day)
	submittedDraft(t, s, "PO-2", "GRN-20240514-202", day.Add(time.Hour))
	submittedDraft(t, s, "CAT-3", "GRN-20240515-303", day.Add(2*time.Hour))
	require.NoError(t, s.Create(ctx, grn.NewDraft(grn.RefTypePurchaseOrder, "PO-4", day)))

	all, err := s.ListSubmitted(ctx, grn.HistoryFilter{Limit: grn.HistoryLimit})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "GRN-20240515-303", all[0].ReceiptNumber)
	assert.Equal(t, "GRN-20240514-101", all[2].ReceiptNumber)
	assert.Equal(t, 1, all[0].CartonCount)

	byRef, err := s.ListSubmitted(ctx, grn.HistoryFilter{Search: "po-2", Limit: grn.HistoryLimit})
	require.NoError(t, err)
	require.Len(t, byRef, 1)
	assert.Equal(t, "PO-2", byRef[0].RefID)

	byNumber, err := s.ListSubmitted(ctx, grn.HistoryFilter{Search: "20240514", Limit: grn.HistoryLimit})
	require.NoError(t, err)
	assert.Len(t, byNumber, 2)

	limited, err := s.ListSubmitted(ctx, grn.HistoryFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
