package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"stockpile/internal/domain/grn"
)

// --- Requests ---

// CreateDraftRequest starts a GRN draft against a reference.
type CreateDraftRequest struct {
	RefType string `json:"refType"`
	RefID   string `json:"refId"`
}

// ScanPairRequest carries one scanned pair barcode.
type ScanPairRequest struct {
	PairBarcode string `json:"pairBarcode"`
}

// --- Responses ---

// ReferenceResponse is one entry of the reference picker.
type ReferenceResponse struct {
	ID               string          `json:"id"`
	RefType          string          `json:"refType"`
	CounterpartyName string          `json:"counterpartyName"`
	ArticleName      string          `json:"articleName"`
	Total            decimal.Decimal `json:"total"`
}

// FromReferences maps directory entries.
func FromReferences(refs []grn.Reference) []ReferenceResponse {
	out := make([]ReferenceResponse, 0, len(refs))
	for _, r := range refs {
		out = append(out, ReferenceResponse{
			ID:               r.ID,
			RefType:          string(r.RefType),
			CounterpartyName: r.CounterpartyName,
			ArticleName:      r.ArticleName,
			Total:            r.Total,
		})
	}
	return out
}

// CurrentCartonResponse describes the unsealed buffer.
type CurrentCartonResponse struct {
	Pairs    []string `json:"pairs"`
	Count    int      `json:"count"`
	Expected int      `json:"expected"`
}

// CartonResponse is a sealed carton.
type CartonResponse struct {
	CartonBarcode string    `json:"cartonBarcode"`
	PairBarcodes  []string  `json:"pairBarcodes"`
	LockedAt      time.Time `json:"lockedAt"`
}

// DraftResponse is the full view of a draft or submitted GRN.
type DraftResponse struct {
	ID            string                `json:"id"`
	RefType       string                `json:"refType"`
	RefID         string                `json:"refId"`
	Status        string                `json:"status"`
	CurrentCarton CurrentCartonResponse `json:"currentCarton"`
	Cartons       []CartonResponse      `json:"cartons"`
	CartonCount   int                   `json:"cartonCount"`
	PairCount     int                   `json:"pairCount"`
	CartonSerial  int                   `json:"cartonSerial"`
	SubmittedAt   *time.Time            `json:"submittedAt,omitempty"`
	ReceiptNumber *string               `json:"receiptNumber,omitempty"`
	Version       int                   `json:"version"`
	CreatedAt     time.Time             `json:"createdAt"`
	UpdatedAt     time.Time             `json:"updatedAt"`
}

// FromDraft creates DraftResponse from a domain draft.
func FromDraft(d *grn.Draft) DraftResponse {
	pairs := append([]string{}, d.CurrentPairs...)

	cartons := make([]CartonResponse, 0, len(d.Cartons))
	for _, c := range d.Cartons {
		cartons = append(cartons, CartonResponse{
			CartonBarcode: c.Barcode,
			PairBarcodes:  append([]string{}, c.Pairs...),
			LockedAt:      c.LockedAt,
		})
	}

	return DraftResponse{
		ID:      d.ID.String(),
		RefType: string(d.RefType),
		RefID:   d.RefID,
		Status:  string(d.Status),
		CurrentCarton: CurrentCartonResponse{
			Pairs:    pairs,
			Count:    len(pairs),
			Expected: grn.PairsPerCarton,
		},
		Cartons:       cartons,
		CartonCount:   len(cartons),
		PairCount:     d.PairCount(),
		CartonSerial:  d.CartonSerial,
		SubmittedAt:   d.SubmittedAt,
		ReceiptNumber: d.ReceiptNumber,
		Version:       d.Version,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// HistoryItemResponse is one row of the submitted GRN list.
type HistoryItemResponse struct {
	GrnID       string    `json:"grnId"`
	GrnNo       string    `json:"grnNo"`
	RefType     string    `json:"refType"`
	RefID       string    `json:"refId"`
	Cartons     int       `json:"cartons"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// FromSummaries maps history rows.
func FromSummaries(rows []grn.Summary) []HistoryItemResponse {
	out := make([]HistoryItemResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, HistoryItemResponse{
			GrnID:       r.DraftID.String(),
			GrnNo:       r.ReceiptNumber,
			RefType:     string(r.RefType),
			RefID:       r.RefID,
			Cartons:     r.CartonCount,
			SubmittedAt: r.SubmittedAt,
		})
	}
	return out
}

// JournalEntryResponse is one audit entry of a draft.
type JournalEntryResponse struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Detail    map[string]any `json:"detail,omitempty"`
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"createdAt"`
}

// FromJournal maps journal entries.
func FromJournal(entries []grn.JournalEntry) []JournalEntryResponse {
	out := make([]JournalEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, JournalEntryResponse{
			ID:        e.ID.String(),
			Action:    string(e.Action),
			Detail:    e.Detail,
			Version:   e.Version,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}
