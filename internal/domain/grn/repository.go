package grn

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"stockpile/internal/core/id"
)

// HistoryLimit caps the number of summaries returned by History.
const HistoryLimit = 50

// Reference is an entry of the reference directory a draft can bind to.
type Reference struct {
	ID               string          `db:"id" json:"id" yaml:"id"`
	RefType          RefType         `db:"ref_type" json:"refType" yaml:"refType"`
	CounterpartyName string          `db:"counterparty_name" json:"counterpartyName" yaml:"counterparty"`
	ArticleName      string          `db:"article_name" json:"articleName" yaml:"article"`
	Total            decimal.Decimal `db:"total" json:"total" yaml:"total"`
}

// ReferenceDirectory resolves purchase orders and catalog articles.
type ReferenceDirectory interface {
	// Find returns the reference or nil when it does not exist.
	Find(ctx context.Context, refType RefType, refID string) (*Reference, error)

	// Search lists references whose id, counterparty or article contains
	// text, case-insensitively. Empty text lists everything.
	Search(ctx context.Context, text string) ([]Reference, error)
}

// DraftStore persists drafts including their cartons.
type DraftStore interface {
	// Create inserts a new draft.
	Create(ctx context.Context, draft *Draft) error

	// GetByID loads a draft. Missing drafts yield an apperror NOT_FOUND.
	GetByID(ctx context.Context, draftID id.ID) (*Draft, error)

	// GetForUpdate loads a draft and locks it until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, draftID id.ID) (*Draft, error)

	// Update writes the draft if its Version still matches storage and
	// increments Version. A mismatch yields CONCURRENT_MODIFICATION.
	Update(ctx context.Context, draft *Draft) error
}

// HistoryFilter narrows the submitted-GRN listing.
type HistoryFilter struct {
	// Search matches receipt number or reference id, case-insensitively.
	Search string
	Limit  int
}

// Summary is one row of the submitted-GRN history.
type Summary struct {
	DraftID       id.ID     `db:"id" json:"grnId"`
	ReceiptNumber string    `db:"receipt_number" json:"grnNo"`
	RefType       RefType   `db:"ref_type" json:"refType"`
	RefID         string    `db:"ref_id" json:"refId"`
	CartonCount   int       `db:"carton_count" json:"cartons"`
	SubmittedAt   time.Time `db:"submitted_at" json:"submittedAt"`
}

// HistoryIndex lists submitted drafts, newest first.
type HistoryIndex interface {
	ListSubmitted(ctx context.Context, filter HistoryFilter) ([]Summary, error)
}

// Action names a journaled draft mutation.
type Action string

const (
	ActionCreate       Action = "create"
	ActionScan         Action = "scan"
	ActionSeal         Action = "seal"
	ActionRescan       Action = "rescan_current"
	ActionRemoveCarton Action = "remove_carton"
	ActionSubmit       Action = "submit"
)

// JournalEntry records one accepted mutation with a snapshot of the draft after it.
type JournalEntry struct {
	ID        id.ID          `json:"id"`
	DraftID   id.ID          `json:"draftId"`
	Action    Action         `json:"action"`
	Detail    map[string]any `json:"detail,omitempty"`
	Snapshot  []byte         `json:"-"`
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Journal keeps the mutation trail of drafts. Record runs inside the
// mutation's transaction.
type Journal interface {
	Record(ctx context.Context, entry JournalEntry) error
	ListByDraft(ctx context.Context, draftID id.ID) ([]JournalEntry, error)
}
