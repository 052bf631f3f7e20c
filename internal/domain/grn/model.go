// Package grn provides the goods receipt note (GRN) intake workflow:
// scanning pair barcodes into fixed-size cartons and submitting the
// result as an immutable receipt.
package grn

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"stockpile/internal/core/apperror"
	"stockpile/internal/core/id"
)

// PairsPerCarton is the number of pairs sealed into one carton.
const PairsPerCarton = 24

// RefType identifies the kind of document a GRN is received against.
// Values are the short codes embedded in carton barcodes.
type RefType string

const (
	RefTypePurchaseOrder RefType = "PO"
	RefTypeCatalog       RefType = "CAT"
)

// Valid reports whether t is a known reference type.
func (t RefType) Valid() bool {
	return t == RefTypePurchaseOrder || t == RefTypeCatalog
}

// Status is the lifecycle state of a draft.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
)

// Carton is a sealed batch of exactly PairsPerCarton pair barcodes.
type Carton struct {
	Barcode  string    `db:"carton_barcode" json:"cartonBarcode"`
	Pairs    []string  `db:"pair_barcodes" json:"pairBarcodes"`
	LockedAt time.Time `db:"locked_at" json:"lockedAt"`
}

// Draft is a GRN intake session. While Status is DRAFT it is mutated only
// through Scan, RescanCurrent and RemoveCarton; Submit moves it to the
// terminal SUBMITTED state.
type Draft struct {
	ID      id.ID   `db:"id" json:"id"`
	RefType RefType `db:"ref_type" json:"refType"`
	RefID   string  `db:"ref_id" json:"refId"`

	// Unsealed pairs in scan order.
	CurrentPairs []string `db:"current_pairs" json:"currentPairs"`

	// Sealed cartons, most recently sealed first. Stored in a child table.
	Cartons []Carton `db:"-" json:"cartons"`

	// Every barcode accepted into the draft. Derived from CurrentPairs and
	// Cartons when loading from storage.
	Scanned PairSet `db:"-" json:"scannedSet"`

	CartonSerial  int        `db:"carton_serial" json:"cartonSerial"`
	Status        Status     `db:"status" json:"status"`
	SubmittedAt   *time.Time `db:"submitted_at" json:"submittedAt"`
	ReceiptNumber *string    `db:"receipt_number" json:"receiptNumber"`

	// Version for optimistic locking (incremented by the store on each update)
	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewDraft creates an empty draft bound to a reference.
func NewDraft(refType RefType, refID string, now time.Time) *Draft {
	return &Draft{
		ID:           id.New(),
		RefType:      refType,
		RefID:        refID,
		CurrentPairs: make([]string, 0, PairsPerCarton),
		Cartons:      make([]Carton, 0),
		Scanned:      make(PairSet),
		CartonSerial: 1,
		Status:       StatusDraft,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsSubmitted reports whether the draft reached the terminal state.
func (d *Draft) IsSubmitted() bool {
	return d.Status == StatusSubmitted
}

// CanModify returns an error when the draft no longer accepts changes.
func (d *Draft) CanModify() error {
	if d.Status != StatusDraft {
		return ErrAlreadySubmitted(d.ID)
	}
	return nil
}

// Scan accepts one pair barcode. When the barcode completes a carton the
// carton is sealed in the same step and returned; otherwise the result is nil.
// The draft is left untouched when an error is returned.
func (d *Draft) Scan(barcode string, now time.Time) (*Carton, error) {
	if err := d.CanModify(); err != nil {
		return nil, err
	}
	if slices.Contains(d.CurrentPairs, barcode) {
		return nil, ErrDuplicateInCurrentCarton(barcode)
	}
	if d.Scanned.Has(barcode) {
		return nil, ErrDuplicateInSession(barcode)
	}

	d.CurrentPairs = append(d.CurrentPairs, barcode)
	d.Scanned.Add(barcode)

	if len(d.CurrentPairs) < PairsPerCarton {
		return nil, nil
	}
	return d.seal(now), nil
}

// seal closes the current buffer into a new carton at the front of Cartons.
func (d *Draft) seal(now time.Time) *Carton {
	carton := Carton{
		Barcode:  CartonBarcode(now, d.RefType, d.RefID, d.CartonSerial),
		Pairs:    slices.Clone(d.CurrentPairs),
		LockedAt: now,
	}
	d.Cartons = slices.Insert(d.Cartons, 0, carton)
	d.CartonSerial++
	d.CurrentPairs = make([]string, 0, PairsPerCarton)
	return &carton
}

// RescanCurrent discards the unsealed pairs and returns them.
// Sealed cartons are never touched. Calling it on an empty buffer is a no-op.
func (d *Draft) RescanCurrent() ([]string, error) {
	if err := d.CanModify(); err != nil {
		return nil, err
	}
	cleared := d.CurrentPairs
	for _, pair := range cleared {
		d.Scanned.Remove(pair)
	}
	d.CurrentPairs = make([]string, 0, PairsPerCarton)
	return cleared, nil
}

// RemoveCarton discards a sealed carton and its pairs. CartonSerial is not
// rewound and the pairs are not returned to the current buffer.
func (d *Draft) RemoveCarton(barcode string) (Carton, error) {
	if err := d.CanModify(); err != nil {
		return Carton{}, err
	}
	idx := slices.IndexFunc(d.Cartons, func(c Carton) bool { return c.Barcode == barcode })
	if idx < 0 {
		return Carton{}, ErrCartonNotFound(barcode)
	}
	removed := d.Cartons[idx]
	for _, pair := range removed.Pairs {
		d.Scanned.Remove(pair)
	}
	d.Cartons = slices.Delete(d.Cartons, idx, idx+1)
	return removed, nil
}

// Submit moves the draft to SUBMITTED. It requires an empty current buffer
// and at least one sealed carton.
func (d *Draft) Submit(now time.Time, receiptNumber string) error {
	if err := d.CanModify(); err != nil {
		return err
	}
	if len(d.CurrentPairs) != 0 {
		return ErrIncompleteCarton(len(d.CurrentPairs))
	}
	if len(d.Cartons) == 0 {
		return ErrNoCartons()
	}

	submittedAt := now
	d.Status = StatusSubmitted
	d.SubmittedAt = &submittedAt
	d.ReceiptNumber = &receiptNumber
	return nil
}

// PairCount returns the number of pairs held in sealed cartons.
func (d *Draft) PairCount() int {
	return len(d.Cartons) * PairsPerCarton
}

// RestoreScanned rebuilds the scanned set from the current buffer and
// cartons. Stores call it after loading a draft.
func (d *Draft) RestoreScanned() {
	d.Scanned = make(PairSet, len(d.CurrentPairs)+len(d.Cartons)*PairsPerCarton)
	for _, pair := range d.CurrentPairs {
		d.Scanned.Add(pair)
	}
	for _, c := range d.Cartons {
		for _, pair := range c.Pairs {
			d.Scanned.Add(pair)
		}
	}
}

// Validate checks the draft invariants: every scanned barcode lives in
// exactly one place, cartons are full and the current buffer is short of one.
func (d *Draft) Validate(ctx context.Context) error {
	if !d.RefType.Valid() {
		return apperror.NewValidation("unknown reference type").
			WithDetail("field", "refType").
			WithDetail("value", string(d.RefType))
	}
	if d.RefID == "" {
		return apperror.NewValidation("reference id is required").
			WithDetail("field", "refId")
	}
	if d.CartonSerial < 1 {
		return fmt.Errorf("carton serial %d below 1", d.CartonSerial)
	}
	if d.Status == StatusDraft && len(d.CurrentPairs) >= PairsPerCarton {
		return fmt.Errorf("current carton holds %d pairs, limit is %d", len(d.CurrentPairs), PairsPerCarton-1)
	}
	if d.Status == StatusSubmitted && (d.SubmittedAt == nil || d.ReceiptNumber == nil) {
		return fmt.Errorf("submitted draft %s lacks submission stamp", d.ID)
	}

	seen := make(map[string]struct{}, len(d.Scanned))
	place := func(pair, where string) error {
		if _, dup := seen[pair]; dup {
			return fmt.Errorf("barcode %q appears more than once (%s)", pair, where)
		}
		if !d.Scanned.Has(pair) {
			return fmt.Errorf("barcode %q in %s missing from scanned set", pair, where)
		}
		seen[pair] = struct{}{}
		return nil
	}

	for _, pair := range d.CurrentPairs {
		if err := place(pair, "current carton"); err != nil {
			return err
		}
	}
	for _, c := range d.Cartons {
		if len(c.Pairs) != PairsPerCarton {
			return fmt.Errorf("carton %s holds %d pairs, want %d", c.Barcode, len(c.Pairs), PairsPerCarton)
		}
		for _, pair := range c.Pairs {
			if err := place(pair, "carton "+c.Barcode); err != nil {
				return err
			}
		}
	}
	if len(seen) != d.Scanned.Len() {
		return fmt.Errorf("scanned set has %d barcodes, draft holds %d", d.Scanned.Len(), len(seen))
	}
	return nil
}

// Clone returns a deep copy of the draft.
func (d *Draft) Clone() *Draft {
	c := *d
	c.CurrentPairs = slices.Clone(d.CurrentPairs)
	if c.CurrentPairs == nil {
		c.CurrentPairs = make([]string, 0, PairsPerCarton)
	}
	c.Cartons = make([]Carton, len(d.Cartons))
	for i, carton := range d.Cartons {
		carton.Pairs = slices.Clone(carton.Pairs)
		c.Cartons[i] = carton
	}
	c.Scanned = d.Scanned.Clone()
	if d.SubmittedAt != nil {
		t := *d.SubmittedAt
		c.SubmittedAt = &t
	}
	if d.ReceiptNumber != nil {
		n := *d.ReceiptNumber
		c.ReceiptNumber = &n
	}
	return &c
}

// PairSet is a hash set of pair barcodes.
type PairSet map[string]struct{}

// Has reports membership.
func (s PairSet) Has(pair string) bool {
	_, ok := s[pair]
	return ok
}

// Add inserts a barcode.
func (s PairSet) Add(pair string) {
	s[pair] = struct{}{}
}

// Remove deletes a barcode.
func (s PairSet) Remove(pair string) {
	delete(s, pair)
}

// Len returns the set size.
func (s PairSet) Len() int {
	return len(s)
}

// Sorted returns the members in lexical order.
func (s PairSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for pair := range s {
		out = append(out, pair)
	}
	slices.Sort(out)
	return out
}

// Clone copies the set.
func (s PairSet) Clone() PairSet {
	out := make(PairSet, len(s))
	for pair := range s {
		out[pair] = struct{}{}
	}
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s PairSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array into the set.
func (s *PairSet) UnmarshalJSON(data []byte) error {
	var pairs []string
	if err := json.Unmarshal(data, &pairs); err != nil {
		return err
	}
	set := make(PairSet, len(pairs))
	for _, pair := range pairs {
		set.Add(pair)
	}
	*s = set
	return nil
}
