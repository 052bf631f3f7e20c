package grn

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

const dateStamp = "20060102"

// Receipt numbers carry a three-digit suffix drawn from [100, 999].
const (
	receiptSuffixMin   = 100
	receiptSuffixRange = 900
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// RandomSource yields uniformly distributed integers in [0, n).
type RandomSource interface {
	IntN(n int) int
}

type globalRandom struct{}

func (globalRandom) IntN(n int) int { return rand.IntN(n) }

// DefaultRandom uses the process-wide generator from math/rand/v2.
var DefaultRandom RandomSource = globalRandom{}

// RefNumber extracts the segment between the first and second hyphen of a
// reference id, so PO-2024-0017 yields 2024. Ids without a hyphen, or with
// an empty segment there, are used whole.
func RefNumber(refID string) string {
	_, after, found := strings.Cut(refID, "-")
	if !found {
		return refID
	}
	segment, _, _ := strings.Cut(after, "-")
	if segment == "" {
		return refID
	}
	return segment
}

// CartonBarcode formats CTN-<YYYYMMDD>-<refType>-<refNumber>-<serial>.
// The serial is zero-padded to at least three digits.
func CartonBarcode(at time.Time, refType RefType, refID string, serial int) string {
	return fmt.Sprintf("CTN-%s-%s-%s-%03d", at.Format(dateStamp), refType, RefNumber(refID), serial)
}

// ReceiptNumber formats GRN-<YYYYMMDD>-<nnn> with a random three-digit suffix.
// Numbers are not guaranteed unique; storage enforces uniqueness.
func ReceiptNumber(at time.Time, rnd RandomSource) string {
	return fmt.Sprintf("GRN-%s-%d", at.Format(dateStamp), receiptSuffixMin+rnd.IntN(receiptSuffixRange))
}
