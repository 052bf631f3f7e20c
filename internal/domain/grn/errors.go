package grn

import (
	"fmt"
	"net/http"

	"stockpile/internal/core/apperror"
	"stockpile/internal/core/id"
)

// Error codes raised by the GRN workflow. Validation and not-found
// failures reuse apperror.CodeValidation and apperror.CodeNotFound.
const (
	CodeInvalidReference         = "INVALID_REFERENCE"
	CodeAlreadySubmitted         = "GRN_ALREADY_SUBMITTED"
	CodeDuplicateInCurrentCarton = "DUPLICATE_IN_CURRENT_CARTON"
	CodeDuplicateInSession       = "DUPLICATE_IN_SESSION"
	CodeCartonNotFound           = "CARTON_NOT_FOUND"
	CodeIncompleteCarton         = "INCOMPLETE_CARTON"
	CodeNoCartons                = "NO_CARTONS"
)

// ErrInvalidReference is returned when the reference does not exist in the directory.
func ErrInvalidReference(refType RefType, refID string) *apperror.AppError {
	return apperror.NewBusinessRule(CodeInvalidReference, "Invalid reference").
		WithDetail("refType", string(refType)).
		WithDetail("refId", refID)
}

// ErrDraftNotFound is returned when no draft exists for the id.
func ErrDraftNotFound(draftID any) *apperror.AppError {
	return apperror.NewNotFound("grn draft", draftID)
}

// ErrReceiptNotFound is returned when no GRN exists for the id.
func ErrReceiptNotFound(grnID any) *apperror.AppError {
	return apperror.NewNotFound("grn", grnID)
}

// ErrAlreadySubmitted is returned for any mutation of a submitted draft.
func ErrAlreadySubmitted(draftID id.ID) *apperror.AppError {
	return apperror.NewConflict(CodeAlreadySubmitted, "GRN already submitted").
		WithDetail("draftId", draftID.String())
}

// ErrDuplicateInCurrentCarton is returned when the pair is already in the unsealed carton.
func ErrDuplicateInCurrentCarton(barcode string) *apperror.AppError {
	return apperror.NewConflict(CodeDuplicateInCurrentCarton, "Duplicate in current carton").
		WithDetail("pairBarcode", barcode)
}

// ErrDuplicateInSession is returned when the pair was already sealed into a carton.
func ErrDuplicateInSession(barcode string) *apperror.AppError {
	return apperror.NewConflict(CodeDuplicateInSession, "Duplicate in this GRN session").
		WithDetail("pairBarcode", barcode)
}

// ErrCartonNotFound is returned when the draft has no sealed carton with the barcode.
func ErrCartonNotFound(barcode string) *apperror.AppError {
	return apperror.New(CodeCartonNotFound, "Carton not found", http.StatusNotFound).
		WithDetail("cartonBarcode", barcode)
}

// ErrIncompleteCarton is returned on submit while pairs wait in the current carton.
func ErrIncompleteCarton(current int) *apperror.AppError {
	return apperror.NewBusinessRule(CodeIncompleteCarton,
		fmt.Sprintf("Current carton incomplete (%d/%d)", current, PairsPerCarton)).
		WithDetail("current", current).
		WithDetail("expected", PairsPerCarton)
}

// ErrNoCartons is returned on submit when nothing was sealed.
func ErrNoCartons() *apperror.AppError {
	return apperror.NewBusinessRule(CodeNoCartons, "Add at least 1 carton")
}
