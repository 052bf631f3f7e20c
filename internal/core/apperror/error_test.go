package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactories_StatusAndCode(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"validation", NewValidation("bad"), CodeValidation, http.StatusBadRequest},
		{"not found", NewNotFound("grn draft", "x"), CodeNotFound, http.StatusNotFound},
		{"business rule", NewBusinessRule("NO_CARTONS", "empty"), "NO_CARTONS", http.StatusUnprocessableEntity},
		{"conflict default code", NewConflict("", "taken"), CodeConflict, http.StatusConflict},
		{"conflict custom code", NewConflict("DUPLICATE_IN_SESSION", "dup"), "DUPLICATE_IN_SESSION", http.StatusConflict},
		{"concurrent", NewConcurrentModification("grn draft", "x"), CodeConcurrentModification, http.StatusConflict},
		{"duplicate", NewDuplicate("grn", "receipt_number", "GRN-1"), CodeDuplicate, http.StatusConflict},
		{"persistence", NewPersistence(errors.New("io")), CodeDatabase, http.StatusInternalServerError},
		{"internal", NewInternal(errors.New("io")), CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.Equal(t, tt.status, GetHTTPStatus(tt.err))
		})
	}
}

func TestNotFound_Details(t *testing.T) {
	err := NewNotFound("grn draft", "42")
	assert.Equal(t, "grn draft not found", err.Message)
	assert.Equal(t, map[string]any{"entity": "grn draft", "id": "42"}, err.Details)
}

func TestPersistence_KeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("save draft: %w", NewPersistence(cause))

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeDatabase, CodeOf(err))
	assert.Contains(t, err.Error(), "caused by: connection reset")
}

func TestAsAppError_ThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("scan: %w", NewConflict("DUPLICATE_IN_CURRENT_CARTON", "dup").WithDetail("pairBarcode", "P1"))

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "P1", appErr.Details["pairBarcode"])
	assert.True(t, IsAppError(wrapped))
	assert.True(t, HasCode(wrapped, "DUPLICATE_IN_CURRENT_CARTON"))
	assert.False(t, HasCode(wrapped, CodeNotFound))
}

func TestHelpers_PlainError(t *testing.T) {
	plain := errors.New("boom")

	_, ok := AsAppError(plain)
	assert.False(t, ok)
	assert.Equal(t, CodeInternal, CodeOf(plain))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(plain))
	assert.False(t, IsNotFound(plain))
	assert.False(t, IsConcurrentModification(plain))
}

func TestWithCause(t *testing.T) {
	cause := errors.New("unique violation")
	err := NewDuplicate("grn", "receipt_number", "GRN-1").WithCause(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "DUPLICATE_ENTRY: grn with this receipt_number already exists (caused by: unique violation)", err.Error())
	assert.Equal(t, "NOT_FOUND: x not found", NewNotFound("x", 1).Error())
}
