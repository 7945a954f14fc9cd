package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Constructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		wantType ErrorType
		wantCode int
	}{
		{"validation", NewValidationError("bad amount"), ErrorTypeValidation, http.StatusBadRequest},
		{"not found", NewNotFoundError("no txn"), ErrorTypeNotFound, http.StatusNotFound},
		{"conflict", NewConflictError("final"), ErrorTypeConflict, http.StatusConflict},
		{"forbidden", NewForbiddenError("owner only"), ErrorTypeForbidden, http.StatusForbidden},
		{"bad gateway", NewBadGatewayError("provider down"), ErrorTypeBadGateway, http.StatusBadGateway},
		{"unavailable", NewUnavailableError("not configured"), ErrorTypeUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.Equal(t, tt.wantCode, tt.err.Code)
		})
	}
}

func TestAppError_DetailsInMessage(t *testing.T) {
	err := NewValidationError("invalid request", "amount must be positive")
	assert.Equal(t, "validation_error: invalid request (amount must be positive)", err.Error())
}

func TestAppError_WithCauseUnwraps(t *testing.T) {
	sentinel := stderrors.New("upstream timeout")
	wrapped := fmt.Errorf("handler: %w", NewBadGatewayError("payment could not be started").WithCause(sentinel))

	require.NotNil(t, GetAppError(wrapped))
	assert.ErrorIs(t, wrapped, sentinel)
	assert.NotContains(t, wrapped.Error(), "upstream timeout")
}

func TestTypePredicates(t *testing.T) {
	notFound := fmt.Errorf("lookup: %w", NewNotFoundError("no txn"))
	conflict := NewConflictError("final")

	assert.True(t, IsNotFoundError(notFound))
	assert.False(t, IsNotFoundError(conflict))
	assert.True(t, IsConflictError(conflict))
	assert.False(t, IsConflictError(stderrors.New("plain")))
}

func TestIsDuplicateError(t *testing.T) {
	assert.True(t, IsDuplicateError(stderrors.New("Error 1062: Duplicate entry 'txn1' for key")))
	assert.True(t, IsDuplicateError(stderrors.New("UNIQUE constraint failed: payment_recovery_notifications.transaction_id")))
	assert.False(t, IsDuplicateError(nil))
	assert.False(t, IsDuplicateError(stderrors.New("connection refused")))
}
