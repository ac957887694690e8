package errors_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/inventory-ledger/pkg/errors"
)

func TestConstructors_StatusAndSentinel(t *testing.T) {
	tests := []struct {
		name     string
		err      *errors.AppError
		sentinel error
		status   int
		code     string
	}{
		{"validation", errors.Validation(map[string]string{"name": "required"}), errors.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not found", errors.NotFound("lot"), errors.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"conflict", errors.Conflict("dup"), errors.ErrConflict, http.StatusConflict, "CONFLICT"},
		{"insufficient", errors.InsufficientQuantity(decimal.NewFromInt(70), decimal.NewFromInt(80)), errors.ErrInsufficientQuantity, http.StatusUnprocessableEntity, "INSUFFICIENT_QUANTITY"},
		{"contention", errors.Contention("lot busy"), errors.ErrContention, http.StatusConflict, "LOCK_CONTENTION"},
		{"infrastructure", errors.Infrastructure(context.DeadlineExceeded), errors.ErrInfrastructure, http.StatusServiceUnavailable, "INFRASTRUCTURE_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.sentinel))
			assert.Equal(t, tt.status, tt.err.StatusCode)
			assert.Equal(t, tt.code, tt.err.Code)
		})
	}
}

func TestInsufficientQuantity_Details(t *testing.T) {
	err := errors.InsufficientQuantity(decimal.NewFromInt(70), decimal.RequireFromString("80.5"))

	assert.Equal(t, "70", err.Details["available"])
	assert.Equal(t, "80.5", err.Details["requested"])
	assert.False(t, err.Retryable())
}

func TestRetryable(t *testing.T) {
	assert.True(t, errors.Contention("busy").Retryable())
	assert.True(t, errors.Infrastructure(fmt.Errorf("conn reset")).Retryable())
	assert.False(t, errors.Conflict("dup").Retryable())
}

func TestAsAppError_ThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("record movement: %w", errors.NotFound("item"))

	appErr, ok := errors.AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "item not found", appErr.Message)

	_, ok = errors.AsAppError(fmt.Errorf("plain"))
	assert.False(t, ok)
}
