package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/inventory-ledger/internal/inventory/domain"
	"github.com/ehr/inventory-ledger/pkg/errors"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestResolveDirection(t *testing.T) {
	tests := []struct {
		movementType domain.MovementType
		explicit     domain.Direction
		want         domain.Direction
	}{
		{domain.MovementReceipt, "", domain.DirectionIn},
		{domain.MovementReturn, "", domain.DirectionIn},
		{domain.MovementAdjustment, "", domain.DirectionIn},
		{domain.MovementIssue, "", domain.DirectionOut},
		{domain.MovementTransfer, "", domain.DirectionOut},
		{domain.MovementWaste, "", domain.DirectionOut},
		{domain.MovementAdjustment, domain.DirectionOut, domain.DirectionOut},
		{domain.MovementIssue, domain.DirectionIn, domain.DirectionIn},
	}

	for _, tt := range tests {
		t.Run(string(tt.movementType)+"/"+string(tt.explicit), func(t *testing.T) {
			assert.Equal(t, tt.want, domain.ResolveDirection(tt.movementType, tt.explicit))
		})
	}
}

func TestPolicyApply(t *testing.T) {
	reopen := domain.Policy{ReopenConsumed: true}
	terminal := domain.Policy{}

	tests := []struct {
		name       string
		policy     domain.Policy
		current    string
		status     domain.LotStatus
		quantity   string
		direction  domain.Direction
		wantQty    string
		wantStatus domain.LotStatus
	}{
		{"receipt adds", reopen, "0", domain.LotAvailable, "100", domain.DirectionIn, "100", domain.LotAvailable},
		{"issue subtracts", reopen, "100", domain.LotAvailable, "30", domain.DirectionOut, "70", domain.LotAvailable},
		{"issue to zero consumes", reopen, "70", domain.LotAvailable, "70", domain.DirectionOut, "0", domain.LotConsumed},
		{"quarantined to zero stays quarantined", reopen, "5", domain.LotQuarantined, "5", domain.DirectionOut, "0", domain.LotQuarantined},
		{"reserved to zero stays reserved", reopen, "5", domain.LotReserved, "5", domain.DirectionOut, "0", domain.LotReserved},
		{"receipt reopens consumed", reopen, "0", domain.LotConsumed, "10", domain.DirectionIn, "10", domain.LotAvailable},
		{"consumed stays terminal without reopen", terminal, "0", domain.LotConsumed, "10", domain.DirectionIn, "10", domain.LotConsumed},
		{"inbound does not reopen expired", reopen, "0", domain.LotExpired, "10", domain.DirectionIn, "10", domain.LotExpired},
		{"fractional quantities", reopen, "2.5", domain.LotAvailable, "0.25", domain.DirectionOut, "2.25", domain.LotAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.policy.Apply(d(tt.current), tt.status, d(tt.quantity), tt.direction)
			require.NoError(t, err)
			assert.True(t, d(tt.wantQty).Equal(got.Quantity), "quantity = %s", got.Quantity)
			assert.Equal(t, tt.wantStatus, got.Status)
		})
	}
}

func TestPolicyApply_Insufficient(t *testing.T) {
	_, err := domain.Policy{}.Apply(d("70"), domain.LotAvailable, d("80"), domain.DirectionOut)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientQuantity))

	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "70", appErr.Details["available"])
	assert.Equal(t, "80", appErr.Details["requested"])
}

func TestEnumsValid(t *testing.T) {
	assert.True(t, domain.LotQuarantined.Valid())
	assert.False(t, domain.LotStatus("lost").Valid())
	assert.True(t, domain.MovementWaste.Valid())
	assert.False(t, domain.MovementType("sale").Valid())
	assert.True(t, domain.DirectionOut.Valid())
	assert.False(t, domain.Direction("sideways").Valid())
}
