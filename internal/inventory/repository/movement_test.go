package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/inventory-ledger/internal/inventory/domain"
	"github.com/ehr/inventory-ledger/internal/inventory/repository"
)

func TestMovementRepository_InsertListBalance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := suite.NewOrg(t)
	item := createTestItem(t, ctx, "Catheter")
	lots := repository.NewLotRepository(suite.DB)
	movements := repository.NewMovementRepository(suite.DB)
	lot := &repository.Lot{ItemID: item.ID, LotNumber: "C-1"}

	base := time.Now().UTC().Add(-time.Hour)
	inOrg(t, ctx, func(ctx context.Context) error {
		if err := lots.Insert(ctx, lot); err != nil {
			return err
		}
		for i, m := range []*repository.Movement{
			{MovementType: domain.MovementReceipt, Direction: domain.DirectionIn, Quantity: decimal.NewFromInt(10),
				Metadata: domain.MovementMetadata{Details: domain.ReceiptDetails{PurchaseOrder: "PO-1"}}},
			{MovementType: domain.MovementIssue, Direction: domain.DirectionOut, Quantity: decimal.NewFromInt(3)},
		} {
			m.ItemID = item.ID
			m.LotID = lot.ID
			m.OccurredAt = base.Add(time.Duration(i) * time.Minute)
			if err := movements.Insert(ctx, m); err != nil {
				return err
			}
		}
		return lots.SetBalance(ctx, lot.ID, domain.Transition{
			Quantity: decimal.NewFromInt(7),
			Status:   domain.LotAvailable,
		}, nil)
	})

	var listed []*repository.MovementView
	var balance *repository.LotBalance
	inOrg(t, ctx, func(ctx context.Context) error {
		var err error
		listed, err = movements.List(ctx, repository.MovementFilter{LotID: &lot.ID})
		if err != nil {
			return err
		}
		balance, err = movements.Balance(ctx, lot.ID)
		return err
	})

	require.Len(t, listed, 2)
	assert.Equal(t, domain.MovementIssue, listed[0].MovementType)
	assert.Equal(t, "C-1", listed[1].LotNumber)
	receipt, ok := listed[1].Metadata.Details.(domain.ReceiptDetails)
	require.True(t, ok)
	assert.Equal(t, "PO-1", receipt.PurchaseOrder)

	assert.Equal(t, 2, balance.MovementCount)
	assert.True(t, decimal.NewFromInt(7).Equal(balance.LedgerBalance()))
	assert.True(t, balance.Balanced())
}

func TestMovementRepository_LedgerIsAppendOnly(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := suite.NewOrg(t)
	item := createTestItem(t, ctx, "Suture")
	lot := &repository.Lot{ItemID: item.ID, LotNumber: "SU-1"}
	m := &repository.Movement{
		ItemID:       item.ID,
		MovementType: domain.MovementReceipt,
		Direction:    domain.DirectionIn,
		Quantity:     decimal.NewFromInt(1),
	}
	inOrg(t, ctx, func(ctx context.Context) error {
		if err := repository.NewLotRepository(suite.DB).Insert(ctx, lot); err != nil {
			return err
		}
		m.LotID = lot.ID
		return repository.NewMovementRepository(suite.DB).Insert(ctx, m)
	})

	err := suite.DB.WithOrg(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE inventory_stock_movements SET quantity = 99 WHERE id = $1`, m.ID)
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")
}
