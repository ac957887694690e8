package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/inventory-ledger/internal/inventory/domain"
	"github.com/ehr/inventory-ledger/internal/inventory/repository"
	"github.com/ehr/inventory-ledger/pkg/errors"
	"github.com/ehr/inventory-ledger/pkg/testutil"
)

func TestLotRepository_ListIsFEFO(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := suite.NewOrg(t)
	item := createTestItem(t, ctx, "Saline 0.9%")
	repo := repository.NewLotRepository(suite.DB)

	soon := time.Now().UTC().AddDate(0, 0, 10).Truncate(24 * time.Hour)
	later := time.Now().UTC().AddDate(0, 6, 0).Truncate(24 * time.Hour)

	inOrg(t, ctx, func(ctx context.Context) error {
		for _, lot := range []*repository.Lot{
			{ItemID: item.ID, LotNumber: "NO-EXPIRY"},
			{ItemID: item.ID, LotNumber: "LATER", ExpirationDate: &later},
			{ItemID: item.ID, LotNumber: "SOON", ExpirationDate: &soon},
		} {
			if err := repo.Insert(ctx, lot); err != nil {
				return err
			}
		}
		return nil
	})

	var lots []*repository.LotView
	inOrg(t, ctx, func(ctx context.Context) error {
		var err error
		lots, err = repo.List(ctx, repository.LotFilter{ItemID: &item.ID})
		return err
	})

	require.Len(t, lots, 3)
	assert.Equal(t, "SOON", lots[0].LotNumber)
	assert.Equal(t, "LATER", lots[1].LotNumber)
	assert.Equal(t, "NO-EXPIRY", lots[2].LotNumber)
	assert.Equal(t, "Saline 0.9%", lots[0].ItemName)
}

func TestLotRepository_InsertDuplicateIsConflict(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := suite.NewOrg(t)
	item := createTestItem(t, ctx, "Gloves M")
	repo := repository.NewLotRepository(suite.DB)

	inOrg(t, ctx, func(ctx context.Context) error {
		return repo.Insert(ctx, &repository.Lot{ItemID: item.ID, LotNumber: "G-1"})
	})

	err := suite.DB.WithOrg(ctx, func(ctx context.Context, _ *sqlx.Tx) error {
		return repo.Insert(ctx, &repository.Lot{ItemID: item.ID, LotNumber: "G-1"})
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestLotRepository_InsertIfAbsentYields(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := suite.NewOrg(t)
	item := createTestItem(t, ctx, "Syringe 5ml")
	repo := repository.NewLotRepository(suite.DB)

	var firstCreated, secondCreated bool
	var foundID uuid.UUID
	first := &repository.Lot{ItemID: item.ID, LotNumber: "S-9"}
	inOrg(t, ctx, func(ctx context.Context) error {
		var err error
		firstCreated, err = repo.InsertIfAbsent(ctx, first)
		if err != nil {
			return err
		}
		secondCreated, err = repo.InsertIfAbsent(ctx, &repository.Lot{ItemID: item.ID, LotNumber: "S-9"})
		if err != nil {
			return err
		}
		foundID, err = repo.FindIDByNumber(ctx, item.ID, "S-9")
		return err
	})

	assert.True(t, firstCreated)
	assert.False(t, secondCreated)
	assert.Equal(t, first.ID, foundID)
}

func TestLotRepository_SetBalance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := suite.NewOrg(t)
	item := createTestItem(t, ctx, "Bandage")
	repo := repository.NewLotRepository(suite.DB)
	lot := &repository.Lot{ItemID: item.ID, LotNumber: "B-1"}
	shelf := uuid.New()

	var locked *repository.LockedLot
	inOrg(t, ctx, func(ctx context.Context) error {
		if err := repo.Insert(ctx, lot); err != nil {
			return err
		}
		if err := repo.SetBalance(ctx, lot.ID, domain.Transition{
			Quantity: decimal.NewFromInt(12),
			Status:   domain.LotAvailable,
		}, &shelf); err != nil {
			return err
		}
		var err error
		locked, err = repo.Lock(ctx, lot.ID)
		return err
	})

	assert.True(t, decimal.NewFromInt(12).Equal(locked.QuantityOnHand))
	assert.Equal(t, domain.LotAvailable, locked.Status)

	var view *repository.LotView
	inOrg(t, ctx, func(ctx context.Context) error {
		var err error
		view, err = repo.GetByID(ctx, lot.ID)
		return err
	})
	require.NotNil(t, view.LocationID)
	assert.Equal(t, shelf, *view.LocationID)
}

func TestLotRepository_OtherOrgCannotSeeLot(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := suite.NewOrg(t)
	item := createTestItem(t, ctx, "Mask")
	repo := repository.NewLotRepository(suite.DB)
	lot := &repository.Lot{ItemID: item.ID, LotNumber: "M-1"}
	inOrg(t, ctx, func(ctx context.Context) error { return repo.Insert(ctx, lot) })

	other := suite.NewOrg(t)
	err := suite.DB.WithOrg(other, func(ctx context.Context, _ *sqlx.Tx) error {
		_, err := repo.GetByID(ctx, lot.ID)
		return err
	})
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestLotRepository_LockContentionIsMapped(t *testing.T) {
	mock := testutil.NewMockDB(t)
	orgID := uuid.New()
	lotID := uuid.New()
	ctx := testutil.OrgContext(orgID, uuid.New())

	mock.ExpectQuery("FOR UPDATE").
		WithArgs(orgID.String(), lotID.String()).
		WillReturnError(&pq.Error{Code: "55P03", Message: "canceling statement due to lock timeout"})

	_, err := repository.NewLotRepository(mock.DB).Lock(ctx, lotID)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrContention))
	mock.ExpectationsWereMet(t)
}

func TestLotRepository_LockMissingIsNotFound(t *testing.T) {
	mock := testutil.NewMockDB(t)
	orgID := uuid.New()
	ctx := testutil.OrgContext(orgID, uuid.New())

	mock.ExpectQuery("FOR UPDATE").
		WillReturnRows(testutil.MockRows("id", "item_id", "quantity_on_hand", "status"))

	_, err := repository.NewLotRepository(mock.DB).Lock(ctx, uuid.New())

	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mock.ExpectationsWereMet(t)
}

func TestLotRepository_FindIDByNumberAbsent(t *testing.T) {
	mock := testutil.NewMockDB(t)
	orgID := uuid.New()
	ctx := testutil.OrgContext(orgID, uuid.New())

	mock.ExpectQuery("SELECT id FROM inventory_lots").
		WillReturnRows(testutil.MockRows("id"))

	id, err := repository.NewLotRepository(mock.DB).FindIDByNumber(ctx, uuid.New(), "LOT-404")

	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, id)
	mock.ExpectationsWereMet(t)
}

func TestLotRepository_RequiresOrg(t *testing.T) {
	mock := testutil.NewMockDB(t)

	_, err := repository.NewLotRepository(mock.DB).GetByID(context.Background(), uuid.New())

	assert.Error(t, err)
	mock.ExpectationsWereMet(t)
}
