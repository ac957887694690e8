package service_test

import (
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/inventory-ledger/internal/inventory/domain"
	"github.com/ehr/inventory-ledger/internal/inventory/events"
	"github.com/ehr/inventory-ledger/internal/inventory/service"
	"github.com/ehr/inventory-ledger/pkg/errors"
	"github.com/ehr/inventory-ledger/pkg/logger"
	"github.com/ehr/inventory-ledger/pkg/testutil"
)

type auditSpy struct {
	mu     sync.Mutex
	events []events.AuditEvent
}

func (a *auditSpy) Record(e events.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *auditSpy) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Action)
	}
	return out
}

func newMockService(t *testing.T) (*service.InventoryService, *testutil.MockDB, *auditSpy) {
	t.Helper()
	mock := testutil.NewMockDB(t)
	spy := &auditSpy{}
	svc := service.NewInventoryService(
		mock.DB,
		service.NewRepositories(mock.DB),
		spy,
		service.Options{Policy: domain.Policy{ReopenConsumed: true}},
		logger.Nop(),
	)
	return svc, mock, spy
}

type ledgerFixture struct {
	orgID, userID, itemID, lotID uuid.UUID
}

func newLedgerFixture() ledgerFixture {
	return ledgerFixture{orgID: uuid.New(), userID: uuid.New(), itemID: uuid.New(), lotID: uuid.New()}
}

func (f ledgerFixture) expectItem(mock *testutil.MockDB, allowPartial bool) {
	mock.ExpectQuery("FROM inventory_items i WHERE i.org_id = $1 AND i.id = $2").
		WithArgs(f.orgID.String(), f.itemID.String()).
		WillReturnRows(testutil.MockRows("id", "name", "allow_partial_quantity").
			AddRow(f.itemID.String(), "Gauze 4x4", allowPartial))
}

func (f ledgerFixture) expectLock(mock *testutil.MockDB, lotID interface{}, itemID uuid.UUID, onHand string, status domain.LotStatus) {
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(f.orgID.String(), lotID).
		WillReturnRows(testutil.MockRows("id", "item_id", "quantity_on_hand", "status").
			AddRow(f.lotID.String(), itemID.String(), onHand, string(status)))
}

func expectMovementInsert(mock *testutil.MockDB) {
	mock.ExpectQuery("INSERT INTO inventory_stock_movements").
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))
}

func TestRecordStockMovement_IssueEmptiesLot(t *testing.T) {
	svc, mock, spy := newMockService(t)
	f := newLedgerFixture()
	ctx := testutil.OrgContext(f.orgID, f.userID)

	mock.ExpectOrgScope(f.orgID)
	f.expectItem(mock, false)
	f.expectLock(mock, f.lotID.String(), f.itemID, "10", domain.LotAvailable)
	mock.ExpectExec("UPDATE inventory_lots").
		WithArgs(f.orgID.String(), f.lotID.String(), "0", "consumed", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectMovementInsert(mock)
	mock.ExpectCommit()

	m, err := svc.RecordStockMovement(ctx, service.RecordMovementInput{
		ItemID:       f.itemID,
		LotID:        &f.lotID,
		MovementType: domain.MovementIssue,
		Quantity:     decimal.NewFromInt(10),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.DirectionOut, m.Direction)
	assert.Equal(t, f.lotID, m.LotID)
	require.NotNil(t, m.PerformedBy)
	assert.Equal(t, f.userID, *m.PerformedBy)
	assert.Equal(t, []string{events.ActionMovementRecorded}, spy.actions())
	mock.ExpectationsWereMet(t)
}

func TestRecordStockMovement_InsufficientRollsBack(t *testing.T) {
	svc, mock, spy := newMockService(t)
	f := newLedgerFixture()
	ctx := testutil.OrgContext(f.orgID, f.userID)

	mock.ExpectOrgScope(f.orgID)
	f.expectItem(mock, false)
	f.expectLock(mock, f.lotID.String(), f.itemID, "3", domain.LotAvailable)
	mock.ExpectRollback()

	_, err := svc.RecordStockMovement(ctx, service.RecordMovementInput{
		ItemID:       f.itemID,
		LotID:        &f.lotID,
		MovementType: domain.MovementWaste,
		Quantity:     decimal.NewFromInt(5),
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientQuantity))
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "3", appErr.Details["available"])
	assert.Equal(t, "5", appErr.Details["requested"])
	assert.Empty(t, spy.actions())
	mock.ExpectationsWereMet(t)
}

func TestRecordStockMovement_LockTimeoutIsContention(t *testing.T) {
	svc, mock, _ := newMockService(t)
	f := newLedgerFixture()
	ctx := testutil.OrgContext(f.orgID, f.userID)

	mock.ExpectOrgScope(f.orgID)
	f.expectItem(mock, false)
	mock.ExpectQuery("FOR UPDATE").WillReturnError(&pq.Error{Code: "55P03", Message: "canceling statement due to lock timeout"})
	mock.ExpectRollback()

	_, err := svc.RecordStockMovement(ctx, service.RecordMovementInput{
		ItemID:       f.itemID,
		LotID:        &f.lotID,
		MovementType: domain.MovementIssue,
		Quantity:     decimal.NewFromInt(1),
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrContention))
	appErr, _ := errors.AsAppError(err)
	require.NotNil(t, appErr)
	assert.True(t, appErr.Retryable())
	mock.ExpectationsWereMet(t)
}

func TestRecordStockMovement_LotOfAnotherItem(t *testing.T) {
	svc, mock, _ := newMockService(t)
	f := newLedgerFixture()
	ctx := testutil.OrgContext(f.orgID, f.userID)

	mock.ExpectOrgScope(f.orgID)
	f.expectItem(mock, false)
	f.expectLock(mock, f.lotID.String(), uuid.New(), "10", domain.LotAvailable)
	mock.ExpectRollback()

	_, err := svc.RecordStockMovement(ctx, service.RecordMovementInput{
		ItemID:       f.itemID,
		LotID:        &f.lotID,
		MovementType: domain.MovementIssue,
		Quantity:     decimal.NewFromInt(1),
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	mock.ExpectationsWereMet(t)
}

func TestRecordStockMovement_UnknownLotNumberCreatesLot(t *testing.T) {
	svc, mock, spy := newMockService(t)
	f := newLedgerFixture()
	ctx := testutil.OrgContext(f.orgID, f.userID)
	location := uuid.New()

	mock.ExpectOrgScope(f.orgID)
	f.expectItem(mock, false)
	mock.ExpectQuery("SELECT id FROM inventory_lots").
		WithArgs(f.orgID.String(), f.itemID.String(), "LOT-999").
		WillReturnRows(testutil.MockRows("id"))
	mock.ExpectQuery("INSERT INTO inventory_lots").
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(time.Now(), time.Now()))
	f.expectLock(mock, testutil.AnyUUID{}, f.itemID, "0", domain.LotAvailable)
	mock.ExpectExec("UPDATE inventory_lots").
		WithArgs(f.orgID.String(), testutil.AnyUUID{}, "5", "available", location.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO inventory_item_locations").
		WithArgs(testutil.AnyUUID{}, f.orgID.String(), f.itemID.String(), location.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectMovementInsert(mock)
	mock.ExpectCommit()

	m, err := svc.RecordStockMovement(ctx, service.RecordMovementInput{
		ItemID:                f.itemID,
		LotNumber:             "LOT-999",
		MovementType:          domain.MovementReceipt,
		Quantity:              decimal.NewFromInt(5),
		DestinationLocationID: &location,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.DirectionIn, m.Direction)
	require.Len(t, spy.events, 1)
	assert.Equal(t, true, spy.events[0].Metadata["lot_created"])
	mock.ExpectationsWereMet(t)
}

func TestRecordStockMovement_PartialQuantityRejected(t *testing.T) {
	svc, mock, _ := newMockService(t)
	f := newLedgerFixture()
	ctx := testutil.OrgContext(f.orgID, f.userID)

	mock.ExpectOrgScope(f.orgID)
	f.expectItem(mock, false)
	mock.ExpectRollback()

	_, err := svc.RecordStockMovement(ctx, service.RecordMovementInput{
		ItemID:       f.itemID,
		LotID:        &f.lotID,
		MovementType: domain.MovementIssue,
		Quantity:     decimal.RequireFromString("1.5"),
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	mock.ExpectationsWereMet(t)
}

func TestRecordStockMovement_ValidationBeforeAnyQuery(t *testing.T) {
	lotID := uuid.New()
	base := service.RecordMovementInput{
		ItemID:       uuid.New(),
		LotID:        &lotID,
		MovementType: domain.MovementIssue,
		Quantity:     decimal.NewFromInt(1),
	}

	tests := []struct {
		name   string
		mutate func(*service.RecordMovementInput)
		field  string
	}{
		{"missing item", func(in *service.RecordMovementInput) { in.ItemID = uuid.Nil }, "item_id"},
		{"missing type", func(in *service.RecordMovementInput) { in.MovementType = "" }, "movement_type"},
		{"unknown type", func(in *service.RecordMovementInput) { in.MovementType = "theft" }, "movement_type"},
		{"zero quantity", func(in *service.RecordMovementInput) { in.Quantity = decimal.Zero }, "quantity"},
		{"negative quantity", func(in *service.RecordMovementInput) { in.Quantity = decimal.NewFromInt(-2) }, "quantity"},
		{"bad direction", func(in *service.RecordMovementInput) { in.Direction = "sideways" }, "direction"},
		{"no lot", func(in *service.RecordMovementInput) { in.LotID = nil; in.LotNumber = " " }, "lot_id"},
		{"metadata kind", func(in *service.RecordMovementInput) {
			in.Metadata = domain.MovementMetadata{Details: domain.ReceiptDetails{PurchaseOrder: "PO-1"}}
		}, "metadata"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock, _ := newMockService(t)
			in := base
			tt.mutate(&in)

			_, err := svc.RecordStockMovement(testutil.OrgContext(uuid.New(), uuid.New()), in)

			require.Error(t, err)
			appErr, ok := errors.AsAppError(err)
			require.True(t, ok)
			assert.Contains(t, appErr.Details, tt.field)
			mock.ExpectationsWereMet(t)
		})
	}
}

func TestCreateLot_InitialQuantityBookedAsReceipt(t *testing.T) {
	svc, mock, spy := newMockService(t)
	f := newLedgerFixture()
	ctx := testutil.OrgContext(f.orgID, f.userID)
	location := uuid.New()

	mock.ExpectOrgScope(f.orgID)
	f.expectItem(mock, false)
	mock.ExpectQuery("INSERT INTO inventory_lots").
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(time.Now(), time.Now()))
	f.expectLock(mock, testutil.AnyUUID{}, f.itemID, "0", domain.LotAvailable)
	mock.ExpectExec("UPDATE inventory_lots").
		WithArgs(f.orgID.String(), testutil.AnyUUID{}, "100", "available", location.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO inventory_item_locations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO inventory_stock_movements").
		WithArgs(
			testutil.AnyUUID{}, f.orgID.String(), f.itemID.String(), testutil.AnyUUID{},
			nil, location.String(), "100", nil, "receipt", "in",
			"Initial lot balance", "LOT", testutil.AnyUUID{}, f.userID.String(), nil,
			testutil.AnyTime{}, testutil.AnyArg{},
		).
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))
	mock.ExpectCommit()

	lot, err := svc.CreateLot(ctx, f.itemID, service.CreateLotInput{
		LotNumber:       "LOT-001",
		LocationID:      &location,
		InitialQuantity: decimal.NewFromInt(100),
	})

	require.NoError(t, err)
	assert.True(t, lot.QuantityOnHand.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, domain.LotAvailable, lot.Status)
	assert.Equal(t, []string{events.ActionLotCreated}, spy.actions())
	mock.ExpectationsWereMet(t)
}

func TestCreateLot_Validation(t *testing.T) {
	svc, mock, _ := newMockService(t)
	ctx := testutil.OrgContext(uuid.New(), uuid.New())

	_, err := svc.CreateLot(ctx, uuid.New(), service.CreateLotInput{
		LotNumber:       "L-1",
		InitialQuantity: decimal.NewFromInt(-1),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = svc.CreateLot(ctx, uuid.New(), service.CreateLotInput{
		LotNumber:        "L-1",
		MovementMetadata: domain.MovementMetadata{Details: domain.WasteDetails{WasteMethod: "incineration"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	mock.ExpectationsWereMet(t)
}

func TestCreateItem_ValidationAndDefaults(t *testing.T) {
	svc, mock, spy := newMockService(t)
	orgID := uuid.New()
	ctx := testutil.OrgContext(orgID, uuid.New())

	_, err := svc.CreateItem(ctx, service.CreateItemInput{Name: "   "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	mock.ExpectOrgScope(orgID)
	mock.ExpectQuery("INSERT INTO inventory_items").
		WithArgs(
			testutil.AnyUUID{}, orgID.String(), "Gauze 4x4", nil, nil, "each", nil, nil,
			true, true, false, nil, nil, nil, nil, nil, false, true, testutil.AnyArg{},
		).
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(time.Now(), time.Now()))
	mock.ExpectCommit()

	item, err := svc.CreateItem(ctx, service.CreateItemInput{Name: " Gauze 4x4 "})
	require.NoError(t, err)
	assert.Equal(t, "Gauze 4x4", item.Name)
	assert.Equal(t, "each", item.UnitOfMeasure)
	assert.True(t, item.IsActive)
	assert.Equal(t, []string{events.ActionItemCreated}, spy.actions())
	mock.ExpectationsWereMet(t)
}
