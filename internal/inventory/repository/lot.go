package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/inventory-ledger/internal/inventory/domain"
	"github.com/ehr/inventory-ledger/pkg/database"
	apperrors "github.com/ehr/inventory-ledger/pkg/errors"
)

// Lot is a tracked batch of an item with its own balance and expiry.
type Lot struct {
	ID               uuid.UUID           `db:"id" json:"id"`
	OrgID            uuid.UUID           `db:"org_id" json:"org_id"`
	ItemID           uuid.UUID           `db:"item_id" json:"item_id"`
	SupplierID       *uuid.UUID          `db:"supplier_id" json:"supplier_id,omitempty"`
	LocationID       *uuid.UUID          `db:"location_id" json:"location_id,omitempty"`
	LotNumber        string              `db:"lot_number" json:"lot_number"`
	SerialNumber     *string             `db:"serial_number" json:"serial_number,omitempty"`
	Barcode          *string             `db:"barcode" json:"barcode,omitempty"`
	ExpirationDate   *time.Time          `db:"expiration_date" json:"expiration_date,omitempty"`
	ManufactureDate  *time.Time          `db:"manufacture_date" json:"manufacture_date,omitempty"`
	QuantityOnHand   decimal.Decimal     `db:"quantity_on_hand" json:"quantity_on_hand"`
	QuantityReserved decimal.Decimal     `db:"quantity_reserved" json:"quantity_reserved"`
	Status           domain.LotStatus    `db:"status" json:"status"`
	ReceivedAt       time.Time           `db:"received_at" json:"received_at"`
	OpenedAt         *time.Time          `db:"opened_at" json:"opened_at,omitempty"`
	Notes            *string             `db:"notes" json:"notes,omitempty"`
	Metadata         *domain.LotMetadata `db:"metadata" json:"metadata,omitempty"`
	CreatedAt        time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time           `db:"updated_at" json:"updated_at"`
}

// LotView is a lot joined with display names.
type LotView struct {
	Lot
	ItemName     string  `db:"item_name" json:"item_name"`
	SupplierName *string `db:"supplier_name" json:"supplier_name,omitempty"`
}

// LockedLot is the part of a lot read under FOR UPDATE.
type LockedLot struct {
	ID             uuid.UUID        `db:"id"`
	ItemID         uuid.UUID        `db:"item_id"`
	QuantityOnHand decimal.Decimal  `db:"quantity_on_hand"`
	Status         domain.LotStatus `db:"status"`
}

// LotFilter narrows List.
type LotFilter struct {
	ItemID             *uuid.UUID
	LocationID         *uuid.UUID
	Status             domain.LotStatus
	ExpiringWithinDays int
	Search             string
	Page               Page
}

// LotRepository handles lot persistence
type LotRepository struct {
	db *database.DB
}

// NewLotRepository creates a new lot repository
func NewLotRepository(db *database.DB) *LotRepository {
	return &LotRepository{db: db}
}

const lotInsert = `
	INSERT INTO inventory_lots (
		id, org_id, item_id, supplier_id, location_id, lot_number, serial_number, barcode,
		expiration_date, manufacture_date, quantity_on_hand, quantity_reserved, status,
		received_at, opened_at, notes, metadata
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11, $12, $13, $14, $15, $16)`

func (r *LotRepository) prepare(ctx context.Context, lot *Lot) ([]interface{}, error) {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return nil, err
	}
	if lot.ID == uuid.Nil {
		lot.ID = uuid.New()
	}
	if lot.Status == "" {
		lot.Status = domain.LotAvailable
	}
	if lot.ReceivedAt.IsZero() {
		lot.ReceivedAt = time.Now().UTC()
	}
	lot.OrgID = orgID
	lot.QuantityOnHand = decimal.Zero

	return []interface{}{
		lot.ID, lot.OrgID, lot.ItemID, lot.SupplierID, lot.LocationID, lot.LotNumber,
		lot.SerialNumber, lot.Barcode, lot.ExpirationDate, lot.ManufactureDate,
		lot.QuantityReserved, lot.Status,
		lot.ReceivedAt, lot.OpenedAt, lot.Notes, lot.Metadata,
	}, nil
}

// Insert creates a lot with a zero on-hand balance. Stock arrives only
// through movements. A duplicate lot number for the item is a Conflict.
func (r *LotRepository) Insert(ctx context.Context, lot *Lot) error {
	args, err := r.prepare(ctx, lot)
	if err != nil {
		return err
	}

	err = r.db.Q(ctx).QueryRowxContext(ctx, lotInsert+` RETURNING created_at, updated_at`, args...).
		Scan(&lot.CreatedAt, &lot.UpdatedAt)
	return database.MapError(err)
}

// InsertIfAbsent is Insert that yields to an existing lot with the same
// number. It reports whether this call created the row.
func (r *LotRepository) InsertIfAbsent(ctx context.Context, lot *Lot) (bool, error) {
	args, err := r.prepare(ctx, lot)
	if err != nil {
		return false, err
	}

	query := lotInsert + `
		ON CONFLICT (org_id, item_id, lot_number) DO NOTHING
		RETURNING created_at, updated_at`
	err = r.db.Q(ctx).QueryRowxContext(ctx, query, args...).Scan(&lot.CreatedAt, &lot.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, database.MapError(err)
	}
	return true, nil
}

// FindIDByNumber returns the id of the item's lot with that number, or
// uuid.Nil when there is none.
func (r *LotRepository) FindIDByNumber(ctx context.Context, itemID uuid.UUID, lotNumber string) (uuid.UUID, error) {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	query := `SELECT id FROM inventory_lots WHERE org_id = $1 AND item_id = $2 AND lot_number = $3`
	if err := r.db.Q(ctx).GetContext(ctx, &id, query, orgID, itemID, lotNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, nil
		}
		return uuid.Nil, database.MapError(err)
	}
	return id, nil
}

// Lock takes the row lock that serializes every balance change on the lot.
// The lock is held until the surrounding transaction ends.
func (r *LotRepository) Lock(ctx context.Context, id uuid.UUID) (*LockedLot, error) {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return nil, err
	}

	var locked LockedLot
	query := `
		SELECT id, item_id, quantity_on_hand, status
		FROM inventory_lots
		WHERE org_id = $1 AND id = $2
		FOR UPDATE
	`
	if err := r.db.Q(ctx).GetContext(ctx, &locked, query, orgID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("lot")
		}
		return nil, database.MapError(err)
	}
	return &locked, nil
}

// SetBalance writes a new balance and status. A non-nil locationID moves
// the lot there.
func (r *LotRepository) SetBalance(ctx context.Context, id uuid.UUID, t domain.Transition, locationID *uuid.UUID) error {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE inventory_lots
		SET quantity_on_hand = $3,
		    status = $4,
		    location_id = COALESCE($5, location_id),
		    updated_at = NOW()
		WHERE org_id = $1 AND id = $2
	`
	result, err := r.db.Q(ctx).ExecContext(ctx, query, orgID, id, t.Quantity, t.Status, locationID)
	if err != nil {
		return database.MapError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return database.MapError(err)
	}
	if rows == 0 {
		return apperrors.NotFound("lot")
	}
	return nil
}

const lotViewColumns = `
	l.id, l.org_id, l.item_id, l.supplier_id, l.location_id, l.lot_number, l.serial_number,
	l.barcode, l.expiration_date, l.manufacture_date, l.quantity_on_hand, l.quantity_reserved,
	l.status, l.received_at, l.opened_at, l.notes, l.metadata, l.created_at, l.updated_at,
	i.name AS item_name, s.name AS supplier_name`

const lotViewFrom = `
	FROM inventory_lots l
	JOIN inventory_items i ON i.id = l.item_id
	LEFT JOIN inventory_suppliers s ON s.id = l.supplier_id`

// fefoOrder lists the earliest expiry first; lots without one sort last.
const fefoOrder = `ORDER BY l.expiration_date ASC NULLS LAST, l.received_at DESC`

// GetByID retrieves a lot with item and supplier names
func (r *LotRepository) GetByID(ctx context.Context, id uuid.UUID) (*LotView, error) {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return nil, err
	}

	var lot LotView
	query := `SELECT ` + lotViewColumns + lotViewFrom + ` WHERE l.org_id = $1 AND l.id = $2`
	if err := r.db.Q(ctx).GetContext(ctx, &lot, query, orgID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("lot")
		}
		return nil, database.MapError(err)
	}
	return &lot, nil
}

// List returns lots in FEFO order.
func (r *LotRepository) List(ctx context.Context, f LotFilter) ([]*LotView, error) {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return nil, err
	}

	w := newFilter("l.org_id = $1", orgID)
	if f.ItemID != nil {
		w.add("l.item_id = %s", *f.ItemID)
	}
	if f.LocationID != nil {
		w.add("l.location_id = %s", *f.LocationID)
	}
	if f.Status != "" {
		w.add("l.status = %s", f.Status)
	}
	if f.ExpiringWithinDays > 0 {
		w.add("l.expiration_date IS NOT NULL AND l.expiration_date <= CURRENT_DATE + %s::int", f.ExpiringWithinDays)
	}
	if f.Search != "" {
		w.add("(l.lot_number ILIKE %s OR l.barcode ILIKE %s)", likePattern(f.Search))
	}
	limit, args := w.paginate(f.Page.normalize(defaultPageSize, maxPageSize))

	query := `SELECT ` + lotViewColumns + lotViewFrom + ` ` + w.where() + ` ` + fefoOrder + ` ` + limit
	lots := []*LotView{}
	if err := r.db.Q(ctx).SelectContext(ctx, &lots, query, args...); err != nil {
		return nil, database.MapError(err)
	}
	return lots, nil
}
