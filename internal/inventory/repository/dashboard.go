package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/inventory-ledger/pkg/database"
)

// ItemCounts is the size of the catalog.
type ItemCounts struct {
	TotalItems  int `db:"total_items" json:"total_items"`
	ActiveItems int `db:"active_items" json:"active_items"`
}

// StockValue is on-hand quantity and its valuation at item cost.
type StockValue struct {
	TotalQuantity decimal.Decimal `db:"total_quantity" json:"total_quantity"`
	TotalValue    decimal.Decimal `db:"total_value" json:"total_value"`
}

// LowStockItem is an item at or below its reorder point.
type LowStockItem struct {
	ItemID          uuid.UUID           `db:"item_id" json:"item_id"`
	Name            string              `db:"name" json:"name"`
	ReorderPoint    decimal.Decimal     `db:"reorder_point" json:"reorder_point"`
	ReorderQuantity decimal.NullDecimal `db:"reorder_quantity" json:"reorder_quantity"`
	QuantityOnHand  decimal.Decimal     `db:"quantity_on_hand" json:"quantity_on_hand"`
}

// ExpiringLot is a usable lot close to expiry.
type ExpiringLot struct {
	LotID          uuid.UUID       `db:"lot_id" json:"lot_id"`
	ItemID         uuid.UUID       `db:"item_id" json:"item_id"`
	ItemName       string          `db:"item_name" json:"item_name"`
	LotNumber      string          `db:"lot_number" json:"lot_number"`
	LocationID     *uuid.UUID      `db:"location_id" json:"location_id,omitempty"`
	ExpirationDate time.Time       `db:"expiration_date" json:"expiration_date"`
	QuantityOnHand decimal.Decimal `db:"quantity_on_hand" json:"quantity_on_hand"`
}

// ControlledStock is the on-hand total of a controlled substance.
type ControlledStock struct {
	ItemID         uuid.UUID       `db:"item_id" json:"item_id"`
	Name           string          `db:"name" json:"name"`
	QuantityOnHand decimal.Decimal `db:"quantity_on_hand" json:"quantity_on_hand"`
}

// DashboardRepository runs the read-side aggregations. Each method is a
// single statement so callers may run them concurrently on separate
// transactions.
type DashboardRepository struct {
	db *database.DB
}

// NewDashboardRepository creates a new dashboard repository
func NewDashboardRepository(db *database.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

func (r *DashboardRepository) ItemCounts(ctx context.Context) (*ItemCounts, error) {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return nil, err
	}

	var c ItemCounts
	query := `
		SELECT COUNT(*) AS total_items, COUNT(*) FILTER (WHERE is_active) AS active_items
		FROM inventory_items
		WHERE org_id = $1
	`
	if err := r.db.Q(ctx).GetContext(ctx, &c, query, orgID); err != nil {
		return nil, database.MapError(err)
	}
	return &c, nil
}

func (r *DashboardRepository) StockValue(ctx context.Context, locationID *uuid.UUID) (*StockValue, error) {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return nil, err
	}

	var v StockValue
	query := `
		SELECT COALESCE(SUM(l.quantity_on_hand), 0) AS total_quantity,
		       COALESCE(SUM(l.quantity_on_hand * COALESCE(i.cost_per_unit, 0)), 0) AS total_value
		FROM inventory_lots l
		JOIN inventory_items i ON i.id = l.item_id
		WHERE l.org_id = $1 AND ($2::uuid IS NULL OR l.location_id = $2::uuid)
	`
	if err := r.db.Q(ctx).GetContext(ctx, &v, query, orgID, locationID); err != nil {
		return nil, database.MapError(err)
	}
	return &v, nil
}

func (r *DashboardRepository) LowStock(ctx context.Context, locationID *uuid.UUID) ([]*LowStockItem, error) {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT i.id AS item_id, i.name, i.reorder_point, i.reorder_quantity,
		       COALESCE(SUM(l.quantity_on_hand), 0) AS quantity_on_hand
		FROM inventory_items i
		LEFT JOIN inventory_lots l ON l.item_id = i.id AND l.org_id = i.org_id
			AND ($2::uuid IS NULL OR l.location_id = $2::uuid)
		WHERE i.org_id = $1 AND i.is_active AND i.reorder_point IS NOT NULL
		GROUP BY i.id
		HAVING COALESCE(SUM(l.quantity_on_hand), 0) <= i.reorder_point
		ORDER BY i.reorder_point ASC, i.name ASC
		LIMIT 10
	`
	items := []*LowStockItem{}
	if err := r.db.Q(ctx).SelectContext(ctx, &items, query, orgID, locationID); err != nil {
		return nil, database.MapError(err)
	}
	return items, nil
}

func (r *DashboardRepository) ExpiringLots(ctx context.Context, locationID *uuid.UUID, days int) ([]*ExpiringLot, error) {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT l.id AS lot_id, l.item_id, i.name AS item_name, l.lot_number, l.location_id,
		       l.expiration_date, l.quantity_on_hand
		FROM inventory_lots l
		JOIN inventory_items i ON i.id = l.item_id
		WHERE l.org_id = $1
		  AND l.status IN ('available', 'reserved')
		  AND l.expiration_date IS NOT NULL
		  AND l.expiration_date >= CURRENT_DATE
		  AND l.expiration_date <= CURRENT_DATE + $3::int
		  AND ($2::uuid IS NULL OR l.location_id = $2::uuid)
		ORDER BY l.expiration_date ASC
		LIMIT 20
	`
	lots := []*ExpiringLot{}
	if err := r.db.Q(ctx).SelectContext(ctx, &lots, query, orgID, locationID, days); err != nil {
		return nil, database.MapError(err)
	}
	return lots, nil
}

func (r *DashboardRepository) ControlledStock(ctx context.Context) ([]*ControlledStock, error) {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT i.id AS item_id, i.name, COALESCE(SUM(l.quantity_on_hand), 0) AS quantity_on_hand
		FROM inventory_items i
		LEFT JOIN inventory_lots l ON l.item_id = i.id AND l.org_id = i.org_id
		WHERE i.org_id = $1 AND i.is_controlled_substance
		GROUP BY i.id
		ORDER BY i.name ASC
	`
	items := []*ControlledStock{}
	if err := r.db.Q(ctx).SelectContext(ctx, &items, query, orgID); err != nil {
		return nil, database.MapError(err)
	}
	return items, nil
}
