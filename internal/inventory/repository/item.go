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

// Item is a stock-keeping unit in an organization's catalog.
type Item struct {
	ID                    uuid.UUID            `db:"id" json:"id"`
	OrgID                 uuid.UUID            `db:"org_id" json:"org_id"`
	Name                  string               `db:"name" json:"name"`
	SKU                   *string              `db:"sku" json:"sku,omitempty"`
	Description           *string              `db:"description" json:"description,omitempty"`
	UnitOfMeasure         string               `db:"unit_of_measure" json:"unit_of_measure"`
	CategoryID            *uuid.UUID           `db:"category_id" json:"category_id,omitempty"`
	DefaultLocationID     *uuid.UUID           `db:"default_location_id" json:"default_location_id,omitempty"`
	TrackLots             bool                 `db:"track_lots" json:"track_lots"`
	TrackExpiration       bool                 `db:"track_expiration" json:"track_expiration"`
	AllowPartialQuantity  bool                 `db:"allow_partial_quantity" json:"allow_partial_quantity"`
	MinStockLevel         decimal.NullDecimal  `db:"min_stock_level" json:"min_stock_level"`
	MaxStockLevel         decimal.NullDecimal  `db:"max_stock_level" json:"max_stock_level"`
	ReorderPoint          decimal.NullDecimal  `db:"reorder_point" json:"reorder_point"`
	ReorderQuantity       decimal.NullDecimal  `db:"reorder_quantity" json:"reorder_quantity"`
	CostPerUnit           decimal.NullDecimal  `db:"cost_per_unit" json:"cost_per_unit"`
	IsControlledSubstance bool                 `db:"is_controlled_substance" json:"is_controlled_substance"`
	IsActive              bool                 `db:"is_active" json:"is_active"`
	Metadata              *domain.ItemMetadata `db:"metadata" json:"metadata,omitempty"`
	CreatedAt             time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time            `db:"updated_at" json:"updated_at"`
}

// ItemSummary is an item with stock aggregated over its lots.
type ItemSummary struct {
	Item
	CategoryName     *string         `db:"category_name" json:"category_name,omitempty"`
	QuantityOnHand   decimal.Decimal `db:"quantity_on_hand" json:"quantity_on_hand"`
	QuantityReserved decimal.Decimal `db:"quantity_reserved" json:"quantity_reserved"`
	NextExpiration   *time.Time      `db:"next_expiration" json:"next_expiration,omitempty"`
}

// ItemFilter narrows ListItems.
type ItemFilter struct {
	Search          string
	CategoryID      *uuid.UUID
	LocationID      *uuid.UUID
	IncludeInactive bool
	ControlledOnly  bool
	Page            Page
}

// ItemRepository handles item persistence
type ItemRepository struct {
	db *database.DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *database.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `
	i.id, i.org_id, i.name, i.sku, i.description, i.unit_of_measure, i.category_id,
	i.default_location_id, i.track_lots, i.track_expiration, i.allow_partial_quantity,
	i.min_stock_level, i.max_stock_level, i.reorder_point, i.reorder_quantity, i.cost_per_unit,
	i.is_controlled_substance, i.is_active, i.metadata, i.created_at, i.updated_at`

// Create inserts a new item.
func (r *ItemRepository) Create(ctx context.Context, item *Item) error {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return err
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.OrgID = orgID

	query := `
		INSERT INTO inventory_items (
			id, org_id, name, sku, description, unit_of_measure, category_id, default_location_id,
			track_lots, track_expiration, allow_partial_quantity, min_stock_level, max_stock_level,
			reorder_point, reorder_quantity, cost_per_unit, is_controlled_substance, is_active, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING created_at, updated_at
	`

	err = r.db.Q(ctx).QueryRowxContext(ctx, query,
		item.ID, item.OrgID, item.Name, item.SKU, item.Description, item.UnitOfMeasure,
		item.CategoryID, item.DefaultLocationID, item.TrackLots, item.TrackExpiration,
		item.AllowPartialQuantity, item.MinStockLevel, item.MaxStockLevel, item.ReorderPoint,
		item.ReorderQuantity, item.CostPerUnit, item.IsControlledSubstance, item.IsActive, item.Metadata,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	return database.MapError(err)
}

// Update writes every mutable attribute of item.
func (r *ItemRepository) Update(ctx context.Context, item *Item) error {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE inventory_items SET
			name = $3, sku = $4, description = $5, unit_of_measure = $6, category_id = $7,
			default_location_id = $8, track_lots = $9, track_expiration = $10,
			allow_partial_quantity = $11, min_stock_level = $12, max_stock_level = $13,
			reorder_point = $14, reorder_quantity = $15, cost_per_unit = $16,
			is_controlled_substance = $17, is_active = $18, metadata = $19, updated_at = NOW()
		WHERE org_id = $1 AND id = $2
		RETURNING updated_at
	`

	err = r.db.Q(ctx).QueryRowxContext(ctx, query,
		orgID, item.ID, item.Name, item.SKU, item.Description, item.UnitOfMeasure,
		item.CategoryID, item.DefaultLocationID, item.TrackLots, item.TrackExpiration,
		item.AllowPartialQuantity, item.MinStockLevel, item.MaxStockLevel, item.ReorderPoint,
		item.ReorderQuantity, item.CostPerUnit, item.IsControlledSubstance, item.IsActive, item.Metadata,
	).Scan(&item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("item")
	}
	return database.MapError(err)
}

// GetByID returns the bare item row.
func (r *ItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return nil, err
	}

	var item Item
	query := `SELECT ` + itemColumns + ` FROM inventory_items i WHERE i.org_id = $1 AND i.id = $2`
	if err := r.db.Q(ctx).GetContext(ctx, &item, query, orgID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("item")
		}
		return nil, database.MapError(err)
	}
	return &item, nil
}

// GetSummary returns the item with stock aggregated over all of its lots.
func (r *ItemRepository) GetSummary(ctx context.Context, id uuid.UUID) (*ItemSummary, error) {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return nil, err
	}

	var summary ItemSummary
	query := `
		SELECT ` + itemColumns + `,
			c.name AS category_name,
			COALESCE(SUM(l.quantity_on_hand), 0) AS quantity_on_hand,
			COALESCE(SUM(l.quantity_reserved), 0) AS quantity_reserved,
			MIN(l.expiration_date) AS next_expiration
		FROM inventory_items i
		LEFT JOIN inventory_categories c ON c.id = i.category_id
		LEFT JOIN inventory_lots l ON l.item_id = i.id AND l.org_id = i.org_id
		WHERE i.org_id = $1 AND i.id = $2
		GROUP BY i.id, c.name
	`
	if err := r.db.Q(ctx).GetContext(ctx, &summary, query, orgID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("item")
		}
		return nil, database.MapError(err)
	}
	return &summary, nil
}

// List returns items ordered by name. When LocationID is set the stock
// aggregates only count lots at that location.
func (r *ItemRepository) List(ctx context.Context, f ItemFilter) ([]*ItemSummary, error) {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return nil, err
	}

	w := newFilter("i.org_id = $1", orgID, f.LocationID)
	if f.Search != "" {
		w.add("(i.name ILIKE %s OR i.sku ILIKE %s)", likePattern(f.Search))
	}
	if f.CategoryID != nil {
		w.add("i.category_id = %s", *f.CategoryID)
	}
	if !f.IncludeInactive {
		w.addRaw("i.is_active")
	}
	if f.ControlledOnly {
		w.addRaw("i.is_controlled_substance")
	}
	limit, args := w.paginate(f.Page.normalize(defaultPageSize, maxPageSize))

	query := `
		SELECT ` + itemColumns + `,
			c.name AS category_name,
			COALESCE(SUM(l.quantity_on_hand), 0) AS quantity_on_hand,
			COALESCE(SUM(l.quantity_reserved), 0) AS quantity_reserved,
			MIN(l.expiration_date) AS next_expiration
		FROM inventory_items i
		LEFT JOIN inventory_categories c ON c.id = i.category_id
		LEFT JOIN inventory_lots l ON l.item_id = i.id AND l.org_id = i.org_id
			AND ($2::uuid IS NULL OR l.location_id = $2::uuid)
		` + w.where() + `
		GROUP BY i.id, c.name
		ORDER BY i.name ASC
		` + limit

	items := []*ItemSummary{}
	if err := r.db.Q(ctx).SelectContext(ctx, &items, query, args...); err != nil {
		return nil, database.MapError(err)
	}
	return items, nil
}
