package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/inventory-ledger/pkg/database"
)

// ItemLocationSetting holds per-location stocking thresholds for an item.
type ItemLocationSetting struct {
	ID              uuid.UUID           `db:"id" json:"id"`
	OrgID           uuid.UUID           `db:"org_id" json:"org_id"`
	ItemID          uuid.UUID           `db:"item_id" json:"item_id"`
	LocationID      uuid.UUID           `db:"location_id" json:"location_id"`
	ParLevel        decimal.NullDecimal `db:"par_level" json:"par_level"`
	ReorderPoint    decimal.NullDecimal `db:"reorder_point" json:"reorder_point"`
	ReorderQuantity decimal.NullDecimal `db:"reorder_quantity" json:"reorder_quantity"`
	MaxLevel        decimal.NullDecimal `db:"max_level" json:"max_level"`
	IsPrimary       bool                `db:"is_primary" json:"is_primary"`
	Notes           *string             `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at" json:"updated_at"`
}

// ItemLocationRepository maintains the (item, location) association index.
type ItemLocationRepository struct {
	db *database.DB
}

// NewItemLocationRepository creates a new item location repository
func NewItemLocationRepository(db *database.DB) *ItemLocationRepository {
	return &ItemLocationRepository{db: db}
}

// Touch records that a movement referenced the location. Existing
// thresholds are left alone; only updated_at moves.
func (r *ItemLocationRepository) Touch(ctx context.Context, itemID, locationID uuid.UUID) error {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO inventory_item_locations (id, org_id, item_id, location_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (org_id, item_id, location_id) DO UPDATE SET updated_at = NOW()
	`
	_, err = r.db.Q(ctx).ExecContext(ctx, query, uuid.New(), orgID, itemID, locationID)
	return database.MapError(err)
}

// Upsert writes the full threshold configuration for one location.
func (r *ItemLocationRepository) Upsert(ctx context.Context, s *ItemLocationSetting) error {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return err
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.OrgID = orgID

	query := `
		INSERT INTO inventory_item_locations (
			id, org_id, item_id, location_id, par_level, reorder_point,
			reorder_quantity, max_level, is_primary, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (org_id, item_id, location_id) DO UPDATE SET
			par_level = EXCLUDED.par_level,
			reorder_point = EXCLUDED.reorder_point,
			reorder_quantity = EXCLUDED.reorder_quantity,
			max_level = EXCLUDED.max_level,
			is_primary = EXCLUDED.is_primary,
			notes = EXCLUDED.notes,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err = r.db.Q(ctx).QueryRowxContext(ctx, query,
		s.ID, s.OrgID, s.ItemID, s.LocationID, s.ParLevel, s.ReorderPoint,
		s.ReorderQuantity, s.MaxLevel, s.IsPrimary, s.Notes,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	return database.MapError(err)
}

// Replace makes settings the complete configuration for the item.
// Locations missing from settings are removed.
func (r *ItemLocationRepository) Replace(ctx context.Context, itemID uuid.UUID, settings []*ItemLocationSetting) error {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return err
	}

	if _, err := r.db.Q(ctx).ExecContext(ctx,
		`DELETE FROM inventory_item_locations WHERE org_id = $1 AND item_id = $2`,
		orgID, itemID,
	); err != nil {
		return database.MapError(err)
	}

	for _, s := range settings {
		s.ItemID = itemID
		if err := r.Upsert(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// ListByItem returns the item's settings, primary location first.
func (r *ItemLocationRepository) ListByItem(ctx context.Context, itemID uuid.UUID) ([]*ItemLocationSetting, error) {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, org_id, item_id, location_id, par_level, reorder_point, reorder_quantity,
		       max_level, is_primary, notes, created_at, updated_at
		FROM inventory_item_locations
		WHERE org_id = $1 AND item_id = $2
		ORDER BY is_primary DESC, updated_at DESC
	`
	settings := []*ItemLocationSetting{}
	if err := r.db.Q(ctx).SelectContext(ctx, &settings, query, orgID, itemID); err != nil {
		return nil, database.MapError(err)
	}
	return settings, nil
}
