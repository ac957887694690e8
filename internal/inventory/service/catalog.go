package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/inventory-ledger/internal/inventory/domain"
	"github.com/ehr/inventory-ledger/internal/inventory/events"
	"github.com/ehr/inventory-ledger/internal/inventory/repository"
	"github.com/ehr/inventory-ledger/pkg/httputil"
)

const defaultUnitOfMeasure = "each"

// LocationSettingInput configures an item's thresholds at one location.
type LocationSettingInput struct {
	LocationID      uuid.UUID           `json:"location_id"`
	ParLevel        decimal.NullDecimal `json:"par_level"`
	ReorderPoint    decimal.NullDecimal `json:"reorder_point"`
	ReorderQuantity decimal.NullDecimal `json:"reorder_quantity"`
	MaxLevel        decimal.NullDecimal `json:"max_level"`
	IsPrimary       bool                `json:"is_primary"`
	Notes           *string             `json:"notes,omitempty"`
}

// CreateItemInput is the request to add an item to the catalog. Nil flags
// take the catalog defaults.
type CreateItemInput struct {
	Name                  string                 `json:"name" validate:"required,max=255"`
	SKU                   *string                `json:"sku,omitempty" validate:"omitempty,max=100"`
	Description           *string                `json:"description,omitempty"`
	UnitOfMeasure         string                 `json:"unit_of_measure,omitempty" validate:"max=50"`
	CategoryID            *uuid.UUID             `json:"category_id,omitempty"`
	DefaultLocationID     *uuid.UUID             `json:"default_location_id,omitempty"`
	TrackLots             *bool                  `json:"track_lots,omitempty"`
	TrackExpiration       *bool                  `json:"track_expiration,omitempty"`
	AllowPartialQuantity  *bool                  `json:"allow_partial_quantity,omitempty"`
	MinStockLevel         decimal.NullDecimal    `json:"min_stock_level"`
	MaxStockLevel         decimal.NullDecimal    `json:"max_stock_level"`
	ReorderPoint          decimal.NullDecimal    `json:"reorder_point"`
	ReorderQuantity       decimal.NullDecimal    `json:"reorder_quantity"`
	CostPerUnit           decimal.NullDecimal    `json:"cost_per_unit"`
	IsControlledSubstance *bool                  `json:"is_controlled_substance,omitempty"`
	IsActive              *bool                  `json:"is_active,omitempty"`
	Metadata              *domain.ItemMetadata   `json:"metadata,omitempty"`
	LocationSettings      []LocationSettingInput `json:"location_settings,omitempty"`
}

// UpdateItemInput changes the fields that are set. A non-nil
// LocationSettings replaces the item's whole location configuration.
type UpdateItemInput struct {
	Name                  *string                 `json:"name,omitempty" validate:"omitempty,max=255"`
	SKU                   *string                 `json:"sku,omitempty" validate:"omitempty,max=100"`
	Description           *string                 `json:"description,omitempty"`
	UnitOfMeasure         *string                 `json:"unit_of_measure,omitempty" validate:"omitempty,max=50"`
	CategoryID            *uuid.UUID              `json:"category_id,omitempty"`
	DefaultLocationID     *uuid.UUID              `json:"default_location_id,omitempty"`
	TrackLots             *bool                   `json:"track_lots,omitempty"`
	TrackExpiration       *bool                   `json:"track_expiration,omitempty"`
	AllowPartialQuantity  *bool                   `json:"allow_partial_quantity,omitempty"`
	MinStockLevel         *decimal.Decimal        `json:"min_stock_level,omitempty"`
	MaxStockLevel         *decimal.Decimal        `json:"max_stock_level,omitempty"`
	ReorderPoint          *decimal.Decimal        `json:"reorder_point,omitempty"`
	ReorderQuantity       *decimal.Decimal        `json:"reorder_quantity,omitempty"`
	CostPerUnit           *decimal.Decimal        `json:"cost_per_unit,omitempty"`
	IsControlledSubstance *bool                   `json:"is_controlled_substance,omitempty"`
	IsActive              *bool                   `json:"is_active,omitempty"`
	Metadata              *domain.ItemMetadata    `json:"metadata,omitempty"`
	LocationSettings      *[]LocationSettingInput `json:"location_settings,omitempty"`
}

// ItemDetail is an item with its stock, lots and location settings.
type ItemDetail struct {
	*repository.ItemSummary
	Lots      []*repository.LotView             `json:"lots"`
	Locations []*repository.ItemLocationSetting `json:"locations"`
}

func checkNonNegative(errs fieldErrors, field string, d decimal.NullDecimal) {
	if d.Valid && d.Decimal.IsNegative() {
		errs.add(field, "must be at least 0")
	}
}

func checkSettings(errs fieldErrors, settings []LocationSettingInput) {
	seen := make(map[uuid.UUID]bool, len(settings))
	for _, s := range settings {
		if s.LocationID == uuid.Nil {
			errs.add("location_settings", "location_id is required")
			continue
		}
		if seen[s.LocationID] {
			errs.add("location_settings", "duplicate location_id "+s.LocationID.String())
		}
		seen[s.LocationID] = true
		for _, d := range []decimal.NullDecimal{s.ParLevel, s.ReorderPoint, s.ReorderQuantity, s.MaxLevel} {
			checkNonNegative(errs, "location_settings", d)
		}
	}
}

func (in *CreateItemInput) validate() error {
	if err := httputil.Validate(in); err != nil {
		return err
	}
	errs := fieldErrors{}
	if blank(in.Name) {
		errs.add("name", "this field is required")
	}
	checkNonNegative(errs, "min_stock_level", in.MinStockLevel)
	checkNonNegative(errs, "max_stock_level", in.MaxStockLevel)
	checkNonNegative(errs, "reorder_point", in.ReorderPoint)
	checkNonNegative(errs, "reorder_quantity", in.ReorderQuantity)
	checkNonNegative(errs, "cost_per_unit", in.CostPerUnit)
	checkSettings(errs, in.LocationSettings)
	return errs.err()
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func (in *CreateItemInput) item() *repository.Item {
	unit := strings.TrimSpace(in.UnitOfMeasure)
	if unit == "" {
		unit = defaultUnitOfMeasure
	}
	return &repository.Item{
		Name:                  strings.TrimSpace(in.Name),
		SKU:                   in.SKU,
		Description:           in.Description,
		UnitOfMeasure:         unit,
		CategoryID:            in.CategoryID,
		DefaultLocationID:     in.DefaultLocationID,
		TrackLots:             boolOr(in.TrackLots, true),
		TrackExpiration:       boolOr(in.TrackExpiration, true),
		AllowPartialQuantity:  boolOr(in.AllowPartialQuantity, false),
		MinStockLevel:         in.MinStockLevel,
		MaxStockLevel:         in.MaxStockLevel,
		ReorderPoint:          in.ReorderPoint,
		ReorderQuantity:       in.ReorderQuantity,
		CostPerUnit:           in.CostPerUnit,
		IsControlledSubstance: boolOr(in.IsControlledSubstance, false),
		IsActive:              boolOr(in.IsActive, true),
		Metadata:              in.Metadata,
	}
}

func toSettings(in []LocationSettingInput) []*repository.ItemLocationSetting {
	out := make([]*repository.ItemLocationSetting, 0, len(in))
	for _, s := range in {
		out = append(out, &repository.ItemLocationSetting{
			LocationID:      s.LocationID,
			ParLevel:        s.ParLevel,
			ReorderPoint:    s.ReorderPoint,
			ReorderQuantity: s.ReorderQuantity,
			MaxLevel:        s.MaxLevel,
			IsPrimary:       s.IsPrimary,
			Notes:           s.Notes,
		})
	}
	return out
}

func (in *UpdateItemInput) validate() error {
	if err := httputil.Validate(in); err != nil {
		return err
	}
	errs := fieldErrors{}
	if in.Name != nil && blank(*in.Name) {
		errs.add("name", "must not be blank")
	}
	for field, d := range map[string]*decimal.Decimal{
		"min_stock_level":  in.MinStockLevel,
		"max_stock_level":  in.MaxStockLevel,
		"reorder_point":    in.ReorderPoint,
		"reorder_quantity": in.ReorderQuantity,
		"cost_per_unit":    in.CostPerUnit,
	} {
		if d != nil && d.IsNegative() {
			errs.add(field, "must be at least 0")
		}
	}
	if in.LocationSettings != nil {
		checkSettings(errs, *in.LocationSettings)
	}
	return errs.err()
}

func setDecimal(dst *decimal.NullDecimal, v *decimal.Decimal) {
	if v != nil {
		*dst = decimal.NewNullDecimal(*v)
	}
}

func (in *UpdateItemInput) apply(item *repository.Item) {
	if in.Name != nil {
		item.Name = strings.TrimSpace(*in.Name)
	}
	if in.SKU != nil {
		item.SKU = in.SKU
	}
	if in.Description != nil {
		item.Description = in.Description
	}
	if in.UnitOfMeasure != nil && !blank(*in.UnitOfMeasure) {
		item.UnitOfMeasure = strings.TrimSpace(*in.UnitOfMeasure)
	}
	if in.CategoryID != nil {
		item.CategoryID = in.CategoryID
	}
	if in.DefaultLocationID != nil {
		item.DefaultLocationID = in.DefaultLocationID
	}
	item.TrackLots = boolOr(in.TrackLots, item.TrackLots)
	item.TrackExpiration = boolOr(in.TrackExpiration, item.TrackExpiration)
	item.AllowPartialQuantity = boolOr(in.AllowPartialQuantity, item.AllowPartialQuantity)
	item.IsControlledSubstance = boolOr(in.IsControlledSubstance, item.IsControlledSubstance)
	item.IsActive = boolOr(in.IsActive, item.IsActive)
	setDecimal(&item.MinStockLevel, in.MinStockLevel)
	setDecimal(&item.MaxStockLevel, in.MaxStockLevel)
	setDecimal(&item.ReorderPoint, in.ReorderPoint)
	setDecimal(&item.ReorderQuantity, in.ReorderQuantity)
	setDecimal(&item.CostPerUnit, in.CostPerUnit)
	if in.Metadata != nil {
		item.Metadata = in.Metadata
	}
}

// Item operations

// CreateItem adds an item and its location settings in one transaction.
func (s *InventoryService) CreateItem(ctx context.Context, in CreateItemInput) (*repository.Item, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	item := in.item()
	settings := toSettings(in.LocationSettings)
	err := s.write(ctx, func(ctx context.Context) error {
		if err := s.repos.Items.Create(ctx, item); err != nil {
			return err
		}
		for _, setting := range settings {
			setting.ItemID = item.ID
			if err := s.repos.ItemLocations.Upsert(ctx, setting); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, events.ActionItemCreated, map[string]interface{}{
		"item_id": item.ID,
		"name":    item.Name,
	})
	return item, nil
}

// UpdateItem applies a partial update to an item.
func (s *InventoryService) UpdateItem(ctx context.Context, id uuid.UUID, in UpdateItemInput) (*repository.Item, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var item *repository.Item
	err := s.write(ctx, func(ctx context.Context) error {
		current, err := s.repos.Items.GetByID(ctx, id)
		if err != nil {
			return err
		}
		in.apply(current)
		if err := s.repos.Items.Update(ctx, current); err != nil {
			return err
		}
		if in.LocationSettings != nil {
			if err := s.repos.ItemLocations.Replace(ctx, id, toSettings(*in.LocationSettings)); err != nil {
				return err
			}
		}
		item = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, events.ActionItemUpdated, map[string]interface{}{
		"item_id":           item.ID,
		"settings_replaced": in.LocationSettings != nil,
	})
	return item, nil
}

// GetItem returns an item with its stock, FEFO-ordered lots and location
// settings.
func (s *InventoryService) GetItem(ctx context.Context, id uuid.UUID) (*ItemDetail, error) {
	detail := &ItemDetail{}
	err := s.read(ctx, func(ctx context.Context) error {
		summary, err := s.repos.Items.GetSummary(ctx, id)
		if err != nil {
			return err
		}
		detail.ItemSummary = summary

		detail.Lots, err = s.repos.Lots.List(ctx, repository.LotFilter{
			ItemID: &id,
			Page:   repository.Page{Limit: s.opts.MaxPageSize},
		})
		if err != nil {
			return err
		}

		detail.Locations, err = s.repos.ItemLocations.ListByItem(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// ListItems lists items with aggregated stock.
func (s *InventoryService) ListItems(ctx context.Context, f repository.ItemFilter) ([]*repository.ItemSummary, error) {
	f.Page = s.opts.page(f.Page)

	var items []*repository.ItemSummary
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		items, err = s.repos.Items.List(ctx, f)
		return err
	})
	return items, err
}
