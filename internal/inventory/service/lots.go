package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/inventory-ledger/internal/inventory/domain"
	"github.com/ehr/inventory-ledger/internal/inventory/events"
	"github.com/ehr/inventory-ledger/internal/inventory/repository"
	"github.com/ehr/inventory-ledger/pkg/actor"
	"github.com/ehr/inventory-ledger/pkg/httputil"
)

const (
	initialBalanceReason = "Initial lot balance"
	lotReferenceType     = "LOT"
)

// CreateLotInput registers a lot. A positive InitialQuantity is booked as
// a receipt into the new lot.
type CreateLotInput struct {
	LotNumber        string                  `json:"lot_number" validate:"required,max=100"`
	SupplierID       *uuid.UUID              `json:"supplier_id,omitempty"`
	LocationID       *uuid.UUID              `json:"location_id,omitempty"`
	SerialNumber     *string                 `json:"serial_number,omitempty" validate:"omitempty,max=100"`
	Barcode          *string                 `json:"barcode,omitempty" validate:"omitempty,max=100"`
	ExpirationDate   *domain.Date            `json:"expiration_date,omitempty"`
	ManufactureDate  *domain.Date            `json:"manufacture_date,omitempty"`
	InitialQuantity  decimal.Decimal         `json:"initial_quantity"`
	QuantityReserved decimal.Decimal         `json:"quantity_reserved"`
	Status           domain.LotStatus        `json:"status,omitempty"`
	UnitCost         decimal.NullDecimal     `json:"unit_cost"`
	ReceivedAt       *time.Time              `json:"received_at,omitempty"`
	OpenedAt         *time.Time              `json:"opened_at,omitempty"`
	Notes            *string                 `json:"notes,omitempty"`
	Metadata         *domain.LotMetadata     `json:"metadata,omitempty"`
	Reason           *string                 `json:"reason,omitempty"`
	ReferenceType    *string                 `json:"reference_type,omitempty"`
	ReferenceID      *string                 `json:"reference_id,omitempty"`
	MovementMetadata domain.MovementMetadata `json:"movement_metadata"`
}

func (in *CreateLotInput) validate() error {
	if err := httputil.Validate(in); err != nil {
		return err
	}
	errs := fieldErrors{}
	if blank(in.LotNumber) {
		errs.add("lot_number", "this field is required")
	}
	if in.InitialQuantity.IsNegative() {
		errs.add("initial_quantity", "must be at least 0")
	}
	if in.QuantityReserved.IsNegative() {
		errs.add("quantity_reserved", "must be at least 0")
	}
	if in.Status != "" && !in.Status.Valid() {
		errs.add("status", "must be one of: available reserved consumed quarantined expired")
	}
	if !in.MovementMetadata.Matches(domain.MovementReceipt) {
		errs.add("movement_metadata", "must describe a receipt")
	}
	checkNonNegative(errs, "unit_cost", in.UnitCost)
	return errs.err()
}

func (in *CreateLotInput) lot(itemID uuid.UUID) *repository.Lot {
	lot := &repository.Lot{
		ItemID:           itemID,
		SupplierID:       in.SupplierID,
		LocationID:       in.LocationID,
		LotNumber:        strings.TrimSpace(in.LotNumber),
		SerialNumber:     in.SerialNumber,
		Barcode:          in.Barcode,
		ExpirationDate:   in.ExpirationDate.Ptr(),
		ManufactureDate:  in.ManufactureDate.Ptr(),
		QuantityReserved: in.QuantityReserved,
		Status:           in.Status,
		OpenedAt:         in.OpenedAt,
		Notes:            in.Notes,
		Metadata:         in.Metadata,
	}
	if in.ReceivedAt != nil {
		lot.ReceivedAt = in.ReceivedAt.UTC()
	}
	return lot
}

func stringOr(v *string, def string) *string {
	if v != nil {
		return v
	}
	return &def
}

// receipt is the movement that books a new lot's opening balance.
func (in *CreateLotInput) receipt(ctx context.Context, lot *repository.Lot) *repository.Movement {
	return &repository.Movement{
		ItemID:                lot.ItemID,
		LotID:                 lot.ID,
		DestinationLocationID: lot.LocationID,
		Quantity:              in.InitialQuantity,
		UnitCost:              in.UnitCost,
		MovementType:          domain.MovementReceipt,
		Direction:             domain.DirectionIn,
		Reason:                stringOr(in.Reason, initialBalanceReason),
		ReferenceType:         stringOr(in.ReferenceType, lotReferenceType),
		ReferenceID:           stringOr(in.ReferenceID, lot.ID.String()),
		PerformedBy:           actor.FromContext(ctx).UserID(),
		OccurredAt:            lot.ReceivedAt,
		Metadata:              in.MovementMetadata,
	}
}

// Lot operations

// CreateLot registers a lot for an item. The lot starts empty; an initial
// quantity goes through the movement path in the same transaction so the
// ledger always explains the balance.
func (s *InventoryService) CreateLot(ctx context.Context, itemID uuid.UUID, in CreateLotInput) (*repository.Lot, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	lot := in.lot(itemID)
	err := s.write(ctx, func(ctx context.Context) error {
		item, err := s.repos.Items.GetByID(ctx, itemID)
		if err != nil {
			return err
		}
		if err := checkPartial(item, "initial_quantity", in.InitialQuantity); err != nil {
			return err
		}

		if err := s.repos.Lots.Insert(ctx, lot); err != nil {
			return err
		}
		if !in.InitialQuantity.IsPositive() {
			return nil
		}

		next, err := s.apply(ctx, in.receipt(ctx, lot))
		if err != nil {
			return err
		}
		lot.QuantityOnHand = next.Quantity
		lot.Status = next.Status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, events.ActionLotCreated, map[string]interface{}{
		"lot_id":           lot.ID,
		"item_id":          lot.ItemID,
		"lot_number":       lot.LotNumber,
		"initial_quantity": in.InitialQuantity.String(),
	})
	return lot, nil
}

// GetLot returns one lot.
func (s *InventoryService) GetLot(ctx context.Context, id uuid.UUID) (*repository.LotView, error) {
	var lot *repository.LotView
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		lot, err = s.repos.Lots.GetByID(ctx, id)
		return err
	})
	return lot, err
}

// ListLots lists lots in first-expiry-first-out order.
func (s *InventoryService) ListLots(ctx context.Context, f repository.LotFilter) ([]*repository.LotView, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, validationField("status", "unknown lot status")
	}
	if f.ExpiringWithinDays < 0 {
		return nil, validationField("expiring_within_days", "must be at least 0")
	}
	f.Page = s.opts.page(f.Page)

	var lots []*repository.LotView
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		lots, err = s.repos.Lots.List(ctx, f)
		return err
	})
	return lots, err
}
