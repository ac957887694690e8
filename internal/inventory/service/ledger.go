package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/inventory-ledger/internal/inventory/domain"
	"github.com/ehr/inventory-ledger/internal/inventory/events"
	"github.com/ehr/inventory-ledger/internal/inventory/repository"
	"github.com/ehr/inventory-ledger/pkg/actor"
	"github.com/ehr/inventory-ledger/pkg/database"
	apperrors "github.com/ehr/inventory-ledger/pkg/errors"
)

// RecordMovementInput is a request to move stock into or out of a lot.
// The lot is named by LotID or, failing that, by LotNumber; an unknown
// number creates the lot.
type RecordMovementInput struct {
	ItemID                uuid.UUID               `json:"item_id"`
	LotID                 *uuid.UUID              `json:"lot_id,omitempty"`
	LotNumber             string                  `json:"lot_number,omitempty"`
	MovementType          domain.MovementType     `json:"movement_type"`
	Direction             domain.Direction        `json:"direction,omitempty"`
	Quantity              decimal.Decimal         `json:"quantity"`
	SourceLocationID      *uuid.UUID              `json:"source_location_id,omitempty"`
	DestinationLocationID *uuid.UUID              `json:"destination_location_id,omitempty"`
	UnitCost              decimal.NullDecimal     `json:"unit_cost"`
	Reason                *string                 `json:"reason,omitempty"`
	ReferenceType         *string                 `json:"reference_type,omitempty"`
	ReferenceID           *string                 `json:"reference_id,omitempty"`
	Notes                 *string                 `json:"notes,omitempty"`
	OccurredAt            *time.Time              `json:"occurred_at,omitempty"`
	Metadata              domain.MovementMetadata `json:"metadata"`
}

func (in *RecordMovementInput) validate() error {
	errs := fieldErrors{}
	if in.ItemID == uuid.Nil {
		errs.add("item_id", "this field is required")
	}
	switch {
	case in.MovementType == "":
		errs.add("movement_type", "this field is required")
	case !in.MovementType.Valid():
		errs.add("movement_type", "must be one of: receipt issue transfer adjustment return waste")
	case !in.Metadata.Matches(in.MovementType):
		errs.add("metadata", "does not match movement_type")
	}
	if !in.Quantity.IsPositive() {
		errs.add("quantity", "must be greater than 0")
	}
	if in.Direction != "" && !in.Direction.Valid() {
		errs.add("direction", "must be one of: in out")
	}
	if in.LotID == nil && blank(in.LotNumber) {
		errs.add("lot_id", "lot_id or lot_number is required")
	}
	checkNonNegative(errs, "unit_cost", in.UnitCost)
	return errs.err()
}

func (in *RecordMovementInput) movement(ctx context.Context) *repository.Movement {
	m := &repository.Movement{
		ItemID:                in.ItemID,
		SourceLocationID:      in.SourceLocationID,
		DestinationLocationID: in.DestinationLocationID,
		Quantity:              in.Quantity,
		UnitCost:              in.UnitCost,
		MovementType:          in.MovementType,
		Direction:             domain.ResolveDirection(in.MovementType, in.Direction),
		Reason:                in.Reason,
		ReferenceType:         in.ReferenceType,
		ReferenceID:           in.ReferenceID,
		PerformedBy:           actor.FromContext(ctx).UserID(),
		Notes:                 in.Notes,
		Metadata:              in.Metadata,
	}
	if in.OccurredAt != nil {
		m.OccurredAt = in.OccurredAt.UTC()
	}
	return m
}

func wholeQuantity(q decimal.Decimal) bool {
	return q.Equal(q.Truncate(0))
}

func checkPartial(item *repository.Item, field string, q decimal.Decimal) error {
	if item.AllowPartialQuantity || wholeQuantity(q) {
		return nil
	}
	return validationField(field, "item "+item.Name+" does not allow partial quantities")
}

// apply is the only code path that changes a lot balance. It must run in
// an org transaction: the lot row stays locked until that transaction ends,
// which serializes every movement on the lot.
func (s *InventoryService) apply(ctx context.Context, m *repository.Movement) (domain.Transition, error) {
	if database.TxFromContext(ctx) == nil {
		return domain.Transition{}, apperrors.Internal("stock movement outside a transaction")
	}

	lot, err := s.repos.Lots.Lock(ctx, m.LotID)
	if err != nil {
		return domain.Transition{}, err
	}
	if lot.ItemID != m.ItemID {
		return domain.Transition{}, validationField("lot_id", "lot does not belong to item")
	}

	next, err := s.opts.Policy.Apply(lot.QuantityOnHand, lot.Status, m.Quantity, m.Direction)
	if err != nil {
		return domain.Transition{}, err
	}
	if err := s.repos.Lots.SetBalance(ctx, lot.ID, next, m.DestinationLocationID); err != nil {
		return domain.Transition{}, err
	}

	if m.DestinationLocationID != nil {
		if err := s.repos.ItemLocations.Touch(ctx, m.ItemID, *m.DestinationLocationID); err != nil {
			return domain.Transition{}, err
		}
	}
	if m.SourceLocationID != nil && (m.DestinationLocationID == nil || *m.SourceLocationID != *m.DestinationLocationID) {
		if err := s.repos.ItemLocations.Touch(ctx, m.ItemID, *m.SourceLocationID); err != nil {
			return domain.Transition{}, err
		}
	}

	if err := s.repos.Movements.Insert(ctx, m); err != nil {
		return domain.Transition{}, err
	}
	return next, nil
}

// RecordStockMovement validates and applies a movement, creating the lot
// first when it is named by an unknown lot number.
func (s *InventoryService) RecordStockMovement(ctx context.Context, in RecordMovementInput) (*repository.Movement, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	m := in.movement(ctx)
	var (
		lotCreated bool
		next       domain.Transition
	)
	err := s.write(ctx, func(ctx context.Context) error {
		item, err := s.repos.Items.GetByID(ctx, in.ItemID)
		if err != nil {
			return err
		}
		if err := checkPartial(item, "quantity", in.Quantity); err != nil {
			return err
		}

		location := in.DestinationLocationID
		if location == nil {
			location = in.SourceLocationID
		}
		m.LotID, lotCreated, err = ResolveOrCreateLot(ctx, s.repos.Lots, LotRef{
			ItemID:     in.ItemID,
			LotID:      in.LotID,
			LotNumber:  in.LotNumber,
			LocationID: location,
		})
		if err != nil {
			return err
		}

		next, err = s.apply(ctx, m)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("movement_id", m.ID.String()).
		Str("lot_id", m.LotID.String()).
		Str("movement_type", string(m.MovementType)).
		Str("direction", string(m.Direction)).
		Str("quantity", m.Quantity.String()).
		Str("lot_status", string(next.Status)).
		Msg("stock movement recorded")

	s.audit(ctx, events.ActionMovementRecorded, map[string]interface{}{
		"movement_id":   m.ID,
		"item_id":       m.ItemID,
		"lot_id":        m.LotID,
		"lot_created":   lotCreated,
		"movement_type": m.MovementType,
		"direction":     m.Direction,
		"quantity":      m.Quantity.String(),
	})
	return m, nil
}

// ListMovements returns ledger entries newest first.
func (s *InventoryService) ListMovements(ctx context.Context, f repository.MovementFilter) ([]*repository.MovementView, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, validationField("movement_type", "unknown movement type")
	}
	if f.Direction != "" && !f.Direction.Valid() {
		return nil, validationField("direction", "must be one of: in out")
	}
	f.Page = s.opts.page(f.Page)

	var movements []*repository.MovementView
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		movements, err = s.repos.Movements.List(ctx, f)
		return err
	})
	return movements, err
}

// LotBalance reconciles a lot's stored balance against its ledger.
func (s *InventoryService) LotBalance(ctx context.Context, lotID uuid.UUID) (*repository.LotBalance, error) {
	var balance *repository.LotBalance
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		balance, err = s.repos.Movements.Balance(ctx, lotID)
		return err
	})
	return balance, err
}
