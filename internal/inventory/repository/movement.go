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

const defaultMovementPageSize = 100

// Movement is one immutable ledger entry.
type Movement struct {
	ID                    uuid.UUID               `db:"id" json:"id"`
	OrgID                 uuid.UUID               `db:"org_id" json:"org_id"`
	ItemID                uuid.UUID               `db:"item_id" json:"item_id"`
	LotID                 uuid.UUID               `db:"lot_id" json:"lot_id"`
	SourceLocationID      *uuid.UUID              `db:"source_location_id" json:"source_location_id,omitempty"`
	DestinationLocationID *uuid.UUID              `db:"destination_location_id" json:"destination_location_id,omitempty"`
	Quantity              decimal.Decimal         `db:"quantity" json:"quantity"`
	UnitCost              decimal.NullDecimal     `db:"unit_cost" json:"unit_cost"`
	MovementType          domain.MovementType     `db:"movement_type" json:"movement_type"`
	Direction             domain.Direction        `db:"direction" json:"direction"`
	Reason                *string                 `db:"reason" json:"reason,omitempty"`
	ReferenceType         *string                 `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID           *string                 `db:"reference_id" json:"reference_id,omitempty"`
	PerformedBy           *uuid.UUID              `db:"performed_by" json:"performed_by,omitempty"`
	Notes                 *string                 `db:"notes" json:"notes,omitempty"`
	OccurredAt            time.Time               `db:"occurred_at" json:"occurred_at"`
	Metadata              domain.MovementMetadata `db:"metadata" json:"metadata"`
	CreatedAt             time.Time               `db:"created_at" json:"created_at"`
}

// MovementView is a movement joined with display names.
type MovementView struct {
	Movement
	ItemName  string `db:"item_name" json:"item_name"`
	LotNumber string `db:"lot_number" json:"lot_number"`
}

// MovementFilter narrows List.
type MovementFilter struct {
	ItemID    *uuid.UUID
	LotID     *uuid.UUID
	Type      domain.MovementType
	Direction domain.Direction
	StartDate *time.Time
	EndDate   *time.Time
	Page      Page
}

// LotBalance reconciles a lot's stored balance with its ledger.
type LotBalance struct {
	LotID          uuid.UUID       `db:"lot_id" json:"lot_id"`
	QuantityOnHand decimal.Decimal `db:"quantity_on_hand" json:"quantity_on_hand"`
	TotalIn        decimal.Decimal `db:"total_in" json:"total_in"`
	TotalOut       decimal.Decimal `db:"total_out" json:"total_out"`
	MovementCount  int             `db:"movement_count" json:"movement_count"`
}

// LedgerBalance is Σin − Σout.
func (b LotBalance) LedgerBalance() decimal.Decimal {
	return b.TotalIn.Sub(b.TotalOut)
}

// Balanced reports whether the stored balance matches the ledger.
func (b LotBalance) Balanced() bool {
	return b.QuantityOnHand.Equal(b.LedgerBalance())
}

// MovementRepository is the append-only stock ledger.
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// Insert appends m to the ledger.
func (r *MovementRepository) Insert(ctx context.Context, m *Movement) error {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return err
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.OccurredAt.IsZero() {
		m.OccurredAt = time.Now().UTC()
	}
	m.OrgID = orgID

	query := `
		INSERT INTO inventory_stock_movements (
			id, org_id, item_id, lot_id, source_location_id, destination_location_id,
			quantity, unit_cost, movement_type, direction, reason, reference_type,
			reference_id, performed_by, notes, occurred_at, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at
	`
	err = r.db.Q(ctx).QueryRowxContext(ctx, query,
		m.ID, m.OrgID, m.ItemID, m.LotID, m.SourceLocationID, m.DestinationLocationID,
		m.Quantity, m.UnitCost, m.MovementType, m.Direction, m.Reason, m.ReferenceType,
		m.ReferenceID, m.PerformedBy, m.Notes, m.OccurredAt, m.Metadata,
	).Scan(&m.CreatedAt)
	return database.MapError(err)
}

// List returns movements newest first.
func (r *MovementRepository) List(ctx context.Context, f MovementFilter) ([]*MovementView, error) {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return nil, err
	}

	w := newFilter("m.org_id = $1", orgID)
	if f.ItemID != nil {
		w.add("m.item_id = %s", *f.ItemID)
	}
	if f.LotID != nil {
		w.add("m.lot_id = %s", *f.LotID)
	}
	if f.Type != "" {
		w.add("m.movement_type = %s", f.Type)
	}
	if f.Direction != "" {
		w.add("m.direction = %s", f.Direction)
	}
	if f.StartDate != nil {
		w.add("m.occurred_at >= %s", *f.StartDate)
	}
	if f.EndDate != nil {
		w.add("m.occurred_at <= %s", *f.EndDate)
	}
	limit, args := w.paginate(f.Page.normalize(defaultMovementPageSize, maxPageSize))

	query := `
		SELECT m.id, m.org_id, m.item_id, m.lot_id, m.source_location_id, m.destination_location_id,
		       m.quantity, m.unit_cost, m.movement_type, m.direction, m.reason, m.reference_type,
		       m.reference_id, m.performed_by, m.notes, m.occurred_at, m.metadata, m.created_at,
		       i.name AS item_name, l.lot_number
		FROM inventory_stock_movements m
		JOIN inventory_items i ON i.id = m.item_id
		JOIN inventory_lots l ON l.id = m.lot_id
		` + w.where() + `
		ORDER BY m.occurred_at DESC, m.created_at DESC
		` + limit

	movements := []*MovementView{}
	if err := r.db.Q(ctx).SelectContext(ctx, &movements, query, args...); err != nil {
		return nil, database.MapError(err)
	}
	return movements, nil
}

// Balance sums the lot's ledger next to its stored balance.
func (r *MovementRepository) Balance(ctx context.Context, lotID uuid.UUID) (*LotBalance, error) {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return nil, err
	}

	var b LotBalance
	query := `
		SELECT l.id AS lot_id,
		       l.quantity_on_hand,
		       COALESCE(SUM(m.quantity) FILTER (WHERE m.direction = 'in'), 0) AS total_in,
		       COALESCE(SUM(m.quantity) FILTER (WHERE m.direction = 'out'), 0) AS total_out,
		       COUNT(m.id) AS movement_count
		FROM inventory_lots l
		LEFT JOIN inventory_stock_movements m ON m.lot_id = l.id AND m.org_id = l.org_id
		WHERE l.org_id = $1 AND l.id = $2
		GROUP BY l.id, l.quantity_on_hand
	`
	if err := r.db.Q(ctx).GetContext(ctx, &b, query, orgID, lotID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("lot")
		}
		return nil, database.MapError(err)
	}
	return &b, nil
}
