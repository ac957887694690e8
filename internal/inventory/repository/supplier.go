package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/inventory-ledger/pkg/database"
	apperrors "github.com/ehr/inventory-ledger/pkg/errors"
)

// Supplier is a vendor lots are received from.
type Supplier struct {
	ID           uuid.UUID `db:"id" json:"id"`
	OrgID        uuid.UUID `db:"org_id" json:"org_id"`
	Name         string    `db:"name" json:"name"`
	Code         *string   `db:"code" json:"code,omitempty"`
	ContactName  *string   `db:"contact_name" json:"contact_name,omitempty"`
	ContactPhone *string   `db:"contact_phone" json:"contact_phone,omitempty"`
	ContactEmail *string   `db:"contact_email" json:"contact_email,omitempty"`
	Address      *string   `db:"address" json:"address,omitempty"`
	Notes        *string   `db:"notes" json:"notes,omitempty"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// SupplierFilter narrows List.
type SupplierFilter struct {
	Search          string
	IncludeInactive bool
}

// SupplierRepository handles supplier persistence
type SupplierRepository struct {
	db *database.DB
}

// NewSupplierRepository creates a new supplier repository
func NewSupplierRepository(db *database.DB) *SupplierRepository {
	return &SupplierRepository{db: db}
}

const supplierColumns = `id, org_id, name, code, contact_name, contact_phone, contact_email,
	address, notes, is_active, created_at, updated_at`

// Create inserts a new supplier
func (r *SupplierRepository) Create(ctx context.Context, s *Supplier) error {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return err
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.OrgID = orgID

	query := `
		INSERT INTO inventory_suppliers (
			id, org_id, name, code, contact_name, contact_phone, contact_email, address, notes, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err = r.db.Q(ctx).QueryRowxContext(ctx, query,
		s.ID, s.OrgID, s.Name, s.Code, s.ContactName, s.ContactPhone,
		s.ContactEmail, s.Address, s.Notes, s.IsActive,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	return database.MapError(err)
}

// Update writes the mutable supplier fields
func (r *SupplierRepository) Update(ctx context.Context, s *Supplier) error {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE inventory_suppliers SET
			name = $3, code = $4, contact_name = $5, contact_phone = $6,
			contact_email = $7, address = $8, notes = $9, is_active = $10, updated_at = NOW()
		WHERE org_id = $1 AND id = $2
		RETURNING updated_at
	`
	err = r.db.Q(ctx).QueryRowxContext(ctx, query,
		orgID, s.ID, s.Name, s.Code, s.ContactName, s.ContactPhone,
		s.ContactEmail, s.Address, s.Notes, s.IsActive,
	).Scan(&s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("supplier")
	}
	return database.MapError(err)
}

// GetByID retrieves a supplier by ID
func (r *SupplierRepository) GetByID(ctx context.Context, id uuid.UUID) (*Supplier, error) {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return nil, err
	}

	var s Supplier
	query := `SELECT ` + supplierColumns + ` FROM inventory_suppliers WHERE org_id = $1 AND id = $2`
	if err := r.db.Q(ctx).GetContext(ctx, &s, query, orgID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("supplier")
		}
		return nil, database.MapError(err)
	}
	return &s, nil
}

// List returns suppliers ordered by name
func (r *SupplierRepository) List(ctx context.Context, f SupplierFilter) ([]*Supplier, error) {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return nil, err
	}

	w := newFilter("org_id = $1", orgID)
	if f.Search != "" {
		w.add("(name ILIKE %s OR code ILIKE %s)", likePattern(f.Search))
	}
	if !f.IncludeInactive {
		w.addRaw("is_active")
	}

	query := `SELECT ` + supplierColumns + ` FROM inventory_suppliers ` + w.where() + ` ORDER BY name ASC`
	suppliers := []*Supplier{}
	if err := r.db.Q(ctx).SelectContext(ctx, &suppliers, query, w.args...); err != nil {
		return nil, database.MapError(err)
	}
	return suppliers, nil
}
