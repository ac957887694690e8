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

// Category groups items in the catalog.
type Category struct {
	ID          uuid.UUID `db:"id" json:"id"`
	OrgID       uuid.UUID `db:"org_id" json:"org_id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CategoryRepository handles category persistence
type CategoryRepository struct {
	db *database.DB
}

// NewCategoryRepository creates a new category repository
func NewCategoryRepository(db *database.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Create inserts a new category
func (r *CategoryRepository) Create(ctx context.Context, c *Category) error {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.OrgID = orgID

	query := `
		INSERT INTO inventory_categories (id, org_id, name, description, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err = r.db.Q(ctx).QueryRowxContext(ctx, query, c.ID, c.OrgID, c.Name, c.Description, c.IsActive).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	return database.MapError(err)
}

// Update writes the mutable category fields
func (r *CategoryRepository) Update(ctx context.Context, c *Category) error {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE inventory_categories
		SET name = $3, description = $4, is_active = $5, updated_at = NOW()
		WHERE org_id = $1 AND id = $2
		RETURNING updated_at
	`
	err = r.db.Q(ctx).QueryRowxContext(ctx, query, orgID, c.ID, c.Name, c.Description, c.IsActive).
		Scan(&c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("category")
	}
	return database.MapError(err)
}

// GetByID retrieves a category by ID
func (r *CategoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Category, error) {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return nil, err
	}

	var c Category
	query := `
		SELECT id, org_id, name, description, is_active, created_at, updated_at
		FROM inventory_categories
		WHERE org_id = $1 AND id = $2
	`
	if err := r.db.Q(ctx).GetContext(ctx, &c, query, orgID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("category")
		}
		return nil, database.MapError(err)
	}
	return &c, nil
}

// List returns categories ordered by name
func (r *CategoryRepository) List(ctx context.Context, includeInactive bool) ([]*Category, error) {
	orgID, err := orgFrom(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, org_id, name, description, is_active, created_at, updated_at
		FROM inventory_categories
		WHERE org_id = $1 AND ($2 OR is_active)
		ORDER BY name ASC
	`
	categories := []*Category{}
	if err := r.db.Q(ctx).SelectContext(ctx, &categories, query, orgID, includeInactive); err != nil {
		return nil, database.MapError(err)
	}
	return categories, nil
}
