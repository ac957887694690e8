package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/inventory-ledger/internal/inventory/events"
	"github.com/ehr/inventory-ledger/internal/inventory/repository"
	"github.com/ehr/inventory-ledger/pkg/httputil"
)

// CategoryInput creates or updates a category. On update only set fields
// change.
type CategoryInput struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,max=255"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// SupplierInput creates or updates a supplier. On update only set fields
// change.
type SupplierInput struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,max=255"`
	Code         *string `json:"code,omitempty" validate:"omitempty,max=50"`
	ContactName  *string `json:"contact_name,omitempty"`
	ContactPhone *string `json:"contact_phone,omitempty" validate:"omitempty,max=50"`
	ContactEmail *string `json:"contact_email,omitempty" validate:"omitempty,email"`
	Address      *string `json:"address,omitempty"`
	Notes        *string `json:"notes,omitempty"`
	IsActive     *bool   `json:"is_active,omitempty"`
}

func validateName(name *string, required bool) error {
	errs := fieldErrors{}
	switch {
	case name == nil && required:
		errs.add("name", "this field is required")
	case name != nil && blank(*name):
		errs.add("name", "must not be blank")
	}
	return errs.err()
}

func (in *CategoryInput) validate(create bool) error {
	if err := httputil.Validate(in); err != nil {
		return err
	}
	return validateName(in.Name, create)
}

func (in *CategoryInput) apply(c *repository.Category) {
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		c.Description = in.Description
	}
	c.IsActive = boolOr(in.IsActive, c.IsActive)
}

func (in *SupplierInput) validate(create bool) error {
	if err := httputil.Validate(in); err != nil {
		return err
	}
	return validateName(in.Name, create)
}

func (in *SupplierInput) apply(s *repository.Supplier) {
	if in.Name != nil {
		s.Name = strings.TrimSpace(*in.Name)
	}
	for dst, v := range map[**string]*string{
		&s.Code:         in.Code,
		&s.ContactName:  in.ContactName,
		&s.ContactPhone: in.ContactPhone,
		&s.ContactEmail: in.ContactEmail,
		&s.Address:      in.Address,
		&s.Notes:        in.Notes,
	} {
		if v != nil {
			*dst = v
		}
	}
	s.IsActive = boolOr(in.IsActive, s.IsActive)
}

// Category operations

// CreateCategory adds a category. Names are unique per organization.
func (s *InventoryService) CreateCategory(ctx context.Context, in CategoryInput) (*repository.Category, error) {
	if err := in.validate(true); err != nil {
		return nil, err
	}

	category := &repository.Category{IsActive: true}
	in.apply(category)
	if err := s.write(ctx, func(ctx context.Context) error {
		return s.repos.Categories.Create(ctx, category)
	}); err != nil {
		return nil, err
	}

	s.audit(ctx, events.ActionCategoryCreated, map[string]interface{}{
		"category_id": category.ID,
		"name":        category.Name,
	})
	return category, nil
}

// UpdateCategory applies a partial update to a category.
func (s *InventoryService) UpdateCategory(ctx context.Context, id uuid.UUID, in CategoryInput) (*repository.Category, error) {
	if err := in.validate(false); err != nil {
		return nil, err
	}

	var category *repository.Category
	err := s.write(ctx, func(ctx context.Context) error {
		current, err := s.repos.Categories.GetByID(ctx, id)
		if err != nil {
			return err
		}
		in.apply(current)
		category = current
		return s.repos.Categories.Update(ctx, current)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, events.ActionCategoryUpdated, map[string]interface{}{"category_id": id})
	return category, nil
}

// GetCategory returns one category.
func (s *InventoryService) GetCategory(ctx context.Context, id uuid.UUID) (*repository.Category, error) {
	var category *repository.Category
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		category, err = s.repos.Categories.GetByID(ctx, id)
		return err
	})
	return category, err
}

// ListCategories lists categories by name.
func (s *InventoryService) ListCategories(ctx context.Context, includeInactive bool) ([]*repository.Category, error) {
	var categories []*repository.Category
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		categories, err = s.repos.Categories.List(ctx, includeInactive)
		return err
	})
	return categories, err
}

// Supplier operations

// CreateSupplier adds a supplier. Names are unique per organization.
func (s *InventoryService) CreateSupplier(ctx context.Context, in SupplierInput) (*repository.Supplier, error) {
	if err := in.validate(true); err != nil {
		return nil, err
	}

	supplier := &repository.Supplier{IsActive: true}
	in.apply(supplier)
	if err := s.write(ctx, func(ctx context.Context) error {
		return s.repos.Suppliers.Create(ctx, supplier)
	}); err != nil {
		return nil, err
	}

	s.audit(ctx, events.ActionSupplierCreated, map[string]interface{}{
		"supplier_id": supplier.ID,
		"name":        supplier.Name,
	})
	return supplier, nil
}

// UpdateSupplier applies a partial update to a supplier.
func (s *InventoryService) UpdateSupplier(ctx context.Context, id uuid.UUID, in SupplierInput) (*repository.Supplier, error) {
	if err := in.validate(false); err != nil {
		return nil, err
	}

	var supplier *repository.Supplier
	err := s.write(ctx, func(ctx context.Context) error {
		current, err := s.repos.Suppliers.GetByID(ctx, id)
		if err != nil {
			return err
		}
		in.apply(current)
		supplier = current
		return s.repos.Suppliers.Update(ctx, current)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, events.ActionSupplierUpdated, map[string]interface{}{"supplier_id": id})
	return supplier, nil
}

// GetSupplier returns one supplier.
func (s *InventoryService) GetSupplier(ctx context.Context, id uuid.UUID) (*repository.Supplier, error) {
	var supplier *repository.Supplier
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		supplier, err = s.repos.Suppliers.GetByID(ctx, id)
		return err
	})
	return supplier, err
}

// ListSuppliers lists suppliers by name.
func (s *InventoryService) ListSuppliers(ctx context.Context, f repository.SupplierFilter) ([]*repository.Supplier, error) {
	var suppliers []*repository.Supplier
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		suppliers, err = s.repos.Suppliers.List(ctx, f)
		return err
	})
	return suppliers, err
}
