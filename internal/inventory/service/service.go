// Package service implements the inventory ledger's operations: the item
// catalog, lot registry, stock movements and the dashboard read model.
package service

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ehr/inventory-ledger/internal/inventory/domain"
	"github.com/ehr/inventory-ledger/internal/inventory/events"
	"github.com/ehr/inventory-ledger/internal/inventory/repository"
	"github.com/ehr/inventory-ledger/pkg/config"
	"github.com/ehr/inventory-ledger/pkg/database"
	apperrors "github.com/ehr/inventory-ledger/pkg/errors"
	"github.com/ehr/inventory-ledger/pkg/logger"
)

const defaultExpiryWindowDays = 30

// Auditor receives audit events once the change they describe has committed.
type Auditor interface {
	Record(e events.AuditEvent)
}

// Repositories bundles the stores the service works through.
type Repositories struct {
	Items         *repository.ItemRepository
	ItemLocations *repository.ItemLocationRepository
	Categories    *repository.CategoryRepository
	Suppliers     *repository.SupplierRepository
	Lots          *repository.LotRepository
	Movements     *repository.MovementRepository
	Dashboard     *repository.DashboardRepository
}

// NewRepositories builds every repository on db.
func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		Items:         repository.NewItemRepository(db),
		ItemLocations: repository.NewItemLocationRepository(db),
		Categories:    repository.NewCategoryRepository(db),
		Suppliers:     repository.NewSupplierRepository(db),
		Lots:          repository.NewLotRepository(db),
		Movements:     repository.NewMovementRepository(db),
		Dashboard:     repository.NewDashboardRepository(db),
	}
}

// Options tunes ledger behaviour.
type Options struct {
	Policy                  domain.Policy
	DefaultExpiryWindowDays int
	MaxPageSize             int
}

// OptionsFromConfig maps the inventory config section onto Options.
func OptionsFromConfig(cfg config.InventoryConfig) Options {
	return Options{
		Policy:                  domain.Policy{ReopenConsumed: cfg.ReopenConsumedLots},
		DefaultExpiryWindowDays: cfg.DefaultExpiryWindowDays,
		MaxPageSize:             cfg.MaxPageSize,
	}
}

func (o Options) page(p repository.Page) repository.Page {
	if o.MaxPageSize > 0 && p.Limit > o.MaxPageSize {
		p.Limit = o.MaxPageSize
	}
	return p
}

// InventoryService handles inventory business logic
type InventoryService struct {
	db      *database.DB
	repos   *Repositories
	auditor Auditor
	opts    Options
	logger  *logger.Logger
}

// NewInventoryService creates a new inventory service. A nil auditor
// disables audit events.
func NewInventoryService(db *database.DB, repos *Repositories, auditor Auditor, opts Options, log *logger.Logger) *InventoryService {
	return &InventoryService{
		db:      db,
		repos:   repos,
		auditor: auditor,
		opts:    opts,
		logger:  log,
	}
}

func (s *InventoryService) write(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.WithOrg(ctx, func(ctx context.Context, _ *sqlx.Tx) error {
		return fn(ctx)
	})
}

func (s *InventoryService) read(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.ReadOrg(ctx, func(ctx context.Context, _ *sqlx.Tx) error {
		return fn(ctx)
	})
}

func (s *InventoryService) audit(ctx context.Context, action string, metadata map[string]interface{}) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(events.NewAuditEvent(ctx, action, metadata))
}

// fieldErrors collects business-rule violations keyed by JSON field name.
type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return apperrors.Validation(f)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func validationField(field, msg string) error {
	return apperrors.Validation(map[string]string{field: msg})
}
