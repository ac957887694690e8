package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/inventory-ledger/internal/inventory/repository"
)

// DashboardFilter scopes the overview. DaysToExpire defaults to the
// configured expiry window.
type DashboardFilter struct {
	LocationID   *uuid.UUID
	DaysToExpire int
}

// DashboardOverview is the inventory landing page read model.
type DashboardOverview struct {
	Items                *repository.ItemCounts         `json:"items"`
	Stock                *repository.StockValue         `json:"stock"`
	LowStock             []*repository.LowStockItem     `json:"low_stock"`
	ExpiringLots         []*repository.ExpiringLot      `json:"expiring_lots"`
	ControlledSubstances []*repository.ControlledStock  `json:"controlled_substances"`
	LocationID           *uuid.UUID                     `json:"location_id,omitempty"`
	DaysToExpire         int                            `json:"days_to_expire"`
	GeneratedAt          time.Time                      `json:"generated_at"`
}

// GetDashboardOverview runs the five dashboard aggregations concurrently,
// each in its own read-only transaction.
func (s *InventoryService) GetDashboardOverview(ctx context.Context, f DashboardFilter) (*DashboardOverview, error) {
	if f.DaysToExpire < 0 {
		return nil, validationField("days_to_expire", "must be at least 0")
	}
	days := f.DaysToExpire
	if days == 0 {
		days = s.opts.DefaultExpiryWindowDays
	}
	if days <= 0 {
		days = defaultExpiryWindowDays
	}

	out := &DashboardOverview{
		LocationID:   f.LocationID,
		DaysToExpire: days,
		GeneratedAt:  time.Now().UTC(),
	}
	dash := s.repos.Dashboard

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.read(gctx, func(ctx context.Context) (err error) {
			out.Items, err = dash.ItemCounts(ctx)
			return err
		})
	})
	g.Go(func() error {
		return s.read(gctx, func(ctx context.Context) (err error) {
			out.Stock, err = dash.StockValue(ctx, f.LocationID)
			return err
		})
	})
	g.Go(func() error {
		return s.read(gctx, func(ctx context.Context) (err error) {
			out.LowStock, err = dash.LowStock(ctx, f.LocationID)
			return err
		})
	})
	g.Go(func() error {
		return s.read(gctx, func(ctx context.Context) (err error) {
			out.ExpiringLots, err = dash.ExpiringLots(ctx, f.LocationID, days)
			return err
		})
	})
	g.Go(func() error {
		return s.read(gctx, func(ctx context.Context) (err error) {
			out.ControlledSubstances, err = dash.ControlledStock(ctx)
			return err
		})
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
