package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ehr/inventory-ledger/internal/inventory/service"
	"github.com/ehr/inventory-ledger/pkg/httputil"
	"github.com/ehr/inventory-ledger/pkg/logger"
)

// RouterConfig wires the HTTP surface of the inventory service.
type RouterConfig struct {
	Service        *service.InventoryService
	Health         *HealthHandler
	AllowedOrigins []string
	Logger         *logger.Logger
}

// NewRouter builds the chi router. Every route except /health requires the
// gateway's org header.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	items := NewItemHandler(cfg.Service, log)
	lots := NewLotHandler(cfg.Service, log)
	movements := NewMovementHandler(cfg.Service, log)
	dashboard := NewDashboardHandler(cfg.Service, log)
	masterData := NewMasterDataHandler(cfg.Service, log)

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(httputil.CORS(cfg.AllowedOrigins))
	}
	r.Use(httputil.OrgContext)

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Check)
	}

	r.Route("/api/v1/inventory", func(r chi.Router) {
		r.Route("/items", func(r chi.Router) {
			r.Get("/", items.List)
			r.Post("/", items.Create)
			r.Get("/{id}", items.Get)
			r.Patch("/{id}", items.Update)
			r.Post("/{id}/lots", items.CreateLot)
		})

		r.Route("/lots", func(r chi.Router) {
			r.Get("/", lots.List)
			r.Get("/{id}", lots.Get)
			r.Get("/{id}/balance", lots.Balance)
		})

		r.Route("/movements", func(r chi.Router) {
			r.Get("/", movements.List)
			r.Post("/", movements.Create)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", masterData.ListCategories)
			r.Post("/", masterData.CreateCategory)
			r.Get("/{id}", masterData.GetCategory)
			r.Patch("/{id}", masterData.UpdateCategory)
		})

		r.Route("/suppliers", func(r chi.Router) {
			r.Get("/", masterData.ListSuppliers)
			r.Post("/", masterData.CreateSupplier)
			r.Get("/{id}", masterData.GetSupplier)
			r.Patch("/{id}", masterData.UpdateSupplier)
		})

		r.Get("/dashboard", dashboard.Overview)
	})

	return r
}
