package handler

import (
	"net/http"

	"github.com/ehr/inventory-ledger/internal/inventory/service"
	"github.com/ehr/inventory-ledger/pkg/httputil"
	"github.com/ehr/inventory-ledger/pkg/logger"
)

// DashboardHandler handles dashboard endpoints
type DashboardHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(svc *service.InventoryService, log *logger.Logger) *DashboardHandler {
	return &DashboardHandler{
		service: svc,
		logger:  log,
	}
}

// Overview returns the inventory dashboard.
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := service.DashboardFilter{
		LocationID:   q.uuid("location_id"),
		DaysToExpire: q.int("days_to_expire", 0),
	}
	if q.err != nil {
		httputil.Error(w, q.err)
		return
	}

	overview, err := h.service.GetDashboardOverview(r.Context(), f)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, overview)
}
