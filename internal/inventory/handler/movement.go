package handler

import (
	"net/http"

	"github.com/ehr/inventory-ledger/internal/inventory/domain"
	"github.com/ehr/inventory-ledger/internal/inventory/repository"
	"github.com/ehr/inventory-ledger/internal/inventory/service"
	"github.com/ehr/inventory-ledger/pkg/httputil"
	"github.com/ehr/inventory-ledger/pkg/logger"
)

// MovementHandler handles stock movement endpoints
type MovementHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewMovementHandler creates a new movement handler
func NewMovementHandler(svc *service.InventoryService, log *logger.Logger) *MovementHandler {
	return &MovementHandler{
		service: svc,
		logger:  log,
	}
}

// Create records a stock movement.
func (h *MovementHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.RecordMovementInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}

	movement, err := h.service.RecordStockMovement(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, movement)
}

// List lists movements newest first.
func (h *MovementHandler) List(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := repository.MovementFilter{
		ItemID:    q.uuid("item_id"),
		LotID:     q.uuid("lot_id"),
		Type:      domain.MovementType(q.str("movement_type")),
		Direction: domain.Direction(q.str("direction")),
		StartDate: q.time("start_date"),
		EndDate:   q.time("end_date"),
		Page:      q.page(),
	}
	if q.err != nil {
		httputil.Error(w, q.err)
		return
	}

	movements, err := h.service.ListMovements(r.Context(), f)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, movements, listMeta(f.Page, len(movements)))
}
