package handler

import (
	"net/http"

	"github.com/ehr/inventory-ledger/internal/inventory/domain"
	"github.com/ehr/inventory-ledger/internal/inventory/repository"
	"github.com/ehr/inventory-ledger/internal/inventory/service"
	"github.com/ehr/inventory-ledger/pkg/httputil"
	"github.com/ehr/inventory-ledger/pkg/logger"
)

// LotHandler handles lot endpoints
type LotHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewLotHandler creates a new lot handler
func NewLotHandler(svc *service.InventoryService, log *logger.Logger) *LotHandler {
	return &LotHandler{
		service: svc,
		logger:  log,
	}
}

// List lists lots, soonest expiry first.
func (h *LotHandler) List(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := repository.LotFilter{
		ItemID:             q.uuid("item_id"),
		LocationID:         q.uuid("location_id"),
		Status:             domain.LotStatus(q.str("status")),
		ExpiringWithinDays: q.int("expiring_within_days", 0),
		Search:             q.str("search"),
		Page:               q.page(),
	}
	if q.err != nil {
		httputil.Error(w, q.err)
		return
	}

	lots, err := h.service.ListLots(r.Context(), f)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, lots, listMeta(f.Page, len(lots)))
}

// Get returns one lot.
func (h *LotHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	lot, err := h.service.GetLot(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lot)
}

// Balance reconciles the lot's stored quantity against its movements.
func (h *LotHandler) Balance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	balance, err := h.service.LotBalance(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, balance)
}
