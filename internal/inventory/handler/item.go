package handler

import (
	"net/http"

	"github.com/ehr/inventory-ledger/internal/inventory/repository"
	"github.com/ehr/inventory-ledger/internal/inventory/service"
	"github.com/ehr/inventory-ledger/pkg/httputil"
	"github.com/ehr/inventory-ledger/pkg/logger"
)

// ItemHandler handles item endpoints
type ItemHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewItemHandler creates a new item handler
func NewItemHandler(svc *service.InventoryService, log *logger.Logger) *ItemHandler {
	return &ItemHandler{
		service: svc,
		logger:  log,
	}
}

// List lists items with their on-hand totals.
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := repository.ItemFilter{
		Search:          q.str("search"),
		CategoryID:      q.uuid("category_id"),
		LocationID:      q.uuid("location_id"),
		IncludeInactive: q.bool("include_inactive"),
		ControlledOnly:  q.bool("controlled_only"),
		Page:            q.page(),
	}
	if q.err != nil {
		httputil.Error(w, q.err)
		return
	}

	items, err := h.service.ListItems(r.Context(), f)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, items, listMeta(f.Page, len(items)))
}

// Get returns an item with its lots and location settings.
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, item)
}

// Create creates a new item
func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateItemInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}

	item, err := h.service.CreateItem(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, item)
}

// Update applies a partial update to an item.
func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var in service.UpdateItemInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}

	item, err := h.service.UpdateItem(r.Context(), id, in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, item)
}

// CreateLot registers a lot for the item, booking any initial quantity.
func (h *ItemHandler) CreateLot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var in service.CreateLotInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}

	lot, err := h.service.CreateLot(r.Context(), id, in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, lot)
}
