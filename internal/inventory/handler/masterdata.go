package handler

import (
	"net/http"

	"github.com/ehr/inventory-ledger/internal/inventory/repository"
	"github.com/ehr/inventory-ledger/internal/inventory/service"
	"github.com/ehr/inventory-ledger/pkg/httputil"
	"github.com/ehr/inventory-ledger/pkg/logger"
)

// MasterDataHandler handles category and supplier endpoints
type MasterDataHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewMasterDataHandler creates a new master data handler
func NewMasterDataHandler(svc *service.InventoryService, log *logger.Logger) *MasterDataHandler {
	return &MasterDataHandler{
		service: svc,
		logger:  log,
	}
}

// ListCategories lists categories by name.
func (h *MasterDataHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	includeInactive := q.bool("include_inactive")
	if q.err != nil {
		httputil.Error(w, q.err)
		return
	}

	categories, err := h.service.ListCategories(r.Context(), includeInactive)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, categories)
}

func (h *MasterDataHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	category, err := h.service.GetCategory(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, category)
}

func (h *MasterDataHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var in service.CategoryInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}

	category, err := h.service.CreateCategory(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, category)
}

func (h *MasterDataHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var in service.CategoryInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}

	category, err := h.service.UpdateCategory(r.Context(), id, in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, category)
}

// ListSuppliers lists suppliers, optionally filtered by name or code.
func (h *MasterDataHandler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := repository.SupplierFilter{
		Search:          q.str("search"),
		IncludeInactive: q.bool("include_inactive"),
	}
	if q.err != nil {
		httputil.Error(w, q.err)
		return
	}

	suppliers, err := h.service.ListSuppliers(r.Context(), f)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, suppliers)
}

func (h *MasterDataHandler) GetSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	supplier, err := h.service.GetSupplier(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, supplier)
}

func (h *MasterDataHandler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var in service.SupplierInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}

	supplier, err := h.service.CreateSupplier(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, supplier)
}

func (h *MasterDataHandler) UpdateSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var in service.SupplierInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}

	supplier, err := h.service.UpdateSupplier(r.Context(), id, in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, supplier)
}
