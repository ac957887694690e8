package handler_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/inventory-ledger/internal/inventory/domain"
	"github.com/ehr/inventory-ledger/internal/inventory/handler"
	"github.com/ehr/inventory-ledger/internal/inventory/service"
	"github.com/ehr/inventory-ledger/pkg/testutil"
)

func newIntegrationRouter(t *testing.T) http.Handler {
	t.Helper()
	testutil.SkipIfShort(t)

	svc := service.NewInventoryService(
		suite.DB,
		service.NewRepositories(suite.DB),
		nil,
		service.Options{Policy: domain.Policy{ReopenConsumed: true}, DefaultExpiryWindowDays: 30, MaxPageSize: 200},
		suite.Logger,
	)
	return handler.NewRouter(handler.RouterConfig{
		Service: svc,
		Health:  handler.NewHealthHandler("inventory-service", suite.DB, nil),
		Logger:  suite.Logger,
	})
}

type created struct {
	Data struct {
		ID             uuid.UUID `json:"id"`
		LotID          uuid.UUID `json:"lot_id"`
		QuantityOnHand string    `json:"quantity_on_hand"`
		Status         string    `json:"status"`
	} `json:"data"`
}

func TestLedgerOverHTTP(t *testing.T) {
	router := newIntegrationRouter(t)
	orgID, userID := uuid.NewString(), uuid.NewString()
	do := func(method, path string, body interface{}) *created {
		t.Helper()
		req := testutil.WithOrgHeaders(testutil.NewHTTPRequest(method, path, body), orgID, userID)
		rr := testutil.ExecuteRequest(router, req)
		require.Less(t, rr.Code, 300, rr.Body.String())
		var out created
		testutil.ParseJSONBody(t, rr, &out)
		return &out
	}

	item := do(http.MethodPost, "/api/v1/inventory/items", map[string]interface{}{
		"name": "Saline 0.9% 500ml",
		"unit": "bag",
	})
	lot := do(http.MethodPost, "/api/v1/inventory/items/"+item.Data.ID.String()+"/lots", map[string]interface{}{
		"lot_number":       "SAL-001",
		"expiration_date":  "2030-01-31",
		"initial_quantity": "10",
	})
	assert.Equal(t, "10", lot.Data.QuantityOnHand)

	issued := do(http.MethodPost, "/api/v1/inventory/movements", map[string]interface{}{
		"item_id":       item.Data.ID,
		"lot_id":        lot.Data.ID,
		"movement_type": "issue",
		"quantity":      "4",
		"metadata": map[string]interface{}{
			"kind":    "issue",
			"version": 1,
			"data":    map[string]interface{}{"patient_id": "P-1"},
		},
	})
	assert.Equal(t, lot.Data.ID, issued.Data.LotID)

	req := testutil.WithOrgHeaders(testutil.NewHTTPRequest(http.MethodPost, "/api/v1/inventory/movements", map[string]interface{}{
		"item_id":       item.Data.ID,
		"lot_id":        lot.Data.ID,
		"movement_type": "waste",
		"quantity":      "7",
	}), orgID, userID)
	rr := testutil.ExecuteRequest(router, req)
	apiErr := testutil.AssertError(t, rr, http.StatusUnprocessableEntity, "INSUFFICIENT_QUANTITY")
	assert.Equal(t, "6", apiErr.Details["available"])
	assert.Equal(t, "7", apiErr.Details["requested"])

	rr = testutil.ExecuteRequest(router, testutil.WithOrgHeaders(
		testutil.NewHTTPRequest(http.MethodGet, "/api/v1/inventory/lots/"+lot.Data.ID.String()+"/balance", nil), orgID, userID))
	testutil.AssertStatus(t, rr, http.StatusOK)
	var balance struct {
		Data struct {
			QuantityOnHand string `json:"quantity_on_hand"`
			TotalIn        string `json:"total_in"`
			TotalOut       string `json:"total_out"`
		} `json:"data"`
	}
	testutil.ParseJSONBody(t, rr, &balance)
	assert.Equal(t, "6", balance.Data.QuantityOnHand)
	assert.Equal(t, "10", balance.Data.TotalIn)
	assert.Equal(t, "4", balance.Data.TotalOut)

	rr = testutil.ExecuteRequest(router, testutil.WithOrgHeaders(
		testutil.NewHTTPRequest(http.MethodGet, "/api/v1/inventory/lots/"+lot.Data.ID.String(), nil), uuid.NewString(), userID))
	testutil.AssertError(t, rr, http.StatusNotFound, "NOT_FOUND")
}

func TestHealthOverHTTP(t *testing.T) {
	router := newIntegrationRouter(t)

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/health", nil))

	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertBodyContains(t, rr, `"status":"healthy"`)
}
