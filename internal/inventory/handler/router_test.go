package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/inventory-ledger/internal/inventory/domain"
	"github.com/ehr/inventory-ledger/internal/inventory/handler"
	"github.com/ehr/inventory-ledger/internal/inventory/service"
	"github.com/ehr/inventory-ledger/pkg/httputil"
	"github.com/ehr/inventory-ledger/pkg/logger"
	"github.com/ehr/inventory-ledger/pkg/testutil"
)

type fakeHealth struct {
	status string
}

func (f fakeHealth) Health(context.Context) map[string]string {
	return map[string]string{"status": f.status}
}

type fakeBroker struct {
	status string
}

func (f fakeBroker) Health() map[string]string {
	return map[string]string{"status": f.status}
}

func newMockRouter(t *testing.T) (http.Handler, *testutil.MockDB) {
	t.Helper()
	mock := testutil.NewMockDB(t)
	svc := service.NewInventoryService(
		mock.DB,
		service.NewRepositories(mock.DB),
		nil,
		service.Options{Policy: domain.Policy{ReopenConsumed: true}, MaxPageSize: 200},
		logger.Nop(),
	)
	router := handler.NewRouter(handler.RouterConfig{
		Service: svc,
		Health:  handler.NewHealthHandler("inventory-service", fakeHealth{"up"}, fakeBroker{"up"}),
		Logger:  logger.Nop(),
	})
	return router, mock
}

func orgRequest(method, path string, body interface{}, orgID uuid.UUID) *http.Request {
	return testutil.WithOrgHeaders(testutil.NewHTTPRequest(method, path, body), orgID.String(), uuid.NewString())
}

func TestRouter_RejectsRequestsWithoutOrg(t *testing.T) {
	router, mock := newMockRouter(t)

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/inventory/items", nil))

	testutil.AssertError(t, rr, http.StatusForbidden, "FORBIDDEN")
	mock.ExpectationsWereMet(t)
}

func TestRouter_SetsRequestID(t *testing.T) {
	router, _ := newMockRouter(t)

	req := testutil.WithRequestID(testutil.NewHTTPRequest(http.MethodGet, "/health", nil), "req-123")
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, "req-123", rr.Header().Get(httputil.HeaderRequestID))
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		db, broker string
		wantCode   int
		wantStatus string
	}{
		{"all up", "up", "up", http.StatusOK, "healthy"},
		{"broker down", "up", "down", http.StatusOK, "degraded"},
		{"database down", "down", "up", http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewHealthHandler("inventory-service", fakeHealth{tt.db}, fakeBroker{tt.broker})
			rr := testutil.ExecuteRequest(http.HandlerFunc(h.Check), testutil.NewHTTPRequest(http.MethodGet, "/health", nil))

			testutil.AssertStatus(t, rr, tt.wantCode)
			var body struct {
				Data map[string]interface{} `json:"data"`
			}
			testutil.ParseJSONBody(t, rr, &body)
			assert.Equal(t, tt.wantStatus, body.Data["status"])
		})
	}
}

func TestHealth_WithoutBroker(t *testing.T) {
	h := handler.NewHealthHandler("inventory-service", fakeHealth{"up"}, nil)
	rr := testutil.ExecuteRequest(http.HandlerFunc(h.Check), testutil.NewHTTPRequest(http.MethodGet, "/health", nil))

	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertBodyContains(t, rr, `"status":"healthy"`)
	assert.NotContains(t, rr.Body.String(), "rabbitmq")
}

func TestMovementCreate_ValidationError(t *testing.T) {
	router, mock := newMockRouter(t)

	req := orgRequest(http.MethodPost, "/api/v1/inventory/movements", map[string]interface{}{
		"item_id":       uuid.NewString(),
		"lot_number":    "LOT-1",
		"movement_type": "teleport",
		"quantity":      "5",
	}, uuid.New())
	rr := testutil.ExecuteRequest(router, req)

	apiErr := testutil.AssertError(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")
	assert.Contains(t, apiErr.Details, "movement_type")
	mock.ExpectationsWereMet(t)
}

func TestMovementCreate_RejectsUnknownFields(t *testing.T) {
	router, mock := newMockRouter(t)

	req := orgRequest(http.MethodPost, "/api/v1/inventory/movements", map[string]interface{}{
		"item_id":  uuid.NewString(),
		"quantity": "5",
		"colour":   "blue",
	}, uuid.New())
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertError(t, rr, http.StatusBadRequest, "BAD_REQUEST")
	mock.ExpectationsWereMet(t)
}

func TestBadPathAndQueryParameters(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		field string
	}{
		{"item id", "/api/v1/inventory/items/not-a-uuid", "id"},
		{"lot id", "/api/v1/inventory/lots/42/balance", "id"},
		{"limit", "/api/v1/inventory/lots?limit=abc", "limit"},
		{"zero limit", "/api/v1/inventory/items?limit=0", "limit"},
		{"location", "/api/v1/inventory/dashboard?location_id=nope", "location_id"},
		{"start date", "/api/v1/inventory/movements?start_date=yesterday", "start_date"},
		{"flag", "/api/v1/inventory/categories?include_inactive=maybe", "include_inactive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, mock := newMockRouter(t)

			rr := testutil.ExecuteRequest(router, orgRequest(http.MethodGet, tt.path, nil, uuid.New()))

			apiErr := testutil.AssertError(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")
			assert.Contains(t, apiErr.Details, tt.field)
			mock.ExpectationsWereMet(t)
		})
	}
}

func TestLotGet_NotFound(t *testing.T) {
	router, mock := newMockRouter(t)
	orgID, lotID := uuid.New(), uuid.New()

	mock.ExpectOrgScope(orgID)
	mock.ExpectQuery("WHERE l.org_id = $1 AND l.id = $2").
		WithArgs(orgID.String(), lotID.String()).
		WillReturnRows(testutil.MockRows("id"))
	mock.ExpectRollback()

	rr := testutil.ExecuteRequest(router, orgRequest(http.MethodGet, "/api/v1/inventory/lots/"+lotID.String(), nil, orgID))

	testutil.AssertError(t, rr, http.StatusNotFound, "NOT_FOUND")
	mock.ExpectationsWereMet(t)
}

func TestCategoryList(t *testing.T) {
	router, mock := newMockRouter(t)
	orgID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectOrgScope(orgID)
	mock.ExpectQuery("FROM inventory_categories").
		WithArgs(orgID.String(), true).
		WillReturnRows(testutil.MockRows("id", "org_id", "name", "description", "is_active", "created_at", "updated_at").
			AddRow(uuid.NewString(), orgID.String(), "Dressings", nil, true, now, now).
			AddRow(uuid.NewString(), orgID.String(), "Sutures", nil, false, now, now))
	mock.ExpectCommit()

	rr := testutil.ExecuteRequest(router, orgRequest(http.MethodGet, "/api/v1/inventory/categories?include_inactive=true", nil, orgID))

	testutil.AssertStatus(t, rr, http.StatusOK)
	var body struct {
		Data []struct {
			Name     string `json:"name"`
			IsActive bool   `json:"is_active"`
		} `json:"data"`
	}
	testutil.ParseJSONBody(t, rr, &body)
	require.Len(t, body.Data, 2)
	assert.Equal(t, "Dressings", body.Data[0].Name)
	assert.False(t, body.Data[1].IsActive)
	mock.ExpectationsWereMet(t)
}
