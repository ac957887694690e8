package handler

import (
	"context"
	"net/http"

	"github.com/ehr/inventory-ledger/pkg/httputil"
)

// DatabaseHealth reports database connectivity.
type DatabaseHealth interface {
	Health(ctx context.Context) map[string]string
}

// BrokerHealth reports broker connectivity.
type BrokerHealth interface {
	Health() map[string]string
}

// HealthHandler serves the /health probe. Broker may be nil when audit
// events are not published.
type HealthHandler struct {
	service  string
	database DatabaseHealth
	broker   BrokerHealth
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(serviceName string, db DatabaseHealth, broker BrokerHealth) *HealthHandler {
	return &HealthHandler{service: serviceName, database: db, broker: broker}
}

// Check reports 503 when the database is down. The broker only degrades
// the status since audit delivery is asynchronous.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"service": h.service,
		"status":  "healthy",
	}
	code := http.StatusOK

	db := h.database.Health(r.Context())
	body["database"] = db
	if db["status"] != "up" {
		body["status"] = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	if h.broker != nil {
		mq := h.broker.Health()
		body["rabbitmq"] = mq
		if mq["status"] != "up" && code == http.StatusOK {
			body["status"] = "degraded"
		}
	}

	httputil.JSON(w, code, body)
}
