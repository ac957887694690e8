// Package events carries audit notifications out of the request path. Events
// are recorded after a transaction commits and delivered by a background
// worker, so a slow or failing sink never affects the business operation.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/inventory-ledger/internal/inventory/repository"
	"github.com/ehr/inventory-ledger/pkg/actor"
	"github.com/ehr/inventory-ledger/pkg/httputil"
	"github.com/ehr/inventory-ledger/pkg/org"
)

// Audit actions
const (
	ActionItemCreated      = "INVENTORY.ITEM_CREATED"
	ActionItemUpdated      = "INVENTORY.ITEM_UPDATED"
	ActionLotCreated       = "INVENTORY.LOT_CREATED"
	ActionMovementRecorded = "INVENTORY.MOVEMENT_RECORDED"
	ActionCategoryCreated  = "INVENTORY.CATEGORY_CREATED"
	ActionCategoryUpdated  = "INVENTORY.CATEGORY_UPDATED"
	ActionSupplierCreated  = "INVENTORY.SUPPLIER_CREATED"
	ActionSupplierUpdated  = "INVENTORY.SUPPLIER_UPDATED"
)

// TargetInventory is the target type of every inventory audit event.
const TargetInventory = "Inventory"

// AuditEvent is one audit notification.
type AuditEvent struct {
	ID          uuid.UUID              `json:"id"`
	OrgID       uuid.UUID              `json:"org_id"`
	ActorUserID *uuid.UUID             `json:"actor_user_id,omitempty"`
	Action      string                 `json:"action"`
	TargetType  string                 `json:"target_type"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	RequestID   string                 `json:"request_id,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

// NewAuditEvent builds an event for the org, actor and request in ctx.
func NewAuditEvent(ctx context.Context, action string, metadata map[string]interface{}) AuditEvent {
	orgID, _ := org.OrgID(ctx)
	return AuditEvent{
		ID:          uuid.New(),
		OrgID:       orgID,
		ActorUserID: actor.FromContext(ctx).UserID(),
		Action:      action,
		TargetType:  TargetInventory,
		Metadata:    metadata,
		RequestID:   httputil.GetRequestID(ctx),
		OccurredAt:  time.Now().UTC(),
	}
}

// Record converts the event into its audit_events row.
func (e AuditEvent) Record() (*repository.AuditEventRecord, error) {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return nil, err
	}
	if e.Metadata == nil {
		metadata = []byte("{}")
	}

	return &repository.AuditEventRecord{
		ID:          e.ID,
		OrgID:       e.OrgID,
		ActorUserID: e.ActorUserID,
		Action:      e.Action,
		TargetType:  e.TargetType,
		Status:      "success",
		Metadata:    metadata,
		OccurredAt:  e.OccurredAt,
	}, nil
}
