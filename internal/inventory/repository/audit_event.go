package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ehr/inventory-ledger/pkg/database"
	"github.com/ehr/inventory-ledger/pkg/org"
)

// AuditEventRecord is a persisted audit notification.
type AuditEventRecord struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	OrgID       uuid.UUID       `db:"org_id" json:"org_id"`
	ActorUserID *uuid.UUID      `db:"actor_user_id" json:"actor_user_id,omitempty"`
	Action      string          `db:"action" json:"action"`
	TargetType  string          `db:"target_type" json:"target_type"`
	Status      string          `db:"status" json:"status"`
	Metadata    json.RawMessage `db:"metadata" json:"metadata"`
	OccurredAt  time.Time       `db:"occurred_at" json:"occurred_at"`
}

// AuditEventRepository writes audit_events.
type AuditEventRepository struct {
	db *database.DB
}

// NewAuditEventRepository creates a new audit event repository
func NewAuditEventRepository(db *database.DB) *AuditEventRepository {
	return &AuditEventRepository{db: db}
}

// Insert stores e. Redelivered events with a known id are ignored, and the
// return value reports whether a row was written.
//
// The org comes from the event rather than ctx because events are written
// outside any request; the write is scoped to that org.
func (r *AuditEventRepository) Insert(ctx context.Context, e *AuditEventRecord) (bool, error) {
	var written bool
	err := r.db.WithOrg(org.WithOrgID(ctx, e.OrgID), func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		written, err = insertAuditEvent(ctx, tx, e)
		return err
	})
	return written, err
}

func insertAuditEvent(ctx context.Context, tx *sqlx.Tx, e *AuditEventRecord) (bool, error) {
	metadata := "{}"
	if len(e.Metadata) > 0 {
		metadata = string(e.Metadata)
	}
	if e.TargetType == "" {
		e.TargetType = "Inventory"
	}
	if e.Status == "" {
		e.Status = "success"
	}

	query := `
		INSERT INTO audit_events (id, org_id, actor_user_id, action, target_type, status, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	result, err := tx.ExecContext(ctx, query,
		e.ID, e.OrgID, e.ActorUserID, e.Action, e.TargetType, e.Status, metadata, e.OccurredAt,
	)
	if err != nil {
		return false, database.MapError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, database.MapError(err)
	}
	return rows > 0, nil
}

// ListByOrg returns the org's most recent audit events.
func (r *AuditEventRepository) ListByOrg(ctx context.Context, orgID uuid.UUID, limit int) ([]*AuditEventRecord, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}

	query := `
		SELECT id, org_id, actor_user_id, action, target_type, status, metadata, occurred_at
		FROM audit_events
		WHERE org_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	events := []*AuditEventRecord{}
	err := r.db.ReadOrg(org.WithOrgID(ctx, orgID), func(ctx context.Context, tx *sqlx.Tx) error {
		return database.MapError(tx.SelectContext(ctx, &events, query, orgID, limit))
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}
