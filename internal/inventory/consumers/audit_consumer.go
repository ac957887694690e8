// Package consumers holds the inventory service's message consumers.
package consumers

import (
	"context"
	"fmt"
	"time"

	"github.com/ehr/inventory-ledger/internal/inventory/events"
	"github.com/ehr/inventory-ledger/pkg/idempotency"
	"github.com/ehr/inventory-ledger/pkg/logger"
	"github.com/ehr/inventory-ledger/pkg/messaging"
)

// AuditRoutingKey binds the audit queue to every audit event type.
const AuditRoutingKey = "inventory.audit.#"

// AuditConsumer persists audit events published by the inventory service.
type AuditConsumer struct {
	consumer *messaging.Consumer
	store    events.AuditWriter
	seen     idempotency.Store
	ttl      time.Duration
	logger   *logger.Logger
}

// NewAuditConsumer declares and binds the audit queue.
func NewAuditConsumer(rmq *messaging.RabbitMQ, store events.AuditWriter, seen idempotency.Store, ttl time.Duration, log *logger.Logger) (*AuditConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, messaging.QueueInventoryAudit, log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeInventoryEvents, AuditRoutingKey); err != nil {
		return nil, err
	}

	c := newAuditConsumer(store, seen, ttl, log)
	c.consumer = consumer
	consumer.RegisterHandler(messaging.EventAuditRecorded, c.handleAuditRecorded)

	return c, nil
}

func newAuditConsumer(store events.AuditWriter, seen idempotency.Store, ttl time.Duration, log *logger.Logger) *AuditConsumer {
	if ttl <= 0 {
		ttl = idempotency.DefaultTTL
	}
	return &AuditConsumer{
		store:  store,
		seen:   seen,
		ttl:    ttl,
		logger: log.WithComponent("audit-consumer"),
	}
}

// Start consumes until ctx is cancelled.
func (c *AuditConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

// Done is closed once Start has returned.
func (c *AuditConsumer) Done() <-chan struct{} {
	return c.consumer.Done()
}

func (c *AuditConsumer) handleAuditRecorded(ctx context.Context, event *messaging.Event) error {
	var data events.AuditEvent
	if err := event.UnmarshalData(&data); err != nil {
		return messaging.Permanent(fmt.Errorf("failed to decode audit event %s: %w", event.ID, err))
	}

	key := event.ID
	if key == "" {
		key = data.ID.String()
	}

	fresh, err := c.seen.MarkProcessed(ctx, key, c.ttl)
	if err != nil {
		return fmt.Errorf("failed to check idempotency for %s: %w", key, err)
	}
	if !fresh {
		c.logger.Debug().Str("event_id", key).Msg("skipping duplicate audit event")
		return nil
	}

	record, err := data.Record()
	if err == nil {
		_, err = c.store.Insert(ctx, record)
	}
	if err != nil {
		if uerr := c.seen.Unmark(ctx, key); uerr != nil {
			c.logger.Warn().Err(uerr).Str("event_id", key).Msg("failed to release idempotency claim")
		}
		return err
	}

	c.logger.Info().
		Str("event_id", key).
		Str("org_id", data.OrgID.String()).
		Str("action", data.Action).
		Msg("audit event persisted")
	return nil
}
