package events

import (
	"context"
	"fmt"

	"github.com/ehr/inventory-ledger/internal/inventory/repository"
	"github.com/ehr/inventory-ledger/pkg/logger"
	"github.com/ehr/inventory-ledger/pkg/messaging"
)

// EventPublisher is the part of messaging.Publisher the broker sink needs.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *messaging.Event) error
}

// BrokerSink publishes audit events to the inventory exchange. The message
// ID is the audit event ID so consumers can deduplicate redeliveries.
type BrokerSink struct {
	publisher EventPublisher
	source    string
}

// NewBrokerSink creates a sink publishing as source.
func NewBrokerSink(publisher EventPublisher, source string) *BrokerSink {
	return &BrokerSink{publisher: publisher, source: source}
}

func (s *BrokerSink) Deliver(ctx context.Context, e AuditEvent) error {
	event, err := messaging.NewEventWithID(e.ID.String(), messaging.EventAuditRecorded, s.source, e.RequestID, e)
	if err != nil {
		return fmt.Errorf("failed to build audit message: %w", err)
	}
	return s.publisher.PublishEvent(ctx, event)
}

// AuditWriter is the part of the audit_events repository the database sink needs.
type AuditWriter interface {
	Insert(ctx context.Context, e *repository.AuditEventRecord) (bool, error)
}

// DatabaseSink writes audit events straight to audit_events.
type DatabaseSink struct {
	writer AuditWriter
}

// NewDatabaseSink creates a sink over writer.
func NewDatabaseSink(writer AuditWriter) *DatabaseSink {
	return &DatabaseSink{writer: writer}
}

func (s *DatabaseSink) Deliver(ctx context.Context, e AuditEvent) error {
	record, err := e.Record()
	if err != nil {
		return fmt.Errorf("failed to encode audit metadata: %w", err)
	}
	_, err = s.writer.Insert(ctx, record)
	return err
}

// LogSink only logs. It is meant for development.
type LogSink struct {
	logger *logger.Logger
}

// NewLogSink creates a log-only sink.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{logger: log.WithComponent("audit")}
}

func (s *LogSink) Deliver(_ context.Context, e AuditEvent) error {
	ev := s.logger.Info().
		Str("event_id", e.ID.String()).
		Str("org_id", e.OrgID.String()).
		Str("action", e.Action).
		Interface("metadata", e.Metadata)
	if e.ActorUserID != nil {
		ev = ev.Str("user_id", e.ActorUserID.String())
	}
	ev.Msg("audit event")
	return nil
}
