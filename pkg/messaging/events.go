package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventAuditRecorded = "inventory.audit.recorded"
)

// Exchange and queue names
const (
	ExchangeInventoryEvents = "inventory.events"
	ExchangeDeadLetter      = "dlx.events"

	QueueInventoryAudit = "inventory.audit"
)

// Event is the envelope every message on the bus carries.
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with a generated ID.
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	return NewEventWithID(GenerateEventID(), eventType, source, correlationID, data)
}

// NewEventWithID creates an event whose ID is chosen by the caller. Consumers
// deduplicate on the ID, so redelivering the same logical event must reuse it.
func NewEventWithID(id, eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            id,
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.NewString()
}
