package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ehr/inventory-ledger/pkg/logger"
)

// MessageHandler is a function that handles a message
type MessageHandler func(ctx context.Context, event *Event) error

// maxDeaths is how often a message may be dead-lettered and replayed
// before it stays in the DLQ.
const maxDeaths = 3

// Consumer handles consuming events from RabbitMQ
type Consumer struct {
	rmq       *RabbitMQ
	queueName string
	handlers  map[string]MessageHandler
	logger    *logger.Logger
	done      chan struct{}
}

// NewConsumer creates a new consumer for the given queue
func NewConsumer(rmq *RabbitMQ, queueName string, log *logger.Logger) (*Consumer, error) {
	if _, err := rmq.DeclareQueue(queueName); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	return newConsumer(rmq, queueName, log), nil
}

func newConsumer(rmq *RabbitMQ, queueName string, log *logger.Logger) *Consumer {
	return &Consumer{
		rmq:       rmq,
		queueName: queueName,
		handlers:  make(map[string]MessageHandler),
		logger:    log.WithComponent("consumer"),
		done:      make(chan struct{}),
	}
}

// Subscribe subscribes to an exchange with a routing key pattern
func (c *Consumer) Subscribe(exchange, routingKeyPattern string) error {
	if err := c.rmq.DeclareExchange(exchange); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := c.rmq.BindQueue(c.queueName, exchange, routingKeyPattern); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	c.logger.Info().
		Str("queue", c.queueName).
		Str("exchange", exchange).
		Str("routing_key", routingKeyPattern).
		Msg("subscribed to exchange")

	return nil
}

// RegisterHandler registers a handler for a specific event type
func (c *Consumer) RegisterHandler(eventType string, handler MessageHandler) {
	c.handlers[eventType] = handler
}

// Start starts consuming messages in the background. Done is closed once
// ctx is cancelled or the delivery channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.rmq.Channel().Consume(
		c.queueName, // queue
		"",          // consumer tag (auto-generated)
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info().Str("queue", c.queueName).Msg("consumer started")

	go func() {
		defer close(c.done)
		for {
			select {
			case <-ctx.Done():
				c.logger.Info().Str("queue", c.queueName).Msg("consumer stopped")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn().Msg("message channel closed")
					return
				}
				c.handleMessage(ctx, msg)
			}
		}
	}()

	return nil
}

// Done is closed when the consume loop exits.
func (c *Consumer) Done() <-chan struct{} {
	return c.done
}

// PermanentError marks a handler failure that a redelivery cannot fix,
// such as a payload that does not decode.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the consumer dead-letters the message at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

type disposition int

const (
	ack disposition = iota
	requeue
	deadLetter
)

func (d disposition) String() string {
	switch d {
	case requeue:
		return "requeue"
	case deadLetter:
		return "dead_letter"
	default:
		return "ack"
	}
}

// dispose decides what happens to a delivery after its handler returned
// err. A failure gets one in-place retry; a permanent failure, a second
// failure or a message that keeps cycling through the DLQ is rejected.
// A failure caused by shutdown is requeued without spending the retry.
func dispose(ctx context.Context, msg amqp.Delivery, err error) disposition {
	var permanent *PermanentError
	switch {
	case err == nil:
		return ack
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return requeue
	case errors.As(err, &permanent):
		return deadLetter
	case msg.Redelivered, deathCount(msg) >= maxDeaths:
		return deadLetter
	default:
		return requeue
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	var event Event
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		c.logger.Error().Err(err).Msg("failed to unmarshal event")
		msg.Reject(false)
		return
	}

	ctx = WithCorrelationID(ctx, event.CorrelationID)

	handler, ok := c.handlers[event.Type]
	if !ok {
		c.logger.Debug().
			Str("event_type", event.Type).
			Msg("no handler registered for event type")
		msg.Ack(false)
		return
	}

	err := handler(ctx, &event)
	d := dispose(ctx, msg, err)
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("event_type", event.Type).
			Str("event_id", event.ID).
			Bool("redelivered", msg.Redelivered).
			Stringer("disposition", d).
			Msg("failed to process event")
	}

	switch d {
	case ack:
		msg.Ack(false)
	case requeue:
		msg.Nack(false, true)
	case deadLetter:
		msg.Reject(false)
	}
}

func deathCount(msg amqp.Delivery) int {
	deaths, ok := msg.Headers["x-death"].([]interface{})
	if !ok {
		return 0
	}

	total := 0
	for _, death := range deaths {
		d, ok := death.(amqp.Table)
		if !ok {
			continue
		}
		if count, ok := d["count"].(int64); ok {
			total += int(count)
		}
	}
	return total
}
