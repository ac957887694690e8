package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ehr/inventory-ledger/pkg/logger"
)

// Sink delivers audit events somewhere durable.
type Sink interface {
	Deliver(ctx context.Context, e AuditEvent) error
}

// Recorder queues audit events on a buffered channel and delivers them from
// a single background worker. Record never blocks: when the buffer is full
// the event is dropped and a warning logged.
type Recorder struct {
	sink    Sink
	queue   chan AuditEvent
	timeout time.Duration
	logger  *logger.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	dropped   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

// NewRecorder starts a recorder. bufferSize and timeout fall back to 256 and
// 5s when not positive.
func NewRecorder(sink Sink, bufferSize int, timeout time.Duration, log *logger.Logger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	r := &Recorder{
		sink:    sink,
		queue:   make(chan AuditEvent, bufferSize),
		timeout: timeout,
		logger:  log.WithComponent("audit_recorder"),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues e without waiting.
func (r *Recorder) Record(e AuditEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.drop(e, "recorder closed")
		return
	}

	select {
	case r.queue <- e:
	default:
		r.drop(e, "buffer full")
	}
}

func (r *Recorder) drop(e AuditEvent, reason string) {
	r.dropped.Add(1)
	r.logger.Warn().
		Str("event_id", e.ID.String()).
		Str("action", e.Action).
		Str("reason", reason).
		Msg("audit event dropped")
}

func (r *Recorder) run() {
	defer close(r.done)

	for e := range r.queue {
		r.deliver(e)
	}
}

func (r *Recorder) deliver(e AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.sink.Deliver(ctx, e); err != nil {
		r.failed.Add(1)
		r.logger.Error().
			Err(err).
			Str("event_id", e.ID.String()).
			Str("org_id", e.OrgID.String()).
			Str("action", e.Action).
			Msg("failed to deliver audit event")
		return
	}
	r.delivered.Add(1)
}

// Close stops accepting events and waits until the buffer is drained or
// ctx ends.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats is a snapshot of recorder counters.
type Stats struct {
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// Stats returns the current counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Delivered: r.delivered.Load(),
		Failed:    r.failed.Load(),
		Dropped:   r.dropped.Load(),
	}
}
