// Package notify carries order lifecycle events out of the engine. The
// queue is bounded and non-blocking on the publisher side: a full queue
// drops the event and logs, because delivery failure must never touch
// order state.
package notify

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ksred/trigger-engine/internal/types"
)

// Event is one lifecycle notification. Either OrderID or OrderIDs is
// set; batch expiries use the plural form.
type Event struct {
	OrderID      string            `json:"order_id,omitempty"`
	OrderIDs     []string          `json:"order_ids,omitempty"`
	Status       types.OrderStatus `json:"status"`
	Network      string            `json:"network"`
	AssetAddress string            `json:"asset_address"`
	Timestamp    time.Time         `json:"timestamp"`
	Error        string            `json:"error,omitempty"`
}

// Publisher is what the engine publishes through.
type Publisher interface {
	Publish(event Event)
}

// Queue is a bounded in-process event queue.
type Queue struct {
	ch     chan Event
	logger zerolog.Logger
}

func NewQueue(size int) *Queue {
	return &Queue{
		ch:     make(chan Event, size),
		logger: log.With().Str("component", "notify_queue").Logger(),
	}
}

// Publish enqueues without blocking; on a full queue the event is
// dropped and counted against the log.
func (q *Queue) Publish(event Event) {
	select {
	case q.ch <- event:
	default:
		q.logger.Warn().
			Str("order_id", event.OrderID).
			Str("status", string(event.Status)).
			Msg("notification queue full, dropping event")
	}
}

// Events exposes the consumer side of the queue.
func (q *Queue) Events() <-chan Event {
	return q.ch
}

// Discard is a Publisher that drops everything, for tests and tools
// that do not care about notifications.
type Discard struct{}

func (Discard) Publish(Event) {}
