// Package notify forwards fill and close events to external consumers
// (alerting, dashboards). Delivery is fire-and-forget through a bounded
// queue: the execution core never blocks on a notifier, and events are
// dropped — counted, not silently — when a consumer cannot keep up.
package notify

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/rustyeddy/tradesim/book"
	"github.com/rustyeddy/tradesim/position"
)

// Event is one fill or close notification.
type Event struct {
	Fill  *book.Fill
	Trade *position.Trade
}

// Handler consumes events on the hub's goroutine.
type Handler func(Event)

// Hub fans events out to one handler asynchronously.
type Hub struct {
	ch      chan Event
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewHub starts a hub with the given queue depth (min 1).
func NewHub(depth int, h Handler) *Hub {
	if depth < 1 {
		depth = 1
	}
	hub := &Hub{
		ch:   make(chan Event, depth),
		done: make(chan struct{}),
	}
	go func() {
		defer close(hub.done)
		for ev := range hub.ch {
			h(ev)
		}
	}()
	return hub
}

// NotifyFill enqueues a fill event, dropping when the queue is full.
func (h *Hub) NotifyFill(f book.Fill) {
	h.send(Event{Fill: &f})
}

// NotifyTrade enqueues a close event, dropping when the queue is full.
func (h *Hub) NotifyTrade(t position.Trade) {
	h.send(Event{Trade: &t})
}

func (h *Hub) send(ev Event) {
	select {
	case h.ch <- ev:
	default:
		h.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded under backpressure.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close drains the queue and stops the hub.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.ch)
		<-h.done
		if n := h.Dropped(); n > 0 {
			log.Printf("notify: dropped %d events", n)
		}
	})
}
