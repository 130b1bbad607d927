package notify

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/tradesim/book"
	"github.com/rustyeddy/tradesim/position"
)

func TestHubDeliversEvents(t *testing.T) {
	t.Parallel()

	got := make(chan Event, 2)
	hub := NewHub(8, func(ev Event) { got <- ev })

	hub.NotifyFill(book.Fill{Price: 100.5, Units: 10})
	hub.NotifyTrade(position.Trade{PnL: 42})

	ev := <-got
	if assert.NotNil(t, ev.Fill) {
		assert.Equal(t, 100.5, ev.Fill.Price)
	}
	ev = <-got
	if assert.NotNil(t, ev.Trade) {
		assert.Equal(t, 42.0, ev.Trade.PnL)
	}
	assert.Equal(t, int64(0), hub.Dropped())

	hub.Close()
}

func TestHubDropsUnderBackpressure(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	gate := make(chan struct{})
	var handled atomic.Int64
	hub := NewHub(1, func(Event) {
		handled.Add(1)
		if handled.Load() == 1 {
			close(started)
			<-gate
		}
	})

	hub.NotifyTrade(position.Trade{})
	<-started // handler is now stuck, queue is empty

	hub.NotifyTrade(position.Trade{}) // fills the queue
	hub.NotifyTrade(position.Trade{}) // no room left
	hub.NotifyTrade(position.Trade{})
	assert.Equal(t, int64(2), hub.Dropped())

	close(gate)
	hub.Close()
	assert.Equal(t, int64(2), handled.Load())
}

func TestHubCloseDrainsQueue(t *testing.T) {
	t.Parallel()

	var handled atomic.Int64
	hub := NewHub(16, func(Event) {
		time.Sleep(time.Millisecond)
		handled.Add(1)
	})

	for i := 0; i < 5; i++ {
		hub.NotifyFill(book.Fill{})
	}
	hub.Close()
	hub.Close() // idempotent

	assert.Equal(t, int64(5), handled.Load())
	assert.Equal(t, int64(0), hub.Dropped())
}
