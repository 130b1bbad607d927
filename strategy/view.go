package strategy

import (
	"time"

	"github.com/rustyeddy/tradesim/book"
	"github.com/rustyeddy/tradesim/broker"
	"github.com/rustyeddy/tradesim/market"
	"github.com/rustyeddy/tradesim/position"
)

// View is the read/act surface a hook invocation receives. The candle window
// it exposes is a bounded slice ending at the current bar, so a strategy can
// only ever observe data available at the simulated instant.
type View struct {
	route   market.Route
	now     time.Time
	history []market.Candle
	bkr     *broker.Broker
}

func (v *View) Route() market.Route { return v.route }
func (v *View) Now() time.Time      { return v.now }

// Candle returns the current (just closed) bar.
func (v *View) Candle() market.Candle {
	return v.history[len(v.history)-1]
}

// Candles returns up to n bars ending at the current one, oldest first.
func (v *View) Candles(n int) []market.Candle {
	if n <= 0 || n > len(v.history) {
		n = len(v.history)
	}
	return v.history[len(v.history)-n:]
}

// BarCount is the number of bars seen so far on this route.
func (v *View) BarCount() int { return len(v.history) }

// Position is the route's current position.
func (v *View) Position() position.Position {
	return v.bkr.Position(v.route)
}

// Account is a snapshot of the shared capital pool.
func (v *View) Account() broker.Account {
	return v.bkr.Account()
}

// Equity marks all open positions and returns total account equity.
func (v *View) Equity() float64 {
	return v.bkr.Equity()
}

// PendingOrders lists snapshots of the route's live orders.
func (v *View) PendingOrders() []book.Order {
	return v.bkr.PendingOrders(v.route)
}

// Submit places an order on this route through the broker. The route is
// stamped by the view; a strategy cannot trade another route's stream.
func (v *View) Submit(req broker.OrderRequest) (string, error) {
	req.Route = v.route
	return v.bkr.Submit(req)
}

// Cancel cancels one of this route's pending orders.
func (v *View) Cancel(orderID string) error {
	return v.bkr.Cancel(orderID)
}
