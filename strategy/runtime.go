package strategy

import (
	"fmt"

	"github.com/rustyeddy/tradesim/book"
	"github.com/rustyeddy/tradesim/broker"
	"github.com/rustyeddy/tradesim/market"
	"github.com/rustyeddy/tradesim/position"
)

// RouteState is the per-route strategy lifecycle.
type RouteState int8

const (
	Uninitialized RouteState = iota
	Active
	Terminated
	Errored
)

func (s RouteState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Active:
		return "active"
	case Terminated:
		return "terminated"
	case Errored:
		return "errored"
	}
	return "unknown"
}

// Runtime drives one strategy instance on one route. The driver calls Step
// once per closed bar, after market state and matching have settled. A fault
// inside a hook moves only this route to Errored; the caller decides whether
// the whole run aborts.
type Runtime struct {
	route market.Route
	strat Strategy
	bkr   *broker.Broker

	state   RouteState
	err     error
	history []market.Candle

	// pendingEntry is the last entry order we submitted that has not
	// completed; used to avoid stacking entries while one is working.
	pendingEntry string
}

func NewRuntime(route market.Route, strat Strategy, bkr *broker.Broker) *Runtime {
	return &Runtime{route: route, strat: strat, bkr: bkr}
}

func (r *Runtime) Route() market.Route { return r.route }
func (r *Runtime) State() RouteState   { return r.state }
func (r *Runtime) Err() error          { return r.err }
func (r *Runtime) Strategy() Strategy  { return r.strat }

// Start resets the strategy and activates the route.
func (r *Runtime) Start() {
	r.strat.Reset()
	r.state = Active
}

// Terminate marks a clean end of the route (end of data).
func (r *Runtime) Terminate() {
	if r.state == Active {
		r.state = Terminated
	}
}

// Step processes one closed bar: deliver the bar's fill/close events to the
// strategy, then run the decision hooks. The returned error is the hook
// fault, already recorded; the route is Errored and will not step again.
func (r *Runtime) Step(c market.Candle, events []broker.Event) error {
	if r.state != Active {
		return r.err
	}
	r.history = append(r.history, c)

	v := &View{
		route:   r.route,
		now:     c.CloseTime(),
		history: r.history,
		bkr:     r.bkr,
	}

	err := r.guard(func() {
		r.deliver(v, events)
		r.decide(v)
	})
	if err != nil {
		r.state = Errored
		r.err = err
		return err
	}
	return nil
}

// Deliver reports events that occurred outside a step (end-of-run close-out)
// to the strategy, with hooks still guarded.
func (r *Runtime) Deliver(events []broker.Event) error {
	if r.state != Active || len(r.history) == 0 {
		return r.err
	}
	v := &View{
		route:   r.route,
		now:     r.history[len(r.history)-1].CloseTime(),
		history: r.history,
		bkr:     r.bkr,
	}
	err := r.guard(func() { r.deliver(v, events) })
	if err != nil {
		r.state = Errored
		r.err = err
	}
	return err
}

func (r *Runtime) deliver(v *View, events []broker.Event) {
	for _, ev := range events {
		if ev.Fill.OrderID == r.pendingEntry && !ev.Fill.Partial {
			r.pendingEntry = ""
		}
		if ev.Opened && ev.Fill.Tag == book.TagEntry {
			if ev.Fill.Side == book.Buy {
				r.strat.OnLongEntry(v, ev.Fill)
			} else {
				r.strat.OnShortEntry(v, ev.Fill)
			}
		}
		if ev.Trade != nil {
			r.strat.OnPositionClose(v, *ev.Trade)
		}
	}
}

// decide runs the entry decisions. Long is consulted first, short only when
// long declines — a fixed order so replays are bit-identical. Signals are
// only taken while flat with no working entry; position management in between
// belongs to the lifecycle hooks and protective orders.
func (r *Runtime) decide(v *View) {
	r.syncPendingEntry(v)
	if v.Position().Side != position.Flat || r.pendingEntry != "" {
		return
	}

	if e := r.strat.LongSignal(v); e != nil {
		r.submit(v, book.Buy, e)
		return
	}
	if e := r.strat.ShortSignal(v); e != nil {
		r.submit(v, book.Sell, e)
	}
}

// syncPendingEntry clears the working-entry marker when the order reached a
// terminal state we did not see a fill for (canceled, expired).
func (r *Runtime) syncPendingEntry(v *View) {
	if r.pendingEntry == "" {
		return
	}
	for _, o := range v.PendingOrders() {
		if o.ID == r.pendingEntry {
			return
		}
	}
	r.pendingEntry = ""
}

func (r *Runtime) submit(v *View, side book.Side, e *Entry) {
	id, err := v.Submit(broker.OrderRequest{
		Side:       side,
		Kind:       e.Kind,
		Units:      e.Units,
		Price:      e.Price,
		StopLoss:   e.StopLoss,
		TakeProfit: e.TakeProfit,
		TTLBars:    e.TTLBars,
	})
	if err != nil {
		// Typed refusals (insufficient funds and friends) are normal
		// outcomes, not faults; the strategy simply does not get its entry.
		return
	}
	r.pendingEntry = id
}

// guard converts a hook panic into an error without unwinding the driver.
func (r *Runtime) guard(fn func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("strategy %s on %s: panic: %v", r.strat.Name(), r.route, p)
		}
	}()
	fn()
	return nil
}
