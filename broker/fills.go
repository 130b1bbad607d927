package broker

import (
	"fmt"
	"time"

	"github.com/rustyeddy/tradesim/book"
	"github.com/rustyeddy/tradesim/internal/id"
	"github.com/rustyeddy/tradesim/market"
	"github.com/rustyeddy/tradesim/position"
)

// MatchRoute runs order-book matching for the route against the newly closed
// candle and applies every resulting fill: margin moves, fees, position
// mutation, trade emission, bracket upkeep. All fills settle synchronously
// within this call; the returned events are delivered to the strategy before
// its next hook.
func (b *Broker) MatchRoute(r market.Route, c market.Candle) ([]Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rs, ok := b.byKey[r.String()]
	if !ok {
		return nil, fmt.Errorf("%s: %w", r, ErrUnknownRoute)
	}

	fills, expired := rs.book.Match(c)
	for _, o := range expired {
		b.releaseOrderLocked(o)
	}

	var events []Event
	for _, f := range fills {
		if ev, ok := b.applyFillLocked(rs, f); ok {
			events = append(events, ev)
		}
	}

	b.syncBracketsLocked(rs, c.OpenTime)
	return events, nil
}

func (b *Broker) applyFillLocked(rs *routeState, f book.Fill) (Event, bool) {
	// A protective fill can race its sibling within one bar: the first exit
	// flattens the position and the second has nothing left to reduce.
	// Reduce-only means exactly that, so the late fill is voided.
	if f.Tag != book.TagEntry {
		pos := rs.tracker.Position()
		if pos.Side == position.Flat || position.Side(f.Side) == pos.Side {
			return Event{}, false
		}
	}

	// Release the reservation made at submit time for the filled portion.
	if per, ok := b.perUnit[f.OrderID]; ok {
		release := min(per*f.Units, b.reserved[f.OrderID])
		b.reserved[f.OrderID] -= release
		b.acct.Reserved -= release
		b.acct.Balance += release
		if b.reserved[f.OrderID] <= 0 && !f.Partial {
			delete(b.reserved, f.OrderID)
			delete(b.perUnit, f.OrderID)
		}
	}

	fee := f.Units * f.Price * b.cfg.FeeRate

	unitsBefore := rs.tracker.Position().Units
	res := rs.tracker.ApplyFill(f.Side, f.Units, f.Price, f.Time, closeReason(f.Tag))

	// Fee splits between the closed and opened portions of the fill.
	closedUnits := 0.0
	if res.Closed != nil {
		closedUnits = res.Closed.Units
	}
	feePerUnit := fee / f.Units

	if res.Opened {
		openMargin := res.OpenedUnits * f.Price * b.cfg.MarginRate
		b.acct.Balance -= openMargin + feePerUnit*res.OpenedUnits
		b.acct.Reserved += openMargin
		rs.posMargin += openMargin
		rs.tracker.AddEntryFee(feePerUnit * res.OpenedUnits)
	}

	ev := Event{Fill: f, Opened: res.Opened, OpenedUnits: res.OpenedUnits}

	if res.Closed != nil {
		// Release the margin share held against the closed units and
		// realize PnL and the exit fee into the balance.
		share := 0.0
		if unitsBefore > 0 {
			share = rs.posMargin * closedUnits / unitsBefore
		}
		rs.posMargin -= share
		b.acct.Reserved -= share

		exitFee := feePerUnit * closedUnits
		b.acct.Balance += share + res.Closed.PnL - exitFee

		res.Closed.ID = id.New()
		res.Closed.Fees += exitFee
		ev.Trade = res.Closed
	}

	// Arm brackets requested with the entry order.
	if f.Tag == book.TagEntry && res.Opened {
		if br, ok := b.brackets[f.OrderID]; ok {
			rs.armed = br
		}
	}
	if !f.Partial {
		delete(b.brackets, f.OrderID)
	}
	return ev, true
}

// closeReason names the exit that produced a trade record.
func closeReason(t book.Tag) string {
	switch t {
	case book.TagStopLoss:
		return "StopLoss"
	case book.TagTakeProfit:
		return "TakeProfit"
	}
	return "Reversal"
}

// syncBracketsLocked keeps the route's protective orders consistent with its
// position: flat cancels them, an open position gets reduce-only stop/limit
// orders sized to the full position at the armed levels. Resizing is modeled
// as cancel-and-replace, matching the order immutability rule. Brackets added
// here were not part of this bar's matching, so they become active on the
// next bar.
func (b *Broker) syncBracketsLocked(rs *routeState, now time.Time) {
	pos := rs.tracker.Position()

	if pos.Side == position.Flat {
		rs.armed = bracket{}
	}

	exitSide := book.Sell
	if pos.Side == position.Short {
		exitSide = book.Buy
	}

	rs.slOrderID = b.syncProtectiveLocked(rs, rs.slOrderID, book.TagStopLoss,
		book.Stop, exitSide, rs.armed.stopLoss, pos.Units, now)
	rs.tpOrderID = b.syncProtectiveLocked(rs, rs.tpOrderID, book.TagTakeProfit,
		book.Limit, exitSide, rs.armed.takeProfit, pos.Units, now)
}

func (b *Broker) syncProtectiveLocked(rs *routeState, cur string, tag book.Tag,
	kind book.Kind, side book.Side, level, units float64, now time.Time) string {

	var existing *book.Order
	if cur != "" {
		if o, err := rs.book.Get(cur); err == nil && o.Status == book.Pending {
			existing = o
		}
	}

	want := level > 0 && units > 0
	if existing != nil {
		if want && existing.Price == level && existing.Units == units && existing.Side == side {
			return cur
		}
		_, _ = rs.book.Cancel(cur)
	}
	if !want {
		return ""
	}

	o := &book.Order{
		ID:          id.New(),
		Route:       rs.route,
		Side:        side,
		Kind:        kind,
		Tag:         tag,
		Units:       units,
		Price:       level,
		SubmittedAt: now,
	}
	rs.book.Add(o)
	b.orderRt[o.ID] = rs
	return o.ID
}

// ClosePosition closes the route's open position at the current mark price,
// as a synthetic taker fill (used for end-of-run close-out). Returns the
// close event, or nil when the route is already flat.
func (b *Broker) ClosePosition(r market.Route, at time.Time, reason string) (*Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rs, ok := b.byKey[r.String()]
	if !ok {
		return nil, fmt.Errorf("%s: %w", r, ErrUnknownRoute)
	}
	pos := rs.tracker.Position()
	if pos.Side == position.Flat {
		return nil, nil
	}
	mark, err := b.state.Mark(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r, ErrNoPrice)
	}

	side := book.Sell
	if pos.Side == position.Short {
		side = book.Buy
	}

	ev, ok := b.applyFillLocked(rs, book.Fill{
		OrderID: id.New(),
		Route:   r,
		Side:    side,
		Tag:     book.TagStopLoss, // reduce-only path; reason overrides below
		Units:   pos.Units,
		Price:   mark,
		Time:    at,
	})
	if !ok {
		return nil, nil
	}
	if ev.Trade != nil {
		ev.Trade.Reason = reason
	}
	b.syncBracketsLocked(rs, at)
	return &ev, nil
}

// HaltRoute deactivates a route and cancels its pending orders so no order
// outlives its route. Further submissions are refused with ErrRouteHalted.
func (b *Broker) HaltRoute(r market.Route) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rs, ok := b.byKey[r.String()]
	if !ok {
		return
	}
	rs.active = false
	for _, o := range rs.book.CancelAll() {
		b.releaseOrderLocked(o)
	}
	rs.slOrderID, rs.tpOrderID = "", ""
}

// CancelAllOrders cancels every pending order on every route (end of run).
func (b *Broker) CancelAllOrders() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.routes {
		rs := b.byKey[r.String()]
		for _, o := range rs.book.CancelAll() {
			b.releaseOrderLocked(o)
		}
		rs.slOrderID, rs.tpOrderID = "", ""
	}
}

// Equity marks every open position against current market state and returns
// balance + reserved + unrealized PnL. Routes are walked in declaration
// order; a route with an open position but no mark yet contributes zero.
func (b *Broker) Equity() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	eq := b.acct.Balance + b.acct.Reserved
	for _, r := range b.routes {
		rs := b.byKey[r.String()]
		pos := rs.tracker.Position()
		if pos.Side == position.Flat {
			continue
		}
		if mark, err := b.state.Mark(r); err == nil {
			eq += pos.UnrealizedPnL(mark)
		}
	}
	return eq
}

// UnrealizedPnL marks one route's position against current state.
func (b *Broker) UnrealizedPnL(r market.Route) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	rs, ok := b.byKey[r.String()]
	if !ok {
		return 0
	}
	pos := rs.tracker.Position()
	if pos.Side == position.Flat {
		return 0
	}
	mark, err := b.state.Mark(r)
	if err != nil {
		return 0
	}
	return pos.UnrealizedPnL(mark)
}
