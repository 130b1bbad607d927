// Package position tracks the single position each route holds and produces
// the immutable Trade records emitted on every close event. Positions are
// mutated exclusively through fills applied by the broker.
package position

import (
	"time"

	"github.com/rustyeddy/tradesim/book"
	"github.com/rustyeddy/tradesim/market"
)

// Side of a position. Flat is an explicit state, not an absence: a route
// always has exactly one Position.
type Side int8

const (
	Flat  Side = 0
	Long  Side = +1
	Short Side = -1
)

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	}
	return "flat"
}

// Position is a route's current exposure. Units is never negative; side and
// units are always consistent (Flat iff Units == 0).
type Position struct {
	Route      market.Route
	Side       Side
	Units      float64
	EntryPrice float64
	OpenedAt   time.Time
}

// Notional returns the position's size in quote currency at the mark.
func (p Position) Notional(mark float64) float64 {
	return p.Units * mark
}

// UnrealizedPnL marks the open position against the given price.
func (p Position) UnrealizedPnL(mark float64) float64 {
	if p.Side == Flat {
		return 0
	}
	return float64(p.Side) * (mark - p.EntryPrice) * p.Units
}

// Trade is the closed-position record: created exactly once per full or
// partial close, immutable once recorded, consumed by the metrics recorder
// and the journal.
type Trade struct {
	ID         string
	Route      market.Route
	Side       Side
	Units      float64
	EntryPrice float64
	ExitPrice  float64
	EntryTime  time.Time
	ExitTime   time.Time
	PnL        float64 // gross, quote currency
	Fees       float64 // entry share + exit fee
	Reason     string
}

// Tracker applies fills to one route's position.
type Tracker struct {
	pos       Position
	allowFlip bool

	// Entry fees accumulate on the open position and are attributed to
	// Trades proportionally as the position closes.
	entryFees float64
}

func NewTracker(route market.Route, allowFlip bool) *Tracker {
	return &Tracker{
		pos:       Position{Route: route, Side: Flat},
		allowFlip: allowFlip,
	}
}

func (t *Tracker) Position() Position { return t.pos }

// Result reports what one fill did to the position.
type Result struct {
	// Opened is true when the fill opened or added to a position.
	Opened      bool
	OpenedUnits float64
	// Closed is non-nil when the fill reduced or closed the position; fees
	// and ID are stamped by the broker.
	Closed *Trade
	// DiscardedUnits is the remainder of an oversized opposite-direction
	// fill when flipping is disabled.
	DiscardedUnits float64
}

// ApplyFill mutates the position: opens from flat, adds with weighted-average
// entry, reduces/closes emitting a Trade, or flips when allowed. An
// opposite-direction fill larger than the open quantity always closes the
// existing position first; the remainder opens the reverse position only when
// flipping is configured.
func (t *Tracker) ApplyFill(side book.Side, units, price float64, at time.Time, reason string) Result {
	if units <= 0 {
		return Result{}
	}
	dir := Side(side)

	switch {
	case t.pos.Side == Flat:
		t.open(dir, units, price, at)
		return Result{Opened: true, OpenedUnits: units}

	case t.pos.Side == dir:
		t.add(units, price)
		return Result{Opened: true, OpenedUnits: units}

	default:
		return t.reduce(dir, units, price, at, reason)
	}
}

// AddEntryFee records a fee charged on an entry fill so later Trades can
// carry their share.
func (t *Tracker) AddEntryFee(fee float64) {
	t.entryFees += fee
}

func (t *Tracker) open(dir Side, units, price float64, at time.Time) {
	t.pos.Side = dir
	t.pos.Units = units
	t.pos.EntryPrice = price
	t.pos.OpenedAt = at
	t.entryFees = 0
}

func (t *Tracker) add(units, price float64) {
	total := t.pos.Units + units
	t.pos.EntryPrice = (t.pos.EntryPrice*t.pos.Units + price*units) / total
	t.pos.Units = total
}

func (t *Tracker) reduce(dir Side, units, price float64, at time.Time, reason string) Result {
	closed := min(units, t.pos.Units)
	entryShare := 0.0
	if t.pos.Units > 0 {
		entryShare = t.entryFees * closed / t.pos.Units
	}

	tr := &Trade{
		Route:      t.pos.Route,
		Side:       t.pos.Side,
		Units:      closed,
		EntryPrice: t.pos.EntryPrice,
		ExitPrice:  price,
		EntryTime:  t.pos.OpenedAt,
		ExitTime:   at,
		PnL:        float64(t.pos.Side) * (price - t.pos.EntryPrice) * closed,
		Fees:       entryShare,
		Reason:     reason,
	}

	t.pos.Units -= closed
	t.entryFees -= entryShare
	res := Result{Closed: tr}

	if t.pos.Units == 0 {
		t.pos.Side = Flat
		t.pos.EntryPrice = 0
		t.pos.OpenedAt = time.Time{}
		t.entryFees = 0

		remainder := units - closed
		if remainder > 0 {
			if t.allowFlip {
				t.open(dir, remainder, price, at)
				res.Opened = true
				res.OpenedUnits = remainder
			} else {
				res.DiscardedUnits = remainder
			}
		}
	}
	return res
}
