// Package book holds the simulated per-route order book: the set of pending
// orders and the matcher that converts them into fills against each closed
// candle. Matching is deliberately boring — fixed trigger rules, a fixed
// documented tie-break, submission order everywhere else — so that repeated
// runs over the same data produce an identical fill sequence.
package book

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rustyeddy/tradesim/market"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrOrderNotPending = errors.New("order is not pending")
)

// TieBreak decides which protective exit wins when a candle's range covers
// both the stop-loss and the take-profit of the same position. OHLC data
// cannot order intrabar trades, so the rule is an explicit configured
// assumption, not an inference.
type TieBreak int8

const (
	// StopFirst assumes the stop-loss traded first (pessimistic default).
	StopFirst TieBreak = iota
	// TakeFirst assumes the take-profit traded first.
	TakeFirst
)

func (tb TieBreak) String() string {
	if tb == TakeFirst {
		return "take-first"
	}
	return "stop-first"
}

func ParseTieBreak(s string) (TieBreak, error) {
	switch s {
	case "", "stop-first":
		return StopFirst, nil
	case "take-first":
		return TakeFirst, nil
	}
	return 0, fmt.Errorf("unknown tie-break %q", s)
}

// Config tunes the fill model.
type Config struct {
	TieBreak TieBreak
	// Slippage is a price fraction applied against the taker on market and
	// stop fills (buys pay more, sells receive less). Limit fills are never
	// slipped.
	Slippage float64
	// MaxUnitsPerCandle caps how many units a single order may fill per
	// candle. Zero disables the cap. Orders over the cap fill partially and
	// the residual stays pending under the same ID.
	MaxUnitsPerCandle float64
}

// Book is the pending-order collection for one route.
type Book struct {
	route   market.Route
	cfg     Config
	orders  []*Order
	byID    map[string]*Order
	nextSeq int
}

func New(route market.Route, cfg Config) *Book {
	return &Book{
		route: route,
		cfg:   cfg,
		byID:  make(map[string]*Order),
	}
}

func (b *Book) Route() market.Route { return b.route }

// Add registers a pending order. The caller (the broker) has already
// validated and reserved for it.
func (b *Book) Add(o *Order) {
	o.Status = Pending
	o.seq = b.nextSeq
	b.nextSeq++
	b.orders = append(b.orders, o)
	b.byID[o.ID] = o
}

func (b *Book) Get(id string) (*Order, error) {
	o, ok := b.byID[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// Cancel transitions a pending order to canceled. Canceling an order that
// already reached a terminal state is a conflict, never a silent no-op.
func (b *Book) Cancel(id string) (*Order, error) {
	o, ok := b.byID[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if o.Status != Pending {
		return nil, fmt.Errorf("cancel %s (%s): %w", id, o.Status, ErrOrderNotPending)
	}
	o.Status = Canceled
	b.removePending(id)
	return o, nil
}

// CancelAll cancels every pending order, returning them. Used at run end and
// when a route halts, so no order outlives its route.
func (b *Book) CancelAll() []*Order {
	var out []*Order
	for _, o := range b.orders {
		if o.Status != Pending {
			continue
		}
		o.Status = Canceled
		out = append(out, o)
	}
	b.orders = b.orders[:0]
	return out
}

// Pending returns the live orders in submission order.
func (b *Book) Pending() []*Order {
	out := make([]*Order, len(b.orders))
	copy(out, b.orders)
	return out
}

// removePending takes an order off the live list. Terminal orders stay in
// byID so a later Cancel or Get reports their final status instead of
// pretending they never existed.
func (b *Book) removePending(id string) {
	for i, o := range b.orders {
		if o.ID == id {
			b.orders = append(b.orders[:i], b.orders[i+1:]...)
			return
		}
	}
}

// Match evaluates every pending order against the newly closed candle and
// returns the fills in deterministic order, plus any orders that expired
// this bar. All fills are synchronous: nothing is deferred once the candle
// has closed.
//
// Fill prices:
//   - market: candle open (the first price after submission), plus slippage
//   - limit:  the better of limit and open (open if the bar gapped through)
//   - stop:   trigger price plus slippage (open if the bar gapped through)
//
// Fill order: market orders first (they trade at the open), then protective
// exits in tie-break order, then resting entry orders; submission order
// within each class.
func (b *Book) Match(c market.Candle) (fills []Fill, expired []*Order) {
	var due []*Order
	for _, o := range b.orders {
		o.barsSeen++
		if o.TTLBars > 0 && o.barsSeen > o.TTLBars {
			o.Status = Expired
			expired = append(expired, o)
			continue
		}
		if b.triggered(o, c) {
			due = append(due, o)
		}
	}
	for _, o := range expired {
		b.removePending(o.ID)
	}

	sort.SliceStable(due, func(i, j int) bool {
		ri, rj := b.rank(due[i]), b.rank(due[j])
		if ri != rj {
			return ri < rj
		}
		return due[i].seq < due[j].seq
	})

	for _, o := range due {
		units := o.Units
		partial := false
		if b.cfg.MaxUnitsPerCandle > 0 && units > b.cfg.MaxUnitsPerCandle {
			units = b.cfg.MaxUnitsPerCandle
			partial = true
		}

		price := b.fillPrice(o, c)

		o.Units -= units
		o.FilledUnits += units
		if !partial {
			o.Status = Filled
			b.removePending(o.ID)
		}

		fills = append(fills, Fill{
			OrderID: o.ID,
			Route:   o.Route,
			Side:    o.Side,
			Tag:     o.Tag,
			Units:   units,
			Price:   price,
			Time:    c.OpenTime,
			Partial: partial,
		})
	}
	return fills, expired
}

func (b *Book) rank(o *Order) int {
	if o.Kind == Market {
		return 0
	}
	switch o.Tag {
	case TagStopLoss:
		if b.cfg.TieBreak == StopFirst {
			return 1
		}
		return 2
	case TagTakeProfit:
		if b.cfg.TieBreak == TakeFirst {
			return 1
		}
		return 2
	}
	return 3
}

func (b *Book) triggered(o *Order, c market.Candle) bool {
	switch o.Kind {
	case Market:
		return true
	case Limit:
		// Buy limit needs price at or below the limit, sell limit at or above.
		if o.Side == Buy {
			return c.Low <= o.Price
		}
		return c.High >= o.Price
	case Stop:
		// Buy stop triggers on price rising to the trigger, sell stop on
		// price falling to it.
		if o.Side == Buy {
			return c.High >= o.Price
		}
		return c.Low <= o.Price
	}
	return false
}

func (b *Book) fillPrice(o *Order, c market.Candle) float64 {
	switch o.Kind {
	case Limit:
		// Better of limit and open; no slippage on resting orders.
		if o.Side == Buy {
			return min(c.Open, o.Price)
		}
		return max(c.Open, o.Price)
	case Stop:
		px := o.Price
		// Gap through the trigger fills at the open.
		if o.Side == Buy && c.Open > px {
			px = c.Open
		}
		if o.Side == Sell && c.Open < px {
			px = c.Open
		}
		return b.slip(px, o.Side)
	default:
		return b.slip(c.Open, o.Side)
	}
}

func (b *Book) slip(px float64, side Side) float64 {
	if b.cfg.Slippage == 0 {
		return px
	}
	return px * (1 + float64(side)*b.cfg.Slippage)
}
