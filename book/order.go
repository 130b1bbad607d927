package book

import (
	"time"

	"github.com/rustyeddy/tradesim/market"
)

// Side is the order direction: +1 buy, -1 sell.
type Side int8

const (
	Buy  Side = +1
	Sell Side = -1
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Kind selects the fill model for an order.
type Kind int8

const (
	Market Kind = iota
	Limit
	Stop
)

func (k Kind) String() string {
	switch k {
	case Market:
		return "market"
	case Limit:
		return "limit"
	case Stop:
		return "stop"
	}
	return "unknown"
}

// Status is the order lifecycle state. Every order ends in exactly one of the
// terminal states (Filled, Canceled, Expired).
type Status int8

const (
	Pending Status = iota
	Filled
	Canceled
	Expired
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Filled:
		return "filled"
	case Canceled:
		return "canceled"
	case Expired:
		return "expired"
	}
	return "unknown"
}

// Tag records why an order exists. Protective exits (stop-loss/take-profit)
// are reduce-only and participate in the same-bar tie-break.
type Tag int8

const (
	TagEntry Tag = iota
	TagStopLoss
	TagTakeProfit
)

func (t Tag) String() string {
	switch t {
	case TagEntry:
		return "entry"
	case TagStopLoss:
		return "stop-loss"
	case TagTakeProfit:
		return "take-profit"
	}
	return "unknown"
}

// Order is one pending instruction against a route's stream. Price and Kind
// are immutable after creation; amend is modeled as cancel + new order.
type Order struct {
	ID    string
	Route market.Route
	Side  Side
	Kind  Kind
	Tag   Tag

	// Units is the remaining unfilled quantity. Partial fills reduce it in
	// place; the residual keeps the same ID.
	Units float64
	// Price is the limit or stop trigger price. Zero for market orders.
	Price float64

	// TTLBars expires the order after matching against this many bars
	// without completing. Zero means good-till-canceled.
	TTLBars int

	Status      Status
	SubmittedAt time.Time
	FilledUnits float64

	seq      int // submission order, the deterministic secondary sort key
	barsSeen int
}

// Reduce reports whether the order only ever shrinks a position.
func (o *Order) Reduce() bool {
	return o.Tag != TagEntry
}

// Fill is the event converting (part of) a pending order into a realized
// quantity and price.
type Fill struct {
	OrderID string
	Route   market.Route
	Side    Side
	Tag     Tag
	Units   float64
	Price   float64
	Time    time.Time
	Partial bool
}
