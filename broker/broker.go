// Package broker mediates between strategies and the rest of the engine. It
// owns the shared account (the one piece of cross-route mutable state),
// validates and registers orders, applies fills to position trackers, and
// reports lifecycle events back to the driver. Submit, cancel and fill
// application all serialize on one mutex so two routes can never overcommit
// the same balance: a lost capital race is a rejection, never an overcommit.
package broker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/tradesim/book"
	"github.com/rustyeddy/tradesim/internal/id"
	"github.com/rustyeddy/tradesim/market"
	"github.com/rustyeddy/tradesim/position"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidUnits      = errors.New("units must be positive")
	ErrInvalidPrice      = errors.New("price must be positive")
	ErrUnknownRoute      = errors.New("unknown route")
	ErrRouteHalted       = errors.New("route halted")
	ErrNoPrice           = errors.New("no price for route")
	ErrDuplicateRoute    = errors.New("route already registered")
)

// Account is the capital pool shared by every route in a run. Balance is the
// available portion; Reserved is margin held for pending entry orders and
// open positions.
type Account struct {
	Currency string
	Balance  float64
	Reserved float64
}

type Config struct {
	// MarginRate is the margin required as a fraction of notional.
	// 1.0 means fully funded (no leverage), 0.1 means 10x.
	MarginRate float64
	// FeeRate is charged per fill on the filled notional.
	FeeRate float64
	// AllowFlip lets an oversized opposite-direction fill open the reverse
	// position after closing the current one. Off by default.
	AllowFlip bool

	Book book.Config
}

// OrderRequest is what a strategy submits. StopLoss and TakeProfit arm
// protective reduce-only orders once the entry fills (zero disables).
type OrderRequest struct {
	Route market.Route
	Side  book.Side
	Kind  book.Kind
	Units float64
	// Price is the limit or stop trigger for non-market entries.
	Price      float64
	StopLoss   float64
	TakeProfit float64
	TTLBars    int
}

// Event reports one fill and its position consequences to the driver, which
// delivers it to the owning strategy before its next decision hook.
type Event struct {
	Fill book.Fill
	// Opened is true when the fill opened or added to the route's position.
	Opened      bool
	OpenedUnits float64
	// Trade is set when the fill reduced or closed the position.
	Trade *position.Trade
}

type bracket struct {
	stopLoss   float64
	takeProfit float64
}

type routeState struct {
	route   market.Route
	active  bool
	book    *book.Book
	tracker *position.Tracker

	// Margin currently held against the open position.
	posMargin float64
	// Armed protective levels for the current position.
	armed     bracket
	slOrderID string
	tpOrderID string
}

// Broker mediates all order flow for a run.
type Broker struct {
	mu  sync.Mutex
	cfg Config

	acct  Account
	state *market.State

	routes  []market.Route
	byKey   map[string]*routeState
	orderRt map[string]*routeState // order ID -> owning route

	reserved map[string]float64 // order ID -> remaining reserved margin
	perUnit  map[string]float64 // order ID -> reserved margin per unit
	brackets map[string]bracket // entry order ID -> armed levels on fill
}

func New(acct Account, cfg Config, state *market.State) *Broker {
	if cfg.MarginRate <= 0 {
		cfg.MarginRate = 1.0
	}
	return &Broker{
		cfg:      cfg,
		acct:     acct,
		state:    state,
		byKey:    make(map[string]*routeState),
		orderRt:  make(map[string]*routeState),
		reserved: make(map[string]float64),
		perUnit:  make(map[string]float64),
		brackets: make(map[string]bracket),
	}
}

// AddRoute registers a route before the run starts. Routes are fixed for a
// run; there is no mid-run add or remove.
func (b *Broker) AddRoute(r market.Route) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.byKey[r.String()]; ok {
		return fmt.Errorf("%s: %w", r, ErrDuplicateRoute)
	}
	b.routes = append(b.routes, r)
	b.byKey[r.String()] = &routeState{
		route:   r,
		active:  true,
		book:    book.New(r, b.cfg.Book),
		tracker: position.NewTracker(r, b.cfg.AllowFlip),
	}
	return nil
}

func (b *Broker) Account() Account {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acct
}

func (b *Broker) Position(r market.Route) position.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rs, ok := b.byKey[r.String()]; ok {
		return rs.tracker.Position()
	}
	return position.Position{Route: r, Side: position.Flat}
}

// PendingOrders returns snapshots of the route's live orders in submission
// order.
func (b *Broker) PendingOrders(r market.Route) []book.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	rs, ok := b.byKey[r.String()]
	if !ok {
		return nil
	}
	var out []book.Order
	for _, o := range rs.book.Pending() {
		out = append(out, *o)
	}
	return out
}

// Submit validates and registers an order atomically: on any refusal nothing
// is mutated; on acceptance the margin reservation and the pending order
// appear together.
func (b *Broker) Submit(req OrderRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rs, ok := b.byKey[req.Route.String()]
	if !ok {
		return "", fmt.Errorf("%s: %w", req.Route, ErrUnknownRoute)
	}
	if !rs.active {
		return "", fmt.Errorf("%s: %w", req.Route, ErrRouteHalted)
	}
	if req.Units <= 0 {
		return "", fmt.Errorf("units %v: %w", req.Units, ErrInvalidUnits)
	}

	ref := req.Price
	if req.Kind == book.Market {
		mark, err := b.state.Mark(req.Route)
		if err != nil {
			return "", fmt.Errorf("%s: %w", req.Route, ErrNoPrice)
		}
		ref = mark
	} else if req.Price <= 0 {
		return "", fmt.Errorf("price %v: %w", req.Price, ErrInvalidPrice)
	}

	// Affordability covers margin plus the entry fee the fill will charge,
	// estimated at the reference price. Only the margin is reserved; the fee
	// is taken when the fill actually happens.
	required := req.Units * ref * b.cfg.MarginRate
	estFee := req.Units * ref * b.cfg.FeeRate
	if required+estFee > b.acct.Balance {
		return "", fmt.Errorf("need %.2f, available %.2f: %w",
			required+estFee, b.acct.Balance, ErrInsufficientFunds)
	}

	o := &book.Order{
		ID:          id.New(),
		Route:       req.Route,
		Side:        req.Side,
		Kind:        req.Kind,
		Tag:         book.TagEntry,
		Units:       req.Units,
		Price:       req.Price,
		TTLBars:     req.TTLBars,
		SubmittedAt: time.Now().UTC(),
	}

	b.acct.Balance -= required
	b.acct.Reserved += required
	b.reserved[o.ID] = required
	b.perUnit[o.ID] = required / req.Units
	if req.StopLoss > 0 || req.TakeProfit > 0 {
		b.brackets[o.ID] = bracket{stopLoss: req.StopLoss, takeProfit: req.TakeProfit}
	}

	rs.book.Add(o)
	b.orderRt[o.ID] = rs
	return o.ID, nil
}

// Cancel transitions a pending order to canceled and releases its
// reservation. Canceling an order that already filled (or otherwise reached
// a terminal state) returns a conflict error so strategy logic cannot race
// past a just-filled order unnoticed.
func (b *Broker) Cancel(orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelLocked(orderID)
}

func (b *Broker) cancelLocked(orderID string) error {
	rs, ok := b.orderRt[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, book.ErrOrderNotFound)
	}
	o, err := rs.book.Cancel(orderID)
	if err != nil {
		return err
	}
	b.releaseOrderLocked(o)
	return nil
}

// releaseOrderLocked returns an order's remaining reservation to the balance.
// The orderRt entry is kept so a later Cancel of the terminal order reports
// the conflict rather than "not found".
func (b *Broker) releaseOrderLocked(o *book.Order) {
	if held := b.reserved[o.ID]; held > 0 {
		b.acct.Reserved -= held
		b.acct.Balance += held
	}
	delete(b.reserved, o.ID)
	delete(b.perUnit, o.ID)
	delete(b.brackets, o.ID)
}
