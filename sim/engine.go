// Package sim is the clock/driver: it advances simulated (or real) time one
// candle at a time, fans updates out to routes in a fixed order, and runs the
// market-state → matching → hooks pipeline each step. Backtests through this
// driver are single-threaded and bit-for-bit reproducible; the live driver in
// live.go reuses the exact same step pipeline.
package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rustyeddy/tradesim/broker"
	"github.com/rustyeddy/tradesim/feed"
	"github.com/rustyeddy/tradesim/journal"
	"github.com/rustyeddy/tradesim/market"
	"github.com/rustyeddy/tradesim/metrics"
	"github.com/rustyeddy/tradesim/notify"
	"github.com/rustyeddy/tradesim/position"
	"github.com/rustyeddy/tradesim/strategy"
)

// Options tune run-level behavior.
type Options struct {
	// CloseOnEnd closes all open positions at the last mark when the
	// historical feed is exhausted, with reason "EndOfData".
	CloseOnEnd bool
	// AbortOnStrategyError turns a per-route strategy fault into a whole-run
	// abort. Off by default: the faulting route is halted and isolated, and
	// the other routes keep running.
	AbortOnStrategyError bool
}

// FeedError is the fatal diagnostic for a non-monotonic or duplicate candle.
// It aborts the run: skipping would corrupt the no-look-ahead guarantee.
type FeedError struct {
	Route  market.Route
	Candle market.Candle
	Prev   time.Time
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("feed: non-monotonic candle on %s: open %s not after %s",
		e.Route, e.Candle.OpenTime.UTC().Format(time.RFC3339),
		e.Prev.UTC().Format(time.RFC3339))
}

type routeRunner struct {
	route market.Route
	feed  feed.Feed
	rt    *strategy.Runtime

	next    *market.Candle
	last    time.Time
	hasLast bool
	done    bool
}

// Engine drives one run. Engines are single-use: build, add routes, run.
// Nothing is shared between engines, so batch callers (optimizers) may run
// many in parallel.
type Engine struct {
	runID string
	opts  Options

	state *market.State
	bkr   *broker.Broker

	routes []*routeRunner

	rec *metrics.Recorder
	jnl journal.Journal
	hub *notify.Hub
	exp *metrics.Exporter

	startBalance float64
	started      bool
	steps        int
}

func NewEngine(acct broker.Account, bcfg broker.Config, opts Options) *Engine {
	state := market.NewState()
	return &Engine{
		runID:        uuid.NewString(),
		opts:         opts,
		state:        state,
		bkr:          broker.New(acct, bcfg, state),
		rec:          metrics.NewRecorder(),
		jnl:          journal.Nop{},
		startBalance: acct.Balance,
	}
}

func (e *Engine) RunID() string               { return e.runID }
func (e *Engine) Broker() *broker.Broker      { return e.bkr }
func (e *Engine) Recorder() *metrics.Recorder { return e.rec }

// SetJournal installs a persistence backend. Must be called before the run.
func (e *Engine) SetJournal(j journal.Journal) { e.jnl = j }

// SetNotifier installs an async fill/close notifier.
func (e *Engine) SetNotifier(h *notify.Hub) { e.hub = h }

// SetExporter installs a Prometheus exporter (live runs).
func (e *Engine) SetExporter(x *metrics.Exporter) { e.exp = x }

// AddRoute binds a route to its feed and strategy instance. Routes advance
// in the order they were added; that order is part of the deterministic
// contract. No routes may be added once the run has started.
func (e *Engine) AddRoute(r market.Route, f feed.Feed, s strategy.Strategy) error {
	if e.started {
		return fmt.Errorf("add route %s: run already started", r)
	}
	if err := e.bkr.AddRoute(r); err != nil {
		return err
	}
	rt := strategy.NewRuntime(r, s, e.bkr)
	e.routes = append(e.routes, &routeRunner{route: r, feed: f, rt: rt})
	return nil
}

func (e *Engine) start() {
	if e.started {
		return
	}
	e.started = true
	for _, rr := range e.routes {
		rr.rt.Start()
	}
}

// Advance performs one historical step: pull the earliest due candle across
// all route feeds (ties broken by route declaration order) and run the full
// pipeline for that route. Returns ok=false when every feed is exhausted.
func (e *Engine) Advance(ctx context.Context) (bool, error) {
	e.start()

	// Prime one buffered candle per live route.
	for _, rr := range e.routes {
		if rr.done || rr.next != nil {
			continue
		}
		c, ok, err := rr.feed.Next(ctx)
		if err != nil {
			return false, fmt.Errorf("feed %s: %w", rr.route, err)
		}
		if !ok {
			rr.done = true
			continue
		}
		if err := rr.check(c); err != nil {
			return false, err
		}
		rr.next = &c
	}

	// Earliest open time wins; the first route declared wins ties.
	var pick *routeRunner
	for _, rr := range e.routes {
		if rr.next == nil {
			continue
		}
		if pick == nil || rr.next.OpenTime.Before(pick.next.OpenTime) {
			pick = rr
		}
	}
	if pick == nil {
		return false, nil
	}

	c := *pick.next
	pick.next = nil
	pick.last = c.OpenTime
	pick.hasLast = true

	if err := e.step(pick, c); err != nil {
		return false, err
	}
	return true, nil
}

func (rr *routeRunner) check(c market.Candle) error {
	if !rr.route.Matches(c) {
		return fmt.Errorf("feed %s: candle from wrong stream %s:%s:%s",
			rr.route, c.Exchange, c.Symbol, c.Timeframe)
	}
	if rr.hasLast && !c.OpenTime.After(rr.last) {
		return &FeedError{Route: rr.route, Candle: c, Prev: rr.last}
	}
	return nil
}

// step runs the fixed per-candle pipeline: market state update, order
// matching (fills settle and notify), equity snapshot, then the strategy's
// decision hooks. Hooks always observe post-settlement state.
func (e *Engine) step(rr *routeRunner, c market.Candle) error {
	e.steps++
	e.state.Set(c)

	events, err := e.bkr.MatchRoute(rr.route, c)
	if err != nil {
		return err
	}
	e.observe(rr, events)
	e.snapshotEquity(c.OpenTime)

	if err := rr.rt.Step(c, events); err != nil {
		return e.routeFault(rr, err)
	}
	return nil
}

// routeFault isolates a strategy fault to its route, or aborts the run when
// configured to.
func (e *Engine) routeFault(rr *routeRunner, err error) error {
	e.bkr.HaltRoute(rr.route)
	rr.done = true
	rr.next = nil
	_ = rr.feed.Close()
	if e.opts.AbortOnStrategyError {
		return err
	}
	return nil
}

func (e *Engine) observe(rr *routeRunner, events []broker.Event) {
	for _, ev := range events {
		if e.exp != nil {
			e.exp.ObserveFill(ev.Fill)
		}
		if e.hub != nil {
			e.hub.NotifyFill(ev.Fill)
		}
		if ev.Trade != nil {
			e.recordTrade(rr, *ev.Trade)
		}
	}
}

func (e *Engine) recordTrade(rr *routeRunner, tr position.Trade) {
	e.rec.ObserveTrade(tr)
	if e.exp != nil {
		e.exp.ObserveTrade(tr)
	}
	if e.hub != nil {
		e.hub.NotifyTrade(tr)
	}
	if err := e.jnl.RecordTrade(journal.TradeRecord{
		RunID:      e.runID,
		TradeID:    tr.ID,
		Exchange:   tr.Route.Exchange,
		Symbol:     tr.Route.Symbol,
		Timeframe:  tr.Route.Timeframe.String(),
		Strategy:   tr.Route.Strategy,
		Side:       tr.Side.String(),
		Units:      tr.Units,
		EntryPrice: tr.EntryPrice,
		ExitPrice:  tr.ExitPrice,
		EntryTime:  tr.EntryTime,
		ExitTime:   tr.ExitTime,
		PnL:        tr.PnL,
		Fees:       tr.Fees,
		Reason:     tr.Reason,
	}); err != nil {
		fmt.Printf("journal: record trade %s: %v\n", tr.ID, err)
	}
}

func (e *Engine) snapshotEquity(at time.Time) {
	acct := e.bkr.Account()
	eq := e.bkr.Equity()
	e.rec.ObserveEquity(metrics.EquityPoint{
		Time:     at,
		Balance:  acct.Balance,
		Reserved: acct.Reserved,
		Equity:   eq,
	})
	if e.exp != nil {
		e.exp.SetEquity(eq)
	}
	if err := e.jnl.RecordEquity(journal.EquitySnapshot{
		RunID:    e.runID,
		Time:     at,
		Balance:  acct.Balance,
		Reserved: acct.Reserved,
		Equity:   eq,
	}); err != nil {
		fmt.Printf("journal: record equity: %v\n", err)
	}
}

// Run executes the historical loop to exhaustion. Cancellation is observed
// only at step boundaries, so order and position state is always a complete,
// consistent snapshot when Run returns.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	e.start()
	for {
		select {
		case <-ctx.Done():
			return e.finish("backtest", ctx.Err())
		default:
		}

		ok, err := e.Advance(ctx)
		if err != nil {
			return e.finish("backtest", err)
		}
		if !ok {
			return e.finish("backtest", nil)
		}
	}
}

// finish applies the end-of-run policy: optionally close open positions at
// the last mark, cancel every remaining pending order (no order may outlive
// the run), terminate routes and persist the run summary.
func (e *Engine) finish(mode string, runErr error) (Report, error) {
	var last time.Time
	for _, rr := range e.routes {
		if rr.hasLast && rr.last.After(last) {
			last = rr.last
		}
	}
	if last.IsZero() {
		last = time.Now().UTC()
	}

	if e.opts.CloseOnEnd && runErr == nil {
		for _, rr := range e.routes {
			ev, err := e.bkr.ClosePosition(rr.route, last, "EndOfData")
			if err != nil || ev == nil {
				continue
			}
			e.observe(rr, []broker.Event{*ev})
			_ = rr.rt.Deliver([]broker.Event{*ev})
		}
		e.snapshotEquity(last)
	}
	e.bkr.CancelAllOrders()

	for _, rr := range e.routes {
		rr.rt.Terminate()
		_ = rr.feed.Close()
	}

	rep := e.report(mode)
	if err := e.jnl.RecordRun(journal.RunRecord{
		RunID:        e.runID,
		Created:      time.Now().UTC(),
		Mode:         mode,
		Start:        rep.Summary.Start,
		End:          rep.Summary.End,
		StartBalance: e.startBalance,
		EndBalance:   e.bkr.Account().Balance,
		Trades:       rep.Summary.Trades,
		Wins:         rep.Summary.Wins,
		Losses:       rep.Summary.Losses,
		Notes:        rep.Notes(),
	}); err != nil {
		fmt.Printf("journal: record run: %v\n", err)
	}
	return rep, runErr
}
