package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/tradesim/book"
	"github.com/rustyeddy/tradesim/broker"
	"github.com/rustyeddy/tradesim/market"
	"github.com/rustyeddy/tradesim/position"
)

var testRoute = market.Route{
	Exchange: "binance", Symbol: "BTCUSDT", Timeframe: market.H1, Strategy: "stub",
}

// stub is a scriptable strategy for runtime tests.
type stub struct {
	long  func(v *View) *Entry
	short func(v *View) *Entry

	longCalls  int
	shortCalls int
	entries    []book.Fill
	closes     []position.Trade
}

func (s *stub) Name() string { return "stub" }
func (s *stub) Reset()       {}

func (s *stub) LongSignal(v *View) *Entry {
	s.longCalls++
	if s.long == nil {
		return nil
	}
	return s.long(v)
}

func (s *stub) ShortSignal(v *View) *Entry {
	s.shortCalls++
	if s.short == nil {
		return nil
	}
	return s.short(v)
}

func (s *stub) OnLongEntry(v *View, f book.Fill)           { s.entries = append(s.entries, f) }
func (s *stub) OnShortEntry(v *View, f book.Fill)          { s.entries = append(s.entries, f) }
func (s *stub) OnPositionClose(v *View, tr position.Trade) { s.closes = append(s.closes, tr) }
func (s *stub) Hyperparams() map[string]any                { return nil }

type harness struct {
	state *market.State
	bkr   *broker.Broker
	rt    *Runtime
	t     *testing.T
	open  time.Time
}

func newHarness(t *testing.T, s Strategy, balance float64) *harness {
	t.Helper()
	state := market.NewState()
	bkr := broker.New(broker.Account{Currency: "USD", Balance: balance}, broker.Config{}, state)
	assert.NoError(t, bkr.AddRoute(testRoute))
	rt := NewRuntime(testRoute, s, bkr)
	rt.Start()
	return &harness{
		state: state,
		bkr:   bkr,
		rt:    rt,
		t:     t,
		open:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

// step runs one driver iteration: state update, matching, then the hooks.
func (h *harness) step(open, high, low, close float64) error {
	h.t.Helper()
	c := market.Candle{
		Exchange:  testRoute.Exchange,
		Symbol:    testRoute.Symbol,
		Timeframe: testRoute.Timeframe,
		OpenTime:  h.open,
		Open:      open, High: high, Low: low, Close: close,
	}
	h.open = h.open.Add(time.Hour)

	h.state.Set(c)
	events, err := h.bkr.MatchRoute(testRoute, c)
	assert.NoError(h.t, err)
	return h.rt.Step(c, events)
}

func TestMarketEntryFillsNextBarOpen(t *testing.T) {
	s := &stub{}
	fired := false
	s.long = func(v *View) *Entry {
		if fired {
			return nil
		}
		fired = true
		return &Entry{Units: 10}
	}
	h := newHarness(t, s, 10_000)

	assert.NoError(t, h.step(100, 101, 99, 100))
	// Submitted during bar 1, nothing filled yet.
	assert.Empty(t, s.entries)
	assert.Equal(t, position.Flat, h.bkr.Position(testRoute).Side)

	assert.NoError(t, h.step(102, 103, 101, 102))
	// Fill arrives at bar 2's open, never at bar 1's close.
	if assert.Len(t, s.entries, 1) {
		assert.Equal(t, 102.0, s.entries[0].Price)
		assert.Equal(t, book.Buy, s.entries[0].Side)
	}
	assert.Equal(t, position.Long, h.bkr.Position(testRoute).Side)
}

func TestLongConsultedBeforeShort(t *testing.T) {
	s := &stub{}
	s.long = func(v *View) *Entry { return &Entry{Units: 1} }
	s.short = func(v *View) *Entry { return &Entry{Units: 1} }
	h := newHarness(t, s, 10_000)

	assert.NoError(t, h.step(100, 101, 99, 100))
	assert.Equal(t, 1, s.longCalls)
	// Long accepted; short is never consulted on that bar.
	assert.Equal(t, 0, s.shortCalls)
}

func TestNoSignalsWhileEntryWorking(t *testing.T) {
	s := &stub{}
	s.long = func(v *View) *Entry {
		// Resting limit far below the market: it will never trigger.
		return &Entry{Units: 1, Kind: book.Limit, Price: 10}
	}
	h := newHarness(t, s, 10_000)

	assert.NoError(t, h.step(100, 101, 99, 100))
	assert.NoError(t, h.step(100, 101, 99, 100))
	assert.NoError(t, h.step(100, 101, 99, 100))
	assert.Equal(t, 1, s.longCalls)
	assert.Len(t, h.bkr.PendingOrders(testRoute), 1)
}

func TestSignalsResumeAfterEntryExpires(t *testing.T) {
	s := &stub{}
	s.long = func(v *View) *Entry {
		return &Entry{Units: 1, Kind: book.Limit, Price: 10, TTLBars: 1}
	}
	h := newHarness(t, s, 10_000)

	assert.NoError(t, h.step(100, 101, 99, 100)) // submits
	assert.NoError(t, h.step(100, 101, 99, 100)) // still pending, no signal
	assert.NoError(t, h.step(100, 101, 99, 100)) // expired before this bar, signal again
	assert.Equal(t, 2, s.longCalls)
}

func TestOnPositionCloseDelivered(t *testing.T) {
	s := &stub{}
	fired := false
	s.long = func(v *View) *Entry {
		if fired {
			return nil
		}
		fired = true
		return &Entry{Units: 10, StopLoss: 95}
	}
	h := newHarness(t, s, 10_000)

	assert.NoError(t, h.step(100, 101, 99, 100)) // submit
	assert.NoError(t, h.step(100, 101, 99, 100)) // entry fills, stop armed
	assert.NoError(t, h.step(96, 97, 94, 95))    // stop trades

	if assert.Len(t, s.closes, 1) {
		assert.Equal(t, "StopLoss", s.closes[0].Reason)
		assert.InDelta(t, -50.0, s.closes[0].PnL, 1e-9)
	}
	assert.Equal(t, position.Flat, h.bkr.Position(testRoute).Side)
}

func TestPanicIsolatesRoute(t *testing.T) {
	s := &stub{}
	s.long = func(v *View) *Entry { panic("boom") }
	h := newHarness(t, s, 10_000)

	err := h.step(100, 101, 99, 100)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, Errored, h.rt.State())
	assert.Equal(t, err, h.rt.Err())

	// An errored route never steps again.
	calls := s.longCalls
	assert.Error(t, h.step(100, 101, 99, 100))
	assert.Equal(t, calls, s.longCalls)
}

func TestTypedRefusalIsNotAFault(t *testing.T) {
	s := &stub{}
	s.long = func(v *View) *Entry { return &Entry{Units: 1_000_000} }
	h := newHarness(t, s, 100)

	assert.NoError(t, h.step(100, 101, 99, 100))
	assert.Equal(t, Active, h.rt.State())
	assert.Empty(t, h.bkr.PendingOrders(testRoute))
}

func TestViewWindowEndsAtCurrentBar(t *testing.T) {
	var lastClose float64
	var window []market.Candle
	s := &stub{}
	s.long = func(v *View) *Entry {
		lastClose = v.Candle().Close
		window = v.Candles(2)
		return nil
	}
	h := newHarness(t, s, 10_000)

	assert.NoError(t, h.step(100, 101, 99, 100))
	assert.Equal(t, 100.0, lastClose)
	assert.Len(t, window, 1)

	assert.NoError(t, h.step(101, 102, 100, 101))
	assert.NoError(t, h.step(102, 103, 101, 102))
	assert.Equal(t, 102.0, lastClose)
	if assert.Len(t, window, 2) {
		assert.Equal(t, 101.0, window[0].Close)
		assert.Equal(t, 102.0, window[1].Close)
	}
}

func TestTerminate(t *testing.T) {
	h := newHarness(t, &stub{}, 10_000)
	assert.Equal(t, Active, h.rt.State())
	h.rt.Terminate()
	assert.Equal(t, Terminated, h.rt.State())
	// A terminated route refuses further steps quietly.
	assert.NoError(t, h.step(100, 101, 99, 100))
}

func TestRegistry(t *testing.T) {
	names := Names()
	assert.Contains(t, names, "ema-cross")
	assert.Contains(t, names, "noop")
	assert.Contains(t, names, "open-once")

	s, err := New("EMA-Cross", map[string]float64{"fast-period": 5, "slow-period": 20})
	assert.NoError(t, err)
	assert.Equal(t, "ema-cross", s.Name())

	_, err = New("nope", nil)
	assert.Error(t, err)
}

func TestEMACrossParamsFrom(t *testing.T) {
	p := EMACrossParamsFrom(map[string]float64{
		"fast-period":  5,
		"slow-period":  20,
		"risk-percent": 0.01,
	})
	assert.Equal(t, 5, p.FastPeriod)
	assert.Equal(t, 20, p.SlowPeriod)
	assert.Equal(t, 0.01, p.RiskPct)
	// Unset params keep their defaults.
	assert.Equal(t, 0.01, p.StopPct)
	assert.Equal(t, 2.0, p.RR)
}
