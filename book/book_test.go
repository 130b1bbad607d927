package book

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/tradesim/market"
)

var testRoute = market.Route{
	Exchange: "binance", Symbol: "BTCUSDT", Timeframe: market.H1, Strategy: "test",
}

func candle(open, high, low, close float64) market.Candle {
	return market.Candle{
		Exchange:  testRoute.Exchange,
		Symbol:    testRoute.Symbol,
		Timeframe: testRoute.Timeframe,
		OpenTime:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Open:      open, High: high, Low: low, Close: close,
	}
}

var nextID int

func order(side Side, kind Kind, tag Tag, units, price float64) *Order {
	nextID++
	return &Order{
		ID:    fmt.Sprintf("O%d", nextID),
		Route: testRoute,
		Side:  side,
		Kind:  kind,
		Tag:   tag,
		Units: units,
		Price: price,
	}
}

func TestMarketOrderFillsAtOpen(t *testing.T) {
	b := New(testRoute, Config{})
	o := order(Buy, Market, TagEntry, 10, 0)
	b.Add(o)

	fills, expired := b.Match(candle(100, 110, 95, 105))
	assert.Empty(t, expired)
	assert.Len(t, fills, 1)
	assert.Equal(t, o.ID, fills[0].OrderID)
	assert.Equal(t, 100.0, fills[0].Price)
	assert.Equal(t, 10.0, fills[0].Units)
	assert.False(t, fills[0].Partial)
	assert.Equal(t, Filled, o.Status)
	assert.Empty(t, b.Pending())
}

func TestMarketOrderSlippage(t *testing.T) {
	b := New(testRoute, Config{Slippage: 0.001})

	b.Add(order(Buy, Market, TagEntry, 1, 0))
	fills, _ := b.Match(candle(100, 110, 95, 105))
	assert.InDelta(t, 100.1, fills[0].Price, 1e-9)

	b.Add(order(Sell, Market, TagEntry, 1, 0))
	fills, _ = b.Match(candle(100, 110, 95, 105))
	assert.InDelta(t, 99.9, fills[0].Price, 1e-9)
}

func TestLimitOrderTriggerAndPrice(t *testing.T) {
	b := New(testRoute, Config{Slippage: 0.01})

	// Buy limit at 98: candle low 99 never reaches it.
	o := order(Buy, Limit, TagEntry, 5, 98)
	b.Add(o)
	fills, _ := b.Match(candle(100, 110, 99, 105))
	assert.Empty(t, fills)
	assert.Equal(t, Pending, o.Status)

	// Low touches the limit: fills exactly at the limit, no slippage.
	fills, _ = b.Match(candle(100, 110, 98, 105))
	assert.Len(t, fills, 1)
	assert.Equal(t, 98.0, fills[0].Price)
}

func TestLimitOrderGapFillsAtOpen(t *testing.T) {
	b := New(testRoute, Config{})

	// Buy limit at 98, bar opens below it: better price, fill at the open.
	b.Add(order(Buy, Limit, TagEntry, 5, 98))
	fills, _ := b.Match(candle(95, 99, 94, 97))
	assert.Len(t, fills, 1)
	assert.Equal(t, 95.0, fills[0].Price)

	// Sell limit at 102, bar opens above it.
	b.Add(order(Sell, Limit, TagEntry, 5, 102))
	fills, _ = b.Match(candle(105, 106, 101, 103))
	assert.Len(t, fills, 1)
	assert.Equal(t, 105.0, fills[0].Price)
}

func TestStopOrderTriggerAndGap(t *testing.T) {
	b := New(testRoute, Config{})

	// Sell stop at 95 (protective stop under a long). In-range trigger fills
	// at the trigger price.
	b.Add(order(Sell, Stop, TagStopLoss, 5, 95))
	fills, _ := b.Match(candle(100, 102, 94, 96))
	assert.Len(t, fills, 1)
	assert.Equal(t, 95.0, fills[0].Price)

	// Bar gaps below the trigger: fill at the open, not the trigger.
	b.Add(order(Sell, Stop, TagStopLoss, 5, 95))
	fills, _ = b.Match(candle(90, 92, 88, 91))
	assert.Len(t, fills, 1)
	assert.Equal(t, 90.0, fills[0].Price)
}

func TestStopSlippageAppliesAgainstTaker(t *testing.T) {
	b := New(testRoute, Config{Slippage: 0.001})

	b.Add(order(Sell, Stop, TagStopLoss, 5, 100))
	fills, _ := b.Match(candle(102, 103, 99, 100))
	assert.InDelta(t, 99.9, fills[0].Price, 1e-9)

	b.Add(order(Buy, Stop, TagEntry, 5, 100))
	fills, _ = b.Match(candle(98, 101, 97, 100))
	assert.InDelta(t, 100.1, fills[0].Price, 1e-9)
}

func TestTieBreakStopFirst(t *testing.T) {
	b := New(testRoute, Config{TieBreak: StopFirst})
	tp := order(Sell, Limit, TagTakeProfit, 5, 110)
	sl := order(Sell, Stop, TagStopLoss, 5, 95)
	b.Add(tp)
	b.Add(sl)

	// Candle range covers both levels; stop must win under StopFirst even
	// though the take-profit was submitted earlier.
	fills, _ := b.Match(candle(100, 112, 94, 105))
	assert.Len(t, fills, 2)
	assert.Equal(t, sl.ID, fills[0].OrderID)
	assert.Equal(t, tp.ID, fills[1].OrderID)
}

func TestTieBreakTakeFirst(t *testing.T) {
	b := New(testRoute, Config{TieBreak: TakeFirst})
	sl := order(Sell, Stop, TagStopLoss, 5, 95)
	tp := order(Sell, Limit, TagTakeProfit, 5, 110)
	b.Add(sl)
	b.Add(tp)

	fills, _ := b.Match(candle(100, 112, 94, 105))
	assert.Len(t, fills, 2)
	assert.Equal(t, tp.ID, fills[0].OrderID)
	assert.Equal(t, sl.ID, fills[1].OrderID)
}

func TestFillOrderMarketBeforeExitsBeforeEntries(t *testing.T) {
	b := New(testRoute, Config{})
	entry := order(Buy, Limit, TagEntry, 1, 99)
	sl := order(Sell, Stop, TagStopLoss, 1, 96)
	mkt := order(Buy, Market, TagEntry, 1, 0)
	b.Add(entry)
	b.Add(sl)
	b.Add(mkt)

	fills, _ := b.Match(candle(100, 105, 95, 102))
	assert.Len(t, fills, 3)
	assert.Equal(t, mkt.ID, fills[0].OrderID)
	assert.Equal(t, sl.ID, fills[1].OrderID)
	assert.Equal(t, entry.ID, fills[2].OrderID)
}

func TestSubmissionOrderWithinClass(t *testing.T) {
	b := New(testRoute, Config{})
	first := order(Buy, Market, TagEntry, 1, 0)
	second := order(Sell, Market, TagEntry, 1, 0)
	b.Add(first)
	b.Add(second)

	fills, _ := b.Match(candle(100, 105, 95, 102))
	assert.Len(t, fills, 2)
	assert.Equal(t, first.ID, fills[0].OrderID)
	assert.Equal(t, second.ID, fills[1].OrderID)
}

func TestPartialFillLiquidityCap(t *testing.T) {
	b := New(testRoute, Config{MaxUnitsPerCandle: 4})
	o := order(Buy, Market, TagEntry, 10, 0)
	b.Add(o)

	fills, _ := b.Match(candle(100, 105, 95, 102))
	assert.Len(t, fills, 1)
	assert.True(t, fills[0].Partial)
	assert.Equal(t, 4.0, fills[0].Units)
	assert.Equal(t, Pending, o.Status)
	assert.Equal(t, 6.0, o.Units)
	assert.Equal(t, 4.0, o.FilledUnits)

	// Residual keeps filling on later bars under the same ID.
	fills, _ = b.Match(candle(101, 106, 96, 103))
	assert.True(t, fills[0].Partial)
	assert.Equal(t, o.ID, fills[0].OrderID)

	fills, _ = b.Match(candle(102, 107, 97, 104))
	assert.False(t, fills[0].Partial)
	assert.Equal(t, 2.0, fills[0].Units)
	assert.Equal(t, Filled, o.Status)
	assert.Empty(t, b.Pending())
}

func TestTTLExpiry(t *testing.T) {
	b := New(testRoute, Config{})
	o := order(Buy, Limit, TagEntry, 5, 90)
	o.TTLBars = 2
	b.Add(o)

	// Two bars without triggering: still pending.
	_, expired := b.Match(candle(100, 105, 95, 102))
	assert.Empty(t, expired)
	_, expired = b.Match(candle(100, 105, 95, 102))
	assert.Empty(t, expired)

	// Third bar expires it before matching, even though the bar would have
	// triggered the limit.
	fills, expired := b.Match(candle(100, 105, 89, 102))
	assert.Empty(t, fills)
	assert.Len(t, expired, 1)
	assert.Equal(t, o.ID, expired[0].ID)
	assert.Equal(t, Expired, o.Status)
	assert.Empty(t, b.Pending())
}

func TestCancel(t *testing.T) {
	b := New(testRoute, Config{})
	o := order(Buy, Limit, TagEntry, 5, 90)
	b.Add(o)

	got, err := b.Cancel(o.ID)
	assert.NoError(t, err)
	assert.Equal(t, Canceled, got.Status)
	assert.Empty(t, b.Pending())

	// Canceling again is a conflict, not a no-op.
	_, err = b.Cancel(o.ID)
	assert.ErrorIs(t, err, ErrOrderNotPending)
}

func TestCancelAfterFillIsConflict(t *testing.T) {
	b := New(testRoute, Config{})
	o := order(Buy, Market, TagEntry, 5, 0)
	b.Add(o)

	fills, _ := b.Match(candle(100, 105, 95, 102))
	assert.Len(t, fills, 1)
	assert.Equal(t, Filled, o.Status)

	_, err := b.Cancel(o.ID)
	assert.ErrorIs(t, err, ErrOrderNotPending)
}

func TestCancelAfterPartialFill(t *testing.T) {
	b := New(testRoute, Config{MaxUnitsPerCandle: 1})
	o := order(Buy, Market, TagEntry, 2, 0)
	b.Add(o)

	// Partial fill leaves the order pending and cancelable.
	fills, _ := b.Match(candle(100, 105, 95, 102))
	assert.True(t, fills[0].Partial)
	_, err := b.Cancel(o.ID)
	assert.NoError(t, err)
}

func TestCancelAll(t *testing.T) {
	b := New(testRoute, Config{})
	b.Add(order(Buy, Limit, TagEntry, 5, 90))
	b.Add(order(Sell, Stop, TagStopLoss, 5, 80))

	out := b.CancelAll()
	assert.Len(t, out, 2)
	assert.Empty(t, b.Pending())
	for _, o := range out {
		assert.Equal(t, Canceled, o.Status)
	}
}

func TestMatchDeterminism(t *testing.T) {
	run := func() []string {
		b := New(testRoute, Config{TieBreak: StopFirst})
		b.Add(order(Sell, Limit, TagTakeProfit, 1, 108))
		b.Add(order(Sell, Stop, TagStopLoss, 1, 96))
		b.Add(order(Buy, Market, TagEntry, 1, 0))
		b.Add(order(Buy, Limit, TagEntry, 1, 99))

		fills, _ := b.Match(candle(100, 110, 95, 105))
		var ids []string
		for _, f := range fills {
			ids = append(ids, f.Tag.String())
		}
		return ids
	}

	first := run()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, run())
	}
}

func TestParseTieBreak(t *testing.T) {
	tb, err := ParseTieBreak("")
	assert.NoError(t, err)
	assert.Equal(t, StopFirst, tb)

	tb, err = ParseTieBreak("take-first")
	assert.NoError(t, err)
	assert.Equal(t, TakeFirst, tb)

	_, err = ParseTieBreak("coin-flip")
	assert.Error(t, err)
}
