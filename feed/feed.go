// Package feed supplies ordered candle streams per route. A feed abstracts
// over historical replay and live streaming: the driver consumes both through
// the same interface, which is what keeps the execution core identical across
// modes.
package feed

import (
	"context"

	"github.com/rustyeddy/tradesim/market"
)

// Feed yields one route's candles in strictly increasing OpenTime order.
// Next returns ok=false at end of stream (historical feeds) and blocks until
// the next bar arrives (live feeds). Implementations must be deterministic
// for historical data.
//
// The feed guarantees monotonicity; the driver treats a violation as a fatal
// feed error, never a silent skip.
type Feed interface {
	Next(ctx context.Context) (market.Candle, bool, error)
	Close() error
}

// Memory replays an in-memory candle slice. Used by tests and by optimizer
// batch callers that already hold the dataset.
type Memory struct {
	candles []market.Candle
	idx     int
}

func NewMemory(candles []market.Candle) *Memory {
	return &Memory{candles: candles}
}

func (m *Memory) Next(ctx context.Context) (market.Candle, bool, error) {
	if err := ctx.Err(); err != nil {
		return market.Candle{}, false, err
	}
	if m.idx >= len(m.candles) {
		return market.Candle{}, false, nil
	}
	c := m.candles[m.idx]
	m.idx++
	return c, true, nil
}

func (m *Memory) Close() error { return nil }
