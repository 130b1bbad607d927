package market

import (
	"errors"
	"sync"
)

var ErrNoCandle = errors.New("no candle for route")

// State holds the current candle per route stream. It is the single source of
// truth strategies and the broker read prices from; the driver updates it as
// the clock advances. Per-route entries may be written concurrently in live
// mode since routes never share a candle stream.
type State struct {
	mu   sync.RWMutex
	last map[string]Candle
}

func NewState() *State {
	return &State{last: make(map[string]Candle)}
}

func (s *State) Set(c Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[streamKey(c.Exchange, c.Symbol, c.Timeframe)] = c
}

// Current returns the latest candle seen on the route's stream.
func (s *State) Current(r Route) (Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.last[r.Key()]
	if !ok {
		return Candle{}, ErrNoCandle
	}
	return c, nil
}

// Mark returns the mark price for the route: the latest close.
func (s *State) Mark(r Route) (float64, error) {
	c, err := s.Current(r)
	if err != nil {
		return 0, err
	}
	return c.Close, nil
}

func streamKey(exchange, symbol string, tf Timeframe) string {
	return exchange + ":" + symbol + ":" + tf.String()
}
