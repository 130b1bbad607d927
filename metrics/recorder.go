// Package metrics accumulates completed trades and the equity curve and
// derives summary statistics. It is a pure downstream consumer: nothing here
// feeds back into execution.
package metrics

import (
	"sync"
	"time"

	"github.com/rustyeddy/tradesim/position"
)

// EquityPoint is one point on the run's equity curve.
type EquityPoint struct {
	Time     time.Time
	Balance  float64
	Reserved float64
	Equity   float64
}

// Recorder collects trades and equity points for one run.
type Recorder struct {
	mu     sync.Mutex
	trades []position.Trade
	curve  []EquityPoint
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) ObserveTrade(t position.Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, t)
}

func (r *Recorder) ObserveEquity(p EquityPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.curve = append(r.curve, p)
}

func (r *Recorder) Trades() []position.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]position.Trade, len(r.trades))
	copy(out, r.trades)
	return out
}

func (r *Recorder) Curve() []EquityPoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EquityPoint, len(r.curve))
	copy(out, r.curve)
	return out
}

// Summary is the run-level statistics block.
type Summary struct {
	Trades int
	Wins   int
	Losses int

	NetPnL       float64
	Fees         float64
	GrossProfit  float64
	GrossLoss    float64
	WinRate      float64 // percent
	ProfitFactor float64
	MaxDDPct     float64 // percent, from the equity curve

	StartEquity float64
	EndEquity   float64
	Start       time.Time
	End         time.Time
}

// Summarize derives the summary from everything observed so far.
func (r *Recorder) Summarize() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	var s Summary
	s.Trades = len(r.trades)

	for _, t := range r.trades {
		net := t.PnL - t.Fees
		s.NetPnL += net
		s.Fees += t.Fees
		if net > 0 {
			s.Wins++
			s.GrossProfit += net
		} else if net < 0 {
			s.Losses++
			s.GrossLoss += -net
		}
	}
	if s.Trades > 0 {
		s.WinRate = 100 * float64(s.Wins) / float64(s.Trades)
	}
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	}

	if n := len(r.curve); n > 0 {
		s.StartEquity = r.curve[0].Equity
		s.EndEquity = r.curve[n-1].Equity
		s.Start = r.curve[0].Time
		s.End = r.curve[n-1].Time

		peak := r.curve[0].Equity
		for _, p := range r.curve {
			if p.Equity > peak {
				peak = p.Equity
			}
			if peak > 0 {
				dd := 100 * (peak - p.Equity) / peak
				if dd > s.MaxDDPct {
					s.MaxDDPct = dd
				}
			}
		}
	}
	return s
}
