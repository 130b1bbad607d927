package strategy

import (
	"github.com/rustyeddy/tradesim/book"
	"github.com/rustyeddy/tradesim/indicators"
	"github.com/rustyeddy/tradesim/position"
	"github.com/rustyeddy/tradesim/risk"
)

func init() {
	Register("ema-cross", func(params map[string]float64) (Strategy, error) {
		return NewEMACross(EMACrossParamsFrom(params)), nil
	})
}

// EMACrossParams are the tunables of the crossover strategy. StopPct and the
// risk/reward multiple place the protective bracket around each entry.
type EMACrossParams struct {
	FastPeriod int
	SlowPeriod int
	RiskPct    float64 // equity fraction risked per trade
	StopPct    float64 // stop distance as a fraction of entry price
	RR         float64 // take-profit multiple of the stop distance
}

func EMACrossParamsDefaults() EMACrossParams {
	return EMACrossParams{
		FastPeriod: 10,
		SlowPeriod: 30,
		RiskPct:    0.005,
		StopPct:    0.01,
		RR:         2.0,
	}
}

func EMACrossParamsFrom(params map[string]float64) EMACrossParams {
	p := EMACrossParamsDefaults()
	if v, ok := params["fast-period"]; ok && v > 0 {
		p.FastPeriod = int(v)
	}
	if v, ok := params["slow-period"]; ok && v > 0 {
		p.SlowPeriod = int(v)
	}
	if v, ok := params["risk-percent"]; ok && v > 0 {
		p.RiskPct = v
	}
	if v, ok := params["stop-percent"]; ok && v > 0 {
		p.StopPct = v
	}
	if v, ok := params["risk-reward"]; ok && v > 0 {
		p.RR = v
	}
	return p
}

// EMACross enters long on a fast/slow EMA bull cross and short on a bear
// cross, bracketed with a percent stop and an RR-multiple take-profit. Exits
// are left entirely to the brackets.
type EMACross struct {
	EMACrossParams

	fast *indicators.ExponentialMA
	slow *indicators.ExponentialMA

	lastDiff     float64
	haveLastDiff bool
	seenBars     int
}

func NewEMACross(p EMACrossParams) *EMACross {
	return &EMACross{
		EMACrossParams: p,
		fast:           indicators.NewEMA(p.FastPeriod),
		slow:           indicators.NewEMA(p.SlowPeriod),
	}
}

func (s *EMACross) Name() string { return "ema-cross" }

func (s *EMACross) Reset() {
	s.fast.Reset()
	s.slow.Reset()
	s.lastDiff = 0
	s.haveLastDiff = false
	s.seenBars = 0
}

func (s *EMACross) Hyperparams() map[string]any {
	return map[string]any{
		"fast-period":  s.FastPeriod,
		"slow-period":  s.SlowPeriod,
		"risk-percent": s.RiskPct,
		"stop-percent": s.StopPct,
		"risk-reward":  s.RR,
	}
}

// cross consumes the current bar once per step and reports the crossing
// direction: +1 bull, -1 bear, 0 none.
func (s *EMACross) cross(v *View) int {
	// Both signals may run on one bar; only update indicators on the first.
	if v.BarCount() != s.seenBars {
		s.seenBars = v.BarCount()
		c := v.Candle()
		s.fast.Update(c)
		s.slow.Update(c)

		if !s.fast.Ready() || !s.slow.Ready() {
			return 0
		}
		diff := s.fast.Value() - s.slow.Value()
		if !s.haveLastDiff {
			s.lastDiff = diff
			s.haveLastDiff = true
			return 0
		}
		switch {
		case diff > 0 && s.lastDiff <= 0:
			s.lastDiff = diff
			return +1
		case diff < 0 && s.lastDiff >= 0:
			s.lastDiff = diff
			return -1
		}
		s.lastDiff = diff
	}
	return 0
}

func (s *EMACross) LongSignal(v *View) *Entry {
	if s.cross(v) != +1 {
		return nil
	}
	return s.entry(v, +1, "BullCross")
}

func (s *EMACross) ShortSignal(v *View) *Entry {
	if s.cross(v) != -1 {
		return nil
	}
	return s.entry(v, -1, "BearCross")
}

func (s *EMACross) entry(v *View, dir int, reason string) *Entry {
	px := v.Candle().Close
	stopDist := px * s.StopPct

	var stop, take float64
	if dir > 0 {
		stop = px - stopDist
		take = px + stopDist*s.RR
	} else {
		stop = px + stopDist
		take = px - stopDist*s.RR
	}

	size := risk.Calculate(risk.Inputs{
		Equity:  v.Equity(),
		RiskPct: s.RiskPct,
		Entry:   px,
		Stop:    stop,
	})
	if size.Units <= 0 {
		return nil
	}

	return &Entry{
		Units:      size.Units,
		Kind:       book.Market,
		StopLoss:   stop,
		TakeProfit: take,
		Reason:     reason,
	}
}

func (s *EMACross) OnLongEntry(v *View, f book.Fill)           {}
func (s *EMACross) OnShortEntry(v *View, f book.Fill)          {}
func (s *EMACross) OnPositionClose(v *View, tr position.Trade) {}
