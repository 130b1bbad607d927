package strategy

import (
	"github.com/rustyeddy/tradesim/book"
	"github.com/rustyeddy/tradesim/position"
)

func init() {
	Register("open-once", func(params map[string]float64) (Strategy, error) {
		p := &OpenOnce{Units: 1}
		if v, ok := params["units"]; ok && v > 0 {
			p.Units = v
		}
		if v, ok := params["stop-percent"]; ok && v > 0 {
			p.StopPct = v
		}
		if v, ok := params["take-percent"]; ok && v > 0 {
			p.TakePct = v
		}
		return p, nil
	})
}

// OpenOnce opens a single long on the first bar and then goes quiet. Useful
// for exercising the fill/close pipeline end to end.
type OpenOnce struct {
	Units   float64
	StopPct float64
	TakePct float64

	opened bool
}

func (s *OpenOnce) Name() string { return "open-once" }

func (s *OpenOnce) Reset() { s.opened = false }

func (s *OpenOnce) Hyperparams() map[string]any {
	return map[string]any{
		"units":        s.Units,
		"stop-percent": s.StopPct,
		"take-percent": s.TakePct,
	}
}

func (s *OpenOnce) LongSignal(v *View) *Entry {
	if s.opened {
		return nil
	}
	s.opened = true

	px := v.Candle().Close
	e := &Entry{Units: s.Units, Kind: book.Market, Reason: "OpenOnce"}
	if s.StopPct > 0 {
		e.StopLoss = px * (1 - s.StopPct)
	}
	if s.TakePct > 0 {
		e.TakeProfit = px * (1 + s.TakePct)
	}
	return e
}

func (s *OpenOnce) ShortSignal(v *View) *Entry { return nil }

func (s *OpenOnce) OnLongEntry(v *View, f book.Fill)           {}
func (s *OpenOnce) OnShortEntry(v *View, f book.Fill)          {}
func (s *OpenOnce) OnPositionClose(v *View, tr position.Trade) {}
