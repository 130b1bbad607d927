package strategy

import (
	"github.com/rustyeddy/tradesim/book"
	"github.com/rustyeddy/tradesim/position"
)

func init() {
	Register("noop", func(map[string]float64) (Strategy, error) {
		return Noop{}, nil
	})
}

// Noop never trades.
type Noop struct{}

func (Noop) Name() string                { return "noop" }
func (Noop) Reset()                      {}
func (Noop) Hyperparams() map[string]any { return map[string]any{} }

func (Noop) LongSignal(v *View) *Entry  { return nil }
func (Noop) ShortSignal(v *View) *Entry { return nil }

func (Noop) OnLongEntry(v *View, f book.Fill)           {}
func (Noop) OnShortEntry(v *View, f book.Fill)          {}
func (Noop) OnPositionClose(v *View, tr position.Trade) {}
