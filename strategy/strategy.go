// Package strategy defines the decision contract routes are bound to and the
// runtime that drives it. A strategy never sees data newer than the current
// bar: the View hands out candle windows that end at the bar being processed,
// so look-ahead is impossible by construction rather than policed at runtime.
package strategy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rustyeddy/tradesim/book"
	"github.com/rustyeddy/tradesim/position"
)

// Entry is a strategy's request to open (or add to) a position. Units must
// be positive; Kind defaults to market. StopLoss/TakeProfit arm protective
// orders once the entry fills.
type Entry struct {
	Units float64
	Kind  book.Kind
	// Price is the limit or stop trigger for non-market entries.
	Price      float64
	StopLoss   float64
	TakeProfit float64
	TTLBars    int
	Reason     string
}

// Strategy is the capability set every variant implements. The runtime is
// the only caller, and it invokes the hooks only after market state and
// order matching for the current step have settled.
//
// LongSignal/ShortSignal decide entries; returning nil means no interest.
// OnLongEntry/OnShortEntry run after an entry fill, OnPositionClose after a
// position (fully or partially) closes — delivered before the next decision
// hook, so a strategy reacts to its own trade within the same simulated
// instant.
type Strategy interface {
	Name() string
	Reset()

	LongSignal(v *View) *Entry
	ShortSignal(v *View) *Entry

	OnLongEntry(v *View, f book.Fill)
	OnShortEntry(v *View, f book.Fill)
	OnPositionClose(v *View, tr position.Trade)

	// Hyperparams reports the tunable parameters for run records and the
	// external optimizer.
	Hyperparams() map[string]any
}

// Factory builds a fresh strategy instance from per-route parameters. Each
// route gets its own instance; nothing is shared between routes.
type Factory func(params map[string]float64) (Strategy, error)

var registry = map[string]Factory{}

// Register makes a strategy constructible by name. Called from init().
func Register(name string, f Factory) {
	registry[strings.ToLower(name)] = f
}

// New builds a registered strategy by name.
func New(name string, params map[string]float64) (Strategy, error) {
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (registered: %s)",
			name, strings.Join(Names(), ", "))
	}
	return f(params)
}

// Names lists registered strategies, sorted for stable output.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
