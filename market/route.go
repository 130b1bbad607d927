package market

import "fmt"

// Route binds one (exchange, symbol, timeframe) stream to one strategy
// instance. The set of routes is fixed for the lifetime of a run.
type Route struct {
	Exchange  string
	Symbol    string
	Timeframe Timeframe
	Strategy  string
}

func (r Route) Key() string {
	return fmt.Sprintf("%s:%s:%s", r.Exchange, r.Symbol, r.Timeframe)
}

func (r Route) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", r.Exchange, r.Symbol, r.Timeframe, r.Strategy)
}

// Matches reports whether a candle belongs to this route's stream.
func (r Route) Matches(c Candle) bool {
	return c.Exchange == r.Exchange && c.Symbol == r.Symbol && c.Timeframe == r.Timeframe
}
