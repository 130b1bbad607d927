// Package risk holds the position-sizing and margin arithmetic shared by
// strategies and the broker.
package risk

import "math"

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Inputs for risk-based sizing: risk a fixed fraction of equity between the
// entry and the stop.
type Inputs struct {
	Equity  float64
	RiskPct float64 // e.g. 0.005 risks 0.5% of equity
	Entry   float64
	Stop    float64
}

type Size struct {
	Units      float64
	RiskAmount float64 // equity at risk if the stop is hit
}

// Calculate returns the position size whose loss at the stop equals
// Equity*RiskPct. Zero when the inputs cannot produce a sane size.
func Calculate(in Inputs) Size {
	dist := abs(in.Entry - in.Stop)
	if dist <= 0 || in.Equity <= 0 || in.RiskPct <= 0 {
		return Size{}
	}
	riskAmt := in.Equity * in.RiskPct
	units := riskAmt / dist
	if math.IsNaN(units) || math.IsInf(units, 0) {
		return Size{}
	}
	return Size{Units: units, RiskAmount: riskAmt}
}

// Margin returns the margin required to carry units at price under the given
// margin rate.
func Margin(units, price, marginRate float64) float64 {
	return abs(units) * price * marginRate
}

// RR returns the reward-to-risk ratio of an entry/stop/take triple.
func RR(entry, stop, take float64) float64 {
	risk := abs(entry - stop)
	if risk == 0 {
		return 0
	}
	return abs(take-entry) / risk
}
