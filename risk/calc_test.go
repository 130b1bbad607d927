package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculate(t *testing.T) {
	t.Parallel()

	// Risk 1% of 10k = 100, stop distance 2: 50 units.
	s := Calculate(Inputs{Equity: 10_000, RiskPct: 0.01, Entry: 100, Stop: 98})
	assert.InDelta(t, 50.0, s.Units, 1e-9)
	assert.InDelta(t, 100.0, s.RiskAmount, 1e-9)

	// Direction of the stop does not matter.
	short := Calculate(Inputs{Equity: 10_000, RiskPct: 0.01, Entry: 100, Stop: 102})
	assert.InDelta(t, 50.0, short.Units, 1e-9)
}

func TestCalculateDegenerateInputs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Size{}, Calculate(Inputs{Equity: 10_000, RiskPct: 0.01, Entry: 100, Stop: 100}))
	assert.Equal(t, Size{}, Calculate(Inputs{Equity: 0, RiskPct: 0.01, Entry: 100, Stop: 98}))
	assert.Equal(t, Size{}, Calculate(Inputs{Equity: -5, RiskPct: 0.01, Entry: 100, Stop: 98}))
	assert.Equal(t, Size{}, Calculate(Inputs{Equity: 10_000, RiskPct: 0, Entry: 100, Stop: 98}))
	assert.Equal(t, Size{}, Calculate(Inputs{Equity: math.Inf(1), RiskPct: 0.01, Entry: 100, Stop: 98}))
}

func TestMargin(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1000.0, Margin(10, 100, 1.0), 1e-9)
	assert.InDelta(t, 100.0, Margin(10, 100, 0.1), 1e-9)
	assert.InDelta(t, 1000.0, Margin(-10, 100, 1.0), 1e-9)
}

func TestRR(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 2.0, RR(100, 98, 104), 1e-9)
	assert.InDelta(t, 2.0, RR(100, 102, 96), 1e-9)
	assert.Equal(t, 0.0, RR(100, 100, 110))
}
