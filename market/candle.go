package market

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is the candle duration in seconds.
type Timeframe int32

const (
	M1  Timeframe = 60
	M5  Timeframe = 300
	M15 Timeframe = 900
	H1  Timeframe = 3600
	H4  Timeframe = 14400
	D1  Timeframe = 86400
)

func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf) * time.Second
}

func (tf Timeframe) String() string {
	switch tf {
	case M1:
		return "1m"
	case M5:
		return "5m"
	case M15:
		return "15m"
	case H1:
		return "1h"
	case H4:
		return "4h"
	case D1:
		return "1d"
	}
	return fmt.Sprintf("%ds", int32(tf))
}

// ParseTimeframe accepts the short exchange-style names ("1m", "1h", ...).
func ParseTimeframe(s string) (Timeframe, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1m", "m1":
		return M1, nil
	case "5m", "m5":
		return M5, nil
	case "15m", "m15":
		return M15, nil
	case "1h", "h1":
		return H1, nil
	case "4h", "h4":
		return H4, nil
	case "1d", "d1":
		return D1, nil
	}
	return 0, fmt.Errorf("unknown timeframe %q", s)
}

// Candle is one OHLCV bar. Candles are immutable once emitted by a feed and
// strictly ordered by OpenTime within one (exchange, symbol, timeframe) stream.
type Candle struct {
	Exchange  string
	Symbol    string
	Timeframe Timeframe
	OpenTime  time.Time

	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

func (c Candle) CloseTime() time.Time {
	return c.OpenTime.Add(c.Timeframe.Duration())
}

// Contains reports whether price traded inside this candle's range.
func (c Candle) Contains(price float64) bool {
	return price >= c.Low && price <= c.High
}

func (c Candle) String() string {
	return fmt.Sprintf("%s %s %s O=%.8g H=%.8g L=%.8g C=%.8g @ %s",
		c.Exchange, c.Symbol, c.Timeframe, c.Open, c.High, c.Low, c.Close,
		c.OpenTime.UTC().Format(time.RFC3339))
}
