package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/tradesim/market"
)

// CSV reads candle rows for one route:
//
//	open_time,open,high,low,close,volume
//
// where open_time is RFC3339 or unix seconds. A header row is allowed and
// empty/short rows are skipped. Rows may optionally be filtered to
// [From, To).
type CSV struct {
	f     *os.File
	r     *csv.Reader
	route market.Route
	from  time.Time
	to    time.Time

	sawFirst bool
}

func NewCSV(path string, route market.Route, from, to time.Time) (*CSV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	return &CSV{f: f, r: r, route: route, from: from, to: to}, nil
}

func (c *CSV) Close() error {
	if c.f != nil {
		return c.f.Close()
	}
	return nil
}

func (c *CSV) Next(ctx context.Context) (market.Candle, bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return market.Candle{}, false, err
		}
		row, err := c.r.Read()
		if err == io.EOF {
			return market.Candle{}, false, nil
		}
		if err != nil {
			return market.Candle{}, false, err
		}
		if len(row) == 0 {
			continue
		}

		if !c.sawFirst {
			c.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "open_time") ||
				strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}

		cd, ok, err := c.parseRow(row)
		if err != nil {
			return market.Candle{}, false, err
		}
		if !ok || !inRange(cd.OpenTime, c.from, c.to) {
			continue
		}
		return cd, true, nil
	}
}

func (c *CSV) parseRow(row []string) (market.Candle, bool, error) {
	if len(row) < 5 {
		return market.Candle{}, false, nil
	}

	ts := strings.TrimSpace(row[0])
	if ts == "" {
		return market.Candle{}, false, nil
	}
	t, err := parseTime(ts)
	if err != nil {
		return market.Candle{}, false, fmt.Errorf("bad open_time %q: %w", ts, err)
	}

	var vals [4]float64
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return market.Candle{}, false, fmt.Errorf("bad price %q: %w", row[i+1], err)
		}
		vals[i] = v
	}
	vol := 0.0
	if len(row) > 5 {
		if v, err := strconv.ParseFloat(strings.TrimSpace(row[5]), 64); err == nil {
			vol = v
		}
	}

	return market.Candle{
		Exchange:  c.route.Exchange,
		Symbol:    c.route.Symbol,
		Timeframe: c.route.Timeframe,
		OpenTime:  t,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vol,
	}, true, nil
}

func parseTime(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
