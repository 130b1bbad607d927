package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	j, err := NewSQLite(path)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	return j, path
}

func testTrade(id, runID string, exit time.Time) TradeRecord {
	return TradeRecord{
		RunID:      runID,
		TradeID:    id,
		Exchange:   "binance",
		Symbol:     "BTCUSDT",
		Timeframe:  "1h",
		Strategy:   "ema-cross",
		Side:       "long",
		Units:      10,
		EntryPrice: 100.5,
		ExitPrice:  105.25,
		EntryTime:  exit.Add(-2 * time.Hour),
		ExitTime:   exit,
		PnL:        47.5,
		Fees:       2.1,
		Reason:     "TakeProfit",
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('trades','equity','runs')`)
	assert.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	assert.True(t, found["trades"])
	assert.True(t, found["equity"])
	assert.True(t, found["runs"])
}

func TestSQLiteTradeRoundTrip(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	exit := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)
	rec := testTrade("T1", "R1", exit)

	assert.NoError(t, j.RecordTrade(rec))

	got, err := j.GetTrade("T1")
	assert.NoError(t, err)
	assert.Equal(t, rec.TradeID, got.TradeID)
	assert.Equal(t, rec.RunID, got.RunID)
	assert.Equal(t, rec.Symbol, got.Symbol)
	assert.Equal(t, rec.Side, got.Side)
	assert.Equal(t, rec.Units, got.Units)
	assert.Equal(t, rec.EntryPrice, got.EntryPrice)
	assert.Equal(t, rec.ExitPrice, got.ExitPrice)
	assert.True(t, rec.EntryTime.Equal(got.EntryTime))
	assert.True(t, rec.ExitTime.Equal(got.ExitTime))
	assert.Equal(t, rec.PnL, got.PnL)
	assert.Equal(t, rec.Fees, got.Fees)
	assert.Equal(t, rec.Reason, got.Reason)

	_, err = j.GetTrade("missing")
	assert.Error(t, err)
}

func TestSQLiteListTradesByRun(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, j.RecordTrade(testTrade("T2", "R1", base.Add(2*time.Hour))))
	assert.NoError(t, j.RecordTrade(testTrade("T1", "R1", base.Add(time.Hour))))
	assert.NoError(t, j.RecordTrade(testTrade("T3", "R2", base.Add(time.Hour))))

	recs, err := j.ListTradesByRun("R1")
	assert.NoError(t, err)
	if assert.Len(t, recs, 2) {
		// Ordered by exit time, not insertion order.
		assert.Equal(t, "T1", recs[0].TradeID)
		assert.Equal(t, "T2", recs[1].TradeID)
	}

	recs, err = j.ListTradesByRun("R3")
	assert.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSQLiteListTradesClosedBetween(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, j.RecordTrade(testTrade("T1", "R1", base)))
	assert.NoError(t, j.RecordTrade(testTrade("T2", "R1", base.Add(time.Hour))))
	assert.NoError(t, j.RecordTrade(testTrade("T3", "R1", base.Add(2*time.Hour))))

	// [start, end): T3 at the end bound is excluded.
	recs, err := j.ListTradesClosedBetween(base, base.Add(2*time.Hour))
	assert.NoError(t, err)
	if assert.Len(t, recs, 2) {
		assert.Equal(t, "T1", recs[0].TradeID)
		assert.Equal(t, "T2", recs[1].TradeID)
	}
}

func TestSQLiteEquityByRun(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, j.RecordEquity(EquitySnapshot{RunID: "R1", Time: base, Balance: 9000, Reserved: 1000, Equity: 10_000}))
	assert.NoError(t, j.RecordEquity(EquitySnapshot{RunID: "R1", Time: base.Add(time.Hour), Balance: 9100, Reserved: 1000, Equity: 10_100}))
	assert.NoError(t, j.RecordEquity(EquitySnapshot{RunID: "R2", Time: base, Balance: 1, Reserved: 0, Equity: 1}))

	curve, err := j.ListEquityByRun("R1")
	assert.NoError(t, err)
	if assert.Len(t, curve, 2) {
		assert.Equal(t, 10_000.0, curve[0].Equity)
		assert.Equal(t, 10_100.0, curve[1].Equity)
		assert.Equal(t, 1000.0, curve[0].Reserved)
	}
}

func TestSQLiteRunRoundTrip(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	rec := RunRecord{
		RunID:        "R1",
		Created:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Mode:         "backtest",
		Start:        time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC),
		StartBalance: 10_000,
		EndBalance:   10_080,
		Trades:       3,
		Wins:         2,
		Losses:       1,
		Notes:        "",
	}
	assert.NoError(t, j.RecordRun(rec))

	got, err := j.GetRun("R1")
	assert.NoError(t, err)
	assert.Equal(t, rec.Mode, got.Mode)
	assert.Equal(t, rec.StartBalance, got.StartBalance)
	assert.Equal(t, rec.EndBalance, got.EndBalance)
	assert.Equal(t, rec.Trades, got.Trades)
	assert.True(t, rec.Start.Equal(got.Start))
	assert.True(t, rec.End.Equal(got.End))

	_, err = j.GetRun("missing")
	assert.Error(t, err)
}
