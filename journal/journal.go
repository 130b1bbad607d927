// Package journal is the persistence boundary: the engine emits plain trade
// and equity records here and the backends (CSV, SQLite) own durability and
// querying. Nothing in the journal feeds back into execution.
package journal

import "time"

// TradeRecord is the durable form of a closed trade.
type TradeRecord struct {
	RunID      string
	TradeID    string
	Exchange   string
	Symbol     string
	Timeframe  string
	Strategy   string
	Side       string // long | short
	Units      float64
	EntryPrice float64
	ExitPrice  float64
	EntryTime  time.Time
	ExitTime   time.Time
	PnL        float64
	Fees       float64
	Reason     string
}

// EquitySnapshot is one equity-curve point.
type EquitySnapshot struct {
	RunID    string
	Time     time.Time
	Balance  float64
	Reserved float64
	Equity   float64
}

// RunRecord summarizes one completed run.
type RunRecord struct {
	RunID        string
	Created      time.Time
	Mode         string // backtest | live
	Start        time.Time
	End          time.Time
	StartBalance float64
	EndBalance   float64
	Trades       int
	Wins         int
	Losses       int
	Notes        string
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	RecordRun(RunRecord) error
	Close() error
}

// Nop discards everything. Used when a run does not persist.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error     { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) RecordRun(RunRecord) error         { return nil }
func (Nop) Close() error                      { return nil }
