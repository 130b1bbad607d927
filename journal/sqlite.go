package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, run_id, exchange, symbol, timeframe, strategy, side, units,
		 entry_price, exit_price, entry_time, exit_time, pnl, fees, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.RunID, t.Exchange, t.Symbol, t.Timeframe, t.Strategy,
		t.Side, t.Units, t.EntryPrice, t.ExitPrice, t.EntryTime, t.ExitTime,
		t.PnL, t.Fees, t.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity (run_id, time, balance, reserved, equity)
		VALUES (?, ?, ?, ?, ?)`,
		e.RunID, e.Time, e.Balance, e.Reserved, e.Equity,
	)
	return err
}

func (j *SQLite) RecordRun(r RunRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO runs
		(run_id, created, mode, start_time, end_time, start_balance, end_balance,
		 trades, wins, losses, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created, r.Mode, r.Start, r.End, r.StartBalance,
		r.EndBalance, r.Trades, r.Wins, r.Losses, r.Notes,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
