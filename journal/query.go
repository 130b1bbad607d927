package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(tradeID string) (TradeRecord, error) {
	row := j.db.QueryRow(`
		SELECT trade_id, run_id, exchange, symbol, timeframe, strategy, side,
		       units, entry_price, exit_price, entry_time, exit_time, pnl, fees, reason
		FROM trades
		WHERE trade_id = ?`, tradeID)

	rec, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return TradeRecord{}, fmt.Errorf("trade %q not found", tradeID)
	}
	return rec, err
}

// ListTradesByRun returns a run's trades ordered by exit time.
func (j *SQLite) ListTradesByRun(runID string) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT trade_id, run_id, exchange, symbol, timeframe, strategy, side,
		       units, entry_price, exit_price, entry_time, exit_time, pnl, fees, reason
		FROM trades
		WHERE run_id = ?
		ORDER BY exit_time ASC, trade_id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

// ListTradesClosedBetween returns trades whose exit_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT trade_id, run_id, exchange, symbol, timeframe, strategy, side,
		       units, entry_price, exit_price, entry_time, exit_time, pnl, fees, reason
		FROM trades
		WHERE exit_time >= ? AND exit_time < ?
		ORDER BY exit_time ASC, trade_id ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

// ListEquityByRun returns a run's equity curve in time order.
func (j *SQLite) ListEquityByRun(runID string) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT run_id, time, balance, reserved, equity
		FROM equity
		WHERE run_id = ?
		ORDER BY time ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.RunID, &e.Time, &e.Balance, &e.Reserved, &e.Equity); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetRun returns a run summary by ID.
func (j *SQLite) GetRun(runID string) (RunRecord, error) {
	var r RunRecord
	row := j.db.QueryRow(`
		SELECT run_id, created, mode, start_time, end_time, start_balance, end_balance,
		       trades, wins, losses, notes
		FROM runs WHERE run_id = ?`, runID)
	err := row.Scan(&r.RunID, &r.Created, &r.Mode, &r.Start, &r.End,
		&r.StartBalance, &r.EndBalance, &r.Trades, &r.Wins, &r.Losses, &r.Notes)
	if err == sql.ErrNoRows {
		return RunRecord{}, fmt.Errorf("run %q not found", runID)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var t TradeRecord
	err := s.Scan(
		&t.TradeID, &t.RunID, &t.Exchange, &t.Symbol, &t.Timeframe,
		&t.Strategy, &t.Side, &t.Units, &t.EntryPrice, &t.ExitPrice,
		&t.EntryTime, &t.ExitTime, &t.PnL, &t.Fees, &t.Reason,
	)
	return t, err
}

func collectTrades(rows *sql.Rows) ([]TradeRecord, error) {
	var out []TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
