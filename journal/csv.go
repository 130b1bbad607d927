package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CSVJournal appends trades and equity points to two CSV files. Headers are
// written when a file is created empty. Run summaries are not persisted in
// CSV mode (print them instead).
type CSVJournal struct {
	trades *os.File
	equity *os.File
	tw     *csv.Writer
	ew     *csv.Writer
}

func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, theader, err := openAppend(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, eheader, err := openAppend(equityPath)
	if err != nil {
		tf.Close()
		return nil, err
	}

	j := &CSVJournal{
		trades: tf,
		equity: ef,
		tw:     csv.NewWriter(tf),
		ew:     csv.NewWriter(ef),
	}

	if theader {
		j.tw.Write([]string{
			"trade_id", "run_id", "exchange", "symbol", "timeframe", "strategy",
			"side", "units", "entry_price", "exit_price", "entry_time",
			"exit_time", "pnl", "fees", "reason",
		})
	}
	if eheader {
		j.ew.Write([]string{"run_id", "time", "balance", "reserved", "equity"})
	}
	j.tw.Flush()
	j.ew.Flush()
	if err := j.tw.Error(); err != nil {
		j.Close()
		return nil, err
	}
	return j, nil
}

func openAppend(path string) (*os.File, bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, false, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, false, err
	}
	return f, st.Size() == 0, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	err := j.tw.Write([]string{
		t.TradeID, t.RunID, t.Exchange, t.Symbol, t.Timeframe, t.Strategy,
		t.Side,
		fmtF(t.Units), fmtF(t.EntryPrice), fmtF(t.ExitPrice),
		t.EntryTime.UTC().Format(time.RFC3339Nano),
		t.ExitTime.UTC().Format(time.RFC3339Nano),
		fmtF(t.PnL), fmtF(t.Fees), t.Reason,
	})
	if err != nil {
		return err
	}
	j.tw.Flush()
	return j.tw.Error()
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	err := j.ew.Write([]string{
		e.RunID,
		e.Time.UTC().Format(time.RFC3339Nano),
		fmtF(e.Balance), fmtF(e.Reserved), fmtF(e.Equity),
	})
	if err != nil {
		return err
	}
	j.ew.Flush()
	return j.ew.Error()
}

func (j *CSVJournal) RecordRun(RunRecord) error { return nil }

func (j *CSVJournal) Close() error {
	j.tw.Flush()
	j.ew.Flush()
	err1 := j.trades.Close()
	err2 := j.equity.Close()
	if err1 != nil {
		return err1
	}
	if err2 != nil {
		return fmt.Errorf("close equity file: %w", err2)
	}
	return nil
}

func fmtF(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
