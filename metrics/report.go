package metrics

import (
	"fmt"
	"io"
	"time"
)

// WriteSummary prints a run summary block.
func WriteSummary(w io.Writer, runID string, s Summary) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Run Result")
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, "Run ID:        %s\n", runID)
	if !s.Start.IsZero() {
		fmt.Fprintf(w, "Start:         %s\n", s.Start.UTC().Format(time.RFC3339))
		fmt.Fprintf(w, "End:           %s\n", s.End.UTC().Format(time.RFC3339))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Trades:        %d\n", s.Trades)
	fmt.Fprintf(w, "Wins:          %d\n", s.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", s.Losses)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", s.WinRate)
	if s.ProfitFactor > 0 {
		fmt.Fprintf(w, "Profit Factor: %.2f\n", s.ProfitFactor)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Equity:  %.2f\n", s.StartEquity)
	fmt.Fprintf(w, "End Equity:    %.2f\n", s.EndEquity)
	fmt.Fprintf(w, "Net P/L:       %.2f\n", s.NetPnL)
	fmt.Fprintf(w, "Fees:          %.2f\n", s.Fees)
	if s.MaxDDPct > 0 {
		fmt.Fprintf(w, "Max Drawdown:  %.2f%%\n", s.MaxDDPct)
	}
	fmt.Fprintln(w)
}
