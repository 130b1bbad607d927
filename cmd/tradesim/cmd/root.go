package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tradesim",
	Short: "A deterministic strategy execution engine for backtests and live trading",
	Long: `Tradesim drives trading strategies over candle data, in simulated or real time.

It provides tools for:
  - Backtesting strategies against historical candle CSVs
  - Running the same strategies against live exchange streams
  - Bracket orders (stop loss / take profit) with deterministic matching
  - Risk-based position sizing
  - Trade journals, equity curves and run summaries

Complete documentation is available at https://github.com/rustyeddy/tradesim`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
