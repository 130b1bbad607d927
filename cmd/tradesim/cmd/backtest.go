package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradesim/config"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run strategies against historical candle data",
	Long: `Backtest replays historical candle CSVs through the execution engine.

Routes and strategies come from a config file, or a single route can be
described entirely with flags.

Supported strategies:
  - noop: Does nothing (baseline test)
  - open-once: Opens a single long position on the first bar
  - ema-cross: EMA crossover with risk-based sizing and brackets

Examples:
  tradesim backtest --config run.yaml
  tradesim backtest --candles data/btcusdt_h1.csv --symbol BTCUSDT --strategy ema-cross`,
	RunE: runBacktest,
}

var (
	btConfigPath string
	btCandles    string
	btExchange   string
	btSymbol     string
	btTimeframe  string
	btStrategy   string
	btBalance    float64
	btFeeRate    float64
	btSlippage   float64
	btDBPath     string
	btCloseEnd   bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btConfigPath, "config", "c", "", "path to run config (YAML or JSON)")

	backtestCmd.Flags().StringVarP(&btCandles, "candles", "t", "", "path to candle CSV (open_time,open,high,low,close,volume)")
	backtestCmd.Flags().StringVar(&btExchange, "exchange", "binance", "exchange name for the route")
	backtestCmd.Flags().StringVarP(&btSymbol, "symbol", "i", "BTCUSDT", "symbol for the route")
	backtestCmd.Flags().StringVar(&btTimeframe, "timeframe", "H1", "candle timeframe (M1, M5, M15, H1, H4, D1)")
	backtestCmd.Flags().StringVarP(&btStrategy, "strategy", "s", "noop", "strategy name")
	backtestCmd.Flags().Float64VarP(&btBalance, "balance", "b", 100_000, "starting account balance")
	backtestCmd.Flags().Float64Var(&btFeeRate, "fee", 0.001, "fee rate per fill (0.001 = 0.1%)")
	backtestCmd.Flags().Float64Var(&btSlippage, "slippage", 0, "slippage rate applied to market and stop fills")
	backtestCmd.Flags().StringVarP(&btDBPath, "db", "d", "", "journal to a SQLite DB at this path")
	backtestCmd.Flags().BoolVar(&btCloseEnd, "close-end", true, "close open positions at end of data")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := backtestConfig()
	if err != nil {
		return err
	}

	engine, cleanup, err := buildEngine(cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("Running backtest %s\n", engine.RunID())
	for _, rc := range cfg.Routes {
		fmt.Printf("  %s:%s:%s strategy=%s data=%s\n",
			rc.Exchange, rc.Symbol, rc.Timeframe, rc.Strategy, rc.DataFile)
	}
	fmt.Println()

	report, err := engine.Run(context.Background())
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	report.Write(os.Stdout)
	return nil
}

// backtestConfig loads the config file, or builds a one-route config from the
// flags when no file is given.
func backtestConfig() (*config.Config, error) {
	if btConfigPath != "" {
		return config.LoadFromFile(btConfigPath)
	}
	if btCandles == "" {
		return nil, fmt.Errorf("either --config or --candles is required")
	}

	cfg := config.Default()
	cfg.Account.Balance = btBalance
	cfg.Engine.FeeRate = btFeeRate
	cfg.Engine.Slippage = btSlippage
	cfg.Engine.CloseOnEnd = btCloseEnd
	cfg.Routes = []config.RouteConfig{{
		Exchange:  btExchange,
		Symbol:    btSymbol,
		Timeframe: btTimeframe,
		Strategy:  btStrategy,
		DataFile:  btCandles,
	}}
	if btDBPath != "" {
		cfg.Journal = config.JournalConfig{Type: "sqlite", DBPath: btDBPath}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
