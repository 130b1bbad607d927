package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradesim/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage run configuration files.

Subcommands:
  init     - Generate a starter configuration file
  validate - Validate an existing configuration file

Examples:
  tradesim config init --output run.yaml
  tradesim config validate --file run.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a starter configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "run.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	cfg.Routes = []config.RouteConfig{{
		Exchange:  "binance",
		Symbol:    "BTCUSDT",
		Timeframe: "H1",
		Strategy:  "ema-cross",
		Params:    map[string]float64{"fast": 10, "slow": 30},
		DataFile:  "data/btcusdt_h1.csv",
	}}
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("Created starter configuration: %s\n", configInitOutput)
	fmt.Println("\nEdit the file and run with:")
	fmt.Printf("  tradesim backtest --config %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("Configuration valid: %s\n", configValidatePath)
	fmt.Printf("  Account: %.2f %s\n", cfg.Account.Balance, cfg.Account.Currency)
	fmt.Printf("  Routes:  %d\n", len(cfg.Routes))
	for _, r := range cfg.Routes {
		fmt.Printf("    %s:%s:%s strategy=%s\n", r.Exchange, r.Symbol, r.Timeframe, r.Strategy)
	}
	fmt.Printf("  Journal: %s\n", cfg.Journal.Type)
	return nil
}
