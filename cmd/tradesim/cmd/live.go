package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradesim/config"
	"github.com/rustyeddy/tradesim/metrics"
	"github.com/rustyeddy/tradesim/notify"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Run strategies against live exchange streams",
	Long: `Live connects each configured route to its websocket candle stream and
drives the strategies in real time, with the same matching and accounting as a
backtest. Ctrl-C stops the run cleanly and prints the summary.

Example:
  tradesim live --config live.yaml`,
	RunE: runLive,
}

var liveConfigPath string

func init() {
	rootCmd.AddCommand(liveCmd)
	liveCmd.Flags().StringVarP(&liveConfigPath, "config", "c", "", "path to run config (YAML or JSON) (required)")
	liveCmd.MarkFlagRequired("config")
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(liveConfigPath)
	if err != nil {
		return err
	}

	engine, cleanup, err := buildEngine(cfg, true)
	if err != nil {
		return err
	}
	defer cleanup()

	hub := notify.NewHub(256, func(ev notify.Event) {
		switch {
		case ev.Trade != nil:
			t := ev.Trade
			log.Printf("closed %s %s %.8f @ %.5f pnl=%.2f reason=%s",
				t.Route.Symbol, t.Side, t.Units, t.ExitPrice, t.PnL, t.Reason)
		case ev.Fill != nil:
			f := ev.Fill
			log.Printf("fill %s %s %s %.8f @ %.5f",
				f.Route.Symbol, f.Side, f.Tag, f.Units, f.Price)
		}
	})
	defer hub.Close()
	engine.SetNotifier(hub)

	if cfg.Metrics.Listen != "" {
		exp := metrics.NewExporter()
		engine.SetExporter(exp)
		mux := http.NewServeMux()
		mux.Handle("/metrics", exp.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Listen, mux); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
		log.Printf("serving metrics on %s/metrics", cfg.Metrics.Listen)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Starting live run %s (Ctrl-C to stop)\n", engine.RunID())
	report, err := engine.RunLive(ctx)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	report.Write(os.Stdout)
	return nil
}
