package cmd

import (
	"fmt"

	"github.com/rustyeddy/tradesim/broker"
	"github.com/rustyeddy/tradesim/config"
	"github.com/rustyeddy/tradesim/feed"
	"github.com/rustyeddy/tradesim/journal"
	"github.com/rustyeddy/tradesim/sim"
	"github.com/rustyeddy/tradesim/strategy"
)

// buildEngine assembles an engine from a validated configuration. The caller
// must invoke the returned cleanup after the run.
func buildEngine(cfg *config.Config, live bool) (*sim.Engine, func(), error) {
	jnl, err := openJournal(cfg.Journal)
	if err != nil {
		return nil, nil, err
	}

	engine := sim.NewEngine(broker.Account{
		Currency: cfg.Account.Currency,
		Balance:  cfg.Account.Balance,
	}, cfg.BrokerConfig(), cfg.EngineOptions())
	engine.SetJournal(jnl)

	cleanup := func() { _ = jnl.Close() }

	for _, rc := range cfg.Routes {
		route := rc.Route()

		strat, err := strategy.New(rc.Strategy, rc.Params)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("route %s: %w", route, err)
		}

		var f feed.Feed
		if live {
			if rc.WSURL == "" {
				cleanup()
				return nil, nil, fmt.Errorf("route %s: ws_url required for live runs", route)
			}
			f = feed.NewBinanceWS(route, rc.WSURL)
		} else {
			if rc.DataFile == "" {
				cleanup()
				return nil, nil, fmt.Errorf("route %s: data_file required for backtests", route)
			}
			from, to := rc.Window()
			f, err = feed.NewCSV(rc.DataFile, route, from, to)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("route %s: %w", route, err)
			}
		}

		if err := engine.AddRoute(route, f, strat); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	return engine, cleanup, nil
}

func openJournal(jc config.JournalConfig) (journal.Journal, error) {
	switch jc.Type {
	case "", "none":
		return journal.Nop{}, nil
	case "csv":
		return journal.NewCSV(jc.TradesFile, jc.EquityFile)
	case "sqlite":
		return journal.NewSQLite(jc.DBPath)
	}
	return nil, fmt.Errorf("unknown journal type %q", jc.Type)
}
