// Package config loads and validates run configuration from YAML or JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/tradesim/book"
	"github.com/rustyeddy/tradesim/broker"
	"github.com/rustyeddy/tradesim/market"
	"github.com/rustyeddy/tradesim/sim"
)

// Config represents a complete run configuration
type Config struct {
	Account AccountConfig `json:"account" yaml:"account"`
	Engine  EngineConfig  `json:"engine" yaml:"engine"`
	Routes  []RouteConfig `json:"routes" yaml:"routes"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	Currency string  `json:"currency" yaml:"currency"`
	Balance  float64 `json:"balance" yaml:"balance"`
}

// EngineConfig contains execution parameters shared by all routes
type EngineConfig struct {
	MarginRate        float64 `json:"margin_rate" yaml:"margin_rate"`
	FeeRate           float64 `json:"fee_rate" yaml:"fee_rate"`
	Slippage          float64 `json:"slippage" yaml:"slippage"`
	MaxUnitsPerCandle float64 `json:"max_units_per_candle,omitempty" yaml:"max_units_per_candle,omitempty"`
	TieBreak          string  `json:"tie_break,omitempty" yaml:"tie_break,omitempty"` // "stop-first" or "take-first"
	AllowFlip         bool    `json:"allow_flip" yaml:"allow_flip"`
	CloseOnEnd        bool    `json:"close_on_end" yaml:"close_on_end"`
	AbortOnError      bool    `json:"abort_on_error" yaml:"abort_on_error"`
}

// RouteConfig binds one data stream to one strategy
type RouteConfig struct {
	Exchange  string             `json:"exchange" yaml:"exchange"`
	Symbol    string             `json:"symbol" yaml:"symbol"`
	Timeframe string             `json:"timeframe" yaml:"timeframe"`
	Strategy  string             `json:"strategy" yaml:"strategy"`
	Params    map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`

	// Data source: a CSV file for backtests, a websocket URL for live runs.
	DataFile string `json:"data_file,omitempty" yaml:"data_file,omitempty"`
	WSURL    string `json:"ws_url,omitempty" yaml:"ws_url,omitempty"`
	From     string `json:"from,omitempty" yaml:"from,omitempty"` // RFC3339
	To       string `json:"to,omitempty" yaml:"to,omitempty"`     // RFC3339
}

// JournalConfig contains persistence parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "none", "csv" or "sqlite"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint for live runs
type MetricsConfig struct {
	Listen string `json:"listen,omitempty" yaml:"listen,omitempty"` // e.g. ":9090"
}

// LoadFromFile loads configuration from a file (JSON or YAML based on content)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive")
	}
	if c.Engine.MarginRate < 0 {
		return fmt.Errorf("engine.margin_rate must not be negative")
	}
	if c.Engine.FeeRate < 0 {
		return fmt.Errorf("engine.fee_rate must not be negative")
	}
	if c.Engine.Slippage < 0 {
		return fmt.Errorf("engine.slippage must not be negative")
	}
	if c.Engine.TieBreak != "" {
		if _, err := book.ParseTieBreak(c.Engine.TieBreak); err != nil {
			return fmt.Errorf("engine.tie_break: %w", err)
		}
	}
	if len(c.Routes) == 0 {
		return fmt.Errorf("at least one route is required")
	}
	seen := map[string]bool{}
	for i, r := range c.Routes {
		if r.Exchange == "" || r.Symbol == "" {
			return fmt.Errorf("routes[%d]: exchange and symbol are required", i)
		}
		if _, err := market.ParseTimeframe(r.Timeframe); err != nil {
			return fmt.Errorf("routes[%d]: %w", i, err)
		}
		if r.Strategy == "" {
			return fmt.Errorf("routes[%d]: strategy is required", i)
		}
		if r.DataFile == "" && r.WSURL == "" {
			return fmt.Errorf("routes[%d]: data_file or ws_url is required", i)
		}
		key := r.Exchange + ":" + r.Symbol + ":" + r.Timeframe
		if seen[key] {
			return fmt.Errorf("routes[%d]: duplicate route %s", i, key)
		}
		seen[key] = true
		for _, ts := range []string{r.From, r.To} {
			if ts == "" {
				continue
			}
			if _, err := time.Parse(time.RFC3339, ts); err != nil {
				return fmt.Errorf("routes[%d]: bad timestamp %q: %w", i, ts, err)
			}
		}
	}
	switch c.Journal.Type {
	case "", "none":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv' or 'sqlite'")
	}
	return nil
}

// BrokerConfig builds the broker configuration from the engine section.
func (c *Config) BrokerConfig() broker.Config {
	tb := book.StopFirst
	if c.Engine.TieBreak != "" {
		tb, _ = book.ParseTieBreak(c.Engine.TieBreak)
	}
	return broker.Config{
		MarginRate: c.Engine.MarginRate,
		FeeRate:    c.Engine.FeeRate,
		AllowFlip:  c.Engine.AllowFlip,
		Book: book.Config{
			TieBreak:          tb,
			Slippage:          c.Engine.Slippage,
			MaxUnitsPerCandle: c.Engine.MaxUnitsPerCandle,
		},
	}
}

// EngineOptions builds the driver options from the engine section.
func (c *Config) EngineOptions() sim.Options {
	return sim.Options{
		CloseOnEnd:           c.Engine.CloseOnEnd,
		AbortOnStrategyError: c.Engine.AbortOnError,
	}
}

// Route builds the market route for one route entry. The timeframe has been
// validated already.
func (r RouteConfig) Route() market.Route {
	tf, _ := market.ParseTimeframe(r.Timeframe)
	return market.Route{
		Exchange:  r.Exchange,
		Symbol:    r.Symbol,
		Timeframe: tf,
		Strategy:  r.Strategy,
	}
}

// Window returns the [from, to) filter for the route's historical data.
func (r RouteConfig) Window() (from, to time.Time) {
	if r.From != "" {
		from, _ = time.Parse(time.RFC3339, r.From)
	}
	if r.To != "" {
		to, _ = time.Parse(time.RFC3339, r.To)
	}
	return from, to
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			Currency: "USD",
			Balance:  100000,
		},
		Engine: EngineConfig{
			MarginRate: 1.0,
			FeeRate:    0.001,
			Slippage:   0,
			TieBreak:   "stop-first",
			CloseOnEnd: true,
		},
		Journal: JournalConfig{
			Type: "none",
		},
	}
}
