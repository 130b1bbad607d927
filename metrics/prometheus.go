package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rustyeddy/tradesim/book"
	"github.com/rustyeddy/tradesim/position"
)

// Exporter publishes live-run counters and gauges in Prometheus exposition
// format. Backtests normally skip it; live runs serve it on /metrics.
type Exporter struct {
	fills  *prometheus.CounterVec
	trades *prometheus.CounterVec
	orders *prometheus.CounterVec
	equity prometheus.Gauge

	reg *prometheus.Registry
}

func NewExporter() *Exporter {
	e := &Exporter{
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_fills_total",
			Help: "Order fills by side and tag",
		}, []string{"side", "tag"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_trades_total",
			Help: "Closed trades by result (win|loss|flat)",
		}, []string{"result"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_orders_total",
			Help: "Orders submitted by side",
		}, []string{"side"}),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradesim_equity",
			Help: "Current account equity",
		}),
		reg: prometheus.NewRegistry(),
	}
	e.reg.MustRegister(e.fills, e.trades, e.orders, e.equity)
	return e
}

func (e *Exporter) ObserveFill(f book.Fill) {
	e.fills.WithLabelValues(f.Side.String(), f.Tag.String()).Inc()
}

func (e *Exporter) ObserveOrder(side book.Side) {
	e.orders.WithLabelValues(side.String()).Inc()
}

func (e *Exporter) ObserveTrade(t position.Trade) {
	result := "flat"
	switch net := t.PnL - t.Fees; {
	case net > 0:
		result = "win"
	case net < 0:
		result = "loss"
	}
	e.trades.WithLabelValues(result).Inc()
}

func (e *Exporter) SetEquity(v float64) {
	e.equity.Set(v)
}

// Handler serves the registry; mount it at /metrics.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{})
}
