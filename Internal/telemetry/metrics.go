package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the live loop's operational gauges and counters
type Metrics struct {
	Equity        prometheus.Gauge
	OpenPositions prometheus.Gauge
	Decisions     *prometheus.CounterVec
	Rejections    prometheus.Counter
	TicksTotal    prometheus.Counter
	TickErrors    prometheus.Counter
}

// New registers the collectors on the default registry
func New() *Metrics {
	return &Metrics{
		Equity: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tidebot_equity_usd",
			Help: "Current account equity in USD.",
		}),
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tidebot_open_positions",
			Help: "Number of currently open positions.",
		}),
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tidebot_decisions_total",
			Help: "Aggregator decisions by direction.",
		}, []string{"direction"}),
		Rejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tidebot_risk_rejections_total",
			Help: "Signals rejected by the risk manager.",
		}),
		TicksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tidebot_ticks_total",
			Help: "Processed management ticks.",
		}),
		TickErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tidebot_tick_errors_total",
			Help: "Ticks skipped due to connector faults.",
		}),
	}
}
