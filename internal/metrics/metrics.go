// Package metrics holds the Prometheus collectors of the ledger and the trading loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "poolbot"

// LedgerOperations ledger mutations by operation and result kind.
var LedgerOperations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "operations_total",
		Help:      "Ledger mutations by operation and result",
	},
	[]string{"op", "result"},
)

// PooledCapital sum of trading balances across wallets.
var PooledCapital = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "pooled_capital",
		Help:      "Sum of trading balances across all wallets",
	},
)

// PoolAggregationFailures failed pooled capital reads.
var PoolAggregationFailures = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "aggregation_failures_total",
		Help:      "Failed reads of the pooled capital",
	},
)

// Equity exchange-side pooled equity in quote currency.
var Equity = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "equity",
		Help:      "Pooled equity valued at the last price",
	},
)

// HighWaterMark peak equity since the last reset.
var HighWaterMark = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "high_water_mark",
		Help:      "Peak pooled equity since the last freeze",
	},
)

// Drawdown fraction below the high-water-mark.
var Drawdown = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "drawdown_ratio",
		Help:      "Current drawdown from the high-water-mark",
	},
)

// Frozen 1 while trading is frozen.
var Frozen = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "frozen",
		Help:      "1 while the drawdown guard keeps trading frozen",
	},
)

// Liquidations liquidation attempts by result.
var Liquidations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "liquidations_total",
		Help:      "Liquidation attempts by result",
	},
	[]string{"result"},
)

// Ticks execution loop ticks by outcome.
var Ticks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "loop",
		Name:      "ticks_total",
		Help:      "Execution loop ticks by outcome",
	},
	[]string{"outcome"},
)

// TickDuration tick wall time.
var TickDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "loop",
		Name:      "tick_duration_seconds",
		Help:      "Execution loop tick duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
)

// Orders orders submitted by side and result.
var Orders = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "loop",
		Name:      "orders_total",
		Help:      "Orders submitted by side and result",
	},
	[]string{"side", "result"},
)

// Signals strategy signals by kind.
var Signals = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "strategy",
		Name:      "signals_total",
		Help:      "Strategy signals by kind",
	},
	[]string{"signal"},
)

// TrailingStop current trailing stop price, 0 when flat.
var TrailingStop = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "strategy",
		Name:      "trailing_stop",
		Help:      "Current trailing stop price, 0 without a position",
	},
)

// HTTPRequests API requests by route and status code.
var HTTPRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "API requests by route and status",
	},
	[]string{"route", "status"},
)
