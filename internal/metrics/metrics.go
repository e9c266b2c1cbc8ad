package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Регистрируются в дефолтном реестре, отдаются health-модулем на /metrics.
var (
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zone_bot_decisions_total",
		Help: "Decisions taken by the zone engine",
	}, []string{"symbol", "kind", "reason"})

	Orders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zone_bot_orders_total",
		Help: "Orders by venue, side and terminal status",
	}, []string{"venue", "side", "status"})

	OrderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zone_bot_order_latency_seconds",
		Help:    "Time from submit to terminal status",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"venue"})

	OpenLegs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "zone_bot_open_legs",
		Help: "Open legs per instrument and book",
	}, []string{"symbol", "book"})

	SessionProfitPct = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zone_bot_session_profit_pct",
		Help: "Sum of realized percentage profit over the session",
	})

	TickErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zone_bot_tick_errors_total",
		Help: "Failed or skipped instrument ticks",
	}, []string{"symbol", "stage"})
)
