package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the risk engine. Exposed on /metrics by the admin
// HTTP server.

var TicksProcessed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "risk",
	Subsystem: "engine",
	Name:      "ticks_processed_total",
	Help:      "Normalized ticks that entered the risk pipeline",
})

var TicksRejected = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "risk",
	Subsystem: "engine",
	Name:      "ticks_rejected_total",
	Help:      "Raw ticks dropped by validation (bad price, missing token)",
})

var StaleCacheSkips = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "risk",
	Subsystem: "engine",
	Name:      "stale_cache_skips_total",
	Help:      "Ticks skipped because a trading-data snapshot was older than the TTL",
})

var StopsPlaced = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "risk",
	Subsystem: "stoploss",
	Name:      "placed_total",
	Help:      "Initial protective stop orders placed",
})

var StopsTrailed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "risk",
	Subsystem: "stoploss",
	Name:      "trailed_total",
	Help:      "Stop orders moved to a more protective trigger",
})

var StopsSynced = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "risk",
	Subsystem: "stoploss",
	Name:      "qty_synced_total",
	Help:      "Stop orders modified to match the live net quantity",
})

var StopsCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "risk",
	Subsystem: "stoploss",
	Name:      "cancelled_total",
	Help:      "Stop orders cancelled, by reason",
}, []string{"reason"})

var TargetsBooked = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "risk",
	Subsystem: "target",
	Name:      "booked_total",
	Help:      "Partial profit bookings submitted",
})

var TimeExits = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "risk",
	Subsystem: "target",
	Name:      "time_exits_total",
	Help:      "Full closes forced by the time-based exit",
})

var BrokerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "risk",
	Subsystem: "broker",
	Name:      "errors_total",
	Help:      "Failed broker gateway calls, by operation",
}, []string{"op"})

var SweepCycles = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "risk",
	Subsystem: "execution",
	Name:      "sweep_cycles_total",
	Help:      "Trade-execution sweep cycles, by outcome",
}, []string{"outcome"})

var SignalsReceived = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "risk",
	Subsystem: "intake",
	Name:      "signals_received_total",
	Help:      "Webhook signals accepted and stored",
})

var FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "risk",
	Subsystem: "feed",
	Name:      "reconnects_total",
	Help:      "Tick feed websocket reconnect attempts",
})
