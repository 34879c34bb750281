package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Order lifecycle
	// ============================================
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ud_orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ud_orders_completed_total",
		Help: "Total number of orders completed",
	})

	OrdersFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ud_orders_failed_total",
			Help: "Total number of orders failed",
		},
		[]string{"reason"},
	)

	StageRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ud_stage_retries_total",
			Help: "Total retry jobs published per stage",
		},
		[]string{"stage"},
	)

	ResidualJobs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ud_residual_jobs_total",
		Help: "Total residual-delay jobs published",
	})

	RecoveredOrders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ud_recovered_orders_total",
			Help: "Orders re-published by the recovery service per target stage",
		},
		[]string{"stage"},
	)

	// ============================================
	// Balance watcher
	// ============================================
	WatcherTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ud_watcher_tick_duration_seconds",
		Help:    "Balance watcher tick duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	WatcherAddressesScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ud_watcher_addresses_scanned_total",
		Help: "Total cached addresses scanned by the balance watcher",
	})

	// ============================================
	// Infrastructure status
	// ============================================
	BrokerConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ud_broker_connection_status",
		Help: "RabbitMQ connection status (1=connected, 0=disconnected)",
	})

	RedisConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ud_redis_connection_status",
		Help: "Redis connection status (1=connected, 0=disconnected)",
	})

	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ud_messages_dropped_total",
			Help: "Messages acked without processing (unparseable or orphaned)",
		},
		[]string{"stage", "reason"},
	)
)
