package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersCreated counts orders accepted and committed by the intake path
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_orders_created_total",
		Help: "Total number of orders committed together with their outbox event",
	})

	// OrderConflicts counts duplicate submissions rejected by the idempotency guard
	OrderConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_order_conflicts_total",
		Help: "Total number of duplicate order submissions rejected",
	})

	// EventsPublished tracks relay throughput
	// The status label separates confirmed deliveries from aborted ones
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "Total number of outbox events the relay attempted to deliver",
	}, []string{"status"})

	// PublishRetries counts individual broker attempts that failed and were retried
	// Frequent increments indicate broker instability
	PublishRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_retries_total",
		Help: "Total number of failed publish attempts that were retried",
	})

	// CycleDuration measures how long a full relay cycle takes
	// Use this to identify degradation in Postgres or RabbitMQ
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_relay_cycle_duration_seconds",
		Help:    "Duration of a relay fetch/drain/persist cycle in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// BatchSize tracks the number of pending events captured per cycle
	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_relay_batch_size",
		Help:    "Number of pending events fetched per relay cycle",
		Buckets: []float64{1, 10, 50, 100, 500, 1000},
	})

	// Backlog is the primary indicator of relay lag
	// A growing value means events are stuck, likely behind a poison event
	Backlog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_backlog",
		Help: "Current number of unprocessed events in the outbox table",
	})
)
