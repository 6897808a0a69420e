package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scheduler metrics
	SchedulerTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_ticks_total",
			Help: "Total number of scheduler ticks",
		},
	)

	StreamsDeferred = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_streams_deferred_total",
			Help: "Due streams deferred because an execution was in flight",
		},
	)

	StreamsPaused = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_streams_paused_total",
			Help: "Streams auto-paused after exhausting the backoff budget",
		},
	)

	// Pipeline metrics
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_executions_total",
			Help: "Total number of pipeline executions by focus and outcome",
		},
		[]string{"focus", "status"},
	)

	StageRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_retries_total",
			Help: "In-execution stage retries",
		},
		[]string{"stage"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Alert filter metrics
	AlertsAdmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alerts_admitted_total",
			Help: "News alerts admitted by the filter",
		},
	)

	AlertsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_rejected_total",
			Help: "News candidates rejected by the filter",
		},
		[]string{"reason"},
	)

	// Delivery metrics
	MessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_messages_published_total",
			Help: "Messages persisted and fanned out by the broker",
		},
		[]string{"kind"},
	)

	DeliveryDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_session_drops_total",
			Help: "Per-session pushes dropped; messages stay durable for replay",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "delivery_sessions_active",
			Help: "Number of live websocket sessions",
		},
	)
)
