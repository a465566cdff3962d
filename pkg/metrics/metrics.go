package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchAttempts records email dispatch attempts by template kind and result (success|failure).
	DispatchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epetcare_dispatch_attempts_total",
			Help: "Total number of email dispatch attempts",
		},
		[]string{"template", "result"},
	)

	// DispatchFallbacks counts sends that failed on the primary provider and were retried over SMTP.
	DispatchFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "epetcare_dispatch_fallbacks_total",
			Help: "Total number of dispatches retried through the SMTP fallback",
		},
	)

	// QueueDropped counts notifications that could not be enqueued for inline
	// dispatch and were left for the catch-up sweep.
	QueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "epetcare_dispatch_queue_dropped_total",
			Help: "Notifications left for the sweeper because the dispatch queue was full",
		},
	)

	// SweepProcessed records notification rows examined per sweep outcome (sent|failed|skipped).
	SweepProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epetcare_sweep_processed_total",
			Help: "Notification rows processed by the catch-up sweeper",
		},
		[]string{"outcome"},
	)

	// PendingNotifications tracks rows still waiting for email delivery after the last sweep.
	PendingNotifications = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "epetcare_pending_notifications",
			Help: "Notification rows with emailed=false observed by the last sweep",
		},
	)

	// APILatency records HTTP request latency by method, route and status.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "epetcare_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// OTPRequests counts password reset code requests by result (issued|unknown_email).
	OTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epetcare_otp_requests_total",
			Help: "Total number of password reset code requests",
		},
		[]string{"result"},
	)

	// OTPVerifications counts verification attempts by result (success|rejected).
	OTPVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epetcare_otp_verifications_total",
			Help: "Total number of password reset code verifications",
		},
		[]string{"result"},
	)
)
