package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_webhook_events_total",
		Help: "Webhook calls by event type and outcome",
	}, []string{"event_type", "outcome"})

	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reconciler_webhook_duration_seconds",
		Help:    "Webhook handling latency",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"route"})

	RemoteCallErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_remote_call_errors_total",
		Help: "Failed calls to Finverse and Storeganise by operation",
	}, []string{"service", "operation"})

	TokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_token_refresh_total",
		Help: "Finverse token refreshes by result",
	}, []string{"result"})

	InvoicesSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_invoices_settled_total",
		Help: "Invoices moved to a terminal state",
	}, []string{"state"})

	SideEffectFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_side_effect_failures_total",
		Help: "Best-effort side effects that failed without aborting the webhook",
	}, []string{"side_effect"})
)

// Outcome labels for WebhookEventsTotal.
const (
	OutcomeProcessed    = "processed"
	OutcomeDuplicate    = "duplicate"
	OutcomeIgnored      = "ignored"
	OutcomeUnauthorized = "unauthorized"
	OutcomeInvalid      = "invalid"
	OutcomeFailed       = "failed"
)
