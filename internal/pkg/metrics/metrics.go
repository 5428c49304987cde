// Package metrics holds the Prometheus collectors shared by the gateway
// client, the reconciler and the job queue.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GatewayRequestsTotal counts logical gateway calls by operation and outcome.
	GatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payfox",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Total UnivaPay calls by operation and outcome.",
	}, []string{"operation", "outcome"})

	// GatewayRetriesTotal counts retried attempts by operation and reason.
	GatewayRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payfox",
		Subsystem: "gateway",
		Name:      "retries_total",
		Help:      "Total UnivaPay attempts that were retried, by operation and reason.",
	}, []string{"operation", "reason"})

	// GatewayDuration tracks logical call latency including retries.
	GatewayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "payfox",
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "UnivaPay call duration in seconds, retries included.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// WebhookEventsTotal counts received webhooks by the record they matched.
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payfox",
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Total UnivaPay webhooks by match result (charge, subscription, none, error).",
	}, []string{"result"})

	// PollRunsTotal counts fallback poll executions by kind and outcome.
	PollRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payfox",
		Subsystem: "reconciler",
		Name:      "poll_runs_total",
		Help:      "Total provider status polls by kind and outcome.",
	}, []string{"kind", "outcome"})

	// StatusUpdatesTotal counts applied provider status updates by source.
	StatusUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payfox",
		Subsystem: "reconciler",
		Name:      "status_updates_total",
		Help:      "Total provider payment status writes by source (checkout, poll, webhook, capture, cancel).",
	}, []string{"source"})

	// JobsTotal counts finished background jobs by type and status.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payfox",
		Subsystem: "jobqueue",
		Name:      "jobs_total",
		Help:      "Total background jobs by type and final status.",
	}, []string{"type", "status"})
)
