// Package metrics exposes pipeline counters for Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "autopost"

type Metrics struct {
	ItemsCollected   *prometheus.CounterVec
	ItemsRejected    *prometheus.CounterVec
	ItemsQueued      *prometheus.CounterVec
	Posts            *prometheus.CounterVec
	DispatchDeferred *prometheus.CounterVec
	QueueExpired     *prometheus.CounterVec
	SourceErrors     *prometheus.CounterVec
	CollectDuration  *prometheus.HistogramVec
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		ItemsCollected: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_collected_total",
				Help:      "Items returned by source collectors",
			},
			[]string{"niche", "source"},
		),
		ItemsRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_rejected_total",
				Help:      "Collected items not queued, by reason",
			},
			[]string{"niche", "reason"}, // seen, duplicate_url, similar, unformatted, invalid
		),
		ItemsQueued: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_queued_total",
				Help:      "Items added to the post queue",
			},
			[]string{"niche"},
		),
		Posts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "posts_total",
				Help:      "Dispatch attempts by outcome",
			},
			[]string{"niche", "result"},
		),
		DispatchDeferred: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_deferred_total",
				Help:      "Dispatch attempts held back by the rate gate",
			},
			[]string{"niche", "reason"},
		),
		QueueExpired: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_expired_total",
				Help:      "Queue entries skipped for being stale",
			},
			[]string{"niche"},
		),
		SourceErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_errors_total",
				Help:      "Failed collector runs",
			},
			[]string{"niche", "source"},
		),
		CollectDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "collect_duration_seconds",
				Help:      "Duration of collect-and-queue passes in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"niche", "source"},
		),
	}
}
