// Package metrics exposes the engine's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sigtracker_messages_processed_total",
		Help: "Messages that completed the extract/dedup/cluster hot path.",
	})

	MalformedDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sigtracker_malformed_dropped_total",
		Help: "Raw messages dropped for empty text or undecodable timestamps.",
	})

	DuplicatesSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sigtracker_duplicates_suppressed_total",
		Help: "Messages suppressed by the dedup window.",
	})

	QueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sigtracker_queue_dropped_total",
		Help: "Messages dropped at ingest because the queue passed high water.",
	})

	OracleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sigtracker_oracle_failures_total",
		Help: "Soft failures per oracle (embedding, market, summarizer).",
	}, []string{"oracle"})

	SinkDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sigtracker_sink_drops_total",
		Help: "Retired clusters dropped after the persistence buffer filled.",
	})

	QuarantinedClusters = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sigtracker_quarantined_clusters_total",
		Help: "Clusters retired early after an internal invariant violation.",
	})

	SubscribersDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sigtracker_subscribers_dropped_total",
		Help: "Push subscribers removed for not keeping up.",
	})
)
