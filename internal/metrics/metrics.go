// Package metrics exposes Prometheus instruments for the matching engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Settlements counts committed settlements by trigger ("batch" or "directed")
	Settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "otc",
			Name:      "settlements_total",
			Help:      "Committed settlements by trigger.",
		},
		[]string{"trigger"},
	)

	// SettlementConflicts counts pairings skipped because the rows changed after the scan
	SettlementConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "otc",
			Name:      "settlement_conflicts_total",
			Help:      "Pairings skipped because a concurrent settlement consumed the quantity.",
		},
		[]string{"trigger"},
	)

	// SettledQuantity sums settled fill amounts
	SettledQuantity = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "otc",
			Name:      "settled_quantity_total",
			Help:      "Sum of settled fill quantities.",
		},
	)

	// BatchDuration observes how long one batch matching run takes
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "otc",
			Name:      "batch_match_duration_seconds",
			Help:      "Duration of batch matching runs.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// OrdersCreated counts created orders by side
	OrdersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "otc",
			Name:      "orders_created_total",
			Help:      "Orders created by side.",
		},
		[]string{"side"},
	)

	// PublishFailures counts trade events that could not be delivered
	PublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "otc",
			Name:      "trade_publish_failures_total",
			Help:      "Trade events that failed to publish, by sink.",
		},
		[]string{"sink"},
	)
)
