package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storeapi"

var (
	Registry = prometheus.NewRegistry()

	StorageOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Storage operations by op kind, routed target and outcome.",
		},
		[]string{"kind", "target", "outcome"},
	)

	StorageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operation_seconds",
			Help:      "Storage operation latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind", "target"},
	)

	ReplicaFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "replica_fallbacks_total",
			Help:      "General reads served by the primary because the replica was unavailable.",
		},
	)

	ImportedProducts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "products_total",
			Help:      "Feed items processed by the importer, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		StorageOperations,
		StorageLatency,
		ReplicaFallbacks,
		ImportedProducts,
	)
}
