package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drover_events_ingested_total",
			Help: "Total number of callback events admitted by type.",
		},
		[]string{"type"},
	)

	EventsDuplicateTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drover_events_duplicate_total",
			Help: "Total number of callback events rejected as duplicates.",
		},
	)

	EventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drover_events_dropped_total",
			Help: "Total number of admitted events whose effect was dropped post-admission.",
		},
		[]string{"type", "reason"},
	)

	LeaseRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drover_lease_rejections_total",
			Help: "Total number of strong updates rejected by the lease authority.",
		},
		[]string{"node_id", "reason"},
	)

	RunsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drover_runs_created_total",
			Help: "Total number of runs created.",
		},
	)

	NodesMarkedOfflineTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drover_nodes_marked_offline_total",
			Help: "Total number of nodes marked offline by the heartbeat sweeper.",
		},
	)
)

// Register registers all custom drover metrics with the default Prometheus registry.
func Register() {
	prometheus.MustRegister(
		EventsIngestedTotal,
		EventsDuplicateTotal,
		EventsDroppedTotal,
		LeaseRejectionsTotal,
		RunsCreatedTotal,
		NodesMarkedOfflineTotal,
	)
}
