package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	provisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeforge_provisions_total",
			Help: "Provisioning pipeline outcomes.",
		},
		[]string{"outcome"},
	)

	deletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeforge_deletions_total",
			Help: "Deletion pipeline outcomes.",
		},
		[]string{"outcome"},
	)

	reapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storeforge_reaped_stores_total",
			Help: "Stores force-failed by the provisioning timeout reaper.",
		},
	)
)

func init() {
	prometheus.MustRegister(provisionsTotal)
	prometheus.MustRegister(deletionsTotal)
	prometheus.MustRegister(reapedTotal)
}
