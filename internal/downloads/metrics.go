package downloads

import "github.com/prometheus/client_golang/prometheus"

var (
	downloadsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "packd",
			Subsystem: "downloads",
			Name:      "started_total",
			Help:      "Total number of downloads started",
		},
	)

	downloadsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "packd",
			Subsystem: "downloads",
			Name:      "finished_total",
			Help:      "Total number of downloads reaching a terminal state",
		},
		[]string{"state"},
	)

	downloadsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "packd",
			Subsystem: "downloads",
			Name:      "active",
			Help:      "Downloads currently tracked (non-terminal)",
		},
	)
)

func init() {
	prometheus.MustRegister(downloadsStartedTotal, downloadsFinishedTotal, downloadsActive)
}
