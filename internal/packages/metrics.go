package packages

import "github.com/prometheus/client_golang/prometheus"

var installsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "packd",
		Subsystem: "installs",
		Name:      "total",
		Help:      "Package installs by package type and result",
	},
	[]string{"package", "result"},
)

func init() {
	prometheus.MustRegister(installsTotal)
}
