package introspect

import "github.com/prometheus/client_golang/prometheus"

// Metrics mirrors dispatch.Stats() as Prometheus gauges, grounded on the
// teacher's pkg/consensus/prometheus.go (package-scoped gauge vars plus an
// explicit register/update pair rather than auto-instrumented middleware).
var (
	compiledTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tracejit",
			Name:      "compiled_total",
			Help:      "Total number of code objects or specializations compiled.",
		},
	)
	failedTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tracejit",
			Name:      "compile_failed_total",
			Help:      "Total number of compilation attempts that failed.",
		},
	)
	specializedTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tracejit",
			Name:      "specialized_total",
			Help:      "Total number of argument-shape specializations compiled.",
		},
	)
)

var metricsRegistered bool

// RegisterMetrics installs the gauges with the default Prometheus
// registry. Safe to call once per process; a second call is a no-op.
func RegisterMetrics() {
	if metricsRegistered {
		return
	}
	prometheus.MustRegister(compiledTotal, failedTotal, specializedTotal)
	metricsRegistered = true
}

// UpdateMetrics pushes one Stats snapshot into the registered gauges.
func UpdateMetrics(compiled, failed, specialized int64) {
	compiledTotal.Set(float64(compiled))
	failedTotal.Set(float64(failed))
	specializedTotal.Set(float64(specialized))
}
