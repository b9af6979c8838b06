package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// routerMetrics holds all Prometheus metrics owned by the Capture Router. A
// Router gets its instance from WithMetrics, which calls newRouterMetrics
// against the given registerer, so tests can inject a fresh
// prometheus.Registry without polluting the default one.
type routerMetrics struct {
	ticksTotal *prometheus.CounterVec

	extractionDurationSeconds *prometheus.HistogramVec

	windowsTracked prometheus.Gauge
}

// newRouterMetrics registers all router metrics against reg.
func newRouterMetrics(reg prometheus.Registerer) *routerMetrics {
	factory := promauto.With(reg)

	return &routerMetrics{
		ticksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ehl_router",
			Name:      "ticks_total",
			Help:      "Total number of Capture Router ticks, partitioned by outcome.",
		}, []string{"outcome"}),

		extractionDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ehl_router",
			Name:      "extraction_duration_seconds",
			Help:      "Wall-clock duration of extractor child-process invocations, partitioned by extraction kind.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"kind"}),

		windowsTracked: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ehl_router",
			Name:      "windows_tracked",
			Help:      "Number of windows currently tracked by the Capture Router.",
		}),
	}
}

// observeTick records the outcome of a single Tick call.
func (m *routerMetrics) observeTick(outcome Outcome) {
	if m == nil {
		return
	}
	m.ticksTotal.WithLabelValues(string(outcome)).Inc()
}

// observeExtraction records how long an extraction attempt took for kind.
func (m *routerMetrics) observeExtraction(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.extractionDurationSeconds.WithLabelValues(kind).Observe(seconds)
}

// setWindowsTracked updates the current tracked-window gauge.
func (m *routerMetrics) setWindowsTracked(n int) {
	if m == nil {
		return
	}
	m.windowsTracked.Set(float64(n))
}
