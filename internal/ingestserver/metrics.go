package ingestserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ingestdMetrics holds all Prometheus metrics owned by the ingestion
// server. A single instance is created in New and stored on Server so that
// tests can inject a fresh prometheus.Registry without polluting the
// default one.
type ingestdMetrics struct {
	// requestsTotal counts completed process(payload) calls, partitioned by
	// the response action: created, updated, skipped, or failed.
	requestsTotal *prometheus.CounterVec

	// requestDurationSeconds records the wall-clock duration of each
	// process(payload) call.
	requestDurationSeconds prometheus.Histogram

	// dedupCacheHitsTotal counts dedup cache lookups, partitioned by
	// outcome: new, duplicate, or changed.
	dedupCacheHitsTotal *prometheus.CounterVec

	// chunksWrittenTotal counts chunks persisted across all documents.
	chunksWrittenTotal prometheus.Counter
}

// newIngestdMetrics registers all server metrics against reg.
func newIngestdMetrics(reg prometheus.Registerer) *ingestdMetrics {
	factory := promauto.With(reg)

	return &ingestdMetrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ehl_ingestd",
			Name:      "requests_total",
			Help:      "Total number of ingestion requests processed, partitioned by action.",
		}, []string{"action"}),

		requestDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ehl_ingestd",
			Name:      "request_duration_seconds",
			Help:      "Wall-clock duration of process(payload) calls.",
			Buckets:   prometheus.DefBuckets,
		}),

		dedupCacheHitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ehl_ingestd",
			Subsystem: "dedup_cache",
			Name:      "hits_total",
			Help:      "Total dedup cache lookups, partitioned by outcome.",
		}, []string{"result"}),

		chunksWrittenTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ehl_ingestd",
			Name:      "chunks_written_total",
			Help:      "Total chunks persisted across all documents.",
		}),
	}
}

func (m *ingestdMetrics) observeRequest(action string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(action).Inc()
	m.requestDurationSeconds.Observe(seconds)
}

func (m *ingestdMetrics) observeDedup(result string) {
	if m == nil {
		return
	}
	m.dedupCacheHitsTotal.WithLabelValues(result).Inc()
}

func (m *ingestdMetrics) addChunksWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.chunksWrittenTotal.Add(float64(n))
}
