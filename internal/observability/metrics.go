package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	retrievalDuration  prometheus.Histogram
	retrievalTotal     prometheus.Counter
	embeddingFallbacks prometheus.Counter

	memoryWriteTotal   *prometheus.CounterVec
	evictionsTotal     *prometheus.CounterVec
	contextInjections  *prometheus.CounterVec
	factsStored        prometheus.Gauge
	summariesStored    prometheus.Gauge

	activeSessions      prometheus.Gauge
	sessionSaveDuration prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			retrievalDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_retrieval_duration_seconds",
					Help:    "Memory retrieval duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			retrievalTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_retrieval_total",
					Help: "Total memory retrievals.",
				},
			),
			embeddingFallbacks: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_embedding_fallbacks_total",
					Help: "Total embedding failures degraded to keyword scoring.",
				},
			),
			memoryWriteTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_write_total",
					Help: "Total memory writes by record kind.",
				},
				[]string{"kind"},
			),
			evictionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_evictions_total",
					Help: "Total records removed by retention sweeps, by kind.",
				},
				[]string{"kind"},
			),
			contextInjections: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_context_injections_total",
					Help: "Total context injections by memory state.",
				},
				[]string{"state"},
			),
			factsStored: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_facts_stored",
					Help: "Current number of stored facts.",
				},
			),
			summariesStored: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_summaries_stored",
					Help: "Current number of stored conversation summaries.",
				},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current active session count.",
				},
			),
			sessionSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_save_duration_seconds",
					Help:    "Session transcript save duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
		}

		prometheus.MustRegister(
			m.retrievalDuration,
			m.retrievalTotal,
			m.embeddingFallbacks,
			m.memoryWriteTotal,
			m.evictionsTotal,
			m.contextInjections,
			m.factsStored,
			m.summariesStored,
			m.activeSessions,
			m.sessionSaveDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordRetrieval(duration time.Duration) {
	m := getMetrics()
	m.retrievalTotal.Inc()
	m.retrievalDuration.Observe(duration.Seconds())
}

func RecordEmbeddingFallback() {
	getMetrics().embeddingFallbacks.Inc()
}

func RecordMemoryWrite(kind string) {
	getMetrics().memoryWriteTotal.WithLabelValues(kind).Inc()
}

func RecordEvictions(kind string, count int) {
	getMetrics().evictionsTotal.WithLabelValues(kind).Add(float64(count))
}

func RecordContextInjection(state string) {
	getMetrics().contextInjections.WithLabelValues(state).Inc()
}

func SetFacts(count int) {
	getMetrics().factsStored.Set(float64(count))
}

func SetSummaries(count int) {
	getMetrics().summariesStored.Set(float64(count))
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordSessionSave(duration time.Duration) {
	getMetrics().sessionSaveDuration.Observe(duration.Seconds())
}
