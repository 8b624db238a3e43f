package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pagetrim"

var (
	documentsLoaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_loaded_total",
			Help:      "Documents offered for loading by result (ok, invalid_input_type, source_unreadable, ...)",
		},
		[]string{"result"},
	)

	pageCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_cycles_total",
			Help:      "Page action changes by resulting action",
		},
		[]string{"action"},
	)

	exports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Document exports by result",
		},
		[]string{"result"},
	)

	exportLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Duration of a single document rebuild",
			Buckets:   prometheus.DefBuckets,
		},
	)

	pagesExported = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_exported_total",
			Help:      "Source pages seen by exports, labeled by action",
		},
		[]string{"action"},
	)

	openDocuments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_documents",
			Help:      "Documents currently held by the session",
		},
	)

	once sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(documentsLoaded, pageCycles, exports, exportLatency, pagesExported, openDocuments)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func IncLoaded(result string) { documentsLoaded.WithLabelValues(result).Inc() }
func IncCycle(action string) { pageCycles.WithLabelValues(action).Inc() }
func SetOpenDocuments(n int) { openDocuments.Set(float64(n)) }
func AddPagesExported(action string, n int) {
	if n > 0 {
		pagesExported.WithLabelValues(action).Add(float64(n))
	}
}

// ObserveExport records one rebuild attempt.
func ObserveExport(result string, dur time.Duration) {
	exports.WithLabelValues(result).Inc()
	exportLatency.Observe(dur.Seconds())
}
