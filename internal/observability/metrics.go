package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	journalsPosted  *prometheus.CounterVec
	documents       *prometheus.CounterVec
	movements       *prometheus.CounterVec
	postingDuration *prometheus.HistogramVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgercore_http_requests_total",
			Help: "HTTP requests served by the ops router by route and status.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledgercore_http_request_duration_seconds",
			Help:    "Ops router request duration per route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		journalsPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgercore_journal_entries_posted_total",
			Help: "Journal entries moved to POSTED by source type.",
		}, []string{"source"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgercore_inventory_documents_total",
			Help: "Inventory documents processed by type and outcome.",
		}, []string{"type", "outcome"}),
		movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgercore_stock_movements_total",
			Help: "Stock ledger movements appended by reference type.",
		}, []string{"reference"}),
		postingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledgercore_posting_duration_seconds",
			Help:    "Time spent inside posting transactions.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
	}
	registry.MustRegister(m.requestsTotal, m.requestDuration, m.journalsPosted, m.documents,
		m.movements, m.postingDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	return m
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// JournalPosted counts a posted journal entry.
func (m *Metrics) JournalPosted(source string) {
	if m == nil {
		return
	}
	m.journalsPosted.WithLabelValues(source).Inc()
}

// DocumentProcessed counts an inventory document by outcome ("posted", "rejected", "failed").
func (m *Metrics) DocumentProcessed(docType, outcome string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(docType, outcome).Inc()
}

// StockMovement counts an appended stock ledger entry.
func (m *Metrics) StockMovement(reference string) {
	if m == nil {
		return
	}
	m.movements.WithLabelValues(reference).Inc()
}

// ObservePosting records the duration of a posting operation.
func (m *Metrics) ObservePosting(operation string, started time.Time) {
	if m == nil {
		return
	}
	m.postingDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
