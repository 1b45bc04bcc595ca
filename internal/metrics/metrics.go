// Package metrics holds the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storegoals"

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	SalesRecordedTotal  *prometheus.CounterVec
	GoalCacheTotal      *prometheus.CounterVec
	ProgressReports     *prometheus.CounterVec
	IngestMessagesTotal *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		SalesRecordedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_recorded_total",
			Help:      "Sales appended to the ledger by source.",
		}, []string{"source"}),
		GoalCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goal_cache_requests_total",
			Help:      "Monthly goal cache lookups by result.",
		}, []string{"result"}),
		ProgressReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_reports_total",
			Help:      "Progress reports computed by kind.",
		}, []string{"kind"}),
		IngestMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_messages_total",
			Help:      "Sale events consumed from the broker by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SalesRecordedTotal,
		m.GoalCacheTotal,
		m.ProgressReports,
		m.IngestMessagesTotal,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveHTTP(method string, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) SaleRecorded(source string) {
	if m == nil {
		return
	}
	m.SalesRecordedTotal.WithLabelValues(source).Inc()
}

// GoalCache records "hit", "miss" or "error".
func (m *Metrics) GoalCache(result string) {
	if m == nil {
		return
	}
	m.GoalCacheTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ProgressReport(kind string) {
	if m == nil {
		return
	}
	m.ProgressReports.WithLabelValues(kind).Inc()
}

func (m *Metrics) IngestMessage(outcome string) {
	if m == nil {
		return
	}
	m.IngestMessagesTotal.WithLabelValues(outcome).Inc()
}
