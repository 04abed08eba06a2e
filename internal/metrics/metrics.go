// Package metrics exposes reconciliation and HTTP metrics to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/idrecon/internal/contact"
	"github.com/roach88/idrecon/internal/reconcile"
)

const namespace = "idrecon"

var _ reconcile.Recorder = (*Metrics)(nil)

// Metrics holds every collector idrecon registers.
type Metrics struct {
	identifyTotal    *prometheus.CounterVec
	identifyDuration prometheus.Histogram
	demotions        prometheus.Counter
	relinked         prometheus.Counter
	errors           *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
// Registration panics on duplicate collectors, like prometheus.MustRegister.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		identifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identify_total",
			Help:      "Identify calls by outcome.",
		}, []string{"outcome"}),
		identifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "identify_duration_seconds",
			Help:      "Latency of successful Identify calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		demotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_demotions_total",
			Help:      "Primaries demoted to secondary while merging clusters.",
		}),
		relinked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_relinked_total",
			Help:      "Contacts re-pointed at a surviving primary.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed operations by operation and error code.",
		}, []string{"op", "code"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.identifyTotal,
		m.identifyDuration,
		m.demotions,
		m.relinked,
		m.errors,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// ObserveIdentify implements reconcile.Recorder.
func (m *Metrics) ObserveIdentify(outcome reconcile.Outcome, d time.Duration) {
	m.identifyTotal.WithLabelValues(string(outcome)).Inc()
	m.identifyDuration.Observe(d.Seconds())
}

// ObserveMerge implements reconcile.Recorder.
func (m *Metrics) ObserveMerge(demoted, relinked int) {
	m.demotions.Add(float64(demoted))
	m.relinked.Add(float64(relinked))
}

// ObserveError implements reconcile.Recorder.
func (m *Metrics) ObserveError(op string, code contact.ErrorCode) {
	if code == "" {
		code = "UNKNOWN"
	}
	m.errors.WithLabelValues(op, string(code)).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// Handler serves the text exposition format for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
