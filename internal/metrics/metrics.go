package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	gatherer prometheus.Gatherer

	usersProvisioned *prometheus.CounterVec
	provisionRejects *prometheus.CounterVec
	provisionErrors  *prometheus.CounterVec
	provisionLatency *prometheus.HistogramVec
	hashDuration     *prometheus.HistogramVec
	outboxEnqueued   *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New registers the service collectors on reg. A nil reg uses a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		usersProvisioned: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "users_provisioned_total",
				Help: "Total number of users committed, by creation path",
			},
			[]string{"path"},
		),
		provisionRejects: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "users_provision_rejected_total",
				Help: "Total number of provisioning requests rejected by validation or business rules",
			},
			[]string{"path", "code"},
		),
		provisionErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "users_provision_errors_total",
				Help: "Total number of provisioning requests that failed unexpectedly and were rolled back",
			},
			[]string{"path"},
		),
		provisionLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "users_provision_duration_seconds",
				Help:    "End-to-end provisioning duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"path"},
		),
		hashDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "users_password_hash_duration_seconds",
				Help:    "Argon2id hash and verify duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"op"},
		),
		outboxEnqueued: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "users_outbox_enqueued_total",
				Help: "Total number of outbox records committed, by event type",
			},
			[]string{"event_type"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

func (m *Metrics) UserProvisioned(path string) {
	if m == nil {
		return
	}
	m.usersProvisioned.WithLabelValues(path).Inc()
}

func (m *Metrics) ProvisionRejected(path, code string) {
	if m == nil {
		return
	}
	m.provisionRejects.WithLabelValues(path, code).Inc()
}

func (m *Metrics) ProvisionFailed(path string) {
	if m == nil {
		return
	}
	m.provisionErrors.WithLabelValues(path).Inc()
}

func (m *Metrics) ObserveProvision(path string, d time.Duration) {
	if m == nil {
		return
	}
	m.provisionLatency.WithLabelValues(path).Observe(d.Seconds())
}

// ObserveHash matches the auth.HasherOpts.Observe signature.
func (m *Metrics) ObserveHash(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.hashDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) OutboxEnqueued(eventType string) {
	if m == nil {
		return
	}
	m.outboxEnqueued.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
