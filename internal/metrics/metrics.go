// Package metrics defines the Prometheus instruments of the auth service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

type Metrics struct {
	Operations       *prometheus.CounterVec
	MailDeliveries   *prometheus.CounterVec
	PasswordHash     *prometheus.HistogramVec
	ChallengesPurged prometheus.Counter
}

// NewMetrics creates and registers the auth metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_operations_total",
				Help: "Total number of auth operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		MailDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_mail_deliveries_total",
				Help: "Total number of transactional mail deliveries by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		PasswordHash: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auth_password_hash_seconds",
				Help:    "Duration of password hash and verify calls",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
		ChallengesPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_challenges_purged_total",
			Help: "Total number of expired challenges removed by the janitor",
		}),
	}

	reg.MustRegister(m.Operations, m.MailDeliveries, m.PasswordHash, m.ChallengesPurged)
	return m
}

// NewRegistry returns a registry carrying the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler exposes the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func (m *Metrics) Operation(op, outcome string) {
	m.Operations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) Mail(kind, outcome string) {
	m.MailDeliveries.WithLabelValues(kind, outcome).Inc()
}

// ObserveHash matches the password.Pool Observe hook.
func (m *Metrics) ObserveHash(op string, d time.Duration) {
	m.PasswordHash.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) Purged(n int64) {
	if n > 0 {
		m.ChallengesPurged.Add(float64(n))
	}
}
