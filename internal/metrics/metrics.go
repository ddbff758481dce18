// Package metrics provides Prometheus metrics for catalogauth sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for metrics.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

const namespace = "catalogauth"

// Metrics holds the session collectors. It implements session.Recorder.
type Metrics struct {
	// ExchangesTotal counts token exchanges by phase (login, refresh) and result.
	ExchangesTotal *prometheus.CounterVec

	// ExchangeDuration observes token endpoint latency by phase.
	ExchangeDuration *prometheus.HistogramVec

	// SessionActive is 1 while a session is scheduled for refresh, 0 otherwise.
	SessionActive prometheus.Gauge

	// SessionExpiry is the current token's expiry as a Unix timestamp, 0 without a session.
	SessionExpiry prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ExchangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "token",
				Name:      "exchanges_total",
				Help:      "Total number of token exchanges",
			},
			[]string{"phase", "result"},
		),
		ExchangeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "token",
				Name:      "exchange_duration_seconds",
				Help:      "Duration of token exchanges in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			},
			[]string{"phase"},
		),
		SessionActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "active",
				Help:      "Whether a session is active (1=active, 0=idle)",
			},
		),
		SessionExpiry: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "expiry_timestamp_seconds",
				Help:      "Expiry of the current access token as a Unix timestamp",
			},
		),
	}
	reg.MustRegister(m.ExchangesTotal, m.ExchangeDuration, m.SessionActive, m.SessionExpiry)
	return m
}

// ObserveExchange records one token exchange.
func (m *Metrics) ObserveExchange(phase string, elapsed time.Duration, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.ExchangesTotal.WithLabelValues(phase, result).Inc()
	m.ExchangeDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
}

// SetSession records whether a session is active and when its token expires.
func (m *Metrics) SetSession(active bool, expiresAt time.Time) {
	if !active {
		m.SessionActive.Set(0)
		m.SessionExpiry.Set(0)
		return
	}
	m.SessionActive.Set(1)
	m.SessionExpiry.Set(float64(expiresAt.Unix()))
}
