package authclient

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeRefreshed = "refreshed"
	outcomeAdopted   = "adopted"
	outcomeFailed    = "failed"
)

// Metrics counts refresh activity of a Transport. A nil *Metrics records nothing.
type Metrics struct {
	refreshes      *prometheus.CounterVec
	queued         prometheus.Counter
	retried        prometheus.Counter
	sessionExpired prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "deskclient", Name: "token_refreshes_total", Help: "Token refresh attempts by outcome."},
			[]string{"outcome"},
		),
		queued: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: "deskclient", Name: "requests_queued_total", Help: "Requests that waited on an in-flight refresh."},
		),
		retried: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: "deskclient", Name: "requests_retried_total", Help: "Requests replayed with a new access token."},
		),
		sessionExpired: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: "deskclient", Name: "sessions_expired_total", Help: "Sessions ended by a failed refresh."},
		),
	}

	reg.MustRegister(m.refreshes, m.queued, m.retried, m.sessionExpired)
	return m
}

func (m *Metrics) observeRefresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeQueued() {
	if m == nil {
		return
	}
	m.queued.Inc()
}

func (m *Metrics) observeRetried() {
	if m == nil {
		return
	}
	m.retried.Inc()
}

func (m *Metrics) observeSessionExpired() {
	if m == nil {
		return
	}
	m.sessionExpired.Inc()
}
