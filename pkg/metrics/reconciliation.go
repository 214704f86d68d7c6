package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tithe"

// ReconciliationMetrics tracks intent creation, provider calls and callback outcomes.
type ReconciliationMetrics struct {
	opened           *prometheus.CounterVec
	callbacks        *prometheus.CounterVec
	initiateAttempts *prometheus.CounterVec
	initiateDuration *prometheus.HistogramVec
	expired          prometheus.Counter
}

// NewReconciliationMetrics registers the engine metrics on reg. A nil reg yields a no-op recorder.
func NewReconciliationMetrics(reg prometheus.Registerer) *ReconciliationMetrics {
	if reg == nil {
		return &ReconciliationMetrics{}
	}
	m := &ReconciliationMetrics{
		opened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_opened_total",
			Help:      "Payment intents opened, by provider and initiation outcome.",
		}, []string{"provider", "outcome"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_total",
			Help:      "Provider callbacks processed, by provider and reconciliation result.",
		}, []string{"provider", "result"}),
		initiateAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_initiate_attempts_total",
			Help:      "Individual provider initiation calls, including retries.",
		}, []string{"provider"}),
		initiateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_initiate_duration_seconds",
			Help:      "Wall time spent initiating a charge, across all retries.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"provider"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_expired_total",
			Help:      "Intents expired by the pending sweep.",
		}),
	}
	reg.MustRegister(m.opened, m.callbacks, m.initiateAttempts, m.initiateDuration, m.expired)
	return m
}

func (m *ReconciliationMetrics) IncOpened(provider, outcome string) {
	if m == nil || m.opened == nil {
		return
	}
	m.opened.WithLabelValues(label(provider), label(outcome)).Inc()
}

func (m *ReconciliationMetrics) IncCallback(provider, result string) {
	if m == nil || m.callbacks == nil {
		return
	}
	m.callbacks.WithLabelValues(label(provider), label(result)).Inc()
}

func (m *ReconciliationMetrics) IncInitiateAttempt(provider string) {
	if m == nil || m.initiateAttempts == nil {
		return
	}
	m.initiateAttempts.WithLabelValues(label(provider)).Inc()
}

func (m *ReconciliationMetrics) ObserveInitiate(provider string, d time.Duration) {
	if m == nil || m.initiateDuration == nil {
		return
	}
	m.initiateDuration.WithLabelValues(label(provider)).Observe(d.Seconds())
}

func (m *ReconciliationMetrics) AddExpired(n int) {
	if m == nil || m.expired == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

func label(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
