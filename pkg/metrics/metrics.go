// Package metrics exposes Prometheus counters for record operations, access
// decisions and maintenance sweeps.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/doodlesbykumbi/phivault/pkg/apperr"
)

const namespace = "phivault"

// Metrics holds the collectors of one process. Use New with a dedicated
// registry in tests.
type Metrics struct {
	gatherer prometheus.Gatherer

	operations     *prometheus.CounterVec
	decisions      *prometheus.CounterVec
	consentsClosed prometheus.Counter
	sweeps         prometheus.Counter
	keysDue        prometheus.Gauge
}

// New registers the collectors with reg. reg is also used to serve them
// when it implements prometheus.Gatherer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Ledger operations by name and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_decisions_total",
				Help:      "Record read decisions by result.",
			},
			[]string{"result"},
		),
		consentsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consents_expired_total",
			Help:      "Consents closed by expiry sweeps.",
		}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maintenance_sweeps_total",
			Help:      "Completed maintenance passes.",
		}),
		keysDue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "keys_due_rotation",
			Help:      "Keys expiring within the rotation horizon at the last pass.",
		}),
	}
	reg.MustRegister(m.operations, m.decisions, m.consentsClosed, m.sweeps, m.keysDue)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// Outcome is the label used for err: "success", the error kind, or
// "internal" for untagged errors.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	if kind, ok := apperr.KindOf(err); ok {
		return kind.String()
	}
	return "internal"
}

// ObserveOperation counts one call of operation that returned err. A nil
// Metrics ignores the call.
func (m *Metrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, Outcome(err)).Inc()
}

// ObserveDecision counts a record read decision.
func (m *Metrics) ObserveDecision(allowed bool) {
	if m == nil {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.decisions.WithLabelValues(result).Inc()
}

// ObserveSweep records a maintenance pass that closed expired consents and
// found keysDue keys close to expiry.
func (m *Metrics) ObserveSweep(expired, keysDue int) {
	if m == nil {
		return
	}
	m.sweeps.Inc()
	m.consentsClosed.Add(float64(expired))
	m.keysDue.Set(float64(keysDue))
}

// Handler serves the registered collectors.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
