// internal/observability/metrics.go
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts retry, fallback and session activity. A nil *Metrics is valid
// and records nothing, so components can be built without instrumentation.
type Metrics struct {
	ActionAttempts *prometheus.CounterVec
	Fallbacks      *prometheus.CounterVec
	ActionOutcomes *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	LoginAttempts  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when reg is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wardrunner",
			Name:      "action_attempts_total",
			Help:      "Primitive UI operation attempts, labelled by operation and failure class (\"ok\" on success).",
		}, []string{"op", "class"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wardrunner",
			Name:      "action_fallbacks_total",
			Help:      "Script-based fallback invocations, labelled by operation and result.",
		}, []string{"op", "result"}),
		ActionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wardrunner",
			Name:      "action_outcomes_total",
			Help:      "Logical action outcomes: success, suppressed or failed.",
		}, []string{"op", "outcome"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wardrunner",
			Name:      "sessions_active",
			Help:      "Browser sessions currently held by the registry.",
		}),
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wardrunner",
			Name:      "login_attempts_total",
			Help:      "Authentication attempts, labelled by role and result.",
		}, []string{"role", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.ActionAttempts, m.Fallbacks, m.ActionOutcomes, m.ActiveSessions, m.LoginAttempts)
	}
	return m
}

func (m *Metrics) ObserveAttempt(op, class string) {
	if m == nil {
		return
	}
	m.ActionAttempts.WithLabelValues(op, class).Inc()
}

func (m *Metrics) ObserveFallback(op string, ok bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "ok"
	}
	m.Fallbacks.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ObserveOutcome(op, outcome string) {
	if m == nil {
		return
	}
	m.ActionOutcomes.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) ObserveLogin(role string, ok bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "ok"
	}
	m.LoginAttempts.WithLabelValues(role, result).Inc()
}
