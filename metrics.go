package campusauth

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing, so metrics stay opt-in.
type Metrics struct {
	logins    *prometheus.CounterVec
	rotations *prometheus.CounterVec
	mfaSteps  *prometheus.CounterVec
	gate      *prometheus.CounterVec
	revoked   prometheus.Counter
}

// NewMetrics builds and registers the collectors. Passing nil registers on
// the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusauth_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusauth_rotations_total",
			Help: "Refresh rotation attempts by outcome.",
		}, []string{"outcome"}),
		mfaSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusauth_mfa_steps_total",
			Help: "MFA step-up attempts by outcome.",
		}, []string{"outcome"}),
		gate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusauth_gate_decisions_total",
			Help: "Edge gate decisions by kind.",
		}, []string{"decision"}),
		revoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campusauth_sessions_revoked_total",
			Help: "Session records deleted by logout, takeover cleanup, or admin action.",
		}),
	}

	reg.MustRegister(m.logins, m.rotations, m.mfaSteps, m.gate, m.revoked)
	return m
}

func (m *Metrics) login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) rotation(outcome string) {
	if m == nil {
		return
	}
	m.rotations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) mfaStep(outcome string) {
	if m == nil {
		return
	}
	m.mfaSteps.WithLabelValues(outcome).Inc()
}

// GateDecision records one edge gate decision. Exported for the middleware
// package.
func (m *Metrics) GateDecision(decision string) {
	if m == nil {
		return
	}
	m.gate.WithLabelValues(decision).Inc()
}

func (m *Metrics) sessionRevoked() {
	if m == nil {
		return
	}
	m.revoked.Inc()
}
