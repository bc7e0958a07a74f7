// Package observability – domain metrics
//
// Metrics implements the services Recorder with Prometheus collectors for
// limiter decisions, flood events by severity, the current adaptive
// ceilings and stage transitions. A nil *Metrics records nothing.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the guard's domain collectors. A nil *Metrics is valid and
// records nothing, so services can run without a registry.
type Metrics struct {
	decisions   *prometheus.CounterVec
	floods      *prometheus.CounterVec
	ceiling     *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salesguard_decisions_total",
			Help: "Inbound message decisions by limiter scope and outcome.",
		}, []string{"scope", "outcome"}),
		floods: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salesguard_flood_events_total",
			Help: "Flood back-pressure signals by severity.",
		}, []string{"severity"}),
		ceiling: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "salesguard_global_ceiling",
			Help: "Current adaptive account-wide ceiling per window.",
		}, []string{"window"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salesguard_stage_transitions_total",
			Help: "Sales stage transitions.",
		}, []string{"from", "to"}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.floods, m.ceiling, m.transitions)
	}
	return m
}

// Decision counts one inbound decision. outcome is "allowed" or a
// rejection code.
func (m *Metrics) Decision(scope, outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(scope, outcome).Inc()
}

// Flood counts one flood signal; severity is "normal" or "critical".
func (m *Metrics) Flood(severity string) {
	if m == nil {
		return
	}
	m.floods.WithLabelValues(severity).Inc()
}

// Ceilings publishes the adaptive ceilings.
func (m *Metrics) Ceilings(minute, hour int) {
	if m == nil {
		return
	}
	m.ceiling.WithLabelValues("minute").Set(float64(minute))
	m.ceiling.WithLabelValues("hour").Set(float64(hour))
}

// StageTransition counts a stage change.
func (m *Metrics) StageTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}
