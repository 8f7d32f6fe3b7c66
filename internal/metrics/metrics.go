package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "language_bus"

// Metrics contains the counters exposed by the local gateway emulator.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	GatewayRequests   *prometheus.CounterVec
	EventsPublished   *prometheus.CounterVec
	RuleMatches       *prometheus.CounterVec
	TargetInvocations *prometheus.CounterVec
}

// New creates a new Metrics instance
func New() *Metrics {
	return &Metrics{
		GatewayRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total number of gateway requests by variant and outcome",
			},
			[]string{"variant", "outcome"},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "events_total",
				Help:      "Total number of PutEvents entries by bus and status",
			},
			[]string{"bus", "status"},
		),

		RuleMatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rule",
				Name:      "matches_total",
				Help:      "Total number of events matched by a rule",
			},
			[]string{"bus", "rule"},
		),

		TargetInvocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "target",
				Name:      "invocations_total",
				Help:      "Total number of rule target invocations by status",
			},
			[]string{"rule", "status"},
		),
	}
}

// Register registers all collectors with reg
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.GatewayRequests, m.EventsPublished, m.RuleMatches, m.TargetInvocations} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return nil
}

// GatewayRequest counts one gateway request
func (m *Metrics) GatewayRequest(variant, outcome string) {
	if m == nil {
		return
	}
	m.GatewayRequests.WithLabelValues(variant, outcome).Inc()
}

// EventPublished counts one PutEvents entry
func (m *Metrics) EventPublished(bus, status string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(bus, status).Inc()
}

// RuleMatched counts one rule match
func (m *Metrics) RuleMatched(bus, rule string) {
	if m == nil {
		return
	}
	m.RuleMatches.WithLabelValues(bus, rule).Inc()
}

// TargetInvoked counts one target invocation
func (m *Metrics) TargetInvoked(rule, status string) {
	if m == nil {
		return
	}
	m.TargetInvocations.WithLabelValues(rule, status).Inc()
}
