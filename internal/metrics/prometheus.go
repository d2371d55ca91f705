package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements Recorder backed by Prometheus counters.
type Prometheus struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	passes      *prometheus.CounterVec
	assignments *prometheus.CounterVec
}

var _ Recorder = (*Prometheus)(nil)

// NewPrometheus creates a Prometheus-backed Recorder. A nil registerer uses
// prometheus.DefaultRegisterer; an empty namespace defaults to "jpa".
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "jpa"
	}
	return &Prometheus{reg: reg, namespace: namespace}
}

func (p *Prometheus) ensureRegistered() {
	p.once.Do(func() {
		p.passes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "auto_assign",
			Name:      "passes_total",
			Help:      "Auto-assign passes by outcome.",
		}, []string{"outcome"})

		p.assignments = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "auto_assign",
			Name:      "assignments_total",
			Help:      "Attempted issue assignments by result.",
		}, []string{"result"})

		p.passes = registerOrExisting(p.reg, p.passes)
		p.assignments = registerOrExisting(p.reg, p.assignments)
	})
}

// registerOrExisting returns the already registered collector when an
// identical one exists, so several Recorders can share a registry.
func registerOrExisting(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func (p *Prometheus) PassCompleted(outcome string) {
	p.ensureRegistered()
	p.passes.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) AssignmentAttempted(success bool) {
	p.ensureRegistered()
	result := "failure"
	if success {
		result = "success"
	}
	p.assignments.WithLabelValues(result).Inc()
}
