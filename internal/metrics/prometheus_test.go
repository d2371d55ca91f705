package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheus_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "")

	p.PassCompleted(OutcomeCompleted)
	p.PassCompleted(OutcomeCompleted)
	p.PassCompleted(OutcomeNoop)
	p.AssignmentAttempted(true)
	p.AssignmentAttempted(false)
	p.AssignmentAttempted(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.passes.WithLabelValues(OutcomeCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.passes.WithLabelValues(OutcomeNoop)))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.assignments.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.assignments.WithLabelValues("failure")))
}

func TestPrometheus_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewPrometheus(reg, "jpa")
	b := NewPrometheus(reg, "jpa")

	a.PassCompleted(OutcomeNoop)
	b.PassCompleted(OutcomeNoop)

	assert.Equal(t, 2.0, testutil.ToFloat64(a.passes.WithLabelValues(OutcomeNoop)))
}

func TestNop(t *testing.T) {
	var r Recorder = NewNop()
	r.PassCompleted(OutcomeCompleted)
	r.AssignmentAttempted(true)
}
