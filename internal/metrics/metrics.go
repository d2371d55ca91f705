package metrics

// Pass outcomes reported to PassCompleted.
const (
	OutcomeCompleted  = "completed"
	OutcomeNoop       = "noop"
	OutcomeNoCapacity = "no_capacity"
	OutcomeFetchError = "fetch_error"
)

// Recorder receives auto-assign instrumentation events.
type Recorder interface {
	// PassCompleted is called once per pass with its outcome.
	PassCompleted(outcome string)

	// AssignmentAttempted is called once per attempted issue.
	AssignmentAttempted(success bool)
}

// Nop is a Recorder that discards everything.
type Nop struct{}

var _ Recorder = Nop{}

// NewNop returns a no-op Recorder.
func NewNop() Nop { return Nop{} }

func (Nop) PassCompleted(string)     {}
func (Nop) AssignmentAttempted(bool) {}
