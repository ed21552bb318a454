package agent

import "time"

// Tool call outcomes reported to the Observer.
const (
	OutcomeOK           = "ok"
	OutcomeInvalidInput = "invalid_input"
	OutcomeUnconfigured = "unconfigured"
	OutcomeError        = "error"
)

// Observer receives assistant telemetry. internal/metrics implements it with
// Prometheus collectors.
type Observer interface {
	StateChanged(from, to State)
	ToolCalled(tool, outcome string, elapsed time.Duration)
	GraphPublished(err error)
}

type nopObserver struct{}

func (nopObserver) StateChanged(from, to State)                            {}
func (nopObserver) ToolCalled(tool, outcome string, elapsed time.Duration) {}
func (nopObserver) GraphPublished(err error)                               {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}
