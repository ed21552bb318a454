package agent

import (
	"sync"
	"time"
)

type recordingObserver struct {
	mu          sync.Mutex
	transitions []string
	tools       []string
	publishes   []error
}

func (o *recordingObserver) StateChanged(from, to State) {
	o.mu.Lock()
	o.transitions = append(o.transitions, from.String()+"->"+to.String())
	o.mu.Unlock()
}

func (o *recordingObserver) ToolCalled(tool, outcome string, elapsed time.Duration) {
	o.mu.Lock()
	o.tools = append(o.tools, tool+":"+outcome)
	o.mu.Unlock()
}

func (o *recordingObserver) GraphPublished(err error) {
	o.mu.Lock()
	o.publishes = append(o.publishes, err)
	o.mu.Unlock()
}

func fixedClock() time.Time {
	return time.UnixMilli(1_700_000_000_000)
}

const budgetArgs = `{"nodes":[{"id":"Income"},{"id":"Needs"},{"id":"Wants"}],"links":[` +
	`{"source":"Income","target":"Needs","value":2500},` +
	`{"source":"Income","target":"Wants","value":1000},` +
	`{"source":"Needs","target":"Rent","value":1500},` +
	`{"source":"Needs","target":"Groceries","value":600}]}`
