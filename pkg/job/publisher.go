package job

import (
	"context"
	"sync"

	"github.com/calmcall/finassist/pkg/budget"
)

// GraphPublisher delivers a budget graph to the user's UI.
type GraphPublisher interface {
	PublishGraph(ctx context.Context, g budget.Graph) error
}

var _ GraphPublisher = (*Room)(nil)

// MemoryPublisher keeps published graphs in memory. It stands in for a room
// when the assistant runs without LiveKit, e.g. from the CLI.
type MemoryPublisher struct {
	mu     sync.Mutex
	graphs []budget.Graph
	err    error
}

// NewMemoryPublisher returns an empty publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// FailWith makes every later publish return err. A nil err restores success.
func (p *MemoryPublisher) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *MemoryPublisher) PublishGraph(ctx context.Context, g budget.Graph) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.graphs = append(p.graphs, g.Clone())
	return nil
}

// Graphs returns every graph published so far, oldest first.
func (p *MemoryPublisher) Graphs() []budget.Graph {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]budget.Graph(nil), p.graphs...)
}

// Latest returns the most recently published graph. The UI keeps only this
// one.
func (p *MemoryPublisher) Latest() (budget.Graph, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.graphs) == 0 {
		return budget.Graph{}, false
	}
	return p.graphs[len(p.graphs)-1], true
}
