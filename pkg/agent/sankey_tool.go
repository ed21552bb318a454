package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/calmcall/finassist/pkg/ai/llm"
	"github.com/calmcall/finassist/pkg/budget"
	"github.com/calmcall/finassist/pkg/job"
	"github.com/calmcall/finassist/pkg/session"
)

// SankeyToolName is the name the model calls the chart tool by.
const SankeyToolName = "showBudgetSankey"

// Replies handed back to the model.
const (
	MsgSankeyShown       = "Showing a budget Sankey diagram."
	MsgSankeyUnavailable = "I could not display the chart right now."
)

// SankeyTool normalizes the model's budget flows and shows them in the UI.
type SankeyTool struct {
	publisher job.GraphPublisher
	cache     *session.Cache
	observer  Observer

	mu   sync.Mutex
	last budget.Graph
}

// NewSankeyTool creates the chart tool. cache and observer may be nil.
func NewSankeyTool(publisher job.GraphPublisher, cache *session.Cache, observer Observer) *SankeyTool {
	return &SankeyTool{
		publisher: publisher,
		cache:     cache,
		observer:  observerOrNop(observer),
	}
}

func (t *SankeyTool) Definition() llm.FunctionDefinition {
	return llm.FunctionDefinition{
		Name:        SankeyToolName,
		Description: "Display a Sankey diagram of the user's monthly budget. Provide 'nodes' and 'links' describing flows from income to allocations.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"nodes": map[string]any{
					"type":        "array",
					"description": "Nodes in the Sankey diagram",
					"minItems":    2,
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"id": map[string]any{
								"type":        "string",
								"description": `Unique identifier for a node (e.g., "Income", "Rent")`,
							},
						},
						"required": []string{"id"},
					},
				},
				"links": map[string]any{
					"type":        "array",
					"description": "Directed flows between nodes",
					"minItems":    1,
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"source": map[string]any{"type": "string", "description": `Source node id (e.g., "Income")`},
							"target": map[string]any{"type": "string", "description": `Target node id (e.g., "Rent")`},
							"value": map[string]any{
								"type":        "number",
								"minimum":     budget.MinFlowValue,
								"description": "Monthly amount flowing from source to target",
							},
						},
						"required": []string{"source", "target", "value"},
					},
				},
				"balance": map[string]any{
					"type":        "boolean",
					"description": `Set to true to route any unallocated remainder under a parent to a "Surplus" node.`,
				},
			},
			"required": []string{"nodes", "links"},
		},
	}
}

// Execute builds the graph and publishes it. Invalid input is reported to the
// model without publishing. A failed publish is not fatal to the turn.
func (t *SankeyTool) Execute(ctx context.Context, args string) (string, error) {
	parsed, err := budget.ParseToolArguments(args)
	if err != nil {
		return invalidGraphReply(err), err
	}
	g, err := parsed.Build()
	if err != nil {
		return invalidGraphReply(err), err
	}

	if t.publisher == nil {
		t.observer.GraphPublished(job.ErrNotConnected)
		return MsgSankeyUnavailable, job.ErrNotConnected
	}
	if err := t.publisher.PublishGraph(ctx, g); err != nil {
		t.observer.GraphPublished(err)
		return MsgSankeyUnavailable, err
	}
	t.observer.GraphPublished(nil)

	t.mu.Lock()
	t.last = g
	t.mu.Unlock()

	if t.cache != nil {
		if err := t.cache.SaveGraph(ctx, g); err != nil {
			slog.Warn("failed to cache budget graph",
				slog.String("session", t.cache.SessionID()),
				slog.String("error", err.Error()))
		}
	}
	return MsgSankeyShown, nil
}

// LastGraph returns the most recent graph this tool published.
func (t *SankeyTool) LastGraph() (budget.Graph, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, !t.last.Empty()
}

func invalidGraphReply(err error) string {
	return fmt.Sprintf("I could not build that chart (%v). Ask the user one short question to get the missing or invalid amounts, then try again.", err)
}
