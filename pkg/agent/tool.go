package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/calmcall/finassist/pkg/ai/llm"
	"github.com/calmcall/finassist/pkg/budget"
	"github.com/calmcall/finassist/pkg/job"
	"github.com/calmcall/finassist/pkg/search/tavily"
	"github.com/calmcall/finassist/pkg/session"
)

// ErrInvalidToolArguments is returned when a tool call's arguments do not
// decode or validate.
var ErrInvalidToolArguments = errors.New("invalid tool arguments")

var validate = validator.New()

// Tool is a function the model may call. Execute always returns the text
// handed back to the model; a non-nil error reports why the tool could not do
// its job and is logged and counted, never surfaced to the user.
type Tool interface {
	Definition() llm.FunctionDefinition
	Execute(ctx context.Context, args string) (string, error)
}

// Toolset is the set of tools offered to the model for one conversation.
type Toolset struct {
	tools    map[string]Tool
	order    []string
	observer Observer
	logger   *slog.Logger
}

// NewToolset returns a toolset holding tools in the given order.
func NewToolset(tools ...Tool) *Toolset {
	ts := &Toolset{
		tools:    make(map[string]Tool, len(tools)),
		observer: nopObserver{},
		logger:   slog.Default(),
	}
	for _, t := range tools {
		ts.Add(t)
	}
	return ts
}

// Add registers t, replacing any tool with the same name.
func (ts *Toolset) Add(t Tool) {
	name := t.Definition().Name
	if _, exists := ts.tools[name]; !exists {
		ts.order = append(ts.order, name)
	}
	ts.tools[name] = t
}

// Get returns the tool registered under name.
func (ts *Toolset) Get(name string) (Tool, bool) {
	if ts == nil {
		return nil, false
	}
	t, ok := ts.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (ts *Toolset) Names() []string {
	if ts == nil {
		return nil
	}
	return append([]string(nil), ts.order...)
}

// Definitions returns the function definitions to send with a chat request.
func (ts *Toolset) Definitions() []llm.FunctionDefinition {
	if ts == nil || len(ts.order) == 0 {
		return nil
	}
	defs := make([]llm.FunctionDefinition, 0, len(ts.order))
	for _, name := range ts.order {
		defs = append(defs, ts.tools[name].Definition())
	}
	return defs
}

// Call runs the tool named by call and returns the text for the model.
func (ts *Toolset) Call(ctx context.Context, call llm.FunctionCall) string {
	t, ok := ts.Get(call.Name)
	if !ok {
		slog.Warn("model called unknown tool", slog.String("tool", call.Name))
		return fmt.Sprintf("Unknown tool %q.", call.Name)
	}

	start := time.Now()
	result, err := t.Execute(ctx, call.Arguments)
	outcome := outcomeOf(err)
	ts.observer.ToolCalled(call.Name, outcome, time.Since(start))

	if err != nil {
		ts.logger.Warn("tool call failed",
			slog.String("tool", call.Name),
			slog.String("call_id", call.ID),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()))
	} else {
		ts.logger.Debug("tool call completed",
			slog.String("tool", call.Name),
			slog.String("call_id", call.ID))
	}

	if result == "" {
		result = "That did not work. Please continue without it."
	}
	return result
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, budget.ErrInvalidGraphInput), errors.Is(err, ErrInvalidToolArguments):
		return OutcomeInvalidInput
	case errors.Is(err, tavily.ErrNotConfigured):
		return OutcomeUnconfigured
	default:
		return OutcomeError
	}
}

// Deps are the collaborators tools need.
type Deps struct {
	// Publisher delivers graphs to the UI, usually a *job.Room.
	Publisher job.GraphPublisher

	// Cache, when set, remembers the last graph shown.
	Cache *session.Cache

	// Search backs the webSearch tool. A nil or unconfigured client makes
	// the tool answer that search is not configured.
	Search *tavily.Client

	Observer Observer
	Logger   *slog.Logger
}

// ToolsForMode returns the tools offered in mode: budgeting gets the chart and
// search tools, every other mode gets search only.
func ToolsForMode(mode session.Mode, deps Deps) *Toolset {
	ts := NewToolset()
	ts.observer = observerOrNop(deps.Observer)
	if deps.Logger != nil {
		ts.logger = deps.Logger
	}

	if mode == session.ModeBudgeting {
		ts.Add(NewSankeyTool(deps.Publisher, deps.Cache, deps.Observer))
	}
	ts.Add(NewSearchTool(deps.Search))
	return ts
}
