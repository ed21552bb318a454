package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/calmcall/finassist/pkg/ai/llm"
	"github.com/calmcall/finassist/pkg/search/tavily"
)

// SearchToolName is the name the model calls the search tool by.
const SearchToolName = "webSearch"

const (
	MsgSearchNotConfigured = "Web search is not configured (missing TAVILY_API_KEY)."
	MsgSearchUnavailable   = "Search is temporarily unavailable."
)

type searchArgs struct {
	Query      string `json:"query" validate:"required,min=3"`
	MaxResults int    `json:"maxResults"`
}

// SearchTool runs basic-depth Tavily searches and lists titles and URLs.
type SearchTool struct {
	client *tavily.Client
}

// NewSearchTool creates the search tool. client may be nil.
func NewSearchTool(client *tavily.Client) *SearchTool {
	return &SearchTool{client: client}
}

func (t *SearchTool) Definition() llm.FunctionDefinition {
	return llm.FunctionDefinition{
		Name:        SearchToolName,
		Description: "Search the web and return top results (titles and URLs). Uses basic depth to conserve credits.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"minLength":   3,
					"description": "What to search for",
				},
				"maxResults": map[string]any{
					"type":        "integer",
					"minimum":     1,
					"maximum":     tavily.MaxResults,
					"description": "Limit results (required 1-5; use 5 by default to conserve credits).",
				},
			},
			"required": []string{"query", "maxResults"},
		},
	}
}

func (t *SearchTool) Execute(ctx context.Context, args string) (string, error) {
	if !t.client.Configured() {
		return MsgSearchNotConfigured, tavily.ErrNotConfigured
	}

	var in searchArgs
	if err := json.Unmarshal([]byte(args), &in); err != nil {
		return "Please call webSearch with a JSON object containing a query.", fmt.Errorf("%w: %v", ErrInvalidToolArguments, err)
	}
	in.Query = strings.TrimSpace(in.Query)
	if err := validate.Struct(in); err != nil {
		return "Please search with a query of at least 3 characters.", fmt.Errorf("%w: %v", ErrInvalidToolArguments, err)
	}
	limit := tavily.ClampResults(in.MaxResults)

	results, err := t.client.Search(ctx, in.Query, limit)
	if err != nil {
		var statusErr *tavily.StatusError
		if errors.As(err, &statusErr) {
			return fmt.Sprintf("Search failed: %d %s", statusErr.StatusCode, statusErr.Status), err
		}
		return MsgSearchUnavailable, err
	}
	return formatResults(in.Query, results), nil
}

func formatResults(query string, results []tavily.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results for %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Top results for %q:", query)
	for _, r := range results {
		title := r.Title
		if title == "" {
			title = r.URL
		}
		if title == "" {
			title = "Result"
		}
		fmt.Fprintf(&b, "\n- %s — %s", title, r.URL)
	}
	return b.String()
}
