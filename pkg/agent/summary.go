package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/calmcall/finassist/pkg/ai/llm"
	"github.com/calmcall/finassist/pkg/budget"
	"github.com/calmcall/finassist/pkg/session"
)

const (
	// MaxSummaryItems is how many recent transcript items a summary reads.
	MaxSummaryItems = 120

	// MaxSummaryFlows is how many graph links a summary prompt lists.
	MaxSummaryFlows = 10

	MsgNoTranscript = "No transcript to summarize."

	focusLimit = 140
)

// Summarize writes a short bulleted recap of a conversation and, if g has
// links, of the budget it produced. It never fails: without a model, on a
// model error, or on an empty reply it returns FallbackSummary.
func Summarize(ctx context.Context, model llm.LLM, items []session.TranscriptItem, g budget.Graph) string {
	if len(items) == 0 {
		return MsgNoTranscript
	}
	if model == nil {
		slog.Warn("summary fallback: no model configured")
		return FallbackSummary(items, g)
	}

	resp, err := model.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{llm.UserMessage(SummaryPrompt(items, g))},
	})
	if err != nil {
		slog.Warn("summary fallback: model failed", slog.String("error", err.Error()))
		return FallbackSummary(items, g)
	}
	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		slog.Warn("summary fallback: model returned empty text")
		return FallbackSummary(items, g)
	}
	return text
}

// SummaryPrompt builds the model prompt from the last MaxSummaryItems items
// and the first MaxSummaryFlows links of g.
func SummaryPrompt(items []session.TranscriptItem, g budget.Graph) string {
	if len(items) > MaxSummaryItems {
		items = items[len(items)-MaxSummaryItems:]
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		speaker := "Agent"
		if it.Origin == session.OriginLocal {
			speaker = "User"
		}
		lines = append(lines, speaker+": "+it.Message)
	}

	var sankey string
	if !g.Empty() {
		ids := make([]string, 0, len(g.Nodes))
		for _, n := range g.Nodes {
			ids = append(ids, n.ID)
		}
		links := g.Links
		if len(links) > MaxSummaryFlows {
			links = links[:MaxSummaryFlows]
		}
		flows := make([]string, 0, len(links))
		for _, l := range links {
			flows = append(flows, fmt.Sprintf("%s -> %s: %s", l.Source, l.Target, strconv.FormatFloat(l.Value, 'f', -1, 64)))
		}
		sankey = "\n\nBudget Sankey (most recent):\nNodes: " + strings.Join(ids, ", ") +
			"\nTop Flows: " + strings.Join(flows, "; ")
	}

	var b strings.Builder
	b.WriteString("You are a calm, supportive financial mentor. Summarize the conversation below in 4-6 short bullet points (plain text, no titles):\n")
	b.WriteString("- Capture user goals/concerns and agent guidance.\n")
	b.WriteString("- Include 1-2 concrete next steps.\n")
	b.WriteString("- Keep the tone reassuring, never shaming.\n")
	if sankey != "" {
		b.WriteString("- Include 1-2 insights from the budget flows.\n")
	}
	b.WriteString("\nConversation:\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString(sankey)
	return b.String()
}

// FallbackSummary is the fixed recap used when no model summary is available.
func FallbackSummary(items []session.TranscriptItem, g budget.Graph) string {
	focus := "User focus: general budgeting support"
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Origin == session.OriginLocal && items[i].Message != "" {
			focus = "User focus: " + truncate(items[i].Message, focusLimit)
			break
		}
	}

	flows := "• Encouraged simple budgeting steps and next actions."
	if !g.Empty() {
		flows = "• Reviewed budget flows and prioritized key spending areas."
	}

	return strings.Join([]string{
		"• Discussed financial goals and current concerns.",
		"• " + focus + ".",
		"• Provided calm, step-by-step guidance.",
		flows,
		"• Next steps: set a weekly check-in and track one spending category.",
	}, "\n")
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
