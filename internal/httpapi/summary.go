package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/calmcall/finassist/pkg/agent"
	"github.com/calmcall/finassist/pkg/budget"
	"github.com/calmcall/finassist/pkg/session"
)

// MsgSummaryUnavailable is returned when the request cannot be read.
const MsgSummaryUnavailable = "Summary unavailable."

type summaryRequest struct {
	Items  []session.TranscriptItem `json:"items"`
	Sankey *struct {
		Nodes []budget.FlowNode `json:"nodes"`
		Links []budget.FlowLink `json:"links"`
	} `json:"sankey"`
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

// summary always answers 200 so the client can show whatever it gets.
func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	var req summaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("summary request unreadable", slog.String("error", err.Error()))
		writeJSON(w, http.StatusOK, summaryResponse{Summary: MsgSummaryUnavailable})
		return
	}

	var g budget.Graph
	if req.Sankey != nil {
		g = budget.Graph{Nodes: req.Sankey.Nodes, Links: req.Sankey.Links}
	}

	s.logger.Debug("summary request",
		slog.Int("items", len(req.Items)),
		slog.Bool("has_sankey", !g.Empty()),
		slog.Bool("has_model", s.opts.Providers.Summary != nil))

	text := agent.Summarize(r.Context(), s.opts.Providers.Summary, req.Items, g)
	writeJSON(w, http.StatusOK, summaryResponse{Summary: text})
}
