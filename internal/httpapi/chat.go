package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/calmcall/finassist/pkg/agent"
	"github.com/calmcall/finassist/pkg/budget"
	"github.com/calmcall/finassist/pkg/job"
	"github.com/calmcall/finassist/pkg/session"
)

type chatRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
	Mode string `json:"mode"`
}

type chatResponse struct {
	Reply     string              `json:"reply"`
	ToolCalls []agent.ToolOutcome `json:"toolCalls,omitempty"`
	Sankey    *budget.Envelope    `json:"sankey,omitempty"`
}

// chat answers one typed message for clients without a room connection. The
// conversation resumes from the session transcript and is saved back after
// the turn. The tools run against the session cache, and a chart the model
// draws comes back in the response instead of over the data channel.
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errBadJSON.Error())
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, fieldErrors(err))
		return
	}
	mode, err := session.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	cache := cacheFrom(r)
	earlier, _, err := cache.LatestTranscript(r.Context())
	if err != nil {
		s.storeFailed(w, r, err)
		return
	}

	publisher := job.NewMemoryPublisher()
	tools := agent.ToolsForMode(mode, agent.Deps{
		Publisher: publisher,
		Cache:     cache,
		Search:    s.opts.Search,
		Observer:  s.observer(),
		Logger:    s.logger,
	})

	assistant, err := agent.New(agent.Config{
		LLM:          s.opts.Providers.LLM,
		Tools:        tools,
		Instructions: session.Prompt(mode),
		Transcript:   earlier.Items,
		Observer:     s.observer(),
		Logger:       s.logger,
	})
	if err != nil {
		s.logger.Error("chat unavailable", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "assistant is not configured")
		return
	}

	reply, err := assistant.Turn(r.Context(), req.Text)
	if err != nil {
		if errors.Is(err, agent.ErrEmptyInput) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("chat turn failed",
			slog.String("request_id", requestID(r)),
			slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "assistant unavailable")
		return
	}

	if err := cache.SaveTranscript(r.Context(), assistant.Transcript()); err != nil {
		s.logger.Warn("failed to save chat transcript",
			slog.String("request_id", requestID(r)),
			slog.String("error", err.Error()))
	}

	resp := chatResponse{Reply: reply.Text, ToolCalls: reply.ToolCalls}
	if g, ok := publisher.Latest(); ok {
		env := budget.NewEnvelope(g)
		resp.Sankey = &env
	}
	writeJSON(w, http.StatusOK, resp)
}
