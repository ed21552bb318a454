package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/calmcall/finassist/pkg/job"
	"github.com/calmcall/finassist/pkg/session"
)

const roomPrefix = "calmcall"

type connectionRequest struct {
	Mode            string `json:"mode"`
	ParticipantName string `json:"participantName" validate:"max=100"`
}

// ConnectionDetails is what the client needs to join a LiveKit room. The
// room name carries the session mode so the agent picks the right persona.
type ConnectionDetails struct {
	ServerURL        string `json:"serverUrl"`
	RoomName         string `json:"roomName"`
	ParticipantName  string `json:"participantName"`
	ParticipantToken string `json:"participantToken"`

	// SessionID keys the /api/sessions routes. It is the room name, which
	// is also where the agent caches the graph it draws.
	SessionID string `json:"sessionId"`
}

func (s *Server) connectionDetails(w http.ResponseWriter, r *http.Request) {
	if s.opts.LiveKitURL == "" || !s.opts.Credentials.Valid() {
		writeError(w, http.StatusServiceUnavailable, "LiveKit is not configured")
		return
	}

	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, errBadJSON.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, fieldErrors(err))
		return
	}
	mode, err := session.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	suffix := strings.ReplaceAll(session.NewID(), "-", "")[:8]
	room := session.RoomName(roomPrefix+"_"+suffix, mode)
	identity := "user_" + suffix
	name := strings.TrimSpace(req.ParticipantName)
	if name == "" {
		name = "user"
	}

	token, err := job.IssueToken(s.opts.Credentials, job.TokenRequest{
		Room:     room,
		Identity: identity,
		Name:     name,
		TTL:      s.opts.TokenTTL,
	})
	if err != nil {
		s.logger.Error("issue participant token", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, ConnectionDetails{
		ServerURL:        s.opts.LiveKitURL,
		RoomName:         room,
		ParticipantName:  name,
		ParticipantToken: token,
		SessionID:        room,
	})
}
