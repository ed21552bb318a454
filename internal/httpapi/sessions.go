package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/calmcall/finassist/pkg/session"
)

type cacheKey struct{}

// sessionIDRules keep ids usable as store key prefixes: printable ASCII
// without spaces or the ":" separator.
const sessionIDRules = "required,max=128,printascii,excludesall=: "

// sessionCtx validates the {sessionID} parameter and stores that session's
// cache on the request context.
func (s *Server) sessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		if err := s.validate.Var(id, sessionIDRules); err != nil {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		cache := session.NewCache(s.opts.Store, id, session.WithLogger(s.logger))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), cacheKey{}, cache)))
	})
}

func cacheFrom(r *http.Request) *session.Cache {
	return r.Context().Value(cacheKey{}).(*session.Cache)
}

// fieldErrors renders validation failures as "field: rule" pairs.
func fieldErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}

func requestID(r *http.Request) string {
	return chimiddleware.GetReqID(r.Context())
}

func (s *Server) storeFailed(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("session store failed",
		slog.String("request_id", requestID(r)),
		slog.String("session", cacheFrom(r).SessionID()),
		slog.String("error", err.Error()))
	writeError(w, http.StatusServiceUnavailable, "session store unavailable")
}

func (s *Server) getSankey(w http.ResponseWriter, r *http.Request) {
	p, ok, err := cacheFrom(r).LatestGraph(r.Context())
	if err != nil {
		s.storeFailed(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no budget graph saved")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) putSankey(w http.ResponseWriter, r *http.Request) {
	g, err := decodeGraph(r)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	cache := cacheFrom(r)
	if err := cache.SaveGraph(r.Context(), g); err != nil {
		s.storeFailed(w, r, err)
		return
	}
	p, _, err := cache.LatestGraph(r.Context())
	if err != nil {
		s.storeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteSankey(w http.ResponseWriter, r *http.Request) {
	if err := cacheFrom(r).ClearGraph(r.Context()); err != nil {
		s.storeFailed(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transcriptRequest struct {
	Items []session.TranscriptItem `json:"items"`
}

func (s *Server) getTranscript(w http.ResponseWriter, r *http.Request) {
	p, ok, err := cacheFrom(r).LatestTranscript(r.Context())
	if err != nil {
		s.storeFailed(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no transcript saved")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) putTranscript(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errBadJSON.Error())
		return
	}
	for _, item := range req.Items {
		if item.Origin != session.OriginLocal && item.Origin != session.OriginRemote {
			writeError(w, http.StatusUnprocessableEntity, "origin must be local or remote")
			return
		}
	}

	cache := cacheFrom(r)
	if err := cache.SaveTranscript(r.Context(), req.Items); err != nil {
		s.storeFailed(w, r, err)
		return
	}
	p, _, err := cache.LatestTranscript(r.Context())
	if err != nil {
		s.storeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteTranscript(w http.ResponseWriter, r *http.Request) {
	if err := cacheFrom(r).ClearTranscript(r.Context()); err != nil {
		s.storeFailed(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getOnboarding(w http.ResponseWriter, r *http.Request) {
	d, ok, err := cacheFrom(r).Onboarding(r.Context())
	if err != nil {
		s.storeFailed(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "onboarding not completed")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) putOnboarding(w http.ResponseWriter, r *http.Request) {
	var d session.OnboardingData
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, errBadJSON.Error())
		return
	}
	if err := s.validate.Struct(d); err != nil {
		writeError(w, http.StatusUnprocessableEntity, fieldErrors(err))
		return
	}
	if err := cacheFrom(r).SaveOnboarding(r.Context(), d); err != nil {
		s.storeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := cacheFrom(r).ClearAll(r.Context()); err != nil {
		s.storeFailed(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
