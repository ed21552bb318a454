// Package httpapi is the JSON and audio HTTP surface used by the web client:
// voice turns, conversation summaries, graph normalization, per-session
// cache routes and LiveKit connection details.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/calmcall/finassist/internal/metrics"
	"github.com/calmcall/finassist/internal/providers"
	"github.com/calmcall/finassist/pkg/agent"
	"github.com/calmcall/finassist/pkg/job"
	"github.com/calmcall/finassist/pkg/search/tavily"
	"github.com/calmcall/finassist/pkg/session"
	"github.com/calmcall/finassist/pkg/version"
)

// MaxAudioBytes caps the multipart body of a voice turn.
const MaxAudioBytes = 25 << 20

// Options holds the server's collaborators. Only Store is required; routes
// whose providers are missing answer with an error.
type Options struct {
	Providers providers.Set
	Store     session.Store
	Search    *tavily.Client

	// LiveKit settings for /api/connection-details.
	LiveKitURL  string
	Credentials job.Credentials
	TokenTTL    time.Duration

	AllowedOrigins []string
	AppConfig      AppConfig

	// Metrics may be nil.
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server routes API requests.
type Server struct {
	opts     Options
	router   chi.Router
	logger   *slog.Logger
	validate *validator.Validate
}

// New builds the router.
func New(opts Options) *Server {
	if opts.Store == nil {
		opts.Store = session.NewMemoryStore(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.AppConfig == (AppConfig{}) {
		opts.AppConfig = DefaultAppConfig
	}

	s := &Server{
		opts:     opts,
		logger:   opts.Logger,
		validate: validator.New(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(s.logger))
	if s.opts.Metrics != nil {
		r.Use(instrument(s.opts.Metrics))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-Transcript", "X-Text"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthz)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/app-config", s.appConfig)
		r.Post("/connection-details", s.connectionDetails)
		r.Post("/voice/turn", s.voiceTurn)
		r.Post("/summary", s.summary)
		r.Post("/sankey", s.normalizeSankey)

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Use(s.sessionCtx)
			r.Get("/sankey", s.getSankey)
			r.Put("/sankey", s.putSankey)
			r.Delete("/sankey", s.deleteSankey)
			r.Get("/transcript", s.getTranscript)
			r.Put("/transcript", s.putTranscript)
			r.Delete("/transcript", s.deleteTranscript)
			r.Get("/onboarding", s.getOnboarding)
			r.Put("/onboarding", s.putOnboarding)
			r.Delete("/", s.deleteSession)
			r.Post("/chat", s.chat)
		})
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		version.Info
	}{Status: "healthy", Info: version.Get()})
}

// observer returns the metrics observer, or nil so the assistant uses its
// no-op default.
func (s *Server) observer() agent.Observer {
	if s.opts.Metrics == nil {
		return nil
	}
	return s.opts.Metrics
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
