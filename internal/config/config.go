// Package config loads service configuration from the environment. Values in
// .env.local and .env are applied first when those files exist; variables
// already set in the process environment always win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DefaultEnvFiles are read by Load, in priority order.
var DefaultEnvFiles = []string{".env.local", ".env"}

// Config is the full service configuration.
type Config struct {
	LiveKit LiveKit
	HTTP    HTTP
	Session Session
	Models  Models
	Keys    Keys
	Log     Log
}

// LiveKit holds the room server and agent worker settings.
type LiveKit struct {
	URL       string `validate:"omitempty,url"`
	APIKey    string
	APISecret string `validate:"required_with=APIKey"`

	// WorkerURL and WorkerToken point the worker at its dispatch endpoint.
	WorkerURL   string `validate:"omitempty,url"`
	WorkerToken string

	TokenTTL time.Duration `validate:"gt=0"`
}

// HTTP holds the API server settings.
type HTTP struct {
	Addr           string `validate:"required"`
	AllowedOrigins []string
}

// Session holds the cache settings. An empty RedisURL keeps sessions in
// process memory.
type Session struct {
	RedisURL string `validate:"omitempty,url"`
	TTL      time.Duration
}

// Models names the providers as "provider/model". Voice strings are passed
// through to the TTS provider untouched.
type Models struct {
	LLM         string `validate:"required"`
	FallbackLLM string
	Summary     string
	STT         string `validate:"required"`

	TTS           string `validate:"required"`
	TTSVoice      string
	FallbackTTS   string
	FallbackVoice string
}

// Keys are provider credentials. Empty keys leave the provider unconfigured.
type Keys struct {
	OpenAI     string
	Gemini     string
	ElevenLabs string
	Tavily     string
}

// Log selects the slog handler.
type Log struct {
	Format string `validate:"oneof=json console"`
	Level  string `validate:"oneof=debug info warn error"`
}

// SlogLevel maps Level to a slog level. Unknown levels are info.
func (l Log) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads the default env files and then the environment.
func Load() (Config, error) {
	if err := LoadEnvFiles(DefaultEnvFiles...); err != nil {
		return Config{}, err
	}
	return FromEnv(os.Getenv)
}

// LoadEnvFiles applies each existing file to the process environment. Earlier
// files take precedence over later ones.
func LoadEnvFiles(files ...string) error {
	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// FromEnv builds a Config from getenv and validates it.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	sessionTTL, err := duration(get("SESSION_TTL", "24h"))
	if err != nil {
		return Config{}, fmt.Errorf("SESSION_TTL: %w", err)
	}
	tokenTTL, err := duration(get("LIVEKIT_TOKEN_TTL", "15m"))
	if err != nil {
		return Config{}, fmt.Errorf("LIVEKIT_TOKEN_TTL: %w", err)
	}

	cfg := Config{
		LiveKit: LiveKit{
			URL:         get("LIVEKIT_URL", ""),
			APIKey:      get("LIVEKIT_API_KEY", ""),
			APISecret:   get("LIVEKIT_API_SECRET", ""),
			WorkerURL:   get("FINASSIST_WORKER_URL", ""),
			WorkerToken: get("FINASSIST_WORKER_TOKEN", ""),
			TokenTTL:    tokenTTL,
		},
		HTTP: HTTP{
			Addr:           get("FINASSIST_HTTP_ADDR", ":8080"),
			AllowedOrigins: list(get("FINASSIST_ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		Session: Session{
			RedisURL: get("REDIS_URL", ""),
			TTL:      sessionTTL,
		},
		Models: Models{
			LLM:           get("PRIMARY_LLM_MODEL", "openai/gpt-4o-mini"),
			FallbackLLM:   get("FALLBACK_LLM_MODEL", "gemini/gemini-2.0-flash"),
			Summary:       get("SUMMARY_LLM_MODEL", "gemini/gemini-2.0-flash"),
			STT:           get("STT_MODEL", "openai/whisper-1"),
			TTS:           get("PRIMARY_TTS_MODEL", "elevenlabs/eleven_turbo_v2"),
			TTSVoice:      get("PRIMARY_TTS_VOICE", get("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM")),
			FallbackTTS:   get("FALLBACK_TTS_MODEL", "openai/tts-1"),
			FallbackVoice: get("FALLBACK_TTS_VOICE", ""),
		},
		Keys: Keys{
			OpenAI:     get("OPENAI_API_KEY", ""),
			Gemini:     get("GEMINI_API_KEY", get("GOOGLE_GENERATIVE_AI_API_KEY", "")),
			ElevenLabs: get("ELEVENLABS_API_KEY", ""),
			Tavily:     get("TAVILY_API_KEY", ""),
		},
		Log: Log{
			Format: strings.ToLower(get("FINASSIST_LOG_FORMAT", "json")),
			Level:  strings.ToLower(get("FINASSIST_LOG_LEVEL", "info")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SplitModel splits "provider/model" into its parts. A bare name is taken as
// the provider with its default model.
func SplitModel(spec string) (provider, model string) {
	provider, model, _ = strings.Cut(strings.TrimSpace(spec), "/")
	return provider, model
}

// duration parses a Go duration or a whole number of seconds.
func duration(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func list(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
