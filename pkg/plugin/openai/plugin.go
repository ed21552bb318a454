// Package openai provides OpenAI-backed providers: chat completions with
// tool calling, Whisper transcription and speech synthesis.
package openai

import (
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/calmcall/finassist/pkg/ai"
	"github.com/calmcall/finassist/pkg/plugin"
)

const providerName = "openai"

// Config holds the settings shared by all OpenAI providers.
type Config struct {
	APIKey  string
	BaseURL string // optional, for proxies and tests
	Model   string
	Voice   string // TTS only
}

func newClient(cfg Config) *openai.Client {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(c)
}

func configFrom(cfg map[string]any, modelEnv, defModel string) (Config, error) {
	key, err := plugin.APIKey(cfg, "OPENAI_API_KEY", "OpenAI")
	if err != nil {
		return Config{}, err
	}
	return Config{
		APIKey:  key,
		BaseURL: plugin.String(cfg, "base_url", "OPENAI_BASE_URL", ""),
		Model:   plugin.String(cfg, "model", modelEnv, defModel),
		Voice:   plugin.String(cfg, "voice", "", ""),
	}, nil
}

// classify maps go-openai errors onto the recoverable/fatal split.
func classify(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return ai.ClassifyStatus(providerName, op, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ai.ClassifyStatus(providerName, op, reqErr.HTTPStatusCode, err)
	}
	return ai.Classify(providerName, op, err)
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind: plugin.KindLLM,
		Name: providerName,
		Factory: func(cfg map[string]any) (any, error) {
			c, err := configFrom(cfg, "OPENAI_MODEL", defaultChatModel)
			if err != nil {
				return nil, err
			}
			return NewLLM(c), nil
		},
		Description: "OpenAI chat completions with tool calling",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key": "OpenAI API key (or set OPENAI_API_KEY env var)",
			"model":   defaultChatModel,
		},
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind: plugin.KindSTT,
		Name: providerName,
		Factory: func(cfg map[string]any) (any, error) {
			c, err := configFrom(cfg, "OPENAI_STT_MODEL", openai.Whisper1)
			if err != nil {
				return nil, err
			}
			return NewWhisperSTT(c, plugin.String(cfg, "language", "", "")), nil
		},
		Description: "OpenAI Whisper speech-to-text service",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key":  "OpenAI API key (or set OPENAI_API_KEY env var)",
			"model":    openai.Whisper1,
			"language": "auto-detect (leave empty) or specify language code",
		},
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind: plugin.KindTTS,
		Name: providerName,
		Factory: func(cfg map[string]any) (any, error) {
			c, err := configFrom(cfg, "OPENAI_TTS_MODEL", string(openai.TTSModel1))
			if err != nil {
				return nil, err
			}
			return NewTTS(c), nil
		},
		Description: "OpenAI text-to-speech service",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key": "OpenAI API key (or set OPENAI_API_KEY env var)",
			"model":   string(openai.TTSModel1),
			"voice":   string(openai.VoiceAlloy),
		},
	})
}
