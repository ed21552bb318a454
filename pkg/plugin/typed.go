package plugin

import (
	"fmt"
	"os"

	"github.com/calmcall/finassist/pkg/ai/llm"
	"github.com/calmcall/finassist/pkg/ai/stt"
	"github.com/calmcall/finassist/pkg/ai/tts"
)

func create[T any](r *Registry, kind, name string, cfg map[string]any) (T, error) {
	var zero T
	v, err := r.Create(kind, name, cfg)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("plugin %s/%s returned %T, not a %s provider", kind, name, v, kind)
	}
	return typed, nil
}

// NewLLM builds the LLM registered as name.
func (r *Registry) NewLLM(name string, cfg map[string]any) (llm.LLM, error) {
	return create[llm.LLM](r, KindLLM, name, cfg)
}

// NewSTT builds the transcriber registered as name.
func (r *Registry) NewSTT(name string, cfg map[string]any) (stt.Transcriber, error) {
	return create[stt.Transcriber](r, KindSTT, name, cfg)
}

// NewTTS builds the TTS registered as name.
func (r *Registry) NewTTS(name string, cfg map[string]any) (tts.TTS, error) {
	return create[tts.TTS](r, KindTTS, name, cfg)
}

// NewLLM builds an LLM from the global registry.
func NewLLM(name string, cfg map[string]any) (llm.LLM, error) { return globalRegistry.NewLLM(name, cfg) }

// NewSTT builds a transcriber from the global registry.
func NewSTT(name string, cfg map[string]any) (stt.Transcriber, error) {
	return globalRegistry.NewSTT(name, cfg)
}

// NewTTS builds a TTS from the global registry.
func NewTTS(name string, cfg map[string]any) (tts.TTS, error) { return globalRegistry.NewTTS(name, cfg) }

// String reads a string option from cfg, then from the environment variable
// env, then falls back to def.
func String(cfg map[string]any, key, env, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	if env != "" {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return def
}

// APIKey reads a required credential the same way String does.
func APIKey(cfg map[string]any, env, provider string) (string, error) {
	key := String(cfg, "api_key", env, "")
	if key == "" {
		return "", fmt.Errorf("%s API key is required (set %s or provide api_key in config)", provider, env)
	}
	return key, nil
}
