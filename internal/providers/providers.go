// Package providers assembles the speech and language providers named in the
// configuration into primary/fallback chains.
package providers

import (
	"fmt"
	"log/slog"

	"github.com/calmcall/finassist/internal/config"
	"github.com/calmcall/finassist/pkg/ai"
	"github.com/calmcall/finassist/pkg/ai/llm"
	"github.com/calmcall/finassist/pkg/ai/stt"
	"github.com/calmcall/finassist/pkg/ai/tts"
	"github.com/calmcall/finassist/pkg/plugin"
)

// Set is the providers one Assistant needs. Summary may be nil, in which
// case summaries use the deterministic fallback.
type Set struct {
	LLM     llm.LLM
	Summary llm.LLM
	STT     stt.Transcriber
	TTS     tts.TTS
	Voice   string
}

// Options configures Build.
type Options struct {
	// Registry defaults to the global plugin registry.
	Registry *plugin.Registry

	// OnSwitch, if set, returns the callback installed on each fallback
	// chain for the given kind.
	OnSwitch func(kind string) ai.SwitchFunc

	Logger *slog.Logger
}

// Build creates every provider in cfg.Models. Primary providers are required.
// A fallback that cannot be built is logged and skipped.
func Build(cfg config.Config, opts Options) (Set, error) {
	if opts.Registry == nil {
		opts.Registry = plugin.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	b := builder{cfg: cfg, opts: opts}

	var set Set
	var err error

	if set.LLM, err = b.llm(cfg.Models.LLM); err != nil {
		return Set{}, fmt.Errorf("primary llm: %w", err)
	}
	if cfg.Models.FallbackLLM != "" {
		if secondary, err := b.llm(cfg.Models.FallbackLLM); err != nil {
			b.skip("llm", cfg.Models.FallbackLLM, err)
		} else {
			fb := llm.NewFallback(set.LLM, secondary)
			b.watch("llm", fb.Switch)
			set.LLM = fb
		}
	}

	if cfg.Models.Summary != "" {
		if set.Summary, err = b.llm(cfg.Models.Summary); err != nil {
			b.skip("summary", cfg.Models.Summary, err)
			set.Summary = nil
		}
	}

	if set.STT, err = b.stt(cfg.Models.STT); err != nil {
		return Set{}, fmt.Errorf("stt: %w", err)
	}

	set.Voice = cfg.Models.TTSVoice
	if set.TTS, err = b.tts(cfg.Models.TTS, cfg.Models.TTSVoice); err != nil {
		return Set{}, fmt.Errorf("primary tts: %w", err)
	}
	if cfg.Models.FallbackTTS != "" {
		if secondary, err := b.tts(cfg.Models.FallbackTTS, cfg.Models.FallbackVoice); err != nil {
			b.skip("tts", cfg.Models.FallbackTTS, err)
		} else {
			fb := tts.NewFallback(set.TTS, secondary)
			b.watch("tts", fb.Switch)
			set.TTS = fb
		}
	}

	return set, nil
}

type builder struct {
	cfg  config.Config
	opts Options
}

// pluginConfig builds the factory options for a "provider/model" spec.
func (b builder) pluginConfig(spec string) (string, map[string]any) {
	name, model := config.SplitModel(spec)
	cfg := map[string]any{}
	if model != "" {
		cfg["model"] = model
	}
	if key := b.apiKey(name); key != "" {
		cfg["api_key"] = key
	}
	return name, cfg
}

func (b builder) apiKey(provider string) string {
	switch provider {
	case "openai":
		return b.cfg.Keys.OpenAI
	case "gemini":
		return b.cfg.Keys.Gemini
	case "elevenlabs":
		return b.cfg.Keys.ElevenLabs
	default:
		return ""
	}
}

func (b builder) llm(spec string) (llm.LLM, error) {
	name, cfg := b.pluginConfig(spec)
	return b.opts.Registry.NewLLM(name, cfg)
}

func (b builder) stt(spec string) (stt.Transcriber, error) {
	name, cfg := b.pluginConfig(spec)
	return b.opts.Registry.NewSTT(name, cfg)
}

func (b builder) tts(spec, voice string) (tts.TTS, error) {
	name, cfg := b.pluginConfig(spec)
	if voice != "" {
		cfg["voice"] = voice
	}
	return b.opts.Registry.NewTTS(name, cfg)
}

func (b builder) skip(kind, spec string, err error) {
	b.opts.Logger.Warn("provider unavailable, continuing without it",
		slog.String("kind", kind),
		slog.String("model", spec),
		slog.String("error", err.Error()))
}

type switcher interface {
	OnSwitch(ai.SwitchFunc)
	SetLogger(*slog.Logger)
}

func (b builder) watch(kind string, s switcher) {
	s.SetLogger(b.opts.Logger)
	if b.opts.OnSwitch != nil {
		s.OnSwitch(b.opts.OnSwitch(kind))
	}
}
