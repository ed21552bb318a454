package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/matryer/is"

	"github.com/calmcall/finassist/internal/config"
	"github.com/calmcall/finassist/pkg/ai"
	"github.com/calmcall/finassist/pkg/ai/llm"
	llmfake "github.com/calmcall/finassist/pkg/ai/llm/fake"
	sttfake "github.com/calmcall/finassist/pkg/ai/stt/fake"
	"github.com/calmcall/finassist/pkg/ai/tts"
	ttsfake "github.com/calmcall/finassist/pkg/ai/tts/fake"
	"github.com/calmcall/finassist/pkg/plugin"
)

type seen struct {
	configs map[string]map[string]any
}

func testRegistry(s *seen) *plugin.Registry {
	reg := plugin.NewRegistry()
	record := func(key string, cfg map[string]any) {
		if s != nil {
			s.configs[key] = cfg
		}
	}

	reg.Register(plugin.KindLLM, "fake", func(cfg map[string]any) (any, error) {
		record("llm/fake", cfg)
		return llmfake.NewFakeLLM(), nil
	})
	reg.Register(plugin.KindLLM, "broken", func(cfg map[string]any) (any, error) {
		return llmfake.NewFailingLLM(ai.ClassifyStatus("broken", "chat", 503, errors.New("unavailable"))).Named("broken"), nil
	})
	reg.Register(plugin.KindLLM, "openai", func(cfg map[string]any) (any, error) {
		record("llm/openai", cfg)
		return llmfake.NewFakeLLM().Named("openai"), nil
	})
	reg.Register(plugin.KindSTT, "fake", func(cfg map[string]any) (any, error) {
		return sttfake.NewFakeSTT("hello"), nil
	})
	reg.Register(plugin.KindTTS, "fake", func(cfg map[string]any) (any, error) {
		record("tts/fake", cfg)
		return ttsfake.NewFakeTTS(), nil
	})
	reg.Register(plugin.KindTTS, "backup", func(cfg map[string]any) (any, error) {
		return ttsfake.NewFakeTTS().Named("backup"), nil
	})
	return reg
}

func models(m config.Models) config.Config {
	return config.Config{Models: m, Keys: config.Keys{OpenAI: "sk-test"}}
}

func TestBuild_PrimaryOnly(t *testing.T) {
	is := is.New(t)
	s := &seen{configs: map[string]map[string]any{}}

	set, err := Build(models(config.Models{
		LLM:      "openai/gpt-4o-mini",
		STT:      "fake",
		TTS:      "fake/tone",
		TTSVoice: "voice-1",
	}), Options{Registry: testRegistry(s)})
	is.NoErr(err)

	is.True(set.Summary == nil)
	_, isFallback := set.LLM.(*llm.Fallback)
	is.True(!isFallback)
	is.Equal(set.Voice, "voice-1")

	is.Equal(s.configs["llm/openai"]["model"], "gpt-4o-mini")
	is.Equal(s.configs["llm/openai"]["api_key"], "sk-test")
	is.Equal(s.configs["tts/fake"]["model"], "tone")
	is.Equal(s.configs["tts/fake"]["voice"], "voice-1")
}

func TestBuild_Fallbacks(t *testing.T) {
	is := is.New(t)

	var switches []string
	set, err := Build(models(config.Models{
		LLM:         "broken",
		FallbackLLM: "fake",
		Summary:     "fake",
		STT:         "fake",
		TTS:         "fake",
		FallbackTTS: "backup",
	}), Options{
		Registry: testRegistry(nil),
		OnSwitch: func(kind string) ai.SwitchFunc {
			return func(from, to string, cause error) {
				switches = append(switches, kind+":"+from+"->"+to)
			}
		},
	})
	is.NoErr(err)
	is.True(set.Summary != nil)

	_, isFallback := set.TTS.(*tts.Fallback)
	is.True(isFallback)

	resp, err := set.LLM.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{llm.UserMessage("hi")},
	})
	is.NoErr(err) // served by the fallback
	is.Equal(resp.Message.Content, "I hear you. (You said: hi)")
	is.Equal(switches, []string{"llm:broken/fake-model->fake/fake-model"})
}

func TestBuild_SkipsUnavailableFallback(t *testing.T) {
	is := is.New(t)

	set, err := Build(models(config.Models{
		LLM:         "fake",
		FallbackLLM: "nope",
		Summary:     "nope",
		STT:         "fake",
		TTS:         "fake",
		FallbackTTS: "nope",
	}), Options{Registry: testRegistry(nil)})
	is.NoErr(err)

	is.True(set.Summary == nil)
	_, isFallback := set.TTS.(*tts.Fallback)
	is.True(!isFallback)
}

func TestBuild_PrimaryRequired(t *testing.T) {
	tests := []struct {
		name string
		m    config.Models
	}{
		{name: "llm", m: config.Models{LLM: "nope", STT: "fake", TTS: "fake"}},
		{name: "stt", m: config.Models{LLM: "fake", STT: "nope", TTS: "fake"}},
		{name: "tts", m: config.Models{LLM: "fake", STT: "fake", TTS: "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(models(tt.m), Options{Registry: testRegistry(nil)})
			if !errors.Is(err, plugin.ErrNotRegistered) {
				t.Fatalf("expected ErrNotRegistered, got %v", err)
			}
		})
	}
}
