// Package fake registers the in-memory providers under the name "fake" so
// the server and CLI can run without any API keys.
package fake

import (
	llmfake "github.com/calmcall/finassist/pkg/ai/llm/fake"
	sttfake "github.com/calmcall/finassist/pkg/ai/stt/fake"
	ttsfake "github.com/calmcall/finassist/pkg/ai/tts/fake"
	"github.com/calmcall/finassist/pkg/plugin"
)

const defaultTranscript = "I want to make a budget for this month."

func newFakeSTT(cfg map[string]any) (any, error) {
	return sttfake.NewFakeSTT(plugin.String(cfg, "transcript", "", defaultTranscript)), nil
}

func newFakeTTS(cfg map[string]any) (any, error) {
	return ttsfake.NewFakeTTS(), nil
}

func newFakeLLM(cfg map[string]any) (any, error) {
	var responses []string
	switch r := cfg["responses"].(type) {
	case []string:
		responses = r
	case []any:
		for _, v := range r {
			if s, ok := v.(string); ok {
				responses = append(responses, s)
			}
		}
	}
	return llmfake.NewFakeLLM(responses...), nil
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindSTT,
		Name:        "fake",
		Factory:     newFakeSTT,
		Description: "Fake STT provider for testing and development",
		Version:     "1.0.0",
		Config: map[string]any{
			"transcript": "Customizable transcript text",
		},
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindTTS,
		Name:        "fake",
		Factory:     newFakeTTS,
		Description: "Fake TTS provider that renders a tone as WAV",
		Version:     "1.0.0",
		Config:      map[string]any{},
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindLLM,
		Name:        "fake",
		Factory:     newFakeLLM,
		Description: "Fake LLM provider for testing and development",
		Version:     "1.0.0",
		Config: map[string]any{
			"responses": []string{"List of predefined responses"},
		},
	})
}
