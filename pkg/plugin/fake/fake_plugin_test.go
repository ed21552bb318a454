package fake

import (
	"context"
	"testing"

	"github.com/matryer/is"

	"github.com/calmcall/finassist/pkg/ai/llm"
	"github.com/calmcall/finassist/pkg/ai/tts"
	"github.com/calmcall/finassist/pkg/plugin"
)

func TestRegistered(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	model, err := plugin.NewLLM("fake", map[string]any{"responses": []any{"Let's start with income."}})
	is.NoErr(err)
	resp, err := model.Chat(ctx, llm.ChatRequest{Messages: []llm.Message{llm.UserMessage("hi")}})
	is.NoErr(err)
	is.Equal(resp.Message.Content, "Let's start with income.")

	transcriber, err := plugin.NewSTT("fake", map[string]any{"transcript": "hello"})
	is.NoErr(err)
	tr, err := transcriber.Transcribe(ctx, []byte{1, 2, 3}, "audio/webm")
	is.NoErr(err)
	is.Equal(tr.Text, "hello")

	voice, err := plugin.NewTTS("fake", nil)
	is.NoErr(err)
	out, err := voice.Synthesize(ctx, tts.SynthesizeRequest{Text: "ok"})
	is.NoErr(err)
	is.Equal(out.ContentType, "audio/wav")
}

func TestDefaultTranscript(t *testing.T) {
	is := is.New(t)

	transcriber, err := plugin.NewSTT("fake", nil)
	is.NoErr(err)
	tr, err := transcriber.Transcribe(context.Background(), []byte{1}, "audio/webm")
	is.NoErr(err)
	is.Equal(tr.Text, defaultTranscript)
}
