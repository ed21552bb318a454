package openai

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/calmcall/finassist/pkg/ai"
	"github.com/calmcall/finassist/pkg/ai/stt"
)

// WhisperSTT implements stt.Transcriber with the audio transcription API.
type WhisperSTT struct {
	client   *openai.Client
	model    string
	language string
}

// NewWhisperSTT creates a Whisper transcriber. An empty language lets the
// service detect it.
func NewWhisperSTT(cfg Config, language string) *WhisperSTT {
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperSTT{client: newClient(cfg), model: model, language: language}
}

func (w *WhisperSTT) Transcribe(ctx context.Context, audio []byte, mimeType string) (stt.Transcript, error) {
	if len(audio) == 0 {
		return stt.Transcript{}, ai.NewFatalError(providerName, "transcribe", errors.New("empty audio"))
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: "audio" + stt.FileExtension(mimeType),
		Reader:   bytes.NewReader(audio),
		Language: w.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return stt.Transcript{}, classify("transcribe", err)
	}

	return stt.Transcript{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
		Duration: time.Duration(resp.Duration * float64(time.Second)),
	}, nil
}

func (w *WhisperSTT) Capabilities() stt.STTCapabilities {
	return stt.STTCapabilities{
		Provider:           providerName,
		Model:              w.model,
		SupportedLanguages: []string{"en", "es", "fr", "de", "pt", "it", "zh", "ja", "ko"},
		MimeTypes:          []string{"audio/webm", "audio/wav", "audio/mpeg", "audio/mp4", "audio/ogg"},
	}
}
