package fake

import (
	"context"
	"errors"
	"sync"

	"github.com/calmcall/finassist/pkg/ai"
	"github.com/calmcall/finassist/pkg/ai/stt"
)

// FakeSTT returns a fixed transcript for any non-empty clip.
type FakeSTT struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

// NewFakeSTT creates a fake that always hears text.
func NewFakeSTT(text string) *FakeSTT {
	return &FakeSTT{text: text}
}

// NewFailingSTT creates a fake whose every call fails with err.
func NewFailingSTT(err error) *FakeSTT {
	return &FakeSTT{err: err}
}

func (f *FakeSTT) Transcribe(ctx context.Context, audio []byte, mimeType string) (stt.Transcript, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}
	if f.err != nil {
		return stt.Transcript{}, f.err
	}
	if len(audio) == 0 {
		return stt.Transcript{}, ai.NewFatalError("fake", "transcribe", errors.New("empty audio"))
	}
	return stt.Transcript{Text: f.text, Language: "en"}, nil
}

// Calls returns how many times Transcribe ran.
func (f *FakeSTT) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeSTT) Capabilities() stt.STTCapabilities {
	return stt.STTCapabilities{
		Provider:           "fake",
		Model:              "fake-stt",
		SupportedLanguages: []string{"en"},
		MimeTypes:          []string{"audio/webm", "audio/wav"},
	}
}
