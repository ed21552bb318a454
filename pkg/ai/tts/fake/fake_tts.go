package fake

import (
	"context"
	"sync"
	"time"

	"github.com/calmcall/finassist/pkg/ai/tts"
	"github.com/calmcall/finassist/pkg/audio/wav"
)

const sampleRate = 16000

// FakeTTS renders a short tone per character as a WAV clip.
type FakeTTS struct {
	mu       sync.Mutex
	name     string
	err      error
	requests []tts.SynthesizeRequest
}

// NewFakeTTS creates a new fake TTS provider.
func NewFakeTTS() *FakeTTS {
	return &FakeTTS{name: "fake"}
}

// NewFailingTTS creates a fake whose every call fails with err.
func NewFailingTTS(err error) *FakeTTS {
	return &FakeTTS{name: "fake-failing", err: err}
}

// Named sets the provider name reported by Capabilities.
func (f *FakeTTS) Named(name string) *FakeTTS {
	f.name = name
	return f
}

// Synthesize renders 20ms of a 440Hz tone per character of text.
func (f *FakeTTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (tts.Synthesis, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return tts.Synthesis{}, err
	}
	if f.err != nil {
		return tts.Synthesis{}, f.err
	}

	pcm := wav.Sine(440, time.Duration(len(req.Text))*20*time.Millisecond, sampleRate)
	audio, err := wav.Encode(pcm, wav.Mono16(sampleRate))
	if err != nil {
		return tts.Synthesis{}, err
	}
	return tts.Synthesis{Audio: audio, ContentType: wav.ContentType}, nil
}

// Requests returns every request seen so far.
func (f *FakeTTS) Requests() []tts.SynthesizeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tts.SynthesizeRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// Capabilities returns the fake TTS capabilities.
func (f *FakeTTS) Capabilities() tts.TTSCapabilities {
	return tts.TTSCapabilities{
		Provider:             f.name,
		Model:                "fake-tts",
		DefaultVoice:         "fake-voice-1",
		ContentType:          wav.ContentType,
		SupportsSpeedControl: false,
	}
}
