// Package tts provides the text-to-speech interface used to voice assistant
// replies.
package tts

import (
	"context"

	"github.com/calmcall/finassist/pkg/ai"
)

var (
	// ErrRecoverable indicates a temporary TTS failure that may succeed if retried.
	ErrRecoverable = ai.ErrRecoverable

	// ErrFatal indicates a permanent TTS failure that will not succeed if retried.
	// Examples: invalid voice ID, unsupported text format, permanent quota exceeded.
	ErrFatal = ai.ErrFatal
)

// SynthesizeRequest contains parameters for text-to-speech synthesis.
type SynthesizeRequest struct {
	Text     string
	Voice    string // provider voice id; empty selects the provider default
	Language string
	Speed    float32
}

// Synthesis is a complete encoded audio clip.
type Synthesis struct {
	Audio       []byte
	ContentType string
}

// TTSCapabilities describes the capabilities of a TTS provider.
type TTSCapabilities struct {
	Provider             string
	Model                string
	DefaultVoice         string
	ContentType          string
	SupportsSpeedControl bool
}

// TTS is the main interface for text-to-speech providers.
type TTS interface {
	// Synthesize converts text to one encoded audio clip.
	Synthesize(ctx context.Context, req SynthesizeRequest) (Synthesis, error)

	// Capabilities returns the provider's capabilities.
	Capabilities() TTSCapabilities
}
