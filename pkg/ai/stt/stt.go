// Package stt provides the speech-to-text interface used for one-shot
// transcription of a recorded user turn.
package stt

import (
	"context"
	"time"

	"github.com/calmcall/finassist/pkg/ai"
)

var (
	// ErrRecoverable indicates a temporary STT failure that may succeed if retried.
	ErrRecoverable = ai.ErrRecoverable

	// ErrFatal indicates a permanent STT failure that will not succeed if retried.
	// Examples: invalid audio format, unsupported language, authentication failure.
	ErrFatal = ai.ErrFatal
)

// Transcript is the text recognized in one audio clip.
type Transcript struct {
	Text     string
	Language string
	Duration time.Duration
}

// STTCapabilities describes the capabilities of an STT provider.
type STTCapabilities struct {
	Provider           string
	Model              string
	SupportedLanguages []string
	MimeTypes          []string
}

// Transcriber converts a complete audio clip to text.
type Transcriber interface {
	// Transcribe recognizes speech in audio. mimeType is a hint such as
	// "audio/webm"; providers may ignore it.
	Transcribe(ctx context.Context, audio []byte, mimeType string) (Transcript, error)

	// Capabilities returns the provider's capabilities.
	Capabilities() STTCapabilities
}

// FileExtension picks a file name extension for mimeType, for providers that
// sniff the format from an upload's name.
func FileExtension(mimeType string) string {
	switch mimeType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/ogg":
		return ".ogg"
	default:
		return ".webm"
	}
}
