package tts

import (
	"context"

	"github.com/calmcall/finassist/pkg/ai"
)

// Fallback is a TTS that moves to a secondary provider after the primary's
// first failure and stays there. Voice ids belong to one provider, so the
// secondary always speaks with its own default voice.
type Fallback struct {
	*ai.Switch[TTS]
}

// NewFallback wraps primary and secondary.
func NewFallback(primary, secondary TTS) *Fallback {
	return &Fallback{
		Switch: ai.NewSwitch("tts", primary, providerName(primary), secondary, providerName(secondary)),
	}
}

func (f *Fallback) Synthesize(ctx context.Context, req SynthesizeRequest) (Synthesis, error) {
	var out Synthesis
	onSecondary := f.Switched()
	err := f.Do(ctx, func(p TTS) error {
		r := req
		if onSecondary {
			r.Voice = ""
		}
		onSecondary = true

		var err error
		out, err = p.Synthesize(ctx, r)
		return err
	})
	return out, err
}

func (f *Fallback) Capabilities() TTSCapabilities {
	active, _ := f.Active()
	return active.Capabilities()
}

func providerName(p TTS) string {
	caps := p.Capabilities()
	if caps.Model == "" {
		return caps.Provider
	}
	return caps.Provider + "/" + caps.Model
}
