package llm

import (
	"context"

	"github.com/calmcall/finassist/pkg/ai"
)

// Fallback is an LLM that moves to a secondary provider after the primary's
// first failure and stays there.
type Fallback struct {
	*ai.Switch[LLM]
}

// NewFallback wraps primary and secondary.
func NewFallback(primary, secondary LLM) *Fallback {
	return &Fallback{
		Switch: ai.NewSwitch("llm", primary, providerName(primary), secondary, providerName(secondary)),
	}
}

func (f *Fallback) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var resp ChatResponse
	err := f.Do(ctx, func(p LLM) error {
		var err error
		resp, err = p.Chat(ctx, req)
		return err
	})
	return resp, err
}

func (f *Fallback) Capabilities() LLMCapabilities {
	active, _ := f.Active()
	return active.Capabilities()
}

func providerName(p LLM) string {
	caps := p.Capabilities()
	if caps.Model == "" {
		return caps.Provider
	}
	return caps.Provider + "/" + caps.Model
}
