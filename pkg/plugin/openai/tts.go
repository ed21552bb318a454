package openai

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/calmcall/finassist/pkg/ai"
	"github.com/calmcall/finassist/pkg/ai/tts"
)

// TTS implements tts.TTS with the speech API. Replies are MP3.
type TTS struct {
	client *openai.Client
	model  string
	voice  string
}

// NewTTS creates an OpenAI speech provider.
func NewTTS(cfg Config) *TTS {
	model := cfg.Model
	if model == "" {
		model = string(openai.TTSModel1)
	}
	voice := cfg.Voice
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &TTS{client: newClient(cfg), model: model, voice: voice}
}

func (o *TTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (tts.Synthesis, error) {
	voice := req.Voice
	if voice == "" {
		voice = o.voice
	}

	speechReq := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	}
	if req.Speed > 0 {
		speechReq.Speed = float64(req.Speed)
	}

	resp, err := o.client.CreateSpeech(ctx, speechReq)
	if err != nil {
		return tts.Synthesis{}, classify("synthesize", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return tts.Synthesis{}, ai.NewRecoverableError(providerName, "synthesize", fmt.Errorf("read speech: %w", err))
	}
	return tts.Synthesis{Audio: audio, ContentType: "audio/mpeg"}, nil
}

func (o *TTS) Capabilities() tts.TTSCapabilities {
	return tts.TTSCapabilities{
		Provider:             providerName,
		Model:                o.model,
		DefaultVoice:         o.voice,
		ContentType:          "audio/mpeg",
		SupportsSpeedControl: true,
	}
}
