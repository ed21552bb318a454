// Package elevenlabs provides an ElevenLabs text-to-speech provider over the
// stream-input websocket API. Audio is requested as raw PCM and returned
// wrapped in a WAV container.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/calmcall/finassist/pkg/ai"
	"github.com/calmcall/finassist/pkg/ai/tts"
	"github.com/calmcall/finassist/pkg/audio/wav"
	"github.com/calmcall/finassist/pkg/plugin"
)

const (
	providerName = "elevenlabs"

	defaultWSBase = "wss://api.elevenlabs.io/v1/text-to-speech/{voice_id}/stream-input"
	defaultModel  = "eleven_turbo_v2"
	defaultVoice  = "21m00Tcm4TlvDq8ikWAM"

	sampleRate   = 24000
	outputFormat = "pcm_24000"

	writeTimeout = 5 * time.Second
)

// Config holds ElevenLabs settings.
type Config struct {
	APIKey  string
	Model   string
	Voice   string
	WSBase  string // optional, must contain {voice_id}
	Timeout time.Duration
}

// TTS implements tts.TTS.
type TTS struct {
	cfg    Config
	dialer *websocket.Dialer
}

// New creates an ElevenLabs provider.
func New(cfg Config) (*TTS, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, errors.New("elevenlabs api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = defaultVoice
	}
	if cfg.WSBase == "" {
		cfg.WSBase = defaultWSBase
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &TTS{cfg: cfg, dialer: websocket.DefaultDialer}, nil
}

type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	Flush         bool           `json:"flush,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float32 `json:"speed,omitempty"`
}

type audioMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Synthesize opens one stream-input session, sends the whole text, and
// collects audio until the server marks the stream final.
func (e *TTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (tts.Synthesis, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return tts.Synthesis{}, ai.NewFatalError(providerName, "synthesize", errors.New("empty text"))
	}
	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = e.cfg.Voice
	}

	wsURL, err := buildURL(e.cfg.WSBase, voice, e.cfg.Model)
	if err != nil {
		return tts.Synthesis{}, ai.NewFatalError(providerName, "synthesize", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	header := http.Header{}
	header.Set("xi-api-key", e.cfg.APIKey)
	conn, resp, err := e.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return tts.Synthesis{}, ai.ClassifyStatus(providerName, "dial", resp.StatusCode, err)
		}
		return tts.Synthesis{}, ai.NewRecoverableError(providerName, "dial", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	settings := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.8}
	if req.Speed > 0 {
		settings.Speed = req.Speed
	}
	msgs := []textMessage{
		{Text: " ", VoiceSettings: settings},
		{Text: text + " ", Flush: true},
		{Text: ""}, // end of input
	}
	for _, m := range msgs {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(m); err != nil {
			return tts.Synthesis{}, ai.NewRecoverableError(providerName, "send", err)
		}
	}

	var pcm []byte
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return tts.Synthesis{}, ai.NewRecoverableError(providerName, "receive", ctx.Err())
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(pcm) > 0 {
				break
			}
			return tts.Synthesis{}, ai.NewRecoverableError(providerName, "receive", err)
		}

		var msg audioMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			return tts.Synthesis{}, ai.NewFatalError(providerName, "synthesize", fmt.Errorf("%s: %s", msg.Error, msg.Message))
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return tts.Synthesis{}, ai.NewRecoverableError(providerName, "decode", err)
			}
			pcm = append(pcm, chunk...)
		}
		if msg.IsFinal {
			break
		}
	}

	if len(pcm) == 0 {
		return tts.Synthesis{}, ai.NewRecoverableError(providerName, "synthesize", errors.New("no audio received"))
	}
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	audio, err := wav.Encode(pcm, wav.Mono16(sampleRate))
	if err != nil {
		return tts.Synthesis{}, ai.NewFatalError(providerName, "encode", err)
	}
	return tts.Synthesis{Audio: audio, ContentType: wav.ContentType}, nil
}

func (e *TTS) Capabilities() tts.TTSCapabilities {
	return tts.TTSCapabilities{
		Provider:             providerName,
		Model:                e.cfg.Model,
		DefaultVoice:         e.cfg.Voice,
		ContentType:          wav.ContentType,
		SupportsSpeedControl: true,
	}
}

func buildURL(base, voiceID, model string) (string, error) {
	base = strings.ReplaceAll(base, "{voice_id}", url.PathEscape(voiceID))
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid elevenlabs ws url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "wss"
	}
	q := u.Query()
	if q.Get("model_id") == "" {
		q.Set("model_id", model)
	}
	if q.Get("output_format") == "" {
		q.Set("output_format", outputFormat)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind: plugin.KindTTS,
		Name: providerName,
		Factory: func(cfg map[string]any) (any, error) {
			key, err := plugin.APIKey(cfg, "ELEVENLABS_API_KEY", "ElevenLabs")
			if err != nil {
				return nil, err
			}
			return New(Config{
				APIKey: key,
				Model:  plugin.String(cfg, "model", "ELEVENLABS_MODEL_ID", defaultModel),
				Voice:  plugin.String(cfg, "voice", "ELEVENLABS_VOICE_ID", defaultVoice),
				WSBase: plugin.String(cfg, "ws_base", "", ""),
			})
		},
		Description: "ElevenLabs stream-input text-to-speech",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key": "ElevenLabs API key (or set ELEVENLABS_API_KEY env var)",
			"model":   defaultModel,
			"voice":   defaultVoice,
		},
	})
}
