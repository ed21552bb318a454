package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matryer/is"

	"github.com/calmcall/finassist/pkg/ai"
	"github.com/calmcall/finassist/pkg/ai/tts"
	"github.com/calmcall/finassist/pkg/audio/wav"
)

type fakeServer struct {
	apiKey  string
	query   string
	texts   []string
	replies []map[string]any
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.apiKey = r.Header.Get("xi-api-key")
		f.query = r.URL.RawQuery
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// init, text and end-of-input messages
		for i := 0; i < 3; i++ {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg struct {
				Text string `json:"text"`
			}
			_ = json.Unmarshal(data, &msg)
			f.texts = append(f.texts, msg.Text)
		}
		for _, reply := range f.replies {
			_ = conn.WriteJSON(reply)
		}
		_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		_, _, _ = conn.ReadMessage()
	})
}

func wsBase(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/text-to-speech/{voice_id}/stream-input"
}

func TestSynthesize(t *testing.T) {
	is := is.New(t)

	pcm := wav.Sine(440, 10*time.Millisecond, sampleRate)
	fs := &fakeServer{replies: []map[string]any{
		{"audio": base64.StdEncoding.EncodeToString(pcm[:240])},
		{"audio": base64.StdEncoding.EncodeToString(pcm[240:])},
		{"isFinal": true},
	}}
	srv := httptest.NewServer(fs.handler(t))
	defer srv.Close()

	p, err := New(Config{APIKey: "xi-test", WSBase: wsBase(srv)})
	is.NoErr(err)

	out, err := p.Synthesize(context.Background(), tts.SynthesizeRequest{Text: "Take a slow breath."})
	is.NoErr(err)
	is.Equal(out.ContentType, "audio/wav")

	f, got, err := wav.Decode(out.Audio)
	is.NoErr(err)
	is.Equal(f, wav.Mono16(sampleRate))
	is.Equal(got, pcm)

	is.Equal(fs.apiKey, "xi-test")
	is.True(strings.Contains(fs.query, "output_format=pcm_24000"))
	is.True(strings.Contains(fs.query, "model_id=eleven_turbo_v2"))
	is.Equal(fs.texts, []string{" ", "Take a slow breath. ", ""})
}

func TestSynthesize_ServerError(t *testing.T) {
	is := is.New(t)

	fs := &fakeServer{replies: []map[string]any{
		{"error": "invalid_voice", "message": "voice not found"},
	}}
	srv := httptest.NewServer(fs.handler(t))
	defer srv.Close()

	p, err := New(Config{APIKey: "xi-test", WSBase: wsBase(srv)})
	is.NoErr(err)

	_, err = p.Synthesize(context.Background(), tts.SynthesizeRequest{Text: "hi", Voice: "nope"})
	is.True(ai.IsFatal(err))
}

func TestSynthesize_DialFailure(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := New(Config{APIKey: "bad", WSBase: wsBase(srv)})
	is.NoErr(err)

	_, err = p.Synthesize(context.Background(), tts.SynthesizeRequest{Text: "hi"})
	is.True(ai.IsFatal(err)) // 401 will not get better on retry
}

func TestNew_RequiresKey(t *testing.T) {
	is := is.New(t)

	_, err := New(Config{APIKey: "  "})
	is.True(err != nil)
}

func TestBuildURL(t *testing.T) {
	is := is.New(t)

	u, err := buildURL(defaultWSBase, "voice 1", "eleven_turbo_v2")
	is.NoErr(err)
	is.True(strings.HasPrefix(u, "wss://api.elevenlabs.io/v1/text-to-speech/voice%201/stream-input?"))
}
