package httpapi

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/calmcall/finassist/pkg/agent"
)

const defaultAudioMime = "audio/webm"

// voiceTurn transcribes one recorded utterance, answers it and returns the
// spoken reply. The transcript and reply text travel URL-encoded in the
// x-transcript and x-text headers.
func (s *Server) voiceTurn(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		writeText(w, http.StatusBadRequest, "Expected multipart/form-data")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxAudioBytes)
	if err := r.ParseMultipartForm(MaxAudioBytes); err != nil {
		writeText(w, http.StatusBadRequest, "Expected multipart/form-data")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeText(w, http.StatusBadRequest, "Missing audio file in 'audio' field")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		writeText(w, http.StatusBadRequest, "Missing audio file in 'audio' field")
		return
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = defaultAudioMime
	}

	voice := r.FormValue("voiceId")
	if voice == "" {
		voice = s.opts.Providers.Voice
	}

	assistant, err := agent.New(agent.Config{
		LLM:          s.opts.Providers.LLM,
		STT:          s.opts.Providers.STT,
		TTS:          s.opts.Providers.TTS,
		Instructions: r.FormValue("system"),
		Voice:        voice,
		Observer:     s.observer(),
		Logger:       s.logger,
	})
	if err != nil {
		s.voiceFailed(w, r, err)
		return
	}

	out, err := assistant.Respond(r.Context(), audio, mimeType)
	if err != nil {
		s.voiceFailed(w, r, err)
		return
	}

	contentType := out.Audio.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Transcript", encodeURIComponent(out.Transcript))
	w.Header().Set("X-Text", encodeURIComponent(out.Reply.Text))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Audio.Audio); err != nil {
		s.logger.Warn("write voice reply", slog.String("error", err.Error()))
	}
}

func (s *Server) voiceFailed(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("voice turn failed",
		slog.String("request_id", requestID(r)),
		slog.String("error", err.Error()))
	writeText(w, http.StatusInternalServerError, "Internal Server Error")
}

// encodeURIComponent escapes s the way browsers do, so clients can decode
// the header with decodeURIComponent.
func encodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}
