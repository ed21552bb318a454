package tts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/matryer/is"

	"github.com/calmcall/finassist/pkg/ai/tts"
	"github.com/calmcall/finassist/pkg/ai/tts/fake"
)

func TestFallback(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	primary := fake.NewFailingTTS(errors.New("quota exceeded")).Named("elevenlabs")
	secondary := fake.NewFakeTTS().Named("openai")
	fb := tts.NewFallback(primary, secondary)

	out, err := fb.Synthesize(ctx, tts.SynthesizeRequest{Text: "hi", Voice: "Xb7hH8MSUJpSbSDYk0k2"})
	is.NoErr(err)
	is.Equal(out.ContentType, "audio/wav")
	is.True(fb.Switched())

	_, err = fb.Synthesize(ctx, tts.SynthesizeRequest{Text: "again", Voice: "Xb7hH8MSUJpSbSDYk0k2"})
	is.NoErr(err)

	is.Equal(len(primary.Requests()), 1)
	is.Equal(primary.Requests()[0].Voice, "Xb7hH8MSUJpSbSDYk0k2")
	for _, r := range secondary.Requests() {
		is.Equal(r.Voice, "") // the secondary uses its own default voice
	}
	is.Equal(len(secondary.Requests()), 2)
	is.Equal(fb.Capabilities().Provider, "openai")
}
