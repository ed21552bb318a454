package wav

import (
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestEncodeDecode(t *testing.T) {
	is := is.New(t)

	pcm := Sine(440, 250*time.Millisecond, 16000)
	is.Equal(len(pcm), 4000*2)

	data, err := Encode(pcm, Mono16(16000))
	is.NoErr(err)
	is.Equal(len(data), headerSize+len(pcm))
	is.Equal(string(data[:4]), "RIFF")
	is.Equal(string(data[8:12]), "WAVE")

	f, got, err := Decode(data)
	is.NoErr(err)
	is.Equal(f, Mono16(16000))
	is.Equal(got, pcm)
	is.Equal(f.Duration(len(got)), 250*time.Millisecond)
}

func TestEncode_Errors(t *testing.T) {
	is := is.New(t)

	_, err := Encode([]byte{1, 2, 3}, Mono16(16000))
	is.True(err != nil) // odd byte count for 16-bit samples

	_, err = Encode(nil, Format{})
	is.True(err != nil)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "short", data: []byte("RIFF")},
		{name: "not riff", data: make([]byte, headerSize)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.data)
			if !errors.Is(err, ErrInvalidWAV) {
				t.Fatalf("expected ErrInvalidWAV, got %v", err)
			}
		})
	}
}
