// Package wav encodes and decodes 16-bit PCM WAV clips in memory.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// ContentType is the MIME type of encoded clips.
const ContentType = "audio/wav"

const headerSize = 44

// ErrInvalidWAV is returned when decoding something that is not a PCM WAV.
var ErrInvalidWAV = errors.New("invalid WAV data")

// Format describes the PCM layout of a clip.
type Format struct {
	SampleRate    uint32
	NumChannels   uint16
	BitsPerSample uint16
}

// Mono16 is 16-bit mono PCM at rate.
func Mono16(rate uint32) Format {
	return Format{SampleRate: rate, NumChannels: 1, BitsPerSample: 16}
}

func (f Format) blockAlign() uint16 { return f.NumChannels * f.BitsPerSample / 8 }

func (f Format) byteRate() uint32 { return f.SampleRate * uint32(f.blockAlign()) }

// Duration returns how long dataSize bytes of PCM play for.
func (f Format) Duration(dataSize int) time.Duration {
	if f.byteRate() == 0 {
		return 0
	}
	return time.Duration(dataSize) * time.Second / time.Duration(f.byteRate())
}

// header mirrors the canonical 44-byte RIFF/WAVE header.
type header struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

// Encode wraps raw little-endian PCM in a WAV header.
func Encode(pcm []byte, f Format) ([]byte, error) {
	if f.SampleRate == 0 || f.NumChannels == 0 || f.BitsPerSample == 0 {
		return nil, fmt.Errorf("encode wav: incomplete format %+v", f)
	}
	if len(pcm)%int(f.blockAlign()) != 0 {
		return nil, fmt.Errorf("encode wav: %d bytes is not a whole number of %d-byte frames", len(pcm), f.blockAlign())
	}

	h := header{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1, // PCM
		NumChannels:   f.NumChannels,
		SampleRate:    f.SampleRate,
		ByteRate:      f.byteRate(),
		BlockAlign:    f.blockAlign(),
		BitsPerSample: f.BitsPerSample,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}

	var buf bytes.Buffer
	buf.Grow(headerSize + len(pcm))
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("encode wav header: %w", err)
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// Decode splits a canonical WAV clip into its format and PCM payload.
func Decode(data []byte) (Format, []byte, error) {
	if len(data) < headerSize {
		return Format{}, nil, fmt.Errorf("%w: %d bytes is shorter than a header", ErrInvalidWAV, len(data))
	}

	var h header
	if err := binary.Read(bytes.NewReader(data[:headerSize]), binary.LittleEndian, &h); err != nil {
		return Format{}, nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if string(h.RIFF[:]) != "RIFF" || string(h.WAVE[:]) != "WAVE" || string(h.Data[:]) != "data" {
		return Format{}, nil, fmt.Errorf("%w: missing RIFF/WAVE/data markers", ErrInvalidWAV)
	}
	if h.AudioFormat != 1 {
		return Format{}, nil, fmt.Errorf("%w: audio format %d is not PCM", ErrInvalidWAV, h.AudioFormat)
	}

	end := headerSize + int(h.DataSize)
	if end > len(data) {
		end = len(data)
	}
	f := Format{SampleRate: h.SampleRate, NumChannels: h.NumChannels, BitsPerSample: h.BitsPerSample}
	return f, data[headerSize:end], nil
}

// Sine renders a mono 16-bit tone at half amplitude.
func Sine(frequency float64, d time.Duration, sampleRate uint32) []byte {
	n := int(time.Duration(sampleRate) * d / time.Second)
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		s := int16(math.Sin(2*math.Pi*frequency*t) * 32767 * 0.5)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
