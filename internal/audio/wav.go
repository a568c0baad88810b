// Package audio holds the PCM16 helpers shared by the relay and the probe.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// wavHeader is the canonical 44-byte header for mono PCM16.
type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

var ErrInvalidWAV = errors.New("invalid wav")

// EncodeWAV wraps mono PCM16LE samples in a WAV container.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	var buf bytes.Buffer
	// bytes.Buffer writes do not fail.
	_ = WriteWAV(&buf, pcm, sampleRate)
	return buf.Bytes()
}

func WriteWAV(w io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + uint32(len(pcm)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		Channels:      1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * BytesPerSample),
		BlockAlign:    BytesPerSample,
		BitsPerSample: 16,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

type wavFormat struct {
	audioFormat   uint16
	channels      uint16
	sampleRate    int
	bitsPerSample uint16
}

// DecodeWAV extracts PCM16 samples from a RIFF/WAVE file, downmixing to
// mono. It returns the samples and their sample rate.
func DecodeWAV(data []byte) ([]byte, int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		format  *wavFormat
		samples []byte
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		off += 8
		if size < 0 || off+size > len(data) {
			return nil, 0, fmt.Errorf("%w: chunk %q overruns file", ErrInvalidWAV, id)
		}
		body := data[off : off+size]
		switch id {
		case "fmt ":
			if len(body) < 16 {
				return nil, 0, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			format = &wavFormat{
				audioFormat:   binary.LittleEndian.Uint16(body[0:2]),
				channels:      binary.LittleEndian.Uint16(body[2:4]),
				sampleRate:    int(binary.LittleEndian.Uint32(body[4:8])),
				bitsPerSample: binary.LittleEndian.Uint16(body[14:16]),
			}
		case "data":
			samples = body
		}
		// Chunks are word aligned.
		off += size + size%2
	}

	switch {
	case format == nil:
		return nil, 0, fmt.Errorf("%w: fmt chunk missing", ErrInvalidWAV)
	case len(samples) == 0:
		return nil, 0, fmt.Errorf("%w: data chunk missing", ErrInvalidWAV)
	case format.audioFormat != 1:
		return nil, 0, fmt.Errorf("%w: audio format %d is not PCM", ErrInvalidWAV, format.audioFormat)
	case format.bitsPerSample != 16:
		return nil, 0, fmt.Errorf("%w: %d bits per sample", ErrInvalidWAV, format.bitsPerSample)
	case format.channels == 0:
		return nil, 0, fmt.Errorf("%w: zero channels", ErrInvalidWAV)
	}
	rate := format.sampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return downmix(samples, int(format.channels)), rate, nil
}

func downmix(samples []byte, channels int) []byte {
	frame := channels * BytesPerSample
	frames := len(samples) / frame
	out := make([]byte, frames*BytesPerSample)
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			at := i*frame + ch*BytesPerSample
			sum += int(int16(binary.LittleEndian.Uint16(samples[at : at+2])))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sum/channels)))
	}
	return out
}
