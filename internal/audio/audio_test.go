package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

func TestWAVRoundTrip(t *testing.T) {
	pcm := Tone(440, 50*time.Millisecond, 16000)
	wav := EncodeWAV(pcm, 16000)
	if len(wav) != 44+len(pcm) {
		t.Fatalf("len(wav) = %d, want %d", len(wav), 44+len(pcm))
	}

	got, rate, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if rate != 16000 {
		t.Fatalf("rate = %d, want 16000", rate)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("decoded samples differ from input")
	}
}

func TestDecodeWAVDownmixesStereo(t *testing.T) {
	stereo := make([]byte, 8)
	binary.LittleEndian.PutUint16(stereo[0:], uint16(int16(100)))
	binary.LittleEndian.PutUint16(stereo[2:], uint16(int16(300)))
	neg50, neg150 := int16(-50), int16(-150)
	binary.LittleEndian.PutUint16(stereo[4:], uint16(neg50))
	binary.LittleEndian.PutUint16(stereo[6:], uint16(neg150))

	wav := EncodeWAV(stereo, 8000)
	// Rewrite the header as two channels.
	binary.LittleEndian.PutUint16(wav[22:], 2)

	mono, rate, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if rate != 8000 || len(mono) != 4 {
		t.Fatalf("rate, len = %d, %d, want 8000, 4", rate, len(mono))
	}
	if got := int16(binary.LittleEndian.Uint16(mono[0:])); got != 200 {
		t.Fatalf("frame 0 = %d, want 200", got)
	}
	if got := int16(binary.LittleEndian.Uint16(mono[2:])); got != -100 {
		t.Fatalf("frame 1 = %d, want -100", got)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("not a wav file at all")); !errors.Is(err, ErrInvalidWAV) {
		t.Fatalf("DecodeWAV() error = %v, want ErrInvalidWAV", err)
	}
}

func TestChunkAndDuration(t *testing.T) {
	pcm := make([]byte, MinCommitBytes)
	if got := Duration(pcm, DefaultSampleRate); got != 100*time.Millisecond {
		t.Fatalf("Duration(MinCommitBytes) = %v, want 100ms", got)
	}
	chunks := Chunk(pcm, DefaultSampleRate, 40*time.Millisecond)
	if len(chunks) != 3 || len(chunks[0]) != 1280 || len(chunks[2]) != 640 {
		t.Fatalf("chunks = %d (first %d, last %d), want 3 (1280, 640)", len(chunks), len(chunks[0]), len(chunks[2]))
	}
}
