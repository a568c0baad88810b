package audio

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	DefaultSampleRate = 16000
	BytesPerSample    = 2

	// MinCommitBytes is the smallest buffer a commit forwards upstream,
	// 100ms at 16kHz mono PCM16.
	MinCommitBytes = 3200
)

// Duration is the playback length of pcm at sampleRate.
func Duration(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	samples := len(pcm) / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// Chunk splits pcm into frames of d, keeping sample alignment. The last
// chunk may be shorter.
func Chunk(pcm []byte, sampleRate int, d time.Duration) [][]byte {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	size := int(int64(sampleRate)*int64(d)/int64(time.Second)) * BytesPerSample
	if size <= 0 {
		size = BytesPerSample
	}
	var out [][]byte
	for off := 0; off < len(pcm); off += size {
		end := min(off+size, len(pcm))
		out = append(out, pcm[off:end])
	}
	return out
}

// Tone synthesizes a mono PCM16 sine wave.
func Tone(freq float64, d time.Duration, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	n := int(int64(sampleRate) * int64(d) / int64(time.Second))
	out := make([]byte, n*BytesPerSample)
	for i := 0; i < n; i++ {
		v := 0.3 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*math.MaxInt16)))
	}
	return out
}
