package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/voicebridge/internal/audio"
	"github.com/antoniostano/voicebridge/internal/protocol"
)

type options struct {
	baseURL   string
	assistant string
	wavPath   string
	chunkMS   int
	realtime  float64
	timeout   time.Duration
	verbose   bool
}

type wsEnvelope struct {
	Type    string           `json:"type"`
	Status  string           `json:"status,omitempty"`
	Message string           `json:"message,omitempty"`
	Error   *protocol.Detail `json:"error,omitempty"`
	Warning *protocol.Detail `json:"warning,omitempty"`
}

// summary is what one probe run observed.
type summary struct {
	Chunks      int
	Acks        int
	AudioFrames int
	AudioBytes  int
	FirstAudio  time.Duration
	Events      map[string]int
}

var errProbeFailed = errors.New("bridge reported an error")

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "voiceprobe: %v\n", err)
		os.Exit(2)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	sum, err := run(ctx, cfg, os.Stdout)
	printSummary(os.Stdout, sum)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voiceprobe: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var cfg options
	fs := flag.NewFlagSet("voiceprobe", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:5050", "voice bridge base URL")
	fs.StringVar(&cfg.assistant, "assistant", "demo", "assistant id to connect to")
	fs.StringVar(&cfg.wavPath, "wav", "", "PCM16 WAV file to stream (a 440Hz tone when empty)")
	fs.IntVar(&cfg.chunkMS, "chunk-ms", 100, "audio chunk size in milliseconds")
	fs.Float64Var(&cfg.realtime, "realtime", 1.0, "chunk pacing multiplier (1.0=realtime, 2.0=2x)")
	fs.DurationVar(&cfg.timeout, "timeout", 30*time.Second, "overall timeout")
	fs.BoolVar(&cfg.verbose, "verbose", false, "print every event")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	cfg.assistant = strings.TrimSpace(cfg.assistant)
	switch {
	case cfg.baseURL == "":
		return options{}, fmt.Errorf("base-url is required")
	case cfg.assistant == "":
		return options{}, fmt.Errorf("assistant is required")
	case cfg.chunkMS < 10 || cfg.chunkMS > 2000:
		return options{}, fmt.Errorf("chunk-ms must be in [10,2000]")
	case cfg.realtime <= 0:
		return options{}, fmt.Errorf("realtime must be > 0")
	case cfg.timeout <= 0:
		return options{}, fmt.Errorf("timeout must be > 0")
	}
	return cfg, nil
}

func run(ctx context.Context, cfg options, out io.Writer) (summary, error) {
	sum := summary{Events: make(map[string]int)}

	pcm, sampleRate, err := loadClip(cfg.wavPath)
	if err != nil {
		return sum, fmt.Errorf("prepare audio: %w", err)
	}

	wsURL, err := wsURLForAssistant(cfg.baseURL, cfg.assistant)
	if err != nil {
		return sum, fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return sum, fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var status wsEnvelope
	if err := conn.ReadJSON(&status); err != nil {
		return sum, fmt.Errorf("read connection status: %w", err)
	}
	if status.Type != string(protocol.TypeConnectionStatus) {
		return sum, fmt.Errorf("%w: %s", errProbeFailed, describe(status))
	}
	if cfg.verbose {
		fmt.Fprintf(out, "voiceprobe: connected url=%s bytes=%d sample_rate=%dHz\n", wsURL, len(pcm), sampleRate)
	}

	var commitAt atomic.Int64
	result := make(chan readResult, 1)
	go func() {
		result <- readLoop(conn, &commitAt, out, cfg.verbose)
	}()

	chunkDur := time.Duration(cfg.chunkMS) * time.Millisecond
	pace := time.Duration(float64(chunkDur) / cfg.realtime)
	for i, chunk := range audio.Chunk(pcm, sampleRate, chunkDur) {
		msg := map[string]string{
			"type":     string(protocol.TypeAudioAppend),
			"event_id": fmt.Sprintf("probe_%d", i),
			"audio":    base64.StdEncoding.EncodeToString(chunk),
		}
		if err := conn.WriteJSON(msg); err != nil {
			return sum, fmt.Errorf("send chunk %d: %w", i, err)
		}
		sum.Chunks++
		select {
		case <-ctx.Done():
			return sum, ctx.Err()
		case <-time.After(pace):
		}
	}

	commitAt.Store(time.Now().UnixNano())
	commit := map[string]string{"type": string(protocol.TypeAudioCommit), "event_id": "probe_commit"}
	if err := conn.WriteJSON(commit); err != nil {
		return sum, fmt.Errorf("send commit: %w", err)
	}

	select {
	case r := <-result:
		r.merge(&sum)
		return sum, r.err
	case <-ctx.Done():
		return sum, fmt.Errorf("waiting for %s: %w", protocol.EventResponseDone, ctx.Err())
	}
}

type readResult struct {
	acks        int
	audioFrames int
	audioBytes  int
	firstAudio  time.Duration
	events      map[string]int
	err         error
}

func (r readResult) merge(sum *summary) {
	sum.Acks = r.acks
	sum.AudioFrames = r.audioFrames
	sum.AudioBytes = r.audioBytes
	sum.FirstAudio = r.firstAudio
	for k, v := range r.events {
		sum.Events[k] += v
	}
}

// readLoop consumes bridge traffic until response.done, an error message
// or a read failure.
func readLoop(conn *websocket.Conn, commitAt *atomic.Int64, out io.Writer, verbose bool) readResult {
	r := readResult{events: make(map[string]int)}
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			r.err = fmt.Errorf("ws read: %w", err)
			return r
		}
		if kind == websocket.BinaryMessage {
			r.audioFrames++
			r.audioBytes += len(data)
			if r.firstAudio == 0 {
				if at := commitAt.Load(); at > 0 {
					r.firstAudio = time.Since(time.Unix(0, at))
				}
			}
			continue
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		r.events[env.Type]++
		if verbose {
			fmt.Fprintf(out, "voiceprobe: event %s\n", env.Type)
		}
		switch {
		case strings.HasSuffix(env.Type, ".ack"):
			r.acks++
		case env.Type == string(protocol.TypeWarning):
			fmt.Fprintf(out, "voiceprobe: warning %s\n", describe(env))
		case env.Type == string(protocol.TypeError):
			r.err = fmt.Errorf("%w: %s", errProbeFailed, describe(env))
			return r
		case env.Type == protocol.EventResponseDone:
			return r
		}
	}
}

func loadClip(path string) ([]byte, int, error) {
	if strings.TrimSpace(path) == "" {
		return audio.Tone(440, 1500*time.Millisecond, audio.DefaultSampleRate), audio.DefaultSampleRate, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	pcm, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(pcm) < audio.MinCommitBytes {
		return nil, 0, fmt.Errorf("%s holds %s of audio, need at least 100ms", path, audio.Duration(pcm, rate))
	}
	return pcm, rate, nil
}

func wsURLForAssistant(baseURL, assistantID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + url.PathEscape(assistantID)
	return u.String(), nil
}

func describe(env wsEnvelope) string {
	switch {
	case env.Error != nil:
		return env.Error.Code + ": " + env.Error.Message
	case env.Warning != nil:
		return env.Warning.Code + ": " + env.Warning.Message
	case env.Message != "":
		return env.Type + ": " + env.Message
	default:
		return env.Type
	}
}

func printSummary(w io.Writer, sum summary) {
	fmt.Fprintf(w, "voiceprobe: chunks=%d acks=%d audio_frames=%d audio_bytes=%d first_audio=%s\n",
		sum.Chunks, sum.Acks, sum.AudioFrames, sum.AudioBytes, sum.FirstAudio.Round(time.Millisecond))
	keys := make([]string, 0, len(sum.Events))
	for k := range sum.Events {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-40s %d\n", k, sum.Events[k])
	}
}
