// Package realtime owns the websocket channel to the upstream realtime
// speech API: dialing, session configuration, liveness and reconnects.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/antoniostano/voicebridge/internal/functions"
	"github.com/antoniostano/voicebridge/internal/policy"
)

const (
	maxFrameBytes = 15 << 20
	userAgent     = "WellcomeAI/1.0"
)

var (
	ErrNoCredential = errors.New("realtime: no api credential")
	ErrNotConnected = errors.New("realtime: not connected")
)

// State is the link lifecycle position.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Options struct {
	URL          string
	DialTimeout  time.Duration
	PingInterval time.Duration
	PingTimeout  time.Duration
	CloseTimeout time.Duration
	// SettleDelay is the pause between a function output and the follow-up
	// response request.
	SettleDelay time.Duration
	Dialer      *websocket.Dialer
	Logger      *slog.Logger
}

// SessionParams is the snapshot sent in session.update on every connect.
type SessionParams struct {
	Credential   string
	Voice        string
	Instructions string
	Tools        []functions.Definition
}

// DeliveryStatus reports one function-output send. Payload is the
// conversation.item.create envelope exactly as written.
type DeliveryStatus struct {
	Success bool
	Err     error
	Payload []byte
}

// Link is one upstream channel. Sends are serialized; a single reader is
// expected.
type Link struct {
	opts Options
	log  *slog.Logger

	mu         sync.Mutex
	params     SessionParams
	conn       *websocket.Conn
	state      State
	generation uint64
	allow      policy.AllowList
	stopPing   chan struct{}

	writeMu     sync.Mutex
	reconnectMu sync.Mutex
}

func NewLink(opts Options, params SessionParams) *Link {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 30 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.PingTimeout <= opts.PingInterval {
		opts.PingTimeout = 4 * opts.PingInterval
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = 15 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.DialTimeout,
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Link{opts: opts, log: opts.Logger, params: params}
}

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) IsConnected() bool { return l.State() == StateConnected }

// Generation increments every time a new channel is installed. Readers pass
// the generation they observed a failure on to Reconnect.
func (l *Link) Generation() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generation
}

// AllowList returns the functions sent in the most recent session.update.
func (l *Link) AllowList() policy.AllowList {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allow
}

func (l *Link) Params() SessionParams {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.params
}

// Connect dials the API and sends session.update as one step. A failed
// session.update tears the channel down.
func (l *Link) Connect(ctx context.Context) error {
	l.setState(StateConnecting)
	if err := l.dial(ctx); err != nil {
		l.setState(StateFailed)
		return err
	}
	l.setState(StateConnected)
	return nil
}

// Reconnect replaces the channel once. When the link already moved past gen
// and is connected, it returns nil without dialing.
func (l *Link) Reconnect(ctx context.Context, gen uint64) error {
	l.reconnectMu.Lock()
	defer l.reconnectMu.Unlock()

	l.mu.Lock()
	if l.generation != gen && l.state == StateConnected {
		l.mu.Unlock()
		return nil
	}
	l.state = StateReconnecting
	l.mu.Unlock()

	l.closeConn()
	if err := l.dial(ctx); err != nil {
		l.setState(StateFailed)
		return err
	}
	l.setState(StateConnected)
	return nil
}

func (l *Link) dial(ctx context.Context) error {
	params := l.Params()
	if strings.TrimSpace(params.Credential) == "" {
		return ErrNoCredential
	}

	ctx, span := otel.Tracer("voicebridge/realtime").Start(ctx, "realtime.connect")
	defer span.End()

	dialCtx, cancel := context.WithTimeout(ctx, l.opts.DialTimeout)
	defer cancel()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+params.Credential)
	headers.Set("OpenAI-Beta", "realtime=v1")
	headers.Set("User-Agent", userAgent)

	conn, resp, err := l.opts.Dialer.DialContext(dialCtx, l.opts.URL, headers)
	if err != nil {
		if resp != nil {
			span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
			err = fmt.Errorf("dial realtime: %w (status %d)", err, resp.StatusCode)
		} else {
			err = fmt.Errorf("dial realtime: %w", err)
		}
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(l.opts.PingTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(l.opts.PingTimeout))
	})

	stop := make(chan struct{})
	l.mu.Lock()
	l.conn = conn
	l.generation++
	l.stopPing = stop
	l.mu.Unlock()
	go l.pingLoop(conn, stop)

	if err := l.UpdateSession(params); err != nil {
		l.closeConn()
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("session update: %w", err)
	}
	return nil
}

func (l *Link) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(l.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(l.opts.CloseTimeout))
			l.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// UpdateSession sends session.update for params and makes the tools it sent
// the active allow-list.
func (l *Link) UpdateSession(params SessionParams) error {
	msg := newSessionUpdate(params)
	if err := l.send(msg); err != nil {
		return err
	}
	names := make([]string, 0, len(msg.Session.Tools))
	for _, t := range msg.Session.Tools {
		names = append(names, t.Name)
	}
	l.mu.Lock()
	l.params = params
	l.allow = policy.NewAllowList(names...)
	l.mu.Unlock()
	return nil
}

// Read blocks for the next frame. It also returns the generation of the
// channel it read from.
func (l *Link) Read() (int, []byte, uint64, error) {
	l.mu.Lock()
	conn, gen := l.conn, l.generation
	l.mu.Unlock()
	if conn == nil {
		return 0, nil, gen, ErrNotConnected
	}
	kind, data, err := conn.ReadMessage()
	if err != nil {
		l.markDisconnected(gen)
		return 0, nil, gen, err
	}
	_ = conn.SetReadDeadline(time.Now().Add(l.opts.PingTimeout))
	return kind, data, gen, nil
}

func (l *Link) AppendAudio(pcm []byte) error {
	return l.send(newAudioAppend(pcm))
}

func (l *Link) CommitAudio() error {
	return l.send(eventOnly{Type: "input_audio_buffer.commit", EventID: eventID("commit")})
}

func (l *Link) ClearAudio() error {
	return l.send(eventOnly{Type: "input_audio_buffer.clear", EventID: eventID("clear")})
}

// CancelResponse forwards a client response.cancel with its event id.
func (l *Link) CancelResponse(clientEventID string) error {
	return l.send(eventOnly{Type: "response.cancel", EventID: clientEventID})
}

// SendFunctionResult writes a function_call_output item for callID, waits
// the settle delay and then requests a follow-up response.
func (l *Link) SendFunctionResult(ctx context.Context, callID string, result map[string]any) DeliveryStatus {
	if !l.IsConnected() {
		return DeliveryStatus{Err: fmt.Errorf("cannot send function result: %w", ErrNotConnected)}
	}
	msg, err := newFunctionOutput(callID, result)
	if err != nil {
		return DeliveryStatus{Err: err}
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return DeliveryStatus{Err: fmt.Errorf("encode function output: %w", err)}
	}
	if err := l.sendRaw(payload); err != nil {
		return DeliveryStatus{Err: fmt.Errorf("send function result: %w", err)}
	}
	l.log.Debug("function result sent", slog.String("call_id", callID), slog.String("item_id", msg.Item.ID))

	if l.opts.SettleDelay > 0 {
		t := time.NewTimer(l.opts.SettleDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return DeliveryStatus{Err: ctx.Err(), Payload: payload}
		case <-t.C:
		}
	}
	if err := l.CreateResponseAfterFunction(); err != nil {
		l.log.Warn("follow-up response request failed", slog.Any("err", err))
	}
	return DeliveryStatus{Success: true, Payload: payload}
}

// CreateResponseAfterFunction asks the model to speak after a function
// result or a synthesized status message.
func (l *Link) CreateResponseAfterFunction() error {
	return l.send(newFollowUpResponse(l.Params()))
}

// Close ends the channel with a normal close frame.
func (l *Link) Close() error {
	err := l.closeConn()
	l.setState(StateDisconnected)
	return err
}

func (l *Link) closeConn() error {
	l.mu.Lock()
	conn, stop := l.conn, l.stopPing
	l.conn, l.stopPing = nil, nil
	l.mu.Unlock()
	if conn == nil {
		return nil
	}
	close(stop)
	l.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(l.opts.CloseTimeout))
	l.writeMu.Unlock()
	return conn.Close()
}

func (l *Link) send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode upstream message: %w", err)
	}
	return l.sendRaw(payload)
}

func (l *Link) sendRaw(payload []byte) error {
	l.mu.Lock()
	conn, gen := l.conn, l.generation
	l.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	l.writeMu.Lock()
	err := conn.WriteMessage(websocket.TextMessage, payload)
	l.writeMu.Unlock()
	if err != nil {
		l.markDisconnected(gen)
		return err
	}
	return nil
}

func (l *Link) markDisconnected(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.generation == gen && l.state == StateConnected {
		l.state = StateDisconnected
	}
}

func (l *Link) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}
