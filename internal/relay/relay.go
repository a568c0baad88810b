// Package relay proxies one browser websocket to one realtime API channel.
// Each connection runs a client loop and an upstream loop; the upstream
// loop owns the function-call state machine and transcript bookkeeping.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/antoniostano/voicebridge/internal/assistant"
	"github.com/antoniostano/voicebridge/internal/functions"
	"github.com/antoniostano/voicebridge/internal/memory"
	"github.com/antoniostano/voicebridge/internal/observability"
	"github.com/antoniostano/voicebridge/internal/protocol"
	"github.com/antoniostano/voicebridge/internal/realtime"
	"github.com/antoniostano/voicebridge/internal/session"
	"github.com/antoniostano/voicebridge/internal/transcript"
)

const (
	clientWriteTimeout = 10 * time.Second
	clientReadLimit    = 4 << 20
)

var errClientClosed = errors.New("client closed")

// Deps are the collaborators shared by every connection.
type Deps struct {
	Assistants    assistant.Resolver
	Functions     functions.Gateway
	Conversations memory.Store
	Transcripts   transcript.Sink
	Sessions      *session.Registry
	Metrics       *observability.Metrics
	Logger        *slog.Logger
	Upstream      realtime.Options
	// FallbackAPIKey is used when an assistant carries no credential.
	FallbackAPIKey string
}

// Proxy serves client websockets.
type Proxy struct {
	deps Deps
}

func New(deps Deps) *Proxy {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Transcripts == nil {
		deps.Transcripts = transcript.Nop{}
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewRegistry()
	}
	if deps.Conversations == nil {
		deps.Conversations = memory.NewInMemoryStore()
	}
	return &Proxy{deps: deps}
}

// Conn is the state of one client connection.
type Conn struct {
	deps        Deps
	log         *slog.Logger
	id          string
	assistantID string
	ws          *websocket.Conn
	writeMu     sync.Mutex

	asst           assistant.Config
	link           *realtime.Link
	conversationID string
	webhookURL     string

	// Client loop only.
	audio      []byte
	processing atomic.Bool

	group         *errgroup.Group
	groupCtx      context.Context
	readerRunning atomic.Bool

	// Upstream loop only.
	turn turnState

	done      chan struct{}
	closeOnce sync.Once
}

// Serve runs a connection until either side ends it. ws is closed on
// return.
func (p *Proxy) Serve(ctx context.Context, ws *websocket.Conn, assistantID string) {
	c := &Conn{
		deps:        p.deps,
		id:          uuid.NewString(),
		assistantID: assistantID,
		ws:          ws,
		done:        make(chan struct{}),
	}
	c.log = p.deps.Logger.With(slog.String("client_id", c.id), slog.String("assistant_id", assistantID))
	defer c.finish()

	ws.SetReadLimit(clientReadLimit)

	if !c.setup(ctx) {
		return
	}

	remove := p.deps.Sessions.Add(c.asst.ID, c.id, c)
	p.deps.Metrics.ConnectionOpened()
	defer func() {
		_ = c.link.Close()
		remove()
		p.deps.Metrics.ConnectionClosed()
		c.log.Info("client disconnected")
	}()

	c.send(protocol.Connected())
	c.log.Info("client connected", slog.String("conversation_id", c.conversationID))

	g, gctx := errgroup.WithContext(ctx)
	c.group, c.groupCtx = g, gctx
	g.Go(guard("client loop", func() error { return c.clientLoop(gctx) }))
	c.startReader()
	g.Go(func() error {
		<-gctx.Done()
		_ = c.link.Close()
		c.closeSocket(websocket.CloseNormalClosure, "")
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, errClientClosed) && !errors.Is(err, context.Canceled) {
		c.log.Warn("connection ended", slog.Any("err", err))
	}
}

// setup resolves the assistant and opens the upstream channel. On failure
// the client receives an error event and a policy-violation close.
func (c *Conn) setup(ctx context.Context) bool {
	asst, err := assistant.Resolve(ctx, c.deps.Assistants, c.assistantID)
	if err != nil {
		if !errors.Is(err, assistant.ErrNotFound) {
			c.log.Error("assistant lookup failed", slog.Any("err", err))
		}
		c.failSetup(protocol.CodeAssistantNotFound, "Assistant not found")
		return false
	}
	c.asst = asst
	if asst.ID != c.assistantID {
		c.log = c.log.With(slog.String("resolved_assistant_id", asst.ID))
	}

	credential := asst.Credential(c.deps.FallbackAPIKey)
	if credential == "" {
		c.failSetup(protocol.CodeNoAPIKey, "OpenAI API key is not configured")
		return false
	}

	var tools []functions.Definition
	if c.deps.Functions != nil {
		tools = c.deps.Functions.Definitions(asst.Functions)
	}
	for _, t := range tools {
		if t.Name == functions.SendWebhook {
			c.webhookURL = assistant.ExtractWebhookURL(asst.SystemPrompt)
		}
	}

	opts := c.deps.Upstream
	opts.Logger = c.log
	c.link = realtime.NewLink(opts, realtime.SessionParams{
		Credential:   credential,
		Voice:        asst.EffectiveVoice(),
		Instructions: asst.EffectivePrompt(),
		Tools:        tools,
	})
	start := time.Now()
	if err := c.link.Connect(ctx); err != nil {
		c.log.Error("upstream connect failed", slog.Any("err", err))
		c.failSetup(protocol.CodeConnectionFailed, "Failed to connect to OpenAI")
		return false
	}
	c.deps.Metrics.ObserveUpstreamConnect(time.Since(start))

	conv, err := c.deps.Conversations.CreateConversation(ctx, asst.ID, c.id)
	if err != nil {
		c.log.Error("create conversation failed", slog.Any("err", err))
	} else {
		c.conversationID = conv.ID
	}
	return true
}

func (c *Conn) failSetup(code, message string) {
	c.deps.Metrics.SetupFailure(code)
	c.log.Warn("connection setup failed", slog.String("code", code))
	c.send(protocol.NewError(code, message))
	c.closeSocket(websocket.ClosePolicyViolation, message)
}

// startReader launches the upstream loop unless one is running.
func (c *Conn) startReader() {
	if c.group == nil || !c.readerRunning.CompareAndSwap(false, true) {
		return
	}
	c.group.Go(guard("upstream loop", func() error {
		c.upstreamLoop(c.groupCtx)
		return nil
	}))
}

// guard turns a panic in fn into an error so it ends only this connection.
func guard(name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s panic: %v", name, r)
			}
		}()
		return fn()
	}
}

// reconnect makes one attempt to replace the upstream channel observed
// failing at gen.
func (c *Conn) reconnect(ctx context.Context, gen uint64, trigger string) error {
	err := c.link.Reconnect(ctx, gen)
	c.deps.Metrics.Reconnect(trigger, err == nil)
	if err != nil {
		c.log.Warn("upstream reconnect failed", slog.String("trigger", trigger), slog.Any("err", err))
		return err
	}
	c.log.Info("upstream reconnected", slog.String("trigger", trigger))
	return nil
}

// Done is closed when the connection has finished.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close ends the connection from outside the loops.
func (c *Conn) Close() error {
	c.closeSocket(websocket.CloseGoingAway, "server shutting down")
	return nil
}

func (c *Conn) finish() {
	c.closeOnce.Do(func() {
		_ = c.ws.Close()
		close(c.done)
	})
}

func (c *Conn) closeSocket(code int, reason string) {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(clientWriteTimeout))
	c.writeMu.Unlock()
	_ = c.ws.Close()
}

func (c *Conn) send(v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.Error("encode client message", slog.Any("err", err))
		return
	}
	c.write(websocket.TextMessage, raw)
}

func (c *Conn) sendError(code, message string) {
	c.send(protocol.NewError(code, message))
}

func (c *Conn) write(kind int, data []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
	if err := c.ws.WriteMessage(kind, data); err != nil {
		c.log.Debug("client write failed", slog.Any("err", err))
	}
}
