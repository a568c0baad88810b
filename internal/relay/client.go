package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/voicebridge/internal/audio"
	"github.com/antoniostano/voicebridge/internal/protocol"
)

// clientLoop reads browser frames until the socket closes. A malformed
// text frame ends the connection.
func (c *Conn) clientLoop(ctx context.Context) error {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.log.Info("client read ended", slog.Any("err", err))
			}
			return errClientClosed
		}

		if kind == websocket.BinaryMessage {
			c.deps.Metrics.ClientMessage("binary")
			c.audio = append(c.audio, data...)
			c.send(protocol.NewAck(protocol.TypeBinaryAck, ""))
			continue
		}

		msg, err := protocol.ParseClientMessage(data)
		if err != nil {
			c.log.Warn("malformed client message", slog.Any("err", err))
			return fmt.Errorf("client frame: %w", err)
		}
		c.handleClient(ctx, msg)
	}
}

func (c *Conn) handleClient(ctx context.Context, msg protocol.ClientMessage) {
	switch m := msg.(type) {
	case protocol.Ping:
		c.deps.Metrics.ClientMessage(string(protocol.TypePing))
		c.send(protocol.Pong{Type: protocol.TypePong})

	case protocol.AudioAppend:
		c.deps.Metrics.ClientMessage(string(protocol.TypeAudioAppend))
		c.audio = append(c.audio, m.Audio...)
		if c.link.IsConnected() {
			if err := c.link.AppendAudio(m.Audio); err != nil {
				c.log.Debug("forward audio failed", slog.Any("err", err))
			}
		}
		c.send(protocol.NewAck(protocol.TypeAppendAck, m.EventID))

	case protocol.AudioCommit:
		c.deps.Metrics.ClientMessage(string(protocol.TypeAudioCommit))
		c.commit(ctx, m.EventID)

	case protocol.AudioClear:
		c.deps.Metrics.ClientMessage(string(protocol.TypeAudioClear))
		c.audio = c.audio[:0]
		if c.link.IsConnected() {
			if err := c.link.ClearAudio(); err != nil {
				c.log.Debug("forward clear failed", slog.Any("err", err))
			}
		}
		c.send(protocol.NewAck(protocol.TypeClearAck, m.EventID))

	case protocol.ResponseCancel:
		c.deps.Metrics.ClientMessage(string(protocol.TypeResponseCancel))
		if c.link.IsConnected() {
			if err := c.link.CancelResponse(m.EventID); err != nil {
				c.log.Debug("forward cancel failed", slog.Any("err", err))
			}
		}
		c.send(protocol.NewAck(protocol.TypeCancelAck, m.EventID))

	case protocol.Unknown:
		c.deps.Metrics.ClientMessage("unknown")
		c.sendError(protocol.CodeUnknownMessageType, "Unknown message type: "+m.Type)
	}
}

// commit forwards the buffered audio. The buffer and the processing flag
// are cleared on every path.
func (c *Conn) commit(ctx context.Context, eventID string) {
	if !c.processing.CompareAndSwap(false, true) {
		return
	}
	defer func() {
		c.audio = c.audio[:0]
		c.processing.Store(false)
	}()

	if len(c.audio) < audio.MinCommitBytes {
		c.send(protocol.NewWarning(protocol.CodeAudioBufferTooSmall, "Audio buffer too small, minimum 100ms of audio required"))
		return
	}

	if !c.link.IsConnected() {
		if err := c.reconnect(ctx, c.link.Generation(), "commit"); err != nil {
			c.sendError(protocol.CodeNotConnected, "Not connected to OpenAI")
			return
		}
		c.startReader()
	}
	if err := c.link.CommitAudio(); err != nil {
		c.log.Warn("commit failed", slog.Any("err", err))
		c.sendError(protocol.CodeNotConnected, "Not connected to OpenAI")
		return
	}
	c.send(protocol.NewAck(protocol.TypeCommitAck, eventID))
}
