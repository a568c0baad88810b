package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/voicebridge/internal/functions"
	"github.com/antoniostano/voicebridge/internal/protocol"
	"github.com/antoniostano/voicebridge/internal/realtime"
	"github.com/antoniostano/voicebridge/internal/reliability"
	"github.com/antoniostano/voicebridge/internal/transcript"
)

// turnState is owned by the upstream loop.
type turnState struct {
	user          string
	assistant     string
	userPersisted bool

	pending pendingCall
	// rejected holds call ids already answered with a synthetic result.
	rejected map[string]struct{}

	waiting        bool
	lastFunction   string
	functionResult map[string]any
	lastDelivery   *realtime.DeliveryStatus
}

// upstreamLoop relays realtime events until the channel is lost for good
// or the connection ends. It clears readerRunning before it reports the
// loss so a commit-triggered reconnect can start a fresh reader.
func (c *Conn) upstreamLoop(ctx context.Context) {
	for {
		kind, data, gen, err := c.link.Read()
		if ctx.Err() != nil {
			c.readerRunning.Store(false)
			return
		}
		if err != nil {
			if reliability.IsConnectionClosed(err) {
				c.log.Info("upstream channel closed", slog.Any("err", err))
			} else {
				c.log.Warn("upstream read failed", slog.Any("err", err))
			}
			if c.reconnect(ctx, gen, "relay") == nil {
				continue
			}
			c.readerRunning.Store(false)
			if ctx.Err() == nil {
				c.sendError(protocol.CodeConnectionLost, "Connection to AI lost")
			}
			return
		}

		if kind == websocket.BinaryMessage {
			c.write(websocket.BinaryMessage, data)
			continue
		}
		ev, err := protocol.DecodeUpstreamEvent(data)
		if err != nil {
			c.log.Warn("skipping malformed upstream event", slog.Any("err", err))
			continue
		}
		c.deps.Metrics.UpstreamEvent(ev.Type())
		c.handleEvent(ctx, ev)
	}
}

func (c *Conn) handleEvent(ctx context.Context, ev protocol.UpstreamEvent) {
	relay := true
	switch e := ev.(type) {
	case protocol.ErrorEvent:
		relay = c.onUpstreamError(e)
	case protocol.FunctionCallStarted:
		relay = c.onCallStarted(ctx, e)
	case protocol.FunctionCallArgsDelta:
		c.onArgsDelta(e)
	case protocol.FunctionCallArgsDone:
		relay = c.onArgsDone(ctx, e)
	case protocol.LegacyFunctionCall:
		c.onLegacyCall(ctx, e)
		relay = false
	case protocol.ContentPartAdded:
		c.turn.waiting = false
		if e.Text != "" {
			c.turn.assistant = e.Text
		}
	case protocol.InputTranscriptCompleted:
		c.turn.user = e.Transcript
		c.persistUser(ctx)
	case protocol.InputTranscriptDelta:
		c.turn.user += e.Delta
	case protocol.AssistantTranscriptDelta:
		c.turn.assistant += e.Delta
	case protocol.AssistantTranscriptDone:
		if e.Transcript != "" {
			c.turn.assistant = e.Transcript
		}
	case protocol.ItemCreated:
		if e.Role == "user" && e.UserText != "" {
			c.turn.user = e.UserText
		}
	case protocol.AudioChunk:
		c.write(websocket.BinaryMessage, e.PCM)
		relay = false
	case protocol.OutputItemDone:
		c.onOutputItemDone()
	case protocol.ResponseDone:
		c.write(websocket.TextMessage, ev.Raw())
		c.onResponseDone(ctx)
		relay = false
	}
	if relay {
		c.write(websocket.TextMessage, ev.Raw())
	}
}

// onUpstreamError converts item-delivery errors during a function round
// trip into a user message and a forced follow-up. Other errors are
// relayed.
func (c *Conn) onUpstreamError(e protocol.ErrorEvent) bool {
	if !c.turn.waiting || !reliability.IsItemDeliveryError(e.Detail) {
		return true
	}
	msg := e.Message
	if msg == "" {
		msg = "Error sending function result"
	}
	c.send(protocol.NewContentPart("Error executing function: " + msg))
	c.requestFollowUp()
	c.turn.waiting = false
	return false
}

func (c *Conn) onOutputItemDone() {
	if !c.turn.waiting || c.turn.lastDelivery == nil {
		return
	}
	if c.turn.lastFunction == functions.SendWebhook && c.turn.functionResult != nil {
		c.send(protocol.NewContentPart(webhookStatusText(c.turn.functionResult)))
		c.requestFollowUp()
	}
	c.turn.waiting = false
}

// onResponseDone closes a turn: it persists the transcripts, logs the turn
// to the transcript sink and resets per-turn state.
func (c *Conn) onResponseDone(ctx context.Context) {
	if c.turn.assistant != "" && c.conversationID != "" {
		if err := c.deps.Conversations.SetAssistantMessage(ctx, c.conversationID, c.turn.assistant); err != nil {
			c.log.Error("persist assistant message", slog.Any("err", err))
		}
		if !c.turn.userPersisted {
			c.persistUser(ctx)
		}
	}

	if c.asst.SheetID != "" {
		user, reply := c.turn.user, c.turn.assistant
		if user == "" && reply == "" && c.conversationID != "" {
			if rec, err := c.deps.Conversations.GetConversation(ctx, c.conversationID); err == nil {
				user, reply = rec.UserMessage, rec.AssistantMessage
			} else {
				c.log.Error("read conversation for transcript log", slog.Any("err", err))
			}
		}
		if user != "" || reply != "" {
			err := c.deps.Transcripts.Log(ctx, transcript.Entry{
				SheetID:        c.asst.SheetID,
				AssistantID:    c.asst.ID,
				SessionID:      c.id,
				User:           user,
				Assistant:      reply,
				FunctionResult: c.turn.functionResult,
				At:             time.Now().UTC(),
			})
			if err != nil {
				c.log.Error("transcript log failed", slog.Any("err", err))
			}
		}
		c.turn.functionResult = nil
	}

	c.turn.waiting = false
	c.turn.rejected = nil
	// A response without speech (a function call) does not end the
	// exchange.
	if c.turn.assistant != "" {
		c.turn.user = ""
		c.turn.assistant = ""
	}
}

func (c *Conn) persistUser(ctx context.Context) {
	if c.conversationID == "" || c.turn.user == "" {
		return
	}
	if err := c.deps.Conversations.SetUserMessage(ctx, c.conversationID, c.turn.user); err != nil {
		c.log.Error("persist user message", slog.Any("err", err))
		return
	}
	c.turn.userPersisted = true
}
