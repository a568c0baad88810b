// Package protocol defines the browser-facing wire messages and the decoded
// form of realtime API events.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

// Client to server.
const (
	TypePing           MessageType = "ping"
	TypeAudioAppend    MessageType = "input_audio_buffer.append"
	TypeAudioCommit    MessageType = "input_audio_buffer.commit"
	TypeAudioClear     MessageType = "input_audio_buffer.clear"
	TypeResponseCancel MessageType = "response.cancel"
)

var ErrInvalidMessage = errors.New("invalid client message")

type Envelope struct {
	Type    MessageType `json:"type"`
	EventID string      `json:"event_id,omitempty"`
}

// ClientMessage is one decoded text frame from the browser. The set of
// implementations is closed; Unknown carries any type not listed above.
type ClientMessage interface {
	clientMessage()
}

type Ping struct{}

type AudioAppend struct {
	EventID string
	Audio   []byte
}

type AudioCommit struct {
	EventID string
}

type AudioClear struct {
	EventID string
}

type ResponseCancel struct {
	EventID string
}

type Unknown struct {
	Type string
}

func (Ping) clientMessage()           {}
func (AudioAppend) clientMessage()    {}
func (AudioCommit) clientMessage()    {}
func (AudioClear) clientMessage()     {}
func (ResponseCancel) clientMessage() {}
func (Unknown) clientMessage()        {}

type audioAppendWire struct {
	Audio   string `json:"audio"`
	EventID string `json:"event_id"`
}

// ParseClientMessage decodes a browser text frame. Unknown types decode to
// Unknown; malformed JSON or audio yields an error wrapping
// ErrInvalidMessage.
func ParseClientMessage(raw []byte) (ClientMessage, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	switch env.Type {
	case TypePing:
		return Ping{}, nil
	case TypeAudioAppend:
		var msg audioAppendWire
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		pcm, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil {
			return nil, fmt.Errorf("%w: audio is not base64: %v", ErrInvalidMessage, err)
		}
		return AudioAppend{EventID: msg.EventID, Audio: pcm}, nil
	case TypeAudioCommit:
		return AudioCommit{EventID: env.EventID}, nil
	case TypeAudioClear:
		return AudioClear{EventID: env.EventID}, nil
	case TypeResponseCancel:
		return ResponseCancel{EventID: env.EventID}, nil
	default:
		return Unknown{Type: string(env.Type)}, nil
	}
}
