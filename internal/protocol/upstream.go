package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Realtime API event types the relay reacts to.
const (
	EventError                   = "error"
	EventFunctionCallStarted     = "response.function_call.started"
	EventFunctionCallArgsDelta   = "response.function_call_arguments.delta"
	EventFunctionCallArgsDone    = "response.function_call_arguments.done"
	EventContentPartAdded        = "response.content_part.added"
	EventFunctionCall            = "function_call"
	EventInputTranscriptDone     = "conversation.item.input_audio_transcription.completed"
	EventInputTranscriptDelta    = "conversation.item.input_audio_transcription.delta"
	EventAssistantTranscriptPart = "response.audio_transcript.delta"
	EventAssistantTranscriptDone = "response.audio_transcript.done"
	EventItemCreated             = "conversation.item.created"
	EventAudio                   = "audio"
	EventOutputItemDone          = "response.output_item.done"
	EventResponseDone            = "response.done"
)

// UpstreamEvent is one decoded realtime API frame. Raw returns the frame
// exactly as received so it can be relayed without re-encoding.
type UpstreamEvent interface {
	Type() string
	Raw() []byte
}

type frame struct {
	kind string
	raw  []byte
}

func (f frame) Type() string { return f.kind }
func (f frame) Raw() []byte  { return f.raw }

// Passthrough is any event without dedicated handling.
type Passthrough struct{ frame }

// ErrorEvent is the upstream "error" event. Detail holds the error object
// re-encoded as text for substring checks.
type ErrorEvent struct {
	frame
	Message string
	Code    string
	Detail  string
}

type FunctionCallStarted struct {
	frame
	FunctionName string
	CallID       string
}

type FunctionCallArgsDelta struct {
	frame
	Delta  string
	CallID string
}

type FunctionCallArgsDone struct {
	frame
	FunctionName string
	CallID       string
	Arguments    string
}

// ContentPartAdded carries the text of the part when the model sent one.
type ContentPartAdded struct {
	frame
	Text string
}

// LegacyFunctionCall is the older single-shot function call event.
type LegacyFunctionCall struct {
	frame
	CallID    string
	Name      string
	Arguments json.RawMessage
}

type InputTranscriptCompleted struct {
	frame
	Transcript string
}

type InputTranscriptDelta struct {
	frame
	Delta string
}

type AssistantTranscriptDelta struct {
	frame
	Delta string
}

type AssistantTranscriptDone struct {
	frame
	Transcript string
}

// ItemCreated reports a conversation item. UserText is the first non-empty
// transcript or text in a user item's content.
type ItemCreated struct {
	frame
	Role     string
	UserText string
}

// AudioChunk is decoded PCM to be forwarded as a binary frame.
type AudioChunk struct {
	frame
	PCM []byte
}

type OutputItemDone struct{ frame }

type ResponseDone struct{ frame }

type errorWire struct {
	Error json.RawMessage `json:"error"`
}

type errorDetailWire struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type functionCallWire struct {
	FunctionName string `json:"function_name"`
	Name         string `json:"name"`
	CallID       string `json:"call_id"`
	Delta        string `json:"delta"`
	Arguments    string `json:"arguments"`
}

type textWire struct {
	Text string `json:"text"`
}

type contentPartWire struct {
	Content *textWire `json:"content"`
	Part    *textWire `json:"part"`
}

type legacyFunctionCallWire struct {
	FunctionCallID string `json:"function_call_id"`
	Function       struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type transcriptWire struct {
	Transcript string `json:"transcript"`
	Delta      string `json:"delta"`
}

type itemCreatedWire struct {
	Item struct {
		Role    string `json:"role"`
		Content []struct {
			Type       string `json:"type"`
			Text       string `json:"text"`
			Transcript string `json:"transcript"`
		} `json:"content"`
	} `json:"item"`
}

type audioWire struct {
	Data string `json:"data"`
}

// DecodeUpstreamEvent parses a text frame received from the realtime API.
// The returned error is non-nil only for frames that are not a JSON object
// or whose known event type carries fields of the wrong shape.
func DecodeUpstreamEvent(raw []byte) (UpstreamEvent, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode upstream event: %w", err)
	}
	f := frame{kind: env.Type, raw: raw}

	switch env.Type {
	case EventError:
		var w errorWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		ev := ErrorEvent{frame: f, Detail: string(w.Error)}
		var d errorDetailWire
		if len(w.Error) > 0 && json.Unmarshal(w.Error, &d) == nil {
			ev.Message = d.Message
			ev.Code = d.Code
		}
		return ev, nil
	case EventFunctionCallStarted, EventFunctionCallArgsDelta, EventFunctionCallArgsDone:
		var w functionCallWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		name := firstNonEmpty(w.FunctionName, w.Name)
		switch env.Type {
		case EventFunctionCallStarted:
			return FunctionCallStarted{frame: f, FunctionName: name, CallID: w.CallID}, nil
		case EventFunctionCallArgsDelta:
			return FunctionCallArgsDelta{frame: f, Delta: w.Delta, CallID: w.CallID}, nil
		default:
			return FunctionCallArgsDone{frame: f, FunctionName: name, CallID: w.CallID, Arguments: w.Arguments}, nil
		}
	case EventContentPartAdded:
		var w contentPartWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		ev := ContentPartAdded{frame: f}
		switch {
		case w.Content != nil:
			ev.Text = w.Content.Text
		case w.Part != nil:
			ev.Text = w.Part.Text
		}
		return ev, nil
	case EventFunctionCall:
		var w legacyFunctionCallWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		return LegacyFunctionCall{
			frame:     f,
			CallID:    w.FunctionCallID,
			Name:      w.Function.Name,
			Arguments: w.Function.Arguments,
		}, nil
	case EventInputTranscriptDone, EventInputTranscriptDelta, EventAssistantTranscriptPart, EventAssistantTranscriptDone:
		var w transcriptWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		switch env.Type {
		case EventInputTranscriptDone:
			return InputTranscriptCompleted{frame: f, Transcript: w.Transcript}, nil
		case EventInputTranscriptDelta:
			return InputTranscriptDelta{frame: f, Delta: w.Delta}, nil
		case EventAssistantTranscriptPart:
			return AssistantTranscriptDelta{frame: f, Delta: w.Delta}, nil
		default:
			return AssistantTranscriptDone{frame: f, Transcript: w.Transcript}, nil
		}
	case EventItemCreated:
		var w itemCreatedWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		ev := ItemCreated{frame: f, Role: w.Item.Role}
		for _, c := range w.Item.Content {
			text := ""
			switch c.Type {
			case "input_audio":
				text = c.Transcript
			case "input_text":
				text = c.Text
			}
			if strings.TrimSpace(text) != "" {
				ev.UserText = text
			}
		}
		return ev, nil
	case EventAudio:
		var w audioWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		pcm, err := base64.StdEncoding.DecodeString(w.Data)
		if err != nil {
			return nil, fmt.Errorf("decode upstream audio: %w", err)
		}
		return AudioChunk{frame: f, PCM: pcm}, nil
	case EventOutputItemDone:
		return OutputItemDone{frame: f}, nil
	case EventResponseDone:
		return ResponseDone{frame: f}, nil
	default:
		return Passthrough{frame: f}, nil
	}
}

func decodeInto(raw []byte, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode upstream event: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
