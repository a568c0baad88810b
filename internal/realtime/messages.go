package realtime

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	functionItemPrefix = "func_"
	maxItemIDLen       = 32
	maxOutputBytes     = 64 << 10
	temperature        = 0.7
)

var modalities = []string{"text", "audio"}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
	CreateResponse    bool    `json:"create_response"`
}

type tool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type transcription struct {
	Model string `json:"model"`
}

type sessionConfig struct {
	TurnDetection           turnDetection `json:"turn_detection"`
	InputAudioFormat        string        `json:"input_audio_format"`
	OutputAudioFormat       string        `json:"output_audio_format"`
	Voice                   string        `json:"voice"`
	Instructions            string        `json:"instructions"`
	Modalities              []string      `json:"modalities"`
	Temperature             float64       `json:"temperature"`
	MaxResponseOutputTokens int           `json:"max_response_output_tokens"`
	Tools                   []tool        `json:"tools"`
	ToolChoice              string        `json:"tool_choice"`
	InputAudioTranscription transcription `json:"input_audio_transcription"`
}

type sessionUpdate struct {
	Type    string        `json:"type"`
	EventID string        `json:"event_id"`
	Session sessionConfig `json:"session"`
}

func newSessionUpdate(p SessionParams) sessionUpdate {
	tools := make([]tool, 0, len(p.Tools))
	for _, d := range p.Tools {
		tools = append(tools, tool{Type: "function", Name: d.Name, Description: d.Description, Parameters: d.Parameters})
	}
	choice := "none"
	if len(tools) > 0 {
		choice = "auto"
	}
	return sessionUpdate{
		Type:    "session.update",
		EventID: eventID("session"),
		Session: sessionConfig{
			TurnDetection: turnDetection{
				Type:              "server_vad",
				Threshold:         0.25,
				PrefixPaddingMS:   200,
				SilenceDurationMS: 300,
				CreateResponse:    true,
			},
			InputAudioFormat:        "pcm16",
			OutputAudioFormat:       "pcm16",
			Voice:                   p.Voice,
			Instructions:            p.Instructions,
			Modalities:              modalities,
			Temperature:             temperature,
			MaxResponseOutputTokens: 500,
			Tools:                   tools,
			ToolChoice:              choice,
			InputAudioTranscription: transcription{Model: "whisper-1"},
		},
	}
}

type eventOnly struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitempty"`
}

type audioAppend struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
	Audio   string `json:"audio"`
}

func newAudioAppend(pcm []byte) audioAppend {
	return audioAppend{
		Type:    "input_audio_buffer.append",
		EventID: eventID("audio"),
		Audio:   base64.StdEncoding.EncodeToString(pcm),
	}
}

type outputItem struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

type itemCreate struct {
	Type    string     `json:"type"`
	EventID string     `json:"event_id"`
	Item    outputItem `json:"item"`
}

func newFunctionOutput(callID string, result map[string]any) (itemCreate, error) {
	output, err := encodeOutput(result)
	if err != nil {
		return itemCreate{}, err
	}
	id, err := itemID()
	if err != nil {
		return itemCreate{}, err
	}
	return itemCreate{
		Type:    "conversation.item.create",
		EventID: eventID("funcres"),
		Item: outputItem{
			ID:     id,
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	}, nil
}

// encodeOutput renders result as the JSON string the API expects. Oversized
// results are replaced by a truncated preview.
func encodeOutput(result map[string]any) (string, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode function result: %w", err)
	}
	if len(raw) <= maxOutputBytes {
		return string(raw), nil
	}
	preview := map[string]any{
		"status":    result["status"],
		"truncated": true,
		"preview":   string(raw[:maxOutputBytes/2]),
	}
	raw, err = json.Marshal(preview)
	if err != nil {
		return "", fmt.Errorf("encode function result preview: %w", err)
	}
	return string(raw), nil
}

func itemID() (string, error) {
	id, err := gonanoid.New(maxItemIDLen - len(functionItemPrefix))
	if err != nil {
		return "", fmt.Errorf("generate item id: %w", err)
	}
	return functionItemPrefix + id, nil
}

type responseConfig struct {
	Modalities      []string `json:"modalities"`
	Voice           string   `json:"voice"`
	Instructions    string   `json:"instructions"`
	Temperature     float64  `json:"temperature"`
	MaxOutputTokens int      `json:"max_output_tokens"`
}

type responseCreate struct {
	Type     string         `json:"type"`
	EventID  string         `json:"event_id"`
	Response responseConfig `json:"response"`
}

func newFollowUpResponse(p SessionParams) responseCreate {
	return responseCreate{
		Type:    "response.create",
		EventID: eventID("resp_after_func"),
		Response: responseConfig{
			Modalities:      modalities,
			Voice:           p.Voice,
			Instructions:    p.Instructions,
			Temperature:     temperature,
			MaxOutputTokens: 200,
		},
	}
}

func eventID(prefix string) string {
	return prefix + "_" + strconv.FormatInt(time.Now().UnixNano(), 10)
}
