package protocol

// Server to client.
const (
	TypePong                  MessageType = "pong"
	TypeAppendAck             MessageType = "input_audio_buffer.append.ack"
	TypeCommitAck             MessageType = "input_audio_buffer.commit.ack"
	TypeClearAck              MessageType = "input_audio_buffer.clear.ack"
	TypeCancelAck             MessageType = "response.cancel.ack"
	TypeBinaryAck             MessageType = "binary.ack"
	TypeWarning               MessageType = "warning"
	TypeError                 MessageType = "error"
	TypeConnectionStatus      MessageType = "connection_status"
	TypeFunctionCallStarted   MessageType = "function_call.started"
	TypeFunctionCallStart     MessageType = "function_call.start"
	TypeFunctionCallCompleted MessageType = "function_call.completed"
	TypeContentPartAdded      MessageType = "response.content_part.added"
)

// Error and warning codes surfaced to the browser.
const (
	CodeAssistantNotFound      = "assistant_not_found"
	CodeNoAPIKey               = "no_api_key"
	CodeConnectionFailed       = "openai_connection_failed"
	CodeNotConnected           = "openai_not_connected"
	CodeConnectionLost         = "openai_connection_lost"
	CodeFunctionArgsError      = "function_args_error"
	CodeFunctionExecutionError = "function_execution_error"
	CodeUnknownMessageType     = "unknown_message_type"
	CodeAudioBufferTooSmall    = "audio_buffer_too_small"
)

type Pong struct {
	Type MessageType `json:"type"`
}

type Ack struct {
	Type    MessageType `json:"type"`
	EventID string      `json:"event_id,omitempty"`
}

type Detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorMessage struct {
	Type  MessageType `json:"type"`
	Error Detail      `json:"error"`
}

type WarningMessage struct {
	Type    MessageType `json:"type"`
	Warning Detail      `json:"warning"`
}

type ConnectionStatus struct {
	Type    MessageType `json:"type"`
	Status  string      `json:"status"`
	Message string      `json:"message"`
}

// FunctionCallNotice reports function-call progress. Result is only set on
// completion.
type FunctionCallNotice struct {
	Type           MessageType    `json:"type"`
	Function       string         `json:"function"`
	FunctionCallID string         `json:"function_call_id"`
	Result         map[string]any `json:"result,omitempty"`
}

type ContentText struct {
	Text string `json:"text"`
}

// ContentPart is a synthesized assistant text part shown to the user.
type ContentPart struct {
	Type    MessageType `json:"type"`
	Content ContentText `json:"content"`
}

func NewAck(t MessageType, eventID string) Ack {
	return Ack{Type: t, EventID: eventID}
}

func NewError(code, message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Error: Detail{Code: code, Message: message}}
}

func NewWarning(code, message string) WarningMessage {
	return WarningMessage{Type: TypeWarning, Warning: Detail{Code: code, Message: message}}
}

func NewContentPart(text string) ContentPart {
	return ContentPart{Type: TypeContentPartAdded, Content: ContentText{Text: text}}
}

func Connected() ConnectionStatus {
	return ConnectionStatus{Type: TypeConnectionStatus, Status: "connected", Message: "Connection established"}
}
