package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/voicebridge/internal/functions"
	"github.com/antoniostano/voicebridge/internal/realtime/realtimetest"
)

const wait = 2 * time.Second

func newTestLink(t *testing.T, srv *realtimetest.Server, params SessionParams) *Link {
	t.Helper()
	l := NewLink(Options{
		URL:          srv.URL(),
		DialTimeout:  time.Second,
		PingInterval: time.Second,
		PingTimeout:  5 * time.Second,
		CloseTimeout: time.Second,
		SettleDelay:  10 * time.Millisecond,
	}, params)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func webhookParams() SessionParams {
	return SessionParams{
		Credential:   "sk-test",
		Voice:        "alloy",
		Instructions: "be brief",
		Tools: []functions.Definition{{
			Name:        functions.SendWebhook,
			Description: "send",
			Parameters:  map[string]any{"type": "object"},
		}},
	}
}

func TestConnectSendsSessionUpdate(t *testing.T) {
	srv := realtimetest.NewServer(t)
	l := newTestLink(t, srv, webhookParams())

	require.NoError(t, l.Connect(context.Background()))
	require.True(t, l.IsConnected())

	update := srv.Next(t, "session.update", wait)
	session := update["session"].(map[string]any)
	assert.Equal(t, "auto", session["tool_choice"])
	assert.Equal(t, "pcm16", session["input_audio_format"])
	assert.Equal(t, "pcm16", session["output_audio_format"])
	assert.Equal(t, "alloy", session["voice"])
	assert.Equal(t, "whisper-1", session["input_audio_transcription"].(map[string]any)["model"])
	assert.Len(t, session["tools"], 1)

	dials := srv.Dials()
	require.Len(t, dials, 1)
	assert.Equal(t, "Bearer sk-test", dials[0].Get("Authorization"))
	assert.Equal(t, "realtime=v1", dials[0].Get("OpenAI-Beta"))

	assert.True(t, l.AllowList().Allows(functions.SendWebhook))
	assert.False(t, l.AllowList().Allows(functions.SearchPinecone))
}

func TestConnectWithoutToolsDisablesToolChoice(t *testing.T) {
	srv := realtimetest.NewServer(t)
	l := newTestLink(t, srv, SessionParams{Credential: "sk", Voice: "echo"})

	require.NoError(t, l.Connect(context.Background()))
	session := srv.Next(t, "session.update", wait)["session"].(map[string]any)
	assert.Equal(t, "none", session["tool_choice"])
	assert.Equal(t, 0, l.AllowList().Len())
}

func TestConnectRequiresCredential(t *testing.T) {
	srv := realtimetest.NewServer(t)
	l := newTestLink(t, srv, SessionParams{Voice: "alloy"})

	err := l.Connect(context.Background())
	require.ErrorIs(t, err, ErrNoCredential)
	assert.Equal(t, StateFailed, l.State())
	assert.Empty(t, srv.Dials())
}

func TestConnectFailureReportsError(t *testing.T) {
	srv := realtimetest.NewServer(t)
	srv.RejectNext(1)
	l := newTestLink(t, srv, webhookParams())

	err := l.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.False(t, l.IsConnected())
}

func TestSendFunctionResultRequestsFollowUp(t *testing.T) {
	srv := realtimetest.NewServer(t)
	l := newTestLink(t, srv, webhookParams())
	require.NoError(t, l.Connect(context.Background()))

	status := l.SendFunctionResult(context.Background(), "call_1", map[string]any{"status": 200, "success": true})
	require.True(t, status.Success, "delivery error: %v", status.Err)

	item := srv.Next(t, "conversation.item.create", wait)
	body := item["item"].(map[string]any)
	assert.Equal(t, "function_call_output", body["type"])
	assert.Equal(t, "call_1", body["call_id"])
	id := body["id"].(string)
	assert.True(t, strings.HasPrefix(id, "func_"))
	assert.LessOrEqual(t, len(id), 32)
	assert.NotEqual(t, "call_1", id)

	var output map[string]any
	require.NoError(t, json.Unmarshal([]byte(body["output"].(string)), &output))
	assert.Equal(t, true, output["success"])

	follow := srv.Next(t, "response.create", wait)
	resp := follow["response"].(map[string]any)
	assert.EqualValues(t, 200, resp["max_output_tokens"])
	assert.True(t, strings.HasPrefix(follow["event_id"].(string), "resp_after_func_"))

	var sent map[string]any
	require.NoError(t, json.Unmarshal(status.Payload, &sent))
	assert.Equal(t, "conversation.item.create", sent["type"])
}

func TestSendFunctionResultWhenDisconnected(t *testing.T) {
	srv := realtimetest.NewServer(t)
	l := newTestLink(t, srv, webhookParams())

	status := l.SendFunctionResult(context.Background(), "call_1", map[string]any{"status": "ok"})
	assert.False(t, status.Success)
	assert.ErrorIs(t, status.Err, ErrNotConnected)
	assert.Nil(t, status.Payload)
}

func TestReconnectReplacesChannel(t *testing.T) {
	srv := realtimetest.NewServer(t)
	l := newTestLink(t, srv, webhookParams())
	require.NoError(t, l.Connect(context.Background()))
	srv.Next(t, "session.update", wait)
	gen := l.Generation()

	require.NoError(t, l.Reconnect(context.Background(), gen))
	srv.Next(t, "session.update", wait)
	assert.Equal(t, gen+1, l.Generation())
	assert.True(t, l.IsConnected())
	assert.Len(t, srv.Dials(), 2)

	// A stale generation does not dial again.
	require.NoError(t, l.Reconnect(context.Background(), gen))
	assert.Len(t, srv.Dials(), 2)
}

func TestReconnectFailureMarksFailed(t *testing.T) {
	srv := realtimetest.NewServer(t)
	l := newTestLink(t, srv, webhookParams())
	require.NoError(t, l.Connect(context.Background()))

	srv.RejectNext(1)
	require.Error(t, l.Reconnect(context.Background(), l.Generation()))
	assert.Equal(t, StateFailed, l.State())
	assert.ErrorIs(t, l.CommitAudio(), ErrNotConnected)
}

func TestReadReturnsFramesAndCloseErrors(t *testing.T) {
	srv := realtimetest.NewServer(t)
	l := newTestLink(t, srv, webhookParams())
	require.NoError(t, l.Connect(context.Background()))
	srv.Next(t, "session.update", wait)

	srv.Send(t, map[string]any{"type": "session.created"})
	_, data, gen, err := l.Read()
	require.NoError(t, err)
	assert.Equal(t, l.Generation(), gen)
	assert.Contains(t, string(data), "session.created")

	srv.Drop()
	_, _, _, err = l.Read()
	require.Error(t, err)
	assert.False(t, l.IsConnected())
}

func TestClientEventsAreForwarded(t *testing.T) {
	srv := realtimetest.NewServer(t)
	l := newTestLink(t, srv, webhookParams())
	require.NoError(t, l.Connect(context.Background()))

	require.NoError(t, l.AppendAudio([]byte{1, 2, 3, 4}))
	appendFrame := srv.Next(t, "input_audio_buffer.append", wait)
	assert.Equal(t, "AQIDBA==", appendFrame["audio"])

	require.NoError(t, l.CommitAudio())
	srv.Next(t, "input_audio_buffer.commit", wait)

	require.NoError(t, l.CancelResponse("evt_9"))
	cancel := srv.Next(t, "response.cancel", wait)
	assert.Equal(t, "evt_9", cancel["event_id"])
}

func TestEncodeOutputTruncatesLargeResults(t *testing.T) {
	out, err := encodeOutput(map[string]any{"status": "ok", "blob": strings.Repeat("x", maxOutputBytes)})
	require.NoError(t, err)
	assert.Less(t, len(out), maxOutputBytes)
	assert.Contains(t, out, `"truncated":true`)
}
