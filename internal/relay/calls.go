package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/antoniostano/voicebridge/internal/functions"
	"github.com/antoniostano/voicebridge/internal/protocol"
)

// pendingCall is the function call currently streaming in. At most one
// exists per connection.
type pendingCall struct {
	name   string
	callID string
	args   string
}

func (c *Conn) onCallStarted(ctx context.Context, e protocol.FunctionCallStarted) bool {
	name := functions.Normalize(e.FunctionName)
	if name != "" && !c.link.AllowList().Allows(name) {
		c.rejectCall(ctx, name, e.CallID)
		return false
	}
	c.turn.pending = pendingCall{name: name, callID: e.CallID}
	c.send(protocol.FunctionCallNotice{
		Type:           protocol.TypeFunctionCallStarted,
		Function:       name,
		FunctionCallID: e.CallID,
	})
	return true
}

func (c *Conn) onArgsDelta(e protocol.FunctionCallArgsDelta) {
	p := &c.turn.pending
	if p.name == "" && e.CallID != "" {
		p.callID = e.CallID
		p.name = guessFromFragment(e.Delta)
	}
	p.args += e.Delta
}

// onArgsDone resolves, checks and runs the accumulated call. It reports
// whether the event should still be relayed to the client.
func (c *Conn) onArgsDone(ctx context.Context, e protocol.FunctionCallArgsDone) bool {
	p := c.turn.pending
	c.turn.pending = pendingCall{}

	args := e.Arguments
	if args == "" {
		args = p.args
	}
	name := e.FunctionName
	if name == "" {
		name = p.name
	}
	if name == "" {
		name = guessFromArguments(args)
	}
	name = functions.Normalize(name)
	callID := e.CallID
	if callID == "" {
		callID = p.callID
	}

	if name != "" && !c.link.AllowList().Allows(name) {
		c.rejectCall(ctx, name, callID)
		return false
	}
	if name == "" || callID == "" {
		c.log.Warn("function call without name or call id", slog.String("call_id", callID), slog.String("function", name))
		c.failCall(ctx, callID, "function name could not be determined")
		return true
	}

	parsed, err := parseArguments(args)
	if err != nil {
		c.deps.Metrics.FunctionCall(name, "bad_args", 0)
		c.sendError(protocol.CodeFunctionArgsError, fmt.Sprintf("Invalid arguments for function %s: %v", name, err))
		c.failCall(ctx, callID, "invalid arguments: "+err.Error())
		return true
	}

	c.send(protocol.FunctionCallNotice{Type: protocol.TypeFunctionCallStart, Function: name, FunctionCallID: callID})
	result, err := c.execute(ctx, name, parsed)
	if err != nil {
		c.log.Error("function execution failed", slog.String("function", name), slog.Any("err", err))
		c.sendError(protocol.CodeFunctionExecutionError, fmt.Sprintf("Function %s failed: %v", name, err))
		c.failCall(ctx, callID, err.Error())
		return true
	}
	c.turn.functionResult = result
	c.turn.lastFunction = name
	c.turn.waiting = true

	status := c.link.SendFunctionResult(ctx, callID, result)
	c.turn.lastDelivery = &status
	if !status.Success {
		c.log.Warn("function result delivery failed", slog.String("call_id", callID), slog.Any("err", status.Err))
		c.send(protocol.NewContentPart("Error executing function: " + status.Err.Error()))
		c.requestFollowUp()
		c.turn.waiting = false
	}

	c.send(protocol.FunctionCallNotice{
		Type:           protocol.TypeFunctionCallCompleted,
		Function:       name,
		FunctionCallID: callID,
		Result:         result,
	})

	if name == functions.SendWebhook && c.turn.waiting && statusCode(result) == 404 {
		c.send(protocol.NewContentPart(webhookNotFound(parsed, result)))
		c.turn.waiting = false
	}
	return true
}

// onLegacyCall handles the single-shot function_call event. It is never
// relayed.
func (c *Conn) onLegacyCall(ctx context.Context, e protocol.LegacyFunctionCall) {
	name := functions.Normalize(e.Name)
	c.turn.lastFunction = name
	if !c.link.AllowList().Allows(name) {
		c.rejectCall(ctx, name, e.CallID)
		return
	}

	args, err := parseLegacyArguments(e.Arguments)
	if err != nil {
		c.deps.Metrics.FunctionCall(name, "bad_args", 0)
		c.sendError(protocol.CodeFunctionArgsError, fmt.Sprintf("Invalid arguments for function %s: %v", name, err))
		c.failCall(ctx, e.CallID, "invalid arguments: "+err.Error())
		return
	}

	c.send(protocol.FunctionCallNotice{Type: protocol.TypeFunctionCallStart, Function: name, FunctionCallID: e.CallID})
	result, err := c.execute(ctx, name, args)
	if err != nil {
		c.log.Error("function execution failed", slog.String("function", name), slog.Any("err", err))
		c.sendError(protocol.CodeFunctionExecutionError, fmt.Sprintf("Function %s failed: %v", name, err))
		c.failCall(ctx, e.CallID, err.Error())
		return
	}
	c.turn.functionResult = result

	if e.CallID == "" {
		c.requestFollowUp()
	} else if status := c.link.SendFunctionResult(ctx, e.CallID, result); !status.Success {
		c.log.Warn("function result delivery failed", slog.String("call_id", e.CallID), slog.Any("err", status.Err))
		c.requestFollowUp()
	}
	c.send(protocol.FunctionCallNotice{
		Type:           protocol.TypeFunctionCallCompleted,
		Function:       name,
		FunctionCallID: e.CallID,
		Result:         result,
	})
}

// rejectCall tells the user the function is disabled and unblocks the
// model with a synthetic error result, or a follow-up when that fails.
func (c *Conn) rejectCall(ctx context.Context, name, callID string) {
	if callID != "" {
		if _, seen := c.turn.rejected[callID]; seen {
			return
		}
		if c.turn.rejected == nil {
			c.turn.rejected = make(map[string]struct{})
		}
		c.turn.rejected[callID] = struct{}{}
	}
	decision := c.link.AllowList().DecideFunction(name)
	c.deps.Metrics.FunctionCall(name, "rejected", 0)
	c.log.Warn("function not enabled", slog.String("function", name), slog.String("call_id", callID))
	c.send(protocol.NewContentPart(decision.Notice))
	if callID == "" {
		c.requestFollowUp()
		return
	}
	if status := c.link.SendFunctionResult(ctx, callID, decision.Result); !status.Success {
		c.log.Warn("synthetic result delivery failed", slog.String("call_id", callID), slog.Any("err", status.Err))
		c.requestFollowUp()
	}
}

func (c *Conn) execute(ctx context.Context, name string, args map[string]any) (result map[string]any, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
		case result["error"] != nil:
			outcome = "failed"
		}
		c.deps.Metrics.FunctionCall(name, outcome, time.Since(start))
	}()

	if c.deps.Functions == nil {
		return nil, errors.New("no function gateway configured")
	}
	result = c.deps.Functions.Execute(ctx, name, args, functions.CallContext{
		Assistant:      c.asst,
		ClientID:       c.id,
		ConversationID: c.conversationID,
		Conversations:  c.deps.Conversations,
		WebhookURL:     c.webhookURL,
	})
	if result == nil {
		result = map[string]any{}
	}
	return result, nil
}

// failCall answers a call that produced no result. Without a call id there
// is nothing to answer, so the model is asked to respond instead.
func (c *Conn) failCall(ctx context.Context, callID, message string) {
	if callID == "" {
		c.requestFollowUp()
		return
	}
	status := c.link.SendFunctionResult(ctx, callID, map[string]any{"status": "error", "error": message})
	if !status.Success {
		c.log.Warn("error result delivery failed", slog.String("call_id", callID), slog.Any("err", status.Err))
		c.requestFollowUp()
	}
}

func (c *Conn) requestFollowUp() {
	if err := c.link.CreateResponseAfterFunction(); err != nil {
		c.log.Warn("follow-up response request failed", slog.Any("err", err))
	}
}

func parseArguments(raw string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// parseLegacyArguments accepts either an object or a JSON-encoded string
// holding one.
func parseLegacyArguments(raw json.RawMessage) (map[string]any, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return map[string]any{}, nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, err
		}
		return parseArguments(inner)
	}
	return parseArguments(trimmed)
}

func statusCode(result map[string]any) int {
	switch v := result["status"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

func webhookNotFound(args, result map[string]any) string {
	target, _ := args["url"].(string)
	if target == "" {
		target, _ = result["url"].(string)
	}
	if target == "" {
		target = "unknown"
	}
	return "Webhook not found (404). Please check the webhook URL: " + target
}

// webhookStatusText explains a webhook result when the model did not reply
// after it.
func webhookStatusText(result map[string]any) string {
	code := statusCode(result)
	switch {
	case code == 404:
		return "Webhook not found (404). It may not be registered or active."
	case code >= 200 && code < 300:
		return "Webhook executed successfully."
	default:
		return fmt.Sprintf("Webhook returned status %d", code)
	}
}
