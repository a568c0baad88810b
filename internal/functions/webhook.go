package functions

import (
	"context"
	"net/http"
	"strings"
	"time"
)

var webhookDefinition = Definition{
	Name:        SendWebhook,
	Description: "Send an event with a JSON payload to the assistant's webhook URL.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Webhook URL. Defaults to the URL configured for the assistant.",
			},
			"event": map[string]any{
				"type":        "string",
				"description": "Event name, for example booking_requested.",
			},
			"payload": map[string]any{
				"type":        "object",
				"description": "Event data collected from the conversation.",
			},
		},
		"required": []string{"event"},
	},
}

type webhookSender struct {
	client *http.Client
}

func (w *webhookSender) send(ctx context.Context, args map[string]any, call CallContext) map[string]any {
	url := strings.TrimSpace(stringArg(args, "url"))
	if url == "" {
		url = call.WebhookURL
	}
	if url == "" {
		return map[string]any{"status": 0, "success": false, "error": "webhook url is required"}
	}

	body := map[string]any{
		"event":           stringArg(args, "event"),
		"payload":         args["payload"],
		"assistant_id":    call.Assistant.ID,
		"client_id":       call.ClientID,
		"conversation_id": call.ConversationID,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	}
	reply, err := postJSON(ctx, w.client, url, nil, body, maxWebhookBody)
	if err != nil {
		return map[string]any{"status": 0, "success": false, "url": url, "error": err.Error()}
	}
	return map[string]any{
		"status":   reply.Status,
		"success":  reply.Status >= 200 && reply.Status < 300,
		"url":      url,
		"response": decodeBody(reply.Body),
	}
}
