package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/antoniostano/voicebridge/internal/reliability"
)

const maxWebhookBody = 4 << 10

type httpReply struct {
	Status int
	Body   []byte
}

// postJSON sends body to url, retrying once on a retryable status. A
// non-2xx status is not an error; transport failures are and are not
// retried.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any, limit int64) (httpReply, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return httpReply{}, fmt.Errorf("marshal request: %w", err)
	}

	var reply httpReply
	err = reliability.Retry(ctx, 2, 250*time.Millisecond, time.Second, func(int) (bool, error) {
		reply = httpReply{}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return false, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		res, err := client.Do(req)
		if err != nil {
			return false, fmt.Errorf("send request: %w", err)
		}
		defer res.Body.Close()

		data, err := io.ReadAll(io.LimitReader(res.Body, limit))
		if err != nil {
			return false, fmt.Errorf("read response: %w", err)
		}
		reply = httpReply{Status: res.StatusCode, Body: data}
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return true, fmt.Errorf("http status %d", res.StatusCode)
		}
		return false, nil
	})
	if err != nil && reply.Status != 0 {
		// Retries exhausted on a retryable status: report the status itself.
		return reply, nil
	}
	return reply, err
}

// decodeBody returns the JSON value of body, or its text when it is not
// JSON.
func decodeBody(body []byte) any {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err == nil {
		return v
	}
	return string(body)
}
