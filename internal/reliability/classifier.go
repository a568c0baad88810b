package reliability

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsConnectionClosed reports whether err means the peer socket is gone, as
// opposed to a local cancellation or a malformed frame.
func IsConnectionClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsItemDeliveryError matches upstream error messages about conversation
// items, which is how a rejected function_call_output surfaces.
func IsItemDeliveryError(message string) bool {
	return strings.Contains(strings.ToLower(message), "item")
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

// Retry runs fn up to attempts times, sleeping with ExponentialBackoff
// between tries while fn reports the failure as retryable.
func Retry(ctx context.Context, attempts int, base, cap time.Duration, fn func(attempt int) (retry bool, err error)) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		var retry bool
		retry, err = fn(attempt)
		if err == nil || !retry || attempt == attempts-1 {
			return err
		}
		timer := time.NewTimer(ExponentialBackoff(attempt, base, cap))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}
