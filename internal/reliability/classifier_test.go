package reliability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestIsConnectionClosed(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"close frame", &websocket.CloseError{Code: websocket.CloseGoingAway}, true},
		{"wrapped eof", fmt.Errorf("read: %w", io.EOF), true},
		{"canceled", context.Canceled, false},
		{"decode", errors.New("invalid character"), false},
	}
	for _, tc := range cases {
		if got := IsConnectionClosed(tc.err); got != tc.want {
			t.Fatalf("%s: IsConnectionClosed() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsItemDeliveryError(t *testing.T) {
	if !IsItemDeliveryError("Invalid Item: call_id not found") {
		t.Fatalf("expected item error to match")
	}
	if IsItemDeliveryError("rate limit reached") {
		t.Fatalf("unexpected match")
	}
}

func TestExponentialBackoffCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	if got := ExponentialBackoff(0, base, capDur); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(10, base, capDur); got != capDur {
		t.Fatalf("attempt 10 = %v, want %v", got, capDur)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, time.Millisecond, func(int) (bool, error) {
		calls++
		return false, errors.New("bad request")
	})
	if err == nil || calls != 1 {
		t.Fatalf("calls = %d err = %v, want 1 call and an error", calls, err)
	}
}

func TestRetryRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, 2*time.Millisecond, func(attempt int) (bool, error) {
		calls++
		if attempt < 1 {
			return true, errors.New("503")
		}
		return false, nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("calls = %d err = %v, want 2 calls and nil", calls, err)
	}
}
