// Package realtimetest provides an in-process stand-in for the realtime API.
package realtimetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is one JSON message the server received from a link.
type Frame map[string]any

func (f Frame) Type() string {
	t, _ := f["type"].(string)
	return t
}

// Server accepts realtime websocket dials and records every frame.
type Server struct {
	*httptest.Server

	upgrader websocket.Upgrader
	frames   chan Frame

	mu      sync.Mutex
	conn    *websocket.Conn
	headers []http.Header
	rejectN int
}

func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{frames: make(chan Frame, 256)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(func() {
		s.Drop()
		s.Close()
	})
	return s
}

// URL is the ws:// address of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

// RejectNext makes the next n dials fail with 503.
func (s *Server) RejectNext(n int) {
	s.mu.Lock()
	s.rejectN = n
	s.mu.Unlock()
}

// Dials returns the request headers of every accepted dial.
func (s *Server) Dials() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header(nil), s.headers...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.rejectN > 0 {
		s.rejectN--
		s.mu.Unlock()
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.headers = append(s.headers, r.Header.Clone())
	s.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f Frame
		if json.Unmarshal(data, &f) == nil {
			s.frames <- f
		}
	}
}

// Send writes v as JSON to the most recent connection.
func (s *Server) Send(t testing.TB, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal upstream event: %v", err)
	}
	s.SendRaw(t, raw)
}

func (s *Server) SendRaw(t testing.TB, raw []byte) {
	t.Helper()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		t.Fatalf("no upstream connection to send on")
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write upstream event: %v", err)
	}
}

// Drop closes the current connection without a close handshake.
func (s *Server) Drop() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Next returns the next received frame of the given type, discarding
// others.
func (s *Server) Next(t testing.TB, typ string, timeout time.Duration) Frame {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case f := <-s.frames:
			if f.Type() == typ {
				return f
			}
		case <-deadline:
			t.Fatalf("timed out waiting for upstream frame %q", typ)
			return nil
		}
	}
}

// Drain returns every frame received so far without blocking beyond wait.
func (s *Server) Drain(wait time.Duration) []Frame {
	var out []Frame
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case f := <-s.frames:
			out = append(out, f)
		case <-timer.C:
			return out
		}
	}
}
