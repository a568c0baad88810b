// Package session tracks which client sockets are attached to which
// assistant.
package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Handle is an attached client connection.
type Handle interface {
	// Done is closed once the connection has finished.
	Done() <-chan struct{}
	Close() error
}

// Client describes one attached connection.
type Client struct {
	ClientID    string    `json:"client_id"`
	AssistantID string    `json:"assistant_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

// AssistantSessions summarizes the connections of one assistant.
type AssistantSessions struct {
	AssistantID string   `json:"assistant_id"`
	Connections int      `json:"connections"`
	Clients     []Client `json:"clients"`
}

type entry struct {
	client Client
	handle Handle
}

// Registry maps assistant ids to their attached connections. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byAsst   map[string]map[string]entry
	onChange func(assistants, connections int)
}

func NewRegistry() *Registry {
	return &Registry{byAsst: make(map[string]map[string]entry)}
}

// SetChangeHook is called after every add or remove with the new totals.
func (r *Registry) SetChangeHook(hook func(assistants, connections int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = hook
}

// Add attaches h and returns its remove function. Remove is idempotent.
func (r *Registry) Add(assistantID, clientID string, h Handle) (remove func()) {
	r.mu.Lock()
	clients, ok := r.byAsst[assistantID]
	if !ok {
		clients = make(map[string]entry)
		r.byAsst[assistantID] = clients
	}
	clients[clientID] = entry{
		client: Client{ClientID: clientID, AssistantID: assistantID, ConnectedAt: time.Now().UTC()},
		handle: h,
	}
	r.mu.Unlock()
	r.notify()

	var once sync.Once
	return func() {
		once.Do(func() { r.Remove(assistantID, clientID) })
	}
}

// Remove detaches a connection. Unknown ids are ignored.
func (r *Registry) Remove(assistantID, clientID string) {
	r.mu.Lock()
	clients, ok := r.byAsst[assistantID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, present := clients[clientID]; !present {
		r.mu.Unlock()
		return
	}
	delete(clients, clientID)
	if len(clients) == 0 {
		delete(r.byAsst, assistantID)
	}
	r.mu.Unlock()
	r.notify()
}

func (r *Registry) Count(assistantID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAsst[assistantID])
}

func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalLocked()
}

func (r *Registry) totalLocked() int {
	n := 0
	for _, clients := range r.byAsst {
		n += len(clients)
	}
	return n
}

// Assistants returns the ids with at least one connection, sorted.
func (r *Registry) Assistants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byAsst))
	for id := range r.byAsst {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Snapshot copies the registry, ordered by assistant id then connect time.
func (r *Registry) Snapshot() []AssistantSessions {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AssistantSessions, 0, len(r.byAsst))
	for id, clients := range r.byAsst {
		s := AssistantSessions{AssistantID: id, Connections: len(clients)}
		for _, e := range clients {
			s.Clients = append(s.Clients, e.client)
		}
		sort.Slice(s.Clients, func(i, j int) bool {
			if s.Clients[i].ConnectedAt.Equal(s.Clients[j].ConnectedAt) {
				return s.Clients[i].ClientID < s.Clients[j].ClientID
			}
			return s.Clients[i].ConnectedAt.Before(s.Clients[j].ConnectedAt)
		})
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssistantID < out[j].AssistantID })
	return out
}

// CloseAll closes every attached handle. Handles remove themselves as their
// connections finish.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	handles := make([]Handle, 0, r.totalLocked())
	for _, clients := range r.byAsst {
		for _, e := range clients {
			handles = append(handles, e.handle)
		}
	}
	r.mu.RUnlock()
	for _, h := range handles {
		_ = h.Close()
	}
}

// StartJanitor periodically drops entries whose handle is done but were
// never removed.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

func (r *Registry) sweep() {
	type key struct{ assistantID, clientID string }
	var stale []key

	r.mu.RLock()
	for id, clients := range r.byAsst {
		for cid, e := range clients {
			select {
			case <-e.handle.Done():
				stale = append(stale, key{id, cid})
			default:
			}
		}
	}
	r.mu.RUnlock()

	for _, k := range stale {
		r.Remove(k.assistantID, k.clientID)
	}
}

func (r *Registry) notify() {
	r.mu.RLock()
	hook := r.onChange
	assistants, total := len(r.byAsst), r.totalLocked()
	r.mu.RUnlock()
	if hook != nil {
		hook(assistants, total)
	}
}
