package functions

import (
	"context"
	"sync"
)

// MockCall records one Execute invocation.
type MockCall struct {
	Name string
	Args map[string]any
	Call CallContext
}

// MockGateway returns canned results and records calls. Definitions are
// served from a real Registry so tool lists match production.
type MockGateway struct {
	mu      sync.Mutex
	results map[string]map[string]any
	panics  map[string]any
	calls   []MockCall
	defs    *Registry
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		results: make(map[string]map[string]any),
		panics:  make(map[string]any),
		defs:    NewRegistry(Options{}),
	}
}

// SetResult fixes the result returned for name.
func (m *MockGateway) SetResult(name string, result map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[Normalize(name)] = result
}

// SetPanic makes Execute panic with v for name.
func (m *MockGateway) SetPanic(name string, v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics[Normalize(name)] = v
}

func (m *MockGateway) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

func (m *MockGateway) Definitions(names []string) []Definition {
	return m.defs.Definitions(names)
}

func (m *MockGateway) Execute(_ context.Context, name string, args map[string]any, call CallContext) map[string]any {
	name = Normalize(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Name: name, Args: args, Call: call})
	if v, ok := m.panics[name]; ok {
		panic(v)
	}
	if r, ok := m.results[name]; ok {
		return r
	}
	return map[string]any{"status": "ok"}
}
