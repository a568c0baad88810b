package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeHandle struct {
	done   chan struct{}
	once   sync.Once
	closed int
	mu     sync.Mutex
}

func newFakeHandle() *fakeHandle { return &fakeHandle{done: make(chan struct{})} }

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	h.closed++
	h.mu.Unlock()
	h.once.Do(func() { close(h.done) })
	return nil
}

func TestRegistryAddRemove(t *testing.T) {
	r := NewRegistry()
	var lastAssistants, lastTotal int
	r.SetChangeHook(func(a, c int) { lastAssistants, lastTotal = a, c })

	removeA := r.Add("a1", "c1", newFakeHandle())
	r.Add("a1", "c2", newFakeHandle())
	r.Add("a2", "c3", newFakeHandle())

	if got := r.Count("a1"); got != 2 {
		t.Fatalf("Count(a1) = %d, want 2", got)
	}
	if lastAssistants != 2 || lastTotal != 3 {
		t.Fatalf("hook totals = (%d, %d), want (2, 3)", lastAssistants, lastTotal)
	}

	removeA()
	removeA()
	if got := r.Count("a1"); got != 1 {
		t.Fatalf("Count(a1) after remove = %d, want 1", got)
	}

	r.Remove("a2", "c3")
	r.Remove("a2", "c3")
	r.Remove("missing", "x")
	if got := r.Assistants(); len(got) != 1 || got[0] != "a1" {
		t.Fatalf("Assistants() = %v, want [a1]", got)
	}
	if r.Total() != 1 {
		t.Fatalf("Total() = %d, want 1", r.Total())
	}
}

func TestRegistrySnapshotOrdering(t *testing.T) {
	r := NewRegistry()
	r.Add("b", "c1", newFakeHandle())
	r.Add("a", "c2", newFakeHandle())
	r.Add("a", "c3", newFakeHandle())

	snap := r.Snapshot()
	if len(snap) != 2 || snap[0].AssistantID != "a" || snap[1].AssistantID != "b" {
		t.Fatalf("Snapshot() = %+v, want a then b", snap)
	}
	if snap[0].Connections != 2 || len(snap[0].Clients) != 2 {
		t.Fatalf("snapshot[a] = %+v, want two clients", snap[0])
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			remove := r.Add(fmt.Sprintf("a%d", i%5), fmt.Sprintf("c%d", i), newFakeHandle())
			_ = r.Snapshot()
			remove()
		}(i)
	}
	wg.Wait()
	if r.Total() != 0 {
		t.Fatalf("Total() = %d, want 0", r.Total())
	}
}

func TestRegistryCloseAllAndJanitor(t *testing.T) {
	r := NewRegistry()
	h1, h2 := newFakeHandle(), newFakeHandle()
	r.Add("a", "c1", h1)
	r.Add("a", "c2", h2)

	r.CloseAll()
	if h1.closed != 1 || h2.closed != 1 {
		t.Fatalf("closed counts = (%d, %d), want (1, 1)", h1.closed, h2.closed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartJanitor(ctx, 10*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for r.Total() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("janitor did not sweep finished handles, Total() = %d", r.Total())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
