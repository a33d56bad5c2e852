package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjlabs/polyglot-broadcast/internal/connection"
	"github.com/kjlabs/polyglot-broadcast/internal/store"
)

type fakeTransport struct {
	mu      sync.Mutex
	outcome map[string]SendOutcome
}

func (f *fakeTransport) SendAudio(ctx context.Context, connID string, audio []byte) SendOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.outcome[connID]; ok {
		return o
	}
	return SendSuccess
}

type fakeSessions struct {
	mu           sync.Mutex
	decremented  []string
}

func (f *fakeSessions) DecrementListeners(ctx context.Context, sessionID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decremented = append(f.decremented, sessionID)
	return 0, nil
}

func TestBroadcastDeliversToAllListeners(t *testing.T) {
	ctx := context.Background()
	connections := connection.NewRegistry(store.NewMemoryKV(), time.Hour)
	connections.RegisterListener(ctx, "c1", "s1", "fr")
	connections.RegisterListener(ctx, "c2", "s1", "fr")

	transport := &fakeTransport{outcome: map[string]SendOutcome{}}
	h := NewHandler(connections, &fakeSessions{}, transport, 10, 0, time.Millisecond, zap.NewNop())

	counts := h.Broadcast(ctx, "s1", "fr", []byte("audio"))
	if counts.Success != 2 {
		t.Fatalf("expected 2 successful sends, got %+v", counts)
	}
}

func TestBroadcastReapsGoneConnections(t *testing.T) {
	ctx := context.Background()
	connections := connection.NewRegistry(store.NewMemoryKV(), time.Hour)
	connections.RegisterListener(ctx, "c1", "s1", "fr")

	transport := &fakeTransport{outcome: map[string]SendOutcome{"c1": SendGone}}
	sessions := &fakeSessions{}
	h := NewHandler(connections, sessions, transport, 10, 0, time.Millisecond, zap.NewNop())

	counts := h.Broadcast(ctx, "s1", "fr", []byte("audio"))
	if counts.Stale != 1 {
		t.Fatalf("expected 1 stale connection, got %+v", counts)
	}

	if _, err := connections.GetConnection(ctx, "c1"); err == nil {
		t.Fatal("expected reaped connection to be removed from the registry")
	}
	if len(sessions.decremented) != 1 {
		t.Fatalf("expected listener count decremented once, got %v", sessions.decremented)
	}
}

func TestBroadcastRetriesTransientThenSucceeds(t *testing.T) {
	ctx := context.Background()
	connections := connection.NewRegistry(store.NewMemoryKV(), time.Hour)
	connections.RegisterListener(ctx, "c1", "s1", "fr")

	calls := 0
	transport := &countingTransport{
		fn: func(connID string) SendOutcome {
			calls++
			if calls < 2 {
				return SendTransient
			}
			return SendSuccess
		},
	}
	h := NewHandler(connections, &fakeSessions{}, transport, 10, 3, time.Millisecond, zap.NewNop())

	counts := h.Broadcast(ctx, "s1", "fr", []byte("audio"))
	if counts.Success != 1 {
		t.Fatalf("expected eventual success after transient retry, got %+v", counts)
	}
}

func TestBroadcastNoListenersReturnsZeroCounts(t *testing.T) {
	ctx := context.Background()
	connections := connection.NewRegistry(store.NewMemoryKV(), time.Hour)
	h := NewHandler(connections, &fakeSessions{}, &fakeTransport{}, 10, 0, time.Millisecond, zap.NewNop())

	counts := h.Broadcast(ctx, "empty-session", "fr", []byte("audio"))
	if counts.Success != 0 || counts.Failed != 0 || counts.Stale != 0 {
		t.Fatalf("expected zero counts for a session with no listeners, got %+v", counts)
	}
}

type countingTransport struct {
	mu sync.Mutex
	fn func(connID string) SendOutcome
}

func (c *countingTransport) SendAudio(ctx context.Context, connID string, audio []byte) SendOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fn(connID)
}
