package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryKVPutConditions(t *testing.T) {
	m := NewMemoryKV()
	ctx := context.Background()

	if err := m.Put(ctx, "k", []byte("v1"), 0, IfNotExists); err != nil {
		t.Fatalf("first IfNotExists put: %v", err)
	}
	if err := m.Put(ctx, "k", []byte("v2"), 0, IfNotExists); err == nil {
		t.Fatal("expected ConditionFailedError on duplicate IfNotExists put")
	}
	if err := m.Put(ctx, "missing", []byte("v"), 0, IfExists); err == nil {
		t.Fatal("expected ConditionFailedError on IfExists put to missing key")
	}

	got, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("expected v1, got %s", got)
	}
}

func TestMemoryKVExpiry(t *testing.T) {
	m := NewMemoryKV()
	ctx := context.Background()

	if err := m.Put(ctx, "k", []byte("v"), time.Millisecond, NoCondition); err != nil {
		t.Fatalf("put: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := m.Get(ctx, "k"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestMemoryKVAtomicAddNegativeGuard(t *testing.T) {
	m := NewMemoryKV()
	ctx := context.Background()

	v, err := m.AtomicAdd(ctx, "s1", "listenerCount", 1)
	if err != nil || v != 1 {
		t.Fatalf("expected 1, nil; got %d, %v", v, err)
	}

	if _, err := m.AtomicAdd(ctx, "s1", "listenerCount", -5); err == nil {
		t.Fatal("expected NegativeCountError")
	}

	v, err = m.AtomicAdd(ctx, "s1", "listenerCount", -1)
	if err != nil || v != 0 {
		t.Fatalf("expected 0, nil; got %d, %v", v, err)
	}
}

func TestMemoryKVSetOperations(t *testing.T) {
	m := NewMemoryKV()
	ctx := context.Background()

	if err := m.SetAdd(ctx, "sessions:active", "s1"); err != nil {
		t.Fatalf("setadd: %v", err)
	}
	if err := m.SetAdd(ctx, "sessions:active", "s2"); err != nil {
		t.Fatalf("setadd: %v", err)
	}

	members, err := m.SetMembers(ctx, "sessions:active")
	if err != nil {
		t.Fatalf("setmembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}

	if err := m.SetRemove(ctx, "sessions:active", "s1"); err != nil {
		t.Fatalf("setremove: %v", err)
	}
	members, err = m.SetMembers(ctx, "sessions:active")
	if err != nil {
		t.Fatalf("setmembers: %v", err)
	}
	if len(members) != 1 || members[0] != "s2" {
		t.Fatalf("expected [s2], got %v", members)
	}
}
