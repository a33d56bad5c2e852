package store

import (
	"context"
	"sync"
	"time"
)

// MemoryKV is an in-process stand-in for RedisKV, used by component tests
// that don't want a live Redis. Grounded on the reference repo's
// sync.Map-plus-mutex PipelineCache idiom (internal/aws/cache.go).
type MemoryKV struct {
	mu      sync.Mutex
	items   map[string]memEntry
	counts  map[string]int64
	sets    map[string]map[string]struct{}
}

type memEntry struct {
	value   []byte
	expires time.Time // zero = no expiry
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		items:  make(map[string]memEntry),
		counts: make(map[string]int64),
		sets:   make(map[string]map[string]struct{}),
	}
}

func (m *MemoryKV) expired(e memEntry) bool {
	return !e.expires.IsZero() && time.Now().After(e.expires)
}

func (m *MemoryKV) Put(_ context.Context, key string, item []byte, ttl time.Duration, condition Condition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.items[key]
	if ok && m.expired(existing) {
		ok = false
	}

	switch condition {
	case IfNotExists:
		if ok {
			return &ConditionFailedError{Op: "Put(IfNotExists): " + key}
		}
	case IfExists:
		if !ok {
			return &ConditionFailedError{Op: "Put(IfExists): " + key}
		}
	}

	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	m.items[key] = memEntry{value: item, expires: expires}
	return nil
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[key]
	if !ok || m.expired(e) {
		return nil, ErrNotFound
	}
	return e.value, nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	delete(m.counts, key)
	return nil
}

func (m *MemoryKV) AtomicAdd(_ context.Context, key, attribute string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fullKey := key + ":" + attribute
	nv := m.counts[fullKey] + delta
	if nv < 0 {
		return m.counts[fullKey], &NegativeCountError{Key: key, Attribute: attribute}
	}
	m.counts[fullKey] = nv
	return nv, nil
}

func (m *MemoryKV) IndexAdd(ctx context.Context, indexKey, member string) error {
	return m.SetAdd(ctx, indexKey, member)
}

func (m *MemoryKV) IndexRemove(ctx context.Context, indexKey, member string) error {
	return m.SetRemove(ctx, indexKey, member)
}

func (m *MemoryKV) IndexMembers(ctx context.Context, indexKey string) ([]string, error) {
	return m.SetMembers(ctx, indexKey)
}

func (m *MemoryKV) SetAdd(_ context.Context, setKey, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sets[setKey] == nil {
		m.sets[setKey] = make(map[string]struct{})
	}
	m.sets[setKey][member] = struct{}{}
	return nil
}

func (m *MemoryKV) SetRemove(_ context.Context, setKey, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sets[setKey]; ok {
		delete(s, member)
	}
	return nil
}

func (m *MemoryKV) SetMembers(_ context.Context, setKey string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sets[setKey]
	out := make([]string, 0, len(s))
	for member := range s {
		out = append(out, member)
	}
	return out, nil
}

func (m *MemoryKV) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[key]
	if !ok {
		return ErrNotFound
	}
	e.expires = time.Now().Add(ttl)
	m.items[key] = e
	return nil
}
