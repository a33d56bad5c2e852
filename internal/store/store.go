// Package store implements component A, the Key-Value Store Abstraction:
// typed, atomic operations over Sessions and Connections (records, listener
// counters, language indexes and tracking sets), backed by Redis for the
// hot, TTL-bearing paths. This is
// the process-external shared state section 5 requires ("all durable state
// lives in the external key-value store").
package store

import (
	"context"
	"errors"
	"time"
)

// TransientStoreError wraps a provider-level failure (throttling, timeout)
// that callers may retry within their own budget.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string { return "transient store error during " + e.Op + ": " + e.Err.Error() }
func (e *TransientStoreError) Unwrap() error  { return e.Err }

// ConditionFailedError reports a conditional write that did not hold (key
// already exists on a create-only Put, or is missing on an update-only
// Put). A decrement that would take a counter negative is reported as
// *NegativeCountError instead.
type ConditionFailedError struct {
	Op string
}

func (e *ConditionFailedError) Error() string { return "condition failed: " + e.Op }

// NegativeCountError is raised when AtomicAdd's condition (post-image >= 0)
// would be violated by a decrement. Not retried per section 4.A.
type NegativeCountError struct {
	Key       string
	Attribute string
}

func (e *NegativeCountError) Error() string {
	return "negative count for " + e.Key + "." + e.Attribute
}

var ErrNotFound = errors.New("store: key not found")

// Condition names a conditional-write predicate evaluated server-side.
type Condition int

const (
	NoCondition Condition = iota
	IfNotExists           // Put succeeds only if the key is absent (session-id uniqueness probe)
	IfExists
)

// KV is the typed abstraction every component above it depends on.
// Implementations must make every method atomic against concurrent callers.
type KV interface {
	// Put writes item (already serialized) to key with the given TTL
	// (zero = no expiry), honoring condition.
	Put(ctx context.Context, key string, item []byte, ttl time.Duration, condition Condition) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error

	// AtomicAdd applies delta to attribute of key and returns the post-image.
	// When delta is negative, the store enforces post-image >= 0 and
	// returns *NegativeCountError on violation instead of applying it.
	AtomicAdd(ctx context.Context, key, attribute string, delta int64) (int64, error)

	// IndexAdd/IndexRemove/IndexMembers implement the GSI-style
	// (sessionId, targetLanguage) -> {connectionId} language lookup used by
	// components C, I and M. indexKey is e.g. "lang:<sessionId>:<language>".
	IndexAdd(ctx context.Context, indexKey, member string) error
	IndexRemove(ctx context.Context, indexKey, member string) error
	IndexMembers(ctx context.Context, indexKey string) ([]string, error)

	// SetMembers lists every member of a tracking set, used for
	// ListUniqueTargetLanguages and ListListeners-by-session scans that are
	// a single index query rather than a table scan.
	SetAdd(ctx context.Context, setKey, member string) error
	SetRemove(ctx context.Context, setKey, member string) error
	SetMembers(ctx context.Context, setKey string) ([]string, error)

	Expire(ctx context.Context, key string, ttl time.Duration) error
}
