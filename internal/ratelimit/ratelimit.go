// Package ratelimit implements component E: a sliding-window counter per
// (operation, identifierType, identifierValue), grounded on the original
// Python rate_limit_service.py's per-operation identifier-type mapping
// (session_create -> user, listener_join/connection_attempt -> ip,
// heartbeat/audio_chunk/control_message -> connection).
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kjlabs/polyglot-broadcast/internal/apperr"
)

type Operation string

const (
	OpConnectionAttempt Operation = "connection_attempt"
	OpSessionCreate      Operation = "session_create"
	OpListenerJoin       Operation = "listener_join"
	OpHeartbeat          Operation = "heartbeat"
	OpAudioChunk         Operation = "audio_chunk"
	OpControlMessage     Operation = "control_message"
)

var codeByOp = map[Operation]string{
	OpConnectionAttempt: apperr.CodeRateLimitConnectionAttempt,
	OpSessionCreate:     apperr.CodeRateLimitSessionCreate,
	OpListenerJoin:      apperr.CodeRateLimitListenerJoin,
	OpHeartbeat:         apperr.CodeRateLimitHeartbeat,
	OpAudioChunk:        apperr.CodeRateLimitAudioChunks,
	OpControlMessage:    apperr.CodeRateLimitControlMessage,
}

// Budget names the limit and window for one operation.
type Budget struct {
	Limit  int
	Window time.Duration
}

// bucket is an in-process sliding window: a ring of timestamps within the
// current window. Section 5 allows rate-limit windows to be kept
// in-memory "for hot paths" when partitioned per session/connection under
// component-local mutual exclusion -- exactly this shape.
type bucket struct {
	mu        sync.Mutex
	times     []time.Time
	violations int
}

func (b *bucket) recordAndCheck(now time.Time, window time.Duration, limit int) (count int, exceeded bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := now.Add(-window)
	live := b.times[:0]
	for _, t := range b.times {
		if t.After(cutoff) {
			live = append(live, t)
		}
	}
	live = append(live, now)
	b.times = live

	count = len(b.times)
	exceeded = count > limit
	if exceeded {
		b.violations++
	}
	return count, exceeded
}

func (b *bucket) violationCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.violations
}

// Limiter holds one bucket per (operation, identifierType, identifierValue).
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	budgets map[Operation]Budget

	warnAfter  int
	closeAfter int
}

func NewLimiter(budgets map[Operation]Budget, warnAfter, closeAfter int) *Limiter {
	return &Limiter{
		buckets:    make(map[string]*bucket),
		budgets:    budgets,
		warnAfter:  warnAfter,
		closeAfter: closeAfter,
	}
}

func (l *Limiter) bucketFor(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{}
		l.buckets[key] = b
	}
	return b
}

// Decision is what the caller should do after Check.
type Decision struct {
	Allowed      bool
	ShouldWarn   bool // crossed warnAfter violations for the first time this call
	ShouldClose  bool // sustained violation past closeAfter
	RetryAfter   time.Duration
}

// Check increments the window for (operation, identifierType,
// identifierValue) and returns whether the request is allowed, plus
// escalation signals for sustained abuse (section 4.E: "sustained
// violation closes the offending connection").
func (l *Limiter) Check(ctx context.Context, op Operation, identifierType, identifierValue string) (Decision, error) {
	budget, ok := l.budgets[op]
	if !ok {
		return Decision{Allowed: true}, nil
	}
	key := fmt.Sprintf("%s:%s:%s", op, identifierType, identifierValue)
	b := l.bucketFor(key)

	now := time.Now()
	count, exceeded := b.recordAndCheck(now, budget.Window, budget.Limit)
	if !exceeded {
		return Decision{Allowed: true}, nil
	}

	violations := b.violationCount()
	d := Decision{
		Allowed:    false,
		RetryAfter: budget.Window,
	}
	if violations == l.warnAfter {
		d.ShouldWarn = true
	}
	if violations >= l.closeAfter {
		d.ShouldClose = true
	}
	_ = count
	return d, apperr.Capacity(codeByOp[op], fmt.Sprintf("rate limit exceeded for %s", op)).
		WithDetails(map[string]any{"retryAfterMs": budget.Window.Milliseconds()})
}
