// Package broadcast implements component M, the Broadcast Handler: for
// each (sessionId, language, audio), push to every indexed listener with
// bounded concurrency, retries on transient errors, and stale-connection
// reaping.
package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjlabs/polyglot-broadcast/internal/connection"
)

// SendOutcome classifies what happened delivering one frame to one
// connection, per section 4.M's per-connection send policy.
type SendOutcome int

const (
	SendSuccess SendOutcome = iota
	SendGone
	SendTransient
)

// Transport is the connection-plane collaborator: push raw audio bytes to
// one connection and report what happened. Implemented by the WebSocket
// connection actor (section 9's "actor owning its outbound queue").
type Transport interface {
	SendAudio(ctx context.Context, connID string, audio []byte) SendOutcome
}

// Counts is the per-invocation result section 4.M step 5 requires the
// orchestrator to emit as metrics.
type Counts struct {
	Success int
	Failed  int
	Stale   int
}

type Handler struct {
	connections *connection.Registry
	sessions    listenerDecrementer
	transport   Transport

	maxConcurrent  int
	retryBackoff   time.Duration
	maxRetries     int

	log *zap.Logger
}

// listenerDecrementer is the narrow slice of session.Registry this package
// needs, kept as an interface to avoid an import cycle between session and
// broadcast.
type listenerDecrementer interface {
	DecrementListeners(ctx context.Context, sessionID string) (int64, error)
}

func NewHandler(connections *connection.Registry, sessions listenerDecrementer, transport Transport, maxConcurrent, maxRetries int, retryBackoff time.Duration, log *zap.Logger) *Handler {
	if maxConcurrent <= 0 {
		maxConcurrent = 100
	}
	return &Handler{
		connections:   connections,
		sessions:      sessions,
		transport:     transport,
		maxConcurrent: maxConcurrent,
		retryBackoff:  retryBackoff,
		maxRetries:    maxRetries,
		log:           log,
	}
}

// Broadcast implements section 4.M steps 1-5.
func (h *Handler) Broadcast(ctx context.Context, sessionID, language string, audioBytes []byte) Counts {
	connIDs, err := h.connections.ListListenersByLanguage(ctx, sessionID, language)
	if err != nil || len(connIDs) == 0 {
		return Counts{}
	}

	var success, failed, stale int64
	sem := make(chan struct{}, h.maxConcurrent)
	var wg sync.WaitGroup

	for _, connID := range connIDs {
		wg.Add(1)
		go func(connID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			switch h.sendWithRetry(ctx, connID, audioBytes) {
			case SendSuccess:
				atomic.AddInt64(&success, 1)
			case SendGone:
				atomic.AddInt64(&stale, 1)
				h.reap(ctx, sessionID, connID)
			default:
				atomic.AddInt64(&failed, 1)
			}
		}(connID)
	}
	wg.Wait()

	return Counts{Success: int(success), Failed: int(failed), Stale: int(stale)}
}

// sendWithRetry implements the per-connection send policy of section 4.M:
// gone -> no retry, transient -> exponential backoff up to maxRetries.
func (h *Handler) sendWithRetry(ctx context.Context, connID string, audioBytes []byte) SendOutcome {
	backoff := h.retryBackoff
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		outcome := h.transport.SendAudio(ctx, connID, audioBytes)
		if outcome != SendTransient {
			return outcome
		}
		if attempt == h.maxRetries {
			return outcome
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return outcome
		}
		backoff *= 2
	}
	return SendTransient
}

// reap implements the idempotent "connection gone" handling of section
// 4.C: remove the connection and decrement listener count.
func (h *Handler) reap(ctx context.Context, sessionID, connID string) {
	if _, err := h.connections.RemoveConnection(ctx, connID); err != nil && h.log != nil {
		h.log.Warn("⚠️ failed to remove stale connection", zap.String("connectionId", connID), zap.Error(err))
	}
	if _, err := h.sessions.DecrementListeners(ctx, sessionID); err != nil && h.log != nil {
		h.log.Warn("⚠️ failed to decrement listener count after reap", zap.String("sessionId", sessionID), zap.Error(err))
	}
}
