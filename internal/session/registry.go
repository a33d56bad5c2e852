package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjlabs/polyglot-broadcast/internal/apperr"
	"github.com/kjlabs/polyglot-broadcast/internal/store"
)

// Registry implements component B over the KV abstraction (component A).
// It owns session-id generation, lifecycle and the broadcast-control state
// machine; listener-count mutation is delegated entirely to KV.AtomicAdd so
// no caller ever read-modify-writes the counter (section 5).
type Registry struct {
	kv        store.KV
	generator *Generator
	maxDur    time.Duration
	outerRetries int
	backoffBase  time.Duration
	log       *zap.Logger
}

func NewRegistry(kv store.KV, maxAttempts, outerRetries int, backoffBase, maxDuration time.Duration, log *zap.Logger) *Registry {
	return &Registry{
		kv:           kv,
		generator:    NewGenerator(maxAttempts),
		maxDur:       maxDuration,
		outerRetries: outerRetries,
		backoffBase:  backoffBase,
		log:          log,
	}
}

func sessionKey(id string) string { return "session:" + id }

// activeSessionsKey is a process-wide set of currently-active session ids,
// maintained alongside the per-session row so the operational projection
// (internal/projection's GORM-backed session snapshots) can discover what to
// snapshot without scanning the KV store.
const activeSessionsKey = "sessions:active"

// ListActiveSessionIDs backs the periodic projection sync.
func (r *Registry) ListActiveSessionIDs(ctx context.Context) ([]string, error) {
	return r.kv.SetMembers(ctx, activeSessionsKey)
}

// CreateSession implements section 4.B's CreateSession contract, including
// the two-tier retry: N1 attempts inside the generator, then N2 outer
// retries with exponential backoff before SessionIDExhaustion.
func (r *Registry) CreateSession(ctx context.Context, speakerID, sourceLanguage string, tier QualityTier, ttl time.Duration) (*Session, error) {
	if ttl <= 0 || ttl > r.maxDur {
		ttl = r.maxDur
	}

	var sess *Session
	var lastErr error
	for outer := 0; outer <= r.outerRetries; outer++ {
		id, err := r.generator.Generate(func(candidate string) (bool, error) {
			_, getErr := r.kv.Get(ctx, sessionKey(candidate))
			if getErr == store.ErrNotFound {
				return true, nil
			}
			if getErr != nil {
				return false, getErr
			}
			return false, nil
		})
		if err != nil {
			lastErr = err
			time.Sleep(backoff(r.backoffBase, outer))
			continue
		}

		now := time.Now()
		sess = &Session{
			SessionID:      id,
			SpeakerID:      speakerID,
			SourceLanguage: sourceLanguage,
			QualityTier:    tier,
			IsActive:       true,
			CreatedAt:      now,
			ExpiresAt:      now.Add(ttl),
			ListenerCount:  0,
			BroadcastState: DefaultBroadcastState(now),
		}
		body, merr := json.Marshal(sess)
		if merr != nil {
			return nil, fmt.Errorf("marshal session: %w", merr)
		}
		putErr := r.kv.Put(ctx, sessionKey(id), body, ttl, store.IfNotExists)
		if putErr == nil {
			_ = r.kv.SetAdd(ctx, activeSessionsKey, id)
			if r.log != nil {
				r.log.Info("🎙️ session created", zap.String("sessionId", id), zap.String("speakerId", speakerID))
			}
			return sess, nil
		}
		var cond *store.ConditionFailedError
		if asConditionFailed(putErr, &cond) {
			lastErr = putErr
			time.Sleep(backoff(r.backoffBase, outer))
			continue
		}
		return nil, fmt.Errorf("put session: %w", putErr)
	}

	return nil, apperr.Fatal(apperr.CodeSessionIDExhaustion, "could not allocate a unique session id", lastErr)
}

func asConditionFailed(err error, target **store.ConditionFailedError) bool {
	cf, ok := err.(*store.ConditionFailedError)
	if ok {
		*target = cf
	}
	return ok
}

func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

func (r *Registry) GetSession(ctx context.Context, id string) (*Session, error) {
	body, err := r.kv.Get(ctx, sessionKey(id))
	if err == store.ErrNotFound {
		return nil, apperr.Resource(apperr.CodeSessionNotFound, "session not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	// listenerCount is never read back from the session row itself (section
	// 5): the atomic counter is authoritative, the row only holds a stale
	// snapshot from creation time.
	if count, cerr := r.kv.AtomicAdd(ctx, sessionKey(id), "listenerCount", 0); cerr == nil {
		sess.ListenerCount = count
	}
	return &sess, nil
}

func (r *Registry) put(ctx context.Context, sess *Session) error {
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	body, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return r.kv.Put(ctx, sessionKey(sess.SessionID), body, ttl, store.IfExists)
}

// MarkInactive implements "once isActive=false no further broadcast may be
// queued" (section 4.B invariant).
func (r *Registry) MarkInactive(ctx context.Context, id string) error {
	sess, err := r.GetSession(ctx, id)
	if err != nil {
		return err
	}
	sess.IsActive = false
	sess.BroadcastState.IsActive = false
	if err := r.put(ctx, sess); err != nil {
		return err
	}
	return r.kv.SetRemove(ctx, activeSessionsKey, id)
}

type BroadcastTransition int

const (
	TransitionPause BroadcastTransition = iota
	TransitionResume
	TransitionMute
	TransitionUnmute
)

func (r *Registry) UpdateBroadcastState(ctx context.Context, id string, transition BroadcastTransition) (*Session, error) {
	sess, err := r.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.IsActive {
		return nil, apperr.Resource(apperr.CodeSessionInactive, "session is inactive")
	}
	now := time.Now()
	switch transition {
	case TransitionPause:
		sess.BroadcastState = sess.BroadcastState.Pause(now)
	case TransitionResume:
		sess.BroadcastState = sess.BroadcastState.Resume(now)
	case TransitionMute:
		sess.BroadcastState = sess.BroadcastState.Mute(now)
	case TransitionUnmute:
		sess.BroadcastState = sess.BroadcastState.Unmute(now)
	}
	if err := r.put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (r *Registry) SetVolume(ctx context.Context, id string, volume float64) (*Session, error) {
	sess, err := r.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.IsActive {
		return nil, apperr.Resource(apperr.CodeSessionInactive, "session is inactive")
	}
	newState, ok := sess.BroadcastState.SetVolume(volume, time.Now())
	if !ok {
		return nil, apperr.Validation(apperr.CodeValidationBadVolume, "volume must be within [0,1]")
	}
	sess.BroadcastState = newState
	if err := r.put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// IncrementListeners/DecrementListeners delegate to AtomicAdd exactly as
// section 4.B specifies; the decrement's negative-count guard surfaces as
// apperr with CodeNegativeCount rather than being silently clamped.
func (r *Registry) IncrementListeners(ctx context.Context, id string) (int64, error) {
	v, err := r.kv.AtomicAdd(ctx, sessionKey(id), "listenerCount", 1)
	if err != nil {
		return 0, fmt.Errorf("increment listeners: %w", err)
	}
	return v, nil
}

func (r *Registry) DecrementListeners(ctx context.Context, id string) (int64, error) {
	v, err := r.kv.AtomicAdd(ctx, sessionKey(id), "listenerCount", -1)
	if err != nil {
		var neg *store.NegativeCountError
		if isNegativeCount(err, &neg) {
			return v, apperr.Fatal(apperr.CodeNegativeCount, "listener count would go negative", err)
		}
		return 0, fmt.Errorf("decrement listeners: %w", err)
	}
	return v, nil
}

func isNegativeCount(err error, target **store.NegativeCountError) bool {
	n, ok := err.(*store.NegativeCountError)
	if ok {
		*target = n
	}
	return ok
}
