// Package control implements component N, the Control-Message Router: it
// turns an authenticated speaker's pause/resume/mute/unmute/setVolume and
// either party's getSessionStatus requests into session-state transitions
// and the corresponding outbound wire messages, rate-limited per
// connection.
package control

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kjlabs/polyglot-broadcast/internal/apperr"
	"github.com/kjlabs/polyglot-broadcast/internal/connection"
	"github.com/kjlabs/polyglot-broadcast/internal/ratelimit"
	"github.com/kjlabs/polyglot-broadcast/internal/session"
	"github.com/kjlabs/polyglot-broadcast/internal/wire"
)

// Router dispatches control-plane inbound actions (section 6's non-audio
// speaker/listener messages) against the session registry, enforcing that
// only the owning speaker may mutate broadcast state.
type Router struct {
	sessions    *session.Registry
	connections *connection.Registry
	limiter     *ratelimit.Limiter
	log         *zap.Logger
}

func NewRouter(sessions *session.Registry, connections *connection.Registry, limiter *ratelimit.Limiter, log *zap.Logger) *Router {
	return &Router{sessions: sessions, connections: connections, limiter: limiter, log: log}
}

// Dispatch handles one inbound control message from connID, scoped to
// sessionID, returning the Outbound reply (or an error message payload for
// the caller to wrap and send). speakerID is the authenticated identity
// attached to the connection, used to enforce that only the speaker who
// owns the session may change its broadcast state (section 4.N: "any other
// caller receives AUTH_FORBIDDEN").
func (r *Router) Dispatch(ctx context.Context, connID, sessionID, speakerID string, in wire.Inbound) (wire.Outbound, error) {
	if _, err := r.limiter.Check(ctx, ratelimit.OpControlMessage, "connection", connID); err != nil {
		return wire.Outbound{}, err
	}

	switch in.Action {
	case wire.ActionPause:
		return r.transition(ctx, sessionID, speakerID, session.TransitionPause)
	case wire.ActionResume:
		return r.transition(ctx, sessionID, speakerID, session.TransitionResume)
	case wire.ActionMute:
		return r.transition(ctx, sessionID, speakerID, session.TransitionMute)
	case wire.ActionUnmute:
		return r.transition(ctx, sessionID, speakerID, session.TransitionUnmute)
	case wire.ActionSetVolume:
		return r.setVolume(ctx, sessionID, speakerID, in.Volume)
	case wire.ActionGetSessionStatus:
		return r.status(ctx, sessionID)
	default:
		return wire.Outbound{}, apperr.Validation(apperr.CodeValidationUnknownAction, "unknown control action").
			WithDetails(map[string]any{"action": in.Action})
	}
}

func (r *Router) requireOwner(sess *session.Session, speakerID string) error {
	if sess.SpeakerID != speakerID {
		return apperr.Auth(apperr.CodeAuthForbidden, "only the broadcasting speaker may change broadcast state")
	}
	return nil
}

func (r *Router) transition(ctx context.Context, sessionID, speakerID string, t session.BroadcastTransition) (wire.Outbound, error) {
	sess, err := r.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return wire.Outbound{}, err
	}
	if err := r.requireOwner(sess, speakerID); err != nil {
		return wire.Outbound{}, err
	}

	updated, err := r.sessions.UpdateBroadcastState(ctx, sessionID, t)
	if err != nil {
		return wire.Outbound{}, err
	}

	return wire.Outbound{
		Type:      wire.TypeBroadcastControl,
		Timestamp: time.Now().UnixMilli(),
		SessionID: sessionID,
		Payload: wire.BroadcastControlPayload{
			IsPaused: updated.BroadcastState.IsPaused,
			IsMuted:  updated.BroadcastState.IsMuted,
			Volume:   updated.BroadcastState.Volume,
		},
	}, nil
}

func (r *Router) setVolume(ctx context.Context, sessionID, speakerID string, volume *float64) (wire.Outbound, error) {
	if volume == nil {
		return wire.Outbound{}, apperr.Validation(apperr.CodeValidationMissingField, "setVolume requires volume")
	}
	sess, err := r.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return wire.Outbound{}, err
	}
	if err := r.requireOwner(sess, speakerID); err != nil {
		return wire.Outbound{}, err
	}

	updated, err := r.sessions.SetVolume(ctx, sessionID, *volume)
	if err != nil {
		return wire.Outbound{}, err
	}

	return wire.Outbound{
		Type:      wire.TypeBroadcastControl,
		Timestamp: time.Now().UnixMilli(),
		SessionID: sessionID,
		Payload: wire.BroadcastControlPayload{
			IsPaused: updated.BroadcastState.IsPaused,
			IsMuted:  updated.BroadcastState.IsMuted,
			Volume:   updated.BroadcastState.Volume,
		},
	}, nil
}

// status implements getSessionStatus: current broadcast state plus the
// listener language distribution (section 4.N / 6).
func (r *Router) status(ctx context.Context, sessionID string) (wire.Outbound, error) {
	sess, err := r.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return wire.Outbound{}, err
	}

	targets, err := r.connections.ListUniqueTargetLanguages(ctx, sessionID)
	if err != nil {
		return wire.Outbound{}, err
	}

	dist := make(map[string]int, len(targets))
	for _, lang := range targets {
		listeners, err := r.connections.ListListenersByLanguage(ctx, sessionID, lang)
		if err != nil {
			continue
		}
		dist[lang] = len(listeners)
	}

	return wire.Outbound{
		Type:      wire.TypeSessionStatus,
		Timestamp: time.Now().UnixMilli(),
		SessionID: sessionID,
		Payload: wire.SessionStatusPayload{
			IsActive:             sess.IsActive && sess.BroadcastState.IsBroadcasting(),
			ListenerCount:        sess.ListenerCount,
			LanguageDistribution: dist,
		},
	}, nil
}
