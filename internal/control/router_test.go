package control

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjlabs/polyglot-broadcast/internal/apperr"
	"github.com/kjlabs/polyglot-broadcast/internal/connection"
	"github.com/kjlabs/polyglot-broadcast/internal/ratelimit"
	"github.com/kjlabs/polyglot-broadcast/internal/session"
	"github.com/kjlabs/polyglot-broadcast/internal/store"
	"github.com/kjlabs/polyglot-broadcast/internal/wire"
)

func newTestRouter(t *testing.T) (*Router, *session.Session) {
	t.Helper()
	kv := store.NewMemoryKV()
	sessions := session.NewRegistry(kv, 10, 3, time.Millisecond, time.Hour, zap.NewNop())
	connections := connection.NewRegistry(kv, time.Hour)
	limiter := ratelimit.NewLimiter(map[ratelimit.Operation]ratelimit.Budget{
		ratelimit.OpControlMessage: {Limit: 100, Window: time.Minute},
	}, 5, 10)
	router := NewRouter(sessions, connections, limiter, zap.NewNop())

	sess, err := sessions.CreateSession(context.Background(), "speaker-1", "en", session.QualityStandard, time.Hour)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return router, sess
}

func TestDispatchPauseBySpeakerOwner(t *testing.T) {
	ctx := context.Background()
	router, sess := newTestRouter(t)

	out, err := router.Dispatch(ctx, "conn-1", sess.SessionID, "speaker-1", wire.Inbound{Action: wire.ActionPause})
	if err != nil {
		t.Fatalf("dispatch pause: %v", err)
	}
	payload, ok := out.Payload.(wire.BroadcastControlPayload)
	if !ok {
		t.Fatalf("expected BroadcastControlPayload, got %T", out.Payload)
	}
	if !payload.IsPaused {
		t.Fatal("expected session to be paused")
	}
}

func TestDispatchRejectsNonOwner(t *testing.T) {
	ctx := context.Background()
	router, sess := newTestRouter(t)

	_, err := router.Dispatch(ctx, "conn-1", sess.SessionID, "someone-else", wire.Inbound{Action: wire.ActionPause})
	if err == nil {
		t.Fatal("expected error for non-owner pause attempt")
	}
	ae, ok := err.(*apperr.Error)
	if !ok || ae.Code != apperr.CodeAuthForbidden {
		t.Fatalf("expected AUTH_FORBIDDEN, got %v", err)
	}
}

func TestDispatchSetVolumeRequiresVolumeField(t *testing.T) {
	ctx := context.Background()
	router, sess := newTestRouter(t)

	_, err := router.Dispatch(ctx, "conn-1", sess.SessionID, "speaker-1", wire.Inbound{Action: wire.ActionSetVolume})
	if err == nil {
		t.Fatal("expected error when setVolume omits volume")
	}
	ae, ok := err.(*apperr.Error)
	if !ok || ae.Code != apperr.CodeValidationMissingField {
		t.Fatalf("expected VALIDATION_MISSING_FIELD, got %v", err)
	}
}

func TestDispatchUnknownActionIsRejected(t *testing.T) {
	ctx := context.Background()
	router, sess := newTestRouter(t)

	_, err := router.Dispatch(ctx, "conn-1", sess.SessionID, "speaker-1", wire.Inbound{Action: "doSomethingWeird"})
	if err == nil {
		t.Fatal("expected error for unknown action")
	}
	ae, ok := err.(*apperr.Error)
	if !ok || ae.Code != apperr.CodeValidationUnknownAction {
		t.Fatalf("expected VALIDATION_UNKNOWN_ACTION, got %v", err)
	}
}

func TestDispatchGetSessionStatusReportsLanguageDistribution(t *testing.T) {
	ctx := context.Background()
	router, sess := newTestRouter(t)

	if _, err := router.connections.RegisterListener(ctx, "l1", sess.SessionID, "fr"); err != nil {
		t.Fatalf("register listener: %v", err)
	}

	out, err := router.Dispatch(ctx, "conn-1", sess.SessionID, "speaker-1", wire.Inbound{Action: wire.ActionGetSessionStatus})
	if err != nil {
		t.Fatalf("dispatch status: %v", err)
	}
	payload, ok := out.Payload.(wire.SessionStatusPayload)
	if !ok {
		t.Fatalf("expected SessionStatusPayload, got %T", out.Payload)
	}
	if payload.LanguageDistribution["fr"] != 1 {
		t.Fatalf("expected 1 fr listener, got %v", payload.LanguageDistribution)
	}
}
