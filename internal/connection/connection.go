// Package connection implements component C, the Connection Registry:
// binding a connection to a session and role, and maintaining the
// (sessionId, targetLanguage) -> {connectionId} secondary index that every
// fan-out and broadcast path queries instead of scanning.
package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kjlabs/polyglot-broadcast/internal/apperr"
	"github.com/kjlabs/polyglot-broadcast/internal/store"
)

type Role string

const (
	RoleSpeaker  Role = "speaker"
	RoleListener Role = "listener"
)

// Connection is the durable record keyed by connectionId (section 3).
type Connection struct {
	ConnectionID   string    `json:"connectionId"`
	SessionID      string    `json:"sessionId"`
	Role           Role      `json:"role"`
	TargetLanguage string    `json:"targetLanguage,omitempty"`
	UserID         string    `json:"userId,omitempty"`
	ConnectedAt    time.Time `json:"connectedAt"`
	LastHeartbeat  time.Time `json:"lastHeartbeat"`
}

type Registry struct {
	kv  store.KV
	ttl time.Duration
}

func NewRegistry(kv store.KV, ttl time.Duration) *Registry {
	return &Registry{kv: kv, ttl: ttl}
}

func connKey(id string) string { return "conn:" + id }

func sessionListenersKey(sessionID string) string { return "session-listeners:" + sessionID }

func sessionLangsKey(sessionID string) string { return "session-langs:" + sessionID }

func langIndexKey(sessionID, lang string) string { return "lang:" + sessionID + ":" + lang }

func (r *Registry) RegisterSpeaker(ctx context.Context, connID, sessionID, userID string) (*Connection, error) {
	if userID == "" {
		return nil, apperr.Auth(apperr.CodeAuthDisallowedRole, "speaker role requires an authenticated identity")
	}
	now := time.Now()
	c := &Connection{
		ConnectionID:  connID,
		SessionID:     sessionID,
		Role:          RoleSpeaker,
		UserID:        userID,
		ConnectedAt:   now,
		LastHeartbeat: now,
	}
	return c, r.put(ctx, c)
}

// RegisterListener also inserts into the language index, per section 4.C.
func (r *Registry) RegisterListener(ctx context.Context, connID, sessionID, targetLanguage string) (*Connection, error) {
	now := time.Now()
	c := &Connection{
		ConnectionID:   connID,
		SessionID:      sessionID,
		Role:           RoleListener,
		TargetLanguage: targetLanguage,
		ConnectedAt:    now,
		LastHeartbeat:  now,
	}
	if err := r.put(ctx, c); err != nil {
		return nil, err
	}
	if err := r.kv.IndexAdd(ctx, langIndexKey(sessionID, targetLanguage), connID); err != nil {
		return nil, fmt.Errorf("index listener: %w", err)
	}
	if err := r.kv.SetAdd(ctx, sessionListenersKey(sessionID), connID); err != nil {
		return nil, fmt.Errorf("track listener: %w", err)
	}
	if err := r.kv.SetAdd(ctx, sessionLangsKey(sessionID), targetLanguage); err != nil {
		return nil, fmt.Errorf("track language: %w", err)
	}
	return c, nil
}

func (r *Registry) put(ctx context.Context, c *Connection) error {
	body, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return r.kv.Put(ctx, connKey(c.ConnectionID), body, r.ttl, store.NoCondition)
}

func (r *Registry) GetConnection(ctx context.Context, connID string) (*Connection, error) {
	body, err := r.kv.Get(ctx, connKey(connID))
	if err == store.ErrNotFound {
		return nil, apperr.Resource(apperr.CodeConnectionNotFound, "connection not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	var c Connection
	if err := json.Unmarshal(body, &c); err != nil {
		return nil, fmt.Errorf("unmarshal connection: %w", err)
	}
	return &c, nil
}

// Touch stamps LastHeartbeat and refreshes the connection record's TTL,
// implementing the "heartbeat extends connection lifetime" behavior of
// component O.
func (r *Registry) Touch(ctx context.Context, connID string) (*Connection, error) {
	c, err := r.GetConnection(ctx, connID)
	if err != nil {
		return nil, err
	}
	c.LastHeartbeat = time.Now()
	if err := r.put(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListListenersByLanguage uses the secondary index -- a single query, never
// a scan (section 4.C).
func (r *Registry) ListListenersByLanguage(ctx context.Context, sessionID, targetLanguage string) ([]string, error) {
	members, err := r.kv.IndexMembers(ctx, langIndexKey(sessionID, targetLanguage))
	if err != nil {
		return nil, fmt.Errorf("list listeners by language: %w", err)
	}
	return members, nil
}

// ListListeners lists every listener connection of a session, for
// control-plane broadcast (component N).
func (r *Registry) ListListeners(ctx context.Context, sessionID string) ([]string, error) {
	members, err := r.kv.SetMembers(ctx, sessionListenersKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("list listeners: %w", err)
	}
	return members, nil
}

// RemoveConnection and DecrementListeners-adjacent bookkeeping must be
// idempotent per section 4.C's stale-handling note: removing an
// already-removed connection is a no-op, not an error.
func (r *Registry) RemoveConnection(ctx context.Context, connID string) (*Connection, error) {
	c, err := r.GetConnection(ctx, connID)
	if err != nil {
		if ae, ok := err.(*apperr.Error); ok && ae.Code == apperr.CodeConnectionNotFound {
			return nil, nil // idempotent: already gone
		}
		return nil, err
	}
	if err := r.kv.Delete(ctx, connKey(connID)); err != nil {
		return nil, err
	}
	if c.Role == RoleListener {
		_ = r.kv.IndexRemove(ctx, langIndexKey(c.SessionID, c.TargetLanguage), connID)
		_ = r.kv.SetRemove(ctx, sessionListenersKey(c.SessionID), connID)
	}
	return c, nil
}

// RemoveAllForSession tears down every listener connection tracked for a
// session, used on speaker disconnect / session end.
func (r *Registry) RemoveAllForSession(ctx context.Context, sessionID string) error {
	members, err := r.ListListeners(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, connID := range members {
		if _, err := r.RemoveConnection(ctx, connID); err != nil {
			return err
		}
	}
	return nil
}

// ListUniqueTargetLanguages discovers every distinct target language
// currently present on a session, used by the fan-out orchestrator
// (component I, step 2). Backed by a language-tag set maintained alongside
// the per-language index: one set read plus one index query per language,
// never a scan. A language whose per-language index is found empty (or
// cannot be read) is removed from the set here and left out of the result,
// rather than eagerly on every disconnect.
func (r *Registry) ListUniqueTargetLanguages(ctx context.Context, sessionID string) ([]string, error) {
	langs, err := r.kv.SetMembers(ctx, sessionLangsKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("list unique target languages: %w", err)
	}
	live := langs[:0]
	for _, lang := range langs {
		members, err := r.ListListenersByLanguage(ctx, sessionID, lang)
		if err == nil && len(members) > 0 {
			live = append(live, lang)
		} else {
			_ = r.kv.SetRemove(ctx, sessionLangsKey(sessionID), lang)
		}
	}
	return live, nil
}
