package wsapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kjlabs/polyglot-broadcast/internal/apperr"
	"github.com/kjlabs/polyglot-broadcast/internal/ratelimit"
	"github.com/kjlabs/polyglot-broadcast/internal/session"
	"github.com/kjlabs/polyglot-broadcast/internal/wire"
)

// writeErr renders an *apperr.Error as the REST surface's JSON error body
// (section 7: REST and WS share one wire shape).
func writeErr(c *fiber.Ctx, err error) error {
	ae, ok := err.(*apperr.Error)
	if !ok {
		ae = apperr.Fatal(apperr.CodeInternalUnexpected, "unexpected error", err)
	}
	return c.Status(ae.HTTPStatus()).JSON(fiber.Map{"error": ae.Wire()})
}

type createSessionRequest struct {
	SourceLanguage string `json:"sourceLanguage"`
	QualityTier    string `json:"qualityTier"`
}

// CreateSession handles POST /sessions: the authenticated caller becomes
// the session's speaker (section 4.B / 6).
func (d *Deps) CreateSession(c *fiber.Ctx) error {
	identity, ok := c.Locals("identity").(*authIdentity)
	if !ok || identity.UserID == "" {
		return writeErr(c, apperr.Auth(apperr.CodeAuthMissingToken, "session creation requires an authenticated speaker"))
	}
	if _, err := d.Limiter.Check(c.Context(), ratelimit.OpSessionCreate, "user", identity.UserID); err != nil {
		return writeErr(c, err)
	}

	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return writeErr(c, apperr.Validation(apperr.CodeValidationMissingField, "invalid request body"))
	}
	tier := session.QualityStandard
	if req.QualityTier == string(session.QualityPremium) {
		tier = session.QualityPremium
	}

	sess, err := d.Sessions.CreateSession(c.Context(), identity.UserID, req.SourceLanguage, tier, d.Cfg.Session.DefaultTTL)
	if err != nil {
		return writeErr(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"sessionId":   sess.SessionID,
		"expiresAt":   sess.ExpiresAt.UnixMilli(),
		"qualityTier": sess.QualityTier,
	})
}

// GetSession handles GET /sessions/:sessionId: public status, used by
// listeners deciding whether to join (section 6).
func (d *Deps) GetSession(c *fiber.Ctx) error {
	sess, err := d.Sessions.GetSession(c.Context(), c.Params("sessionId"))
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(fiber.Map{
		"sessionId":      sess.SessionID,
		"sourceLanguage": sess.SourceLanguage,
		"isActive":       sess.IsActive,
		"qualityTier":    sess.QualityTier,
		"listenerCount":  sess.ListenerCount,
		"broadcastState": sess.BroadcastState,
	})
}

type patchSessionRequest struct {
	Action string   `json:"action"`
	Volume *float64 `json:"volume"`
}

// PatchSession handles PATCH /sessions/:sessionId: the REST equivalent of
// the WS control actions, routed through the same control.Router so REST
// and WS never diverge in authorization or state-transition logic.
func (d *Deps) PatchSession(c *fiber.Ctx) error {
	identity, ok := c.Locals("identity").(*authIdentity)
	if !ok {
		return writeErr(c, apperr.Auth(apperr.CodeAuthMissingToken, "missing bearer token"))
	}

	var req patchSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return writeErr(c, apperr.Validation(apperr.CodeValidationMissingField, "invalid request body"))
	}

	out, err := d.Control.Dispatch(c.Context(), "rest:"+identity.UserID, c.Params("sessionId"), identity.UserID, wire.Inbound{
		Action: req.Action,
		Volume: req.Volume,
	})
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(out)
}

// DeleteSession handles DELETE /sessions/:sessionId: the owning speaker
// ends the broadcast, tearing down every listener connection.
func (d *Deps) DeleteSession(c *fiber.Ctx) error {
	identity, ok := c.Locals("identity").(*authIdentity)
	if !ok {
		return writeErr(c, apperr.Auth(apperr.CodeAuthMissingToken, "missing bearer token"))
	}
	sessionID := c.Params("sessionId")

	sess, err := d.Sessions.GetSession(c.Context(), sessionID)
	if err != nil {
		return writeErr(c, err)
	}
	if sess.SpeakerID != identity.UserID {
		return writeErr(c, apperr.Auth(apperr.CodeAuthForbidden, "only the broadcasting speaker may end the session"))
	}

	if err := d.Sessions.MarkInactive(c.Context(), sessionID); err != nil {
		return writeErr(c, err)
	}
	if err := d.Connections.RemoveAllForSession(c.Context(), sessionID); err != nil {
		return writeErr(c, err)
	}
	d.ASR.CloseForSpeaker(sessionID)

	return c.SendStatus(fiber.StatusNoContent)
}

// Health handles GET /health.
func (d *Deps) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
