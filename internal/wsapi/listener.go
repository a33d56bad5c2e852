package wsapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjlabs/polyglot-broadcast/internal/apperr"
	"github.com/kjlabs/polyglot-broadcast/internal/ratelimit"
	"github.com/kjlabs/polyglot-broadcast/internal/wire"
)

// HandleListener is the WS connection actor for a listener: joins a
// session's per-language fan-out index, then idles reading only control
// and heartbeat frames while the broadcast handler (component M) pushes
// translated audio through the hub's outbound queue for this connection.
func (d *Deps) HandleListener(c *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionID := c.Query("sessionId")
	targetLanguage := c.Query("targetLanguage")
	token := c.Query("token")

	var userID string
	if token != "" {
		identity, err := d.Validator.Validate(ctx, token)
		if err != nil {
			d.closeWithError(c, err)
			return
		}
		userID = identity.UserID
	}

	connID := uuid.NewString()
	if token == "" {
		if identity := d.Validator.AnonymousListener(connID); identity == nil {
			d.closeWithError(c, apperr.Auth(apperr.CodeAuthMissingToken, "anonymous listening is disabled"))
			return
		}
	}

	if _, err := d.Limiter.Check(ctx, ratelimit.OpListenerJoin, "ip", c.RemoteAddr().String()); err != nil {
		d.closeWithError(c, err)
		return
	}

	sess, err := d.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		d.closeWithError(c, err)
		return
	}
	if !sess.IsActive {
		d.closeWithError(c, apperr.Resource(apperr.CodeSessionInactive, "session is not active"))
		return
	}

	if _, err := d.Connections.RegisterListener(ctx, connID, sessionID, targetLanguage); err != nil {
		d.closeWithError(c, err)
		return
	}
	listenerCount, err := d.Sessions.IncrementListeners(ctx, sessionID)
	if err != nil {
		d.closeWithError(c, err)
		return
	}

	stopHub := d.Hub.Register(connID, c)
	stopHeartbeat := d.Heartbeat.Register(ctx, connID, func() {
		d.Log.Info("💔 listener connection timed out", zap.String("sessionId", sessionID), zap.String("connectionId", connID))
		cancel()
	})
	defer func() {
		stopHeartbeat()
		stopHub()
		_, _ = d.Connections.RemoveConnection(context.Background(), connID)
		_, _ = d.Sessions.DecrementListeners(context.Background(), sessionID)
	}()

	d.Hub.SendJSON(connID, wire.Outbound{
		Type:      wire.TypeListenerJoined,
		Timestamp: time.Now().UnixMilli(),
		SessionID: sessionID,
		Payload: wire.ListenerJoinedPayload{
			ListenerCount:  listenerCount,
			TargetLanguage: targetLanguage,
		},
	})

	for {
		msgType, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		if _, err := d.Limiter.Check(ctx, ratelimit.OpControlMessage, "connection", connID); err != nil {
			d.sendError(connID, err)
			continue
		}

		var in wire.Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			d.sendError(connID, apperr.Validation(apperr.CodeValidationMissingField, "malformed control message"))
			continue
		}

		if in.Action == wire.ActionHeartbeat {
			if _, err := d.Limiter.Check(ctx, ratelimit.OpHeartbeat, "connection", connID); err != nil {
				d.sendError(connID, err)
				continue
			}
			acks, err := d.Heartbeat.HandleHeartbeat(ctx, connID)
			if err != nil {
				d.sendError(connID, err)
				continue
			}
			for _, ack := range acks {
				d.Hub.SendJSON(connID, ack)
			}
			continue
		}

		if in.Action == wire.ActionGetSessionStatus {
			out, err := d.Control.Dispatch(ctx, connID, sessionID, userID, in)
			if err != nil {
				d.sendError(connID, err)
				continue
			}
			d.Hub.SendJSON(connID, out)
			continue
		}

		// Listeners may not issue broadcast-control actions (pause/mute/...);
		// control.Router itself rejects non-owner callers, but checking the
		// action set here avoids touching the session record at all.
		d.sendError(connID, apperr.Auth(apperr.CodeAuthForbidden, "listeners cannot issue broadcast control actions"))
	}
}
