// Package heartbeat implements component O, heartbeat handling and
// connection-lifetime management: recording liveness on every inbound
// heartbeat, closing connections that stop sending them, and warning a
// connection before its maximum lifetime forces a reconnect.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjlabs/polyglot-broadcast/internal/connection"
	"github.com/kjlabs/polyglot-broadcast/internal/wire"
)

// Reconnector issues the optional presigned reconnect URL carried on the
// connectionRefresh message. Nil is a valid Monitor configuration: the
// refresh message is still sent, just without a URL, leaving the client to
// reconnect using its existing credentials.
type Reconnector interface {
	PresignReconnectURL(ctx context.Context, sessionID, connectionID string) (string, error)
}

// Config holds component O's tunables: WarningAt is the connection age at
// which a connectionWarning (carrying the time left until RefreshAt) is
// sent, RefreshAt is the connection age at which a connectionRefresh is
// sent instead, and MissedTimeout is how long without a heartbeat before
// the connection is considered dead.
type Config struct {
	WarningAt     time.Duration
	RefreshAt     time.Duration
	MissedTimeout time.Duration
}

// Monitor tracks per-connection liveness in-process (the hot path the
// owning connection actor polls), while connection.Registry.Touch keeps
// the durable record's TTL and LastHeartbeat in sync for any other process
// that needs it.
type Monitor struct {
	connections *connection.Registry
	reconnector Reconnector
	cfg         Config
	log         *zap.Logger

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func NewMonitor(connections *connection.Registry, reconnector Reconnector, cfg Config, log *zap.Logger) *Monitor {
	return &Monitor{
		connections: connections,
		reconnector: reconnector,
		cfg:         cfg,
		log:         log,
		lastSeen:    make(map[string]time.Time),
	}
}

// HandleHeartbeat implements section 4.O's inbound path: persist the
// beat, then compute whether a connectionWarning or connectionRefresh
// message is due based on the connection's age, alongside the plain ack.
func (m *Monitor) HandleHeartbeat(ctx context.Context, connID string) ([]wire.Outbound, error) {
	c, err := m.connections.Touch(ctx, connID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.lastSeen[connID] = time.Now()
	m.mu.Unlock()

	age := time.Since(c.ConnectedAt)
	now := time.Now().UnixMilli()

	out := []wire.Outbound{{
		Type:      wire.TypeHeartbeatAck,
		Timestamp: now,
		SessionID: c.SessionID,
	}}

	switch {
	case age >= m.cfg.RefreshAt:
		var url string
		if m.reconnector != nil {
			if u, err := m.reconnector.PresignReconnectURL(ctx, c.SessionID, connID); err == nil {
				url = u
			} else if m.log != nil {
				m.log.Warn("⚠️ failed to presign reconnect url", zap.String("connectionId", connID), zap.Error(err))
			}
		}
		out = append(out, wire.Outbound{
			Type:      wire.TypeConnectionRefresh,
			Timestamp: now,
			SessionID: c.SessionID,
			Payload: wire.ConnectionRefreshPayload{
				NewConnectionURL: url,
				ExpiresIn:        int64(m.cfg.RefreshAt.Milliseconds()),
			},
		})
	case age >= m.cfg.WarningAt:
		remaining := m.cfg.RefreshAt - age
		out = append(out, wire.Outbound{
			Type:      wire.TypeConnectionWarning,
			Timestamp: now,
			SessionID: c.SessionID,
			Payload: wire.ConnectionWarningPayload{
				RemainingMinutes: int(remaining.Round(time.Minute) / time.Minute),
			},
		})
	}

	return out, nil
}

// Register starts tracking connID for missed-heartbeat timeout and
// returns a stop func to call when the connection is torn down for any
// other reason, so the watcher goroutine doesn't leak.
func (m *Monitor) Register(ctx context.Context, connID string, onTimeout func()) (stop func()) {
	m.mu.Lock()
	m.lastSeen[connID] = time.Now()
	m.mu.Unlock()

	watchCtx, cancel := context.WithCancel(ctx)
	go m.watch(watchCtx, connID, onTimeout)

	return func() {
		cancel()
		m.mu.Lock()
		delete(m.lastSeen, connID)
		m.mu.Unlock()
	}
}

// watch polls lastSeen for connID at a quarter of the missed-heartbeat
// timeout and fires onTimeout once, the first time the gap is exceeded.
func (m *Monitor) watch(ctx context.Context, connID string, onTimeout func()) {
	interval := m.cfg.MissedTimeout / 4
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			seen, ok := m.lastSeen[connID]
			m.mu.Unlock()
			if !ok {
				return
			}
			if time.Since(seen) > m.cfg.MissedTimeout {
				if m.log != nil {
					m.log.Info("💔 connection missed heartbeat deadline", zap.String("connectionId", connID))
				}
				onTimeout()
				return
			}
		}
	}
}
