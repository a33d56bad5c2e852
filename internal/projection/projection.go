// Package projection maintains a durable, queryable snapshot of session
// lifecycle in Postgres via GORM -- the "durable projection" named in
// section 5 alongside the hot Redis-backed KV store. It is operational
// visibility only (dashboards, after-the-fact auditing of who broadcast
// when): no transcript or audio content is ever written here, per the
// explicit Non-goal on durable content storage.
package projection

import (
	"context"
	"time"

	"gorm.io/gorm"

	"go.uber.org/zap"

	"github.com/kjlabs/polyglot-broadcast/internal/session"
)

// SessionSnapshot is the row shape: one row per session, upserted on every
// sync pass and marked ended once the session leaves the active set.
type SessionSnapshot struct {
	SessionID      string `gorm:"primaryKey"`
	SpeakerID      string
	SourceLanguage string
	QualityTier    string
	ListenerCount  int64
	CreatedAt      time.Time
	EndedAt        *time.Time
}

func (SessionSnapshot) TableName() string { return "session_snapshots" }

// Writer periodically reconciles the active-session set against Postgres.
type Writer struct {
	db        *gorm.DB
	sessions  *session.Registry
	interval  time.Duration
	log       *zap.Logger
}

func NewWriter(db *gorm.DB, sessions *session.Registry, interval time.Duration, log *zap.Logger) *Writer {
	return &Writer{db: db, sessions: sessions, interval: interval, log: log}
}

// AutoMigrate creates/updates the session_snapshots table.
func (w *Writer) AutoMigrate() error {
	return w.db.AutoMigrate(&SessionSnapshot{})
}

// Run syncs on a ticker until ctx is cancelled.
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.SyncOnce(ctx); err != nil && w.log != nil {
				w.log.Warn("⚠️ session projection sync failed", zap.Error(err))
			}
		}
	}
}

// SyncOnce upserts a row for every currently-active session, then marks
// ended any previously-open row no longer in the active set.
func (w *Writer) SyncOnce(ctx context.Context) error {
	activeIDs, err := w.sessions.ListActiveSessionIDs(ctx)
	if err != nil {
		return err
	}
	active := make(map[string]struct{}, len(activeIDs))

	for _, id := range activeIDs {
		sess, err := w.sessions.GetSession(ctx, id)
		if err != nil {
			continue
		}
		active[id] = struct{}{}

		row := SessionSnapshot{
			SessionID:      sess.SessionID,
			SpeakerID:      sess.SpeakerID,
			SourceLanguage: sess.SourceLanguage,
			QualityTier:    string(sess.QualityTier),
			ListenerCount:  sess.ListenerCount,
			CreatedAt:      sess.CreatedAt,
		}
		if err := w.db.WithContext(ctx).Save(&row).Error; err != nil {
			return err
		}
	}

	var open []SessionSnapshot
	if err := w.db.WithContext(ctx).Where("ended_at IS NULL").Find(&open).Error; err != nil {
		return err
	}
	now := time.Now()
	for _, row := range open {
		if _, ok := active[row.SessionID]; ok {
			continue
		}
		if err := w.db.WithContext(ctx).Model(&SessionSnapshot{}).
			Where("session_id = ?", row.SessionID).
			Update("ended_at", now).Error; err != nil {
			return err
		}
	}
	return nil
}
