package projection

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjlabs/polyglot-broadcast/internal/session"
	"github.com/kjlabs/polyglot-broadcast/internal/store"
)

// SyncOnce and AutoMigrate drive Postgres via GORM and aren't exercised
// here -- no sqlite or in-memory GORM driver is wired into this module, so
// they're left for integration testing against a real database. This test
// only covers the row-shape and constructor wiring that don't need one.

func TestSessionSnapshotTableName(t *testing.T) {
	if (SessionSnapshot{}).TableName() != "session_snapshots" {
		t.Fatalf("unexpected table name: %s", (SessionSnapshot{}).TableName())
	}
}

func TestNewWriterWiresSessionsRegistry(t *testing.T) {
	kv := store.NewMemoryKV()
	sessions := session.NewRegistry(kv, 10, 3, time.Millisecond, time.Hour, zap.NewNop())

	w := NewWriter(nil, sessions, time.Minute, zap.NewNop())
	if w.sessions != sessions {
		t.Fatal("expected writer to retain the sessions registry it was given")
	}
	if w.interval != time.Minute {
		t.Fatalf("expected interval to be retained, got %v", w.interval)
	}
}
