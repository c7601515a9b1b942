package audit

import (
	"context"
	"testing"
	"time"

	"activity-xp/internal/storage"

	"go.uber.org/zap"
)

func TestLogPersistsAndCleanup(t *testing.T) {
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	now := time.Unix(1_700_000_000, 0)
	logger := NewLogger(store, zap.NewNop())
	logger.now = func() time.Time { return now.Add(-40 * 24 * time.Hour) }
	logger.Log(context.Background(), "g1", "u1", EventXPAward, "Playing: Foo", 24)
	logger.now = func() time.Time { return now }
	logger.Log(context.Background(), "g1", "u1", EventLevelUp, "level 3", 0)

	logs, err := store.ListAuditLogs(context.Background(), "g1", time.Unix(0, 0))
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(logs) != 2 || logs[0].Event != EventLevelUp || logs[1].XP != 24 {
		t.Fatalf("unexpected logs %+v", logs)
	}

	removed, err := logger.Cleanup(context.Background(), 30)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
}
