package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"activity-xp/internal/storage"

	"go.uber.org/zap"
)

type fakeDirectory struct {
	channels map[string]bool
	roles    map[string]map[string]struct{}
	fail     bool
}

func (f fakeDirectory) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	if f.fail {
		return false, errors.New("gateway timeout")
	}
	return f.channels[channelID], nil
}

func (f fakeDirectory) GuildRoleIDs(ctx context.Context, guildID string) (map[string]struct{}, error) {
	if f.fail {
		return nil, errors.New("gateway timeout")
	}
	return f.roles[guildID], nil
}

func seed(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	if err := store.UpsertGuildConfig(ctx, storage.GuildConfig{GuildID: "g1", Enabled: true, LogChannel: "gone", AutoRoles: true}); err != nil {
		t.Fatalf("upsert config: %v", err)
	}
	if err := store.UpsertGuildConfig(ctx, storage.GuildConfig{GuildID: "g2", Enabled: false, LogChannel: "gone"}); err != nil {
		t.Fatalf("upsert config: %v", err)
	}
	for level, roleID := range map[int]string{1: "alive", 10: "deleted"} {
		if _, err := store.SetLevelRole(ctx, "g1", level, roleID); err != nil {
			t.Fatalf("set role: %v", err)
		}
	}
	return store
}

func TestReconcilePrunesAndClears(t *testing.T) {
	store := seed(t)
	dir := fakeDirectory{
		channels: map[string]bool{},
		roles:    map[string]map[string]struct{}{"g1": {"alive": {}}},
	}
	svc := New(store, dir, nil, zap.NewNop(), time.Second)

	reports := svc.Reconcile(context.Background(), []string{"g1", "g2", "g3"})
	if len(reports) != 1 {
		t.Fatalf("expected only the enabled guild, got %d", len(reports))
	}
	report := reports[0]
	if !report.ClearedChannel || report.ValidRoles != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.PrunedLevels) != 1 || report.PrunedLevels[0] != 10 {
		t.Fatalf("expected level 10 pruned, got %v", report.PrunedLevels)
	}

	cfg, _, _ := store.GetGuildConfig(context.Background(), "g1")
	if cfg.LogChannel != "" {
		t.Fatalf("expected cleared channel, got %q", cfg.LogChannel)
	}
	disabled, _, _ := store.GetGuildConfig(context.Background(), "g2")
	if disabled.LogChannel != "gone" {
		t.Fatalf("disabled guild must be untouched")
	}
}

func TestReconcileKeepsSettingsOnLookupFailure(t *testing.T) {
	store := seed(t)
	svc := New(store, fakeDirectory{fail: true}, nil, zap.NewNop(), time.Second)

	reports := svc.Reconcile(context.Background(), []string{"g1"})
	if len(reports) != 1 || reports[0].ClearedChannel || len(reports[0].PrunedLevels) != 0 {
		t.Fatalf("expected no changes on failure, got %+v", reports)
	}
	roles, _ := store.ListLevelRoles(context.Background(), "g1")
	if len(roles) != 2 {
		t.Fatalf("expected roles kept, got %d", len(roles))
	}
}

func TestCheckCountsInvalidRoles(t *testing.T) {
	store := seed(t)
	dir := fakeDirectory{roles: map[string]map[string]struct{}{"g1": {"alive": {}}}}
	svc := New(store, dir, nil, zap.NewNop(), time.Second)

	health := svc.Check(context.Background(), []string{"g1"}, true)
	if health.StoreErr != nil || health.InvalidRoles != 1 || health.OK() {
		t.Fatalf("unexpected health %+v", health)
	}
	roles, _ := store.ListLevelRoles(context.Background(), "g1")
	if len(roles) != 2 {
		t.Fatalf("health check must not prune, got %d roles", len(roles))
	}
}
