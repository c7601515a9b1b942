package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"activity-xp/internal/errs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func setXP(t *testing.T, store *Store, guildID, userID string, xp int) {
	t.Helper()
	err := store.UpdateProgress(context.Background(), guildID, userID, func(p *Progress) (bool, error) {
		p.XP.XP = xp
		return true, nil
	})
	if err != nil {
		t.Fatalf("set xp %s: %v", userID, err)
	}
}

func setStreak(t *testing.T, store *Store, guildID, userID, label string, hours int) {
	t.Helper()
	now := time.Unix(1_700_000_000, 0)
	err := store.UpdateProgress(context.Background(), guildID, userID, func(p *Progress) (bool, error) {
		p.HasStreak = true
		p.Streak = Streak{Label: label, Hours: hours, StartedAt: now, LastUpdate: now, Active: true}
		return true, nil
	})
	if err != nil {
		t.Fatalf("set streak %s: %v", userID, err)
	}
}

func TestUpsertGuildConfig(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cfg, found, err := store.GetGuildConfig(ctx, "g1")
	if err != nil {
		t.Fatalf("get missing config: %v", err)
	}
	if found || cfg.Enabled {
		t.Fatalf("expected missing disabled config, got %+v", cfg)
	}

	cfg = GuildConfig{GuildID: "g1", Enabled: true, LogChannel: "c1", AutoRoles: true}
	if err := store.UpsertGuildConfig(ctx, cfg); err != nil {
		t.Fatalf("upsert guild config: %v", err)
	}
	cfg.LogChannel = "c2"
	cfg.TargetRole = "r1"
	if err := store.UpsertGuildConfig(ctx, cfg); err != nil {
		t.Fatalf("update guild config: %v", err)
	}

	got, found, err := store.GetGuildConfig(ctx, "g1")
	if err != nil {
		t.Fatalf("get guild config: %v", err)
	}
	if !found || !got.Enabled || got.LogChannel != "c2" || got.TargetRole != "r1" {
		t.Fatalf("unexpected config %+v", got)
	}

	if err := store.ClearLogChannel(ctx, "g1"); err != nil {
		t.Fatalf("clear log channel: %v", err)
	}
	got, _, _ = store.GetGuildConfig(ctx, "g1")
	if got.LogChannel != "" {
		t.Fatalf("expected cleared channel, got %q", got.LogChannel)
	}
}

func TestUpdateProgressKeepsLevelConsistent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, xp := range []int{0, 99, 100, 250, 1999} {
		setXP(t, store, "g1", "u1", xp)
		got, err := store.GetUserXP(ctx, "g1", "u1")
		if err != nil {
			t.Fatalf("get xp: %v", err)
		}
		if got.XP != xp || got.Level != xp/100 {
			t.Fatalf("xp %d: got xp=%d level=%d", xp, got.XP, got.Level)
		}
	}
}

func TestUpdateProgressSkipsWrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.UpdateProgress(ctx, "g1", "u1", func(p *Progress) (bool, error) {
		p.XP.XP = 500
		return false, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.GetUserXP(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("get xp: %v", err)
	}
	if got.XP != 0 {
		t.Fatalf("expected no write, got xp=%d", got.XP)
	}
}

func TestUpdateProgressWritesStreakAndXPTogether(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	err := store.UpdateProgress(ctx, "g1", "u1", func(p *Progress) (bool, error) {
		p.XP.XP = 40
		p.XP.LastAwardAt = &now
		p.HasStreak = true
		p.Streak = Streak{Label: "Playing: Foo", Hours: 2, StartedAt: now, LastUpdate: now, Active: true}
		return true, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	xp, _ := store.GetUserXP(ctx, "g1", "u1")
	if xp.LastAwardAt == nil || !xp.LastAwardAt.Equal(now) {
		t.Fatalf("expected last award %v, got %v", now, xp.LastAwardAt)
	}
	streak, found, err := store.GetStreak(ctx, "g1", "u1")
	if err != nil || !found {
		t.Fatalf("get streak: found=%v err=%v", found, err)
	}
	if streak.Label != "Playing: Foo" || streak.Hours != 2 || !streak.Active {
		t.Fatalf("unexpected streak %+v", streak)
	}
}

func TestLeaderboardTieBreak(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	setXP(t, store, "g1", "2000", 300)
	setXP(t, store, "g1", "50", 50)
	setXP(t, store, "g1", "999", 300)
	setXP(t, store, "g1", "77", 0)

	board, err := store.GetLeaderboard(ctx, "g1", 10, 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	want := []string{"999", "2000", "50"}
	if len(board) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(board))
	}
	for i, id := range want {
		if board[i].UserID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, board[i].UserID)
		}
	}

	rank, err := store.GetRank(ctx, "g1", "2000")
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if rank != 2 {
		t.Fatalf("expected rank 2, got %d", rank)
	}
	if rank, _ := store.GetRank(ctx, "g1", "77"); rank != 0 {
		t.Fatalf("expected unranked member, got %d", rank)
	}
	total, err := store.CountRanked(ctx, "g1")
	if err != nil || total != 3 {
		t.Fatalf("expected 3 ranked, got %d (%v)", total, err)
	}

	page, err := store.GetLeaderboard(ctx, "g1", 2, 2)
	if err != nil {
		t.Fatalf("leaderboard page: %v", err)
	}
	if len(page) != 1 || page[0].UserID != "50" {
		t.Fatalf("unexpected second page %+v", page)
	}
}

func TestTopStreaksExcludeCustom(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	setStreak(t, store, "g1", "1", "Playing: Foo", 3)
	setStreak(t, store, "g1", "2", "Custom: vibing", 9)
	setStreak(t, store, "g1", "3", "Spotify", 5)

	streaks, err := store.GetTopStreaks(ctx, "g1", 10)
	if err != nil {
		t.Fatalf("top streaks: %v", err)
	}
	if len(streaks) != 2 {
		t.Fatalf("expected 2 streaks, got %d", len(streaks))
	}
	if streaks[0].UserID != "3" || streaks[1].UserID != "1" {
		t.Fatalf("unexpected order %+v", streaks)
	}
}

func TestLevelRoles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.SetLevelRole(ctx, "g1", 10, "roleB"); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if _, err := store.SetLevelRole(ctx, "g1", 1, "roleA"); err != nil {
		t.Fatalf("set role: %v", err)
	}
	previous, err := store.SetLevelRole(ctx, "g1", 10, "roleC")
	if err != nil {
		t.Fatalf("edit role: %v", err)
	}
	if previous != "roleB" {
		t.Fatalf("expected previous roleB, got %q", previous)
	}

	roles, err := store.ListLevelRoles(ctx, "g1")
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	if len(roles) != 2 || roles[0].Level != 1 || roles[1].RoleID != "roleC" {
		t.Fatalf("unexpected roles %+v", roles)
	}

	levels, err := store.PruneRole(ctx, "g1", "roleC")
	if err != nil {
		t.Fatalf("prune role: %v", err)
	}
	if len(levels) != 1 || levels[0] != 10 {
		t.Fatalf("expected level 10 pruned, got %v", levels)
	}
	if _, found, _ := store.GetLevelRole(ctx, "g1", 10); found {
		t.Fatalf("expected level 10 removed")
	}
	removed, err := store.DeleteLevelRole(ctx, "g1", 1)
	if err != nil || !removed {
		t.Fatalf("delete role: removed=%v err=%v", removed, err)
	}
}

func TestBackupRestore(t *testing.T) {
	source := newTestStore(t)
	ctx := context.Background()

	setXP(t, source, "g1", "u1", 420)
	setStreak(t, source, "g1", "u1", "Spotify", 4)
	if _, err := source.SetLevelRole(ctx, "g1", 1, "roleA"); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if err := source.UpsertGuildConfig(ctx, GuildConfig{GuildID: "g1", Enabled: true, LogChannel: "c1", AutoRoles: true}); err != nil {
		t.Fatalf("upsert config: %v", err)
	}

	backup, err := source.Export(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	path, err := SaveBackupFile(t.TempDir(), "g1", backup)
	if err != nil {
		t.Fatalf("save backup: %v", err)
	}
	decoded, err := LoadBackupFile(path)
	if err != nil {
		t.Fatalf("load backup: %v", err)
	}

	target := newTestStore(t)
	if err := target.Import(ctx, decoded); err != nil {
		t.Fatalf("import: %v", err)
	}
	xp, _ := target.GetUserXP(ctx, "g1", "u1")
	if xp.XP != 420 || xp.Level != 4 {
		t.Fatalf("unexpected restored xp %+v", xp)
	}
	streak, found, _ := target.GetStreak(ctx, "g1", "u1")
	if !found || streak.Hours != 4 {
		t.Fatalf("unexpected restored streak %+v", streak)
	}
	cfg, found, _ := target.GetGuildConfig(ctx, "g1")
	if !found || cfg.LogChannel != "c1" {
		t.Fatalf("unexpected restored config %+v", cfg)
	}
	roleID, found, _ := target.GetLevelRole(ctx, "g1", 1)
	if !found || roleID != "roleA" {
		t.Fatalf("unexpected restored role %q", roleID)
	}
}

func TestCleanupAuditLogs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	old := AuditLog{GuildID: "g1", UserID: "u1", Event: "xp_award", XP: 10, CreatedAt: now.Add(-48 * time.Hour)}
	fresh := AuditLog{GuildID: "g1", UserID: "u1", Event: "level_up", CreatedAt: now}
	if err := store.AddAuditLog(ctx, old); err != nil {
		t.Fatalf("add audit: %v", err)
	}
	if err := store.AddAuditLog(ctx, fresh); err != nil {
		t.Fatalf("add audit: %v", err)
	}

	removed, err := store.CleanupAuditLogs(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	logs, err := store.ListAuditLogs(ctx, "g1", time.Unix(0, 0))
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(logs) != 1 || logs[0].Event != "level_up" {
		t.Fatalf("unexpected logs %+v", logs)
	}
}

func TestLastAwardKeepsMilliseconds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	awarded := time.Unix(1_700_000_000, 900_000_000)

	err := store.UpdateProgress(ctx, "g1", "u1", func(p *Progress) (bool, error) {
		p.XP.XP = 10
		p.XP.LastAwardAt = &awarded
		return true, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	xp, err := store.GetUserXP(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("get xp: %v", err)
	}
	if xp.LastAwardAt == nil || !xp.LastAwardAt.Equal(awarded) {
		t.Fatalf("expected last award %v, got %v", awarded, xp.LastAwardAt)
	}
}

func TestImportVersionOneBackupInSeconds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seconds := int64(1_700_000_000)

	backup := Backup{Version: 1, UserXP: []BackupUserXP{{GuildID: "g1", UserID: "u1", XP: 150, LastAwardAt: &seconds}}}
	if err := store.Import(ctx, backup); err != nil {
		t.Fatalf("import: %v", err)
	}
	xp, _ := store.GetUserXP(ctx, "g1", "u1")
	if xp.LastAwardAt == nil || !xp.LastAwardAt.Equal(time.Unix(seconds, 0)) {
		t.Fatalf("unexpected last award %v", xp.LastAwardAt)
	}

	exported, err := store.Export(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exported.Version != backupVersion || *exported.UserXP[0].LastAwardAt != seconds*1000 {
		t.Fatalf("unexpected export %+v", exported.UserXP[0])
	}
}

func TestClassifyBusyDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "busy.db")

	holder, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open holder: %v", err)
	}
	defer holder.Close()
	if _, err := holder.Exec(`CREATE TABLE t (v INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	conn, err := holder.Conn(ctx)
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, `BEGIN EXCLUSIVE`); err != nil {
		t.Fatalf("begin exclusive: %v", err)
	}
	defer conn.ExecContext(ctx, `ROLLBACK`)

	other, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(0)")
	if err != nil {
		t.Fatalf("open other: %v", err)
	}
	defer other.Close()
	_, err = other.Exec(`INSERT INTO t (v) VALUES (1)`)
	if err == nil {
		t.Fatalf("expected a busy error while the database is locked")
	}
	if !errs.Is(classify("write", err), errs.KindTransient) {
		t.Fatalf("expected busy error to be transient, got %v", err)
	}

	if errs.Is(classify("write", errors.New("database is locked")), errs.KindTransient) {
		t.Fatalf("plain errors must not be treated as busy")
	}
}
