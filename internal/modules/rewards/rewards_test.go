package rewards

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"activity-xp/internal/errs"
	"activity-xp/internal/retry"
	"activity-xp/internal/storage"

	"go.uber.org/zap"
)

type fakeMembers struct {
	mu      sync.Mutex
	roles   map[string][]string
	deny    map[string]error
	calls   int
	flakes  int
	created int
}

func newFakeMembers() *fakeMembers {
	return &fakeMembers{roles: make(map[string][]string), deny: make(map[string]error)}
}

func (f *fakeMembers) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flakes > 0 {
		f.flakes--
		return nil, errs.E(errs.KindTransient, "member", errors.New("rate limited"))
	}
	return slices.Clone(f.roles[userID]), nil
}

func (f *fakeMembers) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.deny[roleID]; err != nil {
		return err
	}
	f.roles[userID] = append(f.roles[userID], roleID)
	return nil
}

func (f *fakeMembers) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.deny[roleID]; err != nil {
		return err
	}
	f.roles[userID] = slices.DeleteFunc(f.roles[userID], func(r string) bool { return r == roleID })
	return nil
}

func (f *fakeMembers) CreateRole(ctx context.Context, guildID, name string, color int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return fmt.Sprintf("role-%d", f.created), nil
}

func newTestSyncer(t *testing.T) (*Syncer, *fakeMembers, *storage.Store) {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	members := newFakeMembers()
	cfg := Config{
		CallTimeout:   time.Second,
		Retry:         retry.Policy{Attempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond},
		BulkPerSecond: 1000,
		BulkBurst:     100,
	}
	return NewSyncer(store, members, cfg, zap.NewNop()), members, store
}

func seedXP(t *testing.T, store *storage.Store, userID string, xp int) {
	t.Helper()
	err := store.UpdateProgress(context.Background(), "g1", userID, func(p *storage.Progress) (bool, error) {
		p.XP.XP = xp
		return true, nil
	})
	if err != nil {
		t.Fatalf("seed xp: %v", err)
	}
}

var tiers = []Tier{{Level: 1, RoleID: "roleA"}, {Level: 10, RoleID: "roleB"}}

func TestResolveRole(t *testing.T) {
	if _, ok := ResolveRole(0, tiers); ok {
		t.Fatalf("expected no role below every threshold")
	}
	if tier, _ := ResolveRole(7, tiers); tier.RoleID != "roleA" {
		t.Fatalf("expected roleA at level 7, got %s", tier.RoleID)
	}
	if tier, _ := ResolveRole(12, tiers); tier.RoleID != "roleB" {
		t.Fatalf("expected roleB at level 12, got %s", tier.RoleID)
	}
	unordered := []Tier{{Level: 10, RoleID: "roleB"}, {Level: 1, RoleID: "roleA"}}
	if tier, _ := ResolveRole(10, unordered); tier.RoleID != "roleB" {
		t.Fatalf("expected roleB regardless of order, got %s", tier.RoleID)
	}
}

func TestApplyRoleReplacesLowerTierAndIsIdempotent(t *testing.T) {
	syncer, members, _ := newTestSyncer(t)
	ctx := context.Background()
	members.roles["u1"] = []string{"roleA", "unrelated"}

	res, err := syncer.ApplyRole(ctx, "g1", "u1", 12, tiers)
	if err != nil {
		t.Fatalf("apply role: %v", err)
	}
	if !res.Granted || len(res.Removed) != 1 || res.Removed[0] != "roleA" {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := members.roles["u1"]; !slices.Equal(got, []string{"unrelated", "roleB"}) {
		t.Fatalf("unexpected roles %v", got)
	}

	calls := members.calls
	res, err = syncer.ApplyRole(ctx, "g1", "u1", 12, tiers)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if res.Changed() || members.calls != calls {
		t.Fatalf("expected no further changes, got %+v with %d calls", res, members.calls-calls)
	}
}

func TestApplyRoleNoQualifyingRole(t *testing.T) {
	syncer, members, _ := newTestSyncer(t)
	res, err := syncer.ApplyRole(context.Background(), "g1", "u1", 0, tiers)
	if err != nil || res.Changed() || members.calls != 0 {
		t.Fatalf("expected no-op, got %+v %v", res, err)
	}
}

func TestApplyRoleRetriesTransientLookup(t *testing.T) {
	syncer, members, _ := newTestSyncer(t)
	members.flakes = 2

	res, err := syncer.ApplyRole(context.Background(), "g1", "u1", 3, tiers)
	if err != nil {
		t.Fatalf("apply role: %v", err)
	}
	if !res.Granted {
		t.Fatalf("expected grant after retries, got %+v", res)
	}
}

func TestApplyRolePartialFailureKeepsGoing(t *testing.T) {
	syncer, members, _ := newTestSyncer(t)
	members.roles["u1"] = []string{"roleA"}
	members.deny["roleA"] = errs.E(errs.KindPermission, "role.remove", errors.New("missing permissions"))

	res, err := syncer.ApplyRole(context.Background(), "g1", "u1", 12, tiers)
	if err != nil {
		t.Fatalf("apply role: %v", err)
	}
	if !res.Granted || len(res.Failures) != 1 || res.Failures[0].RoleID != "roleA" {
		t.Fatalf("expected grant with one removal failure, got %+v", res)
	}
}

func TestBulkSyncCountsAndPrunes(t *testing.T) {
	syncer, members, store := newTestSyncer(t)
	ctx := context.Background()
	if _, err := store.SetLevelRole(ctx, "g1", 1, "roleA"); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if _, err := store.SetLevelRole(ctx, "g1", 10, "roleB"); err != nil {
		t.Fatalf("set role: %v", err)
	}

	seedXP(t, store, "1", 1500) // needs roleB
	seedXP(t, store, "2", 300)  // already holds roleA
	seedXP(t, store, "3", 1100) // holds the lower tier
	members.roles["2"] = []string{"roleA"}
	members.roles["3"] = []string{"roleA"}

	report, err := syncer.BulkSync(ctx, "g1", 1)
	if err != nil {
		t.Fatalf("bulk sync: %v", err)
	}
	if report.Changed != 2 || report.AlreadyCorrect != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	members.roles["3"] = []string{"roleA"}
	members.roles["1"] = nil
	members.deny["roleB"] = errs.E(errs.KindDataIntegrity, "role.add", errors.New("unknown role"))
	report, err = syncer.BulkSync(ctx, "g1", 1)
	if err != nil {
		t.Fatalf("bulk sync: %v", err)
	}
	if report.Failed != 1 {
		t.Fatalf("expected one failure, got %+v", report)
	}
	if len(report.Pruned) != 1 || report.Pruned[0] != 10 {
		t.Fatalf("expected level 10 pruned, got %v", report.Pruned)
	}
	if _, found, _ := store.GetLevelRole(ctx, "g1", 10); found {
		t.Fatalf("expected stale role removed from map")
	}
}

func TestBulkSyncRemovesRetiredRole(t *testing.T) {
	syncer, members, store := newTestSyncer(t)
	ctx := context.Background()
	if _, err := store.SetLevelRole(ctx, "g1", 5, "newRole"); err != nil {
		t.Fatalf("set role: %v", err)
	}
	seedXP(t, store, "1", 600)
	members.roles["1"] = []string{"oldRole"}

	report, err := syncer.BulkSync(ctx, "g1", 5, "oldRole")
	if err != nil {
		t.Fatalf("bulk sync: %v", err)
	}
	if report.Changed != 1 {
		t.Fatalf("expected one change, got %+v", report)
	}
	if got := members.roles["1"]; !slices.Equal(got, []string{"newRole"}) {
		t.Fatalf("expected old role swapped, got %v", got)
	}
}

func TestInstallTheme(t *testing.T) {
	syncer, members, store := newTestSyncer(t)
	ctx := context.Background()

	installed, failed, err := syncer.InstallTheme(ctx, "g1", "unknown-theme", members)
	if err != nil {
		t.Fatalf("install theme: %v", err)
	}
	if failed != 0 || len(installed) != 11 {
		t.Fatalf("expected 11 roles, got %d (failed %d)", len(installed), failed)
	}
	if installed[0].Name != "🌸 Sakura Seed" {
		t.Fatalf("expected default anime theme, got %q", installed[0].Name)
	}
	roles, err := store.ListLevelRoles(ctx, "g1")
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	if len(roles) != 11 || roles[len(roles)-1].Level != 100 {
		t.Fatalf("unexpected mapped roles %+v", roles)
	}
	if names := ThemeNames(); len(names) != 6 || names[0] != "anime" {
		t.Fatalf("unexpected theme names %v", names)
	}
}
