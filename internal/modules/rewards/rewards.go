// Package rewards keeps each member's reward role in line with their level.
package rewards

import (
	"context"
	"fmt"
	"sort"
	"time"

	"activity-xp/internal/errs"
	"activity-xp/internal/retry"
	"activity-xp/internal/storage"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Members is the remote role membership surface, one call per mutation.
type Members interface {
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
}

type Tier struct {
	Level  int
	RoleID string
}

type Config struct {
	CallTimeout   time.Duration
	Retry         retry.Policy
	BulkPerSecond float64
	BulkBurst     int
}

type RoleFailure struct {
	RoleID string
	Op     string
	Err    error
}

type ApplyResult struct {
	Role     string
	Granted  bool
	Removed  []string
	Failures []RoleFailure
	Pruned   []int
}

// Changed reports whether any role was granted or removed.
func (r ApplyResult) Changed() bool {
	return r.Granted || len(r.Removed) > 0
}

type BulkReport struct {
	Changed        int
	AlreadyCorrect int
	Failed         int
	Pruned         []int
}

type Syncer struct {
	store   *storage.Store
	members Members
	cfg     Config
	logger  *zap.Logger
	limiter *rate.Limiter
}

func NewSyncer(store *storage.Store, members Members, cfg Config, logger *zap.Logger) *Syncer {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.BulkPerSecond <= 0 {
		cfg.BulkPerSecond = 5
	}
	if cfg.BulkBurst <= 0 {
		cfg.BulkBurst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		store:   store,
		members: members,
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(cfg.BulkPerSecond), cfg.BulkBurst),
	}
}

// ResolveRole returns the tier with the greatest level at or below level.
func ResolveRole(level int, tiers []Tier) (Tier, bool) {
	var best Tier
	found := false
	for _, tier := range tiers {
		if tier.Level <= level && (!found || tier.Level > best.Level) {
			best = tier
			found = true
		}
	}
	return best, found
}

func (s *Syncer) Tiers(ctx context.Context, guildID string) ([]Tier, error) {
	roles, err := s.store.ListLevelRoles(ctx, guildID)
	if err != nil {
		return nil, err
	}
	tiers := make([]Tier, 0, len(roles))
	for _, role := range roles {
		tiers = append(tiers, Tier{Level: role.Level, RoleID: role.RoleID})
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Level < tiers[j].Level })
	return tiers, nil
}

// ApplyRole reconciles one member, retrying transient failures.
func (s *Syncer) ApplyRole(ctx context.Context, guildID, userID string, level int, tiers []Tier) (ApplyResult, error) {
	return s.apply(ctx, guildID, userID, level, tiers, nil, s.cfg.Retry)
}

// BulkSync reconciles every member at or above minLevel. retired lists roles
// that are no longer mapped but must still be taken away.
func (s *Syncer) BulkSync(ctx context.Context, guildID string, minLevel int, retired ...string) (BulkReport, error) {
	var report BulkReport

	tiers, err := s.Tiers(ctx, guildID)
	if err != nil {
		return report, err
	}
	users, err := s.store.ListUsersAtLevel(ctx, guildID, minLevel)
	if err != nil {
		return report, err
	}

	for _, user := range users {
		if err := s.limiter.Wait(ctx); err != nil {
			return report, err
		}
		res, err := s.apply(ctx, guildID, user.UserID, user.Level, tiers, retired, retry.Once)
		if len(res.Pruned) > 0 {
			report.Pruned = append(report.Pruned, res.Pruned...)
			tiers = dropPruned(tiers, res.Pruned)
		}
		switch {
		case err != nil || len(res.Failures) > 0:
			report.Failed++
			if err != nil {
				s.logger.Warn("role sync skipped member", zap.String("guild_id", guildID), zap.String("user_id", user.UserID), zap.Error(err))
			}
		case res.Changed():
			report.Changed++
		default:
			report.AlreadyCorrect++
		}
	}

	s.logger.Info("bulk role sync",
		zap.String("guild_id", guildID),
		zap.Int("min_level", minLevel),
		zap.Int("changed", report.Changed),
		zap.Int("already_correct", report.AlreadyCorrect),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (s *Syncer) apply(ctx context.Context, guildID, userID string, level int, tiers []Tier, retired []string, policy retry.Policy) (ApplyResult, error) {
	var result ApplyResult

	target, ok := ResolveRole(level, tiers)
	if !ok {
		return result, nil
	}
	result.Role = target.RoleID

	var held []string
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		roles, err := s.members.MemberRoles(callCtx, guildID, userID)
		held = roles
		return err
	})
	if err != nil {
		return result, fmt.Errorf("member roles: %w", err)
	}

	mapped := make(map[string]struct{}, len(tiers)+len(retired))
	for _, tier := range tiers {
		mapped[tier.RoleID] = struct{}{}
	}
	for _, roleID := range retired {
		mapped[roleID] = struct{}{}
	}

	hasTarget := false
	var stale []string
	for _, roleID := range held {
		if roleID == target.RoleID {
			hasTarget = true
			continue
		}
		if _, ok := mapped[roleID]; ok {
			stale = append(stale, roleID)
		}
	}
	if hasTarget && len(stale) == 0 {
		return result, nil
	}

	for _, roleID := range stale {
		err := s.call(ctx, policy, func(ctx context.Context) error {
			return s.members.RemoveRole(ctx, guildID, userID, roleID)
		})
		if err != nil {
			s.recordFailure(ctx, guildID, userID, roleID, "remove", err, &result)
			continue
		}
		result.Removed = append(result.Removed, roleID)
	}

	if !hasTarget {
		err := s.call(ctx, policy, func(ctx context.Context) error {
			return s.members.AddRole(ctx, guildID, userID, target.RoleID)
		})
		if err != nil {
			s.recordFailure(ctx, guildID, userID, target.RoleID, "add", err, &result)
		} else {
			result.Granted = true
		}
	}
	return result, nil
}

func (s *Syncer) call(ctx context.Context, policy retry.Policy, fn func(context.Context) error) error {
	return retry.Do(ctx, policy, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		return fn(callCtx)
	})
}

// recordFailure logs a per-role failure and prunes roles that no longer exist.
func (s *Syncer) recordFailure(ctx context.Context, guildID, userID, roleID, op string, err error, result *ApplyResult) {
	kind := errs.KindOf(err)
	result.Failures = append(result.Failures, RoleFailure{RoleID: roleID, Op: op, Err: err})
	s.logger.Warn("role update failed",
		zap.String("guild_id", guildID),
		zap.String("user_id", userID),
		zap.String("role_id", roleID),
		zap.String("op", op),
		zap.String("kind", kind.String()),
		zap.Error(err),
	)
	if kind != errs.KindDataIntegrity {
		return
	}
	levels, pruneErr := s.store.PruneRole(ctx, guildID, roleID)
	if pruneErr != nil {
		s.logger.Error("prune stale reward role failed", zap.String("guild_id", guildID), zap.String("role_id", roleID), zap.Error(pruneErr))
		return
	}
	if len(levels) > 0 {
		result.Pruned = append(result.Pruned, levels...)
		s.logger.Warn("pruned stale reward role", zap.String("guild_id", guildID), zap.String("role_id", roleID), zap.Ints("levels", levels))
	}
}

func dropPruned(tiers []Tier, levels []int) []Tier {
	gone := make(map[int]struct{}, len(levels))
	for _, level := range levels {
		gone[level] = struct{}{}
	}
	kept := tiers[:0:0]
	for _, tier := range tiers {
		if _, ok := gone[tier.Level]; !ok {
			kept = append(kept, tier)
		}
	}
	return kept
}
