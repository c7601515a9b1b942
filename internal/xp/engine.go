// Package xp turns presence observations into streaks and XP awards.
package xp

import (
	"context"
	"math/rand/v2"
	"slices"
	"time"

	"activity-xp/internal/activity"
	"activity-xp/internal/retry"
	"activity-xp/internal/storage"

	"go.uber.org/zap"
)

// Clock supplies the current time to the engine.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Rand draws the base XP of an award.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Config bounds the award cadence and every store call.
type Config struct {
	Cooldown     time.Duration
	StoreTimeout time.Duration
	Retry        retry.Policy
}

// Outcome is what one observation did to a member's streak.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	// OutcomeIdle means no activity while nothing was being tracked.
	OutcomeIdle
	OutcomeFirstSighting
	OutcomeCooldown
	OutcomeAwarded
	// OutcomeStopped means the tracked activity ended.
	OutcomeStopped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIdle:
		return "idle"
	case OutcomeFirstSighting:
		return "first_sighting"
	case OutcomeCooldown:
		return "cooldown"
	case OutcomeAwarded:
		return "awarded"
	case OutcomeStopped:
		return "stopped"
	default:
		return "ignored"
	}
}

// Ignore reasons reported in Result.Reason.
const (
	ReasonBot          = "bot"
	ReasonDisabled     = "disabled"
	ReasonNoLogChannel = "no_log_channel"
	ReasonTargetRole   = "target_role"
)

// PresenceEvent is a presence update for one guild member.
type PresenceEvent struct {
	GuildID    string
	UserID     string
	IsBot      bool
	Activities []activity.Activity
	Roles      []string
}

// Result describes the outcome of an observation and the member's totals
// after it.
type Result struct {
	Outcome     Outcome
	Reason      string
	Selection   activity.Selection
	Streak      int
	Multiplier  int
	Base        int
	Awarded     int
	XP          int
	OldLevel    int
	Level       int
	LeveledUp   bool
	NextAwardAt time.Time
	LogChannel  string
}

// Engine runs the per-member streak and XP state machine over the store.
type Engine struct {
	store  *storage.Store
	cfg    Config
	logger *zap.Logger
	clock  Clock
	rand   Rand
	locks  *keyedMutex
}

func NewEngine(store *storage.Store, cfg Config, logger *zap.Logger) *Engine {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Hour
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:  store,
		cfg:    cfg,
		logger: logger,
		clock:  realClock{},
		rand:   globalRand{},
		locks:  newKeyedMutex(),
	}
}

func (e *Engine) WithClock(clock Clock) {
	e.clock = clock
}

func (e *Engine) WithRand(r Rand) {
	e.rand = r
}

func (e *Engine) Cooldown() time.Duration {
	return e.cfg.Cooldown
}

// PresenceChanged applies the guild's filters and feeds the classified
// activity to Observe.
func (e *Engine) PresenceChanged(ctx context.Context, ev PresenceEvent) (Result, error) {
	if ev.IsBot {
		return Result{Outcome: OutcomeIgnored, Reason: ReasonBot}, nil
	}

	readCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	cfg, _, err := e.store.GetGuildConfig(readCtx, ev.GuildID)
	cancel()
	if err != nil {
		return Result{}, err
	}
	if !cfg.Enabled {
		return Result{Outcome: OutcomeIgnored, Reason: ReasonDisabled}, nil
	}
	if cfg.LogChannel == "" {
		return Result{Outcome: OutcomeIgnored, Reason: ReasonNoLogChannel}, nil
	}
	if cfg.TargetRole != "" && !slices.Contains(ev.Roles, cfg.TargetRole) {
		return Result{Outcome: OutcomeIgnored, Reason: ReasonTargetRole}, nil
	}

	sel, ok := activity.Classify(ev.Activities)
	res, err := e.Observe(ctx, ev.GuildID, ev.UserID, sel, ok)
	res.LogChannel = cfg.LogChannel
	return res, err
}

// Observe advances the member's streak state machine. ok=false means the
// member has no eligible activity. The read-modify-write runs under a
// per-member lock inside one store transaction and is retried on transient
// storage failures.
func (e *Engine) Observe(ctx context.Context, guildID, userID string, sel activity.Selection, ok bool) (Result, error) {
	unlock := e.locks.Lock(guildID + ":" + userID)
	defer unlock()

	now := e.clock.Now()
	var res Result

	err := retry.Do(ctx, e.cfg.Retry, func(ctx context.Context) error {
		opCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
		defer cancel()

		res = Result{Selection: sel}
		return e.store.UpdateProgress(opCtx, guildID, userID, func(p *storage.Progress) (bool, error) {
			return e.advance(p, sel, ok, now, &res), nil
		})
	})
	if err != nil {
		e.logger.Error("xp update failed",
			zap.String("guild_id", guildID),
			zap.String("user_id", userID),
			zap.String("label", sel.Label),
			zap.Error(err),
		)
		return Result{}, err
	}

	switch res.Outcome {
	case OutcomeAwarded:
		e.logger.Info("xp awarded",
			zap.String("guild_id", guildID),
			zap.String("user_id", userID),
			zap.String("label", sel.Label),
			zap.Int("streak", res.Streak),
			zap.Int("awarded", res.Awarded),
			zap.Int("xp", res.XP),
			zap.Bool("leveled_up", res.LeveledUp),
		)
	case OutcomeFirstSighting:
		e.logger.Debug("activity tracked", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.String("label", sel.Label))
	}
	return res, nil
}

func (e *Engine) advance(p *storage.Progress, sel activity.Selection, ok bool, now time.Time, res *Result) bool {
	res.XP = p.XP.XP
	res.OldLevel = LevelForXP(p.XP.XP)
	res.Level = res.OldLevel

	if !ok {
		if !p.HasStreak || !p.Streak.Active {
			res.Outcome = OutcomeIdle
			return false
		}
		p.Streak.Active = false
		p.Streak.LastUpdate = now
		res.Outcome = OutcomeStopped
		res.Streak = p.Streak.Hours
		return true
	}

	if !p.HasStreak || !p.Streak.Active || p.Streak.Label != sel.Label {
		p.HasStreak = true
		p.Streak = storage.Streak{
			Label:      sel.Label,
			Hours:      1,
			StartedAt:  now,
			LastUpdate: now,
			Active:     true,
		}
		res.Outcome = OutcomeFirstSighting
		res.Streak = 1
		res.NextAwardAt = e.nextAward(p.XP.LastAwardAt, now)
		return true
	}

	if next := e.nextAward(p.XP.LastAwardAt, now); now.Before(next) {
		res.Outcome = OutcomeCooldown
		res.Streak = p.Streak.Hours
		res.NextAwardAt = next
		return false
	}

	hours := p.Streak.Hours + 1
	low, high := sel.Kind.XPRange()
	base := low + e.rand.IntN(high-low+1)
	awarded := Award(base, hours)

	p.XP.XP += awarded
	p.XP.Level = LevelForXP(p.XP.XP)
	awardedAt := now
	p.XP.LastAwardAt = &awardedAt
	p.Streak.Hours = hours
	p.Streak.LastUpdate = now

	res.Outcome = OutcomeAwarded
	res.Streak = hours
	res.Multiplier = Multiplier(hours)
	res.Base = base
	res.Awarded = awarded
	res.XP = p.XP.XP
	res.Level = p.XP.Level
	res.LeveledUp = res.Level > res.OldLevel
	res.NextAwardAt = now.Add(e.cfg.Cooldown)
	return true
}

// nextAward is when the member may earn again. The cooldown runs from the
// last award only; a member who was never awarded may earn right away.
func (e *Engine) nextAward(lastAward *time.Time, now time.Time) time.Time {
	if lastAward == nil {
		return now
	}
	if next := lastAward.Add(e.cfg.Cooldown); next.After(now) {
		return next
	}
	return now
}
