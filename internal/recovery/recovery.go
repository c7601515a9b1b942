// Package recovery re-validates guild XP settings against the live server
// at startup and on a health check interval.
package recovery

import (
	"context"
	"fmt"
	"time"

	"activity-xp/internal/modules/audit"
	"activity-xp/internal/storage"

	"go.uber.org/zap"
)

// Directory answers existence questions about remote guild objects.
type Directory interface {
	ChannelExists(ctx context.Context, channelID string) (bool, error)
	GuildRoleIDs(ctx context.Context, guildID string) (map[string]struct{}, error)
}

type Service struct {
	store   *storage.Store
	dir     Directory
	audit   *audit.Logger
	logger  *zap.Logger
	timeout time.Duration
}

func New(store *storage.Store, dir Directory, auditLogger *audit.Logger, logger *zap.Logger, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{store: store, dir: dir, audit: auditLogger, logger: logger, timeout: timeout}
}

type GuildReport struct {
	GuildID        string
	LogChannel     string
	ClearedChannel bool
	PrunedLevels   []int
	ValidRoles     int
}

// Reconcile clears vanished log channels and prunes reward roles that no
// longer exist for every enabled guild in guildIDs. Lookup failures leave
// the stored settings untouched.
func (s *Service) Reconcile(ctx context.Context, guildIDs []string) []GuildReport {
	var reports []GuildReport
	for _, guildID := range guildIDs {
		report, ok := s.reconcileGuild(ctx, guildID)
		if ok {
			reports = append(reports, report)
		}
	}
	s.logger.Info("guild recovery complete", zap.Int("guilds", len(guildIDs)), zap.Int("enabled", len(reports)))
	return reports
}

func (s *Service) reconcileGuild(ctx context.Context, guildID string) (GuildReport, bool) {
	report := GuildReport{GuildID: guildID}

	cfg, found, err := s.store.GetGuildConfig(ctx, guildID)
	if err != nil {
		s.logger.Warn("recovery config read failed", zap.String("guild_id", guildID), zap.Error(err))
		return report, false
	}
	if !found || !cfg.Enabled {
		return report, false
	}
	report.LogChannel = cfg.LogChannel

	if cfg.LogChannel != "" {
		exists, err := s.channelExists(ctx, cfg.LogChannel)
		switch {
		case err != nil:
			s.logger.Warn("log channel lookup failed", zap.String("guild_id", guildID), zap.Error(err))
		case !exists:
			if err := s.store.ClearLogChannel(ctx, guildID); err != nil {
				s.logger.Error("clear log channel failed", zap.String("guild_id", guildID), zap.Error(err))
			} else {
				report.ClearedChannel = true
				report.LogChannel = ""
				s.logger.Warn("log channel missing, cleared", zap.String("guild_id", guildID), zap.String("channel_id", cfg.LogChannel))
				if s.audit != nil {
					s.audit.Log(ctx, guildID, "", audit.EventRecovery, "log channel cleared: "+cfg.LogChannel, 0)
				}
			}
		}
	}

	mapped, err := s.store.ListLevelRoles(ctx, guildID)
	if err != nil {
		s.logger.Warn("recovery role read failed", zap.String("guild_id", guildID), zap.Error(err))
		return report, true
	}
	if len(mapped) == 0 {
		return report, true
	}
	existing, err := s.roleIDs(ctx, guildID)
	if err != nil {
		s.logger.Warn("guild role lookup failed", zap.String("guild_id", guildID), zap.Error(err))
		return report, true
	}

	for _, role := range mapped {
		if _, ok := existing[role.RoleID]; ok {
			report.ValidRoles++
			continue
		}
		levels, err := s.store.PruneRole(ctx, guildID, role.RoleID)
		if err != nil {
			s.logger.Error("prune reward role failed", zap.String("guild_id", guildID), zap.String("role_id", role.RoleID), zap.Error(err))
			continue
		}
		report.PrunedLevels = append(report.PrunedLevels, levels...)
	}
	if len(report.PrunedLevels) > 0 && s.audit != nil {
		s.audit.Log(ctx, guildID, "", audit.EventRolePruned, fmt.Sprintf("levels=%v", report.PrunedLevels), 0)
	}
	return report, true
}

type Health struct {
	CheckedAt    time.Time
	StoreErr     error
	GatewayOK    bool
	Guilds       int
	InvalidRoles int
}

func (h Health) OK() bool {
	return h.StoreErr == nil && h.GatewayOK && h.InvalidRoles == 0
}

// Check pings the store and counts mapped reward roles that no longer exist.
// It never modifies stored settings.
func (s *Service) Check(ctx context.Context, guildIDs []string, gatewayOK bool) Health {
	health := Health{CheckedAt: time.Now(), GatewayOK: gatewayOK, Guilds: len(guildIDs)}

	pingCtx, cancel := context.WithTimeout(ctx, s.timeout)
	health.StoreErr = s.store.Ping(pingCtx)
	cancel()
	if health.StoreErr != nil {
		s.logger.Error("health check: store unavailable", zap.Error(health.StoreErr))
		return health
	}

	for _, guildID := range guildIDs {
		mapped, err := s.store.ListLevelRoles(ctx, guildID)
		if err != nil || len(mapped) == 0 {
			continue
		}
		existing, err := s.roleIDs(ctx, guildID)
		if err != nil {
			continue
		}
		for _, role := range mapped {
			if _, ok := existing[role.RoleID]; !ok {
				health.InvalidRoles++
			}
		}
	}

	fields := []zap.Field{
		zap.Bool("gateway", health.GatewayOK),
		zap.Int("guilds", health.Guilds),
		zap.Int("invalid_roles", health.InvalidRoles),
	}
	if health.OK() {
		s.logger.Info("health check passed", fields...)
	} else {
		s.logger.Warn("health check degraded", fields...)
	}
	return health
}

func (s *Service) channelExists(ctx context.Context, channelID string) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.dir.ChannelExists(callCtx, channelID)
}

func (s *Service) roleIDs(ctx context.Context, guildID string) (map[string]struct{}, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.dir.GuildRoleIDs(callCtx, guildID)
}
