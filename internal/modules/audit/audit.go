package audit

import (
	"context"
	"time"

	"activity-xp/internal/storage"

	"go.uber.org/zap"
)

const (
	EventFirstSighting = "first_sighting"
	EventXPAward       = "xp_award"
	EventLevelUp       = "level_up"
	EventRoleSync      = "role_sync"
	EventRolePruned    = "role_pruned"
	EventConfig        = "config"
	EventRecovery      = "recovery"
)

type Logger struct {
	store  *storage.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewLogger(store *storage.Store, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger, now: time.Now}
}

// Log records an XP event. Storage failures are logged and swallowed.
func (l *Logger) Log(ctx context.Context, guildID, userID, event, details string, xp int) {
	entry := storage.AuditLog{
		GuildID:   guildID,
		UserID:    userID,
		Event:     event,
		Details:   details,
		XP:        xp,
		CreatedAt: l.now(),
	}
	if l.store != nil {
		if err := l.store.AddAuditLog(ctx, entry); err != nil {
			l.logger.Warn("audit write failed", zap.String("event", event), zap.Error(err))
		}
	}
	l.logger.Info("audit",
		zap.String("guild_id", guildID),
		zap.String("user_id", userID),
		zap.String("event", event),
		zap.String("details", details),
		zap.Int("xp", xp),
	)
}

// Cleanup drops entries older than retentionDays.
func (l *Logger) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if l.store == nil || retentionDays <= 0 {
		return 0, nil
	}
	return l.store.CleanupAuditLogs(ctx, l.now().AddDate(0, 0, -retentionDays))
}
