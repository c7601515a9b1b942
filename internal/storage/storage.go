package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"activity-xp/internal/errs"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db *sql.DB
}

type GuildConfig struct {
	GuildID    string
	Enabled    bool
	LogChannel string
	TargetRole string
	AutoRoles  bool
	UpdatedAt  time.Time
}

type AuditLog struct {
	ID        int64
	GuildID   string
	UserID    string
	Event     string
	Details   string
	XP        int
	CreatedAt time.Time
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection serialises writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return classify("storage.ping", s.db.PingContext(ctx))
}

func (s *Store) Migrate() error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}

	var files []string
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := migrations.ReadFile(path.Join("migrations", file))
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			if isIgnorableMigrationError(err) {
				continue
			}
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
	}
	return nil
}

// withTx commits when fn returns nil and rolls back otherwise.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetGuildConfig returns the stored configuration and whether a row exists.
// A missing row yields a disabled configuration.
func (s *Store) GetGuildConfig(ctx context.Context, guildID string) (GuildConfig, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT enabled, log_channel, target_role, auto_roles, updated_at
		FROM guild_config WHERE guild_id = ?`, guildID)

	cfg := GuildConfig{GuildID: guildID, AutoRoles: true}
	var enabled, autoRoles int
	var updated int64
	err := row.Scan(&enabled, &cfg.LogChannel, &cfg.TargetRole, &autoRoles, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cfg, false, nil
		}
		return GuildConfig{}, false, classify("guild_config.get", err)
	}
	cfg.Enabled = enabled == 1
	cfg.AutoRoles = autoRoles == 1
	cfg.UpdatedAt = time.Unix(updated, 0)
	return cfg, true, nil
}

func (s *Store) UpsertGuildConfig(ctx context.Context, cfg GuildConfig) error {
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, upsertGuildConfigSQL,
		cfg.GuildID,
		boolToInt(cfg.Enabled),
		cfg.LogChannel,
		cfg.TargetRole,
		boolToInt(cfg.AutoRoles),
		cfg.UpdatedAt.Unix(),
	)
	return classify("guild_config.upsert", err)
}

const upsertGuildConfigSQL = `
	INSERT INTO guild_config (guild_id, enabled, log_channel, target_role, auto_roles, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(guild_id) DO UPDATE SET
		enabled = excluded.enabled,
		log_channel = excluded.log_channel,
		target_role = excluded.target_role,
		auto_roles = excluded.auto_roles,
		updated_at = excluded.updated_at`

func (s *Store) ClearLogChannel(ctx context.Context, guildID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE guild_config SET log_channel = '', updated_at = ? WHERE guild_id = ?`, time.Now().Unix(), guildID)
	return classify("guild_config.clear_channel", err)
}

func (s *Store) ListGuildConfigs(ctx context.Context) ([]GuildConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_id, enabled, log_channel, target_role, auto_roles, updated_at
		FROM guild_config ORDER BY guild_id`)
	if err != nil {
		return nil, classify("guild_config.list", err)
	}
	defer rows.Close()

	var configs []GuildConfig
	for rows.Next() {
		var cfg GuildConfig
		var enabled, autoRoles int
		var updated int64
		if err := rows.Scan(&cfg.GuildID, &enabled, &cfg.LogChannel, &cfg.TargetRole, &autoRoles, &updated); err != nil {
			return nil, err
		}
		cfg.Enabled = enabled == 1
		cfg.AutoRoles = autoRoles == 1
		cfg.UpdatedAt = time.Unix(updated, 0)
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (s *Store) AddAuditLog(ctx context.Context, log AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (guild_id, user_id, event, details, xp, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, log.GuildID, log.UserID, log.Event, log.Details, log.XP, log.CreatedAt.Unix())
	return classify("audit.add", err)
}

func (s *Store) ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, user_id, event, details, xp, created_at
		FROM audit_logs
		WHERE guild_id = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC
	`, guildID, since.Unix())
	if err != nil {
		return nil, classify("audit.list", err)
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var log AuditLog
		var created int64
		if err := rows.Scan(&log.ID, &log.GuildID, &log.UserID, &log.Event, &log.Details, &log.XP, &created); err != nil {
			return nil, err
		}
		log.CreatedAt = time.Unix(created, 0)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func (s *Store) CleanupAuditLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < ?`, before.Unix())
	if err != nil {
		return 0, classify("audit.cleanup", err)
	}
	return res.RowsAffected()
}

// classify tags storage failures that are worth retrying.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.E(errs.KindTransient, op, err)
	}
	if isBusy(err) {
		return errs.E(errs.KindTransient, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isBusy reports lock contention. Extended result codes keep the primary
// code in the low byte.
func isBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isIgnorableMigrationError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "duplicate column name") || strings.Contains(message, "already exists")
}
