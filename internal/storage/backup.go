package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Version 2 stores last_award_at in unix milliseconds; version 1 used seconds.
const backupVersion = 2

type Backup struct {
	Version      int                 `json:"version"`
	CreatedAt    time.Time           `json:"created_at"`
	UserXP       []BackupUserXP      `json:"user_xp"`
	Streaks      []BackupStreak      `json:"streaks"`
	GuildConfigs []BackupGuildConfig `json:"guild_configs"`
	LevelRoles   []BackupLevelRole   `json:"custom_roles"`
}

type BackupUserXP struct {
	GuildID     string `json:"guild_id"`
	UserID      string `json:"user_id"`
	XP          int    `json:"xp"`
	Level       int    `json:"level"`
	LastAwardAt *int64 `json:"last_award_at,omitempty"`
}

type BackupStreak struct {
	GuildID    string `json:"guild_id"`
	UserID     string `json:"user_id"`
	Label      string `json:"activity_label"`
	Hours      int    `json:"streak_hours"`
	StartedAt  int64  `json:"started_at"`
	LastUpdate int64  `json:"last_update"`
	Active     bool   `json:"active"`
}

type BackupGuildConfig struct {
	GuildID    string `json:"guild_id"`
	Enabled    bool   `json:"enabled"`
	LogChannel string `json:"log_channel,omitempty"`
	TargetRole string `json:"target_role,omitempty"`
	AutoRoles  bool   `json:"auto_roles"`
}

type BackupLevelRole struct {
	GuildID string `json:"guild_id"`
	Level   int    `json:"level"`
	RoleID  string `json:"role_id"`
}

// Export snapshots every XP table.
func (s *Store) Export(ctx context.Context) (Backup, error) {
	b := Backup{Version: backupVersion, CreatedAt: time.Now().UTC()}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT guild_id, user_id, xp, level, last_award_at FROM user_xp ORDER BY guild_id, user_id`)
		if err != nil {
			return err
		}
		for rows.Next() {
			var row BackupUserXP
			var lastAward sql.NullInt64
			if err := rows.Scan(&row.GuildID, &row.UserID, &row.XP, &row.Level, &lastAward); err != nil {
				rows.Close()
				return err
			}
			if lastAward.Valid {
				value := lastAward.Int64
				row.LastAwardAt = &value
			}
			b.UserXP = append(b.UserXP, row)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		rows, err = tx.QueryContext(ctx, `SELECT guild_id, user_id, activity_label, streak_hours, started_at, last_update, active FROM activity_streaks ORDER BY guild_id, user_id`)
		if err != nil {
			return err
		}
		for rows.Next() {
			var row BackupStreak
			var active int
			if err := rows.Scan(&row.GuildID, &row.UserID, &row.Label, &row.Hours, &row.StartedAt, &row.LastUpdate, &active); err != nil {
				rows.Close()
				return err
			}
			row.Active = active == 1
			b.Streaks = append(b.Streaks, row)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		rows, err = tx.QueryContext(ctx, `SELECT guild_id, enabled, log_channel, target_role, auto_roles FROM guild_config ORDER BY guild_id`)
		if err != nil {
			return err
		}
		for rows.Next() {
			var row BackupGuildConfig
			var enabled, autoRoles int
			if err := rows.Scan(&row.GuildID, &enabled, &row.LogChannel, &row.TargetRole, &autoRoles); err != nil {
				rows.Close()
				return err
			}
			row.Enabled = enabled == 1
			row.AutoRoles = autoRoles == 1
			b.GuildConfigs = append(b.GuildConfigs, row)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		rows, err = tx.QueryContext(ctx, `SELECT guild_id, level, role_id FROM level_roles ORDER BY guild_id, level`)
		if err != nil {
			return err
		}
		for rows.Next() {
			var row BackupLevelRole
			if err := rows.Scan(&row.GuildID, &row.Level, &row.RoleID); err != nil {
				rows.Close()
				return err
			}
			b.LevelRoles = append(b.LevelRoles, row)
		}
		return rows.Close()
	})
	if err != nil {
		return Backup{}, classify("backup.export", err)
	}
	return b, nil
}

// Import upserts every row of the backup. Levels are recomputed from XP.
func (s *Store) Import(ctx context.Context, b Backup) error {
	if b.Version > backupVersion {
		return fmt.Errorf("backup version %d is newer than supported %d", b.Version, backupVersion)
	}
	now := time.Now().Unix()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, row := range b.UserXP {
			xp := row.XP
			if xp < 0 {
				xp = 0
			}
			var lastAward any
			if row.LastAwardAt != nil {
				value := *row.LastAwardAt
				if b.Version < 2 {
					value *= 1000
				}
				lastAward = value
			}
			if _, err := tx.ExecContext(ctx, upsertUserXPSQL, row.GuildID, row.UserID, xp, xp/xpPerLevel, lastAward); err != nil {
				return err
			}
		}
		for _, row := range b.Streaks {
			hours := row.Hours
			if hours < 1 {
				hours = 1
			}
			if _, err := tx.ExecContext(ctx, upsertStreakSQL, row.GuildID, row.UserID, row.Label, hours, row.StartedAt, row.LastUpdate, boolToInt(row.Active)); err != nil {
				return err
			}
		}
		for _, row := range b.GuildConfigs {
			if _, err := tx.ExecContext(ctx, upsertGuildConfigSQL, row.GuildID, boolToInt(row.Enabled), row.LogChannel, row.TargetRole, boolToInt(row.AutoRoles), now); err != nil {
				return err
			}
		}
		for _, row := range b.LevelRoles {
			if row.Level < 1 {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO level_roles (guild_id, level, role_id) VALUES (?, ?, ?)
				ON CONFLICT(guild_id, level) DO UPDATE SET role_id = excluded.role_id`, row.GuildID, row.Level, row.RoleID); err != nil {
				return err
			}
		}
		return nil
	})
	return classify("backup.import", err)
}

func WriteBackup(w io.Writer, b Backup) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}

func ReadBackup(r io.Reader) (Backup, error) {
	var b Backup
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return Backup{}, fmt.Errorf("decode backup: %w", err)
	}
	return b, nil
}

// SaveBackupFile writes b to dir under a name derived from scope and the
// backup time, creating dir when needed.
func SaveBackupFile(dir, scope string, b Backup) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	name := fmt.Sprintf("xp_backup_%s_%s.json", scope, b.CreatedAt.Format("20060102_150405"))
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create backup file: %w", err)
	}
	if err := WriteBackup(f, b); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

func LoadBackupFile(path string) (Backup, error) {
	f, err := os.Open(path)
	if err != nil {
		return Backup{}, fmt.Errorf("open backup: %w", err)
	}
	defer f.Close()
	return ReadBackup(f)
}
