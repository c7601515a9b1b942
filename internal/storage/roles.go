package storage

import (
	"context"
	"database/sql"
	"errors"
)

type LevelRole struct {
	GuildID string
	Level   int
	RoleID  string
}

// SetLevelRole maps level to roleID and returns the role previously mapped
// at that level, if any.
func (s *Store) SetLevelRole(ctx context.Context, guildID string, level int, roleID string) (string, error) {
	var previous string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT role_id FROM level_roles WHERE guild_id = ? AND level = ?`, guildID, level).Scan(&previous)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO level_roles (guild_id, level, role_id) VALUES (?, ?, ?)
			ON CONFLICT(guild_id, level) DO UPDATE SET role_id = excluded.role_id`, guildID, level, roleID)
		return err
	})
	if err != nil {
		return "", classify("level_roles.set", err)
	}
	return previous, nil
}

func (s *Store) GetLevelRole(ctx context.Context, guildID string, level int) (string, bool, error) {
	var roleID string
	err := s.db.QueryRowContext(ctx, `SELECT role_id FROM level_roles WHERE guild_id = ? AND level = ?`, guildID, level).Scan(&roleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, classify("level_roles.get", err)
	}
	return roleID, true, nil
}

func (s *Store) DeleteLevelRole(ctx context.Context, guildID string, level int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM level_roles WHERE guild_id = ? AND level = ?`, guildID, level)
	if err != nil {
		return false, classify("level_roles.delete", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// PruneRole drops every level mapped to roleID and returns the levels removed.
func (s *Store) PruneRole(ctx context.Context, guildID, roleID string) ([]int, error) {
	var levels []int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT level FROM level_roles WHERE guild_id = ? AND role_id = ? ORDER BY level`, guildID, roleID)
		if err != nil {
			return err
		}
		for rows.Next() {
			var level int
			if err := rows.Scan(&level); err != nil {
				rows.Close()
				return err
			}
			levels = append(levels, level)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM level_roles WHERE guild_id = ? AND role_id = ?`, guildID, roleID)
		return err
	})
	if err != nil {
		return nil, classify("level_roles.prune", err)
	}
	return levels, nil
}

// ListLevelRoles returns the guild's mapping ordered by ascending level.
func (s *Store) ListLevelRoles(ctx context.Context, guildID string) ([]LevelRole, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT level, role_id FROM level_roles WHERE guild_id = ? ORDER BY level ASC`, guildID)
	if err != nil {
		return nil, classify("level_roles.list", err)
	}
	defer rows.Close()

	var roles []LevelRole
	for rows.Next() {
		role := LevelRole{GuildID: guildID}
		if err := rows.Scan(&role.Level, &role.RoleID); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
