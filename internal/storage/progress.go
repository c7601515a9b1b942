package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const xpPerLevel = 100

// CustomLabelPrefix marks custom status labels, which never rank as streaks.
const CustomLabelPrefix = "Custom:"

type UserXP struct {
	GuildID     string
	UserID      string
	XP          int
	Level       int
	LastAwardAt *time.Time
}

type Streak struct {
	GuildID    string
	UserID     string
	Label      string
	Hours      int
	StartedAt  time.Time
	LastUpdate time.Time
	Active     bool
}

// Progress is the per-member record read and written by UpdateProgress.
type Progress struct {
	XP        UserXP
	Streak    Streak
	HasStreak bool
}

func (s *Store) GetUserXP(ctx context.Context, guildID, userID string) (UserXP, error) {
	return scanUserXP(s.db.QueryRowContext(ctx, selectUserXPSQL, guildID, userID), guildID, userID)
}

func (s *Store) GetStreak(ctx context.Context, guildID, userID string) (Streak, bool, error) {
	return scanStreak(s.db.QueryRowContext(ctx, selectStreakSQL, guildID, userID), guildID, userID)
}

// UpdateProgress reads the member's XP and streak, lets mutate change them and
// writes both back in one transaction. Nothing is written when mutate returns
// false or an error. Level is always recomputed from XP before writing.
func (s *Store) UpdateProgress(ctx context.Context, guildID, userID string, mutate func(*Progress) (bool, error)) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		xp, err := scanUserXP(tx.QueryRowContext(ctx, selectUserXPSQL, guildID, userID), guildID, userID)
		if err != nil {
			return err
		}
		streak, found, err := scanStreak(tx.QueryRowContext(ctx, selectStreakSQL, guildID, userID), guildID, userID)
		if err != nil {
			return err
		}

		before := xp
		p := &Progress{XP: xp, Streak: streak, HasStreak: found}
		write, err := mutate(p)
		if err != nil || !write {
			return err
		}

		if p.XP.XP < 0 {
			p.XP.XP = 0
		}
		p.XP.Level = p.XP.XP / xpPerLevel
		if p.XP.XP != before.XP || !sameTime(p.XP.LastAwardAt, before.LastAwardAt) {
			var lastAward any
			if p.XP.LastAwardAt != nil {
				lastAward = p.XP.LastAwardAt.UnixMilli()
			}
			if _, err := tx.ExecContext(ctx, upsertUserXPSQL, guildID, userID, p.XP.XP, p.XP.Level, lastAward); err != nil {
				return err
			}
		}

		if p.HasStreak {
			if p.Streak.Hours < 1 {
				p.Streak.Hours = 1
			}
			if _, err := tx.ExecContext(ctx, upsertStreakSQL,
				guildID, userID, p.Streak.Label, p.Streak.Hours,
				p.Streak.StartedAt.Unix(), p.Streak.LastUpdate.Unix(), boolToInt(p.Streak.Active),
			); err != nil {
				return err
			}
		}
		return nil
	})
	return classify("progress.update", err)
}

// GetLeaderboard orders by XP descending. Ties go to the lower numeric user
// id, which for snowflakes is the shorter string then the lexical order.
func (s *Store) GetLeaderboard(ctx context.Context, guildID string, limit, offset int) ([]UserXP, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, xp, level, last_award_at
		FROM user_xp
		WHERE guild_id = ? AND xp > 0
		ORDER BY xp DESC, LENGTH(user_id) ASC, user_id ASC
		LIMIT ? OFFSET ?`, guildID, limit, offset)
	if err != nil {
		return nil, classify("leaderboard.list", err)
	}
	defer rows.Close()
	return collectUserXP(rows, guildID)
}

func (s *Store) CountRanked(ctx context.Context, guildID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_xp WHERE guild_id = ? AND xp > 0`, guildID).Scan(&total)
	return total, classify("leaderboard.count", err)
}

// GetRank returns the one-based leaderboard position, or 0 when the member
// has no XP yet.
func (s *Store) GetRank(ctx context.Context, guildID, userID string) (int, error) {
	current, err := s.GetUserXP(ctx, guildID, userID)
	if err != nil {
		return 0, err
	}
	if current.XP <= 0 {
		return 0, nil
	}
	var ahead int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM user_xp
		WHERE guild_id = ? AND xp > 0 AND (
			xp > ?
			OR (xp = ? AND LENGTH(user_id) < ?)
			OR (xp = ? AND LENGTH(user_id) = ? AND user_id < ?)
		)`, guildID, current.XP, current.XP, len(userID), current.XP, len(userID), userID).Scan(&ahead)
	if err != nil {
		return 0, classify("leaderboard.rank", err)
	}
	return ahead + 1, nil
}

// GetTopStreaks orders by streak length with the leaderboard tie-break and
// skips custom status labels.
func (s *Store) GetTopStreaks(ctx context.Context, guildID string, limit int) ([]Streak, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, activity_label, streak_hours, started_at, last_update, active
		FROM activity_streaks
		WHERE guild_id = ? AND activity_label NOT LIKE ?
		ORDER BY streak_hours DESC, LENGTH(user_id) ASC, user_id ASC
		LIMIT ?`, guildID, CustomLabelPrefix+"%", limit)
	if err != nil {
		return nil, classify("streaks.top", err)
	}
	defer rows.Close()

	var streaks []Streak
	for rows.Next() {
		st := Streak{GuildID: guildID}
		var started, updated int64
		var active int
		if err := rows.Scan(&st.UserID, &st.Label, &st.Hours, &started, &updated, &active); err != nil {
			return nil, err
		}
		st.StartedAt = time.Unix(started, 0)
		st.LastUpdate = time.Unix(updated, 0)
		st.Active = active == 1
		streaks = append(streaks, st)
	}
	return streaks, rows.Err()
}

// ListUsersAtLevel returns members at or above minLevel, highest XP first.
func (s *Store) ListUsersAtLevel(ctx context.Context, guildID string, minLevel int) ([]UserXP, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, xp, level, last_award_at
		FROM user_xp
		WHERE guild_id = ? AND level >= ?
		ORDER BY xp DESC, LENGTH(user_id) ASC, user_id ASC`, guildID, minLevel)
	if err != nil {
		return nil, classify("xp.list_level", err)
	}
	defer rows.Close()
	return collectUserXP(rows, guildID)
}

const selectUserXPSQL = `SELECT xp, level, last_award_at FROM user_xp WHERE guild_id = ? AND user_id = ?`

const selectStreakSQL = `
	SELECT activity_label, streak_hours, started_at, last_update, active
	FROM activity_streaks WHERE guild_id = ? AND user_id = ?`

const upsertUserXPSQL = `
	INSERT INTO user_xp (guild_id, user_id, xp, level, last_award_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(guild_id, user_id) DO UPDATE SET
		xp = excluded.xp,
		level = excluded.level,
		last_award_at = excluded.last_award_at`

const upsertStreakSQL = `
	INSERT INTO activity_streaks (guild_id, user_id, activity_label, streak_hours, started_at, last_update, active)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(guild_id, user_id) DO UPDATE SET
		activity_label = excluded.activity_label,
		streak_hours = excluded.streak_hours,
		started_at = excluded.started_at,
		last_update = excluded.last_update,
		active = excluded.active`

func scanUserXP(row *sql.Row, guildID, userID string) (UserXP, error) {
	result := UserXP{GuildID: guildID, UserID: userID}
	var lastAward sql.NullInt64
	if err := row.Scan(&result.XP, &result.Level, &lastAward); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, nil
		}
		return UserXP{}, classify("xp.get", err)
	}
	if lastAward.Valid {
		value := time.UnixMilli(lastAward.Int64)
		result.LastAwardAt = &value
	}
	return result, nil
}

func scanStreak(row *sql.Row, guildID, userID string) (Streak, bool, error) {
	st := Streak{GuildID: guildID, UserID: userID}
	var started, updated int64
	var active int
	if err := row.Scan(&st.Label, &st.Hours, &started, &updated, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return st, false, nil
		}
		return Streak{}, false, classify("streak.get", err)
	}
	st.StartedAt = time.Unix(started, 0)
	st.LastUpdate = time.Unix(updated, 0)
	st.Active = active == 1
	return st, true, nil
}

func collectUserXP(rows *sql.Rows, guildID string) ([]UserXP, error) {
	var users []UserXP
	for rows.Next() {
		u := UserXP{GuildID: guildID}
		var lastAward sql.NullInt64
		if err := rows.Scan(&u.UserID, &u.XP, &u.Level, &lastAward); err != nil {
			return nil, err
		}
		if lastAward.Valid {
			value := time.UnixMilli(lastAward.Int64)
			u.LastAwardAt = &value
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.UnixMilli() == b.UnixMilli()
}
