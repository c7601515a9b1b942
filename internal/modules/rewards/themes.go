package rewards

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

type ThemeRole struct {
	Level int
	Name  string
	Color int
}

const DefaultTheme = "anime"

var themes = map[string][]ThemeRole{
	"anime": {
		{1, "🌸 Sakura Seed", 0xFFB7C5},
		{5, "🌱 Petal Sprout", 0xFFD4E5},
		{10, "🌺 Cherry Whisper", 0xFF69B4},
		{15, "☁️ Cloud Drifter", 0xB0E0E6},
		{20, "🦋 Kawaii Walker", 0xDDA0DD},
		{25, "💎 Yugen Soul", 0x9370DB},
		{30, "🌸 Petal Knight", 0xFF1493},
		{40, "🌙 Moonlit Mystic", 0x4169E1},
		{50, "🦋 Dreambound Spirit", 0x8A2BE2},
		{75, "💠 Celestial Kimono", 0x00CED1},
		{100, "⭐ Orb Ascendant", 0xFFD700},
	},
	"gaming": {
		{1, "🎮 Noob", 0x808080},
		{5, "🕹️ Casual Player", 0x90EE90},
		{10, "🎯 Skilled Gamer", 0x87CEEB},
		{15, "⚡ Pro Player", 0x9370DB},
		{20, "🔥 Elite Gamer", 0xFF6347},
		{25, "💪 Veteran", 0xFF8C00},
		{30, "🏆 Champion", 0xFFD700},
		{40, "👑 Master", 0xFF1493},
		{50, "💎 Grandmaster", 0x00CED1},
		{75, "🌟 Legend", 0x9400D3},
		{100, "🔱 Mythic", 0xFF0000},
	},
	"ranks": {
		{1, "🥉 Bronze I", 0xCD7F32},
		{5, "🥉 Bronze II", 0xD4915D},
		{10, "🥉 Bronze III", 0xE0A875},
		{15, "🥈 Silver I", 0xC0C0C0},
		{20, "🥈 Silver II", 0xD3D3D3},
		{25, "🥈 Silver III", 0xE8E8E8},
		{30, "🥇 Gold I", 0xFFD700},
		{40, "🥇 Gold II", 0xFFE55C},
		{50, "💎 Platinum", 0xE5E4E2},
		{75, "💠 Diamond", 0xB9F2FF},
		{100, "👑 Master", 0xFF0080},
	},
	"fantasy": {
		{1, "🌱 Peasant", 0x8B4513},
		{5, "⚔️ Squire", 0xA0522D},
		{10, "🗡️ Knight", 0xC0C0C0},
		{15, "🛡️ Paladin", 0xFFD700},
		{20, "🏹 Ranger", 0x228B22},
		{25, "🔮 Mage", 0x9370DB},
		{30, "⚡ Sorcerer", 0x4169E1},
		{40, "🌟 Archmage", 0xFF1493},
		{50, "🐉 Dragon Slayer", 0xFF4500},
		{75, "👑 King", 0xFFD700},
		{100, "🔱 God", 0xFF0000},
	},
	"space": {
		{1, "🌍 Earthling", 0x87CEEB},
		{5, "🚀 Cadet", 0x4682B4},
		{10, "🛸 Pilot", 0x6495ED},
		{15, "⭐ Navigator", 0x9370DB},
		{20, "🌙 Explorer", 0xC0C0C0},
		{25, "🪐 Commander", 0xFF8C00},
		{30, "☄️ Captain", 0xFFD700},
		{40, "🌟 Admiral", 0xFF1493},
		{50, "🌌 Cosmic Voyager", 0x9400D3},
		{75, "✨ Starlord", 0x00CED1},
		{100, "🌠 Celestial Being", 0xFF0080},
	},
	"simple": {
		{1, "Level 1", 0xFFB7C5},
		{5, "Level 5", 0xFFD4E5},
		{10, "Level 10", 0xFF69B4},
		{15, "Level 15", 0xB0E0E6},
		{20, "Level 20", 0xDDA0DD},
		{25, "Level 25", 0x9370DB},
		{30, "Level 30", 0xFF1493},
		{40, "Level 40", 0x4169E1},
		{50, "Level 50", 0x8A2BE2},
		{75, "Level 75", 0x00CED1},
		{100, "Level 100", 0xFFD700},
	},
}

// Theme returns the roles of a named theme, falling back to the default.
func Theme(name string) ([]ThemeRole, string) {
	if roles, ok := themes[name]; ok {
		return roles, name
	}
	return themes[DefaultTheme], DefaultTheme
}

func ThemeNames() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RoleCreator creates a guild role and returns its id.
type RoleCreator interface {
	CreateRole(ctx context.Context, guildID, name string, color int) (string, error)
}

type InstalledRole struct {
	ThemeRole
	RoleID string
}

// InstallTheme creates every role of the theme and maps it to its level.
// Roles that fail to create are skipped and reported in the error count.
func (s *Syncer) InstallTheme(ctx context.Context, guildID, theme string, creator RoleCreator) ([]InstalledRole, int, error) {
	roles, theme := Theme(theme)
	var installed []InstalledRole
	failed := 0
	for _, role := range roles {
		var roleID string
		err := s.call(ctx, s.cfg.Retry, func(ctx context.Context) error {
			id, err := creator.CreateRole(ctx, guildID, role.Name, role.Color)
			roleID = id
			return err
		})
		if err != nil {
			failed++
			s.logger.Warn("create theme role failed", zap.String("guild_id", guildID), zap.String("theme", theme), zap.String("role", role.Name), zap.Error(err))
			continue
		}
		if _, err := s.store.SetLevelRole(ctx, guildID, role.Level, roleID); err != nil {
			return installed, failed, fmt.Errorf("map level %d: %w", role.Level, err)
		}
		installed = append(installed, InstalledRole{ThemeRole: role, RoleID: roleID})
	}
	s.logger.Info("theme roles installed", zap.String("guild_id", guildID), zap.String("theme", theme), zap.Int("created", len(installed)), zap.Int("failed", failed))
	return installed, failed, nil
}
