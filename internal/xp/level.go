package xp

import "strings"

const PerLevel = 100

const barWidth = 10

func LevelForXP(xp int) int {
	if xp <= 0 {
		return 0
	}
	return xp / PerLevel
}

// ToNextLevel is the XP still missing before the next level.
func ToNextLevel(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return PerLevel - xp%PerLevel
}

// ProgressPercent is how far xp sits into its current level, 0 to 99.
func ProgressPercent(xp int) float64 {
	if xp < 0 {
		xp = 0
	}
	return float64(xp%PerLevel) / PerLevel * 100
}

// Multiplier grows linearly with the streak and is not capped.
func Multiplier(streakHours int) int {
	if streakHours < 1 {
		return 1
	}
	return streakHours
}

func Award(base, streakHours int) int {
	return base * Multiplier(streakHours)
}

// ProgressBar renders percent as ten cells, filled = floor(percent/10).
func ProgressBar(percent float64) string {
	filled := int(percent / 10)
	if filled < 0 {
		filled = 0
	}
	if filled > barWidth {
		filled = barWidth
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}
