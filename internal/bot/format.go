package bot

import (
	"fmt"
	"strings"

	"activity-xp/internal/modules/rewards"
	"activity-xp/internal/xp"

	"github.com/dustin/go-humanize"
)

const leaderboardPageSize = 10

type page struct {
	Number int
	Total  int
	Offset int
}

// paginate clamps the requested page into range. An empty list still has
// one page.
func paginate(requested, count, size int) page {
	total := (count + size - 1) / size
	if total < 1 {
		total = 1
	}
	number := requested
	if number < 1 {
		number = 1
	}
	if number > total {
		number = total
	}
	return page{Number: number, Total: total, Offset: (number - 1) * size}
}

func medal(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return fmt.Sprintf("`%02d`", rank)
	}
}

func groupDigits(n int) string {
	return humanize.Comma(int64(n))
}

func mention(userID string) string {
	return "<@" + userID + ">"
}

func roleMention(roleID string) string {
	return "<@&" + roleID + ">"
}

func channelMention(channelID string) string {
	return "<#" + channelID + ">"
}

func leaderboardLine(rank int, userID string, level, xpTotal int, roleID string, highlight bool) string {
	name := mention(userID)
	if highlight {
		name = "**" + name + "**"
	}
	line := fmt.Sprintf("%s %s • Lv.%d • %s XP", medal(rank), name, level, groupDigits(xpTotal))
	if roleID != "" {
		line += " • " + roleMention(roleID)
	}
	return line
}

func leaderboardFooter(p page, ranked, callerRank int) string {
	footer := fmt.Sprintf("Page %d/%d • %d total members", p.Number, p.Total, ranked)
	if callerRank > 0 {
		footer += fmt.Sprintf(" • Your rank: #%d", callerRank)
	}
	return footer
}

var streakLabelIcons = strings.NewReplacer(
	"Playing:", "🎮",
	"Streaming:", "📺",
	"Listening:", "🎵",
	"Spotify", "🎵 Spotify",
)

func streakLine(rank int, userID string, hours int, label string) string {
	return fmt.Sprintf("%s %s • %dh • %s", medal(rank), mention(userID), hours, streakLabelIcons.Replace(label))
}

// progressField renders the rank card progress toward the next level.
func progressField(xpTotal int) (string, string) {
	level := xp.LevelForXP(xpTotal)
	percent := xp.ProgressPercent(xpTotal)
	name := fmt.Sprintf("Progress to Level %d", level+1)
	value := fmt.Sprintf("%s `%.0f%%`\n%d/%d XP", xp.ProgressBar(percent), percent, xpTotal%xp.PerLevel, xp.PerLevel)
	return name, value
}

// nextTier returns the first tier strictly above level.
func nextTier(level int, tiers []rewards.Tier) (rewards.Tier, bool) {
	for _, tier := range tiers {
		if tier.Level > level {
			return tier, true
		}
	}
	return rewards.Tier{}, false
}

func firstSightingText(userID, description string) string {
	return fmt.Sprintf("%s %s\n\nXP awarded after 1 hour of activity", mention(userID), description)
}

func awardText(userID string, res xp.Result) string {
	if res.Streak > 1 {
		return fmt.Sprintf("%s • **%dh streak**\n\n`XP:` +%d • `Total:` %d • `Level:` %d\n🔥 %dx multiplier",
			mention(userID), res.Streak, res.Awarded, res.XP, res.Level, res.Multiplier)
	}
	return fmt.Sprintf("%s %s\n\n`XP:` +%d • `Total:` %d • `Level:` %d",
		mention(userID), res.Selection.Description(), res.Awarded, res.XP, res.Level)
}
