package bot

import (
	"context"
	"fmt"

	"activity-xp/internal/activity"
	"activity-xp/internal/modules/audit"
	"activity-xp/internal/xp"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) onPresenceUpdate(session *discordgo.Session, event *discordgo.PresenceUpdate) {
	if event.GuildID == "" || event.User == nil || event.User.ID == "" {
		return
	}
	ctx := context.Background()

	ev := xp.PresenceEvent{
		GuildID:    event.GuildID,
		UserID:     event.User.ID,
		IsBot:      event.User.Bot,
		Activities: activity.FromDiscord(event.Activities),
	}
	if member, err := session.State.Member(event.GuildID, event.User.ID); err == nil && member != nil {
		ev.Roles = member.Roles
		if member.User != nil && member.User.Bot {
			ev.IsBot = true
		}
	}

	res, err := b.engine.PresenceChanged(ctx, ev)
	if err != nil {
		b.logger.Warn("presence update dropped", zap.String("guild_id", ev.GuildID), zap.String("user_id", ev.UserID), zap.Error(err))
		return
	}

	colors := b.cfg.Notifications.EmbedColors
	switch res.Outcome {
	case xp.OutcomeFirstSighting:
		b.audit.Log(ctx, ev.GuildID, ev.UserID, audit.EventFirstSighting, res.Selection.Label, 0)
		embed := &discordgo.MessageEmbed{Description: firstSightingText(ev.UserID, res.Selection.Description()), Color: colors.Info}
		b.sendLog(ctx, ev.GuildID, res.LogChannel, embed)
	case xp.OutcomeAwarded:
		b.audit.Log(ctx, ev.GuildID, ev.UserID, audit.EventXPAward, fmt.Sprintf("%s streak=%d base=%d", res.Selection.Label, res.Streak, res.Base), res.Awarded)
		color := colors.Success
		if res.Streak > 1 {
			color = colors.Warning
		}
		b.sendLog(ctx, ev.GuildID, res.LogChannel, &discordgo.MessageEmbed{Description: awardText(ev.UserID, res), Color: color})
		if res.LeveledUp {
			b.onLevelUp(ctx, ev.GuildID, ev.UserID, res)
		}
	}
}

// onLevelUp grants the reward role for the new level and announces it.
func (b *Bot) onLevelUp(ctx context.Context, guildID, userID string, res xp.Result) {
	b.audit.Log(ctx, guildID, userID, audit.EventLevelUp, fmt.Sprintf("level %d -> %d", res.OldLevel, res.Level), 0)

	tiers, err := b.rewards.Tiers(ctx, guildID)
	if err != nil {
		b.logger.Warn("reward tiers unavailable", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	applied, err := b.rewards.ApplyRole(ctx, guildID, userID, res.Level, tiers)
	if err != nil {
		b.logger.Warn("level up role sync failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
		return
	}
	if !applied.Granted {
		return
	}
	b.audit.Log(ctx, guildID, userID, audit.EventRoleSync, "granted "+applied.Role, 0)

	embed := b.commandEmbed("🎉 LEVEL UP!", fmt.Sprintf("%s reached **Level %d**!", mention(userID), res.Level), b.cfg.Notifications.EmbedColors.Warning, []*discordgo.MessageEmbedField{
		{Name: "New Role", Value: roleMention(applied.Role), Inline: true},
	})
	b.sendLog(ctx, guildID, res.LogChannel, embed)
}
