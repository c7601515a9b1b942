package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"activity-xp/internal/errs"
	"activity-xp/internal/modules/audit"
	"activity-xp/internal/modules/rewards"
	"activity-xp/internal/storage"
	"activity-xp/internal/xp"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) options {
	out := make(options, len(opts))
	for _, opt := range opts {
		out[opt.Name] = opt
	}
	return out
}

func (o options) str(name string) string {
	opt, ok := o[name]
	if !ok {
		return ""
	}
	value, _ := opt.Value.(string)
	return value
}

func (o options) integer(name string, fallback int) int {
	opt, ok := o[name]
	if !ok {
		return fallback
	}
	return int(opt.IntValue())
}

func (o options) boolean(name string) bool {
	opt, ok := o[name]
	return ok && opt.BoolValue()
}

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if interaction.GuildID == "" {
		b.respond(session, interaction, "❌ This command only works in a server.", true)
		return
	}

	ctx := context.Background()
	data := interaction.ApplicationCommandData()
	opts := optionMap(data.Options)

	switch data.Name {
	case "setxpsystem", "disablexp", "setrewardrole", "editrewardrole", "removerewardrole", "backupxp", "xpreport":
		if !isAdmin(interaction) {
			b.respond(session, interaction, "❌ You need Administrator or Manage Server permission to use this command.", true)
			return
		}
	}

	switch data.Name {
	case "setxpsystem":
		b.handleSetup(ctx, session, interaction, data, opts)
	case "disablexp":
		b.handleDisable(ctx, session, interaction)
	case "setrewardrole":
		b.handleSetRewardRole(ctx, session, interaction, data, opts)
	case "editrewardrole":
		b.handleEditRewardRole(ctx, session, interaction, data, opts)
	case "removerewardrole":
		b.handleRemoveRewardRole(ctx, session, interaction, opts)
	case "rewardroles":
		b.handleRewardRoles(ctx, session, interaction)
	case "xp":
		b.handleXP(ctx, session, interaction, data, opts)
	case "rank":
		b.handleRank(ctx, session, interaction, data, opts)
	case "leaderboard":
		b.handleLeaderboard(ctx, session, interaction, opts)
	case "top":
		b.handleTop(ctx, session, interaction, opts)
	case "backupxp":
		b.handleBackup(ctx, session, interaction)
	case "xpreport":
		b.handleReport(ctx, session, interaction, opts)
	}
}

func isAdmin(interaction *discordgo.InteractionCreate) bool {
	if interaction.Member == nil {
		return false
	}
	return interaction.Member.Permissions&(discordgo.PermissionAdministrator|discordgo.PermissionManageGuild) != 0
}

func (b *Bot) handleSetup(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData, opts options) {
	b.deferEphemeral(session, interaction)
	colors := b.cfg.Notifications.EmbedColors

	channelID := opts.str("channel")
	createRoles := opts.boolean("create_roles")
	cfg := storage.GuildConfig{
		GuildID:    interaction.GuildID,
		Enabled:    true,
		LogChannel: channelID,
		TargetRole: opts.str("target_role"),
		AutoRoles:  createRoles,
	}
	if err := b.store.UpsertGuildConfig(ctx, cfg); err != nil {
		b.logger.Error("xp setup failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
		b.editEmbed(session, interaction, b.commandEmbed("XP System Setup", userMessage(err), colors.Error, nil))
		return
	}
	b.audit.Log(ctx, interaction.GuildID, interactionUserID(interaction), audit.EventConfig, "xp enabled in "+channelID, 0)

	autoRoles := "❌ No"
	if createRoles {
		autoRoles = "✅ Yes"
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Log Channel", Value: channelMention(channelID), Inline: true},
		{Name: "Auto Roles", Value: autoRoles, Inline: true},
	}
	if cfg.TargetRole != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Tracked Role", Value: roleMention(cfg.TargetRole), Inline: true})
	}

	if createRoles {
		installed, failed, err := b.rewards.InstallTheme(ctx, interaction.GuildID, opts.str("theme"), b.members)
		if err != nil {
			b.logger.Error("theme install failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
		}
		if len(installed) > 0 {
			lines := make([]string, 0, 6)
			for i, role := range installed {
				if i == 5 {
					lines = append(lines, fmt.Sprintf("*+%d more*", len(installed)-5))
					break
				}
				lines = append(lines, fmt.Sprintf("Lv.%d → %s", role.Level, roleMention(role.RoleID)))
			}
			_, theme := rewards.Theme(opts.str("theme"))
			fields = append(fields, &discordgo.MessageEmbedField{Name: titleCase(theme) + " Roles Created", Value: strings.Join(lines, "\n")})
		}
		if failed > 0 {
			fields = append(fields, &discordgo.MessageEmbedField{Name: "Failed", Value: fmt.Sprintf("%d roles could not be created", failed)})
		}
	} else {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Manual Setup", Value: "Use `/setrewardrole <level> @role` to add rewards"})
	}
	fields = append(fields, &discordgo.MessageEmbedField{
		Name:  "How It Works",
		Value: "Users earn XP by being active (Spotify, gaming, etc.)\nCheck progress with `/xp`, `/rank`, `/leaderboard`",
	})

	b.editEmbed(session, interaction, b.commandEmbed("✅ XP System Setup", "Activity XP tracking is now active!", colors.Info, fields))
}

func (b *Bot) handleDisable(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	colors := b.cfg.Notifications.EmbedColors
	cfg := b.guildConfig(ctx, interaction.GuildID)
	cfg.Enabled = false
	if err := b.store.UpsertGuildConfig(ctx, cfg); err != nil {
		b.respondEmbed(session, interaction, b.commandEmbed("XP System", userMessage(err), colors.Error, nil), true)
		return
	}
	b.audit.Log(ctx, interaction.GuildID, interactionUserID(interaction), audit.EventConfig, "xp disabled", 0)
	b.respondEmbed(session, interaction, b.commandEmbed("✅ XP System Disabled", "Activity tracking is paused. Progress is kept.", colors.Success, nil), true)
}

func (b *Bot) handleSetRewardRole(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData, opts options) {
	b.deferEphemeral(session, interaction)
	colors := b.cfg.Notifications.EmbedColors

	level := opts.integer("level", 0)
	if level < 1 {
		b.editEmbed(session, interaction, b.commandEmbed("Reward Role", "❌ Level must be 1 or higher!", colors.Error, nil))
		return
	}
	role := b.resolvedRole(data, interaction.GuildID, opts.str("role"))
	if err := b.canManageRole(interaction.GuildID, role); err != nil {
		b.editEmbed(session, interaction, b.commandEmbed("Reward Role", userMessage(err), colors.Error, nil))
		return
	}

	previous, err := b.store.SetLevelRole(ctx, interaction.GuildID, level, role.ID)
	if err != nil {
		b.editEmbed(session, interaction, b.commandEmbed("Reward Role", userMessage(err), colors.Error, nil))
		return
	}
	var retired []string
	if previous != "" && previous != role.ID {
		retired = append(retired, previous)
	}
	b.audit.Log(ctx, interaction.GuildID, interactionUserID(interaction), audit.EventConfig, fmt.Sprintf("reward level %d -> %s", level, role.ID), 0)

	report, err := b.rewards.BulkSync(ctx, interaction.GuildID, level, retired...)
	if err != nil {
		b.editEmbed(session, interaction, b.commandEmbed("Reward Role", userMessage(err), colors.Error, nil))
		return
	}
	b.auditSync(ctx, interaction.GuildID, level, report)

	embed := b.commandEmbed("✅ Reward Role Set", fmt.Sprintf("Level **%d** → %s", level, roleMention(role.ID)), colors.Success, syncFields(report))
	b.editEmbed(session, interaction, embed)
}

func (b *Bot) handleEditRewardRole(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData, opts options) {
	b.deferEphemeral(session, interaction)
	colors := b.cfg.Notifications.EmbedColors

	level := opts.integer("level", 0)
	oldRole, found, err := b.store.GetLevelRole(ctx, interaction.GuildID, level)
	if err != nil {
		b.editEmbed(session, interaction, b.commandEmbed("Reward Role", userMessage(err), colors.Error, nil))
		return
	}
	if !found {
		b.editEmbed(session, interaction, b.commandEmbed("Reward Role", fmt.Sprintf("❌ No reward role set for Level %d!", level), colors.Error, nil))
		return
	}
	role := b.resolvedRole(data, interaction.GuildID, opts.str("newrole"))
	if err := b.canManageRole(interaction.GuildID, role); err != nil {
		b.editEmbed(session, interaction, b.commandEmbed("Reward Role", userMessage(err), colors.Error, nil))
		return
	}

	if _, err := b.store.SetLevelRole(ctx, interaction.GuildID, level, role.ID); err != nil {
		b.editEmbed(session, interaction, b.commandEmbed("Reward Role", userMessage(err), colors.Error, nil))
		return
	}
	b.audit.Log(ctx, interaction.GuildID, interactionUserID(interaction), audit.EventConfig, fmt.Sprintf("reward level %d %s -> %s", level, oldRole, role.ID), 0)

	var retired []string
	if oldRole != role.ID {
		retired = append(retired, oldRole)
	}
	report, err := b.rewards.BulkSync(ctx, interaction.GuildID, level, retired...)
	if err != nil {
		b.editEmbed(session, interaction, b.commandEmbed("Reward Role", userMessage(err), colors.Error, nil))
		return
	}
	b.auditSync(ctx, interaction.GuildID, level, report)

	description := fmt.Sprintf("Level **%d**\n%s → %s", level, roleMention(oldRole), roleMention(role.ID))
	fields := append([]*discordgo.MessageEmbedField{{Name: "Users Updated", Value: fmt.Sprint(report.Changed), Inline: true}}, syncFields(report)[1:]...)
	b.editEmbed(session, interaction, b.commandEmbed("✅ Reward Role Updated", description, colors.Success, fields))
}

func (b *Bot) handleRemoveRewardRole(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) {
	b.deferEphemeral(session, interaction)
	colors := b.cfg.Notifications.EmbedColors

	level := opts.integer("level", 0)
	oldRole, found, err := b.store.GetLevelRole(ctx, interaction.GuildID, level)
	if err == nil && found {
		_, err = b.store.DeleteLevelRole(ctx, interaction.GuildID, level)
	}
	if err != nil {
		b.editEmbed(session, interaction, b.commandEmbed("Reward Role", userMessage(err), colors.Error, nil))
		return
	}
	if !found {
		b.editEmbed(session, interaction, b.commandEmbed("Reward Role", fmt.Sprintf("❌ No reward role set for Level %d!", level), colors.Error, nil))
		return
	}
	b.audit.Log(ctx, interaction.GuildID, interactionUserID(interaction), audit.EventConfig, fmt.Sprintf("reward level %d removed", level), 0)

	report, err := b.rewards.BulkSync(ctx, interaction.GuildID, level, oldRole)
	if err != nil {
		b.editEmbed(session, interaction, b.commandEmbed("Reward Role", userMessage(err), colors.Error, nil))
		return
	}
	b.auditSync(ctx, interaction.GuildID, level, report)
	b.editEmbed(session, interaction, b.commandEmbed("🗑️ Reward Role Removed", fmt.Sprintf("Level **%d** no longer grants %s", level, roleMention(oldRole)), colors.Success, syncFields(report)))
}

func (b *Bot) handleRewardRoles(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	colors := b.cfg.Notifications.EmbedColors
	tiers, err := b.rewards.Tiers(ctx, interaction.GuildID)
	if err != nil {
		b.respondEmbed(session, interaction, b.commandEmbed("Reward Roles", userMessage(err), colors.Error, nil), true)
		return
	}
	if len(tiers) == 0 {
		b.respondEmbed(session, interaction, b.commandEmbed("Reward Roles", "No reward roles configured. Use `/setrewardrole <level> @role` to add rewards", colors.Info, nil), true)
		return
	}
	lines := make([]string, 0, len(tiers))
	for _, tier := range tiers {
		lines = append(lines, fmt.Sprintf("Lv.%d → %s", tier.Level, roleMention(tier.RoleID)))
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Reward Roles", strings.Join(lines, "\n"), colors.Info, nil), true)
}

func (b *Bot) handleXP(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData, opts options) {
	if err := b.xpGate(ctx, interaction); err != nil {
		b.respond(session, interaction, userMessage(err), true)
		return
	}
	target := targetUser(data, interaction, opts)
	progress, err := b.store.GetUserXP(ctx, interaction.GuildID, target.ID)
	if err != nil {
		b.respond(session, interaction, userMessage(err), true)
		return
	}
	tiers, err := b.rewards.Tiers(ctx, interaction.GuildID)
	if err != nil {
		b.logger.Warn("reward tiers unavailable", zap.String("guild_id", interaction.GuildID), zap.Error(err))
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Level", Value: fmt.Sprintf("`%d`", progress.Level), Inline: true},
		{Name: "XP", Value: fmt.Sprintf("`%d`", progress.XP), Inline: true},
		{Name: "Next", Value: fmt.Sprintf("`%d`", xp.ToNextLevel(progress.XP)), Inline: true},
	}
	if current, ok := rewards.ResolveRole(progress.Level, tiers); ok {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Role", Value: roleMention(current.RoleID), Inline: true})
	}
	if next, ok := nextTier(progress.Level, tiers); ok {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Next Role", Value: fmt.Sprintf("%s • Lv.%d", roleMention(next.RoleID), next.Level), Inline: true})
	}

	embed := &discordgo.MessageEmbed{
		Description: "**" + displayName(target) + "**",
		Color:       b.cfg.Notifications.EmbedColors.Info,
		Thumbnail:   &discordgo.MessageEmbedThumbnail{URL: target.AvatarURL("")},
		Fields:      fields,
	}
	b.respondEmbed(session, interaction, embed, false)
}

func (b *Bot) handleRank(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData, opts options) {
	if err := b.xpGate(ctx, interaction); err != nil {
		b.respond(session, interaction, userMessage(err), true)
		return
	}
	target := targetUser(data, interaction, opts)
	progress, err := b.store.GetUserXP(ctx, interaction.GuildID, target.ID)
	if err != nil {
		b.respond(session, interaction, userMessage(err), true)
		return
	}
	rank, err := b.store.GetRank(ctx, interaction.GuildID, target.ID)
	if err != nil {
		b.respond(session, interaction, userMessage(err), true)
		return
	}
	if rank == 0 {
		b.respond(session, interaction, fmt.Sprintf("❌ %s has no XP yet!", displayName(target)), true)
		return
	}
	tiers, err := b.rewards.Tiers(ctx, interaction.GuildID)
	if err != nil {
		b.logger.Warn("reward tiers unavailable", zap.String("guild_id", interaction.GuildID), zap.Error(err))
	}

	progressName, progressValue := progressField(progress.XP)
	fields := []*discordgo.MessageEmbedField{{Name: progressName, Value: progressValue}}
	if current, ok := rewards.ResolveRole(progress.Level, tiers); ok {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Reward Role", Value: roleMention(current.RoleID), Inline: true})
	}
	if next, ok := nextTier(progress.Level, tiers); ok {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Next Role", Value: fmt.Sprintf("%s • Lv.%d", roleMention(next.RoleID), next.Level), Inline: true})
	}

	title := displayName(target)
	if rank <= 3 {
		title = medal(rank) + " " + title
	}
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: fmt.Sprintf("Rank **#%d** • Level **%d** • %s XP", rank, progress.Level, groupDigits(progress.XP)),
		Color:       b.cfg.Notifications.EmbedColors.Info,
		Thumbnail:   &discordgo.MessageEmbedThumbnail{URL: target.AvatarURL("")},
		Fields:      fields,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Keep being active to earn more XP!"},
	}
	b.respondEmbed(session, interaction, embed, false)
}

func (b *Bot) handleLeaderboard(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) {
	if err := b.xpGate(ctx, interaction); err != nil {
		b.respond(session, interaction, userMessage(err), true)
		return
	}
	guildID := interaction.GuildID
	ranked, err := b.store.CountRanked(ctx, guildID)
	if err != nil {
		b.respond(session, interaction, userMessage(err), true)
		return
	}
	if ranked == 0 {
		b.respond(session, interaction, "❌ No users with XP yet!", true)
		return
	}

	p := paginate(opts.integer("page", 1), ranked, leaderboardPageSize)
	rows, err := b.store.GetLeaderboard(ctx, guildID, leaderboardPageSize, p.Offset)
	if err != nil {
		b.respond(session, interaction, userMessage(err), true)
		return
	}
	callerID := interactionUserID(interaction)
	callerRank, err := b.store.GetRank(ctx, guildID, callerID)
	if err != nil {
		b.logger.Warn("caller rank unavailable", zap.String("guild_id", guildID), zap.Error(err))
	}
	tiers, err := b.rewards.Tiers(ctx, guildID)
	if err != nil {
		b.logger.Warn("reward tiers unavailable", zap.String("guild_id", guildID), zap.Error(err))
	}

	lines := make([]string, 0, len(rows))
	for i, row := range rows {
		roleID := ""
		if tier, ok := rewards.ResolveRole(row.Level, tiers); ok {
			roleID = tier.RoleID
		}
		lines = append(lines, leaderboardLine(p.Offset+i+1, row.UserID, row.Level, row.XP, roleID, row.UserID == callerID))
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Leaderboard",
		Description: strings.Join(lines, "\n"),
		Color:       b.cfg.Notifications.EmbedColors.Warning,
		Footer:      &discordgo.MessageEmbedFooter{Text: leaderboardFooter(p, ranked, callerRank)},
	}
	b.respondEmbed(session, interaction, embed, false)
}

func (b *Bot) handleTop(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) {
	if err := b.xpGate(ctx, interaction); err != nil {
		b.respond(session, interaction, userMessage(err), true)
		return
	}
	guildID := interaction.GuildID
	color := b.cfg.Notifications.EmbedColors.Warning

	if opts.str("category") == "streak" {
		streaks, err := b.store.GetTopStreaks(ctx, guildID, leaderboardPageSize)
		if err != nil {
			b.respond(session, interaction, userMessage(err), true)
			return
		}
		if len(streaks) == 0 {
			b.respond(session, interaction, "❌ No active streaks!", true)
			return
		}
		lines := make([]string, 0, len(streaks))
		for i, streak := range streaks {
			lines = append(lines, streakLine(i+1, streak.UserID, streak.Hours, streak.Label))
		}
		b.respondEmbed(session, interaction, &discordgo.MessageEmbed{Title: "Top Streaks", Description: strings.Join(lines, "\n"), Color: color}, false)
		return
	}

	rows, err := b.store.GetLeaderboard(ctx, guildID, leaderboardPageSize, 0)
	if err != nil {
		b.respond(session, interaction, userMessage(err), true)
		return
	}
	if len(rows) == 0 {
		b.respond(session, interaction, "❌ No users with XP yet!", true)
		return
	}
	title := "Top XP"
	if opts.str("category") == "level" {
		title = "Top Levels"
	}
	lines := make([]string, 0, len(rows))
	for i, row := range rows {
		lines = append(lines, leaderboardLine(i+1, row.UserID, row.Level, row.XP, "", false))
	}
	b.respondEmbed(session, interaction, &discordgo.MessageEmbed{Title: title, Description: strings.Join(lines, "\n"), Color: color}, false)
}

func (b *Bot) handleBackup(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	b.deferEphemeral(session, interaction)
	colors := b.cfg.Notifications.EmbedColors

	backup, err := b.store.Export(ctx)
	if err != nil {
		b.editEmbed(session, interaction, b.commandEmbed("Backup", "❌ Backup failed: "+err.Error(), colors.Error, nil))
		return
	}
	path, err := storage.SaveBackupFile(b.cfg.BackupDir, interaction.GuildID, backup)
	if err != nil {
		b.logger.Error("backup write failed", zap.Error(err))
		b.editEmbed(session, interaction, b.commandEmbed("Backup", "❌ Backup failed: "+err.Error(), colors.Error, nil))
		return
	}
	b.logger.Info("xp backup written", zap.String("path", path), zap.Int("users", len(backup.UserXP)))
	b.editEmbed(session, interaction, b.commandEmbed("💾 Backup Created", fmt.Sprintf("✅ Database backed up to `%s`", path), colors.Success, []*discordgo.MessageEmbedField{
		{Name: "Users", Value: fmt.Sprint(len(backup.UserXP)), Inline: true},
		{Name: "Streaks", Value: fmt.Sprint(len(backup.Streaks)), Inline: true},
		{Name: "Reward Roles", Value: fmt.Sprint(len(backup.LevelRoles)), Inline: true},
	}))
}

func (b *Bot) handleReport(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts options) {
	colors := b.cfg.Notifications.EmbedColors
	window := 24 * time.Hour
	if opts.str("period") == "week" {
		window = 7 * 24 * time.Hour
	}
	report, err := b.analytics.Report(ctx, interaction.GuildID, time.Now().Add(-window), 5)
	if err != nil {
		b.respondEmbed(session, interaction, b.commandEmbed("XP Report", userMessage(err), colors.Error, nil), true)
		return
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Events", Value: fmt.Sprint(report.Total), Inline: true},
		{Name: "XP Awarded", Value: groupDigits(report.XPAwarded), Inline: true},
		{Name: "Awards", Value: fmt.Sprint(report.ByEvent[audit.EventXPAward]), Inline: true},
		{Name: "New Activities", Value: fmt.Sprint(report.ByEvent[audit.EventFirstSighting]), Inline: true},
		{Name: "Level Ups", Value: fmt.Sprint(report.ByEvent[audit.EventLevelUp]), Inline: true},
		{Name: "Roles Synced", Value: fmt.Sprint(report.ByEvent[audit.EventRoleSync]), Inline: true},
	}
	if len(report.Earners) > 0 {
		lines := make([]string, 0, len(report.Earners))
		for i, earner := range report.Earners {
			lines = append(lines, fmt.Sprintf("%s %s • +%s XP", medal(i+1), mention(earner.UserID), groupDigits(earner.XP)))
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Top Earners", Value: strings.Join(lines, "\n")})
	}
	b.respondEmbed(session, interaction, b.commandEmbed("📊 XP Report", "Activity since <t:"+fmt.Sprint(report.Since.Unix())+":R>", colors.Info, fields), true)
}

// xpGate rejects XP queries when the feature is off or the command is used
// outside the configured log channel.
func (b *Bot) xpGate(ctx context.Context, interaction *discordgo.InteractionCreate) error {
	cfg := b.guildConfig(ctx, interaction.GuildID)
	switch {
	case !cfg.Enabled:
		return errs.E(errs.KindConfiguration, "xp command", errs.ErrFeatureDisabled)
	case cfg.LogChannel == "":
		return errs.E(errs.KindConfiguration, "xp command", errs.ErrNoLogChannel)
	case interaction.ChannelID != cfg.LogChannel:
		return errs.E(errs.KindConfiguration, "xp command", fmt.Errorf("XP commands can only be used in %s!", channelMention(cfg.LogChannel)))
	}
	return nil
}

func (b *Bot) canManageRole(guildID string, role *discordgo.Role) error {
	if role == nil || role.ID == "" {
		return errs.E(errs.KindConfiguration, "reward role", errors.New("That role could not be found."))
	}
	if role.ID == guildID || role.Managed {
		return errs.E(errs.KindPermission, "reward role", errors.New("That role cannot be assigned to members."))
	}
	top, ok := b.botTopPosition(guildID)
	if ok && role.Position >= top {
		return errs.E(errs.KindPermission, "reward role", errors.New("I cannot manage this role (it's higher than my highest role)!"))
	}
	return nil
}

func (b *Bot) botTopPosition(guildID string) (int, bool) {
	if b.session.State == nil || b.session.State.User == nil {
		return 0, false
	}
	me, err := b.session.State.Member(guildID, b.session.State.User.ID)
	if err != nil || me == nil {
		return 0, false
	}
	top := 0
	for _, roleID := range me.Roles {
		role, err := b.session.State.Role(guildID, roleID)
		if err == nil && role.Position > top {
			top = role.Position
		}
	}
	return top, true
}

func (b *Bot) resolvedRole(data discordgo.ApplicationCommandInteractionData, guildID, roleID string) *discordgo.Role {
	if roleID == "" {
		return nil
	}
	if data.Resolved != nil {
		if role, ok := data.Resolved.Roles[roleID]; ok && role != nil {
			return role
		}
	}
	if b.session.State != nil {
		if role, err := b.session.State.Role(guildID, roleID); err == nil {
			return role
		}
	}
	return &discordgo.Role{ID: roleID}
}

func (b *Bot) auditSync(ctx context.Context, guildID string, level int, report rewards.BulkReport) {
	details := fmt.Sprintf("level=%d changed=%d correct=%d failed=%d", level, report.Changed, report.AlreadyCorrect, report.Failed)
	b.audit.Log(ctx, guildID, "", audit.EventRoleSync, details, 0)
	if len(report.Pruned) > 0 {
		b.audit.Log(ctx, guildID, "", audit.EventRolePruned, fmt.Sprintf("levels=%v", report.Pruned), 0)
	}
}

func syncFields(report rewards.BulkReport) []*discordgo.MessageEmbedField {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Synced", Value: fmt.Sprintf("%d users updated", report.Changed), Inline: true},
		{Name: "Already Correct", Value: fmt.Sprint(report.AlreadyCorrect), Inline: true},
		{Name: "Failed", Value: fmt.Sprint(report.Failed), Inline: true},
	}
	if len(report.Pruned) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Pruned Levels", Value: fmt.Sprint(report.Pruned), Inline: true})
	}
	return fields
}

func targetUser(data discordgo.ApplicationCommandInteractionData, interaction *discordgo.InteractionCreate, opts options) *discordgo.User {
	if userID := opts.str("member"); userID != "" {
		if data.Resolved != nil {
			if user, ok := data.Resolved.Users[userID]; ok && user != nil {
				return user
			}
		}
		return &discordgo.User{ID: userID}
	}
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User
	}
	if interaction.User != nil {
		return interaction.User
	}
	return &discordgo.User{}
}

func interactionUserID(interaction *discordgo.InteractionCreate) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	if interaction.User != nil {
		return interaction.User.ID
	}
	return ""
}

func displayName(user *discordgo.User) string {
	switch {
	case user == nil:
		return "Unknown member"
	case user.GlobalName != "":
		return user.GlobalName
	case user.Username != "":
		return user.Username
	default:
		return mention(user.ID)
	}
}

func titleCase(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}

// userMessage turns a failure into the text shown to the invoking member.
func userMessage(err error) string {
	if errors.Is(err, errs.ErrFeatureDisabled) {
		return "❌ Activity XP system is not configured in this server.\nAsk an admin to run `/setxpsystem` to set it up!"
	}
	if errors.Is(err, errs.ErrNoLogChannel) {
		return "❌ The XP log channel is not set. Ask an admin to run `/setxpsystem` again."
	}
	var e *errs.Error
	switch errs.KindOf(err) {
	case errs.KindConfiguration, errs.KindPermission:
		if errors.As(err, &e) && e.Err != nil {
			return "❌ " + e.Err.Error()
		}
		return "❌ This server is missing XP configuration."
	case errs.KindTransient:
		return "❌ Discord or the database is busy right now, try again in a moment."
	default:
		return "❌ Something went wrong."
	}
}
