package bot

import (
	"activity-xp/internal/modules/rewards"

	"github.com/bwmarrin/discordgo"
)

var adminPermission int64 = discordgo.PermissionAdministrator

func commandDefinitions() []*discordgo.ApplicationCommand {
	minLevel := 1.0
	dmAllowed := false

	themeChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(rewards.ThemeNames()))
	for _, name := range rewards.ThemeNames() {
		themeChoices = append(themeChoices, &discordgo.ApplicationCommandOptionChoice{Name: name, Value: name})
	}

	levelOption := func(description string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "level",
			Description: description,
			Required:    true,
			MinValue:    &minLevel,
		}
	}
	memberOption := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "member",
		Description: "Member to check (optional)",
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:                     "setxpsystem",
			Description:              "Setup activity XP system",
			DefaultMemberPermissions: &adminPermission,
			DMPermission:             &dmAllowed,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "Channel for XP notifications and commands",
					Required:     true,
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "create_roles",
					Description: "Create themed reward roles",
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "theme",
					Description: "Role theme when creating roles",
					Choices:     themeChoices,
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "target_role",
					Description: "Only track members with this role",
				},
			},
		},
		{
			Name:                     "disablexp",
			Description:              "Disable activity XP tracking",
			DefaultMemberPermissions: &adminPermission,
			DMPermission:             &dmAllowed,
		},
		{
			Name:                     "setrewardrole",
			Description:              "Set reward role for a level and sync to all users",
			DefaultMemberPermissions: &adminPermission,
			DMPermission:             &dmAllowed,
			Options: []*discordgo.ApplicationCommandOption{
				levelOption("Level required for this role"),
				{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Role to assign", Required: true},
			},
		},
		{
			Name:                     "editrewardrole",
			Description:              "Change reward role for a level",
			DefaultMemberPermissions: &adminPermission,
			DMPermission:             &dmAllowed,
			Options: []*discordgo.ApplicationCommandOption{
				levelOption("Level to edit"),
				{Type: discordgo.ApplicationCommandOptionRole, Name: "newrole", Description: "New role to assign", Required: true},
			},
		},
		{
			Name:                     "removerewardrole",
			Description:              "Remove the reward role of a level",
			DefaultMemberPermissions: &adminPermission,
			DMPermission:             &dmAllowed,
			Options: []*discordgo.ApplicationCommandOption{
				levelOption("Level to clear"),
			},
		},
		{
			Name:         "rewardroles",
			Description:  "List reward roles",
			DMPermission: &dmAllowed,
		},
		{
			Name:         "xp",
			Description:  "Check your XP and level",
			DMPermission: &dmAllowed,
			Options:      []*discordgo.ApplicationCommandOption{memberOption},
		},
		{
			Name:         "rank",
			Description:  "View your rank and detailed stats",
			DMPermission: &dmAllowed,
			Options:      []*discordgo.ApplicationCommandOption{memberOption},
		},
		{
			Name:         "leaderboard",
			Description:  "View XP leaderboard",
			DMPermission: &dmAllowed,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "page", Description: "Page number (default: 1)", MinValue: &minLevel},
			},
		},
		{
			Name:         "top",
			Description:  "View top members by category",
			DMPermission: &dmAllowed,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "category",
					Description: "What to rank by",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "🏆 Total XP", Value: "xp"},
						{Name: "⭐ Highest Level", Value: "level"},
						{Name: "🔥 Current Streaks", Value: "streak"},
					},
				},
			},
		},
		{
			Name:                     "backupxp",
			Description:              "Backup XP database to JSON",
			DefaultMemberPermissions: &adminPermission,
			DMPermission:             &dmAllowed,
		},
		{
			Name:                     "xpreport",
			Description:              "Summarise recent XP activity",
			DefaultMemberPermissions: &adminPermission,
			DMPermission:             &dmAllowed,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "period",
					Description: "day or week",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "day", Value: "day"},
						{Name: "week", Value: "week"},
					},
				},
			},
		},
	}
}

func (b *Bot) registerCommands() error {
	commands := commandDefinitions()

	appID := b.session.State.User.ID
	existing, err := b.session.ApplicationCommands(appID, "")
	if err != nil {
		for _, cmd := range commands {
			if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
				return err
			}
		}
		return nil
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{})
	for _, cmd := range commands {
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, "", current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		_ = b.session.ApplicationCommandDelete(appID, "", cmd.ID)
	}
	return nil
}
