package bot

import (
	"context"
	"errors"
	"net/http"

	"activity-xp/internal/errs"

	"github.com/bwmarrin/discordgo"
)

// discordMembers adapts the discordgo session to the role syncer and the
// recovery directory.
type discordMembers struct {
	session *discordgo.Session
}

func (m discordMembers) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	member, err := m.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classifyRESTError("guild member", err)
	}
	return member.Roles, nil
}

func (m discordMembers) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	if err := m.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return classifyRESTError("add role", err)
	}
	return nil
}

func (m discordMembers) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	if err := m.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return classifyRESTError("remove role", err)
	}
	return nil
}

func (m discordMembers) CreateRole(ctx context.Context, guildID, name string, color int) (string, error) {
	role, err := m.session.GuildRoleCreate(guildID, &discordgo.RoleParams{Name: name, Color: &color}, discordgo.WithContext(ctx))
	if err != nil {
		return "", classifyRESTError("create role", err)
	}
	return role.ID, nil
}

func (m discordMembers) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	if m.session.State != nil {
		if channel, err := m.session.State.Channel(channelID); err == nil && channel != nil {
			return true, nil
		}
	}
	if _, err := m.session.Channel(channelID, discordgo.WithContext(ctx)); err != nil {
		if isUnknown(err, discordgo.ErrCodeUnknownChannel) {
			return false, nil
		}
		return false, classifyRESTError("channel", err)
	}
	return true, nil
}

func (m discordMembers) GuildRoleIDs(ctx context.Context, guildID string) (map[string]struct{}, error) {
	var roles []*discordgo.Role
	if m.session.State != nil {
		if guild, err := m.session.State.Guild(guildID); err == nil && guild != nil && len(guild.Roles) > 0 {
			roles = guild.Roles
		}
	}
	if roles == nil {
		fetched, err := m.session.GuildRoles(guildID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, classifyRESTError("guild roles", err)
		}
		roles = fetched
	}
	ids := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		ids[role.ID] = struct{}{}
	}
	return ids, nil
}

// classifyRESTError maps Discord API failures onto the error kinds the role
// syncer acts on. Unknown members stay unclassified and are not retried.
func classifyRESTError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.E(errs.KindTransient, op, err)
	}

	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return errs.E(errs.KindTransient, op, err)
	}

	code := 0
	if restErr.Message != nil {
		code = restErr.Message.Code
	}
	switch code {
	case discordgo.ErrCodeUnknownRole:
		return errs.E(errs.KindDataIntegrity, op, err)
	case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
		return errs.E(errs.KindPermission, op, err)
	case discordgo.ErrCodeUnknownMember:
		return errs.E(errs.KindUnknown, op, err)
	}

	status := 0
	if restErr.Response != nil {
		status = restErr.Response.StatusCode
	}
	switch {
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return errs.E(errs.KindTransient, op, err)
	case status == http.StatusForbidden:
		return errs.E(errs.KindPermission, op, err)
	}
	return errs.E(errs.KindUnknown, op, err)
}

func isUnknown(err error, code int) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == code {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}
