package bot

import (
	"errors"
	"strings"
	"testing"

	"activity-xp/internal/activity"
	"activity-xp/internal/errs"
	"activity-xp/internal/modules/rewards"
	"activity-xp/internal/xp"

	"github.com/bwmarrin/discordgo"
)

func TestPaginate(t *testing.T) {
	cases := []struct {
		requested, count int
		want             page
	}{
		{1, 25, page{Number: 1, Total: 3, Offset: 0}},
		{3, 25, page{Number: 3, Total: 3, Offset: 20}},
		{9, 25, page{Number: 3, Total: 3, Offset: 20}},
		{0, 10, page{Number: 1, Total: 1, Offset: 0}},
		{2, 0, page{Number: 1, Total: 1, Offset: 0}},
	}
	for _, tc := range cases {
		if got := paginate(tc.requested, tc.count, leaderboardPageSize); got != tc.want {
			t.Fatalf("paginate(%d, %d) = %+v, want %+v", tc.requested, tc.count, got, tc.want)
		}
	}
}

func TestLeaderboardFormatting(t *testing.T) {
	if medal(1) != "🥇" || medal(3) != "🥉" || medal(4) != "`04`" || medal(12) != "`12`" {
		t.Fatalf("unexpected medals")
	}
	if got := groupDigits(1234567); got != "1,234,567" {
		t.Fatalf("unexpected grouping %q", got)
	}
	if got := groupDigits(999); got != "999" {
		t.Fatalf("unexpected grouping %q", got)
	}

	line := leaderboardLine(2, "42", 12, 1250, "r10", true)
	if line != "🥈 **<@42>** • Lv.12 • 1,250 XP • <@&r10>" {
		t.Fatalf("unexpected line %q", line)
	}
	footer := leaderboardFooter(page{Number: 2, Total: 3}, 25, 14)
	if footer != "Page 2/3 • 25 total members • Your rank: #14" {
		t.Fatalf("unexpected footer %q", footer)
	}
	if got := leaderboardFooter(page{Number: 1, Total: 1}, 4, 0); strings.Contains(got, "Your rank") {
		t.Fatalf("unranked caller must not show a rank: %q", got)
	}
}

func TestProgressField(t *testing.T) {
	name, value := progressField(347)
	if name != "Progress to Level 4" {
		t.Fatalf("unexpected name %q", name)
	}
	if !strings.HasPrefix(value, "████░░░░░░ `47%`") || !strings.HasSuffix(value, "47/100 XP") {
		t.Fatalf("unexpected value %q", value)
	}
}

func TestNextTier(t *testing.T) {
	tiers := []rewards.Tier{{Level: 1, RoleID: "a"}, {Level: 10, RoleID: "b"}}
	if tier, ok := nextTier(7, tiers); !ok || tier.RoleID != "b" {
		t.Fatalf("expected tier b, got %+v", tier)
	}
	if _, ok := nextTier(10, tiers); ok {
		t.Fatalf("expected no next tier at the top")
	}
}

func TestNotificationText(t *testing.T) {
	sel := activity.Selection{Kind: activity.KindPlaying, Name: "Foo", Label: "Playing: Foo"}
	if got := firstSightingText("7", sel.Description()); got != "<@7> playing Foo\n\nXP awarded after 1 hour of activity" {
		t.Fatalf("unexpected first sighting text %q", got)
	}

	streak := awardText("7", xp.Result{Selection: sel, Streak: 3, Multiplier: 3, Awarded: 36, XP: 136, Level: 1})
	if !strings.Contains(streak, "**3h streak**") || !strings.Contains(streak, "🔥 3x multiplier") {
		t.Fatalf("unexpected streak text %q", streak)
	}
	if got := streakLine(1, "7", 5, "Playing: Foo"); got != "🥇 <@7> • 5h • 🎮 Foo" {
		t.Fatalf("unexpected streak line %q", got)
	}
}

func TestUserMessage(t *testing.T) {
	disabled := errs.E(errs.KindConfiguration, "xp command", errs.ErrFeatureDisabled)
	if got := userMessage(disabled); !strings.Contains(got, "not configured") {
		t.Fatalf("unexpected disabled message %q", got)
	}
	hierarchy := errs.E(errs.KindPermission, "reward role", errors.New("I cannot manage this role"))
	if got := userMessage(hierarchy); got != "❌ I cannot manage this role" {
		t.Fatalf("unexpected permission message %q", got)
	}
	if got := userMessage(errs.E(errs.KindTransient, "store", errors.New("database is locked"))); !strings.Contains(got, "try again") {
		t.Fatalf("unexpected transient message %q", got)
	}
}

func TestOptionMap(t *testing.T) {
	opts := optionMap([]*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "level", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(5)},
		{Name: "role", Type: discordgo.ApplicationCommandOptionRole, Value: "r5"},
		{Name: "create_roles", Type: discordgo.ApplicationCommandOptionBoolean, Value: true},
	})
	if opts.integer("level", 0) != 5 || opts.str("role") != "r5" || !opts.boolean("create_roles") {
		t.Fatalf("unexpected option values")
	}
	if opts.integer("page", 1) != 1 || opts.str("member") != "" || opts.boolean("missing") {
		t.Fatalf("unexpected defaults")
	}
}

func TestIsAdmin(t *testing.T) {
	admin := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Member: &discordgo.Member{Permissions: discordgo.PermissionManageGuild}}}
	member := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Member: &discordgo.Member{Permissions: discordgo.PermissionSendMessages}}}
	if !isAdmin(admin) || isAdmin(member) {
		t.Fatalf("unexpected admin checks")
	}
}
