package bot

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"activity-xp/internal/analytics"
	"activity-xp/internal/config"
	"activity-xp/internal/modules/audit"
	"activity-xp/internal/modules/rewards"
	"activity-xp/internal/recovery"
	"activity-xp/internal/retry"
	"activity-xp/internal/status"
	"activity-xp/internal/storage"
	"activity-xp/internal/xp"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *storage.Store
	engine    *xp.Engine
	rewards   *rewards.Syncer
	audit     *audit.Logger
	analytics *analytics.Service
	recovery  *recovery.Service
	status    *status.Rotator
	session   *discordgo.Session
	members   discordMembers
	connected atomic.Bool
	health    atomic.Pointer[recovery.Health]
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, engine *xp.Engine, auditLogger *audit.Logger, analyticsSvc *analytics.Service) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildPresences

	members := discordMembers{session: session}
	syncer := rewards.NewSyncer(store, members, rewards.Config{
		CallTimeout:   cfg.Rewards.CallTimeout(),
		Retry:         retry.DefaultPolicy(cfg.Rewards.RetryAttempts),
		BulkPerSecond: cfg.Rewards.BulkPerSecond,
		BulkBurst:     cfg.Rewards.BulkBurst,
	}, logger.Named("rewards"))

	return &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		engine:    engine,
		rewards:   syncer,
		audit:     auditLogger,
		analytics: analyticsSvc,
		recovery:  recovery.New(store, members, auditLogger, logger.Named("recovery"), cfg.Rewards.CallTimeout()),
		status:    status.NewRotator(logger.Named("status")),
		session:   session,
		members:   members,
	}, nil
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onConnect)
	b.session.AddHandler(b.onDisconnect)
	b.session.AddHandler(b.onPresenceUpdate)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	if err := b.registerCommands(); err != nil {
		return err
	}
	return nil
}

// Run drives the background loops until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if b.cfg.Status.Enabled {
		g.Go(func() error {
			b.status.Run(ctx, time.Duration(b.cfg.Status.IntervalSeconds)*time.Second, b.setStatus)
			return nil
		})
	}
	g.Go(func() error {
		b.runHealthChecks(ctx)
		return nil
	})
	g.Go(func() error {
		b.runRetention(ctx)
		return nil
	})
	return g.Wait()
}

func (b *Bot) Close() {
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.connected.Store(true)
	b.logger.Info("discord ready", zap.String("user", session.State.User.Username), zap.Int("guilds", len(event.Guilds)))
	go b.recoverGuilds(context.Background())
}

func (b *Bot) onConnect(session *discordgo.Session, event *discordgo.Connect) {
	b.connected.Store(true)
}

func (b *Bot) onDisconnect(session *discordgo.Session, event *discordgo.Disconnect) {
	b.connected.Store(false)
	b.logger.Warn("discord gateway disconnected")
}

func (b *Bot) recoverGuilds(ctx context.Context) {
	reports := b.recovery.Reconcile(ctx, b.guildIDs())
	if !b.cfg.Health.NotifyRecover {
		return
	}
	for _, report := range reports {
		if report.LogChannel == "" {
			continue
		}
		fields := []*discordgo.MessageEmbedField{
			{Name: "Reward Roles", Value: fmt.Sprintf("%d active", report.ValidRoles), Inline: true},
		}
		if len(report.PrunedLevels) > 0 {
			fields = append(fields, &discordgo.MessageEmbedField{Name: "Pruned Levels", Value: fmt.Sprint(report.PrunedLevels), Inline: true})
		}
		embed := b.commandEmbed("Bot Recovery Complete", "Activity XP tracking resumed. Streaks and cooldowns continue from saved progress.", b.cfg.Notifications.EmbedColors.Info, fields)
		b.sendLog(ctx, report.GuildID, report.LogChannel, embed)
	}
}

func (b *Bot) runHealthChecks(ctx context.Context) {
	interval := time.Duration(b.cfg.Health.CheckMinutes) * time.Minute
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			health := b.recovery.Check(ctx, b.guildIDs(), b.connected.Load())
			b.health.Store(&health)
		}
	}
}

func (b *Bot) runRetention(ctx context.Context) {
	if b.cfg.RetentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if _, err := b.audit.Cleanup(ctx, b.cfg.RetentionDays); err != nil {
			b.logger.Warn("audit cleanup failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Bot) setStatus(text string) error {
	return b.session.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: b.cfg.Status.Presence,
		Activities: []*discordgo.Activity{
			{Name: text, Type: discordgo.ActivityTypeWatching},
		},
	})
}

// Healthy reports gateway connectivity and the outcome of the last periodic
// check, if one has run.
func (b *Bot) Healthy() bool {
	if !b.connected.Load() {
		return false
	}
	last := b.health.Load()
	return last == nil || last.StoreErr == nil
}

// HealthHandler serves the liveness probe.
func (b *Bot) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !b.Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("degraded"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func (b *Bot) guildIDs() []string {
	if b.session == nil || b.session.State == nil {
		return nil
	}
	b.session.State.RLock()
	defer b.session.State.RUnlock()
	ids := make([]string, 0, len(b.session.State.Guilds))
	for _, guild := range b.session.State.Guilds {
		if guild != nil {
			ids = append(ids, guild.ID)
		}
	}
	return ids
}

// guildConfig falls back to a disabled configuration when the store cannot
// be read.
func (b *Bot) guildConfig(ctx context.Context, guildID string) storage.GuildConfig {
	cfg, _, err := b.store.GetGuildConfig(ctx, guildID)
	if err != nil {
		b.logger.Warn("guild config fallback", zap.String("guild_id", guildID), zap.Error(err))
		return storage.GuildConfig{GuildID: guildID, AutoRoles: true}
	}
	return cfg
}

// sendLog posts an embed to the guild's XP log channel and forgets the
// channel when Discord reports it gone.
func (b *Bot) sendLog(ctx context.Context, guildID, channelID string, embed *discordgo.MessageEmbed) {
	if channelID == "" || embed == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Rewards.CallTimeout())
	defer cancel()
	_, err := b.session.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(callCtx))
	if err == nil {
		return
	}
	if isUnknown(err, discordgo.ErrCodeUnknownChannel) {
		if clearErr := b.store.ClearLogChannel(ctx, guildID); clearErr != nil {
			b.logger.Error("clear log channel failed", zap.String("guild_id", guildID), zap.Error(clearErr))
			return
		}
		b.logger.Warn("log channel gone, cleared", zap.String("guild_id", guildID), zap.String("channel_id", channelID))
		return
	}
	b.logger.Warn("log channel send failed", zap.String("guild_id", guildID), zap.String("channel_id", channelID), zap.Error(err))
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	if embed == nil {
		b.respond(session, interaction, "No response available.", ephemeral)
		return
	}
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	})
}

// deferEphemeral acknowledges a slow command; the result follows through
// editEmbed.
func (b *Bot) deferEphemeral(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		b.logger.Warn("defer interaction failed", zap.Error(err))
	}
}

func (b *Bot) editEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	embeds := []*discordgo.MessageEmbed{embed}
	if _, err := session.InteractionResponseEdit(interaction.Interaction, &discordgo.WebhookEdit{Embeds: &embeds}); err != nil {
		b.logger.Warn("edit interaction failed", zap.Error(err))
	}
}

func (b *Bot) commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}
