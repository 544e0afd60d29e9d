// Package discord connects the gateway to the command dispatcher, the
// audit trail and the moderation log.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"server-warden/internal/audit"
	"server-warden/internal/config"
	"server-warden/internal/guildconfig"
	"server-warden/internal/logging"
	"server-warden/internal/modlog"
	"server-warden/internal/waiter"
)

// Dispatcher runs chat commands.
type Dispatcher interface {
	Handle(ctx context.Context, m *discordgo.Message) bool
}

// Bot owns the Discord session.
type Bot struct {
	dg     *discordgo.Session
	cfg    *config.Config
	guilds *guildconfig.Store
	audit  *audit.Store
	waiter *waiter.Waiter
	log    *slog.Logger

	mu       sync.RWMutex
	ctx      context.Context
	commands Dispatcher
	modlog   *modlog.Sink
}

// New creates the session without connecting. The bot can send messages
// once Run has opened the gateway.
func New(cfg *config.Config, guilds *guildconfig.Store, store *audit.Store, w *waiter.Waiter, log *slog.Logger) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildPresences |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsDirectMessageReactions |
		discordgo.IntentsMessageContent
	dg.State.TrackMembers = true
	dg.State.TrackRoles = true
	dg.State.TrackChannels = true
	dg.State.TrackThreads = true

	discordgo.Logger = logging.DiscordgoLogger(log)

	return &Bot{
		dg:     dg,
		cfg:    cfg,
		guilds: guilds,
		audit:  store,
		waiter: w,
		log:    logging.Named(log, "discord"),
		ctx:    context.Background(),
	}, nil
}

// Session exposes the underlying discordgo session.
func (b *Bot) Session() *discordgo.Session { return b.dg }

// Run opens the gateway, handles events until ctx is done and closes the
// session.
func (b *Bot) Run(ctx context.Context, commands Dispatcher, sink *modlog.Sink) error {
	b.mu.Lock()
	b.ctx = ctx
	b.commands = commands
	b.modlog = sink
	b.mu.Unlock()

	for _, h := range []any{
		b.onReady,
		b.onGuildCreate,
		b.onGuildDelete,
		b.onMessageCreate,
		b.onMessageUpdate,
		b.onMessageDelete,
		b.onMessageDeleteBulk,
		b.onReactionAdd,
		b.onMemberAdd,
		b.onMemberRemove,
		b.onMemberUpdate,
		b.onPresenceUpdate,
		b.onRoleDelete,
		b.onChannelDelete,
	} {
		b.dg.AddHandler(h)
	}

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	<-ctx.Done()

	b.log.Info("shutdown signal received, closing gateway")
	b.waiter.Close()
	if err := b.dg.Close(); err != nil {
		return fmt.Errorf("failed to close Discord session: %w", err)
	}
	return nil
}

func (b *Bot) context() context.Context {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ctx
}

func (b *Bot) dispatcher() Dispatcher {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.commands
}

func (b *Bot) sink() *modlog.Sink {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.modlog
}
