// Package announce delivers one embed to the configured changelog channel
// of every guild, with bounded parallelism and adaptive retry.
package announce

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"

	"server-warden/internal/guildconfig"
	"server-warden/internal/logging"
	"server-warden/pkg/retrylimit"
	"server-warden/pkg/util"
)

const (
	DefaultWorkers  = 4
	DefaultAttempts = 3
)

type Sender interface {
	SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) (string, error)
}

// Report counts the outcome of a broadcast. Skipped guilds have no
// changelog channel configured.
type Report struct {
	Delivered int
	Failed    int
	Skipped   int
}

type Target struct {
	GuildID   string
	ChannelID string
}

type Announcer struct {
	guilds   *guildconfig.Store
	sender   Sender
	limiter  *retrylimit.AdaptiveLimiter
	workers  int
	attempts int
	log      *slog.Logger
}

type Option func(*Announcer)

func WithWorkers(n int) Option {
	return func(a *Announcer) { a.workers = n }
}

func WithAttempts(n int) Option {
	return func(a *Announcer) { a.attempts = n }
}

func WithLimiter(l *retrylimit.AdaptiveLimiter) Option {
	return func(a *Announcer) { a.limiter = l }
}

func WithLogger(log *slog.Logger) Option {
	return func(a *Announcer) { a.log = logging.Named(log, "announce") }
}

func New(guilds *guildconfig.Store, sender Sender, opts ...Option) *Announcer {
	a := &Announcer{
		guilds:   guilds,
		sender:   sender,
		limiter:  retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5),
		workers:  DefaultWorkers,
		attempts: DefaultAttempts,
		log:      logging.Named(slog.Default(), "announce"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Targets lists guilds with a changelog channel and counts those without.
func (a *Announcer) Targets() ([]Target, int, error) {
	ids, err := a.guilds.Guilds()
	if err != nil {
		return nil, 0, err
	}
	var targets []Target
	skipped := 0
	for _, id := range ids {
		gc, err := a.guilds.Get(id)
		if err != nil {
			a.log.Warn("skipping unreadable guild config", "guild_id", id, tint.Err(err))
			skipped++
			continue
		}
		if gc.Channels.Changelog == "" {
			skipped++
			continue
		}
		targets = append(targets, Target{GuildID: id, ChannelID: gc.Channels.Changelog})
	}
	return targets, skipped, nil
}

// Broadcast sends embed to every target. Failures are counted, not returned.
func (a *Announcer) Broadcast(ctx context.Context, embed *discordgo.MessageEmbed) (Report, error) {
	targets, skipped, err := a.Targets()
	if err != nil {
		return Report{}, err
	}

	failed := util.ForEach(ctx, targets, a.workers, func(ctx context.Context, t Target) error {
		err := retrylimit.Discord(ctx, a.limiter, a.attempts, a.log, func() error {
			_, err := a.sender.SendEmbed(ctx, t.ChannelID, embed)
			return err
		})
		if err != nil {
			a.log.Warn("announcement not delivered", "guild_id", t.GuildID, "channel_id", t.ChannelID, tint.Err(err))
		}
		return err
	})

	report := Report{Delivered: len(targets) - failed, Failed: failed, Skipped: skipped}
	a.log.Info("announcement broadcast", "delivered", report.Delivered, "failed", report.Failed, "skipped", report.Skipped)
	return report, nil
}
