// Package modlog turns audited guild events into embeds for a guild's
// moderation log channel.
package modlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"server-warden/internal/audit"
	"server-warden/internal/guildconfig"
	"server-warden/internal/locale"
	"server-warden/internal/logging"
	"server-warden/internal/ui"
	"server-warden/pkg/retrylimit"
	"server-warden/pkg/util"
)

const DefaultAttempts = 3

const (
	colorEdit   = 0xF1C40F
	colorDelete = 0xE74C3C
	colorJoin   = 0x2ECC71
	colorLeave  = 0x95A5A6
	colorName   = 0x3498DB
	colorAvatar = 0x9B59B6
)

// Builder renders events in one language.
type Builder struct {
	Locale *locale.Catalog
	Lang   string
	Now    func() time.Time
}

func (b Builder) t(name string) string {
	return b.Locale.Text("modlog", name, b.Lang)
}

func (b Builder) tf(name string, args locale.Args) string {
	return b.Locale.Format("modlog", name, b.Lang, args)
}

func (b Builder) embed(title string, color int) *discordgo.MessageEmbed {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	return &discordgo.MessageEmbed{
		Title:     title,
		Color:     color,
		Timestamp: now().UTC().Format(time.RFC3339),
	}
}

func field(name, value string, inline bool) *discordgo.MessageEmbedField {
	if value == "" {
		value = "-"
	}
	return &discordgo.MessageEmbedField{Name: name, Value: ui.Truncate(value, 1024), Inline: inline}
}

func mention(userID string) string { return "<@" + userID + ">" }

// MessageEdited describes one content change.
func (b Builder) MessageEdited(e *audit.MessageEdit) *discordgo.MessageEmbed {
	embed := b.embed(b.t("edit_title"), colorEdit)
	embed.Description = b.tf("edit_description", locale.Args{
		"user":    mention(e.AuthorID),
		"channel": "<#" + e.ChannelID + ">",
		"link":    "https://discord.com/channels/" + e.GuildID + "/" + e.ChannelID + "/" + e.MessageID,
	})
	embed.Fields = []*discordgo.MessageEmbedField{
		field(b.t("before"), e.Before, false),
		field(b.t("after"), e.After, false),
	}
	embed.Footer = &discordgo.MessageEmbedFooter{Text: b.tf("footer_ids", locale.Args{"user": e.AuthorID, "message": e.MessageID})}
	return embed
}

// MessageDeleted describes a removed message from its last known state.
func (b Builder) MessageDeleted(rec *audit.MessageRecord) *discordgo.MessageEmbed {
	embed := b.embed(b.t("delete_title"), colorDelete)
	embed.Description = b.tf("delete_description", locale.Args{
		"user":    mention(rec.AuthorID),
		"channel": "<#" + rec.ChannelID + ">",
	})
	embed.Fields = []*discordgo.MessageEmbedField{field(b.t("content"), rec.Content, false)}
	if rec.Attachments != "" {
		embed.Fields = append(embed.Fields, field(b.t("attachments"), rec.Attachments, false))
	}
	embed.Footer = &discordgo.MessageEmbedFooter{Text: b.tf("footer_ids", locale.Args{"user": rec.AuthorID, "message": rec.ID})}
	return embed
}

// MemberJoined shows the new member and the age of their account.
func (b Builder) MemberJoined(m *discordgo.Member) *discordgo.MessageEmbed {
	embed := b.embed(b.t("join_title"), colorJoin)
	embed.Description = b.tf("join_description", locale.Args{"user": mention(m.User.ID), "name": m.User.Username})
	embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: m.User.AvatarURL("256")}
	if created, err := discordgo.SnowflakeTimestamp(m.User.ID); err == nil {
		embed.Fields = []*discordgo.MessageEmbedField{
			field(b.t("account_created"), util.DiscordTimestamp(created, 'R'), true),
		}
	}
	embed.Footer = &discordgo.MessageEmbedFooter{Text: b.tf("footer_user", locale.Args{"user": m.User.ID})}
	return embed
}

// MemberLeft shows a departed member.
func (b Builder) MemberLeft(u *discordgo.User) *discordgo.MessageEmbed {
	embed := b.embed(b.t("leave_title"), colorLeave)
	embed.Description = b.tf("leave_description", locale.Args{"user": mention(u.ID), "name": u.Username})
	embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: u.AvatarURL("256")}
	embed.Footer = &discordgo.MessageEmbedFooter{Text: b.tf("footer_user", locale.Args{"user": u.ID})}
	return embed
}

// NameChanged describes a username, display name or nickname change.
func (b Builder) NameChanged(c audit.Change) *discordgo.MessageEmbed {
	embed := b.embed(b.t("name_title"), colorName)
	embed.Description = b.tf("name_description", locale.Args{
		"user": mention(c.UserID),
		"kind": b.t("kind_" + string(c.Kind)),
	})
	embed.Fields = []*discordgo.MessageEmbedField{
		field(b.t("before"), c.Before, true),
		field(b.t("after"), c.After, true),
	}
	embed.Footer = &discordgo.MessageEmbedFooter{Text: b.tf("footer_user", locale.Args{"user": c.UserID})}
	return embed
}

// AvatarChanged shows the new avatar.
func (b Builder) AvatarChanged(c audit.Change) *discordgo.MessageEmbed {
	embed := b.embed(b.t("avatar_title"), colorAvatar)
	embed.Description = b.tf("avatar_description", locale.Args{"user": mention(c.UserID)})
	if c.URL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: c.URL}
	}
	embed.Footer = &discordgo.MessageEmbedFooter{Text: b.tf("footer_user", locale.Args{"user": c.UserID})}
	return embed
}

// EventOf maps an audited change to the toggle that controls it.
func EventOf(c audit.Change) guildconfig.Event {
	if c.Kind == audit.ChangeAvatar {
		return guildconfig.EventAvatarChange
	}
	return guildconfig.EventNameChange
}

// Change renders c with the builder for its kind.
func (b Builder) Change(c audit.Change) *discordgo.MessageEmbed {
	if c.Kind == audit.ChangeAvatar {
		return b.AvatarChanged(c)
	}
	return b.NameChanged(c)
}

type Sender interface {
	SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) (string, error)
}

// Sink posts events to the modlog channel of a guild when the guild has
// the event enabled.
type Sink struct {
	guilds   *guildconfig.Store
	locale   *locale.Catalog
	sender   Sender
	limiter  *retrylimit.AdaptiveLimiter
	attempts int
	now      func() time.Time
	log      *slog.Logger
}

type Option func(*Sink)

func WithLimiter(l *retrylimit.AdaptiveLimiter) Option {
	return func(s *Sink) { s.limiter = l }
}

func WithAttempts(n int) Option {
	return func(s *Sink) { s.attempts = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Sink) { s.now = now }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Sink) { s.log = logging.Named(log, "modlog") }
}

func NewSink(guilds *guildconfig.Store, cat *locale.Catalog, sender Sender, opts ...Option) *Sink {
	s := &Sink{
		guilds:   guilds,
		locale:   cat,
		sender:   sender,
		limiter:  retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5),
		attempts: DefaultAttempts,
		now:      time.Now,
		log:      logging.Named(slog.Default(), "modlog"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Post renders and sends an event for guildID. It reports whether the
// event was sent; disabled events and guilds without a modlog channel are
// skipped without error.
func (s *Sink) Post(ctx context.Context, guildID string, ev guildconfig.Event, build func(Builder) *discordgo.MessageEmbed) (bool, error) {
	if guildID == "" {
		return false, nil
	}
	gc, err := s.guilds.Get(guildID)
	if err != nil {
		return false, err
	}
	if gc.Channels.ModLog == "" || !gc.ModLog.Enabled(ev) {
		return false, nil
	}

	embed := build(Builder{Locale: s.locale, Lang: gc.Language, Now: s.now})
	err = retrylimit.Discord(ctx, s.limiter, s.attempts, s.log, func() error {
		_, err := s.sender.SendEmbed(ctx, gc.Channels.ModLog, embed)
		return err
	})
	if err != nil {
		return false, err
	}
	s.log.Debug("modlog event posted", "guild_id", guildID, "event", ev)
	return true, nil
}
