package discord

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bwmarrin/discordgo"
)

// The methods below let the rest of the bot talk to Discord without
// importing discordgo sessions: ui.Messenger, command.Platform,
// modlog.Sender and announce.Sender.

func (b *Bot) SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) (string, error) {
	m, err := b.dg.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

func (b *Bot) EditEmbed(ctx context.Context, channelID, messageID string, embed *discordgo.MessageEmbed) error {
	_, err := b.dg.ChannelMessageEditEmbed(channelID, messageID, embed, discordgo.WithContext(ctx))
	return err
}

func (b *Bot) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return b.dg.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
}

func (b *Bot) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return b.dg.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx))
}

func (b *Bot) RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error {
	return b.dg.MessageReactionRemove(channelID, messageID, emoji, userID, discordgo.WithContext(ctx))
}

// SendText sends plain text without pinging anyone it mentions.
func (b *Bot) SendText(ctx context.Context, channelID, text string) (string, error) {
	m, err := b.dg.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:         text,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

func (b *Bot) member(guildID, userID string) (*discordgo.Member, error) {
	if m, err := b.dg.State.Member(guildID, userID); err == nil {
		return m, nil
	}
	m, err := b.dg.GuildMember(guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("member %s of guild %s: %w", userID, guildID, err)
	}
	return m, nil
}

func (b *Bot) guild(guildID string) (*discordgo.Guild, error) {
	if g, err := b.dg.State.Guild(guildID); err == nil {
		return g, nil
	}
	return b.dg.Guild(guildID)
}

// inState runs fn under the state read lock. The gateway handlers update
// cached guilds, members and channels in place.
func (b *Bot) inState(fn func()) {
	b.dg.State.RLock()
	defer b.dg.State.RUnlock()
	fn()
}

func (b *Bot) MemberRoles(guildID, userID string) ([]string, error) {
	m, err := b.member(guildID, userID)
	if err != nil {
		return nil, err
	}
	var roles []string
	b.inState(func() { roles = slices.Clone(m.Roles) })
	return roles, nil
}

// IsGuildAdmin reports whether the user owns the guild or holds a role
// with the Administrator permission.
func (b *Bot) IsGuildAdmin(guildID, userID string) bool {
	g, err := b.guild(guildID)
	if err != nil || g == nil {
		return false
	}
	m, err := b.member(guildID, userID)
	var admin bool
	b.inState(func() {
		if err != nil {
			admin = g.OwnerID == userID
			return
		}
		admin = isAdministrator(g, m)
	})
	return admin
}

// ParentID returns the parent channel of a thread.
func (b *Bot) ParentID(channelID string) string {
	ch, err := b.dg.State.Channel(channelID)
	if err != nil || ch == nil {
		return ""
	}
	var parent string
	b.inState(func() {
		if ch.IsThread() {
			parent = ch.ParentID
		}
	})
	return parent
}

func (b *Bot) Latency() time.Duration {
	return b.dg.HeartbeatLatency()
}

func (b *Bot) BotID() string {
	if b.dg.State == nil {
		return ""
	}
	var id string
	b.inState(func() {
		if b.dg.State.User != nil {
			id = b.dg.State.User.ID
		}
	})
	return id
}

// Role resolves a role mention, ID or name.
func (b *Bot) Role(guildID, ref string) (string, bool) {
	g, err := b.dg.State.Guild(guildID)
	if err != nil {
		return "", false
	}
	var (
		id string
		ok bool
	)
	b.inState(func() { id, ok = resolveRole(g.Roles, ref) })
	return id, ok
}

// Channel resolves a channel mention, ID or name.
func (b *Bot) Channel(guildID, ref string) (string, bool) {
	g, err := b.dg.State.Guild(guildID)
	if err != nil {
		return "", false
	}
	var (
		id string
		ok bool
	)
	b.inState(func() { id, ok = resolveChannel(g.Channels, ref) })
	return id, ok
}
