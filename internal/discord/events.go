package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"

	"server-warden/internal/guildconfig"
	"server-warden/internal/modlog"
	"server-warden/internal/version"
	"server-warden/pkg/util"
)

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	for _, g := range r.Guilds {
		if b.cfg.IsGuildBlacklisted(g.ID) {
			b.leave(s, g.ID)
		}
	}
	if err := s.UpdateGameStatus(0, b.cfg.DefaultPrefix+"help"); err != nil {
		b.log.Warn("failed to set status", tint.Err(err))
	}
	b.log.Info("bot is running", "app", version.AppName, "user", r.User.Username, "guilds", len(r.Guilds))
}

func (b *Bot) leave(s *discordgo.Session, guildID string) {
	b.log.Info("leaving blacklisted guild", "guild_id", guildID)
	if err := s.GuildLeave(guildID); err != nil {
		b.log.Error("failed to leave guild", "guild_id", guildID, tint.Err(err))
	}
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if b.cfg.IsGuildBlacklisted(g.ID) {
		b.leave(s, g.ID)
		return
	}
	created, err := b.guilds.Ensure(g.ID)
	if err != nil {
		b.log.Error("failed to create guild config", "guild_id", g.ID, tint.Err(err))
	} else if created {
		b.log.Info("joined new guild", "guild_id", g.ID, "name", g.Name)
	}

	// Seed snapshots so later changes have something to compare against.
	go b.observeMembers(b.context(), g.ID, g.Members)
}

func (b *Bot) observeMembers(ctx context.Context, guildID string, members []*discordgo.Member) {
	failed := util.ForEach(ctx, members, 1, func(ctx context.Context, m *discordgo.Member) error {
		if _, err := b.audit.ObserveUser(ctx, m.User); err != nil {
			return err
		}
		_, err := b.audit.ObserveMember(ctx, guildID, m)
		return err
	})
	if failed > 0 {
		b.log.Warn("failed to snapshot some members", "guild_id", guildID, "failed", failed)
	}
}

func (b *Bot) onGuildDelete(_ *discordgo.Session, g *discordgo.GuildDelete) {
	if g.Unavailable {
		b.log.Warn("guild unavailable", "guild_id", g.ID)
		return
	}
	b.log.Info("removed from guild", "guild_id", g.ID)
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}
	ctx := b.context()

	answered := b.waiter.DispatchMessage(m.Message)
	if m.GuildID != "" && !m.Author.Bot {
		if err := b.audit.RecordMessage(ctx, m.Message); err != nil {
			b.log.Warn("failed to record message", "message_id", m.ID, tint.Err(err))
		}
	}
	if answered {
		return
	}
	if d := b.dispatcher(); d != nil {
		d.Handle(ctx, m.Message)
	}
}

func (b *Bot) onMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	if m.Author != nil && m.Author.Bot {
		return
	}
	ctx := b.context()
	edit, err := b.audit.RecordEdit(ctx, m.Message)
	if err != nil {
		b.log.Warn("failed to record edit", "message_id", m.ID, tint.Err(err))
		return
	}
	if edit == nil {
		return
	}
	b.post(ctx, m.GuildID, guildconfig.EventMessageEdit, func(mb modlog.Builder) *discordgo.MessageEmbed {
		return mb.MessageEdited(edit)
	})
}

func (b *Bot) onMessageDelete(_ *discordgo.Session, m *discordgo.MessageDelete) {
	b.recordDelete(b.context(), m.ID)
}

func (b *Bot) onMessageDeleteBulk(_ *discordgo.Session, m *discordgo.MessageDeleteBulk) {
	ctx := b.context()
	for _, id := range m.Messages {
		b.recordDelete(ctx, id)
	}
}

func (b *Bot) recordDelete(ctx context.Context, messageID string) {
	rec, err := b.audit.RecordDelete(ctx, messageID)
	if err != nil {
		b.log.Warn("failed to record delete", "message_id", messageID, tint.Err(err))
		return
	}
	if rec == nil {
		return
	}
	b.post(ctx, rec.GuildID, guildconfig.EventMessageDelete, func(mb modlog.Builder) *discordgo.MessageEmbed {
		return mb.MessageDeleted(rec)
	})
}

func (b *Bot) onReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.UserID == s.State.User.ID {
		return
	}
	b.waiter.DispatchReaction(r.MessageReaction)
}

func (b *Bot) onMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.User == nil || m.User.Bot {
		return
	}
	ctx := b.context()
	b.observeUser(ctx, m.User)
	if _, err := b.audit.ObserveMember(ctx, m.GuildID, m.Member); err != nil {
		b.log.Warn("failed to snapshot member", "guild_id", m.GuildID, tint.Err(err))
	}
	b.post(ctx, m.GuildID, guildconfig.EventMemberJoin, func(mb modlog.Builder) *discordgo.MessageEmbed {
		return mb.MemberJoined(m.Member)
	})
}

func (b *Bot) onMemberRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m.User == nil || m.User.Bot {
		return
	}
	ctx := b.context()
	if err := b.audit.ForgetMember(ctx, m.GuildID, m.User.ID); err != nil {
		b.log.Warn("failed to drop member snapshot", "guild_id", m.GuildID, tint.Err(err))
	}
	b.post(ctx, m.GuildID, guildconfig.EventMemberLeave, func(mb modlog.Builder) *discordgo.MessageEmbed {
		return mb.MemberLeft(m.User)
	})
}

func (b *Bot) onMemberUpdate(_ *discordgo.Session, m *discordgo.GuildMemberUpdate) {
	if m.User == nil || m.User.Bot {
		return
	}
	ctx := b.context()
	b.observeUser(ctx, m.User)

	changes, err := b.audit.ObserveMember(ctx, m.GuildID, m.Member)
	if err != nil {
		b.log.Warn("failed to observe member", "guild_id", m.GuildID, tint.Err(err))
		return
	}
	for _, c := range changes {
		b.post(ctx, m.GuildID, modlog.EventOf(c), func(mb modlog.Builder) *discordgo.MessageEmbed {
			return mb.Change(c)
		})
	}
}

func (b *Bot) onPresenceUpdate(_ *discordgo.Session, p *discordgo.PresenceUpdate) {
	if p.User == nil {
		return
	}
	b.observeUser(b.context(), p.User)
}

// observeUser records account-wide changes and reports them to every
// guild the user is a member of.
func (b *Bot) observeUser(ctx context.Context, u *discordgo.User) {
	changes, err := b.audit.ObserveUser(ctx, u)
	if err != nil {
		b.log.Warn("failed to observe user", "user_id", u.ID, tint.Err(err))
		return
	}
	if len(changes) == 0 {
		return
	}
	for _, guildID := range b.sharedGuilds(u.ID) {
		for _, c := range changes {
			b.post(ctx, guildID, modlog.EventOf(c), func(mb modlog.Builder) *discordgo.MessageEmbed {
				return mb.Change(c)
			})
		}
	}
}

func (b *Bot) sharedGuilds(userID string) []string {
	b.dg.State.RLock()
	guilds := make([]string, 0, len(b.dg.State.Guilds))
	for _, g := range b.dg.State.Guilds {
		guilds = append(guilds, g.ID)
	}
	b.dg.State.RUnlock()

	var shared []string
	for _, id := range guilds {
		if _, err := b.dg.State.Member(id, userID); err == nil {
			shared = append(shared, id)
		}
	}
	return shared
}

func (b *Bot) onRoleDelete(_ *discordgo.Session, r *discordgo.GuildRoleDelete) {
	b.forget(r.GuildID, r.RoleID)
}

func (b *Bot) onChannelDelete(_ *discordgo.Session, c *discordgo.ChannelDelete) {
	if c.GuildID != "" {
		b.forget(c.GuildID, c.ID)
	}
}

// forget drops a deleted role or channel from the guild's settings.
func (b *Bot) forget(guildID, id string) {
	exists, err := b.guilds.Exists(guildID)
	if err != nil || !exists {
		return
	}
	changed := false
	_, err = b.guilds.Update(guildID, func(gc *guildconfig.GuildConfig) error {
		changed = gc.ForgetID(id)
		return nil
	})
	if err != nil {
		b.log.Error("failed to forget deleted id", "guild_id", guildID, "id", id, tint.Err(err))
		return
	}
	if changed {
		b.log.Info("removed deleted id from settings", "guild_id", guildID, "id", id)
	}
}

func (b *Bot) post(ctx context.Context, guildID string, ev guildconfig.Event, build func(modlog.Builder) *discordgo.MessageEmbed) {
	sink := b.sink()
	if sink == nil || guildID == "" {
		return
	}
	if _, err := sink.Post(ctx, guildID, ev, build); err != nil {
		b.log.Warn("failed to post modlog event", "guild_id", guildID, "event", ev, tint.Err(err))
	}
}
