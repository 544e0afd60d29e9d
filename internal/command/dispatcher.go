package command

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"

	"server-warden/internal/config"
	"server-warden/internal/guildconfig"
	"server-warden/internal/ui"
	"server-warden/pkg/cmd"
)

// Dispatcher turns chat messages into command invocations.
type Dispatcher struct {
	*Services
}

func NewDispatcher(s *Services) *Dispatcher {
	return &Dispatcher{Services: s}
}

// Handle runs the command in m, if any, and reports whether m was a
// command. Command failures are logged and answered with a generic error.
func (d *Dispatcher) Handle(ctx context.Context, m *discordgo.Message) bool {
	if m == nil || m.Author == nil || m.Author.Bot {
		return false
	}

	gc, err := d.guildConfig(m.GuildID)
	if err != nil {
		d.Log.Error("failed to load guild config", "guild_id", m.GuildID, tint.Err(err))
		return false
	}

	name, args, raw, ok := Parse(m.Content, gc.Prefix, d.Platform.BotID())
	if !ok {
		return false
	}
	c := d.Registry.Get(name)
	if c == nil {
		return false
	}

	mc := d.newContext(m, gc)
	err = c.Run(ctx, &cmd.Invocation{Name: name, Args: args, Raw: raw, Data: mc})

	var denied *Denied
	switch {
	case err == nil, errors.As(err, &denied), ui.Finished(err):
	case ctx.Err() != nil:
		d.Log.Debug("command interrupted", "command", c.Name(), tint.Err(err))
	default:
		d.Log.Error("command failed", "command", c.Name(), "guild_id", m.GuildID, "user_id", m.Author.ID, tint.Err(err))
		if rerr := mc.Reply(context.WithoutCancel(ctx), mc.T("errors", "generic")); rerr != nil {
			d.Log.Warn("failed to report command error", tint.Err(rerr))
		}
	}
	return true
}

func (d *Dispatcher) guildConfig(guildID string) (*guildconfig.GuildConfig, error) {
	if guildID == "" {
		return guildconfig.Default("", d.Config.DefaultPrefix, d.Config.DefaultLanguage), nil
	}
	return d.Guilds.Get(guildID)
}

func (d *Dispatcher) newContext(m *discordgo.Message, gc *guildconfig.GuildConfig) *Context {
	mc := &Context{
		Services:    d.Services,
		Message:     m,
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		UserID:      m.Author.ID,
		Guild:       gc,
		Lang:        gc.Language,
		Prefix:      gc.Prefix,
		IsDeveloper: config.IsDeveloper(d.Config, m.Author.ID),
	}
	if m.GuildID == "" {
		return mc
	}

	roles := []string(nil)
	if m.Member != nil {
		roles = m.Member.Roles
	} else if r, err := d.Platform.MemberRoles(m.GuildID, m.Author.ID); err == nil {
		roles = r
	} else {
		d.Log.Warn("failed to look up member roles", "guild_id", m.GuildID, "user_id", m.Author.ID, tint.Err(err))
	}
	mc.RoleIDs = roles
	mc.IsAdmin = d.Platform.IsGuildAdmin(m.GuildID, m.Author.ID) || gc.IsAdminRole(roles)
	return mc
}
