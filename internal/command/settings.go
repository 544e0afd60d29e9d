package command

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"server-warden/internal/config"
	"server-warden/internal/guildconfig"
	"server-warden/internal/limits"
	"server-warden/internal/locale"
	"server-warden/internal/wizard"
	"server-warden/pkg/cmd"
)

type ConfigCommand struct{}

func (ConfigCommand) Name() string        { return "config" }
func (ConfigCommand) Description() string { return "Change the server settings" }
func (ConfigCommand) Aliases() []string   { return []string{"settings"} }
func (ConfigCommand) Meta() Meta {
	return Meta{Category: config.CategorySettings, GuildOnly: true, AdminOnly: true}
}

func (ConfigCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := From(inv)
	if err != nil {
		return err
	}
	return mc.RunWizard(ctx, "config", wizard.Config)
}

type SetupCommand struct{}

func (SetupCommand) Name() string        { return "setup" }
func (SetupCommand) Description() string { return "Walk through the essential settings" }
func (SetupCommand) Meta() Meta {
	return Meta{Category: config.CategorySettings, GuildOnly: true, AdminOnly: true}
}

func (SetupCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := From(inv)
	if err != nil {
		return err
	}
	return mc.RunWizard(ctx, "setup", wizard.Setup)
}

type LimitsCommand struct{}

func (LimitsCommand) Name() string        { return "limits" }
func (LimitsCommand) Description() string { return "Restrict commands to roles and channels" }
func (LimitsCommand) Aliases() []string   { return []string{"permissions"} }
func (LimitsCommand) Meta() Meta {
	return Meta{
		Category:  config.CategorySettings,
		Usage:     "limits [show [command|category]]",
		GuildOnly: true,
		AdminOnly: true,
	}
}

func (LimitsCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := From(inv)
	if err != nil {
		return err
	}
	if len(inv.Args) == 0 || !strings.EqualFold(inv.Args[0], "show") {
		return mc.RunWizard(ctx, "limits", wizard.Limits)
	}

	env := mc.Env()
	title := env.Locale.Text("wizard", "limits_title", mc.Lang)
	if len(inv.Args) == 1 {
		return mc.ReplyEmbed(ctx, &discordgo.MessageEmbed{
			Title:       title,
			Description: env.DescribeLimits(&mc.Guild.Limits),
		})
	}

	name := strings.ToLower(inv.Args[1])
	var scope limits.Scope
	switch {
	case slices.Contains(config.Categories(), name):
		scope = limits.ScopeCategory
	case mc.Registry.Get(name) != nil:
		scope = limits.ScopeCommand
		name = mc.Registry.Get(name).Name()
	default:
		return mc.Reply(ctx, mc.Tf("commands", "limits_unknown", locale.Args{"name": inv.Args[1]}))
	}
	return mc.ReplyEmbed(ctx, &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s: %s", title, name),
		Description: env.DescribeRule(mc.Guild.Limits.Rule(scope, name)),
	})
}

type ModLogCommand struct{}

func (ModLogCommand) Name() string        { return "modlog" }
func (ModLogCommand) Description() string { return "Show or toggle moderation log events" }
func (ModLogCommand) Meta() Meta {
	return Meta{
		Category:  config.CategorySettings,
		Usage:     "modlog [event]",
		GuildOnly: true,
		AdminOnly: true,
	}
}

func (ModLogCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := From(inv)
	if err != nil {
		return err
	}

	gc := mc.Guild
	if len(inv.Args) > 0 {
		ev := guildconfig.Event(strings.ToLower(inv.Args[0]))
		if !slices.Contains(guildconfig.Events(), ev) {
			return mc.Reply(ctx, mc.Tf("commands", "modlog_unknown", locale.Args{"event": inv.Args[0]}))
		}
		gc, err = mc.Guilds.Update(mc.GuildID, func(gc *guildconfig.GuildConfig) error {
			gc.ModLog.Toggle(ev)
			return nil
		})
		if err != nil {
			return err
		}
	}

	channel := mc.T("commands", "modlog_no_channel")
	if gc.Channels.ModLog != "" {
		channel = "<#" + gc.Channels.ModLog + ">"
	}
	var lines []string
	for _, ev := range guildconfig.Events() {
		state := mc.T("wizard", "state_off")
		if gc.ModLog.Enabled(ev) {
			state = mc.T("wizard", "state_on")
		}
		lines = append(lines, fmt.Sprintf("%s %s `%s`", state, mc.T("wizard", "event_"+string(ev)), ev))
	}
	return mc.ReplyEmbed(ctx, &discordgo.MessageEmbed{
		Title:       mc.T("wizard", "modlog_title"),
		Description: mc.Tf("commands", "modlog_status", locale.Args{"channel": channel}) + "\n\n" + strings.Join(lines, "\n"),
	})
}

type ReloadCommand struct{}

func (ReloadCommand) Name() string        { return "reload" }
func (ReloadCommand) Description() string { return "Reload guild settings from disk" }
func (ReloadCommand) Meta() Meta {
	return Meta{Category: config.CategoryDeveloper, DeveloperOnly: true, Hidden: true}
}

func (ReloadCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := From(inv)
	if err != nil {
		return err
	}
	mc.Guilds.ReloadAll()
	return mc.Reply(ctx, mc.T("commands", "reload_done"))
}

type SessionsCommand struct{}

func (SessionsCommand) Name() string        { return "sessions" }
func (SessionsCommand) Description() string { return "List or stop running wizards" }
func (SessionsCommand) Meta() Meta {
	return Meta{Category: config.CategoryDeveloper, Usage: "sessions [stop]", DeveloperOnly: true, Hidden: true}
}

func (SessionsCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := From(inv)
	if err != nil {
		return err
	}
	if len(inv.Args) > 0 && strings.EqualFold(inv.Args[0], "stop") {
		n := mc.Sessions.StopAll()
		return mc.Reply(ctx, mc.Tf("commands", "sessions_stopped", locale.Args{"count": n}))
	}
	active := mc.Sessions.Active()
	if len(active) == 0 {
		return mc.Reply(ctx, mc.T("commands", "sessions_none"))
	}
	lines := make([]string, 0, len(active))
	for _, s := range active {
		lines = append(lines, mc.Tf("commands", "sessions_entry", locale.Args{
			"name":    s.Name,
			"user":    s.Key.UserID,
			"channel": s.Key.ChannelID,
			"minutes": int(time.Since(s.Started).Minutes()),
		}))
	}
	return mc.Reply(ctx, mc.Tf("commands", "sessions_running", locale.Args{"list": strings.Join(lines, "\n")}))
}
