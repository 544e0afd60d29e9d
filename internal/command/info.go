package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"server-warden/internal/config"
	"server-warden/internal/limits"
	"server-warden/internal/locale"
	"server-warden/internal/version"
	"server-warden/pkg/cmd"
)

type HelpCommand struct{}

func (HelpCommand) Name() string        { return "help" }
func (HelpCommand) Description() string { return "List commands or show details for one" }
func (HelpCommand) Aliases() []string   { return []string{"commands", "h"} }
func (HelpCommand) Meta() Meta {
	return Meta{Category: config.CategoryInformation, Usage: "help [command]"}
}

func (c HelpCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := From(inv)
	if err != nil {
		return err
	}
	if len(inv.Args) > 0 {
		return c.detail(ctx, mc, inv.Args[0])
	}

	byCategory := map[string][]string{}
	for _, command := range mc.Registry.GetAll() {
		meta, ok := MetaOf(command)
		if !ok || meta.Hidden || !limits.Evaluate(&mc.Guild.Limits, mc.Subject(), target(command, meta)).Allowed() {
			continue
		}
		byCategory[meta.Category] = append(byCategory[meta.Category],
			fmt.Sprintf("`%s%s` %s", mc.Prefix, command.Name(), describe(mc, command)))
	}

	embed := &discordgo.MessageEmbed{
		Title:  mc.Tf("commands", "help_title", locale.Args{"app": version.AppName}),
		Footer: &discordgo.MessageEmbedFooter{Text: mc.Tf("commands", "help_footer", locale.Args{"prefix": mc.Prefix})},
	}
	for _, category := range config.Categories() {
		lines := byCategory[category]
		if len(lines) == 0 {
			continue
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  mc.T("categories", category),
			Value: strings.Join(lines, "\n"),
		})
	}
	return mc.ReplyEmbed(ctx, embed)
}

func (HelpCommand) detail(ctx context.Context, mc *Context, name string) error {
	command := mc.Registry.Get(name)
	meta, ok := MetaOf(command)
	if command == nil || !ok || meta.Hidden {
		return mc.Reply(ctx, mc.Tf("commands", "help_unknown", locale.Args{"name": name}))
	}

	usage := meta.Usage
	if usage == "" {
		usage = command.Name()
	}
	embed := &discordgo.MessageEmbed{
		Title:       mc.Prefix + command.Name(),
		Description: describe(mc, command),
		Fields: []*discordgo.MessageEmbedField{
			{Name: mc.T("commands", "help_usage"), Value: "`" + mc.Prefix + usage + "`", Inline: true},
			{Name: mc.T("commands", "help_category"), Value: mc.T("categories", meta.Category), Inline: true},
		},
	}
	if aliases := AliasesOf(command); len(aliases) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   mc.T("commands", "help_aliases"),
			Value:  strings.Join(aliases, ", "),
			Inline: true,
		})
	}
	return mc.ReplyEmbed(ctx, embed)
}

// describe returns the localized description of a command, falling back
// to the one it declares.
func describe(mc *Context, c cmd.Command) string {
	key := "desc_" + c.Name()
	if mc.Locale.Exists("commands", key) {
		return mc.T("commands", key)
	}
	return c.Description()
}

func target(c cmd.Command, meta Meta) limits.Target {
	return limits.Target{
		Command:       c.Name(),
		Category:      meta.Category,
		GuildOnly:     meta.GuildOnly,
		AdminOnly:     meta.AdminOnly,
		DeveloperOnly: meta.DeveloperOnly,
	}
}

type PingCommand struct{}

func (PingCommand) Name() string        { return "ping" }
func (PingCommand) Description() string { return "Check bot latency" }
func (PingCommand) Meta() Meta          { return Meta{Category: config.CategoryUtilities} }

func (PingCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := From(inv)
	if err != nil {
		return err
	}
	return mc.Reply(ctx, mc.Tf("commands", "ping_reply", locale.Args{
		"latency": mc.Platform.Latency().Milliseconds(),
	}))
}

type AboutCommand struct{}

func (AboutCommand) Name() string        { return "about" }
func (AboutCommand) Description() string { return "Show bot version and status" }
func (AboutCommand) Aliases() []string   { return []string{"info", "version"} }
func (AboutCommand) Meta() Meta          { return Meta{Category: config.CategoryInformation} }

func (AboutCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := From(inv)
	if err != nil {
		return err
	}
	guilds, err := mc.Guilds.Guilds()
	if err != nil {
		return err
	}

	uptime := time.Since(mc.Started).Round(time.Second)
	return mc.ReplyEmbed(ctx, &discordgo.MessageEmbed{
		Title:       version.AppName,
		Description: mc.T("commands", "about_description"),
		Fields: []*discordgo.MessageEmbedField{
			{Name: mc.T("commands", "about_version"), Value: version.Version, Inline: true},
			{Name: mc.T("commands", "about_guilds"), Value: fmt.Sprint(len(guilds)), Inline: true},
			{Name: mc.T("commands", "about_uptime"), Value: uptime.String(), Inline: true},
			{Name: mc.T("commands", "about_language"), Value: mc.Locale.LanguageName(mc.Lang), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: version.Commit + " · " + version.BuildDate},
	})
}
