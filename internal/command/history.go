package command

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"server-warden/internal/config"
	"server-warden/internal/guildconfig"
	"server-warden/internal/locale"
	"server-warden/internal/ui"
	"server-warden/pkg/cmd"
	"server-warden/pkg/util"
)

// historyLimit is how many entries the history commands show.
const historyLimit = 10

var userPattern = regexp.MustCompile(`^(?:<@!?(\d+)>|(` + guildconfig.Snowflake + `))$`)

// userArg returns the user named by the first argument, or the invoker.
func userArg(mc *Context, args []string) (string, bool) {
	if len(args) == 0 {
		return mc.UserID, true
	}
	m := userPattern.FindStringSubmatch(args[0])
	if m == nil {
		return "", false
	}
	if m[1] != "" {
		return m[1], true
	}
	return m[2], true
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

type NamesCommand struct{}

func (NamesCommand) Name() string        { return "names" }
func (NamesCommand) Description() string { return "Show a member's previous names" }
func (NamesCommand) Aliases() []string   { return []string{"namehistory"} }
func (NamesCommand) Meta() Meta {
	return Meta{Category: config.CategoryModeration, Usage: "names [@user]", GuildOnly: true}
}

func (NamesCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := From(inv)
	if err != nil {
		return err
	}
	userID, ok := userArg(mc, inv.Args)
	if !ok {
		return mc.Reply(ctx, mc.T("commands", "user_invalid"))
	}

	changes, err := mc.Audit.NameHistory(ctx, userID, mc.GuildID, historyLimit)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return mc.Reply(ctx, mc.Tf("commands", "names_none", locale.Args{"user": "<@" + userID + ">"}))
	}

	lines := make([]string, 0, len(changes))
	for _, c := range changes {
		lines = append(lines, fmt.Sprintf("%s %s: %s → %s",
			util.DiscordTimestamp(c.Created(), 'd'),
			mc.T("commands", "kind_"+string(c.Kind)),
			orDash(c.Before), orDash(c.After)))
	}
	return mc.ReplyEmbed(ctx, &discordgo.MessageEmbed{
		Title:       mc.T("commands", "names_title"),
		Description: "<@" + userID + ">\n\n" + strings.Join(lines, "\n"),
	})
}

type AvatarsCommand struct{}

func (AvatarsCommand) Name() string        { return "avatars" }
func (AvatarsCommand) Description() string { return "Show a member's previous avatars" }
func (AvatarsCommand) Aliases() []string   { return []string{"avatarhistory"} }
func (AvatarsCommand) Meta() Meta {
	return Meta{Category: config.CategoryModeration, Usage: "avatars [@user]", GuildOnly: true}
}

func (AvatarsCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := From(inv)
	if err != nil {
		return err
	}
	userID, ok := userArg(mc, inv.Args)
	if !ok {
		return mc.Reply(ctx, mc.T("commands", "user_invalid"))
	}

	changes, err := mc.Audit.AvatarHistory(ctx, userID, historyLimit)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return mc.Reply(ctx, mc.Tf("commands", "avatars_none", locale.Args{"user": "<@" + userID + ">"}))
	}

	lines := make([]string, 0, len(changes))
	for i, c := range changes {
		lines = append(lines, fmt.Sprintf("%d. %s [%s](%s)", i+1, util.DiscordTimestamp(c.Created(), 'd'), mc.T("commands", "avatar_link"), c.URL))
	}
	embed := &discordgo.MessageEmbed{
		Title:       mc.T("commands", "avatars_title"),
		Description: "<@" + userID + ">\n\n" + strings.Join(lines, "\n"),
	}
	if changes[0].URL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: changes[0].URL}
	}
	return mc.ReplyEmbed(ctx, embed)
}

type SnipeCommand struct{}

func (SnipeCommand) Name() string        { return "snipe" }
func (SnipeCommand) Description() string { return "Show the last deleted message in this channel" }
func (SnipeCommand) Meta() Meta {
	return Meta{Category: config.CategoryModeration, GuildOnly: true}
}

func (SnipeCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := From(inv)
	if err != nil {
		return err
	}
	rec, err := mc.Audit.LastDeleted(ctx, mc.ChannelID)
	if err != nil {
		return err
	}
	if rec == nil {
		return mc.Reply(ctx, mc.T("commands", "snipe_none"))
	}

	embed := &discordgo.MessageEmbed{
		Author:      &discordgo.MessageEmbedAuthor{Name: rec.AuthorName},
		Description: ui.Truncate(orDash(rec.Content), 4096),
		Timestamp:   time.UnixMilli(rec.RemovedAt).UTC().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: mc.T("commands", "snipe_footer")},
	}
	if rec.Attachments != "" {
		embed.Fields = []*discordgo.MessageEmbedField{{
			Name:  mc.T("commands", "snipe_attachments"),
			Value: ui.Truncate(rec.Attachments, 1024),
		}}
	}
	return mc.ReplyEmbed(ctx, embed)
}
