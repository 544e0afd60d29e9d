package discord

import (
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"

	"server-warden/internal/guildconfig"
)

// isAdministrator reports whether a member owns the guild or has a role
// with the Administrator permission.
func isAdministrator(g *discordgo.Guild, m *discordgo.Member) bool {
	if m == nil || m.User == nil {
		return false
	}
	if m.User.ID == g.OwnerID {
		return true
	}
	for _, role := range g.Roles {
		if role.Permissions&discordgo.PermissionAdministrator == 0 {
			continue
		}
		for _, id := range m.Roles {
			if id == role.ID {
				return true
			}
		}
	}
	return false
}

var (
	roleMention    = regexp.MustCompile(`^<@&(\d+)>$`)
	channelMention = regexp.MustCompile(`^<#(\d+)>$`)
)

// resolveRole finds a role by mention, ID or case-insensitive name.
func resolveRole(roles []*discordgo.Role, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if m := roleMention.FindStringSubmatch(ref); m != nil {
		ref = m[1]
	}
	for _, r := range roles {
		if r.ID == ref {
			return r.ID, true
		}
	}
	if guildconfig.IsSnowflake(ref) {
		return "", false
	}
	name := strings.TrimPrefix(ref, "@")
	for _, r := range roles {
		if strings.EqualFold(r.Name, name) {
			return r.ID, true
		}
	}
	return "", false
}

// resolveChannel finds a text channel by mention, ID or case-insensitive
// name.
func resolveChannel(channels []*discordgo.Channel, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if m := channelMention.FindStringSubmatch(ref); m != nil {
		ref = m[1]
	}
	for _, c := range channels {
		if c.ID == ref {
			return c.ID, true
		}
	}
	if guildconfig.IsSnowflake(ref) {
		return "", false
	}
	name := strings.TrimPrefix(ref, "#")
	for _, c := range channels {
		if isText(c) && strings.EqualFold(c.Name, name) {
			return c.ID, true
		}
	}
	return "", false
}

func isText(c *discordgo.Channel) bool {
	return c.Type == discordgo.ChannelTypeGuildText || c.Type == discordgo.ChannelTypeGuildNews
}
