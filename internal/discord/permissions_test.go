package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func TestIsAdministrator(t *testing.T) {
	g := &discordgo.Guild{
		ID:      "1",
		OwnerID: "10",
		Roles: []*discordgo.Role{
			{ID: "20", Name: "Admins", Permissions: discordgo.PermissionAdministrator | discordgo.PermissionSendMessages},
			{ID: "21", Name: "Mods", Permissions: discordgo.PermissionManageMessages},
		},
	}
	member := func(id string, roles ...string) *discordgo.Member {
		return &discordgo.Member{User: &discordgo.User{ID: id}, Roles: roles}
	}

	assert.True(t, isAdministrator(g, member("10")), "owner")
	assert.True(t, isAdministrator(g, member("11", "21", "20")))
	assert.False(t, isAdministrator(g, member("12", "21")))
	assert.False(t, isAdministrator(g, &discordgo.Member{}))
	assert.False(t, isAdministrator(g, nil))
}

func TestResolveRole(t *testing.T) {
	roles := []*discordgo.Role{
		{ID: "300000000000000001", Name: "Admins"},
		{ID: "300000000000000002", Name: "Moderators"},
	}
	tests := []struct {
		ref  string
		want string
		ok   bool
	}{
		{"<@&300000000000000002>", "300000000000000002", true},
		{"300000000000000001", "300000000000000001", true},
		{"moderators", "300000000000000002", true},
		{"@Admins", "300000000000000001", true},
		{"  admins ", "300000000000000001", true},
		{"300000000000000009", "", false},
		{"<@&300000000000000009>", "", false},
		{"everyone", "", false},
	}
	for _, tt := range tests {
		id, ok := resolveRole(roles, tt.ref)
		assert.Equal(t, tt.ok, ok, tt.ref)
		assert.Equal(t, tt.want, id, tt.ref)
	}
}

func TestResolveChannel(t *testing.T) {
	channels := []*discordgo.Channel{
		{ID: "400000000000000001", Name: "mod-log", Type: discordgo.ChannelTypeGuildText},
		{ID: "400000000000000002", Name: "news", Type: discordgo.ChannelTypeGuildNews},
		{ID: "400000000000000003", Name: "voice", Type: discordgo.ChannelTypeGuildVoice},
	}
	tests := []struct {
		ref  string
		want string
		ok   bool
	}{
		{"<#400000000000000001>", "400000000000000001", true},
		{"400000000000000002", "400000000000000002", true},
		{"#Mod-Log", "400000000000000001", true},
		{"news", "400000000000000002", true},
		{"voice", "", false},
		{"general", "", false},
	}
	for _, tt := range tests {
		id, ok := resolveChannel(channels, tt.ref)
		assert.Equal(t, tt.ok, ok, tt.ref)
		assert.Equal(t, tt.want, id, tt.ref)
	}
}
