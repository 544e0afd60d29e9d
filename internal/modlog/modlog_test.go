package modlog

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"server-warden/datastore"
	"server-warden/internal/audit"
	"server-warden/internal/guildconfig"
	"server-warden/internal/locale"
)

const (
	testGuild  = "100000000000000001"
	modLogChan = "400000000000000001"
)

type sender struct {
	sent []*discordgo.MessageEmbed
	to   []string
	err  error
}

func (s *sender) SendEmbed(_ context.Context, channelID string, embed *discordgo.MessageEmbed) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, embed)
	s.to = append(s.to, channelID)
	return "msg", nil
}

func newSink(t *testing.T, s *sender) (*Sink, *guildconfig.Store) {
	t.Helper()
	ds, err := datastore.New(t.TempDir())
	require.NoError(t, err)
	guilds := guildconfig.NewStore(ds, guildconfig.Defaults{Prefix: "!", Language: "en"})
	cat, err := locale.Builtin("en")
	require.NoError(t, err)
	now := func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return NewSink(guilds, cat, s, WithClock(now), WithAttempts(1)), guilds
}

func builder(t *testing.T) Builder {
	t.Helper()
	cat, err := locale.Builtin("en")
	require.NoError(t, err)
	return Builder{Locale: cat, Lang: "en"}
}

func TestPost(t *testing.T) {
	s := &sender{}
	sink, guilds := newSink(t, s)
	ctx := context.Background()
	build := func(b Builder) *discordgo.MessageEmbed {
		return b.MemberLeft(&discordgo.User{ID: "300", Username: "ann"})
	}

	sent, err := sink.Post(ctx, testGuild, guildconfig.EventMemberLeave, build)
	require.NoError(t, err)
	assert.False(t, sent, "no modlog channel yet")

	_, err = guilds.Update(testGuild, func(gc *guildconfig.GuildConfig) error {
		gc.Channels.ModLog = modLogChan
		return nil
	})
	require.NoError(t, err)

	sent, err = sink.Post(ctx, testGuild, guildconfig.EventMemberLeave, build)
	require.NoError(t, err)
	assert.True(t, sent)
	require.Len(t, s.sent, 1)
	assert.Equal(t, modLogChan, s.to[0])
	assert.Equal(t, "2026-01-02T03:04:05Z", s.sent[0].Timestamp)

	_, err = guilds.Update(testGuild, func(gc *guildconfig.GuildConfig) error {
		gc.ModLog.Toggle(guildconfig.EventMemberLeave)
		return nil
	})
	require.NoError(t, err)
	sent, err = sink.Post(ctx, testGuild, guildconfig.EventMemberLeave, build)
	require.NoError(t, err)
	assert.False(t, sent, "event disabled")
	assert.Len(t, s.sent, 1)

	sent, err = sink.Post(ctx, "", guildconfig.EventMemberLeave, build)
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestPostForbidden(t *testing.T) {
	s := &sender{err: &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}}
	sink, guilds := newSink(t, s)
	_, err := guilds.Update(testGuild, func(gc *guildconfig.GuildConfig) error {
		gc.Channels.ModLog = modLogChan
		return nil
	})
	require.NoError(t, err)

	sent, err := sink.Post(context.Background(), testGuild, guildconfig.EventMemberJoin, func(b Builder) *discordgo.MessageEmbed {
		return b.MemberJoined(&discordgo.Member{User: &discordgo.User{ID: "300000000000000001", Username: "ann"}})
	})
	assert.Error(t, err)
	assert.False(t, sent)
}

func TestBuilders(t *testing.T) {
	b := builder(t)

	edit := b.MessageEdited(&audit.MessageEdit{
		MessageID: "700", GuildID: testGuild, ChannelID: "200", AuthorID: "300",
		Before: "helo", After: "hello",
	})
	require.Len(t, edit.Fields, 2)
	assert.Equal(t, "helo", edit.Fields[0].Value)
	assert.Equal(t, "hello", edit.Fields[1].Value)
	assert.Contains(t, edit.Description, "<@300>")
	assert.Contains(t, edit.Footer.Text, "700")

	deleted := b.MessageDeleted(&audit.MessageRecord{
		ID: "701", ChannelID: "200", AuthorID: "300", Attachments: "https://cdn/x.png",
	})
	require.Len(t, deleted.Fields, 2)
	assert.Equal(t, "-", deleted.Fields[0].Value, "empty content")
	assert.Equal(t, "https://cdn/x.png", deleted.Fields[1].Value)

	joined := b.MemberJoined(&discordgo.Member{User: &discordgo.User{ID: "300000000000000001", Username: "ann"}})
	require.Len(t, joined.Fields, 1)
	assert.Contains(t, joined.Fields[0].Value, ":R>")
	assert.Contains(t, joined.Description, "ann")

	name := b.Change(audit.Change{Kind: audit.ChangeNickname, UserID: "300", Before: "a", After: "b"})
	assert.Contains(t, name.Description, b.t("kind_nickname"))
	assert.Equal(t, guildconfig.EventNameChange, EventOf(audit.Change{Kind: audit.ChangeUsername}))

	avatar := b.Change(audit.Change{Kind: audit.ChangeAvatar, UserID: "300", URL: "https://cdn/a.png"})
	assert.Equal(t, "https://cdn/a.png", avatar.Thumbnail.URL)
	assert.Equal(t, guildconfig.EventAvatarChange, EventOf(audit.Change{Kind: audit.ChangeAvatar}))
}

func TestTextsExist(t *testing.T) {
	b := builder(t)
	for _, key := range []string{
		"edit_title", "edit_description", "delete_title", "delete_description",
		"join_title", "join_description", "leave_title", "leave_description",
		"name_title", "name_description", "avatar_title", "avatar_description",
		"before", "after", "content", "attachments", "account_created",
		"footer_ids", "footer_user",
		"kind_username", "kind_global_name", "kind_nickname",
	} {
		assert.True(t, b.Locale.Exists("modlog", key), key)
	}
}
