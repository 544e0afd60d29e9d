package guildconfig

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"server-warden/datastore"
	"server-warden/internal/limits"
)

const guildID = "123456789012345678"

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	ds, err := datastore.New(dir)
	require.NoError(t, err)
	known := func(l string) bool { return l == "en" || l == "ru" }
	return NewStore(ds, Defaults{Prefix: "!", Language: "en"}, WithLanguages(known)), dir
}

func TestGetReturnsDefaults(t *testing.T) {
	s, dir := newTestStore(t)

	c, err := s.Get(guildID)
	require.NoError(t, err)
	assert.Equal(t, "!", c.Prefix)
	assert.Equal(t, "en", c.Language)
	assert.True(t, c.ModLog.MessageDelete)
	assert.False(t, c.SetupComplete)

	exists, err := s.Exists(guildID)
	require.NoError(t, err)
	assert.False(t, exists)
	_, err = os.Stat(filepath.Join(dir, guildID+".json"))
	assert.True(t, os.IsNotExist(err), "Get must not write")
}

func TestUpdatePersists(t *testing.T) {
	s, dir := newTestStore(t)

	updated, err := s.Update(guildID, func(c *GuildConfig) error {
		c.Prefix = "?"
		c.Language = "ru"
		require.NoError(t, c.Channels.Set(ChannelModLog, "223456789012345678"))
		require.NoError(t, c.Roles.Set(RoleAdmin, []string{"323456789012345678", "323456789012345678"}))
		c.Limits.Add(limits.ScopeCommand, "ping", limits.RolesBlacklist, "423456789012345678")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"323456789012345678"}, updated.Roles.Admin)

	ds, err := datastore.New(dir)
	require.NoError(t, err)
	fresh := NewStore(ds, Defaults{Prefix: "!", Language: "en"})
	c, err := fresh.Get(guildID)
	require.NoError(t, err)
	assert.Equal(t, "?", c.Prefix)
	assert.Equal(t, "ru", c.Language)
	assert.Equal(t, "223456789012345678", c.Channels.Get(ChannelModLog))
	assert.Equal(t, []string{"423456789012345678"}, c.Limits.Rule(limits.ScopeCommand, "ping").Roles.Blacklist)
}

func TestUpdateRejectsInvalid(t *testing.T) {
	s, _ := newTestStore(t)

	testCases := []struct {
		name string
		fn   func(*GuildConfig) error
		want error
	}{
		{name: "prefix with space", fn: func(c *GuildConfig) error { c.Prefix = "a b"; return nil }, want: ErrInvalidPrefix},
		{name: "prefix too long", fn: func(c *GuildConfig) error { c.Prefix = "!!!!!!"; return nil }, want: ErrInvalidPrefix},
		{name: "unknown language", fn: func(c *GuildConfig) error { c.Language = "xx"; return nil }, want: ErrUnknownLanguage},
		{name: "callback error", fn: func(c *GuildConfig) error { return errors.New("nope") }},
		{name: "bad channel id", fn: func(c *GuildConfig) error { c.Channels.ModLog = "general"; return nil }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Update(guildID, tc.fn)
			require.Error(t, err)
			if tc.want != nil {
				assert.ErrorIs(t, err, tc.want)
			}
		})
	}

	exists, err := s.Exists(guildID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGetReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Ensure(guildID)
	require.NoError(t, err)

	c, err := s.Get(guildID)
	require.NoError(t, err)
	c.Prefix = "changed"
	c.Limits.Add(limits.ScopeCommand, "ping", limits.RolesWhitelist, "1")

	again, err := s.Get(guildID)
	require.NoError(t, err)
	assert.Equal(t, "!", again.Prefix)
	assert.Nil(t, again.Limits.Rule(limits.ScopeCommand, "ping"))
}

func TestEnsureOnce(t *testing.T) {
	s, _ := newTestStore(t)

	created, err := s.Ensure(guildID)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Ensure(guildID)
	require.NoError(t, err)
	assert.False(t, created)

	guilds, err := s.Guilds()
	require.NoError(t, err)
	assert.Equal(t, []string{guildID}, guilds)
}

func TestConcurrentUpdates(t *testing.T) {
	s, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(guildID, func(c *GuildConfig) error {
				c.ModLog.Toggle(EventMemberJoin)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := s.Get(guildID)
	require.NoError(t, err)
	assert.True(t, c.ModLog.MemberJoin, "an even number of toggles restores the default")
}

func TestReloadPicksUpExternalEdits(t *testing.T) {
	s, dir := newTestStore(t)
	_, err := s.Update(guildID, func(c *GuildConfig) error { c.Prefix = "$"; return nil })
	require.NoError(t, err)

	raw := `{"guild_id":"` + guildID + `","prefix":"%","language":"zz","limits":{"commands":{"ping":{"enabled":false}}}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, guildID+".json"), []byte(raw), 0o644))

	require.NoError(t, s.Reload(guildID))
	c, err := s.Get(guildID)
	require.NoError(t, err)
	assert.Equal(t, "%", c.Prefix)
	assert.Equal(t, "en", c.Language, "unknown language falls back to default")
	assert.NotNil(t, c.Limits.Categories)
	assert.False(t, c.Limits.Rule(limits.ScopeCommand, "ping").IsEnabled())
}

func TestInvalidGuildID(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Get("../../etc")
	assert.Error(t, err)
}

func TestSlotsAndToggles(t *testing.T) {
	c := Default(guildID, "!", "en")

	assert.Error(t, c.Channels.Set("lobby", "1"))
	require.NoError(t, c.Roles.Set(RoleMuted, []string{"5", "6"}))
	assert.Equal(t, []string{"5"}, c.Roles.Get(RoleMuted))
	require.NoError(t, c.Roles.Set(RoleMuted, nil))
	assert.Nil(t, c.Roles.Get(RoleMuted))

	assert.False(t, c.ModLog.Toggle(EventNameChange))
	assert.False(t, c.ModLog.Enabled(EventNameChange))
	assert.False(t, c.ModLog.Enabled("unknown"))

	require.NoError(t, c.Roles.Set(RoleModerator, []string{"7"}))
	require.NoError(t, c.Roles.Set(RoleAdmin, []string{"8"}))
	assert.True(t, c.IsModerator([]string{"7"}))
	assert.True(t, c.IsModerator([]string{"8"}))
	assert.False(t, c.IsAdminRole([]string{"7"}))
}

func TestForgetID(t *testing.T) {
	c := Default(guildID, "!", "en")
	c.Channels.ModLog = "11111"
	c.Channels.Welcome = "22222"
	c.Roles.Admin = []string{"33333", "44444"}
	c.Roles.Muted = "33333"
	c.Limits.Add(limits.ScopeCommand, "ping", limits.RolesWhitelist, "33333")

	assert.True(t, c.ForgetID("33333"))
	assert.Equal(t, []string{"44444"}, c.Roles.Admin)
	assert.Empty(t, c.Roles.Muted)
	assert.Nil(t, c.Limits.Rule(limits.ScopeCommand, "ping"))

	assert.True(t, c.ForgetID("11111"))
	assert.Empty(t, c.Channels.ModLog)
	assert.Equal(t, "22222", c.Channels.Welcome)

	assert.False(t, c.ForgetID("55555"))
}

func TestIsSnowflake(t *testing.T) {
	assert.True(t, IsSnowflake(guildID))
	assert.True(t, IsSnowflake("123456789012345"))
	assert.False(t, IsSnowflake("12345"))
	assert.False(t, IsSnowflake("1234567890123456789012"))
	assert.False(t, IsSnowflake("<#123456789012345678>"))
}
