package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"server-warden/internal/app"
	"server-warden/internal/config"
	"server-warden/internal/guildconfig"
	"server-warden/internal/limits"
)

const testGuild = "100000000000000001"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DiscordToken:       "token",
		DefaultPrefix:      "!",
		DefaultLanguage:    "en",
		GuildConfigDir:     filepath.Join(dir, "guilds"),
		GuildConfigBackups: 1,
		DatabaseType:       config.DatabaseTypeSQLite,
		Database:           filepath.Join(dir, "audit.sqlite3"),
		WizardTimeout:      time.Minute,
		CommandRate:        1,
		CommandBurst:       5,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// seed prepares stores, closes them and returns an opener over the same
// files.
func seed(t *testing.T, fn func(a *app.App)) opener {
	t.Helper()
	cfg := testConfig(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := app.Open(context.Background(), cfg, log)
	require.NoError(t, err)
	fn(a)
	require.NoError(t, a.Close())

	return func(ctx context.Context) (*app.App, error) {
		return app.Open(ctx, cfg, log)
	}
}

func execute(t *testing.T, open opener, args ...string) (string, error) {
	t.Helper()
	root, closeApp := newRootCmd(open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	require.NoError(t, closeApp())
	return out.String(), err
}

func TestGuildsAndShow(t *testing.T) {
	open := seed(t, func(a *app.App) {
		_, err := a.Guilds.Update(testGuild, func(gc *guildconfig.GuildConfig) error {
			gc.Prefix = "?"
			gc.Channels.ModLog = "400000000000000001"
			return nil
		})
		require.NoError(t, err)
	})

	out, err := execute(t, open, "guilds")
	require.NoError(t, err)
	assert.Contains(t, out, testGuild)
	assert.Contains(t, out, "400000000000000001")

	out, err = execute(t, open, "show", testGuild)
	require.NoError(t, err)
	assert.Regexp(t, `prefix: ["']\?["']`, out)
	assert.Contains(t, out, "400000000000000001")

	out, err = execute(t, open, "show", testGuild, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"prefix": "?"`)

	_, err = execute(t, open, "show", testGuild, "--format", "toml")
	assert.Error(t, err)
}

func TestLimits(t *testing.T) {
	open := seed(t, func(a *app.App) {
		_, err := a.Guilds.Update(testGuild, func(gc *guildconfig.GuildConfig) error {
			gc.Limits.Add(limits.ScopeCommand, "ping", limits.RolesBlacklist, "300000000000000001")
			return nil
		})
		require.NoError(t, err)
	})

	out, err := execute(t, open, "limits", testGuild)
	require.NoError(t, err)
	assert.Contains(t, out, "ping")
	assert.Contains(t, out, "<@&300000000000000001>")
}

func TestHistory(t *testing.T) {
	open := seed(t, func(a *app.App) {
		ctx := context.Background()
		_, err := a.Audit.ObserveUser(ctx, &discordgo.User{ID: "300", Username: "ann", Avatar: "a1"})
		require.NoError(t, err)
		_, err = a.Audit.ObserveUser(ctx, &discordgo.User{ID: "300", Username: "bea", Avatar: "a2"})
		require.NoError(t, err)
	})

	out, err := execute(t, open, "history", "names", "300")
	require.NoError(t, err)
	assert.Contains(t, out, "username")
	assert.Contains(t, out, "bea")

	out, err = execute(t, open, "history", "avatars", "300", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "a2")
}

func TestDocs(t *testing.T) {
	open := seed(t, func(*app.App) {})

	out, err := execute(t, open, "docs", "--stdout", "--prefix", "?")
	require.NoError(t, err)
	assert.Contains(t, out, "`?ping`")

	path := filepath.Join(t.TempDir(), "COMMANDS.md")
	_, err = execute(t, open, "docs", "-o", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "`!config`")

	empty := filepath.Join(t.TempDir(), "empty.tmpl")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o644))
	_, err = execute(t, open, "docs", "--stdout", "-t", empty)
	assert.ErrorIs(t, err, errEmptyTemplate)
}
