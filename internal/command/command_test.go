package command

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"server-warden/datastore"
	"server-warden/internal/announce"
	"server-warden/internal/audit"
	"server-warden/internal/config"
	"server-warden/internal/guildconfig"
	"server-warden/internal/limits"
	"server-warden/internal/locale"
	"server-warden/internal/ui/uitest"
	"server-warden/pkg/cmd"
	"server-warden/pkg/session"
)

const (
	testGuild = "100000000000000001"
	botID     = "900000000000000001"
	adminID   = uitest.UserID
	memberID  = "3001"
	devID     = "3002"
	modsRole  = "300000000000000002"
)

type platform struct {
	*uitest.Messenger

	mu     sync.Mutex
	texts  []string
	roles  map[string][]string
	admins map[string]bool
}

func (p *platform) SendText(_ context.Context, _, text string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts = append(p.texts, text)
	return "text", nil
}

func (p *platform) MemberRoles(_, userID string) ([]string, error) { return p.roles[userID], nil }
func (p *platform) IsGuildAdmin(_, userID string) bool            { return p.admins[userID] }
func (p *platform) ParentID(string) string                         { return "" }
func (p *platform) Latency() time.Duration                         { return 42 * time.Millisecond }
func (p *platform) BotID() string                                  { return botID }

func (p *platform) Role(_, ref string) (string, bool) {
	if strings.EqualFold(ref, "mods") || ref == modsRole {
		return modsRole, true
	}
	return "", false
}

func (p *platform) Channel(_, ref string) (string, bool) { return "", false }

func (p *platform) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

func (p *platform) said(text string) bool {
	for _, t := range p.Texts() {
		if strings.Contains(t, text) {
			return true
		}
	}
	return false
}

type broadcaster struct{}

func (broadcaster) Broadcast(context.Context, *discordgo.MessageEmbed) (announce.Report, error) {
	return announce.Report{Delivered: 1}, nil
}

type fixture struct {
	d      *Dispatcher
	p      *platform
	script *uitest.Script
	guilds *guildconfig.Store
	audit  *audit.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	ds, err := datastore.New(t.TempDir())
	require.NoError(t, err)
	cat, err := locale.Builtin("en")
	require.NoError(t, err)
	guilds := guildconfig.NewStore(ds, guildconfig.Defaults{Prefix: "!", Language: "en"}, guildconfig.WithLanguages(cat.Has))

	db, err := audit.Open(audit.Options{Type: config.DatabaseTypeSQLite, DSN: filepath.Join(t.TempDir(), "audit.sqlite3")}, log)
	require.NoError(t, err)
	store, err := audit.New(context.Background(), db, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := &uitest.Messenger{}
	p := &platform{
		Messenger: m,
		roles:     map[string][]string{memberID: {modsRole}},
		admins:    map[string]bool{adminID: true},
	}
	script := uitest.NewScript(m)

	reg := cmd.NewRegistry()
	require.NoError(t, Register(reg))

	d := NewDispatcher(&Services{
		Config: &config.Config{
			DefaultPrefix:   "!",
			DefaultLanguage: "en",
			DeveloperIDs:    []string{devID},
			WizardTimeout:   time.Minute,
		},
		Guilds:      guilds,
		Locale:      cat,
		Audit:       store,
		Platform:    p,
		Events:      script,
		Sessions:    session.NewManager(nil),
		Broadcaster: broadcaster{},
		Cooldowns:   NewCooldowns(100, 100),
		Registry:    reg,
		Log:         log,
		Started:     time.Now(),
	})
	return &fixture{d: d, p: p, script: script, guilds: guilds, audit: store}
}

func (f *fixture) send(t *testing.T, userID, content string) bool {
	t.Helper()
	return f.d.Handle(context.Background(), &discordgo.Message{
		ID:        "500",
		GuildID:   testGuild,
		ChannelID: uitest.ChannelID,
		Author:    &discordgo.User{ID: userID},
		Content:   content,
	})
}

func (f *fixture) errText(key string, args locale.Args) string {
	return f.d.Locale.Format("errors", key, "en", args)
}

func (f *fixture) denial(key, command, category string) string {
	return f.errText(key, locale.Args{
		"command":  command,
		"category": f.d.Locale.Text("categories", category, "en"),
	})
}

func (f *fixture) lastOutcome(t *testing.T) string {
	t.Helper()
	logs, err := f.audit.RecentCommands(context.Background(), testGuild, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	return logs[0].Outcome
}

func TestHandleIgnores(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.send(t, memberID, "hello"))
	assert.False(t, f.send(t, memberID, "!nosuchcommand"))
	assert.False(t, f.send(t, memberID, "!"))
	assert.False(t, f.d.Handle(context.Background(), &discordgo.Message{
		GuildID: testGuild, Content: "!ping", Author: &discordgo.User{ID: "4000", Bot: true},
	}))
	assert.False(t, f.d.Handle(context.Background(), nil))
	assert.Empty(t, f.p.Texts())
}

func TestPing(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.send(t, memberID, "!PING"))
	assert.True(t, f.p.said("42"))
	assert.Equal(t, "ok", f.lastOutcome(t))
}

func TestMentionPrefix(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.send(t, memberID, "<@"+botID+"> ping"))
	assert.True(t, f.send(t, memberID, "<@!"+botID+">ping"))
}

func TestGuildPrefix(t *testing.T) {
	f := newFixture(t)
	_, err := f.guilds.Update(testGuild, func(gc *guildconfig.GuildConfig) error {
		gc.Prefix = "?"
		return nil
	})
	require.NoError(t, err)

	assert.False(t, f.send(t, memberID, "!ping"))
	assert.True(t, f.send(t, memberID, "?ping"))
}

func TestAdminOnly(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.send(t, memberID, "!modlog"))
	assert.True(t, f.p.said(f.denial("admin_only", "modlog", config.CategorySettings)))
	assert.Equal(t, "admin_only", f.lastOutcome(t))

	require.True(t, f.send(t, adminID, "!modlog"))
	assert.Equal(t, "ok", f.lastOutcome(t))
}

func TestAdminRoleFromConfig(t *testing.T) {
	f := newFixture(t)
	_, err := f.guilds.Update(testGuild, func(gc *guildconfig.GuildConfig) error {
		gc.Roles.Admin = []string{modsRole}
		return nil
	})
	require.NoError(t, err)

	require.True(t, f.send(t, memberID, "!modlog"))
	assert.Equal(t, "ok", f.lastOutcome(t))
}

func TestLimitsDenyAndBypass(t *testing.T) {
	f := newFixture(t)
	_, err := f.guilds.Update(testGuild, func(gc *guildconfig.GuildConfig) error {
		off := false
		gc.Limits.SetEnabled(limits.ScopeCommand, "ping", &off)
		gc.Limits.Add(limits.ScopeCategory, config.CategoryInformation, limits.RolesBlacklist, modsRole)
		return nil
	})
	require.NoError(t, err)

	require.True(t, f.send(t, memberID, "!ping"))
	assert.Equal(t, "command_disabled", f.lastOutcome(t))
	assert.True(t, f.p.said(f.denial("command_disabled", "ping", config.CategoryUtilities)))

	require.True(t, f.send(t, memberID, "!about"))
	assert.Equal(t, "category_role_blacklisted", f.lastOutcome(t))

	require.True(t, f.send(t, adminID, "!ping"))
	assert.Equal(t, "ok", f.lastOutcome(t), "admins bypass limits")
}

func TestDeveloperOnlyIsSilent(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.send(t, memberID, "!reload"))
	assert.Empty(t, f.p.Texts())
	assert.Equal(t, "developer_only", f.lastOutcome(t))

	require.True(t, f.send(t, devID, "!reload"))
	assert.True(t, f.p.said(f.d.Locale.Text("commands", "reload_done", "en")))
}

func TestCooldown(t *testing.T) {
	f := newFixture(t)
	f.d.Cooldowns = NewCooldowns(0.001, 1)

	require.True(t, f.send(t, memberID, "!ping"))
	require.True(t, f.send(t, memberID, "!ping"))
	require.True(t, f.send(t, memberID, "!ping"))

	cooldown := f.errText("cooldown", nil)
	n := 0
	for _, text := range f.p.Texts() {
		if text == cooldown {
			n++
		}
	}
	assert.Equal(t, 1, n, "warned once per streak")
	assert.Equal(t, "cooldown", f.lastOutcome(t))

	require.True(t, f.send(t, devID, "!ping"))
	assert.Equal(t, "ok", f.lastOutcome(t), "developers have no cooldown")
}

type failing struct{}

func (failing) Name() string        { return "fail" }
func (failing) Description() string { return "always fails" }
func (failing) Meta() Meta          { return Meta{Category: config.CategoryUtilities} }
func (failing) Run(context.Context, *cmd.Invocation) error {
	return errors.New("boom")
}

func TestCommandErrorIsReported(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.d.Registry.Register(cmd.Apply(failing{}, Middlewares()...)))

	require.True(t, f.send(t, memberID, "!fail"))
	assert.True(t, f.p.said(f.errText("generic", nil)))
	assert.Equal(t, "error", f.lastOutcome(t))
}

func TestConfigWizard(t *testing.T) {
	f := newFixture(t)
	f.script.Pick(0).Say("%").Pick(5)

	require.True(t, f.send(t, adminID, "!config"))
	require.NoError(t, f.script.Err())

	gc, err := f.guilds.Get(testGuild)
	require.NoError(t, err)
	assert.Equal(t, "%", gc.Prefix)
	assert.Empty(t, f.d.Sessions.Active())
	assert.Equal(t, "ok", f.lastOutcome(t))
}

func TestWizardTimeoutIsNotAnError(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.send(t, adminID, "!setup"))

	assert.Equal(t, "ok", f.lastOutcome(t))
	assert.True(t, f.p.Contains(f.d.Locale.Text("wizard", "timed_out", "en")))
	assert.False(t, f.p.said(f.errText("generic", nil)))
}

func TestSessionBusy(t *testing.T) {
	f := newFixture(t)
	key := session.Key{GuildID: testGuild, ChannelID: uitest.ChannelID, UserID: adminID}

	started, release := make(chan struct{}), make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.d.Sessions.Run(context.Background(), key, "other", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	require.True(t, f.send(t, adminID, "!limits"))
	assert.True(t, f.p.said(f.errText("session_busy", nil)))

	close(release)
	require.NoError(t, <-done)
}

func TestSessionsList(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.send(t, devID, "!sessions"))
	assert.True(t, f.p.said(f.d.Locale.Text("commands", "sessions_none", "en")))

	key := session.Key{GuildID: testGuild, ChannelID: uitest.ChannelID, UserID: adminID}
	started, release := make(chan struct{}), make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.d.Sessions.Run(context.Background(), key, "limits", func(ctx context.Context) error {
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		})
	}()
	<-started

	require.True(t, f.send(t, devID, "!sessions"))
	assert.True(t, f.p.said("limits · <@"+adminID+">"))

	require.True(t, f.send(t, devID, "!sessions stop"))
	require.NoError(t, <-done)
	assert.True(t, f.p.said(f.d.Locale.Format("commands", "sessions_stopped", "en", locale.Args{"count": 1})))
	close(release)
}

func TestLimitsShow(t *testing.T) {
	f := newFixture(t)
	_, err := f.guilds.Update(testGuild, func(gc *guildconfig.GuildConfig) error {
		gc.Limits.Add(limits.ScopeCommand, "ping", limits.RolesBlacklist, modsRole)
		return nil
	})
	require.NoError(t, err)

	require.True(t, f.send(t, adminID, "!limits show"))
	assert.Contains(t, f.p.Last().Text(), "<@&"+modsRole+">")

	require.True(t, f.send(t, adminID, "!limits show PING"))
	assert.Contains(t, f.p.Last().Text(), "ping")

	require.True(t, f.send(t, adminID, "!limits show nothing"))
	assert.True(t, f.p.said("nothing"))
}

func TestHelp(t *testing.T) {
	f := newFixture(t)

	require.True(t, f.send(t, memberID, "!help"))
	text := f.p.Last().Text()
	assert.Contains(t, text, "`!ping`")
	assert.Contains(t, text, "`!names`")
	assert.NotContains(t, text, "`!config`", "admin commands hidden from members")
	assert.NotContains(t, text, "`!reload`")

	require.True(t, f.send(t, adminID, "!help"))
	assert.Contains(t, f.p.Last().Text(), "`!config`")

	require.True(t, f.send(t, memberID, "!help permissions"))
	assert.Contains(t, f.p.Last().Text(), "limits [show")

	require.True(t, f.send(t, memberID, "!help reload"))
	assert.True(t, f.p.said("reload"))
}

func TestModLogToggle(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.send(t, adminID, "!modlog member_join"))

	gc, err := f.guilds.Get(testGuild)
	require.NoError(t, err)
	assert.False(t, gc.ModLog.MemberJoin)

	require.True(t, f.send(t, adminID, "!modlog bogus"))
	assert.True(t, f.p.said("bogus"))
}

func TestHistoryCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.audit.ObserveUser(ctx, &discordgo.User{ID: memberID, Username: "ann", Avatar: "a1"})
	require.NoError(t, err)
	_, err = f.audit.ObserveUser(ctx, &discordgo.User{ID: memberID, Username: "anna", Avatar: "a2"})
	require.NoError(t, err)

	require.True(t, f.send(t, adminID, "!names <@"+memberID+">"))
	text := f.p.Last().Text()
	assert.Contains(t, text, "ann")
	assert.Contains(t, text, "anna")

	require.True(t, f.send(t, adminID, "!avatars "+memberID))
	assert.Contains(t, f.p.Last().Text(), "a2")

	require.True(t, f.send(t, adminID, "!names"))
	assert.True(t, f.p.said("<@"+adminID+">"), "defaults to the invoker")

	require.True(t, f.send(t, adminID, "!names someone"))
	assert.True(t, f.p.said(f.d.Locale.Text("commands", "user_invalid", "en")))
}

func TestSnipe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.True(t, f.send(t, memberID, "!snipe"))
	assert.True(t, f.p.said(f.d.Locale.Text("commands", "snipe_none", "en")))

	require.NoError(t, f.audit.RecordMessage(ctx, &discordgo.Message{
		ID: "600", GuildID: testGuild, ChannelID: uitest.ChannelID, Content: "oops",
		Author: &discordgo.User{ID: memberID, Username: "ann"},
	}))
	_, err := f.audit.RecordDelete(ctx, "600")
	require.NoError(t, err)

	require.True(t, f.send(t, memberID, "!snipe"))
	assert.Contains(t, f.p.Last().Text(), "oops")
}

func TestNews(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.send(t, memberID, "!news"))
	assert.True(t, f.p.said(f.d.Locale.Text("commands", "news_none", "en")))

	_, err := f.audit.AddChangelog(context.Background(), "1.0.0", "First release.", devID)
	require.NoError(t, err)

	require.True(t, f.send(t, memberID, "!changes"))
	assert.Contains(t, f.p.Last().Text(), "First release.")
	assert.Contains(t, f.p.Last().Text(), "1.0.0")
}

func TestAbout(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.send(t, memberID, "!about"))
	assert.Equal(t, "ok", f.lastOutcome(t))
	assert.NotNil(t, f.p.Last())
}

func TestCatalog(t *testing.T) {
	f := newFixture(t)
	c := Catalog{Registry: f.d.Registry}
	assert.Equal(t, config.Categories(), c.Categories())
	assert.Contains(t, c.Commands(), "ping")
	assert.NotContains(t, c.Commands(), "reload")
}

func TestBuiltinTextsExist(t *testing.T) {
	f := newFixture(t)
	for _, c := range Builtins() {
		assert.True(t, f.d.Locale.Exists("commands", "desc_"+c.Name()), c.Name())
		assert.True(t, f.d.Locale.Exists("categories", c.Meta().Category), c.Meta().Category)
	}
}
