// Package command adapts pkg/cmd to Discord text commands: metadata,
// the per-message context, parsing, the middleware stack and the built-in
// commands.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"server-warden/internal/audit"
	"server-warden/internal/config"
	"server-warden/internal/guildconfig"
	"server-warden/internal/limits"
	"server-warden/internal/locale"
	"server-warden/internal/ui"
	"server-warden/internal/wizard"
	"server-warden/pkg/cmd"
	"server-warden/pkg/session"
)

// ErrNoContext is returned by commands invoked without a *Context.
var ErrNoContext = errors.New("command: invocation has no message context")

// Meta is the Discord-specific description of a command.
type Meta struct {
	Category      string
	Usage         string
	GuildOnly     bool
	AdminOnly     bool
	DeveloperOnly bool
	// Hidden commands are left out of help and generated docs.
	Hidden bool
}

// DiscordCommand is a cmd.Command with Discord metadata.
type DiscordCommand interface {
	cmd.Command
	Meta() Meta
}

// MetaOf returns the metadata of c or of the command it wraps.
func MetaOf(c cmd.Command) (Meta, bool) {
	dc, ok := cmd.As[DiscordCommand](c)
	if !ok {
		return Meta{}, false
	}
	return dc.Meta(), true
}

// AliasesOf returns the aliases of c, if any.
func AliasesOf(c cmd.Command) []string {
	if a, ok := cmd.As[cmd.Aliased](c); ok {
		return a.Aliases()
	}
	return nil
}

// Platform is what commands need from Discord.
type Platform interface {
	ui.Messenger
	wizard.Resolver
	SendText(ctx context.Context, channelID, text string) (string, error)
	// MemberRoles returns the role IDs of a guild member.
	MemberRoles(guildID, userID string) ([]string, error)
	// IsGuildAdmin reports whether the user owns the guild or holds the
	// Administrator permission.
	IsGuildAdmin(guildID, userID string) bool
	// ParentID returns the parent channel of a thread, or "".
	ParentID(channelID string) string
	Latency() time.Duration
	BotID() string
}

// Audit is the part of the audit store commands use.
type Audit interface {
	wizard.Changelogs
	LogCommand(ctx context.Context, entry *audit.CommandLog) error
	LatestChangelog(ctx context.Context) (*audit.ChangelogEntry, error)
	LastDeleted(ctx context.Context, channelID string) (*audit.MessageRecord, error)
	NameHistory(ctx context.Context, userID, guildID string, limit int) ([]audit.NameChange, error)
	AvatarHistory(ctx context.Context, userID string, limit int) ([]audit.AvatarChange, error)
}

// Services are shared by every command.
type Services struct {
	Config      *config.Config
	Guilds      *guildconfig.Store
	Locale      *locale.Catalog
	Audit       Audit
	Platform    Platform
	Events      ui.Events
	Sessions    *session.Manager
	Broadcaster wizard.Broadcaster
	Cooldowns   *Cooldowns
	Registry    *cmd.Registry
	Log         *slog.Logger
	Started     time.Time
}

// Context is one command invocation from a chat message.
type Context struct {
	*Services
	Message   *discordgo.Message
	GuildID   string
	ChannelID string
	UserID    string
	Guild     *guildconfig.GuildConfig
	Lang      string
	Prefix    string

	RoleIDs     []string
	IsAdmin     bool
	IsDeveloper bool
}

// From extracts the message context of an invocation.
func From(inv *cmd.Invocation) (*Context, error) {
	if inv == nil {
		return nil, ErrNoContext
	}
	c, ok := inv.Data.(*Context)
	if !ok || c == nil {
		return nil, ErrNoContext
	}
	return c, nil
}

func (c *Context) T(category, name string) string {
	return c.Locale.Text(category, name, c.Lang)
}

func (c *Context) Tf(category, name string, args locale.Args) string {
	return c.Locale.Format(category, name, c.Lang, args)
}

// Reply sends plain text to the invoking channel.
func (c *Context) Reply(ctx context.Context, text string) error {
	_, err := c.Platform.SendText(ctx, c.ChannelID, text)
	return err
}

// ReplyEmbed sends an embed to the invoking channel.
func (c *Context) ReplyEmbed(ctx context.Context, embed *discordgo.MessageEmbed) error {
	if embed.Color == 0 {
		embed.Color = ui.DefaultColor
	}
	_, err := c.Platform.SendEmbed(ctx, c.ChannelID, embed)
	return err
}

// Subject describes the invoker for the limits engine.
func (c *Context) Subject() limits.Subject {
	return limits.Subject{
		GuildID:     c.GuildID,
		ChannelID:   c.ChannelID,
		ParentID:    c.Platform.ParentID(c.ChannelID),
		UserID:      c.UserID,
		RoleIDs:     c.RoleIDs,
		IsAdmin:     c.IsAdmin,
		IsDeveloper: c.IsDeveloper,
	}
}

// Conversation starts an interactive exchange with the invoker.
func (c *Context) Conversation() *ui.Conversation {
	return &ui.Conversation{
		Messenger:   c.Platform,
		Events:      c.Events,
		ChannelID:   c.ChannelID,
		UserID:      c.UserID,
		Timeout:     c.Config.WizardTimeout,
		CancelWords: c.cancelWords(),
		Texts: ui.Texts{
			MenuFooter:    c.T("ui", "menu_footer"),
			PromptFooter:  c.T("ui", "prompt_footer"),
			ConfirmFooter: c.T("ui", "confirm_footer"),
			Page:          c.T("ui", "page"),
			Invalid:       c.T("ui", "invalid"),
		},
	}
}

// cancelWords accepts the cancel word of the guild language and English.
func (c *Context) cancelWords() []string {
	words := []string{c.T("ui", "cancel_word")}
	if en := c.Locale.Text("ui", "cancel_word", c.Locale.Default()); en != words[0] {
		words = append(words, en)
	}
	return words
}

// Env prepares a wizard run for the invoker.
func (c *Context) Env() *wizard.Env {
	return &wizard.Env{
		Deps: &wizard.Deps{
			Guilds:   c.Guilds,
			Locale:   c.Locale,
			Resolver: c.Platform,
			Commands: Catalog{Registry: c.Registry},
			Log:      c.Log,
		},
		Conv:    c.Conversation(),
		GuildID: c.GuildID,
		UserID:  c.UserID,
		Lang:    c.Lang,
	}
}

// RunWizard runs the machine built by build as the invoker's session in
// this channel. A second wizard in the same place is refused.
func (c *Context) RunWizard(ctx context.Context, name string, build func(*wizard.Env) *wizard.Machine) error {
	env := c.Env()
	key := session.Key{GuildID: c.GuildID, ChannelID: c.ChannelID, UserID: c.UserID}
	err := c.Sessions.Run(ctx, key, name, func(ctx context.Context) error {
		return env.Finish(ctx, build(env).Run(ctx))
	})
	if errors.Is(err, session.ErrBusy) {
		return c.Reply(ctx, c.T("errors", "session_busy"))
	}
	if err != nil {
		return fmt.Errorf("%s wizard: %w", name, err)
	}
	return nil
}

// Denied is returned by middleware that refused to run a command after
// telling the user why. Key names the reason.
type Denied struct {
	Key string
}

func (d *Denied) Error() string { return "command denied: " + d.Key }
