// Package guildconfig holds the per-guild settings document: prefix,
// language, special channels and roles, moderation log toggles and the
// command limits tree.
package guildconfig

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"server-warden/internal/limits"
)

var (
	ErrInvalidPrefix   = errors.New("invalid prefix")
	ErrUnknownLanguage = errors.New("unknown language")
	ErrUnknownSlot     = errors.New("unknown slot")
)

const MaxPrefixLength = 5

// ChannelSlot names a special-purpose channel.
type ChannelSlot string

const (
	ChannelModLog    ChannelSlot = "modlog"
	ChannelWelcome   ChannelSlot = "welcome"
	ChannelChangelog ChannelSlot = "changelog"
)

func ChannelSlots() []ChannelSlot {
	return []ChannelSlot{ChannelModLog, ChannelWelcome, ChannelChangelog}
}

// RoleSlot names a special-purpose role setting.
type RoleSlot string

const (
	RoleAdmin     RoleSlot = "admin"
	RoleModerator RoleSlot = "moderator"
	RoleMuted     RoleSlot = "muted"
)

func RoleSlots() []RoleSlot {
	return []RoleSlot{RoleAdmin, RoleModerator, RoleMuted}
}

// Multi reports whether the slot holds a list of roles.
func (r RoleSlot) Multi() bool {
	return r != RoleMuted
}

// Event is a moderation log event type.
type Event string

const (
	EventMessageEdit   Event = "message_edit"
	EventMessageDelete Event = "message_delete"
	EventMemberJoin    Event = "member_join"
	EventMemberLeave   Event = "member_leave"
	EventNameChange    Event = "name_change"
	EventAvatarChange  Event = "avatar_change"
)

func Events() []Event {
	return []Event{EventMessageEdit, EventMessageDelete, EventMemberJoin, EventMemberLeave, EventNameChange, EventAvatarChange}
}

type Channels struct {
	ModLog    string `json:"modlog" validate:"omitempty,snowflake"`
	Welcome   string `json:"welcome" validate:"omitempty,snowflake"`
	Changelog string `json:"changelog" validate:"omitempty,snowflake"`
}

func (c *Channels) Get(slot ChannelSlot) string {
	switch slot {
	case ChannelModLog:
		return c.ModLog
	case ChannelWelcome:
		return c.Welcome
	case ChannelChangelog:
		return c.Changelog
	}
	return ""
}

func (c *Channels) Set(slot ChannelSlot, id string) error {
	switch slot {
	case ChannelModLog:
		c.ModLog = id
	case ChannelWelcome:
		c.Welcome = id
	case ChannelChangelog:
		c.Changelog = id
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSlot, slot)
	}
	return nil
}

type Roles struct {
	Admin     []string `json:"admin" validate:"dive,snowflake"`
	Moderator []string `json:"moderator" validate:"dive,snowflake"`
	Muted     string   `json:"muted" validate:"omitempty,snowflake"`
}

// Get returns the role IDs of slot; single-role slots yield at most one ID.
func (r *Roles) Get(slot RoleSlot) []string {
	switch slot {
	case RoleAdmin:
		return r.Admin
	case RoleModerator:
		return r.Moderator
	case RoleMuted:
		if r.Muted == "" {
			return nil
		}
		return []string{r.Muted}
	}
	return nil
}

// Set replaces the IDs of slot. For single-role slots only the first ID is kept.
func (r *Roles) Set(slot RoleSlot, ids []string) error {
	ids = dedupe(ids)
	switch slot {
	case RoleAdmin:
		r.Admin = ids
	case RoleModerator:
		r.Moderator = ids
	case RoleMuted:
		r.Muted = ""
		if len(ids) > 0 {
			r.Muted = ids[0]
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSlot, slot)
	}
	return nil
}

type ModLog struct {
	MessageEdit   bool `json:"message_edit"`
	MessageDelete bool `json:"message_delete"`
	MemberJoin    bool `json:"member_join"`
	MemberLeave   bool `json:"member_leave"`
	NameChange    bool `json:"name_change"`
	AvatarChange  bool `json:"avatar_change"`
}

func (m *ModLog) field(e Event) *bool {
	switch e {
	case EventMessageEdit:
		return &m.MessageEdit
	case EventMessageDelete:
		return &m.MessageDelete
	case EventMemberJoin:
		return &m.MemberJoin
	case EventMemberLeave:
		return &m.MemberLeave
	case EventNameChange:
		return &m.NameChange
	case EventAvatarChange:
		return &m.AvatarChange
	}
	return nil
}

func (m *ModLog) Enabled(e Event) bool {
	if f := m.field(e); f != nil {
		return *f
	}
	return false
}

// Toggle flips e and returns the new state.
func (m *ModLog) Toggle(e Event) bool {
	f := m.field(e)
	if f == nil {
		return false
	}
	*f = !*f
	return *f
}

type GuildConfig struct {
	GuildID       string        `json:"guild_id" validate:"required,snowflake"`
	Prefix        string        `json:"prefix" validate:"required"`
	Language      string        `json:"language" validate:"required"`
	SetupComplete bool          `json:"setup_complete"`
	Channels      Channels      `json:"channels"`
	Roles         Roles         `json:"roles"`
	ModLog        ModLog        `json:"modlog"`
	Limits        limits.Limits `json:"limits"`
}

// Default returns the configuration of a guild that never changed anything.
func Default(guildID, prefix, language string) *GuildConfig {
	return &GuildConfig{
		GuildID:  guildID,
		Prefix:   prefix,
		Language: language,
		ModLog: ModLog{
			MessageEdit:   true,
			MessageDelete: true,
			MemberJoin:    true,
			MemberLeave:   true,
			NameChange:    true,
			AvatarChange:  true,
		},
		Limits: limits.New(),
	}
}

// IsAdminRole reports whether any of roleIDs is a configured admin role.
func (c *GuildConfig) IsAdminRole(roleIDs []string) bool {
	for _, id := range roleIDs {
		if slices.Contains(c.Roles.Admin, id) {
			return true
		}
	}
	return false
}

// IsModerator reports whether any of roleIDs is a configured admin or moderator role.
func (c *GuildConfig) IsModerator(roleIDs []string) bool {
	if c.IsAdminRole(roleIDs) {
		return true
	}
	for _, id := range roleIDs {
		if slices.Contains(c.Roles.Moderator, id) {
			return true
		}
	}
	return false
}

// ForgetID drops a deleted role or channel from every slot and limit list
// and reports whether anything referenced it.
func (c *GuildConfig) ForgetID(id string) bool {
	changed := false
	for _, slot := range ChannelSlots() {
		if c.Channels.Get(slot) == id {
			_ = c.Channels.Set(slot, "")
			changed = true
		}
	}
	for _, slot := range RoleSlots() {
		ids := c.Roles.Get(slot)
		if kept := slices.DeleteFunc(slices.Clone(ids), func(v string) bool { return v == id }); len(kept) != len(ids) {
			_ = c.Roles.Set(slot, kept)
			changed = true
		}
	}
	return c.Limits.RemoveID(id) || changed
}

func (c *GuildConfig) Clone() *GuildConfig {
	cp := *c
	cp.Roles.Admin = slices.Clone(c.Roles.Admin)
	cp.Roles.Moderator = slices.Clone(c.Roles.Moderator)
	cp.Limits = c.Limits.Clone()
	return &cp
}

// normalize fills maps that may be missing from older files.
func (c *GuildConfig) normalize() {
	if c.Limits.Categories == nil || c.Limits.Commands == nil {
		l := limits.New()
		for k, v := range c.Limits.Categories {
			l.Categories[k] = v
		}
		for k, v := range c.Limits.Commands {
			l.Commands[k] = v
		}
		c.Limits = l
	}
	c.Limits.Prune()
}

// CheckPrefix validates a command prefix.
func CheckPrefix(p string) error {
	if p == "" || len([]rune(p)) > MaxPrefixLength {
		return fmt.Errorf("%w: must be 1-%d characters", ErrInvalidPrefix, MaxPrefixLength)
	}
	if strings.IndexFunc(p, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: must not contain spaces", ErrInvalidPrefix)
	}
	return nil
}

// Snowflake matches a bare Discord ID. Other patterns embed it so that
// every parser agrees on what an ID looks like.
const Snowflake = `[0-9]{15,21}`

var snowflakePattern = regexp.MustCompile(`^` + Snowflake + `$`)

// IsSnowflake reports whether s looks like a Discord ID.
func IsSnowflake(s string) bool {
	return snowflakePattern.MatchString(s)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("snowflake", func(fl validator.FieldLevel) bool {
		return IsSnowflake(fl.Field().String())
	})
	return v
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
