package limits

import "slices"

// Code identifies the outcome of an evaluation.
type Code string

const (
	OK                    Code = "ok"
	DeveloperOnly         Code = "developer_only"
	GuildOnly             Code = "guild_only"
	AdminOnly             Code = "admin_only"
	Disabled              Code = "disabled"
	ChannelBlacklisted    Code = "channel_blacklisted"
	ChannelNotWhitelisted Code = "channel_not_whitelisted"
	RoleBlacklisted       Code = "role_blacklisted"
	RoleNotWhitelisted    Code = "role_not_whitelisted"
)

// Subject describes who invokes a command and where.
type Subject struct {
	GuildID   string
	ChannelID string
	// ParentID is the parent channel when ChannelID is a thread.
	ParentID    string
	UserID      string
	RoleIDs     []string
	IsAdmin     bool
	IsDeveloper bool
}

// Target describes the command being invoked.
type Target struct {
	Command       string
	Category      string
	GuildOnly     bool
	AdminOnly     bool
	DeveloperOnly bool
}

// Decision is the result of Evaluate. Scope and Name are set when a stored
// rule caused the denial.
type Decision struct {
	Code  Code
	Scope Scope
	Name  string
}

func (d Decision) Allowed() bool {
	return d.Code == OK
}

// Key is the message key for the decision, e.g. "category_disabled".
func (d Decision) Key() string {
	if d.Scope == "" {
		return string(d.Code)
	}
	return string(d.Scope) + "_" + string(d.Code)
}

// Evaluate runs the global check for one invocation. Developers and guild
// administrators bypass stored rules; everyone else must pass the category
// rule and then the command rule.
func Evaluate(l *Limits, s Subject, t Target) Decision {
	if t.DeveloperOnly && !s.IsDeveloper {
		return Decision{Code: DeveloperOnly}
	}
	if s.IsDeveloper {
		return Decision{Code: OK}
	}
	if s.GuildID == "" {
		if t.GuildOnly {
			return Decision{Code: GuildOnly}
		}
		return Decision{Code: OK}
	}
	if t.AdminOnly && !s.IsAdmin {
		return Decision{Code: AdminOnly}
	}
	if s.IsAdmin {
		return Decision{Code: OK}
	}

	if t.Category != "" {
		if code := check(l.Rule(ScopeCategory, t.Category), s); code != OK {
			return Decision{Code: code, Scope: ScopeCategory, Name: key(t.Category)}
		}
	}
	if code := check(l.Rule(ScopeCommand, t.Command), s); code != OK {
		return Decision{Code: code, Scope: ScopeCommand, Name: key(t.Command)}
	}
	return Decision{Code: OK}
}

func check(r *Rule, s Subject) Code {
	if r == nil {
		return OK
	}
	if !r.IsEnabled() {
		return Disabled
	}

	channels := []string{s.ChannelID}
	if s.ParentID != "" {
		channels = append(channels, s.ParentID)
	}
	if intersects(r.Channels.Blacklist, channels) {
		return ChannelBlacklisted
	}
	if len(r.Channels.Whitelist) > 0 && !intersects(r.Channels.Whitelist, channels) {
		return ChannelNotWhitelisted
	}

	if intersects(r.Roles.Blacklist, s.RoleIDs) {
		return RoleBlacklisted
	}
	if len(r.Roles.Whitelist) > 0 && !intersects(r.Roles.Whitelist, s.RoleIDs) {
		return RoleNotWhitelisted
	}
	return OK
}

func intersects(list, ids []string) bool {
	for _, id := range ids {
		if id != "" && slices.Contains(list, id) {
			return true
		}
	}
	return false
}
