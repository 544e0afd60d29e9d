// Package limits holds the per-guild rule tree that decides who may run a
// command where. Rules exist at two levels, command categories and single
// commands, and each one can disable its target or restrict it with role
// and channel allow/deny lists.
package limits

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

type Scope string

const (
	ScopeCategory Scope = "category"
	ScopeCommand  Scope = "command"
)

// List names one of the four ID lists of a rule.
type List string

const (
	RolesWhitelist    List = "roles.whitelist"
	RolesBlacklist    List = "roles.blacklist"
	ChannelsWhitelist List = "channels.whitelist"
	ChannelsBlacklist List = "channels.blacklist"
)

// Lists returns every list in display order.
func Lists() []List {
	return []List{RolesWhitelist, RolesBlacklist, ChannelsWhitelist, ChannelsBlacklist}
}

func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeCategory:
		return ScopeCategory, nil
	case ScopeCommand:
		return ScopeCommand, nil
	}
	return "", fmt.Errorf("unknown scope %q", s)
}

func ParseList(s string) (List, error) {
	l := List(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Lists(), l) {
		return l, nil
	}
	return "", fmt.Errorf("unknown list %q", s)
}

// IsRoles reports whether the list holds role IDs (as opposed to channel IDs).
func (l List) IsRoles() bool {
	return l == RolesWhitelist || l == RolesBlacklist
}

// opposite returns the list an ID must leave when it joins l.
func (l List) opposite() List {
	switch l {
	case RolesWhitelist:
		return RolesBlacklist
	case RolesBlacklist:
		return RolesWhitelist
	case ChannelsWhitelist:
		return ChannelsBlacklist
	default:
		return ChannelsWhitelist
	}
}

type AccessList struct {
	Whitelist []string `json:"whitelist"`
	Blacklist []string `json:"blacklist"`
}

func (a AccessList) empty() bool {
	return len(a.Whitelist) == 0 && len(a.Blacklist) == 0
}

// Rule restricts one category or command. A nil Enabled means the target
// keeps its default state, which is enabled.
type Rule struct {
	Enabled  *bool      `json:"enabled,omitempty"`
	Roles    AccessList `json:"roles"`
	Channels AccessList `json:"channels"`
}

func (r *Rule) IsEnabled() bool {
	return r == nil || r.Enabled == nil || *r.Enabled
}

// IsEmpty reports whether the rule has no effect at all.
func (r *Rule) IsEmpty() bool {
	return r == nil || (r.Enabled == nil && r.Roles.empty() && r.Channels.empty())
}

// Get returns the IDs stored in list.
func (r *Rule) Get(list List) []string {
	if r == nil {
		return nil
	}
	return *r.slot(list)
}

func (r *Rule) slot(list List) *[]string {
	switch list {
	case RolesWhitelist:
		return &r.Roles.Whitelist
	case RolesBlacklist:
		return &r.Roles.Blacklist
	case ChannelsWhitelist:
		return &r.Channels.Whitelist
	default:
		return &r.Channels.Blacklist
	}
}

func (r *Rule) clone() *Rule {
	if r == nil {
		return nil
	}
	c := &Rule{
		Roles:    AccessList{Whitelist: slices.Clone(r.Roles.Whitelist), Blacklist: slices.Clone(r.Roles.Blacklist)},
		Channels: AccessList{Whitelist: slices.Clone(r.Channels.Whitelist), Blacklist: slices.Clone(r.Channels.Blacklist)},
	}
	if r.Enabled != nil {
		v := *r.Enabled
		c.Enabled = &v
	}
	return c
}

// Limits is the rule tree of one guild. Keys are lower-case names.
type Limits struct {
	Categories map[string]*Rule `json:"categories"`
	Commands   map[string]*Rule `json:"commands"`
}

func New() Limits {
	return Limits{
		Categories: map[string]*Rule{},
		Commands:   map[string]*Rule{},
	}
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (l *Limits) table(scope Scope) map[string]*Rule {
	if scope == ScopeCategory {
		if l.Categories == nil {
			l.Categories = map[string]*Rule{}
		}
		return l.Categories
	}
	if l.Commands == nil {
		l.Commands = map[string]*Rule{}
	}
	return l.Commands
}

// Rule returns the rule for name, or nil when none is stored.
func (l *Limits) Rule(scope Scope, name string) *Rule {
	if l == nil {
		return nil
	}
	if scope == ScopeCategory {
		return l.Categories[key(name)]
	}
	return l.Commands[key(name)]
}

func (l *Limits) ensure(scope Scope, name string) *Rule {
	t := l.table(scope)
	k := key(name)
	r, ok := t[k]
	if !ok || r == nil {
		r = &Rule{}
		t[k] = r
	}
	return r
}

// SetEnabled stores an explicit enabled state, or clears it when enabled is nil.
func (l *Limits) SetEnabled(scope Scope, name string, enabled *bool) {
	r := l.ensure(scope, name)
	if enabled == nil {
		r.Enabled = nil
	} else {
		v := *enabled
		r.Enabled = &v
	}
	l.Prune()
}

// Add appends ids to list, moving them out of the opposite list, and returns
// how many were new.
func (l *Limits) Add(scope Scope, name string, list List, ids ...string) int {
	r := l.ensure(scope, name)
	dst := r.slot(list)
	opp := r.slot(list.opposite())

	added := 0
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		*opp = slices.DeleteFunc(*opp, func(v string) bool { return v == id })
		if !slices.Contains(*dst, id) {
			*dst = append(*dst, id)
			added++
		}
	}
	l.Prune()
	return added
}

// Remove deletes ids from list and returns how many were present.
func (l *Limits) Remove(scope Scope, name string, list List, ids ...string) int {
	r := l.Rule(scope, name)
	if r == nil {
		return 0
	}
	dst := r.slot(list)
	before := len(*dst)
	*dst = slices.DeleteFunc(*dst, func(v string) bool { return slices.Contains(ids, v) })
	removed := before - len(*dst)
	l.Prune()
	return removed
}

func (l *Limits) Clear(scope Scope, name string, list List) {
	if r := l.Rule(scope, name); r != nil {
		*r.slot(list) = nil
	}
	l.Prune()
}

// Reset drops the whole rule for name.
func (l *Limits) Reset(scope Scope, name string) {
	delete(l.table(scope), key(name))
}

// Prune removes rules that no longer restrict anything.
func (l *Limits) Prune() {
	for k, r := range l.Categories {
		if r.IsEmpty() {
			delete(l.Categories, k)
		}
	}
	for k, r := range l.Commands {
		if r.IsEmpty() {
			delete(l.Commands, k)
		}
	}
}

// Names returns the names that have a rule in scope, sorted.
func (l *Limits) Names(scope Scope) []string {
	t := l.Commands
	if scope == ScopeCategory {
		t = l.Categories
	}
	names := make([]string, 0, len(t))
	for k := range t {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// RemoveID strips id from every list, used when a role or channel is deleted.
func (l *Limits) RemoveID(id string) bool {
	changed := false
	for _, t := range []map[string]*Rule{l.Categories, l.Commands} {
		for _, r := range t {
			for _, list := range Lists() {
				s := r.slot(list)
				n := len(*s)
				*s = slices.DeleteFunc(*s, func(v string) bool { return v == id })
				changed = changed || n != len(*s)
			}
		}
	}
	l.Prune()
	return changed
}

func (l Limits) Clone() Limits {
	c := New()
	for k, r := range l.Categories {
		c.Categories[k] = r.clone()
	}
	for k, r := range l.Commands {
		c.Commands[k] = r.clone()
	}
	return c
}
