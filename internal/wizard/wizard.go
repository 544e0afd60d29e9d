// Package wizard implements the interactive configuration flows. Each flow
// is a Machine: a set of named steps where every step talks to the user
// through a ui.Conversation and returns the name of the next step.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"server-warden/internal/guildconfig"
	"server-warden/internal/locale"
	"server-warden/internal/ui"
)

// Step names a state of a Machine.
type Step string

// Done ends a Machine.
const Done Step = ""

// maxTransitions guards against step functions that never finish.
const maxTransitions = 1000

type StepFunc func(ctx context.Context) (Step, error)

type Machine struct {
	Name  string
	Start Step
	Steps map[Step]StepFunc
	// OnStep, when set, is called before every step runs.
	OnStep func(step Step)
}

// Run executes steps until one returns Done or an error.
func (m *Machine) Run(ctx context.Context) error {
	step := m.Start
	for n := 0; step != Done; n++ {
		if n >= maxTransitions {
			return fmt.Errorf("wizard %s: too many steps", m.Name)
		}
		fn, ok := m.Steps[step]
		if !ok {
			return fmt.Errorf("wizard %s: unknown step %q", m.Name, step)
		}
		if m.OnStep != nil {
			m.OnStep(step)
		}
		next, err := fn(ctx)
		if err != nil {
			return err
		}
		step = next
	}
	return nil
}

// Resolver turns user input into role and channel IDs. ref is an ID or an
// exact name.
type Resolver interface {
	Role(guildID, ref string) (id string, ok bool)
	Channel(guildID, ref string) (id string, ok bool)
}

// Catalog describes the commands the limits wizard can restrict.
type Catalog interface {
	Categories() []string
	Commands() []string
}

// Deps are the services shared by all wizards.
type Deps struct {
	Guilds   *guildconfig.Store
	Locale   *locale.Catalog
	Resolver Resolver
	Commands Catalog
	Log      *slog.Logger
}

// Env is one wizard run.
type Env struct {
	*Deps
	Conv    *ui.Conversation
	GuildID string
	UserID  string
	Lang    string
}

func (e *Env) t(name string) string {
	return e.Locale.Text("wizard", name, e.Lang)
}

func (e *Env) tf(name string, args locale.Args) string {
	return e.Locale.Format("wizard", name, e.Lang, args)
}

func (e *Env) log() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}

// update saves a change to the guild and keeps the language of the
// conversation in sync with it.
func (e *Env) update(fn func(*guildconfig.GuildConfig) error) (*guildconfig.GuildConfig, error) {
	gc, err := e.Guilds.Update(e.GuildID, fn)
	if err != nil {
		return nil, err
	}
	e.Lang = gc.Language
	return gc, nil
}

// validationError is shown to the user by prompts.
type validationError string

func (v validationError) Error() string { return string(v) }

var mentionPattern = regexp.MustCompile(`<#(\d+)>|<@&(\d+)>|<@!?(\d+)>|\b(` + guildconfig.Snowflake + `)\b`)

// ParseRefs splits prompt input into references: mentioned or bare IDs
// first, then comma-separated names from the remaining text.
func ParseRefs(input string) []string {
	var refs []string
	for _, m := range mentionPattern.FindAllStringSubmatch(input, -1) {
		for _, g := range m[1:] {
			if g != "" {
				refs = append(refs, g)
				break
			}
		}
	}
	rest := mentionPattern.ReplaceAllString(input, ",")
	for _, name := range strings.Split(rest, ",") {
		name = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "@"))
		name = strings.TrimPrefix(name, "#")
		if name != "" {
			refs = append(refs, name)
		}
	}
	return refs
}

type refKind int

const (
	kindRole refKind = iota
	kindChannel
)

// resolve looks up every reference and returns the found IDs without
// duplicates together with the references that matched nothing.
func (e *Env) resolve(kind refKind, input string) (ids, unknown []string) {
	seen := map[string]bool{}
	for _, ref := range ParseRefs(input) {
		var id string
		var ok bool
		if kind == kindRole {
			id, ok = e.Resolver.Role(e.GuildID, ref)
		} else {
			id, ok = e.Resolver.Channel(e.GuildID, ref)
		}
		if !ok {
			unknown = append(unknown, ref)
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, unknown
}

// askRefs prompts for roles or channels. The localized "none" word
// returns an empty list when allowNone is set.
func (e *Env) askRefs(ctx context.Context, kind refKind, title, question string, allowNone bool) ([]string, error) {
	var ids []string
	_, err := e.Conv.Prompt(ctx, title, question, func(answer string) error {
		if allowNone && strings.EqualFold(answer, e.t("none_word")) {
			ids = nil
			return nil
		}
		found, unknown := e.resolve(kind, answer)
		if len(unknown) > 0 {
			return validationError(e.tf("unknown_refs", locale.Args{"refs": strings.Join(unknown, ", ")}))
		}
		if len(found) == 0 {
			return validationError(e.t("no_refs"))
		}
		ids = found
		return nil
	})
	return ids, err
}

func roleMentions(ids []string) string {
	return mentions(ids, "<@&", ">")
}

func channelMentions(ids []string) string {
	return mentions(ids, "<#", ">")
}

func mentions(ids []string, open, end string) string {
	if len(ids) == 0 {
		return "—"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = open + id + end
	}
	return strings.Join(parts, ", ")
}

func channelMention(id string) string {
	if id == "" {
		return "—"
	}
	return "<#" + id + ">"
}

// Finish reports the end of a wizard to the user. Cancellation and
// timeouts are expected outcomes and are not returned as errors.
func (e *Env) Finish(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if !ui.Finished(err) {
		return err
	}
	key := "cancelled"
	switch {
	case errors.Is(err, ui.ErrTimeout):
		key = "timed_out"
	case errors.Is(err, ui.ErrAttempts):
		key = "too_many_attempts"
	}
	if nerr := e.Conv.Notify(context.WithoutCancel(ctx), e.t("title"), e.t(key)); nerr != nil {
		e.log().Warn("failed to send wizard result", "error", nerr)
	}
	return nil
}
