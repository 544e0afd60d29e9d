package wizard

import (
	"context"
	"fmt"
	"strings"

	"server-warden/internal/guildconfig"
	"server-warden/internal/limits"
	"server-warden/internal/locale"
)

const (
	limitsMain     Step = "main"
	limitsCategory Step = "category"
	limitsCommand  Step = "command"
	limitsShow     Step = "show"
	limitsRule     Step = "rule"
	limitsAction   Step = "action"
	limitsAdd      Step = "add"
	limitsRemove   Step = "remove"
)

// Limits edits the category and command rules: pick a target, pick a part
// of its rule, then change it. Every change is saved immediately.
func Limits(env *Env) *Machine {
	var (
		scope limits.Scope
		name  string
		list  limits.List
	)

	pickTarget := func(ctx context.Context, s limits.Scope, names []string, title string) (Step, error) {
		options := append(append([]string(nil), names...), env.t("back"))
		idx, err := env.Conv.Menu(ctx, title, "", options)
		if err != nil {
			return Done, err
		}
		if idx == len(names) {
			return limitsMain, nil
		}
		scope, name = s, names[idx]
		return limitsRule, nil
	}

	editIDs := func(ctx context.Context, add bool) (Step, error) {
		kind := kindChannel
		question := "limits_channels_question"
		if list.IsRoles() {
			kind = kindRole
			question = "limits_roles_question"
		}
		ids, err := env.askRefs(ctx, kind, env.ruleTitle(scope, name), env.t(question), false)
		if err != nil {
			return Done, err
		}

		var n int
		if _, err := env.update(func(gc *guildconfig.GuildConfig) error {
			if add {
				n = gc.Limits.Add(scope, name, list, ids...)
			} else {
				n = gc.Limits.Remove(scope, name, list, ids...)
			}
			return nil
		}); err != nil {
			return Done, err
		}

		key := "limits_removed"
		if add {
			key = "limits_added"
		}
		return limitsRule, env.Conv.Notify(ctx, env.ruleTitle(scope, name), env.tf(key, locale.Args{
			"count": n,
			"list":  env.listName(list),
		}))
	}

	return &Machine{
		Name:  "limits",
		Start: limitsMain,
		Steps: map[Step]StepFunc{
			limitsMain: func(ctx context.Context) (Step, error) {
				next := []Step{limitsCategory, limitsCommand, limitsShow, Done}
				idx, err := env.Conv.Menu(ctx, env.t("limits_title"), env.t("limits_description"), []string{
					env.t("limits_category"),
					env.t("limits_command"),
					env.t("limits_show"),
					env.t("exit"),
				})
				if err != nil {
					return Done, err
				}
				return next[idx], nil
			},

			limitsCategory: func(ctx context.Context) (Step, error) {
				return pickTarget(ctx, limits.ScopeCategory, env.Commands.Categories(), env.t("pick_category"))
			},

			limitsCommand: func(ctx context.Context) (Step, error) {
				return pickTarget(ctx, limits.ScopeCommand, env.Commands.Commands(), env.t("pick_command"))
			},

			limitsShow: func(ctx context.Context) (Step, error) {
				gc, err := env.Guilds.Get(env.GuildID)
				if err != nil {
					return Done, err
				}
				return limitsMain, env.Conv.Notify(ctx, env.t("limits_title"), env.DescribeLimits(&gc.Limits))
			},

			limitsRule: func(ctx context.Context) (Step, error) {
				gc, err := env.Guilds.Get(env.GuildID)
				if err != nil {
					return Done, err
				}
				rule := gc.Limits.Rule(scope, name)

				options := []string{env.tf("rule_toggle", locale.Args{"state": env.enabledState(rule)})}
				for _, l := range limits.Lists() {
					options = append(options, env.listName(l))
				}
				options = append(options, env.t("rule_reset"), env.t("back"))

				idx, err := env.Conv.Menu(ctx, env.ruleTitle(scope, name), env.DescribeRule(rule), options)
				if err != nil {
					return Done, err
				}

				switch {
				case idx == 0:
					var enabled *bool
					if rule.IsEnabled() {
						off := false
						enabled = &off
					}
					_, err := env.update(func(gc *guildconfig.GuildConfig) error {
						gc.Limits.SetEnabled(scope, name, enabled)
						return nil
					})
					return limitsRule, err
				case idx <= len(limits.Lists()):
					list = limits.Lists()[idx-1]
					return limitsAction, nil
				case idx == len(limits.Lists())+1:
					ok, err := env.Conv.Confirm(ctx, env.ruleTitle(scope, name), env.t("rule_reset_confirm"))
					if err != nil || !ok {
						return limitsRule, err
					}
					_, err = env.update(func(gc *guildconfig.GuildConfig) error {
						gc.Limits.Reset(scope, name)
						return nil
					})
					return limitsRule, err
				default:
					return limitsMain, nil
				}
			},

			limitsAction: func(ctx context.Context) (Step, error) {
				gc, err := env.Guilds.Get(env.GuildID)
				if err != nil {
					return Done, err
				}
				current := gc.Limits.Rule(scope, name).Get(list)
				format := channelMentions
				if list.IsRoles() {
					format = roleMentions
				}

				idx, err := env.Conv.Menu(ctx, env.ruleTitle(scope, name),
					fmt.Sprintf("**%s**: %s", env.listName(list), format(current)),
					[]string{env.t("action_add"), env.t("action_remove"), env.t("action_clear"), env.t("back")})
				if err != nil {
					return Done, err
				}

				switch idx {
				case 0:
					return limitsAdd, nil
				case 1:
					return limitsRemove, nil
				case 2:
					if _, err := env.update(func(gc *guildconfig.GuildConfig) error {
						gc.Limits.Clear(scope, name, list)
						return nil
					}); err != nil {
						return Done, err
					}
					return limitsRule, env.Conv.Notify(ctx, env.ruleTitle(scope, name),
						env.tf("limits_cleared", locale.Args{"list": env.listName(list)}))
				default:
					return limitsRule, nil
				}
			},

			limitsAdd: func(ctx context.Context) (Step, error) {
				return editIDs(ctx, true)
			},

			limitsRemove: func(ctx context.Context) (Step, error) {
				return editIDs(ctx, false)
			},
		},
	}
}

func (e *Env) ruleTitle(scope limits.Scope, name string) string {
	return e.tf("rule_title", locale.Args{"scope": e.t("scope_" + string(scope)), "name": name})
}

func (e *Env) listName(l limits.List) string {
	return e.t("list_" + strings.ReplaceAll(string(l), ".", "_"))
}

func (e *Env) enabledState(r *limits.Rule) string {
	switch {
	case r == nil || r.Enabled == nil:
		return e.t("state_default")
	case *r.Enabled:
		return e.t("state_on")
	default:
		return e.t("state_off")
	}
}

// DescribeRule renders one rule as a short multi-line summary.
func (e *Env) DescribeRule(r *limits.Rule) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**: %s\n", e.t("rule_status"), e.enabledState(r))
	for _, l := range limits.Lists() {
		format := channelMentions
		if l.IsRoles() {
			format = roleMentions
		}
		fmt.Fprintf(&b, "**%s**: %s\n", e.listName(l), format(r.Get(l)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// DescribeLimits renders every stored rule of a guild.
func (e *Env) DescribeLimits(l *limits.Limits) string {
	var b strings.Builder
	for _, scope := range []limits.Scope{limits.ScopeCategory, limits.ScopeCommand} {
		for _, name := range l.Names(scope) {
			fmt.Fprintf(&b, "__%s__\n%s\n\n", e.ruleTitle(scope, name), e.DescribeRule(l.Rule(scope, name)))
		}
	}
	if b.Len() == 0 {
		return e.t("limits_none")
	}
	return strings.TrimRight(b.String(), "\n")
}
