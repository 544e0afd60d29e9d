package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"server-warden/internal/guildconfig"
	"server-warden/internal/locale"
)

const (
	configMain        Step = "main"
	configPrefix      Step = "prefix"
	configLanguage    Step = "language"
	configChannels    Step = "channels"
	configChannelSlot Step = "channel_value"
	configRoles       Step = "roles"
	configRoleSlot    Step = "role_value"
	configModLog      Step = "modlog"
)

// Config edits the guild settings one field at a time, returning to the
// main menu after each change until the user exits.
func Config(env *Env) *Machine {
	var (
		channel guildconfig.ChannelSlot
		role    guildconfig.RoleSlot
	)

	return &Machine{
		Name:  "config",
		Start: configMain,
		Steps: map[Step]StepFunc{
			configMain: func(ctx context.Context) (Step, error) {
				gc, err := env.Guilds.Get(env.GuildID)
				if err != nil {
					return Done, err
				}
				next := []Step{configPrefix, configLanguage, configChannels, configRoles, configModLog, Done}
				idx, err := env.Conv.Menu(ctx, env.t("config_title"), env.configSummary(gc), []string{
					env.t("config_prefix"),
					env.t("config_language"),
					env.t("config_channels"),
					env.t("config_roles"),
					env.t("config_modlog"),
					env.t("exit"),
				})
				if err != nil {
					return Done, err
				}
				if next[idx] == Done {
					return Done, env.Conv.Notify(ctx, env.t("config_title"), env.t("config_done"))
				}
				return next[idx], nil
			},

			configPrefix: func(ctx context.Context) (Step, error) {
				prefix, err := env.askPrefix(ctx)
				if err != nil {
					return Done, err
				}
				if _, err := env.update(func(gc *guildconfig.GuildConfig) error {
					gc.Prefix = prefix
					return nil
				}); err != nil {
					return Done, err
				}
				return configMain, env.Conv.Notify(ctx, env.t("config_title"), env.tf("prefix_saved", locale.Args{"prefix": prefix}))
			},

			configLanguage: func(ctx context.Context) (Step, error) {
				lang, err := env.askLanguage(ctx)
				if err != nil {
					return Done, err
				}
				if _, err := env.update(func(gc *guildconfig.GuildConfig) error {
					gc.Language = lang
					return nil
				}); err != nil {
					return Done, err
				}
				return configMain, env.Conv.Notify(ctx, env.t("config_title"),
					env.tf("language_saved", locale.Args{"language": env.Locale.LanguageName(lang)}))
			},

			configChannels: func(ctx context.Context) (Step, error) {
				gc, err := env.Guilds.Get(env.GuildID)
				if err != nil {
					return Done, err
				}
				slots := guildconfig.ChannelSlots()
				options := make([]string, 0, len(slots)+1)
				for _, s := range slots {
					options = append(options, fmt.Sprintf("%s: %s", env.t("channel_"+string(s)), channelMention(gc.Channels.Get(s))))
				}
				options = append(options, env.t("back"))

				idx, err := env.Conv.Menu(ctx, env.t("channels_title"), "", options)
				if err != nil {
					return Done, err
				}
				if idx == len(slots) {
					return configMain, nil
				}
				channel = slots[idx]
				return configChannelSlot, nil
			},

			configChannelSlot: func(ctx context.Context) (Step, error) {
				ids, err := env.askRefs(ctx, kindChannel, env.t("channels_title"), env.tf("channel_question", locale.Args{
					"slot": env.t("channel_" + string(channel)),
					"none": env.t("none_word"),
				}), true)
				if err != nil {
					return Done, err
				}
				id := ""
				if len(ids) > 0 {
					id = ids[0]
				}
				if _, err := env.update(func(gc *guildconfig.GuildConfig) error {
					return gc.Channels.Set(channel, id)
				}); err != nil {
					return Done, err
				}
				return configChannels, nil
			},

			configRoles: func(ctx context.Context) (Step, error) {
				gc, err := env.Guilds.Get(env.GuildID)
				if err != nil {
					return Done, err
				}
				slots := guildconfig.RoleSlots()
				options := make([]string, 0, len(slots)+1)
				for _, s := range slots {
					options = append(options, fmt.Sprintf("%s: %s", env.t("role_"+string(s)), roleMentions(gc.Roles.Get(s))))
				}
				options = append(options, env.t("back"))

				idx, err := env.Conv.Menu(ctx, env.t("roles_title"), "", options)
				if err != nil {
					return Done, err
				}
				if idx == len(slots) {
					return configMain, nil
				}
				role = slots[idx]
				return configRoleSlot, nil
			},

			configRoleSlot: func(ctx context.Context) (Step, error) {
				key := "role_question"
				if !role.Multi() {
					key = "role_question_single"
				}
				ids, err := env.askRefs(ctx, kindRole, env.t("roles_title"), env.tf(key, locale.Args{
					"slot": env.t("role_" + string(role)),
					"none": env.t("none_word"),
				}), true)
				if err != nil {
					return Done, err
				}
				if _, err := env.update(func(gc *guildconfig.GuildConfig) error {
					return gc.Roles.Set(role, ids)
				}); err != nil {
					return Done, err
				}
				return configRoles, nil
			},

			configModLog: func(ctx context.Context) (Step, error) {
				gc, err := env.Guilds.Get(env.GuildID)
				if err != nil {
					return Done, err
				}
				events := guildconfig.Events()
				options := make([]string, 0, len(events)+1)
				for _, ev := range events {
					options = append(options, fmt.Sprintf("%s %s", env.state(gc.ModLog.Enabled(ev)), env.t("event_"+string(ev))))
				}
				options = append(options, env.t("back"))

				idx, err := env.Conv.Menu(ctx, env.t("modlog_title"), env.t("modlog_description"), options)
				if err != nil {
					return Done, err
				}
				if idx == len(events) {
					return configMain, nil
				}
				if _, err := env.update(func(gc *guildconfig.GuildConfig) error {
					gc.ModLog.Toggle(events[idx])
					return nil
				}); err != nil {
					return Done, err
				}
				return configModLog, nil
			},
		},
	}
}

func (e *Env) state(on bool) string {
	if on {
		return e.t("state_on")
	}
	return e.t("state_off")
}

func (e *Env) configSummary(gc *guildconfig.GuildConfig) string {
	var enabled []string
	for _, ev := range guildconfig.Events() {
		if gc.ModLog.Enabled(ev) {
			enabled = append(enabled, e.t("event_"+string(ev)))
		}
	}
	modlog := "—"
	if len(enabled) > 0 {
		modlog = strings.Join(enabled, ", ")
	}
	return e.tf("config_summary", locale.Args{
		"prefix":    gc.Prefix,
		"language":  e.Locale.LanguageName(gc.Language),
		"modlog":    channelMention(gc.Channels.ModLog),
		"welcome":   channelMention(gc.Channels.Welcome),
		"changelog": channelMention(gc.Channels.Changelog),
		"admin":     roleMentions(gc.Roles.Admin),
		"moderator": roleMentions(gc.Roles.Moderator),
		"muted":     roleMentions(gc.Roles.Get(guildconfig.RoleMuted)),
		"events":    modlog,
	})
}

func (e *Env) askPrefix(ctx context.Context) (string, error) {
	gc, err := e.Guilds.Get(e.GuildID)
	if err != nil {
		return "", err
	}
	return e.Conv.Prompt(ctx, e.t("prefix_title"), e.tf("prefix_question", locale.Args{
		"current": gc.Prefix,
		"max":     guildconfig.MaxPrefixLength,
	}), func(answer string) error {
		if err := guildconfig.CheckPrefix(answer); err != nil {
			if errors.Is(err, guildconfig.ErrInvalidPrefix) {
				return validationError(e.tf("prefix_invalid", locale.Args{"max": guildconfig.MaxPrefixLength}))
			}
			return err
		}
		return nil
	})
}

func (e *Env) askLanguage(ctx context.Context) (string, error) {
	langs := e.Locale.Languages()
	options := make([]string, len(langs))
	for i, l := range langs {
		options[i] = fmt.Sprintf("%s (%s)", l.Name, l.Code)
	}
	idx, err := e.Conv.Menu(ctx, e.t("language_title"), "", options)
	if err != nil {
		return "", err
	}
	return langs[idx].Code, nil
}
