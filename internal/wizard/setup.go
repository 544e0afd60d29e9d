package wizard

import (
	"context"

	"server-warden/internal/guildconfig"
	"server-warden/internal/locale"
)

const (
	setupCheck    Step = "check"
	setupIntro    Step = "intro"
	setupLanguage Step = "language"
	setupPrefix   Step = "prefix"
	setupModLog   Step = "modlog"
	setupAdmins   Step = "admins"
	setupSummary  Step = "summary"
	setupSave     Step = "save"
)

// Setup walks a new guild through the essential settings and saves them
// together at the end. Nothing is stored if the user backs out early.
func Setup(env *Env) *Machine {
	var draft struct {
		language string
		prefix   string
		modlog   string
		admins   []string
	}

	return &Machine{
		Name:  "setup",
		Start: setupCheck,
		Steps: map[Step]StepFunc{
			setupCheck: func(ctx context.Context) (Step, error) {
				gc, err := env.Guilds.Get(env.GuildID)
				if err != nil {
					return Done, err
				}
				draft.language, draft.prefix = gc.Language, gc.Prefix
				draft.modlog, draft.admins = gc.Channels.ModLog, gc.Roles.Admin
				if !gc.SetupComplete {
					return setupIntro, nil
				}
				ok, err := env.Conv.Confirm(ctx, env.t("setup_title"), env.t("setup_rerun"))
				if err != nil || !ok {
					return Done, err
				}
				return setupLanguage, nil
			},

			setupIntro: func(ctx context.Context) (Step, error) {
				ok, err := env.Conv.Confirm(ctx, env.t("setup_title"), env.t("setup_intro"))
				if err != nil {
					return Done, err
				}
				if !ok {
					return Done, env.Conv.Notify(ctx, env.t("setup_title"), env.t("cancelled"))
				}
				return setupLanguage, nil
			},

			setupLanguage: func(ctx context.Context) (Step, error) {
				lang, err := env.askLanguage(ctx)
				if err != nil {
					return Done, err
				}
				draft.language = lang
				// The rest of the setup speaks the chosen language.
				env.Lang = lang
				return setupPrefix, nil
			},

			setupPrefix: func(ctx context.Context) (Step, error) {
				prefix, err := env.askPrefix(ctx)
				if err != nil {
					return Done, err
				}
				draft.prefix = prefix
				return setupModLog, nil
			},

			setupModLog: func(ctx context.Context) (Step, error) {
				ids, err := env.askRefs(ctx, kindChannel, env.t("setup_title"), env.tf("setup_modlog", locale.Args{
					"none": env.t("none_word"),
				}), true)
				if err != nil {
					return Done, err
				}
				draft.modlog = ""
				if len(ids) > 0 {
					draft.modlog = ids[0]
				}
				return setupAdmins, nil
			},

			setupAdmins: func(ctx context.Context) (Step, error) {
				ids, err := env.askRefs(ctx, kindRole, env.t("setup_title"), env.tf("setup_admins", locale.Args{
					"none": env.t("none_word"),
				}), true)
				if err != nil {
					return Done, err
				}
				draft.admins = ids
				return setupSummary, nil
			},

			setupSummary: func(ctx context.Context) (Step, error) {
				ok, err := env.Conv.Confirm(ctx, env.t("setup_title"), env.tf("setup_summary", locale.Args{
					"language": env.Locale.LanguageName(draft.language),
					"prefix":   draft.prefix,
					"modlog":   channelMention(draft.modlog),
					"admin":    roleMentions(draft.admins),
				}))
				if err != nil {
					return Done, err
				}
				if !ok {
					return Done, env.Conv.Notify(ctx, env.t("setup_title"), env.t("setup_discarded"))
				}
				return setupSave, nil
			},

			setupSave: func(ctx context.Context) (Step, error) {
				gc, err := env.update(func(gc *guildconfig.GuildConfig) error {
					gc.Language = draft.language
					gc.Prefix = draft.prefix
					gc.Channels.ModLog = draft.modlog
					gc.SetupComplete = true
					return gc.Roles.Set(guildconfig.RoleAdmin, draft.admins)
				})
				if err != nil {
					return Done, err
				}
				return Done, env.Conv.Notify(ctx, env.t("setup_title"), env.tf("setup_done", locale.Args{"prefix": gc.Prefix}))
			},
		},
	}
}
