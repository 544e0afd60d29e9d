package command

import (
	"context"
	"time"

	"server-warden/internal/config"
	"server-warden/internal/locale"
	"server-warden/internal/wizard"
	"server-warden/pkg/cmd"
)

type ChangelogCommand struct{}

func (ChangelogCommand) Name() string        { return "changelog" }
func (ChangelogCommand) Description() string { return "Publish release notes to every server" }
func (ChangelogCommand) Meta() Meta {
	return Meta{Category: config.CategoryDeveloper, DeveloperOnly: true, Hidden: true}
}

func (ChangelogCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := From(inv)
	if err != nil {
		return err
	}
	return mc.RunWizard(ctx, "changelog", func(env *wizard.Env) *wizard.Machine {
		return wizard.Changelog(env, mc.Audit, mc.Broadcaster)
	})
}

type NewsCommand struct{}

func (NewsCommand) Name() string        { return "news" }
func (NewsCommand) Description() string { return "Show the latest release notes" }
func (NewsCommand) Aliases() []string   { return []string{"changes"} }
func (NewsCommand) Meta() Meta          { return Meta{Category: config.CategoryInformation} }

func (NewsCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	mc, err := From(inv)
	if err != nil {
		return err
	}
	entry, err := mc.Audit.LatestChangelog(ctx)
	if err != nil {
		return err
	}
	if entry == nil {
		return mc.Reply(ctx, mc.T("commands", "news_none"))
	}

	embed := wizard.ChangelogEmbed(mc.Tf("wizard", "changelog_embed_title", locale.Args{"version": entry.Version}), entry.Body)
	embed.Timestamp = entry.Created().UTC().Format(time.RFC3339)
	return mc.ReplyEmbed(ctx, embed)
}
