package wizard

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"server-warden/internal/announce"
	"server-warden/internal/audit"
	"server-warden/internal/locale"
	"server-warden/internal/ui"
)

const (
	changelogVersion Step = "version"
	changelogBody    Step = "body"
	changelogPreview Step = "preview"
	changelogPublish Step = "publish"

	maxChangelogBody = 4000
)

var versionPattern = regexp.MustCompile(`^v?\d+\.\d+(\.\d+)?([-+][0-9A-Za-z.-]+)?$`)

// Changelogs stores published release notes.
type Changelogs interface {
	Changelog(ctx context.Context, version string) (*audit.ChangelogEntry, error)
	AddChangelog(ctx context.Context, version, body, authorID string) (*audit.ChangelogEntry, error)
	MarkChangelogDelivery(ctx context.Context, id uint, delivered, failed, skipped int) error
}

// Broadcaster delivers an embed to every guild's changelog channel.
type Broadcaster interface {
	Broadcast(ctx context.Context, embed *discordgo.MessageEmbed) (announce.Report, error)
}

// ChangelogEmbed renders a release note.
func ChangelogEmbed(title, body string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: ui.Truncate(body, maxChangelogBody),
		Color:       ui.DefaultColor,
	}
}

// Changelog collects a version and release note, shows a preview and, once
// confirmed, stores the entry and broadcasts it.
func Changelog(env *Env, store Changelogs, broadcaster Broadcaster) *Machine {
	var version, body string

	return &Machine{
		Name:  "changelog",
		Start: changelogVersion,
		Steps: map[Step]StepFunc{
			changelogVersion: func(ctx context.Context) (Step, error) {
				v, err := env.Conv.Prompt(ctx, env.t("changelog_title"), env.t("changelog_version"), func(answer string) error {
					if !versionPattern.MatchString(answer) {
						return validationError(env.t("changelog_version_invalid"))
					}
					existing, err := store.Changelog(ctx, answer)
					if err != nil {
						return ui.Abort(fmt.Errorf("look up changelog %s: %w", answer, err))
					}
					if existing != nil {
						return validationError(env.tf("changelog_version_exists", locale.Args{"version": answer}))
					}
					return nil
				})
				if err != nil {
					return Done, err
				}
				version = v
				return changelogBody, nil
			},

			changelogBody: func(ctx context.Context) (Step, error) {
				b, err := env.Conv.Prompt(ctx, env.t("changelog_title"), env.t("changelog_body"), func(answer string) error {
					if strings.TrimSpace(answer) == "" || utf8.RuneCountInString(answer) > maxChangelogBody {
						return validationError(env.tf("changelog_body_invalid", locale.Args{"max": maxChangelogBody}))
					}
					return nil
				})
				if err != nil {
					return Done, err
				}
				body = b
				return changelogPreview, nil
			},

			changelogPreview: func(ctx context.Context) (Step, error) {
				if _, err := env.Conv.Messenger.SendEmbed(ctx, env.Conv.ChannelID, env.changelogEmbed(version, body)); err != nil {
					return Done, err
				}
				ok, err := env.Conv.Confirm(ctx, env.t("changelog_title"), env.t("changelog_confirm"))
				if err != nil {
					return Done, err
				}
				if !ok {
					return Done, env.Conv.Notify(ctx, env.t("changelog_title"), env.t("cancelled"))
				}
				return changelogPublish, nil
			},

			changelogPublish: func(ctx context.Context) (Step, error) {
				entry, err := store.AddChangelog(ctx, version, body, env.UserID)
				if err != nil {
					return Done, err
				}
				report, err := broadcaster.Broadcast(ctx, env.changelogEmbed(version, body))
				if err != nil {
					return Done, err
				}
				if err := store.MarkChangelogDelivery(ctx, entry.ID, report.Delivered, report.Failed, report.Skipped); err != nil {
					env.log().Warn("failed to store changelog delivery", "version", version, "error", err)
				}
				return Done, env.Conv.Notify(ctx, env.t("changelog_title"), env.tf("changelog_report", locale.Args{
					"version":   version,
					"delivered": report.Delivered,
					"failed":    report.Failed,
					"skipped":   report.Skipped,
				}))
			},
		},
	}
}

func (e *Env) changelogEmbed(version, body string) *discordgo.MessageEmbed {
	return ChangelogEmbed(e.tf("changelog_embed_title", locale.Args{"version": version}), body)
}
