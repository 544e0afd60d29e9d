package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"server-warden/internal/app"
	"server-warden/internal/config"
	"server-warden/internal/docs"
	"server-warden/internal/version"
	"server-warden/internal/wizard"
	"server-warden/pkg/util"
)

type opener func(ctx context.Context) (*app.App, error)

// cli holds the App opened for the running command.
type cli struct {
	open opener
	app  *app.App
}

// newRootCmd builds the command tree. The returned func closes whatever
// the executed command opened.
func newRootCmd(open opener) (*cobra.Command, func() error) {
	c := &cli{open: open}
	root := &cobra.Command{
		Use:           "warden",
		Short:         "Inspect " + version.AppName + " guild settings and audit history",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
	}
	root.AddCommand(
		c.guildsCmd(),
		c.showCmd(),
		c.limitsCmd(),
		c.historyCmd(),
		c.docsCmd(),
	)
	return root, c.close
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

func (c *cli) guildsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "guilds",
		Short: "List guilds with stored settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ids, err := c.app.Guilds.Guilds()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "GUILD\tPREFIX\tLANGUAGE\tSETUP\tMODLOG")
			for _, id := range ids {
				gc, err := c.app.Guilds.Get(id)
				if err != nil {
					fmt.Fprintf(tw, "%s\t-\t-\t-\t%v\n", id, err)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", id, gc.Prefix, gc.Language, gc.SetupComplete, orDash(gc.Channels.ModLog))
			}
			return tw.Flush()
		},
	}
}

func (c *cli) showCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <guild-id>",
		Short: "Print a guild's settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gc, err := c.app.Guilds.Get(args[0])
			if err != nil {
				return err
			}
			return encode(cmd.OutOrStdout(), format, gc)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml or json")
	return cmd
}

func encode(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// Round-trip through JSON so the yaml keys follow the json tags.
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func (c *cli) limitsCmd() *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "limits <guild-id>",
		Short: "Describe a guild's command limits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gc, err := c.app.Guilds.Get(args[0])
			if err != nil {
				return err
			}
			if lang == "" {
				lang = gc.Language
			}
			env := &wizard.Env{Deps: &wizard.Deps{Locale: c.app.Locale, Log: c.app.Log}, GuildID: gc.GuildID, Lang: lang}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), env.DescribeLimits(&gc.Limits))
			return err
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "language of the description (default: the guild's)")
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	var (
		guildID string
		limit   int
	)
	history := &cobra.Command{
		Use:   "history",
		Short: "Show recorded name and avatar changes",
	}
	history.PersistentFlags().IntVarP(&limit, "limit", "n", 20, "maximum number of rows")

	names := &cobra.Command{
		Use:   "names <user-id>",
		Short: "Show username, display name and nickname changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := c.app.Audit.NameHistory(cmd.Context(), args[0], guildID, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tKIND\tGUILD\tBEFORE\tAFTER")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", stamp(r.Created()), r.Kind, orDash(r.GuildID), orDash(r.Before), orDash(r.After))
			}
			return tw.Flush()
		},
	}
	names.Flags().StringVarP(&guildID, "guild", "g", "", "include nickname changes in this guild")

	avatars := &cobra.Command{
		Use:   "avatars <user-id>",
		Short: "Show avatar changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := c.app.Audit.AvatarHistory(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tURL")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\n", stamp(r.Created()), orDash(r.URL))
			}
			return tw.Flush()
		},
	}

	history.AddCommand(names, avatars)
	return history
}

func (c *cli) docsCmd() *cobra.Command {
	var (
		out      string
		tmpl     string
		hidden   bool
		prefix   string
		toStdout bool
	)
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Write the command reference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := docs.Options{
				Prefix:        prefix,
				Weights:       config.CategoryWeights,
				IncludeHidden: hidden,
			}
			if opts.Prefix == "" {
				opts.Prefix = c.app.Config.DefaultPrefix
			}
			if tmpl != "" {
				data, err := readFile(tmpl)
				if err != nil {
					return err
				}
				opts.Template = data
			}
			if toStdout {
				data, err := docs.Render(c.app.Registry, opts)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := docs.Write(out, c.app.Registry, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "COMMANDS.md", "output file")
	cmd.Flags().StringVarP(&tmpl, "template", "t", "", "custom template file")
	cmd.Flags().BoolVar(&hidden, "hidden", false, "include developer commands")
	cmd.Flags().StringVar(&prefix, "prefix", "", "prefix shown in examples (default: DEFAULT_PREFIX)")
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "print instead of writing a file")
	return cmd
}

var errEmptyTemplate = errors.New("template file is empty")

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errEmptyTemplate
	}
	return string(data), nil
}

func stamp(t time.Time) string {
	return util.FormatDateTpl(t.UnixMilli(), "YYYY-MM-DD hh:mm:ss")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
