// Package docs renders the command reference from the registry.
package docs

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"server-warden/internal/command"
	"server-warden/internal/version"
	"server-warden/pkg/cmd"
)

//go:embed commands.md.tmpl
var defaultTemplate string

// Options control rendering. Template overrides the built-in layout; it
// receives AppName, Prefix and CommandSections.
type Options struct {
	Prefix        string
	Weights       map[string]int
	IncludeHidden bool
	Template      string
}

// Sections renders one markdown section per category, ordered by weight
// and then by command name.
func Sections(registry *cmd.Registry, opts Options) string {
	type entry struct {
		c    cmd.Command
		meta command.Meta
	}
	var entries []entry
	for _, c := range registry.GetAll() {
		meta, _ := command.MetaOf(c)
		if meta.Hidden && !opts.IncludeHidden {
			continue
		}
		entries = append(entries, entry{c: c, meta: meta})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		wi, wj := opts.Weights[entries[i].meta.Category], opts.Weights[entries[j].meta.Category]
		if wi == wj {
			return entries[i].c.Name() < entries[j].c.Name()
		}
		return wi < wj
	})

	var buf bytes.Buffer
	current := ""
	for i, e := range entries {
		if i == 0 || e.meta.Category != current {
			if i > 0 {
				buf.WriteString("\n")
			}
			current = e.meta.Category
			fmt.Fprintf(&buf, "### %s\n\n", title(current))
		}

		usage := e.meta.Usage
		if usage == "" {
			usage = e.c.Name()
		}
		fmt.Fprintf(&buf, "- **`%s%s`** — %s", opts.Prefix, usage, e.c.Description())
		if aliases := command.AliasesOf(e.c); len(aliases) > 0 {
			fmt.Fprintf(&buf, " (aliases: %s)", strings.Join(aliases, ", "))
		}
		if flags := access(e.meta); flags != "" {
			fmt.Fprintf(&buf, " _%s_", flags)
		}
		buf.WriteString("\n")
	}
	return buf.String()
}

// Render executes the template with the command sections.
func Render(registry *cmd.Registry, opts Options) ([]byte, error) {
	src := opts.Template
	if src == "" {
		src = defaultTemplate
	}
	tmpl, err := template.New("commands").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	var out bytes.Buffer
	err = tmpl.Execute(&out, map[string]any{
		"AppName":         version.AppName,
		"Prefix":          opts.Prefix,
		"CommandSections": Sections(registry, opts),
	})
	if err != nil {
		return nil, fmt.Errorf("execute template: %w", err)
	}
	return out.Bytes(), nil
}

// Write renders the reference to path.
func Write(path string, registry *cmd.Registry, opts Options) error {
	data, err := Render(registry, opts)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func access(m command.Meta) string {
	var parts []string
	if m.GuildOnly {
		parts = append(parts, "server only")
	}
	if m.AdminOnly {
		parts = append(parts, "admins")
	}
	if m.DeveloperOnly {
		parts = append(parts, "developers")
	}
	return strings.Join(parts, ", ")
}

func title(s string) string {
	if s == "" {
		return "Other"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
