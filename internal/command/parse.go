package command

import (
	"strings"
	"unicode"

	"server-warden/internal/config"
	"server-warden/pkg/cmd"
)

// Parse recognizes a command message: content starting with prefix or with
// a mention of the bot. It returns the lower-cased command name, the quoted
// argument list and the raw text after the name.
func Parse(content, prefix, botID string) (name string, args []string, raw string, ok bool) {
	content = strings.TrimSpace(content)

	rest, found := "", false
	if botID != "" {
		for _, mention := range []string{"<@" + botID + ">", "<@!" + botID + ">"} {
			if strings.HasPrefix(content, mention) {
				rest, found = content[len(mention):], true
				break
			}
		}
	}
	if !found && prefix != "" && strings.HasPrefix(content, prefix) {
		rest, found = content[len(prefix):], true
	}
	if !found {
		return "", nil, "", false
	}

	rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
	end := strings.IndexFunc(rest, unicode.IsSpace)
	if end < 0 {
		end = len(rest)
	}
	name = strings.ToLower(rest[:end])
	if name == "" {
		return "", nil, "", false
	}
	raw = strings.TrimSpace(rest[end:])
	return name, SplitArgs(raw), raw, true
}

// SplitArgs splits s on whitespace. Double-quoted parts stay together; an
// unterminated quote runs to the end of the input.
func SplitArgs(s string) []string {
	var (
		args    []string
		cur     strings.Builder
		quoted  bool
		started bool
	)
	flush := func() {
		if started {
			args = append(args, cur.String())
		}
		cur.Reset()
		started = false
	}
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			started = true
		case unicode.IsSpace(r) && !quoted:
			flush()
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	flush()
	return args
}

// Catalog lists the names the limits wizard can restrict.
type Catalog struct {
	Registry *cmd.Registry
}

func (Catalog) Categories() []string {
	return config.Categories()
}

// Commands returns the names of visible commands.
func (c Catalog) Commands() []string {
	var names []string
	for _, command := range c.Registry.GetAll() {
		if meta, ok := MetaOf(command); ok && meta.Hidden {
			continue
		}
		names = append(names, command.Name())
	}
	return names
}
