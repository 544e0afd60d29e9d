// Package locale looks up user-facing strings by category, name, language
// and style. Missing translations fall back to the default style and then
// to the default language; a string missing everywhere renders as
// "category.name" so the gap is visible in chat.
package locale

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultStyle is the style used when a caller has no preference.
const DefaultStyle = "default"

//go:embed strings.yaml
var builtin []byte

// Args are substituted into {placeholder} tokens by Format.
type Args map[string]any

type Language struct {
	Code string
	Name string
}

// variants maps a style to its text for one language.
type variants map[string]string

// UnmarshalYAML accepts either a bare string (the default style) or a
// mapping of style to text.
func (v *variants) UnmarshalYAML(node *yaml.Node) error {
	*v = variants{}
	switch node.Kind {
	case yaml.ScalarNode:
		(*v)[DefaultStyle] = node.Value
		return nil
	case yaml.MappingNode:
		m := map[string]string{}
		if err := node.Decode(&m); err != nil {
			return err
		}
		for style, text := range m {
			(*v)[style] = text
		}
		return nil
	}
	return fmt.Errorf("line %d: expected string or style mapping", node.Line)
}

type document struct {
	Languages map[string]string                         `yaml:"languages"`
	Strings   map[string]map[string]map[string]variants `yaml:"strings"`
}

// Catalog is an immutable set of translations.
type Catalog struct {
	def       string
	languages []Language
	names     map[string]string
	strings   map[string]map[string]map[string]variants
}

// Builtin parses the catalog compiled into the binary.
func Builtin(defaultLanguage string) (*Catalog, error) {
	return Parse(builtin, defaultLanguage)
}

// Parse reads a YAML catalog. defaultLanguage must be one of its languages.
func Parse(data []byte, defaultLanguage string) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse locale catalog: %w", err)
	}
	if len(doc.Languages) == 0 {
		return nil, fmt.Errorf("locale catalog declares no languages")
	}
	if _, ok := doc.Languages[defaultLanguage]; !ok {
		return nil, fmt.Errorf("default language %q is not in the catalog", defaultLanguage)
	}

	c := &Catalog{
		def:     defaultLanguage,
		names:   doc.Languages,
		strings: doc.Strings,
	}
	for code, name := range doc.Languages {
		c.languages = append(c.languages, Language{Code: code, Name: name})
	}
	sort.Slice(c.languages, func(i, j int) bool { return c.languages[i].Code < c.languages[j].Code })
	return c, nil
}

func (c *Catalog) Default() string {
	return c.def
}

// Languages returns the available languages ordered by code.
func (c *Catalog) Languages() []Language {
	return append([]Language(nil), c.languages...)
}

// Has reports whether lang is a known language code.
func (c *Catalog) Has(lang string) bool {
	_, ok := c.names[lang]
	return ok
}

// LanguageName returns the display name of lang, or lang itself.
func (c *Catalog) LanguageName(lang string) string {
	if n, ok := c.names[lang]; ok {
		return n
	}
	return lang
}

// Get resolves a string, trying (lang, style), (lang, default),
// (default language, style) and (default language, default) in order.
func (c *Catalog) Get(category, name, lang, style string) string {
	if style == "" {
		style = DefaultStyle
	}
	if entry := c.strings[category][name]; entry != nil {
		for _, l := range []string{lang, c.def} {
			v := entry[l]
			if v == nil {
				continue
			}
			if s, ok := v[style]; ok {
				return s
			}
			if s, ok := v[DefaultStyle]; ok {
				return s
			}
		}
	}
	return category + "." + name
}

// Text resolves a string in the default style.
func (c *Catalog) Text(category, name, lang string) string {
	return c.Get(category, name, lang, DefaultStyle)
}

// Format resolves a string and substitutes args.
func (c *Catalog) Format(category, name, lang string, args Args) string {
	return Substitute(c.Text(category, name, lang), args)
}

// Exists reports whether category.name has any translation.
func (c *Catalog) Exists(category, name string) bool {
	return c.strings[category][name] != nil
}

// Missing lists "category.name" keys that have no text for lang in any style.
func (c *Catalog) Missing(lang string) []string {
	var out []string
	for cat, names := range c.strings {
		for name, entry := range names {
			if len(entry[lang]) == 0 {
				out = append(out, cat+"."+name)
			}
		}
	}
	sort.Strings(out)
	return out
}

var placeholder = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Substitute replaces {name} tokens with args[name]. Unknown tokens stay as they are.
func Substitute(s string, args Args) string {
	if len(args) == 0 || !strings.Contains(s, "{") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(tok string) string {
		v, ok := args[tok[1:len(tok)-1]]
		if !ok {
			return tok
		}
		return fmt.Sprint(v)
	})
}
