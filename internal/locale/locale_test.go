package locale

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `
languages:
  en: English
  ru: Русский
strings:
  general:
    hello:
      en: "Hello, {user}!"
      ru: "Привет, {user}!"
    only_en:
      en: "English only"
    styled:
      en:
        default: "plain"
        embed: "**bold**"
      ru:
        embed: "**жирный**"
`

func parseTest(t *testing.T) *Catalog {
	t.Helper()
	c, err := Parse([]byte(testCatalog), "en")
	require.NoError(t, err)
	return c
}

func TestGetFallbackChain(t *testing.T) {
	c := parseTest(t)

	testCases := []struct {
		name                  string
		cat, key, lang, style string
		want                  string
	}{
		{"exact", "general", "styled", "ru", "embed", "**жирный**"},
		{"language default style", "general", "hello", "ru", "embed", "Привет, {user}!"},
		{"default language style", "general", "styled", "de", "embed", "**bold**"},
		{"ru missing default style falls to en default", "general", "styled", "ru", "", "plain"},
		{"default language", "general", "only_en", "ru", "", "English only"},
		{"missing key", "general", "nope", "en", "", "general.nope"},
		{"missing category", "other", "hello", "en", "", "other.hello"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.Get(tc.cat, tc.key, tc.lang, tc.style))
		})
	}
}

func TestFormat(t *testing.T) {
	c := parseTest(t)
	assert.Equal(t, "Hello, Ann!", c.Format("general", "hello", "en", Args{"user": "Ann"}))
	assert.Equal(t, "Hello, {user}!", c.Format("general", "hello", "en", nil))
	assert.Equal(t, "{a} 2", Substitute("{a} {b}", Args{"b": 2}))
}

func TestLanguages(t *testing.T) {
	c := parseTest(t)
	assert.Equal(t, []Language{{"en", "English"}, {"ru", "Русский"}}, c.Languages())
	assert.True(t, c.Has("ru"))
	assert.False(t, c.Has("de"))
	assert.Equal(t, "Русский", c.LanguageName("ru"))
	assert.Equal(t, "en", c.Default())
	assert.Equal(t, []string{"general.only_en"}, c.Missing("ru"))
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte(testCatalog), "de")
	assert.Error(t, err)
	_, err = Parse([]byte("strings: {}"), "en")
	assert.Error(t, err)
	_, err = Parse([]byte("languages: {en: English}\nstrings: {a: {b: {en: [1, 2]}}}"), "en")
	assert.Error(t, err)
}

func TestBuiltinCatalog(t *testing.T) {
	c, err := Builtin("en")
	require.NoError(t, err)
	assert.True(t, c.Has("en"))
	assert.True(t, c.Has("ru"))
	assert.Empty(t, c.Missing("en"), "every key needs an English text")
	assert.True(t, c.Exists("errors", "generic"))
}
