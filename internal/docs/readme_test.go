package docs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"server-warden/internal/command"
	"server-warden/internal/config"
	"server-warden/pkg/cmd"
)

func registry(t *testing.T) *cmd.Registry {
	t.Helper()
	reg := cmd.NewRegistry()
	require.NoError(t, command.Register(reg))
	return reg
}

func TestSections(t *testing.T) {
	out := Sections(registry(t), Options{Prefix: "!", Weights: config.CategoryWeights})

	info := strings.Index(out, "### Information")
	settings := strings.Index(out, "### Settings")
	require.GreaterOrEqual(t, info, 0)
	require.Greater(t, settings, info, "categories follow their weights")

	assert.Contains(t, out, "**`!help [command]`**")
	assert.Contains(t, out, "aliases: commands, h")
	assert.Contains(t, out, "_server only, admins_")
	assert.NotContains(t, out, "reload")
	assert.Less(t, strings.Index(out, "`!about`"), strings.Index(out, "`!help"), "sorted by name")

	all := Sections(registry(t), Options{Prefix: "!", Weights: config.CategoryWeights, IncludeHidden: true})
	assert.Contains(t, all, "### Developer")
	assert.Contains(t, all, "_developers_")
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "COMMANDS.md")
	require.NoError(t, Write(path, registry(t), Options{Prefix: "?", Weights: config.CategoryWeights}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Server Warden commands"))
	assert.Contains(t, string(data), "`?ping`")
}

func TestRenderBadTemplate(t *testing.T) {
	_, err := Render(registry(t), Options{Template: "{{.Broken"})
	assert.Error(t, err)
}
