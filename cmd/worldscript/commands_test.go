package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with a settings file pointing at a
// fresh database and returns stdout.
func runCLI(t *testing.T, settings string, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--config", settings, "--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func newSettings(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf("db_path: %s\nseed: 7\n", filepath.Join(dir, "world.db"))
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCLI_ImportThenExec(t *testing.T) {
	settings := newSettings(t)
	contentPath := writeContent(t, sampleContent)

	out, err := runCLI(t, settings, "import", contentPath)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 actions")

	out, err = runCLI(t, settings, "exec", "1", "--actor-id", "7", "--actor-name", "Alice")
	require.NoError(t, err)
	assert.Contains(t, out, "[to 7] Welcome, Alice!\n")
	assert.Contains(t, out, "[to 7] Resting... (3s)\n")

	jsonStart := strings.Index(out, "{")
	require.GreaterOrEqual(t, jsonStart, 0)
	var res execOutput
	require.NoError(t, json.Unmarshal([]byte(out[jsonStart:]), &res))
	assert.True(t, res.OK)
	assert.Equal(t, []uint32{1, 2}, res.Path)
}

func TestCLI_ExecMissingNode(t *testing.T) {
	settings := newSettings(t)

	out, err := runCLI(t, settings, "exec", "404")
	require.NoError(t, err)

	var res execOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.OK)
	assert.Equal(t, "CONFIGURATION_ERROR", res.Code)
}

func TestCLI_ExecBadID(t *testing.T) {
	_, err := runCLI(t, newSettings(t), "exec", "zero")
	assert.Error(t, err)

	_, err = runCLI(t, newSettings(t), "exec", "0")
	assert.Error(t, err)
}

func TestCLI_Resolve(t *testing.T) {
	out, err := runCLI(t, newSettings(t), "resolve", "Hi %user_name, lv %user_lev", "--actor-id", "7", "--actor-name", "Alice", "--level", "30")
	require.NoError(t, err)
	assert.Equal(t, "Hi Alice, lv 30\n", out)
}

func TestCLI_ImportInvalid(t *testing.T) {
	_, err := runCLI(t, newSettings(t), "import", writeContent(t, `{"actions":[{"id":0,"type":1}]}`))
	assert.Error(t, err)
}

func TestCLI_Init(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "settings.yaml")

	out, err := runCLI(t, path, "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)

	_, err = runCLI(t, path, "init")
	assert.Error(t, err, "refuses to overwrite")

	_, err = runCLI(t, path, "init", "--force")
	assert.NoError(t, err)
}
