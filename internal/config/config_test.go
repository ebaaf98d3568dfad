package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Gateway.Host)
	assert.Equal(t, 8000, cfg.Gateway.Port)
	assert.Equal(t, "claude", cfg.Agent.Binary)
	assert.Equal(t, "default", cfg.Agent.PermissionMode)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Cleanup.Enabled)
	assert.Equal(t, 30, cfg.Cleanup.RetentionDays)
}

func TestLoadFromFile(t *testing.T) {
	Reset()
	defer Reset()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
gateway:
  host: 0.0.0.0
  port: 9000
agent:
  binary: /usr/local/bin/claude
  permission_mode: acceptEdits
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Gateway.Host)
	assert.Equal(t, 9000, cfg.Gateway.Port)
	assert.Equal(t, "/usr/local/bin/claude", cfg.Agent.Binary)
	assert.Equal(t, "acceptEdits", cfg.Agent.PermissionMode)
	// Untouched keys keep their defaults.
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Gateway.Port)
}

func TestSaveTo(t *testing.T) {
	Reset()
	defer Reset()

	cfg := &Config{
		Gateway: GatewayConfig{Host: "127.0.0.1", Port: 8000},
	}
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	require.NoError(t, SaveTo(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "port: 8000")
}

func TestGetStopTimeout(t *testing.T) {
	c := &AgentConfig{}
	assert.Equal(t, "5s", c.GetStopTimeout().String())

	c.StopTimeout = "10s"
	assert.Equal(t, "10s", c.GetStopTimeout().String())

	c.StopTimeout = "bogus"
	assert.Equal(t, "5s", c.GetStopTimeout().String())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/foo/bar")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "foo/bar"), got)

	got, err = ExpandPath("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)

	got, err = ExpandPath("")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	got, err = ExpandPath("~")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, string(os.PathSeparator)) || got != "")
}
