package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8400", cfg.Server.Port)
	assert.Equal(t, "http://localhost:8888", cfg.Runtime.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Bridge.AutosaveDebounce)
	assert.Equal(t, 60*time.Second, cfg.Bridge.AutosaveInterval)
	assert.Equal(t, "/workspace", cfg.Bridge.WorkspaceRoot)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("BRIDGE_AUTOSAVE_DEBOUNCE", "2s")
	t.Setenv("BRIDGE_ALLOWED_ORIGIN", "https://host.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Bridge.AutosaveDebounce)
	assert.Equal(t, "https://host.example", cfg.Server.AllowedOrigin)
}

func TestLoadFile_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"server:\n  port: \"9200\"\nbridge:\n  workspace_root: /data/workspaces\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "9200", cfg.Server.Port)
	assert.Equal(t, "/data/workspaces", cfg.Bridge.WorkspaceRoot)
	// Untouched values keep their defaults.
	assert.Equal(t, "http://localhost:8888", cfg.Runtime.BaseURL)
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestDefault_MatchesEnvDefaults(t *testing.T) {
	def := Default()
	env, err := Load()
	require.NoError(t, err)
	assert.Equal(t, def.Bridge.SaveTimeout, env.Bridge.SaveTimeout)
	assert.Equal(t, def.RateLimit.Burst, env.RateLimit.Burst)
}
