package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3, cfg.Agent.MaxCycles)
	assert.Equal(t, 175000, cfg.Agent.MaxContextTokens)
	assert.Equal(t, 8, cfg.Memory.TopK)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.BaseDelay)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Agent.MaxCycles, cfg.Agent.MaxCycles)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memento.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
meta:
  model: custom-planner
agent:
  max_cycles: 5
memory:
  top_k: 4
tools:
  - name: search
    command: python
    args: ["search_server.py"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "custom-planner", cfg.Meta.Model)
	assert.Equal(t, 5, cfg.Agent.MaxCycles)
	assert.Equal(t, 4, cfg.Memory.TopK)
	require.Len(t, cfg.Tools, 1)
	assert.Equal(t, "search", cfg.Tools[0].Name)
	// Untouched keys keep their defaults.
	assert.Equal(t, "o4-mini", cfg.Exec.Model)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent: ["), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MEMENTO_META_MODEL", "env-model")
	t.Setenv("MEMENTO_MAX_CYCLES", "7")
	t.Setenv("MEMENTO_TOP_K", "2")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-model", cfg.Meta.Model)
	assert.Equal(t, 7, cfg.Agent.MaxCycles)
	assert.Equal(t, 2, cfg.Memory.TopK)
}

func TestValidateRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  max_cycles: 0\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("tools:\n  - name: a\n    command: x\n  - name: a\n    command: y\n"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tool server")
}

func TestAPIKeyResolution(t *testing.T) {
	t.Setenv("CUSTOM_KEY", "abc")
	t.Setenv("OPENAI_API_KEY", "fallback")

	b := Backend{APIKeyEnv: "CUSTOM_KEY"}
	assert.Equal(t, "abc", b.APIKey())

	b = Backend{}
	assert.Equal(t, "fallback", b.APIKey())
}
