package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestInitConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	path, err := InitConfig(false)
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfigPath(), path)
	assert.True(t, DefaultConfigExists())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, section := range []string{
		"# wcstore configuration file",
		"logging:",
		"database:",
		"pristine:",
		"kevent:",
	} {
		assert.Contains(t, string(content), section)
	}

	var cfg Config
	require.NoError(t, yaml.Unmarshal(content, &cfg), "generated config is not valid YAML")

	_, err = InitConfig(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = InitConfig(true)
	require.NoError(t, err)
}

func TestInitConfigToPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "wcstore.yaml")

	require.NoError(t, InitConfigToPath(path, false))
	require.Error(t, InitConfigToPath(path, false))

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))
	require.NoError(t, InitConfigToPath(path, true))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "garbage")
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, InitConfigToPath(path, false))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), cfg)
}
