package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyforge/shield/internal/logging"
)

func TestLoadConfigReadsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shield.yaml")
	require.NoError(t, os.WriteFile(path, []byte("service: storyforge\n"), 0o600))

	opts := &Options{ConfigFile: path, Logger: logging.New("test", false)}
	cfg, err := opts.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "storyforge", cfg.Service)
}

func TestLoadConfigMissingDefaultPathFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	opts := &Options{ConfigFile: "shield.yaml", Logger: logging.New("test", false)}
	cfg, err := opts.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "shield", cfg.Service)
	assert.Equal(t, ":8080", cfg.Server.Listen)
}

func TestLoadConfigMissingExplicitPathFails(t *testing.T) {
	t.Parallel()

	opts := &Options{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml"), Logger: logging.New("test", false)}
	_, err := opts.LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigDebugFlagOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shield.yaml")
	require.NoError(t, os.WriteFile(path, []byte("service: storyforge\n"), 0o600))

	opts := &Options{ConfigFile: path, Debug: true, Logger: logging.New("test", true)}
	cfg, err := opts.LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
}
