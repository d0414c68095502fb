package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	crerrors "github.com/Aman-CERP/chatrepair/internal/errors"
	"github.com/Aman-CERP/chatrepair/internal/store"
)

// isolate points the user config at an empty directory and clears the
// environment overrides.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{
		"CHATREPAIR_STORAGE_ROOT", "CHATREPAIR_DRIVER", "CHATREPAIR_LOCK_DIR",
		"CHATREPAIR_WORKERS", "CHATREPAIR_KEEP_BACKUPS", "CHATREPAIR_REMOVE_ORPHANS",
		"CHATREPAIR_RECOVER_ORPHANS", "CHATREPAIR_AUTO_CONFIRM",
		"CHATREPAIR_TITLE_MAX_LENGTH", "CHATREPAIR_WATCH_DEBOUNCE", "CHATREPAIR_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func writeUserConfig(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(GetUserConfigDir(), 0o755))
	require.NoError(t, os.WriteFile(GetUserConfigPath(), []byte(content), 0o644))
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: all defaults should be applied
	require.NotNil(t, cfg)
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "", cfg.Storage.Root)
	assert.Equal(t, store.DriverModernc, cfg.Storage.Driver)
	assert.Contains(t, cfg.Storage.LockDir, "locks")
	assert.Equal(t, 1, cfg.Repair.Workers)
	assert.Equal(t, 0, cfg.Repair.KeepBackups)
	assert.False(t, cfg.Repair.RemoveOrphans)
	assert.False(t, cfg.Repair.AutoConfirm)
	assert.Equal(t, 100, cfg.Extract.TitleMaxLength)
	assert.Equal(t, "Untitled Session", cfg.Extract.PlaceholderTitle)
	assert.Equal(t, 2*time.Second, cfg.DebounceDuration())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

func TestLoad_UserConfigOverridesDefaults(t *testing.T) {
	// Given: a user config with some keys set
	isolate(t)
	writeUserConfig(t, `
version: 1
storage:
  root: /data/workspaceStorage
  driver: sqlite3
repair:
  workers: 4
  keep_backups: 3
  remove_orphans: true
extract:
  title_max_length: 60
logging:
  level: debug
`)

	// When: loading configuration
	cfg, err := Load("")

	// Then: the file's values win and the rest keep their defaults
	require.NoError(t, err)
	assert.Equal(t, "/data/workspaceStorage", cfg.Storage.Root)
	assert.Equal(t, store.DriverMattn, cfg.Storage.Driver)
	assert.Equal(t, 4, cfg.Repair.Workers)
	assert.Equal(t, 3, cfg.Repair.KeepBackups)
	assert.True(t, cfg.Repair.RemoveOrphans)
	assert.Equal(t, 60, cfg.Extract.TitleMaxLength)
	assert.Equal(t, "Untitled Session", cfg.Extract.PlaceholderTitle)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_ExplicitPath(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("repair:\n  workers: 2\n"), 0o644))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Repair.Workers)
}

func TestLoad_ExplicitPathMissing(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	assert.Equal(t, crerrors.ErrCodeConfigNotFound, crerrors.GetCode(err))
}

func TestLoad_InvalidYaml_ReturnsError(t *testing.T) {
	isolate(t)
	writeUserConfig(t, "repair: [unclosed\n")

	_, err := Load("")

	assert.Equal(t, crerrors.ErrCodeConfigInvalid, crerrors.GetCode(err))
}

func TestLoad_InvalidFieldType_ReturnsError(t *testing.T) {
	isolate(t)
	writeUserConfig(t, "repair:\n  workers: many\n")

	_, err := Load("")

	require.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	// Given: a user config and environment overrides
	isolate(t)
	writeUserConfig(t, "repair:\n  workers: 4\n  remove_orphans: true\n")
	t.Setenv("CHATREPAIR_WORKERS", "8")
	t.Setenv("CHATREPAIR_REMOVE_ORPHANS", "false")
	t.Setenv("CHATREPAIR_LOG_LEVEL", "warn")
	t.Setenv("CHATREPAIR_STORAGE_ROOT", "/env/root")

	cfg, err := Load("")

	// Then: the environment wins
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Repair.Workers)
	assert.False(t, cfg.Repair.RemoveOrphans)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "/env/root", cfg.Storage.Root)
}

func TestLoad_EnvUnparseableNumberIgnored(t *testing.T) {
	isolate(t)
	t.Setenv("CHATREPAIR_WORKERS", "lots")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Repair.Workers)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"no lock dir", func(c *Config) { c.Storage.LockDir = "" }},
		{"zero workers", func(c *Config) { c.Repair.Workers = 0 }},
		{"negative keep", func(c *Config) { c.Repair.KeepBackups = -1 }},
		{"tiny titles", func(c *Config) { c.Extract.TitleMaxLength = 3 }},
		{"bad debounce", func(c *Config) { c.Watch.Debounce = "soon" }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			assert.Equal(t, crerrors.ErrCodeConfigInvalid, crerrors.GetCode(err))
		})
	}
}

func TestStorageRoot_UsesConfiguredRoot(t *testing.T) {
	cfg := NewConfig()
	cfg.Storage.Root = "/x/workspaceStorage"

	root, err := cfg.StorageRoot()

	require.NoError(t, err)
	assert.Equal(t, "/x/workspaceStorage", root)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "locks"), expandHome("~/locks"))
	assert.Equal(t, "/abs/locks", expandHome("/abs/locks"))
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	cfg := NewConfig()
	cfg.Repair.Workers = 3
	path := filepath.Join(t.TempDir(), "out.yaml")

	require.NoError(t, cfg.WriteYAML(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var back Config
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, *cfg, back)
}

func TestGetUserConfigPath_RespectsXDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	assert.Equal(t, filepath.Join(dir, "chatrepair", "config.yaml"), GetUserConfigPath())
	assert.Equal(t, filepath.Join(dir, "chatrepair"), GetUserConfigDir())
}
