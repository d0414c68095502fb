package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	crerrors "github.com/Aman-CERP/chatrepair/internal/errors"
	"github.com/Aman-CERP/chatrepair/internal/extract"
	"github.com/Aman-CERP/chatrepair/internal/store"
	"github.com/Aman-CERP/chatrepair/internal/workspace"
)

// Config represents the complete chatrepair configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Repair  RepairConfig  `yaml:"repair" json:"repair"`
	Extract ExtractConfig `yaml:"extract" json:"extract"`
	Watch   WatchConfig   `yaml:"watch" json:"watch"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// StorageConfig locates the host's workspace storage and selects how the
// state databases are opened.
type StorageConfig struct {
	// Root is the workspaceStorage directory. Empty means the platform
	// default.
	Root string `yaml:"root" json:"root"`

	// Driver is the database/sql driver: "sqlite" (pure Go) or "sqlite3"
	// (cgo).
	Driver string `yaml:"driver" json:"driver"`

	// LockDir holds the advisory lock files taken while a store is open
	// for writing.
	LockDir string `yaml:"lock_dir" json:"lock_dir"`
}

// RepairConfig holds the repair defaults. Command-line flags override them.
type RepairConfig struct {
	Workers        int  `yaml:"workers" json:"workers"`
	KeepBackups    int  `yaml:"keep_backups" json:"keep_backups"`
	RemoveOrphans  bool `yaml:"remove_orphans" json:"remove_orphans"`
	RecoverOrphans bool `yaml:"recover_orphans" json:"recover_orphans"`
	AutoConfirm    bool `yaml:"auto_confirm" json:"auto_confirm"`
}

// ExtractConfig configures session metadata extraction.
type ExtractConfig struct {
	TitleMaxLength   int    `yaml:"title_max_length" json:"title_max_length"`
	PlaceholderTitle string `yaml:"placeholder_title" json:"placeholder_title"`
	CacheSize        int    `yaml:"cache_size" json:"cache_size"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	// Debounce is how long the sessions directory must be quiet before a
	// check runs, as a Go duration string.
	Debounce string `yaml:"debounce" json:"debounce"`
}

// LoggingConfig configures the log file.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			Root:    "",
			Driver:  store.DriverModernc,
			LockDir: defaultLockDir(),
		},
		Repair: RepairConfig{
			Workers:     1,
			KeepBackups: 0, // keep every backup
		},
		Extract: ExtractConfig{
			TitleMaxLength:   extract.DefaultTitleMaxLength,
			PlaceholderTitle: extract.DefaultPlaceholderTitle,
			CacheSize:        extract.DefaultCacheSize,
		},
		Watch: WatchConfig{
			Debounce: "2s",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// DataDir returns ~/.chatrepair, or a directory under the temp dir when
// the home directory is unknown.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".chatrepair")
	}
	return filepath.Join(home, ".chatrepair")
}

func defaultLockDir() string {
	return filepath.Join(DataDir(), "locks")
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/chatrepair/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/chatrepair/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "chatrepair", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "chatrepair", "config.yaml")
	}
	return filepath.Join(home, ".config", "chatrepair", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. The config file: path if given, otherwise the user config if it exists
//  3. Environment variables (CHATREPAIR_*)
//
// Command-line flags are applied by the caller afterwards.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		if !fileExists(path) {
			return nil, crerrors.New(crerrors.ErrCodeConfigNotFound,
				"config file not found: "+path, nil).
				WithSuggestion("Run 'chatrepair config init' to create one")
		}
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	} else if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return crerrors.ConfigError(fmt.Sprintf("failed to read config file %s", path), err)
	}

	// Parse into an empty struct so only the keys present override defaults.
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return crerrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Storage.Root != "" {
		c.Storage.Root = other.Storage.Root
	}
	if other.Storage.Driver != "" {
		c.Storage.Driver = other.Storage.Driver
	}
	if other.Storage.LockDir != "" {
		c.Storage.LockDir = other.Storage.LockDir
	}

	if other.Repair.Workers != 0 {
		c.Repair.Workers = other.Repair.Workers
	}
	if other.Repair.KeepBackups != 0 {
		c.Repair.KeepBackups = other.Repair.KeepBackups
	}
	// Booleans default to false, so true is the only value worth merging.
	if other.Repair.RemoveOrphans {
		c.Repair.RemoveOrphans = true
	}
	if other.Repair.RecoverOrphans {
		c.Repair.RecoverOrphans = true
	}
	if other.Repair.AutoConfirm {
		c.Repair.AutoConfirm = true
	}

	if other.Extract.TitleMaxLength != 0 {
		c.Extract.TitleMaxLength = other.Extract.TitleMaxLength
	}
	if other.Extract.PlaceholderTitle != "" {
		c.Extract.PlaceholderTitle = other.Extract.PlaceholderTitle
	}
	if other.Extract.CacheSize != 0 {
		c.Extract.CacheSize = other.Extract.CacheSize
	}

	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies CHATREPAIR_* environment variable overrides.
// Unparseable numbers are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CHATREPAIR_STORAGE_ROOT"); v != "" {
		c.Storage.Root = v
	}
	if v := os.Getenv("CHATREPAIR_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("CHATREPAIR_LOCK_DIR"); v != "" {
		c.Storage.LockDir = v
	}
	if v := os.Getenv("CHATREPAIR_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Repair.Workers = n
		}
	}
	if v := os.Getenv("CHATREPAIR_KEEP_BACKUPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Repair.KeepBackups = n
		}
	}
	// Booleans can be switched off from the environment.
	if v := os.Getenv("CHATREPAIR_REMOVE_ORPHANS"); v != "" {
		c.Repair.RemoveOrphans = parseBool(v)
	}
	if v := os.Getenv("CHATREPAIR_RECOVER_ORPHANS"); v != "" {
		c.Repair.RecoverOrphans = parseBool(v)
	}
	if v := os.Getenv("CHATREPAIR_AUTO_CONFIRM"); v != "" {
		c.Repair.AutoConfirm = parseBool(v)
	}
	if v := os.Getenv("CHATREPAIR_TITLE_MAX_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Extract.TitleMaxLength = n
		}
	}
	if v := os.Getenv("CHATREPAIR_WATCH_DEBOUNCE"); v != "" {
		c.Watch.Debounce = v
	}
	if v := os.Getenv("CHATREPAIR_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case store.DriverModernc, store.DriverMattn:
	default:
		return invalid("storage.driver must be %q or %q, got %q",
			store.DriverModernc, store.DriverMattn, c.Storage.Driver)
	}
	if c.Storage.LockDir == "" {
		return invalid("storage.lock_dir must not be empty")
	}

	if c.Repair.Workers < 1 {
		return invalid("repair.workers must be at least 1, got %d", c.Repair.Workers)
	}
	if c.Repair.KeepBackups < 0 {
		return invalid("repair.keep_backups must be non-negative, got %d", c.Repair.KeepBackups)
	}

	// Truncation keeps max-3 runes plus "...".
	if c.Extract.TitleMaxLength < 4 {
		return invalid("extract.title_max_length must be at least 4, got %d", c.Extract.TitleMaxLength)
	}
	if c.Extract.CacheSize < 1 {
		return invalid("extract.cache_size must be positive, got %d", c.Extract.CacheSize)
	}

	if d, err := time.ParseDuration(c.Watch.Debounce); err != nil || d <= 0 {
		return invalid("watch.debounce must be a positive duration, got %q", c.Watch.Debounce)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return invalid("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 1 || c.Logging.MaxFiles < 1 {
		return invalid("logging.max_size_mb and logging.max_files must be positive")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return crerrors.New(crerrors.ErrCodeConfigInvalid, fmt.Sprintf(format, args...), nil).
		WithSuggestion("Check " + GetUserConfigPath())
}

// StorageRoot returns the configured workspaceStorage directory or the
// platform default.
func (c *Config) StorageRoot() (string, error) {
	if c.Storage.Root != "" {
		return expandHome(c.Storage.Root), nil
	}
	return workspace.StorageRoot()
}

// StoreOptions returns the options used to open state databases.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Driver:  c.Storage.Driver,
		LockDir: expandHome(c.Storage.LockDir),
	}
}

// ExtractOptions returns the metadata extraction options.
func (c *Config) ExtractOptions() extract.Options {
	return extract.Options{
		TitleMaxLength:   c.Extract.TitleMaxLength,
		PlaceholderTitle: c.Extract.PlaceholderTitle,
		CacheSize:        c.Extract.CacheSize,
	}
}

// DebounceDuration returns the parsed watch debounce.
func (c *Config) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
