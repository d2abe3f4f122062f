package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir       string `toml:"data_dir"`
	LogDir        string `toml:"log_dir"`
	MinFreeSpace  int    `toml:"min_free_space_gib"`
	LockStaleSecs int    `toml:"lock_stale_seconds"`
}

// Logging contains log output configuration.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Notifications contains configuration for the push notification gateway.
type Notifications struct {
	Topic          string `toml:"topic"`
	RequestTimeout int    `toml:"request_timeout"`
	BatchEvents    bool   `toml:"batch_events"`
	DisposalEvents bool   `toml:"disposal_events"`
}

// Identity contains the consumed collaborator lookups: which producer a
// user account resolves to, and display names for waste handlers.
type Identity struct {
	Producers map[string]string `toml:"producers"`
	Handlers  map[string]string `toml:"handlers"`
}

// Processing contains behavioral switches for the stage pipeline.
type Processing struct {
	RequireSplitBalance bool `toml:"require_split_balance"`
}

// Config is the explicit application configuration injected at startup.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
	Identity      Identity      `toml:"identity"`
	Processing    Processing    `toml:"processing"`
}

// DefaultConfigPath returns the conventional config file location.
func DefaultConfigPath() string {
	return expandHome("~/.config/milltrack/config.toml")
}

// Load reads configuration from path, falling back to defaults for any
// fields the file omits. A missing file yields the defaults with
// found=false so callers can decide whether that is fatal.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	resolved := strings.TrimSpace(path)
	if resolved == "" {
		resolved = DefaultConfigPath()
	}
	resolved = expandHome(resolved)

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg.normalize()
			return &cfg, false, nil
		}
		return nil, false, fmt.Errorf("read config %s: %w", resolved, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, true, fmt.Errorf("parse config %s: %w", resolved, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, true, err
	}
	return &cfg, true, nil
}

// WriteSample writes the embedded sample config to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	resolved := expandHome(strings.TrimSpace(path))
	if resolved == "" {
		return errors.New("config path is empty")
	}
	if _, err := os.Stat(resolved); err == nil {
		return fmt.Errorf("config file already exists at %s", resolved)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the data and log directories when missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location under the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "milltrack.db")
}

// LockPath returns the single-writer lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "milltrack.lock")
}

func (c *Config) normalize() {
	c.Paths.DataDir = expandHome(strings.TrimSpace(c.Paths.DataDir))
	c.Paths.LogDir = expandHome(strings.TrimSpace(c.Paths.LogDir))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Notifications.Topic = strings.TrimSpace(c.Notifications.Topic)
	if c.Identity.Producers == nil {
		c.Identity.Producers = map[string]string{}
	}
	if c.Identity.Handlers == nil {
		c.Identity.Handlers = map[string]string{}
	}
}

func expandHome(path string) string {
	if path == "" || !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/"))
}
