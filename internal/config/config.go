package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvConfigPath overrides the default config file location when set.
const EnvConfigPath = "UNPLUG_CONFIG"

// Daemon contains daemon runtime paths.
type Daemon struct {
	SocketPath string `toml:"socket_path"`
	LogDir     string `toml:"log_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Eject contains retry and timing knobs for the removal protocol.
// The parent-before-device removal ordering is fixed and not configurable.
type Eject struct {
	LockAttempts         int    `toml:"lock_attempts"`
	LockDelayMS          int    `toml:"lock_delay_ms"`
	RemovalAttempts      int    `toml:"removal_attempts"`
	RemovalDelayMS       int    `toml:"removal_delay_ms"`
	SettleMS             int    `toml:"settle_ms"`
	DisplayWindowSeconds int    `toml:"display_window_seconds"`
	DismountTool         string `toml:"dismount_tool"`
}

// Sampler contains configuration for the volume snapshot loop.
type Sampler struct {
	IntervalSeconds int `toml:"interval_seconds"`
}

// Config is the root configuration document.
type Config struct {
	Daemon  Daemon  `toml:"daemon"`
	Logging Logging `toml:"logging"`
	Eject   Eject   `toml:"eject"`
	Sampler Sampler `toml:"sampler"`
}

// Load reads configuration from path, or from the default location when path
// is empty. A missing file yields defaults. The returned string is the path
// that was consulted.
func Load(path string) (*Config, string, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, "", err
	}

	cfg := Default()
	data, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, resolved, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// defaults apply
	default:
		return nil, resolved, fmt.Errorf("read config %s: %w", resolved, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, resolved, err
	}
	return &cfg, resolved, nil
}

func resolvePath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		trimmed = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if trimmed != "" {
		return expandHome(trimmed)
	}
	return DefaultConfigPath()
}

// DefaultConfigPath returns the per-user configuration file location.
func DefaultConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, "unplug", "config.toml"), nil
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandHome(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	if c.Daemon.LogDir == "" {
		return nil
	}
	if err := os.MkdirAll(c.Daemon.LogDir, 0o755); err != nil {
		return fmt.Errorf("ensure log directory: %w", err)
	}
	return nil
}

// SocketPath returns the IPC socket location.
func (c *Config) SocketPath() string {
	return c.Daemon.SocketPath
}

// LogPath returns the daemon log file location, empty when file logging is off.
func (c *Config) LogPath() string {
	if c.Daemon.LogDir == "" {
		return ""
	}
	return filepath.Join(c.Daemon.LogDir, "unplugd.log")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	dir := c.Daemon.LogDir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "unplugd.lock")
}

func (c *Config) LockDelay() time.Duration {
	return time.Duration(c.Eject.LockDelayMS) * time.Millisecond
}

func (c *Config) RemovalDelay() time.Duration {
	return time.Duration(c.Eject.RemovalDelayMS) * time.Millisecond
}

func (c *Config) Settle() time.Duration {
	return time.Duration(c.Eject.SettleMS) * time.Millisecond
}

func (c *Config) DisplayWindow() time.Duration {
	return time.Duration(c.Eject.DisplayWindowSeconds) * time.Second
}

func (c *Config) SamplerInterval() time.Duration {
	return time.Duration(c.Sampler.IntervalSeconds) * time.Second
}

func (c *Config) normalize() {
	c.Daemon.SocketPath = strings.TrimSpace(c.Daemon.SocketPath)
	c.Daemon.LogDir = normalizeDir(c.Daemon.LogDir)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Eject.DismountTool = strings.TrimSpace(c.Eject.DismountTool)

	if c.Daemon.SocketPath == "" {
		c.Daemon.SocketPath = filepath.Join(os.TempDir(), "unplugd.sock")
	}
}

func normalizeDir(dir string) string {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return ""
	}
	expanded, err := expandHome(trimmed)
	if err != nil {
		return trimmed
	}
	return expanded
}

func expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
