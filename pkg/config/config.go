// Package config loads and saves viewtree configuration.
//
// Configuration follows the XDG Base Directory layout:
//   - Config:  ~/.config/viewtree/config.yaml
//   - State:   ~/.local/state/viewtree/ (expanded-node state per source)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const appName = "viewtree"

// ErrInvalid is wrapped by Validate failures.
var ErrInvalid = errors.New("invalid config")

// Source is a named tree file the TUI can open by name.
type Source struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// ViewConfig controls layout and virtualization.
type ViewConfig struct {
	RowHeight        int `yaml:"row_height,omitempty"`
	Indent           int `yaml:"indent,omitempty"`
	Overscan         int `yaml:"overscan"`                    // Extra rows beyond the viewport, split before and after
	KeepWarm         int `yaml:"keep_warm"`                   // Scrolled-out rows kept built; 0 tears them down at once
	FenwickThreshold int `yaml:"fenwick_threshold,omitempty"` // Variable-size lists above this use a Fenwick tree
	ExpandDepth      int `yaml:"expand_depth"`                // Levels expanded when a source is first opened
}

// WatchConfig controls reloading when the source file changes.
type WatchConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Debounce     time.Duration `yaml:"debounce,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	ForcePoll    bool          `yaml:"force_poll,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"` // e.g. "127.0.0.1:9464"; empty disables
}

// Config is the top-level configuration.
type Config struct {
	Sources []Source      `yaml:"sources,omitempty"`
	View    ViewConfig    `yaml:"view"`
	Watch   WatchConfig   `yaml:"watch"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		View: ViewConfig{
			RowHeight:        1,
			Indent:           2,
			Overscan:         4,
			KeepWarm:         32,
			FenwickThreshold: 4096,
			ExpandDepth:      1,
		},
		Watch: WatchConfig{
			Enabled:      true,
			Debounce:     200 * time.Millisecond,
			PollInterval: 2 * time.Second,
		},
	}
}

// Validate reports the first out-of-range setting.
func (c Config) Validate() error {
	switch {
	case c.View.RowHeight <= 0:
		return fmt.Errorf("%w: view.row_height must be positive, got %d", ErrInvalid, c.View.RowHeight)
	case c.View.Overscan < 0:
		return fmt.Errorf("%w: view.overscan must not be negative, got %d", ErrInvalid, c.View.Overscan)
	case c.View.KeepWarm < 0:
		return fmt.Errorf("%w: view.keep_warm must not be negative, got %d", ErrInvalid, c.View.KeepWarm)
	case c.Watch.Debounce < 0 || c.Watch.PollInterval < 0:
		return fmt.Errorf("%w: watch durations must not be negative", ErrInvalid)
	}
	return nil
}

func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(append(append([]string{home}, fallback...), appName)...)
}

// ConfigDir returns the XDG config directory.
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the XDG state directory.
func StateDir() string {
	return xdgDir("XDG_STATE_HOME", ".local", "state")
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path. Missing keys keep their
// defaults; a missing file yields DefaultConfig. VIEWTREE_FORCE_POLL
// overrides watch.force_poll.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	case !os.IsNotExist(err):
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	for i := range cfg.Sources {
		cfg.Sources[i].Path = expandHome(cfg.Sources[i].Path)
	}
	if v, ok := envBool("VIEWTREE_FORCE_POLL"); ok {
		cfg.Watch.ForcePoll = v
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// FindSource returns the source with the given name, or nil.
func (c Config) FindSource(name string) *Source {
	for i := range c.Sources {
		if strings.EqualFold(c.Sources[i].Name, name) {
			return &c.Sources[i]
		}
	}
	return nil
}

// Resolve maps a command-line argument to a file path: a configured source
// name wins, anything else is taken as a path.
func (c Config) Resolve(arg string) string {
	if s := c.FindSource(arg); s != nil {
		return s.Path
	}
	return expandHome(arg)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func envBool(name string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}
