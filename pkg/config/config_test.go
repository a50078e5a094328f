package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.View.Overscan != 4 {
		t.Errorf("expected overscan 4, got %d", cfg.View.Overscan)
	}
	if cfg.View.RowHeight != 1 {
		t.Errorf("expected row height 1, got %d", cfg.View.RowHeight)
	}
	if !cfg.Watch.Enabled {
		t.Error("expected watching enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFrom_NonExistent(t *testing.T) {
	cfg, err := LoadFrom("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if cfg.View.KeepWarm != 32 {
		t.Errorf("expected default config, got keep_warm %d", cfg.View.KeepWarm)
	}
}

func TestLoadFrom_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
sources:
  - name: demo
    path: ~/trees/demo.json
  - name: db
    path: /var/lib/tree.db

view:
  overscan: 10
  keep_warm: 0
  expand_depth: 2

watch:
  enabled: true
  debounce: 500ms
  poll_interval: 5s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(cfg.Sources))
	}
	home, _ := os.UserHomeDir()
	if want := filepath.Join(home, "trees/demo.json"); cfg.Sources[0].Path != want {
		t.Errorf("expected expanded path %q, got %q", want, cfg.Sources[0].Path)
	}
	if cfg.View.Overscan != 10 || cfg.View.KeepWarm != 0 || cfg.View.ExpandDepth != 2 {
		t.Errorf("unexpected view config: %+v", cfg.View)
	}
	if cfg.View.RowHeight != 1 {
		t.Errorf("unset keys keep defaults, got row_height %d", cfg.View.RowHeight)
	}
	if cfg.Watch.Debounce != 500*time.Millisecond || cfg.Watch.PollInterval != 5*time.Second {
		t.Errorf("unexpected durations: %+v", cfg.Watch)
	}
}

func TestLoadFrom_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadFrom_OutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("view:\n  overscan: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadFrom(path)
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestLoadFrom_ForcePollEnv(t *testing.T) {
	t.Setenv("VIEWTREE_FORCE_POLL", "yes")
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Watch.ForcePoll {
		t.Error("expected env to force polling")
	}
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Sources = []Source{{Name: "a", Path: "/a.json"}}
	cfg.View.Overscan = 7
	cfg.Metrics.Addr = "127.0.0.1:9464"

	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("Load after save failed: %v", err)
	}
	if loaded.View.Overscan != 7 || loaded.Metrics.Addr != "127.0.0.1:9464" {
		t.Errorf("round trip lost settings: %+v", loaded)
	}
	if loaded.Watch.Debounce != cfg.Watch.Debounce {
		t.Errorf("debounce %v != %v", loaded.Watch.Debounce, cfg.Watch.Debounce)
	}
}

func TestFindSourceAndResolve(t *testing.T) {
	cfg := Config{Sources: []Source{{Name: "Demo", Path: "/demo.json"}}}

	if s := cfg.FindSource("demo"); s == nil || s.Path != "/demo.json" {
		t.Error("expected case-insensitive lookup")
	}
	if got := cfg.Resolve("DEMO"); got != "/demo.json" {
		t.Errorf("Resolve(name) = %q", got)
	}
	if got := cfg.Resolve("./other.json"); got != "./other.json" {
		t.Errorf("Resolve(path) = %q", got)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home dir")
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"~/foo", filepath.Join(home, "foo")},
		{"/absolute", "/absolute"},
		{"relative", "relative"},
	}
	for _, tt := range tests {
		if got := expandHome(tt.input); got != tt.expected {
			t.Errorf("expandHome(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestXDGOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_STATE_HOME", dir)

	if got := ConfigDir(); got != filepath.Join(dir, "viewtree") {
		t.Errorf("ConfigDir() = %q", got)
	}
	if got := StateDir(); got != filepath.Join(dir, "viewtree") {
		t.Errorf("StateDir() = %q", got)
	}
	if got := ConfigPath(); got != filepath.Join(dir, "viewtree", "config.yaml") {
		t.Errorf("ConfigPath() = %q", got)
	}
}
