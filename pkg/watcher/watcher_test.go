package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDebouncer_CoalescesRapidTriggers(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	var callCount atomic.Int32
	for i := 0; i < 10; i++ {
		d.Trigger(func() { callCount.Add(1) })
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	if count := callCount.Load(); count != 1 {
		t.Errorf("expected 1 callback invocation, got %d", count)
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	var called atomic.Bool
	d.Trigger(func() { called.Store(true) })
	d.Cancel()
	time.Sleep(100 * time.Millisecond)

	if called.Load() {
		t.Error("callback should not have been invoked after cancel")
	}
}

func TestDebouncer_DefaultDuration(t *testing.T) {
	d := NewDebouncer(0)
	if d.Duration() != DefaultDebounceDuration {
		t.Errorf("expected default duration %v, got %v", DefaultDebounceDuration, d.Duration())
	}
}

func TestNewWatcher_NoPaths(t *testing.T) {
	if _, err := NewWatcher(nil); !errors.Is(err, ErrNoPaths) {
		t.Errorf("expected ErrNoPaths, got %v", err)
	}
}

func TestWatcher_DetectsFileChange(t *testing.T) {
	tmpFile := writeTemp(t, "tree.json", "{}")

	var (
		changeMu sync.Mutex
		got      []string
	)
	w, err := NewWatcher([]string{tmpFile},
		WithDebounceDuration(50*time.Millisecond),
		WithOnChange(func(c Change) {
			changeMu.Lock()
			got = c.Paths
			changeMu.Unlock()
		}),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(tmpFile, []byte(`{"id":"root"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)

	changeMu.Lock()
	defer changeMu.Unlock()
	abs, _ := filepath.Abs(tmpFile)
	if len(got) != 1 || got[0] != abs {
		t.Errorf("expected change for %s, got %v", abs, got)
	}
}

func TestWatcher_PollingFallback(t *testing.T) {
	tmpFile := writeTemp(t, "tree.json", "{}")

	var changed atomic.Bool
	w, err := NewWatcher([]string{tmpFile},
		WithDebounceDuration(50*time.Millisecond),
		WithPollInterval(100*time.Millisecond),
		WithForcePoll(true),
		WithOnChange(func(Change) { changed.Store(true) }),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if !w.IsPolling() {
		t.Error("expected watcher to be in polling mode")
	}

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(tmpFile, []byte(`{"id":"modified via polling"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)

	if !changed.Load() {
		t.Error("expected change to be detected via polling")
	}
}

func TestWatcher_ChangedChannelMergesPaths(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	w, err := NewWatcher([]string{a, b, a},
		WithDebounceDuration(30*time.Millisecond),
		WithPollInterval(50*time.Millisecond),
		WithForcePoll(true),
	)
	if err != nil {
		t.Fatal(err)
	}
	if len(w.Paths()) != 2 {
		t.Fatalf("expected duplicate paths to collapse, got %v", w.Paths())
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(20 * time.Millisecond)
	os.WriteFile(a, []byte(`{"id":"a2"}`), 0o644)
	os.WriteFile(b, []byte(`{"id":"b2"}`), 0o644)

	seen := map[string]bool{}
	deadline := time.After(time.Second)
	for len(seen) < 2 {
		select {
		case c := <-w.Changed():
			for _, p := range c.Paths {
				seen[p] = true
			}
		case <-deadline:
			t.Fatalf("timeout waiting for both changes, saw %v", seen)
		}
	}
}

func TestWatcher_PollingMode(t *testing.T) {
	tests := []struct {
		name        string
		fsType      FilesystemType
		forcePoll   bool
		env         string
		wantPolling bool
	}{
		{"local uses fsnotify", FSTypeLocal, false, "", false},
		{"nfs polls", FSTypeNFS, false, "", true},
		{"smb polls", FSTypeSMB, false, "", true},
		{"sshfs polls", FSTypeSSHFS, false, "", true},
		{"fuse polls", FSTypeFUSE, false, "", true},
		{"option forces polling", FSTypeLocal, true, "", true},
		{"env forces polling", FSTypeLocal, false, "1", true},
		{"env off keeps fsnotify", FSTypeLocal, false, "0", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("VIEWTREE_FORCE_POLL", tc.env)
			orig := detectFilesystemTypeFunc
			detectFilesystemTypeFunc = func(string) FilesystemType { return tc.fsType }
			t.Cleanup(func() { detectFilesystemTypeFunc = orig })

			tmpFile := writeTemp(t, "tree.json", "{}")
			w, err := NewWatcher([]string{tmpFile},
				WithPollInterval(25*time.Millisecond),
				WithForcePoll(tc.forcePoll),
			)
			if err != nil {
				t.Fatal(err)
			}
			if err := w.Start(); err != nil {
				t.Fatal(err)
			}
			defer w.Stop()

			if got := w.IsPolling(); got != tc.wantPolling {
				t.Errorf("IsPolling() = %v, expected %v", got, tc.wantPolling)
			}
			if got := w.FilesystemType(); got != tc.fsType {
				t.Errorf("FilesystemType() = %v, expected %v", got, tc.fsType)
			}
		})
	}
}

func TestWatcher_FileRemoved(t *testing.T) {
	tmpFile := writeTemp(t, "tree.json", "{}")

	var (
		errMu    sync.Mutex
		gotError error
	)
	w, err := NewWatcher([]string{tmpFile},
		WithPollInterval(50*time.Millisecond),
		WithForcePoll(true),
		WithOnError(func(err error) {
			errMu.Lock()
			gotError = err
			errMu.Unlock()
		}),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(20 * time.Millisecond)
	if err := os.Remove(tmpFile); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	errMu.Lock()
	defer errMu.Unlock()
	if !errors.Is(gotError, ErrFileRemoved) {
		t.Errorf("expected ErrFileRemoved, got %v", gotError)
	}
}

func TestWatcher_StartStop(t *testing.T) {
	tmpFile := writeTemp(t, "tree.json", "{}")

	w, err := NewWatcher([]string{tmpFile})
	if err != nil {
		t.Fatal(err)
	}
	if w.IsStarted() {
		t.Error("watcher should not be started initially")
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if !w.IsStarted() {
		t.Error("watcher should be started after Start()")
	}
	if err := w.Start(); err != ErrAlreadyStarted {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}

	w.Stop()
	if w.IsStarted() {
		t.Error("watcher should not be started after Stop()")
	}
	w.Stop()
}

func TestWatcher_PollInterval(t *testing.T) {
	tmpFile := writeTemp(t, "tree.json", "{}")

	custom := 500 * time.Millisecond
	w, err := NewWatcher([]string{tmpFile}, WithPollInterval(custom))
	if err != nil {
		t.Fatal(err)
	}
	if got := w.PollInterval(); got != custom {
		t.Errorf("expected poll interval %v, got %v", custom, got)
	}
}

func TestFilesystemType_String(t *testing.T) {
	tests := []struct {
		fsType   FilesystemType
		expected string
	}{
		{FSTypeUnknown, "unknown"},
		{FSTypeLocal, "local"},
		{FSTypeNFS, "nfs"},
		{FSTypeSMB, "smb"},
		{FSTypeSSHFS, "sshfs"},
		{FSTypeFUSE, "fuse"},
		{FilesystemType(99), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.fsType.String(); got != tc.expected {
			t.Errorf("FilesystemType(%d).String() = %q, expected %q", tc.fsType, got, tc.expected)
		}
	}
}

func TestEnvBool(t *testing.T) {
	tests := []struct {
		value    string
		expected bool
	}{
		{"1", true},
		{"TRUE", true},
		{"yes", true},
		{"y", true},
		{"on", true},
		{"0", false},
		{"no", false},
		{"", false},
		{"invalid", false},
	}
	for _, tc := range tests {
		t.Run(tc.value, func(t *testing.T) {
			t.Setenv("TEST_ENV_BOOL", tc.value)
			if got := envBool("TEST_ENV_BOOL"); got != tc.expected {
				t.Errorf("envBool(%q) = %v, expected %v", tc.value, got, tc.expected)
			}
		})
	}
}

func TestDetectFilesystemType_EmptyPath(t *testing.T) {
	if got := DetectFilesystemType(""); got != FSTypeUnknown {
		t.Errorf("DetectFilesystemType(\"\") = %v, expected FSTypeUnknown", got)
	}
}

func TestDetectFilesystemType_NonExistentPath(t *testing.T) {
	var seen string
	orig := detectFilesystemTypeFunc
	detectFilesystemTypeFunc = func(p string) FilesystemType { seen = p; return FSTypeLocal }
	t.Cleanup(func() { detectFilesystemTypeFunc = orig })

	dir := t.TempDir()
	DetectFilesystemType(filepath.Join(dir, "missing", "tree.json"))
	if seen != dir {
		t.Errorf("expected detection on nearest existing ancestor %s, got %s", dir, seen)
	}
}
