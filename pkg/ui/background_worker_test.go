package ui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/viewtree/internal/datasource"
	"github.com/vanderheijden86/viewtree/pkg/watcher"
)

func nextMsg(t *testing.T, w *BackgroundWorker) tea.Msg {
	t.Helper()
	select {
	case msg := <-w.Messages():
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for worker message")
		return nil
	}
}

func TestBackgroundWorkerLoadsOnRefresh(t *testing.T) {
	w := NewBackgroundWorker(func(context.Context) (datasource.Item, error) {
		return sampleTree(), nil
	}, nil)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	w.TriggerRefresh()
	msg, ok := nextMsg(t, w).(TreeLoadedMsg)
	if !ok {
		t.Fatalf("expected TreeLoadedMsg, got %T", msg)
	}
	if msg.Root.ID != "1" {
		t.Errorf("unexpected root %q", msg.Root.ID)
	}
	if w.Loads() != 1 || w.LastError() != nil {
		t.Errorf("loads=%d lastError=%v", w.Loads(), w.LastError())
	}
}

func TestBackgroundWorkerRecoversPanics(t *testing.T) {
	w := NewBackgroundWorker(func(context.Context) (datasource.Item, error) {
		panic("bad loader")
	}, nil)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	w.TriggerRefresh()
	msg, ok := nextMsg(t, w).(TreeErrorMsg)
	if !ok {
		t.Fatalf("expected TreeErrorMsg, got %T", msg)
	}
	if msg.Err.Phase != "load" || !strings.Contains(msg.Err.Error(), "bad loader") {
		t.Errorf("unexpected error %v", msg.Err)
	}
	if w.State() != WorkerIdle {
		t.Errorf("worker should be idle again, got %v", w.State())
	}
}

func TestBackgroundWorkerErrorCountsRetries(t *testing.T) {
	boom := errors.New("boom")
	w := NewBackgroundWorker(func(context.Context) (datasource.Item, error) {
		return datasource.Item{}, boom
	}, nil)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	for i := 1; i <= 2; i++ {
		w.TriggerRefresh()
		msg := nextMsg(t, w).(TreeErrorMsg)
		if !errors.Is(msg.Err, boom) || msg.Err.Retries != i {
			t.Errorf("attempt %d: %v", i, msg.Err)
		}
	}
}

func TestBackgroundWorkerReloadsOnFileChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.json")
	if err := os.WriteFile(path, []byte(`{"id":"a"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	wch, err := watcher.NewWatcher([]string{path},
		watcher.WithDebounceDuration(20*time.Millisecond),
		watcher.WithPollInterval(30*time.Millisecond),
		watcher.WithForcePoll(true),
	)
	if err != nil {
		t.Fatal(err)
	}
	w := NewBackgroundWorker(func(context.Context) (datasource.Item, error) {
		return datasource.LoadJSON(path)
	}, wch)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"id":"b","children":[{"id":"c"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	msg, ok := nextMsg(t, w).(TreeLoadedMsg)
	if !ok {
		t.Fatalf("expected TreeLoadedMsg, got %T", msg)
	}
	if msg.Root.ID != "b" || len(msg.Changed) != 1 {
		t.Errorf("unexpected reload %+v", msg)
	}
}

func TestBackgroundWorkerStopIsIdempotent(t *testing.T) {
	w := NewBackgroundWorker(func(context.Context) (datasource.Item, error) {
		return sampleTree(), nil
	}, nil)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
	select {
	case <-w.Done():
	default:
		t.Error("done should be closed after Stop")
	}
	if err := w.Start(); err == nil {
		t.Error("restarting a stopped worker should fail")
	}
}
