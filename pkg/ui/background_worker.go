// This file implements the BackgroundWorker, which loads trees off the UI
// goroutine and reloads them when the watcher reports a change.
package ui

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/viewtree/internal/datasource"
	vdebug "github.com/vanderheijden86/viewtree/pkg/debug"
	"github.com/vanderheijden86/viewtree/pkg/watcher"
)

// WorkerState represents the current state of the background worker.
type WorkerState int

const (
	// WorkerIdle means the worker is waiting for a refresh.
	WorkerIdle WorkerState = iota
	// WorkerProcessing means the worker is loading.
	WorkerProcessing
	// WorkerStopped means the worker has been stopped.
	WorkerStopped
)

// WorkerError wraps errors with phase context.
type WorkerError struct {
	Phase   string // "load"
	Cause   error
	Time    time.Time
	Retries int
}

func (e WorkerError) Error() string {
	return fmt.Sprintf("%s failed: %v (retries: %d)", e.Phase, e.Cause, e.Retries)
}

func (e WorkerError) Unwrap() error {
	return e.Cause
}

// LoadFunc produces the tree to show.
type LoadFunc func(ctx context.Context) (datasource.Item, error)

// TreeLoadedMsg carries a freshly loaded tree to the UI.
type TreeLoadedMsg struct {
	Root     datasource.Item
	Duration time.Duration
	Changed  []string // paths that triggered the reload, empty for the first load
}

// TreeErrorMsg reports a failed load. The UI keeps the previous tree.
type TreeErrorMsg struct {
	Err *WorkerError
}

// BackgroundWorker loads trees on its own goroutine.
type BackgroundWorker struct {
	load    LoadFunc
	watcher *watcher.Watcher

	ctx    context.Context
	cancel context.CancelFunc
	msgCh  chan tea.Msg
	kick   chan []string
	done   chan struct{}

	mu         sync.RWMutex
	state      WorkerState
	started    bool
	lastError  *WorkerError
	errorCount int
	loads      int
}

// NewBackgroundWorker creates a worker. w may be nil to disable reloads.
func NewBackgroundWorker(load LoadFunc, w *watcher.Watcher) *BackgroundWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &BackgroundWorker{
		load:    load,
		watcher: w,
		ctx:     ctx,
		cancel:  cancel,
		msgCh:   make(chan tea.Msg, 1),
		kick:    make(chan []string, 1),
		done:    make(chan struct{}),
	}
}

// Messages returns the channel the UI reads worker messages from.
func (w *BackgroundWorker) Messages() <-chan tea.Msg { return w.msgCh }

// Done is closed when the worker loop exits.
func (w *BackgroundWorker) Done() <-chan struct{} { return w.done }

// Start starts the watcher and the processing loop.
func (w *BackgroundWorker) Start() error {
	w.mu.Lock()
	if w.state == WorkerStopped {
		w.mu.Unlock()
		return fmt.Errorf("worker has been stopped")
	}
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()

	if w.watcher != nil {
		if err := w.watcher.Start(); err != nil {
			w.mu.Lock()
			w.started = false
			w.mu.Unlock()
			return err
		}
	}
	go w.processLoop()
	return nil
}

// Stop halts the worker. It is idempotent.
func (w *BackgroundWorker) Stop() {
	w.mu.Lock()
	if w.state == WorkerStopped {
		w.mu.Unlock()
		return
	}
	w.state = WorkerStopped
	wasStarted := w.started
	w.mu.Unlock()

	w.cancel()
	if w.watcher != nil {
		w.watcher.Stop()
	}
	if wasStarted {
		select {
		case <-w.done:
		case <-time.After(5 * time.Second):
			vdebug.Log("ui: worker shutdown timed out")
		}
	}
}

// TriggerRefresh asks for a reload. Requests made while one is pending
// coalesce.
func (w *BackgroundWorker) TriggerRefresh() {
	w.trigger(nil)
}

func (w *BackgroundWorker) trigger(paths []string) {
	select {
	case w.kick <- paths:
	default:
	}
}

// State returns the current worker state.
func (w *BackgroundWorker) State() WorkerState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// LastError returns the most recent error, nil after a successful load.
func (w *BackgroundWorker) LastError() *WorkerError {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastError
}

// Loads counts completed load attempts.
func (w *BackgroundWorker) Loads() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.loads
}

func (w *BackgroundWorker) processLoop() {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			vdebug.Log("ui: worker loop panic: %v\n%s", r, debug.Stack())
		}
	}()

	var changed <-chan watcher.Change
	if w.watcher != nil {
		changed = w.watcher.Changed()
	}
	for {
		select {
		case <-w.ctx.Done():
			return
		case c := <-changed:
			w.process(c.Paths)
		case paths := <-w.kick:
			w.process(paths)
		}
	}
}

func (w *BackgroundWorker) process(paths []string) {
	w.mu.Lock()
	if w.state != WorkerIdle {
		w.mu.Unlock()
		return
	}
	w.state = WorkerProcessing
	w.mu.Unlock()

	start := time.Now()
	var root datasource.Item
	werr := w.safeCompute("load", func() error {
		var err error
		root, err = w.load(w.ctx)
		return err
	})
	w.recordError(werr)

	w.mu.Lock()
	if w.state == WorkerProcessing {
		w.state = WorkerIdle
	}
	w.mu.Unlock()

	if werr != nil {
		w.send(TreeErrorMsg{Err: werr})
		return
	}
	w.send(TreeLoadedMsg{Root: root, Duration: time.Since(start), Changed: paths})
}

// safeCompute executes fn and recovers from any panics.
func (w *BackgroundWorker) safeCompute(phase string, fn func() error) *WorkerError {
	var result *WorkerError
	func() {
		defer func() {
			if r := recover(); r != nil {
				result = &WorkerError{
					Phase: phase,
					Cause: fmt.Errorf("panic: %v\n%s", r, debug.Stack()),
					Time:  time.Now(),
				}
			}
		}()
		if err := fn(); err != nil {
			result = &WorkerError{Phase: phase, Cause: err, Time: time.Now()}
		}
	}()
	return result
}

func (w *BackgroundWorker) recordError(err *WorkerError) {
	w.mu.Lock()
	w.loads++
	w.lastError = err
	if err != nil {
		w.errorCount++
		err.Retries = w.errorCount
	} else {
		w.errorCount = 0
	}
	w.mu.Unlock()
}

// send delivers msg, dropping an older undelivered message so the newest
// wins.
func (w *BackgroundWorker) send(msg tea.Msg) {
	for {
		select {
		case w.msgCh <- msg:
			return
		case <-w.ctx.Done():
			return
		default:
		}
		select {
		case <-w.msgCh:
		default:
		}
	}
}

// StartBackgroundWorkerCmd starts the worker and triggers the first load.
func StartBackgroundWorkerCmd(w *BackgroundWorker) tea.Cmd {
	return func() tea.Msg {
		if w == nil {
			return nil
		}
		if err := w.Start(); err != nil {
			return TreeErrorMsg{Err: &WorkerError{Phase: "start", Cause: err, Time: time.Now()}}
		}
		w.TriggerRefresh()
		return nil
	}
}

// WaitForBackgroundWorkerMsgCmd waits for the next worker message.
func WaitForBackgroundWorkerMsgCmd(w *BackgroundWorker) tea.Cmd {
	return func() tea.Msg {
		if w == nil {
			return nil
		}
		select {
		case msg := <-w.Messages():
			return msg
		case <-w.Done():
			return nil
		}
	}
}
