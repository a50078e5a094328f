// Package reactive is a small single-goroutine dependency tracker: cells hold
// values, effects record which cells they read and are rerun, deferred, when
// any of them change.
//
// All Cell and Effect methods must be called from the goroutine that calls
// Flush. Other goroutines hand work over with Post.
package reactive

import (
	"errors"
	"sync"
)

// ErrFlushLimit is returned by Flush when effects keep invalidating each other
// past the configured number of runs.
var ErrFlushLimit = errors.New("reactive: effect flush did not settle")

// DefaultMaxRuns bounds effect runs in a single Flush.
const DefaultMaxRuns = 100000

type source interface {
	currentVersion() uint64
	unsubscribe(e *Effect)
}

// Runtime owns the pending effect queue.
type Runtime struct {
	mu     sync.Mutex // guards posted
	posted []func()
	wake   chan struct{}

	queue   []*Effect
	current *Effect
	MaxRuns int
}

// NewRuntime creates an idle runtime.
func NewRuntime() *Runtime {
	return &Runtime{
		wake:    make(chan struct{}, 1),
		MaxRuns: DefaultMaxRuns,
	}
}

// Post schedules fn to run on the next Flush. Safe from any goroutine.
func (rt *Runtime) Post(fn func()) {
	rt.mu.Lock()
	rt.posted = append(rt.posted, fn)
	rt.mu.Unlock()
	select {
	case rt.wake <- struct{}{}:
	default:
	}
}

// Wake receives after Post or after an effect is invalidated.
func (rt *Runtime) Wake() <-chan struct{} {
	return rt.wake
}

// Pending returns the number of queued effects plus posted functions.
func (rt *Runtime) Pending() int {
	rt.mu.Lock()
	n := len(rt.posted)
	rt.mu.Unlock()
	return n + len(rt.queue)
}

// Untrack runs fn without recording reads against the running effect.
func (rt *Runtime) Untrack(fn func()) {
	prev := rt.current
	rt.current = nil
	defer func() { rt.current = prev }()
	fn()
}

// Flush runs posted functions and then dirty effects, in the order they were
// invalidated, until nothing is pending. It returns how many effects ran.
func (rt *Runtime) Flush() (int, error) {
	runs := 0
	for {
		rt.mu.Lock()
		posted := rt.posted
		rt.posted = nil
		rt.mu.Unlock()
		for _, fn := range posted {
			fn()
		}

		if len(rt.queue) == 0 {
			if rt.Pending() == 0 {
				return runs, nil
			}
			continue
		}

		e := rt.queue[0]
		rt.queue[0] = nil
		rt.queue = rt.queue[1:]
		e.queued = false
		if e.disposed {
			continue
		}
		if runs >= rt.MaxRuns {
			return runs, ErrFlushLimit
		}
		e.run()
		runs++
	}
}

func (rt *Runtime) enqueue(e *Effect) {
	if e.queued || e.disposed {
		return
	}
	e.queued = true
	rt.queue = append(rt.queue, e)
	select {
	case rt.wake <- struct{}{}:
	default:
	}
}

// Effect is a tracked computation.
type Effect struct {
	rt       *Runtime
	fn       func()
	deps     map[source]uint64
	queued   bool
	running  bool
	disposed bool
	runs     int
}

// NewEffect creates an effect and runs it once immediately so its first
// result is available to the caller.
func (rt *Runtime) NewEffect(fn func()) *Effect {
	e := &Effect{rt: rt, fn: fn, deps: make(map[source]uint64)}
	e.run()
	return e
}

// Effect creates an effect whose first run is deferred to the next Flush.
func (rt *Runtime) Effect(fn func()) *Effect {
	e := &Effect{rt: rt, fn: fn, deps: make(map[source]uint64)}
	rt.enqueue(e)
	return e
}

func (e *Effect) run() {
	for s := range e.deps {
		s.unsubscribe(e)
		delete(e.deps, s)
	}
	prev := e.rt.current
	e.rt.current = e
	e.running = true
	defer func() {
		e.running = false
		e.rt.current = prev
	}()
	e.runs++
	e.fn()
}

func (e *Effect) track(s source) {
	if _, ok := e.deps[s]; !ok {
		e.deps[s] = s.currentVersion()
	}
}

// Invalidate queues the effect to rerun on the next Flush.
func (e *Effect) Invalidate() {
	e.rt.enqueue(e)
}

// Stale reports whether a cell the effect read has changed since it was read.
// An effect that sees itself stale mid-run should discard what it computed;
// it has already been queued to rerun.
func (e *Effect) Stale() bool {
	for s, v := range e.deps {
		if s.currentVersion() != v {
			return true
		}
	}
	return false
}

// Running reports whether the effect body is executing.
func (e *Effect) Running() bool { return e.running }

// Runs returns how many times the body has executed.
func (e *Effect) Runs() int { return e.runs }

// Disposed reports whether Dispose was called.
func (e *Effect) Disposed() bool { return e.disposed }

// Dispose detaches the effect from its cells. A disposed effect never runs.
func (e *Effect) Dispose() {
	if e.disposed {
		return
	}
	e.disposed = true
	for s := range e.deps {
		s.unsubscribe(e)
	}
	e.deps = nil
}

// Cell is an observable value.
type Cell[T any] struct {
	rt      *Runtime
	value   T
	version uint64
	subs    map[*Effect]struct{}
}

// NewCell creates a cell holding v.
func NewCell[T any](rt *Runtime, v T) *Cell[T] {
	return &Cell[T]{rt: rt, value: v, subs: make(map[*Effect]struct{})}
}

// Get returns the value and subscribes the running effect, if any.
func (c *Cell[T]) Get() T {
	if e := c.rt.current; e != nil && !e.disposed {
		c.subs[e] = struct{}{}
		e.track(c)
	}
	return c.value
}

// Peek returns the value without subscribing.
func (c *Cell[T]) Peek() T {
	return c.value
}

// Set stores v and invalidates subscribers.
func (c *Cell[T]) Set(v T) {
	c.value = v
	c.changed()
}

// Update mutates the value in place and invalidates subscribers.
func (c *Cell[T]) Update(fn func(v *T)) {
	fn(&c.value)
	c.changed()
}

// Version increments on every write.
func (c *Cell[T]) Version() uint64 {
	return c.version
}

func (c *Cell[T]) changed() {
	c.version++
	for e := range c.subs {
		c.rt.enqueue(e)
	}
}

func (c *Cell[T]) currentVersion() uint64 { return c.version }

func (c *Cell[T]) unsubscribe(e *Effect) { delete(c.subs, e) }
