// Package tree reconciles a recursive item structure into a retained tree of
// views.
//
// Every item becomes a Node holding the view built for the item itself. Items
// with children become branches: a reactive effect reads the child
// collection and, through a patch, runs the keyed differ and a slot cache
// over it, so children that keep their key keep their node, identity and
// view. Items without children become leaves with no effect and no cache.
//
// A Reconciler is owned by one goroutine. Work arriving from elsewhere goes
// through reactive.Runtime.Post.
package tree

import (
	"errors"
	"fmt"
	"log"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/vanderheijden86/viewtree/pkg/debug"
	"github.com/vanderheijden86/viewtree/pkg/identity"
	"github.com/vanderheijden86/viewtree/pkg/metrics"
	"github.com/vanderheijden86/viewtree/pkg/reactive"
	"github.com/vanderheijden86/viewtree/pkg/sched"
	"github.com/vanderheijden86/viewtree/pkg/view"
)

// slowPass is logged when debug output is on.
const slowPass = 16 * time.Millisecond

// Config describes how items map to views and children.
type Config[T any, K comparable] struct {
	// View builds the header view for an item. cx.ID() is the node identity.
	View func(cx view.Context, item T) view.View
	// HasChildren decides between a leaf and a branch.
	HasChildren func(item T) bool
	// Children returns the child items. Reads of reactive cells are
	// tracked; changing them recomputes this node's children only.
	Children func(item T) []T
	// Key identifies an item among its siblings.
	Key func(item T) K
	// Equal decides whether a reused child's item changed. Defaults to
	// reflect.DeepEqual.
	Equal func(a, b T) bool
	// UpdateView updates a header view in place. When nil, the header is
	// rebuilt with View.
	UpdateView func(v view.View, item T) view.ChangeFlags
}

func (c Config[T, K]) validate() error {
	switch {
	case c.View == nil:
		return fmt.Errorf("%w: View is required", ErrInvalidConfig)
	case c.HasChildren == nil:
		return fmt.Errorf("%w: HasChildren is required", ErrInvalidConfig)
	case c.Children == nil:
		return fmt.Errorf("%w: Children is required", ErrInvalidConfig)
	case c.Key == nil:
		return fmt.Errorf("%w: Key is required", ErrInvalidConfig)
	}
	return nil
}

type options struct {
	alloc    *identity.Allocator
	rt       *reactive.Runtime
	boundary func(error)
}

// Option configures a Reconciler.
type Option func(*options)

// WithAllocator shares an identity allocator with other reconcilers.
func WithAllocator(a *identity.Allocator) Option {
	return func(o *options) { o.alloc = a }
}

// WithRuntime runs effects on an existing runtime.
func WithRuntime(rt *reactive.Runtime) Option {
	return func(o *options) { o.rt = rt }
}

// WithErrorBoundary routes subtree failures to fn instead of returning them
// from Flush. fn also sees retryable failures.
func WithErrorBoundary(fn func(error)) Option {
	return func(o *options) { o.boundary = fn }
}

// Stats counts reconciler activity since New.
type Stats struct {
	Nodes          int
	Passes         uint64
	Built          uint64
	Removed        uint64
	HeaderRebuilds uint64
	Retries        uint64
	Failures       uint64
	Superseded     uint64
}

// Reconciler owns a tree of nodes.
type Reconciler[T any, K comparable] struct {
	cfg      Config[T, K]
	alloc    *identity.Allocator
	rt       *reactive.Runtime
	queue    *sched.Queue
	boundary func(error)

	root    *Node[T, K]
	nodes   map[identity.ID]*Node[T, K]
	passing bool
	pending view.ChangeFlags
	last    view.ChangeFlags
	errs    []error
	stats   Stats
}

// New creates a reconciler.
func New[T any, K comparable](cfg Config[T, K], opts ...Option) (*Reconciler[T, K], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.alloc == nil {
		o.alloc = identity.NewAllocator()
	}
	if o.rt == nil {
		o.rt = reactive.NewRuntime()
	}
	return &Reconciler[T, K]{
		cfg:      cfg,
		alloc:    o.alloc,
		rt:       o.rt,
		queue:    sched.NewQueue(),
		boundary: o.boundary,
		nodes:    make(map[identity.ID]*Node[T, K]),
	}, nil
}

// Runtime returns the reactive runtime effects run on.
func (r *Reconciler[T, K]) Runtime() *reactive.Runtime { return r.rt }

// Allocator returns the identity allocator.
func (r *Reconciler[T, K]) Allocator() *identity.Allocator { return r.alloc }

// Root returns the root node, or nil before the first Reconcile.
func (r *Reconciler[T, K]) Root() *Node[T, K] { return r.root }

// Node looks a node up by identity.
func (r *Reconciler[T, K]) Node(id identity.ID) (*Node[T, K], bool) {
	n, ok := r.nodes[id]
	return n, ok
}

// LastChange returns the flags of the most recent Flush.
func (r *Reconciler[T, K]) LastChange() view.ChangeFlags { return r.last }

// Pending reports whether a Flush has work to do.
func (r *Reconciler[T, K]) Pending() bool {
	return r.pending != 0 || r.rt.Pending() > 0 || r.queue.Len() > 0
}

// Stats returns a snapshot of counters.
func (r *Reconciler[T, K]) Stats() Stats {
	st := r.stats
	st.Nodes = len(r.nodes)
	st.Superseded = r.queue.Superseded()
	return st
}

// Reconcile makes item the root and flushes. A root with the same key is
// updated in place; a different key replaces the whole tree.
func (r *Reconciler[T, K]) Reconcile(item T) (*Node[T, K], error) {
	if r.passing {
		return r.root, ErrNestedPass
	}
	switch {
	case r.root == nil:
		r.root = r.newNode(r.alloc.New(), identity.Root, item)
		r.pending |= view.ChangeLayout
		r.stats.Built++
	case r.cfg.Key(item) != r.root.key:
		r.Close()
		r.root = r.newNode(r.alloc.New(), identity.Root, item)
		r.pending |= view.ChangeLayout
		r.stats.Built++
	case !r.equal(r.root.Item(), item):
		r.pending |= r.root.setItem(item)
	}
	_, err := r.Flush()
	return r.root, err
}

func (r *Reconciler[T, K]) equal(a, b T) bool {
	if r.cfg.Equal != nil {
		return r.cfg.Equal(a, b)
	}
	return reflect.DeepEqual(a, b)
}

// Flush runs invalidated effects and applies the patches they schedule until
// the tree settles. It returns what changed. Without an error boundary,
// non-retryable subtree failures are returned joined.
func (r *Reconciler[T, K]) Flush() (view.ChangeFlags, error) {
	if r.passing {
		return 0, ErrNestedPass
	}
	r.passing = true
	defer func() { r.passing = false }()
	defer metrics.TimerWithCallback(metrics.ReconcilePass, func(d time.Duration) {
		debug.LogIf(d > slowPass, "tree: slow pass %v", d)
	})()

	flags := r.pending
	r.pending = 0
	r.errs = nil
	for {
		if _, err := r.rt.Flush(); err != nil {
			r.last = flags
			return flags, fmt.Errorf("flushing effects: %w", err)
		}
		patches := r.queue.Drain()
		if len(patches) == 0 {
			if r.rt.Pending() == 0 {
				break
			}
			continue
		}
		for _, p := range patches {
			n, ok := r.nodes[p.Target]
			if !ok {
				debug.Log("tree: dropping patch for released node %s", p.Target)
				continue
			}
			flags |= n.Update(p.Payload)
		}
	}

	r.stats.Passes++
	r.last = flags
	debug.LogIf(!flags.IsZero(), "tree: pass %d changed %s, %d nodes", r.stats.Passes, flags, len(r.nodes))
	return flags, errors.Join(r.errs...)
}

// Close tears the whole tree down.
func (r *Reconciler[T, K]) Close() {
	if r.root == nil {
		return
	}
	r.root.Dispose()
	r.alloc.Release(r.root.id)
	r.stats.Removed++
	r.root = nil
}

func (r *Reconciler[T, K]) subtreeError(n *Node[T, K], cause error) *SubtreeError {
	return &SubtreeError{Node: n.id, Path: r.describe(n), Cause: cause}
}

// describe renders n's ancestry as "#1/#4/#9" from the node parent links, so
// it survives a released identity.
func (r *Reconciler[T, K]) describe(n *Node[T, K]) string {
	parts := []string{n.id.String()}
	for p := n.parent; p != identity.Root; {
		parts = append(parts, p.String())
		pn, ok := r.nodes[p]
		if !ok {
			break
		}
		p = pn.parent
	}
	slices.Reverse(parts)
	return strings.Join(parts, "/")
}

// fail records a non-retryable failure of n's child update.
func (r *Reconciler[T, K]) fail(n *Node[T, K], cause error) {
	err := r.subtreeError(n, cause)
	n.err = err
	r.stats.Failures++
	metrics.SubtreeFailures.Inc()
	debug.Log("tree: %v", err)
	if r.boundary != nil {
		r.boundary(err)
		return
	}
	r.errs = append(r.errs, err)
}

// retry notes a computation discarded because its inputs changed while it
// ran. The effect is already queued again.
func (r *Reconciler[T, K]) retry(n *Node[T, K]) {
	r.stats.Retries++
	metrics.ReentrantRetries.Inc()
	err := r.subtreeError(n, ErrReentrantMutation)
	debug.Log("tree: %v, retrying", err)
	if r.boundary != nil {
		r.boundary(err)
	}
}

// teardown drops n's children after an internal invariant broke.
func (r *Reconciler[T, K]) teardown(n *Node[T, K]) {
	log.Printf("warning: tearing down subtree %s: %v", r.describe(n), n.err)
	n.makeLeaf()
}
