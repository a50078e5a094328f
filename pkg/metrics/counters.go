package metrics

import "sync/atomic"

// Counter is a monotonically increasing event count.
type Counter struct {
	name string
	help string
	n    atomic.Int64
}

func newCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

// Name returns the counter name.
func (c *Counter) Name() string { return c.name }

// Help returns the counter description.
func (c *Counter) Help() string { return c.help }

// Add increments the counter by n when metrics are enabled.
func (c *Counter) Add(n int) {
	if n <= 0 || !Enabled() {
		return
	}
	c.n.Add(int64(n))
}

// Inc increments the counter by one.
func (c *Counter) Inc() { c.Add(1) }

// Value returns the current count.
func (c *Counter) Value() int64 { return c.n.Load() }

// Reset zeroes the counter.
func (c *Counter) Reset() { c.n.Store(0) }

// Event counters for the reconciler and projector.
var (
	SlotBuilds        = newCounter("slot_builds", "Views built for keys not yet cached")
	SlotReuses        = newCounter("slot_reuses", "Cached views reused for a key")
	SlotRemovals      = newCounter("slot_removals", "Slots torn down")
	Moves             = newCounter("moves", "Reused children that changed relative order")
	PatchesSuperseded = newCounter("patches_superseded", "Child patches replaced before being applied")
	ReentrantRetries  = newCounter("reentrant_retries", "Child computations discarded because their inputs changed mid-run")
	SubtreeFailures   = newCounter("subtree_failures", "Subtrees torn down by an error boundary")
	RowsMaterialized  = newCounter("rows_materialized", "Rows built by the virtual window")
	RowsEvicted       = newCounter("rows_evicted", "Rows torn down after leaving the window")
)

// AllCounters returns all registered counters.
func AllCounters() []*Counter {
	return []*Counter{
		SlotBuilds,
		SlotReuses,
		SlotRemovals,
		Moves,
		PatchesSuperseded,
		ReentrantRetries,
		SubtreeFailures,
		RowsMaterialized,
		RowsEvicted,
	}
}
