// Package sched holds pending view patches until the owning goroutine is
// ready to apply them.
//
// Patches are keyed by the identity of the view they target. Scheduling a
// patch for a target that already has one pending replaces the older payload
// in place: only the latest snapshot for a subtree matters, so stale
// computations are dropped rather than merged.
package sched

import (
	"sync"

	"github.com/vanderheijden86/viewtree/pkg/identity"
)

// Patch is one pending update.
type Patch struct {
	Target  identity.ID
	Seq     uint64
	Payload any
}

// Queue is a supersede-on-write patch queue. Schedule may be called from any
// goroutine; Drain is meant for the goroutine that owns the view tree.
type Queue struct {
	mu         sync.Mutex
	pending    map[identity.ID]*Patch
	order      []identity.ID
	seq        uint64
	superseded uint64
	wake       chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		pending: make(map[identity.ID]*Patch),
		wake:    make(chan struct{}, 1),
	}
}

// Schedule records payload for target and returns its sequence number. A
// pending patch for the same target is superseded: its payload is replaced
// and it keeps its place in the drain order.
func (q *Queue) Schedule(target identity.ID, payload any) uint64 {
	q.mu.Lock()
	q.seq++
	seq := q.seq
	if p, ok := q.pending[target]; ok {
		p.Payload = payload
		p.Seq = seq
		q.superseded++
	} else {
		q.pending[target] = &Patch{Target: target, Seq: seq, Payload: payload}
		q.order = append(q.order, target)
	}
	q.mu.Unlock()

	// Non-blocking wake; one pending signal is enough.
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return seq
}

// Cancel drops the pending patch for target, if any.
func (q *Queue) Cancel(target identity.ID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[target]; !ok {
		return false
	}
	delete(q.pending, target)
	for i, id := range q.order {
		if id == target {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

// Pending returns the payload waiting for target.
func (q *Queue) Pending(target identity.ID) (any, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.pending[target]
	if !ok {
		return nil, false
	}
	return p.Payload, true
}

// Len returns the number of targets with a pending patch.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Drain removes and returns all pending patches in first-scheduled order.
func (q *Queue) Drain() []Patch {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return nil
	}
	out := make([]Patch, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.pending[id])
		delete(q.pending, id)
	}
	q.order = q.order[:0]
	return out
}

// Wake returns a channel that receives after Schedule. Hosts select on it to
// know when to run a pass.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

// Superseded returns how many patches were replaced before being applied.
func (q *Queue) Superseded() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.superseded
}
