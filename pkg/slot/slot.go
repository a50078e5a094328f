// Package slot caches realized views by item key.
//
// A Cache owns every view it builds. Reusing a key returns the same view and
// the same identity no matter where the key moves; updating a view whose item
// changed is left to the caller.
package slot

import (
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/vanderheijden86/viewtree/pkg/debug"
	"github.com/vanderheijden86/viewtree/pkg/identity"
)

// ErrSlotExists is returned by Adopt when the key already has a slot.
var ErrSlotExists = errors.New("slot: key already present")

// Disposer is implemented by views that hold resources.
type Disposer interface {
	Dispose()
}

// Set is a set of keys.
type Set[K comparable] map[K]struct{}

// SetOf builds a set from keys.
func SetOf[K comparable](keys ...K) Set[K] {
	s := make(Set[K], len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s Set[K]) Has(k K) bool {
	_, ok := s[k]
	return ok
}

// Slot is one cache entry.
type Slot[T, V any] struct {
	id      identity.ID
	view    V
	item    T
	changed bool
}

// ID returns the identity assigned when the slot was built.
func (s *Slot[T, V]) ID() identity.ID { return s.id }

// View returns the realized view.
func (s *Slot[T, V]) View() V { return s.view }

// Item returns the last item seen for this key.
func (s *Slot[T, V]) Item() T { return s.item }

// Changed reports whether the last GetOrCreate saw a different item than the
// one cached before it.
func (s *Slot[T, V]) Changed() bool { return s.changed }

// Stats counts cache activity.
type Stats struct {
	Live     int
	Builds   uint64
	Hits     uint64
	Changed  uint64
	Removals uint64
}

// Config customizes a Cache. The zero value uses reflect.DeepEqual and no
// teardown hook.
type Config[T, V any] struct {
	Equal    func(a, b T) bool
	Teardown func(id identity.ID, v V)
}

// Cache maps keys to slots. It is not safe for concurrent use; one
// reconciler owns it.
type Cache[K comparable, T, V any] struct {
	scope    identity.Scope
	slots    map[K]*Slot[T, V]
	equal    func(a, b T) bool
	teardown func(identity.ID, V)
	stats    Stats
}

// New creates an empty cache allocating identities in scope.
func New[K comparable, T, V any](scope identity.Scope, cfg Config[T, V]) *Cache[K, T, V] {
	eq := cfg.Equal
	if eq == nil {
		eq = func(a, b T) bool { return reflect.DeepEqual(a, b) }
	}
	return &Cache[K, T, V]{
		scope:    scope,
		slots:    make(map[K]*Slot[T, V]),
		equal:    eq,
		teardown: cfg.Teardown,
	}
}

// Scope returns the identity scope new slots are allocated in.
func (c *Cache[K, T, V]) Scope() identity.Scope { return c.scope }

// GetOrCreate returns the slot for key. An existing slot has its cached item
// refreshed and its view left untouched. A missing slot is built with a
// fresh identity.
func (c *Cache[K, T, V]) GetOrCreate(key K, item T, build func(id identity.ID, item T) V) (*Slot[T, V], bool, error) {
	if s, ok := c.slots[key]; ok {
		c.stats.Hits++
		s.changed = !c.equal(s.item, item)
		if s.changed {
			c.stats.Changed++
		}
		s.item = item
		return s, false, nil
	}

	id, err := c.scope.New()
	if err != nil {
		return nil, false, fmt.Errorf("building slot for key %v: %w", key, err)
	}
	s := &Slot[T, V]{id: id, item: item}
	s.view = build(id, item)
	c.slots[key] = s
	c.stats.Builds++
	return s, true, nil
}

// Get returns the slot for key without touching it.
func (c *Cache[K, T, V]) Get(key K) (*Slot[T, V], bool) {
	s, ok := c.slots[key]
	return s, ok
}

// Remove tears down the slot for key and releases its identity. Removing a
// missing key is a no-op.
func (c *Cache[K, T, V]) Remove(key K) bool {
	s, ok := c.slots[key]
	if !ok {
		return false
	}
	delete(c.slots, key)
	c.destroy(s)
	return true
}

// RetainOnly removes every slot whose key is not in keep and returns how many
// were removed. Teardown runs in identity order.
func (c *Cache[K, T, V]) RetainOnly(keep Set[K]) int {
	var victims []*Slot[T, V]
	for k, s := range c.slots {
		if !keep.Has(k) {
			victims = append(victims, s)
			delete(c.slots, k)
		}
	}
	slices.SortFunc(victims, func(a, b *Slot[T, V]) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	for _, s := range victims {
		c.destroy(s)
	}
	return len(victims)
}

// Detach removes the slot for key without tearing it down. The identity stays
// live so the slot can be adopted elsewhere.
func (c *Cache[K, T, V]) Detach(key K) (*Slot[T, V], bool) {
	s, ok := c.slots[key]
	if ok {
		delete(c.slots, key)
	}
	return s, ok
}

// Adopt inserts a previously detached slot under key.
func (c *Cache[K, T, V]) Adopt(key K, s *Slot[T, V]) error {
	if _, ok := c.slots[key]; ok {
		return fmt.Errorf("%w: %v", ErrSlotExists, key)
	}
	c.slots[key] = s
	return nil
}

// Release tears down a slot previously taken out with Detach.
func (c *Cache[K, T, V]) Release(s *Slot[T, V]) {
	c.destroy(s)
}

// Clear tears down every slot.
func (c *Cache[K, T, V]) Clear() {
	c.RetainOnly(nil)
}

// Len returns the number of live slots.
func (c *Cache[K, T, V]) Len() int { return len(c.slots) }

// Keys returns the cached keys in no particular order.
func (c *Cache[K, T, V]) Keys() []K {
	keys := make([]K, 0, len(c.slots))
	for k := range c.slots {
		keys = append(keys, k)
	}
	return keys
}

// Each calls fn for every slot in no particular order.
func (c *Cache[K, T, V]) Each(fn func(key K, s *Slot[T, V])) {
	for k, s := range c.slots {
		fn(k, s)
	}
}

// Stats returns a snapshot of cache counters.
func (c *Cache[K, T, V]) Stats() Stats {
	st := c.stats
	st.Live = len(c.slots)
	return st
}

func (c *Cache[K, T, V]) destroy(s *Slot[T, V]) {
	c.stats.Removals++
	if c.teardown != nil {
		c.teardown(s.id, s.view)
	}
	if d, ok := any(s.view).(Disposer); ok {
		d.Dispose()
	}
	c.scope.Release(s.id)
	debug.Log("slot: released %s", s.id)
}
