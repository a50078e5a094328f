package virtual

import (
	"errors"
	"fmt"
	"reflect"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vanderheijden86/viewtree/pkg/debug"
	"github.com/vanderheijden86/viewtree/pkg/identity"
	"github.com/vanderheijden86/viewtree/pkg/keyed"
	"github.com/vanderheijden86/viewtree/pkg/metrics"
	"github.com/vanderheijden86/viewtree/pkg/slot"
)

// ErrNoBuilder is returned by NewList without Key or Build.
var ErrNoBuilder = errors.New("virtual: Key and Build are required")

// ListConfig configures a List.
type ListConfig[K comparable, T, V any] struct {
	Key   func(item T) K
	Build func(id identity.ID, item T) V
	// Update refreshes a reused row whose item changed. Optional.
	Update func(v V, item T)
	// Equal decides whether an item changed. Defaults to reflect.DeepEqual.
	Equal    func(a, b T) bool
	Teardown func(id identity.ID, v V)
	// KeepWarm keeps up to this many scrolled-out rows built so scrolling
	// back does not rebuild them. 0 tears rows down as soon as they leave.
	KeepWarm int
}

// Row is one materialized row.
type Row[K comparable, V any] struct {
	Index   int
	Key     K
	ID      identity.ID
	View    V
	Offset  float64
	Size    float64
	Visible bool
}

// ListStats counts list activity.
type ListStats struct {
	Live     int
	Warm     int
	Built    uint64
	Rewarmed uint64
	Evicted  uint64
}

// List materializes only the rows of a flat keyed collection that fall in
// the window projected from the current scroll position.
type List[K comparable, T, V any] struct {
	cfg   ListConfig[K, T, V]
	proj  *Projector
	cache *slot.Cache[K, T, V]
	warm  *lru.Cache[K, *slot.Slot[T, V]]

	items []T
	keys  []K
	index map[K]int

	viewport float64
	scroll   float64
	window   Window

	adopting bool
	stats    ListStats
}

// NewList creates an empty list allocating row identities in scope.
func NewList[K comparable, T, V any](scope identity.Scope, proj *Projector, cfg ListConfig[K, T, V]) (*List[K, T, V], error) {
	if cfg.Key == nil || cfg.Build == nil {
		return nil, ErrNoBuilder
	}
	l := &List[K, T, V]{
		cfg:   cfg,
		proj:  proj,
		index: make(map[K]int),
	}
	l.cache = slot.New[K, T, V](scope, slot.Config[T, V]{
		Equal:    cfg.Equal,
		Teardown: cfg.Teardown,
	})
	if cfg.KeepWarm > 0 {
		warm, err := lru.NewWithEvict(cfg.KeepWarm, l.evict)
		if err != nil {
			return nil, fmt.Errorf("creating keep-warm cache: %w", err)
		}
		l.warm = warm
	}
	return l, nil
}

func (l *List[K, T, V]) evict(key K, s *slot.Slot[T, V]) {
	if l.adopting {
		return
	}
	l.stats.Evicted++
	metrics.RowsEvicted.Inc()
	l.cache.Release(s)
}

// Projector returns the projector the list scrolls with.
func (l *List[K, T, V]) Projector() *Projector { return l.proj }

// SetItems replaces the collection. Rows whose key survives keep their slot.
// Duplicate keys leave the list unchanged.
func (l *List[K, T, V]) SetItems(items []T) error {
	keys := keyed.Keys(items, l.cfg.Key)
	if err := keyed.CheckUnique(keys); err != nil {
		return err
	}
	index := make(map[K]int, len(keys))
	for i, k := range keys {
		index[k] = i
	}

	oldKeys, oldItems := l.keys, l.items
	l.items, l.keys, l.index = items, keys, index
	if l.proj.Fixed() {
		l.proj.SetCount(len(items))
	} else {
		l.resize(oldKeys, oldItems)
	}

	if l.warm != nil {
		for _, k := range l.warm.Keys() {
			if _, ok := index[k]; !ok {
				l.warm.Remove(k)
			}
		}
	}
	l.materialize()
	return nil
}

// resize brings a variable projector up to date. Appends and truncations
// keep the measurements of the shared prefix; any other edit remeasures
// every row.
func (l *List[K, T, V]) resize(oldKeys []K, oldItems []T) {
	shared := min(len(oldKeys), len(l.keys))
	if !slices.Equal(oldKeys[:shared], l.keys[:shared]) {
		l.proj.SetCount(0)
		l.proj.SetCount(len(l.items))
		return
	}
	for i := 0; i < shared; i++ {
		if !l.equal(oldItems[i], l.items[i]) {
			l.proj.Remeasure(i)
		}
	}
	l.proj.SetCount(len(l.items))
}

func (l *List[K, T, V]) equal(a, b T) bool {
	if l.cfg.Equal != nil {
		return l.cfg.Equal(a, b)
	}
	return reflect.DeepEqual(a, b)
}

// Len returns the number of items.
func (l *List[K, T, V]) Len() int { return len(l.items) }

// IndexOf returns the position of key.
func (l *List[K, T, V]) IndexOf(key K) (int, bool) {
	i, ok := l.index[key]
	return i, ok
}

// Item returns item i.
func (l *List[K, T, V]) Item(i int) T { return l.items[i] }

// SetViewport sets the visible extent.
func (l *List[K, T, V]) SetViewport(size float64) Window {
	l.viewport = size
	return l.materialize()
}

// Viewport returns the visible extent.
func (l *List[K, T, V]) Viewport() float64 { return l.viewport }

// ScrollTo scrolls to offset and returns the new window.
func (l *List[K, T, V]) ScrollTo(offset float64) Window {
	l.scroll = offset
	return l.materialize()
}

// ScrollBy scrolls by delta.
func (l *List[K, T, V]) ScrollBy(delta float64) Window {
	return l.ScrollTo(l.window.Scroll + delta)
}

// Reveal scrolls the least amount that brings item i into view.
func (l *List[K, T, V]) Reveal(i int) Window {
	return l.ScrollTo(l.proj.ScrollToReveal(i, l.viewport, l.window.Scroll))
}

// SetSize records a new size for item i in a variable list.
func (l *List[K, T, V]) SetSize(i int, size float64) Window {
	l.proj.SetSize(i, size)
	return l.materialize()
}

// Window returns the current window.
func (l *List[K, T, V]) Window() Window { return l.window }

// Rows returns the materialized rows in index order.
func (l *List[K, T, V]) Rows() []Row[K, V] {
	rows := make([]Row[K, V], 0, l.window.Len())
	for i := l.window.Start; i < l.window.End; i++ {
		k := l.keys[i]
		s, ok := l.cache.Get(k)
		if !ok {
			continue
		}
		rows = append(rows, Row[K, V]{
			Index:   i,
			Key:     k,
			ID:      s.ID(),
			View:    s.View(),
			Offset:  l.proj.OffsetOf(i),
			Size:    l.proj.SizeOf(i),
			Visible: l.window.Visible(i),
		})
	}
	return rows
}

// Stats returns a snapshot of counters.
func (l *List[K, T, V]) Stats() ListStats {
	st := l.stats
	st.Live = l.cache.Len()
	if l.warm != nil {
		st.Warm = l.warm.Len()
	}
	return st
}

// Close tears down every row.
func (l *List[K, T, V]) Close() {
	if l.warm != nil {
		l.warm.Purge()
	}
	l.cache.Clear()
}

func (l *List[K, T, V]) materialize() Window {
	w := l.proj.Project(l.viewport, l.scroll)
	l.window = w
	l.scroll = w.Scroll

	keep := make(slot.Set[K], w.Len())
	for i := w.Start; i < w.End; i++ {
		k, item := l.keys[i], l.items[i]
		keep[k] = struct{}{}
		l.rewarm(k)

		s, created, err := l.cache.GetOrCreate(k, item, l.cfg.Build)
		if err != nil {
			debug.Log("virtual: row %d: %v", i, err)
			continue
		}
		if created {
			l.stats.Built++
			metrics.RowsMaterialized.Inc()
		} else if s.Changed() && l.cfg.Update != nil {
			l.cfg.Update(s.View(), item)
		}
	}

	if l.warm == nil {
		l.cache.RetainOnly(keep)
	} else {
		for _, k := range l.cache.Keys() {
			if keep.Has(k) {
				continue
			}
			if s, ok := l.cache.Detach(k); ok {
				l.warm.Add(k, s)
			}
		}
	}

	metrics.WindowSlots.WithLabelValues("live").Set(float64(l.cache.Len()))
	if l.warm != nil {
		metrics.WindowSlots.WithLabelValues("warm").Set(float64(l.warm.Len()))
	}
	return w
}

// rewarm moves a kept-warm slot back into the live cache.
func (l *List[K, T, V]) rewarm(k K) {
	if l.warm == nil {
		return
	}
	s, ok := l.warm.Peek(k)
	if !ok {
		return
	}
	l.adopting = true
	l.warm.Remove(k)
	l.adopting = false
	if err := l.cache.Adopt(k, s); err != nil {
		l.cache.Release(s)
		return
	}
	l.stats.Rewarmed++
}
