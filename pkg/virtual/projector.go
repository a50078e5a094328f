// Package virtual restricts which rows of a long list are materialized to
// the ones inside the viewport, plus a configurable overscan.
package virtual

import (
	"math"
	"sort"

	"github.com/vanderheijden86/viewtree/pkg/metrics"
)

// DefaultThreshold is the item count above which variable sizing switches
// from a flat prefix array to a Fenwick tree.
const DefaultThreshold = 4096

// Window is the result of a projection.
type Window struct {
	// First and Count give the visible range [First, First+Count).
	First, Count int
	// Start and End give the materialized range, visible plus overscan.
	Start, End int
	// Scroll is the clamped scroll offset.
	Scroll float64
	// Offset is where item First begins.
	Offset float64
}

// Visible reports whether item i is inside the viewport.
func (w Window) Visible(i int) bool { return i >= w.First && i < w.First+w.Count }

// Contains reports whether item i should be materialized.
func (w Window) Contains(i int) bool { return i >= w.Start && i < w.End }

// Len returns the number of materialized items.
func (w Window) Len() int { return w.End - w.Start }

// Projector maps item indices to offsets and scroll positions to windows.
type Projector struct {
	count    int
	overscan int

	// fixed mode
	size float64

	// variable mode
	sizeOf    func(i int) float64
	threshold int
	sizes     []float64
	prefix    []float64 // len count+1; nil while dirty
	fen       *fenwick
}

// NewFixed returns a projector where every item is size units tall.
func NewFixed(size float64, overscan int) *Projector {
	if size <= 0 {
		size = 1
	}
	return &Projector{size: size, overscan: max(overscan, 0)}
}

// NewVariable returns a projector that asks sizeOf for each item's size.
// Lists longer than threshold use a Fenwick tree; threshold <= 0 uses
// DefaultThreshold.
func NewVariable(sizeOf func(i int) float64, overscan, threshold int) *Projector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Projector{sizeOf: sizeOf, overscan: max(overscan, 0), threshold: threshold}
}

// Fixed reports whether all items share one size.
func (p *Projector) Fixed() bool { return p.sizeOf == nil }

// Count returns the number of items.
func (p *Projector) Count() int { return p.count }

// Overscan returns the number of extra items materialized around the
// viewport.
func (p *Projector) Overscan() int { return p.overscan }

// SetCount resizes the list. In variable mode new items are measured with
// sizeOf; appends and truncations cost O(log n) each above the threshold.
func (p *Projector) SetCount(n int) {
	n = max(n, 0)
	if p.Fixed() || n == p.count {
		p.count = n
		return
	}
	old := p.count
	p.count = n

	if n < old {
		p.sizes = p.sizes[:n]
	} else {
		for i := old; i < n; i++ {
			p.sizes = append(p.sizes, sanitize(p.sizeOf(i)))
		}
	}

	switch {
	case n <= p.threshold:
		p.fen = nil
		p.prefix = nil
	case p.fen == nil:
		p.prefix = nil
		p.fen = newFenwick(p.sizes)
	case n < old:
		p.fen.truncate(n)
	default:
		for i := old; i < n; i++ {
			p.fen.push(p.sizes[i])
		}
	}
}

// SetSize records a new size for item i.
func (p *Projector) SetSize(i int, size float64) {
	if p.Fixed() || i < 0 || i >= p.count {
		return
	}
	size = sanitize(size)
	delta := size - p.sizes[i]
	if delta == 0 {
		return
	}
	p.sizes[i] = size
	if p.fen != nil {
		p.fen.add(i, delta)
		return
	}
	p.prefix = nil
}

// Remeasure asks sizeOf for item i again.
func (p *Projector) Remeasure(i int) {
	if p.Fixed() || i < 0 || i >= p.count {
		return
	}
	p.SetSize(i, p.sizeOf(i))
}

// Invalidate remeasures every item. Use after inserting or removing items in
// the middle of the list.
func (p *Projector) Invalidate() {
	if p.Fixed() {
		return
	}
	n := p.count
	p.count = 0
	p.sizes = p.sizes[:0]
	p.fen = nil
	p.prefix = nil
	p.SetCount(n)
}

func sanitize(size float64) float64 {
	if size < 0 || math.IsNaN(size) {
		return 0
	}
	return size
}

func (p *Projector) flat() []float64 {
	if p.prefix == nil {
		p.prefix = make([]float64, p.count+1)
		for i, s := range p.sizes {
			p.prefix[i+1] = p.prefix[i] + s
		}
	}
	return p.prefix
}

// OffsetOf returns where item i begins. OffsetOf(Count()) is the extent.
func (p *Projector) OffsetOf(i int) float64 {
	i = min(max(i, 0), p.count)
	switch {
	case p.Fixed():
		return float64(i) * p.size
	case p.fen != nil:
		return p.fen.prefix(i)
	default:
		return p.flat()[i]
	}
}

// SizeOf returns the size of item i.
func (p *Projector) SizeOf(i int) float64 {
	if i < 0 || i >= p.count {
		return 0
	}
	if p.Fixed() {
		return p.size
	}
	return p.sizes[i]
}

// Extent returns the total content size.
func (p *Projector) Extent() float64 {
	return p.OffsetOf(p.count)
}

// IndexAt returns the item covering offset y, clamped to the list.
func (p *Projector) IndexAt(y float64) int {
	if p.count == 0 {
		return 0
	}
	var i int
	switch {
	case y <= 0:
		return 0
	case p.Fixed():
		i = int(math.Floor(y / p.size))
	case p.fen != nil:
		i = p.fen.search(y)
	default:
		prefix := p.flat()
		i = sort.Search(len(prefix), func(k int) bool { return prefix[k] > y }) - 1
	}
	return min(max(i, 0), p.count-1)
}

// MaxScroll returns the largest useful scroll offset for viewport.
func (p *Projector) MaxScroll(viewport float64) float64 {
	return max(p.Extent()-viewport, 0)
}

// Project returns the window for a viewport scrolled to scroll. Overscan is
// split with half before the viewport and the rest after it.
func (p *Projector) Project(viewport, scroll float64) Window {
	defer metrics.Timer(metrics.WindowProject)()

	if p.count == 0 || viewport <= 0 {
		return Window{}
	}
	scroll = min(max(scroll, 0), p.MaxScroll(viewport))
	bottom := scroll + viewport

	var first, end int
	if p.Fixed() {
		first = int(math.Floor(scroll / p.size))
		end = int(math.Ceil(bottom / p.size))
	} else {
		first = p.IndexAt(scroll)
		last := p.IndexAt(bottom)
		end = last
		if p.OffsetOf(last) < bottom {
			end = last + 1
		}
	}
	first = min(max(first, 0), p.count-1)
	end = min(max(end, first+1), p.count)

	before := p.overscan / 2
	after := p.overscan - before
	return Window{
		First:  first,
		Count:  end - first,
		Start:  max(first-before, 0),
		End:    min(end+after, p.count),
		Scroll: scroll,
		Offset: p.OffsetOf(first),
	}
}

// ScrollToReveal returns the scroll offset that brings item i fully into
// view with the least movement from scroll.
func (p *Projector) ScrollToReveal(i int, viewport, scroll float64) float64 {
	if p.count == 0 {
		return 0
	}
	i = min(max(i, 0), p.count-1)
	top := p.OffsetOf(i)
	bottom := top + p.SizeOf(i)
	switch {
	case top < scroll:
		scroll = top
	case bottom > scroll+viewport:
		scroll = bottom - viewport
	}
	return min(max(scroll, 0), p.MaxScroll(viewport))
}
