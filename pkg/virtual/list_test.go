package virtual

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vanderheijden86/viewtree/pkg/identity"
	"github.com/vanderheijden86/viewtree/pkg/keyed"
)

type entry struct {
	Key  int
	Text string
}

type rowView struct {
	key      int
	text     string
	disposed bool
}

func (r *rowView) Dispose() { r.disposed = true }

func entries(n int) []entry {
	out := make([]entry, n)
	for i := range out {
		out[i] = entry{Key: i, Text: fmt.Sprintf("row %d", i)}
	}
	return out
}

func newList(t *testing.T, overscan, keepWarm int) (*List[int, entry, *rowView], *identity.Allocator, *int) {
	t.Helper()
	alloc := identity.NewAllocator()
	builds := 0
	l, err := NewList(alloc.Scope(identity.Root), NewFixed(1, overscan), ListConfig[int, entry, *rowView]{
		Key: func(e entry) int { return e.Key },
		Build: func(_ identity.ID, e entry) *rowView {
			builds++
			return &rowView{key: e.Key, text: e.Text}
		},
		Update:   func(v *rowView, e entry) { v.text = e.Text },
		KeepWarm: keepWarm,
	})
	require.NoError(t, err)
	return l, alloc, &builds
}

func TestVirtualizationBound(t *testing.T) {
	const overscan = 4
	l, _, _ := newList(t, overscan, 0)
	require.NoError(t, l.SetItems(entries(100000)))
	l.SetViewport(20)

	for _, pos := range []float64{0, 1, 19, 500, 50000, 99979, 99990, 3} {
		l.ScrollTo(pos)
		require.LessOrEqual(t, l.Stats().Live, 20+overscan, "scroll %v", pos)
	}
	require.LessOrEqual(t, l.Stats().Built, uint64(8*(20+overscan)))
}

func TestScrollKeepsOverlappingRows(t *testing.T) {
	l, alloc, builds := newList(t, 0, 0)
	require.NoError(t, l.SetItems(entries(100)))
	l.SetViewport(10)

	ids := map[int]identity.ID{}
	var dropped []*rowView
	for _, r := range l.Rows() {
		ids[r.Key] = r.ID
		if r.Key < 5 {
			dropped = append(dropped, r.View)
		}
	}
	require.Equal(t, 10, *builds)

	l.ScrollTo(5)
	rows := l.Rows()
	require.Len(t, rows, 10)
	require.Equal(t, 5, rows[0].Key)
	for _, r := range rows {
		if r.Key < 10 {
			require.Equal(t, ids[r.Key], r.ID, "row %d kept its slot", r.Key)
		}
	}
	require.Equal(t, 15, *builds, "only scrolled-in rows are built")
	for _, v := range dropped {
		require.True(t, v.disposed)
	}
	require.False(t, alloc.Live(ids[0]))
}

func TestKeepWarmReadoptsWithoutRebuild(t *testing.T) {
	l, alloc, builds := newList(t, 0, 10)
	require.NoError(t, l.SetItems(entries(100)))
	l.SetViewport(10)
	first := l.Rows()[0]

	l.ScrollTo(10)
	require.Equal(t, 20, *builds)
	require.Equal(t, 10, l.Stats().Warm)
	require.True(t, alloc.Live(first.ID), "warm rows keep their identity")

	l.ScrollTo(0)
	require.Equal(t, 20, *builds, "no rebuild when scrolling back")
	require.Equal(t, first.ID, l.Rows()[0].ID)
	require.Equal(t, uint64(10), l.Stats().Rewarmed)

	l.ScrollTo(50)
	l.ScrollTo(80)
	st := l.Stats()
	require.Equal(t, 10, st.Warm, "capacity bounds warm rows")
	require.NotZero(t, st.Evicted)
	require.False(t, alloc.Live(first.ID), "evicted rows are torn down")
}

func TestSetItemsReusesAndUpdates(t *testing.T) {
	l, _, builds := newList(t, 0, 0)
	require.NoError(t, l.SetItems(entries(20)))
	l.SetViewport(5)
	id := l.Rows()[1].ID

	next := entries(20)
	next[1].Text = "edited"
	next[0], next[2] = next[2], next[0]
	require.NoError(t, l.SetItems(next))

	rows := l.Rows()
	require.Equal(t, 2, rows[0].Key)
	require.Equal(t, id, rows[1].ID)
	require.Equal(t, "edited", rows[1].View.text)
	require.Equal(t, 5, *builds)

	i, ok := l.IndexOf(0)
	require.True(t, ok)
	require.Equal(t, 2, i)
}

func TestSetItemsRejectsDuplicates(t *testing.T) {
	l, _, _ := newList(t, 0, 0)
	require.NoError(t, l.SetItems(entries(3)))
	err := l.SetItems([]entry{{Key: 1}, {Key: 1}})
	require.ErrorIs(t, err, keyed.ErrDuplicateKey)
	require.Equal(t, 3, l.Len(), "list unchanged")
}

func TestSetItemsPurgesWarmRowsForRemovedKeys(t *testing.T) {
	l, alloc, _ := newList(t, 0, 10)
	require.NoError(t, l.SetItems(entries(30)))
	l.SetViewport(5)
	gone := l.Rows()[0]
	l.ScrollTo(10)
	require.True(t, alloc.Live(gone.ID))

	require.NoError(t, l.SetItems(entries(30)[1:]))
	require.False(t, alloc.Live(gone.ID))
}

func TestRevealAndVariableSizes(t *testing.T) {
	alloc := identity.NewAllocator()
	items := entries(50)
	proj := NewVariable(func(i int) float64 { return float64(1 + items[i].Key%2) }, 0, 16)
	l, err := NewList(alloc.Scope(identity.Root), proj, ListConfig[int, entry, *rowView]{
		Key:   func(e entry) int { return e.Key },
		Build: func(_ identity.ID, e entry) *rowView { return &rowView{key: e.Key} },
	})
	require.NoError(t, err)
	require.NoError(t, l.SetItems(items))
	l.SetViewport(6)

	w := l.Reveal(40)
	require.True(t, w.Visible(40))
	rows := l.Rows()
	last := rows[len(rows)-1]
	require.Equal(t, 40, last.Index)
	require.Equal(t, proj.OffsetOf(40), last.Offset)
}

func TestNewListRequiresBuilder(t *testing.T) {
	_, err := NewList(identity.NewAllocator().Scope(identity.Root), NewFixed(1, 0), ListConfig[int, entry, *rowView]{})
	require.ErrorIs(t, err, ErrNoBuilder)
}

func TestVariableListResizesIncrementally(t *testing.T) {
	items := entries(100000)
	measured := 0
	size := func(e entry) float64 { return float64(1 + e.Key%3) }
	proj := NewVariable(func(i int) float64 {
		measured++
		return size(items[i])
	}, 2, 1000)
	l, err := NewList(identity.NewAllocator().Scope(identity.Root), proj, ListConfig[int, entry, *rowView]{
		Key:   func(e entry) int { return e.Key },
		Build: func(_ identity.ID, e entry) *rowView { return &rowView{key: e.Key} },
	})
	require.NoError(t, err)
	require.NoError(t, l.SetItems(items))
	l.SetViewport(20)
	require.Equal(t, len(items), measured)
	require.NotNil(t, proj.fen)

	// Append one row: only the new row is measured.
	measured = 0
	items = append(items[:len(items):len(items)], entry{Key: 100000, Text: "new"})
	require.NoError(t, l.SetItems(items))
	require.Equal(t, 1, measured)
	require.Equal(t, proj.OffsetOf(100000)+size(items[100000]), proj.Extent())

	// Truncate: nothing is measured.
	measured = 0
	items = items[:50000]
	require.NoError(t, l.SetItems(items))
	require.Zero(t, measured)
	require.Equal(t, 50000, proj.Count())

	// A changed row in the shared prefix is remeasured alone.
	measured = 0
	items = append([]entry(nil), items...)
	items[10] = entry{Key: 10, Text: "edited"}
	require.NoError(t, l.SetItems(items))
	require.Equal(t, 1, measured)

	// An insert in the middle remeasures everything.
	measured = 0
	mid := append(append(append([]entry(nil), items[:100]...), entry{Key: -1}), items[100:]...)
	items = mid
	require.NoError(t, l.SetItems(items))
	require.Equal(t, len(items), measured)

	var want float64
	for _, e := range items[:200] {
		want += size(e)
	}
	require.Equal(t, want, proj.OffsetOf(200))
}
