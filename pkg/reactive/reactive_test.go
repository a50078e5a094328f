package reactive

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEffectRunsImmediatelyAndOnFlush(t *testing.T) {
	rt := NewRuntime()
	c := NewCell(rt, 1)
	var seen []int
	e := rt.NewEffect(func() { seen = append(seen, c.Get()) })
	require.Equal(t, []int{1}, seen)

	c.Set(2)
	c.Set(3)
	require.Equal(t, []int{1}, seen, "reruns are deferred until Flush")

	n, err := rt.Flush()
	require.NoError(t, err)
	require.Equal(t, 1, n, "multiple writes coalesce into one rerun")
	require.Equal(t, []int{1, 3}, seen)
	require.Equal(t, 2, e.Runs())
}

func TestDeferredEffect(t *testing.T) {
	rt := NewRuntime()
	c := NewCell(rt, 1)
	runs := 0
	e := rt.Effect(func() {
		runs++
		_ = c.Get()
	})
	require.Zero(t, runs, "first run waits for Flush")
	require.Equal(t, 1, rt.Pending())

	_, err := rt.Flush()
	require.NoError(t, err)
	require.Equal(t, 1, e.Runs())

	c.Set(2)
	_, _ = rt.Flush()
	require.Equal(t, 2, runs)
}

func TestPeekDoesNotSubscribe(t *testing.T) {
	rt := NewRuntime()
	c := NewCell(rt, "a")
	runs := 0
	rt.NewEffect(func() {
		runs++
		_ = c.Peek()
	})
	c.Set("b")
	_, err := rt.Flush()
	require.NoError(t, err)
	require.Equal(t, 1, runs)
}

func TestDependenciesAreRetracked(t *testing.T) {
	rt := NewRuntime()
	flag := NewCell(rt, true)
	a := NewCell(rt, 1)
	b := NewCell(rt, 10)
	var got int
	rt.NewEffect(func() {
		if flag.Get() {
			got = a.Get()
		} else {
			got = b.Get()
		}
	})
	require.Equal(t, 1, got)

	flag.Set(false)
	_, _ = rt.Flush()
	require.Equal(t, 10, got)

	// a is no longer a dependency
	a.Set(2)
	n, _ := rt.Flush()
	require.Zero(t, n)
}

func TestStaleDuringRun(t *testing.T) {
	rt := NewRuntime()
	armed := NewCell(rt, false)
	c := NewCell(rt, 0)
	var stale []bool
	var e *Effect
	e = rt.NewEffect(func() {
		if !armed.Get() {
			return
		}
		if v := c.Get(); v == 0 {
			c.Set(1)
		}
		stale = append(stale, e.Stale())
	})

	armed.Set(true)
	n, err := rt.Flush()
	require.NoError(t, err)
	require.Equal(t, 2, n, "a write to a read cell during a run queues a retry")
	require.Equal(t, []bool{true, false}, stale)
	require.Equal(t, 1, c.Peek())
}

func TestDisposedEffectNeverRuns(t *testing.T) {
	rt := NewRuntime()
	c := NewCell(rt, 0)
	e := rt.NewEffect(func() { _ = c.Get() })
	c.Set(1)
	e.Dispose()
	n, err := rt.Flush()
	require.NoError(t, err)
	require.Zero(t, n)
	require.True(t, e.Disposed())
}

func TestFlushLimit(t *testing.T) {
	rt := NewRuntime()
	rt.MaxRuns = 10
	c := NewCell(rt, 0)
	rt.NewEffect(func() { c.Set(c.Get() + 1) })
	_, err := rt.Flush()
	require.ErrorIs(t, err, ErrFlushLimit)
}

func TestPostFromOtherGoroutines(t *testing.T) {
	rt := NewRuntime()
	c := NewCell(rt, 0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rt.Post(func() { c.Update(func(v *int) { *v++ }) })
		}()
	}
	wg.Wait()
	<-rt.Wake()
	_, err := rt.Flush()
	require.NoError(t, err)
	require.Equal(t, 8, c.Peek())
	require.Zero(t, rt.Pending())
}
