package identity

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocatorMonotonic(t *testing.T) {
	a := NewAllocator()
	prev := Root
	for i := 0; i < 100; i++ {
		id := a.New()
		require.Greater(t, id, prev)
		prev = id
	}
	require.Equal(t, 100, a.Len())
	require.Equal(t, prev, a.Last())
}

func TestAllocatorChildScopes(t *testing.T) {
	a := NewAllocator()
	root := a.New()
	child, err := a.NewChild(root)
	require.NoError(t, err)
	grandchild, err := a.Scope(child).New()
	require.NoError(t, err)

	require.Equal(t, []ID{root, child, grandchild}, a.Path(grandchild))
	require.Equal(t, "#1/#2/#3", a.Describe(grandchild))

	parent, ok := a.Parent(grandchild)
	require.True(t, ok)
	require.Equal(t, child, parent)
}

func TestAllocatorReleasedScope(t *testing.T) {
	a := NewAllocator()
	root := a.New()
	a.Release(root)
	require.False(t, a.Live(root))

	_, err := a.NewChild(root)
	require.True(t, errors.Is(err, ErrUnknownScope))

	// Released identifiers are never handed out again.
	next := a.New()
	require.NotEqual(t, root, next)

	// Double release is harmless.
	a.Release(root)
}

func TestAllocatorConcurrentSiblings(t *testing.T) {
	a := NewAllocator()
	parent := a.New()

	const workers, perWorker = 8, 500
	var wg sync.WaitGroup
	ids := make([][]ID, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			scope := a.Scope(parent)
			for i := 0; i < perWorker; i++ {
				id, err := scope.New()
				if err != nil {
					t.Error(err)
					return
				}
				ids[w] = append(ids[w], id)
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[ID]bool)
	for _, batch := range ids {
		for i, id := range batch {
			require.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
			if i > 0 {
				require.Greater(t, id, batch[i-1], "allocation within one goroutine must be monotonic")
			}
			p, ok := a.Parent(id)
			require.True(t, ok)
			require.Equal(t, parent, p)
		}
	}
	require.Equal(t, workers*perWorker+1, a.Len())
}

func TestZeroScope(t *testing.T) {
	var s Scope
	_, err := s.New()
	require.ErrorIs(t, err, ErrUnknownScope)
	s.Release(1)
}
