package virtual

import "math/bits"

// fenwick is a binary indexed tree over item sizes. Index 0 is unused.
type fenwick struct {
	tree []float64
}

func newFenwick(sizes []float64) *fenwick {
	f := &fenwick{tree: make([]float64, len(sizes)+1)}
	copy(f.tree[1:], sizes)
	for i := 1; i < len(f.tree); i++ {
		if j := i + i&-i; j < len(f.tree) {
			f.tree[j] += f.tree[i]
		}
	}
	return f
}

func (f *fenwick) len() int { return len(f.tree) - 1 }

// add adds delta to item i (0-based).
func (f *fenwick) add(i int, delta float64) {
	for j := i + 1; j < len(f.tree); j += j & -j {
		f.tree[j] += delta
	}
}

// prefix returns the total size of the first n items.
func (f *fenwick) prefix(n int) float64 {
	var sum float64
	for j := n; j > 0; j -= j & -j {
		sum += f.tree[j]
	}
	return sum
}

// push appends an item.
func (f *fenwick) push(size float64) {
	n := len(f.tree)
	low := n & -n
	f.tree = append(f.tree, size+f.prefix(n-1)-f.prefix(n-low))
}

// truncate drops items from n on. Nodes below n only cover items below n.
func (f *fenwick) truncate(n int) {
	f.tree = f.tree[:n+1]
}

// search returns the largest n with prefix(n) <= x. Sizes must be
// non-negative.
func (f *fenwick) search(x float64) int {
	if f.len() == 0 {
		return 0
	}
	pos := 0
	for step := 1 << (bits.Len(uint(f.len())) - 1); step > 0; step >>= 1 {
		if next := pos + step; next < len(f.tree) && f.tree[next] <= x {
			pos = next
			x -= f.tree[next]
		}
	}
	return pos
}
