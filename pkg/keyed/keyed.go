// Package keyed computes edit scripts between two keyed, ordered sequences.
//
// A script describes the new arrangement position by position: every new
// position either reuses the element found at some old position (same key)
// or needs a freshly inserted element. Old positions that are not reused are
// implicit removals; they are reported separately and never affect where
// inserted elements end up.
package keyed

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrDuplicateKey is returned when two entries on the same side of a diff
// share a key. It is a caller contract violation and is never repaired.
var ErrDuplicateKey = errors.New("duplicate key")

// Side names the sequence a duplicate was found in.
type Side string

const (
	SideOld Side = "old"
	SideNew Side = "new"
)

// DuplicateKeyError reports the colliding key and both positions.
type DuplicateKeyError struct {
	Key    any
	Side   Side
	First  int
	Second int
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s: %v at %s positions %d and %d", ErrDuplicateKey, e.Key, e.Side, e.First, e.Second)
}

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }

// OpKind is the operation applied at one new position.
type OpKind uint8

const (
	// Reuse keeps the element found at Op.Old.
	Reuse OpKind = iota
	// Insert creates a new element.
	Insert
)

func (k OpKind) String() string {
	switch k {
	case Reuse:
		return "reuse"
	case Insert:
		return "insert"
	default:
		return "unknown"
	}
}

// Op is one entry of a Script. Old is -1 for inserts.
type Op struct {
	Kind OpKind
	Old  int
}

func (o Op) String() string {
	if o.Kind == Insert {
		return "insert"
	}
	return fmt.Sprintf("reuse(%d)", o.Old)
}

// Script is an edit script over the positions of the new sequence.
type Script struct {
	// Ops has one entry per new position, in new order.
	Ops []Op
	// Removed lists the old positions no Op reuses, ascending.
	Removed []int
}

// Len returns the length of the new sequence.
func (s Script) Len() int { return len(s.Ops) }

// Inserts counts Insert ops.
func (s Script) Inserts() int {
	n := 0
	for _, op := range s.Ops {
		if op.Kind == Insert {
			n++
		}
	}
	return n
}

// Reuses counts Reuse ops.
func (s Script) Reuses() int { return len(s.Ops) - s.Inserts() }

// Moves counts reused elements whose relative order changed. An element
// counts as moved when it is not part of the longest run of reused elements
// that keep their old relative order, so a removal or insertion above an
// element does not make it a move.
func (s Script) Moves() int {
	olds := make([]int, 0, len(s.Ops))
	for _, op := range s.Ops {
		if op.Kind == Reuse {
			olds = append(olds, op.Old)
		}
	}
	return len(olds) - longestIncreasing(olds)
}

// Relocated reports whether any reused element changes its index.
func (s Script) Relocated() bool {
	for i, op := range s.Ops {
		if op.Kind == Reuse && op.Old != i {
			return true
		}
	}
	return false
}

// IsNoop reports whether applying the script leaves the arrangement as is.
func (s Script) IsNoop() bool {
	return len(s.Removed) == 0 && s.Inserts() == 0 && !s.Relocated()
}

// StructureChanged reports whether membership or order changes.
func (s Script) StructureChanged() bool { return !s.IsNoop() }

func (s Script) String() string {
	parts := make([]string, len(s.Ops))
	for i, op := range s.Ops {
		parts[i] = op.String()
	}
	return fmt.Sprintf("[%s] removed=%v", strings.Join(parts, " "), s.Removed)
}

// Diff computes the script turning old into next.
func Diff[K comparable](old, next []K) (Script, error) {
	oldPos := make(map[K]int, len(old))
	for i, k := range old {
		if j, dup := oldPos[k]; dup {
			return Script{}, &DuplicateKeyError{Key: k, Side: SideOld, First: j, Second: i}
		}
		oldPos[k] = i
	}

	consumed := make([]bool, len(old))
	seen := make(map[K]int, len(next))
	ops := make([]Op, len(next))
	for i, k := range next {
		if j, dup := seen[k]; dup {
			return Script{}, &DuplicateKeyError{Key: k, Side: SideNew, First: j, Second: i}
		}
		seen[k] = i
		if j, ok := oldPos[k]; ok {
			ops[i] = Op{Kind: Reuse, Old: j}
			consumed[j] = true
		} else {
			ops[i] = Op{Kind: Insert, Old: -1}
		}
	}

	var removed []int
	for i, used := range consumed {
		if !used {
			removed = append(removed, i)
		}
	}
	return Script{Ops: ops, Removed: removed}, nil
}

// DiffItems extracts keys from items and diffs them against old. It returns
// the new key sequence alongside the script so callers can keep it for the
// next pass.
func DiffItems[K comparable, T any](old []K, items []T, keyOf func(T) K) (Script, []K, error) {
	keys := Keys(items, keyOf)
	s, err := Diff(old, keys)
	if err != nil {
		return Script{}, nil, err
	}
	return s, keys, nil
}

// Keys maps items to their keys.
func Keys[K comparable, T any](items []T, keyOf func(T) K) []K {
	keys := make([]K, len(items))
	for i, it := range items {
		keys[i] = keyOf(it)
	}
	return keys
}

// Apply builds the new arrangement from old. Reused positions take the old
// element, inserted positions call insert with the new index.
func Apply[E any](s Script, old []E, insert func(newPos int) E) []E {
	out := make([]E, len(s.Ops))
	for i, op := range s.Ops {
		switch op.Kind {
		case Reuse:
			out[i] = old[op.Old]
		case Insert:
			out[i] = insert(i)
		}
	}
	return out
}

// CheckUnique reports the first duplicate key in keys.
func CheckUnique[K comparable](keys []K) error {
	seen := make(map[K]int, len(keys))
	for i, k := range keys {
		if j, dup := seen[k]; dup {
			return &DuplicateKeyError{Key: k, Side: SideNew, First: j, Second: i}
		}
		seen[k] = i
	}
	return nil
}

// longestIncreasing returns the length of the longest strictly increasing
// subsequence of xs (patience sorting, O(n log n)).
func longestIncreasing(xs []int) int {
	var tails []int
	for _, x := range xs {
		i := sort.SearchInts(tails, x)
		if i == len(tails) {
			tails = append(tails, x)
		} else {
			tails[i] = x
		}
	}
	return len(tails)
}
