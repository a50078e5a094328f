// Package datasource loads item trees for viewtree from JSON files and
// SQLite adjacency tables, and discovers which files in a directory can be
// loaded.
package datasource

import (
	"encoding/binary"
	"reflect"

	"github.com/cespare/xxhash/v2"
)

// Item is one node of a loaded tree.
type Item struct {
	ID       string `json:"id"`
	Label    string `json:"label,omitempty"`
	Children []Item `json:"children,omitempty"`

	// Hash covers the item and its whole subtree. Zero until Seal.
	Hash uint64 `json:"-"`
}

// Title returns the label, falling back to the ID.
func (it Item) Title() string {
	if it.Label != "" {
		return it.Label
	}
	return it.ID
}

// Seal computes subtree hashes bottom-up and returns the root hash.
func (it *Item) Seal() uint64 {
	d := xxhash.New()
	d.WriteString(it.ID)
	d.Write([]byte{0})
	d.WriteString(it.Label)
	d.Write([]byte{0})
	var buf [8]byte
	for i := range it.Children {
		binary.LittleEndian.PutUint64(buf[:], it.Children[i].Seal())
		d.Write(buf[:])
	}
	it.Hash = d.Sum64()
	if it.Hash == 0 {
		it.Hash = 1
	}
	return it.Hash
}

// Count returns the number of items in the subtree rooted at it.
func (it Item) Count() int {
	n := 1
	for _, c := range it.Children {
		n += c.Count()
	}
	return n
}

// Find returns the item with id in the subtree rooted at it.
func (it Item) Find(id string) (Item, bool) {
	if it.ID == id {
		return it, true
	}
	for _, c := range it.Children {
		if found, ok := c.Find(id); ok {
			return found, true
		}
	}
	return Item{}, false
}

// Key is the reconciliation key of an item.
func Key(it Item) string { return it.ID }

// HasChildren reports whether it should be shown as a branch.
func HasChildren(it Item) bool { return len(it.Children) > 0 }

// Children returns the child items.
func Children(it Item) []Item { return it.Children }

// Equal compares sealed items by hash. Unsealed items are compared deeply.
func Equal(a, b Item) bool {
	if a.Hash != 0 && b.Hash != 0 {
		return a.ID == b.ID && a.Hash == b.Hash
	}
	return reflect.DeepEqual(a, b)
}
