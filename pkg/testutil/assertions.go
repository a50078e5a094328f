package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vanderheijden86/viewtree/internal/datasource"
)

// AssertItemCount verifies the number of items in the tree.
func AssertItemCount(t *testing.T, root datasource.Item, expected int) {
	t.Helper()
	if got := root.Count(); got != expected {
		t.Errorf("expected %d items, got %d", expected, got)
	}
}

// AssertUniqueSiblingKeys verifies no item has two children with one ID.
func AssertUniqueSiblingKeys(t *testing.T, root datasource.Item) {
	t.Helper()
	Walk(root, func(it datasource.Item, _ int) {
		seen := make(map[string]bool, len(it.Children))
		for _, c := range it.Children {
			if seen[c.ID] {
				t.Errorf("duplicate child key %q under %q", c.ID, it.ID)
			}
			seen[c.ID] = true
		}
	})
}

// AssertSealed verifies every item carries a subtree hash.
func AssertSealed(t *testing.T, root datasource.Item) {
	t.Helper()
	Walk(root, func(it datasource.Item, _ int) {
		if it.Hash == 0 {
			t.Errorf("item %q is not sealed", it.ID)
		}
	})
}

// Walk visits root and its descendants depth first.
func Walk(root datasource.Item, fn func(it datasource.Item, depth int)) {
	var walk func(it datasource.Item, depth int)
	walk = func(it datasource.Item, depth int) {
		fn(it, depth)
		for _, c := range it.Children {
			walk(c, depth+1)
		}
	}
	walk(root, 0)
}

// Depth returns the number of edges on the longest root-to-leaf path.
func Depth(root datasource.Item) int {
	deepest := 0
	Walk(root, func(_ datasource.Item, d int) { deepest = max(deepest, d) })
	return deepest
}

// Outline renders IDs indented two spaces per level, one per line.
func Outline(root datasource.Item) string {
	var b strings.Builder
	Walk(root, func(it datasource.Item, d int) {
		b.WriteString(strings.Repeat("  ", d))
		b.WriteString(it.ID)
		b.WriteByte('\n')
	})
	return b.String()
}

// TempDir helpers

// WriteJSONFile writes root as a JSON source in a temporary directory and
// returns its path.
func WriteJSONFile(t *testing.T, name string, root datasource.Item) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(ToJSON(root)), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}
