// Package testutil provides test fixture generators for tree shapes.
// All generators produce deterministic output for reproducible tests.
package testutil

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/viewtree/internal/datasource"
)

// GeneratorConfig controls tree generation.
type GeneratorConfig struct {
	Seed       int64  // Random seed for determinism (0 = use current time)
	IDPrefix   string // Prefix for item IDs (default: "n")
	WordLabels bool   // Generate word labels instead of leaving Label empty
}

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:     42, // Deterministic
		IDPrefix: "n",
	}
}

// Generator creates test trees with various shapes.
type Generator struct {
	cfg    GeneratorConfig
	rng    *rand.Rand
	nextID int
}

// New creates a Generator with the given config.
func New(cfg GeneratorConfig) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.IDPrefix == "" {
		cfg.IDPrefix = "n"
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// NewDefault creates a Generator with default config.
func NewDefault() *Generator {
	return New(DefaultConfig())
}

func (g *Generator) item() datasource.Item {
	id := fmt.Sprintf("%s%d", g.cfg.IDPrefix, g.nextID)
	g.nextID++
	it := datasource.Item{ID: id}
	if g.cfg.WordLabels {
		it.Label = g.pickLabel()
	}
	return it
}

// Tree creates a tree with given depth and branching factor. Each non-leaf
// item has breadth children; IDs are assigned breadth first.
func (g *Generator) Tree(depth, breadth int) datasource.Item {
	depth = max(depth, 0)
	breadth = max(breadth, 1)

	items := []datasource.Item{g.item()}
	var parents []int
	level := []int{0}
	for d := 0; d < depth; d++ {
		var next []int
		for _, p := range level {
			for b := 0; b < breadth; b++ {
				items = append(items, g.item())
				parents = append(parents, p)
				next = append(next, len(items)-1)
			}
		}
		level = next
	}
	return assemble(items, parents)
}

// Chain creates a single path of size items.
func (g *Generator) Chain(size int) datasource.Item {
	size = max(size, 1)
	items := []datasource.Item{g.item()}
	var parents []int
	for i := 1; i < size; i++ {
		items = append(items, g.item())
		parents = append(parents, i-1)
	}
	return assemble(items, parents)
}

// Wide creates a root with n leaf children.
func (g *Generator) Wide(n int) datasource.Item {
	items := []datasource.Item{g.item()}
	var parents []int
	for i := 0; i < n; i++ {
		items = append(items, g.item())
		parents = append(parents, 0)
	}
	return assemble(items, parents)
}

// Random creates a random recursive tree of size items: every item after the
// first hangs off a uniformly chosen earlier one.
func (g *Generator) Random(size int) datasource.Item {
	size = max(size, 1)
	items := []datasource.Item{g.item()}
	var parents []int
	for i := 1; i < size; i++ {
		items = append(items, g.item())
		parents = append(parents, g.rng.Intn(i))
	}
	return assemble(items, parents)
}

// assemble links items[i+1] under items[parents[i]] and seals the result.
func assemble(items []datasource.Item, parents []int) datasource.Item {
	kids := make([][]int, len(items))
	for i, p := range parents {
		kids[p] = append(kids[p], i+1)
	}
	var build func(i int) datasource.Item
	build = func(i int) datasource.Item {
		it := items[i]
		for _, k := range kids[i] {
			it.Children = append(it.Children, build(k))
		}
		return it
	}
	root := build(0)
	root.Seal()
	return root
}

// Shuffle returns a copy of root with every child list permuted. Keys and
// labels are unchanged.
func (g *Generator) Shuffle(root datasource.Item) datasource.Item {
	out := g.shuffle(root)
	out.Seal()
	return out
}

func (g *Generator) shuffle(it datasource.Item) datasource.Item {
	if len(it.Children) == 0 {
		return it
	}
	kids := make([]datasource.Item, len(it.Children))
	for i, c := range it.Children {
		kids[i] = g.shuffle(c)
	}
	g.rng.Shuffle(len(kids), func(i, j int) { kids[i], kids[j] = kids[j], kids[i] })
	it.Children = kids
	return it
}

// Mutation kinds applied by Mutate.
const (
	MutateRelabel = iota
	MutateInsert
	MutateRemove
	MutateReverse
	mutationKinds
)

// Mutate returns a copy of root with edits random edits applied: relabels,
// child inserts, child removals and child list reversals. The root itself
// is never removed and sibling keys stay unique.
func (g *Generator) Mutate(root datasource.Item, edits int) datasource.Item {
	out := clone(root)
	for e := 0; e < edits; e++ {
		target := g.pick(&out)
		switch g.rng.Intn(mutationKinds) {
		case MutateRelabel:
			target.Label = g.pickLabel()
		case MutateInsert:
			child := g.item()
			child.ID = fmt.Sprintf("%s-m%d", child.ID, e)
			at := g.rng.Intn(len(target.Children) + 1)
			target.Children = append(target.Children[:at], append([]datasource.Item{child}, target.Children[at:]...)...)
		case MutateRemove:
			if len(target.Children) > 0 {
				at := g.rng.Intn(len(target.Children))
				target.Children = append(target.Children[:at], target.Children[at+1:]...)
			}
		case MutateReverse:
			k := target.Children
			for i, j := 0, len(k)-1; i < j; i, j = i+1, j-1 {
				k[i], k[j] = k[j], k[i]
			}
		}
	}
	out.Seal()
	return out
}

// pick returns a uniformly chosen item of the tree rooted at root.
func (g *Generator) pick(root *datasource.Item) *datasource.Item {
	var all []*datasource.Item
	var walk func(it *datasource.Item)
	walk = func(it *datasource.Item) {
		all = append(all, it)
		for i := range it.Children {
			walk(&it.Children[i])
		}
	}
	walk(root)
	return all[g.rng.Intn(len(all))]
}

func clone(it datasource.Item) datasource.Item {
	if it.Children != nil {
		kids := make([]datasource.Item, len(it.Children))
		for i, c := range it.Children {
			kids[i] = clone(c)
		}
		it.Children = kids
	}
	return it
}

var labelWords = []string{
	"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf",
	"hotel", "india", "juliet", "kilo", "lima", "mike", "november",
}

func (g *Generator) pickLabel() string {
	n := 1 + g.rng.Intn(3)
	words := make([]string, n)
	for i := range words {
		words[i] = labelWords[g.rng.Intn(len(labelWords))]
	}
	return strings.Join(words, " ")
}

// ToJSON encodes root the way datasource.LoadJSON reads it.
func ToJSON(root datasource.Item) string {
	data, err := json.Marshal(root)
	if err != nil {
		return ""
	}
	return string(data)
}

// Convenience functions for quick fixture generation

// QuickTree generates a deterministic tree of given depth and breadth.
func QuickTree(depth, breadth int) datasource.Item {
	return NewDefault().Tree(depth, breadth)
}

// QuickWide generates a deterministic root with n leaves.
func QuickWide(n int) datasource.Item {
	return NewDefault().Wide(n)
}

// QuickRandom generates a deterministic random tree.
func QuickRandom(size int) datasource.Item {
	return NewDefault().Random(size)
}
