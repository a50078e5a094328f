package ui

import (
	"errors"
	"fmt"

	"github.com/vanderheijden86/viewtree/internal/datasource"
	"github.com/vanderheijden86/viewtree/pkg/config"
	"github.com/vanderheijden86/viewtree/pkg/debug"
	"github.com/vanderheijden86/viewtree/pkg/identity"
	"github.com/vanderheijden86/viewtree/pkg/reactive"
	"github.com/vanderheijden86/viewtree/pkg/tree"
	"github.com/vanderheijden86/viewtree/pkg/view"
	"github.com/vanderheijden86/viewtree/pkg/virtual"
)

type node = tree.Node[datasource.Item, string]

// FlatRow is one visible line of the tree.
type FlatRow struct {
	ID       identity.ID
	Key      string
	Depth    int
	Title    string
	Branch   bool
	Expanded bool
	Failed   bool
	Hash     uint64
}

// line is the materialized view of a row.
type line struct {
	row FlatRow
}

// TreeModel reconciles the loaded tree, projects the expanded part of it
// into a virtual list of rows, and tracks expansion.
type TreeModel struct {
	cfg config.ViewConfig
	rt  *reactive.Runtime
	rec *tree.Reconciler[datasource.Item, string]

	list *virtual.List[identity.ID, FlatRow, *line]
	rows []FlatRow

	expand    map[string]*reactive.Cell[bool]
	depth     map[string]int
	state     *TreeState
	statePath string

	errs []error
}

// NewTreeModel creates an empty tree view. statePath may be empty.
func NewTreeModel(cfg config.ViewConfig, statePath string) (*TreeModel, error) {
	t := &TreeModel{
		cfg:       cfg,
		rt:        reactive.NewRuntime(),
		expand:    make(map[string]*reactive.Cell[bool]),
		depth:     make(map[string]int),
		state:     LoadTreeState(statePath),
		statePath: statePath,
	}

	rec, err := tree.New(tree.Config[datasource.Item, string]{
		View: func(cx view.Context, it datasource.Item) view.View {
			return newLabel(cx, it, t.toggleKey)
		},
		HasChildren: datasource.HasChildren,
		Children:    t.children,
		Key:         datasource.Key,
		Equal:       datasource.Equal,
		UpdateView:  updateLabel,
	}, tree.WithRuntime(t.rt), tree.WithErrorBoundary(t.boundary))
	if err != nil {
		return nil, err
	}
	t.rec = rec

	// One terminal line per row.
	proj := virtual.NewFixed(1, cfg.Overscan)
	list, err := virtual.NewList(rec.Allocator().Scope(identity.Root), proj, virtual.ListConfig[identity.ID, FlatRow, *line]{
		Key:      func(r FlatRow) identity.ID { return r.ID },
		Build:    func(_ identity.ID, r FlatRow) *line { return &line{row: r} },
		Update:   func(l *line, r FlatRow) { l.row = r },
		Equal:    func(a, b FlatRow) bool { return a == b },
		KeepWarm: cfg.KeepWarm,
	})
	if err != nil {
		return nil, err
	}
	t.list = list
	return t, nil
}

// children is the reconciler's child accessor. It reads the expansion cell
// of it, so toggling recomputes that node only.
func (t *TreeModel) children(it datasource.Item) []datasource.Item {
	if !t.cell(it.ID).Get() {
		return nil
	}
	return it.Children
}

func (t *TreeModel) cell(key string) *reactive.Cell[bool] {
	c, ok := t.expand[key]
	if !ok {
		c = reactive.NewCell(t.rt, t.defaultExpanded(key))
		t.expand[key] = c
	}
	return c
}

func (t *TreeModel) defaultExpanded(key string) bool {
	if v, ok := t.state.Expanded[key]; ok {
		return v
	}
	return t.depth[key] < t.cfg.ExpandDepth
}

func (t *TreeModel) boundary(err error) {
	var se *tree.SubtreeError
	if errors.As(err, &se) && se.Retryable() {
		return
	}
	t.errs = append(t.errs, err)
}

// SetRoot reconciles a freshly loaded tree and rebuilds the rows.
func (t *TreeModel) SetRoot(root datasource.Item) error {
	clear(t.depth)
	var walk func(it datasource.Item, d int)
	walk = func(it datasource.Item, d int) {
		if _, seen := t.depth[it.ID]; !seen {
			t.depth[it.ID] = d
		}
		for _, c := range it.Children {
			walk(c, d+1)
		}
	}
	walk(root, 0)

	t.errs = nil
	if _, err := t.rec.Reconcile(root); err != nil {
		return fmt.Errorf("reconciling tree: %w", err)
	}
	return t.refresh()
}

func (t *TreeModel) refresh() error {
	t.rows = t.flatten()
	if err := t.list.SetItems(t.rows); err != nil {
		return err
	}
	debug.Log("ui: %d rows, window %+v", len(t.rows), t.list.Window())
	return nil
}

func (t *TreeModel) flatten() []FlatRow {
	root := t.rec.Root()
	if root == nil {
		return nil
	}
	var rows []FlatRow
	var walk func(n *node, depth int)
	walk = func(n *node, depth int) {
		it := n.Item()
		branch := n.Kind() == tree.KindBranch
		rows = append(rows, FlatRow{
			ID:       n.ID(),
			Key:      n.Key(),
			Depth:    depth,
			Title:    it.Title(),
			Branch:   branch,
			Expanded: branch && t.cell(n.Key()).Peek(),
			Failed:   n.Err() != nil,
			Hash:     it.Hash,
		})
		for _, c := range n.Nodes() {
			walk(c, depth+1)
		}
	}
	walk(root, 0)
	return rows
}

// Len returns the number of visible rows.
func (t *TreeModel) Len() int { return len(t.rows) }

// Row returns row i.
func (t *TreeModel) Row(i int) (FlatRow, bool) {
	if i < 0 || i >= len(t.rows) {
		return FlatRow{}, false
	}
	return t.rows[i], true
}

// IndexOf returns the row index of a node.
func (t *TreeModel) IndexOf(id identity.ID) (int, bool) {
	return t.list.IndexOf(id)
}

// SetExpanded sets the expansion of row i and returns whether it changed.
func (t *TreeModel) SetExpanded(i int, expanded bool) (bool, error) {
	r, ok := t.Row(i)
	if !ok || !r.Branch || r.Expanded == expanded {
		return false, nil
	}
	return true, t.Toggle(i)
}

// Toggle flips the expansion of row i by dispatching EventToggle down the
// node's identity path.
func (t *TreeModel) Toggle(i int) error {
	r, ok := t.Row(i)
	if !ok || !r.Branch {
		return nil
	}
	path := t.rec.Allocator().Path(r.ID)
	if !view.Dispatch(t.rec.Root(), view.Event{Name: EventToggle, Path: path}) {
		return nil
	}
	if _, err := t.rec.Flush(); err != nil {
		return err
	}
	return t.refresh()
}

func (t *TreeModel) toggleKey(key string) {
	c := t.cell(key)
	v := !c.Peek()
	c.Set(v)
	t.state.Expanded[key] = v
	t.state.Save(t.statePath)
}

// SetViewport sets the number of visible rows.
func (t *TreeModel) SetViewport(rows int) { t.list.SetViewport(float64(max(rows, 0))) }

// Reveal scrolls row i into view.
func (t *TreeModel) Reveal(i int) { t.list.Reveal(i) }

// Visible returns the rows inside the viewport with their views.
func (t *TreeModel) Visible() []FlatRow {
	var out []FlatRow
	for _, r := range t.list.Rows() {
		if r.Visible {
			out = append(out, r.View.row)
		}
	}
	return out
}

// Window returns the current list window.
func (t *TreeModel) Window() virtual.Window { return t.list.Window() }

// Errors returns the subtree failures of the last pass.
func (t *TreeModel) Errors() []error { return t.errs }

// Root returns the reconciled root node, or nil.
func (t *TreeModel) Root() view.View {
	if r := t.rec.Root(); r != nil {
		return r
	}
	return nil
}

// Stats exposes reconciler and list counters.
func (t *TreeModel) Stats() (tree.Stats, virtual.ListStats) {
	return t.rec.Stats(), t.list.Stats()
}

// Close tears everything down.
func (t *TreeModel) Close() {
	t.list.Close()
	t.rec.Close()
}
