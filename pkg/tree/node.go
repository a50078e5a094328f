package tree

import (
	"fmt"

	"github.com/vanderheijden86/viewtree/pkg/identity"
	"github.com/vanderheijden86/viewtree/pkg/keyed"
	"github.com/vanderheijden86/viewtree/pkg/metrics"
	"github.com/vanderheijden86/viewtree/pkg/reactive"
	"github.com/vanderheijden86/viewtree/pkg/slot"
	"github.com/vanderheijden86/viewtree/pkg/view"
)

// Kind distinguishes nodes that own a child collection from leaves.
type Kind uint8

const (
	KindLeaf Kind = iota
	KindBranch
)

func (k Kind) String() string {
	if k == KindBranch {
		return "branch"
	}
	return "leaf"
}

// childPatch is the snapshot a branch effect hands to Update.
type childPatch[T any, K comparable] struct {
	items []T
	keys  []K
}

// Node is one reconciled item: its header view plus, for branches, a keyed
// cache of child nodes.
type Node[T any, K comparable] struct {
	r      *Reconciler[T, K]
	id     identity.ID
	parent identity.ID
	kind   Kind
	key    K
	item   *reactive.Cell[T]
	header view.View

	children *slot.Cache[K, T, *Node[T, K]]
	order    []K
	effect   *reactive.Effect

	err      error
	disposed bool
}

func (r *Reconciler[T, K]) newNode(id, parent identity.ID, item T) *Node[T, K] {
	n := &Node[T, K]{
		r:      r,
		id:     id,
		parent: parent,
		key:    r.cfg.Key(item),
		item:   reactive.NewCell(r.rt, item),
	}
	n.header = r.cfg.View(n.context(), item)
	r.nodes[id] = n
	if r.cfg.HasChildren(item) {
		n.makeBranch()
	}
	return n
}

func (n *Node[T, K]) context() view.Context {
	return view.Context{
		Scope:   n.r.alloc.Scope(n.id),
		Runtime: n.r.rt,
		Queue:   n.r.queue,
	}
}

func (n *Node[T, K]) makeBranch() {
	n.kind = KindBranch
	n.children = slot.New[K, T, *Node[T, K]](n.r.alloc.Scope(n.id), slot.Config[T, *Node[T, K]]{
		Equal: n.r.cfg.Equal,
	})
	n.effect = n.r.rt.Effect(n.compute)
}

func (n *Node[T, K]) makeLeaf() {
	n.kind = KindLeaf
	if n.effect != nil {
		n.effect.Dispose()
		n.effect = nil
	}
	n.r.queue.Cancel(n.id)
	if n.children != nil {
		n.r.stats.Removed += uint64(n.children.Len())
		n.children.Clear()
		n.children = nil
	}
	n.order = nil
}

// compute is the branch effect. It reads the child collection and schedules
// a patch; it never touches the tree.
func (n *Node[T, K]) compute() {
	items := n.r.cfg.Children(n.item.Get())
	if n.effect.Stale() {
		n.r.retry(n)
		return
	}
	keys := keyed.Keys(items, n.r.cfg.Key)
	if err := keyed.CheckUnique(keys); err != nil {
		n.r.fail(n, err)
		return
	}
	n.r.queue.Schedule(n.id, childPatch[T, K]{items: items, keys: keys})
}

// ID returns the node identity. The header view is built in the same scope.
func (n *Node[T, K]) ID() identity.ID { return n.id }

// Parent returns the identity of the parent node, or identity.Root.
func (n *Node[T, K]) Parent() identity.ID { return n.parent }

// Kind reports whether the node is a leaf or a branch.
func (n *Node[T, K]) Kind() Kind { return n.kind }

// Key returns the item key.
func (n *Node[T, K]) Key() K { return n.key }

// Item returns the current item without tracking.
func (n *Node[T, K]) Item() T { return n.item.Peek() }

// Header returns the view built for the node's own item.
func (n *Node[T, K]) Header() view.View { return n.header }

// Err returns the last failure of this node's child update, if any. The
// node keeps its previous children while Err is set.
func (n *Node[T, K]) Err() error { return n.err }

// Nodes returns the child nodes in order.
func (n *Node[T, K]) Nodes() []*Node[T, K] {
	if n.children == nil {
		return nil
	}
	out := make([]*Node[T, K], 0, len(n.order))
	for _, k := range n.order {
		if s, ok := n.children.Get(k); ok {
			out = append(out, s.View())
		}
	}
	return out
}

// Children returns the header followed by the child nodes.
func (n *Node[T, K]) Children() []view.View {
	nodes := n.Nodes()
	out := make([]view.View, 0, len(nodes)+1)
	out = append(out, n.header)
	for _, c := range nodes {
		out = append(out, c)
	}
	return out
}

// Event has no behavior of its own; view.Dispatch delivers events to the
// header and children.
func (n *Node[T, K]) Event(view.Event) bool { return false }

// Layout lays out the header and children and lets l place them.
func (n *Node[T, K]) Layout(l view.Layouter) view.Box {
	kids := n.Children()
	boxes := make([]view.Box, len(kids))
	for i, c := range kids {
		boxes[i] = c.Layout(l)
	}
	return l.ComputeLayout(n, boxes)
}

// Paint paints the header and then each child.
func (n *Node[T, K]) Paint(p view.Painter) {
	for _, c := range n.Children() {
		c.Paint(p)
	}
}

// Update applies a patch produced by the node's effect. Other payloads are
// forwarded to the header view.
func (n *Node[T, K]) Update(patch any) view.ChangeFlags {
	switch p := patch.(type) {
	case childPatch[T, K]:
		if n.kind != KindBranch {
			return 0
		}
		return n.applyChildren(p)
	default:
		return n.header.Update(patch)
	}
}

func (n *Node[T, K]) applyChildren(p childPatch[T, K]) view.ChangeFlags {
	defer metrics.Timer(metrics.PatchApply)()

	script, err := n.diff(p.keys)
	if err != nil {
		n.r.fail(n, err)
		return 0
	}

	var flags view.ChangeFlags
	var created []K
	keep := make(slot.Set[K], len(p.keys))
	for i, key := range p.keys {
		s, isNew, err := n.children.GetOrCreate(key, p.items[i], n.buildChild)
		if err != nil {
			for _, k := range created {
				n.children.Remove(k)
			}
			n.r.fail(n, fmt.Errorf("%w: %w", ErrMissingParentIdentity, err))
			n.r.teardown(n)
			return view.ChangeLayout
		}
		keep[key] = struct{}{}
		if isNew {
			created = append(created, key)
			continue
		}
		metrics.SlotReuses.Inc()
		if s.Changed() {
			flags |= s.View().setItem(p.items[i])
		}
	}

	removed := n.children.RetainOnly(keep)
	n.r.stats.Built += uint64(len(created))
	n.r.stats.Removed += uint64(removed)
	metrics.SlotBuilds.Add(len(created))
	metrics.SlotRemovals.Add(removed)
	metrics.Moves.Add(script.Moves())

	if script.StructureChanged() {
		flags |= view.ChangeLayout
	}
	n.order = p.keys
	n.err = nil
	return flags
}

func (n *Node[T, K]) diff(keys []K) (keyed.Script, error) {
	defer metrics.Timer(metrics.KeyedDiff)()
	return keyed.Diff(n.order, keys)
}

func (n *Node[T, K]) buildChild(id identity.ID, item T) *Node[T, K] {
	return n.r.newNode(id, n.id, item)
}

// setItem refreshes a reused node whose item changed.
func (n *Node[T, K]) setItem(item T) view.ChangeFlags {
	var flags view.ChangeFlags
	switch branch := n.r.cfg.HasChildren(item); {
	case branch && n.kind == KindLeaf:
		n.makeBranch()
		flags |= view.ChangeLayout
	case !branch && n.kind == KindBranch:
		n.makeLeaf()
		flags |= view.ChangeLayout
	}

	if upd := n.r.cfg.UpdateView; upd != nil {
		flags |= upd(n.header, item)
	} else {
		if d, ok := n.header.(slot.Disposer); ok {
			d.Dispose()
		}
		n.header = n.r.cfg.View(n.context(), item)
		n.r.stats.HeaderRebuilds++
		flags |= view.ChangePaint
	}

	// Reruns the branch effect, if any, on this flush.
	n.item.Set(item)
	return flags
}

// Dispose tears the subtree down. The slot cache releases the identity.
func (n *Node[T, K]) Dispose() {
	if n.disposed {
		return
	}
	n.disposed = true
	n.makeLeaf()
	if d, ok := n.header.(slot.Disposer); ok {
		d.Dispose()
	}
	delete(n.r.nodes, n.id)
}

// String describes the node for debug output.
func (n *Node[T, K]) String() string {
	return fmt.Sprintf("%s %s key=%v", n.r.describe(n), n.kind, n.key)
}
