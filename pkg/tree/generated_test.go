package tree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vanderheijden86/viewtree/internal/datasource"
	"github.com/vanderheijden86/viewtree/pkg/identity"
	"github.com/vanderheijden86/viewtree/pkg/testutil"
	"github.com/vanderheijden86/viewtree/pkg/view"
)

type itemView struct {
	id    identity.ID
	label string
}

func (v *itemView) ID() identity.ID                 { return v.id }
func (v *itemView) Children() []view.View           { return nil }
func (v *itemView) Event(view.Event) bool           { return false }
func (v *itemView) Layout(l view.Layouter) view.Box { return l.ComputeLayout(v, nil) }
func (v *itemView) Paint(p view.Painter)            { p.Paint(v) }
func (v *itemView) Update(any) view.ChangeFlags     { return 0 }

func newItemReconciler(t testing.TB) *Reconciler[datasource.Item, string] {
	t.Helper()
	r, err := New(Config[datasource.Item, string]{
		View: func(cx view.Context, it datasource.Item) view.View {
			return &itemView{id: cx.ID(), label: it.Label}
		},
		HasChildren: datasource.HasChildren,
		Children:    datasource.Children,
		Key:         datasource.Key,
		Equal:       datasource.Equal,
		UpdateView: func(v view.View, it datasource.Item) view.ChangeFlags {
			iv := v.(*itemView)
			if iv.label == it.Label {
				return 0
			}
			iv.label = it.Label
			return view.ChangePaint
		},
	})
	require.NoError(t, err)
	return r
}

// identities maps each node's key path to its identity.
func identities(root *Node[datasource.Item, string]) map[string]identity.ID {
	out := map[string]identity.ID{}
	var walk func(n *Node[datasource.Item, string], prefix string)
	walk = func(n *Node[datasource.Item, string], prefix string) {
		path := prefix + "/" + n.Key()
		out[path] = n.ID()
		for _, c := range n.Nodes() {
			walk(c, path)
		}
	}
	walk(root, "")
	return out
}

func outline(root *Node[datasource.Item, string]) string {
	var b strings.Builder
	var walk func(n *Node[datasource.Item, string], depth int)
	walk = func(n *Node[datasource.Item, string], depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(n.Key())
		b.WriteByte('\n')
		for _, c := range n.Nodes() {
			walk(c, depth+1)
		}
	}
	walk(root, 0)
	return b.String()
}

func TestShuffledTreeKeepsEveryIdentity(t *testing.T) {
	g := testutil.NewDefault()
	data := g.Tree(3, 5)
	r := newItemReconciler(t)

	root, err := r.Reconcile(data)
	require.NoError(t, err)
	require.Equal(t, data.Count(), r.Stats().Nodes)
	before := identities(root)
	built := r.Stats().Built

	shuffled := g.Shuffle(data)
	root, err = r.Reconcile(shuffled)
	require.NoError(t, err)

	require.Equal(t, testutil.Outline(shuffled), outline(root))
	require.Equal(t, before, identities(root))
	require.Equal(t, built, r.Stats().Built, "a pure reorder builds nothing")
}

func TestMutationsTrackData(t *testing.T) {
	g := testutil.New(testutil.GeneratorConfig{Seed: 11, WordLabels: true})
	data := g.Random(300)
	r := newItemReconciler(t)

	root, err := r.Reconcile(data)
	require.NoError(t, err)

	for round := 0; round < 25; round++ {
		prev := identities(root)
		data = g.Mutate(data, 5)

		root, err = r.Reconcile(data)
		require.NoError(t, err, "round %d", round)
		require.Equal(t, testutil.Outline(data), outline(root), "round %d", round)
		require.Equal(t, data.Count(), r.Stats().Nodes, "round %d", round)

		for path, id := range identities(root) {
			if old, ok := prev[path]; ok {
				require.Equal(t, old, id, "round %d: %s changed identity", round, path)
			}
		}
	}
}

func BenchmarkReconcileShuffle(b *testing.B) {
	g := testutil.NewDefault()
	data := g.Tree(3, 10)
	r := newItemReconciler(b)
	if _, err := r.Reconcile(data); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data = g.Shuffle(data)
		if _, err := r.Reconcile(data); err != nil {
			b.Fatal(err)
		}
	}
}
