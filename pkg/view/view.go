// Package view defines the contract between tree nodes and the host that lays
// them out, paints them and routes events to them.
package view

import (
	"fmt"
	"strings"

	"github.com/vanderheijden86/viewtree/pkg/identity"
	"github.com/vanderheijden86/viewtree/pkg/reactive"
	"github.com/vanderheijden86/viewtree/pkg/sched"
)

// ChangeFlags tell the host what an update invalidated.
type ChangeFlags uint8

const (
	// ChangeLayout means the set or order of children changed.
	ChangeLayout ChangeFlags = 1 << iota
	// ChangePaint means only content changed; geometry is unaffected.
	ChangePaint
)

// Has reports whether all bits of g are set.
func (f ChangeFlags) Has(g ChangeFlags) bool { return f&g == g && g != 0 }

// IsZero reports whether nothing changed.
func (f ChangeFlags) IsZero() bool { return f == 0 }

func (f ChangeFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f&ChangeLayout != 0 {
		parts = append(parts, "layout")
	}
	if f&ChangePaint != 0 {
		parts = append(parts, "paint")
	}
	return strings.Join(parts, "|")
}

// Box is a laid out rectangle in host units.
type Box struct {
	X, Y, W, H float64
}

// Bottom returns Y+H.
func (b Box) Bottom() float64 { return b.Y + b.H }

// Union returns the smallest box containing both.
func (b Box) Union(o Box) Box {
	if b.W == 0 && b.H == 0 {
		return o
	}
	if o.W == 0 && o.H == 0 {
		return b
	}
	x0, y0 := min(b.X, o.X), min(b.Y, o.Y)
	x1, y1 := max(b.X+b.W, o.X+o.W), max(b.Bottom(), o.Bottom())
	return Box{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

func (b Box) String() string {
	return fmt.Sprintf("(%g,%g %gx%g)", b.X, b.Y, b.W, b.H)
}

// Event is delivered along a path of identities from the root. An empty Path
// is a broadcast.
type Event struct {
	Name string
	Path []identity.ID
	Data any
}

// Targets reports whether the event should be delivered to id.
func (ev Event) Targets(id identity.ID) bool {
	if len(ev.Path) == 0 {
		return true
	}
	for _, p := range ev.Path {
		if p == id {
			return true
		}
	}
	return false
}

// IsTarget reports whether id is the last identity on the path.
func (ev Event) IsTarget(id identity.ID) bool {
	return len(ev.Path) > 0 && ev.Path[len(ev.Path)-1] == id
}

// Layouter computes a view's box from its children's boxes.
type Layouter interface {
	ComputeLayout(v View, children []Box) Box
}

// Painter draws a single view. Painters do not recurse; views call Paint on
// their children.
type Painter interface {
	Paint(v View)
}

// View is a node in the retained tree.
type View interface {
	ID() identity.ID
	Children() []View
	// Event handles ev and reports whether it was consumed.
	Event(ev Event) bool
	Layout(l Layouter) Box
	Paint(p Painter)
	// Update applies a patch produced by an earlier computation.
	Update(patch any) ChangeFlags
}

// Context is handed to view builders. Scope allocates identities below the
// view being built.
type Context struct {
	Scope   identity.Scope
	Runtime *reactive.Runtime
	Queue   *sched.Queue
}

// ID returns the identity of the view being built.
func (cx Context) ID() identity.ID { return cx.Scope.ID() }

// WithScope returns a copy of cx scoped to parent.
func (cx Context) WithScope(parent identity.ID) Context {
	cx.Scope = cx.Scope.Child(parent)
	return cx
}

// Walk visits v and its descendants depth first. Returning false from fn
// skips the children of that view.
func Walk(v View, fn func(v View, depth int) bool) {
	walk(v, 0, fn)
}

func walk(v View, depth int, fn func(View, int) bool) {
	if !fn(v, depth) {
		return
	}
	for _, c := range v.Children() {
		walk(c, depth+1, fn)
	}
}

// Find returns the view with the given identity below root.
func Find(root View, id identity.ID) View {
	var found View
	Walk(root, func(v View, _ int) bool {
		if found != nil {
			return false
		}
		if v.ID() == id {
			found = v
			return false
		}
		return true
	})
	return found
}

// Count returns the number of views in the subtree rooted at v.
func Count(v View) int {
	n := 0
	Walk(v, func(View, int) bool { n++; return true })
	return n
}

// Dispatch delivers ev depth first to every targeted view until one consumes
// it.
func Dispatch(v View, ev Event) bool {
	if !ev.Targets(v.ID()) {
		return false
	}
	for _, c := range v.Children() {
		if Dispatch(c, ev) {
			return true
		}
	}
	return v.Event(ev)
}
