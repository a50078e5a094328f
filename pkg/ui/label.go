package ui

import (
	"github.com/vanderheijden86/viewtree/internal/datasource"
	"github.com/vanderheijden86/viewtree/pkg/identity"
	"github.com/vanderheijden86/viewtree/pkg/view"
)

// EventToggle asks the targeted label to flip its node's expansion.
const EventToggle = "toggle"

// Label is the header view of one tree node.
type Label struct {
	id       identity.ID
	key      string
	title    string
	hash     uint64
	onToggle func(key string)
	disposed bool
}

func newLabel(cx view.Context, it datasource.Item, onToggle func(string)) *Label {
	return &Label{id: cx.ID(), key: it.ID, title: it.Title(), hash: it.Hash, onToggle: onToggle}
}

func (l *Label) ID() identity.ID { return l.id }

// Text is what the label paints.
func (l *Label) Text() string { return l.title }

func (l *Label) Children() []view.View { return nil }

// Event handles EventToggle when the label is the event's target.
func (l *Label) Event(ev view.Event) bool {
	if ev.Name != EventToggle || !ev.IsTarget(l.id) || l.onToggle == nil {
		return false
	}
	l.onToggle(l.key)
	return true
}

func (l *Label) Layout(lay view.Layouter) view.Box { return lay.ComputeLayout(l, nil) }

func (l *Label) Paint(p view.Painter) { p.Paint(l) }

// Update takes a datasource.Item and repaints when its title changed.
func (l *Label) Update(patch any) view.ChangeFlags {
	it, ok := patch.(datasource.Item)
	if !ok || it.Hash == l.hash && it.Hash != 0 {
		return 0
	}
	l.hash = it.Hash
	if it.Title() == l.title {
		return 0
	}
	l.title = it.Title()
	return view.ChangePaint
}

func (l *Label) Dispose() { l.disposed = true }

func updateLabel(v view.View, it datasource.Item) view.ChangeFlags {
	return v.Update(it)
}
