package view

// Stack lays views out top to bottom. A view without children is one row.
// A view with children is treated as a header (its first child) followed by
// the remaining children indented one level.
type Stack struct {
	RowHeight float64
	Indent    float64
	Width     float64

	// Boxes holds the last computed box per view, in absolute coordinates
	// once the root has been laid out.
	Boxes map[View]Box
}

// NewStack returns a stack layout with one unit rows.
func NewStack(width float64) *Stack {
	return &Stack{RowHeight: 1, Indent: 2, Width: width, Boxes: make(map[View]Box)}
}

// ComputeLayout places v's children, whose boxes arrive relative to their
// own origin, and returns v's box.
func (s *Stack) ComputeLayout(v View, children []Box) Box {
	kids := v.Children()
	if len(children) == 0 {
		box := Box{W: s.Width, H: s.RowHeight}
		s.Boxes[v] = box
		return box
	}

	var box Box
	y := 0.0
	for i, cb := range children {
		x := s.Indent
		if i == 0 {
			x = 0
		}
		if i < len(kids) {
			s.translate(kids[i], x, y)
		}
		box = box.Union(Box{X: x, Y: y, W: cb.W, H: cb.H})
		y += cb.H
	}
	s.Boxes[v] = box
	return box
}

func (s *Stack) translate(v View, dx, dy float64) {
	Walk(v, func(c View, _ int) bool {
		b := s.Boxes[c]
		b.X += dx
		b.Y += dy
		s.Boxes[c] = b
		return true
	})
}

// Reset forgets all boxes.
func (s *Stack) Reset() {
	clear(s.Boxes)
}
