// Package export paints a reconciled view tree to static SVG or PNG
// snapshots.
package export

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"git.sr.ht/~sbinet/gg"
	svg "github.com/ajstarks/svgo"
	"github.com/mattn/go-runewidth"
	"golang.org/x/image/font/basicfont"

	"github.com/vanderheijden86/viewtree/pkg/metrics"
	"github.com/vanderheijden86/viewtree/pkg/view"
)

// Texter is implemented by views that paint a line of text.
type Texter interface {
	Text() string
}

// Options controls snapshot export.
type Options struct {
	Path   string // Output path; format inferred from extension when Format is empty
	Format string // "svg" or "png" (case-insensitive)
	Title  string // Optional title above the rows

	// FirstRow and Rows select a window of layout rows. Rows == 0 paints
	// everything from FirstRow on.
	FirstRow int
	Rows     int

	CharWidth float64 // pixels per layout column, default 8
	RowHeight float64 // pixels per layout row, default 20
	Indent    float64 // layout columns per nesting level, default 2
}

const pad = 12.0

var (
	colorText     = color.RGBA{0x11, 0x11, 0x11, 0xff}
	colorBackdrop = color.RGBA{0xf9, 0xfa, 0xfb, 0xff}
	colorHeaderBG = color.RGBA{0xf3, 0xf4, 0xf6, 0xff}
	colorGuide    = color.RGBA{0xd0, 0xd4, 0xdb, 0xff}
)

// Save lays root out and writes it to opts.Path.
func Save(root view.View, opts Options) error {
	if root == nil {
		return fmt.Errorf("nothing to export")
	}
	if opts.Path == "" {
		return fmt.Errorf("output path is required")
	}
	format, err := resolveFormat(opts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	var buf bytes.Buffer
	switch format {
	case "svg":
		err = RenderSVG(&buf, root, opts)
	case "png":
		err = RenderPNG(&buf, root, opts)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(opts.Path, buf.Bytes(), 0o644)
}

func resolveFormat(opts Options) (string, error) {
	format := strings.ToLower(strings.TrimPrefix(opts.Format, "."))
	if format == "" {
		format = strings.ToLower(strings.TrimPrefix(filepath.Ext(opts.Path), "."))
	}
	switch format {
	case "svg", "png":
		return format, nil
	case "":
		return "svg", nil
	default:
		return "", fmt.Errorf("unsupported format %q (want svg or png)", format)
	}
}

// op is one painted line.
type op struct {
	text string
	x, y float64 // pixels
	w    float64
}

type sheet struct {
	ops    []op
	width  int
	height int
	header float64
	title  string
}

// collector is the view.Painter that records what views paint, in order.
type collector struct {
	views []view.View
}

func (c *collector) Paint(v view.View) { c.views = append(c.views, v) }

// layout positions every painted view and converts layout units to pixels.
func layout(root view.View, opts Options) sheet {
	defer metrics.Timer(metrics.Paint)()

	cw, rh := opts.CharWidth, opts.RowHeight
	if cw <= 0 {
		cw = 8
	}
	if rh <= 0 {
		rh = 20
	}
	stack := view.NewStack(1)
	if opts.Indent > 0 {
		stack.Indent = opts.Indent
	}
	root.Layout(stack)

	var c collector
	root.Paint(&c)

	s := sheet{header: pad, title: opts.Title}
	if opts.Title != "" {
		s.header = pad + 2*rh
	}
	first := float64(opts.FirstRow)
	last := first + float64(opts.Rows)
	maxX, rows := 0.0, 0
	for _, v := range c.views {
		t, ok := v.(Texter)
		if !ok {
			continue
		}
		box := stack.Boxes[v]
		if box.Y < first || (opts.Rows > 0 && box.Y >= last) {
			continue
		}
		o := op{
			text: t.Text(),
			x:    pad + box.X*cw,
			y:    s.header + (box.Y-first)*rh,
		}
		o.w = float64(runewidth.StringWidth(o.text)) * cw
		s.ops = append(s.ops, o)
		maxX = max(maxX, o.x+o.w)
		rows = max(rows, int(box.Y-first)+1)
	}
	if opts.Title != "" {
		maxX = max(maxX, pad+float64(runewidth.StringWidth(opts.Title))*cw)
	}
	s.width = int(maxX + pad)
	s.height = int(s.header + float64(rows)*rh + pad)
	return s
}

// RenderSVG writes an SVG snapshot of root to w.
func RenderSVG(w io.Writer, root view.View, opts Options) error {
	s := layout(root, opts)
	rh := opts.RowHeight
	if rh <= 0 {
		rh = 20
	}

	canvas := svg.New(w)
	canvas.Start(s.width, s.height)
	canvas.Rect(0, 0, s.width, s.height, fmt.Sprintf("fill:%s", css(colorBackdrop)))
	if s.title != "" {
		canvas.Rect(0, 0, s.width, int(s.header-pad/2), fmt.Sprintf("fill:%s", css(colorHeaderBG)))
		canvas.Text(int(pad), int(pad+rh), s.title,
			fmt.Sprintf("fill:%s;font-size:14px;font-family:monospace;font-weight:bold", css(colorText)))
	}
	for _, o := range s.ops {
		if o.x > pad {
			canvas.Line(int(o.x-6), int(o.y), int(o.x-6), int(o.y+rh),
				fmt.Sprintf("stroke:%s;stroke-width:1", css(colorGuide)))
		}
		canvas.Text(int(o.x), int(o.y+rh*0.7), o.text,
			fmt.Sprintf("fill:%s;font-size:13px;font-family:monospace", css(colorText)))
	}
	canvas.End()
	return nil
}

// RenderPNG writes a PNG snapshot of root to w.
func RenderPNG(w io.Writer, root view.View, opts Options) error {
	s := layout(root, opts)
	rh := opts.RowHeight
	if rh <= 0 {
		rh = 20
	}

	dc := gg.NewContext(max(s.width, 1), max(s.height, 1))
	dc.SetColor(colorBackdrop)
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)
	if s.title != "" {
		dc.SetColor(colorHeaderBG)
		dc.DrawRectangle(0, 0, float64(s.width), s.header-pad/2)
		dc.Fill()
		dc.SetColor(colorText)
		dc.DrawStringAnchored(s.title, pad, pad+rh/2, 0, 0.5)
	}
	for _, o := range s.ops {
		if o.x > pad {
			dc.SetColor(colorGuide)
			dc.SetLineWidth(1)
			dc.DrawLine(o.x-6, o.y, o.x-6, o.y+rh)
			dc.Stroke()
		}
		dc.SetColor(colorText)
		dc.DrawStringAnchored(o.text, o.x, o.y+rh/2, 0, 0.5)
	}
	return png.Encode(w, dc.Image())
}

func css(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Lines renders the painted text as indented plain text, one row per line.
func Lines(root view.View, opts Options) []string {
	s := layout(root, Options{FirstRow: opts.FirstRow, Rows: opts.Rows, CharWidth: 1, RowHeight: 1, Indent: opts.Indent})
	out := make([]string, 0, len(s.ops))
	for _, o := range s.ops {
		out = append(out, strings.Repeat(" ", int(o.x-pad))+o.text)
	}
	return out
}
