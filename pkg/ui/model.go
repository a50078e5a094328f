// Package ui provides the terminal user interface for viewtree: a reconciled
// tree flattened into a virtualized list of rows.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"github.com/vanderheijden86/viewtree/pkg/metrics"
)

// chromeRows is the header plus the footer line.
const chromeRows = 2

// Model is the bubbletea model of the tree browser.
type Model struct {
	tree   *TreeModel
	worker *BackgroundWorker
	styles Styles
	title  string

	cursor int
	width  int
	height int
	ready  bool
	loaded bool

	loadErr    error
	lastLoad   time.Duration
	showErrors bool
	errView    viewport.Model
	indent     int
}

// NewModel wraps t. worker may be nil when the tree is set directly.
func NewModel(t *TreeModel, worker *BackgroundWorker, title string) Model {
	indent := t.cfg.Indent
	if indent <= 0 {
		indent = 2
	}
	return Model{
		tree:    t,
		worker:  worker,
		styles:  DefaultStyles(),
		title:   title,
		errView: viewport.New(0, 0),
		indent:  indent,
	}
}

// Cursor returns the selected row index.
func (m Model) Cursor() int { return m.cursor }

// Tree returns the underlying tree view.
func (m Model) Tree() *TreeModel { return m.tree }

func (m Model) Init() tea.Cmd {
	if m.worker == nil {
		return nil
	}
	return tea.Batch(StartBackgroundWorkerCmd(m.worker), WaitForBackgroundWorkerMsgCmd(m.worker))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.tree.SetViewport(m.listHeight())
		m.tree.Reveal(m.cursor)
		m.errView.Width, m.errView.Height = msg.Width, m.listHeight()
		return m, nil

	case TreeLoadedMsg:
		m.lastLoad = msg.Duration
		if err := m.tree.SetRoot(msg.Root); err != nil {
			m.loadErr = err
		} else {
			m.loadErr = nil
			m.loaded = true
		}
		m.clampCursor()
		return m, WaitForBackgroundWorkerMsgCmd(m.worker)

	case TreeErrorMsg:
		if msg.Err != nil {
			m.loadErr = msg.Err
		}
		return m, WaitForBackgroundWorkerMsgCmd(m.worker)

	case tea.KeyMsg:
		if m.showErrors {
			switch msg.String() {
			case "e", "esc", "q":
				m.showErrors = false
				return m, nil
			}
			var cmd tea.Cmd
			m.errView, cmd = m.errView.Update(msg)
			return m, cmd
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	page := max(m.listHeight()-1, 1)
	switch msg.String() {
	case "q", "ctrl+c":
		if m.worker != nil {
			m.worker.Stop()
		}
		return m, tea.Quit
	case "j", "down":
		m.move(1)
	case "k", "up":
		m.move(-1)
	case "ctrl+d", "pgdown":
		m.move(page)
	case "ctrl+u", "pgup":
		m.move(-page)
	case "g", "home":
		m.move(-m.tree.Len())
	case "G", "end":
		m.move(m.tree.Len())
	case "enter", " ":
		m.setErr(m.tree.Toggle(m.cursor))
	case "l", "right":
		m.setErr(m.expand(true))
	case "h", "left":
		m.collapseOrParent()
	case "r":
		if m.worker != nil {
			m.worker.TriggerRefresh()
		}
	case "e":
		if len(m.tree.Errors()) > 0 || m.loadErr != nil {
			m.showErrors = true
			m.errView.SetContent(m.errorText())
			m.errView.GotoTop()
		}
	}
	return m, nil
}

func (m *Model) setErr(err error) {
	if err != nil {
		m.loadErr = err
	}
}

func (m *Model) expand(v bool) error {
	_, err := m.tree.SetExpanded(m.cursor, v)
	m.clampCursor()
	return err
}

// collapseOrParent collapses an expanded branch, otherwise moves to the
// parent row.
func (m *Model) collapseOrParent() {
	r, ok := m.tree.Row(m.cursor)
	if !ok {
		return
	}
	if r.Branch && r.Expanded {
		m.setErr(m.expand(false))
		return
	}
	for i := m.cursor - 1; i >= 0; i-- {
		if p, _ := m.tree.Row(i); p.Depth < r.Depth {
			m.cursor = i
			m.tree.Reveal(i)
			return
		}
	}
}

func (m *Model) move(delta int) {
	m.cursor += delta
	m.clampCursor()
}

func (m *Model) clampCursor() {
	m.cursor = min(max(m.cursor, 0), max(m.tree.Len()-1, 0))
	m.tree.Reveal(m.cursor)
}

func (m Model) listHeight() int {
	return max(m.height-chromeRows, 1)
}

func (m Model) errorText() string {
	var b strings.Builder
	if m.loadErr != nil {
		fmt.Fprintf(&b, "load: %v\n", m.loadErr)
	}
	for _, err := range m.tree.Errors() {
		fmt.Fprintf(&b, "%v\n", err)
	}
	return b.String()
}

func (m Model) View() string {
	defer metrics.Timer(metrics.UIRender)()

	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteByte('\n')

	if m.showErrors {
		b.WriteString(m.errView.View())
	} else {
		b.WriteString(m.renderRows())
	}
	b.WriteByte('\n')
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	title := m.title
	if title == "" {
		title = "viewtree"
	}
	if !m.loaded {
		return m.styles.Header.Render(title + "  loading...")
	}
	status := fmt.Sprintf("%s  %d/%d", title, min(m.cursor+1, m.tree.Len()), m.tree.Len())
	if m.lastLoad > 0 {
		status += fmt.Sprintf("  loaded in %s", m.lastLoad.Round(time.Millisecond))
	}
	return m.styles.Header.Render(runewidth.Truncate(status, m.width, "…"))
}

func (m Model) renderRows() string {
	rows := m.tree.Visible()
	lines := make([]string, 0, m.listHeight())
	for _, r := range rows {
		i, _ := m.tree.IndexOf(r.ID)
		lines = append(lines, m.renderRow(r, i == m.cursor))
	}
	for len(lines) < m.listHeight() {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderRow(r FlatRow, selected bool) string {
	glyph := "  "
	switch {
	case r.Branch && r.Expanded:
		glyph = "▾ "
	case r.Branch:
		glyph = "▸ "
	}
	prefix := strings.Repeat(" ", r.Depth*m.indent) + glyph
	title := r.Title
	if r.Failed {
		title += " !"
	}
	avail := max(m.width-runewidth.StringWidth(prefix), 1)
	title = runewidth.Truncate(title, avail, "…")

	style := m.styles.Row
	switch {
	case r.Failed:
		style = m.styles.Failed
	case r.Branch:
		style = m.styles.Branch
	}
	text := m.styles.Guide.Render(prefix) + style.Render(title)
	if selected {
		pad := max(m.width-runewidth.StringWidth(prefix+title), 0)
		text = m.styles.Selected.Render(prefix + title + strings.Repeat(" ", pad))
	}
	return text
}

func (m Model) renderFooter() string {
	n := len(m.tree.Errors())
	switch {
	case m.loadErr != nil:
		return m.styles.Banner.Render(runewidth.Truncate("error: "+m.loadErr.Error(), m.width, "…"))
	case n > 0:
		msg := fmt.Sprintf("%d subtree(s) kept their last good state: %v  (e: details)", n, m.tree.Errors()[0])
		return m.styles.Banner.Render(runewidth.Truncate(msg, m.width, "…"))
	}
	return m.styles.Help.Render(runewidth.Truncate("j/k move  enter toggle  h/l collapse/expand  r reload  q quit", m.width, "…"))
}
