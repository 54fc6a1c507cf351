package tui

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/mcdonaldj/sitebak/internal/ports"
	"github.com/mcdonaldj/sitebak/internal/views"
)

// View represents the current view state
type View int

const (
	ListView     View = iota
	DetailsView       // Attributes and contents of one archive
	CompareView       // Changed files between two archives
	FileDiffView      // Line diff of one changed file
)

// Model is the main TUI model
type Model struct {
	svc      ports.TUIService
	ctx      context.Context
	view     View
	width    int
	height   int
	quitting bool

	// List view
	rows   []ports.TUIArchiveRow
	counts []ports.TUICount
	cursor int
	marked []string // Archives selected for comparison, oldest first

	// Details view
	details       ports.TUIDetails
	dir           string
	detailsCursor int

	// Compare view
	comparison    ports.TUIComparison
	compareCursor int

	// File diff view
	fileDiff       ports.TUIFileDiff
	fileDiffScroll int

	// Status message
	statusMsg string
	statusErr bool
}

// Key bindings
type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Enter   key.Binding
	Back    key.Binding
	Run     key.Binding
	Protect key.Binding
	Mark    key.Binding
	Compare key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "open"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc", "backspace"),
		key.WithHelp("esc", "back"),
	),
	Run: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "run backup"),
	),
	Protect: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "protect"),
	),
	Mark: key.NewBinding(
		key.WithKeys(" ", "tab"),
		key.WithHelp("space", "mark"),
	),
	Compare: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "compare"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("u"),
		key.WithHelp("u", "refresh"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// NewModel creates a model over svc and loads the archive list.
func NewModel(ctx context.Context, svc ports.TUIService) (*Model, error) {
	m := newModel(ctx, svc)
	if err := m.loadArchives(); err != nil {
		return nil, err
	}
	return m, nil
}

func newModel(ctx context.Context, svc ports.TUIService) *Model {
	return &Model{svc: svc, ctx: ctx, view: ListView}
}

func (m *Model) loadArchives() error {
	rows, counts, err := m.svc.ListArchives(m.ctx)
	if err != nil {
		return fmt.Errorf("listing archives: %w", err)
	}
	m.rows, m.counts = rows, counts
	if m.cursor >= len(m.rows) {
		m.cursor = max(len(m.rows)-1, 0)
	}
	return nil
}

func (m *Model) selected() (ports.TUIArchiveRow, bool) {
	if len(m.rows) == 0 {
		return ports.TUIArchiveRow{}, false
	}
	return m.rows[m.cursor], true
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return nil
}

type statusMsg struct {
	msg string
	err bool
}

type detailsMsg struct {
	details ports.TUIDetails
	dir     string
	err     error
}

type compareMsg struct {
	comparison ports.TUIComparison
	err        error
}

type fileDiffMsg struct {
	diff ports.TUIFileDiff
	err  error
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case statusMsg:
		m.statusMsg = msg.msg
		m.statusErr = msg.err
		// Reload data to reflect changes
		if err := m.loadArchives(); err != nil {
			m.statusMsg, m.statusErr = err.Error(), true
		}
		return m, nil

	case detailsMsg:
		if msg.err != nil {
			m.statusMsg, m.statusErr = fmt.Sprintf("Error: %v", msg.err), true
			return m, nil
		}
		m.details = msg.details
		m.dir = msg.dir
		m.detailsCursor = 0
		m.view = DetailsView
		return m, nil

	case compareMsg:
		m.marked = nil
		if msg.err != nil {
			m.statusMsg, m.statusErr = fmt.Sprintf("Compare failed: %v", msg.err), true
			return m, nil
		}
		m.comparison = msg.comparison
		m.compareCursor = 0
		m.view = CompareView
		return m, nil

	case fileDiffMsg:
		if msg.err != nil {
			m.statusMsg, m.statusErr = fmt.Sprintf("Diff failed: %v", msg.err), true
			return m, nil
		}
		m.fileDiff = msg.diff
		m.fileDiffScroll = 0
		m.view = FileDiffView
		return m, nil

	case tea.KeyMsg:
		// Clear status on any key
		m.statusMsg = ""
		m.statusErr = false
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, keys.Up):
		m.moveCursor(-1)

	case key.Matches(msg, keys.Down):
		m.moveCursor(1)

	case key.Matches(msg, keys.Enter):
		return m, m.open()

	case key.Matches(msg, keys.Back):
		m.back()

	case key.Matches(msg, keys.Run):
		if m.view == ListView {
			return m, m.runBackup()
		}

	case key.Matches(msg, keys.Protect):
		if m.view == ListView {
			return m, m.toggleProtect()
		}

	case key.Matches(msg, keys.Mark):
		if m.view == ListView {
			m.toggleMark()
		}

	case key.Matches(msg, keys.Compare):
		if m.view == ListView {
			return m, m.runCompare()
		}

	case key.Matches(msg, keys.Refresh):
		if m.view == ListView {
			if err := m.loadArchives(); err != nil {
				m.statusMsg, m.statusErr = err.Error(), true
			}
		}
	}
	return m, nil
}

func (m *Model) moveCursor(delta int) {
	clamp := func(v, n int) int {
		return max(0, min(v, n-1))
	}
	switch m.view {
	case ListView:
		m.cursor = clamp(m.cursor+delta, len(m.rows))
	case DetailsView:
		m.detailsCursor = clamp(m.detailsCursor+delta, len(m.details.Entries))
	case CompareView:
		m.compareCursor = clamp(m.compareCursor+delta, len(m.comparison.Changes))
	case FileDiffView:
		maxScroll := max(len(m.fileDiff.Lines)-m.visibleHeight(), 0)
		m.fileDiffScroll = max(0, min(m.fileDiffScroll+delta, maxScroll))
	}
}

// open drills into the item under the cursor.
func (m *Model) open() tea.Cmd {
	switch m.view {
	case ListView:
		row, ok := m.selected()
		if !ok {
			return nil
		}
		return m.loadDetails(row.Filename, "")
	case DetailsView:
		if len(m.details.Entries) == 0 {
			return nil
		}
		e := m.details.Entries[m.detailsCursor]
		if !e.IsDir {
			return nil
		}
		return m.loadDetails(m.details.Filename, e.Name)
	case CompareView:
		if len(m.comparison.Changes) == 0 {
			return nil
		}
		c := m.comparison.Changes[m.compareCursor]
		old, cur := m.comparison.Old, m.comparison.New
		return func() tea.Msg {
			d, err := m.svc.CompareFile(m.ctx, old, cur, c.Path)
			return fileDiffMsg{diff: d, err: err}
		}
	}
	return nil
}

func (m *Model) back() {
	switch m.view {
	case DetailsView:
		if m.dir != "" {
			parent := path.Dir(m.dir)
			if parent == "." {
				parent = ""
			}
			d, err := m.svc.Details(m.ctx, m.details.Filename, parent)
			if err == nil {
				m.details, m.dir, m.detailsCursor = d, parent, 0
				return
			}
		}
		m.view = ListView
		m.details = ports.TUIDetails{}
		m.dir = ""
	case CompareView:
		m.view = ListView
		m.comparison = ports.TUIComparison{}
	case FileDiffView:
		m.view = CompareView
		m.fileDiff = ports.TUIFileDiff{}
	}
}

func (m *Model) loadDetails(filename, dir string) tea.Cmd {
	return func() tea.Msg {
		d, err := m.svc.Details(m.ctx, filename, dir)
		return detailsMsg{details: d, dir: dir, err: err}
	}
}

func (m *Model) runBackup() tea.Cmd {
	return func() tea.Msg {
		name, err := m.svc.RunBackup(m.ctx)
		if err != nil {
			return statusMsg{err: true, msg: fmt.Sprintf("Backup failed: %v", err)}
		}
		return statusMsg{msg: fmt.Sprintf("✓ Created %s", name)}
	}
}

func (m *Model) toggleProtect() tea.Cmd {
	row, ok := m.selected()
	if !ok {
		return nil
	}
	return func() tea.Msg {
		if err := m.svc.SetProtected(m.ctx, row.Filename, !row.Protected); err != nil {
			return statusMsg{err: true, msg: fmt.Sprintf("Protect failed: %v", err)}
		}
		if row.Protected {
			return statusMsg{msg: fmt.Sprintf("%s is no longer protected", row.Filename)}
		}
		return statusMsg{msg: fmt.Sprintf("✓ %s protected from retention", row.Filename)}
	}
}

// toggleMark marks the archive under the cursor for comparison. At most two
// archives are marked; marking a third drops the first.
func (m *Model) toggleMark() {
	row, ok := m.selected()
	if !ok {
		return
	}
	for i, name := range m.marked {
		if name == row.Filename {
			m.marked = append(m.marked[:i], m.marked[i+1:]...)
			return
		}
	}
	m.marked = append(m.marked, row.Filename)
	if len(m.marked) > 2 {
		m.marked = m.marked[1:]
	}
}

func (m *Model) isMarked(filename string) bool {
	for _, name := range m.marked {
		if name == filename {
			return true
		}
	}
	return false
}

// runCompare compares the two marked archives, older first. Rows are
// listed newest first.
func (m *Model) runCompare() tea.Cmd {
	if len(m.marked) != 2 {
		m.statusMsg = "Mark two archives to compare (space to mark)"
		return nil
	}
	old, cur := m.marked[0], m.marked[1]
	if m.rowIndex(old) < m.rowIndex(cur) {
		old, cur = cur, old
	}
	return func() tea.Msg {
		c, err := m.svc.Compare(m.ctx, old, cur)
		return compareMsg{comparison: c, err: err}
	}
}

func (m *Model) rowIndex(filename string) int {
	for i, r := range m.rows {
		if r.Filename == filename {
			return i
		}
	}
	return -1
}

func (m *Model) visibleHeight() int {
	return max(m.height-10, 5)
}

// View renders the UI
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.view {
	case ListView:
		content = m.renderListView()
	case DetailsView:
		content = m.renderDetailsView()
	case CompareView:
		content = m.renderCompareView()
	case FileDiffView:
		content = m.renderFileDiffView()
	}

	return appStyle.Render(content)
}

func (m *Model) renderListView() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(" 📦 sitebak "))
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render(m.countSummary()))
	b.WriteString("\n\n")

	if len(m.rows) == 0 {
		b.WriteString(dimStyle.Render("  " + views.EmptyMessage))
		b.WriteString("\n")
	} else {
		header := fmt.Sprintf("    %-34s %-22s %10s  %s", "TITLE", "DATE", "SIZE", "LOCATIONS")
		b.WriteString(dimStyle.Render(header))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(strings.Repeat("─", 90)))
		b.WriteString("\n")

		height := m.visibleHeight()
		start := 0
		if m.cursor >= height {
			start = m.cursor - height + 1
		}
		for i := start; i < len(m.rows) && i < start+height; i++ {
			r := m.rows[i]
			cursor := "  "
			style := normalStyle
			if i == m.cursor {
				cursor = "▸ "
				style = selectedStyle
			}
			mark := " "
			if m.isMarked(r.Filename) {
				mark = markStyle.Render("●")
			}
			line := fmt.Sprintf(" %-34s %-22s %10s  ", truncate(r.Title, 34), truncate(r.Date, 22), r.Size)
			b.WriteString(style.Render(cursor) + mark + style.Render(line))
			if before, after, ok := strings.Cut(r.Locations, views.LockMarker); ok {
				b.WriteString(style.Render(before) + lockStyle.Render(views.LockMarker) + style.Render(after))
			} else {
				b.WriteString(style.Render(r.Locations))
			}
			b.WriteString("\n")
		}
	}

	m.renderStatus(&b)
	help := "[↑/↓] navigate  [enter] details  [r] backup  [p] protect  [space] mark  [d] compare  [u] refresh  [q] quit"
	b.WriteString(helpStyle.Render(help))
	return b.String()
}

func (m *Model) countSummary() string {
	parts := make([]string, 0, len(m.counts))
	for _, c := range m.counts {
		parts = append(parts, fmt.Sprintf("%s (%d)", c.Title, c.Count))
	}
	return strings.Join(parts, " | ")
}

func (m *Model) renderDetailsView() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf(" 📦 %s ", m.details.Filename)))
	b.WriteString("\n\n")

	b.WriteString("  " + attrKeyStyle.Render("compressor") + normalStyle.Render(m.details.Compressor))
	b.WriteString("\n")
	for _, a := range m.details.Attributes {
		if a.Key == "compressor" {
			continue
		}
		b.WriteString("  " + attrKeyStyle.Render(a.Key) + normalStyle.Render(truncate(a.Value, 70)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	location := "/"
	if m.dir != "" {
		location = "/" + m.dir
	}
	b.WriteString(normalStyle.Render("  " + location))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(strings.Repeat("─", 60)))
	b.WriteString("\n")

	height := m.visibleHeight() - len(m.details.Attributes)
	height = max(height, 5)
	start := 0
	if m.detailsCursor >= height {
		start = m.detailsCursor - height + 1
	}
	for i := start; i < len(m.details.Entries) && i < start+height; i++ {
		e := m.details.Entries[i]
		cursor := "  "
		style := normalStyle
		if i == m.detailsCursor {
			cursor = "▸ "
			style = selectedStyle
		}
		name := path.Base(e.Name)
		size := humanize.IBytes(uint64(max(e.Size, 0)))
		if e.IsDir {
			name += "/"
			size = "-"
			if i != m.detailsCursor {
				style = dirStyle
			}
		}
		b.WriteString(style.Render(fmt.Sprintf("%s%-48s %10s", cursor, truncate(name, 48), size)))
		b.WriteString("\n")
	}

	m.renderStatus(&b)
	b.WriteString(helpStyle.Render("[↑/↓] navigate  [enter] open folder  [esc] back  [q] quit"))
	return b.String()
}

func (m *Model) renderCompareView() string {
	var b strings.Builder
	c := m.comparison

	b.WriteString(titleStyle.Render(" 📦 compare "))
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %s → %s", c.Old, c.New)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %d modified, %d added, %d deleted", c.Modified, c.Added, c.Deleted)))
	b.WriteString("\n\n")

	if len(c.Changes) == 0 {
		b.WriteString(dimStyle.Render("  No changes"))
		b.WriteString("\n")
	}

	height := m.visibleHeight()
	start := 0
	if m.compareCursor >= height {
		start = m.compareCursor - height + 1
	}
	for i := start; i < len(c.Changes) && i < start+height; i++ {
		ch := c.Changes[i]
		cursor := "  "
		if i == m.compareCursor {
			cursor = "▸ "
		}
		line := fmt.Sprintf("%s%c %s", cursor, ch.Status, truncate(ch.Path, 70))
		switch ch.Status {
		case 'A':
			b.WriteString(addedStyle.Render(line))
		case 'D':
			b.WriteString(deletedStyle.Render(line))
		default:
			if i == m.compareCursor {
				b.WriteString(selectedStyle.Render(line))
			} else {
				b.WriteString(normalStyle.Render(line))
			}
		}
		b.WriteString("\n")
	}

	m.renderStatus(&b)
	b.WriteString(helpStyle.Render("[↑/↓] navigate  [enter] show diff  [esc] back  [q] quit"))
	return b.String()
}

func (m *Model) renderFileDiffView() string {
	var b strings.Builder
	d := m.fileDiff

	b.WriteString(titleStyle.Render(fmt.Sprintf(" 📄 %s ", d.Path)))
	b.WriteString("\n\n")

	if d.IsBinary {
		b.WriteString(dimStyle.Render("  Binary file, no line diff"))
		b.WriteString("\n")
	}

	end := min(m.fileDiffScroll+m.visibleHeight(), len(d.Lines))
	for i := m.fileDiffScroll; i < end; i++ {
		l := d.Lines[i]
		num := func(n int) string {
			if n == 0 {
				return "    "
			}
			return fmt.Sprintf("%4d", n)
		}
		line := fmt.Sprintf("%s %s %c %s", num(l.Old), num(l.New), l.Type, truncate(l.Content, 100))
		switch l.Type {
		case '+':
			b.WriteString(addedStyle.Render(line))
		case '-':
			b.WriteString(deletedStyle.Render(line))
		default:
			b.WriteString(dimStyle.Render(line))
		}
		b.WriteString("\n")
	}

	m.renderStatus(&b)
	b.WriteString(helpStyle.Render("[↑/↓] scroll  [esc] back  [q] quit"))
	return b.String()
}

func (m *Model) renderStatus(b *strings.Builder) {
	b.WriteString("\n")
	if m.statusMsg != "" {
		if m.statusErr {
			b.WriteString(statusErrStyle.Render(m.statusMsg))
		} else {
			b.WriteString(statusOKStyle.Render(m.statusMsg))
		}
	}
	b.WriteString("\n")
}

// Run starts the TUI
func Run(ctx context.Context, svc ports.TUIService) error {
	m, err := NewModel(ctx, svc)
	if err != nil {
		return err
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}

// Helper functions
func truncate(s string, max int) string {
	if len([]rune(s)) <= max {
		return s
	}
	return string([]rune(s)[:max-1]) + "…"
}
