package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/infblueocean/newsmap/internal/feed"
	"github.com/infblueocean/newsmap/internal/ingest"
	"github.com/infblueocean/newsmap/internal/otel"
	"github.com/infblueocean/newsmap/internal/store"
)

// eventsInterval is how often the event panel redraws.
const eventsInterval = time.Second

// SourceState is a source's outcome in the current or last pass.
type SourceState int

const (
	StatePending SourceState = iota
	StateOK
	StateFailed
)

// SourceRow is one line of the source status panel.
type SourceRow struct {
	Name  string
	State SourceState
	Count int
	Err   string
}

// App is the root Bubble Tea model.
// App does not hold *store.Store. It receives articles via messages.
type App struct {
	loadArticles   func() tea.Cmd
	triggerRefresh func() tea.Cmd
	ring           *otel.RingBuffer

	spinner    spinner.Model
	table      table.Model
	articles   []feed.RawArticle
	sources    []SourceRow
	showEvents bool

	lastRun    RefreshComplete
	haveRun    bool
	err        error
	width      int
	height     int
	ready      bool
	refreshing bool
}

// NewApp creates a new App with the given command functions.
// loadArticles: returns a Cmd that reads articles and statuses from the store
// triggerRefresh: returns a Cmd that asks the coordinator for a new pass
// ring: optional event buffer shown in the events panel
func NewApp(loadArticles func() tea.Cmd, triggerRefresh func() tea.Cmd, ring *otel.RingBuffer) App {
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = SourcePending

	t := table.New(
		table.WithColumns(articleColumns(80)),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	ts := table.DefaultStyles()
	ts.Header = ts.Header.Bold(true).Foreground(colorHighlight)
	ts.Selected = ts.Selected.Foreground(lipgloss.Color("255")).Background(colorPrimary)
	t.SetStyles(ts)

	return App{
		loadArticles:   loadArticles,
		triggerRefresh: triggerRefresh,
		ring:           ring,
		spinner:        s,
		table:          t,
	}
}

// Init loads stored articles and starts the spinner.
func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.spinner.Tick}
	if a.loadArticles != nil {
		cmds = append(cmds, a.loadArticles())
	}
	if a.ring != nil {
		cmds = append(cmds, eventsTick())
	}
	return tea.Batch(cmds...)
}

func eventsTick() tea.Cmd {
	return tea.Tick(eventsInterval, func(time.Time) tea.Msg { return EventsTick{} })
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.layout()
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case EventsTick:
		if a.ring == nil {
			return a, nil
		}
		return a, eventsTick()

	case RefreshStarted:
		a.refreshing = true
		a.sources = pendingSources(msg.Sources)
		a.layout()
		return a, nil

	case SourceProcessed:
		a.applyResult(msg.Result)
		return a, nil

	case RefreshComplete:
		a.refreshing = false
		a.lastRun = msg
		a.haveRun = true
		if msg.Err != nil {
			a.err = msg.Err
		}
		if a.loadArticles != nil {
			return a, a.loadArticles()
		}
		return a, nil

	case ArticlesLoaded:
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		a.articles = msg.Articles
		a.table.SetRows(articleRows(a.articles))
		if len(a.sources) == 0 {
			a.sources = sourcesFromStatuses(msg.Statuses)
			a.layout()
		}
		return a, nil
	}

	return a, nil
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.err != nil {
		a.err = nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "r":
		if a.triggerRefresh == nil || a.refreshing {
			return a, nil
		}
		a.refreshing = true
		return a, a.triggerRefresh()

	case "e":
		a.showEvents = !a.showEvents
		a.layout()
		return a, nil
	}

	var cmd tea.Cmd
	a.table, cmd = a.table.Update(msg)
	return a, cmd
}

func (a *App) applyResult(r ingest.SourceResult) {
	row := SourceRow{Name: r.Source.Name, State: StateOK, Count: len(r.Articles)}
	if r.Err != nil {
		row.State = StateFailed
		row.Count = 0
		row.Err = r.ErrorMessage()
	}
	for i := range a.sources {
		if a.sources[i].Name == row.Name {
			a.sources[i] = row
			return
		}
	}
	a.sources = append(a.sources, row)
}

// pendingSources returns one pending row per source in the new pass.
func pendingSources(srcs []feed.Source) []SourceRow {
	rows := make([]SourceRow, 0, len(srcs))
	for _, s := range srcs {
		rows = append(rows, SourceRow{Name: s.Name, State: StatePending})
	}
	return rows
}

func sourcesFromStatuses(statuses []store.SourceStatus) []SourceRow {
	rows := make([]SourceRow, 0, len(statuses))
	for _, st := range statuses {
		row := SourceRow{Name: st.Name, State: StateOK, Count: st.ArticleCount}
		if st.LastError != "" {
			row.State = StateFailed
			row.Err = st.LastError
		}
		rows = append(rows, row)
	}
	return rows
}

func articleColumns(width int) []table.Column {
	title := width - 12 - 16 - 3 - 8
	if title < 20 {
		title = 20
	}
	return []table.Column{
		{Title: "Date", Width: 12},
		{Title: "Source", Width: 16},
		{Title: "Title", Width: title},
		{Title: "✓", Width: 3},
	}
}

func articleRows(articles []feed.RawArticle) []table.Row {
	rows := make([]table.Row, len(articles))
	for i, art := range articles {
		mark := ""
		if art.FullText != "" {
			mark = "✓"
		}
		rows[i] = table.Row{art.PubDate, art.Source, art.Title, mark}
	}
	return rows
}

// layout sizes the table to the space left by the other panels.
func (a *App) layout() {
	if !a.ready {
		return
	}
	h := a.height - 2 - a.sourcePanelHeight() - 1
	if a.showEvents {
		h -= a.height / 3
	}
	if h < 3 {
		h = 3
	}
	a.table.SetColumns(articleColumns(a.width))
	a.table.SetWidth(a.width)
	a.table.SetHeight(h)
}

func (a App) sourcePanelHeight() int {
	return len(a.sources) + 1
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(Header.Render("newsmap"))
	b.WriteString("\n")
	b.WriteString(a.renderSources())
	b.WriteString(a.table.View())
	b.WriteString("\n")

	if a.showEvents {
		b.WriteString(eventsPanel(a.ring, a.width, a.height/3))
		b.WriteString("\n")
	}
	if a.err != nil {
		b.WriteString(ErrorStyle.Render("Error: " + a.err.Error() + " (press any key to dismiss)"))
		b.WriteString("\n")
	}
	b.WriteString(a.renderStatusBar())
	return b.String()
}

func (a App) renderSources() string {
	var b strings.Builder
	b.WriteString(SectionTitle.Render("Sources"))
	b.WriteString("\n")
	for _, s := range a.sources {
		var mark string
		switch s.State {
		case StatePending:
			mark = SourcePending.Render(a.spinner.View())
			if !a.refreshing {
				mark = SourcePending.Render("·")
			}
		case StateOK:
			mark = SourceOK.Render("✓")
		case StateFailed:
			mark = SourceFailed.Render("✗")
		}
		line := fmt.Sprintf(" %s %s %s", mark, SourceName.Render(truncateRunes(s.Name, 28)),
			MetaText.Render(fmt.Sprintf("(%d)", s.Count)))
		if s.Err != "" {
			line += " " + SourceFailed.Render(truncateRunes(s.Err, max(a.width-40, 20)))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (a App) renderStatusBar() string {
	left := fmt.Sprintf("%d articles", len(a.articles))
	switch {
	case a.refreshing:
		left = a.spinner.View() + " refreshing · " + left
	case a.haveRun:
		left += fmt.Sprintf(" · last pass %d new, %d analyzed", a.lastRun.New, a.lastRun.Analyzed)
	}
	keys := StatusBarKey.Render("r") + StatusBarText.Render(" refresh  ") +
		StatusBarKey.Render("e") + StatusBarText.Render(" events  ") +
		StatusBarKey.Render("↑/↓") + StatusBarText.Render(" move  ") +
		StatusBarKey.Render("q") + StatusBarText.Render(" quit")
	return StatusBar.Width(a.width).Render(left + "  " + keys)
}

// Articles returns the current articles (for testing).
func (a App) Articles() []feed.RawArticle {
	return a.articles
}

// Sources returns the source status rows (for testing).
func (a App) Sources() []SourceRow {
	return a.sources
}

// Cursor returns the selected table row (for testing).
func (a App) Cursor() int {
	return a.table.Cursor()
}

// Refreshing reports whether a pass is in progress (for testing).
func (a App) Refreshing() bool {
	return a.refreshing
}

// EventsVisible reports whether the events panel is shown (for testing).
func (a App) EventsVisible() bool {
	return a.showEvents
}
