package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"dtorgen/internal/buildpipeline"
)

// stageWeight is the share of a file's work finished once a stage starts.
var stageWeight = map[buildpipeline.Stage]float64{
	buildpipeline.StageLoad:     0.1,
	buildpipeline.StageLower:    0.3,
	buildpipeline.StageSimplify: 0.6,
	buildpipeline.StageVerify:   0.7,
	buildpipeline.StageCache:    0.9,
}

var stageVerb = map[buildpipeline.Stage]string{
	buildpipeline.StageLoad:     "loading",
	buildpipeline.StageLower:    "lowering",
	buildpipeline.StageSimplify: "simplifying",
	buildpipeline.StageVerify:   "verifying",
	buildpipeline.StageCache:    "caching",
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	elapsedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// fileRow is the display state of one declaration file.
type fileRow struct {
	path    string
	stage   buildpipeline.Stage
	status  buildpipeline.Status
	started time.Time
	elapsed time.Duration
	err     error
}

func (r *fileRow) finished() bool {
	switch r.status {
	case buildpipeline.StatusDone, buildpipeline.StatusCached, buildpipeline.StatusError:
		return true
	}
	return false
}

// label is the word shown in the status column.
func (r *fileRow) label() string {
	if r.status == buildpipeline.StatusWorking {
		if verb, ok := stageVerb[r.stage]; ok {
			return verb
		}
	}
	return string(r.status)
}

func (r *fileRow) style() lipgloss.Style {
	switch r.status {
	case buildpipeline.StatusDone, buildpipeline.StatusCached:
		return okStyle
	case buildpipeline.StatusError:
		return failStyle
	case buildpipeline.StatusWorking:
		return activeStyle
	default:
		return idleStyle
	}
}

type progressModel struct {
	title   string
	events  <-chan buildpipeline.Event
	spinner spinner.Model
	bar     progress.Model
	rows    []fileRow
	byPath  map[string]int
	final   *buildpipeline.Event
	width   int
	done    bool
	now     func() time.Time
}

type eventMsg buildpipeline.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that shows one row per
// declaration file and quits once events is closed.
func NewProgressModel(title string, files []string, events <-chan buildpipeline.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = activeStyle

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 76

	m := &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		bar:     bar,
		rows:    make([]fileRow, len(files)),
		byPath:  make(map[string]int, len(files)),
		width:   80,
		now:     time.Now,
	}
	for i, file := range files {
		m.rows[i] = fileRow{path: file, status: buildpipeline.StatusQueued}
		m.byPath[file] = i
	}
	return m
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.next())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		return m, tea.Batch(m.apply(buildpipeline.Event(msg)), m.next())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.bar.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) next() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

// apply folds one pipeline event into the rows. The event with an empty
// File closes the run.
func (m *progressModel) apply(ev buildpipeline.Event) tea.Cmd {
	if ev.File == "" {
		m.final = &ev
		return m.bar.SetPercent(1.0)
	}
	idx, ok := m.byPath[ev.File]
	if !ok {
		return nil
	}
	row := &m.rows[idx]
	switch ev.Status {
	case buildpipeline.StatusWorking:
		if row.started.IsZero() {
			row.started = m.now()
		}
		row.stage = ev.Stage
	case buildpipeline.StatusDone, buildpipeline.StatusCached, buildpipeline.StatusError:
		if !row.started.IsZero() {
			row.elapsed = m.now().Sub(row.started)
		}
		row.err = ev.Err
	}
	row.status = ev.Status
	return m.bar.SetPercent(m.percent())
}

func (m *progressModel) percent() float64 {
	if len(m.rows) == 0 {
		return 0
	}
	total := 0.0
	for i := range m.rows {
		row := &m.rows[i]
		if row.finished() {
			total++
			continue
		}
		if row.status == buildpipeline.StatusWorking {
			total += stageWeight[row.stage]
		}
	}
	return total / float64(len(m.rows))
}

// tally counts finished files by outcome.
func (m *progressModel) tally() (lowered, cached, failed int) {
	for i := range m.rows {
		switch m.rows[i].status {
		case buildpipeline.StatusDone:
			lowered++
		case buildpipeline.StatusCached:
			cached++
		case buildpipeline.StatusError:
			failed++
		}
	}
	return lowered, cached, failed
}

func (m *progressModel) View() string {
	if len(m.rows) == 0 {
		return ""
	}
	var b strings.Builder
	header := m.title
	if m.done || m.final != nil {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	const statusWidth = 12
	nameWidth := max(m.width-statusWidth-14, 20)
	for i := range m.rows {
		row := &m.rows[i]
		fmt.Fprintf(&b, "  %s %s", row.style().Render(fmt.Sprintf("%*s", statusWidth, row.label())), truncate(row.path, nameWidth))
		if row.elapsed > 0 {
			b.WriteString(elapsedStyle.Render(fmt.Sprintf(" %.1fms", float64(row.elapsed)/float64(time.Millisecond))))
		}
		b.WriteString("\n")
		if row.err != nil {
			b.WriteString("    " + failStyle.Render(truncate(row.err.Error(), m.width-4)) + "\n")
		}
	}

	b.WriteString("\n")
	if m.done || m.final != nil {
		b.WriteString(m.bar.ViewAs(1.0))
	} else {
		b.WriteString(m.bar.View())
	}
	b.WriteString("\n")
	lowered, cached, failed := m.tally()
	fmt.Fprintf(&b, "%d lowered, %d cached, %d failed\n", lowered, cached, failed)
	return b.String()
}

// truncate shortens value to width display cells, marking the cut with "...".
func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
