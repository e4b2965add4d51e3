// Package tui renders the dashboard session as a bubbletea program.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"

	"github.com/raphaelgruber/mnemo-go/internal/dashboard"
	"github.com/raphaelgruber/mnemo-go/internal/graph"
	"github.com/raphaelgruber/mnemo-go/internal/prefs"
	"github.com/raphaelgruber/mnemo-go/internal/reconcile"
)

const (
	refreshInterval = 500 * time.Millisecond
	callTimeout     = 15 * time.Second

	// rowHeight converts the stored logs panel height to terminal rows.
	rowHeight = 16
	// maxLogsRatio caps the logs panel to this share of the screen.
	maxLogsRatio = 0.4
	minLogRows   = 2
)

// Session is the part of dashboard.Session the UI drives.
type Session interface {
	View(ctx context.Context) (dashboard.Snapshot, error)
	Graph(ctx context.Context, text string, tf graph.TypeFilter) (graph.View, error)
	JobLogs(ctx context.Context, jobID string) ([]reconcile.LogLine, error)
	CreateJob(ctx context.Context, jobType string) error
	RunJob(ctx context.Context, jobID string) error
	AbortJob(ctx context.Context, jobID string) error
	Query(ctx context.Context, query string, debug bool) (dashboard.QueryResult, error)
	AutoLayout(ctx context.Context) error
	ResetConversation(ctx context.Context) error
}

type panel int

const (
	panelJobs panel = iota
	panelGraph
	panelQuery
	panelCount
)

func (p panel) String() string {
	switch p {
	case panelJobs:
		return "Jobs"
	case panelGraph:
		return "Graph"
	default:
		return "Query"
	}
}

type inputMode int

const (
	modeNormal inputMode = iota
	modeFilter
	modeQuery
)

// tickMsg triggers a refresh of the session view.
type tickMsg time.Time

// refreshMsg carries the state read from the session.
type refreshMsg struct {
	snap    dashboard.Snapshot
	graph   graph.View
	jobLogs []reconcile.LogLine
	err     error
}

// actionMsg reports the outcome of a job command.
type actionMsg struct {
	label string
	err   error
}

// queryMsg carries a RAG answer.
type queryMsg struct {
	result dashboard.QueryResult
	err    error
}

// Model is the bubbletea model for the dashboard.
type Model struct {
	session  Session
	prefs    *prefs.Store
	theme    Theme
	progress progress.Model

	snap    dashboard.Snapshot
	graph   graph.View
	jobLogs []reconcile.LogLine
	loaded  bool

	panel      panel
	mode       inputMode
	input      string
	filter     string
	typeFilter graph.TypeFilter
	selected   int
	debug      bool
	querying   bool
	answer     *dashboard.QueryResult

	logsHeight int
	width      int
	height     int
	notice     string
	quitting   bool
}

// New creates a dashboard model. A nil prefs store keeps the default logs height.
func New(s Session, p *prefs.Store) Model {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(30),
	)

	height := prefs.DefaultLogsPanelHeight
	if p != nil {
		height = p.LogsPanelHeight()
	}

	return Model{
		session:    s,
		prefs:      p,
		theme:      defaultTheme,
		progress:   prog,
		typeFilter: graph.FilterAll,
		logsHeight: height,
		height:     40,
		width:      100,
	}
}

// Init starts the refresh loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.progress.Init())
}

// Update handles messages and returns the updated model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyPressMsg:
		if m.mode != modeNormal {
			return m.updateInput(msg)
		}
		return m.updateNormal(msg)

	case tickMsg:
		return m, m.refresh()

	case refreshMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
			return m, tickCmd()
		}
		m.snap, m.graph, m.jobLogs = msg.snap, msg.graph, msg.jobLogs
		m.loaded = true
		m.selected = clampSelection(m.selected, len(m.snap.Jobs))
		return m, tickCmd()

	case actionMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("%s failed: %v", msg.label, msg.err)
		} else {
			m.notice = msg.label + " requested"
		}
		return m, nil

	case queryMsg:
		m.querying = false
		if msg.err != nil {
			m.notice = fmt.Sprintf("query failed: %v", msg.err)
			return m, nil
		}
		m.answer = &msg.result
		m.notice = ""
		return m, nil

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) updateNormal(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		m.panel = (m.panel + 1) % panelCount

	case "shift+tab":
		m.panel = (m.panel + panelCount - 1) % panelCount

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}

	case "down", "j":
		if m.selected < len(m.snap.Jobs)-1 {
			m.selected++
		}

	case "n":
		return m, m.action("create job", func(ctx context.Context) error {
			return m.session.CreateJob(ctx, "")
		})

	case "r":
		if id, ok := m.selectedJobID(); ok {
			return m, m.action("run "+id, func(ctx context.Context) error {
				return m.session.RunJob(ctx, id)
			})
		}

	case "x":
		if id, ok := m.selectedJobID(); ok {
			return m, m.action("abort "+id, func(ctx context.Context) error {
				return m.session.AbortJob(ctx, id)
			})
		}

	case "/":
		switch m.panel {
		case panelGraph:
			m.mode, m.input = modeFilter, m.filter
		case panelQuery:
			m.mode, m.input = modeQuery, ""
		}

	case "t":
		m.typeFilter = nextTypeFilter(m.typeFilter)
		return m, m.refresh()

	case "L":
		return m, m.action("auto layout", m.session.AutoLayout)

	case "d":
		m.debug = !m.debug

	case "c":
		if m.panel == panelQuery {
			m.answer = nil
			return m, m.action("new conversation", m.session.ResetConversation)
		}

	case "+", "=":
		return m.resizeLogs(rowHeight)

	case "-":
		return m.resizeLogs(-rowHeight)
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "esc":
		m.mode, m.input = modeNormal, ""

	case "enter":
		mode, text := m.mode, m.input
		m.mode, m.input = modeNormal, ""
		if mode == modeFilter {
			m.filter = text
			return m, m.refresh()
		}
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.querying = true
		return m, m.ask(text)

	case "backspace":
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}

	case "space":
		m.input += " "

	default:
		m.input += msg.Text
	}
	return m, nil
}

// resizeLogs adjusts and persists the logs panel height.
func (m Model) resizeLogs(delta int) (tea.Model, tea.Cmd) {
	limit := int(float64(m.height*rowHeight) * maxLogsRatio)
	next := max(prefs.MinLogsPanelHeight, min(m.logsHeight+delta, limit))
	if next == m.logsHeight {
		return m, nil
	}
	m.logsHeight = next
	if m.prefs != nil {
		if err := m.prefs.SetLogsPanelHeight(next); err != nil {
			m.notice = fmt.Sprintf("save prefs: %v", err)
		}
	}
	return m, nil
}

// logRows returns how many log lines fit in the logs panel.
func (m Model) logRows() int {
	rows := m.logsHeight / rowHeight
	limit := int(float64(m.height) * maxLogsRatio)
	return max(minLogRows, min(rows, limit))
}

func (m Model) selectedJobID() (string, bool) {
	return jobAt(m.snap, m.selected)
}

func clampSelection(selected, n int) int {
	return max(0, min(selected, n-1))
}

// jobAt returns the id of the job the clamped selection points at in snap.
func jobAt(snap dashboard.Snapshot, selected int) (string, bool) {
	if len(snap.Jobs) == 0 {
		return "", false
	}
	return snap.Jobs[clampSelection(selected, len(snap.Jobs))].ID, true
}

func nextTypeFilter(tf graph.TypeFilter) graph.TypeFilter {
	order := []graph.TypeFilter{graph.FilterAll, graph.FilterRepo, graph.FilterFile, graph.FilterChunk}
	for i, f := range order {
		if f == tf {
			return order[(i+1)%len(order)]
		}
	}
	return graph.FilterAll
}

// refresh reads the session state. Runs as a command to avoid blocking Update().
func (m Model) refresh() tea.Cmd {
	selected := m.selected
	filter, tf := m.filter, m.typeFilter
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()

		snap, err := m.session.View(ctx)
		if err != nil {
			return refreshMsg{err: err}
		}
		view, err := m.session.Graph(ctx, filter, tf)
		if err != nil {
			return refreshMsg{err: err}
		}
		var logs []reconcile.LogLine
		if jobID, ok := jobAt(snap, selected); ok {
			if logs, err = m.session.JobLogs(ctx, jobID); err != nil {
				return refreshMsg{err: err}
			}
		}
		return refreshMsg{snap: snap, graph: view, jobLogs: logs}
	}
}

func (m Model) action(label string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		return actionMsg{label: label, err: fn(ctx)}
	}
}

func (m Model) ask(query string) tea.Cmd {
	debug := m.debug
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		result, err := m.session.Query(ctx, query, debug)
		return queryMsg{result: result, err: err}
	}
}

// tickCmd schedules the next refresh.
func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run runs the dashboard until the user quits.
func Run(s Session, p *prefs.Store) error {
	program := tea.NewProgram(New(s, p))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("dashboard UI error: %w", err)
	}
	return nil
}
