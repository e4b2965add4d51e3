package tui

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"

	"github.com/raphaelgruber/mnemo-go/internal/dashboard"
	"github.com/raphaelgruber/mnemo-go/internal/graph"
	"github.com/raphaelgruber/mnemo-go/internal/models"
	"github.com/raphaelgruber/mnemo-go/internal/reconcile"
)

const (
	maxGraphRows  = 15
	maxStepLogs   = 8
	maxCandidates = 5
	labelWidth    = 40
)

// View renders the dashboard.
func (m Model) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m Model) renderContent() string {
	if m.quitting {
		return m.theme.hintStyle().Render("bye\n")
	}
	if !m.loaded {
		return "Connecting to backend...\n"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderToasts())
	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")

	switch m.panel {
	case panelJobs:
		b.WriteString(m.renderJobs())
	case panelGraph:
		b.WriteString(m.renderGraph())
	case panelQuery:
		b.WriteString(m.renderQuery())
	}

	b.WriteString("\n")
	b.WriteString(m.renderLogs())
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	var parts []string
	parts = append(parts, m.theme.titleStyle().Render("mnemo"))

	c := m.snap.Connection
	switch {
	case c.Connected && c.HasRTT:
		parts = append(parts, m.theme.successStyle().Render(fmt.Sprintf("● live %dms", c.RTT.Milliseconds())))
	case c.Connected:
		parts = append(parts, m.theme.successStyle().Render("● live"))
	case c.Attempt > 0:
		parts = append(parts, m.theme.errorStyle().Render(fmt.Sprintf("○ offline (retry %d)", c.Attempt)))
	default:
		parts = append(parts, m.theme.errorStyle().Render("○ offline"))
	}

	if m.snap.HasHealth {
		for _, s := range m.snap.Health.Services() {
			parts = append(parts, m.theme.serviceStyle(s.Status).Render(s.Name))
		}
	}
	if m.snap.Crashed {
		parts = append(parts, m.theme.errorStyle().Render("PIPELINE CRASHED"))
	}
	if m.snap.HasIngestion {
		in := m.snap.Ingestion
		parts = append(parts, m.theme.hintStyle().Render(fmt.Sprintf("docs %d chunks %d emb %d",
			in.Documents, in.Chunks, in.Embeddings)))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderToasts() string {
	var b strings.Builder
	for _, t := range m.snap.Toasts {
		b.WriteString(m.theme.warningStyle().Render("! "+t.Message) + "\n")
	}
	if m.notice != "" {
		b.WriteString(m.theme.hintStyle().Render(m.notice) + "\n")
	}
	return b.String()
}

func (m Model) renderTabs() string {
	tabs := make([]string, 0, panelCount)
	for p := panel(0); p < panelCount; p++ {
		label := " " + p.String() + " "
		if p == m.panel {
			label = m.theme.selectedStyle().Render(label)
		}
		tabs = append(tabs, label)
	}
	return strings.Join(tabs, " ")
}

func (m Model) renderJobs() string {
	if len(m.snap.Jobs) == 0 {
		return "No jobs found\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-16s %-24s %-9s %s\n", "ID", "TYPE", "STATUS", "PROGRESS", "UPDATED")
	for i, job := range m.snap.Jobs {
		line := fmt.Sprintf("%-12s %-16s %-24s %-9s %s",
			shortID(job.ID), job.JobType, dashboard.StatusLabel(job), fmt.Sprintf("%d%%", job.Progress), job.UpdatedAt)
		if i == m.selected {
			line = m.theme.selectedStyle().Render(line)
		} else {
			line = m.theme.jobStyle(job.Status).Render(line)
		}
		b.WriteString(line + "\n")
	}

	if job, ok := m.snap.Job(m.selectedIDOrEmpty()); ok {
		b.WriteString("\n")
		b.WriteString(m.renderJobDetail(job))
	}
	if len(m.snap.Errors) > 0 {
		b.WriteString(m.theme.errorStyle().Render(fmt.Sprintf("\nErrors (%d):", len(m.snap.Errors))) + "\n")
		for _, e := range m.snap.Errors {
			fmt.Fprintf(&b, "  • %s\n", e)
		}
	}
	return b.String()
}

func (m Model) selectedIDOrEmpty() string {
	id, _ := m.selectedJobID()
	return id
}

func (m Model) renderJobDetail(job models.Job) string {
	var b strings.Builder
	status := m.theme.jobStyle(job.Status).Render(fmt.Sprintf("[%s]", dashboard.StatusLabel(job)))
	fmt.Fprintf(&b, "%s %s %s\n", status, m.progress.ViewAs(float64(job.Progress)/100), job.ID)

	steps := m.snap.Steps[job.ID]
	for _, step := range reconcile.Steps {
		st, ok := steps[step]
		if !ok {
			st = reconcile.StepPending
		}
		fmt.Fprintf(&b, "  %-14s %s\n", step, m.theme.stepStyle(st).Render(st))
	}

	logs := m.jobLogs
	if len(logs) > maxStepLogs {
		logs = logs[len(logs)-maxStepLogs:]
	}
	for _, l := range logs {
		b.WriteString(m.theme.hintStyle().Render("  "+l.String()) + "\n")
	}
	return b.String()
}

func (m Model) renderGraph() string {
	var b strings.Builder
	filter := m.filter
	if m.mode == modeFilter {
		filter = m.input + "▏"
	}
	fmt.Fprintf(&b, "Filter: %q  Type: %s  Nodes: %d/%d  Edges: %d/%d\n\n",
		filter, m.typeFilter, len(m.graph.Nodes), len(m.snap.Nodes), len(m.graph.Edges), len(m.snap.Edges))

	for i, n := range m.graph.Nodes {
		if i >= maxGraphRows {
			fmt.Fprintf(&b, "... and %d more\n", len(m.graph.Nodes)-maxGraphRows)
			break
		}
		icon := graph.StyleFor(n.Kind).Icon
		label := m.theme.nodeStyle(n.Kind, n.Highlighted(m.snap.At)).Render(n.ShortLabel(labelWidth))
		fmt.Fprintf(&b, "%s %s %s\n", icon, label, m.theme.hintStyle().Render(fmt.Sprintf("(%d,%d)", n.Position.X, n.Position.Y)))
	}

	if len(m.graph.Hits) > 0 {
		b.WriteString("\nMatches:\n")
		for _, n := range m.graph.Hits {
			fmt.Fprintf(&b, "  - %s [%s]\n", n.ShortLabel(labelWidth), n.ID)
		}
	}
	return b.String()
}

func (m Model) renderQuery() string {
	var b strings.Builder

	prompt := "Press / to ask a question"
	if m.mode == modeQuery {
		prompt = "> " + m.input + "▏"
	}
	b.WriteString(prompt + "\n")
	if m.snap.SessionID != "" {
		b.WriteString(m.theme.hintStyle().Render("session "+m.snap.SessionID) + "\n")
	}
	if m.querying || m.snap.RAGProcessing {
		b.WriteString(m.theme.statusStyle().Render("thinking...") + "\n")
	}
	if m.debug {
		b.WriteString(m.theme.hintStyle().Render("debug on") + "\n")
	}

	if a := m.answer; a != nil {
		fmt.Fprintf(&b, "\nQ: %s\n%s\n", a.Query, a.Response)
		if a.HasMetadata {
			b.WriteString(m.theme.hintStyle().Render(fmt.Sprintf("vector hits %d, graph depth %d, %dms",
				a.Metadata.VectorHits, a.Metadata.GraphDepth, a.Metadata.ResponseTimeMs)) + "\n")
		}
		if a.Debug != nil {
			for i, c := range a.Debug.Candidates {
				if i >= maxCandidates {
					break
				}
				fmt.Fprintf(&b, "  %.3f  %s\n", c.FinalScore, truncate(c.Chunk, 60))
			}
		}
	}

	if len(m.snap.Queries) > 0 {
		b.WriteString("\nHistory:\n")
		for _, q := range m.snap.Queries {
			fmt.Fprintf(&b, "  %s  %s\n", q.At.Format("15:04:05"), truncate(q.Query, 60))
		}
	}
	return b.String()
}

func (m Model) renderLogs() string {
	rows := m.logRows()
	logs := m.snap.Logs
	if len(logs) > rows {
		logs = logs[len(logs)-rows:]
	}

	var b strings.Builder
	b.WriteString(m.theme.titleStyle().Render("Logs") + "\n")
	for _, l := range logs {
		b.WriteString(truncate(l.String(), max(20, m.width)) + "\n")
	}
	for i := len(logs); i < rows; i++ {
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderFooter() string {
	hint := "tab panel • j/k select • n new • r run • x abort • / filter/ask • t type • L layout • d debug • c new chat • +/- logs • q quit"
	return m.theme.hintStyle().Render(hint) + "\n"
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
