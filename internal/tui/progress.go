package tui

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"

	"github.com/raphaelgruber/mnemo-go/internal/jobs"
	"github.com/raphaelgruber/mnemo-go/internal/models"
)

const pollInterval = time.Second

// pollMsg triggers polling the job list
type pollMsg time.Time

// jobUpdateMsg carries the polled job
type jobUpdateMsg struct {
	job   models.Job
	found bool
	err   error
}

// progressModel follows a single job until it reaches a terminal state.
type progressModel struct {
	fetcher  jobs.Fetcher
	jobID    string
	job      *models.Job
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(f jobs.Fetcher, jobID string) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		fetcher:  f,
		jobID:    jobID,
		progress: prog,
		theme:    defaultTheme,
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		m.fetchJob(),
		m.progress.Init(),
	)
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case pollMsg:
		return m, m.fetchJob()

	case jobUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch job status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}
		if !msg.found {
			// A freshly started job may not be listed yet.
			return m, pollCmd()
		}

		job := msg.job
		m.job = &job

		switch job.Status {
		case models.JobStatusSuccess:
			m.done = true
			return m, tea.Quit
		case models.JobStatusFailed:
			m.done = true
			m.err = fmt.Errorf("job %s failed", job.ID)
			return m, tea.Quit
		}
		return m, pollCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}
	if m.job == nil {
		return "Loading job status...\n"
	}

	pct := float64(m.job.Progress) / 100
	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.job.Status))
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")

	return fmt.Sprintf("%s %s %d%%\n%s\n", status, m.progress.ViewAs(pct), m.job.Progress, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nJob %s continues in background.\nUse 'mnemo jobs' to check status.\n", m.jobID)
		return m.theme.hintStyle().Render(msg)
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s\n", m.err))
	}
	return m.theme.successStyle().Render("✓ Completed\n")
}

// fetchJob polls the full job list; the backend has no single-job endpoint.
func (m progressModel) fetchJob() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		list, err := m.fetcher.ListJobs(ctx, true)
		if err != nil {
			return jobUpdateMsg{err: err}
		}
		for _, job := range list {
			if job.ID == m.jobID {
				return jobUpdateMsg{job: job, found: true}
			}
		}
		return jobUpdateMsg{}
	}
}

func pollCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

// RunJobProgress follows a job with a progress bar.
// Returns nil on success or Ctrl+C (background), error on job failure.
func RunJobProgress(f jobs.Fetcher, jobID string) error {
	p := tea.NewProgram(newProgressModel(f, jobID))

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}
	return nil
}
