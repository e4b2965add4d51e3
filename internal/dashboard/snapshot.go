package dashboard

import (
	"slices"
	"time"

	"github.com/raphaelgruber/mnemo-go/internal/graph"
	"github.com/raphaelgruber/mnemo-go/internal/models"
	"github.com/raphaelgruber/mnemo-go/internal/notify"
	"github.com/raphaelgruber/mnemo-go/internal/reconcile"
	"github.com/raphaelgruber/mnemo-go/internal/stream"
)

// Snapshot is an immutable copy of the session state for rendering.
type Snapshot struct {
	At         time.Time
	Connection stream.Status

	Health    models.Health
	HasHealth bool

	Ingestion    models.IngestionMetrics
	HasIngestion bool

	// Jobs is every job in display order with derived status applied.
	Jobs    []models.Job
	Recent  []models.Job
	History []models.Job
	Steps   map[string]reconcile.StepMap
	Errors  []string
	Crashed bool

	Logs     []reconcile.LogLine
	Messages int

	Nodes []graph.Node
	Edges []graph.Edge

	RAGProcessing bool
	SessionID     string
	Queries       []QueryResult

	Toasts []notify.Toast
}

// Job returns the job with id from the snapshot.
func (s Snapshot) Job(id string) (models.Job, bool) {
	i := slices.IndexFunc(s.Jobs, func(j models.Job) bool { return j.ID == id })
	if i < 0 {
		return models.Job{}, false
	}
	return s.Jobs[i], true
}

// StatusLabel renders a job status, marking locally inferred failures.
func StatusLabel(j models.Job) string {
	if j.Status != models.JobStatusFailed {
		return string(j.Status)
	}
	switch j.FailureOrigin {
	case models.FailureFromWatchdog:
		return "failed (no heartbeat)"
	case models.FailureFromCrash:
		return "failed (crash)"
	case models.FailureFromErrorSummary:
		return "failed (error summary)"
	default:
		return string(j.Status)
	}
}

func (s *Session) snapshot() Snapshot {
	steps := s.rec.AllSteps()
	snap := Snapshot{
		At:            s.now(),
		Connection:    s.conn,
		Jobs:          s.jobs.Jobs(steps),
		Recent:        s.jobs.Recent(RecentJobs, steps),
		History:       s.jobs.History(HistoryJobs, steps),
		Steps:         steps,
		Errors:        s.jobs.Errors(),
		Crashed:       s.rec.Crashed(),
		Logs:          s.rec.Logs(),
		Messages:      s.rec.MessageCount(),
		Nodes:         s.graph.Nodes(),
		Edges:         s.graph.Edges(),
		RAGProcessing: s.processing,
		Queries:       slices.Clone(s.queries),
		Toasts:        slices.Clone(s.active),
	}
	if s.health != nil {
		snap.Health, snap.HasHealth = *s.health, true
	}
	if s.ingest != nil {
		snap.Ingestion, snap.HasIngestion = *s.ingest, true
	}
	if s.sessionID != nil {
		snap.SessionID = *s.sessionID
	}
	return snap
}
