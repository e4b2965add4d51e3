// Package jobs maintains the client-side ingestion job list.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/raphaelgruber/mnemo-go/internal/models"
	"github.com/raphaelgruber/mnemo-go/internal/reconcile"
)

// Fetcher loads the job list from the backend.
type Fetcher interface {
	ListJobs(ctx context.Context, includeHistory bool) ([]models.Job, error)
}

// Store holds jobs in display order: snapshot order, with jobs first seen
// through an update placed in front. It is not safe for concurrent use.
type Store struct {
	jobs     []models.Job
	errors   []string
	rejected int
	logger   *slog.Logger
	now      func() time.Time
}

// NewStore creates an empty store. A nil logger uses slog.Default.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger, now: time.Now}
}

// SetClock overrides the arrival clock used for synthesized timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// LoadSnapshot fetches every job, history included, and replaces the list.
// On error the list is left unchanged.
func (s *Store) LoadSnapshot(ctx context.Context, f Fetcher) error {
	jobs, err := f.ListJobs(ctx, true)
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}
	s.ReplaceAll(jobs)
	return nil
}

// ReplaceAll swaps the full list. Snapshots are authoritative, so no
// transition guard applies.
func (s *Store) ReplaceAll(jobs []models.Job) {
	s.jobs = slices.Clone(jobs)
}

// ApplySnapshotEvent replaces the list from a jobs_snapshot event.
func (s *Store) ApplySnapshotEvent(ev reconcile.RawEvent) error {
	if !ev.Has("jobs") {
		return fmt.Errorf("decode %s: missing jobs", ev.Name)
	}
	var jobs []models.Job
	if err := ev.Decode("jobs", &jobs); err != nil {
		return err
	}
	s.ReplaceAll(jobs)
	return nil
}

// ApplyJobUpdate upserts a job from a job_update event. Fields present in the
// event override, absent fields keep their value. An update that would move
// a server-reported status backwards is dropped entirely and reported as not
// applied. A failure inferred locally (watchdog, crash, error summary) takes
// the next server status unconditionally.
func (s *Store) ApplyJobUpdate(ev reconcile.RawEvent) (models.Job, bool) {
	if ev.JobID == "" {
		return models.Job{}, false
	}

	idx := s.index(ev.JobID)
	if idx < 0 {
		job := s.synthesize(ev)
		s.jobs = slices.Insert(s.jobs, 0, job)
		return job, true
	}

	job := s.jobs[idx]
	if status, ok := ev.String("status"); ok {
		next := models.JobStatus(status)
		inferred := job.FailureOrigin != models.FailureFromServer
		if !inferred && !CanTransition(job.Status, next) {
			s.rejected++
			s.logger.Debug("rejected job regression", "job_id", job.ID, "from", job.Status, "to", next)
			return job, false
		}
		if inferred {
			s.logger.Debug("server status replaces local failure",
				"job_id", job.ID, "origin", job.FailureOrigin, "to", next)
		}
		job.FailureOrigin = models.FailureFromServer
		job.Status = next
	}
	if p, ok := ev.Int("progress"); ok {
		job.Progress = p
	}
	if v, ok := ev.String("job_type"); ok {
		job.JobType = v
	}
	if v, ok := ev.String("created_at"); ok {
		job.CreatedAt = v
	}
	if v, ok := ev.String("updated_at"); ok {
		job.UpdatedAt = v
	}
	s.jobs[idx] = job
	return job, true
}

func (s *Store) synthesize(ev reconcile.RawEvent) models.Job {
	arrival := models.FormatTimestamp(s.now())
	job := models.Job{
		ID:        ev.JobID,
		JobType:   models.DefaultJobType,
		Status:    models.JobStatusPending,
		CreatedAt: arrival,
		UpdatedAt: arrival,
	}
	if v, ok := ev.String("job_type"); ok {
		job.JobType = v
	}
	if v, ok := ev.String("status"); ok {
		job.Status = models.JobStatus(v)
	}
	if p, ok := ev.Int("progress"); ok {
		job.Progress = p
	}
	if v, ok := ev.String("created_at"); ok {
		job.CreatedAt = v
	}
	if v, ok := ev.String("updated_at"); ok {
		job.UpdatedAt = v
	}
	return job
}

// CanTransition reports whether a job may move from one status to another.
// Failed is absorbing, success may only become failed, and running never
// returns to pending. Unknown statuses are not constrained.
func CanTransition(from, to models.JobStatus) bool {
	switch from {
	case models.JobStatusFailed:
		return to == models.JobStatusFailed
	case models.JobStatusSuccess:
		return to == models.JobStatusSuccess || to == models.JobStatusFailed
	case models.JobStatusRunning:
		return to != models.JobStatusPending
	default:
		return true
	}
}

// ApplyErrorSummary records the backend's error list and fails every running
// or pending job. It returns the number of jobs it failed.
func (s *Store) ApplyErrorSummary(errors []string) int {
	s.errors = slices.Clone(errors)
	return s.failWhere(models.FailureFromErrorSummary, func(j models.Job) bool {
		return j.Status == models.JobStatusRunning || j.Status == models.JobStatusPending
	})
}

// ExpireRunning fails every running job after a liveness timeout.
func (s *Store) ExpireRunning() int {
	return s.failWhere(models.FailureFromWatchdog, func(j models.Job) bool {
		return j.Status == models.JobStatusRunning
	})
}

func (s *Store) failWhere(origin models.FailureOrigin, match func(models.Job) bool) int {
	n := 0
	for i, job := range s.jobs {
		if !match(job) {
			continue
		}
		job.Status = models.JobStatusFailed
		job.Progress = 0
		job.FailureOrigin = origin
		s.jobs[i] = job
		n++
	}
	if n > 0 {
		s.logger.Info("jobs failed locally", "count", n, "origin", origin)
	}
	return n
}

// SetFailureOrigin tags a failed job with the local inference that failed it.
func (s *Store) SetFailureOrigin(id string, origin models.FailureOrigin) {
	if i := s.index(id); i >= 0 && s.jobs[i].Status == models.JobStatusFailed {
		s.jobs[i].FailureOrigin = origin
	}
}

// Get returns the stored record for id.
func (s *Store) Get(id string) (models.Job, bool) {
	if i := s.index(id); i >= 0 {
		return s.jobs[i], true
	}
	return models.Job{}, false
}

// Len returns the number of known jobs.
func (s *Store) Len() int { return len(s.jobs) }

// Errors returns the last recorded error summary.
func (s *Store) Errors() []string { return slices.Clone(s.errors) }

// Rejected counts updates dropped by the transition guard.
func (s *Store) Rejected() int { return s.rejected }

// HasRunning reports whether any stored job is running.
func (s *Store) HasRunning() bool {
	return slices.ContainsFunc(s.jobs, func(j models.Job) bool {
		return j.Status == models.JobStatusRunning
	})
}

// Jobs returns every job in display order with its derived status applied.
func (s *Store) Jobs(steps map[string]reconcile.StepMap) []models.Job {
	out := make([]models.Job, len(s.jobs))
	for i, job := range s.jobs {
		out[i] = withDerivedStatus(job, steps)
	}
	return out
}

// Recent returns up to n jobs ordered by updated_at, newest first.
func (s *Store) Recent(n int, steps map[string]reconcile.StepMap) []models.Job {
	out := s.Jobs(steps)
	sortByTimeDesc(out, func(j models.Job) string { return j.UpdatedAt })
	return head(out, n)
}

// History returns up to n finished jobs ordered by created_at, newest first.
// Status is derived from steps before the terminal filter is applied.
func (s *Store) History(n int, steps map[string]reconcile.StepMap) []models.Job {
	out := slices.DeleteFunc(s.Jobs(steps), func(j models.Job) bool {
		return !j.Status.IsTerminal()
	})
	sortByTimeDesc(out, func(j models.Job) string { return j.CreatedAt })
	return head(out, n)
}

func withDerivedStatus(job models.Job, steps map[string]reconcile.StepMap) models.Job {
	job.Status = reconcile.DeriveStatus(steps[job.ID], job.Status)
	return job
}

func sortByTimeDesc(jobs []models.Job, key func(models.Job) string) {
	slices.SortStableFunc(jobs, func(a, b models.Job) int {
		return models.ParseTimestamp(key(b)).Compare(models.ParseTimestamp(key(a)))
	})
}

func head(jobs []models.Job, n int) []models.Job {
	if n >= 0 && len(jobs) > n {
		return jobs[:n]
	}
	return jobs
}

func (s *Store) index(id string) int {
	return slices.IndexFunc(s.jobs, func(j models.Job) bool { return j.ID == id })
}
