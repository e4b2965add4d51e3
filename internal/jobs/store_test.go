package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raphaelgruber/mnemo-go/internal/jobs"
	"github.com/raphaelgruber/mnemo-go/internal/models"
	"github.com/raphaelgruber/mnemo-go/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	jobs           []models.Job
	err            error
	includeHistory bool
}

func (f *fakeFetcher) ListJobs(_ context.Context, includeHistory bool) ([]models.Job, error) {
	f.includeHistory = includeHistory
	return f.jobs, f.err
}

func event(t *testing.T, s string) reconcile.RawEvent {
	t.Helper()
	ev, err := reconcile.ParseEvent([]byte(s))
	require.NoError(t, err)
	return ev
}

func newStore() *jobs.Store {
	s := jobs.NewStore(nil)
	s.SetClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) })
	return s
}

func TestSnapshotThenUpdate(t *testing.T) {
	s := newStore()
	f := &fakeFetcher{jobs: []models.Job{{
		ID: "a", JobType: "filesystem_scan", Status: models.JobStatusPending,
		CreatedAt: "2024-05-01T10:00:00Z", UpdatedAt: "2024-05-01T10:00:00Z",
	}}}
	require.NoError(t, s.LoadSnapshot(context.Background(), f))
	assert.True(t, f.includeHistory)

	_, applied := s.ApplyJobUpdate(event(t, `{"event":"job_update","job_id":"a","status":"running","progress":40}`))
	require.True(t, applied)

	recent := s.Recent(5, nil)
	require.Len(t, recent, 1)
	assert.Equal(t, "a", recent[0].ID)
	assert.Equal(t, models.JobStatusRunning, recent[0].Status)
	assert.Equal(t, 40, recent[0].Progress)
	assert.Equal(t, "filesystem_scan", recent[0].JobType)
}

func TestUnseenUpdateSynthesizesJob(t *testing.T) {
	s := newStore()

	job, applied := s.ApplyJobUpdate(event(t, `{"event":"job_update","job_id":"z","status":"success"}`))
	require.True(t, applied)

	assert.Equal(t, "z", job.ID)
	assert.Equal(t, models.DefaultJobType, job.JobType)
	assert.Equal(t, models.JobStatusSuccess, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.Equal(t, "2024-05-01T12:00:00.000Z", job.CreatedAt)

	stored, ok := s.Get("z")
	require.True(t, ok)
	assert.Equal(t, job, stored)
}

func TestUnseenUpdateDefaultsAndOrder(t *testing.T) {
	s := newStore()
	s.ReplaceAll([]models.Job{{ID: "old", Status: models.JobStatusSuccess}})

	job, _ := s.ApplyJobUpdate(event(t, `{"event":"job_update","job_id":"new","job_type":"github_sync"}`))
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, "github_sync", job.JobType)

	all := s.Jobs(nil)
	require.Len(t, all, 2)
	assert.Equal(t, "new", all[0].ID, "new jobs go to the front")
}

func TestUpdateKeepsAbsentFields(t *testing.T) {
	s := newStore()
	s.ReplaceAll([]models.Job{{ID: "a", JobType: "filesystem_scan", Status: models.JobStatusRunning, Progress: 10, UpdatedAt: "t1"}})

	s.ApplyJobUpdate(event(t, `{"event":"job_update","job_id":"a","progress":55}`))
	job, _ := s.Get("a")
	assert.Equal(t, models.JobStatusRunning, job.Status)
	assert.Equal(t, 55, job.Progress)
	assert.Equal(t, "t1", job.UpdatedAt)

	s.ApplyJobUpdate(event(t, `{"event":"job_update","job_id":"a","updated_at":"t2"}`))
	job, _ = s.Get("a")
	assert.Equal(t, 55, job.Progress)
	assert.Equal(t, "t2", job.UpdatedAt)
}

func TestUpdateWithoutJobIDIsIgnored(t *testing.T) {
	s := newStore()
	_, applied := s.ApplyJobUpdate(event(t, `{"event":"job_update","job_id":null,"status":"running"}`))
	assert.False(t, applied)
	assert.Zero(t, s.Len())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.JobStatus
		want     bool
	}{
		{models.JobStatusPending, models.JobStatusRunning, true},
		{models.JobStatusPending, models.JobStatusSuccess, true},
		{models.JobStatusRunning, models.JobStatusSuccess, true},
		{models.JobStatusRunning, models.JobStatusPending, false},
		{models.JobStatusSuccess, models.JobStatusRunning, false},
		{models.JobStatusSuccess, models.JobStatusFailed, true},
		{models.JobStatusFailed, models.JobStatusRunning, false},
		{models.JobStatusFailed, models.JobStatusSuccess, false},
		{models.JobStatusFailed, models.JobStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, jobs.CanTransition(tt.from, tt.to))
		})
	}
}

func TestStaleUpdateAfterFailureIsDropped(t *testing.T) {
	s := newStore()
	s.ReplaceAll([]models.Job{{ID: "a", Status: models.JobStatusRunning, Progress: 30}})

	s.ApplyJobUpdate(event(t, `{"event":"job_update","job_id":"a","status":"failed","progress":0}`))
	_, applied := s.ApplyJobUpdate(event(t, `{"event":"job_update","job_id":"a","status":"running","progress":70}`))
	assert.False(t, applied)

	job, _ := s.Get("a")
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.Equal(t, 1, s.Rejected())
}

func TestServerUpdateOverridesLocalFailure(t *testing.T) {
	tests := []struct {
		name string
		fail func(s *jobs.Store)
	}{
		{"watchdog", func(s *jobs.Store) { s.ExpireRunning() }},
		{"error summary", func(s *jobs.Store) { s.ApplyErrorSummary([]string{"qdrant timeout"}) }},
		{"crash", func(s *jobs.Store) {
			s.ApplyJobUpdate(event(t, `{"event":"job_update","job_id":"a","status":"failed","progress":0}`))
			s.SetFailureOrigin("a", models.FailureFromCrash)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore()
			s.ReplaceAll([]models.Job{{ID: "a", Status: models.JobStatusRunning, Progress: 30}})
			tt.fail(s)

			job, _ := s.Get("a")
			require.Equal(t, models.JobStatusFailed, job.Status)
			require.NotEqual(t, models.FailureFromServer, job.FailureOrigin)

			job, applied := s.ApplyJobUpdate(event(t, `{"event":"job_update","job_id":"a","status":"success","progress":100}`))
			assert.True(t, applied)
			assert.Equal(t, models.JobStatusSuccess, job.Status)
			assert.Equal(t, 100, job.Progress)
			assert.Equal(t, models.FailureFromServer, job.FailureOrigin)
			assert.Zero(t, s.Rejected())

			// Once the server has spoken, the guard applies again.
			_, applied = s.ApplyJobUpdate(event(t, `{"event":"job_update","job_id":"a","status":"running"}`))
			assert.False(t, applied)
		})
	}
}

func TestServerConfirmsLocalFailure(t *testing.T) {
	s := newStore()
	s.ReplaceAll([]models.Job{{ID: "a", Status: models.JobStatusRunning}})
	s.ExpireRunning()

	job, applied := s.ApplyJobUpdate(event(t, `{"event":"job_update","job_id":"a","status":"failed"}`))
	assert.True(t, applied)
	assert.Equal(t, models.FailureFromServer, job.FailureOrigin)

	_, applied = s.ApplyJobUpdate(event(t, `{"event":"job_update","job_id":"a","status":"success"}`))
	assert.False(t, applied)
}

func TestSnapshotEventReplaces(t *testing.T) {
	s := newStore()
	s.ReplaceAll([]models.Job{{ID: "gone", Status: models.JobStatusFailed}})

	err := s.ApplySnapshotEvent(event(t, `{"event":"jobs_snapshot","jobs":[
		{"id":"b","job_type":"filesystem_scan","status":"running","created_at":"2024-05-01T09:00:00Z","updated_at":"2024-05-01T09:30:00Z","progress":5},
		{"id":"c","job_type":"filesystem_scan","status":"success","created_at":"2024-05-01T08:00:00Z","updated_at":"2024-05-01T10:00:00Z"}
	]}`))
	require.NoError(t, err)

	_, ok := s.Get("gone")
	assert.False(t, ok)
	recent := s.Recent(5, nil)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)

	assert.Error(t, s.ApplySnapshotEvent(event(t, `{"event":"jobs_snapshot"}`)))
	assert.Error(t, s.ApplySnapshotEvent(event(t, `{"event":"jobs_snapshot","jobs":"nope"}`)))
	assert.Equal(t, 2, s.Len(), "bad snapshot leaves the list alone")
}

func TestLoadSnapshotErrorLeavesListUnchanged(t *testing.T) {
	s := newStore()
	s.ReplaceAll([]models.Job{{ID: "a"}})

	err := s.LoadSnapshot(context.Background(), &fakeFetcher{err: errors.New("backend unreachable")})
	require.Error(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestHistoryUsesDerivedStatus(t *testing.T) {
	s := newStore()
	s.ReplaceAll([]models.Job{
		{ID: "p", Status: models.JobStatusPending, CreatedAt: "2024-05-01T10:00:00Z"},
		{ID: "r", Status: models.JobStatusRunning, CreatedAt: "2024-05-01T11:00:00Z"},
		{ID: "s", Status: models.JobStatusSuccess, CreatedAt: "2024-05-01T09:00:00Z"},
		{ID: "f", Status: models.JobStatusFailed, CreatedAt: "2024-05-01T12:00:00Z"},
	})
	steps := map[string]reconcile.StepMap{
		"r": {"start": "done", "completed": "done"},
		"s": {"chunking": "running"},
	}

	history := s.History(10, steps)
	ids := make([]string, len(history))
	for i, j := range history {
		ids[i] = j.ID
	}
	// "s" is running by its steps, "r" finished by its steps.
	assert.Equal(t, []string{"f", "r"}, ids)
	assert.Equal(t, models.JobStatusSuccess, history[1].Status)

	assert.Len(t, s.History(1, steps), 1)

	stored, _ := s.Get("r")
	assert.Equal(t, models.JobStatusRunning, stored.Status, "derivation never mutates the record")
}

func TestApplyErrorSummary(t *testing.T) {
	s := newStore()
	s.ReplaceAll([]models.Job{
		{ID: "p", Status: models.JobStatusPending},
		{ID: "r", Status: models.JobStatusRunning, Progress: 60},
		{ID: "s", Status: models.JobStatusSuccess, Progress: 100},
	})

	n := s.ApplyErrorSummary([]string{"qdrant timeout"})
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"qdrant timeout"}, s.Errors())

	for _, id := range []string{"p", "r"} {
		job, _ := s.Get(id)
		assert.Equal(t, models.JobStatusFailed, job.Status)
		assert.Equal(t, 0, job.Progress)
		assert.Equal(t, models.FailureFromErrorSummary, job.FailureOrigin)
	}
	job, _ := s.Get("s")
	assert.Equal(t, models.JobStatusSuccess, job.Status)
}

func TestExpireRunning(t *testing.T) {
	s := newStore()
	s.ReplaceAll([]models.Job{
		{ID: "p", Status: models.JobStatusPending},
		{ID: "r", Status: models.JobStatusRunning, Progress: 60},
	})
	require.True(t, s.HasRunning())

	assert.Equal(t, 1, s.ExpireRunning())
	assert.False(t, s.HasRunning())

	job, _ := s.Get("r")
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.Equal(t, models.FailureFromWatchdog, job.FailureOrigin)

	job, _ = s.Get("p")
	assert.Equal(t, models.JobStatusPending, job.Status)

	s.SetFailureOrigin("r", models.FailureFromCrash)
	s.SetFailureOrigin("p", models.FailureFromCrash)
	job, _ = s.Get("p")
	assert.Equal(t, models.FailureFromServer, job.FailureOrigin, "only failed jobs carry an origin")

	job, _ = s.Get("r")
	assert.Equal(t, models.FailureFromCrash, job.FailureOrigin)
}
