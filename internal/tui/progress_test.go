package tui

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/mnemo-go/internal/models"
)

type fetcherFunc func(ctx context.Context, includeHistory bool) ([]models.Job, error)

func (f fetcherFunc) ListJobs(ctx context.Context, includeHistory bool) ([]models.Job, error) {
	return f(ctx, includeHistory)
}

func listing(jobs ...models.Job) fetcherFunc {
	return func(ctx context.Context, includeHistory bool) ([]models.Job, error) {
		return jobs, nil
	}
}

func TestProgressFollowsJob(t *testing.T) {
	m := newProgressModel(listing(
		models.Job{ID: "other", Status: models.JobStatusRunning},
		models.Job{ID: "job-1", Status: models.JobStatusRunning, Progress: 25},
	), "job-1")

	next, cmd := m.Update(m.fetchJob()())
	m = next.(progressModel)
	require.NotNil(t, m.job)
	assert.Equal(t, 25, m.job.Progress)
	assert.False(t, m.done)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.renderContent(), "25%")
}

func TestProgressTerminalStates(t *testing.T) {
	tests := []struct {
		name    string
		status  models.JobStatus
		wantErr bool
	}{
		{"success", models.JobStatusSuccess, false},
		{"failed", models.JobStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newProgressModel(listing(models.Job{ID: "job-1", Status: tt.status}), "job-1")
			next, _ := m.Update(m.fetchJob()())
			m = next.(progressModel)

			assert.True(t, m.done)
			if tt.wantErr {
				assert.Error(t, m.err)
				assert.Contains(t, m.renderContent(), "job job-1 failed")
			} else {
				assert.NoError(t, m.err)
				assert.Contains(t, m.renderContent(), "Completed")
			}
		})
	}
}

func TestProgressKeepsPollingUnlistedJob(t *testing.T) {
	m := newProgressModel(listing(), "job-1")
	next, cmd := m.Update(m.fetchJob()())
	m = next.(progressModel)

	assert.False(t, m.done)
	assert.Nil(t, m.job)
	assert.NotNil(t, cmd)
}

func TestProgressFetchError(t *testing.T) {
	m := newProgressModel(fetcherFunc(func(ctx context.Context, includeHistory bool) ([]models.Job, error) {
		return nil, errors.New("connection refused")
	}), "job-1")

	next, _ := m.Update(m.fetchJob()())
	m = next.(progressModel)
	assert.True(t, m.done)
	assert.ErrorContains(t, m.err, "connection refused")
}
