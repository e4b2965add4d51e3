package jobs_test

import (
	"testing"
	"time"

	"github.com/raphaelgruber/mnemo-go/internal/jobs"
	"github.com/raphaelgruber/mnemo-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchdogFiresAfterSilence(t *testing.T) {
	w := jobs.NewWatchdog(30 * time.Millisecond)
	defer w.Stop()

	s := newStore()
	s.ReplaceAll([]models.Job{{ID: "a", Status: models.JobStatusRunning, Progress: 40}})

	select {
	case <-w.C:
		s.ExpireRunning()
	case <-time.After(time.Second):
		t.Fatal("watchdog did not fire")
	}

	job, _ := s.Get("a")
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, 0, job.Progress)
}

func TestWatchdogHeartbeatPostpones(t *testing.T) {
	w := jobs.NewWatchdog(80 * time.Millisecond)
	defer w.Stop()

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		w.Heartbeat()
		select {
		case <-w.C:
			t.Fatal("watchdog fired despite heartbeats")
		case <-time.After(10 * time.Millisecond):
		}
	}

	select {
	case <-w.C:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not fire after heartbeats stopped")
	}
}

func TestWatchdogStop(t *testing.T) {
	w := jobs.NewWatchdog(20 * time.Millisecond)
	w.Stop()
	w.Heartbeat()

	select {
	case <-w.C:
		t.Fatal("stopped watchdog fired")
	case <-time.After(60 * time.Millisecond):
	}
	require.Equal(t, 20*time.Millisecond, w.Timeout())
}

func TestWatchdogDefaultTimeout(t *testing.T) {
	w := jobs.NewWatchdog(0)
	defer w.Stop()
	assert.Equal(t, jobs.DefaultWatchdogTimeout, w.Timeout())
}
