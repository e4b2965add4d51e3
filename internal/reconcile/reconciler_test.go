package reconcile

import (
	"fmt"
	"testing"
	"time"

	"github.com/raphaelgruber/mnemo-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestReconciler(opts Options) *Reconciler {
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	return New(opts)
}

func mustParse(t *testing.T, s string) RawEvent {
	t.Helper()
	ev, err := ParseEvent([]byte(s))
	require.NoError(t, err)
	return ev
}

func TestApplyStampsArrivalTime(t *testing.T) {
	r := newTestReconciler(Options{})

	batch := r.Apply(mustParse(t, `{"event":"log","message":"hello"}`))
	require.Len(t, batch, 1)
	assert.Equal(t, "2024-05-01T10:00:00.000Z", batch[0].TS)

	logs := r.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, "[2024-05-01T10:00:00.000Z] hello", logs[0].String())

	batch = r.Apply(mustParse(t, `{"event":"log","message":"kept","ts":"2020-01-01T00:00:00Z"}`))
	assert.Equal(t, "2020-01-01T00:00:00Z", batch[0].TS)
}

func TestCrashExpansion(t *testing.T) {
	r := newTestReconciler(Options{})
	require.False(t, r.Crashed())

	batch := r.Apply(mustParse(t, `{"event":"ingest_step","step":"panic","job_id":"J","ts":"t0"}`))

	require.Len(t, batch, 10)
	assert.Equal(t, EventIngestStep, batch[0].Name)

	update := batch[1]
	assert.Equal(t, EventJobUpdate, update.Name)
	assert.Equal(t, "J", update.JobID)
	status, _ := update.String("status")
	assert.Equal(t, "failed", status)
	progress, ok := update.Int("progress")
	require.True(t, ok)
	assert.Equal(t, 0, progress)
	assert.Equal(t, "t0", update.TS)

	for i, step := range Steps {
		ev := batch[i+2]
		assert.Equal(t, EventIngestStep, ev.Name)
		got, _ := ev.String("step")
		assert.Equal(t, step, got, "step order at %d", i)
		st, _ := ev.String("status")
		assert.Equal(t, "failed", st)
	}

	assert.True(t, r.Crashed())
	assert.Len(t, r.Messages(), 10)
	assert.Equal(t, models.JobStatusFailed, DeriveStatus(r.StepsFor("J"), models.JobStatusRunning))

	// The flag is sticky.
	r.Apply(mustParse(t, `{"event":"log","message":"after"}`))
	assert.True(t, r.Crashed())
}

func TestPipelineFailedExpands(t *testing.T) {
	r := newTestReconciler(Options{})
	batch := r.Apply(mustParse(t, `{"event":"pipeline_failed","job_id":"K"}`))
	assert.Len(t, batch, 10)
	assert.True(t, r.Crashed())
}

func TestCrashSignalWithoutJobIDIsNotExpanded(t *testing.T) {
	r := newTestReconciler(Options{})

	assert.Len(t, r.Apply(mustParse(t, `{"event":"pipeline_failed"}`)), 1)
	assert.Len(t, r.Apply(mustParse(t, `{"event":"ingest_step","step":"panic","job_id":null}`)), 1)
	assert.False(t, r.Crashed())
}

func TestGlobalLogTrimming(t *testing.T) {
	r := newTestReconciler(Options{})

	for i := 0; i < 600; i++ {
		r.Apply(mustParse(t, fmt.Sprintf(`{"event":"log","message":"line %d","ts":"t%d"}`, i, i)))
	}

	logs := r.Logs()
	require.Len(t, logs, 500)
	assert.Equal(t, "line 100", logs[0].Message)
	assert.Equal(t, "line 599", logs[499].Message)
	for i := 1; i < len(logs); i++ {
		require.Equal(t, fmt.Sprintf("line %d", i+100), logs[i].Message)
	}
}

func TestDuplicateLogSuppression(t *testing.T) {
	r := newTestReconciler(Options{})

	line := `{"event":"ingest_log","job_id":"J","message":"chunking","ts":"t1"}`
	r.Apply(mustParse(t, line))
	r.Apply(mustParse(t, line))

	assert.Len(t, r.Logs(), 1)
	assert.Len(t, r.JobLogs("J"), 1)
	assert.Len(t, r.Messages(), 2, "message log keeps both raw events")

	// Not adjacent: kept.
	r.Apply(mustParse(t, `{"event":"log","message":"other","ts":"t2"}`))
	r.Apply(mustParse(t, line))
	assert.Len(t, r.Logs(), 3)
	assert.Len(t, r.JobLogs("J"), 1, "per-job buffer sees the same line adjacent")
}

func TestPerJobLogsAreBoundedByLRU(t *testing.T) {
	r := newTestReconciler(Options{MaxJobLogs: 2, MaxLogLines: 3})

	for _, id := range []string{"a", "b"} {
		r.Apply(mustParse(t, fmt.Sprintf(`{"event":"log","job_id":%q,"message":"m","ts":"t"}`, id)))
	}
	// Touch "a" so "b" is least recently written.
	r.Apply(mustParse(t, `{"event":"log","job_id":"a","message":"m2","ts":"t"}`))
	r.Apply(mustParse(t, `{"event":"log","job_id":"c","message":"m","ts":"t"}`))

	assert.NotEmpty(t, r.JobLogs("a"))
	assert.Empty(t, r.JobLogs("b"))
	assert.NotEmpty(t, r.JobLogs("c"))
	assert.Equal(t, 1, r.EvictedJobLogs())

	for i := 0; i < 5; i++ {
		r.Apply(mustParse(t, fmt.Sprintf(`{"event":"log","job_id":"a","message":"n%d","ts":"t"}`, i)))
	}
	lines := r.JobLogs("a")
	require.Len(t, lines, 3)
	assert.Equal(t, "n4", lines[2].Message)
}

func TestStepStatusDefaults(t *testing.T) {
	r := newTestReconciler(Options{})

	r.Apply(mustParse(t, `{"event":"ingest_step","job_id":"J","step":"chunking"}`))
	assert.Equal(t, "pending", r.StepsFor("J")["chunking"])

	r.Apply(mustParse(t, `{"event":"ingest_step","job_id":"J","step":"chunking","status":"running"}`))
	r.Apply(mustParse(t, `{"event":"ingest_step","job_id":"J","step":"chunking"}`))
	assert.Equal(t, "running", r.StepsFor("J")["chunking"], "missing status keeps the known value")

	r.Apply(mustParse(t, `{"event":"ingest_step","job_id":"J"}`))
	r.Apply(mustParse(t, `{"event":"ingest_step","step":"start"}`))
	assert.Len(t, r.StepsFor("J"), 1)
	assert.Len(t, r.AllSteps(), 1)
}

func TestStepRegressionGuard(t *testing.T) {
	tests := []struct {
		name    string
		current string
		next    string
		want    string
	}{
		{"running to done", "running", "done", "done"},
		{"done to failed", "done", "failed", "failed"},
		{"done to running rejected", "done", "running", "done"},
		{"failed to running rejected", "failed", "running", "failed"},
		{"failed to done rejected", "FAILED", "done", "FAILED"},
		{"panic to failed", "panic", "failed", "failed"},
		{"pending to running", "pending", "running", "running"},
		{"unknown passthrough", "queued", "weird", "weird"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReconciler(Options{})
			r.Apply(NewEvent(EventIngestStep, "J", map[string]any{"step": "s", "status": tt.current}))
			r.Apply(NewEvent(EventIngestStep, "J", map[string]any{"step": "s", "status": tt.next}))
			assert.Equal(t, tt.want, r.StepsFor("J")["s"])
		})
	}
}

func TestResetJobClearsSteps(t *testing.T) {
	r := newTestReconciler(Options{})
	r.Apply(mustParse(t, `{"event":"pipeline_failed","job_id":"J"}`))
	require.NotEmpty(t, r.StepsFor("J"))

	r.ResetJob("J")
	assert.Nil(t, r.StepsFor("J"))

	r.Apply(mustParse(t, `{"event":"ingest_step","job_id":"J","step":"start","status":"running"}`))
	assert.Equal(t, models.JobStatusRunning, DeriveStatus(r.StepsFor("J"), models.JobStatusPending))
}

func TestMessageLogCap(t *testing.T) {
	r := newTestReconciler(Options{MaxMessages: 5})
	for i := 0; i < 8; i++ {
		r.Apply(NewEvent("custom", "", map[string]any{"n": i}))
	}

	assert.Equal(t, 5, r.MessageCount())
	msgs := r.Messages()
	require.Len(t, msgs, 5)
	n, _ := msgs[0].Int("n")
	assert.Equal(t, 3, n)
}

func TestAddLocalLog(t *testing.T) {
	r := newTestReconciler(Options{})
	r.AddLocalLog("Health recovered: all services are UP")

	logs := r.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, "Health recovered: all services are UP", logs[0].Message)
	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Has("local"))
}
