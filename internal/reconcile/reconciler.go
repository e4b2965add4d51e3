package reconcile

import (
	"log/slog"
	"time"

	"github.com/raphaelgruber/mnemo-go/internal/models"
)

// Default buffer bounds.
const (
	DefaultMaxMessages = 2000
	DefaultMaxLogLines = 500
	DefaultMaxJobLogs  = 64
)

// Options configures a Reconciler. Zero values select the defaults.
type Options struct {
	MaxMessages int
	MaxLogLines int
	MaxJobLogs  int
	Logger      *slog.Logger
	Now         func() time.Time
}

// Reconciler applies raw events to the derived projections. It is not safe
// for concurrent use; callers serialize access through a single owner.
type Reconciler struct {
	logger      *slog.Logger
	now         func() time.Time
	maxMessages int

	messages []RawEvent
	logs     *logBuffer
	jobLogs  *jobLogs
	steps    map[string]StepMap
	crashed  bool
	rejected int
}

// New creates an empty reconciler.
func New(opts Options) *Reconciler {
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = DefaultMaxMessages
	}
	if opts.MaxLogLines <= 0 {
		opts.MaxLogLines = DefaultMaxLogLines
	}
	if opts.MaxJobLogs <= 0 {
		opts.MaxJobLogs = DefaultMaxJobLogs
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{
		logger:      opts.Logger,
		now:         opts.Now,
		maxMessages: opts.MaxMessages,
		logs:        newLogBuffer(opts.MaxLogLines),
		jobLogs:     newJobLogs(opts.MaxJobLogs, opts.MaxLogLines),
		steps:       make(map[string]StepMap),
	}
}

// Apply stamps ev with its arrival time if it has none, expands crash
// signals, and folds the resulting batch into the projections. The batch is
// returned with the original event first.
func (r *Reconciler) Apply(ev RawEvent) []RawEvent {
	if ev.TS == "" {
		ev = ev.WithTS(models.FormatTimestamp(r.now()))
	}

	batch := []RawEvent{ev}
	if isCrashSignal(ev) {
		batch = append(batch, expandCrash(ev)...)
		if !r.crashed {
			r.logger.Warn("pipeline crash reported", "job_id", ev.JobID, "event", ev.Name)
		}
		r.crashed = true
	}

	r.appendMessages(batch)
	for _, e := range batch {
		switch e.Name {
		case EventLog, EventIngestLog:
			r.appendLog(e)
		case EventIngestStep:
			r.applyStep(e)
		}
	}
	return batch
}

// AddLocalLog records a client-originated log line.
func (r *Reconciler) AddLocalLog(text string) {
	r.Apply(NewEvent(EventLog, "", map[string]any{
		"message": text,
		"local":   true,
	}))
}

// ResetJob forgets the step statuses of a job so a re-run starts clean.
func (r *Reconciler) ResetJob(jobID string) {
	delete(r.steps, jobID)
}

func isCrashSignal(ev RawEvent) bool {
	if ev.JobID == "" {
		return false
	}
	switch ev.Name {
	case EventPipelineFailed:
		return true
	case EventIngestStep:
		step, _ := ev.String("step")
		return step == StepPanic
	}
	return false
}

func expandCrash(ev RawEvent) []RawEvent {
	out := make([]RawEvent, 0, len(Steps)+1)
	out = append(out, NewEvent(EventJobUpdate, ev.JobID, map[string]any{
		"status":   string(models.JobStatusFailed),
		"progress": 0,
		"ts":       ev.TS,
	}))
	for _, step := range Steps {
		out = append(out, NewEvent(EventIngestStep, ev.JobID, map[string]any{
			"step":   step,
			"status": StepFailed,
			"ts":     ev.TS,
		}))
	}
	return out
}

func (r *Reconciler) appendMessages(batch []RawEvent) {
	r.messages = append(r.messages, batch...)
	if over := len(r.messages) - r.maxMessages; over > 0 {
		r.messages = append(r.messages[:0:0], r.messages[over:]...)
	}
}

func (r *Reconciler) appendLog(ev RawEvent) {
	msg, _ := ev.String("message")
	line := LogLine{JobID: ev.JobID, TS: ev.TS, Message: msg}

	r.logs.append(line)
	if line.JobID != "" {
		r.jobLogs.append(line)
	}
}

func (r *Reconciler) applyStep(ev RawEvent) {
	step, _ := ev.String("step")
	if ev.JobID == "" || step == "" {
		return
	}

	current := r.steps[ev.JobID]
	if current == nil {
		current = make(StepMap)
		r.steps[ev.JobID] = current
	}

	existing, known := current[step]
	status, ok := ev.String("status")
	switch {
	case !ok && known:
		return
	case !ok:
		status = StepPending
	case known && !acceptStep(existing, status):
		r.rejected++
		r.logger.Debug("rejected step regression",
			"job_id", ev.JobID, "step", step, "from", existing, "to", status)
		return
	}
	current[step] = status
}

// Messages returns a copy of the message log, oldest first.
func (r *Reconciler) Messages() []RawEvent {
	out := make([]RawEvent, len(r.messages))
	copy(out, r.messages)
	return out
}

// MessageCount returns the length of the message log.
func (r *Reconciler) MessageCount() int { return len(r.messages) }

// Logs returns a copy of the global log buffer, oldest first.
func (r *Reconciler) Logs() []LogLine {
	return r.logs.snapshot()
}

// JobLogs returns a copy of one job's log buffer.
func (r *Reconciler) JobLogs(jobID string) []LogLine {
	return r.jobLogs.lines(jobID)
}

// EvictedJobLogs counts per-job buffers dropped by the LRU bound.
func (r *Reconciler) EvictedJobLogs() int {
	return r.jobLogs.evicted
}

// StepsFor returns a copy of one job's step map.
func (r *Reconciler) StepsFor(jobID string) StepMap {
	src := r.steps[jobID]
	if src == nil {
		return nil
	}
	out := make(StepMap, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// AllSteps returns a deep copy of every job's step map.
func (r *Reconciler) AllSteps() map[string]StepMap {
	out := make(map[string]StepMap, len(r.steps))
	for id := range r.steps {
		out[id] = r.StepsFor(id)
	}
	return out
}

// Crashed reports whether any crash signal has been seen this session.
func (r *Reconciler) Crashed() bool { return r.crashed }

// Rejected counts step updates refused by the regression guard.
func (r *Reconciler) Rejected() int { return r.rejected }
