// Package dashboard runs the client session: one goroutine that owns the
// reconciler and the job and graph stores, fed by the event stream, REST
// polls and user commands.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/raphaelgruber/mnemo-go/internal/graph"
	"github.com/raphaelgruber/mnemo-go/internal/jobs"
	"github.com/raphaelgruber/mnemo-go/internal/metrics"
	"github.com/raphaelgruber/mnemo-go/internal/models"
	"github.com/raphaelgruber/mnemo-go/internal/notify"
	"github.com/raphaelgruber/mnemo-go/internal/reconcile"
	"github.com/raphaelgruber/mnemo-go/internal/stream"
)

// ErrClosed is returned by calls made after the session has stopped.
var ErrClosed = errors.New("dashboard session closed")

// CrashToast is shown when the backend reports an ingestion error summary.
const CrashToast = "Pipeline crashed. Check logs."

// Defaults.
const (
	DefaultHealthInterval    = 4 * time.Second
	DefaultMetricsInterval   = 5 * time.Second
	DefaultHighlightInterval = 250 * time.Millisecond
	MaxQueryHistory          = 20
	RecentJobs               = 10
	HistoryJobs              = 20

	inboxSize = 64
)

// Backend is the REST surface the session depends on.
type Backend interface {
	jobs.Fetcher
	graph.Fetcher
	Health(ctx context.Context) (models.Health, error)
	IngestionMetrics(ctx context.Context, jobID string) (models.IngestionMetrics, error)
	CreateJob(ctx context.Context, jobType string) error
	RunJob(ctx context.Context, jobID string) error
	AbortJob(ctx context.Context, jobID string) error
	RAGQuery(ctx context.Context, session *string, query string) (models.RAGQueryResponse, error)
	RAGMetadata(ctx context.Context) (models.RAGMetadata, error)
	RAGDebug(ctx context.Context, query string) (models.RAGDebugResponse, error)
}

// Options configures a Session. Backend is required.
type Options struct {
	Backend Backend
	// Events is the inbound stream. It may be nil or closed; REST keeps working.
	Events <-chan reconcile.RawEvent
	// Status publishes stream liveness. Optional.
	Status *notify.Bus[stream.Status]
	// Toasts receives user-visible notifications. The REST client should
	// notify the same bus. Created when nil.
	Toasts *notify.Toasts

	WatchdogTimeout   time.Duration
	HealthInterval    time.Duration
	MetricsInterval   time.Duration
	HighlightInterval time.Duration

	Reconcile reconcile.Options
	Metrics   *metrics.Collector
	Logger    *slog.Logger
	Now       func() time.Time
}

// Session is the single owner of every client-side store. All mutation
// happens on the goroutine running Run; other goroutines talk to it by
// message and read immutable Snapshots.
type Session struct {
	backend Backend
	events  <-chan reconcile.RawEvent
	status  *notify.Bus[stream.Status]
	toasts  *notify.Toasts
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time

	watchdogTimeout   time.Duration
	healthInterval    time.Duration
	metricsInterval   time.Duration
	highlightInterval time.Duration

	inbox   chan func()
	done    chan struct{}
	runOnce sync.Once
	wg      sync.WaitGroup

	// Owned by the Run goroutine.
	ctx        context.Context
	rec        *reconcile.Reconciler
	jobs       *jobs.Store
	graph      *graph.Store
	conn       stream.Status
	health     *models.Health
	ingest     *models.IngestionMetrics
	processing bool
	sessionID  *string
	queries    []QueryResult
	active     []notify.Toast
}

// New creates a session. Nothing runs until Run is called.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Toasts == nil {
		opts.Toasts = notify.NewToasts()
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = DefaultHealthInterval
	}
	if opts.MetricsInterval <= 0 {
		opts.MetricsInterval = DefaultMetricsInterval
	}
	if opts.HighlightInterval <= 0 {
		opts.HighlightInterval = DefaultHighlightInterval
	}
	if opts.Reconcile.Logger == nil {
		opts.Reconcile.Logger = opts.Logger
	}
	if opts.Reconcile.Now == nil {
		opts.Reconcile.Now = opts.Now
	}

	js := jobs.NewStore(opts.Logger)
	js.SetClock(opts.Now)

	return &Session{
		backend:           opts.Backend,
		events:            opts.Events,
		status:            opts.Status,
		toasts:            opts.Toasts,
		metrics:           opts.Metrics,
		logger:            opts.Logger,
		now:               opts.Now,
		watchdogTimeout:   opts.WatchdogTimeout,
		healthInterval:    opts.HealthInterval,
		metricsInterval:   opts.MetricsInterval,
		highlightInterval: opts.HighlightInterval,
		inbox:             make(chan func(), inboxSize),
		done:              make(chan struct{}),
		rec:               reconcile.New(opts.Reconcile),
		jobs:              js,
		graph:             graph.NewStore(opts.Logger),
	}
}

// Toasts returns the notification bus.
func (s *Session) Toasts() *notify.Toasts { return s.toasts }

// Run is the event loop. It loads the initial REST state, then serializes
// stream events, poll results, timers and commands until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	err := ErrClosed
	s.runOnce.Do(func() { err = s.run(ctx) })
	return err
}

func (s *Session) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.wg.Wait()
		close(s.done)
	}()
	s.ctx = ctx

	watchdog := jobs.NewWatchdog(s.watchdogTimeout)
	defer watchdog.Stop()

	healthTick := time.NewTicker(s.healthInterval)
	defer healthTick.Stop()
	metricsTick := time.NewTicker(s.metricsInterval)
	defer metricsTick.Stop()
	highlightTick := time.NewTicker(s.highlightInterval)
	defer highlightTick.Stop()

	var statusCh <-chan stream.Status
	if s.status != nil {
		ch, stop := s.status.Subscribe()
		defer stop()
		statusCh = ch
	}
	toastCh, stopToasts := s.toasts.Subscribe()
	defer stopToasts()

	s.logger.Info("dashboard session started", "watchdog", watchdog.Timeout())

	s.resync()
	s.pollHealth()
	s.pollMetrics()

	events := s.events
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("dashboard session stopped")
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				s.logger.Info("event stream closed")
				events = nil
				continue
			}
			watchdog.Heartbeat()
			s.handleEvent(ev)

		case <-watchdog.C:
			if n := s.jobs.ExpireRunning(); n > 0 {
				s.logger.Warn("no heartbeat, running jobs marked failed",
					"count", n, "timeout", watchdog.Timeout())
				s.publishJobCounts()
			}

		case st, ok := <-statusCh:
			if !ok {
				statusCh = nil
				continue
			}
			s.conn = st

		case t, ok := <-toastCh:
			if !ok {
				toastCh = nil
				continue
			}
			s.active = append(s.active, t)

		case <-healthTick.C:
			s.pollHealth()

		case <-metricsTick.C:
			s.pollMetrics()

		case <-highlightTick.C:
			now := s.now()
			s.graph.ClearExpiredHighlights(now)
			s.active = slices.DeleteFunc(s.active, func(t notify.Toast) bool {
				return now.Sub(t.At) >= notify.ToastTTL
			})

		case fn := <-s.inbox:
			fn()
		}
	}
}

// handleEvent reconciles one inbound message and routes the resulting batch
// to the stores.
func (s *Session) handleEvent(ev reconcile.RawEvent) {
	batch := s.rec.Apply(ev)
	for _, e := range batch {
		s.route(e)
	}
	if len(batch) > 1 {
		s.jobs.SetFailureOrigin(ev.JobID, models.FailureFromCrash)
	}
	s.publishJobCounts()
}

func (s *Session) route(ev reconcile.RawEvent) {
	switch ev.Name {
	case reconcile.EventJobUpdate:
		s.jobs.ApplyJobUpdate(ev)

	case reconcile.EventJobsSnapshot:
		if err := s.jobs.ApplySnapshotEvent(ev); err != nil {
			s.logger.Warn("ignoring jobs snapshot", "error", err)
		}

	case reconcile.EventIngestErrorSummary:
		var errs []string
		if err := ev.Decode("errors", &errs); err != nil {
			s.logger.Warn("ignoring error summary", "error", err)
			return
		}
		s.jobs.ApplyErrorSummary(errs)
		s.toasts.Notify(CrashToast)

	case reconcile.EventGraphUpdate:
		if _, _, err := s.graph.ApplyGraphUpdate(ev, s.now()); err != nil {
			s.logger.Warn("ignoring graph update", "error", err)
		}

	case reconcile.EventRAGProcessing:
		s.processing = true

	case reconcile.EventRAGDone:
		s.processing = false
	}
}

func (s *Session) publishJobCounts() {
	if s.metrics == nil {
		return
	}
	counts := make(map[string]int)
	for _, j := range s.jobs.Jobs(s.rec.AllSteps()) {
		counts[string(j.Status)]++
	}
	s.metrics.SetJobCounts(counts)
}

// =============================================================================
// BACKGROUND FETCHES
// =============================================================================

// spawn runs fetch off the loop and applies its result on the loop. Must be
// called from the loop goroutine.
func (s *Session) spawn(name string, fetch func(ctx context.Context) func()) {
	ctx := s.ctx
	s.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("background fetch panicked", "fetch", name, "panic", r)
			}
		}()
		apply := fetch(ctx)
		if apply == nil {
			return
		}
		select {
		case s.inbox <- apply:
		case <-ctx.Done():
		}
	})
}

func (s *Session) resync() {
	s.fetchJobs()
	s.fetchGraph()
}

func (s *Session) fetchJobs() {
	s.spawn("jobs", func(ctx context.Context) func() {
		list, err := s.backend.ListJobs(ctx, true)
		if err != nil {
			s.logger.Debug("job snapshot unavailable", "error", err)
			return nil
		}
		return func() {
			s.jobs.ReplaceAll(list)
			s.publishJobCounts()
		}
	})
}

func (s *Session) fetchGraph() {
	s.spawn("graph", func(ctx context.Context) func() {
		snap, err := s.backend.GraphSnapshot(ctx)
		if err != nil {
			s.logger.Debug("graph snapshot unavailable", "error", err)
			return nil
		}
		return func() { s.graph.Replace(snap) }
	})
}

func (s *Session) pollHealth() {
	s.spawn("health", func(ctx context.Context) func() {
		h, err := s.backend.Health(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			h = models.DownHealth()
		}
		return func() { s.applyHealth(h) }
	})
}

// applyHealth logs a local line when the overall state flips.
func (s *Session) applyHealth(h models.Health) {
	prev := s.health
	s.health = &h

	switch {
	case !h.AllUp() && (prev == nil || prev.AllUp()):
		s.rec.AddLocalLog("Health degraded: " + h.Summary())
	case h.AllUp() && prev != nil && !prev.AllUp():
		s.rec.AddLocalLog("Health recovered: all services are UP")
	}
}

func (s *Session) pollMetrics() {
	s.spawn("metrics", func(ctx context.Context) func() {
		m, err := s.backend.IngestionMetrics(ctx, "")
		if err != nil {
			return nil
		}
		return func() { s.ingest = &m }
	})
}

// =============================================================================
// MESSAGES
// =============================================================================

// post queues fn for the loop.
func (s *Session) post(ctx context.Context, fn func()) error {
	select {
	case s.inbox <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// call runs fn on the loop and returns its result.
func call[T any](ctx context.Context, s *Session, fn func() T) (T, error) {
	var zero T
	reply := make(chan T, 1)
	if err := s.post(ctx, func() { reply <- fn() }); err != nil {
		return zero, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-s.done:
		return zero, ErrClosed
	}
}

// Resync re-fetches the job and graph snapshots. The stream calls it after
// every reconnect.
func (s *Session) Resync() {
	select {
	case s.inbox <- s.resync:
	case <-s.done:
	}
}

// View returns the current state.
func (s *Session) View(ctx context.Context) (Snapshot, error) {
	return call(ctx, s, s.snapshot)
}

// Graph returns the filtered graph view.
func (s *Session) Graph(ctx context.Context, text string, tf graph.TypeFilter) (graph.View, error) {
	return call(ctx, s, func() graph.View { return s.graph.Filter(text, tf) })
}

// JobLogs returns the log lines recorded for one job.
func (s *Session) JobLogs(ctx context.Context, jobID string) ([]reconcile.LogLine, error) {
	return call(ctx, s, func() []reconcile.LogLine { return s.rec.JobLogs(jobID) })
}

// AutoLayout re-arranges the graph in rows by node class.
func (s *Session) AutoLayout(ctx context.Context) error {
	_, err := call(ctx, s, func() struct{} {
		s.graph.AutoLayout()
		return struct{}{}
	})
	return err
}

// Inject feeds an event into the loop as if it had arrived on the stream,
// without counting as a heartbeat.
func (s *Session) Inject(ctx context.Context, ev reconcile.RawEvent) error {
	return s.post(ctx, func() { s.handleEvent(ev) })
}

// =============================================================================
// COMMANDS
// =============================================================================

// CreateJob asks the backend for a new job and refreshes the job list.
func (s *Session) CreateJob(ctx context.Context, jobType string) error {
	if jobType == "" {
		jobType = models.DefaultJobType
	}
	if err := s.backend.CreateJob(ctx, jobType); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return s.refreshJobs(ctx)
}

// RunJob clears the job's step history, starts it and refreshes the list.
func (s *Session) RunJob(ctx context.Context, jobID string) error {
	if err := s.post(ctx, func() { s.rec.ResetJob(jobID) }); err != nil {
		return err
	}
	if err := s.backend.RunJob(ctx, jobID); err != nil {
		return fmt.Errorf("run job: %w", err)
	}
	return s.refreshJobs(ctx)
}

// AbortJob stops a job and refreshes the list.
func (s *Session) AbortJob(ctx context.Context, jobID string) error {
	if err := s.backend.AbortJob(ctx, jobID); err != nil {
		return fmt.Errorf("abort job: %w", err)
	}
	return s.refreshJobs(ctx)
}

func (s *Session) refreshJobs(ctx context.Context) error {
	return s.post(ctx, s.fetchJobs)
}
