package jobs

import (
	"sync"
	"time"
)

// DefaultWatchdogTimeout is the silence window after which running jobs are
// considered dead.
const DefaultWatchdogTimeout = 10 * time.Second

// Watchdog signals on C when no heartbeat has been seen for the timeout.
// Each Heartbeat re-arms it; a fire belonging to an earlier arm is discarded.
type Watchdog struct {
	C <-chan struct{}

	mu      sync.Mutex
	c       chan struct{}
	timeout time.Duration
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// NewWatchdog creates an armed watchdog.
func NewWatchdog(timeout time.Duration) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultWatchdogTimeout
	}
	c := make(chan struct{}, 1)
	w := &Watchdog{C: c, c: c, timeout: timeout}
	w.Heartbeat()
	return w
}

// Heartbeat re-arms the timer.
func (w *Watchdog) Heartbeat() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	gen := w.gen
	w.timer = time.AfterFunc(w.timeout, func() { w.fire(gen) })

	// Drop a fire that was queued but not yet consumed.
	select {
	case <-w.c:
	default:
	}
}

func (w *Watchdog) fire(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped || gen != w.gen {
		return
	}
	select {
	case w.c <- struct{}{}:
	default:
	}
}

// Timeout returns the configured silence window.
func (w *Watchdog) Timeout() time.Duration { return w.timeout }

// Stop disarms the watchdog permanently.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
}
