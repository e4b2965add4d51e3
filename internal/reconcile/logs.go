package reconcile

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LogLine is one entry of a log buffer.
type LogLine struct {
	JobID   string `json:"job_id,omitempty"`
	TS      string `json:"ts"`
	Message string `json:"message"`
}

// String renders the line as "[ts] message".
func (l LogLine) String() string {
	return fmt.Sprintf("[%s] %s", l.TS, l.Message)
}

// logBuffer keeps the most recent lines up to max, dropping a line that
// renders the same as the one before it.
type logBuffer struct {
	lines []LogLine
	max   int
}

func newLogBuffer(max int) *logBuffer {
	return &logBuffer{max: max}
}

// append returns false when the line duplicates the previous one.
func (b *logBuffer) append(line LogLine) bool {
	if n := len(b.lines); n > 0 && b.lines[n-1].String() == line.String() {
		return false
	}
	b.lines = append(b.lines, line)
	if over := len(b.lines) - b.max; over > 0 {
		b.lines = append(b.lines[:0:0], b.lines[over:]...)
	}
	return true
}

func (b *logBuffer) snapshot() []LogLine {
	out := make([]LogLine, len(b.lines))
	copy(out, b.lines)
	return out
}

// jobLogs bounds per-job buffers to a fixed number of job ids, evicting the
// least recently written job first.
type jobLogs struct {
	cache   *lru.Cache[string, *logBuffer]
	perJob  int
	evicted int
}

func newJobLogs(jobs, perJob int) *jobLogs {
	jl := &jobLogs{perJob: perJob}
	// lru.NewWithEvict only fails for a non-positive size.
	cache, err := lru.NewWithEvict[string, *logBuffer](max(jobs, 1), func(string, *logBuffer) {
		jl.evicted++
	})
	if err != nil {
		panic(err)
	}
	jl.cache = cache
	return jl
}

func (jl *jobLogs) append(line LogLine) bool {
	buf, ok := jl.cache.Get(line.JobID)
	if !ok {
		buf = newLogBuffer(jl.perJob)
		jl.cache.Add(line.JobID, buf)
	}
	return buf.append(line)
}

func (jl *jobLogs) lines(jobID string) []LogLine {
	buf, ok := jl.cache.Peek(jobID)
	if !ok {
		return nil
	}
	return buf.snapshot()
}
