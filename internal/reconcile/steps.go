package reconcile

import (
	"strings"

	"github.com/raphaelgruber/mnemo-go/internal/models"
)

// Steps is the canonical ingestion pipeline order.
var Steps = []string{
	"start",
	"fingerprints",
	"chunking",
	"ontology",
	"embeddings",
	"vector_upsert",
	"graph_upsert",
	"completed",
}

// Raw step status strings reported by the backend.
const (
	StepPending = "pending"
	StepRunning = "running"
	StepDone    = "done"
	StepFailed  = "failed"
	StepPanic   = "panic"
)

// StepMap holds the latest status per step name for one job.
type StepMap map[string]string

func isFailedStep(status string) bool {
	return strings.EqualFold(status, StepFailed) || strings.EqualFold(status, StepPanic)
}

func isTerminalStep(status string) bool {
	return isFailedStep(status) || strings.EqualFold(status, StepDone)
}

// DeriveStatus computes a job's effective status from its step map:
// failed if any step failed or panicked, success if completed is done,
// running if any step is running, otherwise fallback.
func DeriveStatus(steps StepMap, fallback models.JobStatus) models.JobStatus {
	if len(steps) == 0 {
		return fallback
	}

	running := false
	for _, status := range steps {
		if isFailedStep(status) {
			return models.JobStatusFailed
		}
		if strings.EqualFold(status, StepRunning) {
			running = true
		}
	}
	if steps["completed"] == StepDone {
		return models.JobStatusSuccess
	}
	if running {
		return models.JobStatusRunning
	}
	return fallback
}

// acceptStep reports whether a step may move from current to next.
// Failed and panic are absorbing; done only yields to another terminal status.
func acceptStep(current, next string) bool {
	switch {
	case isFailedStep(current):
		return isFailedStep(next)
	case strings.EqualFold(current, StepDone):
		return isTerminalStep(next)
	default:
		return true
	}
}
