// Package models defines the wire types exchanged with the Gaia Mnemosyne backend.
package models

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
)

// IsTerminal reports whether the status is success or failed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

// DefaultJobType is assumed for jobs first seen through a job_update event.
const DefaultJobType = "filesystem_scan"

// FailureOrigin records why a job was marked failed on the client side.
// Empty means the failure came from the server.
type FailureOrigin string

const (
	FailureFromServer       FailureOrigin = ""
	FailureFromWatchdog     FailureOrigin = "watchdog"
	FailureFromCrash        FailureOrigin = "crash"
	FailureFromErrorSummary FailureOrigin = "error_summary"
)

// Job is one backend-tracked ingestion task.
type Job struct {
	ID        string    `json:"id"`
	JobType   string    `json:"job_type"`
	Status    JobStatus `json:"status"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
	Progress  int       `json:"progress"`

	// FailureOrigin is client-only state and never sent to the backend.
	FailureOrigin FailureOrigin `json:"-"`
}

// IngestionMetrics summarizes the last (or a given) ingestion run.
type IngestionMetrics struct {
	Documents    int64 `json:"documents"`
	Chunks       int64 `json:"chunks"`
	Embeddings   int64 `json:"embeddings"`
	QdrantWrites int64 `json:"qdrant_writes"`
	DurationMs   int64 `json:"duration_ms"`
}

// Providers reports which ingestion sources are enabled on the backend.
type Providers struct {
	Filesystem ProviderStatus `json:"filesystem"`
	GitHub     ProviderStatus `json:"github"`
}

// ProviderStatus is the enabled flag of a single provider.
type ProviderStatus struct {
	Enabled bool `json:"enabled"`
}
