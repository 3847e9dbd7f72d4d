package model

import "time"

// EnrichmentJobStatus is the lifecycle state of a node enrichment job.
type EnrichmentJobStatus string

const (
	JobStatusQueued    EnrichmentJobStatus = "queued"
	JobStatusRunning   EnrichmentJobStatus = "running"
	JobStatusRetrying  EnrichmentJobStatus = "retrying"
	JobStatusFailed    EnrichmentJobStatus = "failed"
	JobStatusCompleted EnrichmentJobStatus = "completed"
	JobStatusCancelled EnrichmentJobStatus = "cancelled"
)

// EnrichmentJob is the retryable unit of work that asks the AI provider to
// classify and place one node. Keyed by (StreamID, NodeID); enqueueing the
// same key again overwrites the existing row rather than duplicating it.
type EnrichmentJob struct {
	StreamID      string
	NodeID        int
	Status        EnrichmentJobStatus
	AttemptCount  int
	NextAttemptAt time.Time
	LastError     *string
	StartedAt     *time.Time
	CompletedAt   *time.Time
}
