package model

import "time"

// SnapshotReason is why a snapshot was committed.
type SnapshotReason string

const (
	SnapshotReasonAuto   SnapshotReason = "auto"
	SnapshotReasonManual SnapshotReason = "manual"
	SnapshotReasonFinal  SnapshotReason = "final"
)

// CommitSkippedReason explains why a requested commit produced no snapshot.
type CommitSkippedReason string

const (
	CommitSkippedNoNodes   CommitSkippedReason = "no_nodes"
	CommitSkippedNoChanges CommitSkippedReason = "no_changes"
	CommitSkippedAIPending CommitSkippedReason = "ai_pending"
	CommitSkippedAIFailed  CommitSkippedReason = "ai_failed"
)

// Snapshot records one committed content hash of a stream's tree. Indexes are
// strictly increasing from 1 per stream; rows are append-only.
type Snapshot struct {
	StreamID      string
	SnapshotIndex int
	SnapshotHash  string
	Reason        SnapshotReason
	TxRef         string
	CreatedAt     time.Time
}
