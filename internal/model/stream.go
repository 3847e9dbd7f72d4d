package model

import "time"

// StreamStatus is the lifecycle state of a discussion stream.
type StreamStatus string

const (
	StreamStatusActive StreamStatus = "active"
	StreamStatusEnded  StreamStatus = "ended"
)

// DefaultStreamMetadata is recorded on streams created without metadata.
const DefaultStreamMetadata = "collective-mindgraph-mvp"

// Stream is one bounded discussion tree. It is created against the ledger
// (CreatedTxRef records the transaction) and advanced on every committed
// snapshot; it is never deleted.
type Stream struct {
	ID                string
	Metadata          *string
	Status            StreamStatus
	CreatedAt         time.Time
	EndedAt           *time.Time
	CreatedTxRef      string
	LastSnapshotIndex int
	LastSnapshotHash  *string
}

func (s *Stream) Ended() bool {
	return s.Status == StreamStatusEnded
}
