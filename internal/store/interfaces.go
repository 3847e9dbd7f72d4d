// Package store provides persistence for streams, nodes, snapshots, and
// enrichment jobs over Postgres.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"mindgraph.app/grove/core/db"
	"mindgraph.app/grove/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Querier is the subset of pgx satisfied by both a pool and a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type StreamStore interface {
	Insert(ctx context.Context, stream *model.Stream) error
	Get(ctx context.Context, streamID string) (*model.Stream, error)
	// AdvanceSnapshot moves the stream's committed-snapshot pointer.
	AdvanceSnapshot(ctx context.Context, streamID string, snapshotIndex int, snapshotHash string) error
	End(ctx context.Context, streamID string, endedAt time.Time) error
}

// NodeAIMetadata is the suggestion-only slice of an enrichment result. It is
// applied alone when a manual placement must not move.
type NodeAIMetadata struct {
	SuggestedScore      *float64
	SuggestedParentID   *int
	SuggestedBranchType model.BranchType
	Classification      *model.Classification
	AIStatus            model.AIStatus
	AIRationale         *string
	AIModel             *string
}

type NodeStore interface {
	Insert(ctx context.Context, node *model.Node) error
	Get(ctx context.Context, streamID string, nodeID int) (*model.Node, error)
	// ListByStream returns every node of the stream ordered by node id.
	ListByStream(ctx context.Context, streamID string) ([]model.Node, error)
	// UpdatePlacement rewires the effective placement only.
	UpdatePlacement(ctx context.Context, streamID string, nodeID, parentID int, branchType model.BranchType, source model.PlacementSource) error
	// ApplyAIResult writes both the new placement and the suggestion metadata.
	ApplyAIResult(ctx context.Context, node *model.Node) error
	// UpdateAIMetadata writes the suggestion metadata without moving the node.
	UpdateAIMetadata(ctx context.Context, streamID string, nodeID int, meta NodeAIMetadata) error
	// MarkAIFailed flips the node to failed, keeping any prior rationale when
	// none is given.
	MarkAIFailed(ctx context.Context, streamID string, nodeID int, rationale *string) error
	// AcceptHeuristic settles a failed node on its current placement.
	AcceptHeuristic(ctx context.Context, streamID string, nodeID int, classification model.Classification, source model.PlacementSource) error
	AISummary(ctx context.Context, streamID string) (*model.AISummary, error)
}

type SnapshotStore interface {
	Insert(ctx context.Context, snapshot *model.Snapshot) error
	// ListByStream returns snapshots newest-first.
	ListByStream(ctx context.Context, streamID string) ([]model.Snapshot, error)
}

type JobStore interface {
	// Enqueue inserts the job or, when one already exists for the node,
	// requeues it in place.
	Enqueue(ctx context.Context, job *model.EnrichmentJob) error
	Get(ctx context.Context, streamID string, nodeID int) (*model.EnrichmentJob, error)
	// ListDue returns queued and retrying jobs whose attempt time has come,
	// ordered by due time then node id.
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.EnrichmentJob, error)
	MarkRunning(ctx context.Context, streamID string, nodeID, attemptCount int, startedAt time.Time) error
	ScheduleRetry(ctx context.Context, streamID string, nodeID int, nextAttemptAt time.Time, lastError string) error
	Fail(ctx context.Context, streamID string, nodeID int, completedAt time.Time, lastError string) error
	Complete(ctx context.Context, streamID string, nodeID int, completedAt time.Time) error
}

// Stores bundles the typed stores over one querier.
type Stores struct {
	q Querier
}

func New(database *db.DB) *Stores {
	return &Stores{q: database.Pool()}
}

// NewWithQuerier builds stores over an explicit querier, typically a
// transaction.
func NewWithQuerier(q Querier) *Stores {
	return &Stores{q: q}
}

func (s *Stores) Streams() StreamStore {
	return &streamStore{q: s.q}
}

func (s *Stores) Nodes() NodeStore {
	return &nodeStore{q: s.q}
}

func (s *Stores) Snapshots() SnapshotStore {
	return &snapshotStore{q: s.q}
}

func (s *Stores) Jobs() JobStore {
	return &jobStore{q: s.q}
}
