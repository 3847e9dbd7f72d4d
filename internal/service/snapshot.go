package service

import (
	"context"
	"fmt"
	"log/slog"

	"mindgraph.app/grove/internal/chain"
	"mindgraph.app/grove/internal/graph"
	"mindgraph.app/grove/internal/lock"
	"mindgraph.app/grove/internal/model"
	"mindgraph.app/grove/internal/store"
)

// StreamLimits reports tree capacity to clients.
type StreamLimits struct {
	MaxNodes   int
	NodeCount  int
	CanAddNode bool
}

// StreamDetail is the full read model of a stream.
type StreamDetail struct {
	Stream    *model.Stream
	Nodes     []model.Node
	Snapshots []model.Snapshot
	Limits    StreamLimits
	AI        *model.AISummary
}

// CommitResult reports one commit attempt. Exactly one of Snapshot and
// SkippedReason is set when the stream survives the attempt.
type CommitResult struct {
	Committed     bool
	SkippedReason model.CommitSkippedReason
	Snapshot      *model.Snapshot
	Stream        *model.Stream
}

type SnapshotService interface {
	// StreamDetail reads the stream read model. Unlocked by design: a
	// concurrent mutation yields a slightly stale but consistent-enough view.
	StreamDetail(ctx context.Context, streamID string) (*StreamDetail, error)
	// Commit hashes the tree and anchors it on the ledger, subject to the
	// gating rules for the given reason.
	Commit(ctx context.Context, streamID string, reason model.SnapshotReason) (*CommitResult, error)
}

type snapshotService struct {
	streams    store.StreamStore
	nodes      store.NodeStore
	snapshots  store.SnapshotStore
	ledger     chain.Ledger
	streamLock *lock.KeyLock
}

func NewSnapshotService(
	streams store.StreamStore,
	nodes store.NodeStore,
	snapshots store.SnapshotStore,
	ledger chain.Ledger,
	streamLock *lock.KeyLock,
) SnapshotService {
	return &snapshotService{
		streams:    streams,
		nodes:      nodes,
		snapshots:  snapshots,
		ledger:     ledger,
		streamLock: streamLock,
	}
}

func (s *snapshotService) StreamDetail(ctx context.Context, streamID string) (*StreamDetail, error) {
	stream, err := getStream(ctx, s.streams, streamID)
	if err != nil {
		return nil, err
	}

	nodes, err := s.nodes.ListByStream(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	snapshots, err := s.snapshots.ListByStream(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	summary, err := s.nodes.AISummary(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("summarizing AI status: %w", err)
	}

	return &StreamDetail{
		Stream:    stream,
		Nodes:     nodes,
		Snapshots: snapshots,
		Limits: StreamLimits{
			MaxNodes:   graph.MaxNodesPerStream,
			NodeCount:  len(nodes),
			CanAddNode: stream.Status == model.StreamStatusActive && len(nodes) < graph.MaxNodesPerStream,
		},
		AI: summary,
	}, nil
}

func (s *snapshotService) Commit(ctx context.Context, streamID string, reason model.SnapshotReason) (*CommitResult, error) {
	var result *CommitResult
	err := s.streamLock.RunExclusive(ctx, streamID, func(ctx context.Context) error {
		var err error
		result, err = s.commitLocked(ctx, streamID, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *snapshotService) commitLocked(ctx context.Context, streamID string, reason model.SnapshotReason) (*CommitResult, error) {
	stream, err := getStream(ctx, s.streams, streamID)
	if err != nil {
		return nil, err
	}
	if stream.Ended() {
		return nil, ErrStreamEnded
	}

	summary, err := s.nodes.AISummary(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("summarizing AI status: %w", err)
	}
	if summary.CommitBlocked {
		blockingReason := model.CommitSkippedAIFailed
		if summary.PendingCount > 0 {
			blockingReason = model.CommitSkippedAIPending
		}
		if reason == model.SnapshotReasonAuto {
			return &CommitResult{SkippedReason: blockingReason, Stream: stream}, nil
		}
		return nil, ErrEnrichmentBlocking
	}

	nodes, err := s.nodes.ListByStream(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	if len(nodes) == 0 {
		if reason == model.SnapshotReasonFinal {
			endedStream, err := s.endStream(ctx, streamID)
			if err != nil {
				return nil, err
			}
			return &CommitResult{SkippedReason: model.CommitSkippedNoNodes, Stream: endedStream}, nil
		}
		return &CommitResult{SkippedReason: model.CommitSkippedNoNodes, Stream: stream}, nil
	}

	snapshotHash, err := ComputeSnapshotHash(nodes)
	if err != nil {
		return nil, err
	}
	if reason == model.SnapshotReasonAuto && stream.LastSnapshotHash != nil && *stream.LastSnapshotHash == snapshotHash {
		return &CommitResult{SkippedReason: model.CommitSkippedNoChanges, Stream: stream}, nil
	}

	snapshotIndex := stream.LastSnapshotIndex + 1
	receipt, err := s.ledger.CommitSnapshot(ctx, streamID, snapshotIndex, snapshotHash)
	if err != nil {
		slog.ErrorContext(ctx, "failed to commit snapshot on ledger",
			"error", err,
			"stream_id", streamID,
			"snapshot_index", snapshotIndex,
		)
		return nil, fmt.Errorf("committing snapshot on ledger: %w", err)
	}

	snapshot := &model.Snapshot{
		StreamID:      streamID,
		SnapshotIndex: snapshotIndex,
		SnapshotHash:  snapshotHash,
		Reason:        reason,
		TxRef:         receipt.TxRef,
		CreatedAt:     now(),
	}

	if err := s.snapshots.Insert(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("persisting snapshot: %w", err)
	}
	if err := s.streams.AdvanceSnapshot(ctx, streamID, snapshotIndex, snapshotHash); err != nil {
		return nil, fmt.Errorf("advancing stream snapshot: %w", err)
	}

	if reason == model.SnapshotReasonFinal {
		if _, err := s.endStream(ctx, streamID); err != nil {
			return nil, err
		}
	}

	updatedStream, err := getStream(ctx, s.streams, streamID)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "snapshot committed",
		"stream_id", streamID,
		"snapshot_index", snapshotIndex,
		"tx_ref", receipt.TxRef,
		"reason", reason,
	)
	return &CommitResult{Committed: true, Snapshot: snapshot, Stream: updatedStream}, nil
}

func (s *snapshotService) endStream(ctx context.Context, streamID string) (*model.Stream, error) {
	if err := s.streams.End(ctx, streamID, now()); err != nil {
		return nil, fmt.Errorf("ending stream: %w", err)
	}
	return getStream(ctx, s.streams, streamID)
}
