package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mindgraph.app/grove/internal/ai"
	"mindgraph.app/grove/internal/graph"
	"mindgraph.app/grove/internal/lock"
	"mindgraph.app/grove/internal/model"
	"mindgraph.app/grove/internal/store"
)

// retryDelays is the backoff ladder. A job making attempt n that fails
// retryably waits retryDelays[n-1]; past the ladder it fails for good.
var retryDelays = []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}

// retryableEnrichmentError marks a validation failure worth retrying: the
// provider's recommendation was well-formed but no longer fits the tree,
// which a fresh attempt against current state may fix.
type retryableEnrichmentError struct {
	message string
}

func (e *retryableEnrichmentError) Error() string { return e.message }

// WakeNotifier nudges the polling worker after an enqueue so fresh jobs do
// not wait out a full poll interval. Best-effort; enqueue never fails on it.
type WakeNotifier interface {
	Wake(ctx context.Context)
}

type EnrichmentService interface {
	// EnqueueNode queues (or requeues) the enrichment job for a node.
	EnqueueNode(ctx context.Context, streamID string, nodeID int) error
	// DueJobs returns jobs ready to run, ordered by due time then node id.
	DueJobs(ctx context.Context, limit int) ([]model.EnrichmentJob, error)
	// ProcessJob runs one enrichment attempt end to end: provider call,
	// validation, apply under the stream lock, and job bookkeeping.
	// The returned error is internal bookkeeping failure only; provider
	// failures are absorbed into the retry ladder.
	ProcessJob(ctx context.Context, job model.EnrichmentJob) error
	// AcceptHeuristic settles a failed node on its heuristic placement.
	AcceptHeuristic(ctx context.Context, streamID string, nodeID int) (*model.Node, error)
}

type enrichmentService struct {
	streams    store.StreamStore
	nodes      store.NodeStore
	jobs       store.JobStore
	provider   ai.Provider
	streamLock *lock.KeyLock
	notifier   WakeNotifier
}

func NewEnrichmentService(
	streams store.StreamStore,
	nodes store.NodeStore,
	jobs store.JobStore,
	provider ai.Provider,
	streamLock *lock.KeyLock,
	notifier WakeNotifier,
) EnrichmentService {
	return &enrichmentService{
		streams:    streams,
		nodes:      nodes,
		jobs:       jobs,
		provider:   provider,
		streamLock: streamLock,
		notifier:   notifier,
	}
}

func (s *enrichmentService) EnqueueNode(ctx context.Context, streamID string, nodeID int) error {
	job := &model.EnrichmentJob{
		StreamID:      streamID,
		NodeID:        nodeID,
		Status:        model.JobStatusQueued,
		AttemptCount:  0,
		NextAttemptAt: now(),
	}
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue enrichment job",
			"error", err,
			"stream_id", streamID,
			"node_id", nodeID,
		)
		return fmt.Errorf("enqueueing enrichment job: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Wake(ctx)
	}
	return nil
}

func (s *enrichmentService) DueJobs(ctx context.Context, limit int) ([]model.EnrichmentJob, error) {
	return s.jobs.ListDue(ctx, now(), limit)
}

func (s *enrichmentService) ProcessJob(ctx context.Context, job model.EnrichmentJob) error {
	attemptCount := job.AttemptCount + 1
	if err := s.jobs.MarkRunning(ctx, job.StreamID, job.NodeID, attemptCount, now()); err != nil {
		return fmt.Errorf("marking job running: %w", err)
	}

	if err := s.runAttempt(ctx, job); err != nil {
		return s.handleAttemptFailure(ctx, job, attemptCount, err)
	}

	if err := s.jobs.Complete(ctx, job.StreamID, job.NodeID, now()); err != nil {
		return fmt.Errorf("completing job: %w", err)
	}

	slog.InfoContext(ctx, "enrichment completed",
		"stream_id", job.StreamID,
		"node_id", job.NodeID,
		"attempt", attemptCount,
	)
	return nil
}

func (s *enrichmentService) runAttempt(ctx context.Context, job model.EnrichmentJob) error {
	node, err := s.nodes.Get(ctx, job.StreamID, job.NodeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNodeNotFound
		}
		return fmt.Errorf("getting node: %w", err)
	}

	nodes, err := s.nodes.ListByStream(ctx, job.StreamID)
	if err != nil {
		return fmt.Errorf("listing nodes: %w", err)
	}

	recommendation, err := s.provider.AnalyzeNode(ctx, buildProviderContext(job.StreamID, node, nodes))
	if err != nil {
		return err
	}

	return s.streamLock.RunExclusive(ctx, job.StreamID, func(ctx context.Context) error {
		return s.applyRecommendation(ctx, job.StreamID, job.NodeID, recommendation)
	})
}

func (s *enrichmentService) handleAttemptFailure(ctx context.Context, job model.EnrichmentJob, attemptCount int, cause error) error {
	if isRetryableFailure(cause) && attemptCount <= len(retryDelays) {
		delay := retryDelays[attemptCount-1]
		nextAttemptAt := now().Add(delay)
		if err := s.jobs.ScheduleRetry(ctx, job.StreamID, job.NodeID, nextAttemptAt, cause.Error()); err != nil {
			return fmt.Errorf("scheduling retry: %w", err)
		}

		slog.WarnContext(ctx, "enrichment attempt failed, will retry",
			"error", cause,
			"stream_id", job.StreamID,
			"node_id", job.NodeID,
			"attempt", attemptCount,
			"retry_in", delay,
		)
		return nil
	}

	message := cause.Error()
	if err := s.nodes.MarkAIFailed(ctx, job.StreamID, job.NodeID, &message); err != nil {
		return fmt.Errorf("marking node failed: %w", err)
	}
	if err := s.jobs.Fail(ctx, job.StreamID, job.NodeID, now(), message); err != nil {
		return fmt.Errorf("failing job: %w", err)
	}

	slog.ErrorContext(ctx, "enrichment failed",
		"error", cause,
		"stream_id", job.StreamID,
		"node_id", job.NodeID,
		"attempt", attemptCount,
	)
	return nil
}

func isRetryableFailure(err error) bool {
	var retryable *retryableEnrichmentError
	if errors.As(err, &retryable) {
		return true
	}
	return ai.IsRetryable(err)
}

func (s *enrichmentService) AcceptHeuristic(ctx context.Context, streamID string, nodeID int) (*model.Node, error) {
	var node *model.Node
	err := s.streamLock.RunExclusive(ctx, streamID, func(ctx context.Context) error {
		var err error
		node, err = s.acceptHeuristicLocked(ctx, streamID, nodeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (s *enrichmentService) acceptHeuristicLocked(ctx context.Context, streamID string, nodeID int) (*model.Node, error) {
	stream, err := getStream(ctx, s.streams, streamID)
	if err != nil {
		return nil, err
	}
	if stream.Ended() {
		return nil, ErrStreamEnded
	}

	node, err := s.nodes.Get(ctx, streamID, nodeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNodeNotFound
		}
		return nil, fmt.Errorf("getting node: %w", err)
	}
	if node.AIStatus != model.AIStatusFailed {
		return nil, ErrNodeNotFailed
	}

	classification := graph.DefaultClassification(node.Text)
	if node.Classification != nil {
		classification = *node.Classification
	}

	source := model.PlacementSourceHeuristicAccepted
	if node.PlacementSource == model.PlacementSourceManual {
		source = model.PlacementSourceManual
	}

	if err := s.nodes.AcceptHeuristic(ctx, streamID, nodeID, classification, source); err != nil {
		return nil, fmt.Errorf("accepting heuristic placement: %w", err)
	}

	updated, err := s.nodes.Get(ctx, streamID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("reloading node: %w", err)
	}

	slog.InfoContext(ctx, "heuristic accepted",
		"stream_id", streamID,
		"node_id", nodeID,
	)
	return updated, nil
}

func buildProviderContext(streamID string, node *model.Node, nodes []model.Node) ai.Context {
	graphNodes := make([]ai.GraphNode, len(nodes))
	for i, n := range nodes {
		graphNodes[i] = ai.GraphNode{
			NodeID:         n.NodeID,
			ParentID:       n.ParentID,
			BranchType:     n.BranchType,
			Text:           n.Text,
			Classification: n.Classification,
		}
	}

	return ai.Context{
		StreamID: streamID,
		TargetNode: ai.TargetNode{
			NodeID:    node.NodeID,
			Text:      node.Text,
			Timestamp: node.Timestamp,
		},
		Graph:      graphNodes,
		Candidates: graph.ValidParentCandidates(nodes, node),
	}
}

func (s *enrichmentService) applyRecommendation(ctx context.Context, streamID string, nodeID int, rec *ai.Recommendation) error {
	nodes, err := s.nodes.ListByStream(ctx, streamID)
	if err != nil {
		return fmt.Errorf("listing nodes: %w", err)
	}

	node := findNode(nodes, nodeID)
	if node == nil {
		return ErrNodeNotFound
	}

	suggestedBranchType, err := s.resolveSuggestedBranchType(nodes, node, rec)
	if err != nil {
		return err
	}

	modelName := s.provider.Model()
	meta := store.NodeAIMetadata{
		SuggestedScore:      &rec.Confidence,
		SuggestedParentID:   rec.ParentNodeID,
		SuggestedBranchType: suggestedBranchType,
		Classification:      &rec.Classification,
		AIStatus:            model.AIStatusCompleted,
		AIRationale:         &rec.Rationale,
		AIModel:             &modelName,
	}

	// Manual placements are sticky: record the suggestion, leave the node
	// where the user put it.
	if node.PlacementSource == model.PlacementSourceManual {
		if err := s.nodes.UpdateAIMetadata(ctx, streamID, nodeID, meta); err != nil {
			return fmt.Errorf("updating node AI metadata: %w", err)
		}
		return nil
	}

	updated := *node
	updated.ParentID = rec.ParentNodeID
	updated.BranchType = suggestedBranchType
	updated.SuggestedScore = meta.SuggestedScore
	updated.SuggestedParentID = rec.ParentNodeID
	updated.SuggestedBranchType = suggestedBranchType
	updated.Classification = meta.Classification
	updated.AIStatus = model.AIStatusCompleted
	updated.PlacementSource = model.PlacementSourceAI
	updated.AIRationale = meta.AIRationale
	updated.AIModel = meta.AIModel

	if err := s.nodes.ApplyAIResult(ctx, &updated); err != nil {
		return fmt.Errorf("applying AI result: %w", err)
	}
	return nil
}

// resolveSuggestedBranchType revalidates the recommendation against the
// current tree. Recommendations that no longer fit are retryable: the tree
// may have moved under the provider, and the next attempt sees fresh state.
func (s *enrichmentService) resolveSuggestedBranchType(nodes []model.Node, node *model.Node, rec *ai.Recommendation) (model.BranchType, error) {
	if node.IsRoot() {
		if rec.ParentNodeID != nil || rec.BranchKind != model.BranchKindMain {
			return "", &retryableEnrichmentError{"root recommendation must remain on the main branch with no parent"}
		}
		return model.BranchTypeMain, nil
	}

	if rec.ParentNodeID == nil {
		return "", &retryableEnrichmentError{"non-root recommendations must choose a parent"}
	}

	validParent := false
	for _, candidate := range graph.ValidParentCandidates(nodes, node) {
		if candidate.NodeID == *rec.ParentNodeID {
			validParent = true
			break
		}
	}
	if !validParent {
		return "", &retryableEnrichmentError{"AI chose an invalid parent candidate"}
	}

	if rec.BranchKind == model.BranchKindMain {
		if graph.MainChild(nodes, *rec.ParentNodeID, node.NodeID) != nil {
			return "", &retryableEnrichmentError{"AI chose an occupied main branch"}
		}
		return model.BranchTypeMain, nil
	}

	branchType := graph.ResolveBranchType(nodes, node, *rec.ParentNodeID, model.BranchKindSide)
	if branchType == nil || *branchType == model.BranchTypeMain {
		return "", &retryableEnrichmentError{"AI chose a side branch that is no longer available"}
	}
	return *branchType, nil
}
