package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mindgraph.app/grove/internal/graph"
	"mindgraph.app/grove/internal/lock"
	"mindgraph.app/grove/internal/model"
	"mindgraph.app/grove/internal/store"
)

type GraphService interface {
	// AddNode appends a fragment to the stream, placing it with the
	// deterministic heuristic and queueing enrichment.
	AddNode(ctx context.Context, streamID, text string) (*model.Node, error)
	// OverrideNode manually re-parents a node. Manual placements are sticky
	// against later AI output.
	OverrideNode(ctx context.Context, streamID string, nodeID, parentID int, kind model.BranchKind) (*model.Node, error)
}

type graphService struct {
	streams    store.StreamStore
	nodes      store.NodeStore
	enrichment EnrichmentService
	streamLock *lock.KeyLock
}

func NewGraphService(streams store.StreamStore, nodes store.NodeStore, enrichment EnrichmentService, streamLock *lock.KeyLock) GraphService {
	return &graphService{
		streams:    streams,
		nodes:      nodes,
		enrichment: enrichment,
		streamLock: streamLock,
	}
}

func (s *graphService) AddNode(ctx context.Context, streamID, text string) (*model.Node, error) {
	var node *model.Node
	err := s.streamLock.RunExclusive(ctx, streamID, func(ctx context.Context) error {
		var err error
		node, err = s.addNodeLocked(ctx, streamID, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (s *graphService) addNodeLocked(ctx context.Context, streamID, text string) (*model.Node, error) {
	stream, err := s.getActiveStream(ctx, streamID)
	if err != nil {
		return nil, err
	}

	nodes, err := s.nodes.ListByStream(ctx, stream.ID)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	if len(nodes) >= graph.MaxNodesPerStream {
		return nil, ErrNodeLimitReached
	}

	timestamp := now()

	var node *model.Node
	if len(nodes) == 0 {
		node = &model.Node{
			StreamID:            streamID,
			NodeID:              1,
			Text:                text,
			Timestamp:           timestamp,
			BranchType:          model.BranchTypeMain,
			SuggestedBranchType: model.BranchTypeMain,
			AIStatus:            model.AIStatusPending,
			PlacementSource:     model.PlacementSourceHeuristic,
			HeuristicBranchType: model.BranchTypeMain,
			HeuristicScore:      1,
		}
	} else {
		suggestion := graph.SuggestPlacement(nodes, streamID, text)
		if suggestion == nil || suggestion.ParentID == nil {
			return nil, ErrTreeCapacityExhausted
		}

		nextNodeID := nodes[len(nodes)-1].NodeID + 1
		node = &model.Node{
			StreamID:            streamID,
			NodeID:              nextNodeID,
			Text:                text,
			Timestamp:           timestamp,
			ParentID:            suggestion.ParentID,
			BranchType:          suggestion.BranchType,
			SuggestedParentID:   suggestion.ParentID,
			SuggestedBranchType: suggestion.BranchType,
			AIStatus:            model.AIStatusPending,
			PlacementSource:     model.PlacementSourceHeuristic,
			HeuristicParentID:   suggestion.ParentID,
			HeuristicBranchType: suggestion.BranchType,
			HeuristicScore:      suggestion.Score,
		}
	}

	if err := s.nodes.Insert(ctx, node); err != nil {
		slog.ErrorContext(ctx, "failed to insert node",
			"error", err,
			"stream_id", streamID,
			"node_id", node.NodeID,
		)
		return nil, fmt.Errorf("inserting node: %w", err)
	}

	if err := s.enrichment.EnqueueNode(ctx, streamID, node.NodeID); err != nil {
		return nil, fmt.Errorf("enqueueing enrichment: %w", err)
	}

	slog.InfoContext(ctx, "node added",
		"stream_id", streamID,
		"node_id", node.NodeID,
		"heuristic_score", node.HeuristicScore,
	)
	return node, nil
}

func (s *graphService) OverrideNode(ctx context.Context, streamID string, nodeID, parentID int, kind model.BranchKind) (*model.Node, error) {
	var node *model.Node
	err := s.streamLock.RunExclusive(ctx, streamID, func(ctx context.Context) error {
		var err error
		node, err = s.overrideNodeLocked(ctx, streamID, nodeID, parentID, kind)
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (s *graphService) overrideNodeLocked(ctx context.Context, streamID string, nodeID, parentID int, kind model.BranchKind) (*model.Node, error) {
	if _, err := s.getActiveStream(ctx, streamID); err != nil {
		return nil, err
	}

	nodes, err := s.nodes.ListByStream(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}

	node := findNode(nodes, nodeID)
	if node == nil {
		return nil, ErrNodeNotFound
	}
	if node.IsRoot() {
		return nil, ErrRootImmutable
	}
	if findNode(nodes, parentID) == nil {
		return nil, ErrParentNotFound
	}

	if parentID == nodeID {
		return nil, ErrInvalidParent
	}
	if _, isDescendant := graph.DescendantIDs(nodes, nodeID)[parentID]; isDescendant {
		return nil, ErrInvalidParent
	}

	branchType := graph.ResolveBranchType(nodes, node, parentID, kind)
	if branchType == nil {
		if kind == model.BranchKindMain {
			return nil, ErrMainBranchOccupied
		}
		return nil, ErrSideBranchLimit
	}

	if err := s.nodes.UpdatePlacement(ctx, streamID, nodeID, parentID, *branchType, model.PlacementSourceManual); err != nil {
		slog.ErrorContext(ctx, "failed to update node placement",
			"error", err,
			"stream_id", streamID,
			"node_id", nodeID,
		)
		return nil, fmt.Errorf("updating node placement: %w", err)
	}

	updated := *node
	updated.ParentID = &parentID
	updated.BranchType = *branchType
	updated.PlacementSource = model.PlacementSourceManual

	slog.InfoContext(ctx, "node overridden",
		"stream_id", streamID,
		"node_id", nodeID,
		"parent_id", parentID,
		"branch_type", *branchType,
	)
	return &updated, nil
}

func (s *graphService) getActiveStream(ctx context.Context, streamID string) (*model.Stream, error) {
	stream, err := getStream(ctx, s.streams, streamID)
	if err != nil {
		return nil, err
	}
	if stream.Ended() {
		return nil, ErrStreamEnded
	}
	return stream, nil
}

func getStream(ctx context.Context, streams store.StreamStore, streamID string) (*model.Stream, error) {
	stream, err := streams.Get(ctx, streamID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrStreamNotFound
		}
		return nil, fmt.Errorf("getting stream: %w", err)
	}
	return stream, nil
}

func findNode(nodes []model.Node, nodeID int) *model.Node {
	for i := range nodes {
		if nodes[i].NodeID == nodeID {
			return &nodes[i]
		}
	}
	return nil
}
