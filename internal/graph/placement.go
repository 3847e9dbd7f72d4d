package graph

import (
	"sort"

	"mindgraph.app/grove/internal/model"
)

const (
	// CandidateWindow bounds the heuristic to the newest nodes.
	CandidateWindow = 10

	// SimilarityThreshold is the minimum score at which the heuristic keeps
	// a fragment on a candidate's main line.
	SimilarityThreshold = 0.35
)

// PlacementSuggestion is the heuristic's proposed slot for a new fragment.
// ParentID is nil only for the root placement.
type PlacementSuggestion struct {
	ParentID   *int
	BranchType model.BranchType
	Score      float64
}

// SuggestPlacement proposes a parent and branch slot for new text. An empty
// tree yields the root placement. Otherwise the newest CandidateWindow nodes
// are scored against the text and tried best-first (ties broken by higher
// node id): main when the score clears the threshold and the slot is free,
// else a free side slot, else main if merely free. A nil result means no
// candidate admits any slot — the tree's capacity is exhausted for this text
// and the caller must reject, not retry.
func SuggestPlacement(existingNodes []model.Node, streamID, text string) *PlacementSuggestion {
	if len(existingNodes) == 0 {
		return &PlacementSuggestion{
			ParentID:   nil,
			BranchType: model.BranchTypeMain,
			Score:      1,
		}
	}

	window := make([]model.Node, len(existingNodes))
	copy(window, existingNodes)
	sort.Slice(window, func(i, j int) bool {
		return window[i].NodeID > window[j].NodeID
	})
	if len(window) > CandidateWindow {
		window = window[:CandidateWindow]
	}

	type scored struct {
		node  model.Node
		score float64
	}
	candidates := make([]scored, len(window))
	for i, candidate := range window {
		candidates[i] = scored{
			node:  candidate,
			score: Score(streamID, candidate.NodeID, text, candidate.Text),
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].node.NodeID > candidates[j].node.NodeID
	})

	for _, entry := range candidates {
		parentID := entry.node.NodeID
		mainFree := MainChild(existingNodes, parentID, 0) == nil
		sideSlot := AvailableSideSlot(existingNodes, parentID, 0)

		if entry.score >= SimilarityThreshold && mainFree {
			return &PlacementSuggestion{ParentID: &parentID, BranchType: model.BranchTypeMain, Score: entry.score}
		}
		if sideSlot != nil {
			return &PlacementSuggestion{ParentID: &parentID, BranchType: *sideSlot, Score: entry.score}
		}
		if mainFree {
			return &PlacementSuggestion{ParentID: &parentID, BranchType: model.BranchTypeMain, Score: entry.score}
		}
	}

	return nil
}
