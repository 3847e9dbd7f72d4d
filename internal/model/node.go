package model

import "time"

// BranchType is a concrete slot under a parent node.
type BranchType string

const (
	BranchTypeMain  BranchType = "main"
	BranchTypeSide1 BranchType = "side1"
	BranchTypeSide2 BranchType = "side2"
)

// BranchKind is the coarse placement request produced by a provider: either
// continue the main line or attach as a side branch. The concrete side slot is
// resolved against current slot availability.
type BranchKind string

const (
	BranchKindMain BranchKind = "main"
	BranchKindSide BranchKind = "side"
)

// Classification is the discourse role of a node's text.
type Classification string

const (
	ClassificationClaim    Classification = "claim"
	ClassificationSupport  Classification = "support"
	ClassificationCounter  Classification = "counter"
	ClassificationQuestion Classification = "question"
)

// AIStatus tracks where a node stands in the enrichment lifecycle.
type AIStatus string

const (
	AIStatusPending           AIStatus = "pending"
	AIStatusCompleted         AIStatus = "completed"
	AIStatusFailed            AIStatus = "failed"
	AIStatusAcceptedHeuristic AIStatus = "accepted_heuristic"
)

// PlacementSource records the provenance of a node's effective placement.
// Manual placements are sticky: later provider output may only update the
// suggestion metadata, never move the node.
type PlacementSource string

const (
	PlacementSourceHeuristic         PlacementSource = "heuristic"
	PlacementSourceAI                PlacementSource = "ai"
	PlacementSourceManual            PlacementSource = "manual"
	PlacementSourceHeuristicAccepted PlacementSource = "heuristic_accepted"
)

// Node is one fragment placed in a stream's tree. NodeID is sequential per
// stream starting at 1; node 1 is the root (ParentID nil, main branch).
// The effective placement (ParentID, BranchType) is kept separate from the
// provider suggestion and from the heuristic-origin snapshot used for audit.
type Node struct {
	StreamID  string
	NodeID    int
	Text      string
	Timestamp time.Time

	ParentID   *int
	BranchType BranchType

	SuggestedScore      *float64
	SuggestedParentID   *int
	SuggestedBranchType BranchType

	Classification  *Classification
	AIStatus        AIStatus
	PlacementSource PlacementSource

	HeuristicParentID   *int
	HeuristicBranchType BranchType
	HeuristicScore      float64

	AIRationale *string
	AIModel     *string
}

// AISummary aggregates a stream's enrichment state. A commit is blocked
// while any node is still pending or failed.
type AISummary struct {
	PendingCount  int
	FailedCount   int
	CommitBlocked bool
}

func (n *Node) IsRoot() bool {
	return n.NodeID == 1
}

func (n *Node) IsSideBranch() bool {
	return n.BranchType == BranchTypeSide1 || n.BranchType == BranchTypeSide2
}
