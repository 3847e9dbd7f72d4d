package service

import "errors"

var (
	ErrStreamNotFound        = errors.New("stream not found")
	ErrStreamEnded           = errors.New("the stream has already ended")
	ErrNodeNotFound          = errors.New("node not found")
	ErrParentNotFound        = errors.New("parent node not found")
	ErrNodeLimitReached      = errors.New("the stream has reached the node limit")
	ErrTreeCapacityExhausted = errors.New("no valid placement remains in the tree")
	ErrRootImmutable         = errors.New("the root node cannot be overridden")
	ErrInvalidParent         = errors.New("a node cannot move under itself or one of its descendants")
	ErrMainBranchOccupied    = errors.New("the selected parent already has a main child")
	ErrSideBranchLimit       = errors.New("the selected parent already has two side branches")
	ErrNodeNotFailed         = errors.New("only failed AI nodes can accept the heuristic placement")
	ErrEnrichmentBlocking    = errors.New("AI enrichment must complete or be manually accepted before committing")
)
