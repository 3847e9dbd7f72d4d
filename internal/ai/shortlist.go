package ai

import (
	"sort"

	"mindgraph.app/grove/internal/graph"
	"mindgraph.app/grove/internal/model"
)

// Shortlist caps for the small-model prompt. Local models lose the plot on
// full graphs, so the payload is trimmed to the strongest candidates plus the
// context needed to understand them.
const (
	shortlistMaxParentCandidates = 6
	shortlistMaxGraphNodes       = 14
)

type candidateSummary struct {
	NodeID         int                   `json:"nodeId"`
	Text           string                `json:"text"`
	Classification *model.Classification `json:"classification"`
	ParentID       *int                  `json:"parentId"`
	BranchType     model.BranchType      `json:"branchType"`
	AllowsMain     bool                  `json:"allowsMain"`
	NextSideSlot   *model.BranchType     `json:"nextAvailableSideSlot"`
	HeuristicScore float64               `json:"heuristicScore"`
}

type heuristicChoice struct {
	ParentNodeID   *int                 `json:"parentNodeId"`
	BranchKind     model.BranchKind     `json:"branchKind"`
	Classification model.Classification `json:"classification"`
}

type shortlistPayload struct {
	StreamID           string                  `json:"streamId"`
	TargetNode         TargetNode              `json:"targetNode"`
	Graph              []GraphNode             `json:"currentGraph"`
	Candidates         []graph.ParentCandidate `json:"validParentCandidates"`
	CandidateSummaries []candidateSummary      `json:"candidateSummaries"`
	HeuristicTopChoice *heuristicChoice        `json:"heuristicTopChoice"`
}

// buildShortlistPayload narrows the provider context to the top-ranked parent
// candidates, their ancestor chains, and the most recent nodes, and attaches
// the heuristic's own pick as a hint.
func buildShortlistPayload(pctx Context) shortlistPayload {
	if pctx.TargetNode.NodeID == 1 {
		return shortlistPayload{
			StreamID:           pctx.StreamID,
			TargetNode:         pctx.TargetNode,
			Graph:              []GraphNode{},
			Candidates:         []graph.ParentCandidate{},
			CandidateSummaries: []candidateSummary{},
			HeuristicTopChoice: &heuristicChoice{
				ParentNodeID:   nil,
				BranchKind:     model.BranchKindMain,
				Classification: graph.DefaultClassification(pctx.TargetNode.Text),
			},
		}
	}

	ranked := rankCandidates(pctx)
	if len(ranked) > shortlistMaxParentCandidates {
		ranked = ranked[:shortlistMaxParentCandidates]
	}

	candidateIDs := make([]int, len(ranked))
	for i, entry := range ranked {
		candidateIDs[i] = entry.node.NodeID
	}
	selected := collectShortlistNodeIDs(pctx.Graph, candidateIDs)

	targetClassification := graph.DefaultClassification(pctx.TargetNode.Text)
	var topChoice *heuristicChoice
	for _, entry := range ranked {
		kind, ok := chooseBranchKind(entry.candidate, entry.score, targetClassification)
		if !ok {
			continue
		}
		parentID := entry.node.NodeID
		topChoice = &heuristicChoice{
			ParentNodeID:   &parentID,
			BranchKind:     kind,
			Classification: resolveClassification(pctx.TargetNode.Text, kind),
		}
		break
	}

	graphNodes := make([]GraphNode, 0, len(selected))
	for _, n := range pctx.Graph {
		if _, ok := selected[n.NodeID]; ok {
			graphNodes = append(graphNodes, n)
		}
	}

	candidates := make([]graph.ParentCandidate, len(ranked))
	summaries := make([]candidateSummary, len(ranked))
	for i, entry := range ranked {
		candidates[i] = entry.candidate
		summaries[i] = candidateSummary{
			NodeID:         entry.node.NodeID,
			Text:           entry.node.Text,
			Classification: entry.node.Classification,
			ParentID:       entry.node.ParentID,
			BranchType:     entry.node.BranchType,
			AllowsMain:     entry.candidate.AllowsMain,
			NextSideSlot:   entry.candidate.NextSideSlot,
			HeuristicScore: entry.score,
		}
	}

	return shortlistPayload{
		StreamID:           pctx.StreamID,
		TargetNode:         pctx.TargetNode,
		Graph:              graphNodes,
		Candidates:         candidates,
		CandidateSummaries: summaries,
		HeuristicTopChoice: topChoice,
	}
}

// collectShortlistNodeIDs walks each candidate's ancestry root-first, then
// backfills with the newest nodes up to the cap.
func collectShortlistNodeIDs(graphNodes []GraphNode, candidateIDs []int) map[int]struct{} {
	nodeByID := make(map[int]GraphNode, len(graphNodes))
	for _, n := range graphNodes {
		nodeByID[n.NodeID] = n
	}

	var ordered []int
	seen := make(map[int]struct{})
	add := func(id int) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}

	for _, candidateID := range candidateIDs {
		var ancestry []int
		currentID := candidateID
		for {
			ancestry = append([]int{currentID}, ancestry...)
			n, ok := nodeByID[currentID]
			if !ok || n.ParentID == nil {
				break
			}
			currentID = *n.ParentID
		}
		for _, id := range ancestry {
			add(id)
		}
	}

	recent := make([]int, 0, len(graphNodes))
	for _, n := range graphNodes {
		recent = append(recent, n.NodeID)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(recent)))
	for _, id := range recent {
		if len(ordered) >= shortlistMaxGraphNodes {
			break
		}
		add(id)
	}

	if len(ordered) > shortlistMaxGraphNodes {
		ordered = ordered[:shortlistMaxGraphNodes]
	}

	selected := make(map[int]struct{}, len(ordered))
	for _, id := range ordered {
		selected[id] = struct{}{}
	}
	return selected
}
