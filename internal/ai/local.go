package ai

import (
	"context"
	"fmt"
	"sort"

	"mindgraph.app/grove/internal/graph"
	"mindgraph.app/grove/internal/model"
)

const localMainContinuationThreshold = 0.24

// localProvider mirrors the deterministic heuristic so the whole enrichment
// path works offline. It never fails retryably.
type localProvider struct {
	model string
}

func newLocalProvider(modelName string) *localProvider {
	if modelName == "" {
		modelName = "local-heuristic-v2"
	}
	return &localProvider{model: modelName}
}

func (p *localProvider) Model() string { return p.model }

func (p *localProvider) AnalyzeNode(_ context.Context, pctx Context) (*Recommendation, error) {
	targetClassification := graph.DefaultClassification(pctx.TargetNode.Text)

	if pctx.TargetNode.NodeID == 1 {
		cls := model.ClassificationClaim
		if targetClassification == model.ClassificationQuestion {
			cls = model.ClassificationQuestion
		}
		return &Recommendation{
			ParentNodeID:   nil,
			BranchKind:     model.BranchKindMain,
			Classification: cls,
			Confidence:     0.99,
			Rationale:      "Local heuristic anchored the root node on the main line.",
		}, nil
	}

	for _, entry := range rankCandidates(pctx) {
		kind, ok := chooseBranchKind(entry.candidate, entry.score, targetClassification)
		if !ok {
			continue
		}

		parentID := entry.node.NodeID
		return &Recommendation{
			ParentNodeID:   &parentID,
			BranchKind:     kind,
			Classification: resolveClassification(pctx.TargetNode.Text, kind),
			Confidence:     toConfidence(entry.score, kind),
			Rationale:      buildRationale(entry.node, entry.score, kind, targetClassification),
		}, nil
	}

	return nil, &ProviderError{
		Kind:    ErrorKindBadResponse,
		Message: "local provider could not find a valid parent placement",
	}
}

type rankedCandidate struct {
	candidate graph.ParentCandidate
	node      GraphNode
	score     float64
}

// rankCandidates scores every valid parent candidate against the target and
// orders them best-first, newest-first on ties.
func rankCandidates(pctx Context) []rankedCandidate {
	nodeByID := make(map[int]GraphNode, len(pctx.Graph))
	maxNodeID := 1
	childCounts := make(map[int]int)
	for _, n := range pctx.Graph {
		nodeByID[n.NodeID] = n
		if n.NodeID > maxNodeID {
			maxNodeID = n.NodeID
		}
		if n.ParentID != nil {
			childCounts[*n.ParentID]++
		}
	}

	targetClassification := graph.DefaultClassification(pctx.TargetNode.Text)

	ranked := make([]rankedCandidate, 0, len(pctx.Candidates))
	for _, candidate := range pctx.Candidates {
		node, ok := nodeByID[candidate.NodeID]
		if !ok {
			continue
		}
		ranked = append(ranked, rankedCandidate{
			candidate: candidate,
			node:      node,
			score:     scoreCandidate(pctx, node, candidate, targetClassification, maxNodeID, childCounts),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].node.NodeID > ranked[j].node.NodeID
	})
	return ranked
}

func scoreCandidate(
	pctx Context,
	node GraphNode,
	candidate graph.ParentCandidate,
	targetClassification model.Classification,
	maxNodeID int,
	childCounts map[int]int,
) float64 {
	baseScore := graph.Score(pctx.StreamID, node.NodeID, pctx.TargetNode.Text, node.Text)
	topicality := topicalOverlap(pctx.TargetNode.Text, node.Text)
	recency := 0.0
	if maxNodeID > 1 {
		recency = float64(node.NodeID) / float64(maxNodeID)
	}

	score := baseScore*0.72 + topicality*0.16 + recency*0.05

	if childCounts[node.NodeID] == 0 {
		score += 0.03
	}

	switch targetClassification {
	case model.ClassificationSupport, model.ClassificationClaim:
		if candidate.AllowsMain {
			score += 0.08
		}
		if node.BranchType == model.BranchTypeMain {
			score += 0.04
		}
	case model.ClassificationCounter:
		if candidate.NextSideSlot != nil {
			score += 0.1
		}
		if node.BranchType == model.BranchTypeMain {
			score += 0.03
		}
	case model.ClassificationQuestion:
		if candidate.NextSideSlot != nil && !candidate.AllowsMain {
			score += 0.04
		}
	}

	candidateClassification := model.ClassificationClaim
	if node.Classification != nil {
		candidateClassification = *node.Classification
	}
	if classificationsCompatible(targetClassification, candidateClassification) {
		score += 0.06
	}

	score = graph.Round4(score)
	if score > 1 {
		return 1
	}
	return score
}

// topicalOverlap measures how much of the target's vocabulary the candidate
// covers, weighting longer tokens a little heavier.
func topicalOverlap(targetText, candidateText string) float64 {
	targetTokens := graph.Tokenize(targetText)
	candidateTokens := graph.Tokenize(candidateText)
	if len(targetTokens) == 0 || len(candidateTokens) == 0 {
		return 0
	}

	candidateSet := make(map[string]struct{}, len(candidateTokens))
	for _, token := range candidateTokens {
		candidateSet[token] = struct{}{}
	}

	tokenWeight := func(token string) float64 {
		if len(token) >= 6 {
			return 1.25
		}
		return 1
	}

	var weightedOverlap, normalizer float64
	for _, token := range targetTokens {
		normalizer += tokenWeight(token)
		if _, ok := candidateSet[token]; ok {
			weightedOverlap += tokenWeight(token)
		}
	}
	if weightedOverlap == 0 || normalizer == 0 {
		return 0
	}
	return weightedOverlap / normalizer
}

func classificationsCompatible(target, candidate model.Classification) bool {
	switch target {
	case model.ClassificationSupport, model.ClassificationCounter:
		return candidate == model.ClassificationClaim ||
			candidate == model.ClassificationSupport ||
			candidate == model.ClassificationQuestion
	case model.ClassificationQuestion:
		return candidate != model.ClassificationQuestion
	default:
		return candidate == model.ClassificationClaim || candidate == model.ClassificationSupport
	}
}

// chooseBranchKind maps a candidate slot layout and relatedness score to a
// branch kind, biased by what the target looks like. Counters prefer side
// slots; everything else continues the main line when related enough.
func chooseBranchKind(
	candidate graph.ParentCandidate,
	score float64,
	targetClassification model.Classification,
) (model.BranchKind, bool) {
	switch targetClassification {
	case model.ClassificationCounter:
		if candidate.NextSideSlot != nil {
			return model.BranchKindSide, true
		}
		if candidate.AllowsMain {
			return model.BranchKindMain, true
		}
		return "", false
	case model.ClassificationQuestion:
		if candidate.AllowsMain && score >= graph.SimilarityThreshold {
			return model.BranchKindMain, true
		}
		if candidate.NextSideSlot != nil {
			return model.BranchKindSide, true
		}
		if candidate.AllowsMain {
			return model.BranchKindMain, true
		}
		return "", false
	}

	if candidate.AllowsMain && score >= localMainContinuationThreshold {
		return model.BranchKindMain, true
	}
	if candidate.NextSideSlot != nil {
		return model.BranchKindSide, true
	}
	if candidate.AllowsMain {
		return model.BranchKindMain, true
	}
	return "", false
}

// resolveClassification refines a plain claim by where it landed: main-line
// claims read as support, side-branch claims as counters.
func resolveClassification(text string, kind model.BranchKind) model.Classification {
	base := graph.DefaultClassification(text)
	if base != model.ClassificationClaim {
		return base
	}
	if kind == model.BranchKindMain {
		return model.ClassificationSupport
	}
	return model.ClassificationCounter
}

func toConfidence(score float64, kind model.BranchKind) float64 {
	baseline, max := 0.48, 0.84
	if kind == model.BranchKindMain {
		baseline, max = 0.62, 0.96
	}
	confidence := baseline + score*0.35
	if confidence > max {
		confidence = max
	}
	return graph.Round4(confidence)
}

func buildRationale(
	node GraphNode,
	score float64,
	kind model.BranchKind,
	targetClassification model.Classification,
) string {
	if kind == model.BranchKindMain && score >= graph.SimilarityThreshold {
		return fmt.Sprintf("Local heuristic matched this most closely with #%d and kept it on the main line.", node.NodeID)
	}
	if kind == model.BranchKindMain {
		return fmt.Sprintf("Local heuristic treated #%d as the best continuation based on topic overlap and branch availability.", node.NodeID)
	}
	if targetClassification == model.ClassificationCounter {
		return fmt.Sprintf("Local heuristic treated #%d as the closest claim to challenge and attached this as a side branch.", node.NodeID)
	}
	return fmt.Sprintf("Local heuristic attached this beside #%d because it fit better as a side thread than a main-line continuation.", node.NodeID)
}
