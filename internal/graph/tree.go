package graph

import (
	"regexp"
	"strings"

	"mindgraph.app/grove/internal/model"
)

// MaxNodesPerStream is the hard ceiling on tree size; node creation beyond it
// is rejected.
const MaxNodesPerStream = 50

// ParentCandidate is a node that may legally become the parent of a target
// node, annotated with its remaining slot availability.
type ParentCandidate struct {
	NodeID       int               `json:"nodeId"`
	AllowsMain   bool              `json:"allowsMain"`
	NextSideSlot *model.BranchType `json:"nextAvailableSideSlot"`
}

// MainChild returns the main-branch child of parentID, ignoring ignoreNodeID
// (pass 0 to ignore nothing — node ids start at 1).
func MainChild(nodes []model.Node, parentID, ignoreNodeID int) *model.Node {
	for i := range nodes {
		n := &nodes[i]
		if n.ParentID != nil && *n.ParentID == parentID &&
			n.BranchType == model.BranchTypeMain && n.NodeID != ignoreNodeID {
			return n
		}
	}
	return nil
}

// AvailableSideSlot returns the first free side slot under parentID, or nil
// when both side slots are occupied.
func AvailableSideSlot(nodes []model.Node, parentID, ignoreNodeID int) *model.BranchType {
	var side1, side2 bool
	for i := range nodes {
		n := &nodes[i]
		if n.ParentID == nil || *n.ParentID != parentID || n.NodeID == ignoreNodeID {
			continue
		}
		switch n.BranchType {
		case model.BranchTypeSide1:
			side1 = true
		case model.BranchTypeSide2:
			side2 = true
		}
	}

	if !side1 {
		slot := model.BranchTypeSide1
		return &slot
	}
	if !side2 {
		slot := model.BranchTypeSide2
		return &slot
	}
	return nil
}

// DescendantIDs collects every node reachable from nodeID via child edges.
func DescendantIDs(nodes []model.Node, nodeID int) map[int]struct{} {
	descendants := make(map[int]struct{})
	queue := []int{nodeID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for i := range nodes {
			n := &nodes[i]
			if n.ParentID == nil || *n.ParentID != current {
				continue
			}
			if _, seen := descendants[n.NodeID]; seen {
				continue
			}
			descendants[n.NodeID] = struct{}{}
			queue = append(queue, n.NodeID)
		}
	}

	return descendants
}

// IsValidParent reports whether parentID may become the parent of nodeID:
// a node cannot move under itself or one of its descendants.
func IsValidParent(nodes []model.Node, nodeID, parentID int) bool {
	if nodeID == parentID {
		return false
	}
	_, isDescendant := DescendantIDs(nodes, nodeID)[parentID]
	return !isDescendant
}

// ValidParentCandidates lists every node that may become the parent of the
// target, annotated with slot availability. The root has no candidates.
func ValidParentCandidates(nodes []model.Node, target *model.Node) []ParentCandidate {
	if target.IsRoot() {
		return []ParentCandidate{}
	}

	invalid := DescendantIDs(nodes, target.NodeID)
	invalid[target.NodeID] = struct{}{}

	candidates := make([]ParentCandidate, 0, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		if _, skip := invalid[n.NodeID]; skip {
			continue
		}
		candidates = append(candidates, ParentCandidate{
			NodeID:       n.NodeID,
			AllowsMain:   MainChild(nodes, n.NodeID, target.NodeID) == nil,
			NextSideSlot: AvailableSideSlot(nodes, n.NodeID, target.NodeID),
		})
	}

	return candidates
}

// ResolveBranchType maps a coarse branch kind onto a concrete slot under
// parentID. Main requires a free main slot. Side keeps the node's current
// side slot when it is already attached there, otherwise takes the next free
// side slot. Returns nil when no slot of the requested kind remains.
func ResolveBranchType(nodes []model.Node, node *model.Node, parentID int, kind model.BranchKind) *model.BranchType {
	if kind == model.BranchKindMain {
		if MainChild(nodes, parentID, node.NodeID) != nil {
			return nil
		}
		slot := model.BranchTypeMain
		return &slot
	}

	if node.ParentID != nil && *node.ParentID == parentID && node.IsSideBranch() {
		slot := node.BranchType
		return &slot
	}

	return AvailableSideSlot(nodes, parentID, node.NodeID)
}

var (
	questionOpenerPattern = regexp.MustCompile(`^(who|what|when|where|why|how|is|are|can|should|could|would|do|does|did)\b`)
	counterCuePattern     = regexp.MustCompile(`\b(but|however|instead|although|though|not|never|no|wrong|disagree|cannot|can't|won't)\b`)
	supportCuePattern     = regexp.MustCompile(`\b(because|therefore|thus|also|agree|supports?|evidence|for example|for instance)\b`)
)

// DefaultClassification infers a discourse role from lexical cues:
// interrogative openers or a question mark make a question, contrastive
// markers a counter, causal or agreement markers a support, otherwise claim.
func DefaultClassification(text string) model.Classification {
	normalized := strings.ToLower(text)

	if strings.Contains(normalized, "?") || questionOpenerPattern.MatchString(normalized) {
		return model.ClassificationQuestion
	}
	if counterCuePattern.MatchString(normalized) {
		return model.ClassificationCounter
	}
	if supportCuePattern.MatchString(normalized) {
		return model.ClassificationSupport
	}
	return model.ClassificationClaim
}

// MainTrunkNodeIDs walks the main-child chain from the root and returns every
// node id on it.
func MainTrunkNodeIDs(nodes []model.Node) map[int]struct{} {
	trunk := make(map[int]struct{})

	mainChildByParent := make(map[int]int)
	byID := make(map[int]struct{}, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		byID[n.NodeID] = struct{}{}
		if n.ParentID != nil && n.BranchType == model.BranchTypeMain {
			mainChildByParent[*n.ParentID] = n.NodeID
		}
	}

	currentID := 1
	for {
		if _, ok := byID[currentID]; !ok {
			break
		}
		trunk[currentID] = struct{}{}
		next, ok := mainChildByParent[currentID]
		if !ok {
			break
		}
		currentID = next
	}

	return trunk
}
