package service

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/crypto/sha3"

	"mindgraph.app/grove/internal/model"
)

// canonicalSnapshotNode is the hashed subset of a node. Field order is part
// of the wire format; changing it changes every stream's hash.
type canonicalSnapshotNode struct {
	NodeID         int                   `json:"nodeId"`
	Text           string                `json:"text"`
	Timestamp      string                `json:"timestamp"`
	ParentID       *int                  `json:"parentId"`
	BranchType     model.BranchType      `json:"branchType"`
	SuggestedScore *float64              `json:"suggestedScore"`
	Classification *model.Classification `json:"classification"`
}

// canonicalTimestampFormat renders UTC with fixed millisecond precision so
// the same instant always serializes to the same bytes.
const canonicalTimestampFormat = "2006-01-02T15:04:05.000Z"

// CanonicalSnapshotJSON serializes the hash-relevant node subset sorted by
// node id, independent of input order.
func CanonicalSnapshotJSON(nodes []model.Node) ([]byte, error) {
	canonical := make([]canonicalSnapshotNode, len(nodes))
	for i, n := range nodes {
		canonical[i] = canonicalSnapshotNode{
			NodeID:         n.NodeID,
			Text:           n.Text,
			Timestamp:      n.Timestamp.UTC().Format(canonicalTimestampFormat),
			ParentID:       n.ParentID,
			BranchType:     n.BranchType,
			SuggestedScore: n.SuggestedScore,
			Classification: n.Classification,
		}
	}
	sort.Slice(canonical, func(i, j int) bool {
		return canonical[i].NodeID < canonical[j].NodeID
	})

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(canonical); err != nil {
		return nil, fmt.Errorf("encoding canonical snapshot: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ComputeSnapshotHash returns the 0x-prefixed keccak256 of the canonical
// snapshot JSON.
func ComputeSnapshotHash(nodes []model.Node) (string, error) {
	canonical, err := CanonicalSnapshotJSON(nodes)
	if err != nil {
		return "", err
	}

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(canonical)
	return "0x" + hex.EncodeToString(hasher.Sum(nil)), nil
}
