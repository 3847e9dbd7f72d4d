package dto

import (
	"time"

	"mindgraph.app/grove/internal/model"
)

type CreateNodeRequest struct {
	Text string `json:"text" binding:"required,max=4000"`
}

type UpdateNodeRequest struct {
	ParentID   int              `json:"parentId" binding:"required,gt=0"`
	BranchKind model.BranchKind `json:"branchKind" binding:"required,oneof=main side"`
}

type NodeResponse struct {
	StreamID            string     `json:"streamId"`
	NodeID              int        `json:"nodeId"`
	Text                string     `json:"text"`
	Timestamp           time.Time  `json:"timestamp"`
	ParentID            *int       `json:"parentId"`
	BranchType          string     `json:"branchType"`
	SuggestedScore      *float64   `json:"suggestedScore"`
	SuggestedParentID   *int       `json:"suggestedParentId"`
	SuggestedBranchType string     `json:"suggestedBranchType"`
	Classification      *string    `json:"classification"`
	AIStatus            string     `json:"aiStatus"`
	PlacementSource     string     `json:"placementSource"`
	HeuristicParentID   *int       `json:"heuristicParentId"`
	HeuristicBranchType string     `json:"heuristicBranchType"`
	HeuristicScore      float64    `json:"heuristicScore"`
	AIRationale         *string    `json:"aiRationale"`
	AIModel             *string    `json:"aiModel"`
}

func ToNodeResponse(n *model.Node) *NodeResponse {
	var classification *string
	if n.Classification != nil {
		c := string(*n.Classification)
		classification = &c
	}

	return &NodeResponse{
		StreamID:            n.StreamID,
		NodeID:              n.NodeID,
		Text:                n.Text,
		Timestamp:           n.Timestamp,
		ParentID:            n.ParentID,
		BranchType:          string(n.BranchType),
		SuggestedScore:      n.SuggestedScore,
		SuggestedParentID:   n.SuggestedParentID,
		SuggestedBranchType: string(n.SuggestedBranchType),
		Classification:      classification,
		AIStatus:            string(n.AIStatus),
		PlacementSource:     string(n.PlacementSource),
		HeuristicParentID:   n.HeuristicParentID,
		HeuristicBranchType: string(n.HeuristicBranchType),
		HeuristicScore:      n.HeuristicScore,
		AIRationale:         n.AIRationale,
		AIModel:             n.AIModel,
	}
}
