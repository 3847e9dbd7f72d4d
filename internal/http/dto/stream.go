package dto

import (
	"time"

	"mindgraph.app/grove/internal/model"
	"mindgraph.app/grove/internal/service"
)

type CreateStreamRequest struct {
	Metadata string `json:"metadata" binding:"omitempty,max=256"`
}

type CommitRequest struct {
	Reason model.SnapshotReason `json:"reason" binding:"required,oneof=auto manual final"`
}

type StreamResponse struct {
	ID                string     `json:"id"`
	Metadata          *string    `json:"metadata"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"createdAt"`
	EndedAt           *time.Time `json:"endedAt"`
	CreatedTxRef      string     `json:"createdTxRef"`
	LastSnapshotIndex int        `json:"lastSnapshotIndex"`
	LastSnapshotHash  *string    `json:"lastSnapshotHash"`
}

func ToStreamResponse(s *model.Stream) *StreamResponse {
	return &StreamResponse{
		ID:                s.ID,
		Metadata:          s.Metadata,
		Status:            string(s.Status),
		CreatedAt:         s.CreatedAt,
		EndedAt:           s.EndedAt,
		CreatedTxRef:      s.CreatedTxRef,
		LastSnapshotIndex: s.LastSnapshotIndex,
		LastSnapshotHash:  s.LastSnapshotHash,
	}
}

type SnapshotResponse struct {
	StreamID      string    `json:"streamId"`
	SnapshotIndex int       `json:"snapshotIndex"`
	SnapshotHash  string    `json:"snapshotHash"`
	Reason        string    `json:"reason"`
	TxRef         string    `json:"txRef"`
	CreatedAt     time.Time `json:"createdAt"`
}

func ToSnapshotResponse(s *model.Snapshot) *SnapshotResponse {
	return &SnapshotResponse{
		StreamID:      s.StreamID,
		SnapshotIndex: s.SnapshotIndex,
		SnapshotHash:  s.SnapshotHash,
		Reason:        string(s.Reason),
		TxRef:         s.TxRef,
		CreatedAt:     s.CreatedAt,
	}
}

type StreamLimitsResponse struct {
	MaxNodes   int  `json:"maxNodes"`
	NodeCount  int  `json:"nodeCount"`
	CanAddNode bool `json:"canAddNode"`
}

type AISummaryResponse struct {
	PendingCount  int  `json:"pendingCount"`
	FailedCount   int  `json:"failedCount"`
	CommitBlocked bool `json:"commitBlocked"`
}

type StreamDetailResponse struct {
	Stream    *StreamResponse      `json:"stream"`
	Nodes     []NodeResponse       `json:"nodes"`
	Snapshots []SnapshotResponse   `json:"snapshots"`
	Limits    StreamLimitsResponse `json:"limits"`
	AI        AISummaryResponse    `json:"ai"`
}

func ToStreamDetailResponse(detail *service.StreamDetail) *StreamDetailResponse {
	nodes := make([]NodeResponse, len(detail.Nodes))
	for i := range detail.Nodes {
		nodes[i] = *ToNodeResponse(&detail.Nodes[i])
	}
	snapshots := make([]SnapshotResponse, len(detail.Snapshots))
	for i := range detail.Snapshots {
		snapshots[i] = *ToSnapshotResponse(&detail.Snapshots[i])
	}

	return &StreamDetailResponse{
		Stream:    ToStreamResponse(detail.Stream),
		Nodes:     nodes,
		Snapshots: snapshots,
		Limits: StreamLimitsResponse{
			MaxNodes:   detail.Limits.MaxNodes,
			NodeCount:  detail.Limits.NodeCount,
			CanAddNode: detail.Limits.CanAddNode,
		},
		AI: AISummaryResponse{
			PendingCount:  detail.AI.PendingCount,
			FailedCount:   detail.AI.FailedCount,
			CommitBlocked: detail.AI.CommitBlocked,
		},
	}
}

type CommitResponse struct {
	Committed     bool              `json:"committed"`
	SkippedReason *string           `json:"skippedReason,omitempty"`
	Snapshot      *SnapshotResponse `json:"snapshot,omitempty"`
	Stream        *StreamResponse   `json:"stream"`
}

func ToCommitResponse(result *service.CommitResult) *CommitResponse {
	resp := &CommitResponse{
		Committed: result.Committed,
		Stream:    ToStreamResponse(result.Stream),
	}
	if result.SkippedReason != "" {
		reason := string(result.SkippedReason)
		resp.SkippedReason = &reason
	}
	if result.Snapshot != nil {
		resp.Snapshot = ToSnapshotResponse(result.Snapshot)
	}
	return resp
}
