package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"mindgraph.app/grove/internal/model"
)

type nodeStore struct {
	q Querier
}

const nodeColumns = `stream_id, node_id, text, timestamp, parent_id, branch_type,
	suggested_score, suggested_parent_id, suggested_branch_type, classification,
	ai_status, placement_source, heuristic_parent_id, heuristic_branch_type,
	heuristic_score, ai_rationale, ai_model`

func scanNode(row pgx.Row) (*model.Node, error) {
	var n model.Node
	err := row.Scan(
		&n.StreamID,
		&n.NodeID,
		&n.Text,
		&n.Timestamp,
		&n.ParentID,
		&n.BranchType,
		&n.SuggestedScore,
		&n.SuggestedParentID,
		&n.SuggestedBranchType,
		&n.Classification,
		&n.AIStatus,
		&n.PlacementSource,
		&n.HeuristicParentID,
		&n.HeuristicBranchType,
		&n.HeuristicScore,
		&n.AIRationale,
		&n.AIModel,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (s *nodeStore) Insert(ctx context.Context, node *model.Node) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO nodes (
			stream_id, node_id, text, timestamp, parent_id, branch_type,
			suggested_score, suggested_parent_id, suggested_branch_type, classification,
			ai_status, placement_source, heuristic_parent_id, heuristic_branch_type,
			heuristic_score, ai_rationale, ai_model
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		node.StreamID,
		node.NodeID,
		node.Text,
		node.Timestamp,
		node.ParentID,
		node.BranchType,
		node.SuggestedScore,
		node.SuggestedParentID,
		node.SuggestedBranchType,
		node.Classification,
		node.AIStatus,
		node.PlacementSource,
		node.HeuristicParentID,
		node.HeuristicBranchType,
		node.HeuristicScore,
		node.AIRationale,
		node.AIModel,
	)
	return err
}

func (s *nodeStore) Get(ctx context.Context, streamID string, nodeID int) (*model.Node, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE stream_id = $1 AND node_id = $2`,
		streamID, nodeID)
	return scanNode(row)
}

func (s *nodeStore) ListByStream(ctx context.Context, streamID string) ([]model.Node, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE stream_id = $1 ORDER BY node_id ASC`,
		streamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []model.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *n)
	}
	return nodes, rows.Err()
}

func (s *nodeStore) UpdatePlacement(ctx context.Context, streamID string, nodeID, parentID int, branchType model.BranchType, source model.PlacementSource) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE nodes SET parent_id = $1, branch_type = $2, placement_source = $3
		WHERE stream_id = $4 AND node_id = $5`,
		parentID, branchType, source, streamID, nodeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *nodeStore) ApplyAIResult(ctx context.Context, node *model.Node) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE nodes SET
			parent_id = $1,
			branch_type = $2,
			suggested_score = $3,
			suggested_parent_id = $4,
			suggested_branch_type = $5,
			classification = $6,
			ai_status = $7,
			placement_source = $8,
			ai_rationale = $9,
			ai_model = $10
		WHERE stream_id = $11 AND node_id = $12`,
		node.ParentID,
		node.BranchType,
		node.SuggestedScore,
		node.SuggestedParentID,
		node.SuggestedBranchType,
		node.Classification,
		node.AIStatus,
		node.PlacementSource,
		node.AIRationale,
		node.AIModel,
		node.StreamID,
		node.NodeID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *nodeStore) UpdateAIMetadata(ctx context.Context, streamID string, nodeID int, meta NodeAIMetadata) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE nodes SET
			suggested_score = $1,
			suggested_parent_id = $2,
			suggested_branch_type = $3,
			classification = $4,
			ai_status = $5,
			ai_rationale = $6,
			ai_model = $7
		WHERE stream_id = $8 AND node_id = $9`,
		meta.SuggestedScore,
		meta.SuggestedParentID,
		meta.SuggestedBranchType,
		meta.Classification,
		meta.AIStatus,
		meta.AIRationale,
		meta.AIModel,
		streamID,
		nodeID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *nodeStore) MarkAIFailed(ctx context.Context, streamID string, nodeID int, rationale *string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE nodes SET ai_status = 'failed', ai_rationale = COALESCE($1, ai_rationale)
		WHERE stream_id = $2 AND node_id = $3`,
		rationale, streamID, nodeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *nodeStore) AcceptHeuristic(ctx context.Context, streamID string, nodeID int, classification model.Classification, source model.PlacementSource) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE nodes SET
			classification = COALESCE(classification, $1),
			ai_status = 'accepted_heuristic',
			placement_source = $2
		WHERE stream_id = $3 AND node_id = $4`,
		classification, source, streamID, nodeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *nodeStore) AISummary(ctx context.Context, streamID string) (*model.AISummary, error) {
	row := s.q.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE ai_status = 'pending'),
			COUNT(*) FILTER (WHERE ai_status = 'failed')
		FROM nodes WHERE stream_id = $1`,
		streamID)

	var summary model.AISummary
	if err := row.Scan(&summary.PendingCount, &summary.FailedCount); err != nil {
		return nil, err
	}
	summary.CommitBlocked = summary.PendingCount > 0 || summary.FailedCount > 0
	return &summary, nil
}
