package store

import (
	"context"

	"mindgraph.app/grove/internal/model"
)

type snapshotStore struct {
	q Querier
}

func (s *snapshotStore) Insert(ctx context.Context, snapshot *model.Snapshot) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO snapshots (stream_id, snapshot_index, snapshot_hash, reason, tx_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		snapshot.StreamID,
		snapshot.SnapshotIndex,
		snapshot.SnapshotHash,
		snapshot.Reason,
		snapshot.TxRef,
		snapshot.CreatedAt,
	)
	return err
}

func (s *snapshotStore) ListByStream(ctx context.Context, streamID string) ([]model.Snapshot, error) {
	rows, err := s.q.Query(ctx, `
		SELECT stream_id, snapshot_index, snapshot_hash, reason, tx_ref, created_at
		FROM snapshots WHERE stream_id = $1 ORDER BY snapshot_index DESC`,
		streamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []model.Snapshot
	for rows.Next() {
		var snap model.Snapshot
		if err := rows.Scan(
			&snap.StreamID,
			&snap.SnapshotIndex,
			&snap.SnapshotHash,
			&snap.Reason,
			&snap.TxRef,
			&snap.CreatedAt,
		); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}
