package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"mindgraph.app/grove/internal/model"
)

type streamStore struct {
	q Querier
}

const streamColumns = `id, metadata, status, created_at, ended_at, created_tx_ref, last_snapshot_index, last_snapshot_hash`

func scanStream(row pgx.Row) (*model.Stream, error) {
	var s model.Stream
	err := row.Scan(
		&s.ID,
		&s.Metadata,
		&s.Status,
		&s.CreatedAt,
		&s.EndedAt,
		&s.CreatedTxRef,
		&s.LastSnapshotIndex,
		&s.LastSnapshotHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (s *streamStore) Insert(ctx context.Context, stream *model.Stream) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO streams (id, metadata, status, created_at, ended_at, created_tx_ref, last_snapshot_index, last_snapshot_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		stream.ID,
		stream.Metadata,
		stream.Status,
		stream.CreatedAt,
		stream.EndedAt,
		stream.CreatedTxRef,
		stream.LastSnapshotIndex,
		stream.LastSnapshotHash,
	)
	return err
}

func (s *streamStore) Get(ctx context.Context, streamID string) (*model.Stream, error) {
	row := s.q.QueryRow(ctx, `SELECT `+streamColumns+` FROM streams WHERE id = $1`, streamID)
	return scanStream(row)
}

func (s *streamStore) AdvanceSnapshot(ctx context.Context, streamID string, snapshotIndex int, snapshotHash string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE streams SET last_snapshot_index = $1, last_snapshot_hash = $2 WHERE id = $3`,
		snapshotIndex, snapshotHash, streamID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *streamStore) End(ctx context.Context, streamID string, endedAt time.Time) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE streams SET status = 'ended', ended_at = $1 WHERE id = $2`,
		endedAt, streamID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
