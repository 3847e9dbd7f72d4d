package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"mindgraph.app/grove/internal/model"
)

type jobStore struct {
	q Querier
}

const jobColumns = `stream_id, node_id, status, attempt_count, next_attempt_at, last_error, started_at, completed_at`

func scanJob(row pgx.Row) (*model.EnrichmentJob, error) {
	var j model.EnrichmentJob
	err := row.Scan(
		&j.StreamID,
		&j.NodeID,
		&j.Status,
		&j.AttemptCount,
		&j.NextAttemptAt,
		&j.LastError,
		&j.StartedAt,
		&j.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

func (s *jobStore) Enqueue(ctx context.Context, job *model.EnrichmentJob) error {
	// Requeueing keeps the existing attempt count so the retry ladder is not
	// reset by a duplicate enqueue.
	_, err := s.q.Exec(ctx, `
		INSERT INTO node_enrichment_jobs (stream_id, node_id, status, attempt_count, next_attempt_at, last_error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (stream_id, node_id) DO UPDATE SET
			status = excluded.status,
			next_attempt_at = excluded.next_attempt_at,
			last_error = excluded.last_error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at`,
		job.StreamID,
		job.NodeID,
		job.Status,
		job.AttemptCount,
		job.NextAttemptAt,
		job.LastError,
		job.StartedAt,
		job.CompletedAt,
	)
	return err
}

func (s *jobStore) Get(ctx context.Context, streamID string, nodeID int) (*model.EnrichmentJob, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM node_enrichment_jobs WHERE stream_id = $1 AND node_id = $2`,
		streamID, nodeID)
	return scanJob(row)
}

func (s *jobStore) ListDue(ctx context.Context, now time.Time, limit int) ([]model.EnrichmentJob, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+jobColumns+` FROM node_enrichment_jobs
		WHERE status IN ('queued', 'retrying') AND next_attempt_at <= $1
		ORDER BY next_attempt_at ASC, node_id ASC
		LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.EnrichmentJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (s *jobStore) MarkRunning(ctx context.Context, streamID string, nodeID, attemptCount int, startedAt time.Time) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE node_enrichment_jobs SET
			status = 'running',
			attempt_count = $1,
			started_at = $2,
			last_error = NULL
		WHERE stream_id = $3 AND node_id = $4`,
		attemptCount, startedAt, streamID, nodeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *jobStore) ScheduleRetry(ctx context.Context, streamID string, nodeID int, nextAttemptAt time.Time, lastError string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE node_enrichment_jobs SET
			status = 'retrying',
			next_attempt_at = $1,
			last_error = $2,
			started_at = NULL
		WHERE stream_id = $3 AND node_id = $4`,
		nextAttemptAt, lastError, streamID, nodeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *jobStore) Fail(ctx context.Context, streamID string, nodeID int, completedAt time.Time, lastError string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE node_enrichment_jobs SET
			status = 'failed',
			last_error = $1,
			completed_at = $2,
			started_at = NULL
		WHERE stream_id = $3 AND node_id = $4`,
		lastError, completedAt, streamID, nodeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *jobStore) Complete(ctx context.Context, streamID string, nodeID int, completedAt time.Time) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE node_enrichment_jobs SET
			status = 'completed',
			completed_at = $1,
			started_at = NULL,
			last_error = NULL
		WHERE stream_id = $2 AND node_id = $3`,
		completedAt, streamID, nodeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
