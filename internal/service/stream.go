package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mindgraph.app/grove/internal/chain"
	"mindgraph.app/grove/internal/model"
	"mindgraph.app/grove/internal/store"
)

type StreamService interface {
	// Create registers a stream on the ledger and persists it locally. An
	// empty metadata falls back to the default label.
	Create(ctx context.Context, metadata string) (*model.Stream, error)
}

type streamService struct {
	streams store.StreamStore
	ledger  chain.Ledger
}

func NewStreamService(streams store.StreamStore, ledger chain.Ledger) StreamService {
	return &streamService{streams: streams, ledger: ledger}
}

// now returns wall time truncated to milliseconds. Snapshot hashes cover
// timestamps, so precision must survive the database roundtrip unchanged.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (s *streamService) Create(ctx context.Context, metadata string) (*model.Stream, error) {
	metadata = strings.TrimSpace(metadata)
	if metadata == "" {
		metadata = model.DefaultStreamMetadata
	}

	receipt, err := s.ledger.CreateStream(ctx, metadata)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create stream on ledger", "error", err)
		return nil, fmt.Errorf("creating stream on ledger: %w", err)
	}

	stream := &model.Stream{
		ID:                receipt.StreamID,
		Metadata:          &metadata,
		Status:            model.StreamStatusActive,
		CreatedAt:         now(),
		CreatedTxRef:      receipt.TxRef,
		LastSnapshotIndex: 0,
	}

	if err := s.streams.Insert(ctx, stream); err != nil {
		slog.ErrorContext(ctx, "failed to persist stream",
			"error", err,
			"stream_id", stream.ID,
		)
		return nil, fmt.Errorf("persisting stream: %w", err)
	}

	slog.InfoContext(ctx, "stream created",
		"stream_id", stream.ID,
		"tx_ref", stream.CreatedTxRef,
	)
	return stream, nil
}
