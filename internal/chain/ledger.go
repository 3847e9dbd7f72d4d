// Package chain abstracts the external ledger that anchors streams and
// snapshot hashes.
package chain

import "context"

// StreamReceipt is the ledger's acknowledgement of a new stream.
type StreamReceipt struct {
	StreamID string
	TxRef    string
}

// CommitReceipt is the ledger's acknowledgement of an anchored snapshot.
type CommitReceipt struct {
	TxRef string
}

// Ledger is the write-side contract against the external ledger. The service
// treats it as a black box: stream identity and transaction references come
// from the ledger, never from local state.
type Ledger interface {
	// CreateStream registers a new stream under the given metadata label and
	// returns its ledger-assigned id.
	CreateStream(ctx context.Context, metadata string) (*StreamReceipt, error)

	// CommitSnapshot anchors a snapshot hash at the given index.
	CommitSnapshot(ctx context.Context, streamID string, snapshotIndex int, snapshotHash string) (*CommitReceipt, error)
}
