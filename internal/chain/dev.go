package chain

import (
	"context"
	"fmt"

	"mindgraph.app/grove/common/id"
)

// devLedger fakes the ledger for local development. Stream ids are snowflake
// ids so they stay unique and time-ordered across restarts; tx refs are
// derived from them and carry no meaning.
type devLedger struct{}

// NewDevLedger returns an in-process ledger stand-in.
func NewDevLedger() Ledger {
	return devLedger{}
}

func (devLedger) CreateStream(_ context.Context, _ string) (*StreamReceipt, error) {
	streamID := id.New()
	return &StreamReceipt{
		StreamID: fmt.Sprintf("%d", streamID),
		TxRef:    fmt.Sprintf("dev-tx-%d", streamID),
	}, nil
}

func (devLedger) CommitSnapshot(_ context.Context, streamID string, snapshotIndex int, _ string) (*CommitReceipt, error) {
	return &CommitReceipt{
		TxRef: fmt.Sprintf("dev-tx-%s-%d-%d", streamID, snapshotIndex, id.New()),
	}, nil
}
