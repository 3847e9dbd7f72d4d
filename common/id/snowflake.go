// Package id hands out snowflake int64 IDs. Grove uses them wherever an
// identifier must be minted without a ledger round trip: dev-ledger stream
// ids and transaction refs.
package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init sets the snowflake node ID for this process. The server boots with
// node 1 and the worker with node 2 so the two never mint colliding IDs
// against a shared dev ledger.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New returns the next time-ordered ID. Init must have been called first.
func New() int64 {
	return node.Generate().Int64()
}
