package service

import (
	"mindgraph.app/grove/internal/ai"
	"mindgraph.app/grove/internal/chain"
	"mindgraph.app/grove/internal/lock"
	"mindgraph.app/grove/internal/store"
)

// Services wires the service layer over shared collaborators. One KeyLock
// instance must be shared by every service touching a stream, which is why
// construction happens here.
type Services struct {
	stores     *store.Stores
	ledger     chain.Ledger
	provider   ai.Provider
	streamLock *lock.KeyLock
	notifier   WakeNotifier
}

func NewServices(stores *store.Stores, ledger chain.Ledger, provider ai.Provider, notifier WakeNotifier) *Services {
	return &Services{
		stores:     stores,
		ledger:     ledger,
		provider:   provider,
		streamLock: lock.NewKeyLock(),
		notifier:   notifier,
	}
}

func (s *Services) Streams() StreamService {
	return NewStreamService(s.stores.Streams(), s.ledger)
}

func (s *Services) Graph() GraphService {
	return NewGraphService(s.stores.Streams(), s.stores.Nodes(), s.Enrichment(), s.streamLock)
}

func (s *Services) Enrichment() EnrichmentService {
	return NewEnrichmentService(
		s.stores.Streams(),
		s.stores.Nodes(),
		s.stores.Jobs(),
		s.provider,
		s.streamLock,
		s.notifier,
	)
}

func (s *Services) Snapshots() SnapshotService {
	return NewSnapshotService(
		s.stores.Streams(),
		s.stores.Nodes(),
		s.stores.Snapshots(),
		s.ledger,
		s.streamLock,
	)
}
