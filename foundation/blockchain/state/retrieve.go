package state

import (
	"github.com/ardanlabs/forkchain/foundation/blockchain/consensus"
	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/forkchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/forkchain/foundation/blockchain/peer"
)

// RetrieveHost returns a copy of host information.
func (s *State) RetrieveHost() string {
	return s.host
}

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveEngine returns the consensus engine blocks are sealed with.
func (s *State) RetrieveEngine() consensus.Engine {
	return s.engine
}

// RetrieveHead returns the index entry and header of the canonical head.
func (s *State) RetrieveHead() (ledger.Meta, database.BlockHeader) {
	cur := s.head.Load()
	return cur.meta, cur.header
}

// RetrieveMempool returns a copy of the mempool in selection order.
func (s *State) RetrieveMempool() []database.BlockTx {
	return s.mempool.PickBest(-1, 0)
}

// RetrieveHeld returns the number of orphan blocks and unknown sender
// transactions being held.
func (s *State) RetrieveHeld() (orphans int, pending int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.orphans.len(), s.pending.len()
}

// RetrieveKnownPeers retrieves a copy of the known peer list.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// AddKnownPeer provides the ability to add a new peer.
func (s *State) AddKnownPeer(peer peer.Peer) bool {
	return s.knownPeers.Add(peer)
}

// RemoveKnownPeer provides the ability to remove a peer.
func (s *State) RemoveKnownPeer(peer peer.Peer) {
	s.knownPeers.Remove(peer)
}
