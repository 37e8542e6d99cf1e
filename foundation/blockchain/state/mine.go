package state

import (
	"context"
	"fmt"
	"time"

	"github.com/ardanlabs/forkchain/foundation/blockchain/consensus"
	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/ledger"
)

// Frontier is what the mining operation builds the next block on.
type Frontier struct {
	Head   ledger.Meta
	Header database.BlockHeader
	Trans  []database.BlockTx
}

// Frontier returns the current head and the best transactions for the next
// block within the block budget.
func (s *State) Frontier() Frontier {
	cur := s.head.Load()

	return Frontier{
		Head:   cur.meta,
		Header: cur.header,
		Trans:  s.mempool.PickBest(int(s.genesis.TransPerBlock), s.genesis.MaxBlockBytes),
	}
}

// MineNewBlock attempts to create a new block on the current frontier and
// seal it with the consensus engine. The sealed block goes through the same
// admission as a block from the network. A block sealed after the head moved
// is discarded.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	fr := s.Frontier()

	// Are there enough transactions in the pool.
	if len(fr.Trans) == 0 && !s.mineEmpty {
		return database.Block{}, ErrNoTransactions
	}

	block, err := database.NewBlock(fr.Header, fr.Head.Hash, s.beneficiaryID, 0, uint64(time.Now().UTC().UnixMilli()), fr.Trans)
	if err != nil {
		return database.Block{}, err
	}
	s.engine.Prepare(&block.Header)

	s.evHandler("state: MineNewBlock: MINING: seal with %s: numTrans[%d]", s.engine.Name(), len(fr.Trans))

	// Attempt to seal the block. This can be cancelled.
	block, err = s.engine.Seal(ctx, block, consensus.EventHandler(s.evHandler))
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	if cur := s.head.Load(); cur.meta.Hash != fr.Head.Hash {
		return database.Block{}, fmt.Errorf("%w: built on %s, head %s", ErrStaleFrontier, fr.Head.Hash, cur.meta.Hash)
	}

	s.evHandler("state: MineNewBlock: MINING: submit blk[%s]", block.Hash())

	admission, err := s.SubmitBlock(block)
	if err != nil {
		return database.Block{}, err
	}

	if admission != Canonical {
		return database.Block{}, fmt.Errorf("%w: blk %s is %s", ErrStaleFrontier, block.Hash(), admission)
	}

	return block, nil
}

// ExpireHeld drops orphan blocks and unknown sender transactions held longer
// than their timeouts.
func (s *State) ExpireHeld() {
	now := time.Now()

	s.mu.Lock()
	blocks := s.orphans.expire(now)
	txs := s.pending.expire(now)
	s.mu.Unlock()

	for _, block := range blocks {
		s.evHandler("state: ExpireHeld: WARNING: orphan expired: blk[%s]: parent[%s]", block.Hash(), block.Header.ParentHash)
	}

	for _, tx := range txs {
		s.evHandler("state: ExpireHeld: WARNING: pending expired: unknown sender: tx[%s]", tx)
	}
}
