package state

import (
	"sort"
	"time"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
)

// orphan is a block waiting on its parent.
type orphan struct {
	block database.Block
	added time.Time
}

// orphanPool holds blocks whose parent is not yet known. Access is
// serialized by the state mutex.
type orphanPool struct {
	max      int
	timeout  time.Duration
	byHash   map[string]orphan
	byParent map[string][]string
}

func newOrphanPool(max int, timeout time.Duration) *orphanPool {
	return &orphanPool{
		max:      max,
		timeout:  timeout,
		byHash:   make(map[string]orphan),
		byParent: make(map[string][]string),
	}
}

// add holds the block. The oldest orphan is dropped and returned when the
// pool is full.
func (op *orphanPool) add(block database.Block, now time.Time) (dropped []database.Block) {
	hash := block.Hash()
	if _, exists := op.byHash[hash]; exists {
		return nil
	}

	for len(op.byHash) >= op.max {
		oldest := op.oldest()
		dropped = append(dropped, op.remove(oldest).block)
	}

	op.byHash[hash] = orphan{block: block, added: now}
	op.byParent[block.Header.ParentHash] = append(op.byParent[block.Header.ParentHash], hash)

	return dropped
}

// contains reports whether the block is being held.
func (op *orphanPool) contains(hash string) bool {
	_, exists := op.byHash[hash]
	return exists
}

// len returns the number of blocks held.
func (op *orphanPool) len() int {
	return len(op.byHash)
}

// takeChildren removes and returns the blocks waiting on the parent.
func (op *orphanPool) takeChildren(parentHash string) []database.Block {
	hashes := op.byParent[parentHash]

	children := make([]database.Block, 0, len(hashes))
	for _, hash := range hashes {
		children = append(children, op.remove(hash).block)
	}

	return children
}

// expire removes and returns the blocks held longer than the timeout.
func (op *orphanPool) expire(now time.Time) []database.Block {
	var expired []database.Block
	for hash, o := range op.byHash {
		if now.Sub(o.added) > op.timeout {
			expired = append(expired, op.remove(hash).block)
		}
	}
	return expired
}

func (op *orphanPool) oldest() string {
	var hash string
	var added time.Time
	for h, o := range op.byHash {
		if hash == "" || o.added.Before(added) || (o.added.Equal(added) && h < hash) {
			hash, added = h, o.added
		}
	}
	return hash
}

func (op *orphanPool) remove(hash string) orphan {
	o := op.byHash[hash]
	delete(op.byHash, hash)

	parent := o.block.Header.ParentHash
	siblings := op.byParent[parent]
	for i, h := range siblings {
		if h == hash {
			siblings = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}

	if len(siblings) == 0 {
		delete(op.byParent, parent)
	} else {
		op.byParent[parent] = siblings
	}

	return o
}

// =============================================================================

// pendingTx is a transaction from an account the ledger doesn't know yet.
type pendingTx struct {
	tx    database.BlockTx
	added time.Time
}

// pendingPool holds transactions from unknown senders until the sender shows
// up in the ledger. Access is serialized by the state mutex.
type pendingPool struct {
	max     int
	timeout time.Duration
	txs     map[string]pendingTx
}

func newPendingPool(max int, timeout time.Duration) *pendingPool {
	return &pendingPool{
		max:     max,
		timeout: timeout,
		txs:     make(map[string]pendingTx),
	}
}

// add holds the transaction. The oldest transaction is dropped and returned
// when the pool is full.
func (pp *pendingPool) add(tx database.BlockTx, now time.Time) (dropped []database.BlockTx) {
	id := tx.ID()
	if _, exists := pp.txs[id]; exists {
		return nil
	}

	for len(pp.txs) >= pp.max {
		var oldest string
		var added time.Time
		for k, p := range pp.txs {
			if oldest == "" || p.added.Before(added) || (p.added.Equal(added) && k < oldest) {
				oldest, added = k, p.added
			}
		}
		dropped = append(dropped, pp.txs[oldest].tx)
		delete(pp.txs, oldest)
	}

	pp.txs[id] = pendingTx{tx: tx, added: now}

	return dropped
}

// contains reports whether the transaction is being held.
func (pp *pendingPool) contains(tx database.BlockTx) bool {
	_, exists := pp.txs[tx.ID()]
	return exists
}

// len returns the number of transactions held.
func (pp *pendingPool) len() int {
	return len(pp.txs)
}

// take removes and returns every transaction in account and nonce order.
func (pp *pendingPool) take() []pendingTx {
	list := make([]pendingTx, 0, len(pp.txs))
	for _, p := range pp.txs {
		list = append(list, p)
	}
	pp.txs = make(map[string]pendingTx)

	sort.Slice(list, func(i, j int) bool {
		fi, fj := list[i].tx.FromID.Checksum(), list[j].tx.FromID.Checksum()
		if fi != fj {
			return fi < fj
		}
		return list[i].tx.Nonce < list[j].tx.Nonce
	})

	return list
}

// restore puts a transaction back keeping its original arrival time.
func (pp *pendingPool) restore(p pendingTx) {
	pp.txs[p.tx.ID()] = p
}

// expire removes and returns the transactions held longer than the timeout.
func (pp *pendingPool) expire(now time.Time) []database.BlockTx {
	var expired []database.BlockTx
	for id, p := range pp.txs {
		if now.Sub(p.added) > pp.timeout {
			expired = append(expired, p.tx)
			delete(pp.txs, id)
		}
	}
	return expired
}
