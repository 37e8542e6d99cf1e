// Package mempool maintains the mempool for the blockchain.
package mempool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/mempool/selector"
)

// ErrMempoolFull is returned when the pool is at capacity and the incoming
// transaction pays the least.
var ErrMempoolFull = errors.New("mempool full")

// DefaultCapacity is used when no capacity is configured.
const DefaultCapacity = 4096

// Mempool represents a cache of transactions organized by account:nonce.
type Mempool struct {
	pool     map[string]database.BlockTx
	mu       sync.RWMutex
	capacity int
	selectFn selector.Func
}

// New constructs a new mempool using the default sort strategy.
func New(capacity int) (*Mempool, error) {
	return NewWithStrategy(selector.StrategyFeeRate, capacity)
}

// NewWithStrategy constructs a new mempool with specified sort strategy.
func NewWithStrategy(strategy string, capacity int) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	mp := Mempool{
		pool:     make(map[string]database.BlockTx),
		capacity: capacity,
		selectFn: selectFn,
	}

	return &mp, nil
}

// Capacity returns the maximum number of transactions held.
func (mp *Mempool) Capacity() int {
	return mp.capacity
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds or replaces a transaction in the mempool. When the pool goes
// over capacity the cheapest transactions are evicted and returned. Only the
// highest pending nonce of an account can be evicted so the remaining nonces
// stay contiguous. If the incoming transaction is the one evicted,
// ErrMempoolFull is returned.
func (mp *Mempool) Upsert(tx database.BlockTx) ([]database.BlockTx, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	key := mapKey(tx.FromID, tx.Nonce)
	mp.pool[key] = tx

	var evicted []database.BlockTx
	for len(mp.pool) > mp.capacity {
		victim := mp.cheapestTail()
		delete(mp.pool, mapKey(victim.FromID, victim.Nonce))
		evicted = append(evicted, victim)
	}

	for i, victim := range evicted {
		if victim.ID() == tx.ID() {
			evicted = append(evicted[:i], evicted[i+1:]...)
			return evicted, fmt.Errorf("%w: capacity %d", ErrMempoolFull, mp.capacity)
		}
	}

	return evicted, nil
}

// Get returns the transaction pending for the account at the nonce.
func (mp *Mempool) Get(accountID database.AccountID, nonce uint64) (database.BlockTx, bool) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	tx, exists := mp.pool[mapKey(accountID, nonce)]
	return tx, exists
}

// Contains reports whether the transaction is in the pool.
func (mp *Mempool) Contains(tx database.BlockTx) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	pending, exists := mp.pool[mapKey(tx.FromID, tx.Nonce)]
	return exists && pending.ID() == tx.ID()
}

// Delete removed a transaction from the mempool.
func (mp *Mempool) Delete(tx database.BlockTx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, mapKey(tx.FromID, tx.Nonce))
}

// Truncate clears all the transactions from the pool and returns them.
func (mp *Mempool) Truncate() []database.BlockTx {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	txs := mp.sorted(nil)
	mp.pool = make(map[string]database.BlockTx)

	return txs
}

// Copy returns the transactions in the pool ordered by account and nonce.
func (mp *Mempool) Copy() []database.BlockTx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.sorted(nil)
}

// ForAccount returns the transactions pending for the account in nonce order.
func (mp *Mempool) ForAccount(accountID database.AccountID) []database.BlockTx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	accountID = accountID.Checksum()
	return mp.sorted(func(tx database.BlockTx) bool {
		return tx.FromID.Checksum() == accountID
	})
}

// PickBest uses the configured sort strategy to return the next set of
// transactions for the next block. Pass -1 for all the transactions and 0
// maxBytes for no size limit.
func (mp *Mempool) PickBest(howMany int, maxBytes uint64) []database.BlockTx {

	// Group the transactions by account.
	m := make(map[database.AccountID][]database.BlockTx)
	mp.mu.RLock()
	{
		if howMany == -1 {
			howMany = len(mp.pool)
		}

		for _, tx := range mp.pool {
			from := tx.FromID.Checksum()
			m[from] = append(m[from], tx)
		}
	}
	mp.mu.RUnlock()

	return mp.selectFn(m, howMany, maxBytes)
}

// =============================================================================

// cheapestTail finds the lowest fee transaction among the highest pending
// nonce of every account. Later arrivals go first on equal fees.
func (mp *Mempool) cheapestTail() database.BlockTx {
	tails := make(map[database.AccountID]database.BlockTx)
	for _, tx := range mp.pool {
		from := tx.FromID.Checksum()
		if tail, exists := tails[from]; !exists || tx.Nonce > tail.Nonce {
			tails[from] = tx
		}
	}

	var victim database.BlockTx
	first := true
	for _, tx := range tails {
		switch {
		case first:
		case tx.Fee < victim.Fee:
		case tx.Fee == victim.Fee && tx.TimeStamp > victim.TimeStamp:
		case tx.Fee == victim.Fee && tx.TimeStamp == victim.TimeStamp && tx.ID() > victim.ID():
		default:
			continue
		}
		victim = tx
		first = false
	}

	return victim
}

// sorted returns the transactions matching the filter by account and nonce.
func (mp *Mempool) sorted(filter func(tx database.BlockTx) bool) []database.BlockTx {
	txs := make([]database.BlockTx, 0, len(mp.pool))
	for _, tx := range mp.pool {
		if filter == nil || filter(tx) {
			txs = append(txs, tx)
		}
	}

	sort.Slice(txs, func(i, j int) bool {
		fi, fj := txs[i].FromID.Checksum(), txs[j].FromID.Checksum()
		if fi != fj {
			return fi < fj
		}
		return txs[i].Nonce < txs[j].Nonce
	})

	return txs
}

// mapKey is used to generate the map key.
func mapKey(accountID database.AccountID, nonce uint64) string {
	return fmt.Sprintf("%s:%d", accountID.Checksum(), nonce)
}
