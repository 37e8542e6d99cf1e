package state

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/forkchain/foundation/blockchain/storage"
)

// SubmitWalletTransaction accepts a transaction from a wallet for inclusion.
// The transaction is shared with the network once it is accepted.
func (s *State) SubmitWalletTransaction(signedTx database.SignedTx) error {
	return s.SubmitTransaction(database.NewBlockTx(signedTx))
}

// SubmitTransaction accepts a transaction for inclusion and shares it with
// the network once it is accepted.
func (s *State) SubmitTransaction(tx database.BlockTx) error {
	held, err := s.submitTransaction(tx)
	if err != nil || held {
		return err
	}

	s.Worker.SignalShareTx(tx)
	s.Worker.SignalStartMining()

	return nil
}

// ReceiveTransaction accepts a transaction delivered by the network. It is
// not shared again.
func (s *State) ReceiveTransaction(tx database.BlockTx) error {
	held, err := s.submitTransaction(tx)
	if err != nil || held {
		return err
	}

	s.Worker.SignalStartMining()

	return nil
}

// =============================================================================

func (s *State) submitTransaction(tx database.BlockTx) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, err := s.admitTransaction(s.ledger.Latest(), tx, time.Now())
	switch {
	case err != nil:
		s.evHandler("state: SubmitTransaction: REJECTED: tx[%s]: %s", tx, err)
	case held:
		s.evHandler("state: SubmitTransaction: HELD: unknown sender: tx[%s]", tx)
	default:
		s.evHandler("state: SubmitTransaction: ACCEPTED: tx[%s]: mempool[%d]", tx, s.mempool.Count())
	}

	return held, err
}

// admitTransaction validates the transaction against the view and the
// transactions already pending from the sender. A transaction from an
// account the ledger doesn't know is held until the account appears. The
// caller must hold the state mutex.
func (s *State) admitTransaction(view *ledger.View, tx database.BlockTx, now time.Time) (bool, error) {
	if err := tx.Validate(s.genesis.ChainID); err != nil {
		return false, err
	}

	// Has this exact transaction been seen before.
	switch _, err := view.TxBlock(tx.ID()); {
	case err == nil:
		return false, fmt.Errorf("%w: tx %s is committed", ErrAlreadyKnown, tx.ID())
	case !errors.Is(err, storage.ErrNotFound):
		return false, err
	}

	if s.mempool.Contains(tx) || s.pending.contains(tx) {
		return false, fmt.Errorf("%w: tx %s is pending", ErrAlreadyKnown, tx.ID())
	}

	known, err := view.Known(tx.FromID)
	if err != nil {
		return false, err
	}

	if !known {
		for _, dropped := range s.pending.add(tx, now) {
			s.evHandler("state: admitTransaction: pending pool full: dropped tx[%s]", dropped)
		}
		return true, nil
	}

	from, err := view.Account(tx.FromID)
	if err != nil {
		return false, err
	}

	// The mempool holds a contiguous run of nonces for each account starting
	// at the account's next nonce.
	pending := s.mempool.ForAccount(tx.FromID)
	expected := from.Nonce + uint64(len(pending))

	replacing := -1
	switch {
	case tx.Nonce < from.Nonce:
		return false, fmt.Errorf("%w: %s, got %d, exp %d", database.ErrStaleNonce, tx.FromID, tx.Nonce, from.Nonce)

	case tx.Nonce > expected:
		return false, fmt.Errorf("%w: %s, got %d, exp %d", database.ErrNonceGap, tx.FromID, tx.Nonce, expected)

	case tx.Nonce < expected:
		replacing = int(tx.Nonce - from.Nonce)
		if existing := pending[replacing]; tx.Fee <= existing.Fee {
			return false, fmt.Errorf("%w: %s, nonce %d pending with fee %d", database.ErrStaleNonce, tx.FromID, tx.Nonce, existing.Fee)
		}
	}

	var spend uint64
	for i, ptx := range pending {
		if i != replacing {
			spend += ptx.Value + ptx.Fee
		}
	}

	cost := tx.Value + tx.Fee
	if cost < tx.Value || spend+cost < spend || from.Balance < spend+cost {
		return false, fmt.Errorf("%w: %s, balance %d, pending %d, needed %d", database.ErrInsufficientBalance, tx.FromID, from.Balance, spend, cost)
	}

	evicted, err := s.mempool.Upsert(tx)
	for _, etx := range evicted {
		s.evHandler("state: admitTransaction: mempool full: evicted tx[%s]: fee[%d]", etx, etx.Fee)
	}
	if err != nil {
		return false, err
	}

	return false, nil
}

// rebuildMempool validates every pending transaction again after the head
// moved. Transactions from abandoned blocks are offered again. The caller
// must hold the state mutex.
func (s *State) rebuildMempool(view *ledger.View, abandoned []database.Block) {
	candidates := s.mempool.Truncate()
	for _, block := range abandoned {
		candidates = append(candidates, block.Values()...)
	}
	sortByAccountNonce(candidates)

	now := time.Now()

	var kept int
	for _, tx := range candidates {
		if _, err := s.admitTransaction(view, tx, now); err != nil {
			s.evHandler("state: rebuildMempool: dropped tx[%s]: %s", tx, err)
			continue
		}
		kept++
	}

	// Transactions from senders that were unknown get another chance.
	for _, p := range s.pending.take() {
		known, err := view.Known(p.tx.FromID)
		if err != nil || !known {
			s.pending.restore(p)
			continue
		}

		if _, err := s.admitTransaction(view, p.tx, p.added); err != nil {
			s.evHandler("state: rebuildMempool: dropped pending tx[%s]: %s", p.tx, err)
			continue
		}
		kept++
	}

	s.evHandler("state: rebuildMempool: candidates[%d]: mempool[%d]: pending[%d]", kept, s.mempool.Count(), s.pending.len())
}

// sortByAccountNonce orders transactions so each account's nonces are
// offered in sequence.
func sortByAccountNonce(txs []database.BlockTx) {
	sort.SliceStable(txs, func(i, j int) bool {
		fi, fj := txs[i].FromID.Checksum(), txs[j].FromID.Checksum()
		if fi != fj {
			return fi < fj
		}
		return txs[i].Nonce < txs[j].Nonce
	})
}
