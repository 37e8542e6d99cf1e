package state

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/forkchain/foundation/blockchain/storage"
)

// QueryLatest represents to query the latest block in the chain.
const QueryLatest = ^uint64(0) >> 1

// ErrNotFound is returned when a queried record doesn't exist.
var ErrNotFound = errors.New("not found")

// =============================================================================

// QueryAccount returns a copy of the account from the ledger.
func (s *State) QueryAccount(accountID database.AccountID) (database.Account, error) {
	view, err := s.ledger.Snapshot()
	if err != nil {
		return database.Account{}, err
	}
	defer view.Release()

	known, err := view.Known(accountID)
	if err != nil {
		return database.Account{}, err
	}
	if !known {
		return database.Account{}, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}

	return view.Account(accountID)
}

// QueryAccounts returns a copy of every account in the ledger.
func (s *State) QueryAccounts() ([]database.Account, error) {
	view, err := s.ledger.Snapshot()
	if err != nil {
		return nil, err
	}
	defer view.Release()

	return view.Accounts()
}

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// QueryMempool returns the transactions pending for the account. An empty
// account returns every pending transaction.
func (s *State) QueryMempool(accountID database.AccountID) []database.BlockTx {
	if accountID == "" {
		return s.mempool.Copy()
	}
	return s.mempool.ForAccount(accountID)
}

// QueryBlock returns the block and its index entry for the reference.
func (s *State) QueryBlock(hash string) (database.Block, ledger.Meta, error) {
	view, err := s.ledger.Snapshot()
	if err != nil {
		return database.Block{}, ledger.Meta{}, err
	}
	defer view.Release()

	meta, err := view.Meta(hash)
	if err != nil {
		return database.Block{}, ledger.Meta{}, notFound(err)
	}

	block, err := view.Block(hash)
	if err != nil {
		return database.Block{}, ledger.Meta{}, notFound(err)
	}

	return block, meta, nil
}

// QueryTxBlock returns the canonical block that included the transaction.
func (s *State) QueryTxBlock(txID string) (database.Block, error) {
	view, err := s.ledger.Snapshot()
	if err != nil {
		return database.Block{}, err
	}
	defer view.Release()

	hash, err := view.TxBlock(txID)
	if err != nil {
		return database.Block{}, notFound(err)
	}

	return view.Block(hash)
}

// QueryBlocksByNumber returns the set of canonical blocks based on block
// numbers.
func (s *State) QueryBlocksByNumber(from uint64, to uint64) ([]database.Block, error) {
	view, err := s.ledger.Snapshot()
	if err != nil {
		return nil, err
	}
	defer view.Release()

	meta, err := view.Head()
	if err != nil {
		return nil, err
	}

	if from == QueryLatest {
		from = meta.Height
		to = from
	}
	if to == QueryLatest || to > meta.Height {
		to = meta.Height
	}

	hashes, err := view.CanonicalRange(from, to)
	if err != nil {
		return nil, err
	}

	out := make([]database.Block, 0, len(hashes))
	for _, hash := range hashes {
		block, err := view.Block(hash)
		if err != nil {
			return nil, err
		}
		out = append(out, block)
	}

	return out, nil
}

// QueryBlocksByAccount returns the set of canonical blocks with transactions
// for the account. If the account is empty, all blocks are returned.
func (s *State) QueryBlocksByAccount(accountID database.AccountID) ([]database.Block, error) {
	blocks, err := s.QueryBlocksByNumber(1, QueryLatest)
	if err != nil {
		return nil, err
	}

	if accountID == "" {
		return blocks, nil
	}

	var out []database.Block
	for _, block := range blocks {
		if block.Header.Beneficiary.Equal(accountID) {
			out = append(out, block)
			continue
		}

		for _, tx := range block.Values() {
			if tx.FromID.Equal(accountID) || tx.ToID.Equal(accountID) {
				out = append(out, block)
				break
			}
		}
	}

	return out, nil
}

// =============================================================================

func notFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
