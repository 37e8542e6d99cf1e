// Package ledger stores the typed records of the chain on top of the
// key/value storage contract: account state, blocks, the chain index, the
// canonical height index, undo journals and the transaction index.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/storage"
)

// Key prefixes for the records held in the store.
const (
	prefixAccount = "acct/"
	prefixBlock   = "block/"
	prefixMeta    = "meta/"
	prefixHeight  = "height/"
	prefixUndo    = "undo/"
	prefixTx      = "tx/"
	keyHead       = "head"
)

// ErrNotInitialized is returned when the store has no head record.
var ErrNotInitialized = errors.New("ledger not initialized")

// Status represents the validity of an indexed block.
type Status string

// Set of block statuses.
const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
)

// Meta is the chain index entry for a block.
type Meta struct {
	Hash   string   `json:"hash"`
	Parent string   `json:"parent"`
	Height uint64   `json:"height"`
	Weight *big.Int `json:"weight"`
	Status Status   `json:"status"`
	Reason string   `json:"reason,omitempty"`
}

// Valid reports whether the block was accepted.
func (m Meta) Valid() bool {
	return m.Status == StatusValid
}

// =============================================================================

// Ledger provides typed access to the chain records.
type Ledger struct {
	kv storage.KV
}

// New constructs a ledger over the store.
func New(kv storage.KV) *Ledger {
	return &Ledger{kv: kv}
}

// Init writes the genesis block and balances when the store is empty. An
// initialized store is left untouched. It reports whether the store was
// initialized by this call.
func (l *Ledger) Init(genesis database.Block, balances map[database.AccountID]uint64) (bool, error) {
	_, err := l.kv.Get([]byte(keyHead))
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, storage.ErrNotFound):
		return false, fmt.Errorf("read head: %w", err)
	}

	hash := genesis.Hash()

	batch := NewBatch()
	for accountID, balance := range balances {
		batch.PutAccount(database.Account{AccountID: accountID, Balance: balance})
	}
	batch.PutBlock(genesis)
	batch.PutMeta(Meta{
		Hash:   hash,
		Parent: genesis.Header.ParentHash,
		Height: genesis.Header.Number,
		Weight: big.NewInt(0),
		Status: StatusValid,
	})
	batch.PutCanonical(genesis.Header.Number, hash)
	batch.PutHead(hash)

	if err := l.Commit(batch); err != nil {
		return false, err
	}

	return true, nil
}

// Commit writes the batch to the store atomically.
func (l *Ledger) Commit(batch *Batch) error {
	writes, deletes, err := batch.build()
	if err != nil {
		return err
	}

	if err := l.kv.BatchWrite(writes, deletes); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// Latest returns a view over the live store. Only the single writer should
// use it since later commits show through.
func (l *Ledger) Latest() *View {
	return &View{reader: l.kv}
}

// Snapshot returns a view that later commits can't change. The view must be
// released.
func (l *Ledger) Snapshot() (*View, error) {
	snap, err := l.kv.Snapshot()
	if err != nil {
		return nil, err
	}

	return &View{reader: snap, release: snap.Release}, nil
}

// Close closes the underlying store.
func (l *Ledger) Close() error {
	return l.kv.Close()
}

// =============================================================================

func accountKey(accountID database.AccountID) []byte {
	return []byte(prefixAccount + string(accountID.Checksum()))
}

func blockKey(hash string) []byte {
	return []byte(prefixBlock + hash)
}

func metaKey(hash string) []byte {
	return []byte(prefixMeta + hash)
}

func heightKey(height uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixHeight, height))
}

func undoKey(hash string) []byte {
	return []byte(prefixUndo + hash)
}

func txKey(txID string) []byte {
	return []byte(prefixTx + txID)
}

func decode(key []byte, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return storage.NewError(storage.Corruption, "decode "+string(key), err)
	}
	return nil
}
