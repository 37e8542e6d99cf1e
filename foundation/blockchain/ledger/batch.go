package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/storage"
)

// Batch collects the record changes for a single commit. A later change to
// the same key replaces an earlier one.
type Batch struct {
	order  []string
	values map[string][]byte
	err    error
}

// NewBatch constructs an empty batch.
func NewBatch() *Batch {
	return &Batch{
		values: make(map[string][]byte),
	}
}

// Len returns the number of keys changed by the batch.
func (b *Batch) Len() int {
	return len(b.order)
}

// PutAccount stores the account state. An account with no balance and no
// nonce is removed so rolling back its creation restores the prior bytes.
func (b *Batch) PutAccount(account database.Account) {
	account.AccountID = account.AccountID.Checksum()

	if account.Balance == 0 && account.Nonce == 0 {
		b.delete(accountKey(account.AccountID))
		return
	}

	b.putJSON(accountKey(account.AccountID), account)
}

// PutBlock stores the block under its reference.
func (b *Batch) PutBlock(block database.Block) {
	b.putJSON(blockKey(block.Hash()), block)
}

// PutMeta stores the chain index entry.
func (b *Batch) PutMeta(meta Meta) {
	b.putJSON(metaKey(meta.Hash), meta)
}

// PutUndo stores the pre-images of the accounts touched by the block.
func (b *Batch) PutUndo(hash string, accounts []database.Account) {
	if accounts == nil {
		accounts = []database.Account{}
	}
	b.putJSON(undoKey(hash), accounts)
}

// PutCanonical marks the reference as the canonical block at the height.
func (b *Batch) PutCanonical(height uint64, hash string) {
	b.put(heightKey(height), []byte(hash))
}

// DeleteCanonical removes the canonical block at the height.
func (b *Batch) DeleteCanonical(height uint64) {
	b.delete(heightKey(height))
}

// PutTx records the canonical block that included the transaction.
func (b *Batch) PutTx(txID string, hash string) {
	b.put(txKey(txID), []byte(hash))
}

// DeleteTx removes the transaction from the index.
func (b *Batch) DeleteTx(txID string) {
	b.delete(txKey(txID))
}

// PutHead moves the canonical head.
func (b *Batch) PutHead(hash string) {
	b.put([]byte(keyHead), []byte(hash))
}

// =============================================================================

func (b *Batch) putJSON(key []byte, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		if b.err == nil {
			b.err = fmt.Errorf("encode %s: %w", key, err)
		}
		return
	}
	b.put(key, data)
}

func (b *Batch) put(key []byte, value []byte) {
	k := string(key)
	if _, exists := b.values[k]; !exists {
		b.order = append(b.order, k)
	}
	b.values[k] = value
}

func (b *Batch) delete(key []byte) {
	k := string(key)
	if _, exists := b.values[k]; !exists {
		b.order = append(b.order, k)
	}
	b.values[k] = nil
}

func (b *Batch) build() ([]storage.Write, [][]byte, error) {
	if b.err != nil {
		return nil, nil, b.err
	}

	var writes []storage.Write
	var deletes [][]byte
	for _, k := range b.order {
		value := b.values[k]
		if value == nil {
			deletes = append(deletes, []byte(k))
			continue
		}
		writes = append(writes, storage.Write{Key: []byte(k), Value: value})
	}

	return writes, deletes, nil
}
