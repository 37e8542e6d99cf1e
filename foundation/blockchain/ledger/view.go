package ledger

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/storage"
)

// View reads the chain records from the store or from a snapshot of it.
type View struct {
	reader  storage.Reader
	release func()
}

// Release frees the snapshot behind the view.
func (v *View) Release() {
	if v.release != nil {
		v.release()
	}
}

// Account returns the state of the account. An account that has never been
// seen has a zero balance and nonce.
func (v *View) Account(accountID database.AccountID) (database.Account, error) {
	key := accountKey(accountID)

	data, err := v.reader.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return database.Account{AccountID: accountID.Checksum()}, nil
		}
		return database.Account{}, err
	}

	var account database.Account
	if err := decode(key, data, &account); err != nil {
		return database.Account{}, err
	}

	return account, nil
}

// Known reports whether the account has a record.
func (v *View) Known(accountID database.AccountID) (bool, error) {
	_, err := v.reader.Get(accountKey(accountID))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	}
	return false, err
}

// Accounts returns every account with a record, sorted by account id.
func (v *View) Accounts() ([]database.Account, error) {
	start := []byte(prefixAccount)

	cur := v.reader.ScanRange(start, storage.PrefixEnd(start))
	defer cur.Close()

	var accounts []database.Account
	for cur.Next() {
		var account database.Account
		if err := decode(cur.Key(), cur.Value(), &account); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	if err := cur.Err(); err != nil {
		return nil, err
	}

	return accounts, nil
}

// Block returns the block for the reference.
func (v *View) Block(hash string) (database.Block, error) {
	key := blockKey(hash)

	data, err := v.reader.Get(key)
	if err != nil {
		return database.Block{}, fmt.Errorf("block %s: %w", hash, err)
	}

	var block database.Block
	if err := decode(key, data, &block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// Meta returns the chain index entry for the reference.
func (v *View) Meta(hash string) (Meta, error) {
	key := metaKey(hash)

	data, err := v.reader.Get(key)
	if err != nil {
		return Meta{}, fmt.Errorf("meta %s: %w", hash, err)
	}

	var meta Meta
	if err := decode(key, data, &meta); err != nil {
		return Meta{}, err
	}

	return meta, nil
}

// Head returns the chain index entry for the canonical head.
func (v *View) Head() (Meta, error) {
	data, err := v.reader.Get([]byte(keyHead))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Meta{}, ErrNotInitialized
		}
		return Meta{}, err
	}

	return v.Meta(string(data))
}

// CanonicalHash returns the reference of the canonical block at the height.
func (v *View) CanonicalHash(height uint64) (string, error) {
	data, err := v.reader.Get(heightKey(height))
	if err != nil {
		return "", fmt.Errorf("height %d: %w", height, err)
	}

	return string(data), nil
}

// CanonicalRange returns the canonical references for the heights in
// [from, to].
func (v *View) CanonicalRange(from uint64, to uint64) ([]string, error) {
	if to < from {
		return nil, nil
	}

	cur := v.reader.ScanRange(heightKey(from), heightKey(to+1))
	defer cur.Close()

	var hashes []string
	for cur.Next() {
		hashes = append(hashes, string(cur.Value()))
	}

	if err := cur.Err(); err != nil {
		return nil, err
	}

	return hashes, nil
}

// TxBlock returns the reference of the canonical block that included the
// transaction.
func (v *View) TxBlock(txID string) (string, error) {
	data, err := v.reader.Get(txKey(txID))
	if err != nil {
		return "", fmt.Errorf("tx %s: %w", txID, err)
	}

	return string(data), nil
}

// Undo returns the state of the accounts touched by the block as they were
// before the block was applied.
func (v *View) Undo(hash string) ([]database.Account, error) {
	key := undoKey(hash)

	data, err := v.reader.Get(key)
	if err != nil {
		return nil, fmt.Errorf("undo %s: %w", hash, err)
	}

	var accounts []database.Account
	if err := decode(key, data, &accounts); err != nil {
		return nil, err
	}

	return accounts, nil
}
