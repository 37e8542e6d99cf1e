package database

import (
	"fmt"
	"sort"
)

// AccountReader reads the state of an account. Readers return a zero balance
// account for an account id that has never been seen.
type AccountReader interface {
	Account(accountID AccountID) (Account, error)
}

// Overlay stages account changes on top of a reader without touching it. The
// staged changes can be read back, discarded, or handed to the ledger to be
// committed in a single batch.
type Overlay struct {
	parent  AccountReader
	changed map[AccountID]Account
}

// NewOverlay constructs an overlay on top of the specified reader.
func NewOverlay(parent AccountReader) *Overlay {
	return &Overlay{
		parent:  parent,
		changed: make(map[AccountID]Account),
	}
}

// Account returns the staged state of the account or the parent's state.
func (o *Overlay) Account(accountID AccountID) (Account, error) {
	accountID = accountID.Checksum()

	if account, exists := o.changed[accountID]; exists {
		return account, nil
	}

	account, err := o.parent.Account(accountID)
	if err != nil {
		return Account{}, err
	}
	account.AccountID = accountID

	return account, nil
}

// Set stages the account state.
func (o *Overlay) Set(account Account) {
	account.AccountID = account.AccountID.Checksum()
	o.changed[account.AccountID] = account
}

// Changed returns the staged accounts sorted by account id.
func (o *Overlay) Changed() []Account {
	accounts := make([]Account, 0, len(o.changed))
	for _, account := range o.changed {
		accounts = append(accounts, account)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountID < accounts[j].AccountID
	})

	return accounts
}

// Merge moves the staged changes of the child into this overlay.
func (o *Overlay) Merge(child *Overlay) {
	for id, account := range child.changed {
		o.changed[id] = account
	}
}

// =============================================================================

// ApplyTransaction performs the business logic for applying a transaction
// to the account state. The transaction must already have a valid signature.
// A validation failure stages nothing.
func ApplyTransaction(accounts *Overlay, beneficiary AccountID, tx BlockTx) error {
	staged := NewOverlay(accounts)

	from, err := staged.Account(tx.FromID)
	if err != nil {
		return err
	}

	switch {
	case tx.Nonce < from.Nonce:
		return fmt.Errorf("%w: %s, got %d, exp %d", ErrStaleNonce, tx.FromID, tx.Nonce, from.Nonce)
	case tx.Nonce > from.Nonce:
		return fmt.Errorf("%w: %s, got %d, exp %d", ErrNonceGap, tx.FromID, tx.Nonce, from.Nonce)
	}

	cost := tx.Value + tx.Fee
	if cost < tx.Value || from.Balance < cost {
		return fmt.Errorf("%w: %s, balance %d, needed %d", ErrInsufficientBalance, tx.FromID, from.Balance, cost)
	}

	from.Balance -= cost
	from.Nonce++
	staged.Set(from)

	if err := credit(staged, tx.ToID, tx.Value); err != nil {
		return err
	}

	if err := credit(staged, beneficiary, tx.Fee); err != nil {
		return err
	}

	accounts.Merge(staged)

	return nil
}

// credit adds the amount to the account's balance.
func credit(accounts *Overlay, accountID AccountID, amount uint64) error {
	account, err := accounts.Account(accountID)
	if err != nil {
		return err
	}

	balance := account.Balance + amount
	if balance < account.Balance {
		return fmt.Errorf("%w: %s, balance %d, credit %d", ErrBalanceOverflow, accountID, account.Balance, amount)
	}

	account.Balance = balance
	accounts.Set(account)

	return nil
}

// ApplyBlock applies every transaction in the block in order followed by the
// mining reward. The transactions are validated against the chain id and
// their signatures. Nothing is staged in accounts when an error is returned.
func ApplyBlock(accounts *Overlay, chainID uint16, reward uint64, block Block) error {
	staged := NewOverlay(accounts)

	for i, tx := range block.Values() {
		if err := tx.Validate(chainID); err != nil {
			return fmt.Errorf("tx[%d]: %w", i, err)
		}

		if err := ApplyTransaction(staged, block.Header.Beneficiary, tx); err != nil {
			return fmt.Errorf("tx[%d]: %w", i, err)
		}
	}

	if err := credit(staged, block.Header.Beneficiary, reward); err != nil {
		return fmt.Errorf("reward: %w", err)
	}

	accounts.Merge(staged)

	return nil
}
