// Package commands contains the functionality for the admin commands.
package commands

import (
	"fmt"
	"io"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/ledger"
)

// Accounts prints the current set of accounts. An optional account limits
// the output to that account.
func Accounts(w io.Writer, args []string, ldgr *ledger.Ledger) error {
	view, err := ldgr.Snapshot()
	if err != nil {
		return err
	}
	defer view.Release()

	head, err := view.Head()
	if err != nil {
		return err
	}

	var onlyAct database.AccountID
	if len(args) == 3 {
		onlyAct, err = database.ToAccountID(args[2])
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "LatestBlockHash: %s  Height: %d\n\n", head.Hash, head.Height)

	accounts, err := view.Accounts()
	if err != nil {
		return err
	}

	for _, act := range accounts {
		if onlyAct != "" && !act.AccountID.Equal(onlyAct) {
			continue
		}
		fmt.Fprintf(w, "Account: %s  Balance: %d  Nonce: %d\n", act.AccountID, act.Balance, act.Nonce)
	}

	return nil
}
