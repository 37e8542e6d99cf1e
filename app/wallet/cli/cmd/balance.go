package cmd

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

type account struct {
	Account string `json:"account"`
	Name    string `json:"name"`
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

type accounts struct {
	LatestBlock string    `json:"latest_block"`
	Uncommitted int       `json:"uncommitted"`
	Accounts    []account `json:"accounts"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance.",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func balanceRun(cmd *cobra.Command, args []string) {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	accountID := database.PublicKeyToAccountID(privateKey.PublicKey)
	fmt.Println("For Account:", accountID)

	act, err := queryAccount(accountID)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("Balance:", act.Balance)
	fmt.Println("Next Nonce:", act.Nonce)
}

// queryAccount returns the ledger state of the account. An account the
// ledger has never seen has a zero balance and nonce.
func queryAccount(accountID database.AccountID) (account, error) {
	var acts accounts
	if err := send(http.MethodGet, "/v1/accounts/list/"+string(accountID), nil, &acts); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return account{Account: string(accountID)}, nil
		}
		return account{}, fmt.Errorf("query account: %w", err)
	}

	if len(acts.Accounts) == 0 {
		return account{Account: string(accountID)}, nil
	}

	return acts.Accounts[0], nil
}
