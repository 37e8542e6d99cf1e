package cmd

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	nonce int64
	to    string
	value uint64
	fee   uint64
	data  []byte
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a transaction",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		id, err := sendWithDetails(privateKey)
		if err != nil {
			log.Fatal(err)
		}

		fmt.Println("Transaction:", id)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().Int64VarP(&nonce, "nonce", "n", -1, "Nonce for the transaction, the account's next nonce when not set.")
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Account receiving the value.")
	sendCmd.Flags().Uint64VarP(&value, "value", "v", 0, "Value to send.")
	sendCmd.Flags().Uint64VarP(&fee, "fee", "f", 0, "Fee offered to the block beneficiary.")
	sendCmd.Flags().BytesHexVarP(&data, "data", "d", nil, "Data to send.")
}

func sendWithDetails(privateKey *ecdsa.PrivateKey) (string, error) {
	fromID := database.PublicKeyToAccountID(privateKey.PublicKey)

	toID, err := database.ToAccountID(to)
	if err != nil {
		return "", fmt.Errorf("to account: %w", err)
	}

	var gen struct {
		ChainID uint16 `json:"chain_id"`
	}
	if err := send(http.MethodGet, "/v1/genesis/list", nil, &gen); err != nil {
		return "", fmt.Errorf("query genesis: %w", err)
	}

	n := nonce
	if n < 0 {
		act, err := queryAccount(fromID)
		if err != nil {
			return "", err
		}
		n = int64(act.Nonce)
	}

	tx, err := database.NewTx(gen.ChainID, uint64(n), fromID, toID, value, fee, data)
	if err != nil {
		return "", err
	}

	signedTx, err := tx.Sign(privateKey)
	if err != nil {
		return "", err
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := send(http.MethodPost, "/v1/tx/submit", signedTx, &resp); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}

	if resp.ID == "" {
		return "", errors.New("submit: node returned no transaction id")
	}

	return resp.ID, nil
}
