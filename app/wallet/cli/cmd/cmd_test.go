package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Send(t *testing.T) {
	t.Log("Given the need to sign and submit a transaction to a node.")
	{
		pk, err := crypto.HexToECDSA("fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959")
		if err != nil {
			t.Fatalf("\t%s\tShould be able to load the private key: %v", failed, err)
		}
		fromID := database.PublicKeyToAccountID(pk.PublicKey)

		const chainID = 7
		var got database.SignedTx

		mux := http.NewServeMux()
		mux.HandleFunc("GET /v1/genesis/list", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"chain_id": chainID})
		})
		mux.HandleFunc("GET /v1/accounts/list/{account}", func(w http.ResponseWriter, r *http.Request) {
			if r.PathValue("account") != string(fromID) {
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(errorResponse{Error: "not found"})
				return
			}
			json.NewEncoder(w).Encode(accounts{Accounts: []account{{Account: string(fromID), Balance: 100, Nonce: 3}}})
		})
		mux.HandleFunc("POST /v1/tx/submit", func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"id": got.ID(), "status": "transaction accepted"})
		})

		srv := httptest.NewServer(mux)
		defer srv.Close()

		nodeURL = srv.URL
		to = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
		value = 10
		fee = 1
		nonce = -1

		id, err := sendWithDetails(pk)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to send the transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to send the transaction.", success)

		if got.Nonce != 3 || got.ChainID != chainID || got.Value != 10 || got.Fee != 1 {
			t.Fatalf("\t%s\tShould use the account's next nonce and the chain id: got %+v", failed, got.Tx)
		}
		t.Logf("\t%s\tShould use the account's next nonce and the chain id.", success)

		if err := got.Validate(chainID); err != nil {
			t.Fatalf("\t%s\tShould submit a validly signed transaction: %v", failed, err)
		}
		if id != got.ID() {
			t.Fatalf("\t%s\tShould return the transaction id: got %s", failed, id)
		}
		t.Logf("\t%s\tShould submit a validly signed transaction.", success)

		act, err := queryAccount("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")
		if err != nil || act.Balance != 0 || act.Nonce != 0 {
			t.Fatalf("\t%s\tShould treat an unknown account as empty: got %+v, %v", failed, act, err)
		}
		t.Logf("\t%s\tShould treat an unknown account as empty.", success)

		to = "not-an-account"
		if _, err := sendWithDetails(pk); err == nil {
			t.Fatalf("\t%s\tShould reject a malformed to account.", failed)
		}
		t.Logf("\t%s\tShould reject a malformed to account.", success)
	}
}
