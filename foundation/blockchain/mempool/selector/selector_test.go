package selector_test

import (
	"testing"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	signPavel = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	signBill  = "9f332e3700d8fc2446eaf6d15034cf96e0c2745e40353deef032a5dbf1dfed93"
	signEd    = "aed31b6b5a341af8f27e66fb0b7633cf20fc27049e3eb7f6f623a4655b719ebb"
)

func tran(t *testing.T, hexKey string, nonce uint64, fee uint64, ts uint64, data []byte) database.BlockTx {
	const to = "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76"

	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load the private key: %s", failed, err)
	}

	tx, err := database.NewTx(1, nonce, database.PublicKeyToAccountID(pk.PublicKey), to, 10, fee, data)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the transaction: %s", failed, err)
	}

	signedTx, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign the transaction: %s", failed, err)
	}

	blockTx := database.NewBlockTx(signedTx)
	blockTx.TimeStamp = ts

	return blockTx
}

func group(txs []database.BlockTx) map[database.AccountID][]database.BlockTx {
	m := make(map[database.AccountID][]database.BlockTx)
	for _, tx := range txs {
		m[tx.FromID] = append(m[tx.FromID], tx)
	}
	return m
}
