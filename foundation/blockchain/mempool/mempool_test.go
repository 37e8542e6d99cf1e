package mempool_test

import (
	"crypto/ecdsa"
	"errors"
	"testing"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/mempool"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const toID = "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76"

func sign(t *testing.T, pk *ecdsa.PrivateKey, nonce uint64, fee uint64, ts uint64) database.BlockTx {
	tx, err := database.NewTx(1, nonce, database.PublicKeyToAccountID(pk.PublicKey), toID, 10, fee, nil)
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

func newKey(t *testing.T) *ecdsa.PrivateKey {
	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a key: %s", failed, err)
	}
	return pk
}

// =============================================================================

func TestCRUD(t *testing.T) {
	t.Log("Given the need to validate mempool api.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen handling a set of transaction.", testID)
		{
			mp, err := mempool.New(10)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the mempool: %s", failed, testID, err)
			}

			pk := newKey(t)
			txs := []database.BlockTx{
				sign(t, pk, 2, 10, 3),
				sign(t, pk, 0, 50, 1),
				sign(t, pk, 1, 100, 2),
			}

			for _, tx := range txs {
				if _, err := mp.Upsert(tx); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to add new transaction: %s", failed, testID, err)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould be able to add new transactions.", success, testID)

			for i, tx := range mp.ForAccount(txs[0].FromID) {
				if tx.Nonce != uint64(i) {
					t.Fatalf("\t%s\tTest %d:\tShould get back nonce order: got %d, exp %d", failed, testID, tx.Nonce, i)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould get back nonce order.", success, testID)

			if !mp.Contains(txs[1]) {
				t.Fatalf("\t%s\tTest %d:\tShould contain the transaction.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould contain the transaction.", success, testID)

			replace := sign(t, pk, 1, 200, 4)
			if _, err := mp.Upsert(replace); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to replace a transaction: %s", failed, testID, err)
			}
			if got, _ := mp.Get(replace.FromID, 1); got.Fee != 200 || mp.Count() != 3 {
				t.Fatalf("\t%s\tTest %d:\tShould be able to replace a transaction.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to replace a transaction.", success, testID)

			mp.Delete(txs[0])
			if mp.Count() != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould be able to remove a transaction.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to remove a transaction.", success, testID)

			if best := mp.PickBest(-1, 0); len(best) != 2 || best[0].Nonce != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould pick in nonce order.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould pick in nonce order.", success, testID)

			if removed := mp.Truncate(); len(removed) != 2 || mp.Count() != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould be able to truncate mempool.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to truncate mempool.", success, testID)
		}
	}
}

func TestCapacity(t *testing.T) {
	const capacity = 5

	t.Log("Given the need to bound the mempool.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen adding more transactions than the capacity.", testID)
		{
			mp, err := mempool.New(capacity)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the mempool: %s", failed, testID, err)
			}

			fees := []uint64{500, 100, 900, 300, 700, 200, 800, 400}

			var all []database.BlockTx
			var evicted []database.BlockTx
			for i, fee := range fees {
				tx := sign(t, newKey(t), 0, fee, uint64(i))
				all = append(all, tx)

				out, err := mp.Upsert(tx)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould accept a paying transaction: fee %d: %s", failed, testID, fee, err)
				}
				evicted = append(evicted, out...)
			}

			if mp.Count() != capacity {
				t.Fatalf("\t%s\tTest %d:\tShould hold exactly the capacity: %d", failed, testID, mp.Count())
			}
			t.Logf("\t%s\tTest %d:\tShould hold exactly the capacity.", success, testID)

			exp := map[uint64]bool{100: true, 200: true, 300: true}
			if len(evicted) != len(exp) {
				t.Fatalf("\t%s\tTest %d:\tShould evict %d transactions, got %d.", failed, testID, len(exp), len(evicted))
			}
			for _, tx := range evicted {
				if !exp[tx.Fee] {
					t.Fatalf("\t%s\tTest %d:\tShould evict the lowest fees, evicted %d.", failed, testID, tx.Fee)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould evict exactly the lowest fees.", success, testID)

			cheap := sign(t, newKey(t), 0, 50, 100)
			if _, err := mp.Upsert(cheap); !errors.Is(err, mempool.ErrMempoolFull) {
				t.Fatalf("\t%s\tTest %d:\tShould reject a transaction that pays the least: %v", failed, testID, err)
			}
			if mp.Contains(cheap) || mp.Count() != capacity {
				t.Fatalf("\t%s\tTest %d:\tShould not hold the rejected transaction.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a transaction that pays the least.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen fees are equal.", testID)
		{
			mp, err := mempool.New(2)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the mempool: %s", failed, testID, err)
			}

			first := sign(t, newKey(t), 0, 100, 1)
			second := sign(t, newKey(t), 0, 100, 2)
			third := sign(t, newKey(t), 0, 100, 3)

			mp.Upsert(first)
			mp.Upsert(second)
			if _, err := mp.Upsert(third); !errors.Is(err, mempool.ErrMempoolFull) {
				t.Fatalf("\t%s\tTest %d:\tShould evict the latest arrival: %v", failed, testID, err)
			}
			if !mp.Contains(first) || !mp.Contains(second) {
				t.Fatalf("\t%s\tTest %d:\tShould keep the earlier arrivals.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould evict the latest arrival.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen an account has several pending nonces.", testID)
		{
			mp, err := mempool.New(2)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the mempool: %s", failed, testID, err)
			}

			pk := newKey(t)
			low := sign(t, pk, 0, 10, 1)
			high := sign(t, pk, 1, 20, 2)
			other := sign(t, newKey(t), 0, 500, 3)

			mp.Upsert(low)
			mp.Upsert(high)
			evicted, err := mp.Upsert(other)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the paying transaction: %v", failed, testID, err)
			}

			if len(evicted) != 1 || evicted[0].ID() != high.ID() {
				t.Fatalf("\t%s\tTest %d:\tShould evict the highest nonce of the account.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould evict the highest nonce of the account.", success, testID)
		}
	}
}
