package selector_test

import (
	"testing"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/mempool/selector"
)

func TestTipSort(t *testing.T) {
	tran := func(nonce uint64, hexKey string, fee uint64) database.BlockTx {
		return tran(t, hexKey, nonce, fee, 1, nil)
	}

	type test struct {
		name    string
		txs     []database.BlockTx
		howMany int
		best    []database.BlockTx
	}

	all := func() []database.BlockTx {
		return []database.BlockTx{
			tran(0, signPavel, 25),
			tran(1, signPavel, 75),
			tran(2, signPavel, 50),

			tran(0, signBill, 10),
			tran(1, signBill, 5),
			tran(2, signBill, 75),

			tran(0, signEd, 5),
			tran(1, signEd, 50),
			tran(2, signEd, 25),
		}
	}

	tt := []test{
		{
			name:    "one from second cycle",
			txs:     all(),
			howMany: 4,
			best: []database.BlockTx{
				tran(0, signPavel, 25),
				tran(1, signPavel, 75),
				tran(0, signBill, 10),
				tran(0, signEd, 5),
			},
		},
		{
			name:    "whole two cycles",
			txs:     all(),
			howMany: 6,
			best: []database.BlockTx{
				tran(0, signPavel, 25),
				tran(1, signPavel, 75),
				tran(0, signBill, 10),
				tran(1, signBill, 5),
				tran(0, signEd, 5),
				tran(1, signEd, 50),
			},
		},
		{
			name:    "take all",
			txs:     all(),
			howMany: -1,
			best:    all(),
		},
		{
			name:    "first two",
			txs:     all(),
			howMany: 2,
			best: []database.BlockTx{
				tran(0, signPavel, 25),
				tran(0, signBill, 10),
			},
		},
	}

	t.Log("Given the need to pick best transactions from mempool.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a set of transaction.", testID)
			{
				f := func(t *testing.T) {
					sort, err := selector.Retrieve(selector.StrategyTip)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to get sort strategy function: %s", failed, testID, err)
					}

					txs := sort(group(tst.txs), tst.howMany, 0)
					if len(txs) != len(tst.best) {
						t.Fatalf("\t%s\tTest %d:\tShould get back %d transactions, got %d.", failed, testID, len(tst.best), len(txs))
					}

					nonces := make(map[database.AccountID]uint64)
					for _, tx := range txs {
						found := false
						for _, exp := range tst.best {
							if exp.Nonce == tx.Nonce && exp.FromID == tx.FromID {
								found = true
								break
							}
						}

						if !found {
							t.Fatalf("\t%s\tTest %d:\tShould get back the right from/nonce: %s/%d", failed, testID, tx.FromID, tx.Nonce)
						}

						if next := nonces[tx.FromID]; tx.Nonce != next {
							t.Fatalf("\t%s\tTest %d:\tShould keep nonce order: %s/%d", failed, testID, tx.FromID, tx.Nonce)
						}
						nonces[tx.FromID] = tx.Nonce + 1

						t.Logf("\t%s\tTest %d:\tShould get back the right from/nonce: %s/%d", success, testID, tx.FromID, tx.Nonce)
					}
				}

				t.Run(tst.name, f)
			}
		}
	}
}
