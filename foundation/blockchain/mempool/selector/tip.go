package selector

import (
	"sort"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
)

// tipSelect returns transactions with the best fee while respecting the nonce
// for each account/transaction. Transactions are taken a nonce row at a time.
var tipSelect = func(m map[database.AccountID][]database.BlockTx, howMany int, maxBytes uint64) []database.BlockTx {

	/*
		Bill: {Nonce: 2, To: "0x6Fe6CF3c8fF57c58d24BfC869668F48BCbDb3BD9", Fee: 250},
			  {Nonce: 1, To: "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76", Fee: 150},
		Pavl: {Nonce: 2, To: "0xa988b1866EaBF72B4c53b592c97aAD8e4b9bDCC0", Fee: 200},
			  {Nonce: 1, To: "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76", Fee: 75},
		Edua: {Nonce: 2, To: "0xa988b1866EaBF72B4c53b592c97aAD8e4b9bDCC0", Fee: 75},
			  {Nonce: 1, To: "0x6Fe6CF3c8fF57c58d24BfC869668F48BCbDb3BD9", Fee: 100},
	*/

	sortByNonce(m)

	/*
		Bill: {Nonce: 1, To: "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76", Fee: 150},
		      {Nonce: 2, To: "0x6Fe6CF3c8fF57c58d24BfC869668F48BCbDb3BD9", Fee: 250},
		Pavl: {Nonce: 1, To: "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76", Fee: 75},
		      {Nonce: 2, To: "0xa988b1866EaBF72B4c53b592c97aAD8e4b9bDCC0", Fee: 200},
		Edua: {Nonce: 1, To: "0x6Fe6CF3c8fF57c58d24BfC869668F48BCbDb3BD9", Fee: 100},
		      {Nonce: 2, To: "0xa988b1866EaBF72B4c53b592c97aAD8e4b9bDCC0", Fee: 75},
	*/

	// Pick the first transaction in the slice for each account. Each iteration
	// represents a new row of selections. Keep doing that until all the
	// transactions have been placed in a row.
	ids := sortedAccounts(m)

	var rows [][]database.BlockTx
	for {
		var row []database.BlockTx
		for _, id := range ids {
			if len(m[id]) > 0 {
				row = append(row, m[id][0])
				m[id] = m[id][1:]
			}
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}

	/*
		0: Bill: {Nonce: 1, To: "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76", Fee: 150},
		0: Pavl: {Nonce: 1, To: "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76", Fee: 75},
		0: Edua: {Nonce: 1, To: "0x6Fe6CF3c8fF57c58d24BfC869668F48BCbDb3BD9", Fee: 100},
		1: Bill: {Nonce: 2, To: "0x6Fe6CF3c8fF57c58d24BfC869668F48BCbDb3BD9", Fee: 250},
		1: Pavl: {Nonce: 2, To: "0xa988b1866EaBF72B4c53b592c97aAD8e4b9bDCC0", Fee: 200},
		1: Edua: {Nonce: 2, To: "0xa988b1866EaBF72B4c53b592c97aAD8e4b9bDCC0", Fee: 75},
	*/

	// Sort each row by fee and pull transactions row by row until the budget
	// is used up. An account whose transaction doesn't fit is skipped from
	// then on so its nonces stay in order.
	bdg := newBudget(howMany, maxBytes)
	skipped := make(map[database.AccountID]bool)

	final := []database.BlockTx{}
done:
	for _, row := range rows {
		sort.Stable(byFee(row))

		for _, tx := range row {
			if bdg.full() {
				break done
			}

			from := tx.FromID.Checksum()
			if skipped[from] {
				continue
			}

			if !bdg.take(tx) {
				skipped[from] = true
				continue
			}

			final = append(final, tx)
		}
	}

	/*
		0: Bill: {Nonce: 1, To: "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76", Fee: 150},
		1: Edua: {Nonce: 1, To: "0x6Fe6CF3c8fF57c58d24BfC869668F48BCbDb3BD9", Fee: 100},
		2: Pavl: {Nonce: 1, To: "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76", Fee: 75},
		3: Bill: {Nonce: 2, To: "0x6Fe6CF3c8fF57c58d24BfC869668F48BCbDb3BD9", Fee: 250},
	*/

	return final
}
