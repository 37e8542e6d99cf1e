package selector

import (
	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
)

// feeRateSelect returns transactions ordered by fee per byte. Only the lowest
// pending nonce of each account is a candidate at any time, so a high paying
// transaction waits for the transactions before it. Equal rates are ordered
// by arrival.
var feeRateSelect = func(m map[database.AccountID][]database.BlockTx, howMany int, maxBytes uint64) []database.BlockTx {
	sortByNonce(m)
	ids := sortedAccounts(m)

	bdg := newBudget(howMany, maxBytes)

	final := []database.BlockTx{}
	for !bdg.full() {
		best := -1
		for i, id := range ids {
			if len(m[id]) == 0 {
				continue
			}

			if best == -1 || betterCandidate(m[id][0], m[ids[best]][0]) {
				best = i
			}
		}

		if best == -1 {
			break
		}

		id := ids[best]
		tx := m[id][0]

		// A transaction that doesn't fit blocks the rest of its account.
		if !bdg.take(tx) {
			m[id] = nil
			continue
		}

		final = append(final, tx)
		m[id] = m[id][1:]
	}

	return final
}

// betterCandidate reports whether a should be picked before b.
func betterCandidate(a database.BlockTx, b database.BlockTx) bool {
	higher, equal := higherFeeRate(a, b)
	if !equal {
		return higher
	}

	if a.TimeStamp != b.TimeStamp {
		return a.TimeStamp < b.TimeStamp
	}

	return a.ID() < b.ID()
}
