// Package selector provides different transaction selecting algorithms.
package selector

import (
	"fmt"
	"math/bits"
	"sort"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
)

// List of different select strategies.
const (
	StrategyFeeRate = "feerate"
	StrategyTip     = "tip"
)

// Map of different select strategies with functions.
var strategies = map[string]Func{
	StrategyFeeRate: feeRateSelect,
	StrategyTip:     tipSelect,
}

// Func defines a function that takes a mempool of transactions grouped by
// account and selects howMany of them in an order based on the functions
// strategy. All selector functions MUST respect nonce ordering. Receiving -1
// for howMany must return all the transactions in the strategies ordering.
// A maxBytes of 0 places no limit on the encoded size of the selection.
type Func func(transactions map[database.AccountID][]database.BlockTx, howMany int, maxBytes uint64) []database.BlockTx

// Retrieve returns the specified select strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}
	return fn, nil
}

// =============================================================================

// budget tracks what is left for a selection.
type budget struct {
	trans   int
	bytes   uint64
	limited bool
}

func newBudget(howMany int, maxBytes uint64) budget {
	return budget{
		trans:   howMany,
		bytes:   maxBytes,
		limited: maxBytes > 0,
	}
}

// full reports whether no more transactions can be taken.
func (b budget) full() bool {
	return b.trans == 0
}

// take reserves room for the transaction and reports if it fit.
func (b *budget) take(tx database.BlockTx) bool {
	if b.trans == 0 {
		return false
	}

	size := uint64(tx.Size())
	if b.limited {
		if size > b.bytes {
			return false
		}
		b.bytes -= size
	}

	if b.trans > 0 {
		b.trans--
	}

	return true
}

// sortByNonce sorts the transactions for each account by nonce.
func sortByNonce(m map[database.AccountID][]database.BlockTx) {
	for key := range m {
		if len(m[key]) > 1 {
			sort.Sort(byNonce(m[key]))
		}
	}
}

// sortedAccounts returns the account ids in order so selections are
// repeatable.
func sortedAccounts(m map[database.AccountID][]database.BlockTx) []database.AccountID {
	ids := make([]database.AccountID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// higherFeeRate reports whether a pays more per byte than b. The products
// are compared as 128 bit values.
func higherFeeRate(a database.BlockTx, b database.BlockTx) (higher bool, equal bool) {
	aHi, aLo := bits.Mul64(a.Fee, uint64(b.Size()))
	bHi, bLo := bits.Mul64(b.Fee, uint64(a.Size()))

	switch {
	case aHi != bHi:
		return aHi > bHi, false
	case aLo != bLo:
		return aLo > bLo, false
	}
	return false, true
}

// =============================================================================

// byNonce provides sorting support by the transaction nonce value.
type byNonce []database.BlockTx

// Len returns the number of transactions in the list.
func (bn byNonce) Len() int {
	return len(bn)
}

// Less helps to sort the list by nonce in ascending order to keep the
// transactions in the right order of processing.
func (bn byNonce) Less(i, j int) bool {
	return bn[i].Nonce < bn[j].Nonce
}

// Swap moves transactions in the order of the nonce value.
func (bn byNonce) Swap(i, j int) {
	bn[i], bn[j] = bn[j], bn[i]
}

// =============================================================================

// byFee provides sorting support by the transaction fee value.
type byFee []database.BlockTx

// Len returns the number of transactions in the list.
func (bf byFee) Len() int {
	return len(bf)
}

// Less helps to sort the list by fee in descending order to pick the
// transactions that provide the best reward. Equal fees keep arrival order.
func (bf byFee) Less(i, j int) bool {
	if bf[i].Fee != bf[j].Fee {
		return bf[i].Fee > bf[j].Fee
	}
	return bf[i].TimeStamp < bf[j].TimeStamp
}

// Swap moves transactions in the order of the fee value.
func (bf byFee) Swap(i, j int) {
	bf[i], bf[j] = bf[j], bf[i]
}
