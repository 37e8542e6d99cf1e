package worker

import (
	"time"

	"github.com/ardanlabs/forkchain/foundation/blockchain/consensus"
)

// CORE NOTE: The POA mining operation is managed by this function which runs on
// it's own goroutine. The node starts a loop that is on a 12 second timer. At
// the beginning of each cycle the selection algorithm is executed which determines
// if this node needs to mine the next block. If this node is not selected, it
// waits for the next cycle to check the selection algorithm again.

// cycleDuration sets the mining operation to happen every 12 seconds
const secondsPerCycle = 12
const cycleDuration = secondsPerCycle * time.Second

// poaOperations handles mining for the authority engine.
func (w *Worker) poaOperations(engine *consensus.POA) {
	w.evHandler("worker: poaOperations: G started")
	defer w.evHandler("worker: poaOperations: G completed")

	ticker := time.NewTicker(cycleDuration)
	defer ticker.Stop()

	// Start this on a secondsPerCycle mark: ex. MM.00, MM.12, MM.24, MM.36.
	resetTicker(ticker, secondsPerCycle*time.Second)

	for {
		select {
		case <-ticker.C:
			if !w.isShutdown() {
				w.runPoaOperation(engine)
			}
		case <-w.shut:
			w.evHandler("worker: poaOperations: received shut signal")
			return
		}

		// Reset the ticker for the next cycle.
		resetTicker(ticker, 0)
	}
}

// runPoaOperation mines the next block when this node is the authority
// selected for the current head.
func (w *Worker) runPoaOperation(engine *consensus.POA) {
	w.evHandler("worker: runPoaOperation: started")
	defer w.evHandler("worker: runPoaOperation: completed")

	meta, _ := w.state.RetrieveHead()

	selected := engine.Selected(meta.Hash)
	w.evHandler("worker: runPoaOperation: SELECTED: %s", selected)

	// If we are not selected, return and wait for the new block.
	if !engine.InTurn(meta.Hash) {
		return
	}

	w.runMiningOperation()
}

// =============================================================================

// resetTicker makes sure the next tick happens on the described cadence.
func resetTicker(ticker *time.Ticker, waitOnSecond time.Duration) {
	nextTick := time.Now().Add(cycleDuration).Round(waitOnSecond)
	diff := time.Until(nextTick)
	ticker.Reset(diff)
}
