// Package worker implements mining, peer updates, and transaction sharing for
// the blockchain.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/forkchain/foundation/blockchain/consensus"
	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/network"
	"github.com/ardanlabs/forkchain/foundation/blockchain/state"
)

// peerUpdateInterval represents the interval of finding new peer nodes,
// updating the blockchain with missing blocks and expiring held data.
const peerUpdateInterval = time.Minute

// Config represents the settings for the worker.
type Config struct {
	Mining         bool
	UpdateInterval time.Duration
	EvHandler      state.EventHandler
}

// =============================================================================

// Worker manages the mining, sync and sharing workflows for the blockchain.
type Worker struct {
	state        *state.State
	net          network.Network
	mining       bool
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	ticker       *time.Ticker
	shut         chan struct{}
	startMining  chan bool
	cancelMining chan bool
	txSharing    chan database.BlockTx
	evHandler    state.EventHandler
}

// Run creates a worker, registers the worker with the state package, starts
// the network transport and starts up all the background processes.
func Run(st *state.State, net network.Network, cfg Config) (*Worker, error) {
	ev := cfg.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	interval := cfg.UpdateInterval
	if interval <= 0 {
		interval = peerUpdateInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := Worker{
		state:        st,
		net:          net,
		mining:       cfg.Mining,
		ctx:          ctx,
		cancel:       cancel,
		ticker:       time.NewTicker(interval),
		shut:         make(chan struct{}),
		startMining:  make(chan bool, 1),
		cancelMining: make(chan bool, 1),
		txSharing:    make(chan database.BlockTx, maxTxShareRequests),
		evHandler:    ev,
	}

	// Register this worker with the state package.
	prev := st.Worker
	st.Worker = &w

	if err := net.Start(ctx, st); err != nil {
		st.Worker = prev
		w.ticker.Stop()
		cancel()
		return nil, fmt.Errorf("starting network: %w", err)
	}

	// Update this node before starting any support G's.
	w.Sync()

	// Load the set of operations we need to run. Authority engines mine on
	// a fixed cycle instead of on demand.
	operations := []func(){
		w.peerOperations,
		w.shareTxOperations,
	}

	switch engine := st.RetrieveEngine().(type) {
	case *consensus.POA:
		operations = append(operations, func() { w.poaOperations(engine) })
	default:
		operations = append(operations, w.miningOperations)
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for range g {
		<-hasStarted
	}

	return &w, nil
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutine performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop ticker")
	w.ticker.Stop()

	w.evHandler("worker: shutdown: signal cancel mining")
	w.SignalCancelMining()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.cancel()
	w.wg.Wait()

	w.evHandler("worker: shutdown: close network")
	if err := w.net.Close(); err != nil {
		w.evHandler("worker: shutdown: close network: ERROR: %s", err)
	}
}

// SignalStartMining starts a mining operation. If there is already a signal
// pending in the channel, just return since a mining operation will start.
func (w *Worker) SignalStartMining() {
	if !w.mining {
		return
	}

	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining signals the G executing the runMiningOperation function
// to stop immediately.
func (w *Worker) SignalCancelMining() {
	select {
	case w.cancelMining <- true:
	default:
	}
	w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")
}

// SignalShareTx signals a share transaction operation. If
// maxTxShareRequests signals exist in the channel, we won't send these.
func (w *Worker) SignalShareTx(blockTx database.BlockTx) {
	select {
	case w.txSharing <- blockTx:
		w.evHandler("worker: SignalShareTx: share Tx signaled")
	default:
		w.evHandler("worker: SignalShareTx: queue full, transactions won't be shared.")
	}
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
