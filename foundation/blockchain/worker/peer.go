package worker

// peerOperations handles finding new peers, catching up with them and
// expiring data held while waiting on them.
func (w *Worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.Sync()
				w.state.ExpireHeld()
			}
		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// Sync updates the peer list, mempool and blocks from the network.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	if err := w.net.Sync(w.ctx, w.state); err != nil {
		w.evHandler("worker: sync: ERROR: %s", err)
	}
}
