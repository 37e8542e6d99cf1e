// Package httpnet implements the network transport over the node's private
// HTTP/JSON routes.
package httpnet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/network"
	"github.com/ardanlabs/forkchain/foundation/blockchain/peer"
	"github.com/ardanlabs/forkchain/foundation/blockchain/state"
)

const baseURL = "http://%s/v1/node"

// Config represents the settings for the transport.
type Config struct {
	Host       string
	KnownPeers *peer.PeerSet
	Client     *http.Client
	EvHandler  network.EventHandler
}

// HTTP shares transactions and blocks with the known peers over HTTP.
type HTTP struct {
	host       string
	knownPeers *peer.PeerSet
	client     *http.Client
	evHandler  network.EventHandler
}

// New constructs the transport.
func New(cfg Config) *HTTP {
	ev := cfg.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewPeerSet()
	}

	return &HTTP{
		host:       cfg.Host,
		knownPeers: knownPeers,
		client:     client,
		evHandler:  ev,
	}
}

// Start only reports the transport is ready. The private routes deliver
// inbound traffic.
func (h *HTTP) Start(ctx context.Context, d network.Deliverer) error {
	h.evHandler("httpnet: Start: host[%s]: peers[%d]", h.host, len(h.knownPeers.Copy(h.host)))

	return nil
}

// BroadcastTransaction shares the transaction with all known peers.
func (h *HTTP) BroadcastTransaction(ctx context.Context, tx database.BlockTx) error {
	h.evHandler("httpnet: BroadcastTransaction: started: tx[%s]", tx)
	defer h.evHandler("httpnet: BroadcastTransaction: completed")

	// CORE NOTE: Bitcoin does not send the full transaction immediately to save
	// on bandwidth. A node will send the transaction's mempool key first so the
	// receiving node can check if they already have the transaction or not.
	// This transport just sends the full transaction.

	var errs []error
	for _, pr := range h.knownPeers.Copy(h.host) {
		url := fmt.Sprintf("%s/tx/submit", fmt.Sprintf(baseURL, pr.Host))
		if err := h.send(ctx, http.MethodPost, url, tx, nil); err != nil {
			h.evHandler("httpnet: BroadcastTransaction: WARNING: %s: %s", pr.Host, err)
			errs = append(errs, fmt.Errorf("%s: %w", pr.Host, err))
		}
	}

	return errors.Join(errs...)
}

// BroadcastBlock proposes the block to all known peers.
func (h *HTTP) BroadcastBlock(ctx context.Context, block database.Block) error {
	h.evHandler("httpnet: BroadcastBlock: started: blk[%s]", block.Hash())
	defer h.evHandler("httpnet: BroadcastBlock: completed")

	var errs []error
	for _, pr := range h.knownPeers.Copy(h.host) {
		url := fmt.Sprintf("%s/block/propose", fmt.Sprintf(baseURL, pr.Host))

		var status struct {
			Status string `json:"status"`
		}

		if err := h.send(ctx, http.MethodPost, url, database.NewBlockData(block), &status); err != nil {
			h.evHandler("httpnet: BroadcastBlock: WARNING: %s: %s", pr.Host, err)
			errs = append(errs, fmt.Errorf("%s: %w", pr.Host, err))
			continue
		}

		h.evHandler("httpnet: BroadcastBlock: sent to peer[%s]: %s", pr.Host, status.Status)
	}

	return errors.Join(errs...)
}

// Sync updates the peer list, pulls the peers' mempools and catches up
// with any peer whose chain outweighs this node's chain.
func (h *HTTP) Sync(ctx context.Context, d network.Deliverer) error {
	h.evHandler("httpnet: Sync: started")
	defer h.evHandler("httpnet: Sync: completed")

	for _, pr := range h.knownPeers.Copy(h.host) {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		status, err := h.RequestPeerStatus(ctx, pr)
		if err != nil {
			h.evHandler("httpnet: Sync: RequestPeerStatus: %s: ERROR: %s", pr.Host, err)
			h.knownPeers.Remove(pr)
			continue
		}

		h.addNewPeers(status.KnownPeers)

		if err := h.announce(ctx, pr); err != nil {
			h.evHandler("httpnet: Sync: announce: %s: WARNING: %s", pr.Host, err)
		}

		pool, err := h.RequestPeerMempool(ctx, pr)
		if err != nil {
			h.evHandler("httpnet: Sync: RequestPeerMempool: %s: ERROR: %s", pr.Host, err)
		}
		for _, tx := range pool {
			if err := d.ReceiveTransaction(tx); err != nil && !errors.Is(err, state.ErrAlreadyKnown) {
				h.evHandler("httpnet: Sync: RequestPeerMempool: %s: tx[%s]: %s", pr.Host, tx, err)
			}
		}

		meta, _ := d.RetrieveHead()
		if !status.Ahead(meta.Weight) {
			continue
		}

		h.evHandler("httpnet: Sync: CatchUp: %s: latestBlockNumber[%d]: weight[%s]", pr.Host, status.LatestBlockNumber, status.LatestBlockWeight)

		fetch := func(ctx context.Context, from uint64) ([]database.Block, error) {
			return h.RequestPeerBlocks(ctx, pr, from)
		}

		if _, err := network.CatchUp(ctx, d, fetch, h.evHandler); err != nil {
			h.evHandler("httpnet: Sync: CatchUp: %s: ERROR: %s", pr.Host, err)
		}
	}

	return nil
}

// Close is a no-op since the transport holds no connections.
func (h *HTTP) Close() error {
	return nil
}

// =============================================================================

// RequestPeerStatus asks the peer for its head and its peer list.
func (h *HTTP) RequestPeerStatus(ctx context.Context, pr peer.Peer) (peer.PeerStatus, error) {
	url := fmt.Sprintf("%s/status", fmt.Sprintf(baseURL, pr.Host))

	var ps peer.PeerStatus
	if err := h.send(ctx, http.MethodGet, url, nil, &ps); err != nil {
		return peer.PeerStatus{}, err
	}

	h.evHandler("httpnet: RequestPeerStatus: peer-node[%s]: latest-blknum[%d]: peer-list[%s]", pr, ps.LatestBlockNumber, ps.KnownPeers)

	return ps, nil
}

// RequestPeerMempool asks the peer for the transactions in its mempool.
func (h *HTTP) RequestPeerMempool(ctx context.Context, pr peer.Peer) ([]database.BlockTx, error) {
	url := fmt.Sprintf("%s/tx/list", fmt.Sprintf(baseURL, pr.Host))

	var mempool []database.BlockTx
	if err := h.send(ctx, http.MethodGet, url, nil, &mempool); err != nil {
		return nil, err
	}

	return mempool, nil
}

// RequestPeerBlocks asks the peer for its canonical blocks from the
// specified number up to its head.
func (h *HTTP) RequestPeerBlocks(ctx context.Context, pr peer.Peer, from uint64) ([]database.Block, error) {

	// CORE NOTE: Ideally you want to start by pulling just block headers and
	// performing the cryptographic audit so you know your're not being attacked.
	// After that you can start pulling the full block data for each block header.
	// This node is full node only and needs the transactions to have a complete
	// account database.

	url := fmt.Sprintf("%s/block/list/%d/latest", fmt.Sprintf(baseURL, pr.Host), from)

	var blocksData []database.BlockData
	if err := h.send(ctx, http.MethodGet, url, nil, &blocksData); err != nil {
		return nil, err
	}

	blocks := make([]database.Block, 0, len(blocksData))
	for _, bd := range blocksData {
		block, err := database.ToBlock(bd)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}

	return blocks, nil
}

// announce lets the peer know this node is available to chat.
func (h *HTTP) announce(ctx context.Context, pr peer.Peer) error {
	url := fmt.Sprintf("%s/peers", fmt.Sprintf(baseURL, pr.Host))
	return h.send(ctx, http.MethodPost, url, peer.New(h.host), nil)
}

// addNewPeers makes sure the peers are included in the known peer list.
func (h *HTTP) addNewPeers(knownPeers []peer.Peer) {
	for _, pr := range knownPeers {

		// Don't add this running node to the known peer list.
		if pr.Match(h.host) {
			continue
		}

		if h.knownPeers.Add(pr) {
			h.evHandler("httpnet: addNewPeers: adding peer-node %s", pr)
		}
	}
}

// send is a helper function to send an HTTP request to a node.
func (h *HTTP) send(ctx context.Context, method string, url string, dataSend any, dataRecv any) error {
	var body io.Reader

	if dataSend != nil {
		data, err := json.Marshal(dataSend)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if dataSend != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	if dataRecv != nil {
		if err := json.NewDecoder(resp.Body).Decode(dataRecv); err != nil {
			return err
		}
	}

	return nil
}
