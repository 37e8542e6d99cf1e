// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ardanlabs/forkchain/business/web/errs"
	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/peer"
	"github.com/ardanlabs/forkchain/foundation/blockchain/state"
	"github.com/ardanlabs/forkchain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// SubmitPeer is called by a node so they can be added to the known peer list.
func (h Handlers) SubmitPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var pr peer.Peer
	if err := web.Decode(r, &pr); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if pr.Host == "" {
		return errs.NewTrusted(errors.New("peer host is required"), http.StatusBadRequest)
	}

	if !h.State.AddKnownPeer(pr) {
		h.Log.Infow("adding peer", "traceid", v.TraceID, "host", pr.Host, "status", "already known")
	}

	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// SubmitNodeTransaction adds new node transactions to the mempool.
func (h Handlers) SubmitNodeTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Decode the JSON in the post call into a block transaction.
	var tx database.BlockTx
	if err := web.Decode(r, &tx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	// Ask the state package to add this transaction to the mempool. A
	// transaction delivered by a peer is not shared again.
	h.Log.Infow("add tran", "traceid", v.TraceID, "from:nonce", tx, "to", tx.ToID, "value", tx.Value, "fee", tx.Fee)
	if err := h.State.ReceiveTransaction(tx); err != nil {
		return errs.FromDomain(err)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction accepted",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ProposeBlock takes a block received from a peer and runs it through block
// admission. The response reports where the block ended up.
func (h Handlers) ProposeBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Decode the JSON in the post call into a block.
	var blockData database.BlockData
	if err := web.Decode(r, &blockData); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	// Convert the block data into a block. This action will create a merkle
	// tree for the set of transactions required for blockchain operations.
	block, err := database.ToBlock(blockData)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode block: %w", err), http.StatusBadRequest)
	}

	admission, err := h.State.SubmitBlock(block)
	if err != nil {
		return errs.FromDomain(err)
	}

	h.Log.Infow("propose block", "traceid", v.TraceID, "number", block.Header.Number, "hash", block.Hash(), "admission", admission)

	resp := struct {
		Status string `json:"status"`
	}{
		Status: admission.String(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	meta, header := h.State.RetrieveHead()

	status := peer.PeerStatus{
		LatestBlockHash:   meta.Hash,
		LatestBlockNumber: header.Number,
		LatestBlockWeight: meta.Weight.String(),
		KnownPeers:        h.State.RetrieveKnownPeers(),
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// BlocksByNumber returns all the canonical blocks based on the specified
// to/from values.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, err := number(web.Param(r, "from"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	to, err := number(web.Param(r, "to"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if from > to {
		return errs.NewTrusted(errors.New("from greater than to"), http.StatusBadRequest)
	}

	blocks, err := h.State.QueryBlocksByNumber(from, to)
	if err != nil {
		return err
	}

	if len(blocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blockData := make([]database.BlockData, len(blocks))
	for i, block := range blocks {
		blockData[i] = database.NewBlockData(block)
	}

	return web.Respond(ctx, w, blockData, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txs := h.State.RetrieveMempool()
	return web.Respond(ctx, w, txs, http.StatusOK)
}

// =============================================================================

// number parses a block number where latest or empty means the head.
func number(s string) (uint64, error) {
	if s == "latest" || s == "" {
		return state.QueryLatest, nil
	}
	return strconv.ParseUint(s, 10, 64)
}
