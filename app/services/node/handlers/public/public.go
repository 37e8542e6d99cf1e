// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ardanlabs/forkchain/business/web/errs"
	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/state"
	"github.com/ardanlabs/forkchain/foundation/events"
	"github.com/ardanlabs/forkchain/foundation/nameservice"
	"github.com/ardanlabs/forkchain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Need this to handle CORS on the websocket.
	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	// This upgrades the HTTP connection to a websocket connection.
	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	// This provides a channel for receiving events from the blockchain.
	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	// Starting a ticker to send a ping message over the websocket.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:

			// If the channel is closed, release the websocket.
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}

		case <-ctx.Done():
			return nil
		}
	}
}

// SubmitWalletTransaction adds new user transactions to the mempool.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Decode the JSON in the post call into a Signed transaction.
	var signedTx database.SignedTx
	if err := web.Decode(r, &signedTx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("add user tran", "traceid", v.TraceID, "from:nonce", signedTx, "to", signedTx.ToID, "value", signedTx.Value, "fee", signedTx.Fee)

	// Ask the state package to add this transaction to the mempool. Only the
	// checks are going to be the signature and nonce. More checks can be
	// performed.
	if err := h.State.SubmitWalletTransaction(signedTx); err != nil {
		return errs.FromDomain(err)
	}

	resp := struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}{
		ID:     signedTx.ID(),
		Status: "transaction accepted",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Head returns the canonical head of the chain.
func (h Handlers) Head(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	meta, header := h.State.RetrieveHead()
	orphans, pending := h.State.RetrieveHeld()

	hd := head{
		Hash:      meta.Hash,
		Number:    header.Number,
		Weight:    meta.Weight.String(),
		TimeStamp: header.TimeStamp,
		Engine:    h.State.RetrieveEngine().Name(),
		Orphans:   orphans,
		Pending:   pending,
	}

	return web.Respond(ctx, w, hd, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var accountID database.AccountID
	if acct := web.Param(r, "account"); acct != "" {
		var err error
		accountID, err = database.ToAccountID(acct)
		if err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
	}

	trans := toTxs(h.NS, h.State.QueryMempool(accountID))

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// Accounts returns the current balances for all users.
func (h Handlers) Accounts(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var dbAccounts []database.Account

	switch acct := web.Param(r, "account"); acct {
	case "":
		var err error
		dbAccounts, err = h.State.QueryAccounts()
		if err != nil {
			return err
		}

	default:
		accountID, err := database.ToAccountID(acct)
		if err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}

		account, err := h.State.QueryAccount(accountID)
		if err != nil {
			return errs.FromDomain(err)
		}
		dbAccounts = []database.Account{account}
	}

	acts := make([]info, len(dbAccounts))
	for i, account := range dbAccounts {
		acts[i] = info{
			Account: account.AccountID,
			Name:    h.NS.Lookup(account.AccountID),
			Balance: account.Balance,
			Nonce:   account.Nonce,
		}
	}

	meta, _ := h.State.RetrieveHead()

	ai := actInfo{
		LatestBlock: meta.Hash,
		Uncommitted: h.State.QueryMempoolLength(),
		Accounts:    acts,
	}

	return web.Respond(ctx, w, ai, http.StatusOK)
}

// BlocksByAccount returns all the canonical blocks and their details.
func (h Handlers) BlocksByAccount(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var accountID database.AccountID
	if acct := web.Param(r, "account"); acct != "" {
		var err error
		accountID, err = database.ToAccountID(acct)
		if err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
	}

	dbBlocks, err := h.State.QueryBlocksByAccount(accountID)
	if err != nil {
		return err
	}

	if len(dbBlocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blocks := make([]block, len(dbBlocks))
	for i, blk := range dbBlocks {
		blocks[i] = toBlock(h.NS, blk)
		blocks[i].Canonical = true
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// Block returns any block the node has indexed, including side chain blocks
// and blocks found invalid.
func (h Handlers) Block(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blk, meta, err := h.State.QueryBlock(web.Param(r, "hash"))
	if err != nil {
		return errs.FromDomain(err)
	}

	b := toBlock(h.NS, blk)
	b.Status = meta.Status
	b.Reason = meta.Reason
	if meta.Weight != nil {
		b.Weight = meta.Weight.String()
	}

	canonical, err := h.State.QueryBlocksByNumber(meta.Height, meta.Height)
	if err != nil {
		return err
	}
	b.Canonical = len(canonical) == 1 && canonical[0].Hash() == meta.Hash

	return web.Respond(ctx, w, b, http.StatusOK)
}

// TxBlock returns the canonical block that included the transaction.
func (h Handlers) TxBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txID := web.Param(r, "id")

	blk, err := h.State.QueryTxBlock(txID)
	if err != nil {
		return errs.FromDomain(fmt.Errorf("tx %s: %w", txID, err))
	}

	b := toBlock(h.NS, blk)
	b.Canonical = true

	return web.Respond(ctx, w, b, http.StatusOK)
}
