// Package network defines how transactions and blocks move between nodes.
// A transport delivers what it receives to the node and broadcasts what the
// node produces. No ordering or delivery guarantee is assumed of a transport.
package network

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/forkchain/foundation/blockchain/state"
)

// Set of transport kinds.
const (
	KindHTTP   = "http"
	KindGossip = "gossip"
)

// MaxCatchUpDepth is how far below the local head a catch up will search for
// the block a peer's chain forks from.
const MaxCatchUpDepth = 1024

// ErrUnrelatedChain is returned when a peer's chain doesn't share a block
// with the local chain within MaxCatchUpDepth.
var ErrUnrelatedChain = errors.New("peer chain does not connect")

// EventHandler defines a function that is called when events occur in the
// processing of network traffic.
type EventHandler func(v string, args ...any)

// Deliverer is the node behavior a transport hands received data to and
// serves peer requests from.
type Deliverer interface {
	ReceiveTransaction(tx database.BlockTx) error
	SubmitBlock(block database.Block) (state.Admission, error)
	RetrieveHead() (ledger.Meta, database.BlockHeader)
	RetrieveMempool() []database.BlockTx
	QueryBlock(hash string) (database.Block, ledger.Meta, error)
	QueryBlocksByNumber(from uint64, to uint64) ([]database.Block, error)
}

// Network is the behavior a transport provides to the node.
type Network interface {

	// Start begins delivering received transactions and blocks.
	Start(ctx context.Context, d Deliverer) error

	// BroadcastTransaction shares an accepted transaction with peers.
	BroadcastTransaction(ctx context.Context, tx database.BlockTx) error

	// BroadcastBlock shares a block this node produced with peers.
	BroadcastBlock(ctx context.Context, block database.Block) error

	// Sync brings the node up to date with what its peers know.
	Sync(ctx context.Context, d Deliverer) error

	// Close releases the transport's resources.
	Close() error
}

// =============================================================================

// FetchFunc returns a peer's canonical blocks from the specified number up to
// the peer's head.
type FetchFunc func(ctx context.Context, from uint64) ([]database.Block, error)

// CatchUp pulls the blocks a peer has beyond the local head and delivers them
// in order. When the first block doesn't connect to a block this node knows,
// the window moves back until the fork point is covered. It returns the
// number of blocks delivered.
func CatchUp(ctx context.Context, d Deliverer, fetch FetchFunc, ev EventHandler) (int, error) {
	_, header := d.RetrieveHead()

	from := header.Number + 1
	var step uint64 = 1

	for {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		blocks, err := fetch(ctx, from)
		if err != nil {
			return 0, fmt.Errorf("fetch from %d: %w", from, err)
		}

		if len(blocks) == 0 {
			return 0, nil
		}

		ev("network: CatchUp: fetched: from[%d]: blocks[%d]", from, len(blocks))

		connected, err := knows(d, blocks[0].Header.ParentHash)
		if err != nil {
			return 0, err
		}

		if connected {
			return deliver(d, blocks, ev)
		}

		if from <= 1 || header.Number+1-from >= MaxCatchUpDepth {
			return 0, fmt.Errorf("%w: no known parent at or below %d", ErrUnrelatedChain, from)
		}

		// Move the window back twice as far each time.
		if step >= from {
			from = 1
		} else {
			from -= step
		}
		step *= 2

		ev("network: CatchUp: fork below window: retry from[%d]", from)
	}
}

// knows reports whether the node has stored the block.
func knows(d Deliverer, hash string) (bool, error) {
	_, _, err := d.QueryBlock(hash)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, state.ErrNotFound):
		return false, nil
	}
	return false, err
}

// deliver submits the blocks in order. Blocks already processed are skipped.
func deliver(d Deliverer, blocks []database.Block, ev EventHandler) (int, error) {
	var delivered int
	for _, block := range blocks {
		admission, err := d.SubmitBlock(block)
		if err != nil {
			if errors.Is(err, state.ErrAlreadyKnown) {
				continue
			}
			return delivered, fmt.Errorf("blk %s: %w", block.Hash(), err)
		}

		ev("network: CatchUp: delivered: blk[%s]: %s", block.Hash(), admission)
		delivered++
	}

	return delivered, nil
}
