// Package gossip implements the network transport over libp2p. Transactions
// and blocks are flooded on gossipsub topics and catch up runs over a direct
// request/response stream.
package gossip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/network"
	"github.com/ardanlabs/forkchain/foundation/blockchain/peer"
	"github.com/ardanlabs/forkchain/foundation/blockchain/state"
	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	lpnetwork "github.com/libp2p/go-libp2p/core/network"
	lppeer "github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"
)

// Set of topics and protocols used by the transport.
const (
	TopicTx      = "forkchain/tx"
	TopicBlock   = "forkchain/block"
	syncProtocol = protocol.ID("/forkchain/sync/1.0.0")
)

// streamTimeout bounds a single sync request.
const streamTimeout = 30 * time.Second

// ErrNotStarted is returned when the transport is used before Start.
var ErrNotStarted = errors.New("gossip transport not started")

// Config represents the settings for the transport.
type Config struct {
	ListenAddrs []string
	Peers       []string
	EvHandler   network.EventHandler
}

// Gossip shares transactions and blocks with peers over libp2p.
type Gossip struct {
	host       host.Host
	ps         *pubsub.PubSub
	txTopic    *pubsub.Topic
	blockTopic *pubsub.Topic
	peers      []lppeer.AddrInfo
	evHandler  network.EventHandler

	mu        sync.RWMutex
	deliverer network.Deliverer
	subs      []*pubsub.Subscription
	wg        sync.WaitGroup
}

// New constructs the libp2p host and joins the topics.
func New(ctx context.Context, cfg Config) (*Gossip, error) {
	ev := cfg.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	peers := make([]lppeer.AddrInfo, 0, len(cfg.Peers))
	for _, addr := range cfg.Peers {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			return nil, fmt.Errorf("parsing peer %q: %w", addr, err)
		}
		pi, err := lppeer.AddrInfoFromP2pAddr(ma)
		if err != nil {
			return nil, fmt.Errorf("parsing peer %q: %w", addr, err)
		}
		peers = append(peers, *pi)
	}

	listen := cfg.ListenAddrs
	if len(listen) == 0 {
		listen = []string{"/ip4/0.0.0.0/tcp/0"}
	}

	h, err := libp2p.New(libp2p.ListenAddrStrings(listen...))
	if err != nil {
		return nil, fmt.Errorf("constructing host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("constructing gossipsub: %w", err)
	}

	txTopic, err := ps.Join(TopicTx)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("joining %s: %w", TopicTx, err)
	}

	blockTopic, err := ps.Join(TopicBlock)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("joining %s: %w", TopicBlock, err)
	}

	g := Gossip{
		host:       h,
		ps:         ps,
		txTopic:    txTopic,
		blockTopic: blockTopic,
		peers:      peers,
		evHandler:  ev,
	}

	h.SetStreamHandler(syncProtocol, g.handleStream)

	return &g, nil
}

// Addrs returns the addresses other nodes can use to reach this node.
func (g *Gossip) Addrs() []string {
	info := lppeer.AddrInfo{
		ID:    g.host.ID(),
		Addrs: g.host.Addrs(),
	}

	mas, err := lppeer.AddrInfoToP2pAddrs(&info)
	if err != nil {
		return nil
	}

	addrs := make([]string, len(mas))
	for i, ma := range mas {
		addrs[i] = ma.String()
	}
	return addrs
}

// Start connects to the configured peers and begins delivering what arrives
// on the topics. Delivery stops when the context is cancelled or the
// transport is closed.
func (g *Gossip) Start(ctx context.Context, d network.Deliverer) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.deliverer != nil {
		return errors.New("gossip transport already started")
	}
	g.deliverer = d

	for _, pi := range g.peers {
		if err := g.host.Connect(ctx, pi); err != nil {
			g.evHandler("gossip: Start: connect: %s: WARNING: %s", pi.ID, err)
			continue
		}
		g.evHandler("gossip: Start: connected: %s", pi.ID)
	}

	txSub, err := g.txTopic.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribing %s: %w", TopicTx, err)
	}

	blockSub, err := g.blockTopic.Subscribe()
	if err != nil {
		txSub.Cancel()
		return fmt.Errorf("subscribing %s: %w", TopicBlock, err)
	}

	g.subs = []*pubsub.Subscription{txSub, blockSub}

	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		g.readLoop(ctx, txSub, g.deliverTx)
	}()
	go func() {
		defer g.wg.Done()
		g.readLoop(ctx, blockSub, g.deliverBlock)
	}()

	g.evHandler("gossip: Start: id[%s]: addrs%v", g.host.ID(), g.Addrs())

	return nil
}

// BroadcastTransaction publishes the transaction on the transaction topic.
func (g *Gossip) BroadcastTransaction(ctx context.Context, tx database.BlockTx) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	if err := g.txTopic.Publish(ctx, data); err != nil {
		return fmt.Errorf("publish tx %s: %w", tx, err)
	}

	g.evHandler("gossip: BroadcastTransaction: tx[%s]", tx)

	return nil
}

// BroadcastBlock publishes the block on the block topic.
func (g *Gossip) BroadcastBlock(ctx context.Context, block database.Block) error {
	data, err := json.Marshal(database.NewBlockData(block))
	if err != nil {
		return err
	}

	if err := g.blockTopic.Publish(ctx, data); err != nil {
		return fmt.Errorf("publish blk %s: %w", block.Hash(), err)
	}

	g.evHandler("gossip: BroadcastBlock: blk[%s]", block.Hash())

	return nil
}

// Sync reconnects to configured peers that dropped, pulls the mempools of
// connected peers and catches up with any peer whose chain outweighs this
// node's chain.
func (g *Gossip) Sync(ctx context.Context, d network.Deliverer) error {
	g.evHandler("gossip: Sync: started")
	defer g.evHandler("gossip: Sync: completed")

	for _, pi := range g.peers {
		if g.host.Network().Connectedness(pi.ID) != lpnetwork.Connected {
			if err := g.host.Connect(ctx, pi); err != nil {
				g.evHandler("gossip: Sync: connect: %s: WARNING: %s", pi.ID, err)
			}
		}
	}

	for _, id := range g.host.Network().Peers() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var status peer.PeerStatus
		if err := g.request(ctx, id, request{Kind: kindStatus}, &status); err != nil {
			g.evHandler("gossip: Sync: status: %s: ERROR: %s", id, err)
			continue
		}

		var pool []database.BlockTx
		if err := g.request(ctx, id, request{Kind: kindMempool}, &pool); err != nil {
			g.evHandler("gossip: Sync: mempool: %s: ERROR: %s", id, err)
		}
		for _, tx := range pool {
			if err := d.ReceiveTransaction(tx); err != nil && !errors.Is(err, state.ErrAlreadyKnown) {
				g.evHandler("gossip: Sync: mempool: %s: tx[%s]: %s", id, tx, err)
			}
		}

		meta, _ := d.RetrieveHead()
		if !status.Ahead(meta.Weight) {
			continue
		}

		g.evHandler("gossip: Sync: CatchUp: %s: latestBlockNumber[%d]: weight[%s]", id, status.LatestBlockNumber, status.LatestBlockWeight)

		fetch := func(ctx context.Context, from uint64) ([]database.Block, error) {
			var blocksData []database.BlockData
			if err := g.request(ctx, id, request{Kind: kindBlocks, From: from}, &blocksData); err != nil {
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

		if _, err := network.CatchUp(ctx, d, fetch, g.evHandler); err != nil {
			g.evHandler("gossip: Sync: CatchUp: %s: ERROR: %s", id, err)
		}
	}

	return nil
}

// Close stops delivery and shuts the host down.
func (g *Gossip) Close() error {
	g.mu.Lock()
	for _, sub := range g.subs {
		sub.Cancel()
	}
	g.subs = nil
	g.mu.Unlock()

	g.wg.Wait()

	return g.host.Close()
}

// =============================================================================

// readLoop hands every message from other nodes to the deliver function.
func (g *Gossip) readLoop(ctx context.Context, sub *pubsub.Subscription, deliver func(network.Deliverer, []byte) error) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			g.evHandler("gossip: readLoop: %s: stopped: %s", sub.Topic(), err)
			return
		}

		if msg.ReceivedFrom == g.host.ID() {
			continue
		}

		g.mu.RLock()
		d := g.deliverer
		g.mu.RUnlock()

		if err := deliver(d, msg.Data); err != nil {
			g.evHandler("gossip: readLoop: %s: from[%s]: %s", sub.Topic(), msg.ReceivedFrom, err)
		}
	}
}

func (g *Gossip) deliverTx(d network.Deliverer, data []byte) error {
	var tx database.BlockTx
	if err := json.Unmarshal(data, &tx); err != nil {
		return fmt.Errorf("decoding tx: %w", err)
	}

	return d.ReceiveTransaction(tx)
}

func (g *Gossip) deliverBlock(d network.Deliverer, data []byte) error {
	var bd database.BlockData
	if err := json.Unmarshal(data, &bd); err != nil {
		return fmt.Errorf("decoding block: %w", err)
	}

	block, err := database.ToBlock(bd)
	if err != nil {
		return err
	}

	admission, err := d.SubmitBlock(block)
	if err != nil {
		return err
	}

	// A block arriving before its parent means this node fell behind.
	if admission == state.Orphaned {
		g.evHandler("gossip: deliverBlock: orphan: blk[%s]: parent[%s]", block.Hash(), block.Header.ParentHash)
	}

	return nil
}
