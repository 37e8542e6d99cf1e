package gossip_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/forkchain/foundation/blockchain/network/gossip"
	"github.com/ardanlabs/forkchain/foundation/blockchain/state"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const beneficiary = database.AccountID("0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8")

// deliverer holds a single chain and records received transactions.
type deliverer struct {
	mu    sync.Mutex
	chain []database.Block
	txs   []database.BlockTx
}

func (d *deliverer) ReceiveTransaction(tx database.BlockTx) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, known := range d.txs {
		if known.ID() == tx.ID() {
			return state.ErrAlreadyKnown
		}
	}
	d.txs = append(d.txs, tx)
	return nil
}

func (d *deliverer) SubmitBlock(block database.Block) (state.Admission, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	head := d.chain[len(d.chain)-1]
	if block.Header.ParentHash != head.Hash() {
		return state.Orphaned, nil
	}
	d.chain = append(d.chain, block)
	return state.Canonical, nil
}

func (d *deliverer) RetrieveHead() (ledger.Meta, database.BlockHeader) {
	d.mu.Lock()
	defer d.mu.Unlock()

	head := d.chain[len(d.chain)-1]
	meta := ledger.Meta{
		Hash:   head.Hash(),
		Height: head.Header.Number,
		Weight: big.NewInt(int64(head.Header.Number)),
	}
	return meta, head.Header
}

func (d *deliverer) RetrieveMempool() []database.BlockTx {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]database.BlockTx(nil), d.txs...)
}

func (d *deliverer) QueryBlock(hash string) (database.Block, ledger.Meta, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, block := range d.chain {
		if block.Hash() == hash {
			return block, ledger.Meta{Hash: hash}, nil
		}
	}
	return database.Block{}, ledger.Meta{}, state.ErrNotFound
}

func (d *deliverer) QueryBlocksByNumber(from uint64, to uint64) ([]database.Block, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if from >= uint64(len(d.chain)) {
		return nil, nil
	}
	return append([]database.Block(nil), d.chain[from:]...), nil
}

func (d *deliverer) height() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.chain) - 1
}

func (d *deliverer) received() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.txs)
}

func newChain(t *testing.T, genesis database.Block, count int) []database.Block {
	blocks := []database.Block{genesis}
	parent := genesis
	for range count {
		block, err := database.NewBlock(parent.Header, parent.Hash(), beneficiary, 0, parent.Header.TimeStamp+1, nil)
		if err != nil {
			t.Fatalf("Should be able to construct a block: %s", err)
		}
		blocks = append(blocks, block)
		parent = block
	}
	return blocks
}

func newNode(t *testing.T, ctx context.Context, peers []string) *gossip.Gossip {
	g, err := gossip.New(ctx, gossip.Config{
		ListenAddrs: []string{"/ip4/127.0.0.1/tcp/0"},
		Peers:       peers,
	})
	if err != nil {
		t.Fatalf("Should be able to construct the node: %s", err)
	}
	return g
}

// eventually polls the condition until it holds or the wait is over.
func eventually(wait time.Duration, cond func() bool, retry func()) bool {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		if retry != nil {
			retry()
		}
		time.Sleep(250 * time.Millisecond)
	}
	return cond()
}

// =============================================================================

func TestGossip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping libp2p test in short mode")
	}

	genesis := database.GenesisBlock(1000)

	t.Log("Given the need to share data between nodes over libp2p.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen two nodes are connected.", testID)
		{
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			nodeA := newNode(t, ctx, nil)
			defer nodeA.Close()

			dA := &deliverer{chain: newChain(t, genesis, 4)}
			if err := nodeA.Start(ctx, dA); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to start node A: %s", failed, testID, err)
			}

			nodeB := newNode(t, ctx, nodeA.Addrs())
			defer nodeB.Close()

			dB := &deliverer{chain: []database.Block{genesis}}
			if err := nodeB.Start(ctx, dB); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to start node B: %s", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to start both nodes.", success, testID)

			tx := database.BlockTx{
				SignedTx: database.SignedTx{
					Tx: database.Tx{
						ChainID: 1,
						FromID:  beneficiary,
						ToID:    "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76",
						Value:   10,
					},
					Sig: "0x01",
				},
				TimeStamp: 1,
			}
			dA.ReceiveTransaction(tx)

			if err := nodeB.Sync(ctx, dB); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to sync: %s", failed, testID, err)
			}
			if dB.height() != 4 {
				t.Fatalf("\t%s\tTest %d:\tShould catch up over the sync stream: got %d", failed, testID, dB.height())
			}
			t.Logf("\t%s\tTest %d:\tShould catch up over the sync stream.", success, testID)

			if dB.received() != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould pull the peer mempool: got %d", failed, testID, dB.received())
			}
			t.Logf("\t%s\tTest %d:\tShould pull the peer mempool.", success, testID)

			next := newChain(t, dA.chain[4], 1)[1]
			if _, err := dA.SubmitBlock(next); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould extend node A: %s", failed, testID, err)
			}

			publish := func() { nodeA.BroadcastBlock(ctx, next) }
			if !eventually(15*time.Second, func() bool { return dB.height() == 5 }, publish) {
				t.Fatalf("\t%s\tTest %d:\tShould receive the block on the topic.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould receive the block on the topic.", success, testID)
		}
	}
}
