package network_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"testing"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/forkchain/foundation/blockchain/network"
	"github.com/ardanlabs/forkchain/foundation/blockchain/state"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const beneficiary = database.AccountID("0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8")

// deliverer records what it is given. It knows a chain of blocks and accepts
// any block whose parent it knows.
type deliverer struct {
	blocks    map[string]database.Block
	head      database.Block
	submitted []database.Block
}

func newDeliverer(chain []database.Block) *deliverer {
	d := deliverer{
		blocks: make(map[string]database.Block),
	}
	for _, block := range chain {
		d.blocks[block.Hash()] = block
		d.head = block
	}
	return &d
}

func (d *deliverer) ReceiveTransaction(tx database.BlockTx) error {
	return nil
}

func (d *deliverer) SubmitBlock(block database.Block) (state.Admission, error) {
	if _, exists := d.blocks[block.Hash()]; exists {
		return 0, state.ErrAlreadyKnown
	}
	if _, exists := d.blocks[block.Header.ParentHash]; !exists {
		return state.Orphaned, nil
	}

	d.blocks[block.Hash()] = block
	d.submitted = append(d.submitted, block)

	if block.Header.Number > d.head.Header.Number {
		d.head = block
		return state.Canonical, nil
	}
	return state.SideChain, nil
}

func (d *deliverer) RetrieveHead() (ledger.Meta, database.BlockHeader) {
	meta := ledger.Meta{
		Hash:   d.head.Hash(),
		Height: d.head.Header.Number,
		Weight: big.NewInt(int64(d.head.Header.Number)),
	}
	return meta, d.head.Header
}

func (d *deliverer) RetrieveMempool() []database.BlockTx {
	return nil
}

func (d *deliverer) QueryBlock(hash string) (database.Block, ledger.Meta, error) {
	block, exists := d.blocks[hash]
	if !exists {
		return database.Block{}, ledger.Meta{}, fmt.Errorf("blk %s: %w", hash, state.ErrNotFound)
	}
	return block, ledger.Meta{Hash: hash, Height: block.Header.Number}, nil
}

func (d *deliverer) QueryBlocksByNumber(from uint64, to uint64) ([]database.Block, error) {
	return nil, nil
}

// chain builds count blocks on top of parent. The tag keeps forks apart.
func chain(t *testing.T, parent database.Block, count int, tag uint64) []database.Block {
	var blocks []database.Block
	for range count {
		block, err := database.NewBlock(parent.Header, parent.Hash(), beneficiary, 0, parent.Header.TimeStamp+tag, nil)
		if err != nil {
			t.Fatalf("Should be able to construct a block: %s", err)
		}
		blocks = append(blocks, block)
		parent = block
	}
	return blocks
}

// fetcher serves a peer's canonical chain from the specified number.
func fetcher(peerChain []database.Block, calls *[]uint64) network.FetchFunc {
	return func(ctx context.Context, from uint64) ([]database.Block, error) {
		*calls = append(*calls, from)
		if from >= uint64(len(peerChain)) {
			return nil, nil
		}
		return peerChain[from:], nil
	}
}

func noop(string, ...any) {}

// =============================================================================

func TestCatchUp(t *testing.T) {
	genesis := database.GenesisBlock(1000)

	t.Log("Given the need to catch up with a peer's chain.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the peer extends the local chain.", testID)
		{
			shared := slices.Concat([]database.Block{genesis}, chain(t, genesis, 3, 1))
			peerChain := slices.Concat(shared, chain(t, shared[3], 4, 1))

			d := newDeliverer(shared)

			var calls []uint64
			n, err := network.CatchUp(context.Background(), d, fetcher(peerChain, &calls), noop)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to catch up: %s", failed, testID, err)
			}
			if n != 4 || d.head.Hash() != peerChain[7].Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould deliver the missing blocks: got %d", failed, testID, n)
			}
			if len(calls) != 1 || calls[0] != 4 {
				t.Fatalf("\t%s\tTest %d:\tShould fetch once from the next number: %v", failed, testID, calls)
			}
			t.Logf("\t%s\tTest %d:\tShould deliver the missing blocks.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the peer's chain forks below the local head.", testID)
		{
			shared := slices.Concat([]database.Block{genesis}, chain(t, genesis, 2, 1))
			local := slices.Concat(shared, chain(t, shared[2], 4, 1))
			peerChain := slices.Concat(shared, chain(t, shared[2], 6, 2))

			d := newDeliverer(local)

			var calls []uint64
			n, err := network.CatchUp(context.Background(), d, fetcher(peerChain, &calls), noop)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to catch up: %s", failed, testID, err)
			}
			if n != 6 || d.head.Hash() != peerChain[8].Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould deliver the whole fork: got %d", failed, testID, n)
			}
			t.Logf("\t%s\tTest %d:\tShould deliver the whole fork.", success, testID)

			exp := []uint64{7, 6, 4, 1}
			if fmt.Sprint(calls) != fmt.Sprint(exp) {
				t.Fatalf("\t%s\tTest %d:\tShould move the window back: got %v, exp %v", failed, testID, calls, exp)
			}
			t.Logf("\t%s\tTest %d:\tShould move the window back.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the peer is on another chain.", testID)
		{
			local := slices.Concat([]database.Block{genesis}, chain(t, genesis, 2, 1))

			other := database.GenesisBlock(5000)
			other.Header.Number = 1
			peerChain := slices.Concat([]database.Block{genesis}, chain(t, other, 4, 3))

			d := newDeliverer(local)

			var calls []uint64
			if _, err := network.CatchUp(context.Background(), d, fetcher(peerChain, &calls), noop); !errors.Is(err, network.ErrUnrelatedChain) {
				t.Fatalf("\t%s\tTest %d:\tShould report an unrelated chain: %v", failed, testID, err)
			}
			if len(d.submitted) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not deliver anything.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould report an unrelated chain.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the peer has nothing new.", testID)
		{
			local := slices.Concat([]database.Block{genesis}, chain(t, genesis, 2, 1))

			d := newDeliverer(local)

			var calls []uint64
			n, err := network.CatchUp(context.Background(), d, fetcher(local, &calls), noop)
			if err != nil || n != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould deliver nothing: %d: %v", failed, testID, n, err)
			}
			t.Logf("\t%s\tTest %d:\tShould deliver nothing.", success, testID)
		}
	}
}
