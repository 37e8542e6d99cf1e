package worker_test

import (
	"context"
	"crypto/ecdsa"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/forkchain/foundation/blockchain/consensus"
	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/forkchain/foundation/blockchain/network"
	"github.com/ardanlabs/forkchain/foundation/blockchain/state"
	"github.com/ardanlabs/forkchain/foundation/blockchain/storage/memory"
	"github.com/ardanlabs/forkchain/foundation/blockchain/worker"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	billKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	miner   = database.AccountID("0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8")
	kenny   = database.AccountID("0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76")
)

// recorder captures what the worker hands the network.
type recorder struct {
	mu      sync.Mutex
	started bool
	syncs   int
	closed  bool
	txs     []database.BlockTx
	blocks  []database.Block
}

func (r *recorder) Start(ctx context.Context, d network.Deliverer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
	return nil
}

func (r *recorder) BroadcastTransaction(ctx context.Context, tx database.BlockTx) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, tx)
	return nil
}

func (r *recorder) BroadcastBlock(ctx context.Context, block database.Block) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks = append(r.blocks, block)
	return nil
}

func (r *recorder) Sync(ctx context.Context, d network.Deliverer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncs++
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) counts() (txs int, blocks int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.txs), len(r.blocks)
}

// stallEngine holds the first seal until it is cancelled and records the
// parent of every seal it starts.
type stallEngine struct {
	*consensus.POW
	mu      sync.Mutex
	parents []string
	stalled chan struct{}
}

func (se *stallEngine) Seal(ctx context.Context, block database.Block, ev consensus.EventHandler) (database.Block, error) {
	se.mu.Lock()
	se.parents = append(se.parents, block.Header.ParentHash)
	first := len(se.parents) == 1
	se.mu.Unlock()

	if first {
		close(se.stalled)
		<-ctx.Done()
		return database.Block{}, ctx.Err()
	}

	return se.POW.Seal(ctx, block, ev)
}

func (se *stallEngine) seals() []string {
	se.mu.Lock()
	defer se.mu.Unlock()
	return append([]string(nil), se.parents...)
}

func newState(t *testing.T, bill *ecdsa.PrivateKey, engine consensus.Engine) *state.State {
	gen := genesis.Genesis{
		Date:          time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:       1,
		TransPerBlock: 10,
		Difficulty:    1,
		MiningReward:  100,
		Balances: map[string]uint64{
			string(database.PublicKeyToAccountID(bill.PublicKey)): 1000,
		},
	}

	st, err := state.New(state.Config{
		BeneficiaryID: miner,
		Host:          "localhost:9080",
		Storage:       memory.New(),
		Genesis:       gen,
		Engine:        engine,
	})
	if err != nil {
		t.Fatalf("Should be able to construct the state: %s", err)
	}

	return st
}

func waitFor(wait time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return cond()
}

// =============================================================================

func TestMining(t *testing.T) {
	bill, err := crypto.HexToECDSA(billKey)
	if err != nil {
		t.Fatalf("Should be able to load the private key: %s", err)
	}

	t.Log("Given the need to mine and share in the background.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a wallet submits a transaction.", testID)
		{
			st := newState(t, bill, consensus.NewPOW(1))

			net := recorder{}
			if _, err := worker.Run(st, &net, worker.Config{Mining: true}); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to run the worker: %s", failed, testID, err)
			}

			if !net.started || net.syncs != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould start and sync the network.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould start and sync the network.", success, testID)

			tx, err := database.NewTx(1, 0, database.PublicKeyToAccountID(bill.PublicKey), kenny, 10, 1, nil)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the transaction: %s", failed, testID, err)
			}
			signedTx, err := tx.Sign(bill)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to sign the transaction: %s", failed, testID, err)
			}

			if err := st.SubmitWalletTransaction(signedTx); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the transaction: %s", failed, testID, err)
			}

			ok := waitFor(10*time.Second, func() bool {
				txs, blocks := net.counts()
				return txs == 1 && blocks == 1
			})
			if !ok {
				t.Fatalf("\t%s\tTest %d:\tShould share the transaction and the mined block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould share the transaction and the mined block.", success, testID)

			meta, _ := st.RetrieveHead()
			if meta.Height != 1 || meta.Hash != net.blocks[0].Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould make the mined block the head.", failed, testID)
			}
			if account, err := st.QueryAccount(kenny); err != nil || account.Balance != 10 {
				t.Fatalf("\t%s\tTest %d:\tShould apply the transaction: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould make the mined block the head.", success, testID)

			if err := st.Shutdown(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to shutdown: %s", failed, testID, err)
			}
			if !net.closed {
				t.Fatalf("\t%s\tTest %d:\tShould close the network.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould close the network on shutdown.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen mining is turned off.", testID)
		{
			st := newState(t, bill, consensus.NewPOW(1))

			net := recorder{}
			if _, err := worker.Run(st, &net, worker.Config{Mining: false}); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to run the worker: %s", failed, testID, err)
			}
			defer st.Shutdown()

			tx, _ := database.NewTx(1, 0, database.PublicKeyToAccountID(bill.PublicKey), kenny, 10, 1, nil)
			signedTx, _ := tx.Sign(bill)
			if err := st.SubmitWalletTransaction(signedTx); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the transaction: %s", failed, testID, err)
			}

			if !waitFor(5*time.Second, func() bool { txs, _ := net.counts(); return txs == 1 }) {
				t.Fatalf("\t%s\tTest %d:\tShould still share the transaction.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould still share the transaction.", success, testID)

			time.Sleep(500 * time.Millisecond)
			if _, blocks := net.counts(); blocks != 0 || st.QueryMempoolLength() != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould not mine.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not mine.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the head moves while a block is being sealed.", testID)
		{
			engine := stallEngine{POW: consensus.NewPOW(1), stalled: make(chan struct{})}
			st := newState(t, bill, &engine)

			genMeta, genHeader := st.RetrieveHead()

			// A block from another miner on the same parent.
			competitor, err := database.NewBlock(genHeader, genMeta.Hash, kenny, 0, genHeader.TimeStamp+1000, nil)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the block: %s", failed, testID, err)
			}
			pow := consensus.NewPOW(1)
			pow.Prepare(&competitor.Header)
			competitor, err = pow.Seal(context.Background(), competitor, func(string, ...any) {})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to seal the block: %s", failed, testID, err)
			}

			net := recorder{}
			if _, err := worker.Run(st, &net, worker.Config{Mining: true}); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to run the worker: %s", failed, testID, err)
			}
			defer st.Shutdown()

			tx, _ := database.NewTx(1, 0, database.PublicKeyToAccountID(bill.PublicKey), kenny, 10, 1, nil)
			signedTx, _ := tx.Sign(bill)
			if err := st.SubmitWalletTransaction(signedTx); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the transaction: %s", failed, testID, err)
			}

			select {
			case <-engine.stalled:
			case <-time.After(10 * time.Second):
				t.Fatalf("\t%s\tTest %d:\tShould start sealing a block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould start sealing a block.", success, testID)

			if admission, err := st.SubmitBlock(competitor); err != nil || admission != state.Canonical {
				t.Fatalf("\t%s\tTest %d:\tShould accept the competing block: %s: %v", failed, testID, admission, err)
			}

			if !waitFor(10*time.Second, func() bool { _, blocks := net.counts(); return blocks == 1 }) {
				t.Fatalf("\t%s\tTest %d:\tShould mine again after the head moved.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould mine again after the head moved.", success, testID)

			seals := engine.seals()
			if len(seals) != 2 || seals[0] != genMeta.Hash || seals[1] != competitor.Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould abandon the stale seal and restart on the new head: %v", failed, testID, seals)
			}
			t.Logf("\t%s\tTest %d:\tShould abandon the stale seal and restart on the new head.", success, testID)

			net.mu.Lock()
			mined := net.blocks[0]
			net.mu.Unlock()

			if mined.Header.ParentHash != competitor.Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould build on the competing block.", failed, testID)
			}
			if meta, _ := st.RetrieveHead(); meta.Height != 2 || meta.Hash != mined.Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould make the new block the head.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould build on the competing block.", success, testID)
		}
	}
}
