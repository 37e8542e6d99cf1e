package httpnet_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/forkchain/foundation/blockchain/network/httpnet"
	"github.com/ardanlabs/forkchain/foundation/blockchain/peer"
	"github.com/ardanlabs/forkchain/foundation/blockchain/state"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const beneficiary = database.AccountID("0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8")

// deliverer accepts any block whose parent it knows.
type deliverer struct {
	mu     sync.Mutex
	blocks map[string]database.Block
	head   database.Block
}

func newDeliverer(genesis database.Block) *deliverer {
	return &deliverer{
		blocks: map[string]database.Block{genesis.Hash(): genesis},
		head:   genesis,
	}
}

func (d *deliverer) ReceiveTransaction(tx database.BlockTx) error {
	return nil
}

func (d *deliverer) SubmitBlock(block database.Block) (state.Admission, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.blocks[block.Header.ParentHash]; !exists {
		return state.Orphaned, nil
	}
	d.blocks[block.Hash()] = block
	d.head = block
	return state.Canonical, nil
}

func (d *deliverer) RetrieveHead() (ledger.Meta, database.BlockHeader) {
	d.mu.Lock()
	defer d.mu.Unlock()

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
	d.mu.Lock()
	defer d.mu.Unlock()

	block, exists := d.blocks[hash]
	if !exists {
		return database.Block{}, ledger.Meta{}, state.ErrNotFound
	}
	return block, ledger.Meta{Hash: hash}, nil
}

func (d *deliverer) QueryBlocksByNumber(from uint64, to uint64) ([]database.Block, error) {
	return nil, nil
}

// remote plays the part of a peer serving the private routes.
type remote struct {
	mu        sync.Mutex
	chain     []database.Block
	announced []peer.Peer
	proposed  []database.BlockData
}

func (rm *remote) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/node/status", func(w http.ResponseWriter, r *http.Request) {
		head := rm.chain[len(rm.chain)-1]
		json.NewEncoder(w).Encode(peer.PeerStatus{
			LatestBlockHash:   head.Hash(),
			LatestBlockNumber: head.Header.Number,
			LatestBlockWeight: strconv.FormatUint(head.Header.Number, 10),
			KnownPeers:        []peer.Peer{peer.New("localhost:9999")},
		})
	})

	mux.HandleFunc("GET /v1/node/tx/list", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]database.BlockTx{})
	})

	mux.HandleFunc("GET /v1/node/block/list/{from}/{to}", func(w http.ResponseWriter, r *http.Request) {
		from, err := strconv.ParseUint(r.PathValue("from"), 10, 64)
		if err != nil || from >= uint64(len(rm.chain)) {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		var out []database.BlockData
		for _, block := range rm.chain[from:] {
			out = append(out, database.NewBlockData(block))
		}
		json.NewEncoder(w).Encode(out)
	})

	mux.HandleFunc("POST /v1/node/peers", func(w http.ResponseWriter, r *http.Request) {
		var pr peer.Peer
		if err := json.NewDecoder(r.Body).Decode(&pr); err != nil {
			t.Errorf("Should be able to decode the peer: %s", err)
		}
		rm.mu.Lock()
		rm.announced = append(rm.announced, pr)
		rm.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /v1/node/block/propose", func(w http.ResponseWriter, r *http.Request) {
		var bd database.BlockData
		if err := json.NewDecoder(r.Body).Decode(&bd); err != nil {
			t.Errorf("Should be able to decode the block: %s", err)
		}
		rm.mu.Lock()
		rm.proposed = append(rm.proposed, bd)
		rm.mu.Unlock()
		fmt.Fprint(w, `{"status":"accepted"}`)
	})

	return mux
}

func chain(t *testing.T, genesis database.Block, count int) []database.Block {
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

// =============================================================================

func TestSync(t *testing.T) {
	genesis := database.GenesisBlock(1000)

	t.Log("Given the need to sync with peers over HTTP.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a peer has a heavier chain.", testID)
		{
			rm := remote{chain: chain(t, genesis, 5)}
			srv := httptest.NewServer(rm.handler(t))
			defer srv.Close()

			peerHost := strings.TrimPrefix(srv.URL, "http://")

			knownPeers := peer.NewPeerSet()
			knownPeers.Add(peer.New(peerHost))
			knownPeers.Add(peer.New("127.0.0.1:1"))

			net := httpnet.New(httpnet.Config{
				Host:       "localhost:9080",
				KnownPeers: knownPeers,
			})

			d := newDeliverer(genesis)
			if err := net.Start(context.Background(), d); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to start: %s", failed, testID, err)
			}

			if err := net.Sync(context.Background(), d); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to sync: %s", failed, testID, err)
			}

			if _, header := d.RetrieveHead(); header.Number != 5 {
				t.Fatalf("\t%s\tTest %d:\tShould catch up to the peer: got %d", failed, testID, header.Number)
			}
			t.Logf("\t%s\tTest %d:\tShould catch up to the peer.", success, testID)

			var hosts []string
			for _, pr := range knownPeers.Copy("") {
				hosts = append(hosts, pr.Host)
			}
			exp := []string{peerHost, "localhost:9999"}
			if fmt.Sprint(hosts) != fmt.Sprint(exp) {
				t.Fatalf("\t%s\tTest %d:\tShould learn new peers and drop dead ones: %v", failed, testID, hosts)
			}
			t.Logf("\t%s\tTest %d:\tShould learn new peers and drop dead ones.", success, testID)

			if len(rm.announced) != 1 || rm.announced[0].Host != "localhost:9080" {
				t.Fatalf("\t%s\tTest %d:\tShould announce itself: %v", failed, testID, rm.announced)
			}
			t.Logf("\t%s\tTest %d:\tShould announce itself.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen proposing a block.", testID)
		{
			rm := remote{chain: chain(t, genesis, 1)}
			srv := httptest.NewServer(rm.handler(t))
			defer srv.Close()

			knownPeers := peer.NewPeerSet()
			knownPeers.Add(peer.New(strings.TrimPrefix(srv.URL, "http://")))

			net := httpnet.New(httpnet.Config{
				Host:       "localhost:9080",
				KnownPeers: knownPeers,
			})

			block := chain(t, genesis, 1)[1]
			if err := net.BroadcastBlock(context.Background(), block); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to propose the block: %s", failed, testID, err)
			}

			if len(rm.proposed) != 1 || rm.proposed[0].Hash != block.Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould deliver the block to the peer.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould deliver the block to the peer.", success, testID)
		}
	}
}
