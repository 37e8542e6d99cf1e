// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardanlabs/forkchain/foundation/blockchain/consensus"
	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/forkchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/forkchain/foundation/blockchain/mempool"
	"github.com/ardanlabs/forkchain/foundation/blockchain/mempool/selector"
	"github.com/ardanlabs/forkchain/foundation/blockchain/peer"
	"github.com/ardanlabs/forkchain/foundation/blockchain/storage"
)

// Set of errors returned by admission.
var (
	ErrAlreadyKnown   = errors.New("already known")
	ErrKnownInvalid   = errors.New("block previously found invalid")
	ErrInvalidParent  = errors.New("parent block is invalid")
	ErrReorgFailed    = errors.New("reorganization failed")
	ErrNoTransactions = errors.New("no transactions in mempool")
	ErrStaleFrontier  = errors.New("head moved while mining")
)

// Default limits for items held while waiting on missing data.
const (
	DefaultMaxOrphans     = 256
	DefaultOrphanTimeout  = 10 * time.Minute
	DefaultMaxPending     = 1024
	DefaultPendingTimeout = 10 * time.Minute
)

// =============================================================================

// Admission describes where an accepted block ended up.
type Admission int

// Set of admission results.
const (
	Canonical Admission = iota + 1
	SideChain
	Orphaned
)

// String implements the fmt.Stringer interface.
func (a Admission) String() string {
	switch a {
	case Canonical:
		return "canonical"
	case SideChain:
		return "sidechain"
	case Orphaned:
		return "orphaned"
	}
	return "unknown"
}

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining, peer updates, and transaction sharing.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining()
	SignalShareTx(blockTx database.BlockTx)
}

// noWorker is used until a worker registers itself.
type noWorker struct{}

func (noWorker) Shutdown() {}
func (noWorker) SignalStartMining() {}
func (noWorker) SignalCancelMining() {}
func (noWorker) SignalShareTx(database.BlockTx) {}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	BeneficiaryID   database.AccountID
	Host            string
	Storage         storage.KV
	Genesis         genesis.Genesis
	SelectStrategy  string
	Engine          consensus.Engine
	ForkChoice      consensus.ForkChoice
	MempoolCapacity int
	MaxOrphans      int
	OrphanTimeout   time.Duration
	MaxPending      int
	PendingTimeout  time.Duration
	MineEmpty       bool
	KnownPeers      *peer.PeerSet
	EvHandler       EventHandler
}

// head is the canonical tip readers see.
type head struct {
	meta   ledger.Meta
	header database.BlockHeader
}

// State manages the blockchain database.
type State struct {
	mu sync.Mutex

	beneficiaryID database.AccountID
	host          string
	evHandler     EventHandler
	mineEmpty     bool

	genesis    genesis.Genesis
	engine     consensus.Engine
	forkChoice consensus.ForkChoice
	knownPeers *peer.PeerSet
	ledger     *ledger.Ledger
	mempool    *mempool.Mempool
	orphans    *orphanPool
	pending    *pendingPool
	head       atomic.Pointer[head]

	Worker Worker
}

// New constructs a new blockchain for data management.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.Storage == nil {
		return nil, errors.New("storage is required")
	}

	engine := cfg.Engine
	if engine == nil {
		engine = consensus.NewPOW(cfg.Genesis.Difficulty)
	}

	forkChoice := cfg.ForkChoice
	if forkChoice == nil {
		fc, err := consensus.RetrieveForkChoice(consensus.ForkChoiceWork)
		if err != nil {
			return nil, err
		}
		forkChoice = fc
	}

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewPeerSet()
	}

	strategy := cfg.SelectStrategy
	if strategy == "" {
		strategy = selector.StrategyFeeRate
	}

	// Construct a mempool with the specified sort strategy.
	mp, err := mempool.NewWithStrategy(strategy, cfg.MempoolCapacity)
	if err != nil {
		return nil, err
	}

	// Write the genesis block and balances on first start.
	ldgr := ledger.New(cfg.Storage)
	created, err := ldgr.Init(database.GenesisBlock(cfg.Genesis.TimeStamp()), cfg.Genesis.Accounts())
	if err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}
	if created {
		ev("state: New: ledger initialized from genesis: chainID[%d]", cfg.Genesis.ChainID)
	}

	s := State{
		beneficiaryID: cfg.BeneficiaryID,
		host:          cfg.Host,
		evHandler:     ev,
		mineEmpty:     cfg.MineEmpty,

		genesis:    cfg.Genesis,
		engine:     engine,
		forkChoice: forkChoice,
		knownPeers: knownPeers,
		ledger:     ldgr,
		mempool:    mp,
		orphans:    newOrphanPool(orDefault(cfg.MaxOrphans, DefaultMaxOrphans), durDefault(cfg.OrphanTimeout, DefaultOrphanTimeout)),
		pending:    newPendingPool(orDefault(cfg.MaxPending, DefaultMaxPending), durDefault(cfg.PendingTimeout, DefaultPendingTimeout)),

		Worker: noWorker{},
	}

	if err := s.loadHead(s.ledger.Latest()); err != nil {
		return nil, err
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &s, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {

	// Make sure the database is properly closed.
	defer func() {
		s.ledger.Close()
	}()

	// Stop all blockchain writing activity.
	s.Worker.Shutdown()

	return nil
}

// =============================================================================

// loadHead reads the canonical head from the view and publishes it.
func (s *State) loadHead(view *ledger.View) error {
	meta, err := view.Head()
	if err != nil {
		return fmt.Errorf("read head: %w", err)
	}

	block, err := view.Block(meta.Hash)
	if err != nil {
		return fmt.Errorf("read head block: %w", err)
	}

	s.head.Store(&head{meta: meta, header: block.Header})

	return nil
}

// blockEvent provides a specific event about a new block in the chain for
// application specific support.
func (s *State) blockEvent(block database.Block, admission Admission) {
	blockHeaderJSON, err := json.Marshal(block.Header)
	if err != nil {
		blockHeaderJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	blockTransJSON, err := json.Marshal(block.Values())
	if err != nil {
		blockTransJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	s.evHandler(`viewer: block: {"hash":%q,"admission":%q,"header":%s,"trans":%s}`, block.Hash(), admission, string(blockHeaderJSON), string(blockTransJSON))
}

func orDefault(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func durDefault(v time.Duration, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
