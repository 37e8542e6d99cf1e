package state

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ardanlabs/forkchain/foundation/blockchain/consensus"
	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/forkchain/foundation/blockchain/storage"
)

// SubmitBlock takes a block from the network or the mining operation,
// validates it against the state implied by its parent and stores it. The
// block becomes the canonical head when its chain outweighs the current one.
// A block whose parent is unknown is held until the parent arrives.
func (s *State) SubmitBlock(block database.Block) (Admission, error) {
	hash := block.Hash()

	s.evHandler("state: SubmitBlock: started: prevBlk[%s]: newBlk[%s]: numTrans[%d]", block.Header.ParentHash, hash, len(block.Values()))

	s.mu.Lock()
	admission, err := s.admitBlock(block)
	var children []database.Block
	if err == nil && admission != Orphaned {
		children = s.orphans.takeChildren(hash)
	}
	s.mu.Unlock()

	switch {
	case err != nil:
		s.evHandler("state: SubmitBlock: REJECTED: blk[%s]: %s", hash, err)

	case admission == Canonical:
		s.evHandler("state: SubmitBlock: CANONICAL: blk[%s]: height[%d]", hash, block.Header.Number)

		// If the mining operation is running it needs to stop and restart
		// against the new head.
		s.Worker.SignalCancelMining()
		s.blockEvent(block, admission)
		s.Worker.SignalStartMining()

	default:
		s.evHandler("state: SubmitBlock: %s: blk[%s]: height[%d]", admission, hash, block.Header.Number)
		s.blockEvent(block, admission)
	}

	// Blocks that were waiting on this one can be processed now.
	for _, child := range children {
		s.evHandler("state: SubmitBlock: releasing orphan: blk[%s]", child.Hash())
		s.SubmitBlock(child)
	}

	return admission, err
}

// =============================================================================

// admitBlock performs the validation and commit for a block. The caller must
// hold the state mutex.
func (s *State) admitBlock(block database.Block) (Admission, error) {
	hash := block.Hash()
	view := s.ledger.Latest()

	// Cheap rejection of blocks already processed.
	switch meta, err := view.Meta(hash); {
	case err == nil:
		if !meta.Valid() {
			return 0, fmt.Errorf("%w: blk %s: %s", ErrKnownInvalid, hash, meta.Reason)
		}
		return 0, fmt.Errorf("%w: blk %s", ErrAlreadyKnown, hash)

	case !errors.Is(err, storage.ErrNotFound):
		return 0, err
	}

	if s.orphans.contains(hash) {
		return 0, fmt.Errorf("%w: blk %s is held", ErrAlreadyKnown, hash)
	}

	// Without the parent the block can only be held. The proof doesn't depend
	// on the parent so junk is turned away first.
	parentMeta, err := view.Meta(block.Header.ParentHash)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return 0, err
		}

		if err := s.engine.Verify(block.Header); err != nil {
			return 0, err
		}

		for _, dropped := range s.orphans.add(block, time.Now()) {
			s.evHandler("state: SubmitBlock: orphan pool full: dropped blk[%s]", dropped.Hash())
		}

		return Orphaned, nil
	}

	if !parentMeta.Valid() {
		return 0, s.markInvalid(block, fmt.Errorf("%w: %s", ErrInvalidParent, parentMeta.Hash))
	}

	parent, err := view.Block(parentMeta.Hash)
	if err != nil {
		return 0, err
	}

	if err := block.ValidateLinkage(parent.Header); err != nil {
		return 0, s.markInvalid(block, err)
	}

	if err := s.engine.Verify(block.Header); err != nil {
		return 0, s.markInvalid(block, err)
	}

	// A root mismatch means the transactions don't belong to this header.
	// The header may still be good so it isn't marked.
	if err := block.ValidateCommitment(s.genesis.TransPerBlock, s.genesis.MaxBlockBytes); err != nil {
		if errors.Is(err, database.ErrBadCommitmentRoot) {
			return 0, err
		}
		return 0, s.markInvalid(block, err)
	}

	// Build the account state as of the parent.
	cur := s.head.Load()

	f, err := s.forkAt(view, cur.meta, parentMeta)
	if err != nil {
		var re *replayError
		if errors.As(err, &re) {
			s.markInvalidMeta(re.meta, re.err)
			s.markInvalid(block, fmt.Errorf("%w: %s", ErrInvalidParent, re.meta.Hash))
			s.evHandler("state: SubmitBlock: WARNING: replay failed: blk[%s]: %s", re.meta.Hash, re.err)
			return 0, fmt.Errorf("%w: %w", ErrReorgFailed, err)
		}
		if errors.Is(err, ErrInvalidParent) {
			return 0, s.markInvalid(block, err)
		}
		return 0, err
	}

	staged := database.NewOverlay(f.accounts)
	if err := database.ApplyBlock(staged, s.genesis.ChainID, s.genesis.MiningReward, block); err != nil {
		return 0, s.markInvalid(block, err)
	}

	// Keep the prior state of every account this block touches so the block
	// can be rolled back.
	changed := staged.Changed()
	undo := make([]database.Account, 0, len(changed))
	for _, account := range changed {
		pre, err := f.accounts.Account(account.AccountID)
		if err != nil {
			return 0, err
		}
		undo = append(undo, pre)
	}

	meta := ledger.Meta{
		Hash:   hash,
		Parent: parentMeta.Hash,
		Height: block.Header.Number,
		Weight: new(big.Int).Add(parentMeta.Weight, s.forkChoice.Weight(block.Header)),
		Status: ledger.StatusValid,
	}

	batch := ledger.NewBatch()
	batch.PutBlock(block)
	batch.PutMeta(meta)
	batch.PutUndo(hash, undo)

	if !consensus.Better(meta.Weight, meta.Hash, cur.meta.Weight, cur.meta.Hash) {
		if err := s.ledger.Commit(batch); err != nil {
			return 0, err
		}
		return SideChain, nil
	}

	// This block is the new head. Everything changes in one batch: the
	// accounts, the canonical index, the transaction index and the head.
	f.accounts.Merge(staged)
	for _, account := range f.accounts.Changed() {
		batch.PutAccount(account)
	}

	for _, abandoned := range f.abandoned {
		for _, tx := range abandoned.Values() {
			batch.DeleteTx(tx.ID())
		}
		if abandoned.Header.Number > meta.Height {
			batch.DeleteCanonical(abandoned.Header.Number)
		}
	}

	for _, b := range append(f.path, block) {
		bHash := b.Hash()
		batch.PutCanonical(b.Header.Number, bHash)
		for _, tx := range b.Values() {
			batch.PutTx(tx.ID(), bHash)
		}
	}

	batch.PutHead(hash)

	if err := s.ledger.Commit(batch); err != nil {
		if len(f.abandoned) > 0 {
			return 0, fmt.Errorf("%w: %w", ErrReorgFailed, err)
		}
		return 0, err
	}

	s.head.Store(&head{meta: meta, header: block.Header})

	if len(f.abandoned) > 0 {
		s.evHandler("state: SubmitBlock: REORG: ancestor[%d]: abandoned[%d]: applied[%d]: newHead[%s]", f.ancestor.Height, len(f.abandoned), len(f.path)+1, hash)
	}

	s.rebuildMempool(s.ledger.Latest(), f.abandoned)

	return Canonical, nil
}

// markInvalid indexes the block as invalid so it is rejected cheaply when it
// is delivered again. The cause is returned. Only a rule violation marks the
// block, a storage failure says nothing about the block itself.
func (s *State) markInvalid(block database.Block, cause error) error {
	if !isRuleViolation(cause) {
		return cause
	}

	meta := ledger.Meta{
		Hash:   block.Hash(),
		Parent: block.Header.ParentHash,
		Height: block.Header.Number,
		Weight: big.NewInt(0),
	}

	return s.markInvalidMeta(meta, cause)
}

// isRuleViolation reports whether the error condemns the block for good.
func isRuleViolation(err error) bool {
	return database.IsValidation(err) || errors.Is(err, ErrInvalidParent)
}

// markInvalidMeta flips the index entry to invalid. The cause is returned.
func (s *State) markInvalidMeta(meta ledger.Meta, cause error) error {
	if !isRuleViolation(cause) {
		return cause
	}

	meta.Status = ledger.StatusInvalid
	meta.Reason = cause.Error()

	batch := ledger.NewBatch()
	batch.PutMeta(meta)

	if err := s.ledger.Commit(batch); err != nil {
		s.evHandler("state: markInvalid: ERROR: blk[%s]: %s", meta.Hash, err)
		return cause
	}

	s.evHandler("state: markInvalid: blk[%s]: %s", meta.Hash, cause)

	return cause
}

// =============================================================================

// replayError reports a stored block that failed to apply again.
type replayError struct {
	meta ledger.Meta
	err  error
}

func (re *replayError) Error() string {
	return fmt.Sprintf("replay blk %s: %s", re.meta.Hash, re.err)
}

func (re *replayError) Unwrap() error {
	return re.err
}

// fork describes how to reach the state at a block from the current head.
type fork struct {
	ancestor  ledger.Meta
	abandoned []database.Block  // Canonical blocks above the ancestor, lowest first.
	path      []database.Block  // Side chain blocks above the ancestor up to the block, lowest first.
	accounts  *database.Overlay // Account state as of the block.
}

// forkAt rolls the accounts back from the head to the common ancestor with
// the target and replays the side chain up to the target. Nothing is written.
func (s *State) forkAt(view *ledger.View, headMeta ledger.Meta, target ledger.Meta) (fork, error) {
	f := fork{
		accounts: database.NewOverlay(view),
	}

	// Walk back from the target until we land on the canonical chain.
	var path []ledger.Meta
	meta := target
	for {
		canonical, err := isCanonical(view, meta)
		if err != nil {
			return fork{}, err
		}
		if canonical {
			break
		}

		if !meta.Valid() {
			return fork{}, fmt.Errorf("%w: %s", ErrInvalidParent, meta.Hash)
		}

		path = append(path, meta)

		meta, err = view.Meta(meta.Parent)
		if err != nil {
			return fork{}, err
		}
	}
	f.ancestor = meta

	// Roll back the canonical blocks above the ancestor, newest first, so the
	// oldest pre-image of an account is the one left.
	for height := headMeta.Height; height > f.ancestor.Height; height-- {
		hash, err := view.CanonicalHash(height)
		if err != nil {
			return fork{}, err
		}

		undo, err := view.Undo(hash)
		if err != nil {
			return fork{}, err
		}

		for _, account := range undo {
			f.accounts.Set(account)
		}

		block, err := view.Block(hash)
		if err != nil {
			return fork{}, err
		}

		f.abandoned = append([]database.Block{block}, f.abandoned...)
	}

	// Replay the side chain from the ancestor up to the target.
	for i := len(path) - 1; i >= 0; i-- {
		block, err := view.Block(path[i].Hash)
		if err != nil {
			return fork{}, err
		}

		if err := database.ApplyBlock(f.accounts, s.genesis.ChainID, s.genesis.MiningReward, block); err != nil {
			if !database.IsValidation(err) {
				return fork{}, err
			}
			return fork{}, &replayError{meta: path[i], err: err}
		}

		f.path = append(f.path, block)
	}

	return f, nil
}

// isCanonical reports whether the block is on the canonical chain.
func isCanonical(view *ledger.View, meta ledger.Meta) (bool, error) {
	hash, err := view.CanonicalHash(meta.Height)
	switch {
	case err == nil:
		return hash == meta.Hash, nil
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	}
	return false, err
}
