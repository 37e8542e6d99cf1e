package consensus

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/signature"
)

// ErrNotInTurn is returned by Seal when another authority is selected to
// seal the next block.
var ErrNotInTurn = errors.New("authority not in turn")

// POA seals blocks by having the authority selected for the parent block
// sign the header.
type POA struct {
	authorities []database.AccountID
	key         *ecdsa.PrivateKey
	self        database.AccountID
}

// NewPOA constructs a proof of authority engine. The key is only needed by
// nodes that seal blocks.
func NewPOA(authorities []database.AccountID, key *ecdsa.PrivateKey) (*POA, error) {
	if len(authorities) == 0 {
		return nil, errors.New("poa requires at least one authority")
	}

	auths := make([]database.AccountID, len(authorities))
	for i, a := range authorities {
		auths[i] = a.Checksum()
	}
	sort.Slice(auths, func(i, j int) bool { return auths[i] < auths[j] })

	p := POA{
		authorities: auths,
		key:         key,
	}

	if key != nil {
		p.self = database.PublicKeyToAccountID(key.PublicKey)
	}

	return &p, nil
}

// Name returns the name of the engine.
func (*POA) Name() string {
	return EnginePOA
}

// Prepare clears the work fields since authority blocks carry no work.
func (*POA) Prepare(header *database.BlockHeader) {
	header.Difficulty = 0
	header.Nonce = 0
	header.Seal = ""
}

// Selected returns the authority selected to seal the block that follows
// the parent.
func (p *POA) Selected(parentHash string) database.AccountID {
	h := fnv.New32a()
	h.Write([]byte(parentHash))

	return p.authorities[h.Sum32()%uint32(len(p.authorities))]
}

// InTurn reports whether this node is the authority selected to seal the
// block that follows the parent.
func (p *POA) InTurn(parentHash string) bool {
	return p.key != nil && p.Selected(parentHash).Equal(p.self)
}

// Seal signs the header when this node is the selected authority.
func (p *POA) Seal(ctx context.Context, block database.Block, ev EventHandler) (database.Block, error) {
	if p.key == nil {
		return database.Block{}, errors.New("poa: no sealing key")
	}

	if selected := p.Selected(block.Header.ParentHash); !selected.Equal(p.self) {
		ev("consensus: poa: seal: not in turn: selected[%s]", selected)
		return database.Block{}, ErrNotInTurn
	}

	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	block.Header.Seal = ""
	sig, err := signature.Sign(block.Header, p.key)
	if err != nil {
		return database.Block{}, err
	}
	block.Header.Seal = sig

	ev("consensus: poa: seal: SIGNED: prevBlk[%s]: newBlk[%s]", block.Header.ParentHash, block.Hash())

	return block, nil
}

// Verify checks the header was signed by the authority selected for it.
func (p *POA) Verify(header database.BlockHeader) error {
	sig := header.Seal
	header.Seal = ""

	signer, err := signature.Recover(header, sig)
	if err != nil {
		return fmt.Errorf("%w: %w", database.ErrBadProof, err)
	}

	selected := p.Selected(header.ParentHash)
	if !selected.Equal(database.AccountID(signer)) {
		return fmt.Errorf("%w: sealed by %s, selected %s", database.ErrBadProof, signer, selected)
	}

	return nil
}
