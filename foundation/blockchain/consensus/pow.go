package consensus

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
)

// POW seals blocks by searching for a nonce that makes the block hash start
// with a difficulty number of zero hex digits.
type POW struct {
	difficulty uint16
}

// NewPOW constructs a proof of work engine for the difficulty.
func NewPOW(difficulty uint16) *POW {
	return &POW{difficulty: difficulty}
}

// Name returns the name of the engine.
func (*POW) Name() string {
	return EnginePOW
}

// Prepare sets the difficulty the block will be sealed with.
func (p *POW) Prepare(header *database.BlockHeader) {
	header.Difficulty = p.difficulty
	header.Seal = ""
}

// Seal performs the work of finding a nonce that solves the block.
func (p *POW) Seal(ctx context.Context, block database.Block, ev EventHandler) (database.Block, error) {
	ev("consensus: pow: seal: started: blk[%d]", block.Header.Number)
	defer ev("consensus: pow: seal: completed: blk[%d]", block.Header.Number)

	// Choose a random starting point for the nonce. After this, the nonce
	// will be incremented by 1 until a solution is found by us or another node.
	nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return database.Block{}, err
	}
	block.Header.Nonce = nBig.Uint64()

	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("consensus: pow: seal: attempts[%d]", attempts)
		}

		if ctx.Err() != nil {
			ev("consensus: pow: seal: CANCELLED: attempts[%d]", attempts)
			return database.Block{}, ctx.Err()
		}

		hash := block.Hash()
		if !isHashSolved(block.Header.Difficulty, hash) {
			block.Header.Nonce++
			continue
		}

		ev("consensus: pow: seal: SOLVED: prevBlk[%s]: newBlk[%s]: attempts[%d]", block.Header.ParentHash, hash, attempts)

		return block, nil
	}
}

// Verify checks the block was sealed with at least the configured difficulty
// and the hash solves it.
func (p *POW) Verify(header database.BlockHeader) error {
	if header.Difficulty < p.difficulty {
		return fmt.Errorf("%w: difficulty %d below %d", database.ErrBadProof, header.Difficulty, p.difficulty)
	}

	hash := header.Hash()
	if !isHashSolved(header.Difficulty, hash) {
		return fmt.Errorf("%w: %s does not solve difficulty %d", database.ErrBadProof, hash, header.Difficulty)
	}

	return nil
}

// isHashSolved checks the hash has a difficulty number of leading zero hex
// digits after the 0x prefix.
func isHashSolved(difficulty uint16, hash string) bool {
	const hexDigits = 64

	if len(hash) != hexDigits+2 || int(difficulty) > hexDigits {
		return false
	}

	return strings.Count(hash[2:2+difficulty], "0") == int(difficulty)
}
