// Package consensus provides the pluggable consensus policies: the engines
// that seal and verify the proof carried by a block header, and the fork
// choice rules that weigh competing chains.
package consensus

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
)

// Set of engine names.
const (
	EnginePOW = "pow"
	EnginePOA = "poa"
)

// Set of fork choice names.
const (
	ForkChoiceWork    = "work"
	ForkChoiceLongest = "longest"
)

// EventHandler defines a function that is called when events occur while a
// block is being sealed.
type EventHandler func(v string, args ...any)

// Engine represents the behavior required of a consensus proof engine.
type Engine interface {

	// Name returns the name of the engine.
	Name() string

	// Prepare sets the consensus fields of a header before sealing.
	Prepare(header *database.BlockHeader)

	// Seal searches for or produces the proof for the block. Sealing must
	// stop and return the context error when the context is cancelled.
	Seal(ctx context.Context, block database.Block, ev EventHandler) (database.Block, error)

	// Verify checks the proof carried by the header. Failures wrap
	// database.ErrBadProof.
	Verify(header database.BlockHeader) error
}

// Config represents the settings an engine can be constructed with.
type Config struct {
	Difficulty  uint16
	Authorities []database.AccountID
	SealKey     *ecdsa.PrivateKey
}

// NewEngine constructs the named engine.
func NewEngine(name string, cfg Config) (Engine, error) {
	switch name {
	case EnginePOW:
		return NewPOW(cfg.Difficulty), nil
	case EnginePOA:
		return NewPOA(cfg.Authorities, cfg.SealKey)
	}

	return nil, fmt.Errorf("engine %q does not exist", name)
}

// =============================================================================

// ForkChoice weighs a block so competing chains can be compared by the sum
// of the weights of their blocks.
type ForkChoice interface {
	Name() string
	Weight(header database.BlockHeader) *big.Int
}

// Map of different fork choice rules.
var forkChoices = map[string]ForkChoice{
	ForkChoiceWork:    work{},
	ForkChoiceLongest: longest{},
}

// RetrieveForkChoice returns the specified fork choice rule.
func RetrieveForkChoice(name string) (ForkChoice, error) {
	fc, exists := forkChoices[name]
	if !exists {
		return nil, fmt.Errorf("fork choice %q does not exist", name)
	}
	return fc, nil
}

// Better reports whether chain a is preferred over chain b. The heavier
// chain wins and equal weights go to the lowest block reference.
func Better(aWeight *big.Int, aHash string, bWeight *big.Int, bHash string) bool {
	switch aWeight.Cmp(bWeight) {
	case 1:
		return true
	case -1:
		return false
	}

	return aHash < bHash
}

// work weighs a block by the expected number of hashes needed to solve it.
// Each leading zero hex digit is four bits of work.
type work struct{}

func (work) Name() string { return ForkChoiceWork }

func (work) Weight(header database.BlockHeader) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(header.Difficulty)*4)
}

// longest weighs every block the same.
type longest struct{}

func (longest) Name() string { return ForkChoiceLongest }

func (longest) Weight(header database.BlockHeader) *big.Int {
	return big.NewInt(1)
}
