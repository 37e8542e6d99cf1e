// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/validate"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date          time.Time         `json:"date"`
	ChainID       uint16            `json:"chain_id" validate:"required"`        // The chain id represents an unique id for this running instance.
	TransPerBlock uint16            `json:"trans_per_block" validate:"required"` // The maximum number of transactions that can be in a block.
	MaxBlockBytes uint64            `json:"max_block_bytes"`                     // The maximum encoded size of the transactions in a block, 0 means no limit.
	Difficulty    uint16            `json:"difficulty" validate:"lte=64"`        // How difficult it needs to be to solve the work problem.
	MiningReward  uint64            `json:"mining_reward"`                       // Reward for mining a block.
	Authorities   []string          `json:"authorities"`                         // Accounts allowed to seal blocks under the authority engine.
	Balances      map[string]uint64 `json:"balances" validate:"required"`
}

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, fmt.Errorf("reading genesis: %w", err)
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decoding genesis: %w", err)
	}

	if err := validate.Check(genesis); err != nil {
		return Genesis{}, fmt.Errorf("validating genesis: %w", err)
	}

	return genesis, nil
}

// TimeStamp returns the genesis date in milliseconds.
func (g Genesis) TimeStamp() uint64 {
	if g.Date.IsZero() || g.Date.Before(time.Unix(0, 0)) {
		return 0
	}
	return uint64(g.Date.UTC().UnixMilli())
}

// Accounts returns the starting balances keyed by account id.
func (g Genesis) Accounts() map[database.AccountID]uint64 {
	accounts := make(map[database.AccountID]uint64, len(g.Balances))
	for id, balance := range g.Balances {
		accounts[database.AccountID(id).Checksum()] += balance
	}
	return accounts
}

// AuthorityIDs returns the accounts allowed to seal blocks.
func (g Genesis) AuthorityIDs() ([]database.AccountID, error) {
	ids := make([]database.AccountID, len(g.Authorities))
	for i, auth := range g.Authorities {
		id, err := database.ToAccountID(auth)
		if err != nil {
			return nil, fmt.Errorf("authority %q: %w", auth, err)
		}
		ids[i] = id
	}
	return ids, nil
}
