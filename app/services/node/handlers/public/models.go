package public

import (
	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/forkchain/foundation/nameservice"
)

type info struct {
	Account database.AccountID `json:"account"`
	Name    string             `json:"name"`
	Balance uint64             `json:"balance"`
	Nonce   uint64             `json:"nonce"`
}

type actInfo struct {
	LatestBlock string `json:"latest_block"`
	Uncommitted int    `json:"uncommitted"`
	Accounts    []info `json:"accounts"`
}

type head struct {
	Hash      string `json:"hash"`
	Number    uint64 `json:"number"`
	Weight    string `json:"weight"`
	TimeStamp uint64 `json:"timestamp"`
	Engine    string `json:"engine"`
	Orphans   int    `json:"orphans"`
	Pending   int    `json:"pending"`
}

type tx struct {
	ID          string             `json:"id"`
	FromAccount database.AccountID `json:"from"`
	FromName    string             `json:"from_name"`
	To          database.AccountID `json:"to"`
	ToName      string             `json:"to_name"`
	ChainID     uint16             `json:"chain_id"`
	Nonce       uint64             `json:"nonce"`
	Value       uint64             `json:"value"`
	Fee         uint64             `json:"fee"`
	Data        []byte             `json:"data"`
	TimeStamp   uint64             `json:"timestamp"`
	Sig         string             `json:"sig"`
}

type block struct {
	Hash        string             `json:"hash"`
	Number      uint64             `json:"number"`
	ParentHash  string             `json:"parent_hash"`
	Beneficiary database.AccountID `json:"beneficiary"`
	Difficulty  uint16             `json:"difficulty"`
	TimeStamp   uint64             `json:"timestamp"`
	Nonce       uint64             `json:"nonce"`
	TransRoot   string             `json:"trans_root"`
	Weight      string             `json:"weight,omitempty"`
	Status      ledger.Status      `json:"status,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	Canonical   bool               `json:"canonical"`
	Trans       []tx               `json:"trans"`
}

// =============================================================================

func toTx(ns *nameservice.NameService, blkTx database.BlockTx) tx {
	return tx{
		ID:          blkTx.ID(),
		FromAccount: blkTx.FromID,
		FromName:    ns.Lookup(blkTx.FromID),
		To:          blkTx.ToID,
		ToName:      ns.Lookup(blkTx.ToID),
		ChainID:     blkTx.ChainID,
		Nonce:       blkTx.Nonce,
		Value:       blkTx.Value,
		Fee:         blkTx.Fee,
		Data:        blkTx.Data,
		TimeStamp:   blkTx.TimeStamp,
		Sig:         blkTx.Sig,
	}
}

func toTxs(ns *nameservice.NameService, blkTxs []database.BlockTx) []tx {
	trans := make([]tx, len(blkTxs))
	for i, blkTx := range blkTxs {
		trans[i] = toTx(ns, blkTx)
	}
	return trans
}

func toBlock(ns *nameservice.NameService, blk database.Block) block {
	return block{
		Hash:        blk.Hash(),
		Number:      blk.Header.Number,
		ParentHash:  blk.Header.ParentHash,
		Beneficiary: blk.Header.Beneficiary,
		Difficulty:  blk.Header.Difficulty,
		TimeStamp:   blk.Header.TimeStamp,
		Nonce:       blk.Header.Nonce,
		TransRoot:   blk.Header.TransRoot,
		Trans:       toTxs(ns, blk.Values()),
	}
}
