package database

import (
	"encoding/json"
	"fmt"

	"github.com/ardanlabs/forkchain/foundation/blockchain/merkle"
	"github.com/ardanlabs/forkchain/foundation/blockchain/signature"
)

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Number      uint64    `json:"number"`      // Ethereum: Block number in the chain.
	ParentHash  string    `json:"parent_hash"` // Bitcoin: Hash of the previous block in the chain.
	TimeStamp   uint64    `json:"timestamp"`   // Bitcoin: Time the block was mined in milliseconds.
	Beneficiary AccountID `json:"beneficiary"` // Ethereum: The account who is receiving fees and the reward.
	Difficulty  uint16    `json:"difficulty"`  // Ethereum: Number of 0's needed to solve the hash solution.
	Nonce       uint64    `json:"nonce"`       // Bitcoin: Value identified to solve the hash solution.
	Seal        string    `json:"seal"`        // Signature of the sealing authority when not using work.
	TransRoot   string    `json:"trans_root"`  // Bitcoin/Ethereum: Represents the merkle tree root hash for the transactions in this block.
}

// Block represents a group of transactions batched together.
type Block struct {
	Header BlockHeader
	Trans  *merkle.Tree[BlockTx]
}

// NewBlock constructs a block for the parent with the commitment root set
// for the transactions. The consensus proof fields are left for the engine.
func NewBlock(parent BlockHeader, parentHash string, beneficiary AccountID, difficulty uint16, timeStamp uint64, trans []BlockTx) (Block, error) {
	tree, err := merkle.NewTree(trans)
	if err != nil {
		return Block{}, err
	}

	// A block must always move time forward from its parent.
	if timeStamp <= parent.TimeStamp {
		timeStamp = parent.TimeStamp + 1
	}

	nb := Block{
		Header: BlockHeader{
			Number:      parent.Number + 1,
			ParentHash:  parentHash,
			TimeStamp:   timeStamp,
			Beneficiary: beneficiary,
			Difficulty:  difficulty,
			TransRoot:   tree.RootHex(),
		},
		Trans: tree,
	}

	return nb, nil
}

// GenesisBlock returns the block every chain descends from.
func GenesisBlock(timeStamp uint64) Block {
	tree, _ := merkle.NewTree[BlockTx](nil)

	return Block{
		Header: BlockHeader{
			ParentHash: signature.ZeroHash,
			TimeStamp:  timeStamp,
			TransRoot:  tree.RootHex(),
		},
		Trans: tree,
	}
}

// Hash returns the unique hash for the Block. This is the block's reference.
func (b Block) Hash() string {
	return b.Header.Hash()
}

// Hash returns the unique hash for the header.
func (h BlockHeader) Hash() string {
	if h.Number == 0 {
		return signature.ZeroHash
	}

	// Only the header is hashed so a chain can be verified with headers alone.
	// The transactions are committed to through the merkle root.
	return signature.Hash(h)
}

// Values returns the transactions of the block in order.
func (b Block) Values() []BlockTx {
	if b.Trans == nil {
		return nil
	}
	return b.Trans.Values()
}

// ValidateLinkage checks the block follows its parent.
func (b Block) ValidateLinkage(parent BlockHeader) error {
	if b.Header.ParentHash != parent.Hash() {
		return fmt.Errorf("%w: parent hash doesn't match, got %s, exp %s", ErrBadLinkage, b.Header.ParentHash, parent.Hash())
	}

	if b.Header.Number != parent.Number+1 {
		return fmt.Errorf("%w: this block is not the next number, got %d, exp %d", ErrBadLinkage, b.Header.Number, parent.Number+1)
	}

	if b.Header.TimeStamp <= parent.TimeStamp {
		return fmt.Errorf("%w: block timestamp %d is not after parent %d", ErrBadLinkage, b.Header.TimeStamp, parent.TimeStamp)
	}

	return nil
}

// ValidateCommitment checks the transaction root in the header matches the
// transactions and the transactions fit in the block budget.
func (b Block) ValidateCommitment(transPerBlock uint16, maxBytes uint64) error {
	if b.Trans == nil {
		return fmt.Errorf("%w: no transaction tree", ErrBadCommitmentRoot)
	}

	if b.Header.TransRoot != b.Trans.RootHex() {
		return fmt.Errorf("%w: got %s, exp %s", ErrBadCommitmentRoot, b.Trans.RootHex(), b.Header.TransRoot)
	}

	if transPerBlock > 0 && b.Trans.Len() > int(transPerBlock) {
		return fmt.Errorf("%w: %d transactions, max %d", ErrBlockTooLarge, b.Trans.Len(), transPerBlock)
	}

	if maxBytes > 0 {
		var size uint64
		for _, tx := range b.Trans.Values() {
			size += uint64(tx.Size())
		}
		if size > maxBytes {
			return fmt.Errorf("%w: %d bytes, max %d", ErrBlockTooLarge, size, maxBytes)
		}
	}

	return nil
}

// =============================================================================

// BlockData represents what can be serialized to disk and over the network.
type BlockData struct {
	Hash   string      `json:"hash"`
	Header BlockHeader `json:"header"`
	Trans  []BlockTx   `json:"trans"`
}

// NewBlockData constructs block data from a block.
func NewBlockData(block Block) BlockData {
	blockData := BlockData{
		Hash:   block.Hash(),
		Header: block.Header,
		Trans:  block.Values(),
	}

	return blockData
}

// ToBlock converts a storage block into a database block.
func ToBlock(blockData BlockData) (Block, error) {
	tree, err := merkle.NewTree(blockData.Trans)
	if err != nil {
		return Block{}, err
	}

	block := Block{
		Header: blockData.Header,
		Trans:  tree,
	}

	return block, nil
}

// MarshalJSON encodes the block in its block data form.
func (b Block) MarshalJSON() ([]byte, error) {
	return json.Marshal(NewBlockData(b))
}

// UnmarshalJSON decodes a block from its block data form.
func (b *Block) UnmarshalJSON(data []byte) error {
	var blockData BlockData
	if err := json.Unmarshal(data, &blockData); err != nil {
		return err
	}

	block, err := ToBlock(blockData)
	if err != nil {
		return err
	}

	*b = block
	return nil
}
