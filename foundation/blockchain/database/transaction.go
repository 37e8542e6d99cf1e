package database

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ardanlabs/forkchain/foundation/blockchain/signature"
)

// Tx is the transactional information between two parties.
type Tx struct {
	ChainID uint16    `json:"chain_id" validate:"required"` // Ethereum: The chain id that is listed in the genesis file.
	Nonce   uint64    `json:"nonce"`                        // Ethereum: Unique id for the transaction supplied by the user.
	FromID  AccountID `json:"from" validate:"required"`     // Ethereum: Account sending the transaction. Will be checked against signature.
	ToID    AccountID `json:"to" validate:"required"`       // Ethereum: Account receiving the benefit of the transaction.
	Value   uint64    `json:"value"`                        // Ethereum: Monetary value received from this transaction.
	Fee     uint64    `json:"fee"`                          // Ethereum: Fee offered by the sender to the beneficiary of the block.
	Data    []byte    `json:"data"`                         // Ethereum: Extra data related to the transaction.
}

// NewTx constructs a new transaction.
func NewTx(chainID uint16, nonce uint64, fromID AccountID, toID AccountID, value uint64, fee uint64, data []byte) (Tx, error) {
	if !fromID.IsAccountID() {
		return Tx{}, fmt.Errorf("%w: from account is not properly formatted", ErrMalformed)
	}
	if !toID.IsAccountID() {
		return Tx{}, fmt.Errorf("%w: to account is not properly formatted", ErrMalformed)
	}

	tx := Tx{
		ChainID: chainID,
		Nonce:   nonce,
		FromID:  fromID,
		ToID:    toID,
		Value:   value,
		Fee:     fee,
		Data:    data,
	}

	return tx, nil
}

// Sign uses the specified private key to sign the transaction.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (SignedTx, error) {

	// Validate the to account address is a valid address.
	if !tx.ToID.IsAccountID() {
		return SignedTx{}, fmt.Errorf("%w: to account is not properly formatted", ErrMalformed)
	}

	sig, err := signature.Sign(tx, privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	signedTx := SignedTx{
		Tx:  tx,
		Sig: sig,
	}

	return signedTx, nil
}

// =============================================================================

// SignedTx is a signed version of the transaction. This is how clients like
// a wallet provide transactions for inclusion into the blockchain.
type SignedTx struct {
	Tx
	Sig string `json:"sig" validate:"required"` // Hex encoded [R|S|V] signature.
}

// Validate verifies the transaction has a proper signature that conforms to our
// standards, the signature was produced by the from account and the accounts
// are properly formatted.
func (tx SignedTx) Validate(chainID uint16) error {
	if tx.ChainID != chainID {
		return fmt.Errorf("%w: got %d, exp %d", ErrWrongChain, tx.ChainID, chainID)
	}

	if !tx.FromID.IsAccountID() {
		return fmt.Errorf("%w: invalid from account", ErrMalformed)
	}

	if !tx.ToID.IsAccountID() {
		return fmt.Errorf("%w: invalid to account", ErrMalformed)
	}

	if tx.FromID.Equal(tx.ToID) {
		return fmt.Errorf("%w: sending money to yourself", ErrMalformed)
	}

	address, err := signature.Recover(tx.Tx, tx.Sig)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	if !tx.FromID.Equal(AccountID(address)) {
		return fmt.Errorf("%w: signed by %s, not the from account", ErrInvalidSignature, address)
	}

	return nil
}

// ID returns the transaction id. Two signed transactions with the same id
// are the same transaction.
func (tx SignedTx) ID() string {
	return signature.Hash(tx)
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	return fmt.Sprintf("%s:%d", tx.FromID, tx.Nonce)
}

// =============================================================================

// BlockTx represents the transaction as it's recorded inside a block. This
// includes the time the transaction was first received by a node.
type BlockTx struct {
	SignedTx
	TimeStamp uint64 `json:"timestamp"` // Milliseconds since epoch the transaction was received.
}

// NewBlockTx constructs a new block transaction.
func NewBlockTx(signedTx SignedTx) BlockTx {
	return BlockTx{
		SignedTx:  signedTx,
		TimeStamp: uint64(time.Now().UTC().UnixMilli()),
	}
}

// Hash implements the merkle Hashable interface for providing a hash
// of a block transaction.
func (tx BlockTx) Hash() ([]byte, error) {
	str := signature.Hash(tx)
	return hex.DecodeString(str[2:])
}

// Equals implements the merkle Hashable interface for providing an equality
// check between two block transactions.
func (tx BlockTx) Equals(otherTx BlockTx) bool {
	return tx.ID() == otherTx.ID()
}

// Size returns the encoded size of the signed transaction in bytes.
func (tx BlockTx) Size() int {
	data, err := json.Marshal(tx.SignedTx)
	if err != nil {
		return 1
	}
	return len(data)
}
