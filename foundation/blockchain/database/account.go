package database

import (
	"crypto/ecdsa"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Account represents the ledger state of an individual account.
type Account struct {
	AccountID AccountID `json:"account"`
	Nonce     uint64    `json:"nonce"` // The next nonce expected from this account.
	Balance   uint64    `json:"balance"`
}

// =============================================================================

// AccountID represents an account id that is used to sign transactions and is
// associated with transactions on the blockchain. It is the checksum encoded
// 20 byte address of the signing public key.
type AccountID string

// ToAccountID converts a hex-encoded string to an account and validates the
// hex-encoded string is formatted correctly.
func ToAccountID(hex string) (AccountID, error) {
	a := AccountID(hex)
	if !a.IsAccountID() {
		return "", errors.New("invalid account format")
	}

	return AccountID(common.HexToAddress(hex).Hex()), nil
}

// PublicKeyToAccountID converts the public key to an account value.
func PublicKeyToAccountID(pk ecdsa.PublicKey) AccountID {
	return AccountID(crypto.PubkeyToAddress(pk).Hex())
}

// IsAccountID verifies whether the underlying data represents a valid
// hex-encoded account.
func (a AccountID) IsAccountID() bool {
	s := string(a)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}

	return common.IsHexAddress(s)
}

// Equal compares two account ids ignoring the checksum casing.
func (a AccountID) Equal(other AccountID) bool {
	return strings.EqualFold(string(a), string(other))
}

// Checksum returns the account id in its checksum encoded form. This is the
// form used to key account state.
func (a AccountID) Checksum() AccountID {
	return AccountID(common.HexToAddress(string(a)).Hex())
}
