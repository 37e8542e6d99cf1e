// Package signature is the crypto capability the ledger depends on. It hashes
// values, signs them with secp256k1 keys and recovers the signing account.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash represents a hash code of zeros. It is the parent reference of
// the genesis block and the commitment root of a block with no transactions.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// recoveryOffset is added to the recovery id of every signature produced by
// this package so a signature from another chain can't be replayed here.
const recoveryOffset = 29

// stampPrefix is mixed into every digest before signing.
var stampPrefix = []byte("\x19Forkchain Signed Message:\n32")

// Set of errors returned when a signature can't be trusted.
var (
	ErrMalformed       = errors.New("signature is malformed")
	ErrRecoveryID      = errors.New("invalid recovery id")
	ErrSignatureValues = errors.New("invalid signature values")
)

// =============================================================================

// Hash returns a unique string for the value. The value is encoded in its
// canonical JSON form before hashing.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	return HashBytes(data)
}

// HashBytes returns the hex encoded sha256 digest of the data.
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// Sign uses the specified private key to sign the value. The 65 byte
// signature is returned hex encoded in the [R|S|V] format.
func Sign(value any, privateKey *ecdsa.PrivateKey) (string, error) {
	digest, err := Digest(value)
	if err != nil {
		return "", err
	}

	sig, err := crypto.Sign(digest, privateKey)
	if err != nil {
		return "", err
	}

	// The signature must be recoverable to the key that produced it.
	publicKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", err
	}
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), digest, sig[:crypto.RecoveryIDOffset]) {
		return "", ErrSignatureValues
	}

	sig[crypto.RecoveryIDOffset] += recoveryOffset

	return hexutil.Encode(sig), nil
}

// Verify checks the signature conforms to our standards. It does not tell
// who signed the value, use Recover for that.
func Verify(sig string) error {
	raw, err := toRaw(sig)
	if err != nil {
		return err
	}

	v := raw[crypto.RecoveryIDOffset]
	if v != 0 && v != 1 {
		return ErrRecoveryID
	}

	r := new(big.Int).SetBytes(raw[:32])
	s := new(big.Int).SetBytes(raw[32:64])
	if !crypto.ValidateSignatureValues(v, r, s, false) {
		return ErrSignatureValues
	}

	return nil
}

// VerifyPublicKey reports whether the signature over the value was produced
// by the private key of the specified uncompressed public key.
func VerifyPublicKey(publicKey []byte, value any, sig string) bool {
	raw, err := toRaw(sig)
	if err != nil {
		return false
	}

	digest, err := Digest(value)
	if err != nil {
		return false
	}

	return crypto.VerifySignature(publicKey, digest, raw[:crypto.RecoveryIDOffset])
}

// Recover extracts the address of the account that signed the value.
//
// If the exact same value that was signed is not provided, a different
// address is returned. There is no way to detect that here since the public
// key is extracted from the value and the signature.
func Recover(value any, sig string) (string, error) {
	if err := Verify(sig); err != nil {
		return "", err
	}

	raw, err := toRaw(sig)
	if err != nil {
		return "", err
	}

	digest, err := Digest(value)
	if err != nil {
		return "", err
	}

	publicKey, err := crypto.SigToPub(digest, raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return crypto.PubkeyToAddress(*publicKey).String(), nil
}

// Digest returns the 32 byte keccak digest that is signed for the value. The
// stamp prefix is hashed together with the value so the signatures produced
// are unique to this chain.
func Digest(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	return crypto.Keccak256(stampPrefix, crypto.Keccak256(data)), nil
}

// =============================================================================

// toRaw decodes the signature and removes the recovery offset so the bytes
// can be handed to the go-ethereum crypto package.
func toRaw(sig string) ([]byte, error) {
	raw, err := hexutil.Decode(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if len(raw) != crypto.SignatureLength {
		return nil, ErrMalformed
	}

	if raw[crypto.RecoveryIDOffset] < recoveryOffset {
		return nil, ErrRecoveryID
	}
	raw[crypto.RecoveryIDOffset] -= recoveryOffset

	return raw, nil
}
