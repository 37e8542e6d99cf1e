package database

import "errors"

// Set of validation errors. A transaction or block failing with one of these
// is discarded. These conditions are deterministic and never retried.
var (
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrStaleNonce          = errors.New("stale nonce")
	ErrNonceGap            = errors.New("nonce gap")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWrongChain          = errors.New("wrong chain id")
	ErrMalformed           = errors.New("malformed")
	ErrBadLinkage          = errors.New("bad linkage")
	ErrBadProof            = errors.New("bad consensus proof")
	ErrBadCommitmentRoot   = errors.New("bad commitment root")
	ErrBlockTooLarge       = errors.New("block exceeds size budget")
	ErrBalanceOverflow     = errors.New("balance overflow")
)

var validationErrors = []error{
	ErrInvalidSignature,
	ErrStaleNonce,
	ErrNonceGap,
	ErrInsufficientBalance,
	ErrWrongChain,
	ErrMalformed,
	ErrBadLinkage,
	ErrBadProof,
	ErrBadCommitmentRoot,
	ErrBlockTooLarge,
	ErrBalanceOverflow,
}

// IsValidation reports whether the error is one of the validation errors.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
