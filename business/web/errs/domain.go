package errs

import (
	"errors"
	"net/http"

	"github.com/ardanlabs/forkchain/foundation/blockchain/database"
	"github.com/ardanlabs/forkchain/foundation/blockchain/mempool"
	"github.com/ardanlabs/forkchain/foundation/blockchain/state"
)

// FromDomain wraps an error returned by the blockchain packages with the
// status code the client should see. Errors it does not recognize are
// returned untouched and reported as internal errors.
func FromDomain(err error) error {
	switch {
	case err == nil:
		return nil

	case errors.Is(err, state.ErrNotFound):
		return NewTrusted(err, http.StatusNotFound)

	case errors.Is(err, state.ErrAlreadyKnown):
		return NewTrusted(err, http.StatusConflict)

	case errors.Is(err, mempool.ErrMempoolFull):
		return NewTrusted(err, http.StatusTooManyRequests)

	case errors.Is(err, state.ErrKnownInvalid),
		errors.Is(err, state.ErrInvalidParent),
		database.IsValidation(err):
		return NewTrusted(err, http.StatusBadRequest)
	}

	return err
}
