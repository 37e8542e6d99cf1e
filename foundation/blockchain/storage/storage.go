// Package storage defines the key/value persistence contract the ledger is
// built on. Backends provide atomic batch writes, ordered range scans and
// point in time snapshots.
package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("key not found")

// ErrValueTooLarge is returned when a batch contains a value over the
// configured size limit. The whole batch is rejected.
var ErrValueTooLarge = errors.New("value too large")

// ErrClosed is returned when the store has been closed.
var ErrClosed = errors.New("store closed")

// Kind classifies a storage failure.
type Kind int

// Set of storage failure kinds.
const (
	IOFailure Kind = iota + 1
	Corruption
)

// String implements the fmt.Stringer interface.
func (k Kind) String() string {
	switch k {
	case IOFailure:
		return "io failure"
	case Corruption:
		return "corruption"
	}
	return "unknown"
}

// Error is returned when the backend fails. The operation that failed had
// no effect on the stored state.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// NewError wraps the error with a storage failure kind.
func NewError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("storage %s: %s: %s", e.Op, e.Kind, e.Err)
}

// Unwrap provides access to the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether the error is a storage error of the specified kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind == kind
}

// =============================================================================

// FaultFunc is called by a backend for each write while a batch is being
// applied. Returning an error aborts the batch. It exists to exercise failure
// paths in tests.
type FaultFunc func(idx int, key []byte) error

// Write is a single key/value pair to be stored in a batch.
type Write struct {
	Key   []byte
	Value []byte
}

// Reader represents the read behavior shared by the store and its snapshots.
type Reader interface {

	// Get returns a copy of the value for the key or ErrNotFound.
	Get(key []byte) ([]byte, error)

	// ScanRange returns a cursor over the keys in [start, end) in ascending
	// order. A nil end scans to the end of the key space.
	ScanRange(start []byte, end []byte) Cursor
}

// KV represents the behavior required of a storage backend.
type KV interface {
	Reader

	// BatchWrite applies every write and delete atomically. Either all of
	// them are durable when it returns nil, or none of them took effect.
	BatchWrite(writes []Write, deletes [][]byte) error

	// Snapshot returns a consistent point in time view of the store that
	// later batches can't change.
	Snapshot() (Snapshot, error)

	// Close releases the resources held by the store.
	Close() error
}

// Snapshot represents a point in time view of the store.
type Snapshot interface {
	Reader

	// Release frees the snapshot. It is safe to call more than once.
	Release()
}

// Cursor iterates over a range of keys. A cursor is lazy, finite and can be
// restarted from the beginning of its range.
type Cursor interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Reset()
	Close()
}

// =============================================================================

// PrefixEnd returns the end key for scanning every key that starts with the
// prefix.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)

	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}

	return nil
}
