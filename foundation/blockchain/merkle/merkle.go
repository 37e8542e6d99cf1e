// Package merkle computes the commitment root a block header carries for its
// transactions, along with inclusion proofs for individual transactions.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"hash"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// zeroRoot is the root of a tree with no values.
var zeroRoot = make([]byte, sha256.Size)

// ErrNotFound is returned when a proof is requested for a value that is not
// part of the tree.
var ErrNotFound = errors.New("value not found in tree")

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree.
type Hashable[T any] interface {
	Hash() ([]byte, error)
	Equals(other T) bool
}

// =============================================================================

// Tree represents a merkle tree over an ordered set of values. Level zero
// holds the leaf hashes and the last level holds the root. Any level with an
// odd number of hashes has its last hash duplicated.
type Tree[T Hashable[T]] struct {
	values       []T
	levels       [][][]byte
	hashStrategy func() hash.Hash
}

// WithHashStrategy is used to change the default hash strategy of using sha256
// when constructing a new tree.
func WithHashStrategy[T Hashable[T]](hashStrategy func() hash.Hash) func(t *Tree[T]) {
	return func(t *Tree[T]) {
		t.hashStrategy = hashStrategy
	}
}

// NewTree constructs a merkle tree for the values. The order of the values is
// part of the commitment.
func NewTree[T Hashable[T]](values []T, options ...func(t *Tree[T])) (*Tree[T], error) {
	t := Tree[T]{
		hashStrategy: sha256.New,
	}

	for _, option := range options {
		option(&t)
	}

	if err := t.generate(values); err != nil {
		return nil, err
	}

	return &t, nil
}

// Root returns the root hash of the tree.
func (t *Tree[T]) Root() []byte {
	if len(t.levels) == 0 {
		return zeroRoot
	}

	return t.levels[len(t.levels)-1][0]
}

// RootHex returns the root hash of the tree hex encoded.
func (t *Tree[T]) RootHex() string {
	return hexutil.Encode(t.Root())
}

// Values returns a copy of the values stored in the tree, in order.
func (t *Tree[T]) Values() []T {
	values := make([]T, len(t.values))
	copy(values, t.values)
	return values
}

// Len returns the number of values in the tree.
func (t *Tree[T]) Len() int {
	return len(t.values)
}

// Proof returns the sibling hashes from the leaf for the data up to the root
// and the order to concatenate each of them. An order of 0 means the sibling
// comes first, 1 means it comes second.
func (t *Tree[T]) Proof(data T) ([][]byte, []int64, error) {
	idx := -1
	for i, v := range t.values {
		if v.Equals(data) {
			idx = i
			break
		}
	}

	if idx == -1 {
		return nil, nil, ErrNotFound
	}

	var proof [][]byte
	var order []int64

	for _, level := range t.levels[:len(t.levels)-1] {
		switch {
		case idx%2 == 0:
			proof = append(proof, sibling(level, idx+1))
			order = append(order, 1)
		default:
			proof = append(proof, level[idx-1])
			order = append(order, 0)
		}
		idx /= 2
	}

	return proof, order, nil
}

// VerifyProof reports whether the leaf hash combined with the proof produces
// the specified root.
func (t *Tree[T]) VerifyProof(leaf []byte, proof [][]byte, order []int64) bool {
	if len(proof) != len(order) {
		return false
	}

	current := leaf
	for i, p := range proof {
		var err error
		switch order[i] {
		case 0:
			current, err = t.combine(p, current)
		default:
			current, err = t.combine(current, p)
		}
		if err != nil {
			return false
		}
	}

	return bytes.Equal(current, t.Root())
}

// =============================================================================

// generate hashes the values and builds every level up to the root.
func (t *Tree[T]) generate(values []T) error {
	t.values = values
	t.levels = nil

	if len(values) == 0 {
		return nil
	}

	leafs := make([][]byte, len(values))
	for i, v := range values {
		h, err := v.Hash()
		if err != nil {
			return err
		}
		leafs[i] = h
	}

	level := leafs
	for {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		t.levels = append(t.levels, level)

		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			h, err := t.combine(level[i], level[i+1])
			if err != nil {
				return err
			}
			next = append(next, h)
		}

		if len(next) == 1 {
			t.levels = append(t.levels, next)
			return nil
		}
		level = next
	}
}

// combine hashes the concatenation of the left and right hashes.
func (t *Tree[T]) combine(left []byte, right []byte) ([]byte, error) {
	h := t.hashStrategy()

	if _, err := h.Write(left); err != nil {
		return nil, err
	}
	if _, err := h.Write(right); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

// sibling returns the hash at the index or the last hash of the level.
func sibling(level [][]byte, idx int) []byte {
	if idx >= len(level) {
		return level[len(level)-1]
	}
	return level[idx]
}
