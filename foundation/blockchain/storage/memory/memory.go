// Package memory implements the storage contract in memory. Every batch
// produces a new immutable version of the data that is swapped in once the
// batch has been fully applied, so readers never see a partial batch.
package memory

import (
	"bytes"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ardanlabs/forkchain/foundation/blockchain/storage"
)

// DefaultMaxValueSize is the largest value accepted when no limit is set.
const DefaultMaxValueSize = 1 << 20

// Option configures the memory store.
type Option func(m *Memory)

// WithMaxValueSize sets the largest value a batch can write.
func WithMaxValueSize(size int) Option {
	return func(m *Memory) {
		m.maxValueSize = size
	}
}

// WithFault installs a function that can fail a batch part way through.
func WithFault(fn storage.FaultFunc) Option {
	return func(m *Memory) {
		m.fault = fn
	}
}

// =============================================================================

// version is an immutable view of the data.
type version struct {
	data map[string][]byte
	keys []string
}

// Memory represents the in memory implementation of the storage.KV interface.
type Memory struct {
	mu           sync.Mutex
	current      atomic.Pointer[version]
	closed       atomic.Bool
	maxValueSize int
	fault        storage.FaultFunc
}

// New constructs an empty memory store for use.
func New(options ...Option) *Memory {
	m := Memory{
		maxValueSize: DefaultMaxValueSize,
	}

	for _, option := range options {
		option(&m)
	}

	m.current.Store(&version{data: map[string][]byte{}})

	return &m
}

// Get returns a copy of the value for the key.
func (m *Memory) Get(key []byte) ([]byte, error) {
	if m.closed.Load() {
		return nil, storage.ErrClosed
	}

	return m.current.Load().get(key)
}

// ScanRange returns a cursor over the keys in [start, end).
func (m *Memory) ScanRange(start []byte, end []byte) storage.Cursor {
	return newCursor(m.current.Load(), start, end)
}

// Snapshot returns the current version of the data.
func (m *Memory) Snapshot() (storage.Snapshot, error) {
	if m.closed.Load() {
		return nil, storage.ErrClosed
	}

	return snapshot{v: m.current.Load()}, nil
}

// BatchWrite applies the writes and deletes to a copy of the current version
// and swaps it in only when every change has been applied.
func (m *Memory) BatchWrite(writes []storage.Write, deletes [][]byte) error {
	if m.closed.Load() {
		return storage.ErrClosed
	}

	for _, w := range writes {
		if len(w.Value) > m.maxValueSize {
			return storage.NewError(storage.IOFailure, "batch", storage.ErrValueTooLarge)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.current.Load()

	data := make(map[string][]byte, len(cur.data)+len(writes))
	for k, v := range cur.data {
		data[k] = v
	}

	for _, key := range deletes {
		delete(data, string(key))
	}

	for i, w := range writes {
		if m.fault != nil {
			if err := m.fault(i, w.Key); err != nil {
				return storage.NewError(storage.IOFailure, "batch", err)
			}
		}

		value := make([]byte, len(w.Value))
		copy(value, w.Value)
		data[string(w.Key)] = value
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m.current.Store(&version{data: data, keys: keys})

	return nil
}

// Close marks the store as closed.
func (m *Memory) Close() error {
	m.closed.Store(true)
	return nil
}

// =============================================================================

// get returns a copy of the value for the key in this version.
func (v *version) get(key []byte) ([]byte, error) {
	value, exists := v.data[string(key)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	cpy := make([]byte, len(value))
	copy(cpy, value)

	return cpy, nil
}

// snapshot provides the storage.Snapshot behavior over a version.
type snapshot struct {
	v *version
}

func (s snapshot) Get(key []byte) ([]byte, error) {
	return s.v.get(key)
}

func (s snapshot) ScanRange(start []byte, end []byte) storage.Cursor {
	return newCursor(s.v, start, end)
}

func (s snapshot) Release() {}

// =============================================================================

// cursor walks the sorted keys of a version.
type cursor struct {
	v     *version
	first int
	last  int
	pos   int
}

func newCursor(v *version, start []byte, end []byte) *cursor {
	first := sort.SearchStrings(v.keys, string(start))

	last := len(v.keys)
	if end != nil {
		last = sort.Search(len(v.keys), func(i int) bool {
			return bytes.Compare([]byte(v.keys[i]), end) >= 0
		})
	}

	if last < first {
		last = first
	}

	return &cursor{
		v:     v,
		first: first,
		last:  last,
		pos:   first - 1,
	}
}

func (c *cursor) Next() bool {
	if c.pos+1 >= c.last {
		c.pos = c.last
		return false
	}
	c.pos++
	return true
}

func (c *cursor) Key() []byte {
	return []byte(c.v.keys[c.pos])
}

func (c *cursor) Value() []byte {
	value := c.v.data[c.v.keys[c.pos]]
	cpy := make([]byte, len(value))
	copy(cpy, value)
	return cpy
}

func (c *cursor) Err() error {
	return nil
}

func (c *cursor) Reset() {
	c.pos = c.first - 1
}

func (c *cursor) Close() {}
