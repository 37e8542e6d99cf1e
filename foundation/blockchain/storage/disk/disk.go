// Package disk implements the storage contract on top of badger. Each batch
// is a single read-write transaction committed with synchronous writes.
package disk

import (
	"bytes"
	"errors"

	"github.com/ardanlabs/forkchain/foundation/blockchain/storage"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// DefaultMaxValueSize is the largest value accepted when no limit is set.
const DefaultMaxValueSize = 1 << 20

// Option configures the disk store.
type Option func(d *Disk)

// WithMaxValueSize sets the largest value a batch can write.
func WithMaxValueSize(size int) Option {
	return func(d *Disk) {
		d.maxValueSize = size
	}
}

// WithFault installs a function that can fail a batch part way through.
func WithFault(fn storage.FaultFunc) Option {
	return func(d *Disk) {
		d.fault = fn
	}
}

// WithInMemory runs badger without touching the file system.
func WithInMemory() Option {
	return func(d *Disk) {
		d.inMemory = true
	}
}

// =============================================================================

// Disk represents the badger implementation of the storage.KV interface.
type Disk struct {
	db           *badger.DB
	maxValueSize int
	fault        storage.FaultFunc
	inMemory     bool
}

// Open opens or creates the database at the specified path.
func Open(path string, opts ...Option) (*Disk, error) {
	d := Disk{
		maxValueSize: DefaultMaxValueSize,
	}

	for _, opt := range opts {
		opt(&d)
	}

	bopts := badger.DefaultOptions(path)
	bopts.Compression = options.Snappy
	bopts.SyncWrites = true
	bopts.Logger = nil

	if d.inMemory {
		bopts = bopts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, storage.NewError(storage.IOFailure, "open", err)
	}
	d.db = db

	return &d, nil
}

// Get returns a copy of the value for the key.
func (d *Disk) Get(key []byte) ([]byte, error) {
	var value []byte

	err := d.db.View(func(txn *badger.Txn) error {
		var err error
		value, err = get(txn, key)
		return err
	})

	return value, err
}

// ScanRange returns a cursor over the keys in [start, end). The cursor holds
// a read transaction open until it is closed.
func (d *Disk) ScanRange(start []byte, end []byte) storage.Cursor {
	txn := d.db.NewTransaction(false)
	return newCursor(txn, start, end, true)
}

// Snapshot returns a read transaction as the point in time view.
func (d *Disk) Snapshot() (storage.Snapshot, error) {
	if d.db.IsClosed() {
		return nil, storage.ErrClosed
	}

	return &snapshot{txn: d.db.NewTransaction(false)}, nil
}

// BatchWrite applies every write and delete in one badger transaction.
func (d *Disk) BatchWrite(writes []storage.Write, deletes [][]byte) error {
	if d.db.IsClosed() {
		return storage.ErrClosed
	}

	for _, w := range writes {
		if len(w.Value) > d.maxValueSize {
			return storage.NewError(storage.IOFailure, "batch", storage.ErrValueTooLarge)
		}
	}

	txn := d.db.NewTransaction(true)
	defer txn.Discard()

	for _, key := range deletes {
		if err := txn.Delete(key); err != nil {
			return storage.NewError(storage.IOFailure, "batch", err)
		}
	}

	for i, w := range writes {
		if d.fault != nil {
			if err := d.fault(i, w.Key); err != nil {
				return storage.NewError(storage.IOFailure, "batch", err)
			}
		}

		if err := txn.Set(w.Key, w.Value); err != nil {
			return storage.NewError(storage.IOFailure, "batch", err)
		}
	}

	if err := txn.Commit(); err != nil {
		return storage.NewError(storage.IOFailure, "commit", err)
	}

	return nil
}

// Close closes the database.
func (d *Disk) Close() error {
	if d.db.IsClosed() {
		return nil
	}

	if err := d.db.Close(); err != nil {
		return storage.NewError(storage.IOFailure, "close", err)
	}

	return nil
}

// =============================================================================

// get reads a copy of the value for the key within the transaction.
func get(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, storage.NewError(storage.IOFailure, "get", err)
	}

	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, storage.NewError(storage.Corruption, "get", err)
	}

	return value, nil
}

// snapshot provides the storage.Snapshot behavior over a read transaction.
type snapshot struct {
	txn *badger.Txn
}

func (s *snapshot) Get(key []byte) ([]byte, error) {
	return get(s.txn, key)
}

func (s *snapshot) ScanRange(start []byte, end []byte) storage.Cursor {
	return newCursor(s.txn, start, end, false)
}

func (s *snapshot) Release() {
	s.txn.Discard()
}

// =============================================================================

// cursor walks a badger iterator between the start and end keys.
type cursor struct {
	txn     *badger.Txn
	it      *badger.Iterator
	start   []byte
	end     []byte
	ownsTxn bool
	started bool
	done    bool
	key     []byte
	value   []byte
	err     error
}

func newCursor(txn *badger.Txn, start []byte, end []byte, ownsTxn bool) *cursor {
	return &cursor{
		txn:     txn,
		it:      txn.NewIterator(badger.DefaultIteratorOptions),
		start:   start,
		end:     end,
		ownsTxn: ownsTxn,
	}
}

func (c *cursor) Next() bool {
	if c.done || c.err != nil {
		return false
	}

	switch {
	case !c.started:
		c.it.Seek(c.start)
		c.started = true
	default:
		c.it.Next()
	}

	if !c.it.Valid() {
		c.done = true
		return false
	}

	item := c.it.Item()
	key := item.KeyCopy(nil)
	if c.end != nil && bytes.Compare(key, c.end) >= 0 {
		c.done = true
		return false
	}

	value, err := item.ValueCopy(nil)
	if err != nil {
		c.err = storage.NewError(storage.Corruption, "scan", err)
		return false
	}

	c.key = key
	c.value = value

	return true
}

func (c *cursor) Key() []byte {
	return c.key
}

func (c *cursor) Value() []byte {
	return c.value
}

func (c *cursor) Err() error {
	return c.err
}

func (c *cursor) Reset() {
	c.started = false
	c.done = false
	c.err = nil
	c.key = nil
	c.value = nil
}

func (c *cursor) Close() {
	c.it.Close()
	if c.ownsTxn {
		c.txn.Discard()
	}
}
