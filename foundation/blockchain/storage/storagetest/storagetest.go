// Package storagetest provides a conformance suite every storage backend is
// expected to pass.
package storagetest

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/ardanlabs/forkchain/foundation/blockchain/storage"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// OpenFunc opens a fresh backend for a test. The fault function must be
// installed in the backend so batches can be failed part way through.
type OpenFunc func(t *testing.T, fault storage.FaultFunc) storage.KV

// Run executes the conformance suite against the backend.
func Run(t *testing.T, open OpenFunc) {
	t.Run("crud", func(t *testing.T) { crud(t, open) })
	t.Run("scan", func(t *testing.T) { scan(t, open) })
	t.Run("snapshot", func(t *testing.T) { snapshot(t, open) })
	t.Run("failedbatch", func(t *testing.T) { failedBatch(t, open) })
	t.Run("valuetoolarge", func(t *testing.T) { valueTooLarge(t, open) })
}

// =============================================================================

func crud(t *testing.T, open OpenFunc) {
	kv := open(t, nil)
	defer kv.Close()

	t.Log("Given the need to read and write keys.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen writing and deleting keys in batches.", testID)
		{
			if _, err := kv.Get([]byte("a")); !errors.Is(err, storage.ErrNotFound) {
				t.Fatalf("\t%s\tTest %d:\tShould get not found for a missing key: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get not found for a missing key.", success, testID)

			writes := []storage.Write{
				{Key: []byte("a"), Value: []byte("1")},
				{Key: []byte("b"), Value: []byte("2")},
			}
			if err := kv.BatchWrite(writes, nil); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to write a batch: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to write a batch.", success, testID)

			v, err := kv.Get([]byte("b"))
			if err != nil || string(v) != "2" {
				t.Fatalf("\t%s\tTest %d:\tShould be able to read back the value: %q %v", failed, testID, v, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to read back the value.", success, testID)

			if err := kv.BatchWrite([]storage.Write{{Key: []byte("c"), Value: []byte("3")}}, [][]byte{[]byte("a")}); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to write and delete in a batch: %v", failed, testID, err)
			}

			if _, err := kv.Get([]byte("a")); !errors.Is(err, storage.ErrNotFound) {
				t.Fatalf("\t%s\tTest %d:\tShould not find a deleted key: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould not find a deleted key.", success, testID)
		}
	}
}

func scan(t *testing.T, open OpenFunc) {
	kv := open(t, nil)
	defer kv.Close()

	var writes []storage.Write
	for i := 0; i < 10; i++ {
		writes = append(writes, storage.Write{Key: fmt.Appendf(nil, "k/%02d", i), Value: fmt.Appendf(nil, "%d", i)})
	}
	writes = append(writes, storage.Write{Key: []byte("z/00"), Value: []byte("z")})

	if err := kv.BatchWrite(writes, nil); err != nil {
		t.Fatalf("Should be able to write a batch: %v", err)
	}

	t.Log("Given the need to scan a range of keys.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen scanning a bounded range.", testID)
		{
			c := kv.ScanRange([]byte("k/03"), []byte("k/07"))
			defer c.Close()

			got := keys(c)
			exp := []string{"k/03", "k/04", "k/05", "k/06"}
			if fmt.Sprint(got) != fmt.Sprint(exp) {
				t.Logf("\t%s\tTest %d:\tgot: %v", failed, testID, got)
				t.Logf("\t%s\tTest %d:\texp: %v", failed, testID, exp)
				t.Fatalf("\t%s\tTest %d:\tShould get the keys in order.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould get the keys in order.", success, testID)

			c.Reset()
			if again := keys(c); fmt.Sprint(again) != fmt.Sprint(exp) {
				t.Fatalf("\t%s\tTest %d:\tShould be able to restart the cursor: %v", failed, testID, again)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to restart the cursor.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen scanning a prefix.", testID)
		{
			c := kv.ScanRange([]byte("k/"), storage.PrefixEnd([]byte("k/")))
			defer c.Close()

			if got := keys(c); len(got) != 10 {
				t.Fatalf("\t%s\tTest %d:\tShould get every key with the prefix: %v", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould get every key with the prefix.", success, testID)
		}
	}
}

func snapshot(t *testing.T, open OpenFunc) {
	kv := open(t, nil)
	defer kv.Close()

	if err := kv.BatchWrite([]storage.Write{{Key: []byte("a"), Value: []byte("old")}}, nil); err != nil {
		t.Fatalf("Should be able to write a batch: %v", err)
	}

	t.Log("Given the need to read a consistent view of the store.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen writing after a snapshot is taken.", testID)
		{
			snap, err := kv.Snapshot()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to take a snapshot: %v", failed, testID, err)
			}
			defer snap.Release()

			if err := kv.BatchWrite([]storage.Write{{Key: []byte("a"), Value: []byte("new")}, {Key: []byte("b"), Value: []byte("new")}}, nil); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to write a batch: %v", failed, testID, err)
			}

			v, err := snap.Get([]byte("a"))
			if err != nil || string(v) != "old" {
				t.Fatalf("\t%s\tTest %d:\tShould read the old value from the snapshot: %q %v", failed, testID, v, err)
			}
			t.Logf("\t%s\tTest %d:\tShould read the old value from the snapshot.", success, testID)

			if _, err := snap.Get([]byte("b")); !errors.Is(err, storage.ErrNotFound) {
				t.Fatalf("\t%s\tTest %d:\tShould not see keys written after the snapshot: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould not see keys written after the snapshot.", success, testID)

			v, err = kv.Get([]byte("a"))
			if err != nil || string(v) != "new" {
				t.Fatalf("\t%s\tTest %d:\tShould read the new value from the store: %q %v", failed, testID, v, err)
			}
			t.Logf("\t%s\tTest %d:\tShould read the new value from the store.", success, testID)
		}
	}
}

func failedBatch(t *testing.T, open OpenFunc) {
	errFault := errors.New("disk on fire")
	armed := false

	fault := func(idx int, key []byte) error {
		if armed && idx == 2 {
			return errFault
		}
		return nil
	}

	kv := open(t, fault)
	defer kv.Close()

	initial := []storage.Write{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("3")},
	}
	if err := kv.BatchWrite(initial, nil); err != nil {
		t.Fatalf("Should be able to write a batch: %v", err)
	}

	before := dump(t, kv)

	t.Log("Given the need for batches to be all or nothing.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a batch fails part way through.", testID)
		{
			armed = true

			writes := []storage.Write{
				{Key: []byte("a"), Value: []byte("changed")},
				{Key: []byte("d"), Value: []byte("4")},
				{Key: []byte("e"), Value: []byte("5")},
			}
			err := kv.BatchWrite(writes, [][]byte{[]byte("b")})
			if !errors.Is(err, errFault) {
				t.Fatalf("\t%s\tTest %d:\tShould get back the failure: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get back the failure.", success, testID)

			if !storage.IsKind(err, storage.IOFailure) {
				t.Fatalf("\t%s\tTest %d:\tShould classify the failure as io: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould classify the failure as io.", success, testID)

			after := dump(t, kv)
			if !bytes.Equal(before, after) {
				t.Logf("\t%s\tTest %d:\tgot: %s", failed, testID, after)
				t.Logf("\t%s\tTest %d:\texp: %s", failed, testID, before)
				t.Fatalf("\t%s\tTest %d:\tShould leave the store byte identical.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould leave the store byte identical.", success, testID)
		}
	}
}

func valueTooLarge(t *testing.T, open OpenFunc) {
	kv := open(t, nil)
	defer kv.Close()

	t.Log("Given the need to bound the size of values.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a batch has an oversized value.", testID)
		{
			writes := []storage.Write{
				{Key: []byte("a"), Value: []byte("1")},
				{Key: []byte("b"), Value: make([]byte, 2<<20)},
			}

			err := kv.BatchWrite(writes, nil)
			if !errors.Is(err, storage.ErrValueTooLarge) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the batch: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the batch.", success, testID)

			if _, err := kv.Get([]byte("a")); !errors.Is(err, storage.ErrNotFound) {
				t.Fatalf("\t%s\tTest %d:\tShould not write any of the batch: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould not write any of the batch.", success, testID)
		}
	}
}

// =============================================================================

// keys drains the cursor and returns the keys it produced.
func keys(c storage.Cursor) []string {
	var ks []string
	for c.Next() {
		ks = append(ks, string(c.Key()))
	}
	return ks
}

// dump returns every key and value in the store as one byte slice.
func dump(t *testing.T, kv storage.KV) []byte {
	c := kv.ScanRange(nil, nil)
	defer c.Close()

	var buf bytes.Buffer
	for c.Next() {
		buf.Write(c.Key())
		buf.WriteByte('=')
		buf.Write(c.Value())
		buf.WriteByte('\n')
	}

	if err := c.Err(); err != nil {
		t.Fatalf("Should be able to scan the store: %v", err)
	}

	return buf.Bytes()
}
