package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/aleksaelezovic/quadra/pkg/store"
)

func newTestStorage(t *testing.T) *BadgerStorage {
	t.Helper()
	s, err := NewInMemoryStorage()
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTransactionGetSetDelete(t *testing.T) {
	s := newTestStorage(t)

	txn, err := s.Begin(true)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := txn.Set(store.TableMeta, []byte("k"), []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	ro, _ := s.Begin(false)
	defer ro.Rollback()
	v, err := ro.Get(store.TableMeta, []byte("k"))
	if err != nil || string(v) != "v" {
		t.Fatalf("get = %q, %v", v, err)
	}
	if _, err := ro.Get(store.TableSPOG, []byte("k")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound from another table, got %v", err)
	}
	if err := ro.Set(store.TableMeta, []byte("x"), nil); !errors.Is(err, store.ErrTransactionRO) {
		t.Errorf("expected ErrTransactionRO, got %v", err)
	}

	txn, _ = s.Begin(true)
	if err := txn.Delete(store.TableMeta, []byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// The older read transaction still sees the key.
	if _, err := ro.Get(store.TableMeta, []byte("k")); err != nil {
		t.Errorf("snapshot lost key: %v", err)
	}
	fresh, _ := s.Begin(false)
	defer fresh.Rollback()
	if _, err := fresh.Get(store.TableMeta, []byte("k")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected key deleted, got %v", err)
	}
	if fresh.ReadVersion() <= ro.ReadVersion() {
		t.Errorf("read version did not advance: %d <= %d", fresh.ReadVersion(), ro.ReadVersion())
	}
}

func TestScanPrefixAndSeek(t *testing.T) {
	s := newTestStorage(t)

	txn, _ := s.Begin(true)
	for _, k := range []string{"a1", "a2", "a3", "b1", "b2", "c1"} {
		if err := txn.Set(store.TableSPOG, []byte(k), nil); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	// Same key in a neighbouring table must not leak into the scan.
	if err := txn.Set(store.TablePOSG, []byte("a9"), nil); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	ro, _ := s.Begin(false)
	defer ro.Rollback()

	collect := func(it store.Iterator) []string {
		var keys []string
		for it.Next() {
			keys = append(keys, string(it.Key()))
		}
		return keys
	}

	it, _ := ro.Scan(store.TableSPOG, []byte("a"))
	got := collect(it)
	it.Close()
	if want := []string{"a1", "a2", "a3"}; !equalStrings(got, want) {
		t.Errorf("prefix scan = %v, want %v", got, want)
	}

	it, _ = ro.Scan(store.TableSPOG, nil)
	var skipped []string
	for it.Next() {
		k := append([]byte(nil), it.Key()...)
		skipped = append(skipped, string(k))
		// Jump to the next first letter.
		it.Seek([]byte{k[0] + 1})
	}
	it.Close()
	if want := []string{"a1", "b1", "c1"}; !equalStrings(skipped, want) {
		t.Errorf("skip scan = %v, want %v", skipped, want)
	}
}

func TestBatchAndSequence(t *testing.T) {
	s := newTestStorage(t)

	b := s.NewBatch()
	for i := byte(0); i < 100; i++ {
		if err := b.Set(store.TableGSPO, []byte{i}, nil); err != nil {
			t.Fatalf("batch set: %v", err)
		}
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	ro, _ := s.Begin(false)
	it, _ := ro.Scan(store.TableGSPO, nil)
	n := 0
	for it.Next() {
		n++
	}
	it.Close()
	ro.Rollback()
	if n != 100 {
		t.Errorf("expected 100 keys, got %d", n)
	}

	seq, err := s.Sequence(store.PrefixKey(store.TableMeta, []byte("seq")), 10)
	if err != nil {
		t.Fatalf("sequence: %v", err)
	}
	prev := uint64(0)
	for i := 0; i < 25; i++ {
		v, err := seq.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if i > 0 && v <= prev {
			t.Fatalf("sequence not increasing: %d after %d", v, prev)
		}
		prev = v
	}
	if err := seq.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestDropTablesBackupRestore(t *testing.T) {
	s := newTestStorage(t)

	txn, _ := s.Begin(true)
	_ = txn.Set(store.TableID2Term, []byte("1"), []byte("term"))
	_ = txn.Set(store.TableSPOG, []byte("q"), nil)
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var buf bytes.Buffer
	if _, err := s.Backup(&buf); err != nil {
		t.Fatalf("backup: %v", err)
	}

	if err := s.DropTables(store.TableSPOG); err != nil {
		t.Fatalf("drop: %v", err)
	}
	ro, _ := s.Begin(false)
	if _, err := ro.Get(store.TableSPOG, []byte("q")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected dropped key, got %v", err)
	}
	if _, err := ro.Get(store.TableID2Term, []byte("1")); err != nil {
		t.Errorf("drop removed another table: %v", err)
	}
	ro.Rollback()

	other := newTestStorage(t)
	if err := other.Restore(&buf); err != nil {
		t.Fatalf("restore: %v", err)
	}
	ro, _ = other.Begin(false)
	defer ro.Rollback()
	if _, err := ro.Get(store.TableSPOG, []byte("q")); err != nil {
		t.Errorf("restored store lacks key: %v", err)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTransactionTooLarge(t *testing.T) {
	s, err := Open(Options{InMemory: true, MemTableSize: 1 << 20})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	txn, _ := s.Begin(true)
	defer txn.Rollback()
	key := make([]byte, 8)
	for i := 0; i < 1<<16; i++ {
		binary.BigEndian.PutUint64(key, uint64(i))
		err = txn.Set(store.TableSPOG, key, nil)
		if err != nil {
			break
		}
	}
	if !errors.Is(err, store.ErrTxnTooLarge) {
		t.Fatalf("expected ErrTxnTooLarge, got %v", err)
	}
}
