package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aleksaelezovic/quadra/pkg/store"
	badger "github.com/dgraph-io/badger/v4"
)

// Options configures the Badger backend.
type Options struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM. Used by tests and the demo.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// MemTableSize overrides Badger's memtable size in bytes. A write
	// transaction may hold up to 15% of it. Zero keeps the default.
	MemTableSize int64

	// Logger receives Badger's own log output. Nil discards it.
	Logger *slog.Logger
}

// BadgerStorage implements Storage using BadgerDB
type BadgerStorage struct {
	db *badger.DB
}

// Open opens a Badger database with o.
func Open(o Options) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(o.Path)
	if o.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithSyncWrites(o.SyncWrites).WithLogger(newBadgerLogger(o.Logger))
	if o.MemTableSize > 0 {
		opts = opts.WithMemTableSize(o.MemTableSize)
		// Values above the batch limit could never be written.
		if limit := o.MemTableSize * 15 / 100; opts.ValueThreshold > limit {
			opts = opts.WithValueThreshold(limit)
		}
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &BadgerStorage{db: db}, nil
}

// NewInMemoryStorage creates a storage that lives only in memory.
func NewInMemoryStorage() (*BadgerStorage, error) {
	return Open(Options{InMemory: true})
}

// Begin starts a new transaction
func (s *BadgerStorage) Begin(writable bool) (store.Transaction, error) {
	if s.db.IsClosed() {
		return nil, store.ErrClosed
	}
	txn := s.db.NewTransaction(writable)
	return &BadgerTransaction{
		txn:      txn,
		writable: writable,
	}, nil
}

// NewBatch starts a write batch. Badger splits it into as many
// transactions as needed.
func (s *BadgerStorage) NewBatch() store.Batch {
	return &BadgerBatch{wb: s.db.NewWriteBatch()}
}

// Sequence leases ids in blocks of bandwidth. The key is used as is.
func (s *BadgerStorage) Sequence(name []byte, bandwidth uint64) (store.Sequence, error) {
	seq, err := s.db.GetSequence(name, bandwidth)
	if err != nil {
		return nil, err
	}
	return seq, nil
}

// DropTables removes every key of the tables.
func (s *BadgerStorage) DropTables(tables ...store.Table) error {
	prefixes := make([][]byte, len(tables))
	for i, t := range tables {
		prefixes[i] = store.TablePrefix(t)
	}
	return s.db.DropPrefix(prefixes...)
}

// Backup writes a full dump.
func (s *BadgerStorage) Backup(w io.Writer) (uint64, error) {
	return s.db.Backup(w, 0)
}

// Restore loads a dump written by Backup.
func (s *BadgerStorage) Restore(r io.Reader) error {
	return s.db.Load(r, 256)
}

// Close closes the storage
func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

// Sync flushes writes to disk
func (s *BadgerStorage) Sync() error {
	return s.db.Sync()
}

// BadgerTransaction implements Transaction using BadgerDB
type BadgerTransaction struct {
	txn      *badger.Txn
	writable bool
}

// Get retrieves a value by key
func (t *BadgerTransaction) Get(table store.Table, key []byte) ([]byte, error) {
	item, err := t.txn.Get(store.PrefixKey(table, key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

// Set stores a key-value pair
func (t *BadgerTransaction) Set(table store.Table, key, value []byte) error {
	if !t.writable {
		return store.ErrTransactionRO
	}
	return txnErr(t.txn.Set(store.PrefixKey(table, key), value))
}

// Delete removes a key
func (t *BadgerTransaction) Delete(table store.Table, key []byte) error {
	if !t.writable {
		return store.ErrTransactionRO
	}
	return txnErr(t.txn.Delete(store.PrefixKey(table, key)))
}

// Scan iterates over the keys of table that start with prefix
func (t *BadgerTransaction) Scan(table store.Table, prefix []byte) (store.Iterator, error) {
	scanPrefix := store.PrefixKey(table, prefix)

	opts := badger.DefaultIteratorOptions
	opts.Prefix = scanPrefix
	// Index tables carry empty values.
	opts.PrefetchValues = table == store.TableID2Term || table == store.TableTerm2ID || table == store.TableMeta

	return &BadgerIterator{
		it:         t.txn.NewIterator(opts),
		table:      table,
		scanPrefix: scanPrefix,
		seekKey:    scanPrefix,
	}, nil
}

// ReadVersion is the Badger read timestamp of the transaction.
func (t *BadgerTransaction) ReadVersion() uint64 {
	return t.txn.ReadTs()
}

// Commit commits the transaction
func (t *BadgerTransaction) Commit() error {
	return txnErr(t.txn.Commit())
}

func txnErr(err error) error {
	if errors.Is(err, badger.ErrTxnTooBig) {
		return fmt.Errorf("%w: %w", store.ErrTxnTooLarge, err)
	}
	return err
}

// Rollback rolls back the transaction
func (t *BadgerTransaction) Rollback() error {
	t.txn.Discard()
	return nil
}

// BadgerIterator implements Iterator using BadgerDB
type BadgerIterator struct {
	it         *badger.Iterator
	table      store.Table
	scanPrefix []byte // full prefix used for BadgerDB filtering
	seekKey    []byte
	started    bool
	hasValue   bool
}

// Next advances to the next item
func (i *BadgerIterator) Next() bool {
	if !i.started {
		i.it.Seek(i.seekKey)
		i.started = true
	} else {
		i.it.Next()
	}
	i.hasValue = i.it.ValidForPrefix(i.scanPrefix)
	return i.hasValue
}

// Seek makes the next call to Next land on the first key >= key.
func (i *BadgerIterator) Seek(key []byte) {
	i.seekKey = store.PrefixKey(i.table, key)
	i.started = false
	i.hasValue = false
}

// Key returns the current key (without the table prefix). The slice is
// only valid until the next call to Next or Seek.
func (i *BadgerIterator) Key() []byte {
	if !i.hasValue {
		return nil
	}
	return i.it.Item().Key()[1:]
}

// Value returns the current value
func (i *BadgerIterator) Value() ([]byte, error) {
	if !i.hasValue {
		return nil, store.ErrNotFound
	}
	return i.it.Item().ValueCopy(nil)
}

// Close closes the iterator
func (i *BadgerIterator) Close() error {
	i.it.Close()
	return nil
}

// BadgerBatch implements Batch over a Badger WriteBatch. It is safe for
// concurrent use.
type BadgerBatch struct {
	wb *badger.WriteBatch
}

func (b *BadgerBatch) Set(table store.Table, key, value []byte) error {
	return b.wb.Set(store.PrefixKey(table, key), value)
}

func (b *BadgerBatch) Delete(table store.Table, key []byte) error {
	return b.wb.Delete(store.PrefixKey(table, key))
}

func (b *BadgerBatch) Flush() error {
	return b.wb.Flush()
}

func (b *BadgerBatch) Cancel() {
	b.wb.Cancel()
}
