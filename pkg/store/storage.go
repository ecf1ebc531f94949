package store

import (
	"io"
)

// Storage is the interface for the underlying ordered key-value store.
// Implementations must provide snapshot-isolated read transactions and
// atomic commits.
type Storage interface {
	// Begin starts a new transaction. Read-only transactions observe a
	// fixed snapshot for their whole lifetime.
	Begin(writable bool) (Transaction, error)

	// NewBatch starts a non-transactional batched writer for bulk loads.
	NewBatch() Batch

	// Sequence returns a persistent monotonically increasing counter.
	Sequence(name []byte, bandwidth uint64) (Sequence, error)

	// DropTables removes every key of the given tables.
	DropTables(tables ...Table) error

	// Backup streams a full dump of the store to w and returns the
	// version it was taken at.
	Backup(w io.Writer) (uint64, error)

	// Restore loads a dump produced by Backup.
	Restore(r io.Reader) error

	// Close closes the storage
	Close() error

	// Sync flushes writes to disk
	Sync() error
}

// Reader is the read side of a transaction.
type Reader interface {
	// Get retrieves a value by key
	Get(table Table, key []byte) ([]byte, error)

	// Scan iterates over every key of table starting with prefix.
	// A nil prefix scans the whole table.
	Scan(table Table, prefix []byte) (Iterator, error)
}

// Writer is the write side shared by transactions and batches.
type Writer interface {
	// Set stores a key-value pair
	Set(table Table, key, value []byte) error

	// Delete removes a key
	Delete(table Table, key []byte) error
}

// Transaction represents a database transaction with snapshot isolation
type Transaction interface {
	Reader
	Writer

	// ReadVersion is the backend sequence position the transaction reads at.
	ReadVersion() uint64

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error
}

// Batch accumulates writes outside of a transaction. Writes become
// visible in chunks as the batch fills; Flush makes the rest durable.
type Batch interface {
	Writer

	// Flush commits every pending write.
	Flush() error

	// Cancel discards pending writes.
	Cancel()
}

// Sequence hands out persistent counter values.
type Sequence interface {
	Next() (uint64, error)
	Release() error
}

// Iterator iterates over key-value pairs
type Iterator interface {
	// Next advances to the next item
	Next() bool

	// Seek positions the iterator so that the following Next returns the
	// first key >= key (key is relative to the table).
	Seek(key []byte)

	// Key returns the current key, without table prefix
	Key() []byte

	// Value returns the current value
	Value() ([]byte, error)

	// Close closes the iterator
	Close() error
}

// Table represents a logical table/column family in the storage
type Table byte

const (
	// Dictionary: id -> canonical term bytes
	TableID2Term Table = iota

	// Dictionary: xxh3 hash of canonical term bytes -> id
	TableTerm2ID

	// Quad indexes (6 permutations)
	TableSPOG
	TablePOSG
	TableOSPG
	TableGSPO
	TableGPOS
	TableGOSP

	// Format version, generation and counters
	TableMeta

	// Total number of tables
	TableCount
)

func (t Table) String() string {
	switch t {
	case TableID2Term:
		return "id2term"
	case TableTerm2ID:
		return "term2id"
	case TableSPOG:
		return "spog"
	case TablePOSG:
		return "posg"
	case TableOSPG:
		return "ospg"
	case TableGSPO:
		return "gspo"
	case TableGPOS:
		return "gpos"
	case TableGOSP:
		return "gosp"
	case TableMeta:
		return "meta"
	default:
		return "unknown"
	}
}

// TablePrefix returns a byte prefix for a table to namespace keys
func TablePrefix(table Table) []byte {
	return []byte{byte(table)}
}

// PrefixKey adds a table prefix to a key
func PrefixKey(table Table, key []byte) []byte {
	result := make([]byte, 1+len(key))
	result[0] = byte(table)
	copy(result[1:], key)
	return result
}
