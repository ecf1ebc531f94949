package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("key not found")
	ErrTransactionRO = errors.New("transaction is read-only")

	// ErrClosed is returned by operations on a closed store, snapshot or
	// finished transaction.
	ErrClosed = errors.New("store: closed")

	// ErrIncompatibleFormat is returned by Open when the persisted layout
	// version differs from FormatVersion.
	ErrIncompatibleFormat = errors.New("store: incompatible format version")

	// ErrCorruption is the sentinel matched by every CorruptionError.
	ErrCorruption = errors.New("store: corruption")

	// ErrTxnTooLarge is returned when a write transaction outgrows what
	// the backend can commit at once. The transaction is aborted. Load
	// large inputs with BulkLoad, which commits in chunks.
	ErrTxnTooLarge = errors.New("store: transaction too large")
)

// StorageError wraps a backend I/O failure with the operation that hit it.
// The active write transaction, if any, has been aborted.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	var ce *CorruptionError
	if errors.As(err, &se) || errors.As(err, &ce) || errors.Is(err, ErrClosed) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// CorruptionError reports a violated dictionary or index invariant. It is
// never repaired in place; the store has to be reopened or restored.
type CorruptionError struct {
	Reason string
	ID     TermID
	Err    error
}

func (e *CorruptionError) Error() string {
	msg := "store: corruption: " + e.Reason
	if e.ID != 0 {
		msg += fmt.Sprintf(" (term id %d)", e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCorruption}
	}
	return []error{ErrCorruption, e.Err}
}
