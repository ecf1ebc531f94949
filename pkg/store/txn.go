package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aleksaelezovic/quadra/internal/encoding"
	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/google/uuid"
)

// WriteTxn is the single active write transaction. Reads through it see
// its own uncommitted writes. All index and dictionary changes commit
// together or not at all.
type WriteTxn struct {
	view
	store *Store
	txn   Transaction
	sess  *dictSession
	ctx   context.Context
	log   *Logger

	inserted int
	removed  int
	failed   error
	done     bool
}

// Begin starts a write transaction, waiting for the current writer to
// finish. The wait honors ctx. The size limit of Update applies.
func (s *Store) Begin(ctx context.Context) (*WriteTxn, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	txn, err := s.storage.Begin(true)
	if err != nil {
		s.release()
		return nil, storageErr("begin", err)
	}
	return &WriteTxn{
		view:  view{dict: s.dict, r: txn},
		store: s,
		txn:   txn,
		sess:  s.dict.newSession(txn, txn),
		ctx:   ctx,
		log:   s.log.WithTxn(uuid.NewString()),
	}, nil
}

func (tx *WriteTxn) check() error {
	if tx.done {
		return ErrClosed
	}
	if tx.failed != nil {
		return fmt.Errorf("transaction aborted: %w", tx.failed)
	}
	return nil
}

// fail records a backend error; the transaction can then only roll back.
func (tx *WriteTxn) fail(err error) error {
	if err != nil && tx.failed == nil {
		tx.failed = err
	}
	return err
}

// Encode interns term, minting an id if needed.
func (tx *WriteTxn) Encode(term rdf.Term) (TermID, error) {
	if err := tx.check(); err != nil {
		return 0, err
	}
	id, err := tx.sess.Encode(term)
	if err != nil {
		var se *StorageError
		if errors.As(err, &se) {
			tx.fail(err)
		}
		return 0, err
	}
	return id, nil
}

// Insert adds q and reports whether it was new.
func (tx *WriteTxn) Insert(q *rdf.Quad) (bool, error) {
	if err := tx.check(); err != nil {
		return false, err
	}
	if err := q.Validate(); err != nil {
		return false, err
	}
	var eq EncodedQuad
	for pos, t := range []rdf.Term{q.Subject, q.Predicate, q.Object, q.Graph} {
		id, err := tx.Encode(t)
		if err != nil {
			return false, err
		}
		eq[pos] = id
	}
	return tx.InsertEncoded(eq)
}

// InsertEncoded adds a quad whose ids came from this store.
func (tx *WriteTxn) InsertEncoded(q EncodedQuad) (bool, error) {
	if err := tx.check(); err != nil {
		return false, err
	}
	found, err := tx.Contains(q)
	if err != nil {
		return false, tx.fail(err)
	}
	if found {
		return false, nil
	}
	for _, ix := range indexes {
		ids := ix.key(q)
		if err := tx.txn.Set(ix.table, encoding.AppendIDs(nil, ids[:]...), nil); err != nil {
			return false, tx.fail(storageErr("write "+ix.table.String(), err))
		}
	}
	tx.inserted++
	return true, nil
}

// Remove deletes q and reports whether it was present. Dictionary entries
// of its terms stay until the next Vacuum.
func (tx *WriteTxn) Remove(q *rdf.Quad) (bool, error) {
	if err := tx.check(); err != nil {
		return false, err
	}
	eq, ok, err := tx.EncodeQuad(q)
	if err != nil {
		return false, tx.fail(err)
	}
	if !ok {
		return false, nil
	}
	return tx.RemoveEncoded(eq)
}

// RemoveEncoded deletes a quad by ids.
func (tx *WriteTxn) RemoveEncoded(q EncodedQuad) (bool, error) {
	if err := tx.check(); err != nil {
		return false, err
	}
	found, err := tx.Contains(q)
	if err != nil {
		return false, tx.fail(err)
	}
	if !found {
		return false, nil
	}
	for _, ix := range indexes {
		ids := ix.key(q)
		if err := tx.txn.Delete(ix.table, encoding.AppendIDs(nil, ids[:]...)); err != nil {
			return false, tx.fail(storageErr("delete "+ix.table.String(), err))
		}
	}
	tx.removed++
	return true, nil
}

// RemoveMatching deletes every quad matching p and returns how many were
// removed.
func (tx *WriteTxn) RemoveMatching(p Pattern) (int, error) {
	if err := tx.check(); err != nil {
		return 0, err
	}
	it := tx.QuadsMatching(p)
	var matched []EncodedQuad
	for it.Next() {
		matched = append(matched, it.Quad())
	}
	err := it.Err()
	_ = it.Close() // #nosec G104 - scan already drained
	if err != nil {
		return 0, tx.fail(err)
	}
	for _, q := range matched {
		if _, err := tx.RemoveEncoded(q); err != nil {
			return 0, err
		}
	}
	return len(matched), nil
}

// Commit applies every change atomically. On failure nothing is applied.
func (tx *WriteTxn) Commit() error {
	if tx.done {
		return ErrClosed
	}
	if tx.failed != nil {
		err := tx.failed
		_ = tx.Rollback() // #nosec G104 - rollback error less important than original error
		return fmt.Errorf("transaction aborted: %w", err)
	}
	defer tx.finish()

	if tx.inserted == 0 && tx.removed == 0 && tx.sess.Minted() == 0 {
		_ = tx.txn.Rollback() // #nosec G104 - nothing to write
		return nil
	}
	next := tx.store.commits.Load() + 1
	if err := tx.txn.Set(TableMeta, metaCommitsKey, encoding.EncodeUint64(next)); err != nil {
		tx.abort()
		err = storageErr("write commit counter", err)
		tx.log.LogCommit(tx.ctx, tx.inserted, tx.removed, 0, err)
		return err
	}
	if err := tx.txn.Commit(); err != nil {
		tx.abort()
		err = storageErr("commit", err)
		tx.log.LogCommit(tx.ctx, tx.inserted, tx.removed, 0, err)
		return err
	}
	tx.sess.settle()
	tx.store.commits.Store(next)
	tx.log.LogCommit(tx.ctx, tx.inserted, tx.removed, next, nil)
	return nil
}

// Rollback discards every change. It is a no-op after Commit.
func (tx *WriteTxn) Rollback() error {
	if tx.done {
		return nil
	}
	defer tx.finish()
	tx.abort()
	return nil
}

func (tx *WriteTxn) abort() {
	_ = tx.txn.Rollback() // #nosec G104 - discard cannot fail in a way that matters here
	n := tx.sess.forget()
	tx.log.LogRollback(tx.ctx, n)
}

func (tx *WriteTxn) finish() {
	tx.done = true
	tx.store.release()
}

// Inserted is the number of quads added so far.
func (tx *WriteTxn) Inserted() int { return tx.inserted }

// Removed is the number of quads deleted so far.
func (tx *WriteTxn) Removed() int { return tx.removed }
