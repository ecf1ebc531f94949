// Package store is a quad store over an ordered key-value backend.
//
// Every quad is written to six permutation indexes (SPOG, POSG, OSPG, GSPO,
// GPOS, GOSP) so that any combination of bound positions is answered by a
// single prefix scan. Writes pay six key insertions per quad for that.
// Terms are interned through a Dictionary; indexes hold only ids.
//
// Readers work on snapshots and never block. Writers are serialized and
// commit all six index updates plus any new dictionary entries atomically.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/aleksaelezovic/quadra/internal/encoding"
	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"golang.org/x/sync/semaphore"
)

// FormatVersion is the persisted layout version. Opening a store written
// with a different version fails with ErrIncompatibleFormat.
const FormatVersion uint32 = 1

var (
	metaFormatKey     = []byte("format")
	metaCommitsKey    = []byte("commits")
	metaGenerationKey = []byte("generation")
)

// quadTables are the tables that hold data, as opposed to metadata.
var quadTables = []Table{TableID2Term, TableTerm2ID, TableSPOG, TablePOSG, TableOSPG, TableGSPO, TableGPOS, TableGOSP}

// Store manages RDF quads with six indexes
type Store struct {
	storage Storage
	dict    *Dictionary
	opts    options
	log     *Logger

	// writer admits one write transaction, bulk load or maintenance pass
	// at a time. Acquire honors context cancellation.
	writer *semaphore.Weighted

	commits    atomic.Uint64
	generation atomic.Uint64
	closed     atomic.Bool
}

// New opens a store over storage, initializing the metadata region of an
// empty backend and checking the format version of an existing one.
func New(storage Storage, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store{
		storage: storage,
		opts:    o,
		log:     o.logger,
		writer:  semaphore.NewWeighted(1),
	}
	if err := s.loadMeta(); err != nil {
		return nil, err
	}

	seq, err := storage.Sequence(PrefixKey(TableMeta, []byte(termSequenceKey)), o.seqBandwidth)
	if err != nil {
		return nil, storageErr("open term sequence", err)
	}
	dict, err := newDictionary(seq, o.shardSize, o.cacheBytes)
	if err != nil {
		_ = seq.Release() // #nosec G104 - release error less important than original error
		return nil, err
	}
	s.dict = dict

	s.log.Info("store opened",
		"format", FormatVersion,
		"generation", s.generation.Load(),
		"commits", s.commits.Load(),
	)
	return s, nil
}

// loadMeta checks the format tag and loads the counters, writing them on
// first open.
func (s *Store) loadMeta() error {
	txn, err := s.storage.Begin(true)
	if err != nil {
		return storageErr("begin", err)
	}
	defer txn.Rollback() // #nosec G104 - rollback after commit is a no-op

	raw, err := txn.Get(TableMeta, metaFormatKey)
	switch {
	case errors.Is(err, ErrNotFound):
		if err := s.initMeta(txn); err != nil {
			return err
		}
		return storageErr("commit", txn.Commit())
	case err != nil:
		return storageErr("read format", err)
	}

	version, err := encoding.DecodeUint64(raw)
	if err != nil {
		return &CorruptionError{Reason: "bad format tag", Err: err}
	}
	if uint32(version) != FormatVersion {
		return fmt.Errorf("%w: found %d, want %d", ErrIncompatibleFormat, version, FormatVersion)
	}
	for key, counter := range map[string]*atomic.Uint64{
		string(metaCommitsKey):    &s.commits,
		string(metaGenerationKey): &s.generation,
	} {
		raw, err := txn.Get(TableMeta, []byte(key))
		if errors.Is(err, ErrNotFound) {
			counter.Store(0)
			continue
		}
		if err != nil {
			return storageErr("read "+key, err)
		}
		v, err := encoding.DecodeUint64(raw)
		if err != nil {
			return &CorruptionError{Reason: "bad " + key + " counter", Err: err}
		}
		counter.Store(v)
	}
	return nil
}

func (s *Store) initMeta(w Writer) error {
	s.commits.Store(0)
	s.generation.Store(1)
	for key, v := range map[string]uint64{
		string(metaFormatKey):     uint64(FormatVersion),
		string(metaCommitsKey):    0,
		string(metaGenerationKey): 1,
	} {
		if err := w.Set(TableMeta, []byte(key), encoding.EncodeUint64(v)); err != nil {
			return storageErr("write "+key, err)
		}
	}
	return nil
}

// Dictionary exposes the term dictionary.
func (s *Store) Dictionary() *Dictionary {
	return s.dict
}

// Logger returns the store logger.
func (s *Store) Logger() *Logger {
	return s.log
}

// Snapshot pins the current backend version for reading.
func (s *Store) Snapshot() (*Snapshot, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	txn, err := s.storage.Begin(false)
	if err != nil {
		return nil, storageErr("begin snapshot", err)
	}
	return &Snapshot{view: view{dict: s.dict, r: txn}, txn: txn}, nil
}

// View runs fn on a fresh snapshot and releases it afterwards.
func (s *Store) View(fn func(*Snapshot) error) error {
	snap, err := s.Snapshot()
	if err != nil {
		return err
	}
	defer snap.Close() // #nosec G104 - read-only rollback cannot lose data
	return fn(snap)
}

// Update runs fn inside a write transaction. The transaction commits when
// fn returns nil and is rolled back otherwise. A transaction holds at most
// what the backend commits in one request (about 13,000 quads with the
// default memtable); past that writes fail with ErrTxnTooLarge.
func (s *Store) Update(ctx context.Context, fn func(*WriteTxn) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback() // #nosec G104 - rollback error less important than original error
		return err
	}
	return tx.Commit()
}

// Insert adds one quad in its own transaction. It reports whether the quad
// was new.
func (s *Store) Insert(ctx context.Context, q *rdf.Quad) (bool, error) {
	var inserted bool
	err := s.Update(ctx, func(tx *WriteTxn) error {
		var err error
		inserted, err = tx.Insert(q)
		return err
	})
	return inserted, err
}

// Remove deletes one quad in its own transaction. It reports whether the
// quad was present.
func (s *Store) Remove(ctx context.Context, q *rdf.Quad) (bool, error) {
	var removed bool
	err := s.Update(ctx, func(tx *WriteTxn) error {
		var err error
		removed, err = tx.Remove(q)
		return err
	})
	return removed, err
}

// Contains reports whether q is stored, reading from a fresh snapshot.
func (s *Store) Contains(q *rdf.Quad) (bool, error) {
	var found bool
	err := s.View(func(snap *Snapshot) error {
		var err error
		found, err = snap.ContainsQuad(q)
		return err
	})
	return found, err
}

// Count returns the number of stored quads.
func (s *Store) Count() (int, error) {
	var n int
	err := s.View(func(snap *Snapshot) error {
		var err error
		n, err = snap.Count()
		return err
	})
	return n, err
}

// Quads scans the quads matching the given terms on a fresh snapshot. A
// nil term leaves its position unbound. Close releases the snapshot.
func (s *Store) Quads(ctx context.Context, subject, predicate, object, graph rdf.Term) (*TermQuadIterator, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	it := snap.Match(subject, predicate, object, graph)
	it.ctx = ctx
	it.snap = snap
	return it, nil
}

// NamedGraphs lists the named graphs holding at least one quad.
func (s *Store) NamedGraphs() ([]rdf.Term, error) {
	var graphs []rdf.Term
	err := s.View(func(snap *Snapshot) error {
		ids, err := snap.NamedGraphs()
		if err != nil {
			return err
		}
		for _, id := range ids {
			g, err := snap.Decode(id)
			if err != nil {
				return err
			}
			graphs = append(graphs, g)
		}
		return nil
	})
	return graphs, err
}

// Stats describes the store content.
type Stats struct {
	Quads       int
	Terms       int
	IndexCounts map[string]int
	Commits     uint64
	Generation  uint64
	Version     uint64
}

// Stats counts every table. The six index counts are equal on a healthy
// store.
func (s *Store) Stats() (Stats, error) {
	st := Stats{
		IndexCounts: make(map[string]int, len(indexes)),
		Commits:     s.commits.Load(),
		Generation:  s.generation.Load(),
	}
	err := s.View(func(snap *Snapshot) error {
		st.Version = snap.Version()
		for _, ix := range indexes {
			n, err := snap.countTable(ix.table)
			if err != nil {
				return err
			}
			st.IndexCounts[ix.table.String()] = n
		}
		st.Quads = st.IndexCounts[TableSPOG.String()]
		n, err := snap.countTable(TableID2Term)
		st.Terms = n
		return err
	})
	return st, err
}

// CheckIndexes verifies that every index holds the same quads as SPOG.
func (s *Store) CheckIndexes() error {
	return s.View(func(snap *Snapshot) error {
		st := map[string]int{}
		for _, ix := range indexes {
			n, err := snap.countTable(ix.table)
			if err != nil {
				return err
			}
			st[ix.table.String()] = n
		}
		want := st[TableSPOG.String()]
		for name, n := range st {
			if n != want {
				return &CorruptionError{Reason: fmt.Sprintf("index %s holds %d quads, spog holds %d", name, n, want)}
			}
		}
		it := snap.QuadsMatching(AnyPattern)
		defer it.Close() // #nosec G104 - iterator close has no failure mode worth reporting here
		for it.Next() {
			q := it.Quad()
			for _, ix := range indexes[1:] {
				ids := ix.key(q)
				if _, err := snap.r.Get(ix.table, encoding.AppendIDs(nil, ids[:]...)); err != nil {
					if errors.Is(err, ErrNotFound) {
						return &CorruptionError{Reason: fmt.Sprintf("quad %s missing from %s", q, ix.table)}
					}
					return storageErr("check "+ix.table.String(), err)
				}
			}
		}
		return it.Err()
	})
}

// Commits is the number of committed write transactions and bulk loads.
func (s *Store) Commits() uint64 {
	return s.commits.Load()
}

// Generation identifies the current dictionary generation. Clear starts a
// new one; ids of different generations are unrelated.
func (s *Store) Generation() uint64 {
	return s.generation.Load()
}

// acquire takes the writer slot.
func (s *Store) acquire(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.writer.Acquire(ctx, 1); err != nil {
		return err
	}
	if s.closed.Load() {
		s.writer.Release(1)
		return ErrClosed
	}
	return nil
}

func (s *Store) release() {
	s.writer.Release(1)
}

// Clear removes every quad and dictionary entry and starts a new
// dictionary generation.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	if err := s.storage.DropTables(quadTables...); err != nil {
		return storageErr("drop tables", err)
	}
	s.dict.reset()

	gen := s.generation.Add(1)
	txn, err := s.storage.Begin(true)
	if err != nil {
		return storageErr("begin", err)
	}
	defer txn.Rollback() // #nosec G104 - rollback after commit is a no-op
	if err := txn.Set(TableMeta, metaGenerationKey, encoding.EncodeUint64(gen)); err != nil {
		return storageErr("write generation", err)
	}
	if err := txn.Commit(); err != nil {
		return storageErr("commit", err)
	}
	s.log.Info("store cleared", "generation", gen)
	return nil
}

// Backup streams a dump of the whole store to w.
func (s *Store) Backup(w io.Writer) (uint64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	version, err := s.storage.Backup(w)
	if err != nil {
		return 0, storageErr("backup", err)
	}
	s.log.Info("backup written", "version", version)
	return version, nil
}

// Restore replaces the store content with a dump produced by Backup.
func (s *Store) Restore(ctx context.Context, r io.Reader) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	// The sequence lease is part of the dump; the current lease must not
	// outlive the data it numbered.
	_ = s.dict.seq.Release() // #nosec G104 - the lease key is replaced below
	if err := s.storage.DropTables(append(quadTables, TableMeta)...); err != nil {
		return storageErr("drop tables", err)
	}
	if err := s.storage.Restore(r); err != nil {
		return storageErr("restore", err)
	}
	seq, err := s.storage.Sequence(PrefixKey(TableMeta, []byte(termSequenceKey)), s.opts.seqBandwidth)
	if err != nil {
		return storageErr("open term sequence", err)
	}
	s.dict.seq = seq
	s.dict.reset()
	if err := s.loadMeta(); err != nil {
		return err
	}
	s.log.Info("store restored",
		"generation", s.generation.Load(),
		"commits", s.commits.Load(),
	)
	return nil
}

// Sync flushes the backend to disk.
func (s *Store) Sync() error {
	return storageErr("sync", s.storage.Sync())
}

// Close waits for the active writer, then closes the dictionary and the
// backend.
func (s *Store) Close() error {
	if err := s.writer.Acquire(context.Background(), 1); err != nil {
		return err
	}
	if s.closed.Swap(true) {
		s.writer.Release(1)
		return nil
	}
	defer s.writer.Release(1)

	var errs []error
	if err := s.dict.close(); err != nil {
		errs = append(errs, storageErr("release sequence", err))
	}
	if err := s.storage.Close(); err != nil {
		errs = append(errs, storageErr("close", err))
	}
	s.log.Info("store closed")
	return errors.Join(errs...)
}
