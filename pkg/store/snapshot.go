package store

import (
	"context"
	"errors"

	"github.com/aleksaelezovic/quadra/internal/encoding"
	"github.com/aleksaelezovic/quadra/pkg/rdf"
)

// Source is the read surface shared by snapshots and write transactions.
// Query evaluation runs against a Source.
type Source interface {
	// QuadsMatching returns a lazy scan of the quads satisfying p.
	QuadsMatching(p Pattern) QuadIterator

	// Contains reports whether the encoded quad is stored.
	Contains(q EncodedQuad) (bool, error)

	// Lookup returns the id of term if the dictionary knows it.
	Lookup(term rdf.Term) (TermID, bool, error)

	// Decode returns the term of an id read from this source.
	Decode(id TermID) (rdf.Term, error)

	// NamedGraphs lists the ids of every graph other than the default
	// graph that holds at least one quad.
	NamedGraphs() ([]TermID, error)
}

// view implements Source over one backend transaction.
type view struct {
	dict *Dictionary
	r    Reader
}

func (v view) QuadsMatching(p Pattern) QuadIterator {
	return matchQuads(v.r, p)
}

func (v view) Contains(q EncodedQuad) (bool, error) {
	ids := indexes[0].key(q)
	_, err := v.r.Get(indexes[0].table, encoding.AppendIDs(nil, ids[:]...))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("contains", err)
	}
	return true, nil
}

func (v view) Lookup(term rdf.Term) (TermID, bool, error) {
	return v.dict.Lookup(v.r, term)
}

func (v view) Decode(id TermID) (rdf.Term, error) {
	return v.dict.Decode(v.r, id)
}

// DecodeQuad turns an encoded quad back into terms.
func (v view) DecodeQuad(q EncodedQuad) (*rdf.Quad, error) {
	var terms [4]rdf.Term
	for pos, id := range q {
		t, err := v.Decode(id)
		if err != nil {
			return nil, err
		}
		terms[pos] = t
	}
	return rdf.NewQuad(terms[Subject], terms[Predicate], terms[Object], terms[Graph]), nil
}

// EncodeQuad resolves the terms of q without minting ids. ok is false when
// any term is unknown, in which case q cannot be stored.
func (v view) EncodeQuad(q *rdf.Quad) (EncodedQuad, bool, error) {
	var eq EncodedQuad
	for pos, t := range []rdf.Term{q.Subject, q.Predicate, q.Object, q.Graph} {
		id, ok, err := v.Lookup(t)
		if err != nil || !ok {
			return eq, false, err
		}
		eq[pos] = id
	}
	return eq, true, nil
}

// ContainsQuad is Contains over terms.
func (v view) ContainsQuad(q *rdf.Quad) (bool, error) {
	eq, ok, err := v.EncodeQuad(q)
	if err != nil || !ok {
		return false, err
	}
	return v.Contains(eq)
}

// NamedGraphs walks the GSPO index, seeking past each graph once it is
// seen so the cost is one seek per graph.
func (v view) NamedGraphs() ([]TermID, error) {
	it, err := v.r.Scan(TableGSPO, nil)
	if err != nil {
		return nil, storageErr("scan gspo", err)
	}
	defer it.Close() // #nosec G104 - iterator close has no failure mode worth reporting here

	var graphs []TermID
	for it.Next() {
		ids, err := encoding.DecodeQuadKey(it.Key())
		if err != nil {
			return nil, &CorruptionError{Reason: "bad gspo key", Err: err}
		}
		g := ids[0]
		if TermID(g) != DefaultGraphID {
			graphs = append(graphs, TermID(g))
		}
		it.Seek(encoding.AppendIDs(nil, g+1))
	}
	return graphs, nil
}

// Count returns the number of stored quads.
func (v view) Count() (int, error) {
	return v.countTable(TableSPOG)
}

func (v view) countTable(table Table) (int, error) {
	it, err := v.r.Scan(table, nil)
	if err != nil {
		return 0, storageErr("scan "+table.String(), err)
	}
	defer it.Close() // #nosec G104 - iterator close has no failure mode worth reporting here
	n := 0
	for it.Next() {
		n++
	}
	return n, nil
}

// Match is QuadsMatching over terms; a nil term leaves the position
// unbound and rdf.DefaultGraph selects the default graph.
func (v view) Match(s, p, o, g rdf.Term) *TermQuadIterator {
	pattern := AnyPattern
	for pos, t := range []rdf.Term{s, p, o} {
		if t == nil {
			continue
		}
		id, ok, err := v.Lookup(t)
		if err != nil {
			return &TermQuadIterator{err: err}
		}
		if !ok {
			return &TermQuadIterator{}
		}
		pattern[pos] = id
	}
	if g != nil {
		id, ok, err := v.Lookup(g)
		if err != nil {
			return &TermQuadIterator{err: err}
		}
		if !ok {
			return &TermQuadIterator{}
		}
		pattern[Graph] = id
	}
	return &TermQuadIterator{v: v, it: v.QuadsMatching(pattern)}
}

// TermQuadIterator decodes the quads of a pattern scan.
type TermQuadIterator struct {
	v       view
	it      QuadIterator
	ctx     context.Context
	snap    *Snapshot
	current *rdf.Quad
	err     error
}

func (t *TermQuadIterator) Next() bool {
	if t.err != nil || t.it == nil {
		return false
	}
	if t.ctx != nil {
		if err := t.ctx.Err(); err != nil {
			t.err = err
			return false
		}
	}
	if !t.it.Next() {
		t.err = t.it.Err()
		return false
	}
	q, err := t.v.DecodeQuad(t.it.Quad())
	if err != nil {
		t.err = err
		return false
	}
	t.current = q
	return true
}

func (t *TermQuadIterator) Quad() *rdf.Quad { return t.current }

func (t *TermQuadIterator) Err() error { return t.err }

func (t *TermQuadIterator) Close() error {
	var err error
	if t.it != nil {
		err = t.it.Close()
	}
	if t.snap != nil {
		err = errors.Join(err, t.snap.Close())
	}
	return err
}

// Snapshot is a read-only view pinned to the backend version current at
// creation. Later commits are invisible to it. Close releases the pin.
type Snapshot struct {
	view
	txn    Transaction
	closed bool
}

// Version is the backend sequence position the snapshot reads at.
func (s *Snapshot) Version() uint64 {
	return s.txn.ReadVersion()
}

// Close releases the snapshot. It is safe to call more than once.
func (s *Snapshot) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.txn.Rollback()
}
