// Package path evaluates SPARQL property paths over a store source.
//
// Every operation has set semantics: an endpoint or pair is reported once
// however many routes lead to it. Closures (path* and path+) run a
// breadth-first search whose visited set is a roaring64 bitmap, so they
// terminate on cyclic data.
package path

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/aleksaelezovic/quadra/pkg/sparql/algebra"
	"github.com/aleksaelezovic/quadra/pkg/store"
)

// NodeIterator yields path endpoints.
type NodeIterator interface {
	Next() bool
	Node() store.TermID
	Err() error
	Close() error
}

// PairIterator yields (start, end) pairs connected by a path.
type PairIterator interface {
	Next() bool
	Pair() (start, end store.TermID)
	Err() error
	Close() error
}

// Evaluator walks property paths over src. The graph argument of every
// method is a graph id, DefaultGraphID, or store.Any for the union of all
// graphs. An Evaluator caches predicate lookups and is not safe for
// concurrent use.
type Evaluator struct {
	src        store.Source
	predicates map[string]lookup
}

type lookup struct {
	id    store.TermID
	found bool
}

// NewEvaluator returns an evaluator reading from src.
func NewEvaluator(src store.Source) *Evaluator {
	return &Evaluator{src: src, predicates: make(map[string]lookup)}
}

// Objects enumerates the nodes reachable from start along p.
func (e *Evaluator) Objects(ctx context.Context, p algebra.PathExpression, start, graph store.TermID) NodeIterator {
	return e.reach(ctx, p, start, graph, true)
}

// Subjects enumerates the nodes from which end is reachable along p.
func (e *Evaluator) Subjects(ctx context.Context, p algebra.PathExpression, end, graph store.TermID) NodeIterator {
	return e.reach(ctx, p, end, graph, false)
}

func (e *Evaluator) reach(ctx context.Context, p algebra.PathExpression, from, graph store.TermID, forward bool) NodeIterator {
	switch pp := p.(type) {
	case *algebra.PathZeroOrMore:
		return e.closure(ctx, pp.Path, from, graph, forward, true)
	case *algebra.PathOneOrMore:
		return e.closure(ctx, pp.Path, from, graph, forward, false)
	case *algebra.PathInverse:
		return e.reach(ctx, pp.Path, from, graph, !forward)
	}
	nodes, err := e.step(ctx, p, from, graph, forward)
	if err != nil {
		return &sliceIterator{err: err}
	}
	return &sliceIterator{nodes: nodes, pos: -1}
}

// Exists reports whether end is reachable from start along p. Closures
// search from both ends at once and stop as soon as the searches meet.
func (e *Evaluator) Exists(ctx context.Context, p algebra.PathExpression, start, end, graph store.TermID) (bool, error) {
	switch pp := p.(type) {
	case *algebra.PathZeroOrMore:
		if start == end {
			return true, nil
		}
		return e.meet(ctx, pp.Path, []store.TermID{start}, end, graph)
	case *algebra.PathOneOrMore:
		first, err := e.step(ctx, pp.Path, start, graph, true)
		if err != nil {
			return false, err
		}
		return e.meet(ctx, pp.Path, first, end, graph)
	case *algebra.PathInverse:
		return e.Exists(ctx, pp.Path, end, start, graph)
	}

	it := e.Objects(ctx, p, start, graph)
	defer it.Close() // #nosec G104 - read-only iterator
	for it.Next() {
		if it.Node() == end {
			return true, nil
		}
	}
	return false, it.Err()
}

// meet runs a bidirectional search over inner: the forward side starts at
// seeds and the backward side at end. It reports whether they touch.
func (e *Evaluator) meet(ctx context.Context, inner algebra.PathExpression, seeds []store.TermID, end, graph store.TermID) (bool, error) {
	fwdSeen := roaring64.New()
	bwdSeen := roaring64.BitmapOf(uint64(end))
	fwd := make([]store.TermID, 0, len(seeds))
	for _, s := range seeds {
		if s == end {
			return true, nil
		}
		if fwdSeen.CheckedAdd(uint64(s)) {
			fwd = append(fwd, s)
		}
	}
	bwd := []store.TermID{end}

	for len(fwd) > 0 && len(bwd) > 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		// Expand the smaller frontier.
		forward := len(fwd) <= len(bwd)
		frontier, seen, other := fwd, fwdSeen, bwdSeen
		if !forward {
			frontier, seen, other = bwd, bwdSeen, fwdSeen
		}
		var next []store.TermID
		for _, n := range frontier {
			found, err := e.step(ctx, inner, n, graph, forward)
			if err != nil {
				return false, err
			}
			for _, m := range found {
				if other.Contains(uint64(m)) {
					return true, nil
				}
				if seen.CheckedAdd(uint64(m)) {
					next = append(next, m)
				}
			}
		}
		if forward {
			fwd = next
		} else {
			bwd = next
		}
	}
	return false, nil
}

// Pairs enumerates every connected (start, end) pair. Zero-length paths
// pair every node of the graph with itself.
func (e *Evaluator) Pairs(ctx context.Context, p algebra.PathExpression, graph store.TermID) PairIterator {
	if link, ok := p.(*algebra.PathLink); ok {
		return e.linkPairs(link, graph, false)
	}
	if inv, ok := p.(*algebra.PathInverse); ok {
		if link, ok := inv.Path.(*algebra.PathLink); ok {
			return e.linkPairs(link, graph, true)
		}
	}
	starts, err := e.nodes(ctx, graph)
	if err != nil {
		return &pairIterator{err: err}
	}
	return &pairIterator{ctx: ctx, e: e, path: p, graph: graph, starts: starts}
}

// nodes lists every subject and object of graph.
func (e *Evaluator) nodes(ctx context.Context, graph store.TermID) ([]store.TermID, error) {
	seen := roaring64.New()
	it := e.src.QuadsMatching(store.NewPattern(store.Any, store.Any, store.Any, graph))
	defer it.Close() // #nosec G104 - read-only iterator
	for n := 1; it.Next(); n++ {
		q := it.Quad()
		seen.Add(uint64(q.Subject()))
		seen.Add(uint64(q.Object()))
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return toIDs(seen), nil
}

func toIDs(b *roaring64.Bitmap) []store.TermID {
	ids := make([]store.TermID, 0, b.GetCardinality())
	it := b.Iterator()
	for it.HasNext() {
		ids = append(ids, store.TermID(it.Next()))
	}
	return ids
}

// predicate resolves a path predicate; found is false when no quad can use
// it.
func (e *Evaluator) predicate(iri *rdf.NamedNode) (store.TermID, bool, error) {
	if l, ok := e.predicates[iri.IRI]; ok {
		return l.id, l.found, nil
	}
	id, found, err := e.src.Lookup(iri)
	if err != nil {
		return 0, false, err
	}
	e.predicates[iri.IRI] = lookup{id: id, found: found}
	return id, found, nil
}

func (e *Evaluator) predicateSet(iris []*rdf.NamedNode) (map[store.TermID]bool, error) {
	set := make(map[store.TermID]bool, len(iris))
	for _, iri := range iris {
		id, found, err := e.predicate(iri)
		if err != nil {
			return nil, err
		}
		if found {
			set[id] = true
		}
	}
	return set, nil
}
