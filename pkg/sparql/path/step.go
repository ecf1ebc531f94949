package path

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/aleksaelezovic/quadra/pkg/sparql/algebra"
	"github.com/aleksaelezovic/quadra/pkg/store"
)

// step returns the distinct nodes one application of p leads to from
// from, following edges backwards when forward is false.
func (e *Evaluator) step(ctx context.Context, p algebra.PathExpression, from, graph store.TermID, forward bool) ([]store.TermID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch pp := p.(type) {
	case *algebra.PathLink:
		pred, found, err := e.predicate(pp.Predicate)
		if err != nil || !found {
			return nil, err
		}
		if forward {
			return e.scan(store.NewPattern(from, pred, store.Any, graph), store.Object, nil)
		}
		return e.scan(store.NewPattern(store.Any, pred, from, graph), store.Subject, nil)

	case *algebra.PathInverse:
		return e.step(ctx, pp.Path, from, graph, !forward)

	case *algebra.PathSequence:
		first, second := pp.Left, pp.Right
		if !forward {
			first, second = second, first
		}
		mids, err := e.step(ctx, first, from, graph, forward)
		if err != nil {
			return nil, err
		}
		out := roaring64.New()
		for _, m := range mids {
			ends, err := e.step(ctx, second, m, graph, forward)
			if err != nil {
				return nil, err
			}
			for _, n := range ends {
				out.Add(uint64(n))
			}
		}
		return toIDs(out), nil

	case *algebra.PathAlternative:
		out := roaring64.New()
		for _, branch := range []algebra.PathExpression{pp.Left, pp.Right} {
			nodes, err := e.step(ctx, branch, from, graph, forward)
			if err != nil {
				return nil, err
			}
			for _, n := range nodes {
				out.Add(uint64(n))
			}
		}
		return toIDs(out), nil

	case *algebra.PathZeroOrOne:
		nodes, err := e.step(ctx, pp.Path, from, graph, forward)
		if err != nil {
			return nil, err
		}
		out := roaring64.BitmapOf(uint64(from))
		for _, n := range nodes {
			out.Add(uint64(n))
		}
		return toIDs(out), nil

	case *algebra.PathZeroOrMore, *algebra.PathOneOrMore:
		it := e.reach(ctx, p, from, graph, forward)
		defer it.Close() // #nosec G104 - read-only iterator
		var nodes []store.TermID
		for it.Next() {
			nodes = append(nodes, it.Node())
		}
		return nodes, it.Err()

	case *algebra.PathNegatedSet:
		return e.negated(pp, from, graph, forward)
	}
	return nil, nil
}

// negated follows every edge whose predicate is outside the excluded set
// of its direction.
func (e *Evaluator) negated(p *algebra.PathNegatedSet, from, graph store.TermID, forward bool) ([]store.TermID, error) {
	out := roaring64.New()
	collect := func(excluded map[store.TermID]bool, outgoing bool) error {
		keep := func(q store.EncodedQuad) bool { return !excluded[q.Predicate()] }
		var nodes []store.TermID
		var err error
		if outgoing {
			nodes, err = e.scan(store.NewPattern(from, store.Any, store.Any, graph), store.Object, keep)
		} else {
			nodes, err = e.scan(store.NewPattern(store.Any, store.Any, from, graph), store.Subject, keep)
		}
		for _, n := range nodes {
			out.Add(uint64(n))
		}
		return err
	}

	if len(p.Forward) > 0 {
		excluded, err := e.predicateSet(p.Forward)
		if err != nil {
			return nil, err
		}
		if err := collect(excluded, forward); err != nil {
			return nil, err
		}
	}
	if len(p.Inverse) > 0 {
		excluded, err := e.predicateSet(p.Inverse)
		if err != nil {
			return nil, err
		}
		if err := collect(excluded, !forward); err != nil {
			return nil, err
		}
	}
	return toIDs(out), nil
}

// scan returns the distinct ids at pos of the quads matching pattern and
// accepted by keep.
func (e *Evaluator) scan(pattern store.Pattern, pos store.Position, keep func(store.EncodedQuad) bool) ([]store.TermID, error) {
	it := e.src.QuadsMatching(pattern)
	defer it.Close() // #nosec G104 - read-only iterator
	out := roaring64.New()
	for it.Next() {
		q := it.Quad()
		if keep == nil || keep(q) {
			out.Add(uint64(q[pos]))
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return toIDs(out), nil
}

// closureIterator is a lazy breadth-first search. Nodes are emitted in
// discovery order and expanded when emitted.
type closureIterator struct {
	ctx     context.Context
	e       *Evaluator
	inner   algebra.PathExpression
	graph   store.TermID
	forward bool

	seen  *roaring64.Bitmap
	queue []store.TermID
	head  int
	cur   store.TermID
	err   error
}

func (e *Evaluator) closure(ctx context.Context, inner algebra.PathExpression, from, graph store.TermID, forward, zero bool) NodeIterator {
	it := &closureIterator{ctx: ctx, e: e, inner: inner, graph: graph, forward: forward, seen: roaring64.New()}
	if zero {
		it.seen.Add(uint64(from))
		it.queue = []store.TermID{from}
		return it
	}
	first, err := e.step(ctx, inner, from, graph, forward)
	if err != nil {
		it.err = err
		return it
	}
	it.push(first)
	return it
}

func (it *closureIterator) push(nodes []store.TermID) {
	for _, n := range nodes {
		if it.seen.CheckedAdd(uint64(n)) {
			it.queue = append(it.queue, n)
		}
	}
}

func (it *closureIterator) Next() bool {
	if it.err != nil || it.head >= len(it.queue) {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = err
		return false
	}
	// Drop the consumed prefix once it dominates the queue.
	if it.head > 1024 && it.head*2 > len(it.queue) {
		it.queue = append(it.queue[:0], it.queue[it.head:]...)
		it.head = 0
	}
	it.cur = it.queue[it.head]
	it.head++
	next, err := it.e.step(it.ctx, it.inner, it.cur, it.graph, it.forward)
	if err != nil {
		it.err = err
		return false
	}
	it.push(next)
	return true
}

func (it *closureIterator) Node() store.TermID { return it.cur }
func (it *closureIterator) Err() error         { return it.err }
func (it *closureIterator) Close() error       { it.queue = nil; return nil }

type sliceIterator struct {
	nodes []store.TermID
	pos   int
	err   error
}

func (it *sliceIterator) Next() bool {
	if it.err != nil {
		return false
	}
	it.pos++
	return it.pos < len(it.nodes)
}

func (it *sliceIterator) Node() store.TermID { return it.nodes[it.pos] }
func (it *sliceIterator) Err() error         { return it.err }
func (it *sliceIterator) Close() error       { return nil }

// pairIterator runs Objects from every candidate start node.
type pairIterator struct {
	ctx    context.Context
	e      *Evaluator
	path   algebra.PathExpression
	graph  store.TermID
	starts []store.TermID

	idx   int
	cur   NodeIterator
	start store.TermID
	end   store.TermID
	err   error
}

func (it *pairIterator) Next() bool {
	for it.err == nil {
		if it.cur != nil {
			if it.cur.Next() {
				it.end = it.cur.Node()
				return true
			}
			it.err = it.cur.Err()
			_ = it.cur.Close() // #nosec G104 - read-only iterator
			it.cur = nil
			continue
		}
		if it.idx >= len(it.starts) {
			return false
		}
		if err := it.ctx.Err(); err != nil {
			it.err = err
			return false
		}
		it.start = it.starts[it.idx]
		it.idx++
		it.cur = it.e.Objects(it.ctx, it.path, it.start, it.graph)
	}
	return false
}

func (it *pairIterator) Pair() (store.TermID, store.TermID) { return it.start, it.end }
func (it *pairIterator) Err() error                         { return it.err }

func (it *pairIterator) Close() error {
	if it.cur != nil {
		return it.cur.Close()
	}
	return nil
}

// linkPairs reads a single predicate straight from the index. Over the
// union of graphs an edge present in several graphs is reported once.
func (e *Evaluator) linkPairs(link *algebra.PathLink, graph store.TermID, inverse bool) PairIterator {
	pred, found, err := e.predicate(link.Predicate)
	if err != nil || !found {
		return &pairIterator{err: err}
	}
	it := &linkPairIterator{
		quads:   e.src.QuadsMatching(store.NewPattern(store.Any, pred, store.Any, graph)),
		inverse: inverse,
	}
	if graph == store.Any {
		it.seen = make(map[[2]store.TermID]struct{})
	}
	return it
}

type linkPairIterator struct {
	quads      store.QuadIterator
	inverse    bool
	seen       map[[2]store.TermID]struct{}
	start, end store.TermID
}

func (it *linkPairIterator) Next() bool {
	for it.quads.Next() {
		q := it.quads.Quad()
		it.start, it.end = q.Subject(), q.Object()
		if it.inverse {
			it.start, it.end = it.end, it.start
		}
		if it.seen != nil {
			key := [2]store.TermID{it.start, it.end}
			if _, dup := it.seen[key]; dup {
				continue
			}
			it.seen[key] = struct{}{}
		}
		return true
	}
	return false
}

func (it *linkPairIterator) Pair() (store.TermID, store.TermID) { return it.start, it.end }
func (it *linkPairIterator) Err() error                         { return it.quads.Err() }
func (it *linkPairIterator) Close() error                       { return it.quads.Close() }
