package executor

import (
	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/aleksaelezovic/quadra/pkg/sparql/algebra"
	"github.com/aleksaelezovic/quadra/pkg/sparql/binding"
	"github.com/aleksaelezovic/quadra/pkg/store"
)

// resolved is a pattern position after substituting the current mapping.
type resolved struct {
	// id is store.Any for a free position.
	id store.TermID
	// term is the value of a bound position.
	term rdf.Term
	// missing is set when the value is not in the dictionary, so no stored
	// quad can match.
	missing bool
}

func (p resolved) free() bool { return p.term == nil }

// resolve substitutes b into one position and looks the value up.
func (r *run) resolve(pos algebra.TermOrVariable, b *binding.Binding) (resolved, error) {
	var term rdf.Term
	switch {
	case pos.Variable != nil:
		v, ok := b.Get(pos.Variable.Name)
		if !ok {
			return resolved{id: store.Any}, nil
		}
		if id, ok := b.ID(pos.Variable.Name); ok {
			return resolved{id: id, term: v}, nil
		}
		term = v
	case pos.Triple != nil:
		t, ok := instantiate(pos.Triple, b)
		if !ok {
			return resolved{id: store.Any}, nil
		}
		term = t
	default:
		term = pos.Term
	}
	id, found, err := r.e.src.Lookup(term)
	if err != nil {
		return resolved{}, err
	}
	return resolved{id: id, term: term, missing: !found}, nil
}

// instantiate builds the triple term of a quoted pattern whose variables
// are all bound in b.
func instantiate(tp *algebra.TriplePattern, b *binding.Binding) (*rdf.TripleTerm, bool) {
	var parts [3]rdf.Term
	for i, pos := range tp.Positions() {
		switch {
		case pos.Variable != nil:
			v, ok := b.Get(pos.Variable.Name)
			if !ok {
				return nil, false
			}
			parts[i] = v
		case pos.Triple != nil:
			t, ok := instantiate(pos.Triple, b)
			if !ok {
				return nil, false
			}
			parts[i] = t
		default:
			parts[i] = pos.Term
		}
	}
	return rdf.NewTripleTerm(parts[0], parts[1], parts[2]), true
}

// bindID binds a free position to a stored id. It reports false when the
// value conflicts with b, which happens when a variable repeats inside
// one pattern or a quoted pattern does not unify.
func (r *run) bindID(b *binding.Binding, pos algebra.TermOrVariable, id store.TermID) (bool, error) {
	switch {
	case pos.Variable != nil:
		name := pos.Variable.Name
		if prev, ok := b.ID(name); ok {
			return prev == id, nil
		}
		term, err := r.decode(id)
		if err != nil {
			return false, err
		}
		if prev, ok := b.Get(name); ok {
			return prev.Equals(term), nil
		}
		b.SetWithID(name, term, id)
		return true, nil
	case pos.Triple != nil:
		term, err := r.decode(id)
		if err != nil {
			return false, err
		}
		tt, ok := term.(*rdf.TripleTerm)
		if !ok {
			return false, nil
		}
		return unify(pos.Triple, tt, b), nil
	}
	return true, nil
}

// unify matches a quoted pattern against a triple term, binding its free
// variables in b.
func unify(tp *algebra.TriplePattern, tt *rdf.TripleTerm, b *binding.Binding) bool {
	values := [3]rdf.Term{tt.Subject, tt.Predicate, tt.Object}
	for i, pos := range tp.Positions() {
		v := values[i]
		switch {
		case pos.Variable != nil:
			if prev, ok := b.Get(pos.Variable.Name); ok {
				if !prev.Equals(v) {
					return false
				}
				continue
			}
			b.Set(pos.Variable.Name, v)
		case pos.Triple != nil:
			inner, ok := v.(*rdf.TripleTerm)
			if !ok || !unify(pos.Triple, inner, b) {
				return false
			}
		default:
			if !pos.Term.Equals(v) {
				return false
			}
		}
	}
	return true
}

func (r *run) evalBGP(n *algebra.BGP, sc scope) BindingIterator {
	if len(n.Patterns) == 0 {
		return newRowsIterator(sc.start())
	}
	return &bgpIterator{r: r, patterns: n.Patterns, graph: sc.graph, seed: sc.start()}
}

// bgpIterator is a nested index join: a depth-first stack of scans where
// the scan at depth i runs pattern i with the mapping built by the scans
// above it substituted in.
type bgpIterator struct {
	r        *run
	patterns []*algebra.TriplePattern
	graph    store.TermID
	seed     *binding.Binding

	started bool
	stack   []bgpFrame
	current *binding.Binding
	err     error
}

type bgpFrame struct {
	quads store.QuadIterator
	in    *binding.Binding
	// free marks the positions bound by this scan.
	free [3]bool
}

func (it *bgpIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.started {
		it.started = true
		if err := it.push(it.seed); err != nil {
			it.err = err
			return false
		}
	}
	for len(it.stack) > 0 {
		depth := len(it.stack) - 1
		top := &it.stack[depth]
		if !top.quads.Next() {
			if err := top.quads.Err(); err != nil {
				it.err = err
				return false
			}
			_ = top.quads.Close() // #nosec G104 - read-only iterator
			it.stack = it.stack[:depth]
			continue
		}
		b, ok, err := it.extend(depth, top, top.quads.Quad())
		if err != nil {
			it.err = err
			return false
		}
		if !ok {
			continue
		}
		if depth == len(it.patterns)-1 {
			it.current = b
			return true
		}
		if err := it.push(b); err != nil {
			it.err = err
			return false
		}
	}
	return false
}

// push opens the scan for the next pattern under b. A pattern whose
// constants are unknown to the dictionary cannot match, so no scan is
// opened and the search backtracks.
func (it *bgpIterator) push(b *binding.Binding) error {
	tp := it.patterns[len(it.stack)]
	var frame bgpFrame
	pattern := store.NewPattern(store.Any, store.Any, store.Any, it.graph)
	for i, pos := range tp.Positions() {
		res, err := it.r.resolve(pos, b)
		if err != nil {
			return err
		}
		if res.missing {
			return nil
		}
		pattern[i] = res.id
		frame.free[i] = res.free()
	}
	frame.quads = it.r.e.src.QuadsMatching(pattern)
	frame.in = b
	it.stack = append(it.stack, frame)
	return nil
}

func (it *bgpIterator) extend(depth int, f *bgpFrame, q store.EncodedQuad) (*binding.Binding, bool, error) {
	b := f.in.Clone()
	positions := it.patterns[depth].Positions()
	for i := range positions {
		if !f.free[i] {
			continue
		}
		ok, err := it.r.bindID(b, positions[i], q[i])
		if err != nil || !ok {
			return nil, false, err
		}
	}
	return b, true, nil
}

func (it *bgpIterator) Binding() *binding.Binding { return it.current }
func (it *bgpIterator) Err() error                { return it.err }

func (it *bgpIterator) Close() error {
	for _, f := range it.stack {
		_ = f.quads.Close() // #nosec G104 - read-only iterator
	}
	it.stack = nil
	return nil
}
