package executor

import (
	"github.com/aleksaelezovic/quadra/pkg/sparql/algebra"
	"github.com/aleksaelezovic/quadra/pkg/sparql/binding"
	"github.com/aleksaelezovic/quadra/pkg/sparql/path"
	"github.com/aleksaelezovic/quadra/pkg/store"
)

func (r *run) evalPath(n *algebra.Path, sc scope) BindingIterator {
	seed := sc.start()
	subj, err := r.resolve(n.Subject, seed)
	if err != nil {
		return errIterator(err)
	}
	obj, err := r.resolve(n.Object, seed)
	if err != nil {
		return errIterator(err)
	}

	switch {
	case subj.missing || obj.missing:
		return r.missingEndpoint(n, seed, subj, obj)

	case !subj.free() && !obj.free():
		ok, err := r.paths.Exists(r.ctx, n.Path, subj.id, obj.id, sc.graph)
		if err != nil {
			return errIterator(err)
		}
		if !ok {
			return newRowsIterator()
		}
		return newRowsIterator(seed)

	case !subj.free():
		nodes := r.paths.Objects(r.ctx, n.Path, subj.id, sc.graph)
		return &pathIterator{r: r, n: n, seed: seed, pairs: &fixedStart{nodes: nodes, start: subj.id}, bindObject: true}

	case !obj.free():
		nodes := r.paths.Subjects(r.ctx, n.Path, obj.id, sc.graph)
		return &pathIterator{r: r, n: n, seed: seed, pairs: &fixedEnd{nodes: nodes, end: obj.id}, bindSubject: true}
	}
	return &pathIterator{r: r, n: n, seed: seed, pairs: r.paths.Pairs(r.ctx, n.Path, sc.graph), bindSubject: true, bindObject: true}
}

// missingEndpoint handles a bound endpoint that is not in the dictionary.
// Only a zero-length match is possible, and it pairs the value with itself.
func (r *run) missingEndpoint(n *algebra.Path, seed *binding.Binding, subj, obj resolved) BindingIterator {
	if !zeroLength(n.Path) {
		return newRowsIterator()
	}
	switch {
	case !subj.free() && !obj.free():
		if subj.term.Equals(obj.term) {
			return newRowsIterator(seed)
		}
	case !subj.free():
		if n.Object.Variable != nil {
			seed.Set(n.Object.Variable.Name, subj.term)
			return newRowsIterator(seed)
		}
	case !obj.free():
		if n.Subject.Variable != nil {
			seed.Set(n.Subject.Variable.Name, obj.term)
			return newRowsIterator(seed)
		}
	}
	return newRowsIterator()
}

// zeroLength reports whether p matches the empty path.
func zeroLength(p algebra.PathExpression) bool {
	switch pp := p.(type) {
	case *algebra.PathZeroOrMore, *algebra.PathZeroOrOne:
		return true
	case *algebra.PathInverse:
		return zeroLength(pp.Path)
	case *algebra.PathSequence:
		return zeroLength(pp.Left) && zeroLength(pp.Right)
	case *algebra.PathAlternative:
		return zeroLength(pp.Left) || zeroLength(pp.Right)
	}
	return false
}

// pathIterator turns path endpoint pairs into mappings.
type pathIterator struct {
	r     *run
	n     *algebra.Path
	seed  *binding.Binding
	pairs path.PairIterator

	bindSubject, bindObject bool

	current *binding.Binding
	err     error
}

func (it *pathIterator) Next() bool {
	for it.err == nil && it.pairs.Next() {
		start, end := it.pairs.Pair()
		b := it.seed.Clone()
		ok := true
		var err error
		if it.bindSubject {
			ok, err = it.r.bindID(b, it.n.Subject, start)
		}
		if ok && err == nil && it.bindObject {
			ok, err = it.r.bindID(b, it.n.Object, end)
		}
		if err != nil {
			it.err = err
			return false
		}
		if ok {
			it.current = b
			return true
		}
	}
	return false
}

func (it *pathIterator) Binding() *binding.Binding { return it.current }

func (it *pathIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.pairs.Err()
}

func (it *pathIterator) Close() error { return it.pairs.Close() }

// fixedStart pairs a fixed start node with every endpoint.
type fixedStart struct {
	nodes path.NodeIterator
	start store.TermID
}

func (f *fixedStart) Next() bool                         { return f.nodes.Next() }
func (f *fixedStart) Pair() (store.TermID, store.TermID) { return f.start, f.nodes.Node() }
func (f *fixedStart) Err() error                         { return f.nodes.Err() }
func (f *fixedStart) Close() error                       { return f.nodes.Close() }

// fixedEnd pairs every start node with a fixed end.
type fixedEnd struct {
	nodes path.NodeIterator
	end   store.TermID
}

func (f *fixedEnd) Next() bool                         { return f.nodes.Next() }
func (f *fixedEnd) Pair() (store.TermID, store.TermID) { return f.nodes.Node(), f.end }
func (f *fixedEnd) Err() error                         { return f.nodes.Err() }
func (f *fixedEnd) Close() error                       { return f.nodes.Close() }
