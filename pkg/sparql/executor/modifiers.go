package executor

import (
	"fmt"

	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/aleksaelezovic/quadra/pkg/sparql/algebra"
	"github.com/aleksaelezovic/quadra/pkg/sparql/binding"
	"github.com/aleksaelezovic/quadra/pkg/sparql/evaluator"
	"github.com/aleksaelezovic/quadra/pkg/store"
)

// filterIterator keeps the mappings for which expr is true. False and
// evaluation errors drop the mapping; any other error ends iteration.
type filterIterator struct {
	input BindingIterator
	expr  algebra.Expression
	ev    *evaluator.Evaluator
	err   error
}

func (it *filterIterator) Next() bool {
	for it.err == nil && it.input.Next() {
		ok, err := it.ev.EvaluateBool(it.expr, it.input.Binding())
		if err != nil && !evaluator.IsEvaluationError(err) {
			it.err = err
			return false
		}
		if ok {
			return true
		}
	}
	return false
}

func (it *filterIterator) Binding() *binding.Binding { return it.input.Binding() }

func (it *filterIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.input.Err()
}

func (it *filterIterator) Close() error { return it.input.Close() }

// extendIterator binds name to the value of expr. An evaluation error
// leaves the variable unbound. name is never bound by the input.
type extendIterator struct {
	input   BindingIterator
	name    string
	expr    algebra.Expression
	ev      *evaluator.Evaluator
	current *binding.Binding
	err     error
}

func (it *extendIterator) Next() bool {
	if it.err != nil || !it.input.Next() {
		return false
	}
	b := it.input.Binding()
	v, err := it.ev.Evaluate(it.expr, b)
	switch {
	case err == nil:
		b = b.Clone()
		b.Set(it.name, v)
	case !evaluator.IsEvaluationError(err):
		it.err = err
		return false
	}
	it.current = b
	return true
}

func (it *extendIterator) Binding() *binding.Binding { return it.current }

func (it *extendIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.input.Err()
}

func (it *extendIterator) Close() error { return it.input.Close() }

// unionIterator concatenates its branches, opening each one only when the
// previous is exhausted.
type unionIterator struct {
	r        *run
	branches []algebra.Node
	sc       scope
	cur      BindingIterator
	err      error
}

func (it *unionIterator) Next() bool {
	for it.err == nil {
		if it.cur != nil {
			if it.cur.Next() {
				return true
			}
			it.err = it.cur.Err()
			_ = it.cur.Close() // #nosec G104 - read-only iterator
			it.cur = nil
			continue
		}
		if len(it.branches) == 0 {
			return false
		}
		it.cur = it.r.eval(it.branches[0], it.sc)
		it.branches = it.branches[1:]
	}
	return false
}

func (it *unionIterator) Binding() *binding.Binding { return it.cur.Binding() }
func (it *unionIterator) Err() error                { return it.err }

func (it *unionIterator) Close() error {
	if it.cur != nil {
		return it.cur.Close()
	}
	return nil
}

func (r *run) evalGraph(n *algebra.Graph, sc scope) BindingIterator {
	if n.Name.Variable == nil {
		res, err := r.resolve(n.Name, binding.NewBinding())
		if err != nil {
			return errIterator(err)
		}
		if res.missing {
			return newRowsIterator()
		}
		return r.eval(n.Inner, scope{graph: res.id, seed: sc.seed})
	}

	name := n.Name.Variable.Name
	seed := sc.start()
	if v, ok := seed.Get(name); ok {
		if _, isIRI := v.(*rdf.NamedNode); !isIRI {
			return newRowsIterator()
		}
		res, err := r.resolve(n.Name, seed)
		if err != nil {
			return errIterator(err)
		}
		if res.missing {
			return newRowsIterator()
		}
		return r.eval(n.Inner, scope{graph: res.id, seed: seed})
	}

	graphs, err := r.e.src.NamedGraphs()
	if err != nil {
		return errIterator(err)
	}
	return &graphIterator{r: r, inner: n.Inner, name: name, seed: seed, graphs: graphs}
}

// graphIterator evaluates its pattern once per named graph, with the
// graph variable bound to the graph name.
type graphIterator struct {
	r      *run
	inner  algebra.Node
	name   string
	seed   *binding.Binding
	graphs []store.TermID

	cur     BindingIterator
	named   *binding.Binding
	current *binding.Binding
	err     error
}

func (it *graphIterator) Next() bool {
	for it.err == nil {
		if it.cur != nil {
			for it.cur.Next() {
				// The pattern may project the graph variable away.
				if m := it.cur.Binding().Merge(it.named); m != nil {
					it.current = m
					return true
				}
			}
			it.err = it.cur.Err()
			_ = it.cur.Close() // #nosec G104 - read-only iterator
			it.cur = nil
			continue
		}
		if len(it.graphs) == 0 {
			return false
		}
		g := it.graphs[0]
		it.graphs = it.graphs[1:]
		term, err := it.r.decode(g)
		if err != nil {
			it.err = err
			return false
		}
		it.named = binding.NewBinding()
		it.named.SetWithID(it.name, term, g)
		seed := it.seed.Clone()
		seed.SetWithID(it.name, term, g)
		it.cur = it.r.eval(it.inner, scope{graph: g, seed: seed})
	}
	return false
}

func (it *graphIterator) Binding() *binding.Binding { return it.current }
func (it *graphIterator) Err() error                { return it.err }

func (it *graphIterator) Close() error {
	if it.cur != nil {
		return it.cur.Close()
	}
	return nil
}

func (r *run) evalValues(n *algebra.Values, sc scope) BindingIterator {
	seed := sc.start()
	rows := make([]*binding.Binding, 0, len(n.Rows))
	for _, row := range n.Rows {
		b := binding.NewBinding()
		for i, v := range n.Variables {
			if i < len(row) && row[i] != nil {
				b.Set(v.Name, row[i])
			}
		}
		if m := seed.Merge(b); m != nil {
			rows = append(rows, m)
		}
	}
	return newRowsIterator(rows...)
}

type projectIterator struct {
	input   BindingIterator
	names   []string
	current *binding.Binding
}

func (it *projectIterator) Next() bool {
	if !it.input.Next() {
		return false
	}
	it.current = it.input.Binding().Project(it.names)
	return true
}

func (it *projectIterator) Binding() *binding.Binding { return it.current }
func (it *projectIterator) Err() error                { return it.input.Err() }
func (it *projectIterator) Close() error              { return it.input.Close() }

// distinctIterator removes duplicates by hashing mapping content.
type distinctIterator struct {
	input BindingIterator
	seen  map[string]struct{}
}

func (it *distinctIterator) Next() bool {
	for it.input.Next() {
		key := it.input.Binding().Key(nil)
		if _, dup := it.seen[key]; dup {
			continue
		}
		it.seen[key] = struct{}{}
		return true
	}
	return false
}

func (it *distinctIterator) Binding() *binding.Binding { return it.input.Binding() }
func (it *distinctIterator) Err() error                { return it.input.Err() }
func (it *distinctIterator) Close() error              { return it.input.Close() }

// reducedIterator drops a mapping equal to the one just before it.
type reducedIterator struct {
	input BindingIterator
	last  string
	any   bool
}

func (it *reducedIterator) Next() bool {
	for it.input.Next() {
		key := it.input.Binding().Key(nil)
		if it.any && key == it.last {
			continue
		}
		it.last, it.any = key, true
		return true
	}
	return false
}

func (it *reducedIterator) Binding() *binding.Binding { return it.input.Binding() }
func (it *reducedIterator) Err() error                { return it.input.Err() }
func (it *reducedIterator) Close() error              { return it.input.Close() }

// sliceIterator applies OFFSET and LIMIT. It stops pulling its input once
// the limit is reached.
type sliceIterator struct {
	input   BindingIterator
	offset  int
	limit   int
	skipped bool
	emitted int
}

func (it *sliceIterator) Next() bool {
	if it.limit != algebra.NoLimit && it.emitted >= it.limit {
		return false
	}
	if !it.skipped {
		it.skipped = true
		for i := 0; i < it.offset; i++ {
			if !it.input.Next() {
				return false
			}
		}
	}
	if !it.input.Next() {
		return false
	}
	it.emitted++
	return true
}

func (it *sliceIterator) Binding() *binding.Binding { return it.input.Binding() }
func (it *sliceIterator) Err() error                { return it.input.Err() }
func (it *sliceIterator) Close() error              { return it.input.Close() }

func (r *run) evalService(n *algebra.Service, sc scope) BindingIterator {
	seed := sc.start()
	it, err := r.callService(n, seed)
	if err != nil {
		if n.Silent {
			return newRowsIterator(seed)
		}
		return errIterator(err)
	}
	return &serviceIterator{input: it, seed: seed, silent: n.Silent}
}

func (r *run) callService(n *algebra.Service, seed *binding.Binding) (BindingIterator, error) {
	if r.e.opts.service == nil {
		return nil, ErrNoServiceHandler
	}
	var name rdf.Term = n.Name.Term
	if n.Name.Variable != nil {
		v, ok := seed.Get(n.Name.Variable.Name)
		if !ok {
			return nil, ErrUnboundServiceName
		}
		name = v
	}
	endpoint, ok := name.(*rdf.NamedNode)
	if !ok {
		return nil, fmt.Errorf("executor: service name %s is not an IRI", name)
	}
	return r.e.opts.service.Handle(r.ctx, endpoint, n.Inner)
}

// serviceIterator joins remote mappings with the local seed. With SILENT
// a remote failure before the first mapping yields one empty mapping.
type serviceIterator struct {
	input   BindingIterator
	seed    *binding.Binding
	silent  bool
	emitted bool
	current *binding.Binding
	done    bool
}

func (it *serviceIterator) Next() bool {
	if it.done {
		return false
	}
	for it.input.Next() {
		if m := it.seed.Merge(it.input.Binding()); m != nil {
			it.current = m
			it.emitted = true
			return true
		}
	}
	it.done = true
	if it.silent && !it.emitted && it.input.Err() != nil {
		it.current = it.seed
		it.emitted = true
		return true
	}
	return false
}

func (it *serviceIterator) Binding() *binding.Binding { return it.current }

func (it *serviceIterator) Err() error {
	if it.silent {
		return nil
	}
	return it.input.Err()
}

func (it *serviceIterator) Close() error { return it.input.Close() }
