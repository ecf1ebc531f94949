package executor

import (
	"github.com/aleksaelezovic/quadra/pkg/sparql/algebra"
	"github.com/aleksaelezovic/quadra/pkg/sparql/binding"
	"github.com/aleksaelezovic/quadra/pkg/sparql/evaluator"
)

// sharedVariables lists the variables that may be bound on both sides.
func sharedVariables(left, right algebra.Node) []string {
	inRight := make(map[string]bool)
	for _, v := range algebra.Variables(right) {
		inRight[v] = true
	}
	var shared []string
	for _, v := range algebra.Variables(left) {
		if inRight[v] {
			shared = append(shared, v)
		}
	}
	return shared
}

// hashTable indexes materialized mappings by their values of vars.
// Mappings that leave one of vars unbound go to the fallback list, since
// they are compatible with any value.
type hashTable struct {
	vars     []string
	buckets  map[string][]*binding.Binding
	fallback []*binding.Binding
	all      []*binding.Binding
}

func newHashTable(rows []*binding.Binding, vars []string) *hashTable {
	h := &hashTable{vars: vars, buckets: make(map[string][]*binding.Binding), all: rows}
	for _, row := range rows {
		if key, ok := h.key(row); ok {
			h.buckets[key] = append(h.buckets[key], row)
		} else {
			h.fallback = append(h.fallback, row)
		}
	}
	return h
}

func (h *hashTable) key(b *binding.Binding) (string, bool) {
	for _, v := range h.vars {
		if _, ok := b.Get(v); !ok {
			return "", false
		}
	}
	return b.Key(h.vars), true
}

// candidates returns the rows that may be compatible with b, in two
// slices to avoid copying.
func (h *hashTable) candidates(b *binding.Binding) ([]*binding.Binding, []*binding.Binding) {
	if len(h.vars) == 0 {
		return h.all, nil
	}
	if key, ok := h.key(b); ok {
		return h.buckets[key], h.fallback
	}
	return h.all, nil
}

func (r *run) evalJoin(n *algebra.Join, sc scope) BindingIterator {
	return &joinIterator{
		left:  r.eval(n.Left, sc),
		build: func() BindingIterator { return r.eval(n.Right, sc) },
		vars:  sharedVariables(n.Left, n.Right),
	}
}

func (r *run) evalLeftJoin(n *algebra.LeftJoin, sc scope) BindingIterator {
	it := &joinIterator{
		left:     r.eval(n.Left, sc),
		build:    func() BindingIterator { return r.eval(n.Right, sc) },
		vars:     sharedVariables(n.Left, n.Right),
		optional: true,
		expr:     n.Expression,
	}
	if n.Expression != nil {
		it.ev = r.expressions(sc.graph)
	}
	return it
}

// joinIterator is a hash join. The right side is materialized once, on
// the first pull, and the left side streams. With optional set it is a
// left outer join whose matches must also satisfy expr.
type joinIterator struct {
	left  BindingIterator
	build func() BindingIterator
	vars  []string

	optional bool
	expr     algebra.Expression
	ev       *evaluator.Evaluator

	table   *hashTable
	cur     *binding.Binding
	cands   [2][]*binding.Binding
	matched bool
	result  *binding.Binding
	err     error
}

func (it *joinIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.table == nil {
		rows, err := drain(it.build())
		if err != nil {
			it.err = err
			return false
		}
		it.table = newHashTable(rows, it.vars)
	}
	for {
		for i := range it.cands {
			for len(it.cands[i]) > 0 {
				right := it.cands[i][0]
				it.cands[i] = it.cands[i][1:]
				merged := it.cur.Merge(right)
				if merged == nil {
					continue
				}
				if it.expr != nil {
					ok, err := it.ev.EvaluateBool(it.expr, merged)
					if err != nil && !evaluator.IsEvaluationError(err) {
						it.err = err
						return false
					}
					if !ok {
						continue
					}
				}
				it.matched = true
				it.result = merged
				return true
			}
		}
		if it.cur != nil && it.optional && !it.matched {
			it.result = it.cur
			it.cur = nil
			return true
		}
		if !it.left.Next() {
			return false
		}
		it.cur = it.left.Binding()
		it.matched = false
		it.cands[0], it.cands[1] = it.table.candidates(it.cur)
	}
}

func (it *joinIterator) Binding() *binding.Binding { return it.result }

func (it *joinIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.left.Err()
}

func (it *joinIterator) Close() error { return it.left.Close() }

func (r *run) evalMinus(n *algebra.Minus, sc scope) BindingIterator {
	left := r.eval(n.Left, sc)
	vars := sharedVariables(n.Left, n.Right)
	if len(vars) == 0 {
		// No mapping pair can share a variable, so nothing is removed.
		return left
	}
	return &minusIterator{left: left, build: func() BindingIterator { return r.eval(n.Right, sc) }, vars: vars}
}

// minusIterator drops the left mappings that are compatible with, and
// share a bound variable with, some right mapping.
type minusIterator struct {
	left  BindingIterator
	build func() BindingIterator
	vars  []string
	table *hashTable
	err   error
}

func (it *minusIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.table == nil {
		rows, err := drain(it.build())
		if err != nil {
			it.err = err
			return false
		}
		it.table = newHashTable(rows, it.vars)
	}
	for it.left.Next() {
		if !it.removed(it.left.Binding()) {
			return true
		}
	}
	return false
}

func (it *minusIterator) removed(b *binding.Binding) bool {
	bucket, fallback := it.table.candidates(b)
	for _, rows := range [][]*binding.Binding{bucket, fallback} {
		for _, right := range rows {
			// Values substituted from an enclosing EXISTS are outside
			// it.vars and do not count.
			if b.SharesVariable(right, it.vars) && b.Compatible(right) {
				return true
			}
		}
	}
	return false
}

func (it *minusIterator) Binding() *binding.Binding { return it.left.Binding() }

func (it *minusIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.left.Err()
}

func (it *minusIterator) Close() error { return it.left.Close() }
