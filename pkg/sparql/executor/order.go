package executor

import (
	"slices"
	"strings"

	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/aleksaelezovic/quadra/pkg/sparql/algebra"
	"github.com/aleksaelezovic/quadra/pkg/sparql/binding"
	"github.com/aleksaelezovic/quadra/pkg/sparql/evaluator"
)

// orderByIterator materializes and sorts its input. Condition values are
// computed once per mapping; a failed evaluation sorts as unbound.
type orderByIterator struct {
	input      BindingIterator
	conditions []*algebra.OrderCondition
	ev         *evaluator.Evaluator

	rows    []sortRow
	pos     int
	sorted  bool
	current *binding.Binding
	err     error
}

type sortRow struct {
	b    *binding.Binding
	keys []rdf.Term
	tie  string
}

func (it *orderByIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.sorted {
		it.sorted = true
		if err := it.sort(); err != nil {
			it.err = err
			return false
		}
	}
	if it.pos >= len(it.rows) {
		return false
	}
	it.current = it.rows[it.pos].b
	it.rows[it.pos] = sortRow{}
	it.pos++
	return true
}

func (it *orderByIterator) sort() error {
	for it.input.Next() {
		b := it.input.Binding()
		row := sortRow{b: b, keys: make([]rdf.Term, len(it.conditions)), tie: b.Key(nil)}
		for i, c := range it.conditions {
			v, err := it.ev.Evaluate(c.Expression, b)
			if err != nil && !evaluator.IsEvaluationError(err) {
				return err
			}
			row.keys[i] = v
		}
		it.rows = append(it.rows, row)
	}
	if err := it.input.Err(); err != nil {
		return err
	}
	slices.SortStableFunc(it.rows, func(a, b sortRow) int {
		for i, c := range it.conditions {
			cmp := evaluator.OrderCompare(a.keys[i], b.keys[i])
			if !c.Ascending {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp
			}
		}
		return strings.Compare(a.tie, b.tie)
	})
	return nil
}

func (it *orderByIterator) Binding() *binding.Binding { return it.current }

func (it *orderByIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.input.Err()
}

func (it *orderByIterator) Close() error { return it.input.Close() }
