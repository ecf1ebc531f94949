package executor

import (
	"strings"

	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/aleksaelezovic/quadra/pkg/sparql/algebra"
	"github.com/aleksaelezovic/quadra/pkg/sparql/binding"
	"github.com/aleksaelezovic/quadra/pkg/sparql/evaluator"
)

func (r *run) evalGroup(n *algebra.Group, sc scope) BindingIterator {
	by := make([]string, len(n.By))
	for i, v := range n.By {
		by[i] = v.Name
	}
	return &groupIterator{
		input:      r.eval(n.Inner, sc),
		by:         by,
		aggregates: n.Aggregates,
		ev:         r.expressions(sc.graph),
	}
}

// groupIterator partitions its whole input by the grouping variables,
// then emits one mapping per partition in order of first appearance.
type groupIterator struct {
	input      BindingIterator
	by         []string
	aggregates []*algebra.AggregateBinding
	ev         *evaluator.Evaluator

	rows    []*binding.Binding
	pos     int
	built   bool
	current *binding.Binding
	err     error
}

func (it *groupIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.built {
		it.built = true
		if err := it.build(); err != nil {
			it.err = err
			return false
		}
	}
	if it.pos >= len(it.rows) {
		return false
	}
	it.current = it.rows[it.pos]
	it.pos++
	return true
}

func (it *groupIterator) build() error {
	var order []string
	groups := make(map[string][]*binding.Binding)
	for it.input.Next() {
		b := it.input.Binding()
		key := b.Key(it.by)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], b)
	}
	if err := it.input.Err(); err != nil {
		return err
	}
	// Without GROUP BY the input is one group, even when empty.
	if len(it.by) == 0 && len(order) == 0 {
		order = append(order, "")
		groups[""] = nil
	}

	for _, key := range order {
		members := groups[key]
		out := binding.NewBinding()
		if len(members) > 0 {
			out = members[0].Project(it.by)
		}
		for _, agg := range it.aggregates {
			v, err := it.aggregate(agg.Aggregate, members)
			if err != nil {
				if !evaluator.IsEvaluationError(err) {
					return err
				}
				continue
			}
			if v != nil {
				out.Set(agg.Variable.Name, v)
			}
		}
		it.rows = append(it.rows, out)
	}
	return nil
}

// aggregate computes one set function over a group. A nil term with a nil
// error leaves the variable unbound.
func (it *groupIterator) aggregate(agg *algebra.AggregateExpression, members []*binding.Binding) (rdf.Term, error) {
	if agg.Function == algebra.AggCount && agg.Expression == nil {
		n := len(members)
		if agg.Distinct {
			seen := make(map[string]struct{}, len(members))
			for _, b := range members {
				seen[b.Key(nil)] = struct{}{}
			}
			n = len(seen)
		}
		return rdf.NewIntegerLiteral(int64(n)), nil
	}

	values, err := it.values(agg, members)
	if err != nil {
		return nil, err
	}
	var acc accumulator
	switch agg.Function {
	case algebra.AggCount:
		acc = &countAcc{}
	case algebra.AggSum:
		acc = &sumAcc{sum: rdf.NewIntegerLiteral(0)}
	case algebra.AggAvg:
		acc = &avgAcc{sum: rdf.NewIntegerLiteral(0)}
	case algebra.AggMin:
		acc = &extremeAcc{sign: -1}
	case algebra.AggMax:
		acc = &extremeAcc{sign: 1}
	case algebra.AggSample:
		acc = &sampleAcc{}
	case algebra.AggGroupConcat:
		sep := " "
		if agg.Separator != nil {
			sep = *agg.Separator
		}
		acc = &concatAcc{sep: sep}
	default:
		return nil, evaluator.ErrUnknownFunction
	}
	for _, v := range values {
		acc.add(v)
	}
	return acc.result()
}

// values evaluates the aggregate argument over the group. Failed
// evaluations yield nil entries; DISTINCT removes repeated values.
func (it *groupIterator) values(agg *algebra.AggregateExpression, members []*binding.Binding) ([]rdf.Term, error) {
	values := make([]rdf.Term, 0, len(members))
	var seen map[string]struct{}
	if agg.Distinct {
		seen = make(map[string]struct{}, len(members))
	}
	for _, b := range members {
		v, err := it.ev.Evaluate(agg.Expression, b)
		if err != nil {
			if !evaluator.IsEvaluationError(err) {
				return nil, err
			}
			v = nil
		}
		if seen != nil {
			key := binding.TermKey(v)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		values = append(values, v)
	}
	return values, nil
}

// accumulator folds aggregate inputs. A nil input is an evaluation error
// for that member.
type accumulator interface {
	add(v rdf.Term)
	result() (rdf.Term, error)
}

type countAcc struct{ n int64 }

func (a *countAcc) add(v rdf.Term) {
	if v != nil {
		a.n++
	}
}

func (a *countAcc) result() (rdf.Term, error) { return rdf.NewIntegerLiteral(a.n), nil }

// sumAcc fails as a whole once any input is not numeric.
type sumAcc struct {
	sum rdf.Term
	err error
}

func (a *sumAcc) add(v rdf.Term) {
	if a.err != nil {
		return
	}
	if v == nil {
		a.err = evaluator.ErrTypeError
		return
	}
	a.sum, a.err = evaluator.Arithmetic(algebra.OpAdd, a.sum, v)
}

func (a *sumAcc) result() (rdf.Term, error) {
	if a.err != nil {
		return nil, &evaluator.EvaluationError{Kind: evaluator.ErrTypeError, Msg: "SUM over a non-numeric value"}
	}
	return a.sum, nil
}

type avgAcc struct {
	sum rdf.Term
	n   int64
	err error
}

func (a *avgAcc) add(v rdf.Term) {
	if a.err != nil {
		return
	}
	if v == nil {
		a.err = evaluator.ErrTypeError
		return
	}
	a.sum, a.err = evaluator.Arithmetic(algebra.OpAdd, a.sum, v)
	a.n++
}

func (a *avgAcc) result() (rdf.Term, error) {
	if a.err != nil {
		return nil, &evaluator.EvaluationError{Kind: evaluator.ErrTypeError, Msg: "AVG over a non-numeric value"}
	}
	if a.n == 0 {
		return rdf.NewIntegerLiteral(0), nil
	}
	return evaluator.Arithmetic(algebra.OpDivide, a.sum, rdf.NewIntegerLiteral(a.n))
}

// extremeAcc keeps the least (sign -1) or greatest (sign 1) value in the
// ORDER BY order, skipping failed evaluations.
type extremeAcc struct {
	sign int
	best rdf.Term
}

func (a *extremeAcc) add(v rdf.Term) {
	if v == nil {
		return
	}
	if a.best == nil || evaluator.OrderCompare(v, a.best)*a.sign > 0 {
		a.best = v
	}
}

func (a *extremeAcc) result() (rdf.Term, error) { return a.best, nil }

type sampleAcc struct{ v rdf.Term }

func (a *sampleAcc) add(v rdf.Term) {
	if a.v == nil {
		a.v = v
	}
}

func (a *sampleAcc) result() (rdf.Term, error) { return a.v, nil }

// concatAcc joins string values. The result keeps a language tag only
// when every input carries the same one.
type concatAcc struct {
	sep   string
	parts []string
	lang  string
	mixed bool
	err   bool
}

func (a *concatAcc) add(v rdf.Term) {
	lit, ok := v.(*rdf.Literal)
	if !ok {
		a.err = true
		return
	}
	if len(a.parts) == 0 {
		a.lang = lit.Language
	} else if a.lang != lit.Language {
		a.mixed = true
	}
	a.parts = append(a.parts, lit.Value)
}

func (a *concatAcc) result() (rdf.Term, error) {
	if a.err {
		return nil, &evaluator.EvaluationError{Kind: evaluator.ErrTypeError, Msg: "GROUP_CONCAT over a non-literal"}
	}
	s := strings.Join(a.parts, a.sep)
	if a.lang != "" && !a.mixed {
		return rdf.NewLiteralWithLanguage(s, a.lang), nil
	}
	return rdf.NewLiteral(s), nil
}

func (it *groupIterator) Binding() *binding.Binding { return it.current }

func (it *groupIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.input.Err()
}

func (it *groupIterator) Close() error { return it.input.Close() }
