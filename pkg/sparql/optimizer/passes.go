package optimizer

import (
	"strings"

	"github.com/aleksaelezovic/quadra/pkg/sparql/algebra"
	"github.com/aleksaelezovic/quadra/pkg/sparql/binding"
	"github.com/aleksaelezovic/quadra/pkg/sparql/evaluator"
)

// normalizeJoins merges joined BGPs and drops empty BGP operands, which
// are the join identity.
func normalizeJoins(n algebra.Node) algebra.Node {
	j, ok := n.(*algebra.Join)
	if !ok {
		return n
	}
	left, lok := j.Left.(*algebra.BGP)
	right, rok := j.Right.(*algebra.BGP)
	switch {
	case lok && rok:
		patterns := make([]*algebra.TriplePattern, 0, len(left.Patterns)+len(right.Patterns))
		patterns = append(patterns, left.Patterns...)
		patterns = append(patterns, right.Patterns...)
		return &algebra.BGP{Patterns: patterns}
	case lok && len(left.Patterns) == 0:
		return j.Right
	case rok && len(right.Patterns) == 0:
		return j.Left
	}
	return n
}

// collapsePath rewrites paths made only of links into triple patterns.
// A chain of several links needs fresh variables for the intermediate
// nodes, and DISTINCT over the endpoints keeps path set semantics.
func (r *rewriter) collapsePath(n algebra.Node) algebra.Node {
	p, ok := n.(*algebra.Path)
	if !ok {
		return n
	}
	steps, ok := flattenPath(p.Path, false)
	if !ok {
		return n
	}
	if len(steps) == 1 {
		return &algebra.BGP{Patterns: []*algebra.TriplePattern{steps[0].pattern(p.Subject, p.Object)}}
	}

	patterns := make([]*algebra.TriplePattern, len(steps))
	from := p.Subject
	for i, s := range steps {
		to := p.Object
		if i < len(steps)-1 {
			to = r.freshVar()
		}
		patterns[i] = s.pattern(from, to)
		from = to
	}
	endpoints := algebra.Variables(&algebra.Path{Subject: p.Subject, Path: p.Path, Object: p.Object})
	return &algebra.Distinct{Inner: &algebra.Project{
		Inner:     &algebra.BGP{Patterns: patterns},
		Variables: algebra.Vars(endpoints...),
	}}
}

type pathStep struct {
	link    *algebra.PathLink
	inverse bool
}

func (s pathStep) pattern(from, to algebra.TermOrVariable) *algebra.TriplePattern {
	pred := algebra.Const(s.link.Predicate)
	if s.inverse {
		return algebra.NewTriplePattern(to, pred, from)
	}
	return algebra.NewTriplePattern(from, pred, to)
}

// flattenPath lists the steps of a sequence of links and inverse links.
// It fails on any other path operator.
func flattenPath(p algebra.PathExpression, inverse bool) ([]pathStep, bool) {
	switch pp := p.(type) {
	case *algebra.PathLink:
		return []pathStep{{link: pp, inverse: inverse}}, true
	case *algebra.PathInverse:
		return flattenPath(pp.Path, !inverse)
	case *algebra.PathSequence:
		first, second := pp.Left, pp.Right
		if inverse {
			first, second = second, first
		}
		a, ok := flattenPath(first, inverse)
		if !ok {
			return nil, false
		}
		b, ok := flattenPath(second, inverse)
		if !ok {
			return nil, false
		}
		return append(a, b...), true
	}
	return nil, false
}

// pushFilter moves a filter closer to the data it tests.
func pushFilter(n algebra.Node) algebra.Node {
	f, ok := n.(*algebra.Filter)
	if !ok || algebra.HasExists(f.Expression) {
		return n
	}
	vars := algebra.ExpressionVariables(f.Expression)
	if len(vars) == 0 {
		return n
	}
	wrap := func(inner algebra.Node) algebra.Node {
		return pushFilter(&algebra.Filter{Expression: f.Expression, Inner: inner})
	}

	switch in := f.Inner.(type) {
	case *algebra.Union:
		return &algebra.Union{Left: wrap(in.Left), Right: wrap(in.Right)}
	case *algebra.Join:
		if covers(algebra.CertainVariables(in.Left), vars) {
			return &algebra.Join{Left: wrap(in.Left), Right: in.Right}
		}
	case *algebra.LeftJoin:
		if covers(algebra.CertainVariables(in.Left), vars) {
			return &algebra.LeftJoin{Left: wrap(in.Left), Right: in.Right, Expression: in.Expression}
		}
	case *algebra.Extend:
		if !contains(vars, in.Variable.Name) {
			return &algebra.Extend{Inner: wrap(in.Inner), Variable: in.Variable, Expression: in.Expression}
		}
	case *algebra.Graph:
		if in.Name.Variable == nil || !contains(vars, in.Name.Variable.Name) {
			return &algebra.Graph{Name: in.Name, Inner: wrap(in.Inner)}
		}
	}
	return n
}

func covers(set map[string]bool, vars []string) bool {
	for _, v := range vars {
		if !set[v] {
			return false
		}
	}
	return true
}

func contains(vars []string, name string) bool {
	for _, v := range vars {
		if v == name {
			return true
		}
	}
	return false
}

// volatile functions have a different value per call or per query run,
// so a filter on them cannot be decided while planning.
var volatile = map[string]bool{
	"RAND": true, "NOW": true, "UUID": true, "STRUUID": true, "BNODE": true,
}

// constantFilter decides filters that read no variable.
func constantFilter(n algebra.Node) algebra.Node {
	f, ok := n.(*algebra.Filter)
	if !ok || algebra.HasExists(f.Expression) || len(algebra.ExpressionVariables(f.Expression)) > 0 {
		return n
	}
	isVolatile := false
	algebra.Walk(f.Expression, func(e algebra.Expression) {
		if call, ok := e.(*algebra.FunctionCallExpression); ok && volatile[strings.ToUpper(call.Function)] {
			isVolatile = true
		}
	})
	if isVolatile {
		return n
	}
	ok, err := evaluator.NewEvaluator().EvaluateBool(f.Expression, binding.NewBinding())
	if err == nil && ok {
		return f.Inner
	}
	return &algebra.Values{}
}

// Position weights for BGP ordering: a bound subject narrows a scan the
// most, then a bound object, then a bound predicate.
const (
	subjectWeight   = 0.01
	objectWeight    = 0.1
	predicateWeight = 0.5
)

// reorderBGP orders triple patterns greedily: each step takes the most
// selective remaining pattern given the variables bound by the patterns
// already taken. Ties keep the original order, which makes the pass
// idempotent.
func reorderBGP(n algebra.Node) algebra.Node {
	b, ok := n.(*algebra.BGP)
	if !ok || len(b.Patterns) < 2 {
		return n
	}
	remaining := append([]*algebra.TriplePattern(nil), b.Patterns...)
	ordered := make([]*algebra.TriplePattern, 0, len(remaining))
	bound := make(map[string]bool)
	for len(remaining) > 0 {
		best := 0
		bestScore := selectivity(remaining[0], bound)
		for i := 1; i < len(remaining); i++ {
			if s := selectivity(remaining[i], bound); s < bestScore {
				best, bestScore = i, s
			}
		}
		tp := remaining[best]
		ordered = append(ordered, tp)
		remaining = append(remaining[:best], remaining[best+1:]...)
		for _, v := range algebra.Variables(&algebra.BGP{Patterns: []*algebra.TriplePattern{tp}}) {
			bound[v] = true
		}
	}
	return &algebra.BGP{Patterns: ordered}
}

// selectivity estimates the fraction of the store a pattern matches.
// Lower is more selective.
func selectivity(tp *algebra.TriplePattern, bound map[string]bool) float64 {
	s := 1.0
	if isBound(tp.Subject, bound) {
		s *= subjectWeight
	}
	if isBound(tp.Predicate, bound) {
		s *= predicateWeight
	}
	if isBound(tp.Object, bound) {
		s *= objectWeight
	}
	return s
}

func isBound(pos algebra.TermOrVariable, bound map[string]bool) bool {
	switch {
	case pos.Variable != nil:
		return bound[pos.Variable.Name]
	case pos.Triple != nil:
		for _, p := range pos.Triple.Positions() {
			if !isBound(p, bound) {
				return false
			}
		}
	}
	return true
}

// removeRedundancy drops operators that cannot change their input.
func removeRedundancy(n algebra.Node) algebra.Node {
	switch x := n.(type) {
	case *algebra.Distinct:
		if inner, ok := x.Inner.(*algebra.Distinct); ok {
			return inner
		}
	case *algebra.Reduced:
		if inner, ok := x.Inner.(*algebra.Distinct); ok {
			return inner
		}
	case *algebra.Project:
		if inner, ok := x.Inner.(*algebra.Project); ok {
			keep := make(map[string]bool, len(inner.Variables))
			for _, v := range inner.Variables {
				keep[v.Name] = true
			}
			var vars []*algebra.Variable
			for _, v := range x.Variables {
				if keep[v.Name] {
					vars = append(vars, v)
				}
			}
			return &algebra.Project{Inner: inner.Inner, Variables: vars}
		}
		projected := make([]string, len(x.Variables))
		for i, v := range x.Variables {
			projected[i] = v.Name
		}
		if covers(toSet(projected), algebra.Variables(x.Inner)) {
			return x.Inner
		}
	case *algebra.Slice:
		if x.Offset == 0 && x.Limit == algebra.NoLimit {
			return x.Inner
		}
	}
	return n
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
