// Package optimizer rewrites algebra trees into cheaper equivalent ones.
//
// The rewrite passes run in a fixed order, repeatedly, until a round
// leaves the canonical form of the tree unchanged. Every pass preserves
// the multiset of solutions, and running the optimizer on its own output
// returns the same tree.
package optimizer

import (
	"strconv"

	"github.com/aleksaelezovic/quadra/pkg/sparql/algebra"
)

// DefaultMaxRounds bounds the fixpoint iteration.
const DefaultMaxRounds = 32

// Optimizer optimizes algebra trees. It is stateless between calls and
// safe for concurrent use.
type Optimizer struct {
	maxRounds int
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithMaxRounds overrides DefaultMaxRounds.
func WithMaxRounds(n int) Option {
	return func(o *Optimizer) {
		if n > 0 {
			o.maxRounds = n
		}
	}
}

// NewOptimizer creates a new query optimizer
func NewOptimizer(opts ...Option) *Optimizer {
	o := &Optimizer{maxRounds: DefaultMaxRounds}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OptimizedQuery pairs a query with its rewritten form.
type OptimizedQuery struct {
	Original *algebra.Query
	Query    *algebra.Query
	// Rounds is the number of rewrite rounds run, including the final
	// round that changed nothing.
	Rounds int
}

// Optimize rewrites n with the default optimizer.
func Optimize(n algebra.Node) algebra.Node {
	root, _ := NewOptimizer().optimize(n)
	return root
}

// Optimize rewrites n until a fixpoint.
func (o *Optimizer) Optimize(n algebra.Node) algebra.Node {
	root, _ := o.optimize(n)
	return root
}

// OptimizeQuery rewrites the pattern of q. The template and resources are
// shared with the original.
func (o *Optimizer) OptimizeQuery(q *algebra.Query) *OptimizedQuery {
	out := *q
	var rounds int
	out.Pattern, rounds = o.optimize(q.Pattern)
	return &OptimizedQuery{Original: q, Query: &out, Rounds: rounds}
}

func (o *Optimizer) optimize(n algebra.Node) (algebra.Node, int) {
	r := &rewriter{}
	prev := algebra.Format(n)
	for round := 1; round <= o.maxRounds; round++ {
		n = r.round(n)
		cur := algebra.Format(n)
		if cur == prev {
			return n, round
		}
		prev = cur
	}
	return n, o.maxRounds
}

// rewriter carries the state of one Optimize call.
type rewriter struct {
	fresh int
}

func (r *rewriter) round(n algebra.Node) algebra.Node {
	n = transform(n, normalizeJoins)
	n = transform(n, r.collapsePath)
	n = transform(n, pushFilter)
	n = transform(n, constantFilter)
	n = transform(n, reorderBGP)
	n = transform(n, removeRedundancy)
	return n
}

// freshVar names an internal variable. The leading '#' cannot occur in a
// SPARQL variable name.
func (r *rewriter) freshVar() algebra.TermOrVariable {
	r.fresh++
	return algebra.Var("#seq" + strconv.Itoa(r.fresh))
}

// transform rebuilds n bottom-up, applying fn to every node after its
// children. Input nodes are never modified.
func transform(n algebra.Node, fn func(algebra.Node) algebra.Node) algebra.Node {
	return fn(mapChildren(n, func(c algebra.Node) algebra.Node { return transform(c, fn) }))
}

// mapChildren returns a copy of n with f applied to its direct children,
// or n itself for leaves.
func mapChildren(n algebra.Node, f func(algebra.Node) algebra.Node) algebra.Node {
	switch x := n.(type) {
	case *algebra.Join:
		c := *x
		c.Left, c.Right = f(x.Left), f(x.Right)
		return &c
	case *algebra.LeftJoin:
		c := *x
		c.Left, c.Right = f(x.Left), f(x.Right)
		return &c
	case *algebra.Filter:
		c := *x
		c.Inner = f(x.Inner)
		return &c
	case *algebra.Union:
		c := *x
		c.Left, c.Right = f(x.Left), f(x.Right)
		return &c
	case *algebra.Graph:
		c := *x
		c.Inner = f(x.Inner)
		return &c
	case *algebra.Extend:
		c := *x
		c.Inner = f(x.Inner)
		return &c
	case *algebra.Minus:
		c := *x
		c.Left, c.Right = f(x.Left), f(x.Right)
		return &c
	case *algebra.Project:
		c := *x
		c.Inner = f(x.Inner)
		return &c
	case *algebra.Group:
		c := *x
		c.Inner = f(x.Inner)
		return &c
	case *algebra.OrderBy:
		c := *x
		c.Inner = f(x.Inner)
		return &c
	case *algebra.Slice:
		c := *x
		c.Inner = f(x.Inner)
		return &c
	case *algebra.Distinct:
		c := *x
		c.Inner = f(x.Inner)
		return &c
	case *algebra.Reduced:
		c := *x
		c.Inner = f(x.Inner)
		return &c
	case *algebra.Service:
		// The remote endpoint plans its own pattern.
		return n
	}
	return n
}
