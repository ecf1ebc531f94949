package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/aleksaelezovic/quadra/pkg/sparql/algebra"
	"github.com/aleksaelezovic/quadra/pkg/sparql/binding"
	"github.com/aleksaelezovic/quadra/pkg/store"
	"github.com/google/uuid"
)

// QueryResult is the result of Execute.
type QueryResult interface {
	queryResult()
}

// SelectResult carries the solutions of a SELECT query.
type SelectResult struct {
	Variables []string
	Solutions BindingIterator
}

// AskResult carries the answer of an ASK query.
type AskResult struct {
	Result bool
}

// GraphResult carries the triples of a CONSTRUCT or DESCRIBE query.
type GraphResult struct {
	Triples TripleIterator
}

func (*SelectResult) queryResult() {}
func (*AskResult) queryResult()    {}
func (*GraphResult) queryResult()  {}

// TripleIterator iterates over the triples of a graph result.
type TripleIterator interface {
	Next() bool
	Triple() *rdf.Triple
	Err() error
	Close() error
}

// Execute evaluates a query and applies its form.
func (e *Executor) Execute(ctx context.Context, q *algebra.Query) (QueryResult, error) {
	switch q.Type {
	case algebra.QueryTypeSelect:
		return &SelectResult{Variables: algebra.Variables(q.Pattern), Solutions: e.Select(ctx, q.Pattern)}, nil
	case algebra.QueryTypeAsk:
		ok, err := e.Ask(ctx, q.Pattern)
		if err != nil {
			return nil, err
		}
		return &AskResult{Result: ok}, nil
	case algebra.QueryTypeConstruct:
		return &GraphResult{Triples: e.Construct(ctx, q.Pattern, q.Template)}, nil
	case algebra.QueryTypeDescribe:
		return &GraphResult{Triples: e.Describe(ctx, q.Pattern, q.Resources)}, nil
	}
	return nil, fmt.Errorf("executor: unsupported query type %d", q.Type)
}

// Select returns the solutions of pattern.
func (e *Executor) Select(ctx context.Context, pattern algebra.Node) BindingIterator {
	return e.Evaluate(ctx, pattern)
}

// Ask reports whether pattern has at least one solution. It pulls at most
// one.
func (e *Executor) Ask(ctx context.Context, pattern algebra.Node) (bool, error) {
	it := e.Evaluate(ctx, pattern)
	defer it.Close() // #nosec G104 - read-only iterator
	if it.Next() {
		return true, nil
	}
	return false, it.Err()
}

// Construct instantiates template once per solution of pattern. Triples
// with an unbound variable or an invalid term in some position are
// skipped, and each triple is reported once. Blank nodes of the template
// get fresh labels per solution.
func (e *Executor) Construct(ctx context.Context, pattern algebra.Node, template []*algebra.TriplePattern) TripleIterator {
	return &constructIterator{
		input:    e.Evaluate(ctx, pattern),
		template: template,
		prefix:   strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		seen:     make(map[string]struct{}),
	}
}

type constructIterator struct {
	input    BindingIterator
	template []*algebra.TriplePattern
	prefix   string
	seen     map[string]struct{}

	solution int
	pending  []*rdf.Triple
	current  *rdf.Triple
}

func (it *constructIterator) Next() bool {
	for {
		for len(it.pending) > 0 {
			t := it.pending[0]
			it.pending = it.pending[1:]
			key := binding.TermKey(t.Subject) + binding.TermKey(t.Predicate) + binding.TermKey(t.Object)
			if _, dup := it.seen[key]; dup {
				continue
			}
			it.seen[key] = struct{}{}
			it.current = t
			return true
		}
		if !it.input.Next() {
			return false
		}
		it.solution++
		b := it.input.Binding()
		labels := make(map[string]*rdf.BlankNode)
		for _, tp := range it.template {
			if t, ok := it.instantiate(tp, b, labels); ok {
				it.pending = append(it.pending, t)
			}
		}
	}
}

func (it *constructIterator) instantiate(tp *algebra.TriplePattern, b *binding.Binding, labels map[string]*rdf.BlankNode) (*rdf.Triple, bool) {
	var parts [3]rdf.Term
	for i, pos := range tp.Positions() {
		t, ok := it.term(pos, b, labels)
		if !ok {
			return nil, false
		}
		parts[i] = t
	}
	if rdf.NewQuad(parts[0], parts[1], parts[2], nil).Validate() != nil {
		return nil, false
	}
	return rdf.NewTriple(parts[0], parts[1], parts[2]), true
}

func (it *constructIterator) term(pos algebra.TermOrVariable, b *binding.Binding, labels map[string]*rdf.BlankNode) (rdf.Term, bool) {
	switch {
	case pos.Variable != nil:
		return b.Get(pos.Variable.Name)
	case pos.Triple != nil:
		t, ok := it.instantiate(pos.Triple, b, labels)
		if !ok {
			return nil, false
		}
		return rdf.NewTripleTerm(t.Subject, t.Predicate, t.Object), true
	}
	if bn, ok := pos.Term.(*rdf.BlankNode); ok {
		fresh, ok := labels[bn.ID]
		if !ok {
			fresh = rdf.NewBlankNode(it.prefix + "s" + strconv.Itoa(it.solution) + bn.ID)
			labels[bn.ID] = fresh
		}
		return fresh, true
	}
	return pos.Term, true
}

func (it *constructIterator) Triple() *rdf.Triple { return it.current }
func (it *constructIterator) Err() error          { return it.input.Err() }
func (it *constructIterator) Close() error        { return it.input.Close() }

// Describe returns the concise bounded description of every resource:
// the quads of the default graph with the resource as subject. Variable
// resources take their values from the solutions of pattern; a nil
// pattern describes the constant resources only.
func (e *Executor) Describe(ctx context.Context, pattern algebra.Node, resources []algebra.TermOrVariable) TripleIterator {
	if pattern == nil {
		pattern = &algebra.BGP{}
	}
	return &describeIterator{
		ctx:       ctx,
		e:         e,
		input:     e.Evaluate(ctx, pattern),
		resources: resources,
		described: make(map[string]struct{}),
	}
}

type describeIterator struct {
	ctx       context.Context
	e         *Executor
	input     BindingIterator
	resources []algebra.TermOrVariable
	described map[string]struct{}

	queue   []rdf.Term
	quads   store.QuadIterator
	current *rdf.Triple
	err     error
}

func (it *describeIterator) Next() bool {
	for it.err == nil {
		if it.quads != nil {
			if it.quads.Next() {
				q, err := it.decode(it.quads.Quad())
				if err != nil {
					it.err = err
					return false
				}
				it.current = q
				return true
			}
			it.err = cancellation(it.quads.Err())
			_ = it.quads.Close() // #nosec G104 - read-only iterator
			it.quads = nil
			continue
		}
		if len(it.queue) > 0 {
			it.open(it.queue[0])
			it.queue = it.queue[1:]
			continue
		}
		if !it.input.Next() {
			it.err = it.input.Err()
			return false
		}
		b := it.input.Binding()
		for _, res := range it.resources {
			var t rdf.Term
			if res.Variable != nil {
				v, ok := b.Get(res.Variable.Name)
				if !ok {
					continue
				}
				t = v
			} else {
				t = res.Term
			}
			key := binding.TermKey(t)
			if _, done := it.described[key]; done {
				continue
			}
			it.described[key] = struct{}{}
			it.queue = append(it.queue, t)
		}
	}
	return false
}

func (it *describeIterator) open(subject rdf.Term) {
	if err := it.ctx.Err(); err != nil {
		it.err = cancellation(err)
		return
	}
	src := it.e.src
	id, found, err := src.Lookup(subject)
	if err != nil {
		it.err = err
		return
	}
	if !found {
		return
	}
	it.quads = src.QuadsMatching(store.NewPattern(id, store.Any, store.Any, store.DefaultGraphID))
}

func (it *describeIterator) decode(q store.EncodedQuad) (*rdf.Triple, error) {
	var parts [3]rdf.Term
	for i := range parts {
		t, err := it.e.src.Decode(q[i])
		if err != nil {
			return nil, err
		}
		parts[i] = t
	}
	return rdf.NewTriple(parts[0], parts[1], parts[2]), nil
}

func (it *describeIterator) Triple() *rdf.Triple { return it.current }
func (it *describeIterator) Err() error          { return it.err }

func (it *describeIterator) Close() error {
	if it.quads != nil {
		_ = it.quads.Close() // #nosec G104 - read-only iterator
	}
	return it.input.Close()
}
