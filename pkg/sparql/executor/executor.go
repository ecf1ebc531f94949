// Package executor evaluates SPARQL algebra trees against a store source.
//
// Evaluation builds a tree of pull iterators, one per algebra node, that
// produce solution mappings lazily. Nothing is computed until the caller
// pulls, and operators that must see their whole input (grouping, sorting,
// the build side of joins) materialize it before emitting anything.
package executor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/aleksaelezovic/quadra/pkg/sparql/algebra"
	"github.com/aleksaelezovic/quadra/pkg/sparql/binding"
	"github.com/aleksaelezovic/quadra/pkg/sparql/evaluator"
	"github.com/aleksaelezovic/quadra/pkg/sparql/path"
	"github.com/aleksaelezovic/quadra/pkg/store"
)

var (
	// ErrNoServiceHandler is returned for SERVICE patterns when the
	// executor has no handler.
	ErrNoServiceHandler = errors.New("executor: no service handler configured")

	// ErrUnboundServiceName is returned when a SERVICE variable has no
	// value.
	ErrUnboundServiceName = errors.New("executor: service name is unbound")

	// ErrNilNode is returned when an algebra tree has a missing operand.
	ErrNilNode = errors.New("executor: nil algebra node")

	// ErrVariableInScope is returned when an Extend binds a variable its
	// input already binds.
	ErrVariableInScope = errors.New("executor: variable already in scope")
)

// CancellationError reports that evaluation stopped because its context
// was cancelled or timed out.
type CancellationError struct {
	Err error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("query cancelled: %v", e.Err)
}

func (e *CancellationError) Unwrap() error { return e.Err }

// cancellation wraps context errors in a CancellationError and returns
// every other error unchanged.
func cancellation(err error) error {
	if err == nil {
		return nil
	}
	var ce *CancellationError
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &CancellationError{Err: err}
	}
	return err
}

// BindingIterator iterates over solution mappings. Err reports the error
// that ended iteration, if any.
type BindingIterator interface {
	Next() bool
	Binding() *binding.Binding
	Err() error
	Close() error
}

// ServiceHandler answers SERVICE patterns.
type ServiceHandler interface {
	Handle(ctx context.Context, endpoint *rdf.NamedNode, pattern algebra.Node) (BindingIterator, error)
}

// ServiceHandlerFunc adapts a function to ServiceHandler.
type ServiceHandlerFunc func(ctx context.Context, endpoint *rdf.NamedNode, pattern algebra.Node) (BindingIterator, error)

func (f ServiceHandlerFunc) Handle(ctx context.Context, endpoint *rdf.NamedNode, pattern algebra.Node) (BindingIterator, error) {
	return f(ctx, endpoint, pattern)
}

type options struct {
	service ServiceHandler
	now     time.Time
}

// Option configures an Executor.
type Option func(*options)

// WithServiceHandler sets the handler used for SERVICE patterns.
func WithServiceHandler(h ServiceHandler) Option {
	return func(o *options) { o.service = h }
}

// WithNow fixes the value of NOW() for every query.
func WithNow(t time.Time) Option {
	return func(o *options) { o.now = t }
}

// Executor evaluates algebra trees against one source. Each call to
// Evaluate starts an independent run; the iterators of one run must be
// consumed from a single goroutine.
type Executor struct {
	src  store.Source
	opts options
}

// New returns an executor reading from src, usually a snapshot or a write
// transaction.
func New(src store.Source, opts ...Option) *Executor {
	e := &Executor{src: src}
	for _, opt := range opts {
		opt(&e.opts)
	}
	return e
}

// Source returns the source the executor reads from.
func (e *Executor) Source() store.Source { return e.src }

// Evaluate returns the solutions of n over the default graph.
func (e *Executor) Evaluate(ctx context.Context, n algebra.Node) BindingIterator {
	return e.newRun(ctx).eval(n, scope{graph: store.DefaultGraphID})
}

// run holds the per-query state shared by the iterators of one evaluation.
type run struct {
	ctx   context.Context
	e     *Executor
	paths *path.Evaluator
	now   time.Time
	exprs map[store.TermID]*evaluator.Evaluator
	terms map[store.TermID]rdf.Term
}

func (e *Executor) newRun(ctx context.Context) *run {
	now := e.opts.now
	if now.IsZero() {
		now = time.Now()
	}
	return &run{
		ctx:   ctx,
		e:     e,
		paths: path.NewEvaluator(e.src),
		now:   now,
		exprs: make(map[store.TermID]*evaluator.Evaluator),
		terms: make(map[store.TermID]rdf.Term),
	}
}

// scope is the evaluation context of a node: the active graph, and the
// mapping every leaf starts from. The seed is empty except below EXISTS
// and GRAPH ?var, where it carries the values substituted into the
// pattern.
type scope struct {
	graph store.TermID
	seed  *binding.Binding
}

func (sc scope) start() *binding.Binding {
	if sc.seed == nil {
		return binding.NewBinding()
	}
	return sc.seed.Clone()
}

// expressions returns the expression evaluator for graph. EXISTS patterns
// are evaluated in the graph of the expression that contains them.
func (r *run) expressions(graph store.TermID) *evaluator.Evaluator {
	if ev, ok := r.exprs[graph]; ok {
		return ev
	}
	ev := evaluator.NewEvaluator(
		evaluator.WithNow(r.now),
		evaluator.WithExists(func(pattern algebra.Node, b *binding.Binding) (bool, error) {
			it := r.eval(pattern, scope{graph: graph, seed: b})
			defer it.Close() // #nosec G104 - read-only iterator
			if it.Next() {
				return true, nil
			}
			return false, it.Err()
		}),
	)
	r.exprs[graph] = ev
	return ev
}

// decode resolves an id read from the store, memoizing within the run.
func (r *run) decode(id store.TermID) (rdf.Term, error) {
	if t, ok := r.terms[id]; ok {
		return t, nil
	}
	t, err := r.e.src.Decode(id)
	if err != nil {
		return nil, err
	}
	r.terms[id] = t
	return t, nil
}

// eval builds the iterator for n. Every iterator is guarded so that each
// pull checks the context.
func (r *run) eval(n algebra.Node, sc scope) BindingIterator {
	if n == nil {
		return errIterator(ErrNilNode)
	}
	var it BindingIterator
	switch n.Kind() {
	case algebra.KindBGP:
		it = r.evalBGP(n.(*algebra.BGP), sc)
	case algebra.KindPath:
		it = r.evalPath(n.(*algebra.Path), sc)
	case algebra.KindJoin:
		it = r.evalJoin(n.(*algebra.Join), sc)
	case algebra.KindLeftJoin:
		it = r.evalLeftJoin(n.(*algebra.LeftJoin), sc)
	case algebra.KindFilter:
		f := n.(*algebra.Filter)
		it = &filterIterator{input: r.eval(f.Inner, sc), expr: f.Expression, ev: r.expressions(sc.graph)}
	case algebra.KindUnion:
		u := n.(*algebra.Union)
		it = &unionIterator{r: r, branches: []algebra.Node{u.Left, u.Right}, sc: sc}
	case algebra.KindGraph:
		it = r.evalGraph(n.(*algebra.Graph), sc)
	case algebra.KindExtend:
		x := n.(*algebra.Extend)
		if slices.Contains(algebra.Variables(x.Inner), x.Variable.Name) {
			it = errIterator(fmt.Errorf("%w: ?%s", ErrVariableInScope, x.Variable.Name))
			break
		}
		it = &extendIterator{input: r.eval(x.Inner, sc), name: x.Variable.Name, expr: x.Expression, ev: r.expressions(sc.graph)}
	case algebra.KindMinus:
		it = r.evalMinus(n.(*algebra.Minus), sc)
	case algebra.KindValues:
		it = r.evalValues(n.(*algebra.Values), sc)
	case algebra.KindProject:
		p := n.(*algebra.Project)
		names := make([]string, len(p.Variables))
		for i, v := range p.Variables {
			names[i] = v.Name
		}
		it = &projectIterator{input: r.eval(p.Inner, sc), names: names}
	case algebra.KindGroup:
		it = r.evalGroup(n.(*algebra.Group), sc)
	case algebra.KindOrderBy:
		o := n.(*algebra.OrderBy)
		it = &orderByIterator{input: r.eval(o.Inner, sc), conditions: o.Conditions, ev: r.expressions(sc.graph)}
	case algebra.KindSlice:
		s := n.(*algebra.Slice)
		it = &sliceIterator{input: r.eval(s.Inner, sc), offset: s.Offset, limit: s.Limit}
	case algebra.KindDistinct:
		it = &distinctIterator{input: r.eval(n.(*algebra.Distinct).Inner, sc), seen: make(map[string]struct{})}
	case algebra.KindReduced:
		it = &reducedIterator{input: r.eval(n.(*algebra.Reduced).Inner, sc)}
	case algebra.KindService:
		it = r.evalService(n.(*algebra.Service), sc)
	default:
		it = errIterator(fmt.Errorf("executor: unsupported algebra node %s", n.Kind()))
	}
	return &guardIterator{ctx: r.ctx, input: it}
}

// guardIterator checks the context before every pull and reports
// context errors as CancellationError.
type guardIterator struct {
	ctx   context.Context
	input BindingIterator
	err   error
}

func (it *guardIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = cancellation(err)
		return false
	}
	return it.input.Next()
}

func (it *guardIterator) Binding() *binding.Binding { return it.input.Binding() }

func (it *guardIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return cancellation(it.input.Err())
}

func (it *guardIterator) Close() error { return it.input.Close() }

// drain materializes an iterator and closes it.
func drain(it BindingIterator) ([]*binding.Binding, error) {
	defer it.Close() // #nosec G104 - read-only iterator
	var rows []*binding.Binding
	for it.Next() {
		rows = append(rows, it.Binding())
	}
	return rows, it.Err()
}

// rowsIterator yields a fixed list of mappings.
type rowsIterator struct {
	rows []*binding.Binding
	pos  int
	err  error
}

func newRowsIterator(rows ...*binding.Binding) *rowsIterator {
	return &rowsIterator{rows: rows, pos: -1}
}

func errIterator(err error) *rowsIterator {
	return &rowsIterator{err: err, pos: -1}
}

func (it *rowsIterator) Next() bool {
	if it.err != nil || it.pos+1 >= len(it.rows) {
		return false
	}
	it.pos++
	return true
}

func (it *rowsIterator) Binding() *binding.Binding { return it.rows[it.pos] }
func (it *rowsIterator) Err() error                { return it.err }
func (it *rowsIterator) Close() error              { return nil }
