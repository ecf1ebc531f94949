// Package engine ties the store, the optimizer and the executor together.
//
// Every read query runs against its own snapshot, taken when the query
// starts and released when its result is closed. Writes go through Update,
// whose queries see the writes made earlier in the same transaction.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/aleksaelezovic/quadra/pkg/sparql/algebra"
	"github.com/aleksaelezovic/quadra/pkg/sparql/executor"
	"github.com/aleksaelezovic/quadra/pkg/sparql/optimizer"
	"github.com/aleksaelezovic/quadra/pkg/store"
	"golang.org/x/sync/semaphore"
)

// ErrNilPattern is returned for a query without a pattern. Only DESCRIBE
// may omit one.
var ErrNilPattern = errors.New("engine: nil query pattern")

// DefaultMaxConcurrentQueries bounds the number of open read queries.
const DefaultMaxConcurrentQueries = 64

type options struct {
	maxQueries int64
	handler    Handler
	optimizer  *optimizer.Optimizer
	noOptimize bool
	exec       []executor.Option
}

// Option configures an Engine.
type Option func(*options)

// WithMaxConcurrentQueries limits how many read queries may be open at
// once. Further queries wait for a slot or for their context to end.
func WithMaxConcurrentQueries(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxQueries = n
		}
	}
}

// WithEventHandler receives the events of every query.
func WithEventHandler(h Handler) Option {
	return func(o *options) { o.handler = h }
}

// WithOptimizer replaces the default optimizer.
func WithOptimizer(opt *optimizer.Optimizer) Option {
	return func(o *options) { o.optimizer = opt }
}

// WithoutOptimizer evaluates patterns exactly as given.
func WithoutOptimizer() Option {
	return func(o *options) { o.noOptimize = true }
}

// WithServiceHandler answers SERVICE patterns.
func WithServiceHandler(h executor.ServiceHandler) Option {
	return func(o *options) { o.exec = append(o.exec, executor.WithServiceHandler(h)) }
}

// WithNow fixes the value of NOW().
func WithNow(t time.Time) Option {
	return func(o *options) { o.exec = append(o.exec, executor.WithNow(t)) }
}

// Engine answers queries over a store. It is safe for concurrent use.
type Engine struct {
	store   *store.Store
	opt     *optimizer.Optimizer
	sem     *semaphore.Weighted
	handler Handler
	log     *store.Logger
	exec    []executor.Option
}

// New returns an engine over s. The engine does not own s.
func New(s *store.Store, opts ...Option) *Engine {
	o := options{maxQueries: DefaultMaxConcurrentQueries}
	for _, opt := range opts {
		opt(&o)
	}
	e := &Engine{
		store:   s,
		opt:     o.optimizer,
		sem:     semaphore.NewWeighted(o.maxQueries),
		handler: o.handler,
		log:     s.Logger(),
		exec:    o.exec,
	}
	if e.opt == nil && !o.noOptimize {
		e.opt = optimizer.NewOptimizer()
	}
	return e
}

// Store returns the underlying store.
func (e *Engine) Store() *store.Store { return e.store }

// Solutions is the result of a SELECT-style query.
type Solutions struct {
	executor.BindingIterator
	variables []string
	session   *session
	count     int
}

// Variables lists the variables of the query in order of first
// appearance in the pattern as written.
func (s *Solutions) Variables() []string { return s.variables }

func (s *Solutions) Next() bool {
	if s.BindingIterator.Next() {
		s.count++
		return true
	}
	return false
}

// Close releases the snapshot. It is safe to call more than once.
func (s *Solutions) Close() error {
	err := s.BindingIterator.Close()
	return errors.Join(err, s.session.finish(s.count, s.Err()))
}

// Triples is the result of a CONSTRUCT or DESCRIBE query.
type Triples struct {
	executor.TripleIterator
	session *session
	count   int
}

func (t *Triples) Next() bool {
	if t.TripleIterator.Next() {
		t.count++
		return true
	}
	return false
}

// Close releases the snapshot. It is safe to call more than once.
func (t *Triples) Close() error {
	err := t.TripleIterator.Close()
	return errors.Join(err, t.session.finish(t.count, t.Err()))
}

// Query returns the solutions of pattern.
func (e *Engine) Query(ctx context.Context, pattern algebra.Node) (*Solutions, error) {
	s, q, err := e.begin(ctx, &algebra.Query{Type: algebra.QueryTypeSelect, Pattern: pattern})
	if err != nil {
		return nil, err
	}
	return &Solutions{
		BindingIterator: s.exec.Select(ctx, q.Pattern),
		variables:       algebra.Variables(pattern),
		session:         s,
	}, nil
}

// Ask reports whether pattern has a solution.
func (e *Engine) Ask(ctx context.Context, pattern algebra.Node) (bool, error) {
	s, q, err := e.begin(ctx, &algebra.Query{Type: algebra.QueryTypeAsk, Pattern: pattern})
	if err != nil {
		return false, err
	}
	ok, err := s.exec.Ask(ctx, q.Pattern)
	results := 0
	if ok {
		results = 1
	}
	return ok, errors.Join(err, s.finish(results, err))
}

// Construct instantiates template for every solution of pattern.
func (e *Engine) Construct(ctx context.Context, pattern algebra.Node, template []*algebra.TriplePattern) (*Triples, error) {
	s, q, err := e.begin(ctx, &algebra.Query{Type: algebra.QueryTypeConstruct, Pattern: pattern, Template: template})
	if err != nil {
		return nil, err
	}
	return &Triples{TripleIterator: s.exec.Construct(ctx, q.Pattern, q.Template), session: s}, nil
}

// Describe returns the description of resources. Variables among them
// take their values from the solutions of pattern, which may be nil.
func (e *Engine) Describe(ctx context.Context, pattern algebra.Node, resources []algebra.TermOrVariable) (*Triples, error) {
	s, q, err := e.begin(ctx, &algebra.Query{Type: algebra.QueryTypeDescribe, Pattern: pattern, Resources: resources})
	if err != nil {
		return nil, err
	}
	return &Triples{TripleIterator: s.exec.Describe(ctx, q.Pattern, q.Resources), session: s}, nil
}

// Execute runs q according to its form. The caller closes the iterator of
// a SELECT or graph result.
func (e *Engine) Execute(ctx context.Context, q *algebra.Query) (any, error) {
	if q == nil {
		return nil, ErrNilPattern
	}
	switch q.Type {
	case algebra.QueryTypeSelect:
		return e.Query(ctx, q.Pattern)
	case algebra.QueryTypeAsk:
		return e.Ask(ctx, q.Pattern)
	case algebra.QueryTypeConstruct:
		return e.Construct(ctx, q.Pattern, q.Template)
	case algebra.QueryTypeDescribe:
		return e.Describe(ctx, q.Pattern, q.Resources)
	}
	return nil, fmt.Errorf("engine: unsupported query type %d", q.Type)
}

// session is the lifetime of one read query.
type session struct {
	e     *Engine
	ctx   context.Context
	form  string
	snap  *store.Snapshot
	exec  *executor.Executor
	start time.Time
	done  bool
}

func formName(t algebra.QueryType) string {
	switch t {
	case algebra.QueryTypeSelect:
		return "select"
	case algebra.QueryTypeAsk:
		return "ask"
	case algebra.QueryTypeConstruct:
		return "construct"
	case algebra.QueryTypeDescribe:
		return "describe"
	}
	return "unknown"
}

// begin admits the query, pins a snapshot and plans the pattern.
func (e *Engine) begin(ctx context.Context, q *algebra.Query) (*session, *algebra.Query, error) {
	if q.Pattern == nil && q.Type != algebra.QueryTypeDescribe {
		return nil, nil, ErrNilPattern
	}
	start := time.Now()
	form := formName(q.Type)
	e.emit(QueryInvoked, start, map[string]any{"form": form})

	if err := e.sem.Acquire(ctx, 1); err != nil {
		err = &executor.CancellationError{Err: err}
		e.emit(QueryCompleted, start, map[string]any{"form": form, "results": 0, "error": err})
		return nil, nil, err
	}
	snap, err := e.store.Snapshot()
	if err != nil {
		e.sem.Release(1)
		e.emit(QueryCompleted, start, map[string]any{"form": form, "results": 0, "error": err})
		return nil, nil, err
	}
	s := &session{
		e:     e,
		ctx:   ctx,
		form:  form,
		snap:  snap,
		exec:  executor.New(snap, e.exec...),
		start: start,
	}
	return s, e.plan(q), nil
}

// plan optimizes the pattern of q, if there is one.
func (e *Engine) plan(q *algebra.Query) *algebra.Query {
	if e.opt == nil || q.Pattern == nil {
		return q
	}
	start := time.Now()
	out := e.opt.OptimizeQuery(q)
	e.emit(QueryPlanOptimized, start, map[string]any{
		"plan":   algebra.Format(out.Query.Pattern),
		"rounds": out.Rounds,
	})
	return out.Query
}

func (s *session) finish(results int, err error) error {
	if s.done {
		return nil
	}
	s.done = true
	version := s.snap.Version()
	cerr := s.snap.Close()
	s.e.sem.Release(1)
	s.e.emit(QueryCompleted, s.start, map[string]any{"form": s.form, "results": results, "error": err})
	if err != nil {
		s.e.log.WarnContext(s.ctx, "query failed", "form", s.form, "error", err)
	} else {
		s.e.log.DebugContext(s.ctx, "query completed",
			"form", s.form,
			"results", results,
			"version", version,
			"elapsed", time.Since(s.start),
		)
	}
	return cerr
}

// Txn is the view of a write transaction given to Update.
type Txn struct {
	tx   *store.WriteTxn
	e    *Engine
	ctx  context.Context
	exec *executor.Executor
}

// Insert adds q, reporting whether it was new.
func (t *Txn) Insert(q *rdf.Quad) (bool, error) { return t.tx.Insert(q) }

// Remove deletes q, reporting whether it was present.
func (t *Txn) Remove(q *rdf.Quad) (bool, error) { return t.tx.Remove(q) }

// Query evaluates pattern against the transaction, including its
// uncommitted writes. The iterator must be closed before Update returns.
func (t *Txn) Query(pattern algebra.Node) executor.BindingIterator {
	q := t.e.plan(&algebra.Query{Type: algebra.QueryTypeSelect, Pattern: pattern})
	return t.exec.Select(t.ctx, q.Pattern)
}

// Update runs fn in a write transaction, committing when fn returns nil
// and rolling back otherwise.
func (e *Engine) Update(ctx context.Context, fn func(*Txn) error) error {
	return e.store.Update(ctx, func(tx *store.WriteTxn) error {
		return fn(&Txn{tx: tx, e: e, ctx: ctx, exec: executor.New(tx, e.exec...)})
	})
}

// Load bulk-loads quads from src.
func (e *Engine) Load(ctx context.Context, src store.QuadSource) (store.BulkStats, error) {
	return e.store.BulkLoad(ctx, src)
}
