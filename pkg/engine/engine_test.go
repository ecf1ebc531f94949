package engine_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aleksaelezovic/quadra/internal/storage"
	"github.com/aleksaelezovic/quadra/pkg/engine"
	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/aleksaelezovic/quadra/pkg/sparql/algebra"
	"github.com/aleksaelezovic/quadra/pkg/sparql/executor"
	"github.com/aleksaelezovic/quadra/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const ex = "http://example.org/"

func iri(name string) *rdf.NamedNode { return rdf.NewNamedNode(ex + name) }

func c(name string) algebra.TermOrVariable { return algebra.IRI(ex + name) }

var v = algebra.Var

func knows(a, b string) *rdf.Quad { return rdf.NewQuad(iri(a), iri("knows"), iri(b), nil) }

func knowsPattern() algebra.Node {
	return &algebra.BGP{Patterns: []*algebra.TriplePattern{
		algebra.NewTriplePattern(v("p"), c("knows"), v("q")),
	}}
}

func newEngine(t *testing.T, opts ...engine.Option) *engine.Engine {
	t.Helper()
	backend, err := storage.NewInMemoryStorage()
	require.NoError(t, err)
	s, err := store.New(backend)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	e := engine.New(s, opts...)
	_, err = e.Load(context.Background(), store.NewSliceSource([]*rdf.Quad{
		knows("alice", "bob"),
		knows("bob", "carol"),
		rdf.NewQuad(iri("alice"), iri("name"), rdf.NewLiteral("Alice"), nil),
	}))
	require.NoError(t, err)
	return e
}

func local(t rdf.Term) string {
	if n, ok := t.(*rdf.NamedNode); ok {
		return strings.TrimPrefix(n.IRI, ex)
	}
	return t.String()
}

func pairs(t *testing.T, it executor.BindingIterator) []string {
	t.Helper()
	var out []string
	for it.Next() {
		p, _ := it.Binding().Get("p")
		q, _ := it.Binding().Get("q")
		out = append(out, local(p)+" "+local(q))
	}
	require.NoError(t, it.Err())
	sort.Strings(out)
	return out
}

func TestQuery(t *testing.T) {
	e := newEngine(t)
	sols, err := e.Query(context.Background(), knowsPattern())
	require.NoError(t, err)
	assert.Equal(t, []string{"p", "q"}, sols.Variables())
	assert.Equal(t, []string{"alice bob", "bob carol"}, pairs(t, sols))
	require.NoError(t, sols.Close())
	require.NoError(t, sols.Close())
}

func TestQueryVariablesFollowWrittenPattern(t *testing.T) {
	e := newEngine(t)
	// The optimizer may reorder these patterns; the columns must not move.
	pattern := &algebra.BGP{Patterns: []*algebra.TriplePattern{
		algebra.NewTriplePattern(v("x"), v("pred"), v("y")),
		algebra.NewTriplePattern(c("alice"), c("knows"), v("x")),
	}}
	sols, err := e.Query(context.Background(), pattern)
	require.NoError(t, err)
	defer sols.Close()
	assert.Equal(t, []string{"x", "pred", "y"}, sols.Variables())
}

func TestAskConstructDescribe(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	ok, err := e.Ask(ctx, knowsPattern())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Ask(ctx, &algebra.BGP{Patterns: []*algebra.TriplePattern{
		algebra.NewTriplePattern(c("carol"), c("knows"), v("q")),
	}})
	require.NoError(t, err)
	assert.False(t, ok)

	triples, err := e.Construct(ctx, knowsPattern(), []*algebra.TriplePattern{
		algebra.NewTriplePattern(v("q"), c("knownBy"), v("p")),
	})
	require.NoError(t, err)
	var got []string
	for triples.Next() {
		got = append(got, triples.Triple().String())
	}
	require.NoError(t, triples.Err())
	require.NoError(t, triples.Close())
	assert.Len(t, got, 2)

	desc, err := e.Describe(ctx, nil, []algebra.TermOrVariable{c("alice")})
	require.NoError(t, err)
	n := 0
	for desc.Next() {
		n++
	}
	require.NoError(t, desc.Close())
	assert.Equal(t, 2, n)
}

func TestExecuteDispatchesOnForm(t *testing.T) {
	e := newEngine(t)
	res, err := e.Execute(context.Background(), &algebra.Query{Type: algebra.QueryTypeAsk, Pattern: knowsPattern()})
	require.NoError(t, err)
	assert.Equal(t, true, res)

	res, err = e.Execute(context.Background(), &algebra.Query{Type: algebra.QueryTypeSelect, Pattern: knowsPattern()})
	require.NoError(t, err)
	sols, ok := res.(*engine.Solutions)
	require.True(t, ok)
	require.NoError(t, sols.Close())
}

func TestUpdateReadsOwnWrites(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	err := e.Update(ctx, func(tx *engine.Txn) error {
		if _, err := tx.Insert(knows("carol", "dave")); err != nil {
			return err
		}
		if _, err := tx.Remove(knows("alice", "bob")); err != nil {
			return err
		}
		it := tx.Query(knowsPattern())
		defer it.Close()
		assert.Equal(t, []string{"bob carol", "carol dave"}, pairs(t, it))
		return nil
	})
	require.NoError(t, err)

	sols, err := e.Query(ctx, knowsPattern())
	require.NoError(t, err)
	defer sols.Close()
	assert.Equal(t, []string{"bob carol", "carol dave"}, pairs(t, sols))
}

func TestUpdateRollsBackOnError(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	boom := errors.New("boom")
	err := e.Update(ctx, func(tx *engine.Txn) error {
		_, _ = tx.Insert(knows("carol", "dave"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	ok, err := e.Ask(ctx, &algebra.BGP{Patterns: []*algebra.TriplePattern{
		algebra.NewTriplePattern(c("carol"), c("knows"), c("dave")),
	}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQuerySeesSnapshot(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	sols, err := e.Query(ctx, knowsPattern())
	require.NoError(t, err)
	defer sols.Close()

	_, err = e.Store().Insert(ctx, knows("carol", "dave"))
	require.NoError(t, err)
	assert.Equal(t, []string{"alice bob", "bob carol"}, pairs(t, sols))
}

func TestQueriesDuringCommit(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	const base, batch = 2, 1000

	started := make(chan struct{})
	committed := make(chan struct{})
	var seen []int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(committed)
		return e.Update(gctx, func(tx *engine.Txn) error {
			close(started)
			for i := 0; i < batch; i++ {
				if _, err := tx.Insert(knows(fmt.Sprintf("p%d", i), "alice")); err != nil {
					return err
				}
			}
			return nil
		})
	})
	g.Go(func() error {
		select {
		case <-started:
		case <-committed:
		}
		for {
			sols, err := e.Query(gctx, knowsPattern())
			if err != nil {
				return err
			}
			n := 0
			for sols.Next() {
				n++
			}
			if err := errors.Join(sols.Err(), sols.Close()); err != nil {
				return err
			}
			seen = append(seen, n)
			select {
			case <-committed:
				return nil
			default:
			}
		}
	})
	require.NoError(t, g.Wait())

	require.NotEmpty(t, seen)
	for _, n := range seen {
		if n != base && n != base+batch {
			t.Fatalf("query saw %d knows edges, expected %d or %d", n, base, base+batch)
		}
	}

	after, err := e.Query(ctx, knowsPattern())
	require.NoError(t, err)
	defer after.Close()
	n := 0
	for after.Next() {
		n++
	}
	require.NoError(t, after.Err())
	assert.Equal(t, base+batch, n)
}

func TestNilPattern(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.Query(ctx, nil)
	assert.ErrorIs(t, err, engine.ErrNilPattern)
	_, err = e.Ask(ctx, nil)
	assert.ErrorIs(t, err, engine.ErrNilPattern)
	_, err = e.Construct(ctx, nil, nil)
	assert.ErrorIs(t, err, engine.ErrNilPattern)
	_, err = e.Execute(ctx, nil)
	assert.ErrorIs(t, err, engine.ErrNilPattern)

	// A DESCRIBE of constants needs no pattern.
	triples, err := e.Describe(ctx, nil, []algebra.TermOrVariable{c("alice")})
	require.NoError(t, err)
	n := 0
	for triples.Next() {
		n++
	}
	require.NoError(t, triples.Err())
	require.NoError(t, triples.Close())
	assert.Equal(t, 2, n)
}

func TestMaxConcurrentQueries(t *testing.T) {
	e := newEngine(t, engine.WithMaxConcurrentQueries(1))
	first, err := e.Query(context.Background(), knowsPattern())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = e.Query(ctx, knowsPattern())
	var ce *executor.CancellationError
	require.ErrorAs(t, err, &ce)

	require.NoError(t, first.Close())
	second, err := e.Query(context.Background(), knowsPattern())
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestEvents(t *testing.T) {
	var events []engine.Event
	e := newEngine(t, engine.WithEventHandler(func(ev engine.Event) { events = append(events, ev) }))
	sols, err := e.Query(context.Background(), knowsPattern())
	require.NoError(t, err)
	for sols.Next() {
	}
	require.NoError(t, sols.Close())

	require.Len(t, events, 3)
	assert.Equal(t, engine.QueryInvoked, events[0].Name)
	assert.Equal(t, engine.QueryPlanOptimized, events[1].Name)
	assert.Contains(t, events[1].Data["plan"], "(bgp")
	assert.Equal(t, engine.QueryCompleted, events[2].Name)
	assert.Equal(t, 2, events[2].Data["results"])

	var buf bytes.Buffer
	f := engine.NewOutputFormatter(&buf, false)
	for _, ev := range events {
		f.Handle(ev)
	}
	out := buf.String()
	assert.Contains(t, out, "=== select query")
	assert.Contains(t, out, "Plan after")
	assert.Contains(t, out, "Query done with 2 results")
}

func TestWithoutOptimizerSkipsPlanEvent(t *testing.T) {
	var names []string
	e := newEngine(t,
		engine.WithoutOptimizer(),
		engine.WithEventHandler(func(ev engine.Event) { names = append(names, ev.Name) }),
	)
	ok, err := e.Ask(context.Background(), knowsPattern())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{engine.QueryInvoked, engine.QueryCompleted}, names)
}
