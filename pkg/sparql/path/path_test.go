package path_test

import (
	"context"
	"sort"
	"testing"

	"github.com/aleksaelezovic/quadra/internal/storage"
	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/aleksaelezovic/quadra/pkg/sparql/algebra"
	"github.com/aleksaelezovic/quadra/pkg/sparql/path"
	"github.com/aleksaelezovic/quadra/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ex = "http://example.org/"

type fixture struct {
	t    *testing.T
	snap *store.Snapshot
	eval *path.Evaluator
}

// newFixture loads edges given as "subject predicate object" name triples
// into the default graph.
func newFixture(t *testing.T, edges ...[3]string) *fixture {
	t.Helper()
	backend, err := storage.NewInMemoryStorage()
	require.NoError(t, err)
	s, err := store.New(backend)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	err = s.Update(context.Background(), func(tx *store.WriteTxn) error {
		for _, e := range edges {
			q := rdf.NewQuad(rdf.NewNamedNode(ex+e[0]), rdf.NewNamedNode(ex+e[1]), rdf.NewNamedNode(ex+e[2]), nil)
			if _, err := tx.Insert(q); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	t.Cleanup(func() { _ = snap.Close() })
	return &fixture{t: t, snap: snap, eval: path.NewEvaluator(snap)}
}

func (f *fixture) id(name string) store.TermID {
	f.t.Helper()
	id, ok, err := f.snap.Lookup(rdf.NewNamedNode(ex + name))
	require.NoError(f.t, err)
	require.True(f.t, ok, name)
	return id
}

func (f *fixture) name(id store.TermID) string {
	f.t.Helper()
	term, err := f.snap.Decode(id)
	require.NoError(f.t, err)
	return term.(*rdf.NamedNode).IRI[len(ex):]
}

func (f *fixture) drain(it path.NodeIterator) []string {
	f.t.Helper()
	defer it.Close()
	var names []string
	for it.Next() {
		names = append(names, f.name(it.Node()))
	}
	require.NoError(f.t, it.Err())
	sort.Strings(names)
	return names
}

func (f *fixture) pairs(it path.PairIterator) []string {
	f.t.Helper()
	defer it.Close()
	var out []string
	for it.Next() {
		s, o := it.Pair()
		out = append(out, f.name(s)+">"+f.name(o))
	}
	require.NoError(f.t, it.Err())
	sort.Strings(out)
	return out
}

func link(name string) *algebra.PathLink { return algebra.Link(ex + name) }

var dg = store.DefaultGraphID

func TestKnowsScenario(t *testing.T) {
	f := newFixture(t, [3]string{"a", "knows", "b"}, [3]string{"b", "knows", "c"})
	ctx := context.Background()

	got := f.drain(f.eval.Objects(ctx, &algebra.PathOneOrMore{Path: link("knows")}, f.id("a"), dg))
	assert.Equal(t, []string{"b", "c"}, got)

	got = f.drain(f.eval.Objects(ctx, &algebra.PathZeroOrMore{Path: link("knows")}, f.id("a"), dg))
	assert.Equal(t, []string{"a", "b", "c"}, got)

	got = f.drain(f.eval.Subjects(ctx, &algebra.PathOneOrMore{Path: link("knows")}, f.id("c"), dg))
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestCycleTerminates(t *testing.T) {
	f := newFixture(t, [3]string{"a", "knows", "b"}, [3]string{"b", "knows", "a"})
	ctx := context.Background()

	for _, p := range []algebra.PathExpression{
		&algebra.PathOneOrMore{Path: link("knows")},
		&algebra.PathZeroOrMore{Path: link("knows")},
	} {
		got := f.drain(f.eval.Objects(ctx, p, f.id("a"), dg))
		assert.Equal(t, []string{"a", "b"}, got, "%T", p)
	}

	pairs := f.pairs(f.eval.Pairs(ctx, &algebra.PathOneOrMore{Path: link("knows")}, dg))
	assert.Equal(t, []string{"a>a", "a>b", "b>a", "b>b"}, pairs)
}

func TestExistsBidirectional(t *testing.T) {
	f := newFixture(t,
		[3]string{"a", "knows", "b"},
		[3]string{"b", "knows", "c"},
		[3]string{"c", "knows", "a"},
		[3]string{"c", "knows", "d"},
		[3]string{"e", "likes", "a"},
	)
	ctx := context.Background()
	plus := &algebra.PathOneOrMore{Path: link("knows")}
	star := &algebra.PathZeroOrMore{Path: link("knows")}

	tests := []struct {
		p        algebra.PathExpression
		from, to string
		want     bool
	}{
		{plus, "a", "d", true},
		{plus, "d", "a", false},
		{plus, "a", "a", true},
		{plus, "e", "a", false},
		{star, "d", "d", true},
		{star, "b", "a", true},
		{&algebra.PathInverse{Path: plus}, "d", "a", true},
		{algebra.Seq(link("likes"), plus), "e", "d", true},
		{algebra.Seq(link("likes"), link("knows")), "e", "c", false},
	}
	for _, tt := range tests {
		got, err := f.eval.Exists(ctx, tt.p, f.id(tt.from), f.id(tt.to), dg)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s %s %s", tt.from, algebra.FormatPath(tt.p), tt.to)
	}
}

func TestCompositePaths(t *testing.T) {
	f := newFixture(t,
		[3]string{"a", "knows", "b"},
		[3]string{"b", "knows", "c"},
		[3]string{"a", "likes", "c"},
		[3]string{"d", "likes", "a"},
	)
	ctx := context.Background()

	tests := []struct {
		name string
		p    algebra.PathExpression
		from string
		want []string
	}{
		{"sequence", algebra.Seq(link("knows"), link("knows")), "a", []string{"c"}},
		{"alternative dedups", algebra.Alt(link("likes"), algebra.Seq(link("knows"), link("knows"))), "a", []string{"c"}},
		{"inverse", &algebra.PathInverse{Path: link("likes")}, "a", []string{"d"}},
		{"zero or one", &algebra.PathZeroOrOne{Path: link("knows")}, "a", []string{"a", "b"}},
		{"negated forward", &algebra.PathNegatedSet{Forward: []*rdf.NamedNode{rdf.NewNamedNode(ex + "knows")}}, "a", []string{"c"}},
		{"negated both", &algebra.PathNegatedSet{
			Forward: []*rdf.NamedNode{rdf.NewNamedNode(ex + "likes")},
			Inverse: []*rdf.NamedNode{rdf.NewNamedNode(ex + "knows")},
		}, "a", []string{"b", "d"}},
		{"unknown predicate", link("unknown"), "a", nil},
		{"sequence with closure", algebra.Seq(&algebra.PathInverse{Path: link("likes")}, &algebra.PathOneOrMore{Path: link("likes")}), "a", []string{"a", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.drain(f.eval.Objects(ctx, tt.p, f.id(tt.from), dg))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPairs(t *testing.T) {
	f := newFixture(t, [3]string{"a", "knows", "b"}, [3]string{"b", "likes", "c"})
	ctx := context.Background()

	assert.Equal(t, []string{"a>b"}, f.pairs(f.eval.Pairs(ctx, link("knows"), dg)))
	assert.Equal(t, []string{"b>a"}, f.pairs(f.eval.Pairs(ctx, &algebra.PathInverse{Path: link("knows")}, dg)))
	assert.Equal(t,
		[]string{"a>a", "a>b", "b>b", "b>c", "c>c"},
		f.pairs(f.eval.Pairs(ctx, &algebra.PathZeroOrOne{Path: algebra.Alt(link("knows"), link("likes"))}, dg)))
	assert.Empty(t, f.pairs(f.eval.Pairs(ctx, link("unknown"), dg)))
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t, [3]string{"a", "knows", "b"}, [3]string{"b", "knows", "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	it := f.eval.Objects(ctx, &algebra.PathZeroOrMore{Path: link("knows")}, f.id("a"), dg)
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), context.Canceled)

	_, err := f.eval.Exists(ctx, &algebra.PathOneOrMore{Path: link("knows")}, f.id("a"), f.id("b"), dg)
	assert.ErrorIs(t, err, context.Canceled)
}
