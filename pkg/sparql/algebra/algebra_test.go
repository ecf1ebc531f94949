package algebra

import (
	"testing"

	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
)

const knows = "http://ex/knows"

func sampleTree() Node {
	return &Slice{
		Offset: 0,
		Limit:  10,
		Inner: &Project{
			Variables: Vars("x", "n"),
			Inner: &Filter{
				Expression: Binary(OpGreaterThan, VarExpr("n"), TermExpr(rdf.NewIntegerLiteral(1))),
				Inner: &LeftJoin{
					Left: &BGP{Patterns: []*TriplePattern{
						NewTriplePattern(Var("x"), IRI(knows), Var("y")),
					}},
					Right: &Path{
						Subject: Var("y"),
						Path:    &PathOneOrMore{Path: Link(knows)},
						Object:  Var("z"),
					},
				},
			},
		},
	}
}

func TestFormatGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "sample_tree", []byte(Format(sampleTree())))
}

func TestFormatDistinguishesTrees(t *testing.T) {
	a := &Slice{Inner: &BGP{}, Offset: 0, Limit: NoLimit}
	b := &Slice{Inner: &BGP{}, Offset: 0, Limit: 0}
	assert.NotEqual(t, Format(a), Format(b))
	assert.Equal(t, Format(sampleTree()), Format(sampleTree()))

	spaced := &Filter{
		Expression: &ExistsExpression{Pattern: &BGP{Patterns: []*TriplePattern{
			NewTriplePattern(Var("s"), IRI(knows), Const(rdf.NewLiteral("a  b"))),
		}}},
		Inner: &BGP{},
	}
	single := &Filter{
		Expression: &ExistsExpression{Pattern: &BGP{Patterns: []*TriplePattern{
			NewTriplePattern(Var("s"), IRI(knows), Const(rdf.NewLiteral("a b"))),
		}}},
		Inner: &BGP{},
	}
	assert.NotEqual(t, Format(spaced), Format(single))
}

func TestFormatExpressionAndPath(t *testing.T) {
	expr := &InExpression{
		Expression: Call("STR", VarExpr("x")),
		Values:     []Expression{TermExpr(rdf.NewLiteral("a")), TermExpr(rdf.NewLiteral("b"))},
		Not:        true,
	}
	assert.Equal(t, `(notin (str ?x) "a" "b")`, FormatExpression(expr))

	p := Seq(Link("http://ex/a"), &PathInverse{Path: Link("http://ex/b")}, &PathNegatedSet{
		Forward: []*rdf.NamedNode{rdf.NewNamedNode("http://ex/c")},
		Inverse: []*rdf.NamedNode{rdf.NewNamedNode("http://ex/d")},
	})
	assert.Equal(t,
		"(seq (seq <http://ex/a> (reverse <http://ex/b>)) (notoneof <http://ex/c> (reverse <http://ex/d>)))",
		FormatPath(p))
}

func TestVariables(t *testing.T) {
	assert.Equal(t, []string{"x", "n"}, Variables(sampleTree()))

	lj := sampleTree().(*Slice).Inner.(*Project).Inner.(*Filter).Inner
	assert.Equal(t, []string{"x", "y", "z"}, Variables(lj))
	assert.Equal(t, map[string]bool{"x": true, "y": true}, CertainVariables(lj))

	union := &Union{
		Left:  &BGP{Patterns: []*TriplePattern{NewTriplePattern(Var("a"), IRI(knows), Var("b"))}},
		Right: &BGP{Patterns: []*TriplePattern{NewTriplePattern(Var("a"), IRI(knows), Var("c"))}},
	}
	assert.Equal(t, map[string]bool{"a": true}, CertainVariables(union))

	values := &Values{
		Variables: Vars("p", "q"),
		Rows: [][]rdf.Term{
			{rdf.NewLiteral("1"), nil},
			{rdf.NewLiteral("2"), rdf.NewLiteral("3")},
		},
	}
	assert.Equal(t, map[string]bool{"p": true}, CertainVariables(values))

	quoted := &BGP{Patterns: []*TriplePattern{
		NewTriplePattern(Quoted(Var("s"), IRI(knows), Var("o")), IRI("http://ex/says"), Var("who")),
	}}
	assert.Equal(t, []string{"s", "o", "who"}, Variables(quoted))
}

func TestExpressionHelpers(t *testing.T) {
	e := Binary(OpAnd,
		Binary(OpEqual, VarExpr("a"), VarExpr("b")),
		&ExistsExpression{Pattern: &BGP{Patterns: []*TriplePattern{
			NewTriplePattern(Var("hidden"), IRI(knows), Var("a")),
		}}},
	)
	assert.True(t, HasExists(e))
	assert.Equal(t, []string{"a", "b"}, ExpressionVariables(e))
	assert.False(t, HasExists(VarExpr("a")))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "leftjoin", KindLeftJoin.String())
	assert.Equal(t, "service", (&Service{}).Kind().String())
	assert.Equal(t, "unknown", Kind(99).String())
}
