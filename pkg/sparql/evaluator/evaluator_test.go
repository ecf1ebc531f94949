package evaluator

import (
	"errors"
	"testing"
	"time"

	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/aleksaelezovic/quadra/pkg/sparql/algebra"
	"github.com/aleksaelezovic/quadra/pkg/sparql/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func integer(i int64) *algebra.LiteralExpression { return algebra.TermExpr(rdf.NewIntegerLiteral(i)) }
func str(s string) *algebra.LiteralExpression    { return algebra.TermExpr(rdf.NewLiteral(s)) }
func typed(v string, dt *rdf.NamedNode) *algebra.LiteralExpression {
	return algebra.TermExpr(rdf.NewLiteralWithDatatype(v, dt))
}
func lang(v, tag string) *algebra.LiteralExpression {
	return algebra.TermExpr(rdf.NewLiteralWithLanguage(v, tag))
}

func TestEvaluateTable(t *testing.T) {
	b := binding.NewBinding()
	b.Set("x", rdf.NewIntegerLiteral(5))
	b.Set("name", rdf.NewLiteralWithLanguage("Alice", "en"))
	b.Set("p", rdf.NewNamedNode("http://ex/alice"))
	b.Set("when", rdf.NewLiteralWithDatatype("2024-03-15T10:20:30.5-05:00", rdf.XSDDateTime))

	tests := []struct {
		name string
		expr algebra.Expression
		want rdf.Term
	}{
		{"add integers", algebra.Binary(algebra.OpAdd, integer(2), integer(3)), rdf.NewIntegerLiteral(5)},
		{"integer division is decimal", algebra.Binary(algebra.OpDivide, integer(1), integer(4)), rdf.NewDecimalLiteral(0.25)},
		{"promote to double", algebra.Binary(algebra.OpMultiply, integer(2), typed("1.5", rdf.XSDDouble)), rdf.NewLiteralWithDatatype("3", rdf.XSDDouble)},
		{"numeric equality across types", algebra.Binary(algebra.OpEqual, integer(1), typed("1.0", rdf.XSDDecimal)), rdf.NewBooleanLiteral(true)},
		{"string order", algebra.Binary(algebra.OpLessThan, str("abc"), str("abd")), rdf.NewBooleanLiteral(true)},
		{"variable compare", algebra.Binary(algebra.OpGreaterThan, algebra.VarExpr("x"), integer(3)), rdf.NewBooleanLiteral(true)},
		{"negate", &algebra.UnaryExpression{Operator: algebra.OpNegate, Operand: algebra.VarExpr("x")}, rdf.NewIntegerLiteral(-5)},
		{"not", &algebra.UnaryExpression{Operator: algebra.OpNot, Operand: str("")}, rdf.NewBooleanLiteral(true)},
		{"in", &algebra.InExpression{Expression: algebra.VarExpr("x"), Values: []algebra.Expression{integer(1), integer(5)}}, rdf.NewBooleanLiteral(true)},
		{"not in", &algebra.InExpression{Expression: algebra.VarExpr("x"), Values: []algebra.Expression{integer(1)}, Not: true}, rdf.NewBooleanLiteral(true)},

		{"bound", algebra.Call("bound", algebra.VarExpr("x")), rdf.NewBooleanLiteral(true)},
		{"unbound", algebra.Call("BOUND", algebra.VarExpr("nope")), rdf.NewBooleanLiteral(false)},
		{"if", algebra.Call("IF", algebra.Binary(algebra.OpLessThan, algebra.VarExpr("x"), integer(3)), str("small"), str("big")), rdf.NewLiteral("big")},
		{"coalesce skips errors", algebra.Call("COALESCE", algebra.VarExpr("nope"), integer(7)), rdf.NewIntegerLiteral(7)},
		{"str of iri", algebra.Call("STR", algebra.VarExpr("p")), rdf.NewLiteral("http://ex/alice")},
		{"lang", algebra.Call("LANG", algebra.VarExpr("name")), rdf.NewLiteral("en")},
		{"datatype", algebra.Call("DATATYPE", algebra.VarExpr("x")), rdf.XSDInteger},
		{"langMatches", algebra.Call("langMatches", str("en-GB"), str("en")), rdf.NewBooleanLiteral(true)},
		{"langMatches star", algebra.Call("langMatches", str(""), str("*")), rdf.NewBooleanLiteral(false)},
		{"iri", algebra.Call("IRI", str("http://ex/x")), rdf.NewNamedNode("http://ex/x")},
		{"strlang", algebra.Call("STRLANG", str("chat"), str("fr")), rdf.NewLiteralWithLanguage("chat", "fr")},
		{"strdt", algebra.Call("STRDT", str("7"), algebra.TermExpr(rdf.XSDInteger)), rdf.NewIntegerLiteral(7)},

		{"strlen counts characters", algebra.Call("STRLEN", str("héllo")), rdf.NewIntegerLiteral(5)},
		{"substr", algebra.Call("SUBSTR", str("foobar"), integer(4)), rdf.NewLiteral("bar")},
		{"substr with length", algebra.Call("SUBSTR", str("héllo"), integer(2), integer(3)), rdf.NewLiteral("éll")},
		{"ucase keeps language", algebra.Call("UCASE", algebra.VarExpr("name")), rdf.NewLiteralWithLanguage("ALICE", "en")},
		{"lcase", algebra.Call("LCASE", str("ÀB")), rdf.NewLiteral("àb")},
		{"concat", algebra.Call("CONCAT", str("a"), str("b"), str("c")), rdf.NewLiteral("abc")},
		{"concat same language", algebra.Call("CONCAT", lang("a", "en"), lang("b", "en")), rdf.NewLiteralWithLanguage("ab", "en")},
		{"contains", algebra.Call("CONTAINS", algebra.VarExpr("name"), str("lic")), rdf.NewBooleanLiteral(true)},
		{"strstarts", algebra.Call("STRSTARTS", str("foobar"), str("foo")), rdf.NewBooleanLiteral(true)},
		{"strends", algebra.Call("STRENDS", str("foobar"), str("foo")), rdf.NewBooleanLiteral(false)},
		{"strbefore", algebra.Call("STRBEFORE", str("abc"), str("b")), rdf.NewLiteral("a")},
		{"strafter", algebra.Call("STRAFTER", lang("abc", "en"), str("b")), rdf.NewLiteralWithLanguage("c", "en")},
		{"strafter no match", algebra.Call("STRAFTER", str("abc"), str("z")), rdf.NewLiteral("")},
		{"encode_for_uri", algebra.Call("ENCODE_FOR_URI", str("Los Angeles/é")), rdf.NewLiteral("Los%20Angeles%2F%C3%A9")},
		{"regex", algebra.Call("REGEX", str("Alice"), str("^ali"), str("i")), rdf.NewBooleanLiteral(true)},
		{"regex quoted", algebra.Call("REGEX", str("a.c"), str("."), str("q")), rdf.NewBooleanLiteral(true)},
		{"replace", algebra.Call("REPLACE", str("abcd"), str("(b)(c)"), str("$2$1")), rdf.NewLiteral("acbd")},

		{"abs", algebra.Call("ABS", integer(-3)), rdf.NewIntegerLiteral(3)},
		{"ceil", algebra.Call("CEIL", typed("1.2", rdf.XSDDecimal)), rdf.NewDecimalLiteral(2)},
		{"floor", algebra.Call("FLOOR", typed("-1.2", rdf.XSDDecimal)), rdf.NewDecimalLiteral(-2)},
		{"round half up", algebra.Call("ROUND", typed("2.5", rdf.XSDDecimal)), rdf.NewDecimalLiteral(3)},

		{"year", algebra.Call("YEAR", algebra.VarExpr("when")), rdf.NewIntegerLiteral(2024)},
		{"hours keep lexical zone", algebra.Call("HOURS", algebra.VarExpr("when")), rdf.NewIntegerLiteral(10)},
		{"seconds", algebra.Call("SECONDS", algebra.VarExpr("when")), rdf.NewDecimalLiteral(30.5)},
		{"timezone", algebra.Call("TIMEZONE", algebra.VarExpr("when")), rdf.NewLiteralWithDatatype("-PT5H", rdf.XSDDayTimeDuration)},
		{"tz", algebra.Call("TZ", algebra.VarExpr("when")), rdf.NewLiteral("-05:00")},

		{"md5", algebra.Call("MD5", str("abc")), rdf.NewLiteral("900150983cd24fb0d6963f7d28e17f72")},
		{"sha1", algebra.Call("SHA1", str("abc")), rdf.NewLiteral("a9993e364706816aba3e25717850c26c9cd0d89d")},
		{"sha256", algebra.Call("SHA256", str("abc")), rdf.NewLiteral("ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad")},

		{"isIRI", algebra.Call("isIRI", algebra.VarExpr("p")), rdf.NewBooleanLiteral(true)},
		{"isLiteral", algebra.Call("isLITERAL", algebra.VarExpr("p")), rdf.NewBooleanLiteral(false)},
		{"isNumeric", algebra.Call("isNumeric", typed("abc", rdf.XSDInteger)), rdf.NewBooleanLiteral(false)},
		{"sameTerm is strict", algebra.Call("sameTerm", integer(1), typed("1.0", rdf.XSDDecimal)), rdf.NewBooleanLiteral(false)},

		{"cast integer", algebra.Call(rdf.XSDInteger.IRI, str(" 42 ")), rdf.NewIntegerLiteral(42)},
		{"cast truncates", algebra.Call(rdf.XSDInteger.IRI, typed("3.9", rdf.XSDDouble)), rdf.NewIntegerLiteral(3)},
		{"cast boolean", algebra.Call(rdf.XSDBoolean.IRI, integer(0)), rdf.NewBooleanLiteral(false)},
		{"cast string of number", algebra.Call(rdf.XSDString.IRI, integer(12)), rdf.NewLiteral("12")},
		{"cast decimal", algebra.Call(rdf.XSDDecimal.IRI, str("2.50")), rdf.NewDecimalLiteral(2.5)},
	}

	ev := NewEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ev.Evaluate(tt.expr, b)
			require.NoError(t, err)
			assert.True(t, tt.want.Equals(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestEvaluationErrors(t *testing.T) {
	b := binding.NewBinding()
	b.Set("p", rdf.NewNamedNode("http://ex/p"))
	ev := NewEvaluator()

	tests := []struct {
		name string
		expr algebra.Expression
		kind error
	}{
		{"unbound", algebra.VarExpr("missing"), ErrUnbound},
		{"add string", algebra.Binary(algebra.OpAdd, integer(1), str("a")), ErrTypeError},
		{"order iri", algebra.Binary(algebra.OpLessThan, algebra.VarExpr("p"), integer(1)), ErrTypeError},
		{"decimal division by zero", algebra.Binary(algebra.OpDivide, integer(1), integer(0)), ErrTypeError},
		{"unknown datatype equality", algebra.Binary(algebra.OpEqual, typed("a", rdf.NewNamedNode("http://ex/dt")), typed("b", rdf.NewNamedNode("http://ex/dt"))), ErrTypeError},
		{"lang of iri", algebra.Call("LANG", algebra.VarExpr("p")), ErrTypeError},
		{"incompatible languages", algebra.Call("CONTAINS", lang("a", "en"), lang("a", "fr")), ErrTypeError},
		{"bad language tag", algebra.Call("STRLANG", str("x"), str("not a tag!")), ErrTypeError},
		{"unknown function", algebra.Call("NOPE"), ErrUnknownFunction},
		{"timezone missing", algebra.Call("TIMEZONE", typed("2024-01-01T00:00:00", rdf.XSDDateTime)), ErrTypeError},
		{"exists without hook", &algebra.ExistsExpression{Pattern: &algebra.BGP{}}, ErrUnknownFunction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ev.Evaluate(tt.expr, b)
			require.Error(t, err)
			assert.True(t, IsEvaluationError(err))
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestThreeValuedLogic(t *testing.T) {
	ev := NewEvaluator()
	b := binding.NewBinding()
	unbound := algebra.VarExpr("u")
	yes := algebra.TermExpr(rdf.NewBooleanLiteral(true))
	no := algebra.TermExpr(rdf.NewBooleanLiteral(false))

	got, err := ev.EvaluateBool(algebra.Binary(algebra.OpOr, unbound, yes), b)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = ev.EvaluateBool(algebra.Binary(algebra.OpAnd, unbound, no), b)
	require.NoError(t, err)
	assert.False(t, got)

	_, err = ev.EvaluateBool(algebra.Binary(algebra.OpAnd, unbound, yes), b)
	assert.ErrorIs(t, err, ErrUnbound)

	_, err = ev.EvaluateBool(algebra.Binary(algebra.OpOr, no, unbound), b)
	assert.ErrorIs(t, err, ErrUnbound)
}

func TestEffectiveBooleanValue(t *testing.T) {
	tests := []struct {
		term rdf.Term
		want bool
	}{
		{rdf.NewBooleanLiteral(true), true},
		{rdf.NewLiteralWithDatatype("maybe", rdf.XSDBoolean), false},
		{rdf.NewIntegerLiteral(0), false},
		{rdf.NewLiteralWithDatatype("NaN", rdf.XSDDouble), false},
		{rdf.NewLiteralWithDatatype("0.5", rdf.XSDDecimal), true},
		{rdf.NewLiteral(""), false},
		{rdf.NewLiteral("x"), true},
	}
	for _, tt := range tests {
		got, err := EffectiveBooleanValue(tt.term)
		require.NoError(t, err, tt.term)
		assert.Equal(t, tt.want, got, tt.term)
	}

	_, err := EffectiveBooleanValue(rdf.NewNamedNode("http://ex/x"))
	assert.ErrorIs(t, err, ErrTypeError)
	_, err = EffectiveBooleanValue(rdf.NewLiteralWithLanguage("x", "en"))
	assert.ErrorIs(t, err, ErrTypeError)
}

func TestExistsHook(t *testing.T) {
	var seen *binding.Binding
	ev := NewEvaluator(WithExists(func(pattern algebra.Node, b *binding.Binding) (bool, error) {
		seen = b
		return b.Len() > 0, nil
	}))
	b := binding.NewBinding()
	b.Set("x", rdf.NewIntegerLiteral(1))

	got, err := ev.EvaluateBool(&algebra.ExistsExpression{Pattern: &algebra.BGP{}}, b)
	require.NoError(t, err)
	assert.True(t, got)
	assert.Same(t, b, seen)

	got, err = ev.EvaluateBool(&algebra.ExistsExpression{Not: true, Pattern: &algebra.BGP{}}, b)
	require.NoError(t, err)
	assert.False(t, got)

	// Failures of the hook are not expression errors.
	boom := errors.New("storage down")
	ev = NewEvaluator(WithExists(func(algebra.Node, *binding.Binding) (bool, error) { return false, boom }))
	_, err = ev.Evaluate(algebra.Binary(algebra.OpOr, &algebra.ExistsExpression{Pattern: &algebra.BGP{}}, algebra.TermExpr(rdf.NewBooleanLiteral(true))), b)
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsEvaluationError(err))
}

func TestNowIsFixed(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ev := NewEvaluator(WithNow(now))
	got, err := ev.Evaluate(algebra.Call("NOW"), binding.NewBinding())
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T12:00:00Z", got.(*rdf.Literal).Value)
}

func TestBNodePerSolution(t *testing.T) {
	ev := NewEvaluator()
	b1 := binding.NewBinding()
	b1.Set("x", rdf.NewIntegerLiteral(1))
	b2 := binding.NewBinding()
	b2.Set("x", rdf.NewIntegerLiteral(2))
	call := algebra.Call("BNODE", str("k"))

	a1, err := ev.Evaluate(call, b1)
	require.NoError(t, err)
	a2, err := ev.Evaluate(call, b1)
	require.NoError(t, err)
	c, err := ev.Evaluate(call, b2)
	require.NoError(t, err)
	assert.True(t, a1.Equals(a2))
	assert.False(t, a1.Equals(c))

	f1, _ := ev.Evaluate(algebra.Call("BNODE"), b1)
	f2, _ := ev.Evaluate(algebra.Call("BNODE"), b1)
	assert.False(t, f1.Equals(f2))
}

func TestTripleFunctions(t *testing.T) {
	ev := NewEvaluator()
	s := algebra.TermExpr(rdf.NewNamedNode("http://ex/s"))
	p := algebra.TermExpr(rdf.NewNamedNode("http://ex/p"))
	triple := algebra.Call("TRIPLE", s, p, integer(1))

	got, err := ev.Evaluate(triple, binding.NewBinding())
	require.NoError(t, err)
	require.Equal(t, rdf.TermTypeTriple, got.Type())

	obj, err := ev.Evaluate(algebra.Call("OBJECT", triple), binding.NewBinding())
	require.NoError(t, err)
	assert.True(t, rdf.NewIntegerLiteral(1).Equals(obj))

	is, err := ev.EvaluateBool(algebra.Call("isTRIPLE", triple), binding.NewBinding())
	require.NoError(t, err)
	assert.True(t, is)

	_, err = ev.Evaluate(algebra.Call("TRIPLE", integer(1), p, s), binding.NewBinding())
	assert.ErrorIs(t, err, ErrTypeError)
}

func TestOrderCompare(t *testing.T) {
	ordered := []rdf.Term{
		nil,
		rdf.NewBlankNode("a"),
		rdf.NewNamedNode("http://ex/a"),
		rdf.NewNamedNode("http://ex/b"),
		rdf.NewIntegerLiteral(2),
		rdf.NewLiteralWithDatatype("2.5", rdf.XSDDecimal),
		rdf.NewIntegerLiteral(10),
		rdf.NewBooleanLiteral(false),
		rdf.NewBooleanLiteral(true),
		rdf.NewLiteralWithDatatype("2020-01-01T00:00:00Z", rdf.XSDDateTime),
		rdf.NewLiteral("1x"),
		rdf.NewLiteral("b"),
		rdf.NewLiteralWithLanguage("a", "en"),
		rdf.NewLiteralWithDatatype("x", rdf.NewNamedNode("http://ex/dt")),
		rdf.NewTripleTerm(rdf.NewNamedNode("http://ex/s"), rdf.NewNamedNode("http://ex/p"), rdf.NewIntegerLiteral(1)),
	}
	for i := range ordered {
		for j := range ordered {
			got := OrderCompare(ordered[i], ordered[j])
			switch {
			case i < j:
				assert.Negative(t, got, "%v < %v", ordered[i], ordered[j])
			case i > j:
				assert.Positive(t, got, "%v > %v", ordered[i], ordered[j])
			default:
				assert.Zero(t, got)
			}
		}
	}
}
