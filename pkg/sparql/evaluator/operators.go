package evaluator

import (
	"math"
	"strconv"
	"strings"

	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/aleksaelezovic/quadra/pkg/sparql/algebra"
	"github.com/aleksaelezovic/quadra/pkg/sparql/binding"
)

// evaluateBinaryExpression evaluates binary operations
func (e *Evaluator) evaluateBinaryExpression(expr *algebra.BinaryExpression, b *binding.Binding) (rdf.Term, error) {
	if expr.Operator == algebra.OpAnd || expr.Operator == algebra.OpOr {
		return e.evaluateLogical(expr, b)
	}

	left, err := e.Evaluate(expr.Left, b)
	if err != nil {
		return nil, err
	}
	right, err := e.Evaluate(expr.Right, b)
	if err != nil {
		return nil, err
	}

	switch expr.Operator {
	case algebra.OpEqual:
		eq, err := valueEqual(left, right)
		if err != nil {
			return nil, err
		}
		return rdf.NewBooleanLiteral(eq), nil
	case algebra.OpNotEqual:
		eq, err := valueEqual(left, right)
		if err != nil {
			return nil, err
		}
		return rdf.NewBooleanLiteral(!eq), nil
	case algebra.OpLessThan, algebra.OpLessThanOrEqual, algebra.OpGreaterThan, algebra.OpGreaterThanOrEqual:
		return compareOp(expr.Operator, left, right)
	case algebra.OpAdd, algebra.OpSubtract, algebra.OpMultiply, algebra.OpDivide:
		return Arithmetic(expr.Operator, left, right)
	default:
		return nil, typeError("unsupported binary operator %v", expr.Operator)
	}
}

// evaluateUnaryExpression evaluates unary operations
func (e *Evaluator) evaluateUnaryExpression(expr *algebra.UnaryExpression, b *binding.Binding) (rdf.Term, error) {
	operand, err := e.Evaluate(expr.Operand, b)
	if err != nil {
		return nil, err
	}

	switch expr.Operator {
	case algebra.OpNot:
		ebv, err := EffectiveBooleanValue(operand)
		if err != nil {
			return nil, err
		}
		return rdf.NewBooleanLiteral(!ebv), nil
	case algebra.OpNegate:
		n, ok := parseNumeric(operand)
		if !ok {
			return nil, typeError("cannot negate %s", operand)
		}
		if n.kind == kindInteger && n.i != math.MinInt64 {
			n.i = -n.i
		} else {
			n = numeric{kind: max(n.kind, kindDecimal), f: -n.float()}
		}
		return n.literal(), nil
	case algebra.OpPlus:
		n, ok := parseNumeric(operand)
		if !ok {
			return nil, typeError("unary plus on %s", operand)
		}
		return n.literal(), nil
	default:
		return nil, typeError("unsupported unary operator %v", expr.Operator)
	}
}

// evaluateLogical implements && and || over three-valued logic: an error
// on one side is absorbed when the other side decides the result.
func (e *Evaluator) evaluateLogical(expr *algebra.BinaryExpression, b *binding.Binding) (rdf.Term, error) {
	and := expr.Operator == algebra.OpAnd

	left, lerr := e.EvaluateBool(expr.Left, b)
	if lerr != nil && !IsEvaluationError(lerr) {
		return nil, lerr
	}
	if lerr == nil && left != and {
		return rdf.NewBooleanLiteral(left), nil
	}

	right, rerr := e.EvaluateBool(expr.Right, b)
	if rerr != nil && !IsEvaluationError(rerr) {
		return nil, rerr
	}
	if rerr == nil && right != and {
		return rdf.NewBooleanLiteral(right), nil
	}

	if lerr != nil {
		return nil, lerr
	}
	if rerr != nil {
		return nil, rerr
	}
	return rdf.NewBooleanLiteral(and), nil
}

// EffectiveBooleanValue computes the EBV of a term. Booleans and numbers
// with an invalid lexical form are false.
func EffectiveBooleanValue(term rdf.Term) (bool, error) {
	lit, ok := term.(*rdf.Literal)
	if !ok {
		return false, typeError("no effective boolean value for %v", term)
	}
	switch dt := lit.DatatypeIRI(); {
	case dt == rdf.XSDBoolean.IRI:
		v, ok := parseBoolean(lit.Value)
		return ok && v, nil
	case isNumericDatatype(dt):
		n, ok := parseNumeric(lit)
		if !ok {
			return false, nil
		}
		if n.kind == kindInteger {
			return n.i != 0, nil
		}
		return n.f != 0 && !math.IsNaN(n.f), nil
	case lit.IsPlain():
		return lit.Value != "", nil
	default:
		return false, typeError("no effective boolean value for %s", lit)
	}
}

func parseBoolean(s string) (bool, bool) {
	switch strings.TrimSpace(s) {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	}
	return false, false
}

// Comparison

// valueEqual is the SPARQL = operator.
func valueEqual(left, right rdf.Term) (bool, error) {
	ll, lok := left.(*rdf.Literal)
	rl, rok := right.(*rdf.Literal)
	if lok && rok {
		return literalEqual(ll, rl)
	}
	lt, lok := left.(*rdf.TripleTerm)
	rt, rok := right.(*rdf.TripleTerm)
	if lok && rok {
		for _, pair := range [][2]rdf.Term{{lt.Subject, rt.Subject}, {lt.Predicate, rt.Predicate}, {lt.Object, rt.Object}} {
			eq, err := valueEqual(pair[0], pair[1])
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	}
	return left.Equals(right), nil
}

func literalEqual(l, r *rdf.Literal) (bool, error) {
	if ln, ok := parseNumeric(l); ok {
		if rn, ok := parseNumeric(r); ok {
			c, nan := compareNumeric(ln, rn)
			return !nan && c == 0, nil
		}
	}
	ldt, rdt := l.DatatypeIRI(), r.DatatypeIRI()
	switch {
	case ldt == rdf.XSDBoolean.IRI && rdt == rdf.XSDBoolean.IRI:
		lv, lok := parseBoolean(l.Value)
		rv, rok := parseBoolean(r.Value)
		if lok && rok {
			return lv == rv, nil
		}
	case ldt == rdf.XSDDateTime.IRI && rdt == rdf.XSDDateTime.IRI:
		lv, lerr := parseDateTime(l.Value)
		rv, rerr := parseDateTime(r.Value)
		if lerr == nil && rerr == nil {
			return lv.t.Equal(rv.t), nil
		}
	}
	if l.Equals(r) {
		return true, nil
	}
	if !knownDatatype(l) || !knownDatatype(r) {
		return false, typeError("cannot compare %s and %s", l, r)
	}
	return false, nil
}

// knownDatatype reports whether values of the literal's datatype are
// understood, so that inequality of terms means inequality of values.
func knownDatatype(l *rdf.Literal) bool {
	dt := l.DatatypeIRI()
	if isNumericDatatype(dt) {
		_, ok := parseNumeric(l)
		return ok
	}
	switch dt {
	case rdf.XSDString.IRI, rdf.RDFLangString.IRI:
		return true
	case rdf.XSDBoolean.IRI:
		_, ok := parseBoolean(l.Value)
		return ok
	case rdf.XSDDateTime.IRI:
		_, err := parseDateTime(l.Value)
		return err == nil
	}
	return false
}

func compareOp(op algebra.Operator, left, right rdf.Term) (rdf.Term, error) {
	c, nan, err := compareValues(left, right)
	if err != nil {
		return nil, err
	}
	if nan {
		return rdf.NewBooleanLiteral(false), nil
	}
	var result bool
	switch op {
	case algebra.OpLessThan:
		result = c < 0
	case algebra.OpLessThanOrEqual:
		result = c <= 0
	case algebra.OpGreaterThan:
		result = c > 0
	case algebra.OpGreaterThanOrEqual:
		result = c >= 0
	}
	return rdf.NewBooleanLiteral(result), nil
}

// compareValues orders two values of a comparable kind. nan is set when a
// NaN makes every ordering false.
func compareValues(left, right rdf.Term) (c int, nan bool, err error) {
	l, lok := left.(*rdf.Literal)
	r, rok := right.(*rdf.Literal)
	if !lok || !rok {
		return 0, false, typeError("cannot order %v and %v", left, right)
	}
	if ln, ok := parseNumeric(l); ok {
		if rn, ok := parseNumeric(r); ok {
			c, nan := compareNumeric(ln, rn)
			return c, nan, nil
		}
	}
	ldt, rdt := l.DatatypeIRI(), r.DatatypeIRI()
	switch {
	case l.IsPlain() && r.IsPlain():
		return strings.Compare(l.Value, r.Value), false, nil
	case ldt == rdf.XSDBoolean.IRI && rdt == rdf.XSDBoolean.IRI:
		lv, lok := parseBoolean(l.Value)
		rv, rok := parseBoolean(r.Value)
		if lok && rok {
			return boolCompare(lv, rv), false, nil
		}
	case ldt == rdf.XSDDateTime.IRI && rdt == rdf.XSDDateTime.IRI:
		lv, lerr := parseDateTime(l.Value)
		rv, rerr := parseDateTime(r.Value)
		if lerr == nil && rerr == nil {
			return lv.t.Compare(rv.t), false, nil
		}
	}
	return 0, false, typeError("cannot order %s and %s", l, r)
}

func boolCompare(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

// Numbers

type numericKind int

// Promotion order: a binary operation yields the larger kind.
const (
	kindInteger numericKind = iota
	kindDecimal
	kindFloat
	kindDouble
)

type numeric struct {
	kind numericKind
	i    int64
	f    float64
}

func (n numeric) float() float64 {
	if n.kind == kindInteger {
		return float64(n.i)
	}
	return n.f
}

func (n numeric) literal() *rdf.Literal {
	switch n.kind {
	case kindInteger:
		return rdf.NewIntegerLiteral(n.i)
	case kindDecimal:
		return rdf.NewDecimalLiteral(n.f)
	case kindFloat:
		return rdf.NewLiteralWithDatatype(formatFloat(n.f, 32), rdf.XSDFloat)
	default:
		return rdf.NewLiteralWithDatatype(formatFloat(n.f, 64), rdf.XSDDouble)
	}
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

const xsd = "http://www.w3.org/2001/XMLSchema#"

var integerDatatypes = map[string]bool{
	xsd + "integer":            true,
	xsd + "int":                true,
	xsd + "long":               true,
	xsd + "short":              true,
	xsd + "byte":               true,
	xsd + "nonNegativeInteger": true,
	xsd + "nonPositiveInteger": true,
	xsd + "negativeInteger":    true,
	xsd + "positiveInteger":    true,
	xsd + "unsignedLong":       true,
	xsd + "unsignedInt":        true,
	xsd + "unsignedShort":      true,
	xsd + "unsignedByte":       true,
}

func isNumericDatatype(dt string) bool {
	return integerDatatypes[dt] || dt == rdf.XSDDecimal.IRI || dt == rdf.XSDFloat.IRI || dt == rdf.XSDDouble.IRI
}

// parseNumeric reads the value of a numeric literal with a valid lexical
// form.
func parseNumeric(term rdf.Term) (numeric, bool) {
	lit, ok := term.(*rdf.Literal)
	if !ok || lit.Datatype == nil {
		return numeric{}, false
	}
	dt := lit.Datatype.IRI
	v := strings.TrimSpace(lit.Value)
	switch {
	case integerDatatypes[dt]:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return numeric{}, false
		}
		return numeric{kind: kindInteger, i: i}, true
	case dt == rdf.XSDDecimal.IRI:
		if v == "" || strings.ContainsAny(v, "eEnNiI") {
			return numeric{}, false
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return numeric{}, false
		}
		return numeric{kind: kindDecimal, f: f}, true
	case dt == rdf.XSDFloat.IRI || dt == rdf.XSDDouble.IRI:
		f, err := parseXSDFloat(v)
		if err != nil {
			return numeric{}, false
		}
		if dt == rdf.XSDFloat.IRI {
			return numeric{kind: kindFloat, f: float64(float32(f))}, true
		}
		return numeric{kind: kindDouble, f: f}, true
	}
	return numeric{}, false
}

func parseXSDFloat(v string) (float64, error) {
	switch v {
	case "INF", "+INF":
		return math.Inf(1), nil
	case "-INF":
		return math.Inf(-1), nil
	case "NaN":
		return math.NaN(), nil
	}
	if strings.ContainsAny(v, "nNiI") {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseFloat(v, 64)
}

func compareNumeric(a, b numeric) (c int, nan bool) {
	if a.kind == kindInteger && b.kind == kindInteger {
		switch {
		case a.i < b.i:
			return -1, false
		case a.i > b.i:
			return 1, false
		}
		return 0, false
	}
	af, bf := a.float(), b.float()
	switch {
	case math.IsNaN(af) || math.IsNaN(bf):
		return 0, true
	case af < bf:
		return -1, false
	case af > bf:
		return 1, false
	}
	return 0, false
}

// Arithmetic applies + - * or / to two numeric terms with XSD type
// promotion. Integer division yields a decimal; division by zero is an
// error except for float and double.
func Arithmetic(op algebra.Operator, left, right rdf.Term) (rdf.Term, error) {
	a, aok := parseNumeric(left)
	b, bok := parseNumeric(right)
	if !aok || !bok {
		return nil, typeError("%s on non-numeric operands %v, %v", op, left, right)
	}
	n, err := arithmetic(op, a, b)
	if err != nil {
		return nil, err
	}
	return n.literal(), nil
}

func arithmetic(op algebra.Operator, a, b numeric) (numeric, error) {
	kind := max(a.kind, b.kind)
	if kind == kindInteger {
		if r, ok := integerArithmetic(op, a.i, b.i); ok {
			return numeric{kind: kindInteger, i: r}, nil
		}
		kind = kindDecimal
	}

	x, y := a.float(), b.float()
	var r float64
	switch op {
	case algebra.OpAdd:
		r = x + y
	case algebra.OpSubtract:
		r = x - y
	case algebra.OpMultiply:
		r = x * y
	case algebra.OpDivide:
		if y == 0 && kind == kindDecimal {
			return numeric{}, typeError("division by zero")
		}
		r = x / y
	default:
		return numeric{}, typeError("unsupported arithmetic operator %v", op)
	}
	if kind == kindFloat {
		r = float64(float32(r))
	}
	return numeric{kind: kind, f: r}, nil
}

// integerArithmetic reports false when the result is not an integer or
// overflows.
func integerArithmetic(op algebra.Operator, x, y int64) (int64, bool) {
	switch op {
	case algebra.OpAdd:
		r := x + y
		if (x > 0 && y > 0 && r < 0) || (x < 0 && y < 0 && r >= 0) {
			return 0, false
		}
		return r, true
	case algebra.OpSubtract:
		r := x - y
		if (x >= 0 && y < 0 && r < 0) || (x < 0 && y > 0 && r >= 0) {
			return 0, false
		}
		return r, true
	case algebra.OpMultiply:
		if x == 0 || y == 0 {
			return 0, true
		}
		r := x * y
		if r/y != x || (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
			return 0, false
		}
		return r, true
	}
	return 0, false
}
