package evaluator

import (
	"math"
	"strconv"
	"strings"

	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/aleksaelezovic/quadra/pkg/sparql/algebra"
	"github.com/aleksaelezovic/quadra/pkg/sparql/binding"
)

// evaluateTypeCast implements the XSD constructor functions.
func (e *Evaluator) evaluateTypeCast(args []algebra.Expression, b *binding.Binding, datatypeIRI string) (rdf.Term, error) {
	if len(args) != 1 {
		return nil, arity(datatypeIRI, 1)
	}
	term, err := e.Evaluate(args[0], b)
	if err != nil {
		return nil, err
	}

	switch datatypeIRI {
	case rdf.XSDString.IRI:
		return castString(term)
	case rdf.XSDInteger.IRI:
		return castInteger(term)
	case rdf.XSDDecimal.IRI:
		return castFloating(term, kindDecimal)
	case rdf.XSDFloat.IRI:
		return castFloating(term, kindFloat)
	case rdf.XSDDouble.IRI:
		return castFloating(term, kindDouble)
	case rdf.XSDBoolean.IRI:
		return castBoolean(term)
	case rdf.XSDDateTime.IRI:
		return castDateTime(term)
	default:
		return nil, &EvaluationError{Kind: ErrUnknownFunction, Msg: datatypeIRI}
	}
}

func castString(term rdf.Term) (rdf.Term, error) {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return rdf.NewLiteral(t.IRI), nil
	case *rdf.Literal:
		if n, ok := parseNumeric(t); ok {
			return rdf.NewLiteral(n.literal().Value), nil
		}
		return rdf.NewLiteral(t.Value), nil
	}
	return nil, typeError("cannot cast %v to xsd:string", term)
}

// castSource returns the literal to cast from. Language-tagged strings
// cannot be cast.
func castSource(term rdf.Term, target string) (*rdf.Literal, error) {
	lit, ok := term.(*rdf.Literal)
	if !ok || lit.Language != "" {
		return nil, typeError("cannot cast %v to %s", term, target)
	}
	return lit, nil
}

func castInteger(term rdf.Term) (rdf.Term, error) {
	lit, err := castSource(term, "xsd:integer")
	if err != nil {
		return nil, err
	}
	if n, ok := parseNumeric(lit); ok {
		if n.kind == kindInteger {
			return n.literal(), nil
		}
		f := math.Trunc(n.f)
		if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
			return nil, typeError("cannot cast %s to xsd:integer", lit)
		}
		return rdf.NewIntegerLiteral(int64(f)), nil
	}
	switch lit.DatatypeIRI() {
	case rdf.XSDBoolean.IRI:
		v, ok := parseBoolean(lit.Value)
		if !ok {
			break
		}
		if v {
			return rdf.NewIntegerLiteral(1), nil
		}
		return rdf.NewIntegerLiteral(0), nil
	case rdf.XSDString.IRI:
		i, err := strconv.ParseInt(strings.TrimSpace(lit.Value), 10, 64)
		if err == nil {
			return rdf.NewIntegerLiteral(i), nil
		}
	}
	return nil, typeError("cannot cast %s to xsd:integer", lit)
}

func castFloating(term rdf.Term, kind numericKind) (rdf.Term, error) {
	target := map[numericKind]string{kindDecimal: "xsd:decimal", kindFloat: "xsd:float", kindDouble: "xsd:double"}[kind]
	lit, err := castSource(term, target)
	if err != nil {
		return nil, err
	}

	var f float64
	if n, ok := parseNumeric(lit); ok {
		f = n.float()
	} else {
		switch lit.DatatypeIRI() {
		case rdf.XSDBoolean.IRI:
			v, ok := parseBoolean(lit.Value)
			if !ok {
				return nil, typeError("cannot cast %s to %s", lit, target)
			}
			if v {
				f = 1
			}
		case rdf.XSDString.IRI:
			v := strings.TrimSpace(lit.Value)
			if kind == kindDecimal && strings.ContainsAny(v, "eEnNiI") {
				return nil, typeError("cannot cast %s to %s", lit, target)
			}
			f, err = parseXSDFloat(v)
			if err != nil {
				return nil, typeError("cannot cast %s to %s", lit, target)
			}
		default:
			return nil, typeError("cannot cast %s to %s", lit, target)
		}
	}
	if kind == kindDecimal && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil, typeError("cannot cast %s to %s", lit, target)
	}
	if kind == kindFloat {
		f = float64(float32(f))
	}
	return numeric{kind: kind, f: f}.literal(), nil
}

func castBoolean(term rdf.Term) (rdf.Term, error) {
	lit, err := castSource(term, "xsd:boolean")
	if err != nil {
		return nil, err
	}
	if n, ok := parseNumeric(lit); ok {
		if n.kind == kindInteger {
			return rdf.NewBooleanLiteral(n.i != 0), nil
		}
		return rdf.NewBooleanLiteral(n.f != 0 && !math.IsNaN(n.f)), nil
	}
	switch lit.DatatypeIRI() {
	case rdf.XSDBoolean.IRI, rdf.XSDString.IRI:
		if v, ok := parseBoolean(lit.Value); ok {
			return rdf.NewBooleanLiteral(v), nil
		}
	}
	return nil, typeError("cannot cast %s to xsd:boolean", lit)
}

func castDateTime(term rdf.Term) (rdf.Term, error) {
	lit, err := castSource(term, "xsd:dateTime")
	if err != nil {
		return nil, err
	}
	switch lit.DatatypeIRI() {
	case rdf.XSDDateTime.IRI, rdf.XSDString.IRI:
		if _, err := parseDateTime(lit.Value); err == nil {
			return rdf.NewLiteralWithDatatype(strings.TrimSpace(lit.Value), rdf.XSDDateTime), nil
		}
	}
	return nil, typeError("cannot cast %s to xsd:dateTime", lit)
}
