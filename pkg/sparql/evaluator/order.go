package evaluator

import (
	"math"
	"strings"

	"github.com/aleksaelezovic/quadra/pkg/rdf"
)

// Term kinds in ORDER BY order. nil stands for an unbound value.
func termRank(t rdf.Term) int {
	switch t.(type) {
	case nil:
		return 0
	case *rdf.BlankNode:
		return 1
	case *rdf.NamedNode:
		return 2
	case *rdf.Literal:
		return 3
	case *rdf.TripleTerm:
		return 4
	default:
		return 5
	}
}

// Literal classes inside the literal rank. Values are compared only
// within a class, which keeps the order total.
const (
	classNumeric = iota
	classBoolean
	classDateTime
	classString
	classLangString
	classOther
)

func literalClass(l *rdf.Literal) int {
	if _, ok := parseNumeric(l); ok {
		return classNumeric
	}
	switch l.DatatypeIRI() {
	case rdf.XSDBoolean.IRI:
		if _, ok := parseBoolean(l.Value); ok {
			return classBoolean
		}
	case rdf.XSDDateTime.IRI:
		if _, err := parseDateTime(l.Value); err == nil {
			return classDateTime
		}
	case rdf.XSDString.IRI:
		return classString
	case rdf.RDFLangString.IRI:
		return classLangString
	}
	return classOther
}

// OrderCompare is the total order used by ORDER BY, MIN and MAX: unbound <
// blank node < IRI < literal < triple term. Literals compare by value
// inside their class and fall back to their canonical form.
func OrderCompare(a, b rdf.Term) int {
	ra, rb := termRank(a), termRank(b)
	if ra != rb {
		return ra - rb
	}
	switch x := a.(type) {
	case nil:
		return 0
	case *rdf.BlankNode:
		return strings.Compare(x.ID, b.(*rdf.BlankNode).ID)
	case *rdf.NamedNode:
		return strings.Compare(x.IRI, b.(*rdf.NamedNode).IRI)
	case *rdf.Literal:
		return compareLiterals(x, b.(*rdf.Literal))
	case *rdf.TripleTerm:
		y := b.(*rdf.TripleTerm)
		if c := OrderCompare(x.Subject, y.Subject); c != 0 {
			return c
		}
		if c := OrderCompare(x.Predicate, y.Predicate); c != 0 {
			return c
		}
		return OrderCompare(x.Object, y.Object)
	}
	return strings.Compare(a.String(), b.String())
}

func compareLiterals(a, b *rdf.Literal) int {
	ca, cb := literalClass(a), literalClass(b)
	if ca != cb {
		return ca - cb
	}
	switch ca {
	case classNumeric:
		na, _ := parseNumeric(a)
		nb, _ := parseNumeric(b)
		if c, nan := compareNumeric(na, nb); !nan && c != 0 {
			return c
		} else if nan {
			// NaN sorts before every other number.
			an, bn := math.IsNaN(na.float()), math.IsNaN(nb.float())
			if an != bn {
				if an {
					return -1
				}
				return 1
			}
		}
	case classBoolean:
		va, _ := parseBoolean(a.Value)
		vb, _ := parseBoolean(b.Value)
		if c := boolCompare(va, vb); c != 0 {
			return c
		}
	case classDateTime:
		da, _ := parseDateTime(a.Value)
		db, _ := parseDateTime(b.Value)
		if c := da.t.Compare(db.t); c != 0 {
			return c
		}
	case classString:
		return strings.Compare(a.Value, b.Value)
	case classLangString:
		if c := strings.Compare(a.Value, b.Value); c != 0 {
			return c
		}
		return strings.Compare(a.Language, b.Language)
	}
	return strings.Compare(a.String(), b.String())
}
