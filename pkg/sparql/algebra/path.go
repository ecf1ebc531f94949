package algebra

import (
	"github.com/aleksaelezovic/quadra/pkg/rdf"
)

// PathExpression is a property path.
type PathExpression interface {
	pathNode()
}

// PathLink is a single predicate.
type PathLink struct {
	Predicate *rdf.NamedNode
}

// PathInverse is ^path.
type PathInverse struct {
	Path PathExpression
}

// PathSequence is left/right.
type PathSequence struct {
	Left  PathExpression
	Right PathExpression
}

// PathAlternative is left|right.
type PathAlternative struct {
	Left  PathExpression
	Right PathExpression
}

// PathZeroOrMore is path*.
type PathZeroOrMore struct {
	Path PathExpression
}

// PathOneOrMore is path+.
type PathOneOrMore struct {
	Path PathExpression
}

// PathZeroOrOne is path?.
type PathZeroOrOne struct {
	Path PathExpression
}

// PathNegatedSet is !(a|^b): any single edge whose predicate is not in
// Forward, or any inverse edge whose predicate is not in Inverse. An empty
// list disables that direction.
type PathNegatedSet struct {
	Forward []*rdf.NamedNode
	Inverse []*rdf.NamedNode
}

func (*PathLink) pathNode()        {}
func (*PathInverse) pathNode()     {}
func (*PathSequence) pathNode()    {}
func (*PathAlternative) pathNode() {}
func (*PathZeroOrMore) pathNode()  {}
func (*PathOneOrMore) pathNode()   {}
func (*PathZeroOrOne) pathNode()   {}
func (*PathNegatedSet) pathNode()  {}

// Link is a PathLink on iri.
func Link(iri string) *PathLink {
	return &PathLink{Predicate: rdf.NewNamedNode(iri)}
}

// Seq folds paths into a left-deep sequence.
func Seq(paths ...PathExpression) PathExpression {
	p := paths[0]
	for _, next := range paths[1:] {
		p = &PathSequence{Left: p, Right: next}
	}
	return p
}

// Alt folds paths into a left-deep alternative.
func Alt(paths ...PathExpression) PathExpression {
	p := paths[0]
	for _, next := range paths[1:] {
		p = &PathAlternative{Left: p, Right: next}
	}
	return p
}
