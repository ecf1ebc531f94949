// Package algebra defines the SPARQL algebra tree evaluated by the
// executor and rewritten by the optimizer.
//
// A tree is built by the caller (usually a SPARQL parser) and is treated as
// immutable afterwards: the optimizer returns new nodes instead of
// modifying its input.
package algebra

import (
	"github.com/aleksaelezovic/quadra/pkg/rdf"
)

// Kind tags the variant of a Node.
type Kind int

const (
	KindBGP Kind = iota
	KindPath
	KindJoin
	KindLeftJoin
	KindFilter
	KindUnion
	KindGraph
	KindExtend
	KindMinus
	KindValues
	KindProject
	KindGroup
	KindOrderBy
	KindSlice
	KindDistinct
	KindReduced
	KindService
)

var kindNames = [...]string{
	KindBGP:      "bgp",
	KindPath:     "path",
	KindJoin:     "join",
	KindLeftJoin: "leftjoin",
	KindFilter:   "filter",
	KindUnion:    "union",
	KindGraph:    "graph",
	KindExtend:   "extend",
	KindMinus:    "minus",
	KindValues:   "values",
	KindProject:  "project",
	KindGroup:    "group",
	KindOrderBy:  "order",
	KindSlice:    "slice",
	KindDistinct: "distinct",
	KindReduced:  "reduced",
	KindService:  "service",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Node is an algebra operator. The set of implementations is closed;
// consumers switch on Kind().
type Node interface {
	Kind() Kind
	node()
}

// BGP is a conjunction of triple patterns.
type BGP struct {
	Patterns []*TriplePattern
}

// Path matches a property path between two endpoints.
type Path struct {
	Subject TermOrVariable
	Path    PathExpression
	Object  TermOrVariable
}

// Join is the natural join of two inputs.
type Join struct {
	Left  Node
	Right Node
}

// LeftJoin is OPTIONAL: every left solution survives, extended by the
// compatible right solutions for which Expression holds. A nil Expression
// is true.
type LeftJoin struct {
	Left       Node
	Right      Node
	Expression Expression
}

// Filter drops the solutions of Inner for which Expression is false or an
// error.
type Filter struct {
	Expression Expression
	Inner      Node
}

// Union concatenates two inputs.
type Union struct {
	Left  Node
	Right Node
}

// Graph evaluates Inner against the named graph Name, an IRI or a
// variable ranging over every named graph.
type Graph struct {
	Name  TermOrVariable
	Inner Node
}

// Extend is BIND: Variable gets the value of Expression, or stays unbound
// when the expression fails.
type Extend struct {
	Inner      Node
	Variable   *Variable
	Expression Expression
}

// Minus removes left solutions that are compatible with, and share a
// variable with, some right solution.
type Minus struct {
	Left  Node
	Right Node
}

// Values is an inline table. A nil cell is UNDEF.
type Values struct {
	Variables []*Variable
	Rows      [][]rdf.Term
}

// Project keeps only Variables.
type Project struct {
	Inner     Node
	Variables []*Variable
}

// Group partitions Inner by the By variables and computes one row per
// partition. With no By variables the whole input is one partition, which
// exists even when the input is empty.
type Group struct {
	Inner      Node
	By         []*Variable
	Aggregates []*AggregateBinding
}

// OrderBy sorts Inner by Conditions.
type OrderBy struct {
	Inner      Node
	Conditions []*OrderCondition
}

// NoLimit marks a Slice without LIMIT.
const NoLimit = -1

// Slice skips Offset solutions and returns at most Limit of the rest.
type Slice struct {
	Inner  Node
	Offset int
	Limit  int
}

// Distinct removes duplicate solutions.
type Distinct struct {
	Inner Node
}

// Reduced permits duplicate removal.
type Reduced struct {
	Inner Node
}

// Service sends Inner to a remote endpoint.
type Service struct {
	Name   TermOrVariable
	Inner  Node
	Silent bool
}

func (*BGP) Kind() Kind      { return KindBGP }
func (*Path) Kind() Kind     { return KindPath }
func (*Join) Kind() Kind     { return KindJoin }
func (*LeftJoin) Kind() Kind { return KindLeftJoin }
func (*Filter) Kind() Kind   { return KindFilter }
func (*Union) Kind() Kind    { return KindUnion }
func (*Graph) Kind() Kind    { return KindGraph }
func (*Extend) Kind() Kind   { return KindExtend }
func (*Minus) Kind() Kind    { return KindMinus }
func (*Values) Kind() Kind   { return KindValues }
func (*Project) Kind() Kind  { return KindProject }
func (*Group) Kind() Kind    { return KindGroup }
func (*OrderBy) Kind() Kind  { return KindOrderBy }
func (*Slice) Kind() Kind    { return KindSlice }
func (*Distinct) Kind() Kind { return KindDistinct }
func (*Reduced) Kind() Kind  { return KindReduced }
func (*Service) Kind() Kind  { return KindService }

func (*BGP) node()      {}
func (*Path) node()     {}
func (*Join) node()     {}
func (*LeftJoin) node() {}
func (*Filter) node()   {}
func (*Union) node()    {}
func (*Graph) node()    {}
func (*Extend) node()   {}
func (*Minus) node()    {}
func (*Values) node()   {}
func (*Project) node()  {}
func (*Group) node()    {}
func (*OrderBy) node()  {}
func (*Slice) node()    {}
func (*Distinct) node() {}
func (*Reduced) node()  {}
func (*Service) node()  {}

// Variable represents a SPARQL variable
type Variable struct {
	Name string
}

// NewVariable creates a variable named name (without the leading '?').
func NewVariable(name string) *Variable {
	return &Variable{Name: name}
}

func (v *Variable) String() string {
	return "?" + v.Name
}

// Vars builds a variable list.
func Vars(names ...string) []*Variable {
	vars := make([]*Variable, len(names))
	for i, n := range names {
		vars[i] = NewVariable(n)
	}
	return vars
}

// TermOrVariable can be an RDF term, a variable, or a quoted triple
// pattern (RDF-star) that may itself contain variables.
type TermOrVariable struct {
	Term     rdf.Term
	Variable *Variable
	Triple   *TriplePattern
}

// IsVariable returns true if this is a variable
func (t TermOrVariable) IsVariable() bool {
	return t.Variable != nil
}

// IsTriple reports whether this is a quoted triple pattern.
func (t TermOrVariable) IsTriple() bool {
	return t.Triple != nil
}

// Var returns a variable position.
func Var(name string) TermOrVariable {
	return TermOrVariable{Variable: NewVariable(name)}
}

// Const returns a constant position.
func Const(term rdf.Term) TermOrVariable {
	return TermOrVariable{Term: term}
}

// IRI returns a constant IRI position.
func IRI(iri string) TermOrVariable {
	return TermOrVariable{Term: rdf.NewNamedNode(iri)}
}

// Quoted returns a quoted triple pattern position.
func Quoted(s, p, o TermOrVariable) TermOrVariable {
	return TermOrVariable{Triple: &TriplePattern{Subject: s, Predicate: p, Object: o}}
}

// TriplePattern represents a triple pattern with possible variables
type TriplePattern struct {
	Subject   TermOrVariable
	Predicate TermOrVariable
	Object    TermOrVariable
}

// NewTriplePattern creates a triple pattern.
func NewTriplePattern(s, p, o TermOrVariable) *TriplePattern {
	return &TriplePattern{Subject: s, Predicate: p, Object: o}
}

// Positions returns subject, predicate and object in order.
func (tp *TriplePattern) Positions() [3]TermOrVariable {
	return [3]TermOrVariable{tp.Subject, tp.Predicate, tp.Object}
}

// OrderCondition represents an ORDER BY condition
type OrderCondition struct {
	Expression Expression
	Ascending  bool
}

// QueryType represents the type of SPARQL query
type QueryType int

const (
	QueryTypeSelect QueryType = iota
	QueryTypeConstruct
	QueryTypeAsk
	QueryTypeDescribe
)

// Query is a complete query: a pattern plus the query form applied to its
// solutions.
type Query struct {
	Type    QueryType
	Pattern Node

	// Template is the CONSTRUCT template.
	Template []*TriplePattern

	// Resources are the DESCRIBE targets; variables are taken from the
	// solutions of Pattern.
	Resources []TermOrVariable
}
