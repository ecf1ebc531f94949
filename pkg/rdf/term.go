package rdf

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TermType represents the type of an RDF term
type TermType byte

const (
	// Core RDF types
	TermTypeNamedNode TermType = iota + 1
	TermTypeBlankNode
	TermTypeLiteral
	TermTypeDefaultGraph
	TermTypeTriple
)

func (t TermType) String() string {
	switch t {
	case TermTypeNamedNode:
		return "iri"
	case TermTypeBlankNode:
		return "bnode"
	case TermTypeLiteral:
		return "literal"
	case TermTypeDefaultGraph:
		return "default-graph"
	case TermTypeTriple:
		return "triple"
	default:
		return fmt.Sprintf("TermType(%d)", byte(t))
	}
}

// Term represents an RDF term (IRI, blank node, literal or quoted triple)
type Term interface {
	Type() TermType
	String() string
	Equals(other Term) bool
}

// NamedNode represents an IRI
type NamedNode struct {
	IRI string
}

func NewNamedNode(iri string) *NamedNode {
	return &NamedNode{IRI: iri}
}

func (n *NamedNode) Type() TermType {
	return TermTypeNamedNode
}

func (n *NamedNode) String() string {
	return "<" + n.IRI + ">"
}

func (n *NamedNode) Equals(other Term) bool {
	if on, ok := other.(*NamedNode); ok {
		return n.IRI == on.IRI
	}
	return false
}

// BlankNode represents a blank node
type BlankNode struct {
	ID string
}

func NewBlankNode(id string) *BlankNode {
	return &BlankNode{ID: id}
}

func (b *BlankNode) Type() TermType {
	return TermTypeBlankNode
}

func (b *BlankNode) String() string {
	return "_:" + b.ID
}

func (b *BlankNode) Equals(other Term) bool {
	if ob, ok := other.(*BlankNode); ok {
		return b.ID == ob.ID
	}
	return false
}

// Literal represents an RDF literal. A nil Datatype means xsd:string, or
// rdf:langString when Language is set.
type Literal struct {
	Value    string
	Language string     // for language-tagged strings
	Datatype *NamedNode // for typed literals
}

func NewLiteral(value string) *Literal {
	return &Literal{Value: value}
}

func NewLiteralWithLanguage(value, language string) *Literal {
	return &Literal{Value: value, Language: strings.ToLower(language)}
}

// NewLiteralWithDatatype builds a typed literal. xsd:string is normalized
// to the plain form so both spellings denote one term.
func NewLiteralWithDatatype(value string, datatype *NamedNode) *Literal {
	if datatype == nil || datatype.IRI == XSDString.IRI {
		return &Literal{Value: value}
	}
	return &Literal{Value: value, Datatype: datatype}
}

func (l *Literal) Type() TermType {
	return TermTypeLiteral
}

// DatatypeIRI returns the effective datatype of the literal.
func (l *Literal) DatatypeIRI() string {
	if l.Language != "" {
		return RDFLangString.IRI
	}
	if l.Datatype == nil {
		return XSDString.IRI
	}
	return l.Datatype.IRI
}

// IsPlain reports whether the literal is a simple or xsd:string literal.
func (l *Literal) IsPlain() bool {
	return l.Language == "" && l.DatatypeIRI() == XSDString.IRI
}

func (l *Literal) String() string {
	result := `"` + escapeLiteral(l.Value) + `"`
	if l.Language != "" {
		result += "@" + l.Language
	} else if l.Datatype != nil && l.Datatype.IRI != XSDString.IRI {
		result += "^^" + l.Datatype.String()
	}
	return result
}

func (l *Literal) Equals(other Term) bool {
	if ol, ok := other.(*Literal); ok {
		if l.Value != ol.Value {
			return false
		}
		if l.Language != ol.Language {
			return false
		}
		return l.DatatypeIRI() == ol.DatatypeIRI()
	}
	return false
}

// TripleTerm is an RDF-star quoted triple used as a subject or object.
type TripleTerm struct {
	Subject   Term
	Predicate Term
	Object    Term
}

func NewTripleTerm(subject, predicate, object Term) *TripleTerm {
	return &TripleTerm{Subject: subject, Predicate: predicate, Object: object}
}

func (t *TripleTerm) Type() TermType {
	return TermTypeTriple
}

func (t *TripleTerm) String() string {
	return fmt.Sprintf("<< %s %s %s >>", t.Subject, t.Predicate, t.Object)
}

func (t *TripleTerm) Equals(other Term) bool {
	ot, ok := other.(*TripleTerm)
	if !ok {
		return false
	}
	return t.Subject.Equals(ot.Subject) &&
		t.Predicate.Equals(ot.Predicate) &&
		t.Object.Equals(ot.Object)
}

// DefaultGraph represents the default graph
type DefaultGraph struct{}

func NewDefaultGraph() *DefaultGraph {
	return &DefaultGraph{}
}

func (d *DefaultGraph) Type() TermType {
	return TermTypeDefaultGraph
}

func (d *DefaultGraph) String() string {
	return "DEFAULT"
}

func (d *DefaultGraph) Equals(other Term) bool {
	_, ok := other.(*DefaultGraph)
	return ok
}

// IsDefaultGraph reports whether t is nil or the default graph marker.
func IsDefaultGraph(t Term) bool {
	if t == nil {
		return true
	}
	_, ok := t.(*DefaultGraph)
	return ok
}

// Triple represents an RDF triple (subject, predicate, object)
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

func NewTriple(subject, predicate, object Term) *Triple {
	return &Triple{
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
	}
}

func (t *Triple) String() string {
	return fmt.Sprintf("%s %s %s .", t.Subject, t.Predicate, t.Object)
}

// Quad represents an RDF quad (subject, predicate, object, graph)
type Quad struct {
	Subject   Term
	Predicate Term
	Object    Term
	Graph     Term
}

func NewQuad(subject, predicate, object, graph Term) *Quad {
	if graph == nil {
		graph = NewDefaultGraph()
	}
	return &Quad{
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
		Graph:     graph,
	}
}

func (q *Quad) String() string {
	if IsDefaultGraph(q.Graph) {
		return fmt.Sprintf("%s %s %s .", q.Subject, q.Predicate, q.Object)
	}
	return fmt.Sprintf("%s %s %s %s .", q.Subject, q.Predicate, q.Object, q.Graph)
}

func (q *Quad) Equals(other *Quad) bool {
	if other == nil {
		return false
	}
	graphEqual := IsDefaultGraph(q.Graph) && IsDefaultGraph(other.Graph)
	if !graphEqual && q.Graph != nil && other.Graph != nil {
		graphEqual = q.Graph.Equals(other.Graph)
	}
	return graphEqual &&
		q.Subject.Equals(other.Subject) &&
		q.Predicate.Equals(other.Predicate) &&
		q.Object.Equals(other.Object)
}

// Validate checks the positional constraints of RDF 1.1 plus RDF-star.
func (q *Quad) Validate() error {
	switch q.Subject.(type) {
	case *NamedNode, *BlankNode, *TripleTerm:
	default:
		return fmt.Errorf("invalid subject %v", q.Subject)
	}
	if _, ok := q.Predicate.(*NamedNode); !ok {
		return fmt.Errorf("invalid predicate %v", q.Predicate)
	}
	switch q.Object.(type) {
	case *NamedNode, *BlankNode, *Literal, *TripleTerm:
	default:
		return fmt.Errorf("invalid object %v", q.Object)
	}
	switch q.Graph.(type) {
	case nil, *NamedNode, *BlankNode, *DefaultGraph:
	default:
		return fmt.Errorf("invalid graph name %v", q.Graph)
	}
	return nil
}

// Helper functions for common XSD datatypes
var (
	XSDString   = NewNamedNode("http://www.w3.org/2001/XMLSchema#string")
	XSDInteger  = NewNamedNode("http://www.w3.org/2001/XMLSchema#integer")
	XSDDecimal  = NewNamedNode("http://www.w3.org/2001/XMLSchema#decimal")
	XSDDouble   = NewNamedNode("http://www.w3.org/2001/XMLSchema#double")
	XSDFloat    = NewNamedNode("http://www.w3.org/2001/XMLSchema#float")
	XSDBoolean  = NewNamedNode("http://www.w3.org/2001/XMLSchema#boolean")
	XSDDateTime = NewNamedNode("http://www.w3.org/2001/XMLSchema#dateTime")
	XSDDate     = NewNamedNode("http://www.w3.org/2001/XMLSchema#date")
	XSDTime     = NewNamedNode("http://www.w3.org/2001/XMLSchema#time")
	XSDDuration = NewNamedNode("http://www.w3.org/2001/XMLSchema#duration")

	XSDDayTimeDuration = NewNamedNode("http://www.w3.org/2001/XMLSchema#dayTimeDuration")

	RDFLangString = NewNamedNode("http://www.w3.org/1999/02/22-rdf-syntax-ns#langString")
	RDFType       = NewNamedNode("http://www.w3.org/1999/02/22-rdf-syntax-ns#type")
)

func NewIntegerLiteral(value int64) *Literal {
	return NewLiteralWithDatatype(strconv.FormatInt(value, 10), XSDInteger)
}

func NewDecimalLiteral(value float64) *Literal {
	s := strconv.FormatFloat(value, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return NewLiteralWithDatatype(s, XSDDecimal)
}

func NewDoubleLiteral(value float64) *Literal {
	return NewLiteralWithDatatype(strconv.FormatFloat(value, 'g', -1, 64), XSDDouble)
}

func NewBooleanLiteral(value bool) *Literal {
	return NewLiteralWithDatatype(strconv.FormatBool(value), XSDBoolean)
}

func NewDateTimeLiteral(value time.Time) *Literal {
	return NewLiteralWithDatatype(value.Format(time.RFC3339Nano), XSDDateTime)
}

func escapeLiteral(s string) string {
	if !strings.ContainsAny(s, "\"\\\n\r\t") {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
