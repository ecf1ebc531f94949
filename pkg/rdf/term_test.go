package rdf

import (
	"testing"
	"time"
)

const ex = "http://example.org/"

func TestTermKinds(t *testing.T) {
	alice := NewNamedNode(ex + "alice")
	tests := []struct {
		term Term
		want TermType
		name string
	}{
		{alice, TermTypeNamedNode, "iri"},
		{NewBlankNode("b0"), TermTypeBlankNode, "bnode"},
		{NewLiteralWithLanguage("salut", "fr"), TermTypeLiteral, "literal"},
		{NewTripleTerm(alice, alice, alice), TermTypeTriple, "triple"},
		{NewDefaultGraph(), TermTypeDefaultGraph, "default-graph"},
	}
	for _, tt := range tests {
		if got := tt.term.Type(); got != tt.want {
			t.Errorf("%s: Type() = %v, want %v", tt.term, got, tt.want)
		}
		if got := tt.want.String(); got != tt.name {
			t.Errorf("TermType(%d).String() = %q, want %q", tt.want, got, tt.name)
		}
	}
	if got := TermType(42).String(); got != "TermType(42)" {
		t.Errorf("unknown kind renders as %q", got)
	}
}

func TestRendering(t *testing.T) {
	alice := NewNamedNode(ex + "alice")
	knows := NewNamedNode(ex + "knows")
	bob := NewNamedNode(ex + "bob")
	stated := NewTripleTerm(alice, knows, bob)

	tests := []struct {
		name string
		term Term
		want string
	}{
		{"iri", alice, "<http://example.org/alice>"},
		{"blank node", NewBlankNode("n7"), "_:n7"},
		{"simple literal", NewLiteral("Alice"), `"Alice"`},
		{"explicit xsd:string is written plain", NewLiteralWithDatatype("Alice", XSDString), `"Alice"`},
		{"language tag is lowercased", NewLiteralWithLanguage("colour", "en-GB"), `"colour"@en-gb`},
		{"direction stays in the tag", NewLiteralWithLanguage("مرحبا", "ar--RTL"), `"مرحبا"@ar--rtl`},
		{"typed", NewIntegerLiteral(2019), `"2019"^^<http://www.w3.org/2001/XMLSchema#integer>`},
		{"escapes", NewLiteral("tab\there \"q\"\r\n\\"), `"tab\there \"q\"\r\n\\"`},
		{"triple term", stated, "<< <http://example.org/alice> <http://example.org/knows> <http://example.org/bob> >>"},
		{"nested triple term", NewTripleTerm(stated, NewNamedNode(ex+"since"), NewIntegerLiteral(2019)),
			`<< << <http://example.org/alice> <http://example.org/knows> <http://example.org/bob> >> <http://example.org/since> "2019"^^<http://www.w3.org/2001/XMLSchema#integer> >>`},
		{"default graph", NewDefaultGraph(), "DEFAULT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.term.String(); got != tt.want {
				t.Errorf("String() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEquality(t *testing.T) {
	alice := NewNamedNode(ex + "alice")
	knows := NewNamedNode(ex + "knows")
	bob := NewNamedNode(ex + "bob")

	tests := []struct {
		name string
		a, b Term
		want bool
	}{
		{"same iri", alice, NewNamedNode(ex + "alice"), true},
		{"iri and blank node with one label", NewNamedNode("b0"), NewBlankNode("b0"), false},
		{"blank node and literal", NewBlankNode("x"), NewLiteral("x"), false},
		{"plain and xsd:string", NewLiteral("42"), NewLiteralWithDatatype("42", XSDString), true},
		{"unnormalized xsd:string", &Literal{Value: "42", Datatype: XSDString}, NewLiteral("42"), true},
		{"string and integer", NewLiteral("42"), NewIntegerLiteral(42), false},
		{"lexical forms are not canonicalized", NewLiteralWithDatatype("042", XSDInteger), NewIntegerLiteral(42), false},
		{"language tags ignore case", NewLiteralWithLanguage("hi", "EN"), NewLiteralWithLanguage("hi", "en"), true},
		{"direction matters", NewLiteralWithLanguage("hi", "en--ltr"), NewLiteralWithLanguage("hi", "en"), false},
		{"tagged and plain", NewLiteralWithLanguage("hi", "en"), NewLiteral("hi"), false},
		{"structural triple terms", NewTripleTerm(alice, knows, bob), NewTripleTerm(NewNamedNode(ex+"alice"), knows, bob), true},
		{"reversed triple term", NewTripleTerm(alice, knows, bob), NewTripleTerm(bob, knows, alice), false},
		{"triple term and triple subject", NewTripleTerm(alice, knows, bob), alice, false},
		{"nested triple terms", NewTripleTerm(NewTripleTerm(alice, knows, bob), knows, bob), NewTripleTerm(NewTripleTerm(alice, knows, bob), knows, bob), true},
		{"default graphs", NewDefaultGraph(), &DefaultGraph{}, true},
		{"default graph and iri", NewDefaultGraph(), alice, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equals(tt.b); got != tt.want {
				t.Errorf("%s.Equals(%s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := tt.b.Equals(tt.a); got != tt.want {
				t.Errorf("%s.Equals(%s) = %v, want %v", tt.b, tt.a, got, tt.want)
			}
		})
	}
}

func TestCanonicalLexicalForms(t *testing.T) {
	at := time.Date(2024, 2, 29, 23, 59, 1, 500_000_000, time.FixedZone("", 2*3600))
	tests := []struct {
		lit      *Literal
		value    string
		datatype *NamedNode
	}{
		{NewIntegerLiteral(-7), "-7", XSDInteger},
		{NewDecimalLiteral(2), "2.0", XSDDecimal},
		{NewDecimalLiteral(0.125), "0.125", XSDDecimal},
		{NewDoubleLiteral(1e21), "1e+21", XSDDouble},
		{NewDoubleLiteral(0.5), "0.5", XSDDouble},
		{NewBooleanLiteral(false), "false", XSDBoolean},
		{NewDateTimeLiteral(at), "2024-02-29T23:59:01.5+02:00", XSDDateTime},
	}
	for _, tt := range tests {
		if tt.lit.Value != tt.value {
			t.Errorf("lexical form %q, want %q", tt.lit.Value, tt.value)
		}
		if tt.lit.DatatypeIRI() != tt.datatype.IRI {
			t.Errorf("%s: datatype %s, want %s", tt.lit, tt.lit.DatatypeIRI(), tt.datatype.IRI)
		}
		if tt.lit.IsPlain() {
			t.Errorf("%s reported as plain", tt.lit)
		}
	}

	if got := NewLiteralWithLanguage("x", "de").DatatypeIRI(); got != RDFLangString.IRI {
		t.Errorf("tagged literal datatype %s", got)
	}
	if !NewLiteral("x").IsPlain() || !NewLiteralWithDatatype("x", nil).IsPlain() {
		t.Error("simple literals are plain")
	}
}

func TestQuadValidate(t *testing.T) {
	s := NewNamedNode(ex + "s")
	p := NewNamedNode(ex + "p")
	quoted := NewTripleTerm(s, p, NewLiteral("o"))

	tests := []struct {
		name  string
		quad  *Quad
		valid bool
	}{
		{"default graph", NewQuad(s, p, NewLiteral("o"), nil), true},
		{"blank graph", NewQuad(NewBlankNode("b"), p, s, NewBlankNode("g")), true},
		{"triple term subject", NewQuad(quoted, p, s, nil), true},
		{"triple term object", NewQuad(s, p, quoted, NewNamedNode(ex+"g")), true},
		{"literal subject", NewQuad(NewLiteral("s"), p, s, nil), false},
		{"blank predicate", NewQuad(s, NewBlankNode("p"), s, nil), false},
		{"triple term predicate", NewQuad(s, quoted, s, nil), false},
		{"missing object", &Quad{Subject: s, Predicate: p}, false},
		{"literal graph", NewQuad(s, p, s, NewLiteral("g")), false},
		{"triple term graph", NewQuad(s, p, s, quoted), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.quad.Validate()
			if (err == nil) != tt.valid {
				t.Errorf("Validate() = %v, valid %v", err, tt.valid)
			}
		})
	}
}

func TestQuadEqualsAndString(t *testing.T) {
	s := NewNamedNode(ex + "s")
	p := NewNamedNode(ex + "p")
	o := NewLiteralWithLanguage("o", "en")

	implicit := NewQuad(s, p, o, nil)
	explicit := &Quad{Subject: s, Predicate: p, Object: o, Graph: NewDefaultGraph()}
	unset := &Quad{Subject: s, Predicate: p, Object: o}
	named := NewQuad(s, p, o, NewNamedNode(ex+"g"))

	if !implicit.Equals(explicit) || !unset.Equals(explicit) {
		t.Error("nil graph and DefaultGraph denote the same quad")
	}
	if implicit.Equals(named) || named.Equals(unset) {
		t.Error("named graph quad equals its default graph copy")
	}
	if implicit.Equals(nil) {
		t.Error("quad equals nil")
	}

	if got, want := unset.String(), `<http://example.org/s> <http://example.org/p> "o"@en .`; got != want {
		t.Errorf("String() = %s, want %s", got, want)
	}
	if got, want := named.String(), `<http://example.org/s> <http://example.org/p> "o"@en <http://example.org/g> .`; got != want {
		t.Errorf("String() = %s, want %s", got, want)
	}
	if got, want := NewTriple(s, p, o).String(), `<http://example.org/s> <http://example.org/p> "o"@en .`; got != want {
		t.Errorf("Triple.String() = %s, want %s", got, want)
	}
	if !IsDefaultGraph(nil) || !IsDefaultGraph(NewDefaultGraph()) || IsDefaultGraph(s) {
		t.Error("IsDefaultGraph misclassifies")
	}
}
