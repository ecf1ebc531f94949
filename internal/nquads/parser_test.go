package nquads

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/aleksaelezovic/quadra/pkg/rdf"
)

func TestReadAll(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
		wantErr  bool
	}{
		{
			name:     "simple triple (N-Triples format)",
			input:    "<http://example.org/s> <http://example.org/p> <http://example.org/o> .\n",
			expected: 1,
		},
		{
			name:     "quad with named graph",
			input:    "<http://example.org/s> <http://example.org/p> <http://example.org/o> <http://example.org/g> .\n",
			expected: 1,
		},
		{
			name: "multiple quads",
			input: `<http://example.org/s1> <http://example.org/p1> "literal1" .
<http://example.org/s2> <http://example.org/p2> "literal2"^^<http://www.w3.org/2001/XMLSchema#string> <http://example.org/g> .
<http://example.org/s3> <http://example.org/p3> "hello"@en .
`,
			expected: 3,
		},
		{
			name: "blank nodes",
			input: `_:b1 <http://example.org/p> "value" .
<http://example.org/s> <http://example.org/p> _:b2 _:graph .
`,
			expected: 2,
		},
		{
			name: "comments and blank lines",
			input: `# header

<http://example.org/s> <http://example.org/p> "o" . # trailing
`,
			expected: 1,
		},
		{
			name:     "quoted triple subject",
			input:    "<< <http://example.org/a> <http://example.org/knows> <http://example.org/b> >> <http://example.org/since> \"2019\" .\n",
			expected: 1,
		},
		{
			name:     "no final newline",
			input:    "<http://example.org/s> <http://example.org/p> <http://example.org/o> .",
			expected: 1,
		},
		{
			name:    "missing dot",
			input:   "<http://example.org/s> <http://example.org/p> <http://example.org/o>\n",
			wantErr: true,
		},
		{
			name:    "literal predicate",
			input:   "<http://example.org/s> \"p\" <http://example.org/o> .\n",
			wantErr: true,
		},
		{
			name:    "literal subject",
			input:   "\"s\" <http://example.org/p> <http://example.org/o> .\n",
			wantErr: true,
		},
		{
			name:    "unclosed IRI",
			input:   "<http://example.org/s <http://example.org/p> <http://example.org/o> .\n",
			wantErr: true,
		},
		{
			name:    "unclosed literal",
			input:   "<http://example.org/s> <http://example.org/p> \"open .\n",
			wantErr: true,
		},
		{
			name:    "quoted triple as graph",
			input:   "<http://example.org/s> <http://example.org/p> <http://example.org/o> << <http://example.org/a> <http://example.org/b> <http://example.org/c> >> .\n",
			wantErr: true,
		},
		{
			name:    "prefixed names are Turtle",
			input:   "ex:s ex:p ex:o .\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quads, err := ReadAll(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadAll() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(quads) != tt.expected {
				t.Errorf("ReadAll() got %d quads, expected %d", len(quads), tt.expected)
			}
		})
	}
}

func TestTerms(t *testing.T) {
	input := `<http://example.org/s> <http://example.org/p> "line\nbreak \"quoted\" é" <http://example.org/g> .
_:b1 <http://example.org/p> "chat"@fr-CA .
<http://example.org/s> <http://example.org/p> "42"^^<http://www.w3.org/2001/XMLSchema#integer> .
`
	quads, err := ReadAll(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(quads) != 3 {
		t.Fatalf("got %d quads, expected 3", len(quads))
	}

	lit, ok := quads[0].Object.(*rdf.Literal)
	if !ok || lit.Value != "line\nbreak \"quoted\" é" {
		t.Errorf("unexpected literal %v", quads[0].Object)
	}
	if !quads[0].Graph.Equals(rdf.NewNamedNode("http://example.org/g")) {
		t.Errorf("expected named graph, got %v", quads[0].Graph)
	}

	if b, ok := quads[1].Subject.(*rdf.BlankNode); !ok || b.ID != "b1" {
		t.Errorf("expected blank node b1, got %v", quads[1].Subject)
	}
	if lit, ok := quads[1].Object.(*rdf.Literal); !ok || lit.Language != "fr-ca" {
		t.Errorf("expected language literal, got %v", quads[1].Object)
	}
	if !rdf.IsDefaultGraph(quads[1].Graph) {
		t.Errorf("expected default graph, got %v", quads[1].Graph)
	}

	if !quads[2].Object.Equals(rdf.NewIntegerLiteral(42)) {
		t.Errorf("expected integer literal, got %v", quads[2].Object)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	alice := rdf.NewNamedNode("http://example.org/alice")
	knows := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/knows")
	bob := rdf.NewNamedNode("http://example.org/bob")
	quads := []*rdf.Quad{
		rdf.NewQuad(alice, knows, bob, nil),
		rdf.NewQuad(alice, rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name"), rdf.NewLiteral("tab\there \"q\" back\\slash"), rdf.NewNamedNode("http://example.org/g")),
		rdf.NewQuad(rdf.NewTripleTerm(alice, knows, bob), rdf.NewNamedNode("http://example.org/since"), rdf.NewIntegerLiteral(2019), nil),
		rdf.NewQuad(rdf.NewBlankNode("x"), knows, rdf.NewLiteralWithLanguage("hi", "en"), rdf.NewBlankNode("g1")),
	}

	var buf bytes.Buffer
	for _, q := range quads {
		if err := Write(&buf, q); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	got, err := ReadAll(&buf)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(got) != len(quads) {
		t.Fatalf("got %d quads, expected %d", len(got), len(quads))
	}
	for i := range quads {
		if !got[i].Equals(quads[i]) {
			t.Errorf("quad %d: got %v, expected %v", i, got[i], quads[i])
		}
	}
}

func TestReaderStopsAtFirstError(t *testing.T) {
	input := `<http://example.org/s> <http://example.org/p> <http://example.org/o> .
<http://example.org/s> <http://example.org/p> .
<http://example.org/s> <http://example.org/p> <http://example.org/o2> .
`
	r := NewReader(strings.NewReader(input))
	n := 0
	for r.Next() {
		n++
	}
	if n != 1 {
		t.Errorf("read %d quads before the error, expected 1", n)
	}
	var syn *SyntaxError
	if !errors.As(r.Err(), &syn) {
		t.Fatalf("expected a SyntaxError, got %v", r.Err())
	}
	if syn.Line != 2 {
		t.Errorf("error on line %d, expected 2", syn.Line)
	}
	if r.Next() {
		t.Error("Next() after an error should return false")
	}
}
