package encoding

import (
	"bytes"
	"errors"
	"testing"

	"github.com/aleksaelezovic/quadra/pkg/rdf"
)

func TestEncodeDecodeTerm_RoundTrip(t *testing.T) {
	alice := rdf.NewNamedNode("http://example.org/alice")
	knows := rdf.NewNamedNode("http://example.org/knows")

	terms := []rdf.Term{
		alice,
		rdf.NewBlankNode("b0"),
		rdf.NewLiteral(""),
		rdf.NewLiteral("hello world, this is longer than sixteen bytes"),
		rdf.NewLiteralWithLanguage("bonjour", "fr"),
		rdf.NewLiteralWithDatatype("0042", rdf.XSDInteger),
		rdf.NewLiteralWithDatatype("1.50", rdf.XSDDecimal),
		rdf.NewTripleTerm(alice, knows, rdf.NewLiteral("x")),
		rdf.NewTripleTerm(rdf.NewTripleTerm(alice, knows, alice), knows, rdf.NewBlankNode("z")),
	}

	enc := NewTermEncoder()
	dec := NewTermDecoder()
	for _, term := range terms {
		b, err := enc.EncodeTerm(term)
		if err != nil {
			t.Fatalf("EncodeTerm(%s) failed: %v", term, err)
		}
		got, err := dec.DecodeTerm(b)
		if err != nil {
			t.Fatalf("DecodeTerm(%s) failed: %v", term, err)
		}
		if !got.Equals(term) {
			t.Errorf("round trip mismatch: want %s, got %s", term, got)
		}
	}
}

func TestEncodeTerm_LexicalFormPreserved(t *testing.T) {
	enc := NewTermEncoder()
	a, _ := enc.EncodeTerm(rdf.NewLiteralWithDatatype("01", rdf.XSDInteger))
	b, _ := enc.EncodeTerm(rdf.NewLiteralWithDatatype("1", rdf.XSDInteger))
	if bytes.Equal(a, b) {
		t.Error("distinct lexical forms must not share an encoding")
	}
}

func TestEncodeTerm_XSDStringIsPlain(t *testing.T) {
	enc := NewTermEncoder()
	a, _ := enc.EncodeTerm(&rdf.Literal{Value: "x", Datatype: rdf.XSDString})
	b, _ := enc.EncodeTerm(rdf.NewLiteral("x"))
	if !bytes.Equal(a, b) {
		t.Error("xsd:string and plain literal must share an encoding")
	}
}

func TestEncodeTerm_DefaultGraphRejected(t *testing.T) {
	if _, err := NewTermEncoder().EncodeTerm(rdf.NewDefaultGraph()); err == nil {
		t.Error("expected default graph to be rejected")
	}
}

func TestDecodeTerm_Malformed(t *testing.T) {
	cases := [][]byte{
		nil,
		{99},
		{TagNamedNode, 10, 'a'},
		{TagTriple, 1},
		append(mustEncode(t, rdf.NewNamedNode("x")), 0),
	}
	dec := NewTermDecoder()
	for _, c := range cases {
		if _, err := dec.DecodeTerm(c); !errors.Is(err, ErrMalformed) {
			t.Errorf("DecodeTerm(%v): expected ErrMalformed, got %v", c, err)
		}
	}
}

func TestQuadKey_RoundTripAndOrder(t *testing.T) {
	enc := NewTermEncoder()
	k1 := enc.EncodeQuadKey(1, 2, 3, 0)
	k2 := enc.EncodeQuadKey(1, 2, 256, 0)
	if bytes.Compare(k1, k2) >= 0 {
		t.Error("big-endian keys must sort numerically")
	}
	ids, err := DecodeQuadKey(k2)
	if err != nil {
		t.Fatal(err)
	}
	if ids != [4]uint64{1, 2, 256, 0} {
		t.Errorf("unexpected ids %v", ids)
	}
	if _, err := DecodeQuadKey(k2[:5]); err == nil {
		t.Error("expected short key to fail")
	}
}

func TestHash128_Deterministic(t *testing.T) {
	enc := NewTermEncoder()
	if enc.Hash128([]byte("a")) != enc.Hash128([]byte("a")) {
		t.Error("hash must be deterministic")
	}
	if enc.Hash128([]byte("a")) == enc.Hash128([]byte("b")) {
		t.Error("unexpected collision")
	}
}

func mustEncode(t *testing.T, term rdf.Term) []byte {
	t.Helper()
	b, err := NewTermEncoder().EncodeTerm(term)
	if err != nil {
		t.Fatal(err)
	}
	return b
}
