package encoding

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/aleksaelezovic/quadra/pkg/rdf"
)

// ErrMalformed is returned for bytes that are not a canonical term.
var ErrMalformed = errors.New("malformed term encoding")

// TermDecoder handles decoding of RDF terms
type TermDecoder struct{}

// NewTermDecoder creates a new term decoder
func NewTermDecoder() *TermDecoder {
	return &TermDecoder{}
}

// DecodeTerm decodes canonical bytes back to an rdf.Term.
func (d *TermDecoder) DecodeTerm(b []byte) (rdf.Term, error) {
	term, rest, err := d.decode(b)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(rest))
	}
	return term, nil
}

func (d *TermDecoder) decode(b []byte) (rdf.Term, []byte, error) {
	if len(b) == 0 {
		return nil, nil, fmt.Errorf("%w: empty", ErrMalformed)
	}
	tag, b := b[0], b[1:]

	switch tag {
	case TagNamedNode:
		iri, rest, err := readString(b)
		if err != nil {
			return nil, nil, err
		}
		return rdf.NewNamedNode(iri), rest, nil

	case TagBlankNode:
		id, rest, err := readString(b)
		if err != nil {
			return nil, nil, err
		}
		return rdf.NewBlankNode(id), rest, nil

	case TagSimpleLiteral:
		value, rest, err := readString(b)
		if err != nil {
			return nil, nil, err
		}
		return rdf.NewLiteral(value), rest, nil

	case TagLangLiteral:
		lang, rest, err := readString(b)
		if err != nil {
			return nil, nil, err
		}
		value, rest, err := readString(rest)
		if err != nil {
			return nil, nil, err
		}
		return &rdf.Literal{Value: value, Language: lang}, rest, nil

	case TagTypedLiteral:
		datatype, rest, err := readString(b)
		if err != nil {
			return nil, nil, err
		}
		value, rest, err := readString(rest)
		if err != nil {
			return nil, nil, err
		}
		return rdf.NewLiteralWithDatatype(value, rdf.NewNamedNode(datatype)), rest, nil

	case TagTriple:
		var parts [3]rdf.Term
		rest := b
		for i := range parts {
			n, read := binary.Uvarint(rest)
			if read <= 0 || uint64(len(rest)-read) < n {
				return nil, nil, fmt.Errorf("%w: truncated triple component", ErrMalformed)
			}
			rest = rest[read:]
			inner, tail, err := d.decode(rest[:n])
			if err != nil {
				return nil, nil, err
			}
			if len(tail) != 0 {
				return nil, nil, fmt.Errorf("%w: triple component length mismatch", ErrMalformed)
			}
			parts[i] = inner
			rest = rest[n:]
		}
		return rdf.NewTripleTerm(parts[0], parts[1], parts[2]), rest, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown tag %d", ErrMalformed, tag)
	}
}

func readString(b []byte) (string, []byte, error) {
	n, read := binary.Uvarint(b)
	if read <= 0 {
		return "", nil, fmt.Errorf("%w: bad length prefix", ErrMalformed)
	}
	b = b[read:]
	if uint64(len(b)) < n {
		return "", nil, fmt.Errorf("%w: truncated string", ErrMalformed)
	}
	return string(b[:n]), b[n:], nil
}

// DecodeQuadKey splits a key without table prefix into its four ids, in
// key order.
func DecodeQuadKey(key []byte) ([4]uint64, error) {
	var ids [4]uint64
	if len(key) != QuadKeySize {
		return ids, fmt.Errorf("invalid quad key length %d", len(key))
	}
	for i := range ids {
		ids[i] = binary.BigEndian.Uint64(key[i*IDSize : (i+1)*IDSize])
	}
	return ids, nil
}

// DecodeUint64 reverses EncodeUint64.
func DecodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("invalid counter length %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
