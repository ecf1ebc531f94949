package encoding

import (
	"encoding/binary"
	"fmt"

	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/zeebo/xxh3"
)

const (
	// IDSize is the width of an encoded term identifier in index keys.
	IDSize = 8

	// QuadKeySize is the width of a quad key without its table prefix.
	QuadKeySize = 4 * IDSize

	// HashSize is the width of a term2id key (128-bit xxhash3).
	HashSize = 16
)

// Tags of the canonical term encoding. They are part of the persisted
// format; never renumber.
const (
	TagNamedNode byte = iota + 1
	TagBlankNode
	TagSimpleLiteral
	TagLangLiteral
	TagTypedLiteral
	TagTriple
)

// TermEncoder produces the canonical, lossless byte form of RDF terms.
// Two terms are equal iff their canonical bytes are equal.
type TermEncoder struct{}

func NewTermEncoder() *TermEncoder {
	return &TermEncoder{}
}

// Hash128 computes a 128-bit xxhash3 hash of the input bytes
func (e *TermEncoder) Hash128(b []byte) [HashSize]byte {
	hash := xxh3.Hash128(b)
	var result [HashSize]byte
	binary.BigEndian.PutUint64(result[0:8], hash.Hi)
	binary.BigEndian.PutUint64(result[8:16], hash.Lo)
	return result
}

// Hash64 is used for shard selection.
func (e *TermEncoder) Hash64(b []byte) uint64 {
	return xxh3.Hash(b)
}

// EncodeTerm returns the canonical bytes of term.
func (e *TermEncoder) EncodeTerm(term rdf.Term) ([]byte, error) {
	return e.AppendTerm(nil, term)
}

// AppendTerm appends the canonical bytes of term to dst.
func (e *TermEncoder) AppendTerm(dst []byte, term rdf.Term) ([]byte, error) {
	switch t := term.(type) {
	case *rdf.NamedNode:
		dst = append(dst, TagNamedNode)
		return appendString(dst, t.IRI), nil
	case *rdf.BlankNode:
		dst = append(dst, TagBlankNode)
		return appendString(dst, t.ID), nil
	case *rdf.Literal:
		return e.appendLiteral(dst, t), nil
	case *rdf.TripleTerm:
		dst = append(dst, TagTriple)
		for _, inner := range []rdf.Term{t.Subject, t.Predicate, t.Object} {
			if inner == nil {
				return nil, fmt.Errorf("triple term with nil component")
			}
			nested, err := e.EncodeTerm(inner)
			if err != nil {
				return nil, err
			}
			dst = binary.AppendUvarint(dst, uint64(len(nested)))
			dst = append(dst, nested...)
		}
		return dst, nil
	case *rdf.DefaultGraph:
		return nil, fmt.Errorf("default graph has no dictionary encoding")
	default:
		return nil, fmt.Errorf("unknown term type: %T", term)
	}
}

func (e *TermEncoder) appendLiteral(dst []byte, lit *rdf.Literal) []byte {
	switch {
	case lit.Language != "":
		dst = append(dst, TagLangLiteral)
		dst = appendString(dst, lit.Language)
	case lit.Datatype != nil && lit.Datatype.IRI != rdf.XSDString.IRI:
		dst = append(dst, TagTypedLiteral)
		dst = appendString(dst, lit.Datatype.IRI)
	default:
		dst = append(dst, TagSimpleLiteral)
	}
	return appendString(dst, lit.Value)
}

func appendString(dst []byte, s string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

// EncodeQuadKey encodes term ids as a big-endian key for lexicographic
// ordering. The order of ids is the order of the index permutation.
func (e *TermEncoder) EncodeQuadKey(ids ...uint64) []byte {
	return AppendIDs(make([]byte, 0, len(ids)*IDSize), ids...)
}

// AppendIDs appends big-endian ids to dst.
func AppendIDs(dst []byte, ids ...uint64) []byte {
	for _, id := range ids {
		dst = binary.BigEndian.AppendUint64(dst, id)
	}
	return dst
}

// EncodeUint64 is the fixed-width form used for metadata counters.
func EncodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
