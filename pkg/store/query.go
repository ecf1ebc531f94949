package store

import (
	"fmt"
	"strings"

	"github.com/aleksaelezovic/quadra/internal/encoding"
)

// Pattern is a quad pattern over term ids. Any marks an unbound position;
// DefaultGraphID in Graph restricts matches to the default graph.
type Pattern [4]TermID

// NewPattern builds a pattern in S, P, O, G order.
func NewPattern(s, p, o, g TermID) Pattern {
	return Pattern{s, p, o, g}
}

// AnyPattern matches every quad in every graph.
var AnyPattern = Pattern{Any, Any, Any, Any}

// Bound reports whether pos is bound.
func (p Pattern) Bound(pos Position) bool {
	return p[pos] != Any
}

// Matches reports whether q satisfies every bound position of p.
func (p Pattern) Matches(q EncodedQuad) bool {
	for pos, id := range p {
		if id != Any && q[pos] != id {
			return false
		}
	}
	return true
}

func (p Pattern) String() string {
	parts := make([]string, 4)
	for pos, id := range p {
		if id == Any {
			parts[pos] = "?" + Position(pos).String()
		} else {
			parts[pos] = fmt.Sprint(uint64(id))
		}
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// QuadIterator iterates lazily over encoded quads.
type QuadIterator interface {
	Next() bool
	Quad() EncodedQuad
	Err() error
	Close() error
}

// selectIndex returns the permutation whose key order covers the longest
// contiguous run of bound positions, and that run's length. The first
// permutation in the fixed order wins ties, so the choice depends only on
// which positions are bound.
func selectIndex(p Pattern) (index, int) {
	best, bestLen := indexes[0], -1
	for _, ix := range indexes {
		n := 0
		for _, pos := range ix.order {
			if !p.Bound(pos) {
				break
			}
			n++
		}
		if n > bestLen {
			best, bestLen = ix, n
		}
	}
	return best, bestLen
}

// IndexFor names the permutation chosen for p. Exposed for diagnostics.
func IndexFor(p Pattern) string {
	ix, _ := selectIndex(p)
	return ix.table.String()
}

// matchQuads scans the best index of r for p.
func matchQuads(r Reader, p Pattern) QuadIterator {
	ix, n := selectIndex(p)
	ids := make([]uint64, 0, n)
	for _, pos := range ix.order[:n] {
		ids = append(ids, uint64(p[pos]))
	}
	prefix := encoding.AppendIDs(make([]byte, 0, encoding.QuadKeySize), ids...)

	it, err := r.Scan(ix.table, prefix)
	if err != nil {
		return &errQuadIterator{err: storageErr("scan "+ix.table.String(), err)}
	}
	return &quadIterator{
		it:       it,
		ix:       ix,
		pattern:  p,
		residual: n < 4,
	}
}

// quadIterator decodes index keys back into quads, filtering the bound
// positions the prefix could not cover.
type quadIterator struct {
	it       Iterator
	ix       index
	pattern  Pattern
	residual bool
	current  EncodedQuad
	err      error
	closed   bool
}

func (qi *quadIterator) Next() bool {
	if qi.err != nil || qi.closed {
		return false
	}
	for qi.it.Next() {
		ids, err := encoding.DecodeQuadKey(qi.it.Key())
		if err != nil {
			qi.err = &CorruptionError{Reason: "bad " + qi.ix.table.String() + " key", Err: err}
			return false
		}
		q := qi.ix.quad(ids)
		if qi.residual && !qi.pattern.Matches(q) {
			continue
		}
		qi.current = q
		return true
	}
	return false
}

func (qi *quadIterator) Quad() EncodedQuad { return qi.current }

func (qi *quadIterator) Err() error { return qi.err }

func (qi *quadIterator) Close() error {
	if qi.closed {
		return nil
	}
	qi.closed = true
	return qi.it.Close()
}

type errQuadIterator struct{ err error }

func (e *errQuadIterator) Next() bool        { return false }
func (e *errQuadIterator) Quad() EncodedQuad { return EncodedQuad{} }
func (e *errQuadIterator) Err() error        { return e.err }
func (e *errQuadIterator) Close() error      { return nil }
