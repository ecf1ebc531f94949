package store

import (
	"fmt"
	"math"
)

// TermID identifies a term within one dictionary generation.
type TermID uint64

const (
	// DefaultGraphID is the reserved graph id of the default graph. It never
	// appears in the dictionary.
	DefaultGraphID TermID = 0

	// Any marks an unbound pattern position. Minted ids never reach it.
	Any TermID = math.MaxUint64
)

// Position names one component of a quad.
type Position int

const (
	Subject Position = iota
	Predicate
	Object
	Graph
)

func (p Position) String() string {
	switch p {
	case Subject:
		return "S"
	case Predicate:
		return "P"
	case Object:
		return "O"
	case Graph:
		return "G"
	default:
		return fmt.Sprintf("Position(%d)", int(p))
	}
}

// EncodedQuad is a quad in id form, indexed by Position.
type EncodedQuad [4]TermID

func (q EncodedQuad) Subject() TermID   { return q[Subject] }
func (q EncodedQuad) Predicate() TermID { return q[Predicate] }
func (q EncodedQuad) Object() TermID    { return q[Object] }
func (q EncodedQuad) Graph() TermID     { return q[Graph] }

func (q EncodedQuad) String() string {
	return fmt.Sprintf("(%d %d %d %d)", q[Subject], q[Predicate], q[Object], q[Graph])
}

// index is one of the six quad permutations. order lists which quad
// position sits at each key slot.
type index struct {
	table Table
	order [4]Position
}

// indexes are the six permutations in the fixed order used for index
// selection. Every quad is written to all of them, trading write
// amplification for a prefix scan on any bound-position combination.
var indexes = [6]index{
	{TableSPOG, [4]Position{Subject, Predicate, Object, Graph}},
	{TablePOSG, [4]Position{Predicate, Object, Subject, Graph}},
	{TableOSPG, [4]Position{Object, Subject, Predicate, Graph}},
	{TableGSPO, [4]Position{Graph, Subject, Predicate, Object}},
	{TableGPOS, [4]Position{Graph, Predicate, Object, Subject}},
	{TableGOSP, [4]Position{Graph, Object, Subject, Predicate}},
}

// key returns the permuted ids of q for this index.
func (ix index) key(q EncodedQuad) [4]uint64 {
	var k [4]uint64
	for slot, pos := range ix.order {
		k[slot] = uint64(q[pos])
	}
	return k
}

// quad reverses key.
func (ix index) quad(k [4]uint64) EncodedQuad {
	var q EncodedQuad
	for slot, pos := range ix.order {
		q[pos] = TermID(k[slot])
	}
	return q
}
