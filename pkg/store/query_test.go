package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectIndex(t *testing.T) {
	const x = TermID(7)
	tests := []struct {
		name    string
		pattern Pattern
		table   Table
		prefix  int
	}{
		{"nothing bound", AnyPattern, TableSPOG, 0},
		{"subject", Pattern{x, Any, Any, Any}, TableSPOG, 1},
		{"predicate", Pattern{Any, x, Any, Any}, TablePOSG, 1},
		{"object", Pattern{Any, Any, x, Any}, TableOSPG, 1},
		{"graph", Pattern{Any, Any, Any, x}, TableGSPO, 1},
		{"subject predicate", Pattern{x, x, Any, Any}, TableSPOG, 2},
		{"subject object", Pattern{x, Any, x, Any}, TableOSPG, 2},
		{"predicate object", Pattern{Any, x, x, Any}, TablePOSG, 2},
		{"graph predicate", Pattern{Any, x, Any, x}, TableGPOS, 2},
		{"graph object", Pattern{Any, Any, x, x}, TableGOSP, 2},
		{"graph subject", Pattern{x, Any, Any, x}, TableGSPO, 2},
		{"triple", Pattern{x, x, x, Any}, TableSPOG, 3},
		{"subject predicate graph", Pattern{x, x, Any, x}, TableGSPO, 3},
		{"predicate object graph", Pattern{Any, x, x, x}, TableGPOS, 3},
		{"subject object graph", Pattern{x, Any, x, x}, TableGOSP, 3},
		{"all bound", Pattern{x, x, x, x}, TableSPOG, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix, n := selectIndex(tt.pattern)
			assert.Equal(t, tt.table, ix.table)
			assert.Equal(t, tt.prefix, n)
		})
	}
}

func TestIndexPermutationRoundTrip(t *testing.T) {
	q := EncodedQuad{1, 2, 3, 4}
	for _, ix := range indexes {
		assert.Equal(t, q, ix.quad(ix.key(q)), ix.table.String())
	}
}

func TestPatternMatches(t *testing.T) {
	q := EncodedQuad{1, 2, 3, DefaultGraphID}
	assert.True(t, AnyPattern.Matches(q))
	assert.True(t, NewPattern(1, Any, 3, DefaultGraphID).Matches(q))
	assert.False(t, NewPattern(1, Any, 4, Any).Matches(q))
	assert.False(t, NewPattern(Any, Any, Any, 9).Matches(q))
	assert.Equal(t, "(1 ?P ?O 0)", NewPattern(1, Any, Any, DefaultGraphID).String())
}
