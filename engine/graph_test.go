package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Invariant 3 (spec §8): for any (sheet, corners), at most one range vertex
// exists. Two formulas referencing the identical rectangle must share a
// producer edge to the same vertex.
func TestRangeVertexInterning(t *testing.T) {
	g := NewDependencyGraph(DefaultConfiguration(), NewDefaultFunctionLibrary())
	require.NoError(t, g.setFormulaToCell(CellAddress{SheetID: 1, Col: 2, Row: 0}, "=SUM(A1:A3)"))
	require.NoError(t, g.setFormulaToCell(CellAddress{SheetID: 1, Col: 3, Row: 0}, "=SUM(A1:A3)"))

	c1, _ := g.addresses.Get(CellAddress{SheetID: 1, Col: 2, Row: 0})
	d1, _ := g.addresses.Get(CellAddress{SheetID: 1, Col: 3, Row: 0})

	var rangeProducerC1, rangeProducerD1 VertexID
	for producer := range g.producers[c1] {
		if g.vertices[producer].Kind == VertexKindRange {
			rangeProducerC1 = producer
		}
	}
	for producer := range g.producers[d1] {
		if g.vertices[producer].Kind == VertexKindRange {
			rangeProducerD1 = producer
		}
	}
	require.NotZero(t, rangeProducerC1)
	assert.Equal(t, rangeProducerC1, rangeProducerD1, "identical rectangles must share one range vertex")
}

// Invariant 4 (spec §8): after a single mutation, only the mutated vertex's
// transitive consumers are marked dirty.
func TestDirtyClosureIsConsumerReachableOnly(t *testing.T) {
	g := NewDependencyGraph(DefaultConfiguration(), NewDefaultFunctionLibrary())
	require.NoError(t, g.setValueToCell(CellAddress{SheetID: 1, Col: 0, Row: 0}, 1.0)) // A1
	require.NoError(t, g.setValueToCell(CellAddress{SheetID: 1, Col: 0, Row: 1}, 2.0)) // A2 (unrelated)
	require.NoError(t, g.setFormulaToCell(CellAddress{SheetID: 1, Col: 1, Row: 0}, "=A1+1"))

	g.dirty = make(map[VertexID]struct{}) // clear setup noise
	g.setValueToCell(CellAddress{SheetID: 1, Col: 0, Row: 0}, 5.0)

	eval := NewEvaluator(g)
	seeds := g.dirtySeeds()
	scope := eval.reachableClosure(seeds)

	a2ID, _ := g.addresses.Get(CellAddress{SheetID: 1, Col: 0, Row: 1})
	b1ID, _ := g.addresses.Get(CellAddress{SheetID: 1, Col: 1, Row: 0})

	_, b1InScope := scope[b1ID]
	_, a2InScope := scope[a2ID]
	assert.True(t, b1InScope, "B1 depends on A1 and must be in the dirty closure")
	assert.False(t, a2InScope, "A2 does not depend on A1 and must not be in the dirty closure")
}

func TestMaybeEvictRangeVertexDropsUnreferencedRange(t *testing.T) {
	g := NewDependencyGraph(DefaultConfiguration(), NewDefaultFunctionLibrary())
	require.NoError(t, g.setFormulaToCell(CellAddress{SheetID: 1, Col: 2, Row: 0}, "=SUM(A1:A3)"))

	span := RangeAddress{SheetID: 1, StartCol: 0, StartRow: 0, EndCol: 0, EndRow: 2}
	_, interned := g.ranges.Get(span)
	require.True(t, interned)

	require.NoError(t, g.setCellEmpty(CellAddress{SheetID: 1, Col: 2, Row: 0}))
	_, stillInterned := g.ranges.Get(span)
	assert.False(t, stillInterned, "a range vertex with no remaining consumers is evicted")
}
