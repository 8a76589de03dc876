package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteCellRefShiftsAbsoluteReferenceOnInsert(t *testing.T) {
	ref := &CellRefNode{Row: 5, AbsRow: true, Col: 2, AbsCol: true}
	rewriteCellRef(ref, transformRecord{kind: transformAddRows, sheet: 1, at: 3, count: 2})
	assert.Equal(t, int64(7), ref.Row, "an absolute row at or after the insertion point shifts down by count")
}

func TestRewriteCellRefLeavesRelativeReferenceAlone(t *testing.T) {
	ref := &CellRefNode{Row: 5, AbsRow: false, Col: 2, AbsCol: true}
	rewriteCellRef(ref, transformRecord{kind: transformAddRows, sheet: 1, at: 3, count: 2})
	assert.Equal(t, int64(5), ref.Row, "relative references move in lockstep with their anchor and need no rewrite")
}

func TestRewriteCellRefIgnoresOtherSheets(t *testing.T) {
	ref := &CellRefNode{Row: 5, AbsRow: true, WorksheetExplicit: true, WorksheetID: 2}
	rewriteCellRef(ref, transformRecord{kind: transformAddRows, sheet: 1, at: 0, count: 10})
	assert.Equal(t, int64(5), ref.Row, "a reference explicitly naming a different sheet is unaffected")
}

func TestRewriteCellRefDanglesOnRemovedBand(t *testing.T) {
	ref := &CellRefNode{Row: 4, AbsRow: true}
	rewriteCellRef(ref, transformRecord{kind: transformRemoveRows, sheet: 1, at: 2, count: 3})
	assert.Equal(t, int64(-1), ref.Row, "an absolute row removed outright dangles to the invalid sentinel")
}

func TestRewriteCellRefShiftsAbsoluteReferenceAfterRemovedBand(t *testing.T) {
	ref := &CellRefNode{Row: 10, AbsRow: true}
	rewriteCellRef(ref, transformRecord{kind: transformRemoveRows, sheet: 1, at: 2, count: 3})
	assert.Equal(t, int64(7), ref.Row, "a reference past the removed band shifts up by count")
}

func TestLazyTransformCatchUpIsNoopWithoutQueuedTransforms(t *testing.T) {
	g := NewDependencyGraph(DefaultConfiguration(), NewDefaultFunctionLibrary())
	require.NoError(t, g.setFormulaToCell(CellAddress{SheetID: 1, Col: 0, Row: 0}, "=$A$1"))
	id, _ := g.addresses.Get(CellAddress{SheetID: 1, Col: 0, Row: 0})
	assert.NotPanics(t, func() { g.lazyTransforms.CatchUp(id) })
}
