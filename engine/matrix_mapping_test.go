package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrixMappingRejectsOverlap(t *testing.T) {
	m := NewMatrixMapping()
	require.NoError(t, m.Add(RangeAddress{SheetID: 1, StartCol: 0, StartRow: 0, EndCol: 1, EndRow: 1}, 10))
	err := m.Add(RangeAddress{SheetID: 1, StartCol: 1, StartRow: 1, EndCol: 2, EndRow: 2}, 11)
	assert.ErrorIs(t, err, ErrMatrixOverlap)
}

func TestMatrixMappingAtFindsCoveringVertex(t *testing.T) {
	m := NewMatrixMapping()
	span := RangeAddress{SheetID: 1, StartCol: 2, StartRow: 3, EndCol: 4, EndRow: 5}
	require.NoError(t, m.Add(span, 7))

	id, ok := m.At(CellAddress{SheetID: 1, Col: 3, Row: 4})
	require.True(t, ok)
	assert.Equal(t, VertexID(7), id)

	_, ok = m.At(CellAddress{SheetID: 1, Col: 0, Row: 0})
	assert.False(t, ok)
}

func TestMatrixMappingSplitByRowInsertion(t *testing.T) {
	m := NewMatrixMapping()
	require.NoError(t, m.Add(RangeAddress{SheetID: 1, StartCol: 0, StartRow: 2, EndCol: 0, EndRow: 5}, 1))

	assert.True(t, m.SplitByRowInsertion(1, 3), "inserting in the middle of rows 2-5 splits it")
	assert.False(t, m.SplitByRowInsertion(1, 2), "inserting exactly at the matrix's start does not split it")
	assert.False(t, m.SplitByRowInsertion(1, 6), "inserting after the matrix does not split it")
}

func TestMatrixMappingSplitByRowRemoval(t *testing.T) {
	m := NewMatrixMapping()
	require.NoError(t, m.Add(RangeAddress{SheetID: 1, StartCol: 0, StartRow: 2, EndCol: 0, EndRow: 5}, 1))

	assert.True(t, m.SplitByRowRemoval(1, 3, 4), "removing a strict sub-band splits it")
	assert.False(t, m.SplitByRowRemoval(1, 2, 5), "removing exactly the matrix's band deletes it whole, not a split")
	assert.False(t, m.SplitByRowRemoval(1, 0, 1), "removing rows before the matrix is disjoint")
}

func TestMatrixMappingRemoveAndReAddPreservesID(t *testing.T) {
	m := NewMatrixMapping()
	oldSpan := RangeAddress{SheetID: 1, StartCol: 0, StartRow: 0, EndCol: 1, EndRow: 1}
	require.NoError(t, m.Add(oldSpan, 42))

	newSpan := RangeAddress{SheetID: 1, StartCol: 0, StartRow: 5, EndCol: 1, EndRow: 6}
	m.RemoveAndReAdd(oldSpan, newSpan, 42)

	_, ok := m.At(CellAddress{SheetID: 1, Col: 0, Row: 0})
	assert.False(t, ok)
	id, ok := m.At(CellAddress{SheetID: 1, Col: 0, Row: 5})
	require.True(t, ok)
	assert.Equal(t, VertexID(42), id)
}
